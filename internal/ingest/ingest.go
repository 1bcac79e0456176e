// Package ingest is the implementation of the transformer component.
// It reads scan CSV exports, keeps the findings matching the configured
// severities and drives the matching Jira tasks and subtasks.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/Mainfreight/integration-jira-cloud/internal/config"
	"github.com/Mainfreight/integration-jira-cloud/internal/constants"
	"github.com/Mainfreight/integration-jira-cloud/internal/jira"
)

var (
	// ErrNoTaskType is returned when the configuration defines no standard issue type.
	ErrNoTaskType = errors.New("no standard issue type defined for vulnerability tasks")
)

type issueService interface {
	UpsertIssue(ctx context.Context, fields map[string]any, jql string) (jira.Issue, error)
	SearchIssues(ctx context.Context, jql string) (jira.SearchResult, error)
	CloseIssue(ctx context.Context, issue jira.Issue) error
}

// Ingestor transforms scan findings into Jira issues.
type Ingestor struct {
	issues issueService
	cfg    *config.Config
	log    *slog.Logger

	task       *config.IssueType
	subtask    *config.IssueType
	severities []string

	seen []string
}

// New returns a new Ingestor for the given configuration.
//
// appName, when not empty, is applied as a label through the Application
// field so created issues can be attributed to an application.
func New(l *slog.Logger, issues issueService, cfg *config.Config, appName string) (*Ingestor, error) {
	task := cfg.TaskType()
	if task == nil {
		return nil, ErrNoTaskType
	}

	if appName != "" {
		for i := range cfg.Fields {
			if cfg.Fields[i].Name == "Application" {
				cfg.Fields[i].StaticValue = appName
			}
		}
	}

	return &Ingestor{
		issues:     issues,
		cfg:        cfg,
		log:        l,
		task:       task,
		subtask:    cfg.SubtaskType(),
		severities: NormalizeSeverities(cfg.Tenable.Severities),
	}, nil
}

// Seen returns the keys of the findings processed so far.
func (ing *Ingestor) Seen() []string {
	return slices.Clone(ing.seen)
}

// IngestFile reads the scan export at path and upserts an issue pair per
// finding whose Risk matches the configured severities. It returns the
// number of findings processed.
func (ing *Ingestor) IngestFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("could not open scan file: %w", err)
	}
	defer f.Close()

	ing.log.Info("Reading scan file", "file", path)
	return ing.ingest(ctx, f)
}

func (ing *Ingestor) ingest(ctx context.Context, r io.Reader) (int, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return 0, fmt.Errorf("could not read scan header: %v", err)
	}

	processed := 0
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return processed, fmt.Errorf("could not read scan row: %v", err)
		}

		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}

		if !slices.Contains(ing.severities, row["Risk"]) {
			continue
		}

		if err := ing.processRow(ctx, row); err != nil {
			return processed, err
		}
		processed++
	}

	ing.log.Info("Processed filtered findings", "count", processed)
	return processed, nil
}

// processRow upserts the task and subtask for a single finding.
func (ing *Ingestor) processRow(ctx context.Context, row map[string]string) error {
	finding, err := decodeFinding(row)
	if err != nil {
		return err
	}
	ing.log.Info("Processing finding", "plugin", finding.PluginID, "name", finding.Name)

	url := ExtractURL(finding.PluginOutput)
	if url == "" {
		ing.log.Debug("No affected URL found", "plugin", finding.PluginID)
	} else {
		ing.log.Debug("Affected URL", "url", url)
	}
	row["URL"] = url

	fields, subfields, jql, sjql, err := ing.buildIssues(row, finding, url)
	if err != nil {
		return err
	}

	issue, err := ing.issues.UpsertIssue(ctx, fields, strings.Join(jql, " and "))
	if err != nil {
		return fmt.Errorf("could not upsert task for finding %s: %w", finding.Key(), err)
	}

	if ing.subtask != nil {
		subfields["parent"] = map[string]any{"key": issue.Key}
		if _, err := ing.issues.UpsertIssue(ctx, subfields, strings.Join(sjql, " and ")); err != nil {
			return fmt.Errorf("could not upsert subtask for finding %s: %w", finding.Key(), err)
		}
	}

	ing.seen = append(ing.seen, finding.Key())
	return nil
}

// buildIssues maps a row through the configured field definitions into the
// task and subtask field payloads and their dedup JQL queries.
func (ing *Ingestor) buildIssues(row map[string]string, finding Finding, url string) (fields, subfields map[string]any, jql, sjql []string, err error) {
	fields = ing.issueSkel(ing.task)
	subfields = ing.issueSkel(ing.subtask)
	jql = ing.baseJQL(ing.task)
	sjql = ing.baseJQL(ing.subtask)

	for _, def := range ing.cfg.Fields {
		value := fieldValue(def, row)

		var processed any
		if value != "" {
			if processed, err = processValue(def, value); err != nil {
				return nil, nil, nil, nil, err
			}

			if def.AppliesTo(ing.task.Name) {
				fields[def.JiraID] = processed
			}
			if ing.subtask != nil && def.AppliesTo(ing.subtask.Name) {
				subfields[def.JiraID] = processed
			}
		}

		statement := jqlStatement(def, processed)
		if slices.Contains(ing.task.Search, def.JiraField) {
			jql = append(jql, statement)
		}
		if ing.subtask != nil && slices.Contains(ing.subtask.Search, def.JiraField) {
			sjql = append(sjql, statement)
		}
	}

	fields["summary"] = TaskSummary(finding)
	fields["description"] = adfDocument(ing.cfg.Description.Task, row)
	if ing.subtask != nil {
		subfields["summary"] = SubtaskSummary(finding, url)
		subfields["description"] = adfDocument(ing.cfg.Description.Subtask, row)
	}

	return fields, subfields, jql, sjql, nil
}

func (ing *Ingestor) issueSkel(t *config.IssueType) map[string]any {
	if t == nil {
		return map[string]any{}
	}
	return map[string]any{
		"project":   map[string]any{"key": ing.cfg.Project.Key},
		"issuetype": map[string]any{"id": t.JiraID},
	}
}

func (ing *Ingestor) baseJQL(t *config.IssueType) []string {
	if t == nil {
		return nil
	}
	return []string{
		fmt.Sprintf("project = %q", ing.cfg.Project.Key),
		fmt.Sprintf("issuetype = %q", t.Name),
		fmt.Sprintf("status not in (%s)", strings.Join(constants.DoneStatuses, ", ")),
	}
}
