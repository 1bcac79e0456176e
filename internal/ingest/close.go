package ingest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Mainfreight/integration-jira-cloud/internal/constants"
	"github.com/Mainfreight/integration-jira-cloud/internal/jira"
)

// CloseFixed closes the issues of findings that were seen on a previous run
// but are gone from the current scan.
//
// Subtasks matching a disappeared finding are closed directly. A parent task
// is only closed once every one of its subtasks is in a done status.
func (ing *Ingestor) CloseFixed(ctx context.Context, previous []string) error {
	var closeErr error
	for _, key := range previous {
		if slices.Contains(ing.seen, key) {
			continue
		}
		if err := ing.closeFinding(ctx, key); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("could not close finding %s: %w", key, err))
		}
	}
	return closeErr
}

func (ing *Ingestor) closeFinding(ctx context.Context, key string) error {
	parts := strings.SplitN(key, "/", 4)
	if len(parts) != 4 {
		return fmt.Errorf("malformed finding key %q", key)
	}
	pluginID, host, protocol, port := parts[0], parts[1], parts[2], parts[3]
	ing.log.Info("Finding fixed, closing issues", "plugin", pluginID, "host", host)

	if ing.subtask != nil {
		sjql := ing.baseJQL(ing.subtask)
		sjql = append(sjql,
			ing.searchClause("Plugin ID", pluginID),
			ing.searchClause("Host", host),
			ing.searchClause("Protocol", protocol),
			ing.searchClause("Port", port),
		)

		res, err := ing.issues.SearchIssues(ctx, joinJQL(sjql))
		if err != nil {
			return err
		}
		for _, issue := range res.Issues {
			if err := ing.issues.CloseIssue(ctx, issue); err != nil {
				return err
			}
		}
	}

	// Parents hold one subtask per affected service, so only close them
	// once nothing underneath is open anymore.
	jql := append(ing.baseJQL(ing.task), ing.searchClause("Plugin ID", pluginID))
	parents, err := ing.issues.SearchIssues(ctx, joinJQL(jql))
	if err != nil {
		return err
	}
	for _, parent := range parents.Issues {
		if !allSubtasksDone(parent) {
			ing.log.Debug("Parent still has open subtasks, not closing", "key", parent.Key)
			continue
		}
		if err := ing.issues.CloseIssue(ctx, parent); err != nil {
			return err
		}
	}

	return nil
}

// searchClause builds the JQL clause matching a CSV column value through the
// field configured for that column.
func (ing *Ingestor) searchClause(csvField, value string) string {
	for _, def := range ing.cfg.Fields {
		if def.CSVField == csvField {
			return fmt.Sprintf("%q ~ %q", def.JiraField, value)
		}
	}
	return fmt.Sprintf("%q ~ %q", csvField, value)
}

func allSubtasksDone(issue jira.Issue) bool {
	for _, sub := range issue.Fields.Subtasks {
		if !slices.Contains(constants.DoneStatuses, sub.Fields.Status.Name) {
			return false
		}
	}
	return true
}

func joinJQL(statements []string) string {
	return strings.Join(statements, " and ")
}
