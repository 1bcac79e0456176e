package jira

import (
	"context"
	"fmt"
	"slices"

	"github.com/Mainfreight/integration-jira-cloud/internal/constants"
	"github.com/go-viper/mapstructure/v2"
)

// Issue is a Jira issue as returned by the search API.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Fields IssueFields `json:"fields"`
}

// IssueFields is the subset of issue fields the integration reads back.
type IssueFields struct {
	Summary  string  `mapstructure:"summary"`
	Status   Status  `mapstructure:"status"`
	Subtasks []Issue `mapstructure:"subtasks"`
}

// Status is an issue status.
type Status struct {
	Name string `mapstructure:"name"`
}

// SearchResult is the response of an issue search.
type SearchResult struct {
	Total  int     `json:"total"`
	Issues []Issue `json:"issues"`
}

// Transition is an available workflow transition of an issue.
type Transition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SearchIssues runs a JQL search and returns the matching issues.
func (c *Client) SearchIssues(ctx context.Context, jql string) (SearchResult, error) {
	body := map[string]any{
		"jql":    jql,
		"fields": []string{"summary", "status", "subtasks"},
	}

	// The fields object comes back weakly typed; decode it leniently so
	// instances with exotic field configurations don't break the search.
	var raw struct {
		Total  int `json:"total"`
		Issues []struct {
			ID     string         `json:"id"`
			Key    string         `json:"key"`
			Fields map[string]any `json:"fields"`
		} `json:"issues"`
	}
	if err := c.do(ctx, "POST", "/search", nil, body, &raw); err != nil {
		return SearchResult{}, fmt.Errorf("could not search issues: %w", err)
	}

	res := SearchResult{Total: raw.Total}
	for _, ri := range raw.Issues {
		issue := Issue{ID: ri.ID, Key: ri.Key}
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &issue.Fields,
		})
		if err != nil {
			return SearchResult{}, fmt.Errorf("could not create issue decoder: %v", err)
		}
		if err := dec.Decode(ri.Fields); err != nil {
			return SearchResult{}, fmt.Errorf("could not decode issue %s fields: %v", ri.Key, err)
		}
		res.Issues = append(res.Issues, issue)
	}

	c.log.Debug("Searched issues", "jql", jql, "total", res.Total)
	return res, nil
}

// CreateIssue creates an issue from the given fields and returns it.
func (c *Client) CreateIssue(ctx context.Context, fields map[string]any) (Issue, error) {
	var created Issue
	if err := c.do(ctx, "POST", "/issue", nil, map[string]any{"fields": fields}, &created); err != nil {
		return Issue{}, fmt.Errorf("could not create issue: %w", err)
	}
	c.log.Info("Created issue", "key", created.Key)
	return created, nil
}

// UpdateIssue updates the fields of an existing issue.
func (c *Client) UpdateIssue(ctx context.Context, key string, fields map[string]any) error {
	if err := c.do(ctx, "PUT", "/issue/"+key, nil, map[string]any{"fields": fields}, nil); err != nil {
		return fmt.Errorf("could not update issue %s: %w", key, err)
	}
	c.log.Info("Updated issue", "key", key)
	return nil
}

// UpsertIssue searches for an open issue matching the JQL statement and
// updates the first hit, or creates a new issue when there is none.
func (c *Client) UpsertIssue(ctx context.Context, fields map[string]any, jql string) (Issue, error) {
	res, err := c.SearchIssues(ctx, jql)
	if err != nil {
		return Issue{}, err
	}

	// Total and the returned page can disagree, only trust the page.
	if len(res.Issues) > 0 {
		issue := res.Issues[0]
		if err := c.UpdateIssue(ctx, issue.Key, fields); err != nil {
			return Issue{}, err
		}
		return issue, nil
	}

	return c.CreateIssue(ctx, fields)
}

// Transitions returns the available transitions of an issue.
func (c *Client) Transitions(ctx context.Context, id string) ([]Transition, error) {
	var resp struct {
		Transitions []Transition `json:"transitions"`
	}
	if err := c.do(ctx, "GET", fmt.Sprintf("/issue/%s/transitions", id), nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("could not list transitions for issue %s: %w", id, err)
	}
	return resp.Transitions, nil
}

// CloseIssue transitions an issue to the first available done-like status.
func (c *Client) CloseIssue(ctx context.Context, issue Issue) error {
	transitions, err := c.Transitions(ctx, issue.ID)
	if err != nil {
		return err
	}

	var done string
	for _, t := range transitions {
		if slices.Contains(constants.DoneStatuses, t.Name) {
			done = t.ID
		}
	}
	if done == "" {
		return fmt.Errorf("no closing transition available for issue %s", issue.Key)
	}

	c.log.Info("Closing issue", "key", issue.Key, "summary", issue.Fields.Summary)
	body := map[string]any{"transition": map[string]any{"id": done}}
	if err := c.do(ctx, "POST", fmt.Sprintf("/issue/%s/transitions", issue.ID), nil, body, nil); err != nil {
		return fmt.Errorf("could not transition issue %s: %w", issue.Key, err)
	}
	return nil
}
