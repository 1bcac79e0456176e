package jira

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Mainfreight/integration-jira-cloud/internal/config"
	"github.com/ubuntu/decorate"
)

// ProjectInfo is a Jira project as returned by the API.
type ProjectInfo struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// FieldInfo is a Jira field as returned by the API.
type FieldInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Custom bool   `json:"custom"`
}

// IssueTypeInfo is a Jira issue type as returned by the API.
type IssueTypeInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subtask bool   `json:"subtask"`
}

// UpsertProject fetches the configured project, creating it when missing.
func (c *Client) UpsertProject(ctx context.Context, p config.Project) (proj ProjectInfo, err error) {
	defer decorate.OnError(&err, "could not upsert project %s", p.Key)

	err = c.do(ctx, "GET", "/project/"+p.Key, nil, nil, &proj)
	if err == nil {
		c.log.Debug("Found existing project", "key", proj.Key, "id", proj.ID)
		return proj, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return ProjectInfo{}, err
	}

	c.log.Info("Creating Jira project", "key", p.Key, "name", p.Name)
	body := map[string]any{
		"key":                p.Key,
		"name":               p.Name,
		"description":        p.Description,
		"url":                p.URL,
		"leadAccountId":      p.LeadAccountID,
		"assigneeType":       p.Assignee,
		"projectTypeKey":     p.TypeKey,
		"projectTemplateKey": p.TemplateKey,
	}
	if err := c.do(ctx, "POST", "/project", nil, body, &proj); err != nil {
		return ProjectInfo{}, err
	}
	proj.Key = p.Key
	return proj, nil
}

// ListFields returns all fields known to the Jira instance.
func (c *Client) ListFields(ctx context.Context) ([]FieldInfo, error) {
	var fields []FieldInfo
	if err := c.do(ctx, "GET", "/field", nil, nil, &fields); err != nil {
		return nil, fmt.Errorf("could not list fields: %w", err)
	}
	return fields, nil
}

// UpsertFields resolves the configured custom fields against the instance,
// creating the missing ones, and returns the definitions with their Jira ids
// filled in.
func (c *Client) UpsertFields(ctx context.Context, defs []config.Field) (out []config.Field, err error) {
	defer decorate.OnError(&err, "could not upsert custom fields")

	existing, err := c.ListFields(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]FieldInfo, len(existing))
	for _, f := range existing {
		byName[f.Name] = f
	}

	out = make([]config.Field, len(defs))
	for i, def := range defs {
		if def.JiraField == "" {
			def.JiraField = def.Name
		}
		if def.JiraID == "" {
			if f, ok := byName[def.JiraField]; ok {
				def.JiraID = f.ID
			} else {
				created, err := c.createField(ctx, def)
				if err != nil {
					return nil, err
				}
				def.JiraID = created.ID
			}
		}
		out[i] = def
	}
	return out, nil
}

func (c *Client) createField(ctx context.Context, def config.Field) (FieldInfo, error) {
	c.log.Info("Creating Jira custom field", "name", def.Name, "type", def.Type)
	body := map[string]any{
		"name":        def.Name,
		"type":        "com.atlassian.jira.plugin.system.customfieldtypes:" + def.Type,
		"searcherKey": "com.atlassian.jira.plugin.system.customfieldtypes:" + def.Searcher,
	}
	var created FieldInfo
	if err := c.do(ctx, "POST", "/field", nil, body, &created); err != nil {
		return FieldInfo{}, fmt.Errorf("could not create field %s: %w", def.Name, err)
	}
	return created, nil
}

// ListIssueTypes returns all issue types known to the Jira instance.
func (c *Client) ListIssueTypes(ctx context.Context) ([]IssueTypeInfo, error) {
	var types []IssueTypeInfo
	if err := c.do(ctx, "GET", "/issuetype", nil, nil, &types); err != nil {
		return nil, fmt.Errorf("could not list issue types: %w", err)
	}
	return types, nil
}

// UpsertIssueTypes resolves the configured issue types against the instance,
// creating the missing ones, and returns the definitions with their Jira ids
// filled in.
func (c *Client) UpsertIssueTypes(ctx context.Context, defs []config.IssueType) (out []config.IssueType, err error) {
	defer decorate.OnError(&err, "could not upsert issue types")

	existing, err := c.ListIssueTypes(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]IssueTypeInfo, len(existing))
	for _, t := range existing {
		byName[t.Name] = t
	}

	out = make([]config.IssueType, len(defs))
	for i, def := range defs {
		if def.JiraID == "" {
			if t, ok := byName[def.Name]; ok {
				def.JiraID = t.ID
			} else {
				created, err := c.createIssueType(ctx, def)
				if err != nil {
					return nil, err
				}
				def.JiraID = created.ID
			}
		}
		out[i] = def
	}
	return out, nil
}

func (c *Client) createIssueType(ctx context.Context, def config.IssueType) (IssueTypeInfo, error) {
	c.log.Info("Creating Jira issue type", "name", def.Name, "type", def.Type)
	body := map[string]any{
		"name": def.Name,
		"type": def.Type,
	}
	var created IssueTypeInfo
	if err := c.do(ctx, "POST", "/issuetype", nil, body, &created); err != nil {
		return IssueTypeInfo{}, fmt.Errorf("could not create issue type %s: %w", def.Name, err)
	}
	return created, nil
}

// ScreenInfo is a Jira screen as returned by the API.
type ScreenInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// TabInfo is a screen tab as returned by the API.
type TabInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ListScreens returns all screens of the instance, following pagination.
func (c *Client) ListScreens(ctx context.Context) ([]ScreenInfo, error) {
	var screens []ScreenInfo
	for start := 0; ; {
		var page struct {
			Values []ScreenInfo `json:"values"`
			IsLast bool         `json:"isLast"`
		}
		q := url.Values{"startAt": {strconv.Itoa(start)}}
		if err := c.do(ctx, "GET", "/screens", q, nil, &page); err != nil {
			return nil, fmt.Errorf("could not list screens: %w", err)
		}
		screens = append(screens, page.Values...)
		if page.IsLast || len(page.Values) == 0 {
			break
		}
		start += len(page.Values)
	}
	return screens, nil
}

// ScreenTabs returns the tabs of a screen.
func (c *Client) ScreenTabs(ctx context.Context, screenID int) ([]TabInfo, error) {
	var tabs []TabInfo
	if err := c.do(ctx, "GET", fmt.Sprintf("/screens/%d/tabs", screenID), nil, nil, &tabs); err != nil {
		return nil, fmt.Errorf("could not list screen tabs: %w", err)
	}
	return tabs, nil
}

// CreateScreenTab creates a tab on a screen and returns it.
func (c *Client) CreateScreenTab(ctx context.Context, screenID int, name string) (TabInfo, error) {
	var tab TabInfo
	if err := c.do(ctx, "POST", fmt.Sprintf("/screens/%d/tabs", screenID), nil, map[string]any{"name": name}, &tab); err != nil {
		return TabInfo{}, fmt.Errorf("could not create screen tab %s: %w", name, err)
	}
	return tab, nil
}

// TabFields returns the fields present on a screen tab.
func (c *Client) TabFields(ctx context.Context, screenID, tabID int) ([]FieldInfo, error) {
	var fields []FieldInfo
	if err := c.do(ctx, "GET", fmt.Sprintf("/screens/%d/tabs/%d/fields", screenID, tabID), nil, nil, &fields); err != nil {
		return nil, fmt.Errorf("could not list tab fields: %w", err)
	}
	return fields, nil
}

// AddTabField adds a field to a screen tab.
func (c *Client) AddTabField(ctx context.Context, screenID, tabID int, fieldID string) error {
	if err := c.do(ctx, "POST", fmt.Sprintf("/screens/%d/tabs/%d/fields", screenID, tabID), nil, map[string]any{"fieldId": fieldID}, nil); err != nil {
		return fmt.Errorf("could not add field %s to tab: %w", fieldID, err)
	}
	return nil
}

// BuildScreens makes sure every configured screen tab carries the configured
// custom fields.
//
// When no screen ids are configured, screens are discovered by the naming
// convention Jira uses when creating them, "<PROJECTKEY>: <screen name>".
func (c *Client) BuildScreens(ctx context.Context, cfg *config.Config, fields []config.Field) (err error) {
	defer decorate.OnError(&err, "could not build screens")

	if cfg.Screen.NoCreate {
		c.log.Debug("Screen creation disabled, skipping")
		return nil
	}

	sids := cfg.Screen.JiraIDs
	if len(sids) == 0 {
		names := make(map[string]bool, len(cfg.Screen.Names))
		for _, name := range cfg.Screen.Names {
			names[fmt.Sprintf("%s: %s", cfg.Project.Key, name)] = true
		}
		screens, err := c.ListScreens(ctx)
		if err != nil {
			return err
		}
		for _, s := range screens {
			if names[s.Name] {
				sids = append(sids, s.ID)
			}
		}
	}

	byJiraField := make(map[string]config.Field, len(fields))
	for _, f := range fields {
		byJiraField[f.JiraField] = f
	}

	for _, sid := range sids {
		tabs, err := c.ScreenTabs(ctx, sid)
		if err != nil {
			return err
		}

		for tabName, fieldNames := range cfg.Screen.Tabs {
			// The default tab carries the name "Field Tab" in Jira.
			name := tabName
			if tabName == "default" {
				name = "Field Tab"
			}

			tabID := 0
			for _, t := range tabs {
				if t.Name == name {
					tabID = t.ID
				}
			}
			if tabID == 0 {
				tab, err := c.CreateScreenTab(ctx, sid, name)
				if err != nil {
					return err
				}
				tabID = tab.ID
			}

			present, err := c.TabFields(ctx, sid, tabID)
			if err != nil {
				return err
			}
			onTab := make(map[string]bool, len(present))
			for _, f := range present {
				onTab[f.Name] = true
			}

			for _, fieldName := range fieldNames {
				f, ok := byJiraField[fieldName]
				if !ok || onTab[fieldName] {
					continue
				}
				if err := c.AddTabField(ctx, sid, tabID, f.JiraID); err != nil {
					return err
				}
			}
		}
	}

	return nil
}
