// Package config is the implementation of the integration configuration.
// It loads the YAML configuration file over the built-in defaults, overlays
// credentials from an optional ini file, and can emit a fully resolved
// configuration for --setup-only runs.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/ubuntu/decorate"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNoPlatform is returned when no supported Tenable platform is configured.
	ErrNoPlatform = errors.New("no valid Tenable platform configuration defined")

	// ErrMissingCredentials is returned when required API credentials are absent.
	ErrMissingCredentials = errors.New("missing API credentials")
)

const redacted = "<REDACTED>"

// Config is the root of the integration configuration.
type Config struct {
	Tenable     Tenable     `yaml:"tenable"`
	Jira        Jira        `yaml:"jira"`
	Project     Project     `yaml:"project"`
	Fields      []Field     `yaml:"fields"`
	IssueTypes  []IssueType `yaml:"issue_types"`
	Description Description `yaml:"description"`
	Screen      Screen      `yaml:"screen"`
	Log         Log         `yaml:"log,omitempty"`
}

// Tenable holds the scanner-side settings.
type Tenable struct {
	Platform        string   `yaml:"platform"`
	URL             string   `yaml:"url,omitempty"`
	AccessKey       string   `yaml:"access_key,omitempty"`
	SecretKey       string   `yaml:"secret_key,omitempty"`
	Severities      []string `yaml:"severities"`
	CloseFixed      bool     `yaml:"close_fixed,omitempty"`
	CredentialsFile string   `yaml:"credentials_file,omitempty"`
}

// Jira holds the tracker-side settings.
type Jira struct {
	Address     string `yaml:"address"`
	APIUsername string `yaml:"api_username"`
	APIToken    string `yaml:"api_token"`
}

// Project describes the Jira project the issues are filed under.
type Project struct {
	Key           string `yaml:"key"`
	Name          string `yaml:"name"`
	Description   string `yaml:"description,omitempty"`
	URL           string `yaml:"url,omitempty"`
	LeadAccountID string `yaml:"leadAccountId,omitempty"`
	Assignee      string `yaml:"assignee,omitempty"`
	TypeKey       string `yaml:"projectTypeKey"`
	TemplateKey   string `yaml:"projectTemplateKey"`
}

// Field maps a scan export column onto a Jira custom field.
type Field struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	Searcher    string   `yaml:"searcher"`
	CSVField    string   `yaml:"csv_field,omitempty"`
	StaticValue string   `yaml:"static_value,omitempty"`
	JiraField   string   `yaml:"jira_field,omitempty"`
	JiraID      string   `yaml:"jira_id,omitempty"`
	IssueTypes  []string `yaml:"issue_type"`
}

// AppliesTo reports whether the field is mapped onto the named issue type.
func (f Field) AppliesTo(issueType string) bool {
	return slices.Contains(f.IssueTypes, issueType)
}

// IssueType describes a Jira issue type driven by the integration.
type IssueType struct {
	Name   string   `yaml:"name"`
	JiraID string   `yaml:"jira_id,omitempty"`
	Type   string   `yaml:"type"`
	Search []string `yaml:"search"`
}

// Section is one heading+paragraph block of a generated issue description.
type Section struct {
	Name     string `yaml:"name"`
	CSVField string `yaml:"csv_field"`
}

// Description defines the generated description blocks per issue type.
type Description struct {
	Task    []Section `yaml:"task"`
	Subtask []Section `yaml:"subtask"`
}

// Screen configures which Jira screens receive the custom fields.
type Screen struct {
	NoCreate bool                `yaml:"no_create,omitempty"`
	JiraIDs  []int               `yaml:"jira_ids,omitempty"`
	Names    []string            `yaml:"name"`
	Tabs     map[string][]string `yaml:"tabs"`
}

// Log holds the logging settings from the config file.
type Log struct {
	Level string `yaml:"level,omitempty"`
}

// Load reads the configuration file at path on top of the built-in defaults.
//
// Scalar values from the file win over defaults; lists from the file replace
// the default lists wholesale. If the resulting configuration names a
// credentials file, Tenable and Jira credentials are overlaid from it.
func Load(l *slog.Logger, path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read configuration file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("could not parse configuration file %s: %v", path, err)
	}
	l.Debug("Loaded configuration file", "file", path)

	// The Jira-side field name defaults to the field name itself.
	for i := range cfg.Fields {
		if cfg.Fields[i].JiraField == "" {
			cfg.Fields[i].JiraField = cfg.Fields[i].Name
		}
	}

	if cfg.Tenable.CredentialsFile != "" {
		if err := cfg.overlayCredentials(l, cfg.Tenable.CredentialsFile); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// overlayCredentials fills credentials from an ini file.
//
// Expected sections: [tenable] with access_key and secret_key, and [jira]
// with api_username and api_token. Values already set in the configuration
// file are not overridden.
func (c *Config) overlayCredentials(l *slog.Logger, path string) (err error) {
	defer decorate.OnError(&err, "could not load credentials file %s", path)

	f, err := ini.Load(path)
	if err != nil {
		return err
	}

	overlay := func(dst *string, section, key string) {
		if *dst != "" {
			return
		}
		if v := f.Section(section).Key(key).String(); v != "" {
			*dst = v
		}
	}

	overlay(&c.Tenable.AccessKey, "tenable", "access_key")
	overlay(&c.Tenable.SecretKey, "tenable", "secret_key")
	overlay(&c.Jira.APIUsername, "jira", "api_username")
	overlay(&c.Jira.APIToken, "jira", "api_token")
	l.Debug("Overlaid credentials file", "file", path)

	return nil
}

// Validate checks that the configuration can drive a run.
// Scanner credentials are only required when requireTenable is set, so
// ingest-only runs can work from a local export without API keys.
func (c Config) Validate(requireTenable bool) error {
	switch strings.ToLower(c.Tenable.Platform) {
	case "tenable.io", "csv":
	case "tenable.sc":
		return fmt.Errorf("%w: platform tenable.sc is not supported by the csv pipeline", ErrNoPlatform)
	default:
		return fmt.Errorf("%w: %q", ErrNoPlatform, c.Tenable.Platform)
	}

	if c.Jira.Address == "" || c.Jira.APIUsername == "" || c.Jira.APIToken == "" {
		return fmt.Errorf("%w: jira address, api_username and api_token are required", ErrMissingCredentials)
	}

	if requireTenable && (c.Tenable.AccessKey == "" || c.Tenable.SecretKey == "") {
		return fmt.Errorf("%w: tenable access_key and secret_key are required to download scans", ErrMissingCredentials)
	}

	return nil
}

// TaskType returns the standard issue type, or nil if none is configured.
func (c Config) TaskType() *IssueType {
	return c.issueType("standard")
}

// SubtaskType returns the subtask issue type, or nil if none is configured.
func (c Config) SubtaskType() *IssueType {
	return c.issueType("subtask")
}

func (c Config) issueType(kind string) *IssueType {
	for i := range c.IssueTypes {
		if c.IssueTypes[i].Type == kind {
			return &c.IssueTypes[i]
		}
	}
	return nil
}

// Redact returns a deep copy of the configuration with secrets and
// identifying values blanked, suitable for inclusion in a diagnostic bundle.
func (c Config) Redact() Config {
	out := c
	out.Fields = slices.Clone(c.Fields)
	out.IssueTypes = slices.Clone(c.IssueTypes)
	out.Screen.JiraIDs = slices.Clone(c.Screen.JiraIDs)
	out.Screen.Names = slices.Clone(c.Screen.Names)
	out.Screen.Tabs = make(map[string][]string, len(c.Screen.Tabs))
	for k, v := range c.Screen.Tabs {
		out.Screen.Tabs[k] = slices.Clone(v)
	}

	blank := func(v *string) {
		if *v != "" {
			*v = redacted
		}
	}
	blank(&out.Jira.Address)
	blank(&out.Jira.APIUsername)
	blank(&out.Jira.APIToken)
	blank(&out.Project.LeadAccountID)
	blank(&out.Tenable.AccessKey)
	blank(&out.Tenable.SecretKey)
	blank(&out.Tenable.CredentialsFile)

	return out
}
