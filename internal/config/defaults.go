package config

// Field and searcher types understood by Jira's custom field API.
const (
	TypeReadOnly = "readonlyfield"
	TypeTextArea = "textarea"
	TypeLabels   = "labels"
	TypeDateTime = "datetime"
	TypeFloat    = "float"

	searcherText   = "textsearcher"
	searcherLabel  = "labelsearcher"
	searcherDate   = "datetimerange"
	searcherNumber = "exactnumber"
)

// Default issue type names.
const (
	TaskName    = "Task"
	SubtaskName = "Sub-task"
)

// Defaults returns the built-in configuration the user file is merged onto.
// The field mapping follows the column layout of Tenable scan CSV exports.
func Defaults() *Config {
	both := []string{TaskName, SubtaskName}
	subtaskOnly := []string{SubtaskName}

	return &Config{
		Tenable: Tenable{
			Platform:   "tenable.io",
			URL:        "https://cloud.tenable.com",
			Severities: []string{"critical", "high"},
		},
		Project: Project{
			Key:         "VULN",
			Name:        "Vulnerability Management",
			Description: "Managing vulnerabilities discovered by Tenable scans.",
			URL:         "https://cloud.tenable.com",
			Assignee:    "UNASSIGNED",
			TypeKey:     "business",
			TemplateKey: "com.atlassian.jira-core-project-templates:jira-core-simplified-task-tracking",
		},
		Fields: []Field{
			{
				Name:        "Tenable Platform",
				Type:        TypeReadOnly,
				Searcher:    searcherText,
				StaticValue: "Tenable.io",
				IssueTypes:  both,
			},
			{
				Name:       "Tenable Plugin ID",
				Type:       TypeReadOnly,
				Searcher:   searcherText,
				CSVField:   "Plugin ID",
				IssueTypes: both,
			},
			{
				Name:       "Tenable Severity",
				Type:       TypeReadOnly,
				Searcher:   searcherText,
				CSVField:   "Risk",
				IssueTypes: both,
			},
			{
				Name:       "CVEs",
				Type:       TypeLabels,
				Searcher:   searcherLabel,
				CSVField:   "CVE",
				IssueTypes: both,
			},
			{
				Name:       "CVSSv2 Base Score",
				Type:       TypeFloat,
				Searcher:   searcherNumber,
				CSVField:   "CVSS",
				IssueTypes: both,
			},
			{
				Name:       "Device Hostname",
				Type:       TypeReadOnly,
				Searcher:   searcherText,
				CSVField:   "Host",
				IssueTypes: subtaskOnly,
			},
			{
				Name:       "Device Protocol",
				Type:       TypeReadOnly,
				Searcher:   searcherText,
				CSVField:   "Protocol",
				IssueTypes: subtaskOnly,
			},
			{
				Name:       "Device Port",
				Type:       TypeReadOnly,
				Searcher:   searcherText,
				CSVField:   "Port",
				IssueTypes: subtaskOnly,
			},
			{
				Name:       "Affected URL",
				Type:       TypeReadOnly,
				Searcher:   searcherText,
				CSVField:   "URL",
				IssueTypes: subtaskOnly,
			},
			{
				Name:       "Application",
				Type:       TypeLabels,
				Searcher:   searcherLabel,
				IssueTypes: both,
			},
		},
		IssueTypes: []IssueType{
			{
				Name:   TaskName,
				Type:   "standard",
				Search: []string{"Tenable Plugin ID"},
			},
			{
				Name:   SubtaskName,
				Type:   "subtask",
				Search: []string{"Tenable Plugin ID", "Device Hostname", "Device Protocol", "Device Port"},
			},
		},
		Description: Description{
			Task: []Section{
				{Name: "Description", CSVField: "Description"},
				{Name: "Solution", CSVField: "Solution"},
				{Name: "See Also", CSVField: "See Also"},
			},
			Subtask: []Section{
				{Name: "Description", CSVField: "Description"},
				{Name: "Solution", CSVField: "Solution"},
				{Name: "Output", CSVField: "Plugin Output"},
				{Name: "See Also", CSVField: "See Also"},
			},
		},
		Screen: Screen{
			Names: []string{"Task Management Edit/View Issue Screen"},
			Tabs: map[string][]string{
				"Vulnerability": {
					"Tenable Platform",
					"Tenable Plugin ID",
					"Tenable Severity",
					"CVEs",
					"CVSSv2 Base Score",
					"Device Hostname",
					"Device Protocol",
					"Device Port",
					"Affected URL",
					"Application",
				},
			},
		},
	}
}
