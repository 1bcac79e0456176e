// Package troubleshoot assembles the diagnostic bundle written by the
// --troubleshoot flag: the redacted configuration, the captured debug log
// and the Jira issue types, formatted so the output can be pasted into an
// issue as-is.
package troubleshoot

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Mainfreight/integration-jira-cloud/internal/config"
	"github.com/Mainfreight/integration-jira-cloud/internal/fileutils"
	"github.com/Mainfreight/integration-jira-cloud/internal/jira"
	"github.com/ubuntu/decorate"
	"gopkg.in/yaml.v3"
)

const template = `### Run

%s

### Configuration File:
` + "```yaml\n%s```" + `

### Debug Logs
` + "```\n%s```" + `

### Available IssueTypes
` + "```yaml\n%s```" + `
`

// Bundle holds everything that goes into the diagnostic file.
type Bundle struct {
	RunID      string
	Config     config.Config
	Log        []byte
	IssueTypes []jira.IssueTypeInfo

	// Hostnames to scrub from the captured log.
	JiraHost    string
	TenableHost string
}

// Render produces the markdown diagnostic report.
// The configuration is redacted and the known hostnames are scrubbed from
// the log before inclusion.
func (b Bundle) Render() (string, error) {
	cfg, err := yaml.Marshal(b.Config.Redact())
	if err != nil {
		return "", fmt.Errorf("could not encode configuration: %v", err)
	}

	logData := string(b.Log)
	if b.JiraHost != "" {
		logData = strings.ReplaceAll(logData, b.JiraHost, "<JIRA_CLOUD_HOST>")
	}
	if b.TenableHost != "" {
		logData = strings.ReplaceAll(logData, b.TenableHost, "<TENABLE_HOST>")
	}
	if logData != "" && !strings.HasSuffix(logData, "\n") {
		logData += "\n"
	}

	var types strings.Builder
	for _, t := range b.IssueTypes {
		name := strings.ToLower(t.Name)
		if name != "task" && name != "subtask" && name != "sub-task" {
			continue
		}
		fmt.Fprintf(&types, "%s: %s\n", t.ID, t.Name)
	}

	return fmt.Sprintf(template, b.RunID, cfg, logData, types.String()), nil
}

// Write renders the bundle and writes it to path.
func (b Bundle) Write(l *slog.Logger, path string) (err error) {
	defer decorate.OnError(&err, "could not write troubleshoot bundle")

	out, err := b.Render()
	if err != nil {
		return err
	}

	if err := fileutils.AtomicWrite(path, []byte(out)); err != nil {
		return err
	}
	l.Info("Wrote troubleshoot bundle", "file", path)

	return nil
}

// Notice is the redaction warning printed after the bundle.
func Notice(path string) string {
	return strings.Join([]string{
		`/-------------------------------NOTICE-----------------------------------\`,
		`| The output above is helpful for us to troubleshoot exactly what is     |`,
		`| happening within the code and offer a diagnosis for how to correct.    |`,
		`| Please note that while some basic redaction has already been performed |`,
		`| that we ask you to review the information you're about to send and     |`,
		`| ensure that nothing deemed sensitive is transmitted.                   |`,
		`| ---------------------------------------------------------------------- |`,
		fmt.Sprintf("| -- Copy of output saved to %-43q |", path),
		`\------------------------------------------------------------------------/`,
	}, "\n")
}
