package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Mainfreight/integration-jira-cloud/internal/config"
	"github.com/Mainfreight/integration-jira-cloud/internal/constants"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const scanCSV = `Plugin ID,CVE,CVSS,Risk,Host,Protocol,Port,Name,Synopsis,Description,Solution,See Also,Plugin Output
51192,,6.4,High,example.com,tcp,443,SSL Certificate Cannot Be Trusted,The cert chain is broken.,Long description.,Buy a certificate.,,
10863,,2.6,Low,example.com,tcp,443,SSL Certificate Information,Cert info.,Long description.,n/a,,
148402,CVE-2021-29921,9.8,Critical,10.0.0.5,tcp,8080,Python Vulnerability,Bad stdlib.,Long description.,Upgrade.,,
`

// chdir changes the working directory for the duration of the test and
// restores it afterwards, matching the behavior of t.Chdir from Go 1.24.
func chdir(t *testing.T, dir string) {
	t.Helper()

	wd, err := os.Getwd()
	require.NoError(t, err, "Setup: could not get working directory")
	require.NoError(t, os.Chdir(dir), "Setup: could not change working directory")
	abs, err := filepath.Abs(dir)
	require.NoError(t, err, "Setup: could not resolve absolute path")
	t.Setenv("PWD", abs)
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Errorf("could not restore working directory: %v", err)
		}
	})
}

// fakeJira is a Jira API test double where everything the setup phase needs
// already exists, and issue searches never match.
type fakeJira struct {
	mu       sync.Mutex
	requests []string
	created  int

	server *httptest.Server
}

func newFakeJira(t *testing.T) *fakeJira {
	t.Helper()

	f := &fakeJira{}

	var fields []map[string]any
	for i, def := range config.Defaults().Fields {
		fields = append(fields, map[string]any{
			"id":     fmt.Sprintf("customfield_100%02d", i),
			"name":   def.Name,
			"custom": true,
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/3/project/VULN", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "10100", "key": "VULN"})
	})
	mux.HandleFunc("/rest/api/3/field", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(fields)
	})
	mux.HandleFunc("/rest/api/3/issuetype", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": "10001", "name": "Task"},
			{"id": "10002", "name": "Sub-task", "subtask": true},
		})
	})
	mux.HandleFunc("/rest/api/3/screens", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"values": []any{}, "isLast": true})
	})
	mux.HandleFunc("/rest/api/3/search", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"total": 0})
	})
	mux.HandleFunc("/rest/api/3/issue", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.created++
		key := fmt.Sprintf("VULN-%d", f.created)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"id": key, "key": key})
	})

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		f.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.server.Close)

	return f
}

func (f *fakeJira) saw(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range f.requests {
		if strings.Contains(req, substr) {
			return true
		}
	}
	return false
}

// writeConfig writes a configuration file pointing at the fake Jira server
// and returns its path.
func writeConfig(t *testing.T, dir, jiraURL string) string {
	t.Helper()

	content := fmt.Sprintf(`tenable:
  platform: csv
jira:
  address: %s
  api_username: bot@example.com
  api_token: TOKEN
`, jiraURL)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600), "Setup: failed to write config file")
	return path
}

func TestFlagDefaults(t *testing.T) {
	t.Parallel()

	a, err := New()
	require.NoError(t, err, "New should not fail")

	require.Equal(t, constants.DefaultDownloadPath, a.config.DownloadPath, "the download path should default to /tmp")
	require.False(t, a.config.SetupOnly)
	require.False(t, a.config.Troubleshoot)
	require.False(t, a.config.IngestOnly)
	require.Empty(t, a.config.ApplicationName)
}

func TestMissingScanNameIsUsageError(t *testing.T) {
	t.Parallel()

	a, err := New()
	require.NoError(t, err, "New should not fail")
	a.cmd.SetArgs(nil)
	a.cmd.SetOut(new(bytes.Buffer))
	a.cmd.SetErr(new(bytes.Buffer))

	require.Error(t, a.Run(), "running without a scan name should fail")
	require.True(t, a.UsageError(), "a missing scan name should be a usage error")
}

func TestTooManyArgsIsUsageError(t *testing.T) {
	t.Parallel()

	a, err := New()
	require.NoError(t, err, "New should not fail")
	a.cmd.SetArgs([]string{"scan", "config.yaml", "extra"})
	a.cmd.SetOut(new(bytes.Buffer))
	a.cmd.SetErr(new(bytes.Buffer))

	require.Error(t, a.Run(), "running with extra arguments should fail")
	require.True(t, a.UsageError(), "extra arguments should be a usage error")
}

func TestVersion(t *testing.T) {
	t.Parallel()

	a, err := New()
	require.NoError(t, err, "New should not fail")

	out := new(bytes.Buffer)
	a.cmd.SetOut(out)
	a.cmd.SetArgs([]string{"version"})

	require.NoError(t, a.Run(), "version should not fail")
	require.Contains(t, out.String(), constants.CmdName)
	require.Contains(t, out.String(), constants.Version)
}

func TestMissingConfigFile(t *testing.T) {
	a, err := New()
	require.NoError(t, err, "New should not fail")
	a.cmd.SetArgs([]string{"MyScan", filepath.Join(t.TempDir(), "nonexistent.yaml")})

	err = a.Run()
	require.Error(t, err, "a missing configuration file should fail the run")
	require.False(t, a.UsageError(), "a missing configuration file is not a usage error")
}

func TestSetupOnly(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	jira := newFakeJira(t)
	cfgPath := writeConfig(t, dir, jira.server.URL)

	a, err := New()
	require.NoError(t, err, "New should not fail")
	a.cmd.SetArgs([]string{"--setup-only", "--state-dir", filepath.Join(dir, "state"), "MyScan", cfgPath})

	require.NoError(t, a.Run(), "setup-only run should not fail")

	require.True(t, jira.saw("GET /rest/api/3/project/VULN"), "setup should check the project")
	require.True(t, jira.saw("GET /rest/api/3/field"), "setup should resolve the custom fields")
	require.False(t, jira.saw("/rest/api/3/search"), "setup-only should not touch issues")
	require.False(t, jira.saw("POST /rest/api/3/issue"), "setup-only should not create issues")

	data, err := os.ReadFile(constants.GeneratedConfigFile)
	require.NoError(t, err, "setup-only should write the generated configuration")

	var generated config.Config
	require.NoError(t, yaml.Unmarshal(data, &generated), "the generated configuration should be valid YAML")
	require.True(t, generated.Screen.NoCreate, "the generated configuration should disable screen creation")
	require.NotEmpty(t, generated.Fields[0].JiraID, "the generated configuration should carry the resolved field ids")
}

func TestIngestOnly(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	jira := newFakeJira(t)
	cfgPath := writeConfig(t, dir, jira.server.URL)

	dlDir := filepath.Join(dir, "downloads")
	require.NoError(t, os.MkdirAll(dlDir, 0750), "Setup: failed to create download dir")
	require.NoError(t, os.WriteFile(filepath.Join(dlDir, "MyScan.csv"), []byte(scanCSV), 0600), "Setup: failed to write scan file")

	stateDir := filepath.Join(dir, "state")

	a, err := New()
	require.NoError(t, err, "New should not fail")
	a.cmd.SetArgs([]string{"--ingest-only", "--download-path", dlDir, "--state-dir", stateDir, "MyScan", cfgPath})

	require.NoError(t, a.Run(), "ingest-only run should not fail")

	// Two findings match the default severities, each upserted as task plus subtask.
	require.Equal(t, 4, jira.created, "a task and a subtask should be created per matching finding")

	entries, err := os.ReadDir(stateDir)
	require.NoError(t, err, "the state directory should exist after a run")
	require.Len(t, entries, 1, "the run should record one state file for the scan")
	require.Equal(t, "MyScan"+constants.StateFilenameSuffix, entries[0].Name())
}

func TestIngestOnlyMissingScanFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	jira := newFakeJira(t)
	cfgPath := writeConfig(t, dir, jira.server.URL)

	a, err := New()
	require.NoError(t, err, "New should not fail")
	a.cmd.SetArgs([]string{"--ingest-only", "--download-path", dir, "MyScan", cfgPath})

	err = a.Run()
	require.Error(t, err, "a missing local scan file should fail the run")
	require.False(t, a.UsageError(), "a missing scan file is not a usage error")
}

func TestTroubleshoot(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	jira := newFakeJira(t)
	cfgPath := writeConfig(t, dir, jira.server.URL)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "MyScan.csv"), []byte(scanCSV), 0600), "Setup: failed to write scan file")

	a, err := New()
	require.NoError(t, err, "New should not fail")
	a.cmd.SetArgs([]string{"--troubleshoot", "--ingest-only", "--download-path", dir, "--state-dir", filepath.Join(dir, "state"), "MyScan", cfgPath})

	require.NoError(t, a.Run(), "troubleshoot run should not fail")

	data, err := os.ReadFile(constants.TroubleshootFile)
	require.NoError(t, err, "troubleshoot should write the bundle file")

	report := string(data)
	require.Contains(t, report, "### Run", "the bundle should carry the run section")
	require.Contains(t, report, "### Debug Logs", "the bundle should carry the captured log")
	require.Contains(t, report, "Searched issues", "the captured log should carry the Jira client search traces")
	require.Contains(t, report, "Created issue", "the captured log should carry the Jira client creation traces")
	require.Contains(t, report, "Preparing Jira", "the captured log should carry the pipeline traces")
	require.Contains(t, report, "<REDACTED>", "the bundle configuration should be redacted")
	require.NotContains(t, report, "TOKEN", "the bundle should not leak the API token")
	require.NotContains(t, report, "bot@example.com", "the bundle should not leak the API username")

	_, err = os.Stat(constants.DebugLogFile)
	require.ErrorIs(t, err, os.ErrNotExist, "the debug log should be cleaned up after the run")
}

func TestApplyConfigLogLevel(t *testing.T) {
	tests := map[string]struct {
		verbosity int
		level     string

		want int
	}{
		"Debug from config":   {level: "debug", want: 2},
		"Info from config":    {level: "info", want: 1},
		"Unknown level":       {level: "chatty", want: 0},
		"Empty level":         {level: "", want: 0},
		"Flag wins over file": {verbosity: 1, level: "debug", want: 1},
	}

	for name, tc := range tests {
		name, tc := name, tc
		t.Run(name, func(t *testing.T) {
			a := App{}
			a.config.Verbosity = tc.verbosity
			a.applyConfigLogLevel(tc.level)
			require.Equal(t, tc.want, a.config.Verbosity, "the verbosity should match")
		})
	}
}
