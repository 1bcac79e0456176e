package troubleshoot_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/Mainfreight/integration-jira-cloud/internal/config"
	"github.com/Mainfreight/integration-jira-cloud/internal/jira"
	"github.com/Mainfreight/integration-jira-cloud/internal/troubleshoot"
	"github.com/stretchr/testify/require"
)

func testBundle() troubleshoot.Bundle {
	cfg := config.Defaults()
	cfg.Jira.Address = "example.atlassian.net"
	cfg.Jira.APIUsername = "bot@example.com"
	cfg.Jira.APIToken = "SECRET_TOKEN"
	cfg.Tenable.AccessKey = "AK_SECRET"
	cfg.Tenable.SecretKey = "SK_SECRET"

	return troubleshoot.Bundle{
		RunID:  "0c9225e3-4f08-4249-b528-43a25a281e64",
		Config: *cfg,
		Log: []byte("level=DEBUG msg=\"Searched issues\" host=example.atlassian.net\n" +
			"level=DEBUG msg=\"Resolved scan\" host=cloud.tenable.com\n"),
		IssueTypes: []jira.IssueTypeInfo{
			{ID: "10001", Name: "Task"},
			{ID: "10002", Name: "Sub-task", Subtask: true},
			{ID: "10003", Name: "Epic"},
		},
		JiraHost:    "example.atlassian.net",
		TenableHost: "cloud.tenable.com",
	}
}

func TestRender(t *testing.T) {
	t.Parallel()

	out, err := testBundle().Render()
	require.NoError(t, err, "Render should not fail")

	require.Contains(t, out, "### Run\n\n0c9225e3-4f08-4249-b528-43a25a281e64", "the report should carry the run id")
	require.Contains(t, out, "### Configuration File:")
	require.Contains(t, out, "### Debug Logs")
	require.Contains(t, out, "### Available IssueTypes")

	for _, secret := range []string{"SECRET_TOKEN", "bot@example.com", "AK_SECRET", "SK_SECRET"} {
		require.NotContains(t, out, secret, "the report should not leak %q", secret)
	}

	require.NotContains(t, out, "host=example.atlassian.net", "the Jira host should be scrubbed from the log")
	require.Contains(t, out, "host=<JIRA_CLOUD_HOST>")
	require.NotContains(t, out, "host=cloud.tenable.com", "the Tenable host should be scrubbed from the log")
	require.Contains(t, out, "host=<TENABLE_HOST>")

	require.Contains(t, out, "10001: Task\n10002: Sub-task\n", "task-like issue types should be listed")
	require.NotContains(t, out, "Epic", "unrelated issue types should not be listed")
}

func TestRenderEmptyBundle(t *testing.T) {
	t.Parallel()

	out, err := troubleshoot.Bundle{RunID: "run"}.Render()
	require.NoError(t, err, "Render should not fail on an empty bundle")
	require.Contains(t, out, "### Debug Logs\n```\n```", "an empty log should render as an empty block")
}

func TestWrite(t *testing.T) {
	t.Parallel()

	bundle := testBundle()
	path := filepath.Join(t.TempDir(), "issue_debug.md")
	require.NoError(t, bundle.Write(slog.Default(), path), "Write should not fail")

	data, err := os.ReadFile(path)
	require.NoError(t, err, "failed to read bundle file")

	rendered, err := bundle.Render()
	require.NoError(t, err, "Render should not fail")
	require.Equal(t, rendered, string(data), "the written bundle should match the rendered report")
}

func TestNotice(t *testing.T) {
	t.Parallel()

	notice := troubleshoot.Notice("issue_debug.md")
	require.Contains(t, notice, "NOTICE")
	require.Contains(t, notice, `"issue_debug.md"`, "the notice should name the saved file")
}
