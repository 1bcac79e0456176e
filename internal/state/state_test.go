package state_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/Mainfreight/integration-jira-cloud/internal/state"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		scan    string
		stored  *state.File
		corrupt bool

		wantErr     bool
		wantNoState bool
	}{
		"Existing state":      {scan: "weekly", stored: &state.File{LastRun: 1700000000, Findings: []string{"1234/host/tcp/443"}}},
		"Empty state":         {scan: "weekly", stored: &state.File{}},
		"Sanitized scan name": {scan: "My Scan: prod/eu", stored: &state.File{LastRun: 42}},

		"No state file":      {scan: "weekly", wantErr: true, wantNoState: true},
		"Invalid state file": {scan: "weekly", stored: &state.File{}, corrupt: true, wantErr: true},
	}

	for name, tc := range tests {
		name, tc := name, tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			sm := state.New(slog.Default(), dir)

			if tc.stored != nil {
				require.NoError(t, sm.Set(tc.scan, *tc.stored), "Setup: failed to write state")
			}
			if tc.corrupt {
				require.NoError(t, os.WriteFile(findStateFile(t, dir), []byte("not toml ["), 0600), "Setup: failed to corrupt state file")
			}

			got, err := sm.Get(tc.scan)
			if tc.wantErr {
				require.Error(t, err, "expected an error but got none")
				if tc.wantNoState {
					require.ErrorIs(t, err, state.ErrStateFileNotFound, "missing state should report ErrStateFileNotFound")
				}
				return
			}
			require.NoError(t, err, "got an unexpected error")
			require.Equal(t, tc.stored.LastRun, got.LastRun, "Get should return the stored last run")
			require.ElementsMatch(t, tc.stored.Findings, got.Findings, "Get should return the stored findings")
		})
	}
}

func TestSetOverwrites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sm := state.New(slog.Default(), dir)

	require.NoError(t, sm.Set("weekly", state.File{LastRun: 1, Findings: []string{"a"}}), "first Set should not fail")
	require.NoError(t, sm.Set("weekly", state.File{LastRun: 2, Findings: []string{"b", "c"}}), "second Set should not fail")

	got, err := sm.Get("weekly")
	require.NoError(t, err, "Get should not fail")
	require.Equal(t, int64(2), got.LastRun, "Set should overwrite the previous state")
	require.Equal(t, []string{"b", "c"}, got.Findings, "Set should overwrite the previous findings")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err, "failed to list state directory")
	require.Len(t, entries, 1, "overwriting should not leave extra files behind")
}

func TestSetCreatesDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "state")
	sm := state.New(slog.Default(), dir)

	require.NoError(t, sm.Set("weekly", state.File{LastRun: 7}), "Set should create missing directories")

	got, err := sm.Get("weekly")
	require.NoError(t, err, "Get should not fail")
	require.Equal(t, int64(7), got.LastRun)
}

func TestScansDoNotCollide(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sm := state.New(slog.Default(), dir)

	require.NoError(t, sm.Set("scan one", state.File{LastRun: 1}), "Set should not fail")
	require.NoError(t, sm.Set("scan two", state.File{LastRun: 2}), "Set should not fail")

	one, err := sm.Get("scan one")
	require.NoError(t, err, "Get should not fail")
	two, err := sm.Get("scan two")
	require.NoError(t, err, "Get should not fail")

	require.Equal(t, int64(1), one.LastRun, "each scan should keep its own state")
	require.Equal(t, int64(2), two.LastRun, "each scan should keep its own state")
}

// findStateFile returns the single state file under dir.
func findStateFile(t *testing.T, dir string) string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err, "failed to list state directory")
	require.Len(t, entries, 1, "expected exactly one state file")
	return filepath.Join(dir, entries[0].Name())
}
