// Package constants defines the constants used across the integration,
// along with the default path for its state files.
package constants

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Version is the version of the integration. Overridden at build time.
var Version = "Dev"

const (
	// CmdName is the name of the command line tool.
	CmdName = "tenable-csv-to-jira"

	// DefaultAppFolder is the name of the default root folder for state files.
	DefaultAppFolder = "tenable-csv-to-jira"

	// DefaultConfigFile is the config file read when no CONFIGFILE argument is given.
	DefaultConfigFile = "config.yaml"

	// GeneratedConfigFile is the config file written by --setup-only.
	GeneratedConfigFile = "generated_config.yaml"

	// DefaultDownloadPath is where scan exports are downloaded when
	// --download-path is not given.
	DefaultDownloadPath = "/tmp"

	// ScanFileExt is the extension of downloaded scan exports.
	ScanFileExt = ".csv"

	// DebugLogFile is the temporary log capture file used by --troubleshoot.
	DebugLogFile = "tenable_debug.log"

	// TroubleshootFile is the diagnostic bundle written by --troubleshoot.
	TroubleshootFile = "issue_debug.md"

	// StateFilenameSuffix is the suffix of the per-scan state files.
	StateFilenameSuffix = "-state.toml"

	// MaxSummaryLen is the hard limit Jira places on issue summaries.
	MaxSummaryLen = 255

	// DefaultLogLevel is the default log level of the application.
	DefaultLogLevel = slog.LevelWarn
)

// DoneStatuses are the Jira statuses treated as closed, both when
// deduplicating open issues and when resolving close transitions.
var DoneStatuses = []string{"Closed", "Done", "Resolved"}

// DefaultStatePath is the default directory for per-scan state files.
// It's overridden when imported.
var DefaultStatePath = DefaultAppFolder

func init() {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		panic(fmt.Sprintf("Could not fetch cache directory: %v", err))
	}
	DefaultStatePath = filepath.Join(userCacheDir, DefaultAppFolder)
}
