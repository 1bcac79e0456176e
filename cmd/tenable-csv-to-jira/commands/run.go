package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/Mainfreight/integration-jira-cloud/internal/config"
	"github.com/Mainfreight/integration-jira-cloud/internal/constants"
	"github.com/Mainfreight/integration-jira-cloud/internal/fileutils"
	"github.com/Mainfreight/integration-jira-cloud/internal/ingest"
	"github.com/Mainfreight/integration-jira-cloud/internal/jira"
	"github.com/Mainfreight/integration-jira-cloud/internal/state"
	"github.com/Mainfreight/integration-jira-cloud/internal/tenable"
	"github.com/google/uuid"
)

// run executes the configure, setup, download and ingest pipeline according
// to the flags.
func (a *App) run() error {
	runID := uuid.NewString()
	l := slog.Default().With("run_id", runID)
	l.Info("Tenable to Jira Cloud transformer",
		"version", constants.Version,
		"go", runtime.Version(),
		"os", runtime.GOOS,
		"arch", runtime.GOARCH)

	cfg, err := config.Load(l, a.config.configFile)
	if err != nil {
		return err
	}
	a.applyConfigLogLevel(cfg.Log.Level)

	requireTenable := !a.config.IngestOnly && !a.config.SetupOnly && !a.config.Troubleshoot
	if err := cfg.Validate(requireTenable); err != nil {
		return err
	}

	ctx := context.Background()

	if a.config.Troubleshoot {
		return a.troubleshootRun(ctx, l, cfg, runID)
	}

	jc := jira.New(l, cfg.Jira.Address, cfg.Jira.APIUsername, cfg.Jira.APIToken)

	if err := setupJira(ctx, l, jc, cfg); err != nil {
		return err
	}

	if a.config.SetupOnly {
		// The generated config bakes in the Jira identifiers resolved during
		// setup and disables the screen builder on subsequent runs. It must
		// be regenerated for every new version of this integration.
		l.Info("Set to setup-only. Will not run ingest.")
		if err := cfg.Generate(constants.GeneratedConfigFile); err != nil {
			return err
		}
		l.Info("Generated config file from the setup", "file", constants.GeneratedConfigFile)
		return nil
	}

	return a.downloadAndIngest(ctx, l, jc, cfg)
}

// setupJira performs the Jira-side creation actions and stores the resolved
// identifiers back into the configuration.
func setupJira(ctx context.Context, l *slog.Logger, jc *jira.Client, cfg *config.Config) error {
	l.Info("Preparing Jira")

	if _, err := jc.UpsertProject(ctx, cfg.Project); err != nil {
		return err
	}

	fields, err := jc.UpsertFields(ctx, cfg.Fields)
	if err != nil {
		return err
	}
	cfg.Fields = fields

	types, err := jc.UpsertIssueTypes(ctx, cfg.IssueTypes)
	if err != nil {
		return err
	}
	cfg.IssueTypes = types

	return jc.BuildScreens(ctx, cfg, fields)
}

// downloadAndIngest downloads the latest scan export unless ingest-only is
// set, ingests it and reconciles the run state.
func (a *App) downloadAndIngest(ctx context.Context, l *slog.Logger, jc *jira.Client, cfg *config.Config) error {
	l.Info("Proceeding to ingest")
	scanFile := tenable.ScanFilePath(a.config.DownloadPath, a.config.scanName)

	if a.config.IngestOnly {
		l.Info("Skipping scan download, assuming we have scan already")
		lines, err := fileutils.CountLines(scanFile)
		if err != nil {
			return fmt.Errorf("could not read local scan file: %w", err)
		}
		l.Info("Read local scan file", "file", scanFile, "lines", lines)
	} else {
		tc := tenable.New(l, cfg.Tenable.URL, cfg.Tenable.AccessKey, cfg.Tenable.SecretKey)
		l.Info("Getting latest scan", "scan", a.config.scanName)
		if _, err := tc.DownloadLatestScan(ctx, a.config.scanName, a.config.DownloadPath,
			ingest.NormalizeSeverities(cfg.Tenable.Severities)); err != nil {
			return err
		}
	}

	ing, err := ingest.New(l, jc, cfg, a.config.ApplicationName)
	if err != nil {
		return err
	}
	if _, err := ing.IngestFile(ctx, scanFile); err != nil {
		return err
	}

	return a.reconcileState(ctx, l, ing, cfg)
}

// reconcileState closes issues for findings gone since the previous run when
// close_fixed is enabled, and records this run's findings.
func (a *App) reconcileState(ctx context.Context, l *slog.Logger, ing *ingest.Ingestor, cfg *config.Config) error {
	sm := state.New(l, a.config.StateDir)

	prev, err := sm.Get(a.config.scanName)
	if errors.Is(err, state.ErrStateFileNotFound) {
		l.Debug("No previous state for scan", "scan", a.config.scanName)
	} else if err != nil {
		return err
	}

	if cfg.Tenable.CloseFixed && len(prev.Findings) > 0 {
		if err := ing.CloseFixed(ctx, prev.Findings); err != nil {
			return err
		}
	}

	return sm.Set(a.config.scanName, state.File{
		LastRun:  time.Now().Unix(),
		Findings: ing.Seen(),
	})
}
