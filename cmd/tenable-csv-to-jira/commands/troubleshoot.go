package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/Mainfreight/integration-jira-cloud/internal/config"
	"github.com/Mainfreight/integration-jira-cloud/internal/constants"
	"github.com/Mainfreight/integration-jira-cloud/internal/jira"
	"github.com/Mainfreight/integration-jira-cloud/internal/troubleshoot"
)

// troubleshootRun runs the normal pipeline with debug logging captured to a
// file, then collects the log, the redacted configuration and the Jira issue
// types into a bundle formatted for filing an issue. Pipeline errors are
// recorded in the bundle instead of aborting the run.
func (a *App) troubleshootRun(ctx context.Context, l *slog.Logger, cfg *config.Config, runID string) error {
	logFile, err := os.Create(constants.DebugLogFile)
	if err != nil {
		return fmt.Errorf("could not create debug log file: %v", err)
	}
	defer func() {
		_ = logFile.Close()
		if err := os.Remove(constants.DebugLogFile); err != nil {
			l.Warn("Failed to remove debug log file", "file", constants.DebugLogFile, "error", err)
		}
	}()

	// Capture everything at debug level for the duration of the pipeline.
	// The Jira client is built on the capture logger too, so its request
	// traces end up in the bundle.
	prev := slog.Default()
	capture := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(capture)
	jc := jira.New(capture, cfg.Jira.Address, cfg.Jira.APIUsername, cfg.Jira.APIToken)

	pipelineErr := func() error {
		if err := setupJira(ctx, capture, jc, cfg); err != nil {
			return err
		}
		return a.downloadAndIngest(ctx, capture, jc, cfg)
	}()
	slog.SetDefault(prev)

	if pipelineErr != nil {
		l.Error("Caught the following exception", "error", pipelineErr)
		fmt.Fprintf(logFile, "ERROR: %v\n", pipelineErr)
	}

	if err := logFile.Sync(); err != nil {
		l.Warn("Failed to flush debug log file", "error", err)
	}
	logData, err := os.ReadFile(constants.DebugLogFile)
	if err != nil {
		return fmt.Errorf("could not read back debug log: %v", err)
	}

	// The issue types help diagnose misconfigured task mappings.
	issueTypes, err := jc.ListIssueTypes(ctx)
	if err != nil {
		l.Warn("Failed to list Jira issue types for the bundle", "error", err)
	}

	bundle := troubleshoot.Bundle{
		RunID:       runID,
		Config:      *cfg,
		Log:         logData,
		IssueTypes:  issueTypes,
		JiraHost:    cfg.Jira.Address,
		TenableHost: hostOf(cfg.Tenable.URL),
	}

	out, err := bundle.Render()
	if err != nil {
		return err
	}
	if err := bundle.Write(l, constants.TroubleshootFile); err != nil {
		return err
	}

	fmt.Println(out)
	fmt.Println(troubleshoot.Notice(constants.TroubleshootFile))

	return nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
