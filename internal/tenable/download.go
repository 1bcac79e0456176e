package tenable

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Mainfreight/integration-jira-cloud/internal/constants"
)

// ScanFilePath returns where the export of the named scan lives under dir.
func ScanFilePath(dir, scanName string) string {
	return filepath.Join(dir, scanName+constants.ScanFileExt)
}

// DownloadLatestScan exports the named scan as CSV, filtered to the given
// severities, and downloads it to <dir>/<name>.csv.
//
// The scan must exist and have completed at least once. The file is written
// through a temporary file so a partial download never clobbers a previous
// export.
func (c *Client) DownloadLatestScan(ctx context.Context, name, dir string, severities []string) (string, error) {
	scan, err := c.FindScan(ctx, name)
	if err != nil {
		return "", err
	}

	fileID, err := c.ExportScan(ctx, scan.ID, severities)
	if err != nil {
		return "", err
	}

	if err := c.WaitForExport(ctx, scan.ID, fileID); err != nil {
		return "", err
	}

	dest := ScanFilePath(dir, name)
	if err := c.downloadToFile(ctx, scan.ID, fileID, dest); err != nil {
		return "", err
	}
	c.log.Info("Downloaded scan export", "scan", name, "file", dest)

	return dest, nil
}

func (c *Client) downloadToFile(ctx context.Context, scanID, fileID int, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return fmt.Errorf("could not create download directory: %v", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "scan-*.tmp")
	if err != nil {
		return fmt.Errorf("could not create temporary file: %v", err)
	}
	defer func() {
		_ = tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
			c.log.Warn("Failed to remove temporary file", "file", tmp.Name(), "error", err)
		}
	}()

	if err := c.DownloadExport(ctx, scanID, fileID, tmp); err != nil {
		return err
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close temporary file: %v", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("could not rename temporary file: %v", err)
	}
	return nil
}

// WithTimeout overrides the default HTTP timeout.
func WithTimeout(d time.Duration) Options {
	return func(o *options) {
		o.timeout = d
	}
}

// WithPollPeriods overrides the export polling periods and attempt budget.
func WithPollPeriods(base, maximum time.Duration, maxPolls int) Options {
	return func(o *options) {
		o.basePollPeriod = base
		o.maxPollPeriod = maximum
		o.maxPolls = maxPolls
	}
}
