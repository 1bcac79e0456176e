// Package state is the implementation of the run state manager.
// It persists, per scan, when the last ingest ran and which findings it saw,
// so a later run can tell which findings disappeared and close their issues.
package state

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Mainfreight/integration-jira-cloud/internal/constants"
	"github.com/ubuntu/decorate"
)

// ErrStateFileNotFound is returned when a scan has no state file yet.
var ErrStateFileNotFound = errors.New("state file not found")

// Manager is a struct that manages per-scan state files.
type Manager struct {
	path string

	log *slog.Logger
}

// File is the persisted state of a scan.
type File struct {
	LastRun  int64    `toml:"last_run"`
	Findings []string `toml:"findings"`
}

// New returns a new state Manager.
// path is the folder the state files are stored into.
func New(l *slog.Logger, path string) *Manager {
	return &Manager{log: l, path: path}
}

// Get returns the state recorded for the given scan.
// If the scan has no state file, ErrStateFileNotFound is returned.
func (m Manager) Get(scan string) (f File, err error) {
	defer func() {
		var pe *os.PathError
		if errors.As(err, &pe) && errors.Is(pe.Err, os.ErrNotExist) {
			err = errors.Join(ErrStateFileNotFound, err)
		}
	}()

	if _, err := toml.DecodeFile(m.getFile(scan), &f); err != nil {
		return File{}, err
	}
	m.log.Debug("Read state file", "scan", scan, "last_run", f.LastRun, "findings", len(f.Findings))

	return f, nil
}

// Set updates the state recorded for the given scan.
// The state file is created along with its directory if needed, and written
// atomically. Not atomic on Windows.
func (m Manager) Set(scan string, f File) (err error) {
	defer decorate.OnError(&err, "could not write state for scan %s", scan)

	path := m.getFile(scan)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("could not create directory: %v", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "state-*.tmp")
	if err != nil {
		return fmt.Errorf("could not create temporary file: %v", err)
	}
	defer func() {
		_ = tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
			m.log.Warn("Failed to remove temporary file when writing state file", "file", tmp.Name(), "error", err)
		}
	}()

	if err := toml.NewEncoder(tmp).Encode(f); err != nil {
		return fmt.Errorf("could not encode state file: %v", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close temporary file: %v", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("could not rename temporary file: %v", err)
	}
	m.log.Debug("Wrote state file", "scan", scan, "findings", len(f.Findings))

	return nil
}

// getFile returns the expected path to the state file for the given scan.
// Scan names may carry characters that don't belong in file names, those are
// replaced with underscores.
func (m Manager) getFile(scan string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, scan)
	return filepath.Join(m.path, sanitized+constants.StateFilenameSuffix)
}
