// Package tenable implements the slice of the Tenable.io REST API the
// integration drives: resolving a scan by name, requesting a CSV export of
// its latest results, waiting for the export to be ready and downloading it.
package tenable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/Mainfreight/integration-jira-cloud/internal/constants"
)

var (
	// ErrScanNotFound is returned when no scan matches the requested name.
	ErrScanNotFound = errors.New("scan not found")

	// ErrExportTimeout is returned when an export does not become ready in time.
	ErrExportTimeout = errors.New("scan export did not become ready in time")

	// ErrRequestFailed is returned when the API answers with an unexpected status.
	ErrRequestFailed = errors.New("tenable API request failed")
)

// Client is a Tenable.io API client.
type Client struct {
	baseURL   string
	accessKey string
	secretKey string

	hc  *http.Client
	log *slog.Logger

	basePollPeriod time.Duration
	maxPollPeriod  time.Duration
	maxPolls       int
}

type options struct {
	// Private members exported for tests.
	timeout        time.Duration
	basePollPeriod time.Duration
	maxPollPeriod  time.Duration
	maxPolls       int
}

// Options represents an optional function to override Client default values.
type Options func(*options)

// New returns a new Tenable.io client for the given endpoint and API keys.
func New(l *slog.Logger, baseURL, accessKey, secretKey string, args ...Options) *Client {
	opts := options{
		timeout:        2 * time.Minute,
		basePollPeriod: 2 * time.Second,
		maxPollPeriod:  30 * time.Second,
		maxPolls:       150,
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		accessKey:      accessKey,
		secretKey:      secretKey,
		hc:             &http.Client{Timeout: opts.timeout},
		log:            l,
		basePollPeriod: opts.basePollPeriod,
		maxPollPeriod:  opts.maxPollPeriod,
		maxPolls:       opts.maxPolls,
	}
}

// Scan is a scan as listed by the API.
type Scan struct {
	ID     int    `json:"id"`
	UUID   string `json:"uuid"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// FindScan resolves a scan by name, case-insensitively.
func (c *Client) FindScan(ctx context.Context, name string) (Scan, error) {
	var list struct {
		Scans []Scan `json:"scans"`
	}
	if err := c.do(ctx, http.MethodGet, "/scans", nil, &list); err != nil {
		return Scan{}, fmt.Errorf("could not list scans: %w", err)
	}

	for _, s := range list.Scans {
		if strings.EqualFold(s.Name, name) {
			c.log.Debug("Resolved scan", "name", s.Name, "id", s.ID, "status", s.Status)
			return s, nil
		}
	}

	return Scan{}, fmt.Errorf("%w: %q", ErrScanNotFound, name)
}

// ExportScan requests a CSV export of the scan, filtered to the given
// severities combined with an or filter. It returns the export file id.
func (c *Client) ExportScan(ctx context.Context, scanID int, severities []string) (int, error) {
	body := map[string]any{
		"format":             "csv",
		"filter.search_type": "or",
	}
	for i, sev := range severities {
		body[fmt.Sprintf("filter.%d.filter", i)] = "severity"
		body[fmt.Sprintf("filter.%d.quality", i)] = "eq"
		body[fmt.Sprintf("filter.%d.value", i)] = sev
	}

	var resp struct {
		File int `json:"file"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/scans/%d/export", scanID), body, &resp); err != nil {
		return 0, fmt.Errorf("could not request scan export: %w", err)
	}
	c.log.Debug("Requested scan export", "scan", scanID, "file", resp.File)

	return resp.File, nil
}

// WaitForExport polls the export status until it is ready.
// The poll period grows exponentially up to the configured maximum.
func (c *Client) WaitForExport(ctx context.Context, scanID, fileID int) error {
	for attempt := 0; attempt < c.maxPolls; attempt++ {
		var status struct {
			Status string `json:"status"`
		}
		err := c.do(ctx, http.MethodGet, fmt.Sprintf("/scans/%d/export/%d/status", scanID, fileID), nil, &status)
		if err != nil {
			return fmt.Errorf("could not get export status: %w", err)
		}
		if status.Status == "ready" {
			return nil
		}

		wait := min(c.basePollPeriod<<min(attempt, 16), c.maxPollPeriod)
		c.log.Debug("Export not ready, waiting", "scan", scanID, "file", fileID, "status", status.Status, "seconds", wait.Seconds())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return ErrExportTimeout
}

// DownloadExport streams the export file to w.
func (c *Client) DownloadExport(ctx context.Context, scanID, fileID int, w io.Writer) error {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/scans/%d/export/%d/download", scanID, fileID), nil)
	if err != nil {
		return err
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("could not download export: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status code %d downloading export", ErrRequestFailed, resp.StatusCode)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("could not write export data: %v", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, p string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not encode request body: %v", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, p, payload)
	if err != nil {
		return err
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("could not send HTTP request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: unexpected status code %d for %s %s", ErrRequestFailed, resp.StatusCode, method, p)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not decode response: %v", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, p string, body io.Reader) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("could not parse base URL %s: %v", c.baseURL, err)
	}
	u.Path = path.Join(u.Path, p)

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %v", err)
	}
	req.Header.Set("X-ApiKeys", fmt.Sprintf("accessKey=%s; secretKey=%s", c.accessKey, c.secretKey))
	req.Header.Set("User-Agent", fmt.Sprintf("Integration/1.0 (Tenable; JiraCloud; Build/%s)", constants.Version))
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}
