// Package jira implements the slice of the Jira Cloud REST API v3 the
// integration drives: project, custom field and issue type setup, screen
// management, and issue search, creation, update and transition.
package jira

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
)

var (
	// ErrRequestFailed is returned when the API answers with an unexpected status.
	ErrRequestFailed = errors.New("jira API request failed")

	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")
)

// Client is a Jira Cloud API client.
type Client struct {
	baseURL  string
	username string
	token    string

	hc  *http.Client
	log *slog.Logger
}

type options struct {
	// Private members exported for tests.
	timeout time.Duration
}

// Options represents an optional function to override Client default values.
type Options func(*options)

// WithTimeout overrides the default HTTP timeout.
func WithTimeout(d time.Duration) Options {
	return func(o *options) {
		o.timeout = d
	}
}

// New returns a new Jira Cloud client.
//
// address is the Jira Cloud hostname; an explicit http(s) URL is used as-is
// so tests can point the client at a local server.
func New(l *slog.Logger, address, username, token string, args ...Options) *Client {
	opts := options{
		timeout: time.Minute,
	}
	for _, opt := range args {
		opt(&opts)
	}

	base := address
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	base = strings.TrimRight(base, "/") + "/rest/api/3"

	return &Client{
		baseURL:  base,
		username: username,
		token:    token,
		hc:       &http.Client{Timeout: opts.timeout},
		log:      l,
	}
}

func (c *Client) do(ctx context.Context, method, p string, query url.Values, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not encode request body: %v", err)
		}
		payload = bytes.NewReader(data)
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("could not parse base URL %s: %v", c.baseURL, err)
	}
	u.Path = path.Join(u.Path, p)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), payload)
	if err != nil {
		return fmt.Errorf("could not create request: %v", err)
	}
	req.SetBasicAuth(c.username, c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("could not send HTTP request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, p)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%w: status %d for %s %s: %s", ErrRequestFailed, resp.StatusCode, method, p, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not decode response: %v", err)
	}
	return nil
}
