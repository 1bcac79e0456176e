// Package cli provides utility functions for command line interface applications.
package cli

import (
	"bytes"
	"context"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/Mainfreight/integration-jira-cloud/internal/constants"
)

// SetVerbosity sets the logging level for the default logger based on the verbose flag count.
//
// This function has the same behaviors as slog.SetLogLoggerLevel.
func SetVerbosity(level int) {
	SetLogLoggerLevel(getLevel(level))
}

// SetLogLoggerLevel sets the minimum level of the default logger. It matches
// the output and behavior of slog.SetLogLoggerLevel, which requires Go 1.22.
func SetLogLoggerLevel(level slog.Level) {
	slog.SetDefault(slog.New(newLeveledHandler(level)))
}

// leveledHandler reproduces the output of slog's built-in default handler
// ("date time LEVEL msg key=value" on stderr) with a configurable minimum
// level. It cannot wrap the built-in handler directly: that handler writes
// through the log package, which slog.SetDefault rewires back into the
// default slog handler, so delegating to it would recurse.
type leveledHandler struct {
	level slog.Level
	mu    *sync.Mutex
	buf   *bytes.Buffer
	attrs slog.Handler
	out   *log.Logger
}

func newLeveledHandler(level slog.Level) *leveledHandler {
	buf := &bytes.Buffer{}
	return &leveledHandler{
		level: level,
		mu:    &sync.Mutex{},
		buf:   buf,
		attrs: slog.NewTextHandler(buf, &slog.HandlerOptions{ReplaceAttr: dropBuiltins}),
		out:   log.New(os.Stderr, "", log.LstdFlags),
	}
}

// dropBuiltins removes the time, level and message attributes so that the
// text handler only renders the user-supplied attributes.
func dropBuiltins(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 {
		switch a.Key {
		case slog.TimeKey, slog.LevelKey, slog.MessageKey:
			return slog.Attr{}
		}
	}
	return a
}

func (h *leveledHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level
}

func (h *leveledHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf.Reset()
	if err := h.attrs.Handle(ctx, r); err != nil {
		return err
	}

	line := r.Level.String() + " " + r.Message
	if extra := strings.TrimSuffix(h.buf.String(), "\n"); extra != "" {
		line += " " + extra
	}
	return h.out.Output(2, line)
}

func (h *leveledHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = h.attrs.WithAttrs(attrs)
	return &c
}

func (h *leveledHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.attrs = h.attrs.WithGroup(name)
	return &c
}

// SetSlog sets the logging level and format for the default logger.
func SetSlog(level int, jsonLogs bool) {
	slogLevel := getLevel(level)
	if jsonLogs {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})))
		return
	}

	SetVerbosity(level)
}

func getLevel(level int) slog.Level {
	switch level {
	case 0:
		return constants.DefaultLogLevel
	case 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
