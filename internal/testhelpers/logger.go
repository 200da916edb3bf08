// Package testhelpers routes application logs into the test output.
package testhelpers

import (
	"io"
	"log/slog"
	"testing"

	"github.com/myrjola/planfit/internal/logging"
)

// dropTime removes the timestamp since t.Log already prefixes the output with the test's file and line.
func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}

// NewLogger returns a debug level logger writing to logSink, usually a [Writer].
func NewLogger(logSink io.Writer) *slog.Logger {
	return slog.New(logging.NewContextHandler(slog.NewTextHandler(logSink, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: dropTime,
	})))
}

// NewTestLogger is NewLogger writing to t.Log.
func NewTestLogger(t *testing.T) *slog.Logger {
	return NewLogger(NewWriter(t))
}
