package flightrecorder_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/myrjola/planfit/internal/flightrecorder"
)

func newRecorder(t *testing.T, dir string, cooldown time.Duration) *flightrecorder.Recorder {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r, err := flightrecorder.New(logger, flightrecorder.Config{Dir: dir, Cooldown: cooldown})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err = r.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(r.Stop)
	return r
}

func TestRecorder_Dump(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "traces")
	r := newRecorder(t, dir, 0)

	path, err := r.Dump(t.Context(), "timeout")
	if err != nil {
		t.Fatalf("Dump() error = %v", err)
	}
	name := filepath.Base(path)
	if !strings.HasPrefix(name, "timeout-") || !strings.HasSuffix(name, ".trace") {
		t.Errorf("unexpected trace file name %s", name)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat trace: %v", err)
	}
	if info.Size() == 0 {
		t.Error("expected trace file to have content")
	}
}

func TestRecorder_Cooldown(t *testing.T) {
	tests := []struct {
		name      string
		cooldown  time.Duration
		wantFiles int
	}{
		{name: "second dump skipped", cooldown: time.Hour, wantFiles: 1},
		{name: "no effective cooldown", cooldown: time.Nanosecond, wantFiles: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			r := newRecorder(t, dir, tt.cooldown)

			if _, err := r.Dump(t.Context(), "first"); err != nil {
				t.Fatalf("Dump() error = %v", err)
			}
			time.Sleep(time.Millisecond)
			if _, err := r.Dump(t.Context(), "second"); err != nil {
				t.Fatalf("Dump() error = %v", err)
			}

			entries, err := os.ReadDir(dir)
			if err != nil {
				t.Fatalf("read trace directory: %v", err)
			}
			if len(entries) != tt.wantFiles {
				t.Errorf("got %d trace files, want %d", len(entries), tt.wantFiles)
			}
		})
	}
}

func TestNew_requiresDir(t *testing.T) {
	if _, err := flightrecorder.New(slog.New(slog.NewTextHandler(io.Discard, nil)), flightrecorder.Config{}); err == nil {
		t.Error("expected error without directory")
	}
}
