// Package flightrecorder keeps a rolling execution trace in memory and dumps it to disk when a request misses
// its deadline.
package flightrecorder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/trace"
	"sync"
	"time"

	"github.com/myrjola/planfit/internal/errors"
)

const (
	defaultMinAge   = 5 * time.Minute
	defaultMaxBytes = 64 << 20
	defaultCooldown = 30 * time.Minute
)

// Config configures a Recorder. Zero durations and sizes fall back to the defaults.
type Config struct {
	Dir      string
	MinAge   time.Duration
	MaxBytes uint64
	// Cooldown is the minimum time between two dumps.
	Cooldown time.Duration
}

// Recorder dumps the recent execution trace of the process into Dir.
type Recorder struct {
	logger   *slog.Logger
	fr       *trace.FlightRecorder
	dir      string
	cooldown time.Duration

	mu       sync.Mutex
	lastDump time.Time
}

// New creates the trace directory if needed. The recorder has to be started with Start.
func New(logger *slog.Logger, cfg Config) (*Recorder, error) {
	if cfg.Dir == "" {
		return nil, errors.New("trace directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil { //nolint:mnd // owner only
		return nil, errors.Wrap(err, "create trace directory", slog.String("dir", cfg.Dir))
	}

	frCfg := trace.FlightRecorderConfig{MinAge: cfg.MinAge, MaxBytes: cfg.MaxBytes}
	if frCfg.MinAge == 0 {
		frCfg.MinAge = defaultMinAge
	}
	if frCfg.MaxBytes == 0 {
		frCfg.MaxBytes = defaultMaxBytes
	}
	cooldown := cfg.Cooldown
	if cooldown == 0 {
		cooldown = defaultCooldown
	}

	return &Recorder{
		logger:   logger,
		fr:       trace.NewFlightRecorder(frCfg),
		dir:      cfg.Dir,
		cooldown: cooldown,
		mu:       sync.Mutex{},
		lastDump: time.Time{},
	}, nil
}

func (r *Recorder) Start(ctx context.Context) error {
	if err := r.fr.Start(); err != nil {
		return errors.Wrap(err, "start flight recorder")
	}
	r.logger.LogAttrs(ctx, slog.LevelInfo, "flight recorder started",
		slog.String("dir", r.dir), slog.Duration("cooldown", r.cooldown))
	return nil
}

func (r *Recorder) Stop() {
	r.fr.Stop()
}

// Dump writes the buffered trace to <reason>-<timestamp>.trace and returns the file path. It returns an empty
// path when the previous dump happened less than the cooldown ago.
func (r *Recorder) Dump(ctx context.Context, reason string) (string, error) {
	now := time.Now()
	r.mu.Lock()
	if !r.lastDump.IsZero() && now.Sub(r.lastDump) < r.cooldown {
		r.mu.Unlock()
		return "", nil
	}
	r.lastDump = now
	r.mu.Unlock()

	path := filepath.Join(r.dir, fmt.Sprintf("%s-%s.trace", reason, now.UTC().Format("20060102-150405")))
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "create trace file", slog.String("path", path))
	}
	n, err := r.fr.WriteTo(f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", errors.Wrap(err, "write trace", slog.String("path", path))
	}

	r.logger.LogAttrs(ctx, slog.LevelWarn, "captured flight recorder trace",
		slog.String("path", path), slog.Int64("bytes", n))
	return path, nil
}
