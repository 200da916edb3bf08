package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron"
)

const optimizeSchedule = "@hourly"

// startDatabaseOptimizer optimizes once at startup and then on optimizeSchedule until ctx is done or the
// database is closed. See https://www.sqlite.org/pragma.html#pragma_optimize.
func (db *Database) startDatabaseOptimizer(ctx context.Context) error {
	// Recommended performance enhancement for long-lived connections.
	db.optimize(ctx, "PRAGMA optimize = 0x10002;")

	db.optimizer = cron.New()
	if err := db.optimizer.AddFunc(optimizeSchedule, func() {
		db.optimize(ctx, "PRAGMA optimize;")
	}); err != nil {
		return fmt.Errorf("schedule optimize: %w", err)
	}
	db.optimizer.Start()
	context.AfterFunc(ctx, db.stopOptimizer)
	return nil
}

func (db *Database) optimize(ctx context.Context, pragma string) {
	start := time.Now()
	if _, err := db.ReadWrite.ExecContext(ctx, pragma); err != nil {
		err = fmt.Errorf("optimize database: %w", err)
		db.logger.LogAttrs(ctx, slog.LevelError, "failed to optimize database", slog.Any("error", err))
		return
	}
	db.logger.LogAttrs(ctx, slog.LevelInfo, "optimized database",
		slog.String("pragma", pragma), slog.Duration("duration", time.Since(start)))
}

func (db *Database) stopOptimizer() {
	db.closeOnce.Do(func() {
		if db.optimizer != nil {
			db.optimizer.Stop()
		}
	})
}
