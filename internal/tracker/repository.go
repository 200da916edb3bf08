package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/myrjola/planfit/internal/calendar"
	"github.com/myrjola/planfit/internal/errors"
	"github.com/myrjola/planfit/internal/ptr"
	"github.com/myrjola/planfit/internal/sqlite"
)

const timestampFormat = "2006-01-02T15:04:05.000Z"

// repository bundles the repositories of each aggregate.
type repository struct {
	plans        *sqlitePlanRepository
	settings     *sqliteSettingsRepository
	sessions     *sqliteSessionRepository
	meals        *sqliteMealRepository
	measurements *sqliteMeasurementRepository
	descriptions *sqliteDescriptionRepository
	featureFlags *sqliteFeatureFlagRepository
}

type repositoryFactory struct {
	db     *sqlite.Database
	logger *slog.Logger
}

func newRepositoryFactory(db *sqlite.Database, logger *slog.Logger) *repositoryFactory {
	return &repositoryFactory{
		db:     db,
		logger: logger,
	}
}

func (f *repositoryFactory) newRepository() *repository {
	base := newBaseRepository(f.db, f.logger)
	return &repository{
		plans:        &sqlitePlanRepository{baseRepository: base},
		settings:     &sqliteSettingsRepository{baseRepository: base},
		sessions:     &sqliteSessionRepository{baseRepository: base},
		meals:        &sqliteMealRepository{baseRepository: base},
		measurements: &sqliteMeasurementRepository{baseRepository: base},
		descriptions: &sqliteDescriptionRepository{baseRepository: base},
		featureFlags: &sqliteFeatureFlagRepository{baseRepository: base},
	}
}

// baseRepository holds what every repository needs.
type baseRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
}

func newBaseRepository(db *sqlite.Database, logger *slog.Logger) baseRepository {
	return baseRepository{
		db:     db,
		logger: logger,
	}
}

// closeRows closes rows and logs failures. It is meant to be deferred.
func (r baseRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		r.logger.LogAttrs(ctx, slog.LevelError, "could not close rows", slog.Any("error", err))
	}
}

// withTx runs fn inside a read-write transaction and commits when fn succeeds.
func (r baseRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := r.db.ReadWrite.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback transaction: %w", rollbackErr))
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func formatDate(t time.Time) string {
	return calendar.FormatDate(t)
}

func parseDate(s string) (time.Time, error) {
	return calendar.ParseDate(s) //nolint:wrapcheck // already annotated with the input.
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{Float64: 0, Valid: false}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return ptr.Ref(v.Float64)
}
