package tracker

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/myrjola/planfit/internal/errors"
)

type sqliteFeatureFlagRepository struct {
	baseRepository
}

func (r *sqliteFeatureFlagRepository) Get(ctx context.Context, name string) (FeatureFlag, error) {
	flags, err := r.query(ctx, r.db.ReadOnly, "SELECT name, enabled FROM feature_flags WHERE name = ?", name)
	if err != nil {
		return FeatureFlag{}, err
	}
	if len(flags) == 0 {
		return FeatureFlag{}, ErrNotFound
	}
	return flags[0], nil
}

func (r *sqliteFeatureFlagRepository) List(ctx context.Context) ([]FeatureFlag, error) {
	return r.query(ctx, r.db.ReadOnly, "SELECT name, enabled FROM feature_flags ORDER BY name")
}

// Set creates the flag or overwrites its state.
func (r *sqliteFeatureFlagRepository) Set(ctx context.Context, flag FeatureFlag) error {
	if _, err := r.db.ReadWrite.ExecContext(ctx, `INSERT INTO feature_flags (name, enabled) VALUES (?, ?)
ON CONFLICT (name) DO UPDATE SET enabled = excluded.enabled`, flag.Name, flag.Enabled); err != nil {
		return fmt.Errorf("upsert feature flag %s: %w", flag.Name, err)
	}
	return nil
}

// Toggle flips an existing flag in a single statement and returns the new state.
func (r *sqliteFeatureFlagRepository) Toggle(ctx context.Context, name string) (FeatureFlag, error) {
	flags, err := r.query(ctx, r.db.ReadWrite,
		"UPDATE feature_flags SET enabled = NOT enabled WHERE name = ? RETURNING name, enabled", name)
	if err != nil {
		return FeatureFlag{}, err
	}
	if len(flags) == 0 {
		return FeatureFlag{}, ErrNotFound
	}
	return flags[0], nil
}

func (r *sqliteFeatureFlagRepository) query(
	ctx context.Context,
	db *sql.DB,
	query string,
	args ...any,
) ([]FeatureFlag, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query feature flags")
	}
	defer r.closeRows(ctx, rows)

	var flags []FeatureFlag
	for rows.Next() {
		var flag FeatureFlag
		if err = rows.Scan(&flag.Name, &flag.Enabled); err != nil {
			return nil, errors.Wrap(err, "scan feature flag")
		}
		flags = append(flags, flag)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate feature flags")
	}
	return flags, nil
}
