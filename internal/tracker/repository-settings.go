package tracker

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/myrjola/planfit/internal/calendar"
	"github.com/myrjola/planfit/internal/contexthelpers"
	"github.com/myrjola/planfit/internal/errors"
	"github.com/myrjola/planfit/internal/plan"
)

// sqliteSettingsRepository stores the per-user calendar settings.
type sqliteSettingsRepository struct {
	baseRepository
}

// Get returns the settings of the authenticated user or ErrNotFound when they have not been created yet.
func (r *sqliteSettingsRepository) Get(ctx context.Context) (plan.Settings, error) {
	userID := contexthelpers.AuthenticatedUserID(ctx)

	var nutritionStart, trainingWeekdays string
	err := r.db.ReadOnly.QueryRowContext(ctx, `
		SELECT nutrition_start_date, training_weekdays
		FROM user_settings
		WHERE user_id = ?`, userID).Scan(&nutritionStart, &trainingWeekdays)
	if errors.Is(err, sql.ErrNoRows) {
		return plan.Settings{}, ErrNotFound
	}
	if err != nil {
		return plan.Settings{}, fmt.Errorf("query settings: %w", err)
	}

	var s plan.Settings
	if s.NutritionStart, err = parseDate(nutritionStart); err != nil {
		return plan.Settings{}, err
	}
	if s.TrainingDays, err = calendar.ParseWeekdays(trainingWeekdays); err != nil {
		return plan.Settings{}, fmt.Errorf("parse training weekdays: %w", err)
	}
	return s, nil
}

// Set saves the settings of the authenticated user.
func (r *sqliteSettingsRepository) Set(ctx context.Context, s plan.Settings) error {
	userID := contexthelpers.AuthenticatedUserID(ctx)
	if _, err := r.db.ReadWrite.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, nutrition_start_date, training_weekdays)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET nutrition_start_date = excluded.nutrition_start_date,
		                                    training_weekdays    = excluded.training_weekdays`,
		userID, formatDate(s.NutritionStart), calendar.FormatWeekdays(s.TrainingDays)); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// CreateIfMissing stores s unless settings exist already and returns the stored settings.
func (r *sqliteSettingsRepository) CreateIfMissing(ctx context.Context, s plan.Settings) (plan.Settings, error) {
	userID := contexthelpers.AuthenticatedUserID(ctx)
	if _, err := r.db.ReadWrite.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, nutrition_start_date, training_weekdays)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO NOTHING`,
		userID, formatDate(s.NutritionStart), calendar.FormatWeekdays(s.TrainingDays)); err != nil {
		return plan.Settings{}, fmt.Errorf("create default settings: %w", err)
	}
	return r.Get(ctx)
}
