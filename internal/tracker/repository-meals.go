package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/myrjola/planfit/internal/contexthelpers"
	"github.com/myrjola/planfit/internal/plan"
)

// sqliteMealRepository stores which menu option the user picked for each meal.
type sqliteMealRepository struct {
	baseRepository
}

// Selections returns the picked option ID per meal type on date.
func (r *sqliteMealRepository) Selections(ctx context.Context, date time.Time) (map[plan.MealType]string, error) {
	userID := contexthelpers.AuthenticatedUserID(ctx)
	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT meal_type, option_id
		FROM meal_selections
		WHERE user_id = ? AND selection_date = ?`, userID, formatDate(date))
	if err != nil {
		return nil, fmt.Errorf("query meal selections: %w", err)
	}
	defer r.closeRows(ctx, rows)

	selections := make(map[plan.MealType]string)
	for rows.Next() {
		var mealType, optionID string
		if err = rows.Scan(&mealType, &optionID); err != nil {
			return nil, fmt.Errorf("scan meal selection: %w", err)
		}
		selections[plan.MealType(mealType)] = optionID
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meal selections: %w", err)
	}
	return selections, nil
}

// Select records optionID for the meal. An empty optionID clears the selection.
func (r *sqliteMealRepository) Select(
	ctx context.Context,
	date time.Time,
	mealType plan.MealType,
	optionID string,
) error {
	userID := contexthelpers.AuthenticatedUserID(ctx)
	if optionID == "" {
		if _, err := r.db.ReadWrite.ExecContext(ctx, `
			DELETE FROM meal_selections
			WHERE user_id = ? AND selection_date = ? AND meal_type = ?`,
			userID, formatDate(date), string(mealType)); err != nil {
			return fmt.Errorf("clear meal selection: %w", err)
		}
		return nil
	}

	if _, err := r.db.ReadWrite.ExecContext(ctx, `
		INSERT INTO meal_selections (user_id, selection_date, meal_type, option_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, selection_date, meal_type) DO UPDATE SET option_id = excluded.option_id`,
		userID, formatDate(date), string(mealType), optionID); err != nil {
		return fmt.Errorf("save meal selection: %w", err)
	}
	return nil
}
