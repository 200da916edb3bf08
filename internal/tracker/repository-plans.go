package tracker

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/myrjola/planfit/internal/calendar"
	"github.com/myrjola/planfit/internal/contexthelpers"
	"github.com/myrjola/planfit/internal/errors"
	"github.com/myrjola/planfit/internal/plan"
)

// sqlitePlanRepository stores imported plans and their assignments to users. Plans are immutable once created.
type sqlitePlanRepository struct {
	baseRepository
}

// Create persists the plan with all its days in a single transaction and returns the new plan ID.
func (r *sqlitePlanRepository) Create(ctx context.Context, name, source string, p plan.Plan) (int, error) {
	var planID int
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `INSERT INTO plans (name, source) VALUES (?, ?)`, name, source)
		if err != nil {
			return fmt.Errorf("insert plan: %w", err)
		}
		var id int64
		if id, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		planID = int(id)

		if err = r.insertTrainingDays(ctx, tx, planID, p.TrainingDays); err != nil {
			return err
		}
		return r.insertNutritionDays(ctx, tx, planID, p.NutritionDays)
	})
	if err != nil {
		return 0, fmt.Errorf("create plan %q: %w", name, err)
	}
	return planID, nil
}

func (r *sqlitePlanRepository) insertTrainingDays(
	ctx context.Context,
	tx *sql.Tx,
	planID int,
	days []plan.TrainingDay,
) error {
	for position, td := range days {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO plan_training_days (plan_id, position, day_index, label)
			VALUES (?, ?, ?, ?)`, planID, position, td.DayIndex, td.Label); err != nil {
			return fmt.Errorf("insert training day %d: %w", position, err)
		}
		for exercisePosition, ex := range td.Exercises {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO plan_exercises (plan_id, day_position, position, exercise_id, name, series, reps,
				                            rest_seconds, notes)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				planID, position, exercisePosition, ex.ID, ex.Name, ex.Series, ex.Reps, ex.RestSeconds,
				ex.Notes); err != nil {
				return fmt.Errorf("insert exercise %s: %w", ex.ID, err)
			}
		}
	}
	return nil
}

func (r *sqlitePlanRepository) insertNutritionDays(
	ctx context.Context,
	tx *sql.Tx,
	planID int,
	days []plan.NutritionDay,
) error {
	for _, nd := range days {
		day := nd.DayOfWeek.String()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO plan_nutrition_days (plan_id, week_index, day_of_week)
			VALUES (?, ?, ?)`, planID, nd.WeekIndex, day); err != nil {
			return fmt.Errorf("insert nutrition day week %d %s: %w", nd.WeekIndex, day, err)
		}
		for _, meal := range plan.MealTypes() {
			for position, option := range nd.Meals[meal] {
				lines, err := json.Marshal(option.Lines)
				if err != nil {
					return fmt.Errorf("encode menu option lines: %w", err)
				}
				if _, err = tx.ExecContext(ctx, `
					INSERT INTO plan_menu_options (plan_id, week_index, day_of_week, meal_type, position, option_id,
					                               title, lines)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
					planID, nd.WeekIndex, day, string(meal), position, option.OptionID, option.Title,
					string(lines)); err != nil {
					return fmt.Errorf("insert menu option %s: %w", option.OptionID, err)
				}
			}
		}
	}
	return nil
}

// List returns all plans, newest first.
func (r *sqlitePlanRepository) List(ctx context.Context) ([]PlanInfo, error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT p.id,
		       p.name,
		       p.created,
		       (SELECT COUNT(*) FROM plan_training_days td WHERE td.plan_id = p.id),
		       (SELECT COALESCE(MAX(week_index), 0) FROM plan_nutrition_days nd WHERE nd.plan_id = p.id)
		FROM plans p
		ORDER BY p.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	defer r.closeRows(ctx, rows)

	var plans []PlanInfo
	for rows.Next() {
		var (
			info    PlanInfo
			created string
		)
		if err = rows.Scan(&info.ID, &info.Name, &created, &info.TrainingDayCount, &info.CycleWeeks); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		if info.Created, err = parseTimestamp(created); err != nil {
			return nil, err
		}
		plans = append(plans, info)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plans: %w", err)
	}
	return plans, nil
}

// Get loads a plan with all its days.
func (r *sqlitePlanRepository) Get(ctx context.Context, planID int) (PlanInfo, plan.Plan, error) {
	var (
		info    PlanInfo
		created string
	)
	err := r.db.ReadOnly.QueryRowContext(ctx, `SELECT id, name, created FROM plans WHERE id = ?`, planID).
		Scan(&info.ID, &info.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return PlanInfo{}, plan.Plan{}, fmt.Errorf("plan %d: %w", planID, ErrNotFound)
	}
	if err != nil {
		return PlanInfo{}, plan.Plan{}, fmt.Errorf("query plan %d: %w", planID, err)
	}
	if info.Created, err = parseTimestamp(created); err != nil {
		return PlanInfo{}, plan.Plan{}, err
	}

	var p plan.Plan
	if p.TrainingDays, err = r.loadTrainingDays(ctx, planID); err != nil {
		return PlanInfo{}, plan.Plan{}, err
	}
	if p.NutritionDays, err = r.loadNutritionDays(ctx, planID); err != nil {
		return PlanInfo{}, plan.Plan{}, err
	}
	info.TrainingDayCount = len(p.TrainingDays)
	info.CycleWeeks = p.CycleWeeks()
	return info, p, nil
}

func (r *sqlitePlanRepository) loadTrainingDays(ctx context.Context, planID int) ([]plan.TrainingDay, error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT day_index, label
		FROM plan_training_days
		WHERE plan_id = ?
		ORDER BY position`, planID)
	if err != nil {
		return nil, fmt.Errorf("query training days: %w", err)
	}
	defer r.closeRows(ctx, rows)

	var days []plan.TrainingDay
	for rows.Next() {
		var td plan.TrainingDay
		if err = rows.Scan(&td.DayIndex, &td.Label); err != nil {
			return nil, fmt.Errorf("scan training day: %w", err)
		}
		days = append(days, td)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate training days: %w", err)
	}

	exerciseRows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT day_position, exercise_id, name, series, reps, rest_seconds, notes
		FROM plan_exercises
		WHERE plan_id = ?
		ORDER BY day_position, position`, planID)
	if err != nil {
		return nil, fmt.Errorf("query exercises: %w", err)
	}
	defer r.closeRows(ctx, exerciseRows)

	for exerciseRows.Next() {
		var (
			dayPosition int
			ex          plan.Exercise
			series      sql.NullInt64
			rest        sql.NullInt64
		)
		if err = exerciseRows.Scan(&dayPosition, &ex.ID, &ex.Name, &series, &ex.Reps, &rest, &ex.Notes); err != nil {
			return nil, fmt.Errorf("scan exercise: %w", err)
		}
		if dayPosition < 0 || dayPosition >= len(days) {
			return nil, fmt.Errorf("exercise %s references missing day %d", ex.ID, dayPosition)
		}
		ex.Series = intPtr(series)
		ex.RestSeconds = intPtr(rest)
		days[dayPosition].Exercises = append(days[dayPosition].Exercises, ex)
	}
	if err = exerciseRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exercises: %w", err)
	}
	return days, nil
}

type nutritionDayKey struct {
	week int
	day  calendar.Weekday
}

func (r *sqlitePlanRepository) loadNutritionDays(ctx context.Context, planID int) ([]plan.NutritionDay, error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT week_index, day_of_week
		FROM plan_nutrition_days
		WHERE plan_id = ?`, planID)
	if err != nil {
		return nil, fmt.Errorf("query nutrition days: %w", err)
	}
	defer r.closeRows(ctx, rows)

	var days []plan.NutritionDay
	for rows.Next() {
		var (
			nd  plan.NutritionDay
			day string
		)
		if err = rows.Scan(&nd.WeekIndex, &day); err != nil {
			return nil, fmt.Errorf("scan nutrition day: %w", err)
		}
		if nd.DayOfWeek, err = calendar.ParseWeekday(day); err != nil {
			return nil, fmt.Errorf("nutrition day week %d: %w", nd.WeekIndex, err)
		}
		nd.Meals = make(map[plan.MealType][]plan.MenuOption)
		days = append(days, nd)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nutrition days: %w", err)
	}
	slices.SortFunc(days, func(a, b plan.NutritionDay) int {
		return cmp.Or(cmp.Compare(a.WeekIndex, b.WeekIndex), cmp.Compare(a.DayOfWeek, b.DayOfWeek))
	})
	index := make(map[nutritionDayKey]int, len(days))
	for i, nd := range days {
		index[nutritionDayKey{week: nd.WeekIndex, day: nd.DayOfWeek}] = i
	}

	optionRows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT week_index, day_of_week, meal_type, option_id, title, lines
		FROM plan_menu_options
		WHERE plan_id = ?
		ORDER BY week_index, day_of_week, meal_type, position`, planID)
	if err != nil {
		return nil, fmt.Errorf("query menu options: %w", err)
	}
	defer r.closeRows(ctx, optionRows)

	for optionRows.Next() {
		var (
			week     int
			day      string
			mealType string
			option   plan.MenuOption
			lines    string
		)
		if err = optionRows.Scan(&week, &day, &mealType, &option.OptionID, &option.Title, &lines); err != nil {
			return nil, fmt.Errorf("scan menu option: %w", err)
		}
		var weekday calendar.Weekday
		if weekday, err = calendar.ParseWeekday(day); err != nil {
			return nil, fmt.Errorf("menu option %s: %w", option.OptionID, err)
		}
		if err = json.Unmarshal([]byte(lines), &option.Lines); err != nil {
			return nil, fmt.Errorf("decode menu option lines: %w", err)
		}
		i, ok := index[nutritionDayKey{week: week, day: weekday}]
		if !ok {
			return nil, fmt.Errorf("menu option %s references missing day", option.OptionID)
		}
		meal := plan.MealType(mealType)
		days[i].Meals[meal] = append(days[i].Meals[meal], option)
	}
	if err = optionRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate menu options: %w", err)
	}
	return days, nil
}

// Active loads the plan assigned to the authenticated user.
func (r *sqlitePlanRepository) Active(ctx context.Context) (PlanInfo, plan.Plan, error) {
	userID := contexthelpers.AuthenticatedUserID(ctx)
	var planID int
	err := r.db.ReadOnly.QueryRowContext(ctx, `SELECT plan_id FROM plan_assignments WHERE user_id = ?`, userID).
		Scan(&planID)
	if errors.Is(err, sql.ErrNoRows) {
		return PlanInfo{}, plan.Plan{}, ErrNoActivePlan
	}
	if err != nil {
		return PlanInfo{}, plan.Plan{}, fmt.Errorf("query plan assignment: %w", err)
	}
	return r.Get(ctx, planID)
}

// Assign makes planID the active plan of userID, replacing any earlier assignment.
func (r *sqlitePlanRepository) Assign(ctx context.Context, userID, planID int) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM plans WHERE id = ?)`, planID).
			Scan(&exists); err != nil {
			return fmt.Errorf("query plan: %w", err)
		}
		if !exists {
			return fmt.Errorf("plan %d: %w", planID, ErrNotFound)
		}
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = ?)`, userID).
			Scan(&exists); err != nil {
			return fmt.Errorf("query user: %w", err)
		}
		if !exists {
			return fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO plan_assignments (user_id, plan_id)
			VALUES (?, ?)
			ON CONFLICT (user_id) DO UPDATE SET plan_id  = excluded.plan_id,
			                                    assigned = STRFTIME('%Y-%m-%dT%H:%M:%fZ')`,
			userID, planID); err != nil {
			return fmt.Errorf("upsert plan assignment: %w", err)
		}
		return nil
	})
}

// ListUsers returns all users with the name of their active plan.
func (r *sqlitePlanRepository) ListUsers(ctx context.Context) ([]UserInfo, error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT u.id, u.display_name, u.is_admin, COALESCE(p.name, '')
		FROM users u
		         LEFT JOIN plan_assignments pa ON pa.user_id = u.id
		         LEFT JOIN plans p ON p.id = pa.plan_id
		ORDER BY u.id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer r.closeRows(ctx, rows)

	var users []UserInfo
	for rows.Next() {
		var u UserInfo
		if err = rows.Scan(&u.ID, &u.DisplayName, &u.IsAdmin, &u.PlanName); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
