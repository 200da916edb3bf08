package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/myrjola/planfit/internal/contexthelpers"
	"github.com/myrjola/planfit/internal/errors"
	"github.com/myrjola/planfit/internal/progress"
)

// queryer is implemented by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqliteSessionRepository stores training sessions and the sets logged in them.
type sqliteSessionRepository struct {
	baseRepository
}

type setKey struct {
	exerciseID string
	setNumber  int
}

// Get returns the session of the authenticated user on date or ErrNotFound.
func (r *sqliteSessionRepository) Get(ctx context.Context, date time.Time) (progress.Record, error) {
	return r.get(ctx, r.db.ReadOnly, contexthelpers.AuthenticatedUserID(ctx), date)
}

func (r *sqliteSessionRepository) get(
	ctx context.Context,
	q queryer,
	userID int,
	date time.Time,
) (progress.Record, error) {
	rec := progress.Record{Date: date, DayIndex: 0, Note: "", Sets: nil}
	err := q.QueryRowContext(ctx, `
		SELECT day_index, note
		FROM training_sessions
		WHERE user_id = ? AND session_date = ?`, userID, formatDate(date)).Scan(&rec.DayIndex, &rec.Note)
	if errors.Is(err, sql.ErrNoRows) {
		return progress.Record{}, ErrNotFound
	}
	if err != nil {
		return progress.Record{}, fmt.Errorf("query session %s: %w", formatDate(date), err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT exercise_id, exercise_position, set_number, weight_kg
		FROM set_logs
		WHERE user_id = ? AND session_date = ?
		ORDER BY exercise_position, set_number`, userID, formatDate(date))
	if err != nil {
		return progress.Record{}, fmt.Errorf("query set logs: %w", err)
	}
	defer r.closeRows(ctx, rows)

	for rows.Next() {
		var (
			set    progress.SetLog
			weight sql.NullFloat64
		)
		if err = rows.Scan(&set.ExerciseID, &set.ExerciseIndex, &set.SetNumber, &weight); err != nil {
			return progress.Record{}, fmt.Errorf("scan set log: %w", err)
		}
		set.WeightKg = floatPtr(weight)
		rec.Sets = append(rec.Sets, set)
	}
	if err = rows.Err(); err != nil {
		return progress.Record{}, fmt.Errorf("iterate set logs: %w", err)
	}
	return rec, nil
}

// List returns every session of the authenticated user ordered by date.
func (r *sqliteSessionRepository) List(ctx context.Context) ([]progress.Record, error) {
	userID := contexthelpers.AuthenticatedUserID(ctx)

	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT session_date, day_index, note
		FROM training_sessions
		WHERE user_id = ?
		ORDER BY session_date`, userID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer r.closeRows(ctx, rows)

	var (
		records []progress.Record
		byDate  = make(map[string]int)
	)
	for rows.Next() {
		var (
			rec  progress.Record
			date string
		)
		if err = rows.Scan(&date, &rec.DayIndex, &rec.Note); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if rec.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		byDate[date] = len(records)
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	setRows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT session_date, exercise_id, exercise_position, set_number, weight_kg
		FROM set_logs
		WHERE user_id = ?
		ORDER BY session_date, exercise_position, set_number`, userID)
	if err != nil {
		return nil, fmt.Errorf("query set logs: %w", err)
	}
	defer r.closeRows(ctx, setRows)

	for setRows.Next() {
		var (
			date   string
			set    progress.SetLog
			weight sql.NullFloat64
		)
		if err = setRows.Scan(&date, &set.ExerciseID, &set.ExerciseIndex, &set.SetNumber, &weight); err != nil {
			return nil, fmt.Errorf("scan set log: %w", err)
		}
		set.WeightKg = floatPtr(weight)
		i, ok := byDate[date]
		if !ok {
			continue
		}
		records[i].Sets = append(records[i].Sets, set)
	}
	if err = setRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate set logs: %w", err)
	}
	return records, nil
}

// Update applies updateFn to the session on date inside a transaction. A missing session is initialised with
// dayIndex and planID. Only sets that updateFn changed are written back.
func (r *sqliteSessionRepository) Update(
	ctx context.Context,
	date time.Time,
	dayIndex int,
	planID int,
	updateFn func(rec *progress.Record) (bool, error),
) error {
	userID := contexthelpers.AuthenticatedUserID(ctx)
	dateStr := formatDate(date)

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		rec, err := r.get(ctx, tx, userID, date)
		if errors.Is(err, ErrNotFound) {
			rec = progress.Record{Date: date, DayIndex: dayIndex, Note: "", Sets: nil}
			err = nil
		}
		if err != nil {
			return err
		}

		original := make(map[setKey]progress.SetLog, len(rec.Sets))
		for _, set := range rec.Sets {
			original[setKey{exerciseID: set.ExerciseID, setNumber: set.SetNumber}] = set
		}

		var updated bool
		if updated, err = updateFn(&rec); err != nil {
			return err
		}
		if !updated {
			return nil
		}

		if _, err = tx.ExecContext(ctx, `
			INSERT INTO training_sessions (user_id, session_date, plan_id, day_index, note)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (user_id, session_date) DO UPDATE SET note = excluded.note`,
			userID, dateStr, sql.NullInt64{Int64: int64(planID), Valid: planID > 0}, rec.DayIndex, rec.Note,
		); err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}

		for _, set := range rec.Sets {
			previous, existed := original[setKey{exerciseID: set.ExerciseID, setNumber: set.SetNumber}]
			if existed && sameWeight(previous.WeightKg, set.WeightKg) && previous.ExerciseIndex == set.ExerciseIndex {
				continue
			}
			if _, err = tx.ExecContext(ctx, `
				INSERT INTO set_logs (user_id, session_date, exercise_id, exercise_position, set_number, weight_kg)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT (user_id, session_date, exercise_id, set_number)
				    DO UPDATE SET weight_kg         = excluded.weight_kg,
				                  exercise_position = excluded.exercise_position,
				                  updated           = STRFTIME('%Y-%m-%dT%H:%M:%fZ')`,
				userID, dateStr, set.ExerciseID, set.ExerciseIndex, set.SetNumber, nullFloat(set.WeightKg),
			); err != nil {
				return fmt.Errorf("upsert set %s #%d: %w", set.ExerciseID, set.SetNumber, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update session %s: %w", dateStr, err)
	}
	return nil
}

// LoggedSets counts the sets with a weight per session date between from and to inclusive.
func (r *sqliteSessionRepository) LoggedSets(ctx context.Context, from, to time.Time) (map[string]int, error) {
	userID := contexthelpers.AuthenticatedUserID(ctx)
	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT session_date, logged_sets
		FROM session_overview
		WHERE user_id = ? AND session_date BETWEEN ? AND ?`, userID, formatDate(from), formatDate(to))
	if err != nil {
		return nil, fmt.Errorf("query session overview: %w", err)
	}
	defer r.closeRows(ctx, rows)

	counts := make(map[string]int)
	for rows.Next() {
		var (
			date  string
			count int
		)
		if err = rows.Scan(&date, &count); err != nil {
			return nil, fmt.Errorf("scan session overview: %w", err)
		}
		counts[date] = count
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session overview: %w", err)
	}
	return counts, nil
}

func sameWeight(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
