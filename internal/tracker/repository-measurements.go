package tracker

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/myrjola/planfit/internal/contexthelpers"
)

type sqliteMeasurementRepository struct {
	baseRepository
}

// Upsert stores the measurement, replacing an earlier entry on the same date.
func (r *sqliteMeasurementRepository) Upsert(ctx context.Context, m Measurement) error {
	userID := contexthelpers.AuthenticatedUserID(ctx)
	if _, err := r.db.ReadWrite.ExecContext(ctx, `
		INSERT INTO measurements (user_id, measured_on, body_weight_kg, waist_cm, hip_cm, chest_cm, arm_cm, thigh_cm,
		                          note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, measured_on) DO UPDATE SET body_weight_kg = excluded.body_weight_kg,
		                                                 waist_cm       = excluded.waist_cm,
		                                                 hip_cm         = excluded.hip_cm,
		                                                 chest_cm       = excluded.chest_cm,
		                                                 arm_cm         = excluded.arm_cm,
		                                                 thigh_cm       = excluded.thigh_cm,
		                                                 note           = excluded.note`,
		userID, formatDate(m.Date),
		nullFloat(m.BodyWeightKg), nullFloat(m.WaistCm), nullFloat(m.HipCm),
		nullFloat(m.ChestCm), nullFloat(m.ArmCm), nullFloat(m.ThighCm),
		m.Note); err != nil {
		return fmt.Errorf("upsert measurement %s: %w", formatDate(m.Date), err)
	}
	return nil
}

// List returns all measurements of the authenticated user, newest first.
func (r *sqliteMeasurementRepository) List(ctx context.Context) ([]Measurement, error) {
	userID := contexthelpers.AuthenticatedUserID(ctx)
	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT measured_on, body_weight_kg, waist_cm, hip_cm, chest_cm, arm_cm, thigh_cm, note
		FROM measurements
		WHERE user_id = ?
		ORDER BY measured_on DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query measurements: %w", err)
	}
	defer r.closeRows(ctx, rows)

	var measurements []Measurement
	for rows.Next() {
		var (
			m                                  Measurement
			date                               string
			weight, waist, hip, chest, arm, th sql.NullFloat64
		)
		if err = rows.Scan(&date, &weight, &waist, &hip, &chest, &arm, &th, &m.Note); err != nil {
			return nil, fmt.Errorf("scan measurement: %w", err)
		}
		if m.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		m.BodyWeightKg = floatPtr(weight)
		m.WaistCm = floatPtr(waist)
		m.HipCm = floatPtr(hip)
		m.ChestCm = floatPtr(chest)
		m.ArmCm = floatPtr(arm)
		m.ThighCm = floatPtr(th)
		measurements = append(measurements, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate measurements: %w", err)
	}
	return measurements, nil
}
