package tracker

import (
	"context"
	"fmt"
	"math"

	"github.com/myrjola/planfit/internal/calendar"
	"github.com/myrjola/planfit/internal/progress"
)

// measurementField names one measured quantity and extracts it from a Measurement.
type measurementField struct {
	name  string
	value func(m Measurement) *float64
}

func measurementFields() []measurementField {
	return []measurementField{
		{name: "Body weight (kg)", value: func(m Measurement) *float64 { return m.BodyWeightKg }},
		{name: "Waist (cm)", value: func(m Measurement) *float64 { return m.WaistCm }},
		{name: "Hip (cm)", value: func(m Measurement) *float64 { return m.HipCm }},
		{name: "Chest (cm)", value: func(m Measurement) *float64 { return m.ChestCm }},
		{name: "Arm (cm)", value: func(m Measurement) *float64 { return m.ArmCm }},
		{name: "Thigh (cm)", value: func(m Measurement) *float64 { return m.ThighCm }},
	}
}

// SaveMeasurement stores the measurement of a date, replacing an earlier entry on the same date.
func (s *Service) SaveMeasurement(ctx context.Context, m Measurement) error {
	if m.Date.IsZero() {
		return fmt.Errorf("measurement without date: %w", ErrInvalidMeasurement)
	}
	m.Date = calendar.Date(m.Date)
	if m.IsEmpty() {
		return fmt.Errorf("measurement %s has no values: %w", calendar.FormatDate(m.Date), ErrInvalidMeasurement)
	}
	for _, field := range measurementFields() {
		if v := field.value(m); v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0) || *v <= 0) {
			return fmt.Errorf("%s %v: %w", field.name, *v, ErrInvalidMeasurement)
		}
	}
	if err := s.repo.measurements.Upsert(ctx, m); err != nil {
		return fmt.Errorf("save measurement: %w", err)
	}
	return nil
}

// Measurements returns all measurements, newest first.
func (s *Service) Measurements(ctx context.Context) ([]Measurement, error) {
	measurements, err := s.repo.measurements.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list measurements: %w", err)
	}
	return measurements, nil
}

// MeasurementTrends returns one trend per measured quantity that has at least one value.
func (s *Service) MeasurementTrends(ctx context.Context) ([]progress.Trend, error) {
	measurements, err := s.Measurements(ctx)
	if err != nil {
		return nil, err
	}
	var trends []progress.Trend
	for _, field := range measurementFields() {
		var points []progress.Point
		for _, m := range measurements {
			if v := field.value(m); v != nil {
				points = append(points, progress.Point{Date: m.Date, WeightKg: *v})
			}
		}
		if len(points) > 0 {
			trends = append(trends, progress.MeasurementTrend(field.name, points))
		}
	}
	return trends, nil
}
