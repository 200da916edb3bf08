// Package calendar maps civil dates onto training weekdays and repeating nutrition cycles.
//
// Dates are civil dates, not instants. Every function expects and returns times normalized to UTC midnight
// with [ParseDate] or [Date] so that day arithmetic is exact.
package calendar

import (
	"fmt"
	"time"

	"github.com/myrjola/planfit/internal/errors"
)

// DateLayout is the ISO-8601 calendar date layout used in URLs, forms and storage.
const DateLayout = "2006-01-02"

const (
	daysPerWeek = 7
	day         = 24 * time.Hour
)

var (
	// ErrInvalidCycle is returned when a cycle length is not positive.
	ErrInvalidCycle = errors.NewSentinel("cycle length must be positive")
	// ErrNoTrainingDays is returned when a training day is requested from an empty weekday set.
	ErrNoTrainingDays = errors.NewSentinel("no training weekdays configured")
)

// Date returns the civil date of t in t's location, normalized to UTC midnight.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate formats a civil date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// DayOfWeek returns the weekday of the civil date.
func DayOfWeek(date time.Time) Weekday {
	return FromTime(date)
}

// daysBetween returns the whole number of days from start to date, negative when date is before start.
func daysBetween(date, start time.Time) int {
	return int(Date(date).Sub(Date(start)) / day)
}

// floorDiv divides rounding towards negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// wrap maps any integer into [0, n).
func wrap(x, n int) int {
	return ((x % n) + n) % n
}

// NutritionWeekIndex returns the 1-based week of date within a repeating cycle of cycleWeeks weeks that
// started on cycleStart. Dates before cycleStart wrap around backwards.
func NutritionWeekIndex(date, cycleStart time.Time, cycleWeeks int) (int, error) {
	if cycleWeeks <= 0 {
		return 0, fmt.Errorf("nutrition week index with %d weeks: %w", cycleWeeks, ErrInvalidCycle)
	}
	weeksElapsed := floorDiv(daysBetween(date, cycleStart), daysPerWeek)
	return wrap(weeksElapsed, cycleWeeks) + 1, nil
}

// CycleDayIndex returns the 0-based day of date within a repeating cycle of cycleLength days.
func CycleDayIndex(date, cycleStart time.Time, cycleLength int) (int, error) {
	if cycleLength <= 0 {
		return 0, fmt.Errorf("cycle day index with %d days: %w", cycleLength, ErrInvalidCycle)
	}
	return wrap(daysBetween(date, cycleStart), cycleLength), nil
}

// NextTrainingDate returns the first date on or after from whose weekday is in trainingDays.
// The search covers eight days so that a single-weekday set always resolves.
func NextTrainingDate(from time.Time, trainingDays []Weekday) (time.Time, Weekday, error) {
	if len(trainingDays) == 0 {
		return time.Time{}, 0, fmt.Errorf("next training date from %s: %w", FormatDate(from), ErrNoTrainingDays)
	}
	from = Date(from)
	for offset := range daysPerWeek + 1 {
		candidate := from.AddDate(0, 0, offset)
		weekday := DayOfWeek(candidate)
		if ContainsWeekday(trainingDays, weekday) {
			return candidate, weekday, nil
		}
	}
	// Only reachable with weekday values outside the enum.
	return time.Time{}, 0, fmt.Errorf("next training date from %s: %w", FormatDate(from), ErrNoTrainingDays)
}

// StartOfWeek returns the Monday on or before date.
func StartOfWeek(date time.Time) time.Time {
	date = Date(date)
	return date.AddDate(0, 0, -int(DayOfWeek(date)))
}

// WeekDates returns the dates Monday through Sunday of the week containing date.
func WeekDates(date time.Time) []time.Time {
	start := StartOfWeek(date)
	dates := make([]time.Time, daysPerWeek)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
	}
	return dates
}
