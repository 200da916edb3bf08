// Package plan holds the normalized training and nutrition plan and resolves which plan day applies to a
// calendar date.
package plan

import (
	"fmt"
	"time"

	"github.com/myrjola/planfit/internal/calendar"
	"github.com/myrjola/planfit/internal/errors"
	"github.com/myrjola/planfit/internal/ptr"
)

// ErrInvalidPlan is returned when a plan violates its structural invariants.
var ErrInvalidPlan = errors.NewSentinel("invalid plan")

// Plan is an immutable snapshot produced once per import.
type Plan struct {
	// TrainingDays are ordered. The position, not DayIndex, identifies the Nth training day.
	TrainingDays  []TrainingDay
	NutritionDays []NutritionDay
}

// TrainingDay is one workout definition.
type TrainingDay struct {
	// DayIndex is the 1-based label hint from the imported document. Gaps are allowed.
	DayIndex  int
	Label     string
	Exercises []Exercise
}

// Exercise is a planned exercise within a training day.
type Exercise struct {
	ID          string
	Name        string
	Series      *int
	Reps        string
	RestSeconds *int
	Notes       string
}

// NutritionDay is the menu for one weekday of one week in the nutrition cycle.
type NutritionDay struct {
	WeekIndex int
	DayOfWeek calendar.Weekday
	Meals     map[MealType][]MenuOption
}

// MenuOption is one selectable alternative for a meal.
type MenuOption struct {
	OptionID string
	Title    string
	Lines    []string
}

// Settings are the per-user calendar settings.
type Settings struct {
	// NutritionStart anchors the nutrition cycle week computation.
	NutritionStart time.Time
	// TrainingDays is sorted Monday first and free of duplicates.
	TrainingDays []calendar.Weekday
}

// CycleWeeks returns the number of weeks in the nutrition cycle, the largest week index present.
func (p Plan) CycleWeeks() int {
	weeks := 0
	for _, d := range p.NutritionDays {
		weeks = max(weeks, d.WeekIndex)
	}
	return weeks
}

// Exercise finds an exercise by ID across all training days.
func (p Plan) Exercise(id string) (Exercise, bool) {
	for _, td := range p.TrainingDays {
		for _, ex := range td.Exercises {
			if ex.ID == id {
				return ex, true
			}
		}
	}
	return Exercise{}, false
}

// SeriesOrDefault returns the planned number of sets or def when unspecified.
func (e Exercise) SeriesOrDefault(def int) int {
	return ptr.Deref(e.Series, def)
}

// Option finds a menu option of the given meal.
func (d NutritionDay) Option(meal MealType, optionID string) (MenuOption, bool) {
	for _, o := range d.Meals[meal] {
		if o.OptionID == optionID {
			return o, true
		}
	}
	return MenuOption{}, false
}

type nutritionKey struct {
	week int
	day  calendar.Weekday
}

// Validate checks the invariants that the selector and the progress aggregator rely on.
func (p Plan) Validate() error {
	exerciseIDs := make(map[string]struct{})
	for i, td := range p.TrainingDays {
		if td.DayIndex <= 0 {
			return fmt.Errorf("training day %d has day index %d: %w", i, td.DayIndex, ErrInvalidPlan)
		}
		for j, ex := range td.Exercises {
			switch {
			case ex.ID == "":
				return fmt.Errorf("training day %d exercise %d has no id: %w", i, j, ErrInvalidPlan)
			case ex.Name == "":
				return fmt.Errorf("exercise %s has no name: %w", ex.ID, ErrInvalidPlan)
			case ex.Series != nil && *ex.Series <= 0:
				return fmt.Errorf("exercise %s has %d series: %w", ex.ID, *ex.Series, ErrInvalidPlan)
			case ex.RestSeconds != nil && *ex.RestSeconds < 0:
				return fmt.Errorf("exercise %s has negative rest: %w", ex.ID, ErrInvalidPlan)
			}
			if _, ok := exerciseIDs[ex.ID]; ok {
				return fmt.Errorf("duplicate exercise id %s: %w", ex.ID, ErrInvalidPlan)
			}
			exerciseIDs[ex.ID] = struct{}{}
		}
	}

	seen := make(map[nutritionKey]struct{})
	for _, nd := range p.NutritionDays {
		if nd.WeekIndex <= 0 {
			return fmt.Errorf("nutrition day %s has week %d: %w", nd.DayOfWeek, nd.WeekIndex, ErrInvalidPlan)
		}
		if !nd.DayOfWeek.Valid() {
			return fmt.Errorf("nutrition week %d has invalid weekday: %w", nd.WeekIndex, ErrInvalidPlan)
		}
		key := nutritionKey{week: nd.WeekIndex, day: nd.DayOfWeek}
		if _, ok := seen[key]; ok {
			return fmt.Errorf("duplicate nutrition day week %d %s: %w", nd.WeekIndex, nd.DayOfWeek, ErrInvalidPlan)
		}
		seen[key] = struct{}{}
		for meal, options := range nd.Meals {
			if !meal.Valid() {
				return fmt.Errorf("unknown meal type %q: %w", meal, ErrInvalidPlan)
			}
			for _, o := range options {
				if o.OptionID == "" {
					return fmt.Errorf("week %d %s %s option without id: %w",
						nd.WeekIndex, nd.DayOfWeek, meal, ErrInvalidPlan)
				}
			}
		}
	}
	return nil
}
