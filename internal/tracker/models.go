package tracker

import (
	"time"

	"github.com/myrjola/planfit/internal/calendar"
	"github.com/myrjola/planfit/internal/errors"
	"github.com/myrjola/planfit/internal/plan"
)

var (
	ErrNotFound          = errors.NewSentinel("not found")
	ErrNoActivePlan      = errors.NewSentinel("no active plan")
	ErrInvalidSettings   = errors.NewSentinel("invalid settings")
	ErrUnknownMealOption = errors.NewSentinel("unknown meal option")
	ErrInvalidWeight     = errors.NewSentinel("invalid weight")
	ErrInvalidDocument   = errors.NewSentinel("invalid plan document")

	// ErrInvalidMeasurement is returned for measurements without any value or with a non-positive value.
	ErrInvalidMeasurement = errors.NewSentinel("invalid measurement")
)

// MaintenanceModeFlag is the feature flag that makes the site serve a maintenance page to non-admins.
const MaintenanceModeFlag = "maintenance_mode"

// defaultSeries is the number of set inputs shown for exercises without planned series.
const defaultSeries = 3

// defaultTrainingDayCount is used for the lazily created settings of users without an active plan.
const defaultTrainingDayCount = 3

// PlanInfo describes an imported plan without its contents.
type PlanInfo struct {
	ID               int
	Name             string
	Created          time.Time
	TrainingDayCount int
	CycleWeeks       int
}

// UserInfo is the admin view of a user.
type UserInfo struct {
	ID          int
	DisplayName string
	IsAdmin     bool
	// PlanName is empty when no plan has been assigned.
	PlanName string
}

// SetView is a single set input of an exercise on a day.
type SetView struct {
	Number   int
	WeightKg *float64
}

// ExerciseView is a planned exercise together with the sets logged for it on a day.
type ExerciseView struct {
	Position int
	Exercise plan.Exercise
	Sets     []SetView
}

// MealView lists the menu options of one meal and the option the user picked.
type MealView struct {
	Type             plan.MealType
	Options          []plan.MenuOption
	SelectedOptionID string
}

// Selected returns the picked option.
func (m MealView) Selected() (plan.MenuOption, bool) {
	for _, o := range m.Options {
		if o.OptionID == m.SelectedOptionID {
			return o, true
		}
	}
	return plan.MenuOption{}, false
}

// DayView is everything shown for a single calendar date.
type DayView struct {
	Date    time.Time
	Weekday calendar.Weekday
	HasPlan bool
	Plan    PlanInfo

	// TrainingDay is nil on rest days.
	TrainingDay *plan.TrainingDay
	// Position is the index of TrainingDay within the plan, -1 on rest days.
	Position    int
	Exercises   []ExerciseView
	Note        string

	// Meals is empty when the plan has no nutrition entry for the date.
	Meals         []MealView
	NutritionWeek int

	// NextTrainingDate is the first training date on or after Date.
	NextTrainingDate    time.Time
	NextTrainingWeekday calendar.Weekday
}

// IsRestDay reports whether nothing is scheduled for training on the date.
func (d DayView) IsRestDay() bool {
	return d.TrainingDay == nil
}

// DaySummary is one row of the week overview.
type DaySummary struct {
	Date    time.Time
	Weekday calendar.Weekday
	// Label is empty on rest days.
	Label      string
	DayIndex   int
	LoggedSets int
	// MealsPlanned is the number of meals with options in the nutrition plan.
	MealsPlanned int
}

// IsRestDay reports whether no training day is scheduled.
func (d DaySummary) IsRestDay() bool {
	return d.Label == ""
}

// Measurement is one body measurement entry. Nil values were not measured.
type Measurement struct {
	Date         time.Time
	BodyWeightKg *float64
	WaistCm      *float64
	HipCm        *float64
	ChestCm      *float64
	ArmCm        *float64
	ThighCm      *float64
	Note         string
}

// IsEmpty reports whether no value was measured.
func (m Measurement) IsEmpty() bool {
	return m.BodyWeightKg == nil && m.WaistCm == nil && m.HipCm == nil &&
		m.ChestCm == nil && m.ArmCm == nil && m.ThighCm == nil && m.Note == ""
}

// ExerciseInfo is the description page of a planned exercise.
type ExerciseInfo struct {
	Exercise            plan.Exercise
	DescriptionMarkdown string
	// Generated is false for the placeholder written when generation is unavailable.
	Generated bool
}

// FeatureFlag toggles site-wide behaviour.
type FeatureFlag struct {
	Name    string
	Enabled bool
}
