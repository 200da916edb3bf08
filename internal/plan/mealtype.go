package plan

import (
	"fmt"
	"slices"
)

// MealType is one of the six fixed meals of a nutrition day.
type MealType string

const (
	MealBreakfast      MealType = "breakfast"
	MealMidMorning     MealType = "mid_morning"
	MealLunch          MealType = "lunch"
	MealAfternoonSnack MealType = "afternoon_snack"
	MealDinner         MealType = "dinner"
	MealBeforeBed      MealType = "before_bed"
)

// MealTypes returns the meal types in the order they are eaten.
func MealTypes() []MealType {
	return []MealType{MealBreakfast, MealMidMorning, MealLunch, MealAfternoonSnack, MealDinner, MealBeforeBed}
}

// Valid reports whether m is one of the fixed meal types.
func (m MealType) Valid() bool {
	return slices.Contains(MealTypes(), m)
}

// Title returns a human readable name.
func (m MealType) Title() string {
	switch m {
	case MealBreakfast:
		return "Breakfast"
	case MealMidMorning:
		return "Mid-morning"
	case MealLunch:
		return "Lunch"
	case MealAfternoonSnack:
		return "Afternoon snack"
	case MealDinner:
		return "Dinner"
	case MealBeforeBed:
		return "Before bed"
	default:
		return string(m)
	}
}

// ParseMealType validates s as a meal type.
func ParseMealType(s string) (MealType, error) {
	m := MealType(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown meal type %q", s)
	}
	return m, nil
}
