package plan

import (
	"fmt"
	"time"

	"github.com/myrjola/planfit/internal/calendar"
)

// Resolution is what the plan prescribes for a date. Nil fields mean the plan has no entry, e.g. a rest day.
type Resolution struct {
	// Position is the index of TrainingDay within the plan, -1 on rest days.
	Position     int
	TrainingDay  *TrainingDay
	NutritionDay *NutritionDay
}

// Resolve selects both the training day and the nutrition day for date.
func Resolve(p Plan, date time.Time, s Settings) (Resolution, error) {
	nutritionDay, err := SelectNutritionDay(p, date, s)
	if err != nil {
		return Resolution{}, fmt.Errorf("select nutrition day: %w", err)
	}
	position, trainingDay := selectTrainingDay(p, date, s)
	return Resolution{
		Position:     position,
		TrainingDay:  trainingDay,
		NutritionDay: nutritionDay,
	}, nil
}

// SelectNutritionDay returns the nutrition day for the cycle week and weekday of date, or nil when the plan
// has no entry for it.
func SelectNutritionDay(p Plan, date time.Time, s Settings) (*NutritionDay, error) {
	cycleWeeks := p.CycleWeeks()
	if cycleWeeks == 0 {
		return nil, nil //nolint:nilnil // a plan without nutrition days is valid.
	}
	weekIndex, err := calendar.NutritionWeekIndex(date, s.NutritionStart, cycleWeeks)
	if err != nil {
		return nil, fmt.Errorf("nutrition week index: %w", err)
	}
	weekday := calendar.DayOfWeek(date)
	for i := range p.NutritionDays {
		if p.NutritionDays[i].WeekIndex == weekIndex && p.NutritionDays[i].DayOfWeek == weekday {
			return &p.NutritionDays[i], nil
		}
	}
	return nil, nil //nolint:nilnil // gaps in the plan are expected.
}

// SelectTrainingDay returns the training day scheduled for date or nil on rest days.
func SelectTrainingDay(p Plan, date time.Time, s Settings) *TrainingDay {
	_, td := selectTrainingDay(p, date, s)
	return td
}

func selectTrainingDay(p Plan, date time.Time, s Settings) (int, *TrainingDay) {
	slot, ok := TrainingSlot(p, date, s)
	if !ok {
		return -1, nil
	}
	if td := TrainingDayAtPosition(p, slot); td != nil {
		return slot, td
	}
	if td := TrainingDayByIndex(p, slot+1); td != nil {
		return positionOf(p, td), td
	}
	return -1, nil
}

// TrainingDayPosition returns the position of the training day selected for date, -1 on rest days.
func TrainingDayPosition(p Plan, date time.Time, s Settings) int {
	position, _ := selectTrainingDay(p, date, s)
	return position
}

// PositionOfDayIndex returns the position of the first training day with dayIndex, or -1.
func (p Plan) PositionOfDayIndex(dayIndex int) int {
	if td := TrainingDayByIndex(p, dayIndex); td != nil {
		return positionOf(p, td)
	}
	return -1
}

// EffectiveTrainingDays returns the configured training weekdays or, when none are configured, the first N
// weekdays from Monday where N is the number of training days in the plan.
func EffectiveTrainingDays(p Plan, s Settings) []calendar.Weekday {
	if len(s.TrainingDays) > 0 {
		return calendar.NormalizeWeekdays(s.TrainingDays)
	}
	return calendar.DefaultTrainingWeekdays(len(p.TrainingDays))
}

// TrainingSlot returns the 0-based index of date's weekday within the effective training weekdays. It
// reports false on rest days.
func TrainingSlot(p Plan, date time.Time, s Settings) (int, bool) {
	return calendar.WeekdaySlot(EffectiveTrainingDays(p, s), calendar.DayOfWeek(date))
}

// TrainingDayAtPosition is the primary match: the training day at the given position of the sequence.
func TrainingDayAtPosition(p Plan, position int) *TrainingDay {
	if position < 0 || position >= len(p.TrainingDays) {
		return nil
	}
	return &p.TrainingDays[position]
}

// TrainingDayByIndex is the fallback match on the imported day index. It keeps records created against
// older plan revisions resolvable.
func TrainingDayByIndex(p Plan, dayIndex int) *TrainingDay {
	for i := range p.TrainingDays {
		if p.TrainingDays[i].DayIndex == dayIndex {
			return &p.TrainingDays[i]
		}
	}
	return nil
}

func positionOf(p Plan, td *TrainingDay) int {
	for i := range p.TrainingDays {
		if &p.TrainingDays[i] == td {
			return i
		}
	}
	return -1
}
