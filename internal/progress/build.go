package progress

import (
	"time"

	"github.com/myrjola/planfit/internal/plan"
)

// Record is the logged training of one user on one date.
type Record struct {
	Date time.Time
	// DayIndex is the plan day index stored when the record was created. It is only used when the current
	// settings no longer map the date to a training day.
	DayIndex int
	Note     string
	Sets     []SetLog
}

// SetLog is a single logged set.
type SetLog struct {
	// ExerciseID identifies the exercise. Legacy records may lack it and rely on ExerciseIndex.
	ExerciseID string
	// ExerciseIndex is the 0-based position of the exercise within its training day.
	ExerciseIndex int
	SetNumber     int
	// WeightKg is nil when no weight was entered.
	WeightKg *float64
}

// Report is the progress of every training block of a plan.
type Report struct {
	Blocks []BlockProgress
}

// BlockProgress rolls up the exercise deltas of one training day.
type BlockProgress struct {
	Position       int
	DayIndex       int
	Label          string
	WeeklyAvgPct   *float64
	MonthlyAvgPct  *float64
	WeeklyTotalKg  *float64
	MonthlyTotalKg *float64
	Exercises      []ExerciseProgress
}

// ExerciseProgress is the weight series of one exercise with its deltas.
type ExerciseProgress struct {
	ExerciseID string
	Name       string
	Points     []Point
	Weekly     Delta
	Monthly    Delta
}

// HasData reports whether any exercise of the block has at least one point.
func (b BlockProgress) HasData() bool {
	for _, ex := range b.Exercises {
		if len(ex.Points) > 0 {
			return true
		}
	}
	return false
}

// Build computes the progress report of p from records.
//
// Records are assigned to blocks through the plan day selector so that the block identity follows the
// current plan and settings rather than the label stored with the record.
func Build(p plan.Plan, s plan.Settings, records []Record) Report {
	byPosition := make(map[int][]Record, len(p.TrainingDays))
	for _, r := range records {
		position := plan.TrainingDayPosition(p, r.Date, s)
		if position < 0 {
			position = p.PositionOfDayIndex(r.DayIndex)
		}
		if position < 0 {
			continue
		}
		byPosition[position] = append(byPosition[position], r)
	}

	report := Report{Blocks: make([]BlockProgress, 0, len(p.TrainingDays))}
	for position, td := range p.TrainingDays {
		block := BlockProgress{
			Position:       position,
			DayIndex:       td.DayIndex,
			Label:          td.Label,
			WeeklyAvgPct:   nil,
			MonthlyAvgPct:  nil,
			WeeklyTotalKg:  nil,
			MonthlyTotalKg: nil,
			Exercises:      make([]ExerciseProgress, 0, len(td.Exercises)),
		}
		blockRecords := byPosition[position]
		weekly := make([]Delta, 0, len(td.Exercises))
		monthly := make([]Delta, 0, len(td.Exercises))
		for i, ex := range td.Exercises {
			points := Series(blockRecords, matchExercise(ex.ID, i))
			ep := ExerciseProgress{
				ExerciseID: ex.ID,
				Name:       ex.Name,
				Points:     points,
				Weekly:     Weekly(points),
				Monthly:    Monthly(points),
			}
			weekly = append(weekly, ep.Weekly)
			monthly = append(monthly, ep.Monthly)
			block.Exercises = append(block.Exercises, ep)
		}
		block.WeeklyAvgPct, block.WeeklyTotalKg = averageAndSum(weekly)
		block.MonthlyAvgPct, block.MonthlyTotalKg = averageAndSum(monthly)
		report.Blocks = append(report.Blocks, block)
	}
	return report
}

// matchExercise matches sets by exercise ID and falls back to the exercise position for sets without one.
func matchExercise(exerciseID string, index int) func(SetLog) bool {
	return func(set SetLog) bool {
		if set.ExerciseID != "" {
			return set.ExerciseID == exerciseID
		}
		return set.ExerciseIndex == index
	}
}
