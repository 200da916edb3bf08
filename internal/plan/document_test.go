package plan_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/myrjola/planfit/internal/calendar"
	"github.com/myrjola/planfit/internal/errors"
	"github.com/myrjola/planfit/internal/plan"
	"github.com/myrjola/planfit/internal/ptr"
)

const sampleDocument = `
name: Spring block
training_days:
  - label: Day 1 - Upper
    exercises:
      - id: bench
        name: Bench press
        series: 4
        reps: "6-8"
        rest_seconds: 120
        notes: Pause on chest
      - name: Cable row
  - label: Día 3 - Pierna
    exercises:
      - id: squat
        name: Back squat
  - label: Conditioning
    day_index: 7
    exercises: []
  - label: Mobility
nutrition_days:
  - week: 1
    day: Mon
    meals:
      breakfast:
        - id: b1
          title: Oats
          lines: ["80 g oats", "200 ml milk"]
        - title: Eggs
      dinner:
        - id: d1
          title: Salmon
  - week: 2
    day: tuesday
    meals: {}
`

func TestParseDocument(t *testing.T) {
	t.Parallel()
	p, name, err := plan.ParseDocument(strings.NewReader(sampleDocument))
	if err != nil {
		t.Fatalf("ParseDocument() unexpected error: %v", err)
	}
	if name != "Spring block" {
		t.Errorf("name = %q, want %q", name, "Spring block")
	}

	gotIndexes := make([]int, len(p.TrainingDays))
	for i, td := range p.TrainingDays {
		gotIndexes[i] = td.DayIndex
	}
	if diff := cmp.Diff([]int{1, 3, 7, 4}, gotIndexes); diff != "" {
		t.Errorf("day indexes mismatch (-want +got):\n%s", diff)
	}

	bench := p.TrainingDays[0].Exercises[0]
	wantBench := plan.Exercise{
		ID:          "bench",
		Name:        "Bench press",
		Series:      ptr.Ref(4),
		Reps:        "6-8",
		RestSeconds: ptr.Ref(120),
		Notes:       "Pause on chest",
	}
	if diff := cmp.Diff(wantBench, bench); diff != "" {
		t.Errorf("bench mismatch (-want +got):\n%s", diff)
	}

	row := p.TrainingDays[0].Exercises[1]
	if _, err = uuid.Parse(row.ID); err != nil {
		t.Errorf("generated id %q is not a UUID: %v", row.ID, err)
	}
	if row.Series != nil || row.RestSeconds != nil {
		t.Errorf("optional fields = %v %v, want nil", row.Series, row.RestSeconds)
	}

	if got := p.CycleWeeks(); got != 2 {
		t.Errorf("CycleWeeks() = %d, want 2", got)
	}
	monday := p.NutritionDays[0]
	if monday.DayOfWeek != calendar.Monday {
		t.Errorf("first nutrition day = %s, want Mon", monday.DayOfWeek)
	}
	wantBreakfast := []plan.MenuOption{
		{OptionID: "b1", Title: "Oats", Lines: []string{"80 g oats", "200 ml milk"}},
		{OptionID: "breakfast-2", Title: "Eggs", Lines: nil},
	}
	if diff := cmp.Diff(wantBreakfast, monday.Meals[plan.MealBreakfast]); diff != "" {
		t.Errorf("breakfast mismatch (-want +got):\n%s", diff)
	}
	if p.NutritionDays[1].DayOfWeek != calendar.Tuesday {
		t.Errorf("second nutrition day = %s, want Tue", p.NutritionDays[1].DayOfWeek)
	}
}

func TestParseDocument_invalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		doc         string
		wantInvalid bool
	}{
		{
			name: "unknown field",
			doc:  "name: x\ntraining_dayz: []\n",
		},
		{
			name: "unknown weekday",
			doc:  "nutrition_days:\n  - week: 1\n    day: Funday\n",
		},
		{
			name: "unknown meal type",
			doc:  "nutrition_days:\n  - week: 1\n    day: Mon\n    meals:\n      brunch: []\n",
		},
		{
			name:        "duplicate nutrition day",
			doc:         "nutrition_days:\n  - week: 1\n    day: Mon\n  - week: 1\n    day: monday\n",
			wantInvalid: true,
		},
		{
			name:        "week index zero",
			doc:         "nutrition_days:\n  - week: 0\n    day: Mon\n",
			wantInvalid: true,
		},
		{
			name:        "exercise without name",
			doc:         "training_days:\n  - label: Day 1\n    exercises:\n      - id: a\n",
			wantInvalid: true,
		},
		{
			name:        "duplicate exercise id",
			doc:         "training_days:\n  - exercises:\n      - {id: a, name: A}\n      - {id: a, name: B}\n",
			wantInvalid: true,
		},
		{
			name:        "zero series",
			doc:         "training_days:\n  - exercises:\n      - {id: a, name: A, series: 0}\n",
			wantInvalid: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := plan.ParseDocument(strings.NewReader(tt.doc))
			if err == nil {
				t.Fatal("ParseDocument() expected error")
			}
			if got := errors.Is(err, plan.ErrInvalidPlan); got != tt.wantInvalid {
				t.Errorf("errors.Is(ErrInvalidPlan) = %v, want %v (err: %v)", got, tt.wantInvalid, err)
			}
		})
	}
}

func TestParseDayLabel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		label  string
		want   int
		wantOK bool
	}{
		{label: "Day 3", want: 3, wantOK: true},
		{label: "day3", want: 3, wantOK: true},
		{label: "Día 2 - Pierna", want: 2, wantOK: true},
		{label: "DIA 4", want: 4, wantOK: true},
		{label: "D5", want: 5, wantOK: true},
		{label: "Session #2", want: 2, wantOK: true},
		{label: "Upper body 2", wantOK: false},
		{label: "Mobility", wantOK: false},
		{label: "Day 0", wantOK: false},
		{label: "", wantOK: false},
	}
	for _, tt := range tests {
		got, ok := plan.ParseDayLabel(tt.label)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseDayLabel(%q) = %d, %v, want %d, %v", tt.label, got, ok, tt.want, tt.wantOK)
		}
	}
}
