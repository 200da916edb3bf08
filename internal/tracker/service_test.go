package tracker_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/myrjola/planfit/internal/calendar"
	"github.com/myrjola/planfit/internal/contexthelpers"
	"github.com/myrjola/planfit/internal/plan"
	"github.com/myrjola/planfit/internal/ptr"
	"github.com/myrjola/planfit/internal/sqlite"
	"github.com/myrjola/planfit/internal/testhelpers"
	"github.com/myrjola/planfit/internal/tracker"
)

const testPlanDocument = `
name: Test block
training_days:
  - label: Day 1 - Lower
    exercises:
      - id: squat
        name: Back squat
        series: 3
        reps: "5"
      - id: rdl
        name: Romanian deadlift
        notes: Slow eccentric
  - label: Day 2 - Upper
    exercises:
      - id: bench
        name: Bench press
        series: 4
nutrition_days:
  - week: 1
    day: Mon
    meals:
      breakfast:
        - id: oats
          title: Oats
          lines: ["80 g oats", "200 ml milk"]
        - id: eggs
          title: Eggs
      dinner:
        - id: salmon
          title: Salmon
`

func newTestService(t *testing.T) (*tracker.Service, *sqlite.Database) {
	t.Helper()
	logger := testhelpers.NewTestLogger(t)
	db, err := sqlite.NewDatabase(t.Context(), ":memory:", logger)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() {
		if err = db.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	})
	return tracker.NewService(db, logger, ""), db
}

// newUser inserts a user and returns a context authenticated as that user.
func newUser(t *testing.T, db *sqlite.Database, name string) (context.Context, int) {
	t.Helper()
	result, err := db.ReadWrite.ExecContext(t.Context(),
		"INSERT INTO users (webauthn_user_id, display_name) VALUES (?, ?)", []byte(name), name)
	if err != nil {
		t.Fatalf("Failed to insert user: %v", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		t.Fatalf("Failed to get user id: %v", err)
	}
	return contexthelpers.WithUser(t.Context(), int(id), false), int(id)
}

// setupPlanUser imports the test plan, assigns it to a new user and configures Monday and Thursday as
// training days with the nutrition cycle starting 2024-01-01.
func setupPlanUser(t *testing.T) (*tracker.Service, context.Context) {
	t.Helper()
	svc, db := newTestService(t)
	ctx, userID := newUser(t, db, "lifter")
	planID, err := svc.ImportPlanDocument(ctx, strings.NewReader(testPlanDocument))
	if err != nil {
		t.Fatalf("ImportPlanDocument() error = %v", err)
	}
	if err = svc.AssignPlan(ctx, userID, planID); err != nil {
		t.Fatalf("AssignPlan() error = %v", err)
	}
	if err = svc.SaveSettings(ctx, plan.Settings{
		NutritionStart: mustDate(t, "2024-01-01"),
		TrainingDays:   []calendar.Weekday{calendar.Thursday, calendar.Monday},
	}); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}
	return svc, ctx
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := calendar.ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q) error = %v", s, err)
	}
	return d
}

func weights(sets []tracker.SetView) []*float64 {
	out := make([]*float64, len(sets))
	for i, s := range sets {
		out[i] = s.WeightKg
	}
	return out
}

func TestService_ImportPlanDocument(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)
	ctx, userID := newUser(t, db, "admin")

	if _, _, err := svc.ActivePlan(ctx); !errors.Is(err, tracker.ErrNoActivePlan) {
		t.Fatalf("ActivePlan() before assignment error = %v, want ErrNoActivePlan", err)
	}

	want, _, err := plan.ParseDocument(strings.NewReader(testPlanDocument))
	if err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}
	planID, err := svc.ImportPlanDocument(ctx, strings.NewReader(testPlanDocument))
	if err != nil {
		t.Fatalf("ImportPlanDocument() error = %v", err)
	}
	if err = svc.AssignPlan(ctx, userID, planID); err != nil {
		t.Fatalf("AssignPlan() error = %v", err)
	}

	info, got, err := svc.ActivePlan(ctx)
	if err != nil {
		t.Fatalf("ActivePlan() error = %v", err)
	}
	if info.Name != "Test block" || info.TrainingDayCount != 2 || info.CycleWeeks != 1 {
		t.Errorf("ActivePlan() info = %+v", info)
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("ActivePlan() mismatch (-want +got):\n%s", diff)
	}

	plans, err := svc.ListPlans(ctx)
	if err != nil {
		t.Fatalf("ListPlans() error = %v", err)
	}
	if len(plans) == 0 || plans[0].ID != planID {
		t.Errorf("ListPlans() = %+v, want newest plan %d first", plans, planID)
	}

	if err = svc.AssignPlan(ctx, userID, planID+1000); !errors.Is(err, tracker.ErrNotFound) {
		t.Errorf("AssignPlan() unknown plan error = %v, want ErrNotFound", err)
	}
	_, err = svc.ImportPlanDocument(ctx, strings.NewReader("training_days: [{label: x, bogus: 1}]"))
	if !errors.Is(err, tracker.ErrInvalidDocument) {
		t.Errorf("ImportPlanDocument() with unknown field error = %v, want ErrInvalidDocument", err)
	}
}

func TestService_Settings(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)

	t.Run("defaults without plan", func(t *testing.T) {
		ctx, _ := newUser(t, db, "no-plan")
		got, err := svc.Settings(ctx)
		if err != nil {
			t.Fatalf("Settings() error = %v", err)
		}
		wantDays := []calendar.Weekday{calendar.Monday, calendar.Tuesday, calendar.Wednesday}
		if diff := cmp.Diff(wantDays, got.TrainingDays); diff != "" {
			t.Errorf("TrainingDays mismatch (-want +got):\n%s", diff)
		}
		if calendar.DayOfWeek(got.NutritionStart) != calendar.Monday {
			t.Errorf("NutritionStart = %s, want a Monday", calendar.FormatDate(got.NutritionStart))
		}
	})

	t.Run("defaults follow plan length", func(t *testing.T) {
		ctx, userID := newUser(t, db, "with-plan")
		planID, err := svc.ImportPlanDocument(ctx, strings.NewReader(testPlanDocument))
		if err != nil {
			t.Fatalf("ImportPlanDocument() error = %v", err)
		}
		if err = svc.AssignPlan(ctx, userID, planID); err != nil {
			t.Fatalf("AssignPlan() error = %v", err)
		}
		got, err := svc.Settings(ctx)
		if err != nil {
			t.Fatalf("Settings() error = %v", err)
		}
		if diff := cmp.Diff([]calendar.Weekday{calendar.Monday, calendar.Tuesday}, got.TrainingDays); diff != "" {
			t.Errorf("TrainingDays mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("save", func(t *testing.T) {
		ctx, _ := newUser(t, db, "saver")
		err := svc.SaveSettings(ctx, plan.Settings{NutritionStart: mustDate(t, "2024-01-03"), TrainingDays: nil})
		if !errors.Is(err, tracker.ErrInvalidSettings) {
			t.Fatalf("SaveSettings() without days error = %v, want ErrInvalidSettings", err)
		}
		want := plan.Settings{
			NutritionStart: mustDate(t, "2024-01-03"),
			TrainingDays:   []calendar.Weekday{calendar.Tuesday, calendar.Saturday},
		}
		input := want
		input.TrainingDays = []calendar.Weekday{calendar.Saturday, calendar.Tuesday, calendar.Saturday}
		if err = svc.SaveSettings(ctx, input); err != nil {
			t.Fatalf("SaveSettings() error = %v", err)
		}
		got, err := svc.Settings(ctx)
		if err != nil {
			t.Fatalf("Settings() error = %v", err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Settings() mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestService_Day(t *testing.T) {
	t.Parallel()
	svc, ctx := setupPlanUser(t)

	monday := mustDate(t, "2024-01-01")
	if err := svc.SaveSetWeights(ctx, monday, 0, []string{"80", "82,5", ""}); err != nil {
		t.Fatalf("SaveSetWeights() error = %v", err)
	}
	if err := svc.SaveNote(ctx, monday, "  felt strong "); err != nil {
		t.Fatalf("SaveNote() error = %v", err)
	}

	day, err := svc.Day(ctx, monday)
	if err != nil {
		t.Fatalf("Day() error = %v", err)
	}
	if day.IsRestDay() || day.TrainingDay.Label != "Day 1 - Lower" || day.Position != 0 {
		t.Fatalf("Day() training = %+v at %d, want Day 1 - Lower", day.TrainingDay, day.Position)
	}
	if diff := cmp.Diff([]*float64{ptr.Ref(80.0), ptr.Ref(82.5), nil}, weights(day.Exercises[0].Sets)); diff != "" {
		t.Errorf("squat weights mismatch (-want +got):\n%s", diff)
	}
	if got := len(day.Exercises[1].Sets); got != 3 {
		t.Errorf("rdl without series has %d sets, want 3", got)
	}
	if day.Note != "felt strong" {
		t.Errorf("Note = %q, want %q", day.Note, "felt strong")
	}
	if len(day.Meals) != 2 || day.Meals[0].Type != plan.MealBreakfast || day.Meals[1].Type != plan.MealDinner {
		t.Errorf("Meals = %+v, want breakfast and dinner", day.Meals)
	}
	if !day.NextTrainingDate.Equal(monday) {
		t.Errorf("NextTrainingDate = %s, want the same day", calendar.FormatDate(day.NextTrainingDate))
	}

	// Re-saving overwrites sets by number and clears blank ones.
	if err = svc.SaveSetWeights(ctx, monday, 0, []string{"85 kg", "", ""}); err != nil {
		t.Fatalf("SaveSetWeights() error = %v", err)
	}
	if day, err = svc.Day(ctx, monday); err != nil {
		t.Fatalf("Day() error = %v", err)
	}
	if diff := cmp.Diff([]*float64{ptr.Ref(85.0), nil, nil}, weights(day.Exercises[0].Sets)); diff != "" {
		t.Errorf("squat weights after re-save mismatch (-want +got):\n%s", diff)
	}

	tuesday := mustDate(t, "2024-01-02")
	rest, err := svc.Day(ctx, tuesday)
	if err != nil {
		t.Fatalf("Day() rest day error = %v", err)
	}
	if !rest.IsRestDay() || len(rest.Meals) != 0 {
		t.Errorf("Day() rest day = %+v", rest)
	}
	if want := mustDate(t, "2024-01-04"); !rest.NextTrainingDate.Equal(want) ||
		rest.NextTrainingWeekday != calendar.Thursday {
		t.Errorf("NextTrainingDate = %s %s, want 2024-01-04 Thu",
			calendar.FormatDate(rest.NextTrainingDate), rest.NextTrainingWeekday)
	}
}

func TestService_SaveSet_errors(t *testing.T) {
	t.Parallel()
	svc, ctx := setupPlanUser(t)
	monday := mustDate(t, "2024-01-01")

	tests := []struct {
		name string
		err  error
		save func() error
	}{
		{
			name: "unparseable weight",
			err:  tracker.ErrInvalidWeight,
			save: func() error { return svc.SaveSetWeights(ctx, monday, 0, []string{"heavy"}) },
		},
		{
			name: "negative weight",
			err:  tracker.ErrInvalidWeight,
			save: func() error { return svc.SaveSet(ctx, monday, "squat", 0, 1, ptr.Ref(-5.0)) },
		},
		{
			name: "rest day",
			err:  tracker.ErrNotFound,
			save: func() error { return svc.SaveSet(ctx, mustDate(t, "2024-01-02"), "squat", 0, 1, ptr.Ref(5.0)) },
		},
		{
			name: "exercise of another day",
			err:  tracker.ErrNotFound,
			save: func() error { return svc.SaveSet(ctx, monday, "bench", 0, 1, ptr.Ref(5.0)) },
		},
		{
			name: "position out of range",
			err:  tracker.ErrNotFound,
			save: func() error { return svc.SaveSetWeights(ctx, monday, 7, []string{"5"}) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.save(); !errors.Is(err, tt.err) {
				t.Errorf("error = %v, want %v", err, tt.err)
			}
		})
	}
}

func TestService_SelectMeal(t *testing.T) {
	t.Parallel()
	svc, ctx := setupPlanUser(t)
	monday := mustDate(t, "2024-01-01")

	if err := svc.SelectMeal(ctx, monday, plan.MealBreakfast, "eggs"); err != nil {
		t.Fatalf("SelectMeal() error = %v", err)
	}
	if err := svc.SelectMeal(ctx, monday, plan.MealBreakfast, "pancakes"); !errors.Is(err, tracker.ErrUnknownMealOption) {
		t.Errorf("SelectMeal() unknown option error = %v, want ErrUnknownMealOption", err)
	}
	if err := svc.SelectMeal(ctx, mustDate(t, "2024-01-02"), plan.MealBreakfast, "oats"); !errors.Is(err,
		tracker.ErrUnknownMealOption) {
		t.Errorf("SelectMeal() on day without menu error = %v, want ErrUnknownMealOption", err)
	}

	day, err := svc.Day(ctx, monday)
	if err != nil {
		t.Fatalf("Day() error = %v", err)
	}
	selected, ok := day.Meals[0].Selected()
	if !ok || selected.Title != "Eggs" {
		t.Errorf("selected breakfast = %+v, want Eggs", selected)
	}

	// The one week cycle repeats, so the selection of the next Monday is independent.
	next, err := svc.Day(ctx, mustDate(t, "2024-01-08"))
	if err != nil {
		t.Fatalf("Day() error = %v", err)
	}
	if len(next.Meals) == 0 || next.Meals[0].SelectedOptionID != "" {
		t.Errorf("next Monday meals = %+v, want breakfast without selection", next.Meals)
	}
}

func TestService_Week(t *testing.T) {
	t.Parallel()
	svc, ctx := setupPlanUser(t)
	if err := svc.SaveSet(ctx, mustDate(t, "2024-01-04"), "bench", 0, 2, ptr.Ref(60.0)); err != nil {
		t.Fatalf("SaveSet() error = %v", err)
	}

	week, err := svc.Week(ctx, mustDate(t, "2024-01-03"))
	if err != nil {
		t.Fatalf("Week() error = %v", err)
	}
	type row struct {
		Date       string
		Label      string
		LoggedSets int
	}
	var got []row
	for _, d := range week {
		got = append(got, row{Date: calendar.FormatDate(d.Date), Label: d.Label, LoggedSets: d.LoggedSets})
	}
	want := []row{
		{Date: "2024-01-01", Label: "Day 1 - Lower"},
		{Date: "2024-01-02"},
		{Date: "2024-01-03"},
		{Date: "2024-01-04", Label: "Day 2 - Upper", LoggedSets: 1},
		{Date: "2024-01-05"},
		{Date: "2024-01-06"},
		{Date: "2024-01-07"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Week() mismatch (-want +got):\n%s", diff)
	}
}

func TestService_Progress(t *testing.T) {
	t.Parallel()
	svc, ctx := setupPlanUser(t)

	for _, entry := range []struct {
		date   string
		weight float64
	}{
		{date: "2024-01-01", weight: 80},
		{date: "2024-01-08", weight: 88},
	} {
		if err := svc.SaveSet(ctx, mustDate(t, entry.date), "squat", 0, 1, ptr.Ref(entry.weight)); err != nil {
			t.Fatalf("SaveSet() error = %v", err)
		}
	}

	report, err := svc.Progress(ctx)
	if err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	if len(report.Blocks) != 2 {
		t.Fatalf("Progress() has %d blocks, want 2", len(report.Blocks))
	}
	squat := report.Blocks[0].Exercises[0]
	if squat.ExerciseID != "squat" || len(squat.Points) != 2 {
		t.Fatalf("squat progress = %+v", squat)
	}
	if diff := cmp.Diff(ptr.Ref(8.0), squat.Weekly.Kg); diff != "" {
		t.Errorf("weekly kg mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(ptr.Ref(10.0), squat.Weekly.Pct); diff != "" {
		t.Errorf("weekly pct mismatch (-want +got):\n%s", diff)
	}
	if squat.Monthly.Kg != nil {
		t.Errorf("monthly kg = %v, want nil without 30 days of history", *squat.Monthly.Kg)
	}
	if report.Blocks[1].HasData() {
		t.Errorf("upper block has data without logs")
	}
}

func TestService_Measurements(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)
	ctx, _ := newUser(t, db, "measurer")

	if err := svc.SaveMeasurement(ctx, tracker.Measurement{Date: mustDate(t, "2024-01-01")}); !errors.Is(err,
		tracker.ErrInvalidMeasurement) {
		t.Errorf("SaveMeasurement() empty error = %v, want ErrInvalidMeasurement", err)
	}
	if err := svc.SaveMeasurement(ctx, tracker.Measurement{
		Date:    mustDate(t, "2024-01-01"),
		WaistCm: ptr.Ref(-1.0),
	}); !errors.Is(err, tracker.ErrInvalidMeasurement) {
		t.Errorf("SaveMeasurement() negative error = %v, want ErrInvalidMeasurement", err)
	}

	for _, m := range []tracker.Measurement{
		{Date: mustDate(t, "2024-01-01"), BodyWeightKg: ptr.Ref(80.0), WaistCm: ptr.Ref(90.0)},
		{Date: mustDate(t, "2024-01-08"), BodyWeightKg: ptr.Ref(79.0)},
		// Replaces the entry above.
		{Date: mustDate(t, "2024-01-08"), BodyWeightKg: ptr.Ref(78.4), Note: "morning"},
	} {
		if err := svc.SaveMeasurement(ctx, m); err != nil {
			t.Fatalf("SaveMeasurement() error = %v", err)
		}
	}

	measurements, err := svc.Measurements(ctx)
	if err != nil {
		t.Fatalf("Measurements() error = %v", err)
	}
	want := []tracker.Measurement{
		{Date: mustDate(t, "2024-01-08"), BodyWeightKg: ptr.Ref(78.4), Note: "morning"},
		{Date: mustDate(t, "2024-01-01"), BodyWeightKg: ptr.Ref(80.0), WaistCm: ptr.Ref(90.0)},
	}
	if diff := cmp.Diff(want, measurements); diff != "" {
		t.Errorf("Measurements() mismatch (-want +got):\n%s", diff)
	}

	trends, err := svc.MeasurementTrends(ctx)
	if err != nil {
		t.Fatalf("MeasurementTrends() error = %v", err)
	}
	if len(trends) != 2 || trends[0].Name != "Body weight (kg)" || trends[1].Name != "Waist (cm)" {
		t.Fatalf("MeasurementTrends() = %+v", trends)
	}
	if diff := cmp.Diff(ptr.Ref(-1.6), trends[0].Weekly.Kg); diff != "" {
		t.Errorf("body weight weekly kg mismatch (-want +got):\n%s", diff)
	}
	if trends[1].Weekly.Kg != nil {
		t.Errorf("waist weekly kg = %v, want nil with a single point", *trends[1].Weekly.Kg)
	}
}

func TestService_ExerciseInfo(t *testing.T) {
	t.Parallel()
	svc, ctx := setupPlanUser(t)

	info, err := svc.ExerciseInfo(ctx, "rdl")
	if err != nil {
		t.Fatalf("ExerciseInfo() error = %v", err)
	}
	if info.Generated || !strings.Contains(info.DescriptionMarkdown, "Romanian deadlift") {
		t.Errorf("ExerciseInfo() = %+v, want placeholder description", info)
	}
	if info.Exercise.Notes != "Slow eccentric" {
		t.Errorf("Exercise.Notes = %q", info.Exercise.Notes)
	}
	if _, err = svc.ExerciseInfo(ctx, "missing"); !errors.Is(err, tracker.ErrNotFound) {
		t.Errorf("ExerciseInfo() unknown error = %v, want ErrNotFound", err)
	}
}

func TestService_FeatureFlags(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)
	ctx, _ := newUser(t, db, "admin")

	enabled, err := svc.IsMaintenanceModeEnabled(ctx)
	if err != nil || enabled {
		t.Fatalf("IsMaintenanceModeEnabled() = %v, %v, want false", enabled, err)
	}
	if err = svc.SetFeatureFlag(ctx, tracker.FeatureFlag{Name: tracker.MaintenanceModeFlag, Enabled: true}); err != nil {
		t.Fatalf("SetFeatureFlag() error = %v", err)
	}
	if enabled, err = svc.IsMaintenanceModeEnabled(ctx); err != nil || !enabled {
		t.Errorf("IsMaintenanceModeEnabled() = %v, %v, want true", enabled, err)
	}
	flags, err := svc.ListFeatureFlags(ctx)
	if err != nil {
		t.Fatalf("ListFeatureFlags() error = %v", err)
	}
	if diff := cmp.Diff([]tracker.FeatureFlag{{Name: tracker.MaintenanceModeFlag, Enabled: true}}, flags); diff != "" {
		t.Errorf("ListFeatureFlags() mismatch (-want +got):\n%s", diff)
	}

	flag, err := svc.ToggleFeatureFlag(ctx, tracker.MaintenanceModeFlag)
	if err != nil {
		t.Fatalf("ToggleFeatureFlag() error = %v", err)
	}
	if flag.Enabled {
		t.Error("ToggleFeatureFlag() left maintenance mode enabled")
	}
	if _, err = svc.ToggleFeatureFlag(ctx, "no_such_flag"); !errors.Is(err, tracker.ErrNotFound) {
		t.Errorf("ToggleFeatureFlag(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestService_ExportUserDB(t *testing.T) {
	t.Parallel()
	svc, ctx := setupPlanUser(t)
	if err := svc.SaveSet(ctx, mustDate(t, "2024-01-01"), "squat", 0, 1, ptr.Ref(100.0)); err != nil {
		t.Fatalf("SaveSet() error = %v", err)
	}

	path, err := svc.ExportUserDB(ctx, t.TempDir())
	if err != nil {
		t.Fatalf("ExportUserDB() error = %v", err)
	}
	stat, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat export: %v", err)
	}
	if stat.Size() == 0 {
		t.Error("exported database is empty")
	}
}
