// Package tracker persists plans, settings and the user's logs and combines them with the calendar resolver,
// the plan day selector and the progress aggregator into the views the web application renders.
package tracker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/myrjola/planfit/internal/calendar"
	"github.com/myrjola/planfit/internal/contexthelpers"
	"github.com/myrjola/planfit/internal/errors"
	"github.com/myrjola/planfit/internal/plan"
	"github.com/myrjola/planfit/internal/progress"
	"github.com/myrjola/planfit/internal/sqlite"
	"golang.org/x/sync/errgroup"
)

// Service handles the business logic of following a plan.
//
// All methods except the admin ones operate on the user authenticated in the context.
type Service struct {
	db           *sqlite.Database
	repo         *repository
	logger       *slog.Logger
	openaiAPIKey string
	now          func() time.Time
}

// NewService creates a new tracker service. Exercise descriptions are generated only when openaiAPIKey is set.
func NewService(db *sqlite.Database, logger *slog.Logger, openaiAPIKey string) *Service {
	factory := newRepositoryFactory(db, logger)
	return &Service{
		db:           db,
		repo:         factory.newRepository(),
		logger:       logger,
		openaiAPIKey: openaiAPIKey,
		now:          time.Now,
	}
}

// ImportPlanDocument parses a YAML plan document and stores it together with its source.
func (s *Service) ImportPlanDocument(ctx context.Context, r io.Reader) (int, error) {
	source, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("read plan document: %w", err)
	}
	p, name, err := plan.ParseDocument(bytes.NewReader(source))
	if err != nil {
		return 0, fmt.Errorf("parse plan document: %w: %w", ErrInvalidDocument, err)
	}
	if name == "" {
		name = "Plan imported " + calendar.FormatDate(s.now())
	}
	planID, err := s.repo.plans.Create(ctx, name, string(source), p)
	if err != nil {
		return 0, fmt.Errorf("import plan: %w", err)
	}
	return planID, nil
}

// ImportPlan stores an already normalized plan and returns its ID.
func (s *Service) ImportPlan(ctx context.Context, name string, p plan.Plan) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("plan without name: %w", plan.ErrInvalidPlan)
	}
	if err := p.Validate(); err != nil {
		return 0, fmt.Errorf("validate plan: %w", err)
	}
	planID, err := s.repo.plans.Create(ctx, name, "", p)
	if err != nil {
		return 0, fmt.Errorf("import plan: %w", err)
	}
	return planID, nil
}

// ListPlans returns all imported plans, newest first.
func (s *Service) ListPlans(ctx context.Context) ([]PlanInfo, error) {
	plans, err := s.repo.plans.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return plans, nil
}

// ListUsers returns all users with their active plan.
func (s *Service) ListUsers(ctx context.Context) ([]UserInfo, error) {
	users, err := s.repo.plans.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// AssignPlan makes planID the single active plan of userID.
func (s *Service) AssignPlan(ctx context.Context, userID, planID int) error {
	if err := s.repo.plans.Assign(ctx, userID, planID); err != nil {
		return fmt.Errorf("assign plan %d to user %d: %w", planID, userID, err)
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "plan assigned", slog.Int("plan_id", planID),
		slog.Int("assignee_id", userID))
	return nil
}

// ActivePlan returns the plan assigned to the user or ErrNoActivePlan.
func (s *Service) ActivePlan(ctx context.Context) (PlanInfo, plan.Plan, error) {
	info, p, err := s.repo.plans.Active(ctx)
	if err != nil {
		return PlanInfo{}, plan.Plan{}, fmt.Errorf("active plan: %w", err)
	}
	return info, p, nil
}

// Settings returns the calendar settings, creating the defaults on first access.
//
// The default nutrition cycle starts on Monday of the current week and the user trains on the first N
// weekdays where N is the number of training days in the active plan.
func (s *Service) Settings(ctx context.Context) (plan.Settings, error) {
	settings, err := s.repo.settings.Get(ctx)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return plan.Settings{}, fmt.Errorf("get settings: %w", err)
	}

	trainingDayCount := defaultTrainingDayCount
	_, p, err := s.ActivePlan(ctx)
	switch {
	case errors.Is(err, ErrNoActivePlan):
	case err != nil:
		return plan.Settings{}, err
	case len(p.TrainingDays) > 0:
		trainingDayCount = len(p.TrainingDays)
	}

	defaults := plan.Settings{
		NutritionStart: calendar.StartOfWeek(calendar.Date(s.now())),
		TrainingDays:   calendar.DefaultTrainingWeekdays(trainingDayCount),
	}
	if settings, err = s.repo.settings.CreateIfMissing(ctx, defaults); err != nil {
		return plan.Settings{}, fmt.Errorf("create default settings: %w", err)
	}
	return settings, nil
}

// SaveSettings validates and stores the settings. At least one training weekday is required.
func (s *Service) SaveSettings(ctx context.Context, settings plan.Settings) error {
	settings.TrainingDays = calendar.NormalizeWeekdays(settings.TrainingDays)
	if len(settings.TrainingDays) == 0 {
		return fmt.Errorf("no training weekdays: %w", ErrInvalidSettings)
	}
	if settings.NutritionStart.IsZero() {
		return fmt.Errorf("no nutrition start date: %w", ErrInvalidSettings)
	}
	settings.NutritionStart = calendar.Date(settings.NutritionStart)
	if err := s.repo.settings.Set(ctx, settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// planContext is the active plan together with the settings it is resolved with.
type planContext struct {
	info     PlanInfo
	plan     plan.Plan
	hasPlan  bool
	settings plan.Settings
}

// loadPlanContext loads the active plan and the settings concurrently. A missing plan is not an error.
func (s *Service) loadPlanContext(ctx context.Context) (planContext, error) {
	var pc planContext
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pc.info, pc.plan, err = s.ActivePlan(gctx)
		if errors.Is(err, ErrNoActivePlan) {
			return nil
		}
		pc.hasPlan = err == nil
		return err
	})
	g.Go(func() error {
		var err error
		pc.settings, err = s.Settings(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return planContext{}, err //nolint:wrapcheck // wrapped by the goroutines.
	}
	return pc, nil
}

// Day returns everything scheduled and logged on date.
func (s *Service) Day(ctx context.Context, date time.Time) (DayView, error) {
	date = calendar.Date(date)

	var (
		pc         planContext
		rec        progress.Record
		selections map[plan.MealType]string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pc, err = s.loadPlanContext(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		rec, err = s.repo.sessions.Get(gctx, date)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		var err error
		selections, err = s.repo.meals.Selections(gctx, date)
		return err
	})
	if err := g.Wait(); err != nil {
		return DayView{}, fmt.Errorf("load day %s: %w", calendar.FormatDate(date), err)
	}

	view := DayView{
		Date:     date,
		Weekday:  calendar.DayOfWeek(date),
		HasPlan:  pc.hasPlan,
		Plan:     pc.info,
		Position: -1,
		Note:     rec.Note,
	}

	trainingDays := pc.settings.TrainingDays
	if pc.hasPlan {
		resolution, err := plan.Resolve(pc.plan, date, pc.settings)
		if err != nil {
			return DayView{}, fmt.Errorf("resolve day %s: %w", calendar.FormatDate(date), err)
		}
		view.Position = resolution.Position
		view.TrainingDay = resolution.TrainingDay
		if td := resolution.TrainingDay; td != nil {
			for i, ex := range td.Exercises {
				view.Exercises = append(view.Exercises, ExerciseView{
					Position: i,
					Exercise: ex,
					Sets:     buildSetViews(ex, i, rec.Sets),
				})
			}
		}
		if nd := resolution.NutritionDay; nd != nil {
			for _, mealType := range plan.MealTypes() {
				if options := nd.Meals[mealType]; len(options) > 0 {
					view.Meals = append(view.Meals, MealView{
						Type:             mealType,
						Options:          options,
						SelectedOptionID: selections[mealType],
					})
				}
			}
		}
		if cycleWeeks := pc.plan.CycleWeeks(); cycleWeeks > 0 {
			if view.NutritionWeek, err = calendar.NutritionWeekIndex(date, pc.settings.NutritionStart,
				cycleWeeks); err != nil {
				return DayView{}, fmt.Errorf("nutrition week: %w", err)
			}
		}
		trainingDays = plan.EffectiveTrainingDays(pc.plan, pc.settings)
	}

	next, weekday, err := calendar.NextTrainingDate(date, trainingDays)
	switch {
	case errors.Is(err, calendar.ErrNoTrainingDays):
	case err != nil:
		return DayView{}, fmt.Errorf("next training date: %w", err)
	default:
		view.NextTrainingDate = next
		view.NextTrainingWeekday = weekday
	}
	return view, nil
}

// buildSetViews lays out the planned sets of ex and fills in the logged weights. Sets logged beyond the
// planned series are kept.
func buildSetViews(ex plan.Exercise, position int, logged []progress.SetLog) []SetView {
	sets := make([]SetView, ex.SeriesOrDefault(defaultSeries))
	for i := range sets {
		sets[i].Number = i + 1
	}
	for _, set := range logged {
		if set.ExerciseID != ex.ID && (set.ExerciseID != "" || set.ExerciseIndex != position) {
			continue
		}
		if set.SetNumber <= 0 {
			continue
		}
		for len(sets) < set.SetNumber {
			sets = append(sets, SetView{Number: len(sets) + 1, WeightKg: nil})
		}
		sets[set.SetNumber-1].WeightKg = set.WeightKg
	}
	return sets
}

// Week summarises the Monday to Sunday week containing date.
func (s *Service) Week(ctx context.Context, date time.Time) ([]DaySummary, error) {
	dates := calendar.WeekDates(date)

	var (
		pc         planContext
		loggedSets map[string]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pc, err = s.loadPlanContext(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		loggedSets, err = s.repo.sessions.LoggedSets(gctx, dates[0], dates[len(dates)-1])
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load week %s: %w", calendar.FormatDate(dates[0]), err)
	}

	summaries := make([]DaySummary, 0, len(dates))
	for _, d := range dates {
		summary := DaySummary{
			Date:       d,
			Weekday:    calendar.DayOfWeek(d),
			LoggedSets: loggedSets[calendar.FormatDate(d)],
		}
		if pc.hasPlan {
			resolution, err := plan.Resolve(pc.plan, d, pc.settings)
			if err != nil {
				return nil, fmt.Errorf("resolve day %s: %w", calendar.FormatDate(d), err)
			}
			if td := resolution.TrainingDay; td != nil {
				summary.DayIndex = td.DayIndex
				summary.Label = td.Label
				if summary.Label == "" {
					summary.Label = fmt.Sprintf("Day %d", td.DayIndex)
				}
			}
			if nd := resolution.NutritionDay; nd != nil {
				for _, options := range nd.Meals {
					if len(options) > 0 {
						summary.MealsPlanned++
					}
				}
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// resolveTrainingDay returns the active plan and the training day scheduled on date. Rest days are ErrNotFound.
func (s *Service) resolveTrainingDay(ctx context.Context, date time.Time) (PlanInfo, *plan.TrainingDay, error) {
	pc, err := s.loadPlanContext(ctx)
	if err != nil {
		return PlanInfo{}, nil, err
	}
	if !pc.hasPlan {
		return PlanInfo{}, nil, ErrNoActivePlan
	}
	td := plan.SelectTrainingDay(pc.plan, date, pc.settings)
	if td == nil {
		return PlanInfo{}, nil, fmt.Errorf("rest day %s: %w", calendar.FormatDate(date), ErrNotFound)
	}
	return pc.info, td, nil
}

func validWeight(weight *float64) bool {
	return weight == nil || (!math.IsNaN(*weight) && !math.IsInf(*weight, 0) && *weight >= 0)
}

// setWeight updates the weight of a set in rec and reports whether anything changed. Cleared weights are not
// stored for sets that were never logged.
func setWeight(rec *progress.Record, exerciseID string, position, setNumber int, weight *float64) bool {
	for i, set := range rec.Sets {
		if set.ExerciseID == exerciseID && set.SetNumber == setNumber {
			if sameWeight(set.WeightKg, weight) && set.ExerciseIndex == position {
				return false
			}
			rec.Sets[i].WeightKg = weight
			rec.Sets[i].ExerciseIndex = position
			return true
		}
	}
	if weight == nil {
		return false
	}
	rec.Sets = append(rec.Sets, progress.SetLog{
		ExerciseID:    exerciseID,
		ExerciseIndex: position,
		SetNumber:     setNumber,
		WeightKg:      weight,
	})
	return true
}

// SaveSet stores the weight of one set. The session is created on the first logged set with the day index the
// plan resolves for the date, so history survives later plan or settings changes.
func (s *Service) SaveSet(
	ctx context.Context,
	date time.Time,
	exerciseID string,
	position int,
	setNumber int,
	weight *float64,
) error {
	date = calendar.Date(date)
	if setNumber <= 0 {
		return fmt.Errorf("set number %d: %w", setNumber, ErrNotFound)
	}
	if !validWeight(weight) {
		return fmt.Errorf("set %d: %w", setNumber, ErrInvalidWeight)
	}
	info, td, err := s.resolveTrainingDay(ctx, date)
	if err != nil {
		return fmt.Errorf("save set: %w", err)
	}
	if position < 0 || position >= len(td.Exercises) || td.Exercises[position].ID != exerciseID {
		return fmt.Errorf("exercise %s at position %d: %w", exerciseID, position, ErrNotFound)
	}
	if err = s.repo.sessions.Update(ctx, date, td.DayIndex, info.ID, func(rec *progress.Record) (bool, error) {
		return setWeight(rec, exerciseID, position, setNumber, weight), nil
	}); err != nil {
		return fmt.Errorf("save set: %w", err)
	}
	return nil
}

// SaveSetWeights parses the weights entered for the exercise at position leniently and saves them as sets 1..N
// in a single transaction. Blank inputs clear the set.
func (s *Service) SaveSetWeights(ctx context.Context, date time.Time, position int, inputs []string) error {
	date = calendar.Date(date)
	weights := make([]*float64, len(inputs))
	for i, input := range inputs {
		weight, ok := progress.ParseWeight(input)
		if !ok || !validWeight(weight) {
			return fmt.Errorf("set %d weight %q: %w", i+1, input, ErrInvalidWeight)
		}
		weights[i] = weight
	}

	info, td, err := s.resolveTrainingDay(ctx, date)
	if err != nil {
		return fmt.Errorf("save set weights: %w", err)
	}
	if position < 0 || position >= len(td.Exercises) {
		return fmt.Errorf("exercise position %d: %w", position, ErrNotFound)
	}
	exerciseID := td.Exercises[position].ID

	if err = s.repo.sessions.Update(ctx, date, td.DayIndex, info.ID, func(rec *progress.Record) (bool, error) {
		var updated bool
		for i, weight := range weights {
			updated = setWeight(rec, exerciseID, position, i+1, weight) || updated
		}
		return updated, nil
	}); err != nil {
		return fmt.Errorf("save set weights: %w", err)
	}
	return nil
}

// SaveNote stores the free text note of the training session on date.
func (s *Service) SaveNote(ctx context.Context, date time.Time, note string) error {
	date = calendar.Date(date)
	note = strings.TrimSpace(note)
	info, td, err := s.resolveTrainingDay(ctx, date)
	if err != nil {
		return fmt.Errorf("save note: %w", err)
	}
	if err = s.repo.sessions.Update(ctx, date, td.DayIndex, info.ID, func(rec *progress.Record) (bool, error) {
		if rec.Note == note {
			return false, nil
		}
		rec.Note = note
		return true, nil
	}); err != nil {
		return fmt.Errorf("save note: %w", err)
	}
	return nil
}

// SelectMeal picks a menu option for the meal on date. The option must exist in the nutrition day the plan
// resolves for the date. An empty optionID clears the selection.
func (s *Service) SelectMeal(ctx context.Context, date time.Time, mealType plan.MealType, optionID string) error {
	date = calendar.Date(date)
	if !mealType.Valid() {
		return fmt.Errorf("meal type %q: %w", mealType, ErrUnknownMealOption)
	}
	pc, err := s.loadPlanContext(ctx)
	if err != nil {
		return fmt.Errorf("select meal: %w", err)
	}
	if !pc.hasPlan {
		return ErrNoActivePlan
	}
	nd, err := plan.SelectNutritionDay(pc.plan, date, pc.settings)
	if err != nil {
		return fmt.Errorf("select nutrition day: %w", err)
	}
	if nd == nil {
		return fmt.Errorf("no nutrition day on %s: %w", calendar.FormatDate(date), ErrUnknownMealOption)
	}
	if optionID != "" {
		if _, ok := nd.Option(mealType, optionID); !ok {
			return fmt.Errorf("option %s of %s: %w", optionID, mealType, ErrUnknownMealOption)
		}
	}
	if err = s.repo.meals.Select(ctx, date, mealType, optionID); err != nil {
		return fmt.Errorf("select meal: %w", err)
	}
	return nil
}

// Progress aggregates the whole training history against the active plan.
func (s *Service) Progress(ctx context.Context) (progress.Report, error) {
	var (
		pc      planContext
		records []progress.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pc, err = s.loadPlanContext(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		records, err = s.repo.sessions.List(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return progress.Report{}, fmt.Errorf("load progress: %w", err)
	}
	if !pc.hasPlan {
		return progress.Report{}, ErrNoActivePlan
	}
	return progress.Build(pc.plan, pc.settings, records), nil
}

// ExerciseInfo returns the description of an exercise in the active plan. Missing descriptions are generated
// once and shared by every exercise with the same name.
func (s *Service) ExerciseInfo(ctx context.Context, exerciseID string) (ExerciseInfo, error) {
	_, p, err := s.ActivePlan(ctx)
	if err != nil {
		return ExerciseInfo{}, err
	}
	ex, ok := p.Exercise(exerciseID)
	if !ok {
		return ExerciseInfo{}, fmt.Errorf("exercise %s: %w", exerciseID, ErrNotFound)
	}

	stored, err := s.repo.descriptions.Get(ctx, ex.Name)
	switch {
	case err == nil && (stored.generated || s.openaiAPIKey == ""):
		return ExerciseInfo{Exercise: ex, DescriptionMarkdown: stored.markdown, Generated: stored.generated}, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return ExerciseInfo{}, fmt.Errorf("get description: %w", err)
	}

	description := s.generateDescription(ctx, ex)
	if err = s.repo.descriptions.Save(ctx, ex.Name, description); err != nil {
		return ExerciseInfo{}, fmt.Errorf("save description: %w", err)
	}
	return ExerciseInfo{Exercise: ex, DescriptionMarkdown: description.markdown, Generated: description.generated}, nil
}

// generateDescription uses AI generation when available and falls back to a placeholder on any failure.
func (s *Service) generateDescription(ctx context.Context, ex plan.Exercise) exerciseDescription {
	if s.openaiAPIKey == "" {
		return exerciseDescription{markdown: minimalDescription(ex), generated: false}
	}
	markdown, err := newDescriptionGenerator(s.openaiAPIKey).Generate(ctx, ex)
	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "failed to generate exercise description",
			errors.SlogError(err), slog.String("exercise", ex.Name))
		return exerciseDescription{markdown: minimalDescription(ex), generated: false}
	}
	return exerciseDescription{markdown: markdown, generated: true}
}

// Ping checks that both database connections answer.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.db.ReadWrite.PingContext(ctx); err != nil {
		return fmt.Errorf("ping read-write database: %w", err)
	}
	if err := s.db.ReadOnly.PingContext(ctx); err != nil {
		return fmt.Errorf("ping read-only database: %w", err)
	}
	return nil
}

// IsMaintenanceModeEnabled reports whether the maintenance mode feature flag is on.
func (s *Service) IsMaintenanceModeEnabled(ctx context.Context) (bool, error) {
	flag, err := s.repo.featureFlags.Get(ctx, MaintenanceModeFlag)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get maintenance mode flag: %w", err)
	}
	return flag.Enabled, nil
}

// ListFeatureFlags returns all feature flags.
func (s *Service) ListFeatureFlags(ctx context.Context) ([]FeatureFlag, error) {
	flags, err := s.repo.featureFlags.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list feature flags: %w", err)
	}
	return flags, nil
}

// SetFeatureFlag creates or updates a feature flag.
func (s *Service) SetFeatureFlag(ctx context.Context, flag FeatureFlag) error {
	if err := s.repo.featureFlags.Set(ctx, flag); err != nil {
		return fmt.Errorf("set feature flag: %w", err)
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "feature flag changed", slog.String("flag", flag.Name),
		slog.Bool("enabled", flag.Enabled))
	return nil
}

// ToggleFeatureFlag flips an existing feature flag and returns its new state.
func (s *Service) ToggleFeatureFlag(ctx context.Context, name string) (FeatureFlag, error) {
	flag, err := s.repo.featureFlags.Toggle(ctx, name)
	if err != nil {
		return FeatureFlag{}, fmt.Errorf("toggle feature flag %s: %w", name, err)
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "feature flag changed", slog.String("flag", flag.Name),
		slog.Bool("enabled", flag.Enabled))
	return flag, nil
}

// ExportUserDB writes the user's personal data into a SQLite file under dir and returns its path.
func (s *Service) ExportUserDB(ctx context.Context, dir string) (string, error) {
	userID := contexthelpers.AuthenticatedUserID(ctx)
	if userID == 0 {
		return "", fmt.Errorf("export anonymous user: %w", ErrNotFound)
	}
	path, err := s.db.ExportUserDB(ctx, userID, dir)
	if err != nil {
		return "", fmt.Errorf("export user db: %w", err)
	}
	return path, nil
}
