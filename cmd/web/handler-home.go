package main

import (
	"net/http"
	"time"

	"github.com/myrjola/planfit/internal/calendar"
	"github.com/myrjola/planfit/internal/contexthelpers"
	"github.com/myrjola/planfit/internal/errors"
	"github.com/myrjola/planfit/internal/tracker"
)

type homeTemplateData struct {
	BaseTemplateData
	HasPlan  bool
	PlanName string
	// Days is the Monday to Sunday week being viewed.
	Days []weekDayView
	// PreviousWeek and NextWeek are dates in the neighbouring weeks for navigation.
	PreviousWeek time.Time
	NextWeek     time.Time
	// NextTraining is zero when no training day is scheduled.
	NextTraining time.Time
}

type weekDayView struct {
	tracker.DaySummary
	IsToday bool
	IsPast  bool
}

func toWeekDays(summaries []tracker.DaySummary, today time.Time) []weekDayView {
	days := make([]weekDayView, len(summaries))
	for i, s := range summaries {
		days[i] = weekDayView{
			DaySummary: s,
			IsToday:    s.Date.Equal(today),
			IsPast:     s.Date.Before(today),
		}
	}
	return days
}

// home shows the landing page to anonymous users and the week overview to signed-in users. The viewed week can be
// chosen with the date query parameter.
func (app *application) home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data := homeTemplateData{
		BaseTemplateData: newBaseTemplateData(r),
	}
	if !contexthelpers.IsAuthenticated(ctx) {
		app.render(w, r, http.StatusOK, "home", data)
		return
	}

	date := data.Today
	if q := r.URL.Query().Get("date"); q != "" {
		var err error
		if date, err = calendar.ParseDate(q); err != nil {
			app.notFound(w, r)
			return
		}
	}

	summaries, err := app.tracker.Week(ctx, date)
	if err != nil {
		app.serverError(w, r, errors.Wrap(err, "load week"))
		return
	}
	data.Days = toWeekDays(summaries, data.Today)
	data.PreviousWeek = calendar.StartOfWeek(date).AddDate(0, 0, -7)
	data.NextWeek = calendar.StartOfWeek(date).AddDate(0, 0, 7)

	today, err := app.tracker.Day(ctx, data.Today)
	if err != nil {
		app.serverError(w, r, errors.Wrap(err, "load today"))
		return
	}
	data.HasPlan = today.HasPlan
	data.PlanName = today.Plan.Name
	data.NextTraining = today.NextTrainingDate

	app.render(w, r, http.StatusOK, "home", data)
}
