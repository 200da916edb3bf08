package main

import (
	"net/http"
	"time"

	"github.com/myrjola/planfit/internal/calendar"
	"github.com/myrjola/planfit/internal/errors"
	"github.com/myrjola/planfit/internal/tracker"
)

// exerciseInfoTemplateData contains data for the exercise info template.
type exerciseInfoTemplateData struct {
	BaseTemplateData
	Info tracker.ExerciseInfo
	// BackDate is the day the user came from. Zero links back to the home page.
	BackDate time.Time
}

// exerciseInfoGET shows the description of a planned exercise.
func (app *application) exerciseInfoGET(w http.ResponseWriter, r *http.Request) {
	info, err := app.tracker.ExerciseInfo(r.Context(), r.PathValue("exerciseID"))
	switch {
	case errors.Is(err, tracker.ErrNotFound), errors.Is(err, tracker.ErrNoActivePlan):
		app.notFound(w, r)
		return
	case err != nil:
		app.serverError(w, r, errors.Wrap(err, "exercise info"))
		return
	}

	source := "placeholder"
	if info.Generated {
		source = "generated"
	}
	app.metrics.DescriptionServed(source)

	data := exerciseInfoTemplateData{
		BaseTemplateData: newBaseTemplateData(r),
		Info:             info,
	}
	if back, parseErr := calendar.ParseDate(r.URL.Query().Get("date")); parseErr == nil {
		data.BackDate = back
	}

	app.render(w, r, http.StatusOK, "exercise-info", data)
}
