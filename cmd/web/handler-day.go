package main

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/myrjola/planfit/internal/errors"
	"github.com/myrjola/planfit/internal/plan"
	"github.com/myrjola/planfit/internal/tracker"
)

type dayTemplateData struct {
	BaseTemplateData
	Day tracker.DayView
	// FormError is shown above the forms when a submission was rejected.
	FormError string
}

func (app *application) renderDay(w http.ResponseWriter, r *http.Request, status int, date time.Time, formError string) {
	day, err := app.tracker.Day(r.Context(), date)
	if err != nil {
		app.serverError(w, r, errors.Wrap(err, "load day"))
		return
	}
	data := dayTemplateData{
		BaseTemplateData: newBaseTemplateData(r),
		Day:              day,
		FormError:        formError,
	}
	app.render(w, r, status, "day", data)
}

func (app *application) dayGET(w http.ResponseWriter, r *http.Request) {
	date, ok := app.parseDateParam(w, r)
	if !ok {
		return
	}
	app.renderDay(w, r, http.StatusOK, date, "")
}

// daySetsPOST saves the weights of every set of one exercise. The inputs are named weight and ordered by set number.
func (app *application) daySetsPOST(w http.ResponseWriter, r *http.Request) {
	date, ok := app.parseDateParam(w, r)
	if !ok {
		return
	}
	position, ok := app.parseIntParam(w, r, "position")
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		app.serverError(w, r, errors.Wrap(err, "parse form"))
		return
	}
	weights := r.PostForm["weight"]

	err := app.tracker.SaveSetWeights(r.Context(), date, position, weights)
	switch {
	case errors.Is(err, tracker.ErrInvalidWeight):
		app.logger.LogAttrs(r.Context(), slog.LevelDebug, "rejected set weights", errors.SlogError(err))
		app.renderDay(w, r, http.StatusBadRequest, date, "Weights must be positive numbers such as 42.5.")
		return
	case errors.Is(err, tracker.ErrNotFound), errors.Is(err, tracker.ErrNoActivePlan):
		app.notFound(w, r)
		return
	case err != nil:
		app.serverError(w, r, errors.Wrap(err, "save set weights"))
		return
	}

	for _, weight := range weights {
		if strings.TrimSpace(weight) != "" {
			app.metrics.SetLogged()
		}
	}
	redirect(w, r, dayPath(date))
}

func (app *application) dayNotePOST(w http.ResponseWriter, r *http.Request) {
	date, ok := app.parseDateParam(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		app.serverError(w, r, errors.Wrap(err, "parse form"))
		return
	}

	err := app.tracker.SaveNote(r.Context(), date, r.PostForm.Get("note"))
	switch {
	case errors.Is(err, tracker.ErrNotFound), errors.Is(err, tracker.ErrNoActivePlan):
		app.notFound(w, r)
		return
	case err != nil:
		app.serverError(w, r, errors.Wrap(err, "save note"))
		return
	}
	redirect(w, r, dayPath(date))
}

// dayMealPOST picks the menu option of a meal. An empty option_id clears the choice.
func (app *application) dayMealPOST(w http.ResponseWriter, r *http.Request) {
	date, ok := app.parseDateParam(w, r)
	if !ok {
		return
	}
	mealType, err := plan.ParseMealType(r.PathValue("mealType"))
	if err != nil {
		app.notFound(w, r)
		return
	}
	if err = r.ParseForm(); err != nil {
		app.serverError(w, r, errors.Wrap(err, "parse form"))
		return
	}
	optionID := r.PostForm.Get("option_id")

	err = app.tracker.SelectMeal(r.Context(), date, mealType, optionID)
	switch {
	case errors.Is(err, tracker.ErrUnknownMealOption):
		app.renderDay(w, r, http.StatusBadRequest, date, "The chosen menu option is not on today's menu.")
		return
	case errors.Is(err, tracker.ErrNoActivePlan):
		app.notFound(w, r)
		return
	case err != nil:
		app.serverError(w, r, errors.Wrap(err, "select meal"))
		return
	}

	if optionID != "" {
		app.metrics.MealSelected()
	}
	redirect(w, r, dayPath(date))
}
