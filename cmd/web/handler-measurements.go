package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/myrjola/planfit/internal/calendar"
	"github.com/myrjola/planfit/internal/errors"
	"github.com/myrjola/planfit/internal/progress"
	"github.com/myrjola/planfit/internal/tracker"
)

type measurementsTemplateData struct {
	BaseTemplateData
	Measurements []tracker.Measurement
	Trends       []progress.Trend
	FormError    string
}

// measurementInputs maps the form field names onto the measured values.
func measurementInputs(m *tracker.Measurement) []struct {
	name  string
	value **float64
} {
	return []struct {
		name  string
		value **float64
	}{
		{name: "body_weight", value: &m.BodyWeightKg},
		{name: "waist", value: &m.WaistCm},
		{name: "hip", value: &m.HipCm},
		{name: "chest", value: &m.ChestCm},
		{name: "arm", value: &m.ArmCm},
		{name: "thigh", value: &m.ThighCm},
	}
}

func (app *application) renderMeasurements(w http.ResponseWriter, r *http.Request, status int, formError string) {
	ctx := r.Context()
	measurements, err := app.tracker.Measurements(ctx)
	if err != nil {
		app.serverError(w, r, errors.Wrap(err, "list measurements"))
		return
	}
	trends, err := app.tracker.MeasurementTrends(ctx)
	if err != nil {
		app.serverError(w, r, errors.Wrap(err, "measurement trends"))
		return
	}
	data := measurementsTemplateData{
		BaseTemplateData: newBaseTemplateData(r),
		Measurements:     measurements,
		Trends:           trends,
		FormError:        formError,
	}
	app.render(w, r, status, "measurements", data)
}

func (app *application) measurementsGET(w http.ResponseWriter, r *http.Request) {
	app.renderMeasurements(w, r, http.StatusOK, "")
}

func (app *application) measurementsPOST(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		app.serverError(w, r, errors.Wrap(err, "parse form"))
		return
	}

	var (
		m   tracker.Measurement
		err error
	)
	if m.Date, err = calendar.ParseDate(r.PostForm.Get("date")); err != nil {
		app.renderMeasurements(w, r, http.StatusBadRequest, "Pick the date of the measurement.")
		return
	}
	for _, input := range measurementInputs(&m) {
		v, ok := progress.ParseWeight(r.PostForm.Get(input.name))
		if !ok {
			app.renderMeasurements(w, r, http.StatusBadRequest,
				fmt.Sprintf("%q is not a number.", r.PostForm.Get(input.name)))
			return
		}
		*input.value = v
	}
	m.Note = strings.TrimSpace(r.PostForm.Get("note"))

	err = app.tracker.SaveMeasurement(r.Context(), m)
	switch {
	case errors.Is(err, tracker.ErrInvalidMeasurement):
		app.renderMeasurements(w, r, http.StatusBadRequest, "Enter at least one positive measurement.")
		return
	case err != nil:
		app.serverError(w, r, errors.Wrap(err, "save measurement"))
		return
	}
	redirect(w, r, "/measurements")
}
