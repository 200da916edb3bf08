package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/myrjola/planfit/internal/calendar"
	"github.com/myrjola/planfit/internal/contexthelpers"
	"github.com/myrjola/planfit/internal/errors"
	"github.com/myrjola/planfit/internal/plan"
	"github.com/myrjola/planfit/internal/tracker"
)

type weekdayOption struct {
	Symbol  string
	Name    string
	Checked bool
}

type settingsTemplateData struct {
	BaseTemplateData
	NutritionStart time.Time
	Weekdays       []weekdayOption
	// PlanName is empty without an active plan.
	PlanName         string
	TrainingDayCount int
	FormError        string
}

func toWeekdayOptions(selected []calendar.Weekday) []weekdayOption {
	options := make([]weekdayOption, 0, len(calendar.Weekdays()))
	for _, wd := range calendar.Weekdays() {
		options = append(options, weekdayOption{
			Symbol:  wd.String(),
			Name:    wd.Name(),
			Checked: calendar.ContainsWeekday(selected, wd),
		})
	}
	return options
}

func (app *application) renderSettings(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	settings plan.Settings,
	formError string,
) {
	data := settingsTemplateData{
		BaseTemplateData: newBaseTemplateData(r),
		NutritionStart:   settings.NutritionStart,
		Weekdays:         toWeekdayOptions(settings.TrainingDays),
		FormError:        formError,
	}
	info, _, err := app.tracker.ActivePlan(r.Context())
	switch {
	case errors.Is(err, tracker.ErrNoActivePlan):
	case err != nil:
		app.serverError(w, r, errors.Wrap(err, "active plan"))
		return
	default:
		data.PlanName = info.Name
		data.TrainingDayCount = info.TrainingDayCount
	}
	app.render(w, r, status, "settings", data)
}

func (app *application) settingsGET(w http.ResponseWriter, r *http.Request) {
	settings, err := app.tracker.Settings(r.Context())
	if err != nil {
		app.serverError(w, r, errors.Wrap(err, "get settings"))
		return
	}
	app.renderSettings(w, r, http.StatusOK, settings, "")
}

// settingsPOST stores the nutrition cycle start and the training weekdays. The weekdays are checkboxes named
// training_day with the weekday symbol as value.
func (app *application) settingsPOST(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		app.serverError(w, r, errors.Wrap(err, "parse form"))
		return
	}

	var settings plan.Settings
	start, startErr := calendar.ParseDate(r.PostForm.Get("nutrition_start"))
	if startErr == nil {
		settings.NutritionStart = start
	}
	for _, symbol := range r.PostForm["training_day"] {
		wd, err := calendar.ParseWeekday(symbol)
		if err != nil {
			app.renderSettings(w, r, http.StatusBadRequest, settings, fmt.Sprintf("Unknown weekday %q.", symbol))
			return
		}
		settings.TrainingDays = append(settings.TrainingDays, wd)
	}
	if startErr != nil {
		app.renderSettings(w, r, http.StatusBadRequest, settings, "Pick the start date of the nutrition cycle.")
		return
	}

	err := app.tracker.SaveSettings(r.Context(), settings)
	switch {
	case errors.Is(err, tracker.ErrInvalidSettings):
		app.renderSettings(w, r, http.StatusBadRequest, settings, "Choose at least one training day.")
		return
	case err != nil:
		app.serverError(w, r, errors.Wrap(err, "save settings"))
		return
	}
	redirect(w, r, "/")
}

func (app *application) deleteUserPOST(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// DeleteUser also signs the user out.
	if err := app.webAuthnHandler.DeleteUser(ctx, contexthelpers.AuthenticatedUserID(ctx)); err != nil {
		app.serverError(w, r, errors.Wrap(err, "delete user"))
		return
	}

	redirect(w, r, "/")
}

// exportUserDataGET streams a SQLite database containing only the signed-in user's data.
func (app *application) exportUserDataGET(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	exportPath, err := app.tracker.ExportUserDB(ctx, app.exportDir)
	if err != nil {
		app.serverError(w, r, errors.Wrap(err, "export user data"))
		return
	}
	defer func() {
		if removeErr := os.Remove(exportPath); removeErr != nil {
			app.logger.LogAttrs(ctx, slog.LevelWarn, "failed to remove temporary export file",
				slog.String("path", exportPath), errors.SlogError(removeErr))
		}
	}()

	file, err := os.Open(exportPath)
	if err != nil {
		app.serverError(w, r, errors.Wrap(err, "open export file"))
		return
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			app.logger.LogAttrs(ctx, slog.LevelWarn, "failed to close export file",
				slog.String("path", exportPath), errors.SlogError(closeErr))
		}
	}()

	w.Header().Set("Content-Type", "application/x-sqlite3")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(exportPath)))
	if _, err = io.Copy(w, file); err != nil {
		app.logger.LogAttrs(ctx, slog.LevelError, "failed to stream export file to client",
			slog.String("path", exportPath), errors.SlogError(err))
	}
}
