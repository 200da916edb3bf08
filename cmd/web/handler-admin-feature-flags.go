package main

import (
	"log/slog"
	"net/http"

	"github.com/myrjola/planfit/internal/errors"
	"github.com/myrjola/planfit/internal/tracker"
)

// featureFlagsAdminTemplateData contains data for the feature flags admin template.
type featureFlagsAdminTemplateData struct {
	BaseTemplateData
	FeatureFlags []tracker.FeatureFlag
}

// adminFeatureFlagsGET handles GET requests to the feature flags admin page.
func (app *application) adminFeatureFlagsGET(w http.ResponseWriter, r *http.Request) {
	flags, err := app.tracker.ListFeatureFlags(r.Context())
	if err != nil {
		app.serverError(w, r, errors.Wrap(err, "list feature flags"))
		return
	}

	data := featureFlagsAdminTemplateData{
		BaseTemplateData: newBaseTemplateData(r),
		FeatureFlags:     flags,
	}

	app.render(w, r, http.StatusOK, "admin-feature-flags", data)
}

// adminFeatureFlagTogglePOST handles POST requests to toggle a feature flag.
func (app *application) adminFeatureFlagTogglePOST(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	flag, err := app.tracker.ToggleFeatureFlag(r.Context(), name)
	switch {
	case errors.Is(err, tracker.ErrNotFound):
		app.notFound(w, r)
		return
	case err != nil:
		app.serverError(w, r, errors.Wrap(err, "toggle feature flag", slog.String("name", name)))
		return
	}

	app.logger.LogAttrs(r.Context(), slog.LevelInfo, "toggled feature flag",
		slog.String("name", flag.Name),
		slog.Bool("enabled", flag.Enabled))

	redirect(w, r, "/admin/feature-flags")
}
