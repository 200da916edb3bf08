package main

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/myrjola/planfit/internal/errors"
	"github.com/myrjola/planfit/internal/tracker"
)

// maxPlanDocumentBytes limits the size of imported plan documents.
const maxPlanDocumentBytes = 1 << 20

type adminPlansTemplateData struct {
	BaseTemplateData
	Plans []tracker.PlanInfo
	Users []tracker.UserInfo
	// Document is echoed back into the import form after a rejected import.
	Document  string
	FormError string
}

func (app *application) renderAdminPlans(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	document, formError string,
) {
	ctx := r.Context()
	plans, err := app.tracker.ListPlans(ctx)
	if err != nil {
		app.serverError(w, r, errors.Wrap(err, "list plans"))
		return
	}
	users, err := app.tracker.ListUsers(ctx)
	if err != nil {
		app.serverError(w, r, errors.Wrap(err, "list users"))
		return
	}
	data := adminPlansTemplateData{
		BaseTemplateData: newBaseTemplateData(r),
		Plans:            plans,
		Users:            users,
		Document:         document,
		FormError:        formError,
	}
	app.render(w, r, status, "admin-plans", data)
}

func (app *application) adminPlansGET(w http.ResponseWriter, r *http.Request) {
	app.renderAdminPlans(w, r, http.StatusOK, "", "")
}

// adminPlansPOST imports the YAML plan document pasted into the document field.
func (app *application) adminPlansPOST(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPlanDocumentBytes)
	if err := r.ParseForm(); err != nil {
		app.renderAdminPlans(w, r, http.StatusRequestEntityTooLarge, "", "The plan document is too large.")
		return
	}
	document := r.PostForm.Get("document")
	if strings.TrimSpace(document) == "" {
		app.renderAdminPlans(w, r, http.StatusBadRequest, document, "Paste a plan document to import.")
		return
	}

	planID, err := app.tracker.ImportPlanDocument(r.Context(), strings.NewReader(document))
	switch {
	case errors.Is(err, tracker.ErrInvalidDocument):
		app.renderAdminPlans(w, r, http.StatusBadRequest, document, err.Error())
		return
	case err != nil:
		app.serverError(w, r, errors.Wrap(err, "import plan"))
		return
	}

	app.logger.LogAttrs(r.Context(), slog.LevelInfo, "imported plan", slog.Int("plan_id", planID))
	redirect(w, r, "/admin/plans")
}

// adminPlanAssignPOST makes the plan in the path the active plan of the user in the user_id field.
func (app *application) adminPlanAssignPOST(w http.ResponseWriter, r *http.Request) {
	planID, ok := app.parseIntParam(w, r, "id")
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		app.serverError(w, r, errors.Wrap(err, "parse form"))
		return
	}
	userID, err := strconv.Atoi(r.PostForm.Get("user_id"))
	if err != nil {
		app.renderAdminPlans(w, r, http.StatusBadRequest, "", "Choose the user to assign the plan to.")
		return
	}

	err = app.tracker.AssignPlan(r.Context(), userID, planID)
	switch {
	case errors.Is(err, tracker.ErrNotFound):
		app.notFound(w, r)
		return
	case err != nil:
		app.serverError(w, r, errors.Wrap(err, "assign plan"))
		return
	}
	redirect(w, r, "/admin/plans")
}
