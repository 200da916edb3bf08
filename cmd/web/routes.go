package main

import (
	"fmt"
	"net/http"
)

func (app *application) routes() (*http.ServeMux, error) {
	mux := http.NewServeMux()

	var (
		withoutMaintenanceMode = func(next http.Handler) http.Handler {
			return app.logAndTraceRequest(secureHeaders(app.crossOriginProtection(
				commonContext(app.timeout(next)))))
		}
		shared = func(next http.Handler) http.Handler {
			return withoutMaintenanceMode(app.maintenanceMode(next))
		}
		noAuth = func(next http.Handler) http.Handler {
			return app.recoverPanic(withoutMaintenanceMode(next))
		}
		session = func(next http.Handler) http.Handler {
			return app.recoverPanic(noCache(app.sessionManager.LoadAndSave(
				app.webAuthnHandler.AuthenticateMiddleware(shared(next)))))
		}
		// sessionNoMaintenance lets users sign in and out while the site is in maintenance so that admins
		// can reach the feature flag page.
		sessionNoMaintenance = func(next http.Handler) http.Handler {
			return app.recoverPanic(noCache(app.sessionManager.LoadAndSave(
				app.webAuthnHandler.AuthenticateMiddleware(withoutMaintenanceMode(next)))))
		}
		// sessionOnly serves handlers nested inside another chain that already applies the shared middleware.
		sessionOnly = func(next http.Handler) http.Handler {
			return noCache(app.sessionManager.LoadAndSave(app.webAuthnHandler.AuthenticateMiddleware(
				app.maintenanceMode(next))))
		}
		mustSession = func(next http.Handler) http.Handler {
			return session(app.mustAuthenticate(next))
		}
		mustAdmin = func(next http.Handler) http.Handler {
			return mustSession(app.mustAdmin(next))
		}
	)

	mux.Handle("GET /days/{date}", mustSession(http.HandlerFunc(app.dayGET)))
	mux.Handle("POST /days/{date}/exercises/{position}", mustSession(http.HandlerFunc(app.daySetsPOST)))
	mux.Handle("POST /days/{date}/note", mustSession(http.HandlerFunc(app.dayNotePOST)))
	mux.Handle("POST /days/{date}/meals/{mealType}", mustSession(http.HandlerFunc(app.dayMealPOST)))

	mux.Handle("GET /exercises/{exerciseID}/info", mustSession(http.HandlerFunc(app.exerciseInfoGET)))

	mux.Handle("GET /progress", mustSession(http.HandlerFunc(app.progressGET)))
	mux.Handle("GET /progress/export.xlsx", mustSession(http.HandlerFunc(app.progressExportGET)))

	mux.Handle("GET /measurements", mustSession(http.HandlerFunc(app.measurementsGET)))
	mux.Handle("POST /measurements", mustSession(http.HandlerFunc(app.measurementsPOST)))

	mux.Handle("GET /settings", mustSession(http.HandlerFunc(app.settingsGET)))
	mux.Handle("POST /settings", mustSession(http.HandlerFunc(app.settingsPOST)))
	mux.Handle("GET /settings/export-data", mustSession(http.HandlerFunc(app.exportUserDataGET)))
	mux.Handle("POST /settings/delete-user", mustSession(http.HandlerFunc(app.deleteUserPOST)))

	mux.Handle("POST /api/registration/start", session(http.HandlerFunc(app.beginRegistration)))
	mux.Handle("POST /api/registration/finish", session(http.HandlerFunc(app.finishRegistration)))
	mux.Handle("POST /api/login/start", sessionNoMaintenance(http.HandlerFunc(app.beginLogin)))
	mux.Handle("POST /api/login/finish", sessionNoMaintenance(http.HandlerFunc(app.finishLogin)))
	mux.Handle("POST /api/logout", sessionNoMaintenance(http.HandlerFunc(app.logout)))
	mux.Handle("GET /api/healthy", noAuth(http.HandlerFunc(app.healthy)))
	mux.Handle("POST /api/csp-violation", noAuth(http.HandlerFunc(app.cspViolation)))
	mux.Handle("GET /api/test/timeout", noAuth(http.HandlerFunc(app.testTimeout)))

	mux.Handle("GET /admin/plans", mustAdmin(http.HandlerFunc(app.adminPlansGET)))
	mux.Handle("POST /admin/plans", mustAdmin(http.HandlerFunc(app.adminPlansPOST)))
	mux.Handle("POST /admin/plans/{id}/assign", mustAdmin(http.HandlerFunc(app.adminPlanAssignPOST)))
	mux.Handle("GET /admin/feature-flags", mustAdmin(http.HandlerFunc(app.adminFeatureFlagsGET)))
	mux.Handle("POST /admin/feature-flags/{name}/toggle", mustAdmin(http.HandlerFunc(app.adminFeatureFlagTogglePOST)))

	mux.Handle("GET /privacy", session(http.HandlerFunc(app.privacy)))

	mux.Handle("GET /{$}", session(http.HandlerFunc(app.home)))

	fileServerHandler, err := app.fileServerHandler(sessionOnly)
	if err != nil {
		return nil, fmt.Errorf("fileServerHandler: %w", err)
	}
	mux.Handle("/", fileServerHandler)

	return mux, nil
}
