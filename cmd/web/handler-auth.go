package main

import (
	"log/slog"
	"net/http"

	"github.com/myrjola/planfit/internal/errors"
)

func (app *application) writeJSON(w http.ResponseWriter, r *http.Request, out []byte) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(out); err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelWarn, "write json response", errors.SlogError(err))
	}
}

// authFailed logs a failed WebAuthn ceremony. The client only learns that the ceremony failed.
func (app *application) authFailed(w http.ResponseWriter, r *http.Request, msg string, err error) {
	app.logger.LogAttrs(r.Context(), slog.LevelWarn, msg, errors.SlogError(err))
	http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
}

func (app *application) beginRegistration(w http.ResponseWriter, r *http.Request) {
	out, err := app.webAuthnHandler.BeginRegistration(r.Context())
	if err != nil {
		app.serverError(w, r, errors.Wrap(err, "begin registration"))
		return
	}
	app.writeJSON(w, r, out)
}

func (app *application) finishRegistration(w http.ResponseWriter, r *http.Request) {
	if err := app.webAuthnHandler.FinishRegistration(r); err != nil {
		app.authFailed(w, r, "finish registration", err)
		return
	}
	app.logger.LogAttrs(r.Context(), slog.LevelInfo, "user registered")
	w.WriteHeader(http.StatusOK)
}

func (app *application) beginLogin(w http.ResponseWriter, r *http.Request) {
	out, err := app.webAuthnHandler.BeginLogin(r.Context())
	if err != nil {
		app.serverError(w, r, errors.Wrap(err, "begin login"))
		return
	}
	app.writeJSON(w, r, out)
}

func (app *application) finishLogin(w http.ResponseWriter, r *http.Request) {
	if err := app.webAuthnHandler.FinishLogin(r); err != nil {
		app.authFailed(w, r, "finish login", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (app *application) logout(w http.ResponseWriter, r *http.Request) {
	if err := app.webAuthnHandler.Logout(r.Context()); err != nil {
		app.serverError(w, r, errors.Wrap(err, "logout"))
		return
	}
	redirect(w, r, "/")
}
