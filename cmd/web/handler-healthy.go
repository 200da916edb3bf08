package main

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/myrjola/planfit/internal/errors"
)

const healthCheckTimeout = 2 * time.Second

// healthy answers 200 when the database responds and 503 otherwise.
func (app *application) healthy(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := app.tracker.Ping(ctx); err != nil {
		app.logger.LogAttrs(ctx, slog.LevelError, "health check failed", errors.SlogError(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// testTimeout sleeps for sleep_ms milliseconds so that tests can exercise the timeout middleware.
func (app *application) testTimeout(w http.ResponseWriter, r *http.Request) {
	sleepMS, err := strconv.Atoi(r.URL.Query().Get("sleep_ms"))
	if err != nil || sleepMS < 0 {
		http.Error(w, "sleep_ms must be a non-negative integer", http.StatusBadRequest)
		return
	}

	select {
	case <-time.After(time.Duration(sleepMS) * time.Millisecond):
	case <-r.Context().Done():
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"completed","slept_ms":` + strconv.Itoa(sleepMS) + `}`))
}
