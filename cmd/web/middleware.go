package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/trace"
	"strings"
	"time"

	"github.com/myrjola/planfit/internal/contexthelpers"
	"github.com/myrjola/planfit/internal/errors"
	"github.com/myrjola/planfit/internal/logging"
)

// statusRecorder remembers the first status code written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(statusCode int) {
	if sr.status == 0 {
		sr.status = statusCode
	}
	sr.ResponseWriter.WriteHeader(statusCode)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	return sr.ResponseWriter.Write(b) //nolint:wrapcheck // pass through.
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// Status returns the written status code, assuming 200 when the handler wrote nothing.
func (sr *statusRecorder) Status() int {
	if sr.status == 0 {
		return http.StatusOK
	}
	return sr.status
}

const cspReportEndpoint = "/api/csp-violation"

// cspDirectives is the Content-Security-Policy with {nonce} standing for the per-request nonce.
//
//nolint:gochecknoglobals // constant table.
var cspDirectives = []string{
	"default-src 'none'",
	"script-src 'nonce-{nonce}' 'strict-dynamic' 'unsafe-inline' https: http:",
	"connect-src 'self'",
	"img-src 'self'",
	"style-src 'nonce-{nonce}' 'self' 'unsafe-inline'",
	"frame-ancestors 'self'",
	"form-action 'self'",
	"font-src 'none'",
	"object-src 'none'",
	"manifest-src 'self'",
	"base-uri 'none'",
	"report-to csp-endpoint",
	"report-uri " + cspReportEndpoint,
}

//nolint:gochecknoglobals // constant table.
var securityHeaders = [][2]string{
	{"Reporting-Endpoints", `csp-endpoint="` + cspReportEndpoint + `"`},
	{"Referrer-Policy", "origin-when-cross-origin"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "deny"},
	{"X-XSS-Protection", "0"},
	{"Cross-Origin-Opener-Policy", "same-origin"},
	{"Strict-Transport-Security", "max-age=63072000; includeSubDomains; preload"},
}

func contentSecurityPolicy(nonce string) string {
	return strings.ReplaceAll(strings.Join(cspDirectives, "; ")+";", "{nonce}", nonce)
}

// secureHeaders sets the security headers and a fresh CSP nonce that templates add to script and style tags.
func secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonce := rand.Text()
		h := w.Header()
		h.Set("Content-Security-Policy", contentSecurityPolicy(nonce))
		for _, kv := range securityHeaders {
			h.Set(kv[0], kv[1])
		}
		next.ServeHTTP(w, contexthelpers.SetCSPNonce(r, nonce))
	})
}

// cacheControl returns middleware setting the Cache-Control header to value.
func cacheControl(value string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", value)
			next.ServeHTTP(w, r)
		})
	}
}

//nolint:gochecknoglobals // middleware constructed once.
var (
	cacheForever = cacheControl("public, max-age=31536000, immutable")
	noCache      = cacheControl("no-cache, no-store, must-revalidate")
)

// logAndTraceRequest attaches a trace ID to the request logs, records the request metrics and logs the outcome.
func (app *application) logAndTraceRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			proto  = r.Proto
			method = r.Method
			uri    = r.URL.RequestURI()
		)

		traceID := rand.Text()
		ctx := logging.WithAttrs(
			r.Context(),
			slog.String("trace_id", traceID),
			slog.String("proto", proto),
			slog.String("method", method),
			slog.String("uri", uri),
		)
		r = contexthelpers.SetTraceID(r.WithContext(ctx), traceID)

		start := time.Now()
		done := app.metrics.StartRequest(method)
		app.logger.LogAttrs(ctx, slog.LevelDebug, "received request")

		sw := &statusRecorder{ResponseWriter: w, status: 0}
		if trace.IsEnabled() {
			traceCtx, task := trace.NewTask(ctx, fmt.Sprintf("HTTP %s %s", method, r.URL.Path))
			trace.Log(traceCtx, "trace_id", traceID)
			r = r.WithContext(traceCtx)
			defer task.End()
		}
		next.ServeHTTP(sw, r)

		status := sw.Status()
		done(r.Pattern, status)
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		app.logger.LogAttrs(ctx, level, "request completed",
			slog.Int("status_code", status), slog.Duration("duration", time.Since(start)))
	})
}

func (app *application) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if excp := recover(); excp != nil {
				if app.metrics != nil {
					app.metrics.Panic()
				}
				app.serverError(w, r, errors.DecoratePanic(excp))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// mustAuthenticate redirects the user to the home page if they are not authenticated.
func (app *application) mustAuthenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !contexthelpers.IsAuthenticated(r.Context()) {
			redirect(w, r, "/")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// mustAdmin asserts that the user is admin.
func (app *application) mustAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !contexthelpers.IsAdmin(r.Context()) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func commonContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = contexthelpers.SetCurrentPath(r, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// crossOriginProtection rejects unsafe cross-origin requests based on the Sec-Fetch-Site and Origin headers.
func (app *application) crossOriginProtection(next http.Handler) http.Handler {
	protection := http.NewCrossOriginProtection()
	return protection.Handler(next)
}

// timeout times out the request and cancels the context using http.TimeoutHandler.
// Admins get a longer timeout so that they can call external services.
func (app *application) timeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := http.NewResponseController(w)
		timeout := defaultTimeout - (200 * time.Millisecond) //nolint:mnd // writing the response takes time.
		if contexthelpers.IsAdmin(r.Context()) {
			timeout = adminWriteTimeout - time.Second
			// An outer timeout has already extended the deadline when the writer is a TimeoutHandler's.
			err := rc.SetWriteDeadline(time.Now().Add(adminWriteTimeout))
			if err != nil && !errors.Is(err, http.ErrNotSupported) {
				app.serverError(w, r, err)
				return
			}
		}
		http.TimeoutHandler(app.traceTimeout(next), timeout, timeoutBody).ServeHTTP(w, r)
	})
}

// traceTimeout dumps the flight recorder trace once a handler returns after its deadline passed.
func (app *application) traceTimeout(next http.Handler) http.Handler {
	if app.flightRecorder == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		ctx := r.Context()
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return
		}
		if _, err := app.flightRecorder.Dump(context.WithoutCancel(ctx), "timeout"); err != nil {
			app.logger.LogAttrs(ctx, slog.LevelError, "failed to dump flight recorder", errors.SlogError(err))
		}
	})
}

// maintenanceMode serves the maintenance page to everyone except admins while the maintenance flag is on.
func (app *application) maintenanceMode(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if contexthelpers.IsAdmin(ctx) {
			next.ServeHTTP(w, r)
			return
		}
		enabled, err := app.tracker.IsMaintenanceModeEnabled(ctx)
		if err != nil {
			app.serverError(w, r, err)
			return
		}
		if enabled {
			app.render(w, r, http.StatusServiceUnavailable, "maintenance", newBaseTemplateData(r))
			return
		}
		next.ServeHTTP(w, r)
	})
}
