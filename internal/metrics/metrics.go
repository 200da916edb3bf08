// Package metrics exposes application metrics in the Prometheus format.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "planfit"

// Metrics holds the collectors the application updates.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	panics          prometheus.Counter
	setsLogged      prometheus.Counter
	mealsSelected   prometheus.Counter
	descriptions    *prometheus.CounterVec
}

// New creates the collectors on a fresh registry together with the build info, Go runtime, and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}), //nolint:exhaustruct // defaults.
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{ //nolint:exhaustruct // optional fields.
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "The total number of handled requests.",
		}, []string{"route", "method", "status_code"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{ //nolint:exhaustruct // optional fields.
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Histogram of response time for requests in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"route", "method"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{ //nolint:exhaustruct // optional fields.
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Current number of requests being served.",
		}),
		panics: factory.NewCounter(prometheus.CounterOpts{ //nolint:exhaustruct // optional fields.
			Namespace: namespace,
			Subsystem: "http",
			Name:      "panics_total",
			Help:      "The total number of recovered handler panics.",
		}),
		setsLogged: factory.NewCounter(prometheus.CounterOpts{ //nolint:exhaustruct // optional fields.
			Namespace: namespace,
			Name:      "sets_logged_total",
			Help:      "The total number of saved set weights.",
		}),
		mealsSelected: factory.NewCounter(prometheus.CounterOpts{ //nolint:exhaustruct // optional fields.
			Namespace: namespace,
			Name:      "meals_selected_total",
			Help:      "The total number of menu option choices.",
		}),
		descriptions: factory.NewCounterVec(prometheus.CounterOpts{ //nolint:exhaustruct // optional fields.
			Namespace: namespace,
			Name:      "exercise_descriptions_total",
			Help:      "Exercise descriptions served by source.",
		}, []string{"source"}),
	}
}

// Registry returns the registry the collectors are registered to.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// StartRequest marks a request as in flight. Call the returned function with the route pattern and the
// response status once the response is written.
func (m *Metrics) StartRequest(method string) func(route string, statusCode int) {
	start := time.Now()
	m.inFlight.Inc()
	return func(route string, statusCode int) {
		m.inFlight.Dec()
		if route == "" {
			route = "unmatched"
		}
		m.requestDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
		m.requests.WithLabelValues(route, method, strconv.Itoa(statusCode)).Inc()
	}
}

func (m *Metrics) Panic() {
	m.panics.Inc()
}

func (m *Metrics) SetLogged() {
	m.setsLogged.Inc()
}

func (m *Metrics) MealSelected() {
	m.mealsSelected.Inc()
}

// DescriptionServed counts an exercise description by where it came from, e.g. "cache" or "generated".
func (m *Metrics) DescriptionServed(source string) {
	m.descriptions.WithLabelValues(source).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{ //nolint:exhaustruct // defaults.
		Registry: m.registry,
	})
}

// Launch serves /metrics on addr in the background until ctx is done.
func (m *Metrics) Launch(ctx context.Context, addr string, logger *slog.Logger) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	srv := &http.Server{ //nolint:exhaustruct // defaults.
		Handler:           mux,
		ReadHeaderTimeout: time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
	go func() {
		logger.LogAttrs(ctx, slog.LevelInfo, "starting metrics server",
			slog.String("metrics_addr", listener.Addr().String()))
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.LogAttrs(ctx, slog.LevelError, "metrics server stopped", slog.Any("error", serveErr))
		}
	}()
	context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	return nil
}
