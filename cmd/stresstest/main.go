package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/myrjola/planfit/internal/e2etest"
	"github.com/myrjola/planfit/internal/logging"
	"github.com/myrjola/planfit/internal/testhelpers"
	"golang.org/x/sync/errgroup"
)

const (
	defaultUsers            = 20
	maxConcurrentOperations = 10
	historyWeeks            = 26
	scenarioRounds          = 5
	scenarioTimeout         = 30 * time.Second
	setupTimeout            = 5 * time.Minute
	baseBodyWeight          = 70.0
	successRateThreshold    = 95.0
	percentageMultiplier    = 100
	daysPerWeek             = 7
)

type stats struct {
	ok     atomic.Int64
	failed atomic.Int64
}

func (s *stats) record(err error) {
	if err != nil {
		s.failed.Add(1)
		return
	}
	s.ok.Add(1)
}

func (s *stats) successRate() float64 {
	total := s.ok.Load() + s.failed.Load()
	if total == 0 {
		return 0
	}
	return float64(s.ok.Load()) / float64(total) * percentageMultiplier
}

func registerUsers(ctx context.Context, url, hostname string, n int) ([]*e2etest.Client, error) {
	clients := make([]*e2etest.Client, n)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentOperations)
	for i := range n {
		g.Go(func() error {
			client, err := e2etest.NewClient(url, hostname, url)
			if err != nil {
				return fmt.Errorf("create client %d: %w", i, err)
			}
			if _, err = client.Register(ctx); err != nil {
				return fmt.Errorf("register user %d: %w", i, err)
			}
			clients[i] = client
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err //nolint:wrapcheck // errors are wrapped in the goroutines.
	}
	return clients, nil
}

// seedMeasurements records a weekly body weight history so that the trend and history tables have rows to render.
func seedMeasurements(ctx context.Context, client *e2etest.Client) error {
	start := time.Now().AddDate(0, 0, -historyWeeks*daysPerWeek)
	weight := baseBodyWeight + rand.Float64()*10 //nolint:gosec,mnd // load test data
	for week := range historyWeeks {
		doc, err := client.GetDoc(ctx, "/measurements")
		if err != nil {
			return fmt.Errorf("get measurements: %w", err)
		}
		weight += rand.Float64() - 0.5 //nolint:gosec,mnd // drift half a kilo either way
		if _, err = client.SubmitForm(ctx, doc, "/measurements", map[string]string{
			"Date":             start.AddDate(0, 0, week*daysPerWeek).Format(time.DateOnly),
			"Body weight (kg)": strconv.FormatFloat(weight, 'f', 1, 64),
		}); err != nil {
			return fmt.Errorf("save measurement: %w", err)
		}
	}
	return nil
}

// browse visits the pages a user opens during a normal session.
func browse(ctx context.Context, client *e2etest.Client) error {
	ctx, cancel := context.WithTimeout(ctx, scenarioTimeout)
	defer cancel()

	doc, err := client.GetDoc(ctx, "/")
	if err != nil {
		return fmt.Errorf("get week: %w", err)
	}
	var days []string
	doc.Find("ol.week li.day a").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok && strings.HasPrefix(href, "/days/") {
			days = append(days, href)
		}
	})
	if len(days) == 0 {
		return errors.New("week view has no day links")
	}
	if _, err = client.GetDoc(ctx, days[rand.IntN(len(days))]); err != nil { //nolint:gosec // load test
		return fmt.Errorf("get day: %w", err)
	}
	for _, path := range []string{"/progress", "/measurements", "/settings"} {
		if _, err = client.GetDoc(ctx, path); err != nil {
			return fmt.Errorf("get %s: %w", path, err)
		}
	}
	return nil
}

func runLoad(ctx context.Context, clients []*e2etest.Client, logger *slog.Logger) *stats {
	var (
		s stats
		g errgroup.Group
	)
	g.SetLimit(maxConcurrentOperations)
	for i, client := range clients {
		for round := range scenarioRounds {
			g.Go(func() error {
				err := browse(ctx, client)
				if err != nil {
					logger.LogAttrs(ctx, slog.LevelWarn, "scenario failed",
						slog.Int("user", i), slog.Int("round", round), slog.Any("error", err))
				}
				s.record(err)
				return nil
			})
		}
	}
	_ = g.Wait()
	return &s
}

func run(ctx context.Context, logger *slog.Logger, hostname string, users int) error {
	url := "https://" + hostname
	if strings.Contains(hostname, "localhost") {
		url = "http://" + hostname
		hostname = "localhost"
	}

	ready, err := e2etest.NewClient(url, hostname, url)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	if err = ready.WaitForReady(ctx, "/api/healthy"); err != nil {
		return fmt.Errorf("server not ready: %w", err)
	}

	setupCtx, cancel := context.WithTimeout(ctx, setupTimeout)
	defer cancel()
	start := time.Now()
	clients, err := registerUsers(setupCtx, url, hostname, users)
	if err != nil {
		return err
	}
	var g errgroup.Group
	g.SetLimit(maxConcurrentOperations)
	for _, client := range clients {
		g.Go(func() error { return seedMeasurements(setupCtx, client) })
	}
	if err = g.Wait(); err != nil {
		return fmt.Errorf("seed measurements: %w", err)
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "users ready",
		slog.Int("users", users), slog.Duration("duration", time.Since(start)))

	start = time.Now()
	s := runLoad(ctx, clients, logger)
	rate := s.successRate()
	logger.LogAttrs(ctx, slog.LevelInfo, "load test finished",
		slog.Int64("ok", s.ok.Load()),
		slog.Int64("failed", s.failed.Load()),
		slog.Float64("success_rate", rate),
		slog.Duration("duration", time.Since(start)))
	if rate < successRateThreshold {
		return fmt.Errorf("success rate %.1f%% is below %.1f%%", rate, successRateThreshold)
	}
	return nil
}

func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	ctx := context.Background()

	if len(os.Args) < 2 || len(os.Args) > 3 { //nolint:mnd // hostname and optional user count
		logger.LogAttrs(ctx, slog.LevelError, "usage: stresstest <hostname> [users]")
		os.Exit(1)
	}
	users := defaultUsers
	if len(os.Args) == 3 { //nolint:mnd // user count given
		n, err := strconv.Atoi(os.Args[2])
		if err != nil || n < 1 {
			logger.LogAttrs(ctx, slog.LevelError, "users must be a positive integer", slog.String("users", os.Args[2]))
			os.Exit(1)
		}
		users = n
	}

	ctx = logging.WithAttrs(ctx, slog.String("hostname", os.Args[1]))
	if err := run(ctx, logger, os.Args[1], users); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "stress test failed", slog.Any("error", err))
		os.Exit(1)
	}
}
