package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/myrjola/planfit/internal/calendar"
	"github.com/myrjola/planfit/internal/errors"
	"github.com/myrjola/planfit/internal/progress"
	"github.com/myrjola/planfit/internal/report"
	"github.com/myrjola/planfit/internal/tracker"
	"golang.org/x/sync/errgroup"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type progressTemplateData struct {
	BaseTemplateData
	HasPlan  bool
	PlanName string
	Blocks   []blockView
	Trends   []progress.Trend
}

type blockView struct {
	progress.BlockProgress
	Rows []exerciseRow
}

type exerciseRow struct {
	progress.ExerciseProgress
	// Latest is nil when nothing has been logged.
	Latest *float64
}

func toBlockViews(rep progress.Report) []blockView {
	blocks := make([]blockView, len(rep.Blocks))
	for i, b := range rep.Blocks {
		rows := make([]exerciseRow, len(b.Exercises))
		for j, ex := range b.Exercises {
			rows[j] = exerciseRow{ExerciseProgress: ex, Latest: nil}
			if n := len(ex.Points); n > 0 {
				latest := ex.Points[n-1].WeightKg
				rows[j].Latest = &latest
			}
		}
		blocks[i] = blockView{BlockProgress: b, Rows: rows}
	}
	return blocks
}

// progressSnapshot is the progress of the active plan together with the measurement trends.
type progressSnapshot struct {
	planName string
	report   progress.Report
	trends   []progress.Trend
}

// loadProgress returns tracker.ErrNoActivePlan when there is nothing to aggregate.
func (app *application) loadProgress(ctx context.Context) (progressSnapshot, error) {
	var snap progressSnapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		info, _, err := app.tracker.ActivePlan(gctx)
		snap.planName = info.Name
		return err
	})
	g.Go(func() error {
		var err error
		snap.report, err = app.tracker.Progress(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		snap.trends, err = app.tracker.MeasurementTrends(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return progressSnapshot{}, err //nolint:wrapcheck // the caller wraps.
	}
	return snap, nil
}

func (app *application) progressGET(w http.ResponseWriter, r *http.Request) {
	data := progressTemplateData{
		BaseTemplateData: newBaseTemplateData(r),
	}
	snap, err := app.loadProgress(r.Context())
	switch {
	case errors.Is(err, tracker.ErrNoActivePlan):
		app.render(w, r, http.StatusOK, "progress", data)
		return
	case err != nil:
		app.serverError(w, r, errors.Wrap(err, "load progress"))
		return
	}

	data.HasPlan = true
	data.PlanName = snap.planName
	data.Blocks = toBlockViews(snap.report)
	data.Trends = snap.trends
	app.render(w, r, http.StatusOK, "progress", data)
}

// progressExportGET downloads the progress as an xlsx workbook.
func (app *application) progressExportGET(w http.ResponseWriter, r *http.Request) {
	snap, err := app.loadProgress(r.Context())
	switch {
	case errors.Is(err, tracker.ErrNoActivePlan):
		app.notFound(w, r)
		return
	case err != nil:
		app.serverError(w, r, errors.Wrap(err, "load progress"))
		return
	}

	now := time.Now()
	var buf bytes.Buffer
	if err = report.Write(&buf, report.Input{
		PlanName:  snap.planName,
		Generated: now,
		Report:    snap.report,
		Trends:    snap.trends,
	}); err != nil {
		app.serverError(w, r, errors.Wrap(err, "write workbook"))
		return
	}

	filename := fmt.Sprintf("progress-%s.xlsx", calendar.FormatDate(calendar.Date(now)))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err = buf.WriteTo(w); err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelWarn, "write workbook response", errors.SlogError(err))
	}
}
