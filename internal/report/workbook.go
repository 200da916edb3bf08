// Package report exports the progress of a plan as an xlsx workbook.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/myrjola/planfit/internal/calendar"
	"github.com/myrjola/planfit/internal/progress"
	"github.com/xuri/excelize/v2"
)

// Sheet names of the workbook.
const (
	SheetBlocks       = "Blocks"
	SheetExercises    = "Exercises"
	SheetHistory      = "History"
	SheetMeasurements = "Measurements"
)

const headerColor = "1F4E79"

// Input is everything exported into the workbook.
type Input struct {
	PlanName  string
	Generated time.Time
	Report    progress.Report
	Trends    []progress.Trend
}

// Write renders the progress workbook into w.
func Write(w io.Writer, in Input) (err error) {
	f := excelize.NewFile()
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close workbook: %w", closeErr)
		}
	}()

	if err = f.SetDocProps(&excelize.DocProperties{ //nolint:exhaustruct // only the descriptive fields.
		Title:   "Progress " + in.PlanName,
		Creator: "planfit",
		Created: in.Generated.UTC().Format(time.RFC3339),
	}); err != nil {
		return fmt.Errorf("set document properties: %w", err)
	}

	if err = f.SetSheetName("Sheet1", SheetBlocks); err != nil {
		return fmt.Errorf("rename first sheet: %w", err)
	}
	for _, sheet := range []string{SheetExercises, SheetHistory, SheetMeasurements} {
		if _, err = f.NewSheet(sheet); err != nil {
			return fmt.Errorf("create sheet %s: %w", sheet, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{ //nolint:exhaustruct // defaults for the rest.
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},                              //nolint:exhaustruct // defaults.
		Fill:      excelize.Fill{Type: "pattern", Color: []string{headerColor}, Pattern: 1}, //nolint:exhaustruct // defaults.
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},            //nolint:exhaustruct // defaults.
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	sheets := []struct {
		name   string
		header []any
		rows   [][]any
		widths []float64
	}{
		{
			name:   SheetBlocks,
			header: []any{"Block", "Day", "Weekly avg %", "Monthly avg %", "Weekly total kg", "Monthly total kg"},
			rows:   blockRows(in.Report),
			widths: []float64{30, 8, 14, 14, 16, 16},
		},
		{
			name:   SheetExercises,
			header: []any{"Block", "Exercise", "Latest kg", "Weekly kg", "Weekly %", "Monthly kg", "Monthly %"},
			rows:   exerciseRows(in.Report),
			widths: []float64{30, 30, 12, 12, 12, 12, 12},
		},
		{
			name:   SheetHistory,
			header: []any{"Block", "Exercise", "Date", "Weight kg"},
			rows:   historyRows(in.Report),
			widths: []float64{30, 30, 12, 12},
		},
		{
			name:   SheetMeasurements,
			header: []any{"Measurement", "Latest", "Weekly", "Weekly %", "Monthly", "Monthly %"},
			rows:   trendRows(in.Trends),
			widths: []float64{20, 12, 12, 12, 12, 12},
		},
	}
	for _, sheet := range sheets {
		if err = writeSheet(f, sheet.name, sheet.header, sheet.rows, headerStyle); err != nil {
			return err
		}
		for i, width := range sheet.widths {
			col, colErr := excelize.ColumnNumberToName(i + 1)
			if colErr != nil {
				return fmt.Errorf("column name: %w", colErr)
			}
			if err = f.SetColWidth(sheet.name, col, col, width); err != nil {
				return fmt.Errorf("set column width: %w", err)
			}
		}
	}

	f.SetActiveSheet(0)
	if err = f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, header []any, rows [][]any, headerStyle int) error {
	for rowIdx, row := range append([][]any{header}, rows...) {
		for colIdx, value := range row {
			if value == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+1)
			if err != nil {
				return fmt.Errorf("cell name: %w", err)
			}
			if err = f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
			}
		}
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err = f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	return nil
}

// cell leaves missing values blank instead of writing zero.
func cell(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func blockRows(r progress.Report) [][]any {
	rows := make([][]any, 0, len(r.Blocks))
	for _, b := range r.Blocks {
		rows = append(rows, []any{
			b.Label, b.DayIndex,
			cell(b.WeeklyAvgPct), cell(b.MonthlyAvgPct), cell(b.WeeklyTotalKg), cell(b.MonthlyTotalKg),
		})
	}
	return rows
}

func exerciseRows(r progress.Report) [][]any {
	var rows [][]any
	for _, b := range r.Blocks {
		for _, ex := range b.Exercises {
			var latest any
			if len(ex.Points) > 0 {
				latest = ex.Points[len(ex.Points)-1].WeightKg
			}
			rows = append(rows, []any{
				b.Label, ex.Name, latest,
				cell(ex.Weekly.Kg), cell(ex.Weekly.Pct), cell(ex.Monthly.Kg), cell(ex.Monthly.Pct),
			})
		}
	}
	return rows
}

func historyRows(r progress.Report) [][]any {
	var rows [][]any
	for _, b := range r.Blocks {
		for _, ex := range b.Exercises {
			for _, p := range ex.Points {
				rows = append(rows, []any{b.Label, ex.Name, calendar.FormatDate(p.Date), p.WeightKg})
			}
		}
	}
	return rows
}

func trendRows(trends []progress.Trend) [][]any {
	rows := make([][]any, 0, len(trends))
	for _, t := range trends {
		var latest any
		if len(t.Points) > 0 {
			latest = t.Points[len(t.Points)-1].WeightKg
		}
		rows = append(rows, []any{
			t.Name, latest, cell(t.Weekly.Kg), cell(t.Weekly.Pct), cell(t.Monthly.Kg), cell(t.Monthly.Pct),
		})
	}
	return rows
}
