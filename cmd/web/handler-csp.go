package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/myrjola/planfit/internal/errors"
)

// maxCSPReportBytes caps the report body. Browsers send a few kilobytes at most.
const maxCSPReportBytes = 64 * 1024

// cspViolationReport is the legacy report-uri format sent as application/csp-report.
type cspViolationReport struct {
	CSPReport struct {
		DocumentURI        string `json:"document-uri"`
		Referrer           string `json:"referrer"`
		ViolatedDirective  string `json:"violated-directive"`
		EffectiveDirective string `json:"effective-directive"`
		Disposition        string `json:"disposition"`
		BlockedURI         string `json:"blocked-uri"`
		LineNumber         int    `json:"line-number"`
		ColumnNumber       int    `json:"column-number"`
		SourceFile         string `json:"source-file"`
		ScriptSample       string `json:"script-sample"`
	} `json:"csp-report"`
}

// reportingAPIReport is one entry of an application/reports+json batch from the Reporting API.
type reportingAPIReport struct {
	Type string `json:"type"`
	Body struct {
		DocumentURL        string `json:"documentURL"`
		Referrer           string `json:"referrer"`
		EffectiveDirective string `json:"effectiveDirective"`
		Disposition        string `json:"disposition"`
		BlockedURL         string `json:"blockedURL"`
		LineNumber         int    `json:"lineNumber"`
		ColumnNumber       int    `json:"columnNumber"`
		SourceFile         string `json:"sourceFile"`
		Sample             string `json:"sample"`
	} `json:"body"`
}

// cspViolation is the common shape both report formats are logged in.
type cspViolation struct {
	documentURI string
	directive   string
	blockedURI  string
	sourceFile  string
	line        int
	column      int
	sample      string
	disposition string
	referrer    string
}

func (v cspViolation) attrs() []slog.Attr {
	return []slog.Attr{
		slog.String("document_uri", v.documentURI),
		slog.String("directive", v.directive),
		slog.String("blocked_uri", v.blockedURI),
		slog.String("source_file", v.sourceFile),
		slog.Int("line_number", v.line),
		slog.Int("column_number", v.column),
		slog.String("script_sample", v.sample),
		slog.String("disposition", v.disposition),
		slog.String("referrer", v.referrer),
	}
}

func parseCSPViolations(contentType string, body []byte) ([]cspViolation, error) {
	if strings.HasPrefix(contentType, "application/reports+json") {
		var reports []reportingAPIReport
		if err := json.Unmarshal(body, &reports); err != nil {
			return nil, errors.Wrap(err, "decode reporting API batch")
		}
		violations := make([]cspViolation, 0, len(reports))
		for _, report := range reports {
			if report.Type != "csp-violation" {
				continue
			}
			b := report.Body
			violations = append(violations, cspViolation{
				documentURI: b.DocumentURL,
				directive:   b.EffectiveDirective,
				blockedURI:  b.BlockedURL,
				sourceFile:  b.SourceFile,
				line:        b.LineNumber,
				column:      b.ColumnNumber,
				sample:      b.Sample,
				disposition: b.Disposition,
				referrer:    b.Referrer,
			})
		}
		return violations, nil
	}

	var report cspViolationReport
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, errors.Wrap(err, "decode csp-report")
	}
	r := report.CSPReport
	directive := r.EffectiveDirective
	if directive == "" {
		directive = r.ViolatedDirective
	}
	return []cspViolation{{
		documentURI: r.DocumentURI,
		directive:   directive,
		blockedURI:  r.BlockedURI,
		sourceFile:  r.SourceFile,
		line:        r.LineNumber,
		column:      r.ColumnNumber,
		sample:      r.ScriptSample,
		disposition: r.Disposition,
		referrer:    r.Referrer,
	}}, nil
}

// cspViolation logs the reports browsers send to the report-uri of the Content-Security-Policy header.
func (app *application) cspViolation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCSPReportBytes))
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		app.logger.LogAttrs(ctx, slog.LevelWarn, "CSP violation report too large")
		http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
		return
	case err != nil:
		app.logger.LogAttrs(ctx, slog.LevelError, "read CSP violation report", errors.SlogError(err))
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	contentType := r.Header.Get("Content-Type")
	violations, err := parseCSPViolations(contentType, body)
	if err != nil {
		app.logger.LogAttrs(ctx, slog.LevelError, "parse CSP violation report",
			errors.SlogError(err), slog.String("content_type", contentType), slog.String("body", string(body)))
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userAgent := slog.String("user_agent", r.Header.Get("User-Agent"))
	for _, v := range violations {
		app.logger.LogAttrs(ctx, slog.LevelWarn, "CSP violation", append(v.attrs(), userAgent)...)
	}
	w.WriteHeader(http.StatusNoContent)
}
