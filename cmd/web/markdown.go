package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"html/template"
	"log/slog"

	"github.com/myrjola/planfit/internal/errors"
)

// markdownCacheTTL is in seconds. Rendered descriptions only change when the description text changes, and the text
// is the cache key.
const markdownCacheTTL = 24 * 60 * 60

// renderMarkdownToHTML converts markdown to HTML. Raw HTML in the source is not rendered. Results are cached keyed by
// the digest of the markdown.
func (app *application) renderMarkdownToHTML(ctx context.Context, markdown string) template.HTML {
	key := sha256.Sum256([]byte(markdown))
	if cached, err := app.markdownCache.Get(key[:]); err == nil {
		return template.HTML(cached) //nolint:gosec // rendered by goldmark with unsafe HTML disabled.
	}

	var buf bytes.Buffer
	if err := app.markdown.Convert([]byte(markdown), &buf); err != nil {
		app.logger.LogAttrs(ctx, slog.LevelError, "render markdown", errors.SlogError(err))
		return template.HTML(template.HTMLEscapeString(markdown)) //nolint:gosec // escaped above.
	}

	if err := app.markdownCache.Set(key[:], buf.Bytes(), markdownCacheTTL); err != nil {
		app.logger.LogAttrs(ctx, slog.LevelWarn, "cache rendered markdown", errors.SlogError(err))
	}
	return template.HTML(buf.String()) //nolint:gosec // rendered by goldmark with unsafe HTML disabled.
}
