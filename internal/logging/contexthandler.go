// Package logging carries request scoped log attributes in the context.
package logging

import (
	"context"
	"log/slog"
)

type attrsKey struct{}

// attrNode links the attributes added by one WithAttrs call to those of the parent context.
type attrNode struct {
	attrs  []slog.Attr
	parent *attrNode
}

func (n *attrNode) collect() []slog.Attr {
	if n == nil {
		return nil
	}
	return append(n.parent.collect(), n.attrs...)
}

// ContextHandler adds the attributes stored with [WithAttrs] to every record before passing it on.
type ContextHandler struct {
	slog.Handler
}

// NewContextHandler wraps h.
func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if node, ok := ctx.Value(attrsKey{}).(*attrNode); ok {
		r.AddAttrs(node.collect()...)
	}
	return h.Handler.Handle(ctx, r) //nolint:wrapcheck // the wrapped handler's error is returned as is.
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}

// WithAttrs returns a child of ctx whose log records carry attrs in addition to the attributes of ctx.
func WithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	parent, _ := ctx.Value(attrsKey{}).(*attrNode)
	return context.WithValue(ctx, attrsKey{}, &attrNode{attrs: attrs, parent: parent})
}
