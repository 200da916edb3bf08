// Package errors annotates errors with structured log attributes and the source location where they were
// wrapped. It re-exports the parts of the standard library errors package that the application uses so that
// callers only need a single import.
package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"strings"
)

type annotatedError struct {
	msg    string
	err    error
	attrs  []slog.Attr
	source string
}

func (e *annotatedError) Error() string {
	switch {
	case e.err == nil:
		return e.msg
	case e.msg == "":
		return e.err.Error()
	default:
		return e.msg + ": " + e.err.Error()
	}
}

func (e *annotatedError) Unwrap() error {
	return e.err
}

// NewSentinel creates an error meant to be declared once at package level and compared with [Is].
func NewSentinel(msg string) error {
	return errors.New(msg) //nolint:err113 // this is the sentinel constructor.
}

// New is an alias for the standard library errors.New.
func New(msg string) error {
	return errors.New(msg) //nolint:err113 // dynamic errors are fine at call sites that are never compared.
}

// Wrap annotates err with msg and attrs. The caller location is recorded and logged by [SlogError].
func Wrap(err error, msg string, attrs ...slog.Attr) error {
	return &annotatedError{
		msg:    msg,
		err:    err,
		attrs:  attrs,
		source: callerSource(),
	}
}

// DecoratePanic converts a recovered panic value into an error carrying the stack and the panic location.
func DecoratePanic(excp any) error {
	if excp == nil {
		return nil
	}
	var err error
	if e, ok := excp.(error); ok {
		err = fmt.Errorf("panic: %w", e)
	} else {
		err = fmt.Errorf("panic: %v", excp)
	}
	return &annotatedError{
		msg:    "",
		err:    err,
		attrs:  []slog.Attr{slog.String("stack", string(debug.Stack()))},
		source: panicSource(),
	}
}

// SlogError converts err into a log attribute grouping the message, all annotations in the chain, and the
// location of the innermost annotation.
func SlogError(err error) slog.Attr {
	if err == nil {
		return slog.Any("error", nil)
	}

	var (
		annotations []any
		source      string
	)
	for e := err; e != nil; e = errors.Unwrap(e) {
		var ae *annotatedError
		if !errors.As(e, &ae) {
			break
		}
		for _, attr := range ae.attrs {
			annotations = append(annotations, attr)
		}
		source = ae.source
		e = ae
	}

	attrs := []any{slog.String("message", err.Error())}
	if len(annotations) > 0 {
		attrs = append(attrs, slog.Group("annotations", annotations...))
	}
	if source != "" {
		attrs = append(attrs, slog.String("source", source))
	}
	return slog.Group("error", attrs...)
}

// Is is an alias for the standard library errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is an alias for the standard library errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Unwrap is an alias for the standard library errors.Unwrap.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// Join is an alias for the standard library errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

const maxStackDepth = 32

// callerSource returns file:line of the first frame outside this package.
func callerSource() string {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(2, pcs) //nolint:mnd // skip runtime.Callers and callerSource.
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !isThisPackage(frame.Function) {
			return fmt.Sprintf("%s:%d", frame.File, frame.Line)
		}
		if !more {
			return ""
		}
	}
}

// panicSource returns file:line of the frame that called panic.
func panicSource() string {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(1, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	panicking := false
	for {
		frame, more := frames.Next()
		if panicking && !strings.HasPrefix(frame.Function, "runtime.") {
			return fmt.Sprintf("%s:%d", frame.File, frame.Line)
		}
		if frame.Function == "runtime.gopanic" {
			panicking = true
		}
		if !more {
			break
		}
	}
	return callerSource()
}

func isThisPackage(function string) bool {
	const pkg = "/internal/errors."
	return strings.Contains(function, pkg) && !strings.Contains(function, "_test.")
}
