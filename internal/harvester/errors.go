package harvester

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a harvest failure for retry and reporting decisions.
type ErrorKind string

const (
	// KindTimeout marks any phase that exceeded its deadline.
	KindTimeout ErrorKind = "TimeoutError"
	// KindNavigation marks navigation or initialization failures that are
	// not timeouts.
	KindNavigation ErrorKind = "NavigationError"
	// KindExtraction marks in-browser evaluation failures during data
	// extraction. Ordinary missing elements resolve to defaults instead.
	KindExtraction ErrorKind = "ExtractionError"
)

// Error is a classified harvest failure. It is created at the point of
// failure, immutable afterwards, and re-raised verbatim through retries.
type Error struct {
	Kind      ErrorKind
	Target    string
	Selector  string
	Operation string
	Cause     error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s on %s", e.Kind, e.Operation, e.Target)
	if e.Selector != "" {
		fmt.Fprintf(&b, " (selector %q)", e.Selector)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// ErrorKind satisfies the retry controller's kind filter.
func (e *Error) ErrorKind() string { return string(e.Kind) }

// Is matches errors by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// classify builds a classified error, promoting deadline failures of any
// phase to KindTimeout.
func classify(kind ErrorKind, target, selector, operation string, cause error) *Error {
	if kind != KindTimeout && isTimeout(cause) {
		kind = KindTimeout
	}
	return &Error{
		Kind:      kind,
		Target:    target,
		Selector:  selector,
		Operation: operation,
		Cause:     cause,
	}
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeoutErr interface{ Timeout() bool }
	return errors.As(err, &timeoutErr) && timeoutErr.Timeout()
}

// ErrorContext accompanies every OnError callback invocation.
type ErrorContext struct {
	Target    string
	Operation string
	// Attempt is 1-based; a retried request reports increasing attempts.
	Attempt int
}

// reportError invokes the engine's global error callback, if any. Callback
// failures must never crash the engine.
func (e *Engine) reportError(err *Error, ectx ErrorContext) {
	if e.onError == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warnf("error callback panicked: %v", r)
		}
	}()
	e.onError(err, ectx)
}
