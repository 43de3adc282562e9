// Package errors provides the run-level error taxonomy shared by every stage
// of the pipeline. Import it as perr.
package errors

import (
	"context"
	stderrs "errors"
	"fmt"
)

// Kind classifies a failure. Values are stable; they drive exit codes and
// the absorb-or-propagate decision of each stage.
type Kind uint8

const (
	// KindUnknown is for unclassified errors
	KindUnknown Kind = iota

	// KindConfig is missing or invalid configuration; the run does not start
	KindConfig

	// KindNavigation is a page load timeout or failed response
	KindNavigation

	// KindBlockDetected means the provider challenged or rate-limited the session
	KindBlockDetected

	// KindExtractionField is a single unreadable listing field
	KindExtractionField

	// KindEnrichment is a failed website visit for one record
	KindEnrichment

	// KindReconcileWrite is a destination write failure after acquisition
	KindReconcileWrite

	// KindCanceled is a user interrupt
	KindCanceled

	// KindAcquisition is a session-level failure that is neither a block nor a cancel
	KindAcquisition
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindNavigation:
		return "navigation"
	case KindBlockDetected:
		return "block_detected"
	case KindExtractionField:
		return "extraction_field"
	case KindEnrichment:
		return "enrichment"
	case KindReconcileWrite:
		return "reconcile_write"
	case KindCanceled:
		return "canceled"
	case KindAcquisition:
		return "acquisition"
	default:
		return "unknown"
	}
}

// Exit codes reported by the CLI.
const (
	ExitOK           = 0
	ExitConfig       = 1
	ExitAborted      = 2
	ExitWriteFailure = 3
)

// Error is the structured error type. msg is human facing, kind is machine
// facing, op and field are optional labels, orig is the wrapped cause.
type Error struct {
	orig  error
	msg   string
	kind  Kind
	op    string
	field string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.msg
	if e.op != "" {
		msg = e.op + ": " + msg
	}
	if e.orig != nil {
		return fmt.Sprintf("%s: %v", msg, e.orig)
	}
	return msg
}

// Unwrap returns the wrapped error, if any
func (e *Error) Unwrap() error { return e.orig }

// Kind returns the error kind
func (e *Error) Kind() Kind { return e.kind }

// Op returns the operation label, if set
func (e *Error) Op() string { return e.op }

// Field returns the offending field, if any
func (e *Error) Field() string { return e.field }

// New returns a new *Error with the given kind and message
func New(kind Kind, msg string) error { return &Error{kind: kind, msg: msg} }

// Newf returns a new *Error with kind and formatted message
func Newf(kind Kind, format string, a ...any) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, a...)}
}

// Wrap returns a new *Error that wraps orig with kind and message
func Wrap(orig error, kind Kind, msg string) error {
	return &Error{kind: kind, msg: msg, orig: orig}
}

// Wrapf returns a new *Error that wraps orig with kind and formatted message
func Wrapf(orig error, kind Kind, format string, a ...any) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, a...), orig: orig}
}

// WithOp attaches an operation label (copy-on-write). Foreign errors are returned unchanged.
func WithOp(err error, op string) error {
	if e, ok := As(err); ok {
		c := *e
		c.op = op
		return &c
	}
	return err
}

// WithField attaches a field name (copy-on-write). Foreign errors are returned unchanged.
func WithField(err error, field string) error {
	if e, ok := As(err); ok {
		c := *e
		c.field = field
		return &c
	}
	return err
}

// As unwraps and returns (*Error, true) if err is one of ours
func As(err error) (*Error, bool) {
	var e *Error
	if stderrs.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf extracts the Kind of any error. Context cancellation maps to
// KindCanceled and deadline expiry to KindNavigation.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if e, ok := As(err); ok {
		return e.kind
	}
	switch {
	case stderrs.Is(err, context.Canceled):
		return KindCanceled
	case stderrs.Is(err, context.DeadlineExceeded):
		return KindNavigation
	}
	return KindUnknown
}

// IsKind reports whether err has the given kind
func IsKind(err error, kind Kind) bool { return err != nil && KindOf(err) == kind }

// Retryable reports whether retrying the failed call may succeed. Only
// navigation-level failures qualify; a block or a cancel never does.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if stderrs.Is(err, context.Canceled) {
		return false
	}
	switch KindOf(err) {
	case KindNavigation, KindUnknown, KindReconcileWrite:
		return true
	default:
		return false
	}
}

// ExitCode maps a terminal run error to the CLI exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch KindOf(err) {
	case KindConfig:
		return ExitConfig
	case KindBlockDetected, KindCanceled, KindNavigation, KindAcquisition:
		return ExitAborted
	case KindReconcileWrite:
		return ExitWriteFailure
	default:
		return ExitConfig
	}
}

// Sugar

// Configf returns a configuration error
func Configf(format string, a ...any) error { return Newf(KindConfig, format, a...) }

// Navigationf returns a navigation error
func Navigationf(format string, a ...any) error { return Newf(KindNavigation, format, a...) }

// Blockedf returns a block-detected error
func Blockedf(format string, a ...any) error { return Newf(KindBlockDetected, format, a...) }

// Fieldf returns a per-field extraction error for the named field
func Fieldf(field, format string, a ...any) error {
	return &Error{kind: KindExtractionField, msg: fmt.Sprintf(format, a...), field: field}
}
