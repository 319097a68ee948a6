// Package errors defines the engine's error-kind taxonomy (spec §7).
//
// Every error that crosses a component boundary (inference runtime ->
// judge, judge -> council, pipeline -> caller) is a *Error carrying one of
// the Kind values below, so callers can branch on kind without parsing
// strings. Leaf-level helpers inside a single package may still return a
// plain wrapped error; Wrap wraps it into a typed Error once it needs to be
// observable outside that package.
package errors

import (
	"fmt"

	goerrors "github.com/go-faster/errors"
)

// Kind classifies an error for caller-side branching. Kinds are not
// exhaustive of every failure a component can produce internally — only
// the ones spec §7 promises observers.
type Kind string

const (
	KindBadRequest          Kind = "bad_request"
	KindNotFound            Kind = "not_found"
	KindInvalidState        Kind = "invalid_state"
	KindOverloaded          Kind = "overloaded"
	KindTimeout             Kind = "timeout"
	KindCancelled           Kind = "cancelled"
	KindModelLoadFailed     Kind = "model_load_failed"
	KindBackendCrashed      Kind = "backend_crashed"
	KindModelNotFound       Kind = "model_not_found"
	KindNoEligibleWorker    Kind = "no_eligible_worker"
	KindWorkerLost          Kind = "worker_lost"
	KindValidationFailed    Kind = "validation_failed"
	KindPlanningFailed      Kind = "planning_failed"
	KindEscalationTimeout   Kind = "escalation_timeout"
	KindFinalReviewRejected Kind = "final_review_rejected"
	KindInboxFull           Kind = "inbox_full"
	KindInterventionDenied  Kind = "intervention_denied"
	KindInternal            Kind = "internal"
)

// Retryable reports whether callers may reasonably retry an error of this
// kind without additional remediation (per §7's propagation policy).
func (k Kind) Retryable() bool {
	switch k {
	case KindOverloaded, KindTimeout, KindInboxFull:
		return true
	default:
		return false
	}
}

// UserActionable reports whether the error kind names a caller mistake
// rather than a system fault.
func (k Kind) UserActionable() bool {
	switch k {
	case KindBadRequest, KindNotFound, KindInvalidState, KindInterventionDenied:
		return true
	default:
		return false
	}
}

// Error is the engine's canonical error envelope: a Kind plus a wrapped
// cause. It satisfies the standard errors.Is/As protocol via Unwrap.
type Error struct {
	Kind   Kind
	Reason string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs a *Error with no wrapped cause.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Newf is New with fmt.Sprintf-style formatting of reason.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind to an underlying cause, preserving it for
// errors.Is/As via go-faster/errors' stack-aware wrapping.
func Wrap(kind Kind, reason string, cause error) *Error {
	if cause == nil {
		return New(kind, reason)
	}
	return &Error{Kind: kind, Reason: reason, cause: goerrors.Wrap(cause, reason)}
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error, defaulting
// to KindInternal when the error kind cannot be determined — per §7,
// "Internal errors: logged with full context" rather than silently
// swallowed.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if goerrors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
