// Package apperr defines the typed errors returned by the group order engine.
//
// Every error carries a Kind that tells the caller what to do with it:
// caller errors (Validation, Permission, Phase, NotFound) are surfaced as-is,
// Conflict and External are safe to retry, Fatal goes to operators.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindPermission
	KindPhase
	KindConflict
	KindNotFound
	KindExternal
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPermission:
		return "permission"
	case KindPhase:
		return "phase"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindExternal:
		return "external_dependency"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the engine's error type. Two Errors match under errors.Is when
// their codes are equal, so sentinels can be compared against detailed copies.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// With returns a copy of e with a more specific message.
func (e *Error) With(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: cause}
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrInvalidInput        = newError(KindValidation, "invalid_input", "invalid input")
	ErrInvalidAmount       = newError(KindValidation, "invalid_amount", "amount must be greater than zero")
	ErrEmptySelection      = newError(KindValidation, "empty_selection", "selection has no items")
	ErrUnknownDish         = newError(KindValidation, "unknown_dish", "dish not found in catalog")
	ErrUnderfunded         = newError(KindValidation, "underfunded", "collected budget does not cover the selections")
	ErrIdempotencyMismatch = newError(KindValidation, "idempotency_mismatch", "idempotency key reused with a different request")

	ErrForbidden      = newError(KindPermission, "forbidden", "caller may not act for this participant")
	ErrNotHost        = newError(KindPermission, "not_host", "only the host may perform this action")
	ErrNotParticipant = newError(KindPermission, "not_participant", "caller is not a participant in this group order")

	ErrWrongPhase       = newError(KindPhase, "wrong_phase", "action not allowed in the current phase")
	ErrNotJoinable      = newError(KindPhase, "not_joinable", "group order is no longer accepting participants")
	ErrGroupOrderClosed = newError(KindPhase, "group_order_closed", "group order is no longer accepting contributions")
	ErrExpiredLink      = newError(KindPhase, "expired_link", "share link has expired")
	ErrNotReady         = newError(KindPhase, "not_ready", "not all participants are ready")
	ErrNotEnoughMembers = newError(KindPhase, "not_enough_members", "not enough participants have joined")

	ErrConflictingTransition = newError(KindConflict, "conflicting_transition", "group order status changed concurrently")

	ErrNotFound = newError(KindNotFound, "not_found", "not found")

	ErrOrderService = newError(KindExternal, "order_service_unavailable", "order service call failed")
	ErrCatalog      = newError(KindExternal, "catalog_unavailable", "catalog lookup failed")

	ErrCorrupt = newError(KindFatal, "corrupt_state", "group order data is inconsistent")
)

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Retryable reports whether the caller may safely retry the request.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindConflict, KindExternal:
		return true
	default:
		return false
	}
}
