package service

import (
	"errors"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/grouporder/internal/apperr"
)

const (
	// ErrorCodeHeader carries the engine's error code on failed calls.
	ErrorCodeHeader = "Grouporder-Error-Code"

	// RetryableHeader is set to "true" when the call may be retried as is.
	RetryableHeader = "Grouporder-Retryable"
)

var errInternal = errors.New("internal error")

// toConnectError maps an engine error to a connect error. Errors without
// a kind are logged and replaced so storage details do not leak.
func toConnectError(procedure string, err error) error {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		slog.Error("Unclassified error", "procedure", procedure, "error", err)
		return connect.NewError(connect.CodeInternal, errInternal)
	}

	msg := errors.New(appErr.Message)
	if appErr.Kind == apperr.KindExternal && appErr.Err != nil {
		msg = errors.New(appErr.Error())
	}

	cerr := connect.NewError(codeFor(appErr.Kind), msg)
	cerr.Meta().Set(ErrorCodeHeader, appErr.Code)
	if apperr.Retryable(err) {
		cerr.Meta().Set(RetryableHeader, "true")
	}
	return cerr
}

func codeFor(kind apperr.Kind) connect.Code {
	switch kind {
	case apperr.KindValidation:
		return connect.CodeInvalidArgument
	case apperr.KindPermission:
		return connect.CodePermissionDenied
	case apperr.KindPhase:
		return connect.CodeFailedPrecondition
	case apperr.KindConflict:
		return connect.CodeAborted
	case apperr.KindNotFound:
		return connect.CodeNotFound
	case apperr.KindExternal:
		return connect.CodeUnavailable
	default:
		return connect.CodeInternal
	}
}
