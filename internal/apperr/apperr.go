// Package apperr carries the error taxonomy shared by the store, the
// queue engine and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the operator and for the HTTP status.
type Kind string

const (
	// KindValidation - input rejected before any write.
	KindValidation Kind = "VALIDATION"

	// KindConflict - business rule violated (duplicate active entry,
	// illegal transition).
	KindConflict Kind = "CONFLICT"

	// KindNotFound - entry or referenced record missing.
	KindNotFound Kind = "NOT_FOUND"

	// KindTransient - infrastructure contention that survived retries.
	KindTransient Kind = "TRANSIENT"

	// KindInternal - everything else.
	KindInternal Kind = "INTERNAL"
)

// AppError is the error type returned across package boundaries.
type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func Validation(format string, args ...any) *AppError {
	return &AppError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *AppError {
	return &AppError{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *AppError {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Transient(message string, err error) *AppError {
	return &AppError{Kind: KindTransient, Message: message, Err: err}
}

func Internal(message string, err error) *AppError {
	return &AppError{Kind: KindInternal, Message: message, Err: err}
}

// KindOf reports the Kind of err. Errors that are not (and do not wrap)
// an AppError are internal. Types that want to declare their own kind
// implement interface{ AppKind() Kind }.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var kinded interface{ AppKind() Kind }
	if errors.As(err, &kinded) {
		return kinded.AppKind()
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err is of kind k.
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}

// MessageOf returns the operator-facing text of err: the AppError message
// when there is one, otherwise a generic text so internals do not leak.
func MessageOf(err error) string {
	var kinded interface{ AppKind() Kind }
	if errors.As(err, &kinded) {
		return err.Error()
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}
