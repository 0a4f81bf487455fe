// Package apperr carries the error taxonomy shared by services and controllers.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

type Kind int

const (
	Internal Kind = iota
	Validation
	InvalidCode
	CodeExpired
	RateLimited
	StaleState
	DeliveryFailure
	IntegrityFailure
	CorruptedInput
	NotFound
	Conflict
	Forbidden
	DistanceConfirmationRequired
)

func (k Kind) String() string {
	switch k {
	case Internal:
		return "INTERNAL"
	case Validation:
		return "VALIDATION_ERROR"
	case InvalidCode:
		return "INVALID_CODE"
	case CodeExpired:
		return "CODE_EXPIRED"
	case RateLimited:
		return "RATE_LIMITED"
	case StaleState:
		return "STALE_STATE"
	case DeliveryFailure:
		return "DELIVERY_FAILURE"
	case IntegrityFailure:
		return "INTEGRITY_FAILURE"
	case CorruptedInput:
		return "CORRUPTED_INPUT"
	case NotFound:
		return "NOT_FOUND"
	case Conflict:
		return "CONFLICT"
	case Forbidden:
		return "FORBIDDEN"
	case DistanceConfirmationRequired:
		return "DISTANCE_CONFIRMATION_REQUIRED"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a classified failure. Message is safe to show to end users,
// Err keeps the cause for logs only.
type Error struct {
	Kind       Kind
	Message    string
	Step       string
	Err        error
	Data       any
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an infrastructure error and names the phase it happened in.
func Wrap(err error, step, message string) *Error {
	return &Error{Kind: Internal, Message: message, Step: step, Err: err}
}

// KindOf returns the kind of err, Internal when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Sentinels for errors.Is checks.
var (
	ErrValidation       = &Error{Kind: Validation}
	ErrInvalidCode      = &Error{Kind: InvalidCode}
	ErrCodeExpired      = &Error{Kind: CodeExpired}
	ErrRateLimited      = &Error{Kind: RateLimited}
	ErrStaleState       = &Error{Kind: StaleState}
	ErrDeliveryFailure  = &Error{Kind: DeliveryFailure}
	ErrIntegrityFailure = &Error{Kind: IntegrityFailure}
	ErrCorruptedInput   = &Error{Kind: CorruptedInput}
	ErrNotFound         = &Error{Kind: NotFound}
	ErrConflict         = &Error{Kind: Conflict}
	ErrForbidden        = &Error{Kind: Forbidden}
	ErrDistanceConfirm  = &Error{Kind: DistanceConfirmationRequired}
)
