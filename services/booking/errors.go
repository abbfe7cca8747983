package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	bookingRepo "wellnest/database/repository/booking"
	providerRepo "wellnest/database/repository/provider"
	"wellnest/models"
)

// ErrorKind classifies a failure for callers. Transports branch on the kind,
// never on store specific errors.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindTransient   ErrorKind = "transient"
	KindConcurrency ErrorKind = "concurrency"
	KindPermission  ErrorKind = "permission"
	KindNotFound    ErrorKind = "not_found"
	KindSideEffect  ErrorKind = "side_effect"
)

// Error codes.
const (
	CodeMissingField         = "MissingField"
	CodeMalformedTime        = "MalformedTime"
	CodeInvalidServiceType   = "InvalidServiceType"
	CodeInvalidDuration      = "InvalidDuration"
	CodeInvalidFilter        = "InvalidFilter"
	CodeReasonRequired       = "ReasonRequired"
	CodeProviderNotFound     = "ProviderNotFound"
	CodeServiceNotOffered    = "ServiceNotOffered"
	CodeNotInFuture          = "NotInFuture"
	CodeTooFarInAdvance      = "TooFarInAdvance"
	CodeOutsideBusinessHours = "OutsideBusinessHours"
	CodeSlotConflict         = "SlotConflict"
	CodeAlreadyResolved      = "AlreadyResolved"
	CodeInvalidTransition    = "InvalidTransition"
	CodeForbidden            = "Forbidden"
	CodeBookingNotFound      = "BookingNotFound"
	CodeUnavailable          = "Unavailable"
)

// ErrAborted is returned when the caller's context was cancelled. Transports
// treat it as a no-op.
var ErrAborted = errors.New("booking operation aborted")

// ConflictError is one reason a slot cannot be booked. BookingID names the
// conflicting reservation for diagnostics and is never serialized.
type ConflictError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	BookingID string `json:"-"`
}

func (c ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", c.Code, c.Message)
}

// BookingError is the only error type the lifecycle manager returns besides
// ErrAborted.
type BookingError struct {
	Kind      ErrorKind
	Code      string
	Message   string
	Conflicts []ConflictError
	// Current is the refreshed record for concurrency failures.
	Current *models.Booking
	Err     error
}

func (e *BookingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BookingError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or "" when err is not a BookingError.
func KindOf(err error) ErrorKind {
	var be *BookingError
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// CodeOf returns the code of err, or "" when err is not a BookingError.
func CodeOf(err error) string {
	var be *BookingError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// IsAborted reports whether err stems from the caller giving up.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled)
}

func validationError(code, message string) *BookingError {
	return &BookingError{Kind: KindValidation, Code: code, Message: message}
}

func conflictsError(conflicts []ConflictError) *BookingError {
	msgs := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		msgs = append(msgs, c.Message)
	}
	return &BookingError{
		Kind:      KindValidation,
		Code:      conflicts[0].Code,
		Message:   strings.Join(msgs, "; "),
		Conflicts: conflicts,
	}
}

func concurrencyError(code string, current *models.Booking) *BookingError {
	msg := "booking was already resolved"
	if code == CodeInvalidTransition {
		msg = "booking can no longer be changed"
	}
	if current != nil {
		msg = fmt.Sprintf("%s (status %s)", msg, current.Status)
	}
	return &BookingError{Kind: KindConcurrency, Code: code, Message: msg, Current: current}
}

func forbiddenError(message string) *BookingError {
	return &BookingError{Kind: KindPermission, Code: CodeForbidden, Message: message}
}

// translateStoreError maps store and context errors to the taxonomy.
func translateStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var be *BookingError
	if errors.As(err, &be) {
		return be
	}
	switch {
	case errors.Is(err, ErrAborted), errors.Is(err, context.Canceled):
		return ErrAborted
	case errors.Is(err, bookingRepo.ErrNotFound):
		return &BookingError{Kind: KindNotFound, Code: CodeBookingNotFound, Message: "booking not found", Err: err}
	default:
		return &BookingError{
			Kind:    KindTransient,
			Code:    CodeUnavailable,
			Message: "service temporarily unavailable, please retry",
			Err:     fmt.Errorf("%s: %w", op, err),
		}
	}
}

// isPermanent reports whether retrying err cannot succeed.
func isPermanent(err error) bool {
	var be *BookingError
	if errors.As(err, &be) {
		return be.Kind != KindTransient
	}
	return errors.Is(err, bookingRepo.ErrNotFound) ||
		errors.Is(err, bookingRepo.ErrDuplicateID) ||
		errors.Is(err, providerRepo.ErrNotFound)
}
