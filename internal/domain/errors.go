package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	// Lookup errors
	ErrEventNotFound   = errors.New("event not found")
	ErrBookingNotFound = errors.New("booking not found")

	// Authorization errors
	ErrForbidden = errors.New("forbidden")

	// Lifecycle errors
	ErrInvalidTransition = errors.New("invalid event status transition")
	ErrEventNotBookable  = errors.New("event is not open for booking")
	ErrAlreadyCanceled   = errors.New("booking already canceled")
	ErrConflict          = errors.New("concurrent modification, retry the request")

	// Inventory errors
	ErrInsufficientInventory = errors.New("insufficient tickets remaining")

	// Payment errors
	ErrPaymentFailed = errors.New("payment capture failed")
	ErrRefundFailed  = errors.New("refund failed")

	// ErrValidation is the root of every input validation failure
	ErrValidation = errors.New("validation failed")
)

// Field validation errors. Each matches ErrValidation under errors.Is.
var (
	ErrInvalidQuantity      = NewValidationError("quantity", "must be between 1 and the per-booking limit")
	ErrMissingPaymentMethod = NewValidationError("payment_method", "is required")
	ErrInvalidEventID       = NewValidationError("event_id", "is required")
	ErrInvalidUserID        = NewValidationError("user_id", "is required")
	ErrInvalidStatus        = NewValidationError("status", "must be one of pending, approved, declined")
)

// ValidationError describes a rejected input field
type ValidationError struct {
	Field string
	Msg   string
}

// NewValidationError creates a field validation error
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Msg: msg}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// SettlementError carries per-booking refund outcomes alongside a failure
type SettlementError struct {
	Err    error
	Result *SettlementResult
}

func (e *SettlementError) Error() string {
	if e.Result == nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %d of %d refunds failed", e.Err, len(e.Result.Failed()), len(e.Result.Outcomes))
}

func (e *SettlementError) Unwrap() error {
	return e.Err
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrBookingNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrInsufficientInventory) ||
		errors.Is(err, ErrEventNotBookable) ||
		errors.Is(err, ErrAlreadyCanceled) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrRefundFailed) ||
		errors.Is(err, ErrConflict)
}
