package domain

import (
	"time"

	"github.com/google/uuid"
)

// RefundStatus represents the state of a refund record
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusSucceeded RefundStatus = "succeeded"
	RefundStatusFailed    RefundStatus = "failed"
)

// Refund tracks a refund owed for a canceled booking
type Refund struct {
	ID               string       `json:"id"`
	BookingID        string       `json:"booking_id"`
	EventID          string       `json:"event_id"`
	UserID           string       `json:"user_id"`
	PaymentReference string       `json:"payment_reference"`
	Amount           float64      `json:"amount"`
	Currency         string       `json:"currency"`
	Reason           CancelReason `json:"reason"`
	Status           RefundStatus `json:"status"`
	Attempts         int          `json:"attempts"`
	LastError        string       `json:"last_error,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// NewRefund creates a refund record for a booking
func NewRefund(b *Booking, reason CancelReason, status RefundStatus, now time.Time) *Refund {
	return &Refund{
		ID:               uuid.NewString(),
		BookingID:        b.ID,
		EventID:          b.EventID,
		UserID:           b.UserID,
		PaymentReference: b.PaymentReference,
		Amount:           b.TotalPrice,
		Currency:         b.Currency,
		Reason:           reason,
		Status:           status,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// MarkSucceeded records a completed refund
func (r *Refund) MarkSucceeded(attempts int, now time.Time) {
	r.Status = RefundStatusSucceeded
	r.Attempts += attempts
	r.LastError = ""
	r.UpdatedAt = now
}

// MarkFailed records a failed refund attempt
func (r *Refund) MarkFailed(err error, attempts int, now time.Time) {
	r.Status = RefundStatusFailed
	r.Attempts += attempts
	if err != nil {
		r.LastError = err.Error()
	}
	r.UpdatedAt = now
}

// CanRetry reports whether the reconciler should try again
func (r *Refund) CanRetry(maxAttempts int) bool {
	return r.Status != RefundStatusSucceeded && r.Attempts < maxAttempts
}
