package dto

import (
	"time"

	"github.com/osamaloay/TicketsBooking-sub000/internal/domain"
)

// SettlementResponse reports per-booking refund outcomes
type SettlementResponse struct {
	Outcomes        []domain.BookingOutcome `json:"outcomes"`
	RestoredTickets int                     `json:"restored_tickets"`
	Succeeded       int                     `json:"succeeded"`
	Failed          int                     `json:"failed"`
}

// FromSettlement converts a settlement result; nil stays nil
func FromSettlement(r *domain.SettlementResult) *SettlementResponse {
	if r == nil {
		return nil
	}
	outcomes := r.Outcomes
	if outcomes == nil {
		outcomes = []domain.BookingOutcome{}
	}
	return &SettlementResponse{
		Outcomes:        outcomes,
		RestoredTickets: r.RestoredTickets,
		Succeeded:       len(r.Succeeded()),
		Failed:          len(r.Failed()),
	}
}

// RefundResponse represents a refund ledger entry
type RefundResponse struct {
	ID               string    `json:"id"`
	BookingID        string    `json:"booking_id"`
	UserID           string    `json:"user_id"`
	PaymentReference string    `json:"payment_reference"`
	Amount           float64   `json:"amount"`
	Currency         string    `json:"currency"`
	Reason           string    `json:"reason"`
	Status           string    `json:"status"`
	Attempts         int       `json:"attempts"`
	LastError        string    `json:"last_error,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// FromRefund converts a domain Refund to RefundResponse
func FromRefund(r *domain.Refund) *RefundResponse {
	return &RefundResponse{
		ID:               r.ID,
		BookingID:        r.BookingID,
		UserID:           r.UserID,
		PaymentReference: r.PaymentReference,
		Amount:           r.Amount,
		Currency:         r.Currency,
		Reason:           string(r.Reason),
		Status:           string(r.Status),
		Attempts:         r.Attempts,
		LastError:        r.LastError,
		UpdatedAt:        r.UpdatedAt,
	}
}
