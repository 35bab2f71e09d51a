package dto

import (
	"time"

	"github.com/osamaloay/TicketsBooking-sub000/internal/domain"
)

// CreateBookingRequest represents a request to buy tickets for an event
type CreateBookingRequest struct {
	EventID       string `json:"event_id" binding:"required"`
	Quantity      int    `json:"quantity" binding:"required"`
	PaymentMethod string `json:"payment_method"`
}

// BookingResponse represents a booking in API responses
type BookingResponse struct {
	ID               string     `json:"id"`
	EventID          string     `json:"event_id"`
	UserID           string     `json:"user_id"`
	NumberOfTickets  int        `json:"number_of_tickets"`
	UnitPrice        float64    `json:"unit_price"`
	TotalPrice       float64    `json:"total_price"`
	Currency         string     `json:"currency"`
	Status           string     `json:"status"`
	PaymentReference string     `json:"payment_reference,omitempty"`
	CancelReason     string     `json:"cancel_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ConfirmedAt      *time.Time `json:"confirmed_at,omitempty"`
	CanceledAt       *time.Time `json:"canceled_at,omitempty"`
}

// CancelBookingResponse is returned after a user cancellation
type CancelBookingResponse struct {
	BookingID       string `json:"booking_id"`
	Status          string `json:"status"`
	Refunded        bool   `json:"refunded"`
	ReleasedTickets int    `json:"released_tickets"`
	Message         string `json:"message"`
}

// FromDomain converts a domain Booking to BookingResponse
func FromDomain(b *domain.Booking) *BookingResponse {
	return &BookingResponse{
		ID:               b.ID,
		EventID:          b.EventID,
		UserID:           b.UserID,
		NumberOfTickets:  b.NumberOfTickets,
		UnitPrice:        b.UnitPrice,
		TotalPrice:       b.TotalPrice,
		Currency:         b.Currency,
		Status:           b.Status.String(),
		PaymentReference: b.PaymentReference,
		CancelReason:     string(b.CancelReason),
		CreatedAt:        b.CreatedAt,
		ConfirmedAt:      b.ConfirmedAt,
		CanceledAt:       b.CanceledAt,
	}
}
