package domain

import (
	"time"
)

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCanceled  BookingStatus = "canceled"
)

func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCanceled:
		return true
	}
	return false
}

func (s BookingStatus) String() string {
	return string(s)
}

// CancelReason records why a booking was canceled
type CancelReason string

const (
	CancelReasonUser         CancelReason = "user"
	CancelReasonEventStatus  CancelReason = "event_status"
	CancelReasonEventDeleted CancelReason = "event_deleted"
	// CancelReasonNotStored is a captured payment whose booking could not be saved
	CancelReasonNotStored CancelReason = "not_stored"
)

// Booking is a purchase of tickets for one event
type Booking struct {
	ID               string        `json:"id"`
	EventID          string        `json:"event_id"`
	UserID           string        `json:"user_id"`
	NumberOfTickets  int           `json:"number_of_tickets"`
	UnitPrice        float64       `json:"unit_price"`
	TotalPrice       float64       `json:"total_price"`
	Currency         string        `json:"currency"`
	Status           BookingStatus `json:"status"`
	PaymentReference string        `json:"payment_reference,omitempty"`
	CancelReason     CancelReason  `json:"cancel_reason,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	ConfirmedAt      *time.Time    `json:"confirmed_at,omitempty"`
	CanceledAt       *time.Time    `json:"canceled_at,omitempty"`
}

// Reservation is the result of a successful inventory decrement
type Reservation struct {
	EventID   string
	Quantity  int
	Remaining int
	// Epoch of the event when the tickets were taken
	StatusEpoch int64
}

// BookingTotal is quantity times the unit price
func BookingTotal(quantity int, unitPrice float64) float64 {
	return float64(quantity) * unitPrice
}

func (b *Booking) IsConfirmed() bool {
	return b.Status == BookingStatusConfirmed
}

func (b *Booking) IsCanceled() bool {
	return b.Status == BookingStatusCanceled
}

// IsOwnedBy checks if the booking belongs to the given user
func (b *Booking) IsOwnedBy(userID string) bool {
	return b.UserID == userID
}

// NeedsRefund reports whether canceling must return money to the payer
func (b *Booking) NeedsRefund() bool {
	return b.PaymentReference != "" && b.TotalPrice > 0
}

// Cancel marks the booking canceled
func (b *Booking) Cancel(reason CancelReason, at time.Time) error {
	if b.IsCanceled() {
		return ErrAlreadyCanceled
	}
	b.Status = BookingStatusCanceled
	b.CancelReason = reason
	b.CanceledAt = &at
	return nil
}

// TotalTickets sums the tickets held by the given bookings
func TotalTickets(bookings []*Booking) int {
	n := 0
	for _, b := range bookings {
		n += b.NumberOfTickets
	}
	return n
}
