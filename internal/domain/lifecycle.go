package domain

import "time"

// LifecycleEventType names an event relayed through the outbox
type LifecycleEventType string

const (
	EventTypeBookingConfirmed   LifecycleEventType = "booking.confirmed"
	EventTypeBookingCanceled    LifecycleEventType = "booking.canceled"
	EventTypeEventStatusChanged LifecycleEventType = "event.status_changed"
	EventTypeEventDeleted       LifecycleEventType = "event.deleted"
	EventTypeRefundFailed       LifecycleEventType = "refund.failed"
	EventTypeRefundSucceeded    LifecycleEventType = "refund.succeeded"
)

// BookingEvent is the payload of booking.* messages
type BookingEvent struct {
	Type       LifecycleEventType `json:"type"`
	BookingID  string             `json:"booking_id"`
	EventID    string             `json:"event_id"`
	UserID     string             `json:"user_id"`
	Tickets    int                `json:"tickets"`
	TotalPrice float64            `json:"total_price"`
	Currency   string             `json:"currency"`
	Status     BookingStatus      `json:"status"`
	Reason     CancelReason       `json:"reason,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// EventLifecycleEvent is the payload of event.* messages
type EventLifecycleEvent struct {
	Type             LifecycleEventType `json:"type"`
	EventID          string             `json:"event_id"`
	PreviousStatus   EventStatus        `json:"previous_status,omitempty"`
	Status           EventStatus        `json:"status"`
	RemainingTickets int                `json:"remaining_tickets"`
	CanceledBookings int                `json:"canceled_bookings"`
	OccurredAt       time.Time          `json:"occurred_at"`
}

// RefundEvent is the payload of refund.* messages
type RefundEvent struct {
	Type      LifecycleEventType `json:"type"`
	RefundID  string             `json:"refund_id"`
	BookingID string             `json:"booking_id"`
	EventID   string             `json:"event_id"`
	Amount    float64            `json:"amount"`
	Attempts  int                `json:"attempts"`
	Error     string             `json:"error,omitempty"`
}

// BookingOutboxEvent creates an outbox message for a booking, keyed by event
func BookingOutboxEvent(t LifecycleEventType, b *Booking) (*OutboxMessage, error) {
	return NewOutboxMessage("booking", b.ID, string(t), b.EventID, BookingEvent{
		Type:       t,
		BookingID:  b.ID,
		EventID:    b.EventID,
		UserID:     b.UserID,
		Tickets:    b.NumberOfTickets,
		TotalPrice: b.TotalPrice,
		Currency:   b.Currency,
		Status:     b.Status,
		Reason:     b.CancelReason,
		OccurredAt: time.Now().UTC(),
	})
}

// EventOutboxEvent creates an outbox message for an event lifecycle change
func EventOutboxEvent(t LifecycleEventType, e *Event, previous EventStatus, canceled int) (*OutboxMessage, error) {
	return NewOutboxMessage("event", e.ID, string(t), e.ID, EventLifecycleEvent{
		Type:             t,
		EventID:          e.ID,
		PreviousStatus:   previous,
		Status:           e.Status,
		RemainingTickets: e.RemainingTickets,
		CanceledBookings: canceled,
		OccurredAt:       time.Now().UTC(),
	})
}

// RefundOutboxEvent creates an outbox message for a refund outcome
func RefundOutboxEvent(t LifecycleEventType, r *Refund) (*OutboxMessage, error) {
	return NewOutboxMessage("refund", r.ID, string(t), r.EventID, RefundEvent{
		Type:      t,
		RefundID:  r.ID,
		BookingID: r.BookingID,
		EventID:   r.EventID,
		Amount:    r.Amount,
		Attempts:  r.Attempts,
		Error:     r.LastError,
	})
}
