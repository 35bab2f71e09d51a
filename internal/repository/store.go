package repository

import (
	"context"
	"time"

	"github.com/osamaloay/TicketsBooking-sub000/internal/domain"
)

// EventRepository persists events. Soft-deleted events are invisible to reads.
type EventRepository interface {
	Create(ctx context.Context, event *domain.Event) error
	GetByID(ctx context.Context, id string) (*domain.Event, error)
	// GetForUpdate reads the event and locks its row until the transaction ends
	GetForUpdate(ctx context.Context, id string) (*domain.Event, error)
	Update(ctx context.Context, event *domain.Event) error
	UpdateStatus(ctx context.Context, id string, status domain.EventStatus) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
}

// InventoryRepository owns remaining_tickets. Every method is a single atomic statement.
type InventoryRepository interface {
	// Reserve decrements remaining by quantity only if enough remain and the event is approved
	Reserve(ctx context.Context, eventID string, quantity int) (*domain.Reservation, error)
	// Release increments remaining by quantity, capped at total, and returns the new value
	Release(ctx context.Context, eventID string, quantity int) (int, error)
	// SetRemaining overwrites remaining; value must be within [0, total]
	SetRemaining(ctx context.Context, eventID string, value int) error
}

// BookingRepository persists bookings. Bookings are never deleted.
type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	GetForUpdate(ctx context.Context, id string) (*domain.Booking, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, int, error)
	ListConfirmedByEvent(ctx context.Context, eventID string) ([]*domain.Booking, error)
	// Cancel moves the given confirmed bookings to canceled and returns how many changed
	Cancel(ctx context.Context, ids []string, reason domain.CancelReason, at time.Time) (int, error)
}

// RefundRepository persists the refund ledger
type RefundRepository interface {
	// Create inserts the refund, or merges it into the booking's existing row.
	// refund.ID and refund.Attempts are updated to the stored values.
	Create(ctx context.Context, refund *domain.Refund) error
	Update(ctx context.Context, refund *domain.Refund) error
	GetByBookingID(ctx context.Context, bookingID string) (*domain.Refund, error)
	ListByEvent(ctx context.Context, eventID string, status domain.RefundStatus) ([]*domain.Refund, error)
	// ListRetryable returns pending or failed refunds last touched before olderThan
	ListRetryable(ctx context.Context, olderThan time.Time, maxAttempts, limit int) ([]*domain.Refund, error)
}

// OutboxRepository persists outbox messages
type OutboxRepository interface {
	Create(ctx context.Context, msg *domain.OutboxMessage) error
	// GetPending returns pending messages oldest first, skipping rows locked by other relays
	GetPending(ctx context.Context, limit int) ([]*domain.OutboxMessage, error)
	Update(ctx context.Context, msg *domain.OutboxMessage) error
	DeletePublishedBefore(ctx context.Context, before time.Time) (int64, error)
}

// Store groups the repositories and runs them atomically
type Store interface {
	Events() EventRepository
	Inventory() InventoryRepository
	Bookings() BookingRepository
	Refunds() RefundRepository
	Outbox() OutboxRepository
	// WithinTx runs fn against a transaction-bound Store. fn's error rolls
	// everything back. Nested calls roll back independently.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
}
