package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/osamaloay/TicketsBooking-sub000/internal/domain"
	"github.com/osamaloay/TicketsBooking-sub000/internal/gateway"
	"github.com/osamaloay/TicketsBooking-sub000/internal/repository"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/retry"
	"github.com/stretchr/testify/require"
)

var errGatewayDown = errors.New("gateway unavailable")

// MockPaymentGateway is a mock implementation of gateway.PaymentGateway.
// Without overrides captures succeed with a fresh reference and refunds succeed.
type MockPaymentGateway struct {
	CaptureFunc func(ctx context.Context, req *gateway.CaptureRequest) (*gateway.CaptureResponse, error)
	RefundFunc  func(ctx context.Context, req *gateway.RefundRequest) error

	mu       sync.Mutex
	captures int
	refunds  map[string]int
	seq      atomic.Int64
}

func (m *MockPaymentGateway) Capture(ctx context.Context, req *gateway.CaptureRequest) (*gateway.CaptureResponse, error) {
	m.mu.Lock()
	m.captures++
	m.mu.Unlock()
	if m.CaptureFunc != nil {
		return m.CaptureFunc(ctx, req)
	}
	return &gateway.CaptureResponse{
		Reference: fmt.Sprintf("pay_%d", m.seq.Add(1)),
		Status:    "succeeded",
	}, nil
}

func (m *MockPaymentGateway) Refund(ctx context.Context, req *gateway.RefundRequest) error {
	m.mu.Lock()
	if m.refunds == nil {
		m.refunds = make(map[string]int)
	}
	m.refunds[req.Reference]++
	m.mu.Unlock()
	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, req)
	}
	return nil
}

func (m *MockPaymentGateway) Name() string {
	return "test"
}

func (m *MockPaymentGateway) CaptureCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.captures
}

// RefundCalls returns how often reference was refunded, or the total when reference is empty
func (m *MockPaymentGateway) RefundCalls(reference string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reference != "" {
		return m.refunds[reference]
	}
	n := 0
	for _, c := range m.refunds {
		n += c
	}
	return n
}

func fastRetry() *retry.Config {
	return &retry.Config{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
	}
}

var (
	organizer = domain.Actor{UserID: "organizer-1", Role: domain.RoleOrganizer}
	admin     = domain.Actor{UserID: "admin-1", Role: domain.RoleAdmin}
	stranger  = domain.Actor{UserID: "user-9", Role: domain.RoleStandard}
)

func seedEvent(t *testing.T, store repository.Store, status domain.EventStatus, total int, price float64) *domain.Event {
	t.Helper()
	now := time.Now()
	e := &domain.Event{
		ID:               uuid.NewString(),
		OrganizerID:      organizer.UserID,
		Title:            "Concert",
		Location:         "Hall A",
		StartsAt:         now.Add(72 * time.Hour),
		TotalTickets:     total,
		RemainingTickets: total,
		Status:           status,
		TicketPricing:    price,
		Currency:         "USD",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, store.Events().Create(context.Background(), e))
	return e
}

// seedBooking reserves qty tickets and stores a confirmed, paid booking
func seedBooking(t *testing.T, store repository.Store, e *domain.Event, userID string, qty int) *domain.Booking {
	t.Helper()
	ctx := context.Background()
	_, err := store.Inventory().Reserve(ctx, e.ID, qty)
	require.NoError(t, err)

	now := time.Now()
	b := &domain.Booking{
		ID:               uuid.NewString(),
		EventID:          e.ID,
		UserID:           userID,
		NumberOfTickets:  qty,
		UnitPrice:        e.TicketPricing,
		TotalPrice:       domain.BookingTotal(qty, e.TicketPricing),
		Currency:         e.Currency,
		Status:           domain.BookingStatusConfirmed,
		PaymentReference: "pay_" + uuid.NewString()[:8],
		CreatedAt:        now,
		ConfirmedAt:      &now,
	}
	require.NoError(t, store.Bookings().Create(ctx, b))
	return b
}

func remaining(t *testing.T, store repository.Store, eventID string) int {
	t.Helper()
	e, err := store.Events().GetByID(context.Background(), eventID)
	require.NoError(t, err)
	return e.RemainingTickets
}

func outboxTypes(t *testing.T, store repository.Store) []string {
	t.Helper()
	msgs, err := store.Outbox().GetPending(context.Background(), 1000)
	require.NoError(t, err)
	types := make([]string, len(msgs))
	for i, m := range msgs {
		types[i] = m.EventType
	}
	return types
}

// assertBalanced checks that every ticket is either remaining or held by a confirmed booking
func assertBalanced(t *testing.T, store repository.Store, eventID string) {
	t.Helper()
	ctx := context.Background()
	e, err := store.Events().GetByID(ctx, eventID)
	require.NoError(t, err)
	bookings, err := store.Bookings().ListConfirmedByEvent(ctx, eventID)
	require.NoError(t, err)
	require.Equal(t, e.TotalTickets, e.RemainingTickets+domain.TotalTickets(bookings),
		"remaining=%d confirmed=%d total=%d", e.RemainingTickets, domain.TotalTickets(bookings), e.TotalTickets)
}

// txFailingStore fails every transaction with err
type txFailingStore struct {
	repository.Store
	err error
}

func (s *txFailingStore) WithinTx(context.Context, func(tx repository.Store) error) error {
	return s.err
}
