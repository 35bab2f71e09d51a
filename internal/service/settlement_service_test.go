package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/osamaloay/TicketsBooking-sub000/internal/domain"
	"github.com/osamaloay/TicketsBooking-sub000/internal/gateway"
	"github.com/osamaloay/TicketsBooking-sub000/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettleForTransition_BoundedConcurrency(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	event := seedEvent(t, store, domain.EventStatusApproved, 20, 20)

	var bookings []*domain.Booking
	for i := 0; i < 8; i++ {
		b := seedBooking(t, store, event, "user-1", 1)
		rf := domain.NewRefund(b, domain.CancelReasonEventStatus, domain.RefundStatusPending, time.Now())
		require.NoError(t, store.Refunds().Create(ctx, rf))
		bookings = append(bookings, b)
	}

	var inFlight, peak atomic.Int32
	gw := &MockPaymentGateway{
		RefundFunc: func(ctx context.Context, req *gateway.RefundRequest) error {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			return nil
		},
	}
	svc := NewSettlementService(store, gw, &SettlementServiceConfig{Concurrency: 2, Retry: fastRetry()})

	result := svc.SettleForTransition(ctx, event, bookings)
	assert.False(t, result.HasFailures())
	assert.Len(t, result.Outcomes, 8)
	assert.Equal(t, 8, result.RestoredTickets)
	assert.LessOrEqual(t, peak.Load(), int32(2))

	for i, o := range result.Outcomes {
		assert.Equal(t, bookings[i].ID, o.BookingID, "outcomes keep booking order")
		assert.True(t, o.Refunded)
	}
}

func TestSettleForTransition_SkipsUnpaidBookings(t *testing.T) {
	store := repository.NewMemoryStore()
	event := seedEvent(t, store, domain.EventStatusApproved, 10, 0)
	free := seedBooking(t, store, event, "user-1", 2)
	free.PaymentReference = ""

	gw := &MockPaymentGateway{}
	svc := NewSettlementService(store, gw, &SettlementServiceConfig{Retry: fastRetry()})

	result := svc.SettleForTransition(context.Background(), event, []*domain.Booking{free})
	require.Len(t, result.Outcomes, 1)
	assert.True(t, result.Outcomes[0].Skipped)
	assert.False(t, result.HasFailures())
	assert.Equal(t, 0, gw.RefundCalls(""))
}

func TestSettleForTransition_IgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := repository.NewMemoryStore()
	event := seedEvent(t, store, domain.EventStatusApproved, 10, 20)
	b := seedBooking(t, store, event, "user-1", 1)
	require.NoError(t, store.Refunds().Create(ctx, domain.NewRefund(b, domain.CancelReasonEventStatus, domain.RefundStatusPending, time.Now())))

	gw := &MockPaymentGateway{
		RefundFunc: func(ctx context.Context, req *gateway.RefundRequest) error {
			return ctx.Err()
		},
	}
	svc := NewSettlementService(store, gw, &SettlementServiceConfig{Retry: fastRetry()})

	cancel()
	result := svc.SettleForTransition(ctx, event, []*domain.Booking{b})
	assert.False(t, result.HasFailures())

	rf, err := store.Refunds().GetByBookingID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusSucceeded, rf.Status)
}

func TestRefundAllForDeletion_RecordsEachSuccess(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	event := seedEvent(t, store, domain.EventStatusApproved, 10, 20)
	b1 := seedBooking(t, store, event, "user-1", 1)
	b2 := seedBooking(t, store, event, "user-2", 1)

	gw := &MockPaymentGateway{
		RefundFunc: func(ctx context.Context, req *gateway.RefundRequest) error {
			if req.Reference == b2.PaymentReference {
				return gateway.ErrNotRefundable
			}
			return nil
		},
	}
	svc := NewSettlementService(store, gw, &SettlementServiceConfig{Retry: fastRetry()})

	result, err := svc.RefundAllForDeletion(ctx, []*domain.Booking{b1, b2})
	assert.ErrorIs(t, err, domain.ErrRefundFailed)
	require.Len(t, result.Outcomes, 2)
	assert.True(t, result.Outcomes[0].Refunded)
	assert.True(t, result.Outcomes[1].Failed())
	assert.Equal(t, 1, result.Outcomes[1].Attempts)

	rf, err := store.Refunds().GetByBookingID(ctx, b1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusSucceeded, rf.Status)
	assert.Equal(t, domain.CancelReasonEventDeleted, rf.Reason)

	_, err = store.Refunds().GetByBookingID(ctx, b2.ID)
	assert.Error(t, err, "nothing is written for a failed deletion refund")
}
