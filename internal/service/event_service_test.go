package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/osamaloay/TicketsBooking-sub000/internal/domain"
	"github.com/osamaloay/TicketsBooking-sub000/internal/dto"
	"github.com/osamaloay/TicketsBooking-sub000/internal/gateway"
	"github.com/osamaloay/TicketsBooking-sub000/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEventService(store repository.Store, gw gateway.PaymentGateway, maxRounds int) EventService {
	settlement := NewSettlementService(store, gw, &SettlementServiceConfig{
		Concurrency: 4,
		Retry:       fastRetry(),
		CallTimeout: time.Second,
	})
	return NewEventService(store, settlement, &EventServiceConfig{DeleteMaxRounds: maxRounds})
}

func statusReq(s domain.EventStatus) *dto.UpdateEventRequest {
	v := string(s)
	return &dto.UpdateEventRequest{Status: &v}
}

func fullEditReq(total int, price float64) *dto.UpdateEventRequest {
	title, location := "Renamed", "Hall B"
	startsAt := time.Now().Add(96 * time.Hour)
	return &dto.UpdateEventRequest{
		Title:         &title,
		Location:      &location,
		StartsAt:      &startsAt,
		TotalTickets:  &total,
		TicketPricing: &price,
	}
}

func TestCreateEvent(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newEventService(store, &MockPaymentGateway{}, 3)
	price := 25.0
	req := &dto.CreateEventRequest{
		Title:         "Jazz Night",
		Location:      "Club",
		StartsAt:      time.Now().Add(24 * time.Hour),
		TotalTickets:  50,
		TicketPricing: &price,
	}

	_, err := svc.CreateEvent(context.Background(), stranger, req)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	resp, err := svc.CreateEvent(context.Background(), organizer, req)
	require.NoError(t, err)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, 50, resp.RemainingTickets)
	assert.Equal(t, "USD", resp.Currency)
	assert.Equal(t, organizer.UserID, resp.OrganizerID)

	got, err := svc.GetEvent(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jazz Night", got.Title)
}

func TestUpdateEvent_StatusOnlyTransitions(t *testing.T) {
	tests := []struct {
		from, to   domain.EventStatus
		wantEffect domain.TransitionEffect
	}{
		{domain.EventStatusPending, domain.EventStatusApproved, domain.EffectNone},
		{domain.EventStatusPending, domain.EventStatusDeclined, domain.EffectNone},
		{domain.EventStatusDeclined, domain.EventStatusPending, domain.EffectNone},
		{domain.EventStatusDeclined, domain.EventStatusApproved, domain.EffectResetInventory},
		{domain.EventStatusApproved, domain.EventStatusPending, domain.EffectSettle},
		{domain.EventStatusApproved, domain.EventStatusDeclined, domain.EffectSettle},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			store := repository.NewMemoryStore()
			svc := newEventService(store, &MockPaymentGateway{}, 3)
			event := seedEvent(t, store, tt.from, 10, 20)

			resp, err := svc.UpdateEvent(context.Background(), event.ID, organizer, statusReq(tt.to))
			require.NoError(t, err)
			assert.Equal(t, tt.wantEffect.String(), resp.Effect)
			assert.Equal(t, string(tt.to), resp.Event.Status)
			assert.Contains(t, outboxTypes(t, store), string(domain.EventTypeEventStatusChanged))
		})
	}
}

func TestUpdateEvent_NoopWritesNothing(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newEventService(store, &MockPaymentGateway{}, 3)
	event := seedEvent(t, store, domain.EventStatusDeclined, 10, 20)

	resp, err := svc.UpdateEvent(context.Background(), event.ID, organizer, statusReq(domain.EventStatusDeclined))
	require.NoError(t, err)
	assert.Equal(t, "noop", resp.Effect)
	assert.Empty(t, outboxTypes(t, store))
}

func TestUpdateEvent_SettleRestoresAndRefunds(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	gw := &MockPaymentGateway{}
	svc := newEventService(store, gw, 3)
	event := seedEvent(t, store, domain.EventStatusApproved, 10, 20)

	bookings := []*domain.Booking{
		seedBooking(t, store, event, "user-1", 2),
		seedBooking(t, store, event, "user-2", 2),
		seedBooking(t, store, event, "user-3", 2),
	}
	require.Equal(t, 4, remaining(t, store, event.ID))

	resp, err := svc.UpdateEvent(ctx, event.ID, admin, statusReq(domain.EventStatusDeclined))
	require.NoError(t, err)
	require.NotNil(t, resp.Settlement)
	assert.Equal(t, 6, resp.Settlement.RestoredTickets)
	assert.Equal(t, 3, resp.Settlement.Succeeded)
	assert.Equal(t, 0, resp.Settlement.Failed)
	assert.Equal(t, 10, resp.Event.RemainingTickets)
	assert.Equal(t, 10, remaining(t, store, event.ID))

	for _, b := range bookings {
		got, err := store.Bookings().GetByID(ctx, b.ID)
		require.NoError(t, err)
		assert.True(t, got.IsCanceled())
		assert.Equal(t, domain.CancelReasonEventStatus, got.CancelReason)
		assert.Equal(t, 1, gw.RefundCalls(b.PaymentReference))

		rf, err := store.Refunds().GetByBookingID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.RefundStatusSucceeded, rf.Status)
	}

	types := outboxTypes(t, store)
	assert.Contains(t, types, string(domain.EventTypeEventStatusChanged))
	assert.Contains(t, types, string(domain.EventTypeBookingCanceled))
	assert.Contains(t, types, string(domain.EventTypeRefundSucceeded))

	// Bookings are refused once the event left approved
	booking := newBookingService(store, gw)
	_, err = booking.CreateBooking(ctx, "user-4", bookReq(event.ID, 1))
	assert.ErrorIs(t, err, domain.ErrEventNotBookable)
}

func TestUpdateEvent_PartialRefundFailure(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	event := seedEvent(t, store, domain.EventStatusApproved, 10, 20)
	b1 := seedBooking(t, store, event, "user-1", 2)
	b2 := seedBooking(t, store, event, "user-2", 2)
	b3 := seedBooking(t, store, event, "user-3", 2)

	gw := &MockPaymentGateway{
		RefundFunc: func(ctx context.Context, req *gateway.RefundRequest) error {
			if req.Reference == b2.PaymentReference {
				return errGatewayDown
			}
			return nil
		},
	}
	svc := newEventService(store, gw, 3)

	resp, err := svc.UpdateEvent(ctx, event.ID, organizer, statusReq(domain.EventStatusPending))
	require.NoError(t, err, "the transition commits regardless of refunds")
	require.NotNil(t, resp.Settlement)
	assert.Equal(t, 1, resp.Settlement.Failed)
	assert.Equal(t, 2, resp.Settlement.Succeeded)
	assert.Equal(t, 6, resp.Settlement.RestoredTickets)
	assert.Equal(t, 10, remaining(t, store, event.ID))

	for _, b := range []*domain.Booking{b1, b2, b3} {
		got, err := store.Bookings().GetByID(ctx, b.ID)
		require.NoError(t, err)
		assert.True(t, got.IsCanceled(), b.ID)
	}

	rf, err := store.Refunds().GetByBookingID(ctx, b2.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusFailed, rf.Status)
	assert.Equal(t, 3, rf.Attempts)
	assert.NotEmpty(t, rf.LastError)

	failures, err := svc.ListSettlementFailures(ctx, event.ID, organizer)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, b2.ID, failures[0].BookingID)

	_, err = svc.ListSettlementFailures(ctx, event.ID, stranger)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	assert.Contains(t, outboxTypes(t, store), string(domain.EventTypeRefundFailed))
}

func TestUpdateEvent_ResetInventory(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := newEventService(store, &MockPaymentGateway{}, 3)
	event := seedEvent(t, store, domain.EventStatusDeclined, 10, 20)
	require.NoError(t, store.Inventory().SetRemaining(ctx, event.ID, 3))

	resp, err := svc.UpdateEvent(ctx, event.ID, organizer, statusReq(domain.EventStatusApproved))
	require.NoError(t, err)
	assert.Equal(t, 10, resp.Event.RemainingTickets)
	assert.Equal(t, 10, remaining(t, store, event.ID))
}

func TestUpdateEvent_FullEdit(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := newEventService(store, &MockPaymentGateway{}, 3)
	event := seedEvent(t, store, domain.EventStatusApproved, 10, 20)
	seedBooking(t, store, event, "user-1", 4)

	resp, err := svc.UpdateEvent(ctx, event.ID, organizer, fullEditReq(15, 30))
	require.NoError(t, err)
	assert.Equal(t, "noop", resp.Effect)
	assert.Equal(t, "Renamed", resp.Event.Title)
	assert.Equal(t, 15, resp.Event.TotalTickets)
	assert.Equal(t, 11, resp.Event.RemainingTickets)
	assert.Equal(t, 11, remaining(t, store, event.ID))

	_, err = svc.UpdateEvent(ctx, event.ID, organizer, fullEditReq(3, 30))
	assert.ErrorIs(t, err, domain.ErrValidation, "cannot shrink below sold")

	partial := &dto.UpdateEventRequest{Title: fullEditReq(15, 30).Title}
	_, err = svc.UpdateEvent(ctx, event.ID, organizer, partial)
	assert.ErrorIs(t, err, domain.ErrValidation, "full edit needs the required set")
}

func TestUpdateEvent_InvalidEditWithSameStatus(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newEventService(store, &MockPaymentGateway{}, 3)
	event := seedEvent(t, store, domain.EventStatusPending, 10, 20)

	req := fullEditReq(0, 20)
	same := string(domain.EventStatusPending)
	req.Status = &same
	_, err := svc.UpdateEvent(context.Background(), event.ID, organizer, req)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.NotErrorIs(t, err, domain.ErrValidation)

	other := string(domain.EventStatusApproved)
	req.Status = &other
	_, err = svc.UpdateEvent(context.Background(), event.ID, organizer, req)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUpdateEvent_Authorization(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newEventService(store, &MockPaymentGateway{}, 3)
	event := seedEvent(t, store, domain.EventStatusPending, 10, 20)

	_, err := svc.UpdateEvent(context.Background(), event.ID, stranger, statusReq(domain.EventStatusApproved))
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.UpdateEvent(context.Background(), "00000000-0000-0000-0000-000000000000", admin, statusReq(domain.EventStatusApproved))
	assert.ErrorIs(t, err, domain.ErrEventNotFound)

	_, err = svc.UpdateEvent(context.Background(), event.ID, organizer, &dto.UpdateEventRequest{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDeleteEvent(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	gw := &MockPaymentGateway{}
	svc := newEventService(store, gw, 3)
	event := seedEvent(t, store, domain.EventStatusApproved, 10, 20)
	b1 := seedBooking(t, store, event, "user-1", 3)
	b2 := seedBooking(t, store, event, "user-2", 3)

	_, err := svc.DeleteEvent(ctx, event.ID, stranger)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	resp, err := svc.DeleteEvent(ctx, event.ID, organizer)
	require.NoError(t, err)
	assert.True(t, resp.Deleted)
	assert.Equal(t, 6, resp.Settlement.RestoredTickets)
	assert.Equal(t, 2, resp.Settlement.Succeeded)

	_, err = store.Events().GetByID(ctx, event.ID)
	assert.ErrorIs(t, err, domain.ErrEventNotFound)

	for _, b := range []*domain.Booking{b1, b2} {
		got, err := store.Bookings().GetByID(ctx, b.ID)
		require.NoError(t, err)
		assert.True(t, got.IsCanceled())
		assert.Equal(t, domain.CancelReasonEventDeleted, got.CancelReason)
	}
	assert.Contains(t, outboxTypes(t, store), string(domain.EventTypeEventDeleted))
}

func TestDeleteEvent_RefundFailureKeepsEverything(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	event := seedEvent(t, store, domain.EventStatusApproved, 10, 20)
	b1 := seedBooking(t, store, event, "user-1", 2)
	b2 := seedBooking(t, store, event, "user-2", 2)
	b3 := seedBooking(t, store, event, "user-3", 2)

	var broken atomic.Bool
	broken.Store(true)
	gw := &MockPaymentGateway{
		RefundFunc: func(ctx context.Context, req *gateway.RefundRequest) error {
			if broken.Load() && req.Reference == b2.PaymentReference {
				return errGatewayDown
			}
			return nil
		},
	}
	svc := newEventService(store, gw, 3)

	_, err := svc.DeleteEvent(ctx, event.ID, organizer)
	require.ErrorIs(t, err, domain.ErrRefundFailed)
	var settleErr *domain.SettlementError
	require.True(t, errors.As(err, &settleErr))
	assert.Len(t, settleErr.Result.Outcomes, 2, "stops at the first failure")
	assert.Equal(t, 0, gw.RefundCalls(b3.PaymentReference))

	_, err = store.Events().GetByID(ctx, event.ID)
	assert.NoError(t, err, "event is not deleted")
	assert.Equal(t, 4, remaining(t, store, event.ID))
	for _, b := range []*domain.Booking{b1, b2, b3} {
		got, err := store.Bookings().GetByID(ctx, b.ID)
		require.NoError(t, err)
		assert.True(t, got.IsConfirmed())
	}

	broken.Store(false)
	resp, err := svc.DeleteEvent(ctx, event.ID, organizer)
	require.NoError(t, err)
	assert.True(t, resp.Deleted)
	assert.Equal(t, 1, gw.RefundCalls(b1.PaymentReference), "already refunded booking is skipped")
	assert.Equal(t, 1, gw.RefundCalls(b3.PaymentReference))
}

func TestDeleteEvent_RefundsLateBookings(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	event := seedEvent(t, store, domain.EventStatusApproved, 10, 20)
	seedBooking(t, store, event, "user-1", 2)

	var late *domain.Booking
	gw := &MockPaymentGateway{}
	gw.RefundFunc = func(ctx context.Context, req *gateway.RefundRequest) error {
		if late == nil {
			late = seedBooking(t, store, event, "user-2", 1)
		}
		return nil
	}
	svc := newEventService(store, gw, 3)

	resp, err := svc.DeleteEvent(ctx, event.ID, organizer)
	require.NoError(t, err)
	require.NotNil(t, late)
	assert.Equal(t, 1, gw.RefundCalls(late.PaymentReference))
	assert.Equal(t, 3, resp.Settlement.RestoredTickets)

	got, err := store.Bookings().GetByID(ctx, late.ID)
	require.NoError(t, err)
	assert.True(t, got.IsCanceled())
}

func TestDeleteEvent_TooManyRounds(t *testing.T) {
	store := repository.NewMemoryStore()
	event := seedEvent(t, store, domain.EventStatusApproved, 10, 20)
	seedBooking(t, store, event, "user-1", 1)

	gw := &MockPaymentGateway{}
	gw.RefundFunc = func(ctx context.Context, req *gateway.RefundRequest) error {
		seedBooking(t, store, event, "user-2", 1)
		return nil
	}
	svc := newEventService(store, gw, 2)

	_, err := svc.DeleteEvent(context.Background(), event.ID, organizer)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = store.Events().GetByID(context.Background(), event.ID)
	assert.NoError(t, err)
}
