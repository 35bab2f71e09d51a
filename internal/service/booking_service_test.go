package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
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

func newBookingService(store repository.Store, gw gateway.PaymentGateway) BookingService {
	return NewBookingService(store, gw, &BookingServiceConfig{
		MaxTicketsPerBooking: 10,
		PaymentTimeout:       50 * time.Millisecond,
		CompensationTimeout:  time.Second,
		RefundRetry:          fastRetry(),
	})
}

func bookReq(eventID string, qty int) *dto.CreateBookingRequest {
	return &dto.CreateBookingRequest{EventID: eventID, Quantity: qty, PaymentMethod: "pm_card_visa"}
}

func TestCreateBooking_WorkedExample(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	gw := &MockPaymentGateway{}
	svc := newBookingService(store, gw)
	event := seedEvent(t, store, domain.EventStatusApproved, 10, 20)

	resp, err := svc.CreateBooking(ctx, "user-1", bookReq(event.ID, 4))
	require.NoError(t, err)
	assert.Equal(t, 80.0, resp.TotalPrice)
	assert.Equal(t, "confirmed", resp.Status)
	assert.NotEmpty(t, resp.PaymentReference)
	assert.Equal(t, 6, remaining(t, store, event.ID))

	_, err = svc.CreateBooking(ctx, "user-2", bookReq(event.ID, 7))
	assert.ErrorIs(t, err, domain.ErrInsufficientInventory)
	assert.Equal(t, 6, remaining(t, store, event.ID))
	assert.Equal(t, 1, gw.CaptureCalls(), "no charge without inventory")

	assert.Equal(t, []string{string(domain.EventTypeBookingConfirmed)}, outboxTypes(t, store))
}

func TestCreateBooking_Validation(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newBookingService(store, &MockPaymentGateway{})
	event := seedEvent(t, store, domain.EventStatusApproved, 10, 20)

	tests := []struct {
		name    string
		userID  string
		req     *dto.CreateBookingRequest
		wantErr error
	}{
		{name: "missing user", userID: "", req: bookReq(event.ID, 1), wantErr: domain.ErrInvalidUserID},
		{name: "missing event", userID: "u", req: bookReq("", 1), wantErr: domain.ErrInvalidEventID},
		{name: "zero quantity", userID: "u", req: bookReq(event.ID, 0), wantErr: domain.ErrInvalidQuantity},
		{name: "over limit", userID: "u", req: bookReq(event.ID, 11), wantErr: domain.ErrInvalidQuantity},
		{
			name:    "missing payment method",
			userID:  "u",
			req:     &dto.CreateBookingRequest{EventID: event.ID, Quantity: 1},
			wantErr: domain.ErrMissingPaymentMethod,
		},
		{name: "unknown event", userID: "u", req: bookReq("00000000-0000-0000-0000-000000000000", 1), wantErr: domain.ErrEventNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateBooking(context.Background(), tt.userID, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Equal(t, 10, remaining(t, store, event.ID))
}

func TestCreateBooking_NotBookable(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newBookingService(store, &MockPaymentGateway{})

	for _, status := range []domain.EventStatus{domain.EventStatusPending, domain.EventStatusDeclined} {
		event := seedEvent(t, store, status, 10, 20)
		_, err := svc.CreateBooking(context.Background(), "user-1", bookReq(event.ID, 1))
		assert.ErrorIs(t, err, domain.ErrEventNotBookable, status)
		assert.Equal(t, 10, remaining(t, store, event.ID))
	}
}

func TestCreateBooking_CaptureFailureReleases(t *testing.T) {
	store := repository.NewMemoryStore()
	gw := &MockPaymentGateway{
		CaptureFunc: func(ctx context.Context, req *gateway.CaptureRequest) (*gateway.CaptureResponse, error) {
			return nil, gateway.ErrCaptureDeclined
		},
	}
	svc := newBookingService(store, gw)
	event := seedEvent(t, store, domain.EventStatusApproved, 10, 20)

	_, err := svc.CreateBooking(context.Background(), "user-1", bookReq(event.ID, 3))
	assert.ErrorIs(t, err, domain.ErrPaymentFailed)
	assert.Equal(t, 10, remaining(t, store, event.ID))

	page, err := svc.ListUserBookings(context.Background(), "user-1", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
	assert.Empty(t, outboxTypes(t, store))
}

func TestCreateBooking_CaptureTimeoutReleases(t *testing.T) {
	store := repository.NewMemoryStore()
	gw := &MockPaymentGateway{
		CaptureFunc: func(ctx context.Context, req *gateway.CaptureRequest) (*gateway.CaptureResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	svc := newBookingService(store, gw)
	event := seedEvent(t, store, domain.EventStatusApproved, 10, 20)

	_, err := svc.CreateBooking(context.Background(), "user-1", bookReq(event.ID, 2))
	assert.ErrorIs(t, err, domain.ErrPaymentFailed)
	assert.Equal(t, 10, remaining(t, store, event.ID))
}

func TestCreateBooking_CallerCancelStillReleases(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	gw := &MockPaymentGateway{
		CaptureFunc: func(ctx context.Context, req *gateway.CaptureRequest) (*gateway.CaptureResponse, error) {
			cancel()
			return nil, ctx.Err()
		},
	}
	svc := newBookingService(store, gw)
	event := seedEvent(t, store, domain.EventStatusApproved, 10, 20)

	_, err := svc.CreateBooking(ctx, "user-1", bookReq(event.ID, 5))
	assert.Error(t, err)
	assert.Equal(t, 10, remaining(t, store, event.ID))
}

func TestCreateBooking_EventClosedDuringCapture(t *testing.T) {
	store := repository.NewMemoryStore()
	event := seedEvent(t, store, domain.EventStatusApproved, 10, 20)
	gw := &MockPaymentGateway{}
	gw.CaptureFunc = func(ctx context.Context, req *gateway.CaptureRequest) (*gateway.CaptureResponse, error) {
		require.NoError(t, store.Events().UpdateStatus(ctx, event.ID, domain.EventStatusDeclined))
		return &gateway.CaptureResponse{Reference: "pay_raced", Status: "succeeded"}, nil
	}
	svc := newBookingService(store, gw)

	_, err := svc.CreateBooking(context.Background(), "user-1", bookReq(event.ID, 2))
	assert.ErrorIs(t, err, domain.ErrEventNotBookable)
	assert.Equal(t, 1, gw.RefundCalls("pay_raced"), "captured payment is returned")
	assert.Equal(t, 10, remaining(t, store, event.ID))
}

func TestCreateBooking_FreeEventSkipsCapture(t *testing.T) {
	store := repository.NewMemoryStore()
	gw := &MockPaymentGateway{}
	svc := newBookingService(store, gw)
	event := seedEvent(t, store, domain.EventStatusApproved, 10, 0)

	resp, err := svc.CreateBooking(context.Background(), "user-1", bookReq(event.ID, 2))
	require.NoError(t, err)
	assert.Equal(t, 0.0, resp.TotalPrice)
	assert.Empty(t, resp.PaymentReference)
	assert.Equal(t, 0, gw.CaptureCalls())
	assert.Equal(t, 8, remaining(t, store, event.ID))
}

func TestCreateBooking_ConcurrentNoOversell(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newBookingService(store, &MockPaymentGateway{})
	event := seedEvent(t, store, domain.EventStatusApproved, 5, 20)

	var (
		wg           sync.WaitGroup
		succeeded    atomic.Int32
		insufficient atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateBooking(context.Background(), "user-1", bookReq(event.ID, 1))
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrInsufficientInventory):
				insufficient.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), succeeded.Load())
	assert.Equal(t, int32(15), insufficient.Load())
	assert.Equal(t, 0, remaining(t, store, event.ID))
}

func TestCancelBooking(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	gw := &MockPaymentGateway{}
	svc := newBookingService(store, gw)
	event := seedEvent(t, store, domain.EventStatusApproved, 10, 20)

	created, err := svc.CreateBooking(ctx, "user-1", bookReq(event.ID, 3))
	require.NoError(t, err)

	_, err = svc.CancelBooking(ctx, created.ID, "user-2")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	resp, err := svc.CancelBooking(ctx, created.ID, "user-1")
	require.NoError(t, err)
	assert.True(t, resp.Refunded)
	assert.Equal(t, 3, resp.ReleasedTickets)
	assert.Equal(t, 10, remaining(t, store, event.ID))
	assert.Equal(t, 1, gw.RefundCalls(created.PaymentReference))

	rf, err := store.Refunds().GetByBookingID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusSucceeded, rf.Status)
	assert.Equal(t, domain.CancelReasonUser, rf.Reason)

	_, err = svc.CancelBooking(ctx, created.ID, "user-1")
	assert.ErrorIs(t, err, domain.ErrAlreadyCanceled)

	_, err = svc.CancelBooking(ctx, "00000000-0000-0000-0000-000000000000", "user-1")
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)
}

func TestCancelBooking_RefundFailureKeepsBooking(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	gw := &MockPaymentGateway{
		RefundFunc: func(ctx context.Context, req *gateway.RefundRequest) error {
			return errGatewayDown
		},
	}
	svc := newBookingService(store, gw)
	event := seedEvent(t, store, domain.EventStatusApproved, 10, 20)
	booking := seedBooking(t, store, event, "user-1", 2)

	_, err := svc.CancelBooking(ctx, booking.ID, "user-1")
	assert.ErrorIs(t, err, domain.ErrRefundFailed)
	assert.Equal(t, 3, gw.RefundCalls(booking.PaymentReference), "first attempt plus two retries")

	got, err := store.Bookings().GetByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.True(t, got.IsConfirmed())
	assert.Equal(t, 8, remaining(t, store, event.ID))
}

func TestCancelBooking_NotRefundableIsNotRetried(t *testing.T) {
	store := repository.NewMemoryStore()
	gw := &MockPaymentGateway{
		RefundFunc: func(ctx context.Context, req *gateway.RefundRequest) error {
			return gateway.ErrNotRefundable
		},
	}
	svc := newBookingService(store, gw)
	event := seedEvent(t, store, domain.EventStatusApproved, 10, 20)
	booking := seedBooking(t, store, event, "user-1", 1)

	_, err := svc.CancelBooking(context.Background(), booking.ID, "user-1")
	assert.ErrorIs(t, err, domain.ErrRefundFailed)
	assert.Equal(t, 1, gw.RefundCalls(booking.PaymentReference))
}

func TestGetBooking(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := newBookingService(store, &MockPaymentGateway{})
	event := seedEvent(t, store, domain.EventStatusApproved, 10, 20)
	booking := seedBooking(t, store, event, "user-1", 1)

	got, err := svc.GetBooking(ctx, booking.ID, domain.Actor{UserID: "user-1", Role: domain.RoleStandard})
	require.NoError(t, err)
	assert.Equal(t, booking.ID, got.ID)

	_, err = svc.GetBooking(ctx, booking.ID, admin)
	assert.NoError(t, err)

	_, err = svc.GetBooking(ctx, booking.ID, stranger)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestListUserBookings(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := newBookingService(store, &MockPaymentGateway{})
	event := seedEvent(t, store, domain.EventStatusApproved, 10, 20)

	var last *domain.Booking
	for i := 0; i < 3; i++ {
		last = seedBooking(t, store, event, "user-1", 1)
	}
	seedBooking(t, store, event, "user-2", 1)

	page, err := svc.ListUserBookings(ctx, "user-1", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.PageSize)
	items := page.Data.([]*dto.BookingResponse)
	require.Len(t, items, 2)
	assert.Equal(t, last.ID, items[0].ID, "newest first")

	page, err = svc.ListUserBookings(ctx, "user-1", 0, 500)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)

	_, err = svc.ListUserBookings(ctx, "", 1, 20)
	assert.ErrorIs(t, err, domain.ErrInvalidUserID)
}

func TestCancelBooking_LosingConcurrentCancel(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	event := seedEvent(t, store, domain.EventStatusApproved, 10, 20)
	booking := seedBooking(t, store, event, "user-1", 2)

	// The other request refunds and cancels first, so this refund is rejected
	gw := &MockPaymentGateway{
		RefundFunc: func(ctx context.Context, req *gateway.RefundRequest) error {
			_, err := store.Bookings().Cancel(ctx, []string{booking.ID}, domain.CancelReasonUser, time.Now())
			require.NoError(t, err)
			return fmt.Errorf("%w: already refunded", gateway.ErrNotRefundable)
		},
	}
	svc := newBookingService(store, gw)

	_, err := svc.CancelBooking(ctx, booking.ID, "user-1")
	assert.ErrorIs(t, err, domain.ErrAlreadyCanceled)
	assert.NotErrorIs(t, err, domain.ErrRefundFailed)
}
