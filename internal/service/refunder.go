package service

import (
	"context"
	"errors"
	"time"

	"github.com/osamaloay/TicketsBooking-sub000/internal/domain"
	"github.com/osamaloay/TicketsBooking-sub000/internal/gateway"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/retry"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// refunder returns a booking's payment through the gateway with backoff
type refunder struct {
	gateway gateway.PaymentGateway
	retrier *retry.Retrier
	timeout time.Duration
}

func newRefunder(gw gateway.PaymentGateway, cfg *retry.Config, timeout time.Duration) *refunder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &refunder{gateway: gw, retrier: retry.New(cfg), timeout: timeout}
}

// refund returns the number of gateway calls made and the final error.
// Bookings with nothing to refund are a no-op.
func (r *refunder) refund(ctx context.Context, b *domain.Booking, reason domain.CancelReason) (int, error) {
	if !b.NeedsRefund() {
		return 0, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "service.settlement.refund")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking_id", b.ID),
		attribute.String("payment_reference", b.PaymentReference),
		attribute.String("gateway", r.gateway.Name()),
	)

	req := &gateway.RefundRequest{
		Reference: b.PaymentReference,
		Amount:    b.TotalPrice,
		Currency:  b.Currency,
		Reason:    string(reason),
	}
	res := r.retrier.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		err := r.gateway.Refund(callCtx, req)
		if errors.Is(err, gateway.ErrNotRefundable) {
			return retry.Permanent(err)
		}
		return err
	})

	span.SetAttributes(attribute.Int("attempts", res.Attempts))
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
		return res.Attempts, res.Err
	}
	span.SetStatus(codes.Ok, "")
	return res.Attempts, nil
}
