package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/osamaloay/TicketsBooking-sub000/internal/domain"
	"github.com/osamaloay/TicketsBooking-sub000/internal/gateway"
	"github.com/osamaloay/TicketsBooking-sub000/internal/metrics"
	"github.com/osamaloay/TicketsBooking-sub000/internal/repository"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/logger"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// RefundReconcilerConfig contains configuration for the refund reconciler
type RefundReconcilerConfig struct {
	// BatchSize caps the refunds picked up per run
	BatchSize int
	// MinAge skips records touched more recently, so in-flight settlements finish first
	MinAge time.Duration
	// MaxAttempts is the total gateway calls allowed per refund
	MaxAttempts int
	// Timeout bounds a single gateway call
	Timeout time.Duration
}

// DefaultRefundReconcilerConfig returns default configuration
func DefaultRefundReconcilerConfig() *RefundReconcilerConfig {
	return &RefundReconcilerConfig{
		BatchSize:   50,
		MinAge:      2 * time.Minute,
		MaxAttempts: 10,
		Timeout:     10 * time.Second,
	}
}

// ReconcileResult summarizes one reconciler run
type ReconcileResult struct {
	Scanned   int `json:"scanned"`
	Recovered int `json:"recovered"`
	Failed    int `json:"failed"`
}

// RefundReconciler retries failed and stale pending refunds
type RefundReconciler struct {
	store   repository.Store
	gateway gateway.PaymentGateway
	config  *RefundReconcilerConfig
	log     *logger.Logger
	now     func() time.Time
}

// NewRefundReconciler creates a reconciler. A nil config uses the defaults.
func NewRefundReconciler(store repository.Store, gw gateway.PaymentGateway, config *RefundReconcilerConfig) *RefundReconciler {
	defaults := DefaultRefundReconcilerConfig()
	if config == nil {
		config = defaults
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MinAge < 0 {
		config.MinAge = 0
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	return &RefundReconciler{
		store:   store,
		gateway: gw,
		config:  config,
		log:     logger.Get(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run makes one gateway attempt for each retryable refund
func (r *RefundReconciler) Run(ctx context.Context) (*ReconcileResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "worker.reconciler.run")
	defer span.End()

	refunds, err := r.store.Refunds().ListRetryable(ctx, r.now().Add(-r.config.MinAge), r.config.MaxAttempts, r.config.BatchSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list retryable refunds")
		return nil, fmt.Errorf("list retryable refunds: %w", err)
	}

	result := &ReconcileResult{Scanned: len(refunds)}
	for _, rf := range refunds {
		if err := ctx.Err(); err != nil {
			break
		}
		if r.reconcile(ctx, rf) {
			result.Recovered++
		} else {
			result.Failed++
		}
	}

	metrics.RecordReconcilerRun(ctx, result.Scanned, result.Recovered)
	span.SetAttributes(
		attribute.Int("scanned", result.Scanned),
		attribute.Int("recovered", result.Recovered),
	)
	if result.Scanned > 0 {
		r.log.Info("Refund reconciliation finished",
			zap.Int("scanned", result.Scanned),
			zap.Int("recovered", result.Recovered),
			zap.Int("failed", result.Failed),
		)
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (r *RefundReconciler) reconcile(ctx context.Context, rf *domain.Refund) bool {
	callCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	err := r.gateway.Refund(callCtx, &gateway.RefundRequest{
		Reference: rf.PaymentReference,
		Amount:    rf.Amount,
		Currency:  rf.Currency,
		Reason:    string(rf.Reason),
	})
	cancel()

	now := r.now()
	eventType := domain.EventTypeRefundSucceeded
	if err == nil {
		rf.MarkSucceeded(1, now)
	} else {
		rf.MarkFailed(err, 1, now)
		eventType = domain.EventTypeRefundFailed
		if errors.Is(err, gateway.ErrNotRefundable) && rf.Attempts < r.config.MaxAttempts {
			rf.Attempts = r.config.MaxAttempts
		}
		r.log.Warn("Refund retry failed",
			zap.String("refund_id", rf.ID),
			zap.String("booking_id", rf.BookingID),
			zap.Int("attempts", rf.Attempts),
			zap.Error(err),
		)
	}

	txErr := r.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Refunds().Update(ctx, rf); err != nil {
			return err
		}
		msg, err := domain.RefundOutboxEvent(eventType, rf)
		if err != nil {
			return err
		}
		return tx.Outbox().Create(ctx, msg)
	})
	if txErr != nil {
		r.log.Error("Failed to record refund retry",
			zap.String("refund_id", rf.ID),
			zap.String("booking_id", rf.BookingID),
			zap.Error(txErr),
		)
		return false
	}
	return err == nil
}
