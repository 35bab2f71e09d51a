package service

import (
	"context"
	"fmt"
	"time"

	"github.com/osamaloay/TicketsBooking-sub000/internal/domain"
	"github.com/osamaloay/TicketsBooking-sub000/internal/gateway"
	"github.com/osamaloay/TicketsBooking-sub000/internal/metrics"
	"github.com/osamaloay/TicketsBooking-sub000/internal/repository"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/logger"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/retry"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SettlementService refunds the bookings of an event whose lifecycle ended them
type SettlementService interface {
	// SettleForTransition refunds already-canceled bookings concurrently and
	// records every outcome. Failures are reported, never returned.
	SettleForTransition(ctx context.Context, event *domain.Event, bookings []*domain.Booking) *domain.SettlementResult

	// RefundAllForDeletion refunds bookings one by one and stops at the first
	// failure, returning a *domain.SettlementError that wraps ErrRefundFailed.
	RefundAllForDeletion(ctx context.Context, bookings []*domain.Booking) (*domain.SettlementResult, error)
}

// SettlementServiceConfig contains configuration for settlement
type SettlementServiceConfig struct {
	// Concurrency bounds parallel gateway calls during a status transition
	Concurrency int
	// Retry is the per-booking refund backoff policy
	Retry *retry.Config
	// CallTimeout bounds a single gateway call
	CallTimeout time.Duration
	Logger      *logger.Logger
}

type settlementService struct {
	store       repository.Store
	refunder    *refunder
	concurrency int
	log         *logger.Logger
	now         func() time.Time
}

// NewSettlementService creates a new settlement service
func NewSettlementService(store repository.Store, gw gateway.PaymentGateway, cfg *SettlementServiceConfig) SettlementService {
	if cfg == nil {
		cfg = &SettlementServiceConfig{}
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}
	return &settlementService{
		store:       store,
		refunder:    newRefunder(gw, cfg.Retry, cfg.CallTimeout),
		concurrency: concurrency,
		log:         log,
		now:         time.Now,
	}
}

func (s *settlementService) SettleForTransition(ctx context.Context, event *domain.Event, bookings []*domain.Booking) *domain.SettlementResult {
	ctx, span := telemetry.StartSpan(ctx, "service.settlement.transition")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", event.ID), attribute.Int("bookings", len(bookings)))

	// The transition is committed; refunds finish even if the caller goes away
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	result := &domain.SettlementResult{
		Outcomes:        make([]domain.BookingOutcome, len(bookings)),
		RestoredTickets: domain.TotalTickets(bookings),
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, b := range bookings {
		result.Outcomes[i] = domain.NewBookingOutcome(b)
		if result.Outcomes[i].Skipped {
			continue
		}
		g.Go(func() error {
			attempts, err := s.refunder.refund(ctx, b, domain.CancelReasonEventStatus)
			if err != nil {
				result.Outcomes[i].Fail(err, attempts)
			} else {
				result.Outcomes[i].Succeed(attempts)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.recordOutcomes(ctx, event.ID, result)

	failed, succeeded := 0, 0
	for _, o := range result.Outcomes {
		switch {
		case o.Refunded:
			succeeded++
		case o.Failed():
			failed++
		}
	}
	metrics.RecordSettlement(ctx, "transition", succeeded, failed, time.Since(start))
	span.SetAttributes(attribute.Int("refunds_failed", failed))
	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d refunds failed", failed))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return result
}

// recordOutcomes moves the pending refund records written by the transition
// to their final state. A failure here leaves records pending for the reconciler.
func (s *settlementService) recordOutcomes(ctx context.Context, eventID string, result *domain.SettlementResult) {
	if allSkipped(result) {
		return
	}
	now := s.now()
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		for _, o := range result.Outcomes {
			if o.Skipped {
				continue
			}
			rf, err := tx.Refunds().GetByBookingID(ctx, o.BookingID)
			if err != nil {
				return fmt.Errorf("refund record for booking %s: %w", o.BookingID, err)
			}

			eventType := domain.EventTypeRefundSucceeded
			if o.Refunded {
				rf.MarkSucceeded(o.Attempts, now)
			} else {
				rf.MarkFailed(o.Err, o.Attempts, now)
				eventType = domain.EventTypeRefundFailed
				s.log.Error("Settlement refund failed",
					zap.String("event_id", eventID),
					zap.String("booking_id", o.BookingID),
					zap.String("payment_reference", o.PaymentReference),
					zap.Int("attempts", o.Attempts),
					zap.Error(o.Err),
				)
			}
			if err := tx.Refunds().Update(ctx, rf); err != nil {
				return err
			}

			msg, err := domain.RefundOutboxEvent(eventType, rf)
			if err != nil {
				return err
			}
			if err := tx.Outbox().Create(ctx, msg); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error("Failed to record settlement outcomes",
			zap.String("event_id", eventID),
			zap.Error(err),
		)
	}
}

func (s *settlementService) RefundAllForDeletion(ctx context.Context, bookings []*domain.Booking) (*domain.SettlementResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.settlement.deletion")
	defer span.End()
	span.SetAttributes(attribute.Int("bookings", len(bookings)))

	start := time.Now()
	result := &domain.SettlementResult{}
	succeeded := 0

	for _, b := range bookings {
		o := domain.NewBookingOutcome(b)
		if o.Skipped {
			result.Outcomes = append(result.Outcomes, o)
			continue
		}

		// A previous, aborted delete may already have refunded this booking
		if prior, err := s.store.Refunds().GetByBookingID(ctx, b.ID); err == nil && prior.Status == domain.RefundStatusSucceeded {
			o.Succeed(0)
			result.Outcomes = append(result.Outcomes, o)
			continue
		}

		attempts, err := s.refunder.refund(ctx, b, domain.CancelReasonEventDeleted)
		if err != nil {
			o.Fail(err, attempts)
			result.Outcomes = append(result.Outcomes, o)
			metrics.RecordSettlement(ctx, "deletion", succeeded, 1, time.Since(start))

			s.log.Warn("Deletion refund failed, event kept",
				zap.String("event_id", b.EventID),
				zap.String("booking_id", b.ID),
				zap.Int("attempts", attempts),
				zap.Error(err),
			)
			span.RecordError(err)
			span.SetStatus(codes.Error, "refund failed")
			return result, &domain.SettlementError{Err: domain.ErrRefundFailed, Result: result}
		}

		o.Succeed(attempts)
		result.Outcomes = append(result.Outcomes, o)
		succeeded++

		rf := domain.NewRefund(b, domain.CancelReasonEventDeleted, domain.RefundStatusSucceeded, s.now())
		rf.Attempts = attempts
		if err := s.store.Refunds().Create(ctx, rf); err != nil {
			s.log.Error("Failed to record deletion refund",
				zap.String("booking_id", b.ID),
				zap.Error(err),
			)
		}
	}

	metrics.RecordSettlement(ctx, "deletion", succeeded, 0, time.Since(start))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func allSkipped(result *domain.SettlementResult) bool {
	for _, o := range result.Outcomes {
		if !o.Skipped {
			return false
		}
	}
	return true
}
