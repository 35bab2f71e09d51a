package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/osamaloay/TicketsBooking-sub000/internal/domain"
	"github.com/osamaloay/TicketsBooking-sub000/internal/dto"
	"github.com/osamaloay/TicketsBooking-sub000/internal/gateway"
	"github.com/osamaloay/TicketsBooking-sub000/internal/metrics"
	"github.com/osamaloay/TicketsBooking-sub000/internal/repository"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/logger"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/retry"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// BookingService defines the interface for booking business logic
type BookingService interface {
	// CreateBooking reserves inventory, captures payment and confirms the booking
	CreateBooking(ctx context.Context, userID string, req *dto.CreateBookingRequest) (*dto.BookingResponse, error)

	// CancelBooking refunds the payer and returns the tickets to inventory
	CancelBooking(ctx context.Context, bookingID, userID string) (*dto.CancelBookingResponse, error)

	// GetBooking retrieves a booking visible to the requester
	GetBooking(ctx context.Context, bookingID string, requester domain.Actor) (*dto.BookingResponse, error)

	// ListUserBookings retrieves a page of the user's bookings, newest first
	ListUserBookings(ctx context.Context, userID string, page, pageSize int) (*dto.PaginatedResponse, error)
}

// BookingServiceConfig contains configuration for booking service
type BookingServiceConfig struct {
	MaxTicketsPerBooking int
	DefaultCurrency      string
	// PaymentTimeout bounds the capture call
	PaymentTimeout time.Duration
	// CompensationTimeout bounds compensating actions, which run detached from the caller
	CompensationTimeout time.Duration
	RefundRetry         *retry.Config
	Logger              *logger.Logger
}

type bookingService struct {
	store               repository.Store
	gateway             gateway.PaymentGateway
	refunder            *refunder
	maxTickets          int
	defaultCurrency     string
	paymentTimeout      time.Duration
	compensationTimeout time.Duration
	log                 *logger.Logger
	now                 func() time.Time
}

// NewBookingService creates a new booking service
func NewBookingService(store repository.Store, gw gateway.PaymentGateway, cfg *BookingServiceConfig) BookingService {
	if cfg == nil {
		cfg = &BookingServiceConfig{}
	}
	s := &bookingService{
		store:               store,
		gateway:             gw,
		maxTickets:          10,
		defaultCurrency:     "USD",
		paymentTimeout:      10 * time.Second,
		compensationTimeout: 30 * time.Second,
		log:                 cfg.Logger,
		now:                 time.Now,
	}
	if cfg.MaxTicketsPerBooking > 0 {
		s.maxTickets = cfg.MaxTicketsPerBooking
	}
	if cfg.DefaultCurrency != "" {
		s.defaultCurrency = cfg.DefaultCurrency
	}
	if cfg.PaymentTimeout > 0 {
		s.paymentTimeout = cfg.PaymentTimeout
	}
	if cfg.CompensationTimeout > 0 {
		s.compensationTimeout = cfg.CompensationTimeout
	}
	if s.log == nil {
		s.log = logger.Get()
	}
	s.refunder = newRefunder(gw, cfg.RefundRetry, s.paymentTimeout)
	return s
}

func (s *bookingService) validate(userID string, req *dto.CreateBookingRequest) error {
	switch {
	case userID == "":
		return domain.ErrInvalidUserID
	case req == nil || strings.TrimSpace(req.EventID) == "":
		return domain.ErrInvalidEventID
	case req.Quantity < 1 || req.Quantity > s.maxTickets:
		return domain.ErrInvalidQuantity
	case strings.TrimSpace(req.PaymentMethod) == "":
		return domain.ErrMissingPaymentMethod
	}
	return nil
}

// CreateBooking reserves inventory, captures payment and confirms the booking.
// Every failure after the reservation runs a compensating release.
func (s *bookingService) CreateBooking(ctx context.Context, userID string, req *dto.CreateBookingRequest) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.create")
	defer span.End()

	if err := s.validate(userID, req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		metrics.RecordBookingRejected(ctx, "validation")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("event_id", req.EventID),
		attribute.Int("quantity", req.Quantity),
	)

	event, err := s.store.Events().GetByID(ctx, req.EventID)
	if err != nil {
		return nil, s.fail(ctx, span, "event_lookup", err)
	}
	if !event.IsBookable() {
		return nil, s.fail(ctx, span, "not_bookable", domain.ErrEventNotBookable)
	}

	// Step 1: take the tickets. Nothing has been charged yet.
	reservation, err := s.store.Inventory().Reserve(ctx, event.ID, req.Quantity)
	if err != nil {
		return nil, s.fail(ctx, span, "reserve", err)
	}
	span.SetAttributes(attribute.Int("remaining", reservation.Remaining))

	currency := event.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}
	booking := &domain.Booking{
		ID:              uuid.NewString(),
		EventID:         event.ID,
		UserID:          userID,
		NumberOfTickets: req.Quantity,
		UnitPrice:       event.TicketPricing,
		TotalPrice:      domain.BookingTotal(req.Quantity, event.TicketPricing),
		Currency:        currency,
		Status:          domain.BookingStatusConfirmed,
	}

	// Step 2: charge the payer
	if booking.TotalPrice > 0 {
		ref, err := s.capture(ctx, booking, req.PaymentMethod)
		if err != nil {
			s.release(ctx, booking)
			return nil, s.fail(ctx, span, "payment", fmt.Errorf("%w: %v", domain.ErrPaymentFailed, err))
		}
		booking.PaymentReference = ref
	}

	// Step 3: persist, unless the event changed status after the reservation
	now := s.now()
	booking.CreatedAt = now
	booking.ConfirmedAt = &now
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		current, err := tx.Events().GetForUpdate(ctx, event.ID)
		if err != nil {
			if errors.Is(err, domain.ErrEventNotFound) {
				return domain.ErrEventNotBookable
			}
			return err
		}
		if !current.IsBookable() || current.StatusEpoch != reservation.StatusEpoch {
			return domain.ErrEventNotBookable
		}
		if err := tx.Bookings().Create(ctx, booking); err != nil {
			return err
		}
		msg, err := domain.BookingOutboxEvent(domain.EventTypeBookingConfirmed, booking)
		if err != nil {
			return err
		}
		return tx.Outbox().Create(ctx, msg)
	})
	if err != nil {
		reason := domain.CancelReasonNotStored
		if errors.Is(err, domain.ErrEventNotBookable) {
			reason = domain.CancelReasonEventStatus
		}
		s.refundCapture(ctx, booking, reason)
		s.release(ctx, booking)
		return nil, s.fail(ctx, span, "persist", err)
	}

	metrics.RecordBookingConfirmed(ctx, event.ID, booking.NumberOfTickets)
	span.SetAttributes(attribute.String("booking_id", booking.ID))
	span.SetStatus(codes.Ok, "")
	return dto.FromDomain(booking), nil
}

func (s *bookingService) capture(ctx context.Context, b *domain.Booking, paymentMethod string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.paymentTimeout)
	defer cancel()

	start := time.Now()
	resp, err := s.gateway.Capture(ctx, &gateway.CaptureRequest{
		Amount:        b.TotalPrice,
		Currency:      b.Currency,
		PaymentMethod: paymentMethod,
		Metadata: map[string]string{
			"booking_id":      b.ID,
			"event_id":        b.EventID,
			"user_id":         b.UserID,
			"idempotency_key": b.ID,
		},
	})
	metrics.RecordCapture(ctx, s.gateway.Name(), time.Since(start), err)
	if err != nil {
		return "", err
	}
	return resp.Reference, nil
}

// release returns a failed booking's tickets on a context the caller cannot cancel
func (s *bookingService) release(ctx context.Context, b *domain.Booking) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.compensationTimeout)
	defer cancel()

	metrics.RecordCompensation(ctx, "release")
	telemetry.AddSpanEvent(ctx, "compensation.release", attribute.Int("tickets", b.NumberOfTickets))
	if _, err := s.store.Inventory().Release(ctx, b.EventID, b.NumberOfTickets); err != nil {
		s.log.Error("Compensating release failed",
			zap.String("event_id", b.EventID),
			zap.String("booking_id", b.ID),
			zap.Int("tickets", b.NumberOfTickets),
			zap.Error(err),
		)
	}
}

// refundCapture returns a captured payment whose booking could not be stored
func (s *bookingService) refundCapture(ctx context.Context, b *domain.Booking, reason domain.CancelReason) {
	if !b.NeedsRefund() {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.compensationTimeout)
	defer cancel()

	metrics.RecordCompensation(ctx, "refund")
	telemetry.AddSpanEvent(ctx, "compensation.refund",
		attribute.String("payment_reference", b.PaymentReference),
		attribute.String("reason", string(reason)),
	)
	if attempts, err := s.refunder.refund(ctx, b, reason); err != nil {
		s.log.Error("Compensating refund failed, manual follow-up required",
			zap.String("event_id", b.EventID),
			zap.String("booking_id", b.ID),
			zap.String("payment_reference", b.PaymentReference),
			zap.Float64("amount", b.TotalPrice),
			zap.String("reason", string(reason)),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
	}
}

func (s *bookingService) fail(ctx context.Context, span trace.Span, stage string, err error) error {
	metrics.RecordBookingRejected(ctx, stage)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// CancelBooking refunds first; a failed refund leaves the booking confirmed
func (s *bookingService) CancelBooking(ctx context.Context, bookingID, userID string) (*dto.CancelBookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", bookingID), attribute.String("user_id", userID))

	booking, err := s.store.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !booking.IsOwnedBy(userID) {
		span.SetStatus(codes.Error, "forbidden")
		return nil, domain.ErrForbidden
	}
	if booking.IsCanceled() {
		span.SetStatus(codes.Error, "already canceled")
		return nil, domain.ErrAlreadyCanceled
	}

	attempts, err := s.refunder.refund(ctx, booking, domain.CancelReasonUser)
	if err != nil {
		// A concurrent cancel may have refunded and canceled it first
		if current, getErr := s.store.Bookings().GetByID(ctx, bookingID); getErr == nil && current.IsCanceled() {
			span.SetStatus(codes.Error, "already canceled")
			return nil, domain.ErrAlreadyCanceled
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "refund failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrRefundFailed, err)
	}
	refunded := booking.NeedsRefund()

	now := s.now()
	var released int
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		current, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if current.IsCanceled() {
			return domain.ErrAlreadyCanceled
		}
		n, err := tx.Bookings().Cancel(ctx, []string{current.ID}, domain.CancelReasonUser, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrAlreadyCanceled
		}
		if _, err := tx.Inventory().Release(ctx, current.EventID, current.NumberOfTickets); err != nil {
			return err
		}
		released = current.NumberOfTickets

		if refunded {
			rf := domain.NewRefund(current, domain.CancelReasonUser, domain.RefundStatusSucceeded, now)
			rf.Attempts = attempts
			if err := tx.Refunds().Create(ctx, rf); err != nil {
				return err
			}
		}

		_ = current.Cancel(domain.CancelReasonUser, now)
		msg, err := domain.BookingOutboxEvent(domain.EventTypeBookingCanceled, current)
		if err != nil {
			return err
		}
		return tx.Outbox().Create(ctx, msg)
	})
	if err != nil {
		if refunded && !errors.Is(err, domain.ErrAlreadyCanceled) {
			s.log.Error("Booking refunded but cancellation not stored",
				zap.String("booking_id", bookingID),
				zap.String("payment_reference", booking.PaymentReference),
				zap.Error(err),
			)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.RecordBookingsCanceled(ctx, string(domain.CancelReasonUser), 1, released)
	span.SetStatus(codes.Ok, "")
	return &dto.CancelBookingResponse{
		BookingID:       bookingID,
		Status:          domain.BookingStatusCanceled.String(),
		Refunded:        refunded,
		ReleasedTickets: released,
		Message:         "Booking canceled",
	}, nil
}

// GetBooking returns the booking to its owner or an admin
func (s *bookingService) GetBooking(ctx context.Context, bookingID string, requester domain.Actor) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.get")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", bookingID))

	booking, err := s.store.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !booking.IsOwnedBy(requester.UserID) && !requester.IsAdmin() {
		span.SetStatus(codes.Error, "forbidden")
		return nil, domain.ErrForbidden
	}

	span.SetStatus(codes.Ok, "")
	return dto.FromDomain(booking), nil
}

// ListUserBookings retrieves a page of the user's bookings
func (s *bookingService) ListUserBookings(ctx context.Context, userID string, page, pageSize int) (*dto.PaginatedResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.list_user")
	defer span.End()

	if userID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	)

	bookings, total, err := s.store.Bookings().ListByUser(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	responses := make([]*dto.BookingResponse, len(bookings))
	for i, b := range bookings {
		responses[i] = dto.FromDomain(b)
	}

	span.SetAttributes(attribute.Int("count", len(responses)))
	span.SetStatus(codes.Ok, "")
	return &dto.PaginatedResponse{
		Data:     responses,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	}, nil
}
