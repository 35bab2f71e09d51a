package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/osamaloay/TicketsBooking-sub000/internal/domain"
	"github.com/osamaloay/TicketsBooking-sub000/internal/dto"
	"github.com/osamaloay/TicketsBooking-sub000/internal/metrics"
	"github.com/osamaloay/TicketsBooking-sub000/internal/repository"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/logger"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// EventService defines the interface for event lifecycle logic
type EventService interface {
	CreateEvent(ctx context.Context, actor domain.Actor, req *dto.CreateEventRequest) (*dto.EventResponse, error)
	GetEvent(ctx context.Context, eventID string) (*dto.EventResponse, error)

	// UpdateEvent edits fields and/or changes status. When the change settles
	// bookings and any refund fails, the response carries the failures and the
	// error is nil: the transition itself has been committed.
	UpdateEvent(ctx context.Context, eventID string, actor domain.Actor, req *dto.UpdateEventRequest) (*dto.UpdateEventResponse, error)

	// DeleteEvent refunds every confirmed booking, then soft-deletes the event.
	// Any refund failure aborts the delete and returns a *domain.SettlementError.
	DeleteEvent(ctx context.Context, eventID string, actor domain.Actor) (*dto.DeleteEventResponse, error)

	// ListSettlementFailures returns the event's refunds that did not go through
	ListSettlementFailures(ctx context.Context, eventID string, actor domain.Actor) ([]*dto.RefundResponse, error)
}

// EventServiceConfig contains configuration for event service
type EventServiceConfig struct {
	DefaultCurrency string
	// DeleteMaxRounds bounds how often a delete refunds bookings that arrive meanwhile
	DeleteMaxRounds int
	Logger          *logger.Logger
}

type eventService struct {
	store           repository.Store
	settlement      SettlementService
	defaultCurrency string
	deleteMaxRounds int
	log             *logger.Logger
	now             func() time.Time
}

// NewEventService creates a new event service
func NewEventService(store repository.Store, settlement SettlementService, cfg *EventServiceConfig) EventService {
	if cfg == nil {
		cfg = &EventServiceConfig{}
	}
	s := &eventService{
		store:           store,
		settlement:      settlement,
		defaultCurrency: "USD",
		deleteMaxRounds: 3,
		log:             cfg.Logger,
		now:             time.Now,
	}
	if cfg.DefaultCurrency != "" {
		s.defaultCurrency = cfg.DefaultCurrency
	}
	if cfg.DeleteMaxRounds > 0 {
		s.deleteMaxRounds = cfg.DeleteMaxRounds
	}
	if s.log == nil {
		s.log = logger.Get()
	}
	return s
}

// CreateEvent creates a pending event owned by the actor
func (s *eventService) CreateEvent(ctx context.Context, actor domain.Actor, req *dto.CreateEventRequest) (*dto.EventResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.create")
	defer span.End()

	if actor.Role != domain.RoleOrganizer && !actor.IsAdmin() {
		span.SetStatus(codes.Error, "forbidden")
		return nil, domain.ErrForbidden
	}
	if req == nil || req.TicketPricing == nil {
		span.SetStatus(codes.Error, "invalid request")
		return nil, domain.NewValidationError("ticket_pricing", "is required")
	}

	now := s.now()
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = s.defaultCurrency
	}
	event := &domain.Event{
		ID:               uuid.NewString(),
		OrganizerID:      actor.UserID,
		Title:            req.Title,
		Description:      req.Description,
		Location:         req.Location,
		Category:         req.Category,
		ImageURL:         req.ImageURL,
		StartsAt:         req.StartsAt,
		TotalTickets:     req.TotalTickets,
		RemainingTickets: req.TotalTickets,
		Status:           domain.EventStatusPending,
		TicketPricing:    *req.TicketPricing,
		Currency:         currency,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := event.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.store.Events().Create(ctx, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("event_id", event.ID))
	span.SetStatus(codes.Ok, "")
	return dto.FromEvent(event), nil
}

// GetEvent retrieves a live event
func (s *eventService) GetEvent(ctx context.Context, eventID string) (*dto.EventResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.get")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", eventID))

	event, err := s.store.Events().GetByID(ctx, eventID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return dto.FromEvent(event), nil
}

// UpdateEvent applies the patch in one transaction, then refunds what the
// transition canceled.
func (s *eventService) UpdateEvent(ctx context.Context, eventID string, actor domain.Actor, req *dto.UpdateEventRequest) (*dto.UpdateEventResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.update")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", eventID))

	if req == nil {
		span.SetStatus(codes.Error, "empty update")
		return nil, domain.NewValidationError("body", "is empty")
	}
	update := req.ToDomain()
	if update.IsEmpty() {
		span.SetStatus(codes.Error, "empty update")
		return nil, domain.NewValidationError("body", "is empty")
	}

	var (
		updated  domain.Event
		previous domain.EventStatus
		effect   domain.TransitionEffect
		canceled []*domain.Booking
	)
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		current, err := tx.Events().GetForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if !current.CanManage(actor) {
			return domain.ErrForbidden
		}

		previous = current.Status
		target := current.Status
		if update.Status != nil {
			target = *update.Status
		}
		effect, err = domain.Transition(current.Status, target)
		if err != nil {
			return err
		}

		updated = *current
		if update.IsFullEdit() {
			updated, err = update.ApplyFields(*current)
			if err != nil {
				if update.Status != nil && effect == domain.EffectNoop {
					return fmt.Errorf("%w: %v", domain.ErrInvalidTransition, err)
				}
				return err
			}
		} else if effect == domain.EffectNoop {
			return nil
		}

		now := s.now()
		updated.Status = target
		updated.UpdatedAt = now

		switch effect {
		case domain.EffectSettle:
			canceled, err = s.cancelForTransition(ctx, tx, &updated, now)
			if err != nil {
				return err
			}
		case domain.EffectResetInventory:
			if err := tx.Events().Update(ctx, &updated); err != nil {
				return err
			}
			if err := tx.Inventory().SetRemaining(ctx, updated.ID, updated.TotalTickets); err != nil {
				return err
			}
			updated.RemainingTickets = updated.TotalTickets
		default:
			if err := tx.Events().Update(ctx, &updated); err != nil {
				return err
			}
		}

		if effect == domain.EffectNoop {
			return nil
		}
		msg, err := domain.EventOutboxEvent(domain.EventTypeEventStatusChanged, &updated, previous, len(canceled))
		if err != nil {
			return err
		}
		return tx.Outbox().Create(ctx, msg)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.RecordTransition(ctx, previous.String(), updated.Status.String(), effect.String())
	span.SetAttributes(attribute.String("effect", effect.String()))

	resp := &dto.UpdateEventResponse{
		Event:  dto.FromEvent(&updated),
		Effect: effect.String(),
	}
	if effect == domain.EffectSettle {
		result := s.settlement.SettleForTransition(ctx, &updated, canceled)
		resp.Settlement = dto.FromSettlement(result)
		if result.HasFailures() {
			span.SetStatus(codes.Error, "partial settlement")
			return resp, nil
		}
	}

	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// cancelForTransition writes the transition that leaves approved: the new
// status, canceled bookings, pending refund records, and one release of
// every canceled ticket.
func (s *eventService) cancelForTransition(ctx context.Context, tx repository.Store, event *domain.Event, now time.Time) ([]*domain.Booking, error) {
	// The status write comes first so no reservation slips in behind the listing
	if err := tx.Events().Update(ctx, event); err != nil {
		return nil, err
	}

	bookings, err := tx.Bookings().ListConfirmedByEvent(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return nil, nil
	}

	ids := make([]string, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID
	}
	if _, err := tx.Bookings().Cancel(ctx, ids, domain.CancelReasonEventStatus, now); err != nil {
		return nil, err
	}
	for _, b := range bookings {
		_ = b.Cancel(domain.CancelReasonEventStatus, now)
		if !b.NeedsRefund() {
			continue
		}
		rf := domain.NewRefund(b, domain.CancelReasonEventStatus, domain.RefundStatusPending, now)
		if err := tx.Refunds().Create(ctx, rf); err != nil {
			return nil, err
		}
	}

	restored := domain.TotalTickets(bookings)
	remaining, err := tx.Inventory().Release(ctx, event.ID, restored)
	if err != nil {
		return nil, err
	}
	event.RemainingTickets = remaining

	metrics.RecordBookingsCanceled(ctx, string(domain.CancelReasonEventStatus), len(bookings), restored)
	for _, b := range bookings {
		msg, err := domain.BookingOutboxEvent(domain.EventTypeBookingCanceled, b)
		if err != nil {
			return nil, err
		}
		if err := tx.Outbox().Create(ctx, msg); err != nil {
			return nil, err
		}
	}
	return bookings, nil
}

// DeleteEvent refunds first and deletes only when every refund went through
func (s *eventService) DeleteEvent(ctx context.Context, eventID string, actor domain.Actor) (*dto.DeleteEventResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.delete")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", eventID))

	event, err := s.store.Events().GetByID(ctx, eventID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !event.CanManage(actor) {
		span.SetStatus(codes.Error, "forbidden")
		return nil, domain.ErrForbidden
	}

	pending, err := s.store.Bookings().ListConfirmedByEvent(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := &domain.SettlementResult{}
	refunded := make(map[string]bool)

	for round := 1; round <= s.deleteMaxRounds; round++ {
		span.SetAttributes(attribute.Int("round", round))

		r, err := s.settlement.RefundAllForDeletion(ctx, pending)
		result.Merge(r)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "refund failed")
			return nil, &domain.SettlementError{Err: domain.ErrRefundFailed, Result: result}
		}
		for _, b := range pending {
			refunded[b.ID] = true
		}

		var deleted bool
		err = s.store.WithinTx(ctx, func(tx repository.Store) error {
			current, err := tx.Events().GetForUpdate(ctx, eventID)
			if err != nil {
				return err
			}
			bookings, err := tx.Bookings().ListConfirmedByEvent(ctx, eventID)
			if err != nil {
				return err
			}

			var newcomers []*domain.Booking
			for _, b := range bookings {
				if !refunded[b.ID] {
					newcomers = append(newcomers, b)
				}
			}
			if len(newcomers) > 0 {
				pending = newcomers
				return nil
			}

			restored, err := s.deleteWithBookings(ctx, tx, current, bookings)
			if err != nil {
				return err
			}
			result.RestoredTickets = restored
			deleted = true
			return nil
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if deleted {
			span.SetStatus(codes.Ok, "")
			return &dto.DeleteEventResponse{
				EventID:    eventID,
				Deleted:    true,
				Settlement: dto.FromSettlement(result),
			}, nil
		}

		s.log.Info("New bookings arrived during delete, refunding them",
			zap.String("event_id", eventID),
			zap.Int("round", round),
			zap.Int("newcomers", len(pending)),
		)
	}

	span.SetStatus(codes.Error, "too many rounds")
	return nil, fmt.Errorf("%w: bookings kept arriving while deleting event %s", domain.ErrConflict, eventID)
}

// deleteWithBookings cancels the already refunded bookings, restores their tickets
// and soft-deletes the event
func (s *eventService) deleteWithBookings(ctx context.Context, tx repository.Store, event *domain.Event, bookings []*domain.Booking) (int, error) {
	now := s.now()
	restored := domain.TotalTickets(bookings)

	if len(bookings) > 0 {
		ids := make([]string, len(bookings))
		for i, b := range bookings {
			ids[i] = b.ID
		}
		if _, err := tx.Bookings().Cancel(ctx, ids, domain.CancelReasonEventDeleted, now); err != nil {
			return 0, err
		}
		remaining, err := tx.Inventory().Release(ctx, event.ID, restored)
		if err != nil {
			return 0, err
		}
		event.RemainingTickets = remaining
	}

	if err := tx.Events().SoftDelete(ctx, event.ID, now); err != nil {
		return 0, err
	}
	event.DeletedAt = &now

	for _, b := range bookings {
		_ = b.Cancel(domain.CancelReasonEventDeleted, now)
		msg, err := domain.BookingOutboxEvent(domain.EventTypeBookingCanceled, b)
		if err != nil {
			return 0, err
		}
		if err := tx.Outbox().Create(ctx, msg); err != nil {
			return 0, err
		}
	}
	msg, err := domain.EventOutboxEvent(domain.EventTypeEventDeleted, event, event.Status, len(bookings))
	if err != nil {
		return 0, err
	}
	if err := tx.Outbox().Create(ctx, msg); err != nil {
		return 0, err
	}

	metrics.RecordBookingsCanceled(ctx, string(domain.CancelReasonEventDeleted), len(bookings), restored)
	return restored, nil
}

// ListSettlementFailures returns failed refunds for an event the actor manages
func (s *eventService) ListSettlementFailures(ctx context.Context, eventID string, actor domain.Actor) ([]*dto.RefundResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.settlement_failures")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", eventID))

	event, err := s.store.Events().GetByID(ctx, eventID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !event.CanManage(actor) {
		span.SetStatus(codes.Error, "forbidden")
		return nil, domain.ErrForbidden
	}

	refunds, err := s.store.Refunds().ListByEvent(ctx, eventID, domain.RefundStatusFailed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	out := make([]*dto.RefundResponse, len(refunds))
	for i, r := range refunds {
		out[i] = dto.FromRefund(r)
	}
	span.SetAttributes(attribute.Int("count", len(out)))
	span.SetStatus(codes.Ok, "")
	return out, nil
}
