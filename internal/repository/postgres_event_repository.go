package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/osamaloay/TicketsBooking-sub000/internal/domain"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const eventColumns = `
	id, organizer_id, title, description, location, category, image_url,
	starts_at, total_tickets, remaining_tickets, status, ticket_pricing,
	currency, created_at, updated_at, deleted_at, status_epoch`

type postgresEventRepository struct {
	db querier
}

func scanEvent(row interface{ Scan(dest ...any) error }) (*domain.Event, error) {
	e := &domain.Event{}
	var status string
	err := row.Scan(
		&e.ID, &e.OrganizerID, &e.Title, &e.Description, &e.Location, &e.Category, &e.ImageURL,
		&e.StartsAt, &e.TotalTickets, &e.RemainingTickets, &status, &e.TicketPricing,
		&e.Currency, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt, &e.StatusEpoch,
	)
	if err != nil {
		return nil, err
	}
	e.Status = domain.EventStatus(status)
	return e, nil
}

func (r *postgresEventRepository) Create(ctx context.Context, e *domain.Event) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.create")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", e.ID))

	query := `
		INSERT INTO events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NULL, $16)
	`
	_, err := r.db.Exec(ctx, query,
		e.ID, e.OrganizerID, e.Title, e.Description, e.Location, e.Category, e.ImageURL,
		e.StartsAt, e.TotalTickets, e.RemainingTickets, e.Status.String(), e.TicketPricing,
		e.Currency, e.CreatedAt, e.UpdatedAt, e.StatusEpoch,
	)
	if err != nil {
		return spanError(span, fmt.Errorf("failed to create event: %w", err))
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func (r *postgresEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	return r.get(ctx, "repo.postgres.event.get_by_id", id, "")
}

func (r *postgresEventRepository) GetForUpdate(ctx context.Context, id string) (*domain.Event, error) {
	return r.get(ctx, "repo.postgres.event.get_for_update", id, " FOR UPDATE")
}

func (r *postgresEventRepository) get(ctx context.Context, spanName, id, lock string) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, spanName)
	defer span.End()
	span.SetAttributes(attribute.String("event_id", id))

	if !validID(id) {
		span.SetStatus(codes.Error, "not found")
		return nil, domain.ErrEventNotFound
	}

	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1 AND deleted_at IS NULL` + lock
	e, err := scanEvent(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrEventNotFound
		}
		return nil, spanError(span, fmt.Errorf("failed to get event: %w", err))
	}

	span.SetStatus(codes.Ok, "")
	return e, nil
}

func (r *postgresEventRepository) Update(ctx context.Context, e *domain.Event) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.update")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", e.ID))

	query := `
		UPDATE events SET
			title = $2, description = $3, location = $4, category = $5, image_url = $6,
			starts_at = $7, total_tickets = $8, remaining_tickets = $9, status = $10,
			ticket_pricing = $11, updated_at = $12,
			status_epoch = status_epoch + CASE WHEN status <> $10 THEN 1 ELSE 0 END
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING status_epoch
	`
	err := r.db.QueryRow(ctx, query,
		e.ID, e.Title, e.Description, e.Location, e.Category, e.ImageURL,
		e.StartsAt, e.TotalTickets, e.RemainingTickets, e.Status.String(),
		e.TicketPricing, e.UpdatedAt,
	).Scan(&e.StatusEpoch)
	if err != nil {
		if isNoRows(err) {
			span.SetStatus(codes.Error, "not found")
			return domain.ErrEventNotFound
		}
		return spanError(span, fmt.Errorf("failed to update event: %w", err))
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func (r *postgresEventRepository) UpdateStatus(ctx context.Context, id string, status domain.EventStatus) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.update_status")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", id), attribute.String("status", status.String()))

	if !validID(id) {
		return domain.ErrEventNotFound
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE events
		SET status = $2, updated_at = NOW(),
			status_epoch = status_epoch + CASE WHEN status <> $2 THEN 1 ELSE 0 END
		WHERE id = $1 AND deleted_at IS NULL`,
		id, status.String())
	if err != nil {
		return spanError(span, fmt.Errorf("failed to update event status: %w", err))
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrEventNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func (r *postgresEventRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.soft_delete")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", id))

	if !validID(id) {
		return domain.ErrEventNotFound
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE events SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`,
		id, at)
	if err != nil {
		return spanError(span, fmt.Errorf("failed to delete event: %w", err))
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrEventNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

type postgresInventoryRepository struct {
	db querier
}

// Reserve is a single conditional UPDATE. When no row matches, a follow-up
// read only chooses which error to report; it never decides the outcome.
func (r *postgresInventoryRepository) Reserve(ctx context.Context, eventID string, quantity int) (*domain.Reservation, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.inventory.reserve")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", eventID), attribute.Int("quantity", quantity))

	if quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}
	if !validID(eventID) {
		return nil, domain.ErrEventNotFound
	}

	query := `
		UPDATE events
		SET remaining_tickets = remaining_tickets - $2, updated_at = NOW()
		WHERE id = $1
			AND remaining_tickets >= $2
			AND status = 'approved'
			AND deleted_at IS NULL
		RETURNING remaining_tickets, status_epoch
	`
	res := &domain.Reservation{EventID: eventID, Quantity: quantity}
	err := r.db.QueryRow(ctx, query, eventID, quantity).Scan(&res.Remaining, &res.StatusEpoch)
	if err == nil {
		span.SetAttributes(attribute.Int("remaining", res.Remaining))
		span.SetStatus(codes.Ok, "")
		return res, nil
	}
	if !isNoRows(err) {
		return nil, spanError(span, fmt.Errorf("failed to reserve tickets: %w", err))
	}

	var (
		status    string
		deletedAt *time.Time
	)
	err = r.db.QueryRow(ctx, `SELECT status, deleted_at FROM events WHERE id = $1`, eventID).Scan(&status, &deletedAt)
	switch {
	case isNoRows(err) || (err == nil && deletedAt != nil):
		span.SetStatus(codes.Error, "not found")
		return nil, domain.ErrEventNotFound
	case err != nil:
		return nil, spanError(span, fmt.Errorf("failed to inspect event: %w", err))
	case domain.EventStatus(status) != domain.EventStatusApproved:
		span.SetStatus(codes.Error, "not bookable")
		return nil, domain.ErrEventNotBookable
	default:
		span.SetStatus(codes.Error, "insufficient inventory")
		return nil, domain.ErrInsufficientInventory
	}
}

func (r *postgresInventoryRepository) Release(ctx context.Context, eventID string, quantity int) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.inventory.release")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", eventID), attribute.Int("quantity", quantity))

	if quantity < 0 {
		return 0, domain.ErrInvalidQuantity
	}
	if !validID(eventID) {
		return 0, domain.ErrEventNotFound
	}

	var remaining int
	err := r.db.QueryRow(ctx, `
		UPDATE events
		SET remaining_tickets = LEAST(total_tickets, remaining_tickets + $2), updated_at = NOW()
		WHERE id = $1
		RETURNING remaining_tickets
	`, eventID, quantity).Scan(&remaining)
	if err != nil {
		if isNoRows(err) {
			span.SetStatus(codes.Error, "not found")
			return 0, domain.ErrEventNotFound
		}
		return 0, spanError(span, fmt.Errorf("failed to release tickets: %w", err))
	}

	span.SetStatus(codes.Ok, "")
	return remaining, nil
}

func (r *postgresInventoryRepository) SetRemaining(ctx context.Context, eventID string, value int) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.inventory.set_remaining")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", eventID), attribute.Int("value", value))

	if !validID(eventID) {
		return domain.ErrEventNotFound
	}

	var total int
	err := r.db.QueryRow(ctx, `
		UPDATE events
		SET remaining_tickets = CASE WHEN $2 BETWEEN 0 AND total_tickets THEN $2 ELSE remaining_tickets END,
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING total_tickets
	`, eventID, value).Scan(&total)
	if err != nil {
		if isNoRows(err) {
			span.SetStatus(codes.Error, "not found")
			return domain.ErrEventNotFound
		}
		return spanError(span, fmt.Errorf("failed to set remaining tickets: %w", err))
	}
	if value < 0 || value > total {
		span.SetStatus(codes.Error, "out of range")
		return domain.NewValidationError("remaining_tickets", "must be between 0 and total_tickets")
	}

	span.SetStatus(codes.Ok, "")
	return nil
}
