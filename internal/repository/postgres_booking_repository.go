package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/osamaloay/TicketsBooking-sub000/internal/domain"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const bookingColumns = `
	id, event_id, user_id, number_of_tickets, unit_price, total_price, currency,
	status, payment_reference, cancel_reason, created_at, confirmed_at, canceled_at`

type postgresBookingRepository struct {
	db querier
}

func scanBooking(row interface{ Scan(dest ...any) error }) (*domain.Booking, error) {
	b := &domain.Booking{}
	var status, reason string
	err := row.Scan(
		&b.ID, &b.EventID, &b.UserID, &b.NumberOfTickets, &b.UnitPrice, &b.TotalPrice, &b.Currency,
		&status, &b.PaymentReference, &reason, &b.CreatedAt, &b.ConfirmedAt, &b.CanceledAt,
	)
	if err != nil {
		return nil, err
	}
	b.Status = domain.BookingStatus(status)
	b.CancelReason = domain.CancelReason(reason)
	return b, nil
}

func collectBookings(rows pgx.Rows) ([]*domain.Booking, error) {
	defer rows.Close()
	var out []*domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *postgresBookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking_id", b.ID),
		attribute.String("event_id", b.EventID),
		attribute.String("user_id", b.UserID),
	)

	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.Exec(ctx, query,
		b.ID, b.EventID, b.UserID, b.NumberOfTickets, b.UnitPrice, b.TotalPrice, b.Currency,
		b.Status.String(), b.PaymentReference, string(b.CancelReason), b.CreatedAt, b.ConfirmedAt, b.CanceledAt,
	)
	if err != nil {
		return spanError(span, fmt.Errorf("failed to create booking: %w", err))
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func (r *postgresBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	return r.get(ctx, "repo.postgres.booking.get_by_id", id, "")
}

func (r *postgresBookingRepository) GetForUpdate(ctx context.Context, id string) (*domain.Booking, error) {
	return r.get(ctx, "repo.postgres.booking.get_for_update", id, " FOR UPDATE")
}

func (r *postgresBookingRepository) get(ctx context.Context, spanName, id, lock string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, spanName)
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", id))

	if !validID(id) {
		span.SetStatus(codes.Error, "not found")
		return nil, domain.ErrBookingNotFound
	}

	b, err := scanBooking(r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`+lock, id))
	if err != nil {
		if isNoRows(err) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrBookingNotFound
		}
		return nil, spanError(span, fmt.Errorf("failed to get booking: %w", err))
	}

	span.SetStatus(codes.Ok, "")
	return b, nil
}

func (r *postgresBookingRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list_by_user")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userID))

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM bookings WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, spanError(span, fmt.Errorf("failed to count bookings: %w", err))
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, spanError(span, fmt.Errorf("failed to list bookings: %w", err))
	}
	bookings, err := collectBookings(rows)
	if err != nil {
		return nil, 0, spanError(span, err)
	}

	span.SetStatus(codes.Ok, "")
	return bookings, total, nil
}

func (r *postgresBookingRepository) ListConfirmedByEvent(ctx context.Context, eventID string) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list_confirmed_by_event")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", eventID))

	if !validID(eventID) {
		return nil, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE event_id = $1 AND status = 'confirmed'
		ORDER BY created_at ASC
	`, eventID)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to list event bookings: %w", err))
	}
	bookings, err := collectBookings(rows)
	if err != nil {
		return nil, spanError(span, err)
	}

	span.SetAttributes(attribute.Int("count", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return bookings, nil
}

func (r *postgresBookingRepository) Cancel(ctx context.Context, ids []string, reason domain.CancelReason, at time.Time) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.cancel")
	defer span.End()
	span.SetAttributes(attribute.Int("count", len(ids)), attribute.String("reason", string(reason)))

	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE bookings
		SET status = 'canceled', cancel_reason = $2, canceled_at = $3
		WHERE id = ANY($1::uuid[]) AND status = 'confirmed'
	`, ids, string(reason), at)
	if err != nil {
		return 0, spanError(span, fmt.Errorf("failed to cancel bookings: %w", err))
	}

	span.SetStatus(codes.Ok, "")
	return int(tag.RowsAffected()), nil
}
