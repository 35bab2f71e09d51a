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

const refundColumns = `
	id, booking_id, event_id, user_id, payment_reference, amount, currency,
	reason, status, attempts, last_error, created_at, updated_at`

type postgresRefundRepository struct {
	db querier
}

func scanRefund(row interface{ Scan(dest ...any) error }) (*domain.Refund, error) {
	rf := &domain.Refund{}
	var reason, status string
	err := row.Scan(
		&rf.ID, &rf.BookingID, &rf.EventID, &rf.UserID, &rf.PaymentReference, &rf.Amount, &rf.Currency,
		&reason, &status, &rf.Attempts, &rf.LastError, &rf.CreatedAt, &rf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rf.Reason = domain.CancelReason(reason)
	rf.Status = domain.RefundStatus(status)
	return rf, nil
}

func collectRefunds(rows pgx.Rows) ([]*domain.Refund, error) {
	defer rows.Close()
	var out []*domain.Refund
	for rows.Next() {
		rf, err := scanRefund(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan refund: %w", err)
		}
		out = append(out, rf)
	}
	return out, rows.Err()
}

func (r *postgresRefundRepository) Create(ctx context.Context, rf *domain.Refund) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.refund.create")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", rf.BookingID))

	// A booking has at most one refund row; a repeat insert folds into it
	err := r.db.QueryRow(ctx, `
		INSERT INTO refunds (`+refundColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (booking_id) DO UPDATE SET
			status = EXCLUDED.status,
			attempts = refunds.attempts + EXCLUDED.attempts,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at
		RETURNING id, attempts
	`,
		rf.ID, rf.BookingID, rf.EventID, rf.UserID, rf.PaymentReference, rf.Amount, rf.Currency,
		string(rf.Reason), string(rf.Status), rf.Attempts, rf.LastError, rf.CreatedAt, rf.UpdatedAt,
	).Scan(&rf.ID, &rf.Attempts)
	if err != nil {
		return spanError(span, fmt.Errorf("failed to create refund: %w", err))
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func (r *postgresRefundRepository) Update(ctx context.Context, rf *domain.Refund) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.refund.update")
	defer span.End()
	span.SetAttributes(attribute.String("refund_id", rf.ID), attribute.String("status", string(rf.Status)))

	tag, err := r.db.Exec(ctx, `
		UPDATE refunds SET status = $2, attempts = $3, last_error = $4, updated_at = $5
		WHERE id = $1
	`, rf.ID, string(rf.Status), rf.Attempts, rf.LastError, rf.UpdatedAt)
	if err != nil {
		return spanError(span, fmt.Errorf("failed to update refund: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return spanError(span, fmt.Errorf("refund %s not found", rf.ID))
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func (r *postgresRefundRepository) GetByBookingID(ctx context.Context, bookingID string) (*domain.Refund, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.refund.get_by_booking")
	defer span.End()

	if !validID(bookingID) {
		return nil, domain.ErrBookingNotFound
	}

	rf, err := scanRefund(r.db.QueryRow(ctx, `SELECT `+refundColumns+` FROM refunds WHERE booking_id = $1`, bookingID))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, spanError(span, fmt.Errorf("failed to get refund: %w", err))
	}

	span.SetStatus(codes.Ok, "")
	return rf, nil
}

func (r *postgresRefundRepository) ListByEvent(ctx context.Context, eventID string, status domain.RefundStatus) ([]*domain.Refund, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.refund.list_by_event")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", eventID), attribute.String("status", string(status)))

	if !validID(eventID) {
		return nil, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+refundColumns+` FROM refunds
		WHERE event_id = $1 AND status = $2
		ORDER BY created_at ASC
	`, eventID, string(status))
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to list refunds: %w", err))
	}
	refunds, err := collectRefunds(rows)
	if err != nil {
		return nil, spanError(span, err)
	}

	span.SetStatus(codes.Ok, "")
	return refunds, nil
}

func (r *postgresRefundRepository) ListRetryable(ctx context.Context, olderThan time.Time, maxAttempts, limit int) ([]*domain.Refund, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.refund.list_retryable")
	defer span.End()

	rows, err := r.db.Query(ctx, `
		SELECT `+refundColumns+` FROM refunds
		WHERE status IN ('pending', 'failed') AND updated_at < $1 AND attempts < $2
		ORDER BY updated_at ASC
		LIMIT $3
	`, olderThan, maxAttempts, limit)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to list retryable refunds: %w", err))
	}
	refunds, err := collectRefunds(rows)
	if err != nil {
		return nil, spanError(span, err)
	}

	span.SetAttributes(attribute.Int("count", len(refunds)))
	span.SetStatus(codes.Ok, "")
	return refunds, nil
}
