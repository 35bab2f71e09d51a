package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/osamaloay/TicketsBooking-sub000/internal/domain"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type postgresOutboxRepository struct {
	db querier
}

func (r *postgresOutboxRepository) Create(ctx context.Context, msg *domain.OutboxMessage) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.outbox.create")
	defer span.End()
	span.SetAttributes(attribute.String("event_type", msg.EventType))

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO outbox (
			id, aggregate_type, aggregate_id, event_type, payload,
			partition_key, status, retry_count, max_retries, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload,
		msg.PartitionKey, string(msg.Status), msg.RetryCount, msg.MaxRetries, msg.CreatedAt,
	)
	if err != nil {
		return spanError(span, fmt.Errorf("failed to create outbox message: %w", err))
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func (r *postgresOutboxRepository) GetPending(ctx context.Context, limit int) ([]*domain.OutboxMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.outbox.get_pending")
	defer span.End()

	rows, err := r.db.Query(ctx, `
		SELECT
			id, aggregate_type, aggregate_id, event_type, payload,
			partition_key, status, retry_count, max_retries, last_error,
			created_at, published_at
		FROM outbox
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to get pending messages: %w", err))
	}
	defer rows.Close()

	var messages []*domain.OutboxMessage
	for rows.Next() {
		m := &domain.OutboxMessage{}
		var status string
		if err := rows.Scan(
			&m.ID, &m.AggregateType, &m.AggregateID, &m.EventType, &m.Payload,
			&m.PartitionKey, &status, &m.RetryCount, &m.MaxRetries, &m.LastError,
			&m.CreatedAt, &m.PublishedAt,
		); err != nil {
			return nil, spanError(span, fmt.Errorf("failed to scan outbox message: %w", err))
		}
		m.Status = domain.OutboxStatus(status)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, spanError(span, err)
	}

	span.SetAttributes(attribute.Int("count", len(messages)))
	span.SetStatus(codes.Ok, "")
	return messages, nil
}

func (r *postgresOutboxRepository) Update(ctx context.Context, msg *domain.OutboxMessage) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.outbox.update")
	defer span.End()

	_, err := r.db.Exec(ctx, `
		UPDATE outbox SET status = $2, retry_count = $3, last_error = $4, published_at = $5
		WHERE id = $1
	`, msg.ID, string(msg.Status), msg.RetryCount, msg.LastError, msg.PublishedAt)
	if err != nil {
		return spanError(span, fmt.Errorf("failed to update outbox message: %w", err))
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func (r *postgresOutboxRepository) DeletePublishedBefore(ctx context.Context, before time.Time) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.outbox.cleanup")
	defer span.End()

	tag, err := r.db.Exec(ctx, `DELETE FROM outbox WHERE status = 'published' AND published_at < $1`, before)
	if err != nil {
		return 0, spanError(span, fmt.Errorf("failed to delete published messages: %w", err))
	}

	span.SetStatus(codes.Ok, "")
	return tag.RowsAffected(), nil
}
