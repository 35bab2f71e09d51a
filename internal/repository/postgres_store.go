package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/telemetry"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store on pgx
type PostgresStore struct {
	pool *pgxpool.Pool
	db   querier
}

// NewPostgresStore creates a Store backed by the pool
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, db: pool}
}

func (s *PostgresStore) Events() EventRepository { return &postgresEventRepository{db: s.db} }
func (s *PostgresStore) Inventory() InventoryRepository { return &postgresInventoryRepository{db: s.db} }
func (s *PostgresStore) Bookings() BookingRepository { return &postgresBookingRepository{db: s.db} }
func (s *PostgresStore) Refunds() RefundRepository { return &postgresRefundRepository{db: s.db} }
func (s *PostgresStore) Outbox() OutboxRepository { return &postgresOutboxRepository{db: s.db} }

// WithinTx begins a transaction, or a savepoint when already inside one
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.tx")
	defer span.End()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return spanError(span, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(&PostgresStore{pool: s.pool, db: tx}); err != nil {
		return spanError(span, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return spanError(span, fmt.Errorf("failed to commit transaction: %w", err))
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// validID rejects strings that cannot be a uuid column value so lookups miss
// instead of failing with a cast error
func validID(id string) bool {
	return uuid.Validate(id) == nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
