package repository

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/telemetry"
	"go.opentelemetry.io/otel/codes"
)

//go:embed migrations/schema.sql
var schemaSQL string

// Schema returns the embedded DDL
func Schema() string {
	return schemaSQL
}

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.migrate")
	defer span.End()

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return spanError(span, fmt.Errorf("failed to apply schema: %w", err))
	}

	span.SetStatus(codes.Ok, "")
	return nil
}
