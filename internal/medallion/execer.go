package medallion

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the slice of *pgxpool.Pool's surface every writer in this
// package depends on. Defining it as an interface — mirroring
// statestore.Backend — lets tests drive the write strategies against an
// in-memory fake instead of a live Postgres connection. *pgxpool.Pool
// satisfies this interface without any adapter.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Begin(ctx context.Context) (pgx.Tx, error)
}
