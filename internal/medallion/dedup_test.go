package medallion

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/nodebyte/syncengine/internal/protocol"
)

func TestWriteWithDedupSkipsUnchangedRow(t *testing.T) {
	pool := &fakePool{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			// The WHERE _row_hash IS DISTINCT FROM clause suppresses the row
			// entirely when the hash matches, surfacing as no rows scanned.
			return fakeRow{err: pgx.ErrNoRows}
		},
	}
	w := NewDedupWriter(pool, 10, zerolog.Nop())

	records := []map[string]protocol.Value{
		{"id": protocol.StringValue("k1"), "name": protocol.StringValue("Ann")},
	}
	result, err := w.WriteWithDedup(context.Background(), "src", "customers", uuid.New(), records, "id")
	if err != nil {
		t.Fatalf("WriteWithDedup: %v", err)
	}
	if result != (DedupResult{Unchanged: 1}) {
		t.Errorf("got %+v, want {Unchanged:1}", result)
	}
}

func TestWriteWithDedupReportsInsertAndUpdate(t *testing.T) {
	calls := 0
	pool := &fakePool{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			calls++
			// first row is a fresh insert, second is a changed existing row
			return fakeRow{values: []any{calls == 1}}
		},
	}
	w := NewDedupWriter(pool, 10, zerolog.Nop())

	records := []map[string]protocol.Value{
		{"id": protocol.StringValue("k1"), "name": protocol.StringValue("Ann")},
		{"id": protocol.StringValue("k2"), "name": protocol.StringValue("Bob")},
	}
	result, err := w.WriteWithDedup(context.Background(), "src", "customers", uuid.New(), records, "id")
	if err != nil {
		t.Fatalf("WriteWithDedup: %v", err)
	}
	if result.Inserted != 1 || result.Updated != 1 || result.Unchanged != 0 {
		t.Errorf("got %+v, want {Inserted:1 Updated:1}", result)
	}
}

func TestWriteWithUpsertWritesUnconditionallyAndCountsConflicts(t *testing.T) {
	calls := 0
	pool := &fakePool{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			calls++
			return fakeRow{values: []any{calls == 1}}
		},
	}
	w := NewDedupWriter(pool, 10, zerolog.Nop())

	records := []map[string]protocol.Value{
		{"id": protocol.StringValue("k1"), "name": protocol.StringValue("Ann")},
		{"id": protocol.StringValue("k2"), "name": protocol.StringValue("Ann")},
	}
	result, err := w.WriteWithUpsert(context.Background(), "src", "customers", uuid.New(), records, "id")
	if err != nil {
		t.Fatalf("WriteWithUpsert: %v", err)
	}
	if result.Processed != 2 {
		t.Errorf("Processed = %d, want 2 (every row written unconditionally)", result.Processed)
	}
	if result.Conflicts != 1 {
		t.Errorf("Conflicts = %d, want 1", result.Conflicts)
	}
}
