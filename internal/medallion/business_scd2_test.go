package medallion

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/nodebyte/syncengine/internal/protocol"
)

func TestWriteSCD2InsertsNewNaturalKey(t *testing.T) {
	pool := &fakePool{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return fakeRow{err: pgx.ErrNoRows}
		},
	}
	w := NewBusinessWriter(pool, 10, zerolog.Nop())

	records := []map[string]protocol.Value{
		{"id": protocol.StringValue("k1"), "name": protocol.StringValue("Ann")},
	}

	inserted, updated, unchanged, err := w.WriteSCD2(context.Background(), "src", "customers", uuid.New(), records, "id")
	if err != nil {
		t.Fatalf("WriteSCD2: %v", err)
	}
	if inserted != 1 || updated != 0 || unchanged != 0 {
		t.Errorf("got (%d,%d,%d), want (1,0,0)", inserted, updated, unchanged)
	}
	if n := pool.execCount("INSERT INTO"); n != 1 {
		t.Errorf("INSERT ran %d times, want 1", n)
	}
}

func TestWriteSCD2UnchangedWhenHashMatches(t *testing.T) {
	columns := []string{"id", "name"}
	rec := map[string]protocol.Value{"id": protocol.StringValue("k1"), "name": protocol.StringValue("Ann")}
	existingHash := rowHash(columns, rec)

	pool := &fakePool{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return fakeRow{values: []any{existingHash}}
		},
	}
	w := NewBusinessWriter(pool, 10, zerolog.Nop())

	inserted, updated, unchanged, err := w.WriteSCD2(context.Background(), "src", "customers", uuid.New(), []map[string]protocol.Value{rec}, "id")
	if err != nil {
		t.Fatalf("WriteSCD2: %v", err)
	}
	if inserted != 0 || updated != 0 || unchanged != 1 {
		t.Errorf("got (%d,%d,%d), want (0,0,1)", inserted, updated, unchanged)
	}
	if n := pool.execCount("INSERT INTO"); n != 0 {
		t.Errorf("unchanged row should not insert, INSERT ran %d times", n)
	}
}

func TestWriteSCD2ClosesAndInsertsWhenHashDiffers(t *testing.T) {
	rec := map[string]protocol.Value{"id": protocol.StringValue("k1"), "name": protocol.StringValue("Annie")}

	pool := &fakePool{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return fakeRow{values: []any{"stale-hash-that-will-never-match"}}
		},
	}
	w := NewBusinessWriter(pool, 10, zerolog.Nop())

	inserted, updated, unchanged, err := w.WriteSCD2(context.Background(), "src", "customers", uuid.New(), []map[string]protocol.Value{rec}, "id")
	if err != nil {
		t.Fatalf("WriteSCD2: %v", err)
	}
	if inserted != 0 || updated != 1 || unchanged != 0 {
		t.Errorf("got (%d,%d,%d), want (0,1,0)", inserted, updated, unchanged)
	}
	if n := pool.execCount("SET valid_to"); n != 1 {
		t.Errorf("close-row UPDATE ran %d times, want 1", n)
	}
	if n := pool.execCount("INSERT INTO"); n != 1 {
		t.Errorf("new-version INSERT ran %d times, want 1", n)
	}
}

func TestWriteSCD2DefaultsToFirstColumnAsNaturalKey(t *testing.T) {
	rec := map[string]protocol.Value{"id": protocol.StringValue("k1")}

	var sawKey any
	pool := &fakePool{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			if len(args) > 0 {
				sawKey = args[0]
			}
			return fakeRow{err: pgx.ErrNoRows}
		},
	}
	w := NewBusinessWriter(pool, 10, zerolog.Nop())

	if _, _, _, err := w.WriteSCD2(context.Background(), "src", "customers", uuid.New(), []map[string]protocol.Value{rec}, ""); err != nil {
		t.Fatalf("WriteSCD2: %v", err)
	}
	if sawKey != "k1" {
		t.Errorf("natural key lookup used %v, want the single column's value to be used as the default natural key", sawKey)
	}
}
