package medallion

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/nodebyte/syncengine/internal/protocol"
)

func TestCDCWriterApplyUpsertAndDelete(t *testing.T) {
	pool := &fakePool{}
	w := NewCDCWriter(pool, 10, zerolog.Nop())

	changes := []ChangeRecord{
		{
			Op:        ChangeOpUpsert,
			Data:      map[string]protocol.Value{"id": protocol.StringValue("k1"), "name": protocol.StringValue("Ann")},
			LSN:       "0/1A2B3C",
			UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			Op:      ChangeOpDelete,
			KeyOnly: protocol.StringValue("k2"),
		},
	}

	result, err := w.Apply(context.Background(), "src", "customers", uuid.New(), changes, "id")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Written != 2 {
		t.Errorf("Written = %d, want 2", result.Written)
	}
	if result.Failed != 0 {
		t.Errorf("Failed = %d, want 0", result.Failed)
	}

	var ddl string
	for _, sql := range pool.execs {
		if contains(sql, "CREATE TABLE") {
			ddl = sql
		}
	}
	if ddl == "" {
		t.Fatal("no CREATE TABLE statement recorded")
	}
	for _, want := range []string{"_deleted", "_ab_cdc_lsn", "_ab_cdc_updated_at"} {
		if !contains(ddl, want) {
			t.Errorf("CDC table DDL missing column %q:\n%s", want, ddl)
		}
	}
}

func TestCDCWriterApplyEmptyLSNIsNull(t *testing.T) {
	var capturedArgs []any
	pool := &fakePool{
		ExecFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			if contains(sql, "ON CONFLICT") && !contains(sql, "_deleted = TRUE") {
				capturedArgs = args
			}
			return pgconn.NewCommandTag("INSERT 0 1"), nil
		},
	}
	w := NewCDCWriter(pool, 10, zerolog.Nop())

	changes := []ChangeRecord{
		{Op: ChangeOpUpsert, Data: map[string]protocol.Value{"id": protocol.StringValue("k1")}},
	}
	if _, err := w.Apply(context.Background(), "src", "customers", uuid.New(), changes, "id"); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if len(capturedArgs) == 0 {
		t.Fatal("expected upsert Exec to be captured")
	}
	lsn := capturedArgs[len(capturedArgs)-4]
	if lsn != nil {
		t.Errorf("empty LSN should serialize as nil, got %v", lsn)
	}
}
