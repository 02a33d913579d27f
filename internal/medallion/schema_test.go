package medallion

import (
	"testing"

	"github.com/nodebyte/syncengine/internal/protocol"
)

func TestSanitizeIdentifier(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"hyphens", "source-postgres", "source_postgres"},
		{"mixed case", "Source-Postgres", "source_postgres"},
		{"special chars", "source.postgres!users", "source_postgres_users"},
		{"leading digit", "123source", "_123source"},
		{"already clean", "source_postgres_users_raw", "source_postgres_users_raw"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeIdentifier(tt.in); got != tt.want {
				t.Errorf("SanitizeIdentifier(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTableNames(t *testing.T) {
	if got := RawTableName("source-postgres", "users"); got != "source_postgres_users_raw" {
		t.Errorf("RawTableName = %q", got)
	}
	if got := ValidatedTableName("source-postgres", "users"); got != "source_postgres_users_validated" {
		t.Errorf("ValidatedTableName = %q", got)
	}
	if got := BusinessTableName("source-postgres", "users"); got != "source_postgres_users_business" {
		t.Errorf("BusinessTableName = %q", got)
	}
	if got := DedupTableName("source-postgres", "users"); got != "source_postgres_users_deduped" {
		t.Errorf("DedupTableName = %q", got)
	}
}

func TestInferSchemaWidensOnTypeConflict(t *testing.T) {
	records := []map[string]protocol.Value{
		{"id": protocol.Int64Value(1), "name": protocol.StringValue("a")},
		{"id": protocol.StringValue("2"), "name": protocol.StringValue("b")},
	}

	columns, kinds := InferSchema(records)
	if len(columns) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(columns))
	}
	if kinds["id"] != protocol.KindString {
		t.Errorf("expected id widened to string, got %v", kinds["id"])
	}
}

func TestInferSchemaIgnoresNullForTyping(t *testing.T) {
	records := []map[string]protocol.Value{
		{"id": protocol.NullValue()},
		{"id": protocol.Int64Value(5)},
	}

	_, kinds := InferSchema(records)
	if kinds["id"] != protocol.KindInt64 {
		t.Errorf("expected id to resolve to int64 once a non-null value appears, got %v", kinds["id"])
	}
}

func TestInferSchemaPreservesFirstSeenOrder(t *testing.T) {
	records := []map[string]protocol.Value{
		{"z": protocol.Int64Value(1), "a": protocol.Int64Value(2)},
		{"m": protocol.Int64Value(3)},
	}
	columns, _ := InferSchema(records)
	want := []string{"a", "z", "m"}
	if len(columns) != len(want) {
		t.Fatalf("got %v, want %v", columns, want)
	}
	for i := range want {
		if columns[i] != want[i] {
			t.Errorf("column order mismatch at %d: got %q, want %q", i, columns[i], want[i])
		}
	}
}

func TestSQLType(t *testing.T) {
	tests := map[protocol.Kind]string{
		protocol.KindInt64:     "BIGINT",
		protocol.KindFloat64:   "DOUBLE PRECISION",
		protocol.KindBool:      "BOOLEAN",
		protocol.KindTimestamp: "TIMESTAMPTZ",
		protocol.KindDate:      "DATE",
		protocol.KindJSON:      "JSONB",
		protocol.KindString:    "TEXT",
		protocol.KindNull:      "TEXT",
	}
	for kind, want := range tests {
		if got := SQLType(kind); got != want {
			t.Errorf("SQLType(%v) = %q, want %q", kind, got, want)
		}
	}
}
