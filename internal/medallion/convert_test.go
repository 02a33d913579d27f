package medallion

import (
	"testing"
	"time"

	"github.com/nodebyte/syncengine/internal/protocol"
)

func TestNativeValue(t *testing.T) {
	ts := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	if got := NativeValue(protocol.NullValue()); got != nil {
		t.Errorf("null -> %v, want nil", got)
	}
	if got := NativeValue(protocol.Int64Value(42)); got != int64(42) {
		t.Errorf("int64 -> %v", got)
	}
	if got := NativeValue(protocol.BoolValue(true)); got != true {
		t.Errorf("bool -> %v", got)
	}
	if got := NativeValue(protocol.TimestampValue(ts)); got != ts {
		t.Errorf("timestamp -> %v, want %v", got, ts)
	}
}

func TestRowValuesFillsMissingColumnsWithNil(t *testing.T) {
	rec := map[string]protocol.Value{"id": protocol.Int64Value(1)}
	values := RowValues(rec, []string{"id", "name"})
	if len(values) != 2 {
		t.Fatalf("expected 2 values, got %d", len(values))
	}
	if values[0] != int64(1) {
		t.Errorf("values[0] = %v", values[0])
	}
	if values[1] != nil {
		t.Errorf("values[1] = %v, want nil for absent column", values[1])
	}
}
