package medallion

import (
	"testing"

	"github.com/nodebyte/syncengine/internal/protocol"
)

func TestRowHashStableAcrossKeyOrder(t *testing.T) {
	columns := []string{"id", "name"}
	a := map[string]protocol.Value{"id": protocol.Int64Value(1), "name": protocol.StringValue("Ann")}
	b := map[string]protocol.Value{"name": protocol.StringValue("Ann"), "id": protocol.Int64Value(1)}

	if rowHash(columns, a) != rowHash(columns, b) {
		t.Error("rowHash should not depend on map iteration order")
	}
}

func TestRowHashChangesOnValueChange(t *testing.T) {
	columns := []string{"id", "name"}
	a := map[string]protocol.Value{"id": protocol.Int64Value(1), "name": protocol.StringValue("Ann")}
	b := map[string]protocol.Value{"id": protocol.Int64Value(1), "name": protocol.StringValue("Annie")}

	if rowHash(columns, a) == rowHash(columns, b) {
		t.Error("rowHash should change when a column value changes")
	}
}
