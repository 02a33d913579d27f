package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func TestValueRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		json string
		kind Kind
	}{
		{"null", "null", KindNull},
		{"bool", "true", KindBool},
		{"integer", "42", KindInt64},
		{"negative integer", "-7", KindInt64},
		{"float", "3.14", KindFloat64},
		{"exponent float", "1e10", KindFloat64},
		{"string", `"hello"`, KindString},
		{"timestamp", `"2026-01-13T10:02:00Z"`, KindTimestamp},
		{"date", `"2026-01-13"`, KindDate},
		{"json object", `{"a":1}`, KindJSON},
		{"json array", `[1,2,3]`, KindJSON},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var v Value
			if err := json.Unmarshal([]byte(tc.json), &v); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if v.Kind != tc.kind {
				t.Fatalf("expected kind %v, got %v", tc.kind, v.Kind)
			}

			out, err := json.Marshal(v)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}

			var v2 Value
			if err := json.Unmarshal(out, &v2); err != nil {
				t.Fatalf("re-unmarshal: %v", err)
			}
			if v2.Kind != v.Kind {
				t.Fatalf("round trip changed kind: %v -> %v", v.Kind, v2.Kind)
			}
		})
	}
}

func TestValueTimestampPreservesInstant(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte(`"2026-01-13T10:02:00Z"`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want, _ := time.Parse(time.RFC3339, "2026-01-13T10:02:00Z")
	if !v.TimeVal.Equal(want) {
		t.Fatalf("expected %v, got %v", want, v.TimeVal)
	}
}
