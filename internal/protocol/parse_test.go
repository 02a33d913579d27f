package protocol

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseStreamSkipsMalformedLines(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"RECORD","record":{"stream":"users","data":{"id":1},"emitted_at":1000}}`,
		`not even json`,
		`{"type":"RECORD","record":{"stream":"users","data":{"id":2},"emitted_at":1001}}`,
		``,
		`{"type":"STATE","state":{"type":"STREAM","stream":{"stream_descriptor":{"name":"users"},"stream_state":{"cursor":"2026-01-13"}}}}`,
	}, "\n")

	logger := zerolog.New(bytes.NewBuffer(nil))
	messages, errc := ParseStream(context.Background(), strings.NewReader(input), logger)

	var got []Message
	for m := range messages {
		got = append(got, m)
	}
	if err := <-errc; err != nil {
		t.Fatalf("unexpected scan error: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 valid messages, got %d", len(got))
	}

	records := Records(got)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Data["id"].Int64Val != 1 || records[1].Data["id"].Int64Val != 2 {
		t.Fatalf("records out of order: %+v", records)
	}

	state := LastState(got)
	if state == nil || state.Stream == nil || state.Stream.StreamDescriptor.Name != "users" {
		t.Fatalf("expected last state for users stream, got %+v", state)
	}
}

func TestLastStateAuthoritativeOrdering(t *testing.T) {
	messages := []Message{
		{Type: MessageTypeState, State: &StateMessage{Type: StateTypeStream, Stream: &StreamStateWire{StreamDescriptor: StreamDescriptor{Name: "a"}}}},
		{Type: MessageTypeRecord, Record: &RecordMessage{Stream: "a"}},
		{Type: MessageTypeState, State: &StateMessage{Type: StateTypeStream, Stream: &StreamStateWire{StreamDescriptor: StreamDescriptor{Name: "b"}}}},
	}

	last := LastState(messages)
	if last == nil || last.Stream.StreamDescriptor.Name != "b" {
		t.Fatalf("expected last state to be for stream b, got %+v", last)
	}
}

func TestCheckProtocolVersion(t *testing.T) {
	cases := []struct {
		version string
		ok      bool
	}{
		{"", true},
		{"1.0.0", true},
		{"0.2.0", true},
		{"0.1.0", false},
		{"2.0.0", false},
	}

	for _, tc := range cases {
		ok, err := CheckProtocolVersion(tc.version)
		if err != nil {
			t.Fatalf("version %q: unexpected error: %v", tc.version, err)
		}
		if ok != tc.ok {
			t.Fatalf("version %q: expected ok=%v, got %v", tc.version, tc.ok, ok)
		}
	}
}
