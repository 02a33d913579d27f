package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nodebyte/syncengine/internal/executor"
	"github.com/nodebyte/syncengine/internal/protocol"
	"github.com/nodebyte/syncengine/internal/statestore"
)

// fakeStateBackend is an in-memory statestore.Backend used only by engine
// package tests.
type fakeStateBackend struct {
	mu     sync.Mutex
	states map[string]*statestore.SourceState
}

func newFakeStateBackend() *fakeStateBackend {
	return &fakeStateBackend{states: make(map[string]*statestore.SourceState)}
}

func (b *fakeStateBackend) Load(ctx context.Context, sourceID string) (*statestore.SourceState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.states[sourceID]
	if !ok {
		return nil, fmt.Errorf("no state for %s", sourceID)
	}
	copy := *s
	return &copy, nil
}

func (b *fakeStateBackend) Save(ctx context.Context, state *statestore.SourceState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	copy := *state
	b.states[state.SourceID] = &copy
	return nil
}

func (b *fakeStateBackend) Delete(ctx context.Context, sourceID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.states, sourceID)
	return nil
}

func (b *fakeStateBackend) List(ctx context.Context) ([]statestore.Summary, error) { return nil, nil }

func newTestExecutor(messages []protocol.Message) *executor.Executor {
	exec := executor.New(zerolog.Nop())
	backend := executor.NewInProcessBackend(executor.ConnectorFuncs{
		ReadFunc: func(ctx context.Context, config map[string]any, catalog protocol.ConfiguredCatalog, state map[string]any) (<-chan protocol.Message, <-chan error) {
			out := make(chan protocol.Message, len(messages))
			errc := make(chan error, 1)
			for _, m := range messages {
				out <- m
			}
			close(out)
			close(errc)
			return out, errc
		},
	})
	exec.Register("test-connector", backend)
	return exec
}

func testStream() protocol.ConfiguredStream {
	return protocol.ConfiguredStream{
		Stream:     protocol.Stream{Name: "users"},
		SyncMode:   protocol.SyncModeIncremental,
		PrimaryKey: [][]string{{"id"}},
	}
}

func TestExecuteFullSyncZeroRecordsSkipsWrites(t *testing.T) {
	exec := newTestExecutor(nil)
	store := statestore.New(newFakeStateBackend())
	orch := New(exec, nil, store, nil, nil, nil, zerolog.Nop())

	summary := orch.ExecuteFullSync(context.Background(), SyncRequest{
		SourceID:    "src-1",
		ConnectorID: "test-connector",
		Stream:      testStream(),
		SyncMode:    protocol.SyncModeIncremental,
	})

	if summary.Status != StatusCompleted {
		t.Fatalf("status = %v, want completed", summary.Status)
	}
	if summary.RecordsSynced != 0 {
		t.Errorf("RecordsSynced = %d, want 0", summary.RecordsSynced)
	}
}

func TestExecuteFullSyncConnectorFailureReturnsFailed(t *testing.T) {
	exec := executor.New(zerolog.Nop())
	backend := executor.NewInProcessBackend(executor.ConnectorFuncs{
		ReadFunc: func(ctx context.Context, config map[string]any, catalog protocol.ConfiguredCatalog, state map[string]any) (<-chan protocol.Message, <-chan error) {
			out := make(chan protocol.Message)
			errc := make(chan error, 1)
			close(out)
			errc <- fmt.Errorf("boom")
			close(errc)
			return out, errc
		},
	})
	exec.Register("test-connector", backend)

	store := statestore.New(newFakeStateBackend())
	orch := New(exec, nil, store, nil, nil, nil, zerolog.Nop())

	summary := orch.ExecuteFullSync(context.Background(), SyncRequest{
		SourceID:    "src-1",
		ConnectorID: "test-connector",
		Stream:      testStream(),
		SyncMode:    protocol.SyncModeIncremental,
	})

	if summary.Status != StatusFailed {
		t.Fatalf("status = %v, want failed", summary.Status)
	}
}

func TestExtractCursorPrefersStateOverColumnHeuristic(t *testing.T) {
	state := &protocol.StateMessage{
		Type:   protocol.StateTypeStream,
		Stream: &protocol.StreamStateWire{StreamState: map[string]protocol.Value{"updated_at": protocol.TimestampValue(time.Unix(100, 0))}},
	}
	lastRecord := &protocol.RecordMessage{Data: map[string]protocol.Value{"id": protocol.Int64Value(5)}}

	field, value, ok := extractCursor(state, lastRecord)
	if !ok || field != "updated_at" {
		t.Fatalf("expected cursor from STATE message, got field=%q ok=%v", field, ok)
	}
	if value["updated_at"].TimeVal.Unix() != 100 {
		t.Errorf("unexpected cursor value")
	}
}

func TestExtractCursorFallsBackToColumnHeuristic(t *testing.T) {
	lastRecord := &protocol.RecordMessage{Data: map[string]protocol.Value{
		"id":         protocol.Int64Value(5),
		"created_at": protocol.TimestampValue(time.Unix(200, 0)),
	}}

	field, _, ok := extractCursor(nil, lastRecord)
	if !ok || field != "created_at" {
		t.Fatalf("expected created_at to win over id, got field=%q ok=%v", field, ok)
	}
}

func TestExtractCursorNoCandidatesReturnsFalse(t *testing.T) {
	lastRecord := &protocol.RecordMessage{Data: map[string]protocol.Value{"name": protocol.StringValue("x")}}
	_, _, ok := extractCursor(nil, lastRecord)
	if ok {
		t.Error("expected no extractable cursor")
	}
}
