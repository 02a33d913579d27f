package statestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nodebyte/syncengine/internal/protocol"
)

func newTestFileBackend(t *testing.T) *FileBackend {
	t.Helper()
	dir := t.TempDir()
	backend, err := NewFileBackend(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	return backend
}

func TestFileBackendSaveLoadRoundTrip(t *testing.T) {
	backend := newTestFileBackend(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	state := &SourceState{
		SourceID:   "source-postgres",
		SourceName: "Postgres Production",
		Streams: map[string]StreamState{
			"users": {
				StreamName:  "users",
				CursorField: "updated_at",
				CursorValue: map[string]protocol.Value{"updated_at": protocol.TimestampValue(now)},
				SyncMode:    protocol.SyncModeIncremental,
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}

	if err := backend.Save(ctx, state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := backend.Load(ctx, "source-postgres")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.SourceName != "Postgres Production" {
		t.Errorf("SourceName = %q", loaded.SourceName)
	}
	stream, ok := loaded.GetStreamState("users")
	if !ok {
		t.Fatal("expected users stream state to round-trip")
	}
	if stream.CursorField != "updated_at" {
		t.Errorf("CursorField = %q", stream.CursorField)
	}
}

func TestFileBackendLoadMissingReturnsError(t *testing.T) {
	backend := newTestFileBackend(t)
	if _, err := backend.Load(context.Background(), "does-not-exist"); err == nil {
		t.Error("expected an error loading a nonexistent source")
	}
}

func TestFileBackendDeleteIsIdempotent(t *testing.T) {
	backend := newTestFileBackend(t)
	ctx := context.Background()
	if err := backend.Delete(ctx, "never-existed"); err != nil {
		t.Errorf("Delete on missing file should not error, got %v", err)
	}
}

func TestFileBackendListSkipsMalformedFiles(t *testing.T) {
	backend := newTestFileBackend(t)
	ctx := context.Background()

	now := time.Now().UTC()
	good := &SourceState{SourceID: "good-source", SourceName: "Good", UpdatedAt: now, Version: 1}
	if err := backend.Save(ctx, good); err != nil {
		t.Fatalf("Save: %v", err)
	}

	badPath := filepath.Join(backend.storageDir, "bad.json")
	if err := os.WriteFile(badPath, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write bad file: %v", err)
	}

	summaries, err := backend.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 1 || summaries[0].SourceID != "good-source" {
		t.Errorf("expected only the well-formed source, got %+v", summaries)
	}
}
