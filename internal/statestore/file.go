package statestore

import (
	"encoding/json"
	"fmt"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// FileBackend is the fallback persistence layer used when Postgres is
// unreachable: one JSON file per source under storageDir, grounded on the
// predecessor state manager's file-per-source layout.
type FileBackend struct {
	storageDir string
	logger     zerolog.Logger
}

// NewFileBackend constructs a FileBackend rooted at storageDir, creating
// the directory if it does not exist.
func NewFileBackend(storageDir string, logger zerolog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("statestore: create storage dir %s: %w", storageDir, err)
	}
	return &FileBackend{storageDir: storageDir, logger: logger}, nil
}

func (b *FileBackend) path(sourceID string) string {
	return filepath.Join(b.storageDir, sanitizeFileName(sourceID)+".json")
}

func sanitizeFileName(sourceID string) string {
	var out strings.Builder
	for _, r := range sourceID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out.WriteRune(r)
		default:
			out.WriteRune('_')
		}
	}
	return out.String()
}

// Load implements Backend.
func (b *FileBackend) Load(ctx context.Context, sourceID string) (*SourceState, error) {
	data, err := os.ReadFile(b.path(sourceID))
	if err != nil {
		return nil, fmt.Errorf("statestore: read state file for %s: %w", sourceID, err)
	}
	var state SourceState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("statestore: parse state file for %s: %w", sourceID, err)
	}
	return &state, nil
}

// Save implements Backend: writes to a temp file in the same directory
// and renames over the target, so a crash mid-write never leaves a
// truncated state file behind.
func (b *FileBackend) Save(ctx context.Context, state *SourceState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("statestore: marshal state for %s: %w", state.SourceID, err)
	}

	target := b.path(state.SourceID)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("statestore: write temp state file for %s: %w", state.SourceID, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("statestore: rename state file for %s: %w", state.SourceID, err)
	}
	return nil
}

// Delete implements Backend.
func (b *FileBackend) Delete(ctx context.Context, sourceID string) error {
	err := os.Remove(b.path(sourceID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("statestore: delete state file for %s: %w", sourceID, err)
	}
	return nil
}

// List implements Backend.
func (b *FileBackend) List(ctx context.Context) ([]Summary, error) {
	entries, err := os.ReadDir(b.storageDir)
	if err != nil {
		return nil, fmt.Errorf("statestore: list storage dir: %w", err)
	}

	var summaries []Summary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(b.storageDir, entry.Name()))
		if err != nil {
			b.logger.Warn().Err(err).Str("file", entry.Name()).Msg("skipping unreadable state file")
			continue
		}
		var state SourceState
		if err := json.Unmarshal(data, &state); err != nil {
			b.logger.Warn().Err(err).Str("file", entry.Name()).Msg("skipping malformed state file")
			continue
		}
		summaries = append(summaries, Summary{
			SourceID:    state.SourceID,
			SourceName:  state.SourceName,
			StreamCount: len(state.Streams),
			UpdatedAt:   state.UpdatedAt,
			Version:     state.Version,
		})
	}
	return summaries, nil
}
