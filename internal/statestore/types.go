// Package statestore persists per-(source,stream) sync cursors: a
// Postgres-backed primary store with a file-per-source JSON fallback used
// when the database is unreachable.
package statestore

import (
	"time"

	"github.com/nodebyte/syncengine/internal/protocol"
)

// StreamState is the checkpoint for a single stream within a source.
type StreamState struct {
	StreamName    string                    `json:"stream_name"`
	CursorField   string                    `json:"cursor_field,omitempty"`
	CursorValue   map[string]protocol.Value `json:"cursor_value,omitempty"`
	SyncMode      protocol.SyncMode         `json:"sync_mode"`
	LastSyncedAt  *time.Time                `json:"last_synced_at,omitempty"`
	RecordsSynced int64                     `json:"records_synced"`
	Metadata      map[string]any            `json:"metadata,omitempty"`
}

// SourceState is the complete checkpoint for a source connector: one state
// row per stream plus a shared, connector-wide global_state blob.
type SourceState struct {
	SourceID    string                 `json:"source_id"`
	SourceName  string                 `json:"source_name"`
	Streams     map[string]StreamState `json:"streams"`
	GlobalState map[string]protocol.Value `json:"global_state,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	Version     int64                  `json:"version"`
}

// GetStreamState returns the stream's checkpoint, or false if none exists
// yet (a full_refresh-only stream, or a stream never synced before).
func (s *SourceState) GetStreamState(streamName string) (StreamState, bool) {
	if s.Streams == nil {
		return StreamState{}, false
	}
	st, ok := s.Streams[streamName]
	return st, ok
}

// SetStreamState upserts a stream's checkpoint and bumps the source's
// version, matching the predecessor state manager's set_stream_state
// semantics: an existing stream's cursor only moves forward when a new
// value is supplied, and records_synced accumulates rather than resets.
func (s *SourceState) SetStreamState(streamName string, cursorField string, cursorValue map[string]protocol.Value, syncMode protocol.SyncMode, recordsSynced int64, metadata map[string]any, now time.Time) StreamState {
	if s.Streams == nil {
		s.Streams = make(map[string]StreamState)
	}

	state, exists := s.Streams[streamName]
	if exists {
		if cursorField != "" {
			state.CursorField = cursorField
		}
		if cursorValue != nil {
			state.CursorValue = cursorValue
		}
		state.SyncMode = syncMode
		state.LastSyncedAt = &now
		state.RecordsSynced += recordsSynced
		if metadata != nil {
			if state.Metadata == nil {
				state.Metadata = make(map[string]any)
			}
			for k, v := range metadata {
				state.Metadata[k] = v
			}
		}
	} else {
		state = StreamState{
			StreamName:    streamName,
			CursorField:   cursorField,
			CursorValue:   cursorValue,
			SyncMode:      syncMode,
			LastSyncedAt:  &now,
			RecordsSynced: recordsSynced,
			Metadata:      metadata,
		}
	}

	s.Streams[streamName] = state
	s.UpdatedAt = now
	s.Version++
	return state
}

// Summary is a lightweight view of a source's state for listing/reporting.
type Summary struct {
	SourceID     string
	SourceName   string
	StreamCount  int
	UpdatedAt    time.Time
	Version      int64
}
