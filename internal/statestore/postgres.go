package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/nodebyte/syncengine/internal/protocol"
)

// aggregateStreamName is the reserved stream_name value for the row that
// carries a source's top-level metadata (name, timestamps, version), never
// an actual stream's checkpoint. SourceState.GlobalState is not written to
// it, so this backend does not persist global state.
const aggregateStreamName = ""

// PostgresBackend is the primary state persistence layer: one row per
// (source_id, stream_name), denormalised cursor columns plus a state_data
// JSON blob carrying whatever else a connector's cursor needs, and a
// dedicated stream_name='' row for source-level data.
type PostgresBackend struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresBackend constructs a PostgresBackend. The sync_state table is
// created lazily on first use rather than via migration tooling this
// module doesn't own.
func NewPostgresBackend(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresBackend {
	return &PostgresBackend{pool: pool, logger: logger}
}

// EnsureSchema creates the sync_state table if it does not already exist.
func (b *PostgresBackend) EnsureSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS sync_state (
			id BIGSERIAL PRIMARY KEY,
			source_id TEXT NOT NULL,
			source_name TEXT NOT NULL DEFAULT '',
			stream_name TEXT NOT NULL DEFAULT '',
			cursor_field TEXT,
			cursor_value JSONB,
			sync_mode TEXT,
			records_synced BIGINT NOT NULL DEFAULT 0,
			last_synced_at TIMESTAMPTZ,
			state_data JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			version BIGINT NOT NULL DEFAULT 1,
			UNIQUE (source_id, stream_name)
		)`
	if _, err := b.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("statestore: create sync_state table: %w", err)
	}
	return nil
}

// aggregateRow is the JSON shape persisted into state_data for the
// aggregate row; each per-stream row's state_data holds its marshalled
// StreamState instead.
type aggregateRow struct {
	SourceName  string                     `json:"source_name"`
	GlobalState map[string]json.RawMessage `json:"global_state,omitempty"`
}

// Load implements Backend.
func (b *PostgresBackend) Load(ctx context.Context, sourceID string) (*SourceState, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT stream_name, cursor_field, cursor_value, sync_mode, records_synced, last_synced_at,
			state_data, created_at, updated_at, version
		FROM sync_state WHERE source_id = $1`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("statestore: load %s: %w", sourceID, err)
	}
	defer rows.Close()

	state := &SourceState{
		SourceID: sourceID,
		Streams:  make(map[string]StreamState),
	}
	found := false

	for rows.Next() {
		var streamName string
		var cursorField, syncMode *string
		var cursorValue []byte
		var recordsSynced int64
		var lastSyncedAt *time.Time
		var stateData []byte
		var createdAt, updatedAt time.Time
		var version int64

		if err := rows.Scan(&streamName, &cursorField, &cursorValue, &syncMode, &recordsSynced, &lastSyncedAt,
			&stateData, &createdAt, &updatedAt, &version); err != nil {
			return nil, fmt.Errorf("statestore: scan row: %w", err)
		}
		found = true

		if streamName == aggregateStreamName {
			var agg aggregateRow
			if len(stateData) > 0 {
				_ = json.Unmarshal(stateData, &agg)
			}
			state.SourceName = agg.SourceName
			state.CreatedAt = createdAt
			state.UpdatedAt = updatedAt
			state.Version = version
			continue
		}

		// state_data still carries Metadata and anything else a connector's
		// cursor needs beyond the denormalized columns; the denormalized
		// columns below are the ones queries filter/sort on and always win
		// over whatever the blob happens to also hold.
		var stream StreamState
		if len(stateData) > 0 {
			if err := json.Unmarshal(stateData, &stream); err != nil {
				return nil, fmt.Errorf("statestore: unmarshal stream state: %w", err)
			}
		}
		stream.StreamName = streamName
		if cursorField != nil {
			stream.CursorField = *cursorField
		}
		if len(cursorValue) > 0 {
			var cv map[string]protocol.Value
			if err := json.Unmarshal(cursorValue, &cv); err != nil {
				return nil, fmt.Errorf("statestore: unmarshal cursor_value: %w", err)
			}
			stream.CursorValue = cv
		}
		if syncMode != nil {
			stream.SyncMode = protocol.SyncMode(*syncMode)
		}
		stream.RecordsSynced = recordsSynced
		stream.LastSyncedAt = lastSyncedAt
		state.Streams[streamName] = stream
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("statestore: no state found for source %s", sourceID)
	}
	return state, nil
}

// Save implements Backend: it replaces the aggregate row and every stream
// row in one transaction, so a reader never observes half the streams
// updated to a new version.
func (b *PostgresBackend) Save(ctx context.Context, state *SourceState) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("statestore: begin save tx: %w", err)
	}
	defer tx.Rollback(ctx)

	aggData, err := json.Marshal(aggregateRow{SourceName: state.SourceName})
	if err != nil {
		return fmt.Errorf("statestore: marshal aggregate row: %w", err)
	}

	upsertAgg := `
		INSERT INTO sync_state (source_id, source_name, stream_name, state_data, created_at, updated_at, version)
		VALUES ($1, $2, '', $3, $4, $5, $6)
		ON CONFLICT (source_id, stream_name) DO UPDATE
		SET state_data = EXCLUDED.state_data, updated_at = EXCLUDED.updated_at, version = EXCLUDED.version`
	if _, err := tx.Exec(ctx, upsertAgg, state.SourceID, state.SourceName, aggData, state.CreatedAt, state.UpdatedAt, state.Version); err != nil {
		return fmt.Errorf("statestore: upsert aggregate row: %w", err)
	}

	upsertStream := `
		INSERT INTO sync_state (source_id, source_name, stream_name, cursor_field, cursor_value, sync_mode,
			records_synced, last_synced_at, state_data, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (source_id, stream_name) DO UPDATE
		SET cursor_field = EXCLUDED.cursor_field, cursor_value = EXCLUDED.cursor_value,
			sync_mode = EXCLUDED.sync_mode, records_synced = EXCLUDED.records_synced,
			last_synced_at = EXCLUDED.last_synced_at, state_data = EXCLUDED.state_data,
			updated_at = EXCLUDED.updated_at, version = EXCLUDED.version`

	if _, err := tx.Exec(ctx, `DELETE FROM sync_state WHERE source_id = $1 AND stream_name <> ''`, state.SourceID); err != nil {
		return fmt.Errorf("statestore: clear stream rows: %w", err)
	}

	for name, stream := range state.Streams {
		data, err := json.Marshal(stream)
		if err != nil {
			return fmt.Errorf("statestore: marshal stream %s: %w", name, err)
		}
		var cursorValue []byte
		if stream.CursorValue != nil {
			cursorValue, err = json.Marshal(stream.CursorValue)
			if err != nil {
				return fmt.Errorf("statestore: marshal cursor_value for stream %s: %w", name, err)
			}
		}
		if _, err := tx.Exec(ctx, upsertStream,
			state.SourceID, state.SourceName, name, nullIfEmpty(stream.CursorField), cursorValue,
			nullIfEmpty(string(stream.SyncMode)), stream.RecordsSynced, stream.LastSyncedAt,
			data, state.CreatedAt, state.UpdatedAt, state.Version); err != nil {
			return fmt.Errorf("statestore: upsert stream %s: %w", name, err)
		}
	}

	return tx.Commit(ctx)
}

// Delete implements Backend.
func (b *PostgresBackend) Delete(ctx context.Context, sourceID string) error {
	_, err := b.pool.Exec(ctx, `DELETE FROM sync_state WHERE source_id = $1`, sourceID)
	if err != nil {
		return fmt.Errorf("statestore: delete %s: %w", sourceID, err)
	}
	return nil
}

// List implements Backend.
func (b *PostgresBackend) List(ctx context.Context) ([]Summary, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT source_id, source_name, updated_at, version,
			(SELECT count(*) FROM sync_state s2 WHERE s2.source_id = s1.source_id AND s2.stream_name <> '')
		FROM sync_state s1 WHERE stream_name = ''`)
	if err != nil {
		return nil, fmt.Errorf("statestore: list: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.SourceID, &s.SourceName, &s.UpdatedAt, &s.Version, &s.StreamCount); err != nil {
			return nil, fmt.Errorf("statestore: scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// IsUnavailable reports whether err should make FailoverBackend fall back
// to the file backend: every error that is not a server-reported
// *pgx.PgError counts, including an unreachable server and Load's
// "no state found" error for an unknown source.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgx.PgError
	if errors.As(err, &pgErr) {
		return false
	}
	return true
}
