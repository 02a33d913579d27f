package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// HistoryRecord is one persisted scheduled_runs row.
type HistoryRecord struct {
	ID               uuid.UUID
	JobID            string
	ConnectorID      string
	SourceName       string
	Streams          []string
	SyncMode         string
	Status           string
	RecordsProcessed int
	StartedAt        time.Time
	CompletedAt      time.Time
	DurationSeconds  float64
	ErrorMessage     string
	Metadata         map[string]any
	CreatedAt        time.Time
}

// HistoryStore persists terminal job transitions to the scheduled_runs
// table, created lazily by a one-time CREATE TABLE IF NOT EXISTS on the
// first Record or List call.
type HistoryStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger

	ensured bool
	mu      sync.Mutex
}

// NewHistoryStore constructs a HistoryStore. pool may be nil in tests that
// never call Record/List against Postgres.
func NewHistoryStore(pool *pgxpool.Pool, logger zerolog.Logger) *HistoryStore {
	return &HistoryStore{pool: pool, logger: logger}
}

func (h *HistoryStore) ensureTable(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ensured {
		return nil
	}

	ddl := `
		CREATE TABLE IF NOT EXISTS scheduled_runs (
			id UUID PRIMARY KEY,
			job_id TEXT NOT NULL,
			connector_id TEXT NOT NULL,
			source_name TEXT NOT NULL,
			streams TEXT[] NOT NULL,
			sync_mode TEXT NOT NULL,
			status TEXT NOT NULL,
			records_processed INTEGER NOT NULL DEFAULT 0,
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			duration_seconds NUMERIC,
			error_message TEXT,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`
	if _, err := h.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("scheduler: create scheduled_runs table: %w", err)
	}
	h.ensured = true
	return nil
}

// Record appends a terminal job transition. Called once per job, after its
// final status is set.
func (h *HistoryStore) Record(ctx context.Context, job *SyncJob) error {
	if h.pool == nil {
		return nil
	}
	if err := h.ensureTable(ctx); err != nil {
		return err
	}

	metadata, err := json.Marshal(job.Metadata)
	if err != nil {
		return fmt.Errorf("scheduler: marshal job metadata: %w", err)
	}

	var errMsg *string
	if job.Error != "" {
		errMsg = &job.Error
	}

	_, err = h.pool.Exec(ctx, `
		INSERT INTO scheduled_runs
			(id, job_id, connector_id, source_name, streams, sync_mode, status, records_processed, started_at, completed_at, duration_seconds, error_message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		uuid.New(), job.ID, job.ConnectorID, job.SourceName, job.Streams, string(job.SyncMode), string(job.Status),
		job.RecordsProcessed, job.StartedAt, job.CompletedAt, job.Duration.Seconds(), errMsg, metadata)
	if err != nil {
		return fmt.Errorf("scheduler: insert scheduled_runs row: %w", err)
	}
	return nil
}

// List returns scheduled_runs rows whose source_name equals sourceID (all
// rows when empty), most recent first. The table has no source_id column,
// so a source id only matches rows whose source name is that same string.
func (h *HistoryStore) List(ctx context.Context, sourceID string, limit int) ([]HistoryRecord, error) {
	if h.pool == nil {
		return nil, nil
	}
	if err := h.ensureTable(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, job_id, connector_id, source_name, streams, sync_mode, status,
			records_processed, started_at, completed_at, duration_seconds, error_message, metadata, created_at
		FROM scheduled_runs`
	args := []any{}
	if sourceID != "" {
		query += ` WHERE source_name = $1`
		args = append(args, sourceID)
	}
	query += ` ORDER BY created_at DESC LIMIT ` + fmt.Sprint(limit)

	rows, err := h.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scheduler: list scheduled_runs: %w", err)
	}
	defer rows.Close()

	var out []HistoryRecord
	for rows.Next() {
		var rec HistoryRecord
		var errMsg *string
		var metadata []byte
		var duration *float64

		if err := rows.Scan(&rec.ID, &rec.JobID, &rec.ConnectorID, &rec.SourceName, &rec.Streams, &rec.SyncMode, &rec.Status,
			&rec.RecordsProcessed, &rec.StartedAt, &rec.CompletedAt, &duration, &errMsg, &metadata, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scheduler: scan scheduled_runs row: %w", err)
		}
		if duration != nil {
			rec.DurationSeconds = *duration
		}
		if errMsg != nil {
			rec.ErrorMessage = *errMsg
		}
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &rec.Metadata)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
