package medallion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/nodebyte/syncengine/internal/protocol"
)

// RawWriter writes unmodified connector records into the raw layer: one
// row per record, payload stored as JSONB, no schema inference. It is the
// landing zone every sync writes through before anything is validated.
type RawWriter struct {
	pool       Execer
	logger     zerolog.Logger
	batchSize  int
	ensureOnce map[string]bool
}

// NewRawWriter constructs a RawWriter. batchSize follows the
// DEFAULT_BATCH_SIZE/MAX_BATCH_SIZE convention from config: callers clamp
// it before passing it in.
func NewRawWriter(pool Execer, batchSize int, logger zerolog.Logger) *RawWriter {
	return &RawWriter{
		pool:       pool,
		logger:     logger,
		batchSize:  batchSize,
		ensureOnce: make(map[string]bool),
	}
}

func (w *RawWriter) ensureTable(ctx context.Context, sourceID, streamName string) error {
	table := RawTableName(sourceID, streamName)
	if w.ensureOnce[table] {
		return nil
	}

	if _, err := w.pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", rawSchema)); err != nil {
		return fmt.Errorf("medallion: create raw schema: %w", err)
	}

	qualified := QualifiedRaw(sourceID, streamName)
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			run_id UUID NOT NULL,
			source_id TEXT NOT NULL,
			stream_name TEXT NOT NULL,
			raw_data JSONB NOT NULL,
			ingested_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			partition_date DATE GENERATED ALWAYS AS (ingested_at::date) STORED
		)`, qualified)
	if _, err := w.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("medallion: create raw table: %w", err)
	}

	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %s (run_id)`,
		"idx_"+table+"_run_id", qualified)
	if _, err := w.pool.Exec(ctx, idx); err != nil {
		return fmt.Errorf("medallion: create raw index: %w", err)
	}

	partitionIdx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %s (partition_date)`,
		"idx_"+table+"_partition_date", qualified)
	if _, err := w.pool.Exec(ctx, partitionIdx); err != nil {
		return fmt.Errorf("medallion: create raw partition index: %w", err)
	}

	w.ensureOnce[table] = true
	return nil
}

// WriteResult reports how a batched write resolved.
type WriteResult struct {
	Written int
	Failed  int
}

// WriteBatch writes a batch of raw records for (sourceID, streamName). On
// batch failure it retries the whole batch once after a backoff delay, and
// as a last resort falls back to per-row inserts so a single bad row does
// not sink the rest of the batch.
func (w *RawWriter) WriteBatch(ctx context.Context, sourceID, streamName string, runID uuid.UUID, records []protocol.RecordMessage) (WriteResult, error) {
	if len(records) == 0 {
		return WriteResult{}, nil
	}

	if err := w.ensureTable(ctx, sourceID, streamName); err != nil {
		return WriteResult{}, err
	}

	qualified := QualifiedRaw(sourceID, streamName)
	insert := fmt.Sprintf(`INSERT INTO %s (run_id, source_id, stream_name, raw_data, ingested_at) VALUES ($1, $2, $3, $4, $5)`, qualified)

	result := WriteResult{}
	for start := 0; start < len(records); start += w.batchSize {
		end := start + w.batchSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]

		written, err := w.writeChunkWithRetry(ctx, insert, sourceID, runID, chunk)
		result.Written += written
		if err != nil {
			fallbackWritten, failed := w.writeChunkPerRow(ctx, insert, sourceID, runID, chunk)
			result.Written += fallbackWritten
			result.Failed += failed
		}
	}

	return result, nil
}

func (w *RawWriter) writeChunkWithRetry(ctx context.Context, insert, sourceID string, runID uuid.UUID, chunk []protocol.RecordMessage) (int, error) {
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1)

	var written int
	op := func() error {
		batch := &pgx.Batch{}
		now := time.Now().UTC()
		for _, rec := range chunk {
			payload, err := json.Marshal(rec.Data)
			if err != nil {
				return backoff.Permanent(fmt.Errorf("medallion: marshal raw record: %w", err))
			}
			batch.Queue(insert, runID, sourceID, rec.Stream, payload, now)
		}

		br := w.pool.SendBatch(ctx, batch)
		defer br.Close()

		for range chunk {
			if _, err := br.Exec(); err != nil {
				return err
			}
		}
		written = len(chunk)
		return nil
	}

	err := backoff.Retry(op, policy)
	if err != nil {
		w.logger.Warn().Err(err).Str("source_id", sourceID).Msg("raw batch insert failed, falling back to per-row")
		return 0, err
	}
	return written, nil
}

func (w *RawWriter) writeChunkPerRow(ctx context.Context, insert, sourceID string, runID uuid.UUID, chunk []protocol.RecordMessage) (written int, failed int) {
	now := time.Now().UTC()
	for _, rec := range chunk {
		payload, err := json.Marshal(rec.Data)
		if err != nil {
			failed++
			continue
		}
		if _, err := w.pool.Exec(ctx, insert, runID, sourceID, rec.Stream, payload, now); err != nil {
			w.logger.Error().Err(err).Str("source_id", sourceID).Str("stream", rec.Stream).Msg("raw row insert failed")
			failed++
			continue
		}
		written++
	}
	return written, failed
}
