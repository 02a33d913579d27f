package medallion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nodebyte/syncengine/internal/protocol"
)

// ChangeOp names a CDC operation against the destination table.
type ChangeOp string

const (
	ChangeOpUpsert ChangeOp = "upsert"
	ChangeOpDelete ChangeOp = "delete"
)

// ChangeRecord is one CDC event: an upsert carries the full row, a delete
// carries only the primary key value. LSN and UpdatedAt are the source's
// own change-ordering metadata (Airbyte-style _ab_cdc_* columns) — when the
// source doesn't expose a log sequence number, LSN is left empty and
// replay ordering falls back to UpdatedAt/_synced_at.
type ChangeRecord struct {
	Op        ChangeOp
	Data      map[string]protocol.Value
	KeyOnly   protocol.Value
	LSN       string
	UpdatedAt time.Time
}

// CDCWriter applies change events onto a soft-delete-aware table in the
// chart schema (named after the deduplicated table, with a _cdc suffix):
// upserts refresh the live row, deletes set _deleted/_deleted_at on it
// rather than removing the row so downstream consumers can still see the
// tombstone.
type CDCWriter struct {
	pool      Execer
	logger    zerolog.Logger
	batchSize int
	known     map[string][]string
}

// NewCDCWriter constructs a CDCWriter.
func NewCDCWriter(pool Execer, batchSize int, logger zerolog.Logger) *CDCWriter {
	return &CDCWriter{
		pool:      pool,
		logger:    logger,
		batchSize: batchSize,
		known:     make(map[string][]string),
	}
}

func (w *CDCWriter) ensureTable(ctx context.Context, sourceID, streamName string, columns []string, kinds map[string]protocol.Kind, primaryKey string) error {
	table := DedupTableName(sourceID, streamName) + "_cdc"
	qualified := fmt.Sprintf("%s.%q", validatedSchema, table)
	if existing, ok := w.known[table]; ok && sameColumns(existing, columns) {
		return nil
	}

	if _, err := w.pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", validatedSchema)); err != nil {
		return fmt.Errorf("medallion: create CDC schema: %w", err)
	}

	colDefs := make([]string, 0, len(columns))
	for _, col := range columns {
		colDefs = append(colDefs, fmt.Sprintf("%q %s", col, SQLType(kinds[col])))
	}
	colDefs = append(colDefs,
		"_deleted BOOLEAN NOT NULL DEFAULT FALSE",
		"_deleted_at TIMESTAMPTZ",
		"_ab_cdc_lsn TEXT",
		"_ab_cdc_updated_at TIMESTAMPTZ",
		"_synced_at TIMESTAMPTZ NOT NULL DEFAULT now()",
		"run_id UUID NOT NULL",
	)

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s)`, qualified, joinComma(colDefs))
	if _, err := w.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("medallion: create CDC table: %w", err)
	}

	for _, col := range columns {
		stmt := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS %q %s`, qualified, col, SQLType(kinds[col]))
		if _, err := w.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("medallion: widen CDC table: %w", err)
		}
	}

	// Partial unique index on the primary key where the row is not
	// soft-deleted: a later upsert for a previously deleted key inserts a
	// fresh row rather than conflicting with the tombstone.
	idx := fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %q ON %s (%q) WHERE _deleted_at IS NULL`,
		"idx_"+table+"_live", qualified, primaryKey)
	if _, err := w.pool.Exec(ctx, idx); err != nil {
		return fmt.Errorf("medallion: create CDC live index: %w", err)
	}

	w.known[table] = columns
	return nil
}

// Apply writes a batch of change events. Deletes for a primary key with no
// prior live row insert a tombstone row (primary key plus a timestamp, all
// other columns null) rather than being dropped — an unknown-delete must
// still be visible in the destination.
func (w *CDCWriter) Apply(ctx context.Context, sourceID, streamName string, runID uuid.UUID, changes []ChangeRecord, primaryKey string) (WriteResult, error) {
	if len(changes) == 0 {
		return WriteResult{}, nil
	}

	var sample []map[string]protocol.Value
	for _, c := range changes {
		if c.Op == ChangeOpUpsert {
			sample = append(sample, c.Data)
		}
	}
	columns, kinds := InferSchema(sample)
	if !containsString(columns, primaryKey) {
		columns = append([]string{primaryKey}, columns...)
		kinds[primaryKey] = protocol.KindString
	}

	table := DedupTableName(sourceID, streamName) + "_cdc"
	qualified := fmt.Sprintf("%s.%q", validatedSchema, table)
	if err := w.ensureTable(ctx, sourceID, streamName, columns, kinds, primaryKey); err != nil {
		return WriteResult{}, err
	}

	now := time.Now().UTC()
	result := WriteResult{}

	colNames := make([]string, len(columns))
	for i, c := range columns {
		colNames[i] = fmt.Sprintf("%q", c)
	}
	setClauses := make([]string, 0, len(columns)+5)
	for _, c := range colNames {
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	setClauses = append(setClauses,
		`_deleted = FALSE`, `_deleted_at = NULL`,
		`_ab_cdc_lsn = EXCLUDED._ab_cdc_lsn`, `_ab_cdc_updated_at = EXCLUDED._ab_cdc_updated_at`,
		`_synced_at = EXCLUDED._synced_at`, `run_id = EXCLUDED.run_id`)

	upsertCols := joinComma(append(colNames, "_deleted", "_ab_cdc_lsn", "_ab_cdc_updated_at", "_synced_at", "run_id"))
	upsertPlaceholders := placeholderList(len(columns) + 5)
	upsert := fmt.Sprintf(`
		INSERT INTO %s (%s) VALUES (%s)
		ON CONFLICT (%q) WHERE _deleted_at IS NULL DO UPDATE SET %s`,
		qualified, upsertCols, upsertPlaceholders, primaryKey, joinComma(setClauses))

	tombstone := fmt.Sprintf(`
		INSERT INTO %s (%q, _deleted, _deleted_at, _ab_cdc_lsn, _ab_cdc_updated_at, _synced_at, run_id) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (%q) WHERE _deleted_at IS NULL DO UPDATE SET
			_deleted = TRUE, _deleted_at = EXCLUDED._deleted_at,
			_ab_cdc_lsn = EXCLUDED._ab_cdc_lsn, _ab_cdc_updated_at = EXCLUDED._ab_cdc_updated_at,
			_synced_at = EXCLUDED._synced_at, run_id = EXCLUDED.run_id`,
		qualified, primaryKey, primaryKey)

	softDelete := fmt.Sprintf(`UPDATE %s SET _deleted = TRUE, _deleted_at = $1, _ab_cdc_lsn = $2, _ab_cdc_updated_at = $3,
		_synced_at = $4, run_id = $5 WHERE %q = $6 AND _deleted_at IS NULL`, qualified, primaryKey)

	for _, change := range changes {
		lsn := nullIfEmptyString(change.LSN)
		updatedAt := nullIfZeroTime(change.UpdatedAt)

		switch change.Op {
		case ChangeOpUpsert:
			values := RowValues(change.Data, columns)
			values = append(values, false, lsn, updatedAt, now, runID)
			if _, err := w.pool.Exec(ctx, upsert, values...); err != nil {
				w.logger.Error().Err(err).Str("source_id", sourceID).Msg("CDC upsert failed")
				result.Failed++
				continue
			}
			result.Written++
		case ChangeOpDelete:
			keyValue := NativeValue(change.KeyOnly)
			tag, err := w.pool.Exec(ctx, softDelete, now, lsn, updatedAt, now, runID, keyValue)
			if err == nil && tag.RowsAffected() == 0 {
				_, err = w.pool.Exec(ctx, tombstone, keyValue, true, now, lsn, updatedAt, now, runID)
			}
			if err != nil {
				w.logger.Error().Err(err).Str("source_id", sourceID).Msg("CDC tombstone failed")
				result.Failed++
				continue
			}
			result.Written++
		}
	}

	return result, nil
}

func nullIfEmptyString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
