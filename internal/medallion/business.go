package medallion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/nodebyte/syncengine/internal/protocol"
)

// BusinessWriter implements the SCD Type 2 write strategy for the business
// layer: every natural key has at most one is_current row at a time, and a
// changed record closes the old row before inserting a new one.
type BusinessWriter struct {
	pool      Execer
	logger    zerolog.Logger
	batchSize int
	known     map[string][]string
}

// NewBusinessWriter constructs a BusinessWriter.
func NewBusinessWriter(pool Execer, batchSize int, logger zerolog.Logger) *BusinessWriter {
	return &BusinessWriter{
		pool:      pool,
		logger:    logger,
		batchSize: batchSize,
		known:     make(map[string][]string),
	}
}

func (w *BusinessWriter) ensureTable(ctx context.Context, sourceID, streamName string, columns []string, kinds map[string]protocol.Kind) error {
	table := BusinessTableName(sourceID, streamName)
	if existing, ok := w.known[table]; ok && sameColumns(existing, columns) {
		return nil
	}

	if _, err := w.pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", businessSchema)); err != nil {
		return fmt.Errorf("medallion: create business schema: %w", err)
	}

	qualified := QualifiedBusiness(sourceID, streamName)

	colDefs := make([]string, 0, len(columns))
	for _, col := range columns {
		colDefs = append(colDefs, fmt.Sprintf("%q %s", col, SQLType(kinds[col])))
	}
	colDefs = append(colDefs,
		"surrogate_key BIGSERIAL PRIMARY KEY",
		"natural_key TEXT NOT NULL",
		"content_hash TEXT NOT NULL",
		"valid_from TIMESTAMPTZ NOT NULL DEFAULT now()",
		"valid_to TIMESTAMPTZ NOT NULL DEFAULT 'infinity'",
		"is_current BOOLEAN NOT NULL DEFAULT TRUE",
		"run_id UUID NOT NULL",
	)

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s)`, qualified, joinComma(colDefs))
	if _, err := w.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("medallion: create business table: %w", err)
	}

	for _, col := range columns {
		stmt := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS %q %s`, qualified, col, SQLType(kinds[col]))
		if _, err := w.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("medallion: widen business table: %w", err)
		}
	}

	// Partial unique index: at most one current row per natural key.
	idx := fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %q ON %s (natural_key) WHERE is_current`,
		"idx_"+table+"_current", qualified)
	if _, err := w.pool.Exec(ctx, idx); err != nil {
		return fmt.Errorf("medallion: create SCD2 current index: %w", err)
	}

	validityIdx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %s (valid_from, valid_to)`,
		"idx_"+table+"_validity", qualified)
	if _, err := w.pool.Exec(ctx, validityIdx); err != nil {
		return fmt.Errorf("medallion: create SCD2 validity index: %w", err)
	}

	w.known[table] = columns
	return nil
}

func rowHash(columns []string, row map[string]protocol.Value) string {
	normalized := make(map[string]any, len(columns))
	for _, col := range columns {
		normalized[col] = NativeValue(row[col])
	}
	keys := make([]string, 0, len(normalized))
	for k := range normalized {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		ordered = append(ordered, k, normalized[k])
	}
	data, _ := json.Marshal(ordered)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// WriteSCD2 applies the four-step SCD Type 2 algorithm per record: look up
// the current row for the natural key and compare a content hash; with no
// current row it inserts one, with an unchanged hash it refreshes the
// current row's run_id, and otherwise it closes the current row and
// inserts a new current row. When naturalKeyColumn is empty, the batch's first inferred
// column is used, matching the predecessor writer's default.
func (w *BusinessWriter) WriteSCD2(ctx context.Context, sourceID, streamName string, runID uuid.UUID, records []map[string]protocol.Value, naturalKeyColumn string) (inserted, updated, unchanged int, err error) {
	if len(records) == 0 {
		return 0, 0, 0, nil
	}

	columns, kinds := InferSchema(records)
	if naturalKeyColumn == "" && len(columns) > 0 {
		naturalKeyColumn = columns[0]
	}
	if err := w.ensureTable(ctx, sourceID, streamName, columns, kinds); err != nil {
		return 0, 0, 0, err
	}

	qualified := QualifiedBusiness(sourceID, streamName)
	now := time.Now().UTC()

	for _, rec := range records {
		keyVal, ok := rec[naturalKeyColumn]
		if !ok {
			w.logger.Warn().Str("source_id", sourceID).Str("stream", streamName).Msg("record missing natural key column, skipped")
			continue
		}
		naturalKey := fmt.Sprintf("%v", NativeValue(keyVal))
		newHash := rowHash(columns, rec)

		tx, txErr := w.pool.Begin(ctx)
		if txErr != nil {
			return inserted, updated, unchanged, fmt.Errorf("medallion: begin SCD2 tx: %w", txErr)
		}

		var existingHash string
		query := fmt.Sprintf(`SELECT content_hash FROM %s WHERE natural_key = $1 AND is_current`, qualified)
		scanErr := tx.QueryRow(ctx, query, naturalKey).Scan(&existingHash)

		switch {
		case errors.Is(scanErr, pgx.ErrNoRows):
			if err := w.insertCurrent(ctx, tx, qualified, columns, rec, naturalKey, newHash, runID, now); err != nil {
				tx.Rollback(ctx)
				return inserted, updated, unchanged, err
			}
			inserted++
		case scanErr != nil:
			tx.Rollback(ctx)
			return inserted, updated, unchanged, fmt.Errorf("medallion: SCD2 lookup: %w", scanErr)
		case existingHash == newHash:
			refresh := fmt.Sprintf(`UPDATE %s SET run_id = $1 WHERE natural_key = $2 AND is_current`, qualified)
			if _, err := tx.Exec(ctx, refresh, runID, naturalKey); err != nil {
				tx.Rollback(ctx)
				return inserted, updated, unchanged, fmt.Errorf("medallion: SCD2 refresh: %w", err)
			}
			unchanged++
		default:
			closeStmt := fmt.Sprintf(`UPDATE %s SET valid_to = $1, is_current = FALSE WHERE natural_key = $2 AND is_current`, qualified)
			if _, err := tx.Exec(ctx, closeStmt, now, naturalKey); err != nil {
				tx.Rollback(ctx)
				return inserted, updated, unchanged, fmt.Errorf("medallion: SCD2 close: %w", err)
			}
			if err := w.insertCurrent(ctx, tx, qualified, columns, rec, naturalKey, newHash, runID, now); err != nil {
				tx.Rollback(ctx)
				return inserted, updated, unchanged, err
			}
			updated++
		}

		if err := tx.Commit(ctx); err != nil {
			return inserted, updated, unchanged, fmt.Errorf("medallion: commit SCD2 tx: %w", err)
		}
	}

	return inserted, updated, unchanged, nil
}

func (w *BusinessWriter) insertCurrent(ctx context.Context, tx pgx.Tx, qualified string, columns []string, rec map[string]protocol.Value, naturalKey, contentHash string, runID uuid.UUID, validFrom time.Time) error {
	colNames := make([]string, len(columns))
	for i, c := range columns {
		colNames[i] = fmt.Sprintf("%q", c)
	}
	insertCols := joinComma(append(colNames, "natural_key", "content_hash", "valid_from", "run_id"))
	placeholders := placeholderList(len(columns) + 4)
	insert := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, qualified, insertCols, placeholders)

	values := RowValues(rec, columns)
	values = append(values, naturalKey, contentHash, validFrom, runID)
	if _, err := tx.Exec(ctx, insert, values...); err != nil {
		return fmt.Errorf("medallion: SCD2 insert: %w", err)
	}
	return nil
}
