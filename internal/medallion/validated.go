package medallion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/nodebyte/syncengine/internal/protocol"
)

// ValidatedWriter writes schema-inferred, typed rows into the validated
// layer, alongside the PII and quality metadata produced by the profiler
// for that batch.
type ValidatedWriter struct {
	pool      Execer
	logger    zerolog.Logger
	batchSize int
	known     map[string][]string // table -> columns already DDL'd
}

// NewValidatedWriter constructs a ValidatedWriter.
func NewValidatedWriter(pool Execer, batchSize int, logger zerolog.Logger) *ValidatedWriter {
	return &ValidatedWriter{
		pool:      pool,
		logger:    logger,
		batchSize: batchSize,
		known:     make(map[string][]string),
	}
}

func (w *ValidatedWriter) ensureTable(ctx context.Context, sourceID, streamName string, columns []string, kinds map[string]protocol.Kind) error {
	table := ValidatedTableName(sourceID, streamName)
	if existing, ok := w.known[table]; ok && sameColumns(existing, columns) {
		return nil
	}

	if _, err := w.pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", validatedSchema)); err != nil {
		return fmt.Errorf("medallion: create validated schema: %w", err)
	}

	qualified := QualifiedValidated(sourceID, streamName)

	colDefs := make([]string, 0, len(columns))
	for _, col := range columns {
		colDefs = append(colDefs, fmt.Sprintf("%q %s", col, SQLType(kinds[col])))
	}
	colDefs = append(colDefs,
		"run_id UUID NOT NULL",
		"validated_at TIMESTAMPTZ NOT NULL DEFAULT now()",
		"pii_checked BOOLEAN NOT NULL DEFAULT FALSE",
		"quality_score NUMERIC(5,2)",
		"created_at TIMESTAMPTZ NOT NULL DEFAULT now()",
	)

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			%s
		)`, qualified, joinComma(colDefs))
	if _, err := w.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("medallion: create validated table: %w", err)
	}

	for _, col := range columns {
		colQuoted := fmt.Sprintf("%q", col)
		stmt := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s`, qualified, colQuoted, SQLType(kinds[col]))
		if _, err := w.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("medallion: widen validated table: %w", err)
		}
	}

	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %s (quality_score) WHERE quality_score < 80`,
		"idx_"+table+"_quality", qualified)
	if _, err := w.pool.Exec(ctx, idx); err != nil {
		return fmt.Errorf("medallion: create quality index: %w", err)
	}

	w.known[table] = columns
	return nil
}

// ValidatedRecord pairs a record's typed values with the per-record quality
// and PII outcome computed upstream by the profiler.
type ValidatedRecord struct {
	Data         map[string]protocol.Value
	PIIDetected  bool
	QualityScore float64
}

// WriteBatch infers a schema across the batch, widens the table if
// necessary, and batch-inserts every record.
func (w *ValidatedWriter) WriteBatch(ctx context.Context, sourceID, streamName string, runID uuid.UUID, records []ValidatedRecord) (WriteResult, error) {
	if len(records) == 0 {
		return WriteResult{}, nil
	}

	raw := make([]map[string]protocol.Value, len(records))
	for i, r := range records {
		raw[i] = r.Data
	}
	columns, kinds := InferSchema(raw)

	if err := w.ensureTable(ctx, sourceID, streamName, columns, kinds); err != nil {
		return WriteResult{}, err
	}

	qualified := QualifiedValidated(sourceID, streamName)
	colNames := make([]string, len(columns))
	for i, c := range columns {
		colNames[i] = fmt.Sprintf("%q", c)
	}
	insertCols := joinComma(append(colNames, "run_id", "validated_at", "pii_checked", "quality_score", "created_at"))
	placeholders := placeholderList(len(columns) + 5)
	insert := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, qualified, insertCols, placeholders)

	result := WriteResult{}
	now := time.Now().UTC()

	for start := 0; start < len(records); start += w.batchSize {
		end := start + w.batchSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]

		batch := &pgx.Batch{}
		for _, rec := range chunk {
			values := RowValues(rec.Data, columns)
			values = append(values, runID, now, rec.PIIDetected, rec.QualityScore, now)
			batch.Queue(insert, values...)
		}

		br := w.pool.SendBatch(ctx, batch)
		ok := true
		for range chunk {
			if _, err := br.Exec(); err != nil {
				w.logger.Error().Err(err).Str("source_id", sourceID).Msg("validated batch insert failed")
				ok = false
				break
			}
		}
		br.Close()

		if ok {
			result.Written += len(chunk)
			continue
		}

		for _, rec := range chunk {
			values := RowValues(rec.Data, columns)
			values = append(values, runID, now, rec.PIIDetected, rec.QualityScore, now)
			if _, err := w.pool.Exec(ctx, insert, values...); err != nil {
				result.Failed++
				continue
			}
			result.Written++
		}
	}

	return result, nil
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

func placeholderList(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("$%d", i+1)
	}
	return out
}
