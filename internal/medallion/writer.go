package medallion

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Writer is the Medallion Writer subsystem: one facade over the raw,
// validated, business, deduplicated, and CDC write strategies, sharing a
// single connection pool and batch size.
type Writer struct {
	Raw       *RawWriter
	Validated *ValidatedWriter
	Business  *BusinessWriter
	Dedup     *DedupWriter
	CDC       *CDCWriter
}

// NewWriter constructs a Writer over pool, applying batchSize to every
// layer's batched inserts.
func NewWriter(pool *pgxpool.Pool, batchSize int, logger zerolog.Logger) *Writer {
	return &Writer{
		Raw:       NewRawWriter(pool, batchSize, logger),
		Validated: NewValidatedWriter(pool, batchSize, logger),
		Business:  NewBusinessWriter(pool, batchSize, logger),
		Dedup:     NewDedupWriter(pool, batchSize, logger),
		CDC:       NewCDCWriter(pool, batchSize, logger),
	}
}
