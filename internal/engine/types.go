// Package engine implements the Sync Orchestrator: the twelve-step
// execute_full_sync operation that drives a connector read through the
// medallion layers, the PII/quality profilers, and the state store.
package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/nodebyte/syncengine/internal/profiler"
)

// SyncStatus is the terminal outcome of a full sync.
type SyncStatus string

const (
	StatusCompleted SyncStatus = "completed"
	StatusFailed    SyncStatus = "failed"
)

// LayersWritten records which medallion layers a sync actually wrote to,
// for the lineage event and the summary.
type LayersWritten struct {
	Raw       bool
	Validated bool
	Business  bool
}

// Summary is the structured result of execute_full_sync, step 12.
type Summary struct {
	RunID             uuid.UUID
	SourceID          string
	Stream            string
	Status            SyncStatus
	RecordsSynced     int
	Duration          time.Duration
	LayersWritten     LayersWritten
	PIIReport         *profiler.ScanResult
	QualityReport     *profiler.Report
	Error             string
	Metadata          map[string]any
}

// cursorCandidateColumns is the authoritative fallback order when no STATE
// message is observed and a cursor must be picked from the last record's
// columns. The order is fixed; do not add further guessing.
var cursorCandidateColumns = []string{"updated_at", "created_at", "timestamp", "id"}
