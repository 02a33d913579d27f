package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nodebyte/syncengine/internal/executor"
	"github.com/nodebyte/syncengine/internal/medallion"
	"github.com/nodebyte/syncengine/internal/profiler"
	"github.com/nodebyte/syncengine/internal/protocol"
	"github.com/nodebyte/syncengine/internal/statestore"
)

// SyncRequest is the input to execute_full_sync.
type SyncRequest struct {
	SourceID    string
	ConnectorID string
	Config      map[string]any
	Stream      protocol.ConfiguredStream
	SyncMode    protocol.SyncMode
	NaturalKey  string
}

// Orchestrator is the Sync Orchestrator subsystem: it drives one stream's
// full sync through the connector executor, the medallion layers, the
// profilers, and the state store.
type Orchestrator struct {
	executor    *executor.Executor
	writer      *medallion.Writer
	store       *statestore.Store
	pii         profiler.PIIDetector
	quality     profiler.QualityValidator
	lineageSink LineageSink
	logger      zerolog.Logger
}

// New constructs an Orchestrator. pii and quality may be nil — the
// profiling steps are skipped entirely when unconfigured, matching spec
// step 6/7's "if configured" language. lineageSink defaults to a no-op
// sink when nil.
func New(exec *executor.Executor, writer *medallion.Writer, store *statestore.Store, pii profiler.PIIDetector, quality profiler.QualityValidator, lineageSink LineageSink, logger zerolog.Logger) *Orchestrator {
	if lineageSink == nil {
		lineageSink = NoopLineageSink{}
	}
	return &Orchestrator{
		executor:    exec,
		writer:      writer,
		store:       store,
		pii:         pii,
		quality:     quality,
		lineageSink: lineageSink,
		logger:      logger,
	}
}

// ExecuteFullSync runs the twelve-step sync for one stream.
func (o *Orchestrator) ExecuteFullSync(ctx context.Context, req SyncRequest) Summary {
	runID := uuid.New()
	streamName := req.Stream.Stream.Name
	log := o.logger.With().Str("run_id", runID.String()).Str("source_id", req.SourceID).Str("stream", streamName).Logger()

	summary := Summary{
		RunID:    runID,
		SourceID: req.SourceID,
		Stream:   streamName,
		Metadata: make(map[string]any),
	}

	// Step 1 is minting run_id, done above.

	// Step 2: run the executor in streaming mode and collect everything.
	stateInput := o.priorStateInput(ctx, req.SourceID, streamName)
	catalog := protocol.ConfiguredCatalog{Streams: []protocol.ConfiguredStream{req.Stream}}
	result := o.executor.ReadAll(ctx, req.ConnectorID, req.Config, catalog, stateInput)
	if !result.Success {
		log.Error().Str("error", result.Error).Msg("sync orchestrator: connector read failed")
		summary.Status = StatusFailed
		summary.Error = result.Error
		return summary
	}

	records := protocol.Records(result.Messages)
	lastState := protocol.LastState(result.Messages)
	summary.RecordsSynced = len(records)

	// Step 3: nothing to write.
	if len(records) == 0 {
		summary.Status = StatusCompleted
		return summary
	}

	// Step 4 (must-succeed): raw-land.
	rawResult, err := o.writer.Raw.WriteBatch(ctx, req.SourceID, streamName, runID, records)
	if err != nil {
		log.Error().Err(err).Msg("sync orchestrator: raw-land write failed")
		summary.Status = StatusFailed
		summary.Error = fmt.Sprintf("raw-land: %v", err)
		return summary
	}
	summary.LayersWritten.Raw = true
	summary.Metadata["raw_written"] = rawResult.Written
	summary.Metadata["raw_failed"] = rawResult.Failed

	// Step 5: materialize a typed tabular view.
	view := make([]map[string]protocol.Value, len(records))
	for i, rec := range records {
		view[i] = rec.Data
	}

	// Steps 6-7 (advisory): PII profiling and quality validation run
	// concurrently — neither reads the other's output, and both only
	// produce a report, never a side effect other callers depend on.
	var piiReport *profiler.ScanResult
	var qualityReport *profiler.Report
	var piiFailed, qualityFailed bool
	var group errgroup.Group

	if o.pii != nil {
		group.Go(func() error {
			if result, ok := o.safeScan(view); ok {
				piiReport = &result
			} else {
				piiFailed = true
			}
			return nil
		})
	}
	if o.quality != nil {
		group.Go(func() error {
			if report, ok := o.safeValidate(view, time.Now()); ok {
				qualityReport = &report
			} else {
				qualityFailed = true
			}
			return nil
		})
	}
	_ = group.Wait() // both goroutines recover their own panics; Wait never returns an error

	// Metadata is only ever written here, after both goroutines have
	// joined, so this map access is single-threaded.
	summary.PIIReport = piiReport
	summary.QualityReport = qualityReport
	if piiFailed {
		summary.Metadata["pii_scan_failed"] = true
	}
	if qualityFailed {
		summary.Metadata["quality_validation_failed"] = true
	}

	// Step 8 (must-succeed): validated-land, attaching PII/quality summaries
	// as row metadata.
	piiDetected := piiReport != nil && piiReport.TotalPIIFields > 0
	qualityScore := 100.0
	if qualityReport != nil {
		// validated.quality_score is NUMERIC(5,2) on a 0-100 scale (the
		// partial index filters WHERE quality_score < 80); OverallScore is
		// the dimension-weighted [0,1] fraction, so it must be rescaled
		// before it is written.
		qualityScore = qualityReport.OverallScore * 100
	}
	validatedRecords := make([]medallion.ValidatedRecord, len(records))
	for i, rec := range records {
		validatedRecords[i] = medallion.ValidatedRecord{
			Data:         rec.Data,
			PIIDetected:  piiDetected,
			QualityScore: qualityScore,
		}
	}
	if _, err := o.writer.Validated.WriteBatch(ctx, req.SourceID, streamName, runID, validatedRecords); err != nil {
		log.Error().Err(err).Msg("sync orchestrator: validated-land write failed")
		summary.Status = StatusFailed
		summary.Error = fmt.Sprintf("validated-land: %v", err)
		return summary
	}
	summary.LayersWritten.Validated = true

	// Step 9 (must-succeed): business-land SCD2, keyed by the chosen
	// natural key (falling back to the stream's declared primary key, then
	// to the batch's first column, when the caller didn't pin one
	// explicitly — WriteSCD2 resolves that last fallback itself).
	naturalKey := req.NaturalKey
	if naturalKey == "" && len(req.Stream.PrimaryKey) > 0 && len(req.Stream.PrimaryKey[0]) > 0 {
		naturalKey = req.Stream.PrimaryKey[0][0]
	}
	inserted, updated, unchanged, err := o.writer.Business.WriteSCD2(ctx, req.SourceID, streamName, runID, view, naturalKey)
	if err != nil {
		log.Error().Err(err).Msg("sync orchestrator: business-land write failed")
		summary.Status = StatusFailed
		summary.Error = fmt.Sprintf("business-land: %v", err)
		return summary
	}
	summary.LayersWritten.Business = true
	summary.Metadata["business_inserted"] = inserted
	summary.Metadata["business_updated"] = updated
	summary.Metadata["business_unchanged"] = unchanged

	// Step 10 (must-succeed): commit the incremental cursor.
	if req.SyncMode == protocol.SyncModeIncremental {
		field, value, ok := extractCursor(lastState, lastRecordOf(records))
		if !ok {
			log.Error().Msg("sync orchestrator: incremental sync produced no extractable cursor")
			summary.Status = StatusFailed
			summary.Error = "state commit: no cursor extractable from run"
			return summary
		}
		if _, err := o.store.UpdateStream(ctx, req.SourceID, streamName, field, value, req.SyncMode, int64(len(records)), nil, time.Now()); err != nil {
			log.Error().Err(err).Msg("sync orchestrator: state commit failed")
			summary.Status = StatusFailed
			summary.Error = fmt.Sprintf("state commit: %v", err)
			return summary
		}
	}

	summary.Status = StatusCompleted

	// Step 11 (advisory): lineage event.
	o.publishLineage(ctx, req, summary, log)

	// Step 12: return the structured summary.
	return summary
}

func lastRecordOf(records []protocol.RecordMessage) *protocol.RecordMessage {
	if len(records) == 0 {
		return nil
	}
	return &records[len(records)-1]
}

func (o *Orchestrator) priorStateInput(ctx context.Context, sourceID, streamName string) map[string]any {
	cursor, ok, err := o.store.GetCursor(ctx, sourceID, streamName)
	if err != nil || !ok {
		return nil
	}
	state := make(map[string]any, len(cursor))
	for k, v := range cursor {
		state[k] = medallion.NativeValue(v)
	}
	return state
}

// safeScan guards against a misbehaving PIIDetector implementation the
// orchestrator doesn't own: a panic there must be caught and recorded, not
// take down the sync.
func (o *Orchestrator) safeScan(view []map[string]protocol.Value) (result profiler.ScanResult, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Warn().Interface("panic", r).Msg("sync orchestrator: pii scan panicked")
			ok = false
		}
	}()
	return o.pii.Scan(view), true
}

func (o *Orchestrator) safeValidate(view []map[string]protocol.Value, now time.Time) (report profiler.Report, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Warn().Interface("panic", r).Msg("sync orchestrator: quality validation panicked")
			ok = false
		}
	}()
	return o.quality.Validate(view, now), true
}

func (o *Orchestrator) publishLineage(ctx context.Context, req SyncRequest, summary Summary, log zerolog.Logger) {
	var layers []string
	if summary.LayersWritten.Raw {
		layers = append(layers, "raw")
	}
	if summary.LayersWritten.Validated {
		layers = append(layers, "validated")
	}
	if summary.LayersWritten.Business {
		layers = append(layers, "business")
	}

	qualityScore := 0.0
	if summary.QualityReport != nil {
		qualityScore = summary.QualityReport.OverallScore
	}
	piiCount := 0
	if summary.PIIReport != nil {
		piiCount = summary.PIIReport.TotalDetections
	}

	event := LineageEvent{
		Source:            req.SourceID,
		Stream:            req.Stream.Stream.Name,
		RunID:             summary.RunID,
		RecordCount:       summary.RecordsSynced,
		QualityScore:      qualityScore,
		PIIDetectionCount: piiCount,
		LayersWritten:     layers,
	}

	lineageCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.lineageSink.Publish(lineageCtx, event); err != nil {
		log.Warn().Err(err).Msg("sync orchestrator: lineage publish failed")
	}
}
