package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// LineageEvent is emitted once per completed sync, step 11.
type LineageEvent struct {
	Source            string    `json:"source"`
	Stream            string    `json:"stream"`
	RunID             uuid.UUID `json:"run_id"`
	RecordCount       int       `json:"record_count"`
	QualityScore      float64   `json:"quality_score"`
	PIIDetectionCount int       `json:"pii_detection_count"`
	LayersWritten     []string  `json:"layers_written"`
}

// LineageSink publishes a lineage event. Sink failures are logged by the
// orchestrator, per spec step 11 — they never fail the sync.
type LineageSink interface {
	Publish(ctx context.Context, event LineageEvent) error
}

// NoopLineageSink discards every event — used by tests and by
// deployments with no lineage collector configured.
type NoopLineageSink struct{}

func (NoopLineageSink) Publish(ctx context.Context, event LineageEvent) error { return nil }

// HTTPLineageSink POSTs each event as JSON to a configured endpoint, with a
// short client-level timeout so a slow or unreachable collector never
// stalls a sync run (teacher style: short-timeout http.Client per
// outbound integration, as with the panel client).
type HTTPLineageSink struct {
	endpoint string
	client   *http.Client
}

// NewHTTPLineageSink constructs an HTTPLineageSink against endpoint, with
// a 5 second request timeout.
func NewHTTPLineageSink(endpoint string) *HTTPLineageSink {
	return &HTTPLineageSink{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *HTTPLineageSink) Publish(ctx context.Context, event LineageEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("engine: marshal lineage event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("engine: build lineage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("engine: publish lineage event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("engine: lineage sink returned status %d", resp.StatusCode)
	}
	return nil
}
