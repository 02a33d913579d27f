package profiler

import (
	"testing"
	"time"

	"github.com/nodebyte/syncengine/internal/protocol"
)

func TestValidateCompleteBatchScoresHigh(t *testing.T) {
	now := time.Now()
	records := []map[string]protocol.Value{
		{"id": protocol.Int64Value(1), "name": protocol.StringValue("Ann"), "updated_at": protocol.TimestampValue(now)},
		{"id": protocol.Int64Value(2), "name": protocol.StringValue("Bea"), "updated_at": protocol.TimestampValue(now)},
	}

	report := NewSodaStyleValidator().Validate(records, now)

	if report.OverallScore < 0.9 {
		t.Errorf("expected a high overall score for a clean batch, got %v", report.OverallScore)
	}
	if len(report.Checks) != 6 {
		t.Fatalf("expected all 6 dimensions checked, got %d", len(report.Checks))
	}
}

func TestValidateMissingValuesLowerCompleteness(t *testing.T) {
	now := time.Now()
	records := []map[string]protocol.Value{
		{"id": protocol.Int64Value(1), "name": protocol.NullValue()},
		{"id": protocol.Int64Value(2), "name": protocol.StringValue("Bea")},
	}

	report := NewSodaStyleValidator().Validate(records, now)

	var completeness CheckResult
	for _, c := range report.Checks {
		if c.Dimension == DimensionCompleteness {
			completeness = c
		}
	}
	if completeness.Score >= 1.0 {
		t.Errorf("expected completeness score below 1.0 with a null field, got %v", completeness.Score)
	}
}

func TestValidateDuplicateRowsLowerConsistency(t *testing.T) {
	now := time.Now()
	records := []map[string]protocol.Value{
		{"id": protocol.Int64Value(1)},
		{"id": protocol.Int64Value(1)},
	}

	report := NewSodaStyleValidator().Validate(records, now)
	for _, c := range report.Checks {
		if c.Dimension == DimensionConsistency && c.Score >= 1.0 {
			t.Errorf("expected consistency score below 1.0 with a duplicate row, got %v", c.Score)
		}
	}
}

func TestValidateStaleTimestampsLowerTimeliness(t *testing.T) {
	now := time.Now()
	stale := now.Add(-30 * 24 * time.Hour)
	records := []map[string]protocol.Value{
		{"updated_at": protocol.TimestampValue(stale)},
	}

	report := NewSodaStyleValidator().Validate(records, now)
	for _, c := range report.Checks {
		if c.Dimension == DimensionTimeliness && c.Score != 0 {
			t.Errorf("expected timeliness score of 0 for an entirely stale batch, got %v", c.Score)
		}
	}
}

func TestOverallScoreWeighting(t *testing.T) {
	sum := 0.0
	for _, w := range dimensionWeights {
		sum += w
	}
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("expected dimension weights to sum to 1.0, got %v", sum)
	}
}
