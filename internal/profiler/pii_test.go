package profiler

import (
	"testing"

	"github.com/nodebyte/syncengine/internal/protocol"
)

func TestScanDetectsEmail(t *testing.T) {
	records := []map[string]protocol.Value{
		{"contact": protocol.StringValue("jane.doe@example.com")},
		{"contact": protocol.StringValue("not an email")},
	}

	result := NewRegexPIIDetector().Scan(records)

	if result.TotalPIIFields != 1 {
		t.Fatalf("expected 1 PII finding, got %d: %+v", result.TotalPIIFields, result.Findings)
	}
	f := result.Findings[0]
	if f.Type != PIIEmail || f.Column != "contact" {
		t.Errorf("unexpected finding: %+v", f)
	}
	if f.MatchCount != 1 {
		t.Errorf("expected 1 match, got %d", f.MatchCount)
	}
	if f.SampleMasked[0] == "jane.doe@example.com" {
		t.Error("masked sample should not equal the raw value")
	}
}

func TestScanSkipsCleanColumns(t *testing.T) {
	records := []map[string]protocol.Value{
		{"note": protocol.StringValue("just some text")},
	}
	result := NewRegexPIIDetector().Scan(records)
	if result.TotalPIIFields != 0 {
		t.Errorf("expected no findings, got %+v", result.Findings)
	}
}

func TestMaskValueSSN(t *testing.T) {
	masked := maskValue("123-45-6789", PIISSN)
	if masked != "***-**-6789" {
		t.Errorf("maskValue SSN = %q", masked)
	}
}

func TestMaskValueCreditCard(t *testing.T) {
	masked := maskValue("4111-1111-1111-1234", PIICreditCard)
	if masked != "****-****-****-1234" {
		t.Errorf("maskValue credit card = %q", masked)
	}
}
