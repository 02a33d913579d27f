// Package profiler implements the PII detector and data quality validator
// that run over a validated batch before it lands in the business layer.
package profiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nodebyte/syncengine/internal/protocol"
)

// PIIType names a detectable category of personally identifiable data.
type PIIType string

const (
	PIIEmail      PIIType = "email"
	PIIPhone      PIIType = "phone"
	PIISSN        PIIType = "ssn"
	PIICreditCard PIIType = "credit_card"
	PIIIPAddress  PIIType = "ip_address"
	PIIZipcode    PIIType = "zipcode"
)

var piiPatterns = map[PIIType]*regexp.Regexp{
	PIIEmail:      regexp.MustCompile(`(?i)\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	PIIPhone:      regexp.MustCompile(`\b(?:\+?1[-.]?)?\(?([0-9]{3})\)?[-.]?([0-9]{3})[-.]?([0-9]{4})\b`),
	PIISSN:        regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	PIICreditCard: regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`),
	PIIIPAddress:  regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
	PIIZipcode:    regexp.MustCompile(`\b\d{5}(?:-\d{4})?\b`),
}

// piiOrder fixes the scan order so overlapping patterns (e.g. a zipcode
// substring inside a phone number) report the more specific type first.
var piiOrder = []PIIType{PIIEmail, PIISSN, PIICreditCard, PIIPhone, PIIIPAddress, PIIZipcode}

// highRiskTypes are PII categories whose exposure carries outsized
// regulatory/financial risk (SSN, card numbers) versus types that are
// merely sensitive (zipcode, IP address).
var highRiskTypes = map[PIIType]bool{
	PIISSN:        true,
	PIICreditCard: true,
}

// piiConfidence is a fixed per-type confidence score for how likely a regex
// match is a true positive rather than a coincidental string shape (a
// zipcode pattern matches far more non-PII numbers than an SSN pattern
// does).
var piiConfidence = map[PIIType]float64{
	PIIEmail:      0.95,
	PIISSN:        0.9,
	PIICreditCard: 0.85,
	PIIPhone:      0.7,
	PIIIPAddress:  0.6,
	PIIZipcode:    0.4,
}

// Finding reports one column's PII detection for a batch.
type Finding struct {
	Column       string
	Type         PIIType
	MatchCount   int
	TotalRows    int
	Percentage   float64
	Confidence   float64
	SampleMasked []string
}

// ScanResult is the outcome of scanning a batch of records.
type ScanResult struct {
	Findings         []Finding
	TotalPIIFields   int            // count of distinct (column, type) pairs with at least one match
	TotalDetections  int            // count of individual PII instances detected, across all findings
	DetectionsByType map[PIIType]int
	HighRiskCount    int
	ScannedColumns   int
	ScannedRows      int
}

// PIIDetector finds and masks personally identifiable values in a batch of
// validated records.
type PIIDetector interface {
	Scan(records []map[string]protocol.Value) ScanResult
}

// RegexPIIDetector is the default PIIDetector: it stringifies every cell
// and tests it against a fixed set of regex patterns, same coverage as the
// Python PII scanner this replaces.
type RegexPIIDetector struct{}

// NewRegexPIIDetector constructs a RegexPIIDetector.
func NewRegexPIIDetector() *RegexPIIDetector {
	return &RegexPIIDetector{}
}

// Scan implements PIIDetector.
func (d *RegexPIIDetector) Scan(records []map[string]protocol.Value) ScanResult {
	if len(records) == 0 {
		return ScanResult{}
	}

	columns := columnUnion(records)
	var findings []Finding

	for _, col := range columns {
		for _, piiType := range piiOrder {
			pattern := piiPatterns[piiType]
			var matches []string
			for _, rec := range records {
				v, ok := rec[col]
				if !ok || v.IsNull() {
					continue
				}
				s := stringify(v)
				if pattern.MatchString(s) {
					matches = append(matches, s)
				}
			}
			if len(matches) == 0 {
				continue
			}

			sampleCount := len(matches)
			if sampleCount > 3 {
				sampleCount = 3
			}
			masked := make([]string, sampleCount)
			for i := 0; i < sampleCount; i++ {
				masked[i] = maskValue(matches[i], piiType)
			}

			findings = append(findings, Finding{
				Column:       col,
				Type:         piiType,
				MatchCount:   len(matches),
				TotalRows:    len(records),
				Percentage:   float64(len(matches)) / float64(len(records)),
				Confidence:   piiConfidence[piiType],
				SampleMasked: masked,
			})
		}
	}

	totalDetections := 0
	highRiskCount := 0
	detectionsByType := make(map[PIIType]int)
	for _, f := range findings {
		totalDetections += f.MatchCount
		detectionsByType[f.Type] += f.MatchCount
		if highRiskTypes[f.Type] {
			highRiskCount++
		}
	}

	return ScanResult{
		Findings:         findings,
		TotalPIIFields:   len(findings),
		TotalDetections:  totalDetections,
		DetectionsByType: detectionsByType,
		HighRiskCount:    highRiskCount,
		ScannedColumns:   len(columns),
		ScannedRows:      len(records),
	}
}

func columnUnion(records []map[string]protocol.Value) []string {
	var order []string
	seen := make(map[string]bool)
	for _, rec := range records {
		for col := range rec {
			if !seen[col] {
				seen[col] = true
				order = append(order, col)
			}
		}
	}
	return order
}

func stringify(v protocol.Value) string {
	switch v.Kind {
	case protocol.KindString:
		return v.StrVal
	case protocol.KindInt64:
		return fmt.Sprintf("%d", v.Int64Val)
	case protocol.KindFloat64:
		return fmt.Sprintf("%g", v.Float64Val)
	case protocol.KindBool:
		return fmt.Sprintf("%t", v.BoolVal)
	case protocol.KindTimestamp:
		return v.TimeVal.String()
	case protocol.KindDate:
		return v.StrVal
	case protocol.KindJSON:
		return string(v.JSONVal)
	default:
		return ""
	}
}

func maskValue(value string, piiType PIIType) string {
	switch piiType {
	case PIIEmail:
		if at := strings.Index(value, "@"); at >= 0 {
			local, domain := value[:at], value[at+1:]
			if len(local) >= 2 {
				return fmt.Sprintf("%s***@%s", local[:2], domain)
			}
			return "***@" + domain
		}
		return maskGeneric(value)
	case PIIPhone:
		digits := digitsOnly(value)
		if len(digits) >= 4 {
			return fmt.Sprintf("***-***-%s", digits[len(digits)-4:])
		}
		return "***"
	case PIISSN:
		if len(value) >= 4 {
			return "***-**-" + value[len(value)-4:]
		}
		return "***-**-****"
	case PIICreditCard:
		digits := digitsOnly(value)
		if len(digits) >= 4 {
			return fmt.Sprintf("****-****-****-%s", digits[len(digits)-4:])
		}
		return "****-****-****-****"
	default:
		return maskGeneric(value)
	}
}

func maskGeneric(value string) string {
	if len(value) <= 2 {
		return "***"
	}
	return value[:2] + strings.Repeat("*", len(value)-2)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
