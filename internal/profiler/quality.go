package profiler

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/nodebyte/syncengine/internal/protocol"
)

// Dimension names one of the six fixed quality dimensions.
type Dimension string

const (
	DimensionCompleteness Dimension = "completeness"
	DimensionUniqueness   Dimension = "uniqueness"
	DimensionTimeliness   Dimension = "timeliness"
	DimensionValidity     Dimension = "validity"
	DimensionAccuracy     Dimension = "accuracy"
	DimensionConsistency  Dimension = "consistency"
)

// dimensionWeights are fixed, not configurable: they are the same weights
// the quality score has always used, and reweighting them would silently
// change the meaning of every previously recorded quality_score.
var dimensionWeights = map[Dimension]float64{
	DimensionCompleteness: 0.25,
	DimensionUniqueness:   0.15,
	DimensionTimeliness:   0.10,
	DimensionValidity:     0.20,
	DimensionAccuracy:     0.15,
	DimensionConsistency:  0.15,
}

// defaultThresholds are the pass/fail bars for each dimension's own score,
// independent of the weighted overall score.
var defaultThresholds = map[Dimension]float64{
	DimensionCompleteness: 0.95,
	DimensionUniqueness:   0.98,
	DimensionTimeliness:   0.80,
	DimensionValidity:     0.90,
	DimensionAccuracy:     0.90,
	DimensionConsistency:  0.90,
}

// TimelinessMaxAge bounds how old a timestamp column's values may be
// before they count against the timeliness dimension.
const TimelinessMaxAge = 7 * 24 * time.Hour

// CheckResult is one dimension's outcome.
type CheckResult struct {
	Dimension Dimension
	Score     float64
	Passed    bool
	Threshold float64
	Details   map[string]any
}

// Report is the full six-dimension quality assessment for a batch.
type Report struct {
	Checks       []CheckResult
	OverallScore float64
}

// QualityValidator scores a batch of records across the six fixed
// dimensions, each contributing at its fixed weight to OverallScore.
type QualityValidator interface {
	Validate(records []map[string]protocol.Value, now time.Time) Report
}

// SodaStyleValidator is the default QualityValidator, grounded on the
// dimension checks and fixed weighting of the predecessor quality engine.
type SodaStyleValidator struct{}

// NewSodaStyleValidator constructs a SodaStyleValidator.
func NewSodaStyleValidator() *SodaStyleValidator {
	return &SodaStyleValidator{}
}

// Validate implements QualityValidator.
func (v *SodaStyleValidator) Validate(records []map[string]protocol.Value, now time.Time) Report {
	completeness := v.checkCompleteness(records)
	uniqueness := v.checkUniqueness(records)
	timeliness := v.checkTimeliness(records, now)
	validity := v.checkValidity(records)
	accuracy := v.checkAccuracy(records)
	consistency := v.checkConsistency(records)

	overall := completeness.Score*dimensionWeights[DimensionCompleteness] +
		uniqueness.Score*dimensionWeights[DimensionUniqueness] +
		timeliness.Score*dimensionWeights[DimensionTimeliness] +
		validity.Score*dimensionWeights[DimensionValidity] +
		accuracy.Score*dimensionWeights[DimensionAccuracy] +
		consistency.Score*dimensionWeights[DimensionConsistency]

	return Report{
		Checks:       []CheckResult{completeness, uniqueness, timeliness, validity, accuracy, consistency},
		OverallScore: overall,
	}
}

func (v *SodaStyleValidator) checkCompleteness(records []map[string]protocol.Value) CheckResult {
	columns := columnUnion(records)
	totalCells := len(records) * len(columns)
	missing := 0
	for _, rec := range records {
		for _, col := range columns {
			val, ok := rec[col]
			if !ok || val.IsNull() {
				missing++
			}
		}
	}

	score := 1.0
	if totalCells > 0 {
		score = 1.0 - float64(missing)/float64(totalCells)
	}
	threshold := defaultThresholds[DimensionCompleteness]
	return CheckResult{
		Dimension: DimensionCompleteness,
		Score:     score,
		Passed:    score >= threshold,
		Threshold: threshold,
		Details:   map[string]any{"missing_cells": missing, "total_cells": totalCells},
	}
}

func (v *SodaStyleValidator) checkUniqueness(records []map[string]protocol.Value) CheckResult {
	columns := columnUnion(records)
	total := 0
	uniqueSum := 0.0

	for _, col := range columns {
		seen := make(map[string]int)
		count := 0
		for _, rec := range records {
			val, ok := rec[col]
			if !ok || val.IsNull() {
				continue
			}
			seen[stringify(val)]++
			count++
		}
		if count == 0 {
			continue
		}
		uniqueSum += float64(len(seen)) / float64(count)
		total++
	}

	score := 1.0
	if total > 0 {
		score = uniqueSum / float64(total)
	}
	threshold := defaultThresholds[DimensionUniqueness]
	return CheckResult{
		Dimension: DimensionUniqueness,
		Score:     score,
		Passed:    score >= threshold,
		Threshold: threshold,
		Details:   map[string]any{"columns_checked": total},
	}
}

func (v *SodaStyleValidator) checkTimeliness(records []map[string]protocol.Value, now time.Time) CheckResult {
	cutoff := now.Add(-TimelinessMaxAge)
	var timely, totalDated int

	for _, rec := range records {
		for _, val := range rec {
			if val.Kind != protocol.KindTimestamp {
				continue
			}
			totalDated++
			if !val.TimeVal.Before(cutoff) {
				timely++
			}
		}
	}

	score := 1.0
	if totalDated > 0 {
		score = float64(timely) / float64(totalDated)
	}
	threshold := defaultThresholds[DimensionTimeliness]
	return CheckResult{
		Dimension: DimensionTimeliness,
		Score:     score,
		Passed:    score >= threshold,
		Threshold: threshold,
		Details:   map[string]any{"timely": timely, "total_dated": totalDated, "max_age": TimelinessMaxAge.String()},
	}
}

func (v *SodaStyleValidator) checkValidity(records []map[string]protocol.Value) CheckResult {
	columns := columnUnion(records)
	totalCells := len(records) * len(columns)
	invalid := 0

	for _, rec := range records {
		for _, col := range columns {
			val, ok := rec[col]
			if !ok {
				continue
			}
			switch val.Kind {
			case protocol.KindString:
				if len(trimSpace(val.StrVal)) == 0 {
					invalid++
				}
			case protocol.KindFloat64:
				if math.IsInf(val.Float64Val, 0) || math.IsNaN(val.Float64Val) {
					invalid++
				}
			}
		}
	}

	score := 1.0
	if totalCells > 0 {
		score = 1.0 - float64(invalid)/float64(totalCells)
	}
	threshold := defaultThresholds[DimensionValidity]
	return CheckResult{
		Dimension: DimensionValidity,
		Score:     score,
		Passed:    score >= threshold,
		Threshold: threshold,
		Details:   map[string]any{"invalid_count": invalid, "total_cells": totalCells},
	}
}

func (v *SodaStyleValidator) checkAccuracy(records []map[string]protocol.Value) CheckResult {
	columns := columnUnion(records)
	totalCells := len(records) * len(columns)
	issues := 0

	for _, col := range columns {
		var values []float64
		for _, rec := range records {
			val, ok := rec[col]
			if !ok {
				continue
			}
			switch val.Kind {
			case protocol.KindInt64:
				values = append(values, float64(val.Int64Val))
			case protocol.KindFloat64:
				values = append(values, val.Float64Val)
			}
		}
		if len(values) < 4 {
			continue
		}
		lower, upper := iqrBounds(values)
		for _, f := range values {
			if f < lower || f > upper {
				issues++
			}
		}
	}

	score := 1.0
	if totalCells > 0 {
		score = 1.0 - float64(issues)/float64(totalCells)
	}
	threshold := defaultThresholds[DimensionAccuracy]
	return CheckResult{
		Dimension: DimensionAccuracy,
		Score:     score,
		Passed:    score >= threshold,
		Threshold: threshold,
		Details:   map[string]any{"outlier_count": issues, "total_cells": totalCells},
	}
}

// checkConsistency looks for cross-field contradictions: a start/end date
// pair out of order, a "total" column that doesn't equal the sum of its
// "part" columns, and duplicate rows.
func (v *SodaStyleValidator) checkConsistency(records []map[string]protocol.Value) CheckResult {
	columns := columnUnion(records)
	issues := 0
	checksPerformed := make([]map[string]any, 0, 3)

	if violations, check, ok := datePairViolations(records, columns); ok {
		issues += violations
		checksPerformed = append(checksPerformed, check)
	}
	if violations, check, ok := componentSumViolations(records, columns); ok {
		issues += violations
		checksPerformed = append(checksPerformed, check)
	}

	seen := make(map[string]bool)
	duplicates := 0
	for _, rec := range records {
		hash := recordSignature(rec, columns)
		if seen[hash] {
			duplicates++
		}
		seen[hash] = true
	}
	issues += duplicates
	checksPerformed = append(checksPerformed, map[string]any{"check": "no duplicate rows", "violations": duplicates})

	score := 1.0
	if len(records) > 0 {
		score = 1.0 - float64(issues)/float64(len(records))
	}
	if score < 0 {
		score = 0
	}
	threshold := defaultThresholds[DimensionConsistency]
	return CheckResult{
		Dimension: DimensionConsistency,
		Score:     score,
		Passed:    score >= threshold,
		Threshold: threshold,
		Details:   map[string]any{"duplicate_rows": duplicates, "total_rows": len(records), "checks_performed": checksPerformed},
	}
}

// datePairViolations looks for a start/end column pair by name (e.g.
// start_date/end_date) among timestamp- or date-typed columns and counts
// rows where start is after end.
func datePairViolations(records []map[string]protocol.Value, columns []string) (int, map[string]any, bool) {
	var startCol, endCol string
	for i, col1 := range columns {
		for _, col2 := range columns[i+1:] {
			if containsFold(col1, "start") && containsFold(col2, "end") {
				startCol, endCol = col1, col2
			} else if containsFold(col2, "start") && containsFold(col1, "end") {
				startCol, endCol = col2, col1
			}
			if startCol != "" {
				break
			}
		}
		if startCol != "" {
			break
		}
	}
	if startCol == "" || endCol == "" {
		return 0, nil, false
	}

	violations := 0
	for _, rec := range records {
		start, sok := rec[startCol]
		end, eok := rec[endCol]
		if !sok || !eok || start.IsNull() || end.IsNull() {
			continue
		}
		if start.Kind != protocol.KindTimestamp && start.Kind != protocol.KindDate {
			continue
		}
		if end.Kind != protocol.KindTimestamp && end.Kind != protocol.KindDate {
			continue
		}
		startT, endT := start.TimeVal, end.TimeVal
		if start.Kind == protocol.KindDate {
			startT, _ = time.Parse("2006-01-02", start.StrVal)
		}
		if end.Kind == protocol.KindDate {
			endT, _ = time.Parse("2006-01-02", end.StrVal)
		}
		if startT.After(endT) {
			violations++
		}
	}
	return violations, map[string]any{"check": fmt.Sprintf("%s <= %s", startCol, endCol), "violations": violations}, true
}

// componentSumViolations looks for a column literally named "total" and
// sums every numeric column whose name contains "part", flagging rows
// where the parts don't add up to the total (within floating-point slop).
func componentSumViolations(records []map[string]protocol.Value, columns []string) (int, map[string]any, bool) {
	var totalCol string
	var partCols []string
	for _, col := range columns {
		if strings.EqualFold(col, "total") {
			totalCol = col
			continue
		}
		if containsFold(col, "part") {
			partCols = append(partCols, col)
		}
	}
	if totalCol == "" || len(partCols) == 0 {
		return 0, nil, false
	}

	violations := 0
	for _, rec := range records {
		totalVal, ok := rec[totalCol]
		if !ok || totalVal.IsNull() {
			continue
		}
		total, ok := numericValue(totalVal)
		if !ok {
			continue
		}
		sum := 0.0
		for _, pc := range partCols {
			if v, ok := rec[pc]; ok && !v.IsNull() {
				if n, ok := numericValue(v); ok {
					sum += n
				}
			}
		}
		if math.Abs(total-sum) > 0.01 {
			violations++
		}
	}
	return violations, map[string]any{"check": fmt.Sprintf("%s = sum(%v)", totalCol, partCols), "violations": violations}, true
}

func numericValue(v protocol.Value) (float64, bool) {
	switch v.Kind {
	case protocol.KindInt64:
		return float64(v.Int64Val), true
	case protocol.KindFloat64:
		return v.Float64Val, true
	default:
		return 0, false
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}

func iqrBounds(values []float64) (lower, upper float64) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	q1 := percentile(sorted, 0.25)
	q3 := percentile(sorted, 0.75)
	iqr := q3 - q1
	return q1 - 1.5*iqr, q3 + 1.5*iqr
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := p * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func recordSignature(rec map[string]protocol.Value, columns []string) string {
	var b []byte
	for _, col := range columns {
		val, ok := rec[col]
		if !ok {
			b = append(b, 0)
			continue
		}
		b = append(b, []byte(col)...)
		b = append(b, ':')
		b = append(b, []byte(stringify(val))...)
		b = append(b, ';')
	}
	return string(b)
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
