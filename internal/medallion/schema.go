// Package medallion writes connector records through the three medallion
// layers — raw, validated, business — plus the deduplicated and CDC write
// strategies used by incremental streams.
package medallion

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nodebyte/syncengine/internal/protocol"
)

// Schema names are fixed regardless of source/stream naming: raw lands in
// explore, validated/deduped/cdc land in chart, business lands in navigate.
const (
	rawSchema       = "explore"
	validatedSchema = "chart"
	businessSchema  = "navigate"
)

// SanitizeIdentifier lowercases name, replaces hyphens and any character
// that isn't alphanumeric or an underscore with an underscore, and prefixes
// a leading digit so the result is always a legal unquoted Postgres
// identifier.
func SanitizeIdentifier(name string) string {
	name = strings.ReplaceAll(name, "-", "_")
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}

// RawTableName returns the raw-land table name for a (source, stream) pair.
func RawTableName(sourceID, streamName string) string {
	return SanitizeIdentifier(fmt.Sprintf("%s_%s_raw", sourceID, streamName))
}

// ValidatedTableName returns the validated-land table name.
func ValidatedTableName(sourceID, streamName string) string {
	return SanitizeIdentifier(fmt.Sprintf("%s_%s_validated", sourceID, streamName))
}

// BusinessTableName returns the business-land table name.
func BusinessTableName(sourceID, streamName string) string {
	return SanitizeIdentifier(fmt.Sprintf("%s_%s_business", sourceID, streamName))
}

// DedupTableName returns the deduplicated table name.
func DedupTableName(sourceID, streamName string) string {
	return SanitizeIdentifier(fmt.Sprintf("%s_%s_deduped", sourceID, streamName))
}

// QualifiedRaw/Validated/Business/Dedup return schema-qualified, double
// quoted table references safe to interpolate into DDL/DML. The schema
// name is one of the three fixed constants above, never caller input, so
// quoting the table identifier is the only injection surface and it is
// always produced by SanitizeIdentifier first.
func QualifiedRaw(sourceID, streamName string) string {
	return fmt.Sprintf("%s.%q", rawSchema, RawTableName(sourceID, streamName))
}

func QualifiedValidated(sourceID, streamName string) string {
	return fmt.Sprintf("%s.%q", validatedSchema, ValidatedTableName(sourceID, streamName))
}

func QualifiedBusiness(sourceID, streamName string) string {
	return fmt.Sprintf("%s.%q", businessSchema, BusinessTableName(sourceID, streamName))
}

func QualifiedDedup(sourceID, streamName string) string {
	return fmt.Sprintf("%s.%q", validatedSchema, DedupTableName(sourceID, streamName))
}

// SQLType maps a protocol.Kind to the Postgres column type used when a
// validated/business table is created from an inferred schema.
func SQLType(kind protocol.Kind) string {
	switch kind {
	case protocol.KindInt64:
		return "BIGINT"
	case protocol.KindFloat64:
		return "DOUBLE PRECISION"
	case protocol.KindBool:
		return "BOOLEAN"
	case protocol.KindTimestamp:
		return "TIMESTAMPTZ"
	case protocol.KindDate:
		return "DATE"
	case protocol.KindJSON:
		return "JSONB"
	default:
		return "TEXT"
	}
}

// InferSchema derives a column-name-to-Kind map from a sample of records,
// widening a column to TEXT (protocol.KindString) the moment two records
// disagree on its type. Column order follows first-seen order across
// records, and columns first seen in the same record are ordered by name,
// so generated DDL is stable across runs over the same stream.
func InferSchema(records []map[string]protocol.Value) ([]string, map[string]protocol.Kind) {
	var order []string
	kinds := make(map[string]protocol.Kind)
	seen := make(map[string]bool)

	for _, rec := range records {
		cols := make([]string, 0, len(rec))
		for col := range rec {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		for _, col := range cols {
			val := rec[col]
			if !seen[col] {
				seen[col] = true
				order = append(order, col)
				kinds[col] = val.Kind
				continue
			}
			if val.Kind == protocol.KindNull {
				continue
			}
			if kinds[col] == protocol.KindNull {
				kinds[col] = val.Kind
				continue
			}
			if kinds[col] != val.Kind {
				kinds[col] = protocol.KindString
			}
		}
	}
	return order, kinds
}
