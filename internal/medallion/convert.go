package medallion

import (
	"github.com/nodebyte/syncengine/internal/protocol"
)

// NativeValue converts a protocol.Value into the Go type pgx expects as a
// query parameter for the corresponding SQLType column.
func NativeValue(v protocol.Value) any {
	switch v.Kind {
	case protocol.KindNull:
		return nil
	case protocol.KindBool:
		return v.BoolVal
	case protocol.KindInt64:
		return v.Int64Val
	case protocol.KindFloat64:
		return v.Float64Val
	case protocol.KindString:
		return v.StrVal
	case protocol.KindTimestamp:
		return v.TimeVal
	case protocol.KindDate:
		return v.StrVal
	case protocol.KindJSON:
		return []byte(v.JSONVal)
	default:
		return nil
	}
}

// RowValues projects a record map into a slice of native values in the
// given column order, substituting nil for any column absent from this
// particular record (a ragged stream where not every record carries every
// key discovered during schema inference).
func RowValues(rec map[string]protocol.Value, columns []string) []any {
	values := make([]any, len(columns))
	for i, col := range columns {
		if v, ok := rec[col]; ok {
			values[i] = NativeValue(v)
		}
	}
	return values
}
