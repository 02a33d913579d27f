// Package protocol implements the line-delimited message wire format
// exchanged with connectors: RECORD, STATE, LOG, SPEC, CATALOG,
// CONNECTION_STATUS, TRACE and CONTROL messages.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Kind discriminates the closed set of scalar/composite value types a
// connector may emit in a record field. Downstream layers pick a SQL type
// from the first non-null sample per column and coerce mismatches to text.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindFloat64
	KindString
	KindTimestamp
	KindDate
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt64:
		return "integer"
	case KindFloat64:
		return "floating"
	case KindString:
		return "string"
	case KindTimestamp:
		return "timestamp"
	case KindDate:
		return "date"
	case KindJSON:
		return "json"
	default:
		return "unknown"
	}
}

// Value is a tagged, wire-decoded record field value. It is a closed sum
// type rather than interface{} so type switches over it are exhaustive and
// the medallion writer's schema inference never has to guess a dynamic type.
type Value struct {
	Kind      Kind
	BoolVal   bool
	Int64Val  int64
	Float64Val float64
	StrVal    string          // used by KindString and KindDate (ISO-8601 date)
	TimeVal   time.Time       // used by KindTimestamp
	JSONVal   json.RawMessage // used by KindJSON (object/array payloads)
}

// dateLayout is the ISO-8601 calendar-date-only layout connectors use for
// KindDate values.
const dateLayout = "2006-01-02"

func NullValue() Value                { return Value{Kind: KindNull} }
func BoolValue(b bool) Value          { return Value{Kind: KindBool, BoolVal: b} }
func Int64Value(i int64) Value        { return Value{Kind: KindInt64, Int64Val: i} }
func Float64Value(f float64) Value    { return Value{Kind: KindFloat64, Float64Val: f} }
func StringValue(s string) Value      { return Value{Kind: KindString, StrVal: s} }
func TimestampValue(t time.Time) Value { return Value{Kind: KindTimestamp, TimeVal: t} }
func DateValue(s string) Value        { return Value{Kind: KindDate, StrVal: s} }
func JSONValue(raw json.RawMessage) Value {
	return Value{Kind: KindJSON, JSONVal: raw}
}

// IsNull reports whether the value is the null sentinel.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// MarshalJSON encodes the value back to the plain JSON representation a
// connector would have emitted.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		if v.BoolVal {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case KindInt64:
		return []byte(strconv.FormatInt(v.Int64Val, 10)), nil
	case KindFloat64:
		return []byte(strconv.FormatFloat(v.Float64Val, 'g', -1, 64)), nil
	case KindString:
		return json.Marshal(v.StrVal)
	case KindDate:
		return json.Marshal(v.StrVal)
	case KindTimestamp:
		return json.Marshal(v.TimeVal.UTC().Format(time.RFC3339Nano))
	case KindJSON:
		if len(v.JSONVal) == 0 {
			return []byte("null"), nil
		}
		return v.JSONVal, nil
	default:
		return nil, fmt.Errorf("protocol: unknown value kind %d", v.Kind)
	}
}

// UnmarshalJSON infers a Kind from the raw JSON token: numbers split into
// integer/floating by literal form, strings are tested against RFC3339 and
// calendar-date layouts before falling back to plain text, and
// objects/arrays are kept verbatim as a JSON blob.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*v = NullValue()
		return nil
	}

	switch data[0] {
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = BoolValue(b)
		return nil

	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			*v = TimestampValue(t)
			return nil
		}
		if _, err := time.Parse(dateLayout, s); err == nil {
			*v = DateValue(s)
			return nil
		}
		*v = StringValue(s)
		return nil

	case '{', '[':
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		*v = JSONValue(raw)
		return nil

	default:
		// Numeric literal: integer form has no '.' or exponent.
		if bytes.ContainsAny(data, ".eE") {
			var f float64
			if err := json.Unmarshal(data, &f); err != nil {
				return err
			}
			*v = Float64Value(f)
			return nil
		}
		var i int64
		if err := json.Unmarshal(data, &i); err == nil {
			*v = Int64Value(i)
			return nil
		}
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		*v = Float64Value(f)
		return nil
	}
}
