package engine

import (
	"github.com/nodebyte/syncengine/internal/protocol"
)

// extractCursor determines the incremental cursor to persist for a stream
// after a run, per spec step 10: prefer the last STATE message's stream
// state; if none was emitted, fall back to the first recognized column
// among cursorCandidateColumns on the last record.
func extractCursor(state *protocol.StateMessage, lastRecord *protocol.RecordMessage) (field string, value map[string]protocol.Value, ok bool) {
	if state != nil {
		switch {
		case state.Stream != nil && len(state.Stream.StreamState) > 0:
			return firstKey(state.Stream.StreamState), state.Stream.StreamState, true
		case state.Global != nil && len(state.Global.SharedState) > 0:
			return firstKey(state.Global.SharedState), state.Global.SharedState, true
		case len(state.Data) > 0:
			return firstKey(state.Data), state.Data, true
		}
	}

	if lastRecord == nil {
		return "", nil, false
	}
	for _, column := range cursorCandidateColumns {
		if v, present := lastRecord.Data[column]; present && !v.IsNull() {
			return column, map[string]protocol.Value{column: v}, true
		}
	}
	return "", nil, false
}

// firstKey picks a deterministic field name out of a state map: the first
// recognized cursor column if present, else whichever key the map yields
// first (true single-key state maps are the common case).
func firstKey(m map[string]protocol.Value) string {
	for _, column := range cursorCandidateColumns {
		if _, ok := m[column]; ok {
			return column
		}
	}
	for k := range m {
		return k
	}
	return ""
}
