package protocol

import "encoding/json"

// MessageType discriminates the tagged-variant connector messages.
type MessageType string

const (
	MessageTypeRecord           MessageType = "RECORD"
	MessageTypeState            MessageType = "STATE"
	MessageTypeLog              MessageType = "LOG"
	MessageTypeSpec             MessageType = "SPEC"
	MessageTypeCatalog          MessageType = "CATALOG"
	MessageTypeConnectionStatus MessageType = "CONNECTION_STATUS"
	MessageTypeTrace            MessageType = "TRACE"
	MessageTypeControl          MessageType = "CONTROL"
)

// Message is the self-describing envelope for one line of connector
// output. Exactly one of the variant fields is populated, selected by Type.
type Message struct {
	Type             MessageType             `json:"type"`
	Record           *RecordMessage          `json:"record,omitempty"`
	State            *StateMessage           `json:"state,omitempty"`
	Log              *LogMessage             `json:"log,omitempty"`
	Spec             *Spec                   `json:"spec,omitempty"`
	Catalog          *Catalog                `json:"catalog,omitempty"`
	ConnectionStatus *ConnectionStatusMessage `json:"connectionStatus,omitempty"`
	Trace            *TraceMessage           `json:"trace,omitempty"`
}

// RecordMessage carries one extracted row.
type RecordMessage struct {
	Stream    string           `json:"stream"`
	Namespace string           `json:"namespace,omitempty"`
	Data      map[string]Value `json:"data"`
	EmittedAt int64            `json:"emitted_at"`
}

// StateType distinguishes per-stream checkpoints from a connector-wide one.
type StateType string

const (
	StateTypeStream StateType = "STREAM"
	StateTypeGlobal StateType = "GLOBAL"
)

// StreamDescriptor names the stream (and optional namespace) a checkpoint
// belongs to.
type StreamDescriptor struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
}

// StreamStateWire is the per-stream checkpoint payload of a STATE message.
type StreamStateWire struct {
	StreamDescriptor StreamDescriptor `json:"stream_descriptor"`
	StreamState      map[string]Value `json:"stream_state"`
}

// GlobalStateWire is the connector-wide checkpoint payload of a STATE
// message, shared across every stream in the sync.
type GlobalStateWire struct {
	SharedState map[string]Value `json:"shared_state"`
}

// StateMessage is a resumable checkpoint. The last STATE message observed
// before EOF is authoritative for the run.
type StateMessage struct {
	Type   StateType        `json:"type"`
	Stream *StreamStateWire `json:"stream,omitempty"`
	Global *GlobalStateWire `json:"global,omitempty"`
	Data   map[string]Value `json:"data,omitempty"`
}

// LogLevel is the severity of an advisory LOG message.
type LogLevel string

const (
	LogLevelFatal LogLevel = "FATAL"
	LogLevelError LogLevel = "ERROR"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelTrace LogLevel = "TRACE"
)

// LogMessage is advisory and never terminates the stream by itself.
type LogMessage struct {
	Level   LogLevel `json:"level"`
	Message string   `json:"message"`
}

// Spec describes a connector's configuration JSON-Schema and capability
// flags, as returned by the spec() operation.
type Spec struct {
	ConnectionSpecification json.RawMessage `json:"connectionSpecification"`
	SupportsIncremental     bool            `json:"supportsIncremental"`
	SupportsNormalization   bool            `json:"supportsNormalization"`
	ProtocolVersion         string          `json:"protocolVersion,omitempty"`
}

// SyncMode is a source-supported replication strategy.
type SyncMode string

const (
	SyncModeFullRefresh SyncMode = "full_refresh"
	SyncModeIncremental  SyncMode = "incremental"
)

// Stream describes a single named logical entity a connector exposes.
type Stream struct {
	Name                    string          `json:"name"`
	Namespace               string          `json:"namespace,omitempty"`
	JSONSchema              json.RawMessage `json:"json_schema"`
	SupportedSyncModes      []SyncMode      `json:"supported_sync_modes"`
	SourceDefinedCursor     bool            `json:"source_defined_cursor,omitempty"`
	DefaultCursorField      []string        `json:"default_cursor_field,omitempty"`
	SourceDefinedPrimaryKey [][]string      `json:"source_defined_primary_key,omitempty"`
}

// Catalog lists the streams a connector exposes, returned by discover().
type Catalog struct {
	Streams []Stream `json:"streams"`
}

// DestinationSyncMode selects how the destination absorbs a configured
// stream's records.
type DestinationSyncMode string

const (
	DestinationSyncModeAppend       DestinationSyncMode = "append"
	DestinationSyncModeOverwrite    DestinationSyncMode = "overwrite"
	DestinationSyncModeAppendDedup  DestinationSyncMode = "append_dedup"
)

// ConfiguredStream selects one stream for a read() invocation and pins its
// sync parameters.
type ConfiguredStream struct {
	Stream              Stream              `json:"stream"`
	SyncMode            SyncMode            `json:"sync_mode"`
	DestinationSyncMode DestinationSyncMode `json:"destination_sync_mode"`
	CursorField         []string            `json:"cursor_field,omitempty"`
	PrimaryKey          [][]string          `json:"primary_key,omitempty"`
}

// ConfiguredCatalog is the subset (and configuration) of streams a read()
// call should extract.
type ConfiguredCatalog struct {
	Streams []ConfiguredStream `json:"streams"`
}

// ConnectionStatus is the outcome of a check() call.
type ConnectionStatus string

const (
	ConnectionStatusSucceeded ConnectionStatus = "SUCCEEDED"
	ConnectionStatusFailed    ConnectionStatus = "FAILED"
)

// ConnectionStatusMessage replies to a connection check.
type ConnectionStatusMessage struct {
	Status  ConnectionStatus `json:"status"`
	Message string           `json:"message,omitempty"`
}

// TraceType discriminates TRACE message variants. Only ERROR is defined by
// this protocol revision.
type TraceType string

const TraceTypeError TraceType = "ERROR"

// ErrorTrace is a structured failure report.
type ErrorTrace struct {
	Message         string `json:"message"`
	InternalMessage string `json:"internal_message,omitempty"`
	FailureType     string `json:"failure_type"`
	StackTrace      string `json:"stack_trace,omitempty"`
}

// TraceMessage wraps an ErrorTrace (or future trace variants).
type TraceMessage struct {
	Type  TraceType   `json:"type"`
	Error *ErrorTrace `json:"error,omitempty"`
}
