// Package executor runs source connectors — either in-process function
// tables or out-of-process subprocesses speaking the line-delimited
// protocol package — and streams their messages back to callers.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nodebyte/syncengine/internal/protocol"
)

// Backend is implemented by both the in-process and subprocess connector
// runtimes. The executor looks up the registered backend for a connector
// identifier and calls through it; callers never know which kind they got.
type Backend interface {
	Spec(ctx context.Context, connectorID string) (*protocol.Spec, error)
	Check(ctx context.Context, connectorID string, config map[string]any) (*protocol.ConnectionStatusMessage, error)
	Discover(ctx context.Context, connectorID string, config map[string]any) (*protocol.Catalog, error)
	Read(ctx context.Context, connectorID string, config map[string]any, catalog protocol.ConfiguredCatalog, state map[string]any) (<-chan protocol.Message, <-chan error)
}

// ExecutionResult is the outcome of a buffered (non-streaming) connector
// invocation.
type ExecutionResult struct {
	Success      bool
	Messages     []protocol.Message
	RecordCount  int
	Duration     time.Duration
	Error        string
	ExitCode     int
	ResourceUsage ResourceUsage
}

// Executor dispatches connector operations to the backend registered for a
// connector identifier. There is no dynamic class dispatch: connectors are
// a tagged set of capability functions registered at construction time.
type Executor struct {
	backends map[string]Backend
	logger   zerolog.Logger
}

// New creates an Executor with no backends registered. Call Register for
// each connector identifier before use.
func New(logger zerolog.Logger) *Executor {
	return &Executor{
		backends: make(map[string]Backend),
		logger:   logger,
	}
}

// Register associates a connector identifier with the backend that should
// run it (in-process registry or subprocess manifest-backed runtime).
func (e *Executor) Register(connectorID string, backend Backend) {
	e.backends[connectorID] = backend
}

func (e *Executor) backendFor(connectorID string) (Backend, error) {
	b, ok := e.backends[connectorID]
	if !ok {
		return nil, fmt.Errorf("executor: unknown connector %q", connectorID)
	}
	return b, nil
}

// Spec returns the connector's configuration JSON-Schema and capability
// flags.
func (e *Executor) Spec(ctx context.Context, connectorID string) (*protocol.Spec, error) {
	b, err := e.backendFor(connectorID)
	if err != nil {
		return nil, err
	}
	return b.Spec(ctx, connectorID)
}

// Check tests a connector's configuration against its source.
func (e *Executor) Check(ctx context.Context, connectorID string, config map[string]any) (*protocol.ConnectionStatusMessage, error) {
	b, err := e.backendFor(connectorID)
	if err != nil {
		return nil, err
	}
	return b.Check(ctx, connectorID, config)
}

// Discover lists the streams a connector exposes.
func (e *Executor) Discover(ctx context.Context, connectorID string, config map[string]any) (*protocol.Catalog, error) {
	b, err := e.backendFor(connectorID)
	if err != nil {
		return nil, err
	}
	return b.Discover(ctx, connectorID, config)
}

// Read streams messages for a configured catalog. Suspension is
// cooperative: the caller ranges over the channel and the underlying
// backend yields at each line (subprocess) or each emitted message
// (in-process).
func (e *Executor) Read(ctx context.Context, connectorID string, config map[string]any, catalog protocol.ConfiguredCatalog, state map[string]any) (<-chan protocol.Message, <-chan error, error) {
	b, err := e.backendFor(connectorID)
	if err != nil {
		return nil, nil, err
	}
	messages, errc := b.Read(ctx, connectorID, config, catalog, state)
	return messages, errc, nil
}

// ReadAll buffers the entire Read stream into an ExecutionResult. Prefer
// Read directly for large streams — ReadAll exists for callers (tests,
// spec/discover-style tooling) that want the whole result at once.
func (e *Executor) ReadAll(ctx context.Context, connectorID string, config map[string]any, catalog protocol.ConfiguredCatalog, state map[string]any) ExecutionResult {
	start := time.Now()

	messages, errc, err := e.Read(ctx, connectorID, config, catalog, state)
	if err != nil {
		return ExecutionResult{Success: false, Error: err.Error(), Duration: time.Since(start), ExitCode: -1}
	}

	var collected []protocol.Message
	for m := range messages {
		collected = append(collected, m)
	}

	readErr := <-errc

	errs := protocol.Errors(collected)
	success := readErr == nil && len(errs) == 0
	errMsg := ""
	if readErr != nil {
		errMsg = readErr.Error()
	} else if len(errs) > 0 {
		errMsg = errs[0].Message
	}

	return ExecutionResult{
		Success:     success,
		Messages:    collected,
		RecordCount: len(protocol.Records(collected)),
		Duration:    time.Since(start),
		Error:       errMsg,
	}
}
