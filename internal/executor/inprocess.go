package executor

import (
	"context"

	"github.com/nodebyte/syncengine/internal/protocol"
)

// ConnectorFuncs is the tagged set of capability functions a library
// connector implements. It replaces a class-based plugin registry: the
// executor holds a table of these per connector identifier and calls the
// matching field directly, with no runtime dynamic dispatch.
type ConnectorFuncs struct {
	SpecFunc func(ctx context.Context) (*protocol.Spec, error)
	CheckFunc func(ctx context.Context, config map[string]any) (*protocol.ConnectionStatusMessage, error)
	DiscoverFunc func(ctx context.Context, config map[string]any) (*protocol.Catalog, error)
	// ReadFunc streams messages into the returned channel and must close it
	// when extraction completes (successfully or not), sending a non-nil
	// error through errc beforehand if extraction failed outright.
	ReadFunc func(ctx context.Context, config map[string]any, catalog protocol.ConfiguredCatalog, state map[string]any) (<-chan protocol.Message, <-chan error)
}

// InProcessBackend runs library connectors loaded into the same address
// space: each operation is a direct call into the registered functions.
type InProcessBackend struct {
	funcs ConnectorFuncs
}

// NewInProcessBackend wraps a connector's capability functions as a Backend.
func NewInProcessBackend(funcs ConnectorFuncs) *InProcessBackend {
	return &InProcessBackend{funcs: funcs}
}

func (b *InProcessBackend) Spec(ctx context.Context, connectorID string) (*protocol.Spec, error) {
	return b.funcs.SpecFunc(ctx)
}

func (b *InProcessBackend) Check(ctx context.Context, connectorID string, config map[string]any) (*protocol.ConnectionStatusMessage, error) {
	return b.funcs.CheckFunc(ctx, config)
}

func (b *InProcessBackend) Discover(ctx context.Context, connectorID string, config map[string]any) (*protocol.Catalog, error) {
	return b.funcs.DiscoverFunc(ctx, config)
}

func (b *InProcessBackend) Read(ctx context.Context, connectorID string, config map[string]any, catalog protocol.ConfiguredCatalog, state map[string]any) (<-chan protocol.Message, <-chan error) {
	return b.funcs.ReadFunc(ctx, config, catalog, state)
}
