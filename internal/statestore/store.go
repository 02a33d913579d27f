package statestore

import (
	"context"
	"time"

	"github.com/nodebyte/syncengine/internal/protocol"
)

// Backend is implemented by the Postgres-primary and file-fallback
// persistence layers. Store wraps whichever one is live behind a cache.
type Backend interface {
	Load(ctx context.Context, sourceID string) (*SourceState, error)
	Save(ctx context.Context, state *SourceState) error
	Delete(ctx context.Context, sourceID string) error
	List(ctx context.Context) ([]Summary, error)
}

// Store is the State Store subsystem: an in-memory cache in front of a
// Backend. A source's full state (source row and every stream row) is
// loaded from the backend on its first access and served from the cache
// after that.
type Store struct {
	backend Backend
	cache   *cache
}

// New constructs a Store over the given backend.
func New(backend Backend) *Store {
	return &Store{backend: backend, cache: newCache()}
}

// Get returns a source's full state, loading it from the backend on a
// cache miss.
func (s *Store) Get(ctx context.Context, sourceID string) (*SourceState, error) {
	if state, ok := s.cache.get(sourceID); ok {
		return state, nil
	}
	state, err := s.backend.Load(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	s.cache.put(sourceID, state)
	return state, nil
}

// Create initializes a new source's state if one does not already exist.
func (s *Store) Create(ctx context.Context, sourceID, sourceName string, now time.Time) (*SourceState, error) {
	if existing, _ := s.Get(ctx, sourceID); existing != nil {
		return existing, nil
	}
	state := &SourceState{
		SourceID:   sourceID,
		SourceName: sourceName,
		Streams:    make(map[string]StreamState),
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}
	if err := s.backend.Save(ctx, state); err != nil {
		return nil, err
	}
	s.cache.put(sourceID, state)
	return state, nil
}

// UpdateStream advances a single stream's checkpoint, writing the whole
// source row back through the cache and backend. Version increments
// atomically with the update: callers never observe a half-applied write
// because Save replaces the row wholesale under the cache's lock.
func (s *Store) UpdateStream(ctx context.Context, sourceID, streamName, cursorField string, cursorValue map[string]protocol.Value, syncMode protocol.SyncMode, recordsSynced int64, metadata map[string]any, now time.Time) (StreamState, error) {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()

	state, ok := s.cache.states[sourceID]
	if !ok {
		loaded, err := s.backend.Load(ctx, sourceID)
		if err != nil {
			return StreamState{}, err
		}
		state = loaded
		s.cache.states[sourceID] = state
	}

	streamState := state.SetStreamState(streamName, cursorField, cursorValue, syncMode, recordsSynced, metadata, now)
	if err := s.backend.Save(ctx, state); err != nil {
		return StreamState{}, err
	}
	return streamState, nil
}

// GetCursor returns a stream's last checkpointed cursor, if any.
func (s *Store) GetCursor(ctx context.Context, sourceID, streamName string) (map[string]protocol.Value, bool, error) {
	state, err := s.Get(ctx, sourceID)
	if err != nil {
		return nil, false, err
	}
	streamState, ok := state.GetStreamState(streamName)
	if !ok {
		return nil, false, nil
	}
	return streamState.CursorValue, true, nil
}

// ResetStream clears a single stream's checkpoint, forcing its next sync
// to run full_refresh.
func (s *Store) ResetStream(ctx context.Context, sourceID, streamName string) error {
	state, err := s.Get(ctx, sourceID)
	if err != nil {
		return err
	}
	delete(state.Streams, streamName)
	state.Version++
	if err := s.backend.Save(ctx, state); err != nil {
		return err
	}
	s.cache.put(sourceID, state)
	return nil
}

// ResetSource clears every stream's checkpoint for a source.
func (s *Store) ResetSource(ctx context.Context, sourceID string) error {
	state, err := s.Get(ctx, sourceID)
	if err != nil {
		return err
	}
	state.Streams = make(map[string]StreamState)
	state.GlobalState = nil
	state.Version++
	if err := s.backend.Save(ctx, state); err != nil {
		return err
	}
	s.cache.put(sourceID, state)
	return nil
}

// Delete removes a source's state entirely.
func (s *Store) Delete(ctx context.Context, sourceID string) error {
	if err := s.backend.Delete(ctx, sourceID); err != nil {
		return err
	}
	s.cache.evict(sourceID)
	return nil
}

// List summarizes every known source's state.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	return s.backend.List(ctx)
}

// Export returns a deep-copyable snapshot of a source's state, suitable
// for serializing to a migration file or support bundle.
func (s *Store) Export(ctx context.Context, sourceID string) (*SourceState, error) {
	return s.Get(ctx, sourceID)
}

// Import overwrites a source's state wholesale, bumping its version so
// readers relying on optimistic checks see the change.
func (s *Store) Import(ctx context.Context, state *SourceState) error {
	state.Version++
	if err := s.backend.Save(ctx, state); err != nil {
		return err
	}
	s.cache.put(state.SourceID, state)
	return nil
}
