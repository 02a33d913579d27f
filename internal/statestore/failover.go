package statestore

import (
	"context"

	"github.com/rs/zerolog"
)

// FailoverBackend tries the Postgres backend first and falls back to the
// file backend when Postgres is unreachable, logging the failover so an
// operator can see the store is running degraded.
type FailoverBackend struct {
	primary  *PostgresBackend
	fallback *FileBackend
	logger   zerolog.Logger
}

// NewFailoverBackend constructs a FailoverBackend.
func NewFailoverBackend(primary *PostgresBackend, fallback *FileBackend, logger zerolog.Logger) *FailoverBackend {
	return &FailoverBackend{primary: primary, fallback: fallback, logger: logger}
}

func (b *FailoverBackend) Load(ctx context.Context, sourceID string) (*SourceState, error) {
	state, err := b.primary.Load(ctx, sourceID)
	if err == nil {
		return state, nil
	}
	if !IsUnavailable(err) {
		return nil, err
	}
	b.logger.Warn().Err(err).Str("source_id", sourceID).Msg("state store: postgres unavailable, reading file fallback")
	return b.fallback.Load(ctx, sourceID)
}

func (b *FailoverBackend) Save(ctx context.Context, state *SourceState) error {
	err := b.primary.Save(ctx, state)
	if err == nil {
		return nil
	}
	if !IsUnavailable(err) {
		return err
	}
	b.logger.Warn().Err(err).Str("source_id", state.SourceID).Msg("state store: postgres unavailable, writing file fallback")
	return b.fallback.Save(ctx, state)
}

func (b *FailoverBackend) Delete(ctx context.Context, sourceID string) error {
	err := b.primary.Delete(ctx, sourceID)
	if err != nil && IsUnavailable(err) {
		b.logger.Warn().Err(err).Str("source_id", sourceID).Msg("state store: postgres unavailable, deleting file fallback")
		return b.fallback.Delete(ctx, sourceID)
	}
	return err
}

func (b *FailoverBackend) List(ctx context.Context) ([]Summary, error) {
	summaries, err := b.primary.List(ctx)
	if err == nil {
		return summaries, nil
	}
	if !IsUnavailable(err) {
		return nil, err
	}
	b.logger.Warn().Err(err).Msg("state store: postgres unavailable, listing file fallback")
	return b.fallback.List(ctx)
}
