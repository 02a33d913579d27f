package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nodebyte/syncengine/internal/config"
	"github.com/nodebyte/syncengine/internal/database"
	"github.com/nodebyte/syncengine/internal/engine"
	"github.com/nodebyte/syncengine/internal/executor"
	"github.com/nodebyte/syncengine/internal/medallion"
	"github.com/nodebyte/syncengine/internal/profiler"
	"github.com/nodebyte/syncengine/internal/statestore"
)

// env bundles the pieces syncctl's database-backed subcommands need. It is
// assembled fresh per invocation; syncctl is a one-shot CLI, not a
// long-running process, so there is no point keeping this alive between
// commands the way cmd/worker does.
type env struct {
	cfg          *config.Config
	db           *database.DB
	store        *statestore.Store
	exec         *executor.Executor
	orchestrator *engine.Orchestrator
}

func buildEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	db, err := database.NewConnection(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if err := cfg.MergeFromDB(db); err != nil {
		log.Warn().Err(err).Msg("failed to load settings overlay from database; using env values only")
	}

	store, err := buildStateStore(cfg, db, log.Logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	writer := medallion.NewWriter(db.Pool, cfg.DefaultBatchSize, log.Logger)

	exec := executor.New(log.Logger)
	connectorDir := cfg.WorkingDir + "/connectors"
	if manifests, err := executor.LoadManifests(connectorDir); err != nil {
		log.Warn().Err(err).Str("dir", connectorDir).Msg("no subprocess connectors loaded")
	} else {
		backend := executor.NewSubprocessBackend(manifests, cfg.WorkingDir, time.Duration(cfg.ConnectorTimeoutSeconds)*time.Second, log.Logger)
		for connectorID := range manifests {
			exec.Register(connectorID, backend)
		}
	}

	var lineageSink engine.LineageSink = engine.NoopLineageSink{}
	if cfg.LineageWebhookURL != "" {
		lineageSink = engine.NewHTTPLineageSink(cfg.LineageWebhookURL)
	}

	orchestrator := engine.New(exec, writer, store, profiler.NewRegexPIIDetector(), profiler.NewSodaStyleValidator(), lineageSink, log.Logger)

	return &env{cfg: cfg, db: db, store: store, exec: exec, orchestrator: orchestrator}, nil
}

func (e *env) Close() {
	e.db.Close()
}

func buildStateStore(cfg *config.Config, db *database.DB, logger zerolog.Logger) (*statestore.Store, error) {
	pg := statestore.NewPostgresBackend(db.Pool, logger)
	if err := pg.EnsureSchema(context.Background()); err != nil {
		return nil, err
	}

	fallbackDir := cfg.WorkingDir + "/state-fallback"
	file, err := statestore.NewFileBackend(fallbackDir, logger)
	if err != nil {
		return nil, err
	}

	return statestore.New(statestore.NewFailoverBackend(pg, file, logger)), nil
}

// loadConnectorConfig reads a connector's config from a JSON file, or
// returns an empty map when path is blank — most connectors under test
// need no config at all.
func loadConnectorConfig(path string) (map[string]any, error) {
	cfg := map[string]any{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
