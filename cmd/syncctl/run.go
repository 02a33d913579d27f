package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nodebyte/syncengine/internal/engine"
	"github.com/nodebyte/syncengine/internal/protocol"
)

// RunCmd returns the run subcommand: a one-off execute_full_sync for a
// single stream, bypassing the scheduler entirely.
func RunCmd() *cobra.Command {
	var sourceID, sourceConnector, stream, mode, configPath, naturalKey string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single stream's full sync immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sourceID == "" || sourceConnector == "" || stream == "" {
				return fmt.Errorf("syncctl run: --source, --connector and --stream are required")
			}

			syncMode := protocol.SyncMode(mode)
			if syncMode == "" {
				syncMode = protocol.SyncModeIncremental
			}

			connectorConfig, err := loadConnectorConfig(configPath)
			if err != nil {
				return fmt.Errorf("syncctl run: load connector config: %w", err)
			}

			e, err := buildEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			req := engine.SyncRequest{
				SourceID:    sourceID,
				ConnectorID: sourceConnector,
				Config:      connectorConfig,
				Stream:      protocol.ConfiguredStream{Stream: protocol.Stream{Name: stream}, SyncMode: syncMode},
				SyncMode:    syncMode,
				NaturalKey:  naturalKey,
			}

			summary := e.orchestrator.ExecuteFullSync(context.Background(), req)

			log.Info().
				Str("run_id", summary.RunID.String()).
				Str("status", string(summary.Status)).
				Int("records_synced", summary.RecordsSynced).
				Dur("duration", summary.Duration).
				Msg("sync run finished")

			if summary.Status == engine.StatusFailed {
				return fmt.Errorf("sync failed: %s", summary.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceID, "source", "", "source id (state store key)")
	cmd.Flags().StringVar(&sourceConnector, "connector", "", "registered connector id to execute")
	cmd.Flags().StringVar(&stream, "stream", "", "stream name to sync")
	cmd.Flags().StringVar(&mode, "mode", string(protocol.SyncModeIncremental), "sync mode: full_refresh or incremental")
	cmd.Flags().StringVar(&configPath, "config", "", "path to a JSON file with the connector's config (optional)")
	cmd.Flags().StringVar(&naturalKey, "natural-key", "", "natural key column for business-layer SCD2 (optional)")

	return cmd
}
