package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// DiscoverCmd returns the discover subcommand: ask a registered connector
// for its catalog of available streams.
func DiscoverCmd() *cobra.Command {
	var connectorID, configPath string

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover a connector's stream catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if connectorID == "" {
				return fmt.Errorf("syncctl discover: --connector is required")
			}

			connectorConfig, err := loadConnectorConfig(configPath)
			if err != nil {
				return fmt.Errorf("syncctl discover: load connector config: %w", err)
			}

			e, err := buildEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			catalog, err := e.exec.Discover(context.Background(), connectorID, connectorConfig)
			if err != nil {
				return fmt.Errorf("syncctl discover: %w", err)
			}

			fmt.Printf("%s exposes %d stream(s):\n", connectorID, len(catalog.Streams))
			for _, stream := range catalog.Streams {
				fmt.Printf("  - %s (sync modes: %v)\n", stream.Name, stream.SupportedSyncModes)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&connectorID, "connector", "", "registered connector id")
	cmd.Flags().StringVar(&configPath, "config", "", "path to a JSON file with the connector's config (optional)")

	return cmd
}
