package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// StateCmd returns the state subcommand group: inspecting and clearing the
// State Store's checkpoints outside of a running sync.
func StateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset a source's checkpoint state",
	}

	cmd.AddCommand(stateShowCmd())
	cmd.AddCommand(stateResetCmd())
	return cmd
}

func stateShowCmd() *cobra.Command {
	var sourceID string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a source's current checkpoint state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sourceID == "" {
				return fmt.Errorf("syncctl state show: --source is required")
			}

			e, err := buildEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			state, err := e.store.Get(context.Background(), sourceID)
			if err != nil {
				return fmt.Errorf("syncctl state show: %w", err)
			}

			fmt.Printf("source %s (%s), version %d, updated %s\n", state.SourceID, state.SourceName, state.Version, state.UpdatedAt)
			if len(state.Streams) == 0 {
				fmt.Println("  no stream checkpoints recorded")
				return nil
			}
			for name, stream := range state.Streams {
				fmt.Printf("  %s: sync_mode=%s cursor_field=%s cursor=%v records_synced=%d\n",
					name, stream.SyncMode, stream.CursorField, stream.CursorValue, stream.RecordsSynced)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceID, "source", "", "source id")
	return cmd
}

func stateResetCmd() *cobra.Command {
	var sourceID, stream string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear a source's (or one stream's) checkpoint, forcing full_refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sourceID == "" {
				return fmt.Errorf("syncctl state reset: --source is required")
			}

			e, err := buildEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := context.Background()
			if stream != "" {
				if err := e.store.ResetStream(ctx, sourceID, stream); err != nil {
					return fmt.Errorf("syncctl state reset: %w", err)
				}
				fmt.Printf("cleared checkpoint for %s/%s\n", sourceID, stream)
				return nil
			}

			if err := e.store.ResetSource(ctx, sourceID); err != nil {
				return fmt.Errorf("syncctl state reset: %w", err)
			}
			fmt.Printf("cleared all checkpoints for %s\n", sourceID)
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceID, "source", "", "source id")
	cmd.Flags().StringVar(&stream, "stream", "", "stream name (optional; resets the whole source if omitted)")
	return cmd
}
