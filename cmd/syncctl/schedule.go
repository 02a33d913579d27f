package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nodebyte/syncengine/internal/config"
)

// fileSchedule mirrors internal/scheduler's unexported schedulesFile entry
// shape, since syncctl edits the same schedules.yaml cmd/worker's
// ScheduleWatcher hot-reloads rather than talking to a live scheduler.
type fileSchedule struct {
	ID          string   `yaml:"id"`
	SourceID    string   `yaml:"source_id"`
	SourceName  string   `yaml:"source_name"`
	ConnectorID string   `yaml:"connector_id"`
	Streams     []string `yaml:"streams"`
	SyncMode    string   `yaml:"sync_mode"`
	Cron        string   `yaml:"cron"`
	Enabled     bool     `yaml:"enabled"`
}

type schedulesFile struct {
	Schedules []fileSchedule `yaml:"schedules"`
}

// ScheduleCmd returns the schedule subcommand group. It edits
// schedules.yaml directly: cmd/worker's ScheduleWatcher is the only process
// that arms a live cron entry, so syncctl's job is just to write the file
// it watches.
func ScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage cron-scheduled syncs in schedules.yaml",
	}

	cmd.AddCommand(scheduleCreateCmd())
	cmd.AddCommand(scheduleListCmd())
	cmd.AddCommand(scheduleDeleteCmd())
	return cmd
}

func schedulesFilePath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	if cfg.SchedulesFile == "" {
		return "", fmt.Errorf("no --file given and SCHEDULES_FILE is not set")
	}
	return cfg.SchedulesFile, nil
}

func readSchedulesFile(path string) (schedulesFile, error) {
	var parsed schedulesFile
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return parsed, nil
	}
	if err != nil {
		return parsed, err
	}
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return parsed, err
	}
	return parsed, nil
}

func writeSchedulesFile(path string, parsed schedulesFile) error {
	data, err := yaml.Marshal(parsed)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func scheduleCreateCmd() *cobra.Command {
	var id, sourceID, sourceName, connectorID, streams, mode, cronExpr, filePath string
	var enabled bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Add a cron-scheduled sync to schedules.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sourceID == "" || connectorID == "" || streams == "" || cronExpr == "" {
				return fmt.Errorf("syncctl schedule create: --source, --connector, --streams and --cron are required")
			}

			path, err := schedulesFilePath(filePath)
			if err != nil {
				return err
			}

			parsed, err := readSchedulesFile(path)
			if err != nil {
				return fmt.Errorf("syncctl schedule create: %w", err)
			}

			if id == "" {
				id = uuid.NewString()
			}

			parsed.Schedules = append(parsed.Schedules, fileSchedule{
				ID:          id,
				SourceID:    sourceID,
				SourceName:  sourceName,
				ConnectorID: connectorID,
				Streams:     strings.Split(streams, ","),
				SyncMode:    mode,
				Cron:        cronExpr,
				Enabled:     enabled,
			})

			if err := writeSchedulesFile(path, parsed); err != nil {
				return fmt.Errorf("syncctl schedule create: %w", err)
			}

			fmt.Printf("schedule %s written to %s (worker picks it up within the fsnotify debounce window)\n", id, path)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "schedule id (generated if omitted)")
	cmd.Flags().StringVar(&sourceID, "source", "", "source id")
	cmd.Flags().StringVar(&sourceName, "source-name", "", "human-readable source name")
	cmd.Flags().StringVar(&connectorID, "connector", "", "registered connector id")
	cmd.Flags().StringVar(&streams, "streams", "", "comma-separated stream names")
	cmd.Flags().StringVar(&mode, "mode", "incremental", "sync mode: full_refresh or incremental")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "six-field cron expression (with seconds)")
	cmd.Flags().StringVar(&filePath, "file", "", "path to schedules.yaml (defaults to SCHEDULES_FILE)")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "whether the schedule is active")

	return cmd
}

func scheduleListCmd() *cobra.Command {
	var filePath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules in schedules.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := schedulesFilePath(filePath)
			if err != nil {
				return err
			}

			parsed, err := readSchedulesFile(path)
			if err != nil {
				return fmt.Errorf("syncctl schedule list: %w", err)
			}

			if len(parsed.Schedules) == 0 {
				fmt.Println("no schedules")
				return nil
			}

			for _, s := range parsed.Schedules {
				status := "enabled"
				if !s.Enabled {
					status = "disabled"
				}
				fmt.Printf("%s  [%s]  %s -> %s (%s)  streams=%v  cron=%q\n",
					s.ID, status, s.SourceID, s.ConnectorID, s.SyncMode, s.Streams, s.Cron)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filePath, "file", "", "path to schedules.yaml (defaults to SCHEDULES_FILE)")
	return cmd
}

func scheduleDeleteCmd() *cobra.Command {
	var id, filePath string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove a schedule from schedules.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("syncctl schedule delete: --id is required")
			}

			path, err := schedulesFilePath(filePath)
			if err != nil {
				return err
			}

			parsed, err := readSchedulesFile(path)
			if err != nil {
				return fmt.Errorf("syncctl schedule delete: %w", err)
			}

			kept := parsed.Schedules[:0]
			found := false
			for _, s := range parsed.Schedules {
				if s.ID == id {
					found = true
					continue
				}
				kept = append(kept, s)
			}
			parsed.Schedules = kept

			if !found {
				return fmt.Errorf("syncctl schedule delete: no schedule with id %s", id)
			}

			if err := writeSchedulesFile(path, parsed); err != nil {
				return fmt.Errorf("syncctl schedule delete: %w", err)
			}

			fmt.Printf("schedule %s removed from %s\n", id, path)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "schedule id to remove")
	cmd.Flags().StringVar(&filePath, "file", "", "path to schedules.yaml (defaults to SCHEDULES_FILE)")
	return cmd
}
