// Command syncctl is the operator-facing CLI for the sync engine: it runs
// syncs on demand, inspects and edits state checkpoints, manages cron
// schedules, and discovers connector catalogs. It talks to the same
// Postgres database and state store as cmd/worker but never itself holds a
// connector execution or a cron loop open — cmd/worker owns those.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Debug().Err(err).Msg(".env file not found, using environment variables")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	root := &cobra.Command{
		Use:   "syncctl",
		Short: "Operate the sync engine: run syncs, manage schedules and state",
	}

	root.AddCommand(RunCmd())
	root.AddCommand(DiscoverCmd())
	root.AddCommand(StateCmd())
	root.AddCommand(ScheduleCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
