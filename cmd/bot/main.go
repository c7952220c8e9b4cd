package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:           "due-alerts",
		Short:         "Tracks property due obligations and sends lead-time alerts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Runs the alert scheduler, the Telegram bot and the metrics endpoint",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	runCycleCmd = &cobra.Command{
		Use:   "run-cycle",
		Short: "Runs one scan-and-dispatch cycle and prints the report",
		Args:  cobra.NoArgs,
		RunE:  runCycle,
	}
	scanCmd = &cobra.Command{
		Use:   "scan",
		Short: "Lists the alerts that are due without sending them",
		Args:  cobra.NoArgs,
		RunE:  runScan,
	}
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Applies pending database migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}

	skipMigrate bool
	asOfFlag    string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "Do not apply migrations on startup")

	rootCmd.AddCommand(runCycleCmd)
	runCycleCmd.Flags().StringVar(&asOfFlag, "as-of", "", "Calendar date to run for (YYYY-MM-DD), defaults to today")

	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringVar(&asOfFlag, "as-of", "", "Calendar date to scan for (YYYY-MM-DD), defaults to today")

	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
