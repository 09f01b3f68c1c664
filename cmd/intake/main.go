// Command intake runs one stage of the clinical intake pipeline per
// invocation. Every stage is an independent process that shares nothing with
// the others but the event bus:
//
//	intake sessions   # patient-facing intake sessions, emits SessionCompleted
//	intake triage     # classifies completed sessions, emits ClassificationCreated
//	intake casedesk   # opens and works follow-up cases, emits case events
//	intake audit      # archives case events to S3
//
// plus the maintenance commands migrate and republish.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:          "intake",
		Short:        "Clinical intake pipeline",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file loaded before reading the environment")

	root.AddCommand(
		sessionsCmd(),
		triageCmd(),
		casedeskCmd(),
		auditCmd(),
		migrateCmd(),
		republishCmd(),
	)
	return root
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
