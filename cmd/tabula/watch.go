package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tabula/pipeline"
)

var watchCmd = &cobra.Command{
	Use:   "watch [entry.schema]",
	Short: "Rebuild whenever a schema file changes",
	Long: `Build once, then watch every directory of the schema set and
rebuild on .schema changes until interrupted.

Examples:
  tabula watch main.schema`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	entry, err := entryArg(cfg, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := pipeline.NewRunner(cfg, newLogger(cfg))
	return runner.Watch(ctx, entry)
}
