package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tabula/config"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tabula",
	Short: "Schema compiler for tables, enums, and embeds",
	Long: `Tabula compiles .schema definition files into generated code,
relationship diagrams, and editor diagnostics.

Quick start:
  tabula check main.schema    # Parse and validate
  tabula build main.schema    # Generate configured targets
  tabula diagram main.schema  # Print a Mermaid class diagram

Development:
  tabula watch main.schema    # Rebuild on every change
  tabula serve                # Editor diagnostics over HTTP`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "tabula.yaml", "config file path")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var out io.Writer = os.Stderr
	if cfg.Logging.Format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// entryArg picks the entry schema from the positional argument or the
// config file.
func entryArg(cfg *config.Config, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if cfg.Entry != "" {
		return cfg.Entry, nil
	}
	return "", fmt.Errorf("no entry schema: pass a file argument or set 'entry' in %s", cfgFile)
}
