package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tabula/pipeline"
)

var checkCmd = &cobra.Command{
	Use:   "check [entry.schema]",
	Short: "Parse and validate a schema without generating",
	Long: `Compile the entry schema and its imports and report every
diagnostic, without writing any output.

Examples:
  tabula check main.schema
  tabula check`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	entry, err := entryArg(cfg, args)
	if err != nil {
		return err
	}

	runner := pipeline.NewRunner(cfg, newLogger(cfg))
	res, err := runner.Compile(entry)
	if err != nil {
		return err
	}

	printDiagnostics(res.Diags)
	if !res.OK() {
		return fmt.Errorf("schema has errors")
	}

	fmt.Printf("%s: %d definition(s), no errors\n", entry, len(res.Merged.Order))
	return nil
}
