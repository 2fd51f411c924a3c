package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tabula/core/diag"
	"tabula/pipeline"
)

var (
	buildOut   string
	buildClean bool
	buildDebug bool
)

var buildCmd = &cobra.Command{
	Use:   "build [entry.schema]",
	Short: "Compile a schema and generate all configured targets",
	Long: `Compile the entry schema and its imports, validate the result, and
render every target configured in tabula.yaml into the output directory.

Generation only runs when the schema is free of errors.

Examples:
  tabula build main.schema
  tabula build main.schema --out build/gen --clean
  tabula build --debug`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringVarP(&buildOut, "out", "o", "", "output directory (overrides config)")
	buildCmd.Flags().BoolVar(&buildClean, "clean", false, "remove the output directory first")
	buildCmd.Flags().BoolVar(&buildDebug, "debug", false, "also write AST and IR dumps")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if buildOut != "" {
		cfg.Output.Dir = buildOut
	}
	if buildClean {
		cfg.Output.Clean = true
	}
	if buildDebug {
		cfg.Output.Debug = true
	}

	entry, err := entryArg(cfg, args)
	if err != nil {
		return err
	}

	runner := pipeline.NewRunner(cfg, newLogger(cfg))
	res, err := runner.Build(entry)
	if err != nil {
		return err
	}

	printDiagnostics(res.Diags)
	if !res.OK() {
		return fmt.Errorf("schema has errors")
	}

	fmt.Printf("Generated %d target(s) into %s\n", len(cfg.Targets), cfg.Output.Dir)
	return nil
}

func printDiagnostics(diags diag.List) {
	for _, d := range diags {
		fmt.Fprintln(os.Stderr, d.Error())
	}
}
