package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tabula/pipeline"
)

var diagramOut string

var diagramCmd = &cobra.Command{
	Use:   "diagram [entry.schema]",
	Short: "Render the schema as a Mermaid class diagram",
	Long: `Compile the entry schema and print a Mermaid class diagram of its
tables, embeds, enums, and relationship edges.

Examples:
  tabula diagram main.schema
  tabula diagram main.schema -o schema.mmd`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDiagram,
}

func init() {
	rootCmd.AddCommand(diagramCmd)

	diagramCmd.Flags().StringVarP(&diagramOut, "out", "o", "", "write to file instead of stdout")
}

func runDiagram(cmd *cobra.Command, args []string) error {
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

	backend, err := runner.Registry().Lookup("mermaid")
	if err != nil {
		return err
	}
	files, err := backend.Generate(res.Schema)
	if err != nil {
		return fmt.Errorf("render diagram: %w", err)
	}

	for _, f := range files {
		if diagramOut != "" {
			if err := os.WriteFile(diagramOut, f.Content, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", diagramOut, err)
			}
			continue
		}
		os.Stdout.Write(f.Content)
	}
	return nil
}
