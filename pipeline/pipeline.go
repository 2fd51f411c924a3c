// Package pipeline orchestrates a full compilation: load and resolve the
// schema set, validate it, build the IR, and fan the IR out to the
// configured backends. Generation never runs while error diagnostics exist.
package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"tabula/config"
	"tabula/core/diag"
	"tabula/core/ir"
	"tabula/core/resolver"
	"tabula/core/symbols"
	"tabula/core/validator"
	"tabula/gen"
	"tabula/gen/csharp"
	"tabula/gen/golang"
	"tabula/gen/mermaid"
)

// Result carries everything one compilation produced. Schema is nil when
// the diagnostics contain errors.
type Result struct {
	Merged  *resolver.Merged
	Diags   diag.List
	Schema  *ir.IR
	Symbols *symbols.Index
}

// OK reports whether the compilation is clean enough to generate from.
func (r *Result) OK() bool { return !r.Diags.HasErrors() }

// Compile resolves, validates, and builds the IR for the entry files.
// Diagnostics are accumulated, not fail-fast; the error return is reserved
// for internal failures.
func Compile(loader resolver.Loader, entries ...string) (*Result, error) {
	merged, diags := resolver.Resolve(loader, entries...)
	diags.Merge(validator.Validate(merged))
	diags.Sort()

	res := &Result{
		Merged:  merged,
		Diags:   diags,
		Symbols: symbols.Build(merged),
	}
	if diags.HasErrors() {
		return res, nil
	}

	schema, err := ir.Build(merged)
	if err != nil {
		return nil, fmt.Errorf("build IR: %w", err)
	}
	res.Schema = schema
	return res, nil
}

// Runner binds a configuration to the compile-and-generate flow used by the
// build and watch commands.
type Runner struct {
	cfg      *config.Config
	log      zerolog.Logger
	registry *gen.Registry
}

// NewRunner returns a runner with the built-in backends registered under
// their default options.
func NewRunner(cfg *config.Config, log zerolog.Logger) *Runner {
	reg := gen.NewRegistry()
	reg.Register(golang.New(golang.Options{}))
	reg.Register(csharp.New(csharp.Options{}))
	reg.Register(mermaid.New())
	return &Runner{cfg: cfg, log: log, registry: reg}
}

// Registry exposes the registered backends.
func (r *Runner) Registry() *gen.Registry { return r.registry }

// Compile runs the front half of the pipeline on an entry file path,
// reading imports relative to the current directory.
func (r *Runner) Compile(entry string) (*Result, error) {
	start := time.Now()
	res, err := Compile(resolver.DirLoader{Root: "."}, filepath.ToSlash(entry))
	if err != nil {
		return nil, err
	}
	r.log.Debug().
		Str("entry", entry).
		Int("files", len(res.Merged.Files)).
		Int("diagnostics", len(res.Diags)).
		Dur("elapsed", time.Since(start)).
		Msg("compiled schema set")
	return res, nil
}

// Build compiles the entry and, when clean, renders every configured
// target into the output directory. The Result always comes back so the
// caller can report diagnostics.
func (r *Runner) Build(entry string) (*Result, error) {
	res, err := r.Compile(entry)
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		r.log.Error().
			Int("errors", errorCount(res.Diags)).
			Msg("refusing to generate: schema has errors")
		return res, nil
	}

	if err := r.Generate(res.Schema); err != nil {
		return res, err
	}
	if r.cfg.Output.Debug {
		if err := r.writeDebugDumps(res); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Generate renders every configured target from the IR and writes the
// files under the output directory.
func (r *Runner) Generate(schema *ir.IR) error {
	outDir := r.cfg.Output.Dir
	if r.cfg.Output.Clean {
		if err := os.RemoveAll(outDir); err != nil {
			return fmt.Errorf("clean output dir: %w", err)
		}
	}

	for _, tgt := range r.cfg.Targets {
		start := time.Now()
		backend, err := newBackend(tgt)
		if err != nil {
			return err
		}
		files, err := backend.Generate(schema)
		if err != nil {
			return fmt.Errorf("generate %s: %w", tgt.Language, err)
		}
		dir := outDir
		if tgt.Dir != "" {
			dir = filepath.Join(outDir, filepath.FromSlash(tgt.Dir))
		}
		if err := writeFiles(dir, files); err != nil {
			return fmt.Errorf("write %s output: %w", tgt.Language, err)
		}
		r.log.Info().
			Str("target", tgt.Language).
			Str("dir", dir).
			Int("files", len(files)).
			Dur("elapsed", time.Since(start)).
			Msg("generated target")
	}
	return nil
}

// newBackend builds a generator from one target's configuration.
func newBackend(tgt config.TargetConfig) (gen.Generator, error) {
	switch tgt.Language {
	case "go":
		return golang.New(golang.Options{
			Package:       tgt.Package,
			CodecImport:   tgt.CodecImport,
			TypeOverrides: tgt.Types,
		}), nil
	case "csharp":
		return csharp.New(csharp.Options{
			RootNamespace: tgt.Namespace,
			TypeOverrides: tgt.Types,
		}), nil
	case "mermaid":
		return mermaid.New(), nil
	default:
		return nil, fmt.Errorf("unknown target language %q", tgt.Language)
	}
}

func writeFiles(dir string, files []gen.File) error {
	for _, f := range files {
		path := filepath.Join(dir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, f.Content, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// writeDebugDumps serializes the parsed files and the IR next to the
// generated output.
func (r *Runner) writeDebugDumps(res *Result) error {
	dumps := map[string]any{
		"ast.json": res.Merged.Files,
		"ir.json":  res.Schema,
	}
	for name, v := range dumps {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal %s: %w", name, err)
		}
		path := filepath.Join(r.cfg.Output.Dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		r.log.Debug().Str("path", path).Msg("wrote debug dump")
	}
	return nil
}

func errorCount(diags diag.List) int {
	n := 0
	for _, d := range diags {
		if d.Severity == diag.SeverityError {
			n++
		}
	}
	return n
}
