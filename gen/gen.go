// Package gen defines the backend generator contract and the registry the
// pipeline selects targets from. Generators are pure functions over the
// resolved IR: same IR, byte-identical output.
package gen

import (
	"fmt"
	"sort"

	"tabula/core/ir"
)

// File is one generated output, with a slash-separated path relative to
// the output directory.
type File struct {
	Path    string
	Content []byte
}

// Generator renders one target language or format from the IR. Generators
// receive a shared read-only IR and must not mutate it.
type Generator interface {
	Name() string
	Generate(schema *ir.IR) ([]File, error)
}

// Registry holds the available backends by name.
type Registry struct {
	generators map[string]Generator
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{generators: make(map[string]Generator)}
}

// Register adds g under its name, replacing any previous entry.
func (r *Registry) Register(g Generator) {
	r.generators[g.Name()] = g
}

// Lookup returns the named generator.
func (r *Registry) Lookup(name string) (Generator, error) {
	g, ok := r.generators[name]
	if !ok {
		return nil, fmt.Errorf("unknown generator %q (have %v)", name, r.Names())
	}
	return g, nil
}

// Names lists the registered generator names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.generators))
	for name := range r.generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
