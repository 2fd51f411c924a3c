// Package resolver loads a schema entry file together with its transitive
// imports and merges every parsed file into one flat, namespace-keyed view.
//
// Loading proceeds in breadth-first waves: all files of a wave are parsed
// concurrently, their unseen imports form the next wave. A visited set keeps
// each file parsed exactly once; cycles are detected on the finished import
// graph and reported as circular-import diagnostics. Resolution does not
// stop at the first problem. Files that fail to load or parse contribute a
// diagnostic and are skipped, so one broken file still yields reports for
// the rest of the set.
package resolver

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"tabula/core/ast"
	"tabula/core/diag"
	"tabula/core/parser"
)

// Loader reads schema source by slash-separated relative path.
type Loader interface {
	Load(path string) ([]byte, error)
}

// DirLoader loads files from a root directory on disk.
type DirLoader struct {
	Root string
}

func (l DirLoader) Load(p string) ([]byte, error) {
	return os.ReadFile(filepath.Join(l.Root, filepath.FromSlash(p)))
}

// MapLoader serves sources from memory, keyed by path. Used in tests and by
// the editor front end for unsaved buffers.
type MapLoader map[string]string

func (l MapLoader) Load(p string) ([]byte, error) {
	src, ok := l[p]
	if !ok {
		return nil, os.ErrNotExist
	}
	return []byte(src), nil
}

// Entry is one merged definition: a table, enum, or embed reachable under a
// fully-qualified name.
type Entry struct {
	// FQN is the dot-joined qualified name, e.g. "game.item.Item".
	FQN string
	// Namespace is the FQN of the owning namespace, "" at root scope.
	// Table-scoped enums and embeds use their owning table's FQN here.
	Namespace string
	Def       ast.Definition
	File      string
}

// Name returns the simple declared name.
func (e Entry) Name() string { return e.Def.DefName() }

// Merged is the import-closed, flattened view of a schema set. Namespace
// nesting is dissolved: every definition is keyed by its fully-qualified
// name, and two namespace blocks with the same path, in the same file or
// across files, land in the same bucket.
type Merged struct {
	// Files holds every successfully parsed file in load order.
	Files []*ast.File
	// Defs maps FQN to its definition entry.
	Defs map[string]Entry
	// Order lists FQNs sorted lexicographically for deterministic walks.
	Order []string
	// Sequence lists FQNs in registration order: file-visitation order,
	// declaration order within a file. Consumers that must reproduce the
	// source layout (diagrams, generated code) iterate this instead of
	// Order.
	Sequence []string
	// NamespaceAnnotations collects annotations declared on namespace
	// blocks, keyed by namespace FQN and concatenated across blocks and
	// files. Tables inherit these unless they override the annotation.
	NamespaceAnnotations map[string][]ast.Annotation
}

// InheritedAnnotations returns the annotations a definition in namespace
// fqn picks up from its namespace chain, outermost first.
func (m *Merged) InheritedAnnotations(fqn string) []ast.Annotation {
	if fqn == "" {
		return nil
	}
	segs := strings.Split(fqn, ".")
	var out []ast.Annotation
	for i := 1; i <= len(segs); i++ {
		out = append(out, m.NamespaceAnnotations[strings.Join(segs[:i], ".")]...)
	}
	return out
}

// Tables returns the merged table entries in Order.
func (m *Merged) Tables() []Entry {
	var out []Entry
	for _, fqn := range m.Order {
		e := m.Defs[fqn]
		if _, ok := e.Def.(*ast.Table); ok {
			out = append(out, e)
		}
	}
	return out
}

// Resolve loads the entry files and their transitive imports through loader
// and merges the result. The returned Merged is usable even when the list
// carries errors; callers gate on List.HasErrors.
func Resolve(loader Loader, entries ...string) (*Merged, diag.List) {
	var diags diag.List

	files, edges, loadDiags := loadAll(loader, entries)
	diags.Merge(loadDiags)

	diags.Merge(checkCycles(entries, edges))

	m := &Merged{
		Defs:                 make(map[string]Entry),
		NamespaceAnnotations: make(map[string][]ast.Annotation),
	}
	for _, f := range files {
		m.Files = append(m.Files, f)
		diags.Merge(m.mergeFile(f))
	}
	for fqn := range m.Defs {
		m.Order = append(m.Order, fqn)
	}
	sort.Strings(m.Order)

	diags.Sort()
	return m, diags
}

type parsed struct {
	path string
	file *ast.File
	err  error
}

// loadAll walks the import graph in waves. Each wave's files are read and
// parsed concurrently; results keep wave order so the output is stable.
func loadAll(loader Loader, entries []string) ([]*ast.File, map[string][]string, diag.List) {
	var diags diag.List
	var files []*ast.File
	edges := make(map[string][]string)

	visited := make(map[string]bool)
	var wave []string
	for _, e := range entries {
		p := path.Clean(e)
		if !visited[p] {
			visited[p] = true
			wave = append(wave, p)
		}
	}

	for len(wave) > 0 {
		results := make([]parsed, len(wave))
		var g errgroup.Group
		var mu sync.Mutex
		for i, p := range wave {
			i, p := i, p
			g.Go(func() error {
				src, err := loader.Load(p)
				if err != nil {
					mu.Lock()
					results[i] = parsed{path: p, err: err}
					mu.Unlock()
					return nil
				}
				f, err := parser.Parse(p, string(src))
				mu.Lock()
				results[i] = parsed{path: p, file: f, err: err}
				mu.Unlock()
				return nil
			})
		}
		g.Wait()

		var next []string
		for _, res := range results {
			if res.err != nil {
				if d, ok := res.err.(*diag.Diagnostic); ok {
					diags.Add(d)
				} else {
					diags.Add(diag.Errorf(diag.CodeImport, diag.Pos{File: res.path},
						"cannot load %s: %v", res.path, res.err))
				}
				continue
			}
			files = append(files, res.file)
			for _, imp := range res.file.Imports {
				target := path.Clean(path.Join(path.Dir(res.path), imp.Path))
				edges[res.path] = append(edges[res.path], target)
				if !visited[target] {
					visited[target] = true
					next = append(next, target)
				}
			}
		}
		wave = next
	}
	return files, edges, diags
}

// checkCycles runs a coloring DFS over the finished import graph and
// reports each cycle once, with the member chain in the message.
func checkCycles(roots []string, edges map[string][]string) diag.List {
	var diags diag.List

	const (
		white = iota // unseen
		gray         // on the current path
		black        // finished
	)
	color := make(map[string]int)
	var stack []string

	var visit func(node string)
	visit = func(node string) {
		color[node] = gray
		stack = append(stack, node)
		for _, dep := range edges[node] {
			switch color[dep] {
			case white:
				visit(dep)
			case gray:
				// Slice the current path from the first occurrence of dep
				// to close the loop.
				start := 0
				for i, p := range stack {
					if p == dep {
						start = i
						break
					}
				}
				chain := append(append([]string{}, stack[start:]...), dep)
				diags.Add(diag.Errorf(diag.CodeCircularImport, diag.Pos{File: node},
					"import cycle: %s", strings.Join(chain, " -> ")))
			}
		}
		stack = stack[:len(stack)-1]
		color[node] = black
	}

	for _, root := range roots {
		if color[path.Clean(root)] == white {
			visit(path.Clean(root))
		}
	}
	return diags
}

// mergeFile flattens one file's definitions into the FQN map, reporting a
// duplicate-definition diagnostic when a name is already taken. The first
// registration wins so later stages see a consistent view.
func (m *Merged) mergeFile(f *ast.File) diag.List {
	var diags diag.List
	var walk func(prefix string, defs []ast.Definition)

	register := func(prefix string, def ast.Definition) bool {
		fqn := qualify(prefix, def.DefName())
		if prev, exists := m.Defs[fqn]; exists {
			prevPos := prev.Def.NameSpan().Start
			diags.Add(&diag.Diagnostic{
				Code:     diag.CodeDuplicateDef,
				Severity: diag.SeverityError,
				Message:  "duplicate definition of " + fqn,
				Pos:      def.NameSpan().Start,
				Related:  &prevPos,
			})
			return false
		}
		m.Defs[fqn] = Entry{FQN: fqn, Namespace: prefix, Def: def, File: f.Path}
		m.Sequence = append(m.Sequence, fqn)
		return true
	}

	// registerNested indexes a table's scoped enums and embeds under the
	// table's own FQN so qualified references like Monster.Rank resolve.
	registerNested := func(tableFQN string, t *ast.Table) {
		for _, member := range t.Members {
			var def ast.Definition
			switch d := member.(type) {
			case *ast.Enum:
				def = d
			case *ast.Embed:
				def = d
			default:
				continue
			}
			fqn := qualify(tableFQN, def.DefName())
			if prev, exists := m.Defs[fqn]; exists {
				prevPos := prev.Def.NameSpan().Start
				diags.Add(&diag.Diagnostic{
					Code:     diag.CodeDuplicateDef,
					Severity: diag.SeverityError,
					Message:  "duplicate definition of " + fqn,
					Pos:      def.NameSpan().Start,
					Related:  &prevPos,
				})
				continue
			}
			m.Defs[fqn] = Entry{FQN: fqn, Namespace: tableFQN, Def: def, File: f.Path}
			m.Sequence = append(m.Sequence, fqn)
		}
	}

	walk = func(prefix string, defs []ast.Definition) {
		for _, def := range defs {
			switch d := def.(type) {
			case *ast.Namespace:
				fqn := qualify(prefix, d.DefName())
				if len(d.Annotations) > 0 {
					m.NamespaceAnnotations[fqn] = append(m.NamespaceAnnotations[fqn], d.Annotations...)
				}
				walk(fqn, d.Defs)
			case *ast.Table:
				if register(prefix, d) {
					registerNested(qualify(prefix, d.Name), d)
				}
			default:
				register(prefix, def)
			}
		}
	}
	walk("", f.Defs)
	return diags
}

func qualify(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// ResolveType maps a possibly-qualified type path written inside namespace
// `from` to the entry it denotes. The search tries, in order: the path as a
// fully-qualified name, the path qualified with `from`, then with each
// ancestor namespace of `from` walking outward, and finally a unique match
// on the simple name anywhere in the schema. The boolean is false when
// nothing matches or the simple-name fallback is ambiguous.
func (m *Merged) ResolveType(path []string, from string) (Entry, bool) {
	joined := strings.Join(path, ".")

	if e, ok := m.Defs[joined]; ok {
		return e, true
	}

	scope := from
	for scope != "" {
		if e, ok := m.Defs[scope+"."+joined]; ok {
			return e, true
		}
		if i := strings.LastIndexByte(scope, '.'); i >= 0 {
			scope = scope[:i]
		} else {
			scope = ""
		}
	}

	if len(path) == 1 {
		var found Entry
		matches := 0
		for _, fqn := range m.Order {
			e := m.Defs[fqn]
			if e.Name() == path[0] {
				found = e
				matches++
			}
		}
		if matches == 1 {
			return found, true
		}
	}
	return Entry{}, false
}
