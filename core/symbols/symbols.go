// Package symbols indexes a merged schema for editor navigation: named
// definitions with their declaration spans, and every resolved type or
// foreign-key reference with the span it occupies in source.
package symbols

import (
	"strings"

	"tabula/core/ast"
	"tabula/core/diag"
	"tabula/core/resolver"
)

// SymbolKind classifies an indexed definition.
type SymbolKind string

const (
	KindNamespace SymbolKind = "namespace"
	KindTable     SymbolKind = "table"
	KindEnum      SymbolKind = "enum"
	KindEmbed     SymbolKind = "embed"
	KindField     SymbolKind = "field"
	KindVariant   SymbolKind = "variant"
)

// Symbol is one named declaration.
type Symbol struct {
	FQN  string     `json:"fqn"`
	Kind SymbolKind `json:"kind"`
	Name string     `json:"name"`
	File string     `json:"file"`
	Span diag.Span  `json:"span"`
}

// Reference is one use site of a definition. FQN is "" when resolution
// failed; the span still indexes the source text.
type Reference struct {
	FQN  string    `json:"fqn"`
	File string    `json:"file"`
	Span diag.Span `json:"span"`
}

// Index holds the navigable view of a schema set.
type Index struct {
	symbols []Symbol
	refs    []Reference
	byFQN   map[string]int
}

// Build indexes the merged schema. Field and variant symbols are keyed as
// "<owner FQN>.<name>".
func Build(m *resolver.Merged) *Index {
	idx := &Index{byFQN: make(map[string]int)}
	for _, f := range m.Files {
		idx.walkDefs(m, f.Path, "", f.Defs)
	}
	return idx
}

func (idx *Index) add(sym Symbol) {
	if _, exists := idx.byFQN[sym.FQN]; !exists {
		idx.byFQN[sym.FQN] = len(idx.symbols)
	}
	idx.symbols = append(idx.symbols, sym)
}

func (idx *Index) walkDefs(m *resolver.Merged, file, prefix string, defs []ast.Definition) {
	for _, def := range defs {
		switch d := def.(type) {
		case *ast.Namespace:
			fqn := qualify(prefix, d.DefName())
			idx.add(Symbol{FQN: fqn, Kind: KindNamespace, Name: d.DefName(), File: file, Span: d.Span})
			idx.walkDefs(m, file, fqn, d.Defs)
		case *ast.Table:
			fqn := qualify(prefix, d.Name)
			idx.add(Symbol{FQN: fqn, Kind: KindTable, Name: d.Name, File: file, Span: d.Span})
			idx.walkTable(m, file, fqn, d)
		case *ast.Enum:
			idx.addEnum(qualify(prefix, d.Name), file, d)
		case *ast.Embed:
			fqn := qualify(prefix, d.Name)
			idx.add(Symbol{FQN: fqn, Kind: KindEmbed, Name: d.Name, File: file, Span: d.Span})
			idx.walkFields(m, file, fqn, prefix, d.Fields)
		}
	}
}

func (idx *Index) walkTable(m *resolver.Merged, file, tableFQN string, t *ast.Table) {
	for _, member := range t.Members {
		switch d := member.(type) {
		case *ast.Field:
			idx.add(Symbol{FQN: tableFQN + "." + d.Name, Kind: KindField, Name: d.Name, File: file, Span: d.Span})
			idx.walkFieldRefs(m, file, tableFQN, d)
		case *ast.Enum:
			idx.addEnum(tableFQN+"."+d.Name, file, d)
		case *ast.Embed:
			fqn := tableFQN + "." + d.Name
			idx.add(Symbol{FQN: fqn, Kind: KindEmbed, Name: d.Name, File: file, Span: d.Span})
			idx.walkFields(m, file, fqn, tableFQN, d.Fields)
		}
	}
}

func (idx *Index) addEnum(fqn, file string, en *ast.Enum) {
	idx.add(Symbol{FQN: fqn, Kind: KindEnum, Name: en.Name, File: file, Span: en.Span})
	for _, v := range en.Variants {
		idx.add(Symbol{FQN: fqn + "." + v.Name, Kind: KindVariant, Name: v.Name, File: file, Span: v.Span})
	}
}

func (idx *Index) walkFields(m *resolver.Merged, file, ownerFQN, scope string, fields []*ast.Field) {
	for _, f := range fields {
		idx.add(Symbol{FQN: ownerFQN + "." + f.Name, Kind: KindField, Name: f.Name, File: file, Span: f.Span})
		idx.walkFieldRefs(m, file, scope, f)
	}
}

// walkFieldRefs records the type reference and any foreign-key targets of
// one field. scope is the FQN type paths resolve from.
func (idx *Index) walkFieldRefs(m *resolver.Merged, file, scope string, f *ast.Field) {
	switch typ := f.Type.(type) {
	case *ast.NamedType:
		ref := Reference{File: file, Span: typ.Span}
		if e, ok := m.ResolveType(typ.Path, scope); ok {
			ref.FQN = e.FQN
		}
		idx.refs = append(idx.refs, ref)
	case *ast.InlineEmbed:
		idx.walkFields(m, file, qualify(scope, f.Name), scope, typ.Fields)
	}

	for _, c := range f.Constraints {
		fk, ok := c.(*ast.ForeignKey)
		if !ok {
			continue
		}
		ref := Reference{File: file, Span: fk.Span}
		if e, ok := m.ResolveType(fk.TargetTable(), scope); ok {
			ref.FQN = e.FQN + "." + fk.TargetField()
		}
		idx.refs = append(idx.refs, ref)
	}
}

// Symbols returns every indexed definition in source order.
func (idx *Index) Symbols() []Symbol { return idx.symbols }

// Lookup returns the first definition registered under fqn.
func (idx *Index) Lookup(fqn string) (Symbol, bool) {
	i, ok := idx.byFQN[fqn]
	if !ok {
		return Symbol{}, false
	}
	return idx.symbols[i], true
}

// ReferenceAt returns the reference whose span contains the position.
func (idx *Index) ReferenceAt(file string, line, col int) (Reference, bool) {
	for _, ref := range idx.refs {
		if ref.File == file && ref.Span.Contains(line, col) {
			return ref, true
		}
	}
	return Reference{}, false
}

// DefinitionAt resolves go-to-definition: a position on a reference yields
// its target's declaration; a position on a declaration name yields that
// declaration itself.
func (idx *Index) DefinitionAt(file string, line, col int) (Symbol, bool) {
	if ref, ok := idx.ReferenceAt(file, line, col); ok && ref.FQN != "" {
		if sym, ok := idx.Lookup(ref.FQN); ok {
			return sym, true
		}
		// Field-level foreign-key targets fall back to the owning type.
		if i := strings.LastIndexByte(ref.FQN, '.'); i >= 0 {
			if sym, ok := idx.Lookup(ref.FQN[:i]); ok {
				return sym, true
			}
		}
		return Symbol{}, false
	}
	for _, sym := range idx.symbols {
		if sym.File == file && sym.Span.Contains(line, col) {
			return sym, true
		}
	}
	return Symbol{}, false
}

// References returns every use site that resolved to fqn.
func (idx *Index) References(fqn string) []Reference {
	var out []Reference
	for _, ref := range idx.refs {
		if ref.FQN == fqn {
			out = append(out, ref)
		}
	}
	return out
}

func qualify(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
