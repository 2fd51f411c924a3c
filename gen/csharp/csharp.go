// Package csharp renders the IR as C# source: one file per namespace with
// entity classes carrying data annotations ([Key], [MaxLength], [Index]),
// enums with explicit ordinals, and comments documenting the relationship
// edges as navigation hints.
package csharp

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"tabula/core/ast"
	"tabula/core/ir"
	"tabula/gen"
)

// Options configure the backend.
type Options struct {
	// RootNamespace prefixes every generated C# namespace, "Schema" when
	// empty.
	RootNamespace string
	// TypeOverrides maps schema primitive names ("i64", "string", ...) to
	// replacement C# type names.
	TypeOverrides map[string]string
}

// Generator implements gen.Generator.
type Generator struct {
	opts Options
}

// New returns the C# backend with defaults applied.
func New(opts Options) *Generator {
	if opts.RootNamespace == "" {
		opts.RootNamespace = "Schema"
	}
	return &Generator{opts: opts}
}

func (*Generator) Name() string { return "csharp" }

const fileTemplate = `// <auto-generated>
//     Generated by tabula. Do not edit.
// </auto-generated>
using System;
using System.Collections.Generic;
using System.ComponentModel.DataAnnotations;

namespace {{.Namespace}}
{
{{- range .Enums}}
{{enumBlock .}}
{{- end}}
{{- range .Classes}}
{{classBlock .}}
{{- end}}
}
`

type classModel struct {
	Name    string
	Doc     string
	IsEmbed bool
	Fields  []*ir.Field
	// Navigation lists relationship comments rendered above the class.
	Navigation []string
}

// Generate renders one .cs file per namespace.
func (g *Generator) Generate(schema *ir.IR) ([]gen.File, error) {
	n := newNamer(schema)
	tmpl, err := template.New("file").Funcs(template.FuncMap{
		"enumBlock":  func(en *ir.Enum) string { return enumBlock(en, n) },
		"classBlock": func(c classModel) string { return g.classBlock(schema, n, c) },
	}).Parse(fileTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse file template: %w", err)
	}

	var files []gen.File
	for _, ns := range schema.Namespaces {
		var enums []*ir.Enum
		for _, h := range ns.Enums {
			enums = append(enums, schema.Enum(h))
		}
		var classes []classModel
		for _, h := range ns.Embeds {
			em := schema.Embed(h)
			classes = append(classes, classModel{Name: n.className(em.FQN), Doc: em.Doc, IsEmbed: true, Fields: em.Fields})
			enums, classes = g.collectInline(schema, em.FQN, em.Fields, enums, classes)
		}
		for _, h := range ns.Tables {
			t := schema.Table(h)
			classes = append(classes, classModel{
				Name:       n.className(t.FQN),
				Doc:        t.Doc,
				Fields:     t.Fields,
				Navigation: navigation(schema, n, t),
			})
			enums, classes = g.collectInline(schema, t.FQN, t.Fields, enums, classes)
		}
		if len(enums) == 0 && len(classes) == 0 {
			continue
		}

		var buf bytes.Buffer
		data := struct {
			Namespace string
			Enums     []*ir.Enum
			Classes   []classModel
		}{g.csNamespace(ns.FQN), enums, classes}
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("render namespace %q: %w", ns.FQN, err)
		}
		files = append(files, gen.File{Path: g.fileName(ns.FQN), Content: buf.Bytes()})
	}
	return files, nil
}

func (g *Generator) collectInline(schema *ir.IR, ownerFQN string, fields []*ir.Field, enums []*ir.Enum, classes []classModel) ([]*ir.Enum, []classModel) {
	for _, f := range fields {
		switch f.Type.Kind {
		case ir.KindEnum:
			en := schema.Enum(f.Type.Enum)
			if en.Inline {
				enums = append(enums, en)
			}
		case ir.KindEmbed:
			em := schema.Embed(f.Type.Embed)
			if em.Class == ir.ClassInline {
				classes = append(classes, classModel{Name: inlineName(schema, em.FQN), IsEmbed: true, Fields: em.Fields})
				enums, classes = g.collectInline(schema, em.FQN, em.Fields, enums, classes)
			}
		}
	}
	return enums, classes
}

func (g *Generator) csNamespace(fqn string) string {
	if fqn == "" {
		return g.opts.RootNamespace
	}
	segs := strings.Split(fqn, ".")
	for i, s := range segs {
		segs[i] = pascal(s)
	}
	return g.opts.RootNamespace + "." + strings.Join(segs, ".")
}

func (g *Generator) fileName(fqn string) string {
	name := strings.TrimPrefix(g.csNamespace(fqn), g.opts.RootNamespace+".")
	if fqn == "" {
		name = g.opts.RootNamespace
	}
	return name + ".cs"
}

// namer assigns class names within each generated namespace. A definition
// keeps its Pascal simple name unless the namespace declares that name
// twice, in which case the name is flattened from the FQN segments below
// the namespace, so a table-scoped embed gains its owning table as a
// prefix.
type namer struct {
	names map[string]string
}

func newNamer(schema *ir.IR) *namer {
	n := &namer{names: make(map[string]string)}
	for _, ns := range schema.Namespaces {
		var fqns []string
		for _, h := range ns.Tables {
			fqns = append(fqns, schema.Table(h).FQN)
		}
		for _, h := range ns.Enums {
			fqns = append(fqns, schema.Enum(h).FQN)
		}
		for _, h := range ns.Embeds {
			fqns = append(fqns, schema.Embed(h).FQN)
		}
		count := make(map[string]int)
		for _, fqn := range fqns {
			count[pascal(lastSegment(fqn))]++
		}
		for _, fqn := range fqns {
			short := pascal(lastSegment(fqn))
			if count[short] > 1 {
				n.names[fqn] = flatten(ns.FQN, fqn)
			} else {
				n.names[fqn] = short
			}
		}
	}
	return n
}

func (n *namer) className(fqn string) string {
	if name, ok := n.names[fqn]; ok {
		return name
	}
	return pascal(lastSegment(fqn))
}

// flatten renders the FQN segments below the namespace as one Pascal name.
func flatten(nsFQN, fqn string) string {
	rel := fqn
	if nsFQN != "" {
		rel = strings.TrimPrefix(fqn, nsFQN+".")
	}
	var b strings.Builder
	for _, seg := range strings.Split(rel, ".") {
		b.WriteString(pascal(seg))
	}
	return b.String()
}

func lastSegment(fqn string) string {
	if i := strings.LastIndexByte(fqn, '.'); i >= 0 {
		return fqn[i+1:]
	}
	return fqn
}

func enumBlock(en *ir.Enum, n *namer) string {
	var b strings.Builder
	writeDoc(&b, en.Doc, "    ")
	name := n.className(en.FQN)
	if en.Inline {
		name = inlineEnumName(en)
	}
	fmt.Fprintf(&b, "    public enum %s\n    {\n", name)
	for i, v := range en.Variants {
		writeDoc(&b, v.Doc, "        ")
		sep := ","
		if i == len(en.Variants)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "        %s = %d%s\n", pascal(v.Name), v.Ordinal, sep)
	}
	b.WriteString("    }\n")
	return b.String()
}

func (g *Generator) classBlock(schema *ir.IR, n *namer, c classModel) string {
	var b strings.Builder
	writeDoc(&b, c.Doc, "    ")
	for _, nav := range c.Navigation {
		fmt.Fprintf(&b, "    // %s\n", nav)
	}
	fmt.Fprintf(&b, "    public class %s\n    {\n", c.Name)
	for i, f := range c.Fields {
		if i > 0 {
			b.WriteString("\n")
		}
		writeDoc(&b, f.Doc, "        ")
		for _, attr := range attributes(f) {
			fmt.Fprintf(&b, "        %s\n", attr)
		}
		fmt.Fprintf(&b, "        public %s %s { get; set; }\n", g.csType(schema, n, f), pascal(f.Name))
	}
	b.WriteString("    }\n")
	return b.String()
}

func attributes(f *ir.Field) []string {
	var out []string
	if f.PrimaryKey {
		out = append(out, "[Key]")
	}
	if f.Unique {
		out = append(out, "[Index(IsUnique = true)]")
	}
	if f.MaxLength != nil {
		out = append(out, fmt.Sprintf("[MaxLength(%d)]", *f.MaxLength))
	}
	if f.Card != ast.CardOptional && f.Type.Kind == ir.KindPrimitive && f.Type.Prim == ast.PrimString {
		out = append(out, "[Required]")
	}
	if f.Range != nil {
		out = append(out, fmt.Sprintf("[Range(%s, %s)]", f.Range.Lo, f.Range.Hi))
	}
	if f.Regex != "" {
		// C# verbatim string: only embedded quotes need doubling.
		out = append(out, fmt.Sprintf(`[RegularExpression(@"%s")]`, strings.ReplaceAll(f.Regex, `"`, `""`)))
	}
	return out
}

// navigation renders the relationship edges touching a table as comments,
// forward edges first, then the reverse names other tables see.
func navigation(schema *ir.IR, n *namer, t *ir.Table) []string {
	var out []string
	for _, i := range t.Out {
		rel := schema.Relationships[i]
		out = append(out, fmt.Sprintf("%s -> %s.%s (%s)",
			rel.SourceField, n.className(schema.Table(rel.Target).FQN), pascal(rel.TargetField), rel.Forward))
	}
	for _, i := range t.In {
		rel := schema.Relationships[i]
		out = append(out, fmt.Sprintf("%s: %s of %s (%s)",
			rel.ReverseName, rel.Reverse, n.className(schema.Table(rel.Source).FQN), rel.Reverse))
	}
	return out
}

func (g *Generator) csType(schema *ir.IR, n *namer, f *ir.Field) string {
	base := g.csBaseType(schema, n, f)
	switch f.Card {
	case ast.CardOptional:
		return base + "?"
	case ast.CardArray:
		return "List<" + base + ">"
	default:
		return base
	}
}

func (g *Generator) csBaseType(schema *ir.IR, n *namer, f *ir.Field) string {
	switch f.Type.Kind {
	case ir.KindPrimitive:
		if t, ok := g.opts.TypeOverrides[f.Type.Prim.String()]; ok {
			return t
		}
		return csPrim(f.Type.Prim)
	case ir.KindEnum:
		en := schema.Enum(f.Type.Enum)
		if en.Inline {
			return inlineEnumName(en)
		}
		return n.className(en.FQN)
	case ir.KindEmbed:
		em := schema.Embed(f.Type.Embed)
		if em.Class == ir.ClassInline {
			return inlineName(schema, em.FQN)
		}
		return n.className(em.FQN)
	case ir.KindTable:
		return n.className(schema.Table(f.Type.Table).FQN)
	default:
		return "object"
	}
}

func csPrim(p ast.PrimType) string {
	switch p {
	case ast.PrimString:
		return "string"
	case ast.PrimBool:
		return "bool"
	case ast.PrimBytes:
		return "byte[]"
	case ast.PrimI8:
		return "sbyte"
	case ast.PrimI16:
		return "short"
	case ast.PrimI32:
		return "int"
	case ast.PrimI64:
		return "long"
	case ast.PrimU8:
		return "byte"
	case ast.PrimU16:
		return "ushort"
	case ast.PrimU32:
		return "uint"
	case ast.PrimU64:
		return "ulong"
	case ast.PrimF32:
		return "float"
	case ast.PrimF64:
		return "double"
	default:
		return "object"
	}
}

// inlineName derives the class name of an anonymous embed from its
// synthetic FQN: the owner's simple name plus the field name.
func inlineName(schema *ir.IR, fqn string) string {
	segs := strings.Split(fqn, ".")
	if len(segs) < 2 {
		return pascal(fqn)
	}
	return pascal(segs[len(segs)-2]) + pascal(segs[len(segs)-1])
}

func inlineEnumName(en *ir.Enum) string {
	segs := strings.Split(en.FQN, ".")
	if len(segs) < 2 {
		return pascal(en.FQN)
	}
	return pascal(segs[len(segs)-2]) + pascal(segs[len(segs)-1])
}

func writeDoc(b *strings.Builder, doc, indent string) {
	if doc == "" {
		return
	}
	b.WriteString(indent)
	b.WriteString("/// <summary>\n")
	for _, line := range strings.Split(doc, "\n") {
		fmt.Fprintf(b, "%s/// %s\n", indent, line)
	}
	b.WriteString(indent)
	b.WriteString("/// </summary>\n")
}

// pascal converts a snake_case identifier to PascalCase.
func pascal(name string) string {
	var b strings.Builder
	for _, seg := range strings.Split(name, "_") {
		if seg == "" {
			continue
		}
		b.WriteString(strings.ToUpper(seg[:1]))
		b.WriteString(seg[1:])
	}
	return b.String()
}
