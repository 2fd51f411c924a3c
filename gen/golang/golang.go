// Package golang renders the IR as Go source: one file per namespace in a
// single output package, with a struct per table and embed, typed constants
// per enum, and Encode/Decode methods implementing the binary wire
// contract from core/codec.
package golang

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"tabula/core/ast"
	"tabula/core/ir"
	"tabula/gen"
)

// Options configure the backend.
type Options struct {
	// Package is the generated package name, "schema" when empty.
	Package string
	// CodecImport is the import path of the codec package the generated
	// Encode/Decode methods call.
	CodecImport string
	// TypeOverrides maps schema primitive names ("i64", "string", ...) to
	// replacement Go type names. Overridden primitives still travel the
	// wire as their schema type.
	TypeOverrides map[string]string
}

// Generator implements gen.Generator.
type Generator struct {
	opts Options
}

// New returns the Go backend with defaults applied.
func New(opts Options) *Generator {
	if opts.Package == "" {
		opts.Package = "schema"
	}
	if opts.CodecImport == "" {
		opts.CodecImport = "tabula/core/codec"
	}
	return &Generator{opts: opts}
}

func (*Generator) Name() string { return "go" }

const fileTemplate = `// Code generated by tabula. DO NOT EDIT.

package {{.Package}}
{{if .Imports}}
import (
{{- range .Imports}}
	{{.}}
{{- end}}
)
{{end}}{{range .Blocks}}
{{.}}
{{- end}}`

// Generate renders one file per namespace.
func (g *Generator) Generate(schema *ir.IR) ([]gen.File, error) {
	n := newNamer(schema, g.opts.TypeOverrides)

	tmpl, err := template.New("file").Parse(fileTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse file template: %w", err)
	}

	var files []gen.File
	for _, ns := range schema.Namespaces {
		var blocks []string
		hasEnums := len(ns.Enums) > 0
		hasStructs := false
		for _, h := range ns.Enums {
			blocks = append(blocks, g.enumBlock(n, schema.Enum(h)))
		}
		for _, h := range ns.Embeds {
			em := schema.Embed(h)
			hasStructs = true
			blocks = append(blocks, g.structBlock(n, schema, n.typeName(em.FQN), em.Doc, em.Fields))
			inline, enums := g.inlineBlocks(n, schema, em.Fields)
			hasEnums = hasEnums || enums
			blocks = append(blocks, inline...)
		}
		for _, h := range ns.Tables {
			t := schema.Table(h)
			hasStructs = true
			blocks = append(blocks, g.structBlock(n, schema, n.typeName(t.FQN), t.Doc, t.Fields))
			inline, enums := g.inlineBlocks(n, schema, t.Fields)
			hasEnums = hasEnums || enums
			blocks = append(blocks, inline...)
		}
		if len(blocks) == 0 {
			continue
		}

		var imports []string
		if hasEnums {
			imports = append(imports, `"strconv"`)
		}
		if hasStructs {
			if hasEnums {
				imports = append(imports, "")
			}
			imports = append(imports, fmt.Sprintf("%q", g.opts.CodecImport))
		}

		var buf bytes.Buffer
		data := struct {
			Package string
			Imports []string
			Blocks  []string
		}{g.opts.Package, imports, blocks}
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("render namespace %q: %w", ns.FQN, err)
		}
		files = append(files, gen.File{Path: g.opts.Package + "/" + nsFileName(ns.FQN), Content: buf.Bytes()})
	}
	return files, nil
}

func nsFileName(fqn string) string {
	if fqn == "" {
		return "schema.go"
	}
	return strings.ReplaceAll(fqn, ".", "_") + ".go"
}

// inlineBlocks renders the synthetic types owned by the given fields, in
// field order, recursing through nested inline embeds. The boolean reports
// whether any inline enum was emitted.
func (g *Generator) inlineBlocks(n *namer, schema *ir.IR, fields []*ir.Field) ([]string, bool) {
	var blocks []string
	hasEnums := false
	for _, f := range fields {
		switch f.Type.Kind {
		case ir.KindEnum:
			en := schema.Enum(f.Type.Enum)
			if en.Inline {
				hasEnums = true
				blocks = append(blocks, g.enumBlock(n, en))
			}
		case ir.KindEmbed:
			em := schema.Embed(f.Type.Embed)
			if em.Class == ir.ClassInline {
				blocks = append(blocks, g.structBlock(n, schema, n.typeName(em.FQN), em.Doc, em.Fields))
				inner, innerEnums := g.inlineBlocks(n, schema, em.Fields)
				hasEnums = hasEnums || innerEnums
				blocks = append(blocks, inner...)
			}
		}
	}
	return blocks, hasEnums
}

func (g *Generator) enumBlock(n *namer, en *ir.Enum) string {
	name := n.typeName(en.FQN)
	var b strings.Builder
	writeDoc(&b, en.Doc, "")
	fmt.Fprintf(&b, "type %s int32\n\nconst (\n", name)
	for _, v := range en.Variants {
		writeDoc(&b, v.Doc, "\t")
		fmt.Fprintf(&b, "\t%s%s %s = %d\n", name, export(v.Name), name, v.Ordinal)
	}
	b.WriteString(")\n\n")

	fmt.Fprintf(&b, "func (v %s) String() string {\n\tswitch v {\n", name)
	seen := make(map[int64]bool)
	for _, v := range en.Variants {
		if seen[v.Ordinal] {
			continue
		}
		seen[v.Ordinal] = true
		fmt.Fprintf(&b, "\tcase %s%s:\n\t\treturn %q\n", name, export(v.Name), v.Name)
	}
	fmt.Fprintf(&b, "\tdefault:\n\t\treturn \"%s(\" + strconv.FormatInt(int64(v), 10) + \")\"\n\t}\n}\n", name)
	return b.String()
}

func (g *Generator) structBlock(n *namer, schema *ir.IR, name, doc string, fields []*ir.Field) string {
	var b strings.Builder
	writeDoc(&b, doc, "")
	fmt.Fprintf(&b, "type %s struct {\n", name)
	for _, f := range fields {
		writeDoc(&b, f.Doc, "\t")
		fmt.Fprintf(&b, "\t%s %s\n", export(f.Name), n.goType(schema, f))
	}
	b.WriteString("}\n\n")

	fmt.Fprintf(&b, "func (v *%s) Encode(w *codec.Writer) error {\n", name)
	for _, f := range fields {
		b.WriteString(n.encodeField(schema, f))
	}
	b.WriteString("\treturn w.Err()\n}\n\n")

	fmt.Fprintf(&b, "func (v *%s) Decode(r *codec.Reader) error {\n", name)
	for _, f := range fields {
		b.WriteString(n.decodeField(schema, f))
	}
	b.WriteString("\treturn r.Err()\n}\n")
	return b.String()
}

func writeDoc(b *strings.Builder, doc, indent string) {
	if doc == "" {
		return
	}
	for _, line := range strings.Split(doc, "\n") {
		b.WriteString(indent)
		b.WriteString("// ")
		b.WriteString(line)
		b.WriteString("\n")
	}
}

// namer assigns deterministic Go identifiers to every IR type. Named
// definitions keep their exported simple name unless two namespaces clash
// on it, in which case the full FQN is flattened; synthetic inline types
// are named after their owner plus the field.
type namer struct {
	names map[string]string
	prim  map[ast.PrimType]string
}

func newNamer(schema *ir.IR, overrides map[string]string) *namer {
	n := &namer{names: make(map[string]string), prim: make(map[ast.PrimType]string)}
	for name, goType := range overrides {
		if p, ok := ast.PrimTypeByName(name); ok {
			n.prim[p] = goType
		}
	}

	simple := make(map[string][]string)
	var named []string
	collect := func(fqn, name string) {
		simple[export(name)] = append(simple[export(name)], fqn)
		named = append(named, fqn)
	}
	for _, t := range schema.Tables {
		collect(t.FQN, t.Name)
	}
	for _, en := range schema.Enums {
		if !en.Inline {
			collect(en.FQN, en.Name)
		}
	}
	for _, em := range schema.Embeds {
		if em.Class != ir.ClassInline {
			collect(em.FQN, em.Name)
		}
	}
	sort.Strings(named)
	for _, fqn := range named {
		short := export(lastSegment(fqn))
		if len(simple[short]) > 1 {
			n.names[fqn] = exportPath(fqn)
		} else {
			n.names[fqn] = short
		}
	}

	// Inline types are named owner + field, resolved lazily because a
	// nested inline's owner is itself inline.
	return n
}

func (n *namer) typeName(fqn string) string {
	if name, ok := n.names[fqn]; ok {
		return name
	}
	// Synthetic FQN: owner FQN plus field name.
	i := strings.LastIndexByte(fqn, '.')
	if i < 0 {
		n.names[fqn] = export(fqn)
		return n.names[fqn]
	}
	name := n.typeName(fqn[:i]) + export(fqn[i+1:])
	n.names[fqn] = name
	return name
}

func (n *namer) goType(schema *ir.IR, f *ir.Field) string {
	base := n.baseType(schema, f)
	switch f.Card {
	case ast.CardOptional:
		return "*" + base
	case ast.CardArray:
		return "[]" + base
	default:
		return base
	}
}

func (n *namer) baseType(schema *ir.IR, f *ir.Field) string {
	if f.Type.Kind == ir.KindPrimitive {
		if t, ok := n.prim[f.Type.Prim]; ok {
			return t
		}
		return primGoType(f.Type.Prim)
	}
	return n.typeName(f.Type.FQN)
}

func primGoType(p ast.PrimType) string {
	switch p {
	case ast.PrimString:
		return "string"
	case ast.PrimBool:
		return "bool"
	case ast.PrimBytes:
		return "[]byte"
	case ast.PrimI8:
		return "int8"
	case ast.PrimI16:
		return "int16"
	case ast.PrimI32:
		return "int32"
	case ast.PrimI64:
		return "int64"
	case ast.PrimU8:
		return "uint8"
	case ast.PrimU16:
		return "uint16"
	case ast.PrimU32:
		return "uint32"
	case ast.PrimU64:
		return "uint64"
	case ast.PrimF32:
		return "float32"
	case ast.PrimF64:
		return "float64"
	default:
		return "any"
	}
}

// encodeExpr renders the statement(s) encoding expr, a value of the
// field's base type.
func (n *namer) encodeExpr(schema *ir.IR, f *ir.Field, expr, indent string) string {
	switch f.Type.Kind {
	case ir.KindEnum:
		return fmt.Sprintf("%sw.Ordinal(int32(%s))\n", indent, expr)
	case ir.KindEmbed, ir.KindTable:
		return fmt.Sprintf("%sif err := %s.Encode(w); err != nil {\n%s\treturn err\n%s}\n", indent, expr, indent, indent)
	default:
		if _, ok := n.prim[f.Type.Prim]; ok {
			expr = fmt.Sprintf("%s(%s)", primGoType(f.Type.Prim), expr)
		}
		return fmt.Sprintf("%sw.%s(%s)\n", indent, primMethod(f.Type.Prim), expr)
	}
}

func primMethod(p ast.PrimType) string {
	switch p {
	case ast.PrimString:
		return "String"
	case ast.PrimBool:
		return "Bool"
	case ast.PrimBytes:
		return "Bytes"
	case ast.PrimI8:
		return "Int8"
	case ast.PrimI16:
		return "Int16"
	case ast.PrimI32:
		return "Int32"
	case ast.PrimI64:
		return "Int64"
	case ast.PrimU8:
		return "Uint8"
	case ast.PrimU16:
		return "Uint16"
	case ast.PrimU32:
		return "Uint32"
	case ast.PrimU64:
		return "Uint64"
	case ast.PrimF32:
		return "Float32"
	case ast.PrimF64:
		return "Float64"
	default:
		return "Bytes"
	}
}

func (n *namer) encodeField(schema *ir.IR, f *ir.Field) string {
	field := "v." + export(f.Name)
	switch f.Card {
	case ast.CardOptional:
		var b strings.Builder
		fmt.Fprintf(&b, "\tif %s != nil {\n\t\tw.Presence(true)\n", field)
		b.WriteString(n.encodeExpr(schema, f, deref(f, field), "\t\t"))
		b.WriteString("\t} else {\n\t\tw.Presence(false)\n\t}\n")
		return b.String()
	case ast.CardArray:
		var b strings.Builder
		fmt.Fprintf(&b, "\tw.Count(len(%s))\n\tfor i := range %s {\n", field, field)
		b.WriteString(n.encodeExpr(schema, f, field+"[i]", "\t\t"))
		b.WriteString("\t}\n")
		return b.String()
	default:
		return n.encodeExpr(schema, f, field, "\t")
	}
}

// deref adapts an optional field expression: value types dereference the
// pointer, composite types encode through it directly.
func deref(f *ir.Field, field string) string {
	if f.Type.Kind == ir.KindEmbed || f.Type.Kind == ir.KindTable {
		return field
	}
	return "*" + field
}

// decodeInto renders the statement(s) decoding into target, an addressable
// expression of the field's base type.
func (n *namer) decodeInto(schema *ir.IR, f *ir.Field, target, indent string) string {
	switch f.Type.Kind {
	case ir.KindEnum:
		name := n.typeName(f.Type.FQN)
		return fmt.Sprintf("%sif ord, err := r.Ordinal(); err != nil {\n%s\treturn err\n%s} else {\n%s\t%s = %s(ord)\n%s}\n",
			indent, indent, indent, indent, target, name, indent)
	case ir.KindEmbed, ir.KindTable:
		return fmt.Sprintf("%sif err := %s.Decode(r); err != nil {\n%s\treturn err\n%s}\n", indent, target, indent, indent)
	default:
		value := "tmp"
		if t, ok := n.prim[f.Type.Prim]; ok {
			value = fmt.Sprintf("%s(tmp)", t)
		}
		return fmt.Sprintf("%sif tmp, err := r.%s(); err != nil {\n%s\treturn err\n%s} else {\n%s\t%s = %s\n%s}\n",
			indent, primMethod(f.Type.Prim), indent, indent, indent, target, value, indent)
	}
}

func (n *namer) decodeField(schema *ir.IR, f *ir.Field) string {
	field := "v." + export(f.Name)
	base := n.baseType(schema, f)
	switch f.Card {
	case ast.CardOptional:
		var b strings.Builder
		b.WriteString("\tif present, err := r.Presence(); err != nil {\n\t\treturn err\n\t} else if present {\n")
		fmt.Fprintf(&b, "\t\t%s = new(%s)\n", field, base)
		if f.Type.Kind == ir.KindEmbed || f.Type.Kind == ir.KindTable {
			b.WriteString(n.decodeInto(schema, f, field, "\t\t"))
		} else {
			b.WriteString(n.decodeInto(schema, f, "*"+field, "\t\t"))
		}
		fmt.Fprintf(&b, "\t} else {\n\t\t%s = nil\n\t}\n", field)
		return b.String()
	case ast.CardArray:
		var b strings.Builder
		b.WriteString("\tif count, err := r.Count(); err != nil {\n\t\treturn err\n\t} else {\n")
		fmt.Fprintf(&b, "\t\t%s = make([]%s, count)\n\t\tfor i := 0; i < count; i++ {\n", field, base)
		b.WriteString(n.decodeInto(schema, f, field+"[i]", "\t\t\t"))
		b.WriteString("\t\t}\n\t}\n")
		return b.String()
	default:
		return n.decodeInto(schema, f, field, "\t")
	}
}

func lastSegment(fqn string) string {
	if i := strings.LastIndexByte(fqn, '.'); i >= 0 {
		return fqn[i+1:]
	}
	return fqn
}

// exportPath flattens an FQN into one exported identifier.
func exportPath(fqn string) string {
	var b strings.Builder
	for _, seg := range strings.Split(fqn, ".") {
		b.WriteString(export(seg))
	}
	return b.String()
}

// export converts a snake_case schema identifier to an exported Go name.
func export(name string) string {
	var b strings.Builder
	for _, seg := range strings.Split(name, "_") {
		if seg == "" {
			continue
		}
		if seg == "id" || seg == "Id" || seg == "ID" {
			b.WriteString("ID")
			continue
		}
		b.WriteString(strings.ToUpper(seg[:1]))
		b.WriteString(seg[1:])
	}
	return b.String()
}
