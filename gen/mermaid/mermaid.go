// Package mermaid renders the IR as a Mermaid class diagram: one class per
// table and embed, enumeration blocks for enums, and labeled relationship
// edges including the reverse direction and junction-based many-to-many
// links.
package mermaid

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"tabula/core/ast"
	"tabula/core/ir"
	"tabula/gen"
)

// Generator implements gen.Generator.
type Generator struct{}

// New returns the mermaid backend.
func New() *Generator { return &Generator{} }

func (*Generator) Name() string { return "mermaid" }

const diagramTemplate = `classDiagram
{{- range .Enums}}
    class {{className .FQN}} {
        <<enumeration>>
{{- range .Variants}}
        {{.Name}}
{{- end}}
    }
{{- end}}
{{- range .Embeds}}
    class {{className .FQN}} {
        <<embed>>
{{- range .Fields}}
        {{fieldType .}} {{.Name}}
{{- end}}
    }
{{- end}}
{{- range .Tables}}
    class {{className .FQN}} {
{{- range .Fields}}
        {{fieldType .}} {{.Name}}{{fieldMarks .}}
{{- end}}
    }
{{- end}}
{{- range .Edges}}
    {{.}}
{{- end}}
`

// Generate renders schema.mmd.
func (g *Generator) Generate(schema *ir.IR) ([]gen.File, error) {
	tmpl, err := template.New("diagram").Funcs(template.FuncMap{
		"className": className,
		"fieldType": func(f *ir.Field) string { return fieldType(schema, f) },
		"fieldMarks": func(f *ir.Field) string {
			var marks []string
			if f.PrimaryKey {
				marks = append(marks, "PK")
			}
			if f.HasForeignKey() {
				marks = append(marks, "FK")
			}
			if len(marks) == 0 {
				return ""
			}
			return " «" + strings.Join(marks, ",") + "»"
		},
	}).Parse(diagramTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse diagram template: %w", err)
	}

	var enums []*ir.Enum
	for _, en := range schema.Enums {
		if !en.Inline {
			enums = append(enums, en)
		}
	}
	var embeds []*ir.Embed
	for _, em := range schema.Embeds {
		if em.Class != ir.ClassInline {
			embeds = append(embeds, em)
		}
	}

	data := struct {
		Enums  []*ir.Enum
		Embeds []*ir.Embed
		Tables []*ir.Table
		Edges  []string
	}{enums, embeds, schema.Tables, edges(schema)}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render diagram: %w", err)
	}
	return []gen.File{{Path: "schema.mmd", Content: buf.Bytes()}}, nil
}

// edges renders relationship lines: the forward edge with its field label,
// plus a reverse composition line labeled by the reverse-relation name.
// Junctions additionally draw a many-to-many line between their two ends.
func edges(schema *ir.IR) []string {
	junctionRel := make(map[int]bool)
	for _, mm := range schema.ManyToMany {
		junctionRel[mm.LeftRel] = true
		junctionRel[mm.RightRel] = true
	}

	var out []string
	for i, rel := range schema.Relationships {
		src := className(schema.Table(rel.Source).FQN)
		dst := className(schema.Table(rel.Target).FQN)
		out = append(out, fmt.Sprintf("%s \"%s\" --> \"1\" %s : %s",
			src, rel.Forward, dst, rel.SourceField))
		if !junctionRel[i] {
			out = append(out, fmt.Sprintf("%s \"1\" -- \"%s\" %s : %s",
				dst, rel.Reverse, src, rel.ReverseName))
		}
	}
	for _, mm := range schema.ManyToMany {
		left := className(schema.Table(mm.Left).FQN)
		right := className(schema.Table(mm.Right).FQN)
		junction := className(schema.Table(mm.Junction).FQN)
		out = append(out, fmt.Sprintf("%s \"*\" -- \"*\" %s : via %s", left, right, junction))
		out = append(out, fmt.Sprintf("%s \"1\" -- \"*\" %s : %s",
			left, junction, schema.Relationships[mm.LeftRel].ReverseName))
		out = append(out, fmt.Sprintf("%s \"1\" -- \"*\" %s : %s",
			right, junction, schema.Relationships[mm.RightRel].ReverseName))
	}
	return out
}

// className flattens an FQN into a Mermaid-safe identifier.
func className(fqn string) string {
	return strings.ReplaceAll(fqn, ".", "_")
}

func fieldType(schema *ir.IR, f *ir.Field) string {
	var base string
	switch f.Type.Kind {
	case ir.KindPrimitive:
		base = f.Type.Prim.String()
	default:
		base = className(f.Type.FQN)
	}
	switch f.Card {
	case ast.CardOptional:
		return base + "?"
	case ast.CardArray:
		return base + "[]"
	default:
		return base
	}
}
