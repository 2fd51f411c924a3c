package ir

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"tabula/core/ast"
	"tabula/core/resolver"
)

// Build derives the IR from a merged schema. It assumes validation already
// passed; a reference that still fails to resolve is reported as an error
// rather than a diagnostic, since it indicates the caller skipped the
// validator.
func Build(m *resolver.Merged) (*IR, error) {
	b := &builder{
		m: m,
		ir: &IR{
			tables: make(map[string]TableHandle),
			enums:  make(map[string]EnumHandle),
			embeds: make(map[string]EmbedHandle),
		},
	}
	if err := b.allocate(); err != nil {
		return nil, err
	}
	if err := b.buildFields(); err != nil {
		return nil, err
	}
	if err := b.buildRelationships(); err != nil {
		return nil, err
	}
	b.detectJunctions()
	b.groupNamespaces()
	return b.ir, nil
}

type builder struct {
	m  *resolver.Merged
	ir *IR

	// scopes remembers the type-resolution scope of every allocated table
	// and named embed, keyed by FQN.
	scopes map[string]string
}

// allocate creates arena entries for every named definition in declaration
// order. Fields are filled in a later pass so that forward references
// between entities of the same schema resolve.
func (b *builder) allocate() error {
	b.scopes = make(map[string]string)
	for _, fqn := range b.m.Sequence {
		e := b.m.Defs[fqn]
		switch d := e.Def.(type) {
		case *ast.Table:
			h := TableHandle(len(b.ir.Tables))
			b.ir.Tables = append(b.ir.Tables, &Table{
				Handle:     h,
				FQN:        e.FQN,
				Name:       d.Name,
				Namespace:  e.Namespace,
				Doc:        d.Doc,
				File:       e.File,
				PrimaryKey: None,
			})
			b.ir.tables[e.FQN] = h
			b.scopes[e.FQN] = e.FQN
		case *ast.Enum:
			b.allocEnum(e.FQN, b.namespaceOf(e), d.Doc, d.Name, d.Variants, false)
		case *ast.Embed:
			class := ClassReusable
			if b.insideTable(e.Namespace) {
				class = ClassNestedNamed
			}
			h := EmbedHandle(len(b.ir.Embeds))
			b.ir.Embeds = append(b.ir.Embeds, &Embed{
				Handle:    h,
				FQN:       e.FQN,
				Name:      d.Name,
				Namespace: b.namespaceOf(e),
				Doc:       d.Doc,
				Class:     class,
			})
			b.ir.embeds[e.FQN] = h
			// Nested-named embeds resolve sibling types through their
			// owning table's scope.
			b.scopes[e.FQN] = e.Namespace
		}
	}
	return nil
}

func (b *builder) allocEnum(fqn, namespace, doc, name string, variants []ast.EnumVariant, inline bool) EnumHandle {
	h := EnumHandle(len(b.ir.Enums))
	en := &Enum{
		Handle:    h,
		FQN:       fqn,
		Name:      name,
		Namespace: namespace,
		Doc:       doc,
		Inline:    inline,
	}
	next := int64(0)
	for _, v := range variants {
		if v.Value != nil {
			next = *v.Value
		}
		en.Variants = append(en.Variants, Variant{Name: v.Name, Doc: v.Doc, Ordinal: next})
		next++
	}
	b.ir.Enums = append(b.ir.Enums, en)
	b.ir.enums[fqn] = h
	return h
}

// insideTable reports whether the FQN names a table, i.e. the owner of a
// table-scoped definition.
func (b *builder) insideTable(fqn string) bool {
	if fqn == "" {
		return false
	}
	e, ok := b.m.Defs[fqn]
	if !ok {
		return false
	}
	_, isTable := e.Def.(*ast.Table)
	return isTable
}

// namespaceOf returns the enclosing namespace FQN, stepping over an owning
// table for table-scoped definitions.
func (b *builder) namespaceOf(e resolver.Entry) string {
	if b.insideTable(e.Namespace) {
		return b.m.Defs[e.Namespace].Namespace
	}
	return e.Namespace
}

func (b *builder) buildFields() error {
	for _, fqn := range b.m.Sequence {
		e := b.m.Defs[fqn]
		switch d := e.Def.(type) {
		case *ast.Table:
			t := b.ir.Tables[b.ir.tables[e.FQN]]
			for _, member := range d.Members {
				af, ok := member.(*ast.Field)
				if !ok {
					continue
				}
				f, err := b.buildField(af, e.FQN, e.FQN)
				if err != nil {
					return err
				}
				if f.PrimaryKey {
					t.PrimaryKey = len(t.Fields)
				}
				t.Fields = append(t.Fields, f)
			}
			t.Annotations = interpretAnnotations(append(
				append([]ast.Annotation{}, b.m.InheritedAnnotations(e.Namespace)...),
				d.Annotations...))
		case *ast.Embed:
			em := b.ir.Embeds[b.ir.embeds[e.FQN]]
			scope := b.scopes[e.FQN]
			if scope == "" {
				scope = em.Namespace
			}
			for _, af := range d.Fields {
				f, err := b.buildField(af, scope, e.FQN)
				if err != nil {
					return err
				}
				em.Fields = append(em.Fields, f)
			}
		}
	}
	return nil
}

// buildField resolves one field. scope is the FQN type paths resolve from;
// owner prefixes the synthetic FQNs of inline types.
func (b *builder) buildField(af *ast.Field, scope, owner string) (*Field, error) {
	f := &Field{
		Name:       af.Name,
		Doc:        af.Doc,
		Card:       af.Card,
		ForeignKey: None,
		Span:       af.Span,
	}

	ref, err := b.resolveType(af, scope, owner)
	if err != nil {
		return nil, err
	}
	f.Type = ref

	for _, c := range af.Constraints {
		switch c := c.(type) {
		case ast.PrimaryKey:
			f.PrimaryKey = true
		case ast.Unique:
			f.Unique = true
		case ast.Index:
			f.Indexed = true
		case ast.AutoIncrement:
			f.AutoIncrement = true
		case ast.MaxLength:
			n := c.N
			f.MaxLength = &n
		case ast.Default:
			val := c.Value
			f.Default = &val
		case ast.Range:
			f.Range = &RangeBounds{Lo: c.Lo, Hi: c.Hi}
		case ast.Regex:
			f.Regex = c.Pattern
		case *ast.ForeignKey:
			// Edges are wired in buildRelationships once every table
			// has a handle.
		}
	}
	return f, nil
}

func (b *builder) resolveType(af *ast.Field, scope, owner string) (TypeRef, error) {
	switch typ := af.Type.(type) {
	case ast.PrimType:
		return TypeRef{Kind: KindPrimitive, Prim: typ}, nil
	case *ast.NamedType:
		entry, ok := b.m.ResolveType(typ.Path, scope)
		if !ok {
			return TypeRef{}, fmt.Errorf("unresolved type %s in %s (schema not validated?)", typ, owner)
		}
		switch entry.Def.(type) {
		case *ast.Enum:
			return TypeRef{Kind: KindEnum, FQN: entry.FQN, Enum: b.ir.enums[entry.FQN]}, nil
		case *ast.Embed:
			return TypeRef{Kind: KindEmbed, FQN: entry.FQN, Embed: b.ir.embeds[entry.FQN]}, nil
		case *ast.Table:
			return TypeRef{Kind: KindTable, FQN: entry.FQN, Table: b.ir.tables[entry.FQN]}, nil
		default:
			return TypeRef{}, fmt.Errorf("type %s in %s is not a table, enum, or embed", typ, owner)
		}
	case *ast.InlineEnum:
		fqn := owner + "." + af.Name
		h := b.allocEnum(fqn, "", "", af.Name, typ.Variants, true)
		return TypeRef{Kind: KindEnum, FQN: fqn, Enum: h}, nil
	case *ast.InlineEmbed:
		fqn := owner + "." + af.Name
		h := EmbedHandle(len(b.ir.Embeds))
		em := &Embed{Handle: h, FQN: fqn, Name: af.Name, Class: ClassInline}
		b.ir.Embeds = append(b.ir.Embeds, em)
		b.ir.embeds[fqn] = h
		for _, inner := range typ.Fields {
			f, err := b.buildField(inner, scope, fqn)
			if err != nil {
				return TypeRef{}, err
			}
			em.Fields = append(em.Fields, f)
		}
		return TypeRef{Kind: KindEmbed, FQN: fqn, Embed: h}, nil
	default:
		return TypeRef{}, fmt.Errorf("unhandled type expression %T in %s", af.Type, owner)
	}
}

func (b *builder) buildRelationships() error {
	for _, t := range b.ir.Tables {
		e := b.m.Defs[t.FQN]
		d := e.Def.(*ast.Table)
		fieldIdx := 0
		for _, member := range d.Members {
			af, ok := member.(*ast.Field)
			if !ok {
				continue
			}
			f := t.Fields[fieldIdx]
			fieldIdx++
			for _, c := range af.Constraints {
				fk, ok := c.(*ast.ForeignKey)
				if !ok {
					continue
				}
				if err := b.addEdge(t, f, fk); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (b *builder) addEdge(t *Table, f *Field, fk *ast.ForeignKey) error {
	entry, ok := b.m.ResolveType(fk.TargetTable(), t.FQN)
	if !ok {
		return fmt.Errorf("unresolved foreign key target %s in %s (schema not validated?)",
			strings.Join(fk.Target, "."), t.FQN)
	}
	target, ok := b.ir.tables[entry.FQN]
	if !ok {
		return fmt.Errorf("foreign key target %s in %s is not a table", entry.FQN, t.FQN)
	}

	forward := CardOne
	switch f.Card {
	case ast.CardOptional:
		forward = CardOptional
	case ast.CardArray:
		forward = CardMany
	}
	reverse := CardMany
	if f.Unique {
		reverse = CardOptional
	}
	reverseName := fk.As
	if reverseName == "" {
		reverseName = defaultReverseName(t.Name)
	}

	idx := len(b.ir.Relationships)
	b.ir.Relationships = append(b.ir.Relationships, &Relationship{
		Source:      t.Handle,
		SourceField: f.Name,
		Target:      target,
		TargetField: fk.TargetField(),
		Forward:     forward,
		ReverseName: reverseName,
		Reverse:     reverse,
	})
	f.ForeignKey = idx
	t.Out = append(t.Out, idx)
	b.ir.Tables[target].In = append(b.ir.Tables[target].In, idx)
	return nil
}

// defaultReverseName derives the reverse-relation label when no `as` alias
// is declared: lower_snake_case of the source table name plus "s".
func defaultReverseName(tableName string) string {
	return toSnake(tableName) + "s"
}

func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// detectJunctions finds tables whose foreign keys form a many-to-many
// bridge: exactly two outgoing edges pointing at two distinct tables. The
// junction table itself stays a first-class entity.
func (b *builder) detectJunctions() {
	for _, t := range b.ir.Tables {
		if len(t.Out) != 2 {
			continue
		}
		left := b.ir.Relationships[t.Out[0]]
		right := b.ir.Relationships[t.Out[1]]
		if left.Target == right.Target {
			continue
		}
		b.ir.ManyToMany = append(b.ir.ManyToMany, ManyToMany{
			Junction: t.Handle,
			Left:     left.Target,
			Right:    right.Target,
			LeftRel:  t.Out[0],
			RightRel: t.Out[1],
		})
	}
}

// groupNamespaces buckets every arena entry under its namespace FQN.
// Namespaces are sorted by FQN; members keep declaration order because the
// arenas were filled from the declaration sequence.
func (b *builder) groupNamespaces() {
	buckets := make(map[string]*Namespace)
	get := func(fqn string) *Namespace {
		ns, ok := buckets[fqn]
		if !ok {
			ns = &Namespace{FQN: fqn}
			buckets[fqn] = ns
		}
		return ns
	}
	for _, t := range b.ir.Tables {
		ns := get(t.Namespace)
		ns.Tables = append(ns.Tables, t.Handle)
	}
	for _, en := range b.ir.Enums {
		if en.Inline {
			continue
		}
		ns := get(en.Namespace)
		ns.Enums = append(ns.Enums, en.Handle)
	}
	for _, em := range b.ir.Embeds {
		if em.Class == ClassInline {
			continue
		}
		ns := get(em.Namespace)
		ns.Embeds = append(ns.Embeds, em.Handle)
	}

	fqns := make([]string, 0, len(buckets))
	for fqn := range buckets {
		fqns = append(fqns, fqn)
	}
	sort.Strings(fqns)
	for _, fqn := range fqns {
		b.ir.Namespaces = append(b.ir.Namespaces, buckets[fqn])
	}
}

// interpretAnnotations folds the raw annotation list, inherited entries
// first, into the table's effect set. A later annotation of the same kind
// overrides an earlier one, so table-level declarations win over
// namespace-level defaults.
func interpretAnnotations(anns []ast.Annotation) Annotations {
	var out Annotations
	for _, ann := range anns {
		switch ann.Name {
		case "load", "datasource":
			out.Load = dataSource(ann)
		case "save":
			out.Save = dataSource(ann)
		case "link_rows":
			lr := &LinkRows{}
			if v, ok := ann.Param("partition_by"); ok {
				lr.PartitionBy = v.Str
			}
			if v, ok := ann.Param("link_with"); ok {
				lr.LinkWith = v.Str
			}
			out.LinkRows = lr
		case "readonly":
			out.ReadOnly = true
		case "soft_delete":
			out.SoftDelete = true
		case "cache":
			out.Cache = true
		case "renamed_from":
			if args := ann.Positional(); len(args) > 0 {
				out.RenamedFrom = args[0].Str
			} else if v, ok := ann.Param("name"); ok {
				out.RenamedFrom = v.Str
			}
		case "taggable", "tag":
			out.Taggable = true
			for _, v := range ann.Positional() {
				out.Tags = append(out.Tags, v.Str)
			}
		case "index":
			idx := Index{}
			for _, v := range ann.Positional() {
				idx.Fields = append(idx.Fields, v.Str)
			}
			if v, ok := ann.Param("unique"); ok {
				idx.Unique = v.Bool
			}
			out.Indexes = append(out.Indexes, idx)
		case "output":
			if args := ann.Positional(); len(args) > 0 {
				out.Output = args[0].Str
			} else if v, ok := ann.Param("path"); ok {
				out.Output = v.Str
			}
		default:
			out.Unknown = append(out.Unknown, ann)
		}
	}
	return out
}

func dataSource(ann ast.Annotation) *DataSource {
	ds := &DataSource{}
	if v, ok := ann.Param("type"); ok {
		ds.Kind = DataSourceKind(v.Str)
	}
	if v, ok := ann.Param("path"); ok {
		ds.Path = v.Str
	}
	return ds
}
