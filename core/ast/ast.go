// Package ast defines the typed syntax tree for .schema files.
//
// A File is the product of parsing one source file. Definitions form a
// closed set (Namespace, Table, Enum, Embed) so that every consumer can
// type-switch exhaustively; the same applies to Member, TypeExpr, and
// Constraint. Declaration order is preserved everywhere: it carries no
// semantic weight but keeps diagnostics, diagrams, and generated code
// reproducible.
package ast

import (
	"strconv"
	"strings"

	"tabula/core/diag"
)

// File is the parsed content of a single .schema source file.
type File struct {
	Path    string
	Imports []Import
	Defs    []Definition
}

// Import is a file-level `import "relative/path";` statement.
type Import struct {
	Path string
	Span diag.Span
}

// Definition is a named entity at namespace or file scope.
// Implementations: *Namespace, *Table, *Enum, *Embed.
type Definition interface {
	defNode()
	// DefName returns the declared simple name. Namespaces return their
	// dotted path.
	DefName() string
	// NameSpan locates the declared name for diagnostics.
	NameSpan() diag.Span
}

// Namespace groups definitions under a dotted path. Namespaces nest; two
// namespace blocks with the same fully-qualified path are the same logical
// namespace once merged.
type Namespace struct {
	Annotations []Annotation
	Path        []string
	Defs        []Definition
	Span        diag.Span
}

// Table is an ordered sequence of fields plus table-scoped nested types.
type Table struct {
	Doc         string
	Annotations []Annotation
	Name        string
	Members     []Member
	Span        diag.Span
}

// Enum is a closed set of named variants with integer ordinals.
type Enum struct {
	Doc         string
	Annotations []Annotation
	Name        string
	Variants    []EnumVariant
	Span        diag.Span
}

// EnumVariant is one member of an enum. Value is the explicit ordinal when
// declared (`Active = 1;`); nil means "previous + 1", starting at 0.
type EnumVariant struct {
	Doc   string
	Name  string
	Value *int64
	Span  diag.Span
}

// Embed is a reusable composite type with no independent identity.
type Embed struct {
	Doc         string
	Annotations []Annotation
	Name        string
	Fields      []*Field
	Span        diag.Span
}

func (*Namespace) defNode() {}
func (*Table) defNode()     {}
func (*Enum) defNode()      {}
func (*Embed) defNode()     {}

func (n *Namespace) DefName() string { return strings.Join(n.Path, ".") }
func (t *Table) DefName() string     { return t.Name }
func (e *Enum) DefName() string      { return e.Name }
func (e *Embed) DefName() string     { return e.Name }

func (n *Namespace) NameSpan() diag.Span { return n.Span }
func (t *Table) NameSpan() diag.Span     { return t.Span }
func (e *Enum) NameSpan() diag.Span      { return e.Span }
func (e *Embed) NameSpan() diag.Span     { return e.Span }

// Member is an item inside a table body.
// Implementations: *Field, *Enum, *Embed.
type Member interface {
	memberNode()
}

func (*Field) memberNode() {}
func (*Enum) memberNode()  {}
func (*Embed) memberNode() {}

// Field is a named, typed slot on a table or embed.
type Field struct {
	Doc         string
	Annotations []Annotation
	Name        string
	Type        TypeExpr
	Card        Cardinality
	Constraints []Constraint
	Span        diag.Span
}

// Cardinality is the field multiplicity modifier.
type Cardinality int

const (
	CardScalar   Cardinality = iota // T
	CardOptional                    // T?
	CardArray                       // T[]
)

func (c Cardinality) String() string {
	switch c {
	case CardOptional:
		return "optional"
	case CardArray:
		return "array"
	default:
		return "scalar"
	}
}

// TypeExpr is a field's declared type.
// Implementations: PrimType, *NamedType, *InlineEmbed, *InlineEnum.
type TypeExpr interface {
	typeExpr()
}

// PrimType is a built-in primitive type.
type PrimType int

const (
	PrimString PrimType = iota
	PrimBool
	PrimBytes
	PrimI8
	PrimI16
	PrimI32
	PrimI64
	PrimU8
	PrimU16
	PrimU32
	PrimU64
	PrimF32
	PrimF64
)

var primNames = map[PrimType]string{
	PrimString: "string",
	PrimBool:   "bool",
	PrimBytes:  "bytes",
	PrimI8:     "i8",
	PrimI16:    "i16",
	PrimI32:    "i32",
	PrimI64:    "i64",
	PrimU8:     "u8",
	PrimU16:    "u16",
	PrimU32:    "u32",
	PrimU64:    "u64",
	PrimF32:    "f32",
	PrimF64:    "f64",
}

func (p PrimType) String() string { return primNames[p] }

// IsNumeric reports whether the primitive is an integer or float type.
func (p PrimType) IsNumeric() bool {
	switch p {
	case PrimString, PrimBool, PrimBytes:
		return false
	default:
		return true
	}
}

// IsInteger reports whether the primitive is an integer type.
func (p PrimType) IsInteger() bool {
	return p.IsNumeric() && p != PrimF32 && p != PrimF64
}

// PrimTypeByName maps a source-level primitive name to its PrimType.
func PrimTypeByName(name string) (PrimType, bool) {
	for p, n := range primNames {
		if n == name {
			return p, true
		}
	}
	return 0, false
}

// NamedType references another definition by a possibly-qualified path.
type NamedType struct {
	Path []string
	Span diag.Span
}

// InlineEmbed is an anonymous embed body declared directly at field
// position. It has no addressable name of its own.
type InlineEmbed struct {
	Fields []*Field
	Span   diag.Span
}

// InlineEnum is an anonymous enum body declared directly at field position.
type InlineEnum struct {
	Variants []EnumVariant
	Span     diag.Span
}

func (PrimType) typeExpr()     {}
func (*NamedType) typeExpr()   {}
func (*InlineEmbed) typeExpr() {}
func (*InlineEnum) typeExpr()  {}

// String renders the path as written.
func (n *NamedType) String() string { return strings.Join(n.Path, ".") }

// Constraint is a field validation or relationship rule. The set is closed:
// adding a kind forces every type switch in the validator, IR builder, and
// generators to be revisited.
// Implementations: PrimaryKey, Unique, Index, AutoIncrement, MaxLength,
// Default, Range, Regex, ForeignKey.
type Constraint interface {
	constraintNode()
	// ConstraintName returns the source-level keyword.
	ConstraintName() string
	Pos() diag.Pos
}

// PrimaryKey marks the table's key field.
type PrimaryKey struct{ Span diag.Span }

// Unique requires distinct values across rows.
type Unique struct{ Span diag.Span }

// Index requests a secondary index on the field.
type Index struct{ Span diag.Span }

// AutoIncrement assigns sequential values on insert.
type AutoIncrement struct{ Span diag.Span }

// MaxLength bounds the byte length of string fields.
type MaxLength struct {
	N    int64
	Span diag.Span
}

// Default supplies a literal fallback value.
type Default struct {
	Value Literal
	Span  diag.Span
}

// Range bounds numeric fields inclusively.
type Range struct {
	Lo, Hi Literal
	Span   diag.Span
}

// Regex constrains string fields to a pattern.
type Regex struct {
	Pattern string
	Span    diag.Span
}

// ForeignKey declares a reference to another table's field. Target holds
// the full dotted path including the field segment; As is the optional
// reverse-relation name ("" when omitted).
type ForeignKey struct {
	Target []string
	As     string
	Span   diag.Span
}

func (PrimaryKey) constraintNode()    {}
func (Unique) constraintNode()        {}
func (Index) constraintNode()         {}
func (AutoIncrement) constraintNode() {}
func (MaxLength) constraintNode()     {}
func (Default) constraintNode()       {}
func (Range) constraintNode()         {}
func (Regex) constraintNode()         {}
func (*ForeignKey) constraintNode()   {}

func (PrimaryKey) ConstraintName() string    { return "primary_key" }
func (Unique) ConstraintName() string        { return "unique" }
func (Index) ConstraintName() string         { return "index" }
func (AutoIncrement) ConstraintName() string { return "auto_increment" }
func (MaxLength) ConstraintName() string     { return "max_length" }
func (Default) ConstraintName() string       { return "default" }
func (Range) ConstraintName() string         { return "range" }
func (Regex) ConstraintName() string         { return "regex" }
func (*ForeignKey) ConstraintName() string   { return "foreign_key" }

func (c PrimaryKey) Pos() diag.Pos    { return c.Span.Start }
func (c Unique) Pos() diag.Pos        { return c.Span.Start }
func (c Index) Pos() diag.Pos         { return c.Span.Start }
func (c AutoIncrement) Pos() diag.Pos { return c.Span.Start }
func (c MaxLength) Pos() diag.Pos     { return c.Span.Start }
func (c Default) Pos() diag.Pos       { return c.Span.Start }
func (c Range) Pos() diag.Pos         { return c.Span.Start }
func (c Regex) Pos() diag.Pos         { return c.Span.Start }
func (c *ForeignKey) Pos() diag.Pos   { return c.Span.Start }

// TargetTable returns the table portion of the foreign-key path.
func (c *ForeignKey) TargetTable() []string {
	if len(c.Target) < 2 {
		return c.Target
	}
	return c.Target[:len(c.Target)-1]
}

// TargetField returns the referenced field name, "" when the path is too
// short to carry one.
func (c *ForeignKey) TargetField() string {
	if len(c.Target) < 2 {
		return ""
	}
	return c.Target[len(c.Target)-1]
}

// Annotation is a `@name(...)` marker attached to a definition or field.
type Annotation struct {
	Name string
	Args []AnnotationArg
	Span diag.Span
}

// AnnotationArg is a single annotation argument. Key is "" for positional
// arguments.
type AnnotationArg struct {
	Key   string
	Value Literal
}

// Param returns the named parameter's value and whether it was present.
func (a Annotation) Param(key string) (Literal, bool) {
	for _, arg := range a.Args {
		if arg.Key == key {
			return arg.Value, true
		}
	}
	return Literal{}, false
}

// Positional returns the positional argument values in order.
func (a Annotation) Positional() []Literal {
	var out []Literal
	for _, arg := range a.Args {
		if arg.Key == "" {
			out = append(out, arg.Value)
		}
	}
	return out
}

// LiteralKind discriminates Literal payloads.
type LiteralKind int

const (
	LitString LiteralKind = iota
	LitInt
	LitFloat
	LitBool
	LitIdent
)

// Literal is a constant value appearing in constraints and annotations.
type Literal struct {
	Kind  LiteralKind
	Str   string // LitString, LitIdent
	Int   int64
	Float float64
	Bool  bool
	Span  diag.Span
}

// String renders the literal the way annotation consumers see it: strings
// and identifiers without quotes, numbers and booleans in Go formatting.
func (l Literal) String() string {
	switch l.Kind {
	case LitString, LitIdent:
		return l.Str
	case LitInt:
		return strconv.FormatInt(l.Int, 10)
	case LitFloat:
		return strconv.FormatFloat(l.Float, 'g', -1, 64)
	case LitBool:
		if l.Bool {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// IsText reports whether the literal carries a string-like payload.
func (l Literal) IsText() bool { return l.Kind == LitString || l.Kind == LitIdent }
