// Package ir defines the resolved intermediate representation consumed by
// every backend generator, and the builder that derives it from a merged,
// validated schema.
//
// The IR is immutable once built. Tables, enums, and embeds live in arenas
// addressed by integer handles so that relationship edges and type
// references stay cheap to follow and trivially serializable for debug
// dumps. Generators hold read-only references; reflecting a schema change
// means rebuilding from scratch.
package ir

import (
	"tabula/core/ast"
	"tabula/core/diag"
)

// TableHandle indexes IR.Tables.
type TableHandle int

// EnumHandle indexes IR.Enums.
type EnumHandle int

// EmbedHandle indexes IR.Embeds.
type EmbedHandle int

// None marks an absent handle.
const None = -1

// IR is the fully resolved schema.
type IR struct {
	// Namespaces are sorted by FQN; members keep declaration order.
	Namespaces []*Namespace

	Tables []*Table
	Enums  []*Enum
	Embeds []*Embed

	// Relationships holds every foreign-key edge in declaration order.
	Relationships []*Relationship
	// ManyToMany lists the junction patterns recognized among the
	// relationship edges. Junction tables stay first-class in Tables.
	ManyToMany []ManyToMany

	tables map[string]TableHandle
	enums  map[string]EnumHandle
	embeds map[string]EmbedHandle
}

// TableByFQN returns the handle for a fully-qualified table name.
func (ir *IR) TableByFQN(fqn string) (TableHandle, bool) {
	h, ok := ir.tables[fqn]
	return h, ok
}

// Table returns the arena entry for h.
func (ir *IR) Table(h TableHandle) *Table { return ir.Tables[h] }

// Enum returns the arena entry for h.
func (ir *IR) Enum(h EnumHandle) *Enum { return ir.Enums[h] }

// Embed returns the arena entry for h.
func (ir *IR) Embed(h EmbedHandle) *Embed { return ir.Embeds[h] }

// Namespace groups the definitions sharing one namespace FQN. The root
// scope uses FQN "".
type Namespace struct {
	FQN    string
	Tables []TableHandle
	Enums  []EnumHandle
	Embeds []EmbedHandle
}

// Table is one resolved table.
type Table struct {
	Handle    TableHandle
	FQN       string
	Name      string
	Namespace string
	Doc       string
	File      string

	Fields []*Field
	// PrimaryKey indexes Fields, None when the table declares no key.
	PrimaryKey int

	// Out and In index IR.Relationships: edges where this table holds the
	// foreign key, and edges pointing at it.
	Out []int
	In  []int

	Annotations Annotations
}

// PKField returns the primary-key field, nil when absent.
func (t *Table) PKField() *Field {
	if t.PrimaryKey == None {
		return nil
	}
	return t.Fields[t.PrimaryKey]
}

// FieldByName returns the named field, nil when absent.
func (t *Table) FieldByName(name string) *Field {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Field is one resolved table or embed field with its constraint effects
// already interpreted.
type Field struct {
	Name string
	Doc  string
	Type TypeRef
	Card ast.Cardinality

	PrimaryKey    bool
	Unique        bool
	Indexed       bool
	AutoIncrement bool
	MaxLength     *int64
	Default       *ast.Literal
	Range         *RangeBounds
	Regex         string
	// ForeignKey indexes IR.Relationships when the field carries one.
	ForeignKey int

	Span diag.Span
}

// HasForeignKey reports whether the field carries a foreign-key edge.
func (f *Field) HasForeignKey() bool { return f.ForeignKey != None }

// RangeBounds is an inclusive numeric range constraint.
type RangeBounds struct {
	Lo, Hi ast.Literal
}

// TypeKind discriminates TypeRef.
type TypeKind int

const (
	KindPrimitive TypeKind = iota
	KindEnum
	KindEmbed
	KindTable
)

func (k TypeKind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindEnum:
		return "enum"
	case KindEmbed:
		return "embed"
	case KindTable:
		return "table"
	default:
		return "unknown"
	}
}

// TypeRef is a fully resolved field type. Exactly one of the handle fields
// is meaningful, selected by Kind; FQN is set for every non-primitive kind,
// including the synthetic FQNs of inline types.
type TypeRef struct {
	Kind  TypeKind
	Prim  ast.PrimType
	FQN   string
	Enum  EnumHandle
	Embed EmbedHandle
	Table TableHandle
}

func (r TypeRef) String() string {
	if r.Kind == KindPrimitive {
		return r.Prim.String()
	}
	return r.FQN
}

// Enum is one resolved enumeration with materialized ordinals.
type Enum struct {
	Handle    EnumHandle
	FQN       string
	Name      string
	Namespace string
	Doc       string
	// Inline is true for anonymous enum bodies; their FQN is synthetic
	// and must not appear in generated public identifiers verbatim.
	Inline   bool
	Variants []Variant
}

// Variant is an enum member with its resolved ordinal.
type Variant struct {
	Name    string
	Doc     string
	Ordinal int64
}

// VariantByName returns the variant and whether it exists.
func (e *Enum) VariantByName(name string) (Variant, bool) {
	for _, v := range e.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return Variant{}, false
}

// EmbedClass is the structural category of an embed, assigned in one pass
// over the whole merged graph.
type EmbedClass int

const (
	// ClassReusable marks namespace-level embeds shareable across tables.
	ClassReusable EmbedClass = iota
	// ClassNestedNamed marks embeds declared inside a table body.
	ClassNestedNamed
	// ClassInline marks anonymous embed bodies at field position.
	ClassInline
)

func (c EmbedClass) String() string {
	switch c {
	case ClassReusable:
		return "reusable"
	case ClassNestedNamed:
		return "nested-named"
	case ClassInline:
		return "inline"
	default:
		return "unknown"
	}
}

// Embed is one resolved composite value type.
type Embed struct {
	Handle    EmbedHandle
	FQN       string
	Name      string
	Namespace string
	Doc       string
	Class     EmbedClass
	Fields    []*Field
}

// Cardinality is the multiplicity of one end of a relationship edge.
type Cardinality string

const (
	CardOne      Cardinality = "1"
	CardOptional Cardinality = "0..1"
	CardMany     Cardinality = "*"
)

// Relationship is a resolved foreign-key edge. The source table holds the
// key; Forward is the multiplicity of the target as seen from one source
// row, Reverse the multiplicity of sources per target row.
type Relationship struct {
	Source      TableHandle
	SourceField string
	Target      TableHandle
	TargetField string
	Forward     Cardinality
	// ReverseName labels the target-to-source direction: the `as` alias
	// when declared, otherwise derived from the source table's name.
	ReverseName string
	Reverse     Cardinality
}

// ManyToMany records a junction pattern: a table whose only foreign keys
// point at two distinct tables.
type ManyToMany struct {
	Junction TableHandle
	Left     TableHandle
	Right    TableHandle
	// LeftRel and RightRel index IR.Relationships.
	LeftRel  int
	RightRel int
}

// DataSourceKind is the backing store named by load/save annotations.
type DataSourceKind string

const (
	SourceDB     DataSourceKind = "DB"
	SourceMap    DataSourceKind = "Map"
	SourceMemory DataSourceKind = "Memory"
)

// DataSource is an interpreted @load/@save/@datasource annotation.
type DataSource struct {
	Kind DataSourceKind
	// Path is the file or glob pattern for Map sources, the table name
	// override for DB sources ("" uses the schema table name).
	Path string
}

// LinkRows is an interpreted @link_rows annotation: rows of the same
// PartitionBy value form an ordered chain linked through LinkWith.
type LinkRows struct {
	PartitionBy string
	LinkWith    string
}

// Index is an interpreted @index annotation: a secondary index over the
// named fields, in declaration order.
type Index struct {
	Fields []string
	Unique bool
}

// Annotations is the interpreted effect set of a table's annotations,
// including those inherited from enclosing namespaces. Unknown annotations
// are preserved opaquely for generators with private vocabularies.
type Annotations struct {
	Load        *DataSource
	Save        *DataSource
	LinkRows    *LinkRows
	ReadOnly    bool
	SoftDelete  bool
	Cache       bool
	Taggable    bool
	RenamedFrom string
	Output      string
	Tags        []string
	Indexes     []Index
	Unknown     []ast.Annotation
}
