// Package validator checks referential and structural integrity of a merged
// schema. Validation never stops at the first problem: every check appends
// to one diagnostic list so a single run surfaces the full error set.
// Callers gate the IR build on List.HasErrors.
package validator

import (
	"strings"

	"tabula/core/ast"
	"tabula/core/diag"
	"tabula/core/resolver"
)

// Validate runs every check over the merged schema and returns the
// accumulated diagnostics, sorted by position.
func Validate(m *resolver.Merged) diag.List {
	v := &validator{m: m}
	for _, fqn := range m.Order {
		e := m.Defs[fqn]
		switch d := e.Def.(type) {
		case *ast.Table:
			v.checkTable(e, d)
		case *ast.Enum:
			v.checkEnum(d)
		case *ast.Embed:
			v.checkEmbed(e, d)
		}
	}
	v.diags.Sort()
	return v.diags
}

type validator struct {
	m     *resolver.Merged
	diags diag.List
}

func (v *validator) errorf(code diag.Code, pos diag.Pos, format string, args ...any) {
	v.diags.Add(diag.Errorf(code, pos, format, args...))
}

func (v *validator) checkTable(e resolver.Entry, t *ast.Table) {
	fields := tableFields(t)
	v.checkFieldNames(fields)

	var pkFields []*ast.Field
	for _, f := range fields {
		if hasConstraint(f, "primary_key") {
			pkFields = append(pkFields, f)
		}
		v.checkField(f, e.FQN, false)
	}
	if len(pkFields) > 1 {
		for _, f := range pkFields[1:] {
			first := pkFields[0].Span.Start
			v.diags.Add(&diag.Diagnostic{
				Code:     diag.CodeInvalidPrimaryKey,
				Severity: diag.SeverityError,
				Message:  "table " + e.FQN + " declares more than one primary key field",
				Pos:      f.Span.Start,
				Related:  &first,
			})
		}
	}

	for _, member := range t.Members {
		switch d := member.(type) {
		case *ast.Enum:
			v.checkEnum(d)
		case *ast.Embed:
			v.checkEmbed(resolver.Entry{FQN: e.FQN + "." + d.Name, Namespace: e.FQN, Def: d}, d)
		}
	}

	anns := append(append([]ast.Annotation{}, v.m.InheritedAnnotations(e.Namespace)...), t.Annotations...)
	v.checkAnnotations(anns, fields, e.FQN)
}

func (v *validator) checkEnum(en *ast.Enum) {
	v.checkVariants(en.Name, en.Variants)
}

func (v *validator) checkVariants(name string, variants []ast.EnumVariant) {
	seen := make(map[string]diag.Pos)
	for _, variant := range variants {
		if first, dup := seen[variant.Name]; dup {
			prev := first
			v.diags.Add(&diag.Diagnostic{
				Code:     diag.CodeDuplicateDef,
				Severity: diag.SeverityError,
				Message:  "duplicate variant " + variant.Name + " in enum " + name,
				Pos:      variant.Span.Start,
				Related:  &prev,
			})
			continue
		}
		seen[variant.Name] = variant.Span.Start
	}
}

func (v *validator) checkEmbed(e resolver.Entry, em *ast.Embed) {
	v.checkFieldNames(em.Fields)
	for _, f := range em.Fields {
		v.checkField(f, e.Namespace, true)
	}
}

func (v *validator) checkFieldNames(fields []*ast.Field) {
	seen := make(map[string]diag.Pos)
	for _, f := range fields {
		if first, dup := seen[f.Name]; dup {
			prev := first
			v.diags.Add(&diag.Diagnostic{
				Code:     diag.CodeDuplicateDef,
				Severity: diag.SeverityError,
				Message:  "duplicate field " + f.Name,
				Pos:      f.Span.Start,
				Related:  &prev,
			})
			continue
		}
		seen[f.Name] = f.Span.Start
	}
}

// checkField validates the type reference and every constraint of one
// field. scope is the FQN the field's type paths resolve from; inEmbed
// restricts the constraints that carry table identity.
func (v *validator) checkField(f *ast.Field, scope string, inEmbed bool) {
	ft := v.fieldType(f, scope)

	switch typ := f.Type.(type) {
	case *ast.InlineEmbed:
		v.checkFieldNames(typ.Fields)
		for _, inner := range typ.Fields {
			v.checkField(inner, scope, true)
		}
	case *ast.InlineEnum:
		v.checkVariants(f.Name, typ.Variants)
	}

	for _, c := range f.Constraints {
		switch c := c.(type) {
		case ast.PrimaryKey:
			if inEmbed {
				v.errorf(diag.CodeInvalidPrimaryKey, c.Pos(), "primary_key is not allowed inside embeds")
				continue
			}
			if f.Card != ast.CardScalar {
				v.errorf(diag.CodeInvalidPrimaryKey, c.Pos(), "primary key field %s must not be %s", f.Name, f.Card)
			}
			if !ft.isPrim {
				v.errorf(diag.CodeInvalidPrimaryKey, c.Pos(), "primary key field %s must have a primitive type", f.Name)
			}
		case ast.AutoIncrement:
			if inEmbed {
				v.errorf(diag.CodeConstraintMismatch, c.Pos(), "auto_increment is not allowed inside embeds")
				continue
			}
			if !ft.isPrim || !ft.prim.IsInteger() {
				v.errorf(diag.CodeConstraintMismatch, c.Pos(), "auto_increment requires an integer field, %s is %s", f.Name, ft)
			}
		case ast.MaxLength:
			if !ft.isPrim || ft.prim != ast.PrimString {
				v.errorf(diag.CodeConstraintMismatch, c.Pos(), "max_length requires a string field, %s is %s", f.Name, ft)
			}
		case ast.Regex:
			if !ft.isPrim || ft.prim != ast.PrimString {
				v.errorf(diag.CodeConstraintMismatch, c.Pos(), "regex requires a string field, %s is %s", f.Name, ft)
			}
		case ast.Range:
			if !ft.isPrim || !ft.prim.IsNumeric() {
				v.errorf(diag.CodeConstraintMismatch, c.Pos(), "range requires a numeric field, %s is %s", f.Name, ft)
				continue
			}
			for _, bound := range []ast.Literal{c.Lo, c.Hi} {
				if bound.Kind != ast.LitInt && bound.Kind != ast.LitFloat {
					v.errorf(diag.CodeConstraintMismatch, bound.Span.Start, "range bound %s is not numeric", bound)
				} else if ft.prim.IsInteger() && bound.Kind == ast.LitFloat {
					v.errorf(diag.CodeConstraintMismatch, bound.Span.Start, "range bound %s is not an integer", bound)
				}
			}
		case ast.Default:
			v.checkDefault(f, ft, c)
		case *ast.ForeignKey:
			if inEmbed {
				v.errorf(diag.CodeConstraintMismatch, c.Pos(), "foreign_key is not allowed inside embeds")
				continue
			}
			v.checkForeignKey(f, ft, c, scope)
		case ast.Unique, ast.Index:
			// Valid on any field.
		}
	}
}

func (v *validator) checkDefault(f *ast.Field, ft fieldType, c ast.Default) {
	lit := c.Value
	switch {
	case ft.enum != nil:
		if lit.Kind != ast.LitIdent && lit.Kind != ast.LitString {
			v.errorf(diag.CodeConstraintMismatch, c.Pos(), "default for enum field %s must name a variant", f.Name)
			return
		}
		for _, variant := range ft.enum.Variants {
			if variant.Name == lit.Str {
				return
			}
		}
		v.errorf(diag.CodeConstraintMismatch, c.Pos(), "default %s is not a variant of the enum for field %s", lit.Str, f.Name)
	case !ft.isPrim:
		v.errorf(diag.CodeConstraintMismatch, c.Pos(), "default is not allowed on composite field %s", f.Name)
	case ft.prim == ast.PrimString:
		if lit.Kind != ast.LitString {
			v.errorf(diag.CodeConstraintMismatch, c.Pos(), "default for string field %s must be a string literal", f.Name)
		}
	case ft.prim == ast.PrimBool:
		if lit.Kind != ast.LitBool {
			v.errorf(diag.CodeConstraintMismatch, c.Pos(), "default for bool field %s must be true or false", f.Name)
		}
	case ft.prim.IsInteger():
		if lit.Kind != ast.LitInt {
			v.errorf(diag.CodeConstraintMismatch, c.Pos(), "default for integer field %s must be an integer literal", f.Name)
		}
	case ft.prim.IsNumeric():
		if lit.Kind != ast.LitInt && lit.Kind != ast.LitFloat {
			v.errorf(diag.CodeConstraintMismatch, c.Pos(), "default for float field %s must be numeric", f.Name)
		}
	default:
		if lit.Kind != ast.LitString {
			v.errorf(diag.CodeConstraintMismatch, c.Pos(), "default for %s field %s must be a string literal", ft.prim, f.Name)
		}
	}
}

func (v *validator) checkForeignKey(f *ast.Field, ft fieldType, c *ast.ForeignKey, scope string) {
	tablePath := c.TargetTable()
	fieldName := c.TargetField()
	if fieldName == "" {
		v.errorf(diag.CodeUnresolvedFK, c.Pos(), "foreign_key target %s does not name a table field", strings.Join(c.Target, "."))
		return
	}
	entry, ok := v.m.ResolveType(tablePath, scope)
	if !ok {
		v.errorf(diag.CodeUnresolvedFK, c.Pos(), "foreign_key target table %s not found", strings.Join(tablePath, "."))
		return
	}
	target, ok := entry.Def.(*ast.Table)
	if !ok {
		v.errorf(diag.CodeUnresolvedFK, c.Pos(), "foreign_key target %s is not a table", entry.FQN)
		return
	}
	var targetField *ast.Field
	for _, tf := range tableFields(target) {
		if tf.Name == fieldName {
			targetField = tf
			break
		}
	}
	if targetField == nil {
		v.errorf(diag.CodeUnresolvedFK, c.Pos(), "table %s has no field %s", entry.FQN, fieldName)
		return
	}
	if !hasConstraint(targetField, "primary_key") && !hasConstraint(targetField, "unique") {
		v.errorf(diag.CodeUnresolvedFK, c.Pos(), "foreign_key target %s.%s is neither primary_key nor unique", entry.FQN, fieldName)
	}
	if tp, ok := targetField.Type.(ast.PrimType); ok && ft.isPrim && ft.prim != tp {
		v.errorf(diag.CodeConstraintMismatch, c.Pos(), "foreign_key field %s is %s but %s.%s is %s", f.Name, ft.prim, entry.FQN, fieldName, tp)
	}
}

// Required annotation parameters. load/save additionally require a path
// for the Map source kind; link_rows parameters must name table fields.
func (v *validator) checkAnnotations(anns []ast.Annotation, fields []*ast.Field, tableFQN string) {
	fieldNames := make(map[string]bool, len(fields))
	for _, f := range fields {
		fieldNames[f.Name] = true
	}

	for _, ann := range anns {
		switch ann.Name {
		case "link_rows":
			for _, param := range []string{"partition_by", "link_with"} {
				val, ok := ann.Param(param)
				if !ok {
					v.errorf(diag.CodeMissingAnnotParam, ann.Span.Start, "@link_rows on %s requires parameter %s", tableFQN, param)
					continue
				}
				if !fieldNames[val.Str] {
					v.errorf(diag.CodeUnresolvedType, val.Span.Start, "@link_rows %s refers to unknown field %s on %s", param, val.Str, tableFQN)
				}
			}
		case "load", "save", "datasource":
			kind, ok := ann.Param("type")
			if !ok {
				v.errorf(diag.CodeMissingAnnotParam, ann.Span.Start, "@%s on %s requires parameter type", ann.Name, tableFQN)
				continue
			}
			switch kind.Str {
			case "DB", "Memory":
			case "Map":
				if _, ok := ann.Param("path"); !ok {
					v.errorf(diag.CodeMissingAnnotParam, ann.Span.Start, "@%s with type Map on %s requires parameter path", ann.Name, tableFQN)
				}
			default:
				v.errorf(diag.CodeMissingAnnotParam, ann.Span.Start, "@%s type must be DB, Map, or Memory, got %s", ann.Name, kind)
			}
		}
	}
}

// fieldType is the resolved shape of a field's declared type, ignoring the
// cardinality modifier.
type fieldType struct {
	isPrim bool
	prim   ast.PrimType
	enum   *ast.Enum // resolved named or table-scoped enum
	inline *ast.InlineEnum
	name   string // display name for composite types
}

func (t fieldType) String() string {
	switch {
	case t.isPrim:
		return t.prim.String()
	case t.enum != nil:
		return "enum " + t.enum.Name
	case t.inline != nil:
		return "inline enum"
	default:
		return t.name
	}
}

// fieldType resolves the field's declared type, reporting an unresolved
// reference diagnostic when a named type matches nothing.
func (v *validator) fieldType(f *ast.Field, scope string) fieldType {
	switch typ := f.Type.(type) {
	case ast.PrimType:
		return fieldType{isPrim: true, prim: typ}
	case *ast.NamedType:
		entry, ok := v.m.ResolveType(typ.Path, scope)
		if !ok {
			v.errorf(diag.CodeUnresolvedType, typ.Span.Start, "unknown type %s", typ)
			return fieldType{name: typ.String()}
		}
		if en, ok := entry.Def.(*ast.Enum); ok {
			return fieldType{enum: en, name: entry.FQN}
		}
		return fieldType{name: entry.FQN}
	case *ast.InlineEnum:
		return fieldType{inline: typ, name: "inline enum"}
	default:
		return fieldType{name: "inline embed"}
	}
}

func tableFields(t *ast.Table) []*ast.Field {
	var out []*ast.Field
	for _, m := range t.Members {
		if f, ok := m.(*ast.Field); ok {
			out = append(out, f)
		}
	}
	return out
}

func hasConstraint(f *ast.Field, name string) bool {
	for _, c := range f.Constraints {
		if c.ConstraintName() == name {
			return true
		}
	}
	return false
}
