package validator

import (
	"strings"
	"testing"

	"tabula/core/diag"
	"tabula/core/resolver"
)

func validateSrc(t *testing.T, src string) diag.List {
	t.Helper()
	m, diags := resolver.Resolve(resolver.MapLoader{"test.schema": src}, "test.schema")
	if diags.HasErrors() {
		t.Fatalf("Resolve() diagnostics = %v", diags)
	}
	return Validate(m)
}

func codes(l diag.List) []diag.Code {
	out := make([]diag.Code, len(l))
	for i, d := range l {
		out[i] = d.Code
	}
	return out
}

func wantCode(t *testing.T, l diag.List, code diag.Code) *diag.Diagnostic {
	t.Helper()
	for _, d := range l {
		if d.Code == code {
			return d
		}
	}
	t.Fatalf("diagnostics = %v, want code %q", l, code)
	return nil
}

func TestValidateCleanSchema(t *testing.T) {
	diags := validateSrc(t, `
namespace game {
	enum Status { Active; Banned; }
	table Player {
		id: i64 primary_key auto_increment;
		name: string max_length(32) unique;
		status: Status default(Active);
		level: i32 range(1, 99) default(1);
		motto: string? regex("^.{0,80}$");
	}
	table Guild {
		id: i64 primary_key;
		leader_id: i64 foreign_key(Player.id, as: led_guilds);
	}
}
`)
	if len(diags) != 0 {
		t.Errorf("Validate() = %v, want no diagnostics", diags)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want diag.Code
	}{
		{
			"unknown field type",
			`table T { id: i64 primary_key; w: Widget; }`,
			diag.CodeUnresolvedType,
		},
		{
			"fk unknown table",
			`table T { id: i64 primary_key; o: i64 foreign_key(Other.id); }`,
			diag.CodeUnresolvedFK,
		},
		{
			"fk unknown field",
			`table A { id: i64 primary_key; }
			 table B { id: i64 primary_key; a: i64 foreign_key(A.gone); }`,
			diag.CodeUnresolvedFK,
		},
		{
			"fk target not unique",
			`table A { id: i64 primary_key; score: i64; }
			 table B { id: i64 primary_key; a: i64 foreign_key(A.score); }`,
			diag.CodeUnresolvedFK,
		},
		{
			"fk target not a table",
			`enum E { X; }
			 table B { id: i64 primary_key; e: i64 foreign_key(E.X); }`,
			diag.CodeUnresolvedFK,
		},
		{
			"fk type disagreement",
			`table A { id: i64 primary_key; }
			 table B { id: i64 primary_key; a: i32 foreign_key(A.id); }`,
			diag.CodeConstraintMismatch,
		},
		{
			"max_length on integer",
			`table T { id: i64 primary_key max_length(5); }`,
			diag.CodeConstraintMismatch,
		},
		{
			"regex on integer",
			`table T { id: i64 primary_key; n: i32 regex("x"); }`,
			diag.CodeConstraintMismatch,
		},
		{
			"range on string",
			`table T { id: i64 primary_key; s: string range(1, 5); }`,
			diag.CodeConstraintMismatch,
		},
		{
			"float bound on integer range",
			`table T { id: i64 primary_key; n: i32 range(1, 2.5); }`,
			diag.CodeConstraintMismatch,
		},
		{
			"auto_increment on string",
			`table T { id: string primary_key auto_increment; }`,
			diag.CodeConstraintMismatch,
		},
		{
			"default type disagreement",
			`table T { id: i64 primary_key; n: i32 default("five"); }`,
			diag.CodeConstraintMismatch,
		},
		{
			"default names missing variant",
			`enum Status { Active; }
			 table T { id: i64 primary_key; s: Status default(Gone); }`,
			diag.CodeConstraintMismatch,
		},
		{
			"two primary keys",
			`table T { a: i64 primary_key; b: i64 primary_key; }`,
			diag.CodeInvalidPrimaryKey,
		},
		{
			"optional primary key",
			`table T { id: i64? primary_key; }`,
			diag.CodeInvalidPrimaryKey,
		},
		{
			"primary key inside embed",
			`embed E { id: i64 primary_key; }
			 table T { id: i64 primary_key; e: E; }`,
			diag.CodeInvalidPrimaryKey,
		},
		{
			"duplicate field",
			`table T { id: i64 primary_key; id: string; }`,
			diag.CodeDuplicateDef,
		},
		{
			"duplicate enum variant",
			`enum E { A; A; }
			 table T { id: i64 primary_key; }`,
			diag.CodeDuplicateDef,
		},
		{
			"link_rows missing partition_by",
			`@link_rows(link_with: "next_id")
			 table T { id: i64 primary_key; next_id: i64; }`,
			diag.CodeMissingAnnotParam,
		},
		{
			"link_rows unknown field",
			`@link_rows(partition_by: "gone", link_with: "next_id")
			 table T { id: i64 primary_key; next_id: i64; }`,
			diag.CodeUnresolvedType,
		},
		{
			"load missing type",
			`@load(path: "data/players")
			 table T { id: i64 primary_key; }`,
			diag.CodeMissingAnnotParam,
		},
		{
			"load map missing path",
			`@load(type: "Map")
			 table T { id: i64 primary_key; }`,
			diag.CodeMissingAnnotParam,
		},
		{
			"load unknown source kind",
			`@load(type: "Cloud")
			 table T { id: i64 primary_key; }`,
			diag.CodeMissingAnnotParam,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diags := validateSrc(t, tt.src)
			wantCode(t, diags, tt.want)
		})
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	diags := validateSrc(t, `
table T {
	id: i64 primary_key;
	w: Widget;
	n: i32 max_length(5);
	o: i64 foreign_key(Gone.id);
}
`)
	if len(diags) < 3 {
		t.Fatalf("diagnostic count = %d (%v), want at least 3", len(diags), codes(diags))
	}
	for _, want := range []diag.Code{diag.CodeUnresolvedType, diag.CodeConstraintMismatch, diag.CodeUnresolvedFK} {
		wantCode(t, diags, want)
	}
}

func TestValidateDuplicateTwoPKReportsBothSites(t *testing.T) {
	diags := validateSrc(t, `table T { a: i64 primary_key; b: i64 primary_key; }`)
	d := wantCode(t, diags, diag.CodeInvalidPrimaryKey)
	if d.Related == nil {
		t.Error("Related = nil, want first primary key location")
	}
}

func TestValidateInheritedDatasource(t *testing.T) {
	diags := validateSrc(t, `
@datasource(type: "Map")
namespace game {
	table Player { id: i64 primary_key; }
}
`)
	d := wantCode(t, diags, diag.CodeMissingAnnotParam)
	if !strings.Contains(d.Message, "path") {
		t.Errorf("message = %q, want mention of path", d.Message)
	}
}

func TestValidateInlineTypes(t *testing.T) {
	diags := validateSrc(t, `
table Monster {
	id: i64 primary_key;
	drop_items: embed { item_id: i64; item_id: i64; }[];
}
`)
	wantCode(t, diags, diag.CodeDuplicateDef)
}

func TestValidateNestedEnumReference(t *testing.T) {
	diags := validateSrc(t, `
table Monster {
	id: i64 primary_key;
	enum Rank { Normal; Boss; }
	rank: Rank default(Boss);
}
`)
	if len(diags) != 0 {
		t.Errorf("Validate() = %v, want no diagnostics", diags)
	}
}
