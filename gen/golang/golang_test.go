package golang

import (
	"strings"
	"testing"

	"tabula/core/ir"
	"tabula/core/resolver"
	"tabula/core/validator"
	"tabula/gen"
)

func generate(t *testing.T, src string) []gen.File {
	t.Helper()
	m, diags := resolver.Resolve(resolver.MapLoader{"test.schema": src}, "test.schema")
	if diags.HasErrors() {
		t.Fatalf("Resolve() diagnostics = %v", diags)
	}
	if vd := validator.Validate(m); vd.HasErrors() {
		t.Fatalf("Validate() diagnostics = %v", vd)
	}
	schema, err := ir.Build(m)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	files, err := New(Options{}).Generate(schema)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	return files
}

func fileNamed(t *testing.T, files []gen.File, path string) string {
	t.Helper()
	for _, f := range files {
		if f.Path == path {
			return string(f.Content)
		}
	}
	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	t.Fatalf("file %s not generated; have %v", path, paths)
	return ""
}

func TestGenerateStruct(t *testing.T) {
	files := generate(t, `
namespace game {
	/// The player roster.
	table Player {
		id: i64 primary_key;
		name: string;
		nickname: string?;
		scores: i32[];
	}
}
`)
	out := fileNamed(t, files, "schema/game.go")
	for _, want := range []string{
		"package schema",
		"// The player roster.",
		"type Player struct {",
		"ID int64",
		"Nickname *string",
		"Scores []int32",
		"func (v *Player) Encode(w *codec.Writer) error {",
		"w.Int64(v.ID)",
		"w.String(v.Name)",
		"func (v *Player) Decode(r *codec.Reader) error {",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestGenerateEnum(t *testing.T) {
	files := generate(t, `
enum Status {
	Unknown;
	Active = 5;
}
table T { id: i64 primary_key; s: Status; }
`)
	out := fileNamed(t, files, "schema/schema.go")
	for _, want := range []string{
		"type Status int32",
		"StatusUnknown Status = 0",
		"StatusActive Status = 5",
		`"strconv"`,
		"w.Ordinal(int32(v.S))",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestGenerateOptionalWireHandling(t *testing.T) {
	files := generate(t, `
table T {
	id: i64 primary_key;
	note: string?;
}
`)
	out := fileNamed(t, files, "schema/schema.go")
	for _, want := range []string{
		"w.Presence(true)",
		"w.Presence(false)",
		"w.String(*v.Note)",
		"if present, err := r.Presence(); err != nil {",
		"v.Note = new(string)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestGenerateInlineEmbed(t *testing.T) {
	files := generate(t, `
table Monster {
	id: i64 primary_key;
	drop_items: embed { item_id: i64; chance: f32; }[];
}
`)
	out := fileNamed(t, files, "schema/schema.go")
	for _, want := range []string{
		"type MonsterDropItems struct {",
		"DropItems []MonsterDropItems",
		"if err := v.DropItems[i].Encode(w); err != nil {",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestGenerateNameCollisionAcrossNamespaces(t *testing.T) {
	files := generate(t, `
namespace game { table Item { id: i64 primary_key; } }
namespace shop { table Item { id: i64 primary_key; } }
`)
	gameOut := fileNamed(t, files, "schema/game.go")
	shopOut := fileNamed(t, files, "schema/shop.go")
	if !strings.Contains(gameOut, "type GameItem struct {") {
		t.Errorf("game namespace missing qualified name:\n%s", gameOut)
	}
	if !strings.Contains(shopOut, "type ShopItem struct {") {
		t.Errorf("shop namespace missing qualified name:\n%s", shopOut)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	src := `
namespace game {
	enum Status { Active; }
	table Player { id: i64 primary_key; s: Status; }
}
`
	a := generate(t, src)
	b := generate(t, src)
	if len(a) != len(b) {
		t.Fatalf("file counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Path != b[i].Path || string(a[i].Content) != string(b[i].Content) {
			t.Errorf("generated file %s differs between runs", a[i].Path)
		}
	}
}
