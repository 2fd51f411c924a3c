package csharp

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

func TestGenerateClassWithAttributes(t *testing.T) {
	files := generate(t, `
namespace game {
	table Player {
		id: i64 primary_key;
		name: string max_length(32) unique;
		level: i32 range(1, 99);
		motto: string?;
	}
}
`)
	out := fileNamed(t, files, "Game.cs")
	for _, want := range []string{
		"namespace Schema.Game",
		"public class Player",
		"[Key]",
		"public long Id { get; set; }",
		"[MaxLength(32)]",
		"[Index(IsUnique = true)]",
		"[Range(1, 99)]",
		"public string? Motto { get; set; }",
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
	out := fileNamed(t, files, "Schema.cs")
	for _, want := range []string{
		"public enum Status",
		"Unknown = 0,",
		"Active = 5",
		"public Status S { get; set; }",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestGenerateNavigationComments(t *testing.T) {
	files := generate(t, `
table Skill { id: u32 primary_key; }
table PlayerSkill {
	id: u32 primary_key;
	skill_id: u32 foreign_key(Skill.id, as: users);
}
`)
	out := fileNamed(t, files, "Schema.cs")
	if !strings.Contains(out, "skill_id -> Skill.Id (1)") {
		t.Errorf("output missing forward navigation comment:\n%s", out)
	}
	if !strings.Contains(out, "users: * of PlayerSkill (*)") {
		t.Errorf("output missing reverse navigation comment:\n%s", out)
	}
}

func TestGenerateNestedEmbedCollision(t *testing.T) {
	files := generate(t, `
namespace game {
	table Player {
		id: i64 primary_key;
		stats: Stats;
		embed Stats { health: i32; mana: i32; }
	}
	table Monster {
		id: i64 primary_key;
		stats: Stats;
		embed Stats { health: i32; armor: i32; }
	}
}
`)
	out := fileNamed(t, files, "Game.cs")
	if got := strings.Count(out, "public class Stats"); got != 0 {
		t.Errorf("output declares %d classes named Stats, want flattened names:\n%s", got, out)
	}
	for _, want := range []string{
		"public class PlayerStats",
		"public class MonsterStats",
		"public PlayerStats Stats { get; set; }",
		"public MonsterStats Stats { get; set; }",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestGenerateInlineEmbedClass(t *testing.T) {
	files := generate(t, `
table Monster {
	id: i64 primary_key;
	drop_items: embed { item_id: i64; chance: f32; }[];
}
`)
	out := fileNamed(t, files, "Schema.cs")
	for _, want := range []string{
		"public class MonsterDropItems",
		"public List<MonsterDropItems> DropItems { get; set; }",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
