package mermaid

import (
	"strings"
	"testing"

	"tabula/core/ir"
	"tabula/core/resolver"
	"tabula/core/validator"
)

func render(t *testing.T, src string) string {
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
	files, err := New().Generate(schema)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(files) != 1 || files[0].Path != "schema.mmd" {
		t.Fatalf("files = %v, want one schema.mmd", files)
	}
	return string(files[0].Content)
}

func TestDiagramClasses(t *testing.T) {
	out := render(t, `
namespace game {
	enum Status { Active; Banned; }
	table Player {
		id: i64 primary_key;
		status: Status;
	}
}
`)
	for _, want := range []string{
		"classDiagram",
		"class game_Player {",
		"class game_Status {",
		"<<enumeration>>",
		"i64 id «PK»",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("diagram missing %q:\n%s", want, out)
		}
	}
}

func TestDiagramReverseEdge(t *testing.T) {
	out := render(t, `
table Skill { id: u32 primary_key; }
table PlayerSkill {
	id: u32 primary_key;
	skill_id: u32 foreign_key(Skill.id, as: users);
}
`)
	if !strings.Contains(out, `Skill "1" -- "*" PlayerSkill : users`) {
		t.Errorf("diagram missing reverse edge labeled users:\n%s", out)
	}
}

func TestDiagramManyToMany(t *testing.T) {
	out := render(t, `
table Player { id: u32 primary_key; }
table Skill { id: u32 primary_key; }
table PlayerSkill {
	id: u32 primary_key;
	player_id: u32 foreign_key(Player.id);
	skill_id: u32 foreign_key(Skill.id);
}
`)
	if !strings.Contains(out, `Player "*" -- "*" Skill : via PlayerSkill`) {
		t.Errorf("diagram missing many-to-many line:\n%s", out)
	}
	// The junction still renders as a class of its own.
	if !strings.Contains(out, "class PlayerSkill {") {
		t.Errorf("diagram missing junction class:\n%s", out)
	}
	if !strings.Contains(out, `Player "1" -- "*" PlayerSkill`) {
		t.Errorf("diagram missing junction-side edge:\n%s", out)
	}
}

func TestDiagramInlineEmbedHidden(t *testing.T) {
	out := render(t, `
table Monster {
	id: i64 primary_key;
	drop_items: embed { item_id: i64; chance: f32; }[];
}
`)
	if strings.Contains(out, "<<embed>>") {
		t.Errorf("inline embed rendered as standalone class:\n%s", out)
	}
	if !strings.Contains(out, "Monster_drop_items[] drop_items") {
		t.Errorf("field not typed by synthetic inline shape:\n%s", out)
	}
}

func TestDiagramDeterministic(t *testing.T) {
	src := `
namespace game {
	table Player { id: i64 primary_key; }
	table Guild { id: i64 primary_key; leader: i64 foreign_key(Player.id); }
}
`
	if a, b := render(t, src), render(t, src); a != b {
		t.Error("two renders of the same schema differ")
	}
}
