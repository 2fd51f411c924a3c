package dataload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tabula/core/ir"
	"tabula/core/resolver"
	"tabula/core/validator"
)

func playerTable(t *testing.T, pattern string) *ir.Table {
	t.Helper()
	src := `
@load(type: "Map", path: "` + pattern + `")
table Player {
	id: i64 primary_key;
	name: string;
}
`
	m, diags := resolver.Resolve(resolver.MapLoader{"test.schema": src}, "test.schema")
	if diags.HasErrors() {
		t.Fatalf("Resolve() diagnostics = %v", diags)
	}
	if vd := validator.Validate(m); vd.HasErrors() {
		t.Fatalf("Validate() diagnostics = %v", vd)
	}
	built, err := ir.Build(m)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	h, ok := built.TableByFQN("Player")
	if !ok {
		t.Fatal("Player missing from IR")
	}
	return built.Table(h)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestMapLoadConcatenatesInOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "players_b.csv", "id,name\n3,carol\n")
	writeFile(t, dir, "Players_a.csv", "id,name\n1,alice\n2,bob\n")

	table := playerTable(t, "*.csv")
	src := &MapSource{Root: dir}
	rows, err := src.Load(context.Background(), table)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("row count = %d, want 3", len(rows))
	}
	// Case-insensitive alphabetical order: Players_a.csv before players_b.csv.
	wantIDs := []string{"1", "2", "3"}
	for i, want := range wantIDs {
		if rows[i]["id"] != want {
			t.Errorf("rows[%d][id] = %q, want %q", i, rows[i]["id"], want)
		}
	}
}

func TestMapLoadDuplicateKeyAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "players_a.csv", "id,name\n7,alice\n")
	writeFile(t, dir, "players_b.csv", "id,name\n7,bob\n")

	table := playerTable(t, "players_*.csv")
	src := &MapSource{Root: dir}
	_, err := src.Load(context.Background(), table)

	var dup *DuplicateKeyError
	if !errors.As(err, &dup) {
		t.Fatalf("Load() error = %v, want *DuplicateKeyError", err)
	}
	if dup.Key != "7" {
		t.Errorf("key = %q, want %q", dup.Key, "7")
	}
	if !strings.HasSuffix(dup.First, "players_a.csv") {
		t.Errorf("first path = %q, want players_a.csv", dup.First)
	}
	if !strings.HasSuffix(dup.Second, "players_b.csv") {
		t.Errorf("second path = %q, want players_b.csv", dup.Second)
	}
}

func TestMapLoadDuplicateKeyWithinFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "players.csv", "id,name\n1,alice\n1,bob\n")

	table := playerTable(t, "players.csv")
	src := &MapSource{Root: dir}
	_, err := src.Load(context.Background(), table)

	var dup *DuplicateKeyError
	if !errors.As(err, &dup) {
		t.Fatalf("Load() error = %v, want *DuplicateKeyError", err)
	}
}

func TestMapLoadDirectoryPattern(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "players")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, sub, "a.csv", "id,name\n1,alice\n")
	writeFile(t, sub, "notes.txt", "ignored")

	table := playerTable(t, "players")
	src := &MapSource{Root: dir}
	rows, err := src.Load(context.Background(), table)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(rows) != 1 || rows[0]["name"] != "alice" {
		t.Errorf("rows = %v, want one alice row", rows)
	}
}

func TestMapLoadNoMatches(t *testing.T) {
	table := playerTable(t, "missing_*.csv")
	src := &MapSource{Root: t.TempDir()}
	if _, err := src.Load(context.Background(), table); err == nil {
		t.Error("Load() error = nil, want match failure")
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	table := playerTable(t, "unused.csv")
	mem := NewMemorySource()
	ctx := context.Background()

	in := []Row{{"id": "1", "name": "alice"}, {"id": "2", "name": "bob"}}
	if err := mem.Save(ctx, table, in); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	out, err := mem.Load(ctx, table)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(out) != 2 || out[0]["name"] != "alice" {
		t.Errorf("Load() = %v, want saved rows", out)
	}

	// Mutating the loaded copy must not leak into the store.
	out[0]["name"] = "mallory"
	again, _ := mem.Load(ctx, table)
	if again[0]["name"] != "alice" {
		t.Errorf("store mutated through loaded copy: %v", again[0])
	}
}
