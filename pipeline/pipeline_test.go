package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tabula/config"
	"tabula/core/diag"
	"tabula/core/resolver"
)

const playerSchema = `
namespace game {
	enum Status { Active; Banned; }
	table Player {
		id: i64 primary_key;
		name: string;
		status: Status;
	}
}
`

func TestCompileClean(t *testing.T) {
	res, err := Compile(resolver.MapLoader{"main.schema": playerSchema}, "main.schema")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if !res.OK() {
		t.Fatalf("Compile() diagnostics = %v, want none", res.Diags)
	}
	if res.Schema == nil {
		t.Fatal("Schema = nil, want built IR")
	}
	if res.Symbols == nil {
		t.Fatal("Symbols = nil, want index")
	}
	if _, ok := res.Schema.TableByFQN("game.Player"); !ok {
		t.Error("IR missing game.Player")
	}
}

func TestCompileWithErrors(t *testing.T) {
	res, err := Compile(resolver.MapLoader{
		"main.schema": "table T { id: i64 primary_key; ref: Missing; }",
	}, "main.schema")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if res.OK() {
		t.Fatal("OK() = true, want diagnostics")
	}
	if res.Schema != nil {
		t.Error("Schema built despite errors")
	}
	found := false
	for _, d := range res.Diags {
		if d.Code == diag.CodeUnresolvedType {
			found = true
		}
	}
	if !found {
		t.Errorf("diagnostics = %v, want unresolved_type", res.Diags)
	}
}

func testRunner(t *testing.T, cfg *config.Config) *Runner {
	t.Helper()
	return NewRunner(cfg, zerolog.Nop())
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Fatalf("restore wd: %v", err)
		}
	})
}

func writeSchema(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write schema: %v", err)
	}
	return path
}

func TestRunnerBuildWritesTargets(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeSchema(t, dir, "main.schema", playerSchema)

	cfg := config.Default()
	cfg.Output.Dir = "out"
	cfg.Targets = []config.TargetConfig{
		{Language: "go"},
		{Language: "csharp", Dir: "cs"},
		{Language: "mermaid", Dir: "diagram"},
	}

	res, err := testRunner(t, cfg).Build("main.schema")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !res.OK() {
		t.Fatalf("Build() diagnostics = %v", res.Diags)
	}

	for _, path := range []string{
		"out/schema/game.go",
		"out/cs/Game.cs",
		"out/diagram/schema.mmd",
	} {
		if _, err := os.Stat(filepath.FromSlash(path)); err != nil {
			t.Errorf("expected output %s: %v", path, err)
		}
	}
}

func TestRunnerBuildRefusesOnErrors(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeSchema(t, dir, "main.schema", "table T { id: i64 primary_key; ref: Missing; }")

	cfg := config.Default()
	cfg.Output.Dir = "out"

	res, err := testRunner(t, cfg).Build("main.schema")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if res.OK() {
		t.Fatal("OK() = true, want errors")
	}
	if _, err := os.Stat("out"); !os.IsNotExist(err) {
		t.Error("output directory created despite schema errors")
	}
}

func TestRunnerCleanOutput(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeSchema(t, dir, "main.schema", playerSchema)

	stale := filepath.Join("out", "stale.txt")
	if err := os.MkdirAll("out", 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Output.Dir = "out"
	cfg.Output.Clean = true

	if _, err := testRunner(t, cfg).Build("main.schema"); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale file survived clean build")
	}
}

func TestRunnerDebugDumps(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeSchema(t, dir, "main.schema", playerSchema)

	cfg := config.Default()
	cfg.Output.Dir = "out"
	cfg.Output.Debug = true

	if _, err := testRunner(t, cfg).Build("main.schema"); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	for _, name := range []string{"out/ast.json", "out/ir.json"} {
		if _, err := os.Stat(filepath.FromSlash(name)); err != nil {
			t.Errorf("expected debug dump %s: %v", name, err)
		}
	}
}

func TestRunnerBuildTypeOverride(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeSchema(t, dir, "main.schema", playerSchema)

	cfg := config.Default()
	cfg.Output.Dir = "out"
	cfg.Targets = []config.TargetConfig{
		{Language: "go", Types: map[string]string{"i64": "PlayerID"}},
	}

	if _, err := testRunner(t, cfg).Build("main.schema"); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	data, err := os.ReadFile(filepath.FromSlash("out/schema/game.go"))
	if err != nil {
		t.Fatal(err)
	}
	if want := "ID PlayerID"; !strings.Contains(string(data), want) {
		t.Errorf("generated Go missing %q:\n%s", want, data)
	}
}

func TestWatchInitialBuild(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeSchema(t, dir, "main.schema", playerSchema)

	cfg := config.Default()
	cfg.Output.Dir = "out"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The initial build runs before the event loop, so a cancelled context
	// still produces output once.
	if err := testRunner(t, cfg).Watch(ctx, "main.schema"); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if _, err := os.Stat(filepath.FromSlash("out/schema/game.go")); err != nil {
		t.Errorf("initial build missing output: %v", err)
	}
}

func TestWatchRebuildsOnChange(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeSchema(t, dir, "main.schema", playerSchema)

	cfg := config.Default()
	cfg.Output.Dir = "out"
	cfg.Watch.Debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- testRunner(t, cfg).Watch(ctx, "main.schema") }()

	// Wait for the initial build before touching the file.
	deadline := time.Now().Add(5 * time.Second)
	outPath := filepath.FromSlash("out/schema/game.go")
	for {
		if _, err := os.Stat(outPath); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("initial build did not produce output")
		}
		time.Sleep(10 * time.Millisecond)
	}

	writeSchema(t, dir, "main.schema", playerSchema+`
namespace game {
	table Guild { id: i64 primary_key; }
}
`)

	guildPath := filepath.FromSlash("out/schema/game.go")
	for {
		data, err := os.ReadFile(guildPath)
		if err == nil && strings.Contains(string(data), "type Guild struct") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("rebuild did not pick up new table")
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
}
