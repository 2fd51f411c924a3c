package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tabula.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
entry: schema/main.schema
output:
  dir: build/gen
  clean: true
targets:
  - language: go
    package: model
    types:
      i64: MyInt64
  - language: csharp
    dir: cs
    namespace: Game.Model
  - language: mermaid
server:
  host: 0.0.0.0
  port: 9000
  read_timeout: 10s
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Entry != "schema/main.schema" {
		t.Errorf("Entry = %q, want schema/main.schema", cfg.Entry)
	}
	if cfg.Output.Dir != "build/gen" {
		t.Errorf("Output.Dir = %q, want build/gen", cfg.Output.Dir)
	}
	if !cfg.Output.Clean {
		t.Error("Output.Clean = false, want true")
	}
	if len(cfg.Targets) != 3 {
		t.Fatalf("len(Targets) = %d, want 3", len(cfg.Targets))
	}
	if cfg.Targets[0].Package != "model" {
		t.Errorf("Targets[0].Package = %q, want model", cfg.Targets[0].Package)
	}
	if cfg.Targets[0].Types["i64"] != "MyInt64" {
		t.Errorf("Targets[0].Types[i64] = %q, want MyInt64", cfg.Targets[0].Types["i64"])
	}
	if cfg.Targets[1].Namespace != "Game.Model" {
		t.Errorf("Targets[1].Namespace = %q, want Game.Model", cfg.Targets[1].Namespace)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 10s", cfg.Server.ReadTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `entry: main.schema`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Output.Dir != "gen" {
		t.Errorf("Output.Dir = %q, want gen", cfg.Output.Dir)
	}
	if len(cfg.Targets) != 1 || cfg.Targets[0].Language != "go" {
		t.Errorf("Targets = %v, want default go target", cfg.Targets)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Server.Port != 8650 {
		t.Errorf("Server.Port = %d, want 8650", cfg.Server.Port)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "console" {
		t.Errorf("Logging = %+v, want info/console", cfg.Logging)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want /metrics", cfg.Metrics.Path)
	}
	if cfg.Watch.Debounce != 250*time.Millisecond {
		t.Errorf("Watch.Debounce = %v, want 250ms", cfg.Watch.Debounce)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unknown language",
			content: "targets:\n  - language: rust\n",
			wantErr: "targets[0].language",
		},
		{
			name:    "duplicate target",
			content: "targets:\n  - language: go\n  - language: go\n",
			wantErr: "duplicates language",
		},
		{
			name:    "bad port",
			content: "server:\n  port: 99999\n",
			wantErr: "server.port",
		},
		{
			name:    "bad log level",
			content: "logging:\n  level: verbose\n",
			wantErr: "logging.level",
		},
		{
			name:    "bad log format",
			content: "logging:\n  format: xml\n",
			wantErr: "logging.format",
		},
		{
			name:    "bad yaml",
			content: "targets: [}",
			wantErr: "parse config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")

	t.Setenv("TABULA_SERVER_PORT", "9100")
	t.Setenv("TABULA_SERVER_HOST", "0.0.0.0")
	t.Setenv("TABULA_LOG_LEVEL", "warn")
	t.Setenv("TABULA_METRICS_ENABLED", "yes")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want env override 9100", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Server.Port != 8650 {
		t.Errorf("Server.Port = %d, want default 8650", cfg.Server.Port)
	}

	path := writeConfig(t, "server:\n  port: 7000\n")
	cfg, err = LoadOrDefault(path)
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000 from file", cfg.Server.Port)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load() error = nil, want error for missing file")
	}
}
