// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure, loaded from tabula.yaml.
type Config struct {
	// Entry is the root .schema file compilation starts from. A positional
	// CLI argument overrides it.
	Entry   string         `yaml:"entry"`
	Output  OutputConfig   `yaml:"output"`
	Targets []TargetConfig `yaml:"targets"`
	Server  ServerConfig   `yaml:"server"`
	Logging LoggingConfig  `yaml:"logging"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Watch   WatchConfig    `yaml:"watch"`
}

// OutputConfig configures where generated files land.
type OutputConfig struct {
	Dir string `yaml:"dir"`
	// Clean removes the output directory before generating.
	Clean bool `yaml:"clean"`
	// Debug additionally writes AST and IR dumps next to the output.
	Debug bool `yaml:"debug"`
}

// TargetConfig configures one backend invocation.
type TargetConfig struct {
	Language string `yaml:"language"` // "go", "csharp" or "mermaid"
	// Dir is the per-target output directory, relative to output.dir.
	// Empty means output.dir itself.
	Dir string `yaml:"dir,omitempty"`
	// Package names the generated Go package (go target only).
	Package string `yaml:"package,omitempty"`
	// CodecImport is the import path generated Encode/Decode methods use
	// (go target only).
	CodecImport string `yaml:"codec_import,omitempty"`
	// Namespace is the root C# namespace (csharp target only).
	Namespace string `yaml:"namespace,omitempty"`
	// Types overrides the default primitive mapping per schema type name,
	// e.g. {i64: "MyInt64"}.
	Types map[string]string `yaml:"types,omitempty"`
}

// ServerConfig configures the diagnostics HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// MaxDocuments caps concurrently open document sessions.
	MaxDocuments int `yaml:"max_documents"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures the Prometheus endpoint on the server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	// Debounce is how long to coalesce file events before recompiling.
	Debounce time.Duration `yaml:"debounce"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no config file exists:
// all defaults plus TABULA_* environment overrides.
func Default() *Config {
	var cfg Config
	applyEnvOverrides(&cfg)
	setDefaults(&cfg)
	return &cfg
}

// LoadOrDefault loads the file when it exists and falls back to Default
// otherwise. Most commands work fine without a tabula.yaml.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return Default(), nil
}

// applyEnvOverrides applies TABULA_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TABULA_ENTRY"); v != "" {
		cfg.Entry = v
	}
	if v := os.Getenv("TABULA_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}

	if v := os.Getenv("TABULA_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("TABULA_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TABULA_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("TABULA_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	if v := os.Getenv("TABULA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TABULA_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("TABULA_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("TABULA_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "gen"
	}

	if len(cfg.Targets) == 0 {
		cfg.Targets = []TargetConfig{{Language: "go"}}
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8650
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.MaxDocuments == 0 {
		cfg.Server.MaxDocuments = 128
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 250 * time.Millisecond
	}
}

func validate(cfg *Config) error {
	validLanguages := map[string]bool{"go": true, "csharp": true, "mermaid": true}
	seen := make(map[string]bool)
	for i, tgt := range cfg.Targets {
		if !validLanguages[tgt.Language] {
			return fmt.Errorf("targets[%d].language must be one of: go, csharp, mermaid; got %q", i, tgt.Language)
		}
		key := tgt.Language + "/" + tgt.Dir
		if seen[key] {
			return fmt.Errorf("targets[%d] duplicates language %q in directory %q", i, tgt.Language, tgt.Dir)
		}
		seen[key] = true
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", cfg.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error; got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	return nil
}
