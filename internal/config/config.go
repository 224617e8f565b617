// Package config holds all framecheck configuration.
// Configuration is loaded from framecheck.yaml in the workspace root,
// with environment variable overrides applied on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the per-project configuration file.
const ConfigFileName = "framecheck.yaml"

// Config holds all framecheck configuration.
type Config struct {
	// Rules configuration
	Rules RulesConfig `yaml:"rules"`

	// Source discovery configuration
	Source SourceConfig `yaml:"source"`

	// Output configuration
	Output OutputConfig `yaml:"output"`

	// Fact cache and baseline storage
	Store StoreConfig `yaml:"store"`

	// Watch mode
	Watch WatchConfig `yaml:"watch"`

	// Diagnostic logging
	Logging LoggingConfig `yaml:"logging"`
}

// RulesConfig controls which rules run and how violations are classified.
type RulesConfig struct {
	// Disabled lists rule IDs (e.g. "FC003") or slugs that are skipped.
	Disabled []string `yaml:"disabled"`

	// Severity maps rule ID/slug to "info", "warning" or "error",
	// overriding the registry default.
	Severity map[string]string `yaml:"severity"`

	// FrameNameHints are variable names (exact or *-globs) treated as
	// dataframes even without an inferable assignment source.
	FrameNameHints []string `yaml:"frame_name_hints"`

	// SchemaFunctions are call names that count as declaring a schema
	// for their dataframe argument (rule FC004).
	SchemaFunctions []string `yaml:"schema_functions"`

	// ExtraFrameAPI extends the recognized frame attribute names so
	// project-specific accessors are not reported by FC001.
	ExtraFrameAPI []string `yaml:"extra_frame_api"`
}

// SourceConfig controls file discovery.
type SourceConfig struct {
	// Exclude holds doublestar glob patterns matched against paths
	// relative to the workspace root (e.g. "migrations/**").
	Exclude []string `yaml:"exclude"`
}

// OutputConfig controls rendering and exit behavior.
type OutputConfig struct {
	Format     string `yaml:"format"` // text, json
	Color      string `yaml:"color"`  // auto, always, never
	FailOnWarn bool   `yaml:"fail_on_warn"`
}

// StoreConfig configures the SQLite fact cache and baseline.
type StoreConfig struct {
	// Path is the database location, relative to the workspace root
	// unless absolute.
	Path string `yaml:"path"`

	// Cache enables per-file fact caching keyed by content hash.
	Cache bool `yaml:"cache"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	DebounceMS int `yaml:"debounce_ms"`
}

// LoggingConfig mirrors logging.Settings.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// ValidFormats lists accepted output formats.
var ValidFormats = []string{"text", "json"}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Rules: RulesConfig{
			FrameNameHints:  []string{"df", "frame", "df_*", "*_df"},
			SchemaFunctions: []string{"validate_schema", "enforce_schema"},
		},
		Source: SourceConfig{
			Exclude: nil,
		},
		Output: OutputConfig{
			Format: "text",
			Color:  "auto",
		},
		Store: StoreConfig{
			Path:  filepath.Join(".framecheck", "framecheck.db"),
			Cache: true,
		},
		Watch: WatchConfig{
			DebounceMS: 500,
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWorkspace loads framecheck.yaml from the workspace root.
func LoadWorkspace(workspace string) (*Config, error) {
	return Load(filepath.Join(workspace, ConfigFileName))
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies FRAMECHECK_* environment variables on top of the
// loaded file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FRAMECHECK_FORMAT"); v != "" {
		c.Output.Format = v
	}
	if v := os.Getenv("FRAMECHECK_COLOR"); v != "" {
		c.Output.Color = v
	}
	if v := os.Getenv("FRAMECHECK_DB"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("FRAMECHECK_NO_CACHE"); v == "1" || strings.EqualFold(v, "true") {
		c.Store.Cache = false
	}
	if v := os.Getenv("FRAMECHECK_DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		c.Logging.DebugMode = true
	}
	if v := os.Getenv("FRAMECHECK_DISABLE"); v != "" {
		for _, id := range strings.Split(v, ",") {
			id = strings.TrimSpace(id)
			if id != "" {
				c.Rules.Disabled = append(c.Rules.Disabled, id)
			}
		}
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	validFormat := false
	for _, f := range ValidFormats {
		if c.Output.Format == f {
			validFormat = true
			break
		}
	}
	if !validFormat {
		return fmt.Errorf("invalid output format: %s (valid: %v)", c.Output.Format, ValidFormats)
	}

	switch c.Output.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("invalid color mode: %s (valid: auto, always, never)", c.Output.Color)
	}

	for id, sev := range c.Rules.Severity {
		switch sev {
		case "info", "warning", "error":
		default:
			return fmt.Errorf("invalid severity %q for rule %s", sev, id)
		}
	}

	if c.Watch.DebounceMS < 0 {
		return fmt.Errorf("watch debounce must be >= 0, got %d", c.Watch.DebounceMS)
	}
	return nil
}

// IsRuleDisabled reports whether a rule (by ID or slug) is disabled.
func (c *Config) IsRuleDisabled(id, slug string) bool {
	for _, d := range c.Rules.Disabled {
		if strings.EqualFold(d, id) || strings.EqualFold(d, slug) {
			return true
		}
	}
	return false
}

// SeverityOverride returns the configured severity for a rule, if any.
func (c *Config) SeverityOverride(id, slug string) (string, bool) {
	for key, sev := range c.Rules.Severity {
		if strings.EqualFold(key, id) || strings.EqualFold(key, slug) {
			return sev, true
		}
	}
	return "", false
}

// StorePath resolves the database path against the workspace root.
func (c *Config) StorePath(workspace string) string {
	if filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(workspace, c.Store.Path)
}
