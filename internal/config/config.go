// Package config loads the daemon's YAML configuration file (spec §6 is
// silent on a config format beyond "the configuration loading... out of
// core scope"; SPEC_FULL.md §10 fixes it to YAML via gopkg.in/yaml.v3,
// nested-struct style, following the teacher's internal/config/config.go).
//
// Out of core scope per spec.md §1 ("all CLI flag parsing, config
// loading... are explicitly out of scope for the core loop's
// correctness"), but the daemon still needs something to construct its
// providers, stores, and HTTP surface from, so a minimal loader lives
// here.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the finch daemon.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Memory     MemoryConfig     `yaml:"memory"`
	Window     WindowConfig     `yaml:"window"`
	Permission PermissionConfig `yaml:"permission"`
	Backlog    BacklogConfig    `yaml:"backlog"`
	Node       NodeConfig       `yaml:"node"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig configures the daemon's HTTP surface (spec §6 "Daemon
// HTTP surface").
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ProvidersConfig configures each upstream LLM driver and the fallback
// chain ordering between them (spec §4.4).
type ProvidersConfig struct {
	DefaultProvider string                   `yaml:"default_provider"`
	FallbackChain   []string                 `yaml:"fallback_chain"`
	Local           *LocalProviderConfig     `yaml:"local"`
	Entries         map[string]ProviderEntry `yaml:"entries"`
	CheapModel      string                   `yaml:"cheap_model"`
	ComplexModel    string                   `yaml:"complex_model"`
	MaxRetries      int                      `yaml:"max_retries"`
	RequestsPerSec  float64                  `yaml:"requests_per_second"`
	Burst           int                      `yaml:"burst"`
}

// LocalProviderConfig configures the optional local-preferred inference
// backend (spec §1 "optionally preferring a local inference backend";
// SPEC_FULL.md §12's teacher_session.rs-derived local-first routing).
type LocalProviderConfig struct {
	Enabled      bool   `yaml:"enabled"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
}

// ProviderEntry configures a single cloud provider driver.
type ProviderEntry struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	Region       string `yaml:"region"` // bedrock
}

// MemoryConfig configures the memory store and embedding engine (spec
// §4.1-4.3).
type MemoryConfig struct {
	Path          string `yaml:"path"`
	Dimension     int    `yaml:"dimension"`
	Branching     int    `yaml:"branching"`
	MaxDepth      int    `yaml:"max_depth"`
	UseNeural     bool   `yaml:"use_neural"`
}

// WindowConfig configures the conversation window manager (spec §4.5).
type WindowConfig struct {
	MaxMessages       int     `yaml:"max_messages"`
	MaxTokens         int     `yaml:"max_tokens"`
	AutoCompact       bool    `yaml:"auto_compact"`
	ContextLimit      int     `yaml:"context_limit"`
	ThresholdFraction float64 `yaml:"threshold_fraction"`
	KeepRecent        int     `yaml:"keep_recent"`
}

// PermissionConfig configures the permission store (spec §4.7/§6
// "versioned JSON document with two arrays").
type PermissionConfig struct {
	Path           string `yaml:"path"`
	DefaultRule    string `yaml:"default_rule"` // "allow", "deny", "ask"
	Interactive    bool   `yaml:"interactive"`
}

// BacklogConfig configures the persisted task backlog document (spec §3
// "Backlog task").
type BacklogConfig struct {
	Path           string        `yaml:"path"`
	ReapMaxAge     time.Duration `yaml:"reap_max_age"`
}

// NodeConfig configures the node identity file (spec §6 "a small JSON
// file ({id, name, version}), generated on first run and never
// rewritten").
type NodeConfig struct {
	IdentityPath string `yaml:"identity_path"`
	Name         string `yaml:"name"`
}

// LoggingConfig configures structured logging (SPEC_FULL.md §10).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses path, applies environment variable overrides,
// fills defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := decoder.Decode(new(struct{})); err != io.EOF {
		return nil, fmt.Errorf("config: %s must contain a single YAML document", path)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8742
	}

	if cfg.Providers.DefaultProvider == "" {
		cfg.Providers.DefaultProvider = "anthropic"
	}
	if cfg.Providers.MaxRetries == 0 {
		cfg.Providers.MaxRetries = 2
	}
	if cfg.Providers.RequestsPerSec == 0 {
		cfg.Providers.RequestsPerSec = 4
	}
	if cfg.Providers.Burst == 0 {
		cfg.Providers.Burst = 8
	}
	if cfg.Providers.CheapModel == "" {
		cfg.Providers.CheapModel = "claude-haiku-4-5"
	}
	if cfg.Providers.ComplexModel == "" {
		cfg.Providers.ComplexModel = "claude-sonnet-4-5"
	}

	if cfg.Memory.Path == "" {
		cfg.Memory.Path = "finch-memory.db"
	}
	if cfg.Memory.Dimension == 0 {
		cfg.Memory.Dimension = 384
	}
	if cfg.Memory.Branching == 0 {
		cfg.Memory.Branching = 8
	}
	if cfg.Memory.MaxDepth == 0 {
		cfg.Memory.MaxDepth = 6
	}

	if cfg.Window.MaxMessages == 0 {
		cfg.Window.MaxMessages = 60
	}
	if cfg.Window.MaxTokens == 0 {
		cfg.Window.MaxTokens = 8000
	}
	if cfg.Window.ContextLimit == 0 {
		cfg.Window.ContextLimit = 180000
	}
	if cfg.Window.ThresholdFraction == 0 {
		cfg.Window.ThresholdFraction = 0.8
	}
	if cfg.Window.KeepRecent == 0 {
		cfg.Window.KeepRecent = 10
	}

	if cfg.Permission.Path == "" {
		cfg.Permission.Path = "finch-permissions.json"
	}
	if cfg.Permission.DefaultRule == "" {
		cfg.Permission.DefaultRule = "ask"
	}

	if cfg.Backlog.Path == "" {
		cfg.Backlog.Path = "finch-backlog.json"
	}
	if cfg.Backlog.ReapMaxAge == 0 {
		cfg.Backlog.ReapMaxAge = 24 * time.Hour
	}

	if cfg.Node.IdentityPath == "" {
		cfg.Node.IdentityPath = "finch-node.json"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// envKeys maps each recognized provider name to the environment variable
// spec §6 names for it ("the set of API-key variables...").
var envKeys = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"grok":      "GROK_API_KEY",
	"xai":       "XAI_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"mistral":   "MISTRAL_API_KEY",
	"groq":      "GROQ_API_KEY",
}

func applyEnvOverrides(cfg *Config) {
	if cfg.Providers.Entries == nil {
		cfg.Providers.Entries = make(map[string]ProviderEntry)
	}
	for name, envVar := range envKeys {
		value := strings.TrimSpace(os.Getenv(envVar))
		if value == "" {
			continue
		}
		entry := cfg.Providers.Entries[name]
		entry.APIKey = value
		cfg.Providers.Entries[name] = entry
	}

	if v := strings.TrimSpace(os.Getenv("FINCH_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("FINCH_DEBUG")); v != "" {
		if debug, err := strconv.ParseBool(v); err == nil && debug {
			cfg.Logging.Level = "debug"
		}
	}
	if v := strings.TrimSpace(os.Getenv("FINCH_HTTP_PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

// ValidationError reports every configuration problem found in one pass,
// mirroring the teacher's ConfigValidationError shape.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config: validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validate(cfg *Config) error {
	var issues []string

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		issues = append(issues, "server.port must be between 0 and 65535")
	}
	if cfg.Memory.Dimension <= 0 {
		issues = append(issues, "memory.dimension must be > 0")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Permission.DefaultRule)) {
	case "allow", "deny", "ask":
	default:
		issues = append(issues, `permission.default_rule must be "allow", "deny", or "ask"`)
	}
	if cfg.Window.ThresholdFraction <= 0 || cfg.Window.ThresholdFraction > 1 {
		issues = append(issues, "window.threshold_fraction must be in (0, 1]")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// ConfigDir returns the directory path should live in, creating it if
// necessary. Used by callers that resolve relative store paths against a
// well-known config directory.
func ConfigDir(base string) (string, error) {
	dir := filepath.Dir(base)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("config: creating %s: %w", dir, err)
	}
	return dir, nil
}
