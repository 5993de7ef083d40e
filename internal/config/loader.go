package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultHost                  = "::"
	DefaultPort                  = 50000
	DefaultPluginsDir            = "./models"
	DefaultMaxMessageBytes       = 1_000_000_000
	DefaultShutdownGraceSeconds  = 30
	DefaultConnectTimeoutSeconds = 300
	DefaultTarget                = "localhost:50000"
	DefaultLogLevel              = "info"
)

// Config holds runtime parameters for the pool owner, its workers and the client.
// Start from Default() and layer sources over it; ApplyDefaults only fills
// fields that are still zero.
type Config struct {
	Host       string `json:"host" yaml:"host" toml:"host"`
	Port       int    `json:"port" yaml:"port" toml:"port"`
	Workers    int    `json:"workers" yaml:"workers" toml:"workers"`
	PluginsDir string `json:"plugins_dir" yaml:"plugins_dir" toml:"plugins_dir"`
	// Per-message limit for both directions.
	MaxMessageBytes int `json:"max_message_bytes" yaml:"max_message_bytes" toml:"max_message_bytes"`
	// Calls handled concurrently by one worker; 0 is unlimited, 1 serializes every call.
	MaxConcurrentCalls int `json:"max_concurrent_calls" yaml:"max_concurrent_calls" toml:"max_concurrent_calls"`
	// Owner admin HTTP address, e.g. 127.0.0.1:8080. Empty disables it.
	AdminAddr string `json:"admin_addr" yaml:"admin_addr" toml:"admin_addr"`
	// Worker i serves /metrics on MetricsPort+i. 0 disables.
	MetricsPort          int      `json:"metrics_port" yaml:"metrics_port" toml:"metrics_port"`
	LogLevel             string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	ShutdownGraceSeconds int      `json:"shutdown_grace_seconds" yaml:"shutdown_grace_seconds" toml:"shutdown_grace_seconds"`
	CORSEnabled          bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins          []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`

	// Client side.
	ConnectTimeoutSeconds int    `json:"connect_timeout_seconds" yaml:"connect_timeout_seconds" toml:"connect_timeout_seconds"`
	Target                string `json:"target" yaml:"target" toml:"target"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	err := LoadInto(path, &cfg)
	return cfg, err
}

// LoadInto decodes a configuration file over cfg. Keys absent from the file
// keep their current values, so cfg can be seeded with Default().
func LoadInto(path string, cfg *Config) error {
	if path == "" {
		return fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return Unmarshal(filepath.Ext(path), b, cfg)
}

// Unmarshal decodes b into v according to a file extension (with or without the dot).
// Plugin settings files reuse it.
func Unmarshal(ext string, b []byte, v any) error {
	switch ext = strings.TrimPrefix(strings.ToLower(ext), "."); ext {
	case "yaml", "yml":
		return yaml.Unmarshal(b, v)
	case "json":
		return json.Unmarshal(b, v)
	case "toml":
		return toml.Unmarshal(b, v)
	default:
		return fmt.Errorf("unsupported config extension: .%s", ext)
	}
}

// DefaultWorkers is half the available processing units, at least one.
func DefaultWorkers() int {
	if n := runtime.NumCPU() / 2; n > 0 {
		return n
	}
	return 1
}

// Default returns a Config with every default applied.
func Default() Config {
	var c Config
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills unspecified fields.
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers()
	}
	if c.PluginsDir == "" {
		c.PluginsDir = DefaultPluginsDir
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.ShutdownGraceSeconds <= 0 {
		c.ShutdownGraceSeconds = DefaultShutdownGraceSeconds
	}
	if c.ConnectTimeoutSeconds <= 0 {
		c.ConnectTimeoutSeconds = DefaultConnectTimeoutSeconds
	}
	if c.Target == "" {
		c.Target = DefaultTarget
	}
}

// ApplyEnv overrides fields from TINYSERVE_* variables found through lookup
// (os.LookupEnv in production).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	str("TINYSERVE_HOST", &c.Host)
	str("TINYSERVE_PLUGINS_DIR", &c.PluginsDir)
	str("TINYSERVE_ADMIN_ADDR", &c.AdminAddr)
	str("TINYSERVE_LOG_LEVEL", &c.LogLevel)
	str("TINYSERVE_TARGET", &c.Target)
	for key, dst := range map[string]*int{
		"TINYSERVE_PORT":                 &c.Port,
		"TINYSERVE_WORKERS":              &c.Workers,
		"TINYSERVE_METRICS_PORT":         &c.MetricsPort,
		"TINYSERVE_MAX_CONCURRENT_CALLS": &c.MaxConcurrentCalls,
		"TINYSERVE_CONNECT_TIMEOUT":      &c.ConnectTimeoutSeconds,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate rejects configurations the pool cannot run with.
func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if c.MetricsPort < 0 || c.MetricsPort+c.Workers > 65536 {
		return fmt.Errorf("metrics port out of range: %d", c.MetricsPort)
	}
	if strings.TrimSpace(c.PluginsDir) == "" {
		return fmt.Errorf("plugins dir is empty")
	}
	if c.MaxConcurrentCalls < 0 {
		return fmt.Errorf("max concurrent calls must not be negative")
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("max message bytes must be positive, got %d", c.MaxMessageBytes)
	}
	if c.ShutdownGraceSeconds < 0 {
		return fmt.Errorf("shutdown grace must not be negative, got %ds", c.ShutdownGraceSeconds)
	}
	return nil
}

// ValidateClient rejects settings a client cannot dial with.
func (c Config) ValidateClient() error {
	if strings.TrimSpace(c.Target) == "" {
		return fmt.Errorf("target is empty")
	}
	if c.ConnectTimeoutSeconds <= 0 {
		return fmt.Errorf("connect timeout must be positive, got %ds", c.ConnectTimeoutSeconds)
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("max message bytes must be positive, got %d", c.MaxMessageBytes)
	}
	return nil
}
