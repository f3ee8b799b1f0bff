// Package config loads and validates the application configuration from
// layered JSON files with environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/c360/botapi/errors"
)

// Storage mode constants
const (
	StorageModeMemory = "memory" // In-process maps, lost on restart
	StorageModeKV     = "kv"     // NATS JetStream key-value buckets
)

// Bot engine constants
const (
	EngineOpenAI  = "openai"
	EngineReflect = "reflect"
)

// Config represents the complete application configuration
type Config struct {
	Server  ServerConfig  `json:"server"`
	Storage StorageConfig `json:"storage"`
	Bot     BotConfig     `json:"bot"`
	Metrics MetricsConfig `json:"metrics"`
	Health  HealthConfig  `json:"health"`
}

// ServerConfig configures the API HTTP server
type ServerConfig struct {
	Address         string   `json:"address"`           // bind address, e.g. ":8080"
	GraphQLPath     string   `json:"graphql_path"`      // GraphQL endpoint mount point
	Playground      bool     `json:"playground"`        // serve the GraphQL playground on GET
	AllowedOrigins  []string `json:"allowed_origins"`   // CORS allowlist, empty allows none
	MaxRequestBytes int64    `json:"max_request_bytes"` // request body size limit
	ReadTimeout     Duration `json:"read_timeout"`
	WriteTimeout    Duration `json:"write_timeout"`
	ShutdownTimeout Duration `json:"shutdown_timeout"`
}

// StorageConfig selects and configures the store backend
type StorageConfig struct {
	Mode          string   `json:"mode"` // memory | kv
	NATSURL       string   `json:"nats_url"`
	UserBucket    string   `json:"user_bucket"`
	MessageBucket string   `json:"message_bucket"`
	CacheSize     int      `json:"cache_size"`
	ConnectWait   Duration `json:"connect_wait"`
}

// BotConfig configures the response engine
type BotConfig struct {
	Engine       string   `json:"engine"` // openai | reflect
	BaseURL      string   `json:"base_url"`
	APIKey       string   `json:"api_key"`
	Model        string   `json:"model"`
	SystemPrompt string   `json:"system_prompt"`
	Timeout      Duration `json:"timeout"`
	MaxHistory   int      `json:"max_history"`
}

// MetricsConfig configures the standalone Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// HealthConfig configures the health endpoint
type HealthConfig struct {
	Enabled bool `json:"enabled"`
}

// Duration is a time.Duration that marshals as a string like "30s".
type Duration time.Duration

// UnmarshalJSON accepts either a duration string or a number of
// nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration type %T", v)
	}
}

// MarshalJSON renders the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the baseline configuration before any layers apply.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			GraphQLPath:     "/",
			Playground:      true,
			MaxRequestBytes: 1 << 20,
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Storage: StorageConfig{
			Mode:          StorageModeMemory,
			NATSURL:       "nats://localhost:4222",
			UserBucket:    "botapi_users",
			MessageBucket: "botapi_messages",
			CacheSize:     128,
			ConnectWait:   Duration(10 * time.Second),
		},
		Bot: BotConfig{
			Engine:     EngineReflect,
			Model:      "gpt-4o-mini",
			Timeout:    Duration(30 * time.Second),
			MaxHistory: 20,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Health: HealthConfig{
			Enabled: true,
		},
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
			"server address cannot be empty")
	}
	if !strings.HasPrefix(c.Server.GraphQLPath, "/") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
			"graphql path must start with /")
	}
	if c.Server.MaxRequestBytes <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
			"max request bytes must be positive")
	}

	switch c.Storage.Mode {
	case StorageModeMemory:
	case StorageModeKV:
		if c.Storage.NATSURL == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate",
				"kv storage requires a NATS URL")
		}
		if c.Storage.CacheSize <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
				"cache size must be positive")
		}
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
			fmt.Sprintf("unknown storage mode %q", c.Storage.Mode))
	}

	switch c.Bot.Engine {
	case EngineReflect:
	case EngineOpenAI:
		if c.Bot.Model == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate",
				"openai engine requires a model")
		}
		if c.Bot.BaseURL == "" && c.Bot.APIKey == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate",
				"openai engine requires an api key or a local base url")
		}
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
			fmt.Sprintf("unknown bot engine %q", c.Bot.Engine))
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
				fmt.Sprintf("invalid metrics port %d", c.Metrics.Port))
		}
	}
	return nil
}

// SaveToFile writes the configuration to a JSON file.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.WrapFatal(err, "config", "SaveToFile", "marshal config")
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.WrapFatal(err, "config", "SaveToFile", "write file")
	}
	return nil
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPrefix: "BOTAPI",
	}
}

// AddLayer adds a configuration file layer. Later layers override
// earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges defaults, file layers, and environment overrides.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "config", "Load",
				fmt.Sprintf("read %s", path))
		}
		// Unmarshal over the accumulated config so absent keys keep
		// their current values.
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load",
				fmt.Sprintf("parse %s", path))
		}
	}

	l.applyEnvOverrides(cfg)

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (l *Loader) applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(l.envPrefix + "_ADDRESS"); val != "" {
		cfg.Server.Address = val
	}
	if val := os.Getenv(l.envPrefix + "_ALLOWED_ORIGINS"); val != "" {
		cfg.Server.AllowedOrigins = strings.Split(val, ",")
	}
	if val := os.Getenv(l.envPrefix + "_STORAGE_MODE"); val != "" {
		cfg.Storage.Mode = val
	}
	if val := os.Getenv(l.envPrefix + "_NATS_URL"); val != "" {
		cfg.Storage.NATSURL = val
	}
	if val := os.Getenv(l.envPrefix + "_BOT_ENGINE"); val != "" {
		cfg.Bot.Engine = val
	}
	if val := os.Getenv(l.envPrefix + "_BOT_BASE_URL"); val != "" {
		cfg.Bot.BaseURL = val
	}
	if val := os.Getenv(l.envPrefix + "_BOT_API_KEY"); val != "" {
		cfg.Bot.APIKey = val
	}
	if val := os.Getenv(l.envPrefix + "_BOT_MODEL"); val != "" {
		cfg.Bot.Model = val
	}
	if val := os.Getenv(l.envPrefix + "_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
