package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/botapi/errors"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "/", cfg.Server.GraphQLPath)
	assert.Equal(t, StorageModeMemory, cfg.Storage.Mode)
	assert.Equal(t, EngineReflect, cfg.Bot.Engine)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(_ *Config) {}, true},
		{"empty address", func(c *Config) { c.Server.Address = "" }, false},
		{"bad graphql path", func(c *Config) { c.Server.GraphQLPath = "graphql" }, false},
		{"zero body limit", func(c *Config) { c.Server.MaxRequestBytes = 0 }, false},
		{"unknown storage mode", func(c *Config) { c.Storage.Mode = "disk" }, false},
		{"kv without url", func(c *Config) {
			c.Storage.Mode = StorageModeKV
			c.Storage.NATSURL = ""
		}, false},
		{"kv mode ok", func(c *Config) { c.Storage.Mode = StorageModeKV }, true},
		{"unknown engine", func(c *Config) { c.Bot.Engine = "eliza" }, false},
		{"openai without credentials", func(c *Config) {
			c.Bot.Engine = EngineOpenAI
			c.Bot.BaseURL = ""
			c.Bot.APIKey = ""
		}, false},
		{"openai with local base url", func(c *Config) {
			c.Bot.Engine = EngineOpenAI
			c.Bot.BaseURL = "http://localhost:11434/v1"
		}, true},
		{"bad metrics port", func(c *Config) { c.Metrics.Port = 70000 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
			}
		})
	}
}

func TestLoadLayersAndOverrides(t *testing.T) {
	dir := t.TempDir()

	base := filepath.Join(dir, "base.json")
	require.NoError(t, os.WriteFile(base, []byte(`{
		"server": {"address": ":9999", "read_timeout": "5s"},
		"bot": {"engine": "openai", "base_url": "http://localhost:11434/v1"}
	}`), 0o600))

	override := filepath.Join(dir, "override.json")
	require.NoError(t, os.WriteFile(override, []byte(`{
		"bot": {"model": "llama3"}
	}`), 0o600))

	loader := NewLoader()
	loader.AddLayer(base)
	loader.AddLayer(override)
	loader.EnableValidation(true)

	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Address)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout.Std())
	assert.Equal(t, EngineOpenAI, cfg.Bot.Engine)
	// Later layer overrides the model, earlier layer's base_url survives.
	assert.Equal(t, "llama3", cfg.Bot.Model)
	assert.Equal(t, "http://localhost:11434/v1", cfg.Bot.BaseURL)
	// Unlayered values keep their defaults.
	assert.Equal(t, "/", cfg.Server.GraphQLPath)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BOTAPI_ADDRESS", ":7070")
	t.Setenv("BOTAPI_STORAGE_MODE", "kv")
	t.Setenv("BOTAPI_NATS_URL", "nats://example:4222")
	t.Setenv("BOTAPI_METRICS_PORT", "9191")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, StorageModeKV, cfg.Storage.Mode)
	assert.Equal(t, "nats://example:4222", cfg.Storage.NATSURL)
	assert.Equal(t, 9191, cfg.Metrics.Port)
}

func TestLoadMissingFile(t *testing.T) {
	loader := NewLoader()
	loader.AddLayer("/nonexistent/config.json")
	_, err := loader.Load()
	assert.Error(t, err)
}

func TestDurationRoundTrip(t *testing.T) {
	cfg := Default()
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := NewLoader().LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Server.ReadTimeout, loaded.Server.ReadTimeout)
	assert.Equal(t, cfg.Bot.Timeout, loaded.Bot.Timeout)
}
