package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "sig-v2", cfg.Schema.DefaultID)
	assert.Equal(t, "30s", cfg.LLM.Timeout)
	assert.Equal(t, "duckdb", cfg.Engine.Driver)
	assert.Equal(t, 1, cfg.Engine.PreviewMinRows)
	assert.Equal(t, 1000, cfg.Engine.PreviewMaxRows)
	assert.Equal(t, "regex", cfg.Validation.Strategy)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, validateConfig(cfg))
}

func TestLoadConfigFromFile(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.json")

	testConfig := map[string]interface{}{
		"schema": map[string]interface{}{
			"directory": "/srv/schemas",
		},
		"engine": map[string]interface{}{
			"driver":        "postgres",
			"dsn":           "postgres://localhost/warehouse",
			"query_timeout": "60s",
		},
		"logging": map[string]interface{}{
			"level":  "debug",
			"format": "json",
		},
	}

	data, err := json.MarshalIndent(testConfig, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(configPath, data, 0600))

	config := DefaultConfig()
	err = loadConfigFromFile(config, configPath)
	require.NoError(t, err)

	assert.Equal(t, "/srv/schemas", config.Schema.Directory)
	assert.Equal(t, "postgres", config.Engine.Driver)
	assert.Equal(t, "postgres://localhost/warehouse", config.Engine.DSN)
	assert.Equal(t, "60s", config.Engine.QueryTimeout)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "json", config.Logging.Format)
	// untouched values keep their defaults
	assert.Equal(t, "sig-v2", config.Schema.DefaultID)
	assert.Equal(t, 1000, config.Engine.PreviewMaxRows)
}

func TestLoadConfigFromFileInvalidJSON(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.json")

	require.NoError(t, os.WriteFile(configPath, []byte("invalid json"), 0600))

	config := DefaultConfig()
	err := loadConfigFromFile(config, configPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestApplyEnvironmentOverrides(t *testing.T) {
	envVars := map[string]string{
		"SEGMENTSQL_SERVER_ADDR":             ":9090",
		"SEGMENTSQL_SERVER_API_KEYS":         "key-one,key-two",
		"SEGMENTSQL_SCHEMA_DIR":              "/env/schemas",
		"SEGMENTSQL_LLM_PROVIDER":            "gemini",
		"SEGMENTSQL_LLM_MODEL":               "gemini-2.0-flash",
		"SEGMENTSQL_LLM_TEMPERATURE":         "0.3",
		"SEGMENTSQL_ENGINE_PREVIEW_MAX_ROWS": "500",
		"SEGMENTSQL_VALIDATION_STRATEGY":     "tokenizer",
		"SEGMENTSQL_LOG_LEVEL":               "warn",
	}

	for key, value := range envVars {
		t.Setenv(key, value)
	}

	config := DefaultConfig()
	err := applyEnvironmentOverrides(config)
	require.NoError(t, err)

	assert.Equal(t, ":9090", config.Server.Addr)
	assert.Equal(t, []string{"key-one", "key-two"}, config.Server.APIKeys)
	assert.Equal(t, "/env/schemas", config.Schema.Directory)
	assert.Equal(t, "gemini", config.LLM.Provider)
	assert.Equal(t, "gemini-2.0-flash", config.LLM.Model)
	assert.InDelta(t, 0.3, config.LLM.Temperature, 0.0001)
	assert.Equal(t, 500, config.Engine.PreviewMaxRows)
	assert.Equal(t, "tokenizer", config.Validation.Strategy)
	assert.Equal(t, "warn", config.Logging.Level)
	// unset variables leave defaults alone
	assert.Equal(t, "duckdb", config.Engine.Driver)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"logging":{"level":"debug"},"schema":{"directory":"/file/schemas"}}`), 0600))

	t.Setenv("SEGMENTSQL_CONFIG", configPath)
	t.Setenv("SEGMENTSQL_LOG_LEVEL", "error")

	config, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "error", config.Logging.Level)
	assert.Equal(t, "/file/schemas", config.Schema.Directory)
}

func TestApplyFlagOverrides(t *testing.T) {
	config := DefaultConfig()

	overrides := map[string]interface{}{
		"schema-dir":    "/flag/schemas",
		"engine-dsn":    ":memory:",
		"engine-driver": "duckdb",
		"provider":      "ollama",
		"model":         "llama3",
		"log-level":     "debug",
		"addr":          "127.0.0.1:7000",
		"strategy":      "tokenizer",
	}

	err := applyFlagOverrides(config, overrides)
	require.NoError(t, err)

	assert.Equal(t, "/flag/schemas", config.Schema.Directory)
	assert.Equal(t, ":memory:", config.Engine.DSN)
	assert.Equal(t, "ollama", config.LLM.Provider)
	assert.Equal(t, "llama3", config.LLM.Model)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "127.0.0.1:7000", config.Server.Addr)
	assert.Equal(t, "tokenizer", config.Validation.Strategy)
}

func TestApplyFlagOverridesUnknownKey(t *testing.T) {
	err := applyFlagOverrides(DefaultConfig(), map[string]interface{}{"nope": "x"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown override")
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectedErr string
	}{
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.Logging.Level = "trace" },
			expectedErr: "invalid log level",
		},
		{
			name:        "invalid log format",
			mutate:      func(c *Config) { c.Logging.Format = "xml" },
			expectedErr: "invalid log format",
		},
		{
			name:        "invalid log output",
			mutate:      func(c *Config) { c.Logging.Output = "syslog" },
			expectedErr: "invalid log output",
		},
		{
			name:        "invalid provider",
			mutate:      func(c *Config) { c.LLM.Provider = "mystery" },
			expectedErr: "invalid LLM provider",
		},
		{
			name:        "invalid driver",
			mutate:      func(c *Config) { c.Engine.Driver = "oracle" },
			expectedErr: "invalid engine driver",
		},
		{
			name:        "invalid strategy",
			mutate:      func(c *Config) { c.Validation.Strategy = "ast" },
			expectedErr: "invalid validation strategy",
		},
		{
			name:        "invalid timeout",
			mutate:      func(c *Config) { c.LLM.Timeout = "soon" },
			expectedErr: "invalid llm timeout",
		},
		{
			name:        "preview bounds inverted",
			mutate:      func(c *Config) { c.Engine.PreviewMaxRows = 0 },
			expectedErr: "preview max rows",
		},
		{
			name:        "temperature out of range",
			mutate:      func(c *Config) { c.LLM.Temperature = 3 },
			expectedErr: "temperature",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := validateConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedErr)
		})
	}
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 45*time.Second, Duration("45s", time.Second))
	assert.Equal(t, time.Second, Duration("bogus", time.Second))
	assert.Equal(t, time.Second, Duration("0s", time.Second))
}

func TestExpandPath(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		input    string
		expected string
	}{
		{"~", homeDir},
		{"~/schemas", filepath.Join(homeDir, "schemas")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExpandPath(tt.input))
		})
	}
}

func TestExpandAllPathsLeavesPostgresDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.Driver = "postgres"
	cfg.Engine.DSN = "~postgres://odd"

	cfg.ExpandAllPaths()

	assert.Equal(t, "~postgres://odd", cfg.Engine.DSN)
}
