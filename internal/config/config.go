package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const envPrefix = "SEGMENTSQL_"

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `json:"server"`
	Schema     SchemaConfig     `json:"schema"`
	LLM        LLMConfig        `json:"llm"`
	Engine     EngineConfig     `json:"engine"`
	Validation ValidationConfig `json:"validation"`
	Logging    LoggingConfig    `json:"logging"`
}

// ServerConfig represents HTTP API configuration
type ServerConfig struct {
	Addr         string   `json:"addr"          env:"SERVER_ADDR"`
	ReadTimeout  string   `json:"read_timeout"  env:"SERVER_READ_TIMEOUT"`
	WriteTimeout string   `json:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	APIKeys      []string `json:"api_keys"      env:"SERVER_API_KEYS"      envSeparator:","`
}

// SchemaConfig represents where schema documents are loaded from
type SchemaConfig struct {
	Directory string `json:"directory"  env:"SCHEMA_DIR"`
	DefaultID string `json:"default_id" env:"SCHEMA_DEFAULT"`
}

// LLMConfig represents the generation service configuration
type LLMConfig struct {
	Provider    string  `json:"provider"    env:"LLM_PROVIDER"` // openai, anthropic, ollama, gemini
	Model       string  `json:"model"       env:"LLM_MODEL"`
	APIKey      string  `json:"api_key"     env:"LLM_API_KEY"`
	BaseURL     string  `json:"base_url"    env:"LLM_BASE_URL"`
	Timeout     string  `json:"timeout"     env:"LLM_TIMEOUT"`
	Temperature float64 `json:"temperature" env:"LLM_TEMPERATURE"`
	MaxTokens   int     `json:"max_tokens"  env:"LLM_MAX_TOKENS"`
}

// EngineConfig represents the analytical query engine configuration
type EngineConfig struct {
	Driver         string `json:"driver"           env:"ENGINE_DRIVER"` // duckdb, postgres
	DSN            string `json:"dsn"              env:"ENGINE_DSN"`
	QueryTimeout   string `json:"query_timeout"    env:"ENGINE_QUERY_TIMEOUT"`
	PreviewMinRows int    `json:"preview_min_rows" env:"ENGINE_PREVIEW_MIN_ROWS"`
	PreviewMaxRows int    `json:"preview_max_rows" env:"ENGINE_PREVIEW_MAX_ROWS"`
	PreviewRows    int    `json:"preview_rows"     env:"ENGINE_PREVIEW_ROWS"`
}

// ValidationConfig selects the schema conformance strategy
type ValidationConfig struct {
	Strategy string `json:"strategy" env:"VALIDATION_STRATEGY"` // regex, tokenizer
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `json:"level"  env:"LOG_LEVEL"`  // debug, info, warn, error
	Format string `json:"format" env:"LOG_FORMAT"` // text, json
	Output string `json:"output" env:"LOG_OUTPUT"` // stdout, stderr, file
	File   string `json:"file"   env:"LOG_FILE"`   // log file path when output is file
}

// DefaultConfig returns the configuration used when nothing overrides it
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  "15s",
			WriteTimeout: "90s",
		},
		Schema: SchemaConfig{
			Directory: "./schemas",
			DefaultID: "sig-v2",
		},
		LLM: LLMConfig{
			Provider:    "anthropic",
			Model:       "claude-3-5-sonnet-20241022",
			Timeout:     "30s",
			Temperature: 0.1,
			MaxTokens:   2000,
		},
		Engine: EngineConfig{
			Driver:         "duckdb",
			DSN:            "~/.config/segmentsql/sandbox.duckdb",
			QueryTimeout:   "30s",
			PreviewMinRows: 1,
			PreviewMaxRows: 1000,
			PreviewRows:    100,
		},
		Validation: ValidationConfig{
			Strategy: "regex",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
			File:   "~/.config/segmentsql/logs/app.log",
		},
	}
}

// LoadConfig loads configuration from file, environment variables, and command-line flags
func LoadConfig() (*Config, error) {
	return LoadConfigWithOverrides(nil)
}

// LoadConfigWithOverrides loads configuration with optional command-line flag overrides.
// Precedence is flags, then environment, then config file, then defaults.
func LoadConfigWithOverrides(flagOverrides map[string]interface{}) (*Config, error) {
	config := DefaultConfig()

	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		if err := loadConfigFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := applyEnvironmentOverrides(config); err != nil {
		return nil, err
	}

	if flagOverrides != nil {
		if err := applyFlagOverrides(config, flagOverrides); err != nil {
			return nil, fmt.Errorf("failed to apply flag overrides: %w", err)
		}
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// applyEnvironmentOverrides sets every field whose SEGMENTSQL_ variable is present
func applyEnvironmentOverrides(config *Config) error {
	if err := env.ParseWithOptions(config, env.Options{
		Prefix: envPrefix,
	}); err != nil {
		return fmt.Errorf("failed to parse environment variables: %w", err)
	}

	return nil
}

// loadConfigFromFile loads configuration from a JSON file
func loadConfigFromFile(config *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fileConfig Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	mergeConfigs(config, &fileConfig)

	return nil
}

// applyFlagOverrides applies command-line flag overrides to configuration
func applyFlagOverrides(config *Config, overrides map[string]interface{}) error {
	for key, value := range overrides {
		switch key {
		case "schema-dir":
			if str, ok := value.(string); ok && str != "" {
				config.Schema.Directory = str
			}
		case "engine-dsn":
			if str, ok := value.(string); ok && str != "" {
				config.Engine.DSN = str
			}
		case "engine-driver":
			if str, ok := value.(string); ok && str != "" {
				config.Engine.Driver = str
			}
		case "provider":
			if str, ok := value.(string); ok && str != "" {
				config.LLM.Provider = str
			}
		case "model":
			if str, ok := value.(string); ok && str != "" {
				config.LLM.Model = str
			}
		case "log-level":
			if str, ok := value.(string); ok && str != "" {
				config.Logging.Level = str
			}
		case "addr":
			if str, ok := value.(string); ok && str != "" {
				config.Server.Addr = str
			}
		case "strategy":
			if str, ok := value.(string); ok && str != "" {
				config.Validation.Strategy = str
			}
		default:
			return fmt.Errorf("unknown override: %s", key)
		}
	}

	return nil
}

// mergeConfigs copies every non-zero value of source into target
func mergeConfigs(target, source *Config) {
	var mergeValues func(t, s reflect.Value)
	mergeValues = func(t, s reflect.Value) {
		if t.Kind() != s.Kind() {
			return
		}

		if t.Kind() == reflect.Struct {
			for i := range s.NumField() {
				mergeValues(t.Field(i), s.Field(i))
			}
		} else if !s.IsZero() {
			t.Set(s)
		}
	}

	mergeValues(reflect.ValueOf(target).Elem(), reflect.ValueOf(source).Elem())
}

// validateConfig validates the configuration for common errors
func validateConfig(config *Config) error {
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf(
			"invalid log level: %s (must be debug, info, warn, or error)",
			config.Logging.Level,
		)
	}

	validLogFormats := map[string]bool{"text": true, "json": true}
	if !validLogFormats[strings.ToLower(config.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", config.Logging.Format)
	}

	validLogOutputs := map[string]bool{"stdout": true, "stderr": true, "file": true}
	if !validLogOutputs[strings.ToLower(config.Logging.Output)] {
		return fmt.Errorf(
			"invalid log output: %s (must be stdout, stderr, or file)",
			config.Logging.Output,
		)
	}

	validProviders := map[string]bool{"openai": true, "anthropic": true, "ollama": true, "gemini": true}
	if !validProviders[strings.ToLower(config.LLM.Provider)] {
		return fmt.Errorf(
			"invalid LLM provider: %s (must be openai, anthropic, ollama, or gemini)",
			config.LLM.Provider,
		)
	}

	validDrivers := map[string]bool{"duckdb": true, "postgres": true}
	if !validDrivers[strings.ToLower(config.Engine.Driver)] {
		return fmt.Errorf("invalid engine driver: %s (must be duckdb or postgres)", config.Engine.Driver)
	}

	validStrategies := map[string]bool{"regex": true, "tokenizer": true}
	if !validStrategies[strings.ToLower(config.Validation.Strategy)] {
		return fmt.Errorf("invalid validation strategy: %s (must be regex or tokenizer)", config.Validation.Strategy)
	}

	durations := map[string]string{
		"llm timeout":          config.LLM.Timeout,
		"engine query timeout": config.Engine.QueryTimeout,
		"server read timeout":  config.Server.ReadTimeout,
		"server write timeout": config.Server.WriteTimeout,
	}
	for name, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %s", name, value)
		}
	}

	if config.Engine.PreviewMinRows < 1 {
		return fmt.Errorf("preview min rows must be at least 1: %d", config.Engine.PreviewMinRows)
	}

	if config.Engine.PreviewMaxRows < config.Engine.PreviewMinRows {
		return fmt.Errorf(
			"preview max rows (%d) must not be below min rows (%d)",
			config.Engine.PreviewMaxRows, config.Engine.PreviewMinRows,
		)
	}

	if config.LLM.Temperature < 0 || config.LLM.Temperature > 2 {
		return fmt.Errorf("LLM temperature must be between 0 and 2: %.2f", config.LLM.Temperature)
	}

	return nil
}

// Duration parses a duration value that has already passed validation
func Duration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}

	return d
}

// getConfigPath returns the path to the configuration file
func getConfigPath() string {
	if configPath := os.Getenv("SEGMENTSQL_CONFIG"); configPath != "" {
		return ExpandPath(configPath)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}

	return filepath.Join(homeDir, ".config", "segmentsql", "config.json")
}

// ExpandPath expands ~ to home directory in file paths
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// ExpandAllPaths expands all paths in the configuration
func (c *Config) ExpandAllPaths() {
	c.Schema.Directory = ExpandPath(c.Schema.Directory)
	c.Logging.File = ExpandPath(c.Logging.File)

	if strings.EqualFold(c.Engine.Driver, "duckdb") {
		c.Engine.DSN = ExpandPath(c.Engine.DSN)
	}
}

// EnsureDirectories creates necessary directories for the configuration
func (c *Config) EnsureDirectories() error {
	dirs := []string{filepath.Dir(c.Logging.File)}

	if strings.EqualFold(c.Engine.Driver, "duckdb") && c.Engine.DSN != "" && c.Engine.DSN != ":memory:" {
		dirs = append(dirs, filepath.Dir(c.Engine.DSN))
	}

	for _, dir := range dirs {
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	return nil
}
