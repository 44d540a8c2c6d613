// Package llm talks to external language-model services and turns their
// free-form responses into structured segment candidates.
package llm

import (
	"context"
	"time"
)

// Service generates free-form text for a prompt
type Service interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Config represents LLM service configuration
type Config struct {
	Provider    string        `json:"provider"` // openai, anthropic, ollama, gemini
	Model       string        `json:"model"`
	APIKey      string        `json:"api_key,omitempty"`
	BaseURL     string        `json:"base_url,omitempty"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Timeout     time.Duration `json:"timeout"`
}

// Provider constants for different LLM providers
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderGemini    = "gemini"
)

// Default endpoints per provider
const (
	DefaultOpenAIURL    = "https://api.openai.com/v1"
	DefaultAnthropicURL = "https://api.anthropic.com/v1"
	DefaultOllamaURL    = "http://localhost:11434"
)

const (
	defaultMaxTokens = 2000
	defaultTimeout   = 30 * time.Second
)
