package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kyleking/segmentsql/internal/errors"
)

// Client implements the Service interface with multiple provider support
type Client struct {
	config     Config
	httpClient *http.Client
	gemini     *geminiProvider
}

// NewClient creates a new LLM client with the given configuration
func NewClient(config Config) (*Client, error) {
	c := &Client{httpClient: &http.Client{}}

	if err := c.Configure(config); err != nil {
		return nil, err
	}

	return c, nil
}

// Configure validates and applies the client configuration
func (c *Client) Configure(config Config) error {
	if config.Provider == "" {
		return errors.NewConfigError("provider is required", "llm.provider")
	}

	if config.Model == "" {
		return errors.NewConfigError("model is required", "llm.model")
	}

	if config.MaxTokens <= 0 {
		config.MaxTokens = defaultMaxTokens
	}

	switch config.Provider {
	case ProviderOpenAI:
		if config.APIKey == "" {
			return errors.NewConfigError("API key is required for OpenAI provider", "llm.api_key")
		}

		if config.BaseURL == "" {
			config.BaseURL = DefaultOpenAIURL
		}
	case ProviderAnthropic:
		if config.APIKey == "" {
			return errors.NewConfigError("API key is required for Anthropic provider", "llm.api_key")
		}

		if config.BaseURL == "" {
			config.BaseURL = DefaultAnthropicURL
		}
	case ProviderOllama:
		if config.BaseURL == "" {
			config.BaseURL = DefaultOllamaURL
		}
	case ProviderGemini:
		provider, err := newGeminiProvider(config)
		if err != nil {
			return err
		}

		c.gemini = provider
	default:
		return errors.NewConfigError(fmt.Sprintf("unsupported provider: %s", config.Provider), "llm.provider")
	}

	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	c.config = config

	return nil
}

// Model returns the configured model name
func (c *Client) Model() string {
	return c.config.Model
}

// Generate sends prompt to the configured provider and returns its text
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	switch c.config.Provider {
	case ProviderOpenAI:
		return c.generateOpenAI(ctx, prompt)
	case ProviderAnthropic:
		return c.generateAnthropic(ctx, prompt)
	case ProviderOllama:
		return c.generateOllama(ctx, prompt)
	case ProviderGemini:
		return c.gemini.generate(ctx, prompt)
	default:
		return "", errors.Newf(errors.ErrTypeConfig, "LLM client not configured for provider %q", c.config.Provider)
	}
}

// OpenAI API structures
type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    float64               `json:"temperature"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Error   *apiError      `json:"error,omitempty"`
}

type openAIChoice struct {
	Message openAIMessage `json:"message"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (c *Client) generateOpenAI(ctx context.Context, prompt string) (string, error) {
	reqBody := openAIRequest{
		Model: c.config.Model,
		Messages: []openAIMessage{
			{Role: "user", Content: prompt},
		},
		Temperature:    c.config.Temperature,
		MaxTokens:      c.config.MaxTokens,
		ResponseFormat: &openAIResponseFormat{Type: "json_object"},
	}

	headers := map[string]string{"Authorization": "Bearer " + c.config.APIKey}

	respBody, err := c.post(ctx, "/chat/completions", headers, reqBody)
	if err != nil {
		return "", err
	}

	var response openAIResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", errors.Wrap(err, errors.ErrTypeUpstreamService, "failed to parse OpenAI response")
	}

	if response.Error != nil {
		return "", errors.Newf(errors.ErrTypeUpstreamService, "OpenAI API error: %s", response.Error.Message)
	}

	if len(response.Choices) == 0 {
		return "", errors.New(errors.ErrTypeUpstreamService, "no response from OpenAI")
	}

	return response.Choices[0].Message.Content, nil
}

// Anthropic API structures
type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Error   *apiError          `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (c *Client) generateAnthropic(ctx context.Context, prompt string) (string, error) {
	reqBody := anthropicRequest{
		Model:       c.config.Model,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
	}

	headers := map[string]string{
		"x-api-key":         c.config.APIKey,
		"anthropic-version": "2023-06-01",
	}

	respBody, err := c.post(ctx, "/messages", headers, reqBody)
	if err != nil {
		return "", err
	}

	var response anthropicResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", errors.Wrap(err, errors.ErrTypeUpstreamService, "failed to parse Anthropic response")
	}

	if response.Error != nil {
		return "", errors.Newf(errors.ErrTypeUpstreamService, "Anthropic API error: %s", response.Error.Message)
	}

	var sb strings.Builder

	for _, block := range response.Content {
		if block.Type == "text" || block.Type == "" {
			sb.WriteString(block.Text)
		}
	}

	if sb.Len() == 0 {
		return "", errors.New(errors.ErrTypeUpstreamService, "no response from Anthropic")
	}

	return sb.String(), nil
}

// Ollama API structures
type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Format  string        `json:"format,omitempty"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func (c *Client) generateOllama(ctx context.Context, prompt string) (string, error) {
	reqBody := ollamaRequest{
		Model:  c.config.Model,
		Prompt: prompt,
		Stream: false,
		Format: "json",
		Options: ollamaOptions{
			Temperature: c.config.Temperature,
			NumPredict:  c.config.MaxTokens,
		},
	}

	respBody, err := c.post(ctx, "/api/generate", nil, reqBody)
	if err != nil {
		return "", err
	}

	var response ollamaResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", errors.Wrap(err, errors.ErrTypeUpstreamService, "failed to parse Ollama response")
	}

	if response.Error != "" {
		return "", errors.Newf(errors.ErrTypeUpstreamService, "Ollama API error: %s", response.Error)
	}

	return response.Response, nil
}

// post sends a JSON request to the provider and returns the raw body of a
// 200 response
func (c *Client) post(ctx context.Context, endpoint string, headers map[string]string, reqBody interface{}) ([]byte, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeInternal, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeInternal, "failed to create request")
	}

	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.WrapDeadline(err, errors.ErrTypeUpstreamService, "failed to reach "+c.config.Provider)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WrapDeadline(err, errors.ErrTypeUpstreamService, "failed to read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.ErrTypeUpstreamService,
			"API request failed with status %d: %s", resp.StatusCode, truncate(string(body), 500))
	}

	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n] + "..."
}
