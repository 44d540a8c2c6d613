package llm

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"github.com/kyleking/segmentsql/internal/errors"
)

type geminiProvider struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

func newGeminiProvider(config Config) (*geminiProvider, error) {
	if config.APIKey == "" {
		return nil, errors.NewConfigError("API key is required for Gemini provider", "llm.api_key")
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}

	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(config.BaseURL, "/") + "/"}
	}

	client, err := genai.NewClient(context.Background(), clientConfig)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeConfig, "failed to create Gemini client")
	}

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &geminiProvider{
		client: client,
		model:  config.Model,
		config: &genai.GenerateContentConfig{
			Temperature:      genai.Ptr(float32(config.Temperature)),
			MaxOutputTokens:  int32(maxTokens),
			ResponseMIMEType: "application/json",
		},
	}, nil
}

func (g *geminiProvider) generate(ctx context.Context, prompt string) (string, error) {
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), g.config)
	if err != nil {
		return "", errors.WrapDeadline(err, errors.ErrTypeUpstreamService, "Gemini generate failed")
	}

	text := result.Text()
	if text == "" {
		return "", errors.New(errors.ErrTypeUpstreamService, "no response from Gemini")
	}

	return text, nil
}
