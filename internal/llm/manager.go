package llm

import (
	"context"
	"time"

	"github.com/kyleking/segmentsql/internal/config"
	"github.com/kyleking/segmentsql/internal/errors"
	"github.com/kyleking/segmentsql/internal/logging"
)

// Manager bounds every generation call with a timeout and normalizes
// failures into the upstream error kinds. It never retries.
type Manager struct {
	provider Service
	timeout  time.Duration
}

// NewManager wraps provider; a non-positive timeout uses the default
func NewManager(provider Service, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Manager{
		provider: provider,
		timeout:  timeout,
	}
}

// NewManagerFromConfig builds the configured provider client
func NewManagerFromConfig(cfg config.LLMConfig) (*Manager, error) {
	timeout := config.Duration(cfg.Timeout, defaultTimeout)

	client, err := NewClient(Config{
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     timeout,
	})
	if err != nil {
		return nil, err
	}

	return NewManager(client, timeout), nil
}

// Model returns the underlying provider's model name
func (m *Manager) Model() string {
	return m.provider.Model()
}

// Generate calls the provider once under the manager's timeout
func (m *Manager) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	logger := logging.FromContext(ctx).WithField("model", m.provider.Model())
	logger.WithField("prompt_chars", len(prompt)).Debug("Sending generation request")

	start := time.Now()

	text, err := m.provider.Generate(ctx, prompt)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = errors.Wrapf(err, errors.ErrTypeTimeout, "generation timed out after %s", m.timeout)
		} else if errors.GetType(err) == errors.ErrTypeInternal {
			err = errors.Wrap(err, errors.ErrTypeUpstreamService, "generation service failed")
		}

		logger.WithField("duration", time.Since(start)).ErrorWithErr("Generation request failed", err)

		return "", err
	}

	logger.WithFields(map[string]interface{}{
		"duration":       time.Since(start),
		"response_chars": len(text),
	}).Debug("Generation request completed")

	return text, nil
}
