package testutil

import (
	"context"
	"sync"
)

// MockLLM implements a generation service for testing with error injection
type MockLLM struct {
	mu sync.Mutex

	responses []string
	err       error
	model     string
	prompts   []string
}

// MockOption is a functional option for configuring MockLLM
type MockOption func(*MockLLM)

// WithResponses sets the responses returned in order; the last one repeats
func WithResponses(responses ...string) MockOption {
	return func(m *MockLLM) {
		m.responses = responses
	}
}

// WithGenerateError makes every Generate call fail with err
func WithGenerateError(err error) MockOption {
	return func(m *MockLLM) {
		m.err = err
	}
}

// WithModel sets the reported model name
func WithModel(model string) MockOption {
	return func(m *MockLLM) {
		m.model = model
	}
}

// NewMockLLM creates a new mock generation service with the given options
func NewMockLLM(opts ...MockOption) *MockLLM {
	mock := &MockLLM{model: TestModel}

	for _, opt := range opts {
		opt(mock)
	}

	return mock
}

// Generate records the prompt and returns the next configured response
func (m *MockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prompts = append(m.prompts, prompt)

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if m.err != nil {
		return "", m.err
	}

	if len(m.responses) == 0 {
		return "", nil
	}

	i := len(m.prompts) - 1
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}

	return m.responses[i], nil
}

// Model returns the configured model name
func (m *MockLLM) Model() string {
	return m.model
}

// CallCount returns how many times Generate was called
func (m *MockLLM) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.prompts)
}

// LastPrompt returns the most recent prompt, or "" if none
func (m *MockLLM) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.prompts) == 0 {
		return ""
	}

	return m.prompts[len(m.prompts)-1]
}
