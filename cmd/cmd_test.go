package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/segmentsql/internal/config"
	"github.com/kyleking/segmentsql/internal/errors"
	"github.com/kyleking/segmentsql/internal/formatter"
	"github.com/kyleking/segmentsql/internal/llm"
	"github.com/kyleking/segmentsql/internal/prompt"
	"github.com/kyleking/segmentsql/internal/schema"
	"github.com/kyleking/segmentsql/internal/segment"
	"github.com/kyleking/segmentsql/internal/testutil"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()

	t.Setenv("SEGMENTSQL_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	var out bytes.Buffer

	app := NewApp()
	app.Writer = &out

	base := []string{appName, "--schema-dir", testutil.SchemaDir(t), "--log-level", "error", "--no-color"}
	err := app.Run(context.Background(), append(base, args...))

	return out.String(), err
}

func withGenerator(t *testing.T, mock *testutil.MockLLM) {
	t.Helper()

	original := newGenerator
	newGenerator = func(config.LLMConfig) (llm.Service, error) { return mock, nil }

	t.Cleanup(func() { newGenerator = original })
}

func newTestPipeline(t *testing.T, generator llm.Service) *segment.Service {
	t.Helper()

	return segment.NewService(schema.NewDirRegistry(testutil.SchemaDir(t)), generator, segment.Options{})
}

func TestRunGenerate(t *testing.T) {
	mock := testutil.NewMockLLM(testutil.WithResponses(testutil.CandidateResponse(testutil.AffluentFamiliesSQL)))

	var out bytes.Buffer

	err := runGenerate(context.Background(), &out, newTestPipeline(t, mock),
		segment.GenerateRequest{Prompt: testutil.TestPrompt},
		generateOptions{format: formatter.FormatShort, formatter: &formatter.Formatter{NoColor: true}})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Affluent Families  VALID")
	assert.Equal(t, 1, mock.CallCount())
}

func TestRunGeneratePrintPrompt(t *testing.T) {
	mock := testutil.NewMockLLM()
	minSize := 500

	var out bytes.Buffer

	err := runGenerate(context.Background(), &out, newTestPipeline(t, mock),
		segment.GenerateRequest{
			Prompt:      testutil.TestPrompt,
			Constraints: &prompt.Constraints{MinSize: &minSize},
		},
		generateOptions{printPrompt: true})
	require.NoError(t, err)

	assert.Contains(t, out.String(), testutil.TestPrompt)
	assert.Contains(t, out.String(), "at least 500 households")
	assert.Equal(t, 0, mock.CallCount())
}

func TestRunGenerateProviderError(t *testing.T) {
	mock := testutil.NewMockLLM(testutil.WithGenerateError(errors.New(errors.ErrTypeUpstreamService, "rate limited")))

	var out bytes.Buffer

	err := runGenerate(context.Background(), &out, newTestPipeline(t, mock),
		segment.GenerateRequest{Prompt: testutil.TestPrompt},
		generateOptions{format: formatter.FormatLong, formatter: &formatter.Formatter{NoColor: true}})

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeUpstreamService))
	assert.Empty(t, out.String())
}

func TestRunValidate(t *testing.T) {
	pipeline := newTestPipeline(t, nil)
	f := &formatter.Formatter{NoColor: true}

	tests := []struct {
		name     string
		sql      string
		wantErr  bool
		contains string
	}{
		{"valid", testutil.AffluentFamiliesSQL, false, "Validation: VALID"},
		{"forbidden", testutil.DropTableSQL, true, "forbidden keyword: DROP"},
		{"unknown table", "SELECT DISTINCT HOUSEHOLD_ID FROM NOPE", true, "invalid table NOPE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer

			err := runValidate(context.Background(), &out, pipeline, segment.ValidateRequest{SQL: tt.sql}, f, formatter.FormatLong)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
			} else {
				require.NoError(t, err)
			}

			assert.Contains(t, out.String(), tt.contains)
		})
	}
}

func TestRunServeRequiresKeys(t *testing.T) {
	err := runServe(context.Background(), config.DefaultConfig())

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
	assert.Contains(t, err.Error(), "server.api_keys")
}

func TestRedactDSN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://app:s3cret@db:5432/segments", "postgres://app:********@db:5432/segments"},
		{"postgres://app@db/segments", "postgres://app@db/segments"},
		{"host=db user=app", "host=db user=app"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, redactDSN(tt.in))
		})
	}
}

func TestSchemaCommands(t *testing.T) {
	out, err := runApp(t, "schema", "list")
	require.NoError(t, err)
	assert.Equal(t, "sig-v2\n", out)

	out, err = runApp(t, "--format", "short", "schema", "show", "sig-v2")
	require.NoError(t, err)
	assert.Contains(t, out, "sig-v2  v2.0")

	_, err = runApp(t, "schema", "show", "missing")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeSchemaNotFound))
}

func TestGenerateCommand(t *testing.T) {
	mock := testutil.NewMockLLM(testutil.WithResponses(testutil.CandidateResponse(testutil.AffluentFamiliesSQL)))
	withGenerator(t, mock)

	out, err := runApp(t, "--format", "json", "generate", "--use-case", "direct-mail", testutil.TestPrompt)
	require.NoError(t, err)

	var result segment.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))

	assert.Equal(t, testutil.AffluentFamiliesSQL, result.SQLQuery)
	assert.Equal(t, "direct-mail", result.Metadata.UseCase)
	assert.Equal(t, "sig-v2", result.Metadata.Schema)
	assert.Contains(t, mock.LastPrompt(), testutil.TestPrompt)
}

func TestGenerateCommandPrintPromptSkipsProvider(t *testing.T) {
	mock := testutil.NewMockLLM()
	withGenerator(t, mock)

	out, err := runApp(t, "generate", "--print-prompt", "--max-size", "2000", "--require-email", testutil.TestPrompt)
	require.NoError(t, err)

	assert.Contains(t, out, "at most 2000 households")
	assert.Contains(t, out, "opted-in email address")
	assert.Equal(t, 0, mock.CallCount())
}

func TestGenerateCommandRejectsBadInput(t *testing.T) {
	withGenerator(t, testutil.NewMockLLM())

	tests := []struct {
		name string
		args []string
	}{
		{"no description", []string{"generate"}},
		{"unknown use case", []string{"generate", "--use-case", "billboards", "x"}},
		{"min above max", []string{"generate", "--min-size", "10", "--max-size", "5", "x"}},
		{"bad format", []string{"--format", "xml", "generate", "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runApp(t, tt.args...)

			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
		})
	}
}

func TestValidateCommandExplainWithoutSandbox(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping DuckDB test in short mode")
	}

	out, err := runApp(t, "--engine-dsn", ":memory:", "validate", "--explain", testutil.AffluentFamiliesSQL)

	require.Error(t, err)
	assert.Contains(t, out, "Validation: INVALID")
	assert.Contains(t, out, "DATA")
}

func TestConfigCommandRedactsSecrets(t *testing.T) {
	t.Setenv("SEGMENTSQL_LLM_API_KEY", "sk-live-123")
	t.Setenv("SEGMENTSQL_SERVER_API_KEYS", "ci:abc,def")

	out, err := runApp(t, "--format", "json", "config")
	require.NoError(t, err)

	assert.NotContains(t, out, "sk-live-123")
	assert.NotContains(t, out, "abc")

	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, redacted, cfg.LLM.APIKey)
	assert.Equal(t, []string{"ci:" + redacted, redacted}, cfg.Server.APIKeys)
	assert.Equal(t, testutil.SchemaDir(t), cfg.Schema.Directory)

	out, err = runApp(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "API Keys: 2 configured")
	assert.Contains(t, out, "Strategy: regex")
}

func TestSandboxAndPreviewCommands(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping DuckDB sandbox test in short mode")
	}

	dir := t.TempDir()
	t.Setenv("SEGMENTSQL_LOG_FILE", filepath.Join(dir, "logs", "app.log"))

	dsn := filepath.Join(dir, "sandbox.duckdb")

	out, err := runApp(t, "--engine-dsn", dsn, "sandbox", "status", "sig-v2")
	require.NoError(t, err)
	assert.Contains(t, out, "not initialized")

	out, err = runApp(t, "--engine-dsn", dsn, "sandbox", "init", "sig-v2")
	require.NoError(t, err)
	assert.Contains(t, out, "for schema sig-v2 v2.0")

	out, err = runApp(t, "--engine-dsn", dsn, "sandbox", "init", "sig-v2")
	require.NoError(t, err)
	assert.Contains(t, out, "already initialized")

	out, err = runApp(t, "--engine-dsn", dsn, "--format", "short", "preview", testutil.AffluentFamiliesSQL)
	require.NoError(t, err)
	assert.Contains(t, out, "0 of 0 households")

	out, err = runApp(t, "--engine-dsn", dsn, "validate", "--explain", testutil.AffluentFamiliesSQL)
	require.NoError(t, err)
	assert.Contains(t, out, "Validation: VALID")
	assert.Contains(t, out, "complexity")
}
