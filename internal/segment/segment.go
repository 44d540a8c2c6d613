// Package segment runs the audience pipeline: prompt compilation, model
// generation, candidate extraction and layered validation, with optional
// plan analysis and previews against the query engine.
package segment

import (
	"context"
	"strings"
	"time"

	"github.com/kyleking/segmentsql/internal/engine"
	"github.com/kyleking/segmentsql/internal/errors"
	"github.com/kyleking/segmentsql/internal/llm"
	"github.com/kyleking/segmentsql/internal/logging"
	"github.com/kyleking/segmentsql/internal/prompt"
	"github.com/kyleking/segmentsql/internal/schema"
	"github.com/kyleking/segmentsql/internal/validation"
)

// DefaultSchemaID is used when a request names no schema
const DefaultSchemaID = "sig-v2"

// Schemas resolves and lists schema definitions
type Schemas interface {
	Load(ctx context.Context, id string) (*schema.Definition, error)
	List(ctx context.Context) ([]string, error)
}

// PlanChecker validates a query against the engine's planner
type PlanChecker interface {
	Validate(ctx context.Context, sql string) (*engine.PlanReport, error)
}

// Previewer samples and counts segment rows
type Previewer interface {
	Preview(ctx context.Context, sql string, maxRows int) (*engine.PreviewResult, error)
}

// GenerateRequest asks for a segment query from a natural-language description
type GenerateRequest struct {
	Prompt      string              `json:"prompt"`
	Schema      string              `json:"schema,omitempty"`
	UseCase     string              `json:"useCase,omitempty"`
	Constraints *prompt.Constraints `json:"constraints,omitempty"`
}

// Metadata describes how a result was produced
type Metadata struct {
	Schema    string `json:"schema"`
	UseCase   string `json:"useCase,omitempty"`
	Model     string `json:"model"`
	Timestamp string `json:"timestamp"`
}

// Result is a generated segment and its static validation
type Result struct {
	SQLQuery      string             `json:"sqlQuery"`
	SegmentName   string             `json:"segmentName"`
	Description   string             `json:"description"`
	Reasoning     string             `json:"reasoning"`
	Confidence    float64            `json:"confidence"`
	EstimatedSize int64              `json:"estimatedSize"`
	Validation    validation.Verdict `json:"validation"`
	Metadata      Metadata           `json:"metadata"`
}

// ValidateRequest checks an existing query
type ValidateRequest struct {
	SQL     string `json:"sql"`
	Schema  string `json:"schema,omitempty"`
	Explain bool   `json:"explain,omitempty"`
}

// ValidateResult is the merged verdict plus plan details when requested
type ValidateResult struct {
	validation.Verdict
	EstimatedRowCount *int64                  `json:"estimatedRowCount,omitempty"`
	ExecutionPlan     *engine.ExplainAnalysis `json:"executionPlan,omitempty"`
}

// PreviewRequest samples rows of a query
type PreviewRequest struct {
	SQL     string `json:"sql"`
	MaxRows int    `json:"maxRows,omitempty"`
}

// Options configures optional pipeline stages
type Options struct {
	DefaultSchema string
	Validator     validation.SchemaValidator
	Plans         PlanChecker
	Previews      Previewer
}

// Service wires the pipeline stages together. It holds no per-request state.
type Service struct {
	schemas       Schemas
	compiler      *prompt.Compiler
	generator     llm.Service
	validator     validation.SchemaValidator
	plans         PlanChecker
	previews      Previewer
	defaultSchema string
	now           func() time.Time
}

// NewService creates a pipeline. generator may be nil when only validation
// and previews are needed.
func NewService(schemas Schemas, generator llm.Service, opts Options) *Service {
	if opts.DefaultSchema == "" {
		opts.DefaultSchema = DefaultSchemaID
	}

	if opts.Validator == nil {
		opts.Validator = validation.RegexValidator{}
	}

	return &Service{
		schemas:       schemas,
		compiler:      prompt.NewCompiler(schemas),
		generator:     generator,
		validator:     opts.Validator,
		plans:         opts.Plans,
		previews:      opts.Previews,
		defaultSchema: opts.DefaultSchema,
		now:           time.Now,
	}
}

// Generate turns a description into a validated segment query
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*Result, error) {
	if err := checkGenerateRequest(req); err != nil {
		return nil, err
	}

	if s.generator == nil {
		return nil, errors.NewConfigError("no generation provider configured", "llm.provider")
	}

	schemaID := s.schemaID(req.Schema)
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"schema":   schemaID,
		"use_case": req.UseCase,
	})

	def, err := s.schemas.Load(ctx, schemaID)
	if err != nil {
		return nil, err
	}

	text := prompt.Render(def, prompt.Request{
		Prompt:      req.Prompt,
		SchemaID:    schemaID,
		UseCase:     prompt.UseCase(req.UseCase),
		Constraints: req.Constraints,
	})
	logger.WithField("prompt_chars", len(text)).Debug("prompt compiled")

	response, err := s.generator.Generate(ctx, text)
	if err != nil {
		logger.WithError(err).Warn("generation failed")
		return nil, err
	}

	candidate, err := llm.ParseCandidate(response)
	if err != nil {
		logger.WithError(err).Warn("model response rejected")
		return nil, err
	}

	verdict := validation.RunStatic(ctx, candidate.SQLQuery, def, s.validator)
	logger.WithFields(map[string]interface{}{
		"valid":    verdict.IsValid,
		"errors":   len(verdict.Errors),
		"warnings": len(verdict.Warnings),
	}).Debug("candidate validated")

	return &Result{
		SQLQuery:      candidate.SQLQuery,
		SegmentName:   candidate.SegmentName,
		Description:   candidate.Description,
		Reasoning:     candidate.Reasoning,
		Confidence:    candidate.Confidence,
		EstimatedSize: candidate.EstimatedSize,
		Validation:    verdict,
		Metadata: Metadata{
			Schema:    schemaID,
			UseCase:   req.UseCase,
			Model:     s.generator.Model(),
			Timestamp: s.now().UTC().Format(time.RFC3339),
		},
	}, nil
}

// Validate runs the static validators and, when requested and the static
// verdict passes, the engine's planner
func (s *Service) Validate(ctx context.Context, req ValidateRequest) (*ValidateResult, error) {
	if strings.TrimSpace(req.SQL) == "" {
		return nil, errors.New(errors.ErrTypeValidation, "sql is required")
	}

	schemaID := s.schemaID(req.Schema)

	def, err := s.schemas.Load(ctx, schemaID)
	if err != nil {
		return nil, err
	}

	verdict := validation.RunStatic(ctx, req.SQL, def, s.validator)
	result := &ValidateResult{Verdict: verdict}

	if !req.Explain {
		return result, nil
	}

	if s.plans == nil {
		result.AddWarning("query plan validation unavailable: no query engine configured")
		return result, nil
	}

	if !verdict.IsValid {
		result.AddWarning("query plan validation skipped: static validation failed")
		return result, nil
	}

	report, err := s.plans.Validate(ctx, req.SQL)
	if err != nil {
		return nil, err
	}

	result.Verdict = validation.Merge(verdict, report.Verdict)

	if report.ExecutionPlan != nil {
		rows := report.EstimatedRowCount
		result.EstimatedRowCount = &rows
		result.ExecutionPlan = report.ExecutionPlan
	}

	return result, nil
}

// Preview samples rows of a syntactically valid query
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (*engine.PreviewResult, error) {
	if strings.TrimSpace(req.SQL) == "" {
		return nil, errors.New(errors.ErrTypeValidation, "sql is required")
	}

	if verdict := validation.CheckSyntax(req.SQL); !verdict.IsValid {
		return nil, errors.Newf(errors.ErrTypeValidation, "query failed validation: %s",
			strings.Join(verdict.Errors, "; "))
	}

	if s.previews == nil {
		return nil, errors.NewConfigError("no query engine configured", "engine.driver")
	}

	return s.previews.Preview(ctx, req.SQL, req.MaxRows)
}

// CompilePrompt returns the prompt Generate would send to the model
func (s *Service) CompilePrompt(ctx context.Context, req GenerateRequest) (string, error) {
	if err := checkGenerateRequest(req); err != nil {
		return "", err
	}

	return s.compiler.Compile(ctx, prompt.Request{
		Prompt:      req.Prompt,
		SchemaID:    s.schemaID(req.Schema),
		UseCase:     prompt.UseCase(req.UseCase),
		Constraints: req.Constraints,
	})
}

// Schemas lists the available schema ids
func (s *Service) Schemas(ctx context.Context) ([]string, error) {
	return s.schemas.List(ctx)
}

// Schema returns one schema definition
func (s *Service) Schema(ctx context.Context, id string) (*schema.Definition, error) {
	return s.schemas.Load(ctx, id)
}

func (s *Service) schemaID(requested string) string {
	if id := strings.TrimSpace(requested); id != "" {
		return id
	}

	return s.defaultSchema
}

func checkGenerateRequest(req GenerateRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return errors.New(errors.ErrTypeValidation, "prompt is required")
	}

	if req.UseCase != "" && !prompt.UseCase(req.UseCase).Known() {
		names := make([]string, len(prompt.UseCases))
		for i, u := range prompt.UseCases {
			names[i] = string(u)
		}

		return errors.Newf(errors.ErrTypeValidation, "unknown use case %q; valid use cases: %s",
			req.UseCase, strings.Join(names, ", "))
	}

	c := req.Constraints
	if c == nil {
		return nil
	}

	if c.MinSize != nil && *c.MinSize < 0 {
		return errors.Newf(errors.ErrTypeValidation, "minSize must not be negative: %d", *c.MinSize)
	}

	if c.MaxSize != nil && *c.MaxSize < 0 {
		return errors.Newf(errors.ErrTypeValidation, "maxSize must not be negative: %d", *c.MaxSize)
	}

	if c.MinSize != nil && c.MaxSize != nil && *c.MinSize > *c.MaxSize {
		return errors.Newf(errors.ErrTypeValidation,
			"minSize (%d) must not exceed maxSize (%d)", *c.MinSize, *c.MaxSize)
	}

	return nil
}
