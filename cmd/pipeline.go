package cmd

import (
	"context"

	"github.com/kyleking/segmentsql/internal/config"
	"github.com/kyleking/segmentsql/internal/engine"
	"github.com/kyleking/segmentsql/internal/llm"
	"github.com/kyleking/segmentsql/internal/logging"
	"github.com/kyleking/segmentsql/internal/schema"
	"github.com/kyleking/segmentsql/internal/segment"
	"github.com/kyleking/segmentsql/internal/validation"
)

// newGenerator builds the generation service; tests replace it with a mock
var newGenerator = func(cfg config.LLMConfig) (llm.Service, error) {
	manager, err := llm.NewManagerFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	return manager, nil
}

// buildPipeline wires the pipeline stages from configuration. The generator is
// only constructed when withGenerator is set so validation and previews work
// without provider credentials.
func buildPipeline(ctx context.Context, cfg *config.Config, withGenerator bool) (*segment.Service, error) {
	logger := logging.FromContext(ctx)

	validator, err := validation.NewSchemaValidator(cfg.Validation.Strategy)
	if err != nil {
		return nil, err
	}

	eng, err := engine.NewFromConfig(cfg.Engine)
	if err != nil {
		return nil, err
	}

	var generator llm.Service

	if withGenerator {
		generator, err = newGenerator(cfg.LLM)
		if err != nil {
			return nil, err
		}

		logger.WithFields(map[string]interface{}{
			"provider": cfg.LLM.Provider,
			"model":    generator.Model(),
		}).Debug("generation provider ready")
	}

	logger.WithFields(map[string]interface{}{
		"schema_dir": cfg.Schema.Directory,
		"strategy":   validator.Name(),
		"engine":     eng.Driver(),
	}).Debug("pipeline configured")

	return segment.NewService(schema.NewDirRegistry(cfg.Schema.Directory), generator, segment.Options{
		DefaultSchema: cfg.Schema.DefaultID,
		Validator:     validator,
		Plans:         engine.NewPlanValidator(eng),
		Previews:      engine.NewExecutor(eng, engine.BoundsFromConfig(cfg.Engine)),
	}), nil
}
