package cmd

import (
	"context"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/segmentsql/internal/config"
	"github.com/kyleking/segmentsql/internal/errors"
	"github.com/kyleking/segmentsql/internal/formatter"
	"github.com/kyleking/segmentsql/internal/logging"
)

const appName = "segmentsql"

type configKey struct{}

// overrideFlags are the global flags forwarded to config.LoadConfigWithOverrides
var overrideFlags = []string{"schema-dir", "provider", "model", "engine-driver", "engine-dsn", "log-level", "strategy"}

// NewApp builds the command tree
func NewApp() *cli.Command {
	return &cli.Command{
		Name:  appName,
		Usage: "Turn audience descriptions into validated segment SQL",
		Description: `segmentsql compiles a natural-language audience description and a table schema
into a prompt, asks a language model for a SQL query, and validates the result
for read-only safety and schema conformance. Queries can be checked against a
local query engine's planner and previewed before they are used.`,
		Flags:  globalFlags(),
		Before: loadConfig,
		After:  closeLogger,
		Commands: []*cli.Command{
			ServeCommand(),
			GenerateCommand(),
			ValidateCommand(),
			PreviewCommand(),
			SchemaCommand(),
			SandboxCommand(),
			ConfigCommand(),
		},
	}
}

// Execute runs the CLI with the given arguments
func Execute(ctx context.Context, args []string) error {
	return NewApp().Run(ctx, args)
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "path to a JSON config file"},
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		&cli.StringFlag{Name: "schema-dir", Usage: "directory holding schema documents"},
		&cli.StringFlag{Name: "provider", Usage: "generation provider: openai, anthropic, ollama or gemini"},
		&cli.StringFlag{Name: "model", Usage: "model name passed to the provider"},
		&cli.StringFlag{Name: "engine-driver", Usage: "query engine: duckdb or postgres"},
		&cli.StringFlag{Name: "engine-dsn", Usage: "query engine DSN or DuckDB file"},
		&cli.StringFlag{Name: "strategy", Usage: "schema validation strategy: regex or tokenizer"},
		&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "long", Usage: "output format: long, short or json"},
		&cli.BoolFlag{Name: "no-color", Usage: "disable colored output"},
	}
}

func loadConfig(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		if err := os.Setenv("SEGMENTSQL_CONFIG", path); err != nil {
			return ctx, errors.Wrap(err, errors.ErrTypeConfig, "failed to set config path")
		}
	}

	overrides := make(map[string]interface{})

	for _, name := range overrideFlags {
		if cmd.IsSet(name) {
			overrides[name] = cmd.String(name)
		}
	}

	cfg, err := config.LoadConfigWithOverrides(overrides)
	if err != nil {
		return ctx, errors.Wrap(err, errors.ErrTypeConfig, "failed to load configuration").
			WithSuggestion("Run 'segmentsql config' to inspect the active configuration")
	}

	cfg.ExpandAllPaths()

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return ctx, errors.Wrap(err, errors.ErrTypeConfig, "failed to initialize logger")
	}

	ctx = context.WithValue(ctx, configKey{}, cfg)

	return logging.WithContext(ctx, logger), nil
}

func closeLogger(ctx context.Context, _ *cli.Command) error {
	return logging.FromContext(ctx).Close()
}

// getConfigFromContext returns the configuration loaded by the root command,
// or the defaults when none was loaded
func getConfigFromContext(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey{}).(*config.Config); ok && cfg != nil {
		return cfg
	}

	return config.DefaultConfig()
}

func outputFormat(cmd *cli.Command) (formatter.OutputFormat, error) {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrTypeValidation, "invalid --format")
	}

	return format, nil
}

func newFormatter(cmd *cli.Command) *formatter.Formatter {
	f := formatter.NewFormatter()
	if cmd.Bool("no-color") {
		f.NoColor = true
	}

	return f
}

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}

	return os.Stdout
}
