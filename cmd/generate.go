package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/urfave/cli/v3"

	"github.com/kyleking/segmentsql/internal/errors"
	"github.com/kyleking/segmentsql/internal/formatter"
	"github.com/kyleking/segmentsql/internal/logging"
	"github.com/kyleking/segmentsql/internal/prompt"
	"github.com/kyleking/segmentsql/internal/segment"
)

// Generator is the part of the pipeline the generate command uses
type Generator interface {
	Generate(ctx context.Context, req segment.GenerateRequest) (*segment.Result, error)
	CompilePrompt(ctx context.Context, req segment.GenerateRequest) (string, error)
}

func GenerateCommand() *cli.Command {
	return &cli.Command{
		Name:      "generate",
		Usage:     "Generate a segment query from a description",
		ArgsUsage: " <description>",
		Description: `Compile the description and schema into a prompt, ask the configured model for
a query, and validate the result.

Examples:
  segmentsql generate "affluent families with children"
  segmentsql generate --use-case email-marketing --require-email "recent movers"
  segmentsql generate --print-prompt "empty nesters in the midwest"`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "schema", Aliases: []string{"s"}, Usage: "schema id (default from config)"},
			&cli.StringFlag{Name: "use-case", Usage: "email-marketing, direct-mail, lookalike or suppression"},
			&cli.IntFlag{Name: "min-size", Usage: "minimum audience size"},
			&cli.IntFlag{Name: "max-size", Usage: "maximum audience size"},
			&cli.BoolFlag{Name: "require-email", Usage: "only households with an email address"},
			&cli.BoolFlag{Name: "require-phone", Usage: "only households with a phone number"},
			&cli.BoolFlag{Name: "print-prompt", Usage: "print the compiled prompt instead of calling the model"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			text := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
			if text == "" {
				return errors.New(errors.ErrTypeValidation, "a segment description is required")
			}

			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}

			printPrompt := cmd.Bool("print-prompt")

			pipeline, err := buildPipeline(ctx, getConfigFromContext(ctx), !printPrompt)
			if err != nil {
				return err
			}

			req := segment.GenerateRequest{
				Prompt:      text,
				Schema:      cmd.String("schema"),
				UseCase:     cmd.String("use-case"),
				Constraints: constraintsFromFlags(cmd),
			}

			opts := generateOptions{
				printPrompt: printPrompt,
				format:      format,
				formatter:   newFormatter(cmd),
				spin:        format != formatter.FormatJSON,
			}

			return runGenerate(ctx, stdout(cmd), pipeline, req, opts)
		},
	}
}

type generateOptions struct {
	printPrompt bool
	format      formatter.OutputFormat
	formatter   *formatter.Formatter
	spin        bool
}

func runGenerate(ctx context.Context, w io.Writer, pipeline Generator, req segment.GenerateRequest, opts generateOptions) error {
	if opts.printPrompt {
		text, err := pipeline.CompilePrompt(ctx, req)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(w, text)

		return err
	}

	var result *segment.Result

	err := logging.LoggerMiddleware(ctx, "generate", func() error {
		stop := startSpinner(opts.spin, " Generating segment...")
		defer stop()

		var err error
		result, err = pipeline.Generate(ctx, req)

		return err
	})
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, opts.formatter.FormatResult(result, opts.format))

	return err
}

// constraintsFromFlags returns nil when no constraint flag was given
func constraintsFromFlags(cmd *cli.Command) *prompt.Constraints {
	c := &prompt.Constraints{}

	if cmd.IsSet("min-size") {
		v := int(cmd.Int("min-size"))
		c.MinSize = &v
	}

	if cmd.IsSet("max-size") {
		v := int(cmd.Int("max-size"))
		c.MaxSize = &v
	}

	if cmd.IsSet("require-email") {
		v := cmd.Bool("require-email")
		c.RequireEmail = &v
	}

	if cmd.IsSet("require-phone") {
		v := cmd.Bool("require-phone")
		c.RequirePhone = &v
	}

	if c.IsEmpty() {
		return nil
	}

	return c
}

// startSpinner shows progress on stderr and returns the function that stops it.
// The spinner only draws when stderr is a terminal.
func startSpinner(enabled bool, suffix string) func() {
	if !enabled {
		return func() {}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = suffix
	s.Start()

	return s.Stop
}
