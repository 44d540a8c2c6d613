package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/segmentsql/internal/errors"
	"github.com/kyleking/segmentsql/internal/formatter"
	"github.com/kyleking/segmentsql/internal/segment"
)

// Validator is the part of the pipeline the validate command uses
type Validator interface {
	Validate(ctx context.Context, req segment.ValidateRequest) (*segment.ValidateResult, error)
}

func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check a query for safety and schema conformance",
		ArgsUsage: " <sql|->",
		Description: `Run the syntax and schema validators over a query. With --explain the query is
also planned by the configured engine. Pass "-" to read the query from stdin.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "schema", Aliases: []string{"s"}, Usage: "schema id (default from config)"},
			&cli.BoolFlag{Name: "explain", Usage: "plan the query against the engine"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			sql, err := readSQL(cmd)
			if err != nil {
				return err
			}

			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}

			pipeline, err := buildPipeline(ctx, getConfigFromContext(ctx), false)
			if err != nil {
				return err
			}

			req := segment.ValidateRequest{
				SQL:     sql,
				Schema:  cmd.String("schema"),
				Explain: cmd.Bool("explain"),
			}

			return runValidate(ctx, stdout(cmd), pipeline, req, newFormatter(cmd), format)
		},
	}
}

func runValidate(ctx context.Context, w io.Writer, pipeline Validator, req segment.ValidateRequest, f *formatter.Formatter, format formatter.OutputFormat) error {
	result, err := pipeline.Validate(ctx, req)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintln(w, f.FormatValidation(result, format)); err != nil {
		return err
	}

	if !result.IsValid {
		return errors.Newf(errors.ErrTypeValidation, "query is invalid: %d error(s)", len(result.Errors))
	}

	return nil
}

// readSQL joins the positional arguments, reading stdin when the only argument is "-"
func readSQL(cmd *cli.Command) (string, error) {
	args := cmd.Args().Slice()

	if len(args) == 1 && args[0] == "-" {
		var r io.Reader = os.Stdin
		if cmd.Root().Reader != nil {
			r = cmd.Root().Reader
		}

		data, err := io.ReadAll(r)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrTypeFileSystem, "failed to read query from stdin")
		}

		args = []string{string(data)}
	}

	sql := strings.TrimSpace(strings.Join(args, " "))
	if sql == "" {
		return "", errors.New(errors.ErrTypeValidation, "a SQL query is required")
	}

	return sql, nil
}
