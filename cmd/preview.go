package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/segmentsql/internal/engine"
	"github.com/kyleking/segmentsql/internal/formatter"
	"github.com/kyleking/segmentsql/internal/segment"
)

// PreviewRunner is the part of the pipeline the preview command uses
type PreviewRunner interface {
	Preview(ctx context.Context, req segment.PreviewRequest) (*engine.PreviewResult, error)
}

func PreviewCommand() *cli.Command {
	return &cli.Command{
		Name:      "preview",
		Usage:     "Sample rows and count the audience of a query",
		ArgsUsage: " <sql|->",
		Description: `Run a read-only query against the configured engine with a row limit and report
the full audience count. Use "segmentsql sandbox init" to create empty schema
tables in a local DuckDB file first.`,
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "max-rows", Aliases: []string{"n"}, Usage: "rows to return (default from config)"},
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

			req := segment.PreviewRequest{SQL: sql, MaxRows: int(cmd.Int("max-rows"))}

			return runPreview(ctx, stdout(cmd), pipeline, req, newFormatter(cmd), format)
		},
	}
}

func runPreview(ctx context.Context, w io.Writer, pipeline PreviewRunner, req segment.PreviewRequest, f *formatter.Formatter, format formatter.OutputFormat) error {
	result, err := pipeline.Preview(ctx, req)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, f.FormatPreview(result, format))

	return err
}
