package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/segmentsql/internal/errors"
	"github.com/kyleking/segmentsql/internal/schema"
)

func SchemaCommand() *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "Inspect schema documents",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List schema ids in the schema directory",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					format, err := outputFormat(cmd)
					if err != nil {
						return err
					}

					registry := schema.NewDirRegistry(getConfigFromContext(ctx).Schema.Directory)

					ids, err := registry.List(ctx)
					if err != nil {
						return err
					}

					_, err = fmt.Fprintln(stdout(cmd), newFormatter(cmd).FormatSchemaList(ids, format))

					return err
				},
			},
			{
				Name:      "show",
				Usage:     "Show the tables and fields of a schema",
				ArgsUsage: " <schema-id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 1 {
						return errors.Newf(errors.ErrTypeValidation, "expected exactly 1 argument, got %d", cmd.Args().Len())
					}

					format, err := outputFormat(cmd)
					if err != nil {
						return err
					}

					registry := schema.NewDirRegistry(getConfigFromContext(ctx).Schema.Directory)

					def, err := registry.Load(ctx, cmd.Args().First())
					if err != nil {
						return err
					}

					_, err = fmt.Fprintln(stdout(cmd), newFormatter(cmd).FormatSchema(def, format))

					return err
				},
			},
		},
	}
}
