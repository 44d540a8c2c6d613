package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/segmentsql/internal/config"
	"github.com/kyleking/segmentsql/internal/engine"
	"github.com/kyleking/segmentsql/internal/errors"
	"github.com/kyleking/segmentsql/internal/schema"
)

func SandboxCommand() *cli.Command {
	return &cli.Command{
		Name:  "sandbox",
		Usage: "Manage empty schema tables in the query engine",
		Description: `Create the tables of a schema in the configured engine so queries can be planned
and previewed locally. Each schema version is applied once.`,
		Commands: []*cli.Command{
			{
				Name:      "init",
				Usage:     "Create the tables of a schema",
				ArgsUsage: " <schema-id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return sandboxAction(ctx, cmd, runSandboxInit)
				},
			},
			{
				Name:      "status",
				Usage:     "Report whether a schema's tables exist",
				ArgsUsage: " <schema-id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return sandboxAction(ctx, cmd, runSandboxStatus)
				},
			},
		},
	}
}

type sandboxRunner func(ctx context.Context, w io.Writer, sandbox *engine.Sandbox, def *schema.Definition) error

func sandboxAction(ctx context.Context, cmd *cli.Command, run sandboxRunner) error {
	if cmd.Args().Len() != 1 {
		return errors.Newf(errors.ErrTypeValidation, "expected exactly 1 argument, got %d", cmd.Args().Len())
	}

	cfg := getConfigFromContext(ctx)

	def, err := schema.NewDirRegistry(cfg.Schema.Directory).Load(ctx, cmd.Args().First())
	if err != nil {
		return err
	}

	sandbox, err := newSandbox(cfg)
	if err != nil {
		return err
	}

	return run(ctx, stdout(cmd), sandbox, def)
}

func newSandbox(cfg *config.Config) (*engine.Sandbox, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeFileSystem, "failed to create data directories")
	}

	eng, err := engine.NewFromConfig(cfg.Engine)
	if err != nil {
		return nil, err
	}

	return engine.NewSandbox(eng), nil
}

func runSandboxInit(ctx context.Context, w io.Writer, sandbox *engine.Sandbox, def *schema.Definition) error {
	applied, err := sandbox.Init(ctx, def)
	if err != nil {
		return err
	}

	if !applied {
		_, err = fmt.Fprintf(w, "Schema %s v%s is already initialized\n", def.ID, def.Version)
		return err
	}

	_, err = fmt.Fprintf(w, "Created %d tables for schema %s v%s\n", len(def.Tables()), def.ID, def.Version)

	return err
}

func runSandboxStatus(ctx context.Context, w io.Writer, sandbox *engine.Sandbox, def *schema.Definition) error {
	status, err := sandbox.Status(ctx, def)
	if err != nil {
		return err
	}

	if !status.Applied {
		_, err = fmt.Fprintf(w, "Schema %s v%s: not initialized\n", status.SchemaID, status.Version)
		return err
	}

	_, err = fmt.Fprintf(w, "Schema %s v%s: initialized %s\n",
		status.SchemaID, status.Version, status.AppliedAt.Format("2006-01-02 15:04:05"))

	return err
}
