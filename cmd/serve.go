package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/segmentsql/internal/auth"
	"github.com/kyleking/segmentsql/internal/config"
	"github.com/kyleking/segmentsql/internal/errors"
	"github.com/kyleking/segmentsql/internal/logging"
	"github.com/kyleking/segmentsql/internal/server"
)

func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the segment API over HTTP",
		Description: `Start the HTTP API. Every /api request must carry one of the configured keys,
either as "Authorization: Bearer <key>" or in the X-API-Key header. Keys come from
server.api_keys in the config file or SEGMENTSQL_SERVER_API_KEYS.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address (default from config)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := getConfigFromContext(ctx)
			if addr := cmd.String("addr"); addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := logging.FromContext(ctx)

	keys := auth.NewKeyStore(cfg.Server.APIKeys)
	if keys.Len() == 0 {
		return errors.NewConfigError("at least one API key is required to serve", "server.api_keys").
			WithSuggestion("Set SEGMENTSQL_SERVER_API_KEYS=name:secret")
	}

	pipeline, err := buildPipeline(ctx, cfg, true)
	if err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"addr": cfg.Server.Addr,
		"keys": keys.Len(),
	}).Info("serving segment API")

	if err := server.New(pipeline, keys, logger, cfg.Server).ListenAndServe(ctx); err != nil {
		return errors.Wrap(err, errors.ErrTypeInternal, "server stopped")
	}

	logger.Info("server stopped")

	return nil
}
