package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/gptserve/internal/logger"
	"github.com/samcharles93/gptserve/internal/server"
	"github.com/samcharles93/gptserve/internal/session"
	"github.com/samcharles93/gptserve/internal/version"
)

func serveCmd() *cli.Command {
	var opts serveOptions

	return &cli.Command{
		Name:  "serve",
		Usage: "Restore a model and serve POST requests",
		Flags: serveFlags(&opts),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			file, err := loadFileConfig(opts.configPath)
			if err != nil {
				return err
			}
			applyServeConfig(cmd, file, &opts)
			cfg := opts.serverConfig()
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			sess, err := session.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			h := server.NewHandler(sess, cfg.MaxPromptBytes, log)
			log.Info("starting server",
				"address", cfg.Addr,
				"model", cfg.ModelName,
				"nsamples", cfg.NSamples,
				"batch_size", cfg.BatchSize,
				"seeded", cfg.Seed != nil,
				"version", version.String(),
			)
			return server.Serve(ctx, server.Config{Addr: cfg.Addr, ReadTimeout: cfg.ReadTimeout}, h)
		},
	}
}
