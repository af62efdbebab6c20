package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/gptserve/internal/logger"
)

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.Command {
	var logOpts logOptions
	return &cli.Command{
		Name:      "gptserve",
		Usage:     "Serve GPT-2 text generation over HTTP",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags:     loggingFlags(&logOpts),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			level := logOpts.level
			if logOpts.debug {
				level = "debug"
			}
			log, err := logger.Setup(stderr, level, logOpts.format)
			if err != nil {
				return ctx, err
			}
			return logger.WithContext(ctx, log), nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			serveCmd(),
			initModelCmd(),
			versionCmd(),
		},
	}
}
