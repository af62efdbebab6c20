package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/gptserve/internal/config"
	"github.com/samcharles93/gptserve/internal/logger"
	"github.com/samcharles93/gptserve/internal/toy"
)

func initModelCmd() *cli.Command {
	var (
		model modelOptions
		nCtx  int
		embd  int
		seed  int64
		words []string
	)

	return &cli.Command{
		Name:  "init-model",
		Usage: "Write a small random-weight model directory for smoke tests",
		Flags: append(modelFlags(&model),
			&cli.IntFlag{Name: "n-ctx", Usage: "context window", Value: 64, Destination: &nCtx},
			&cli.IntFlag{Name: "n-embd", Usage: "embedding width", Value: 16, Destination: &embd},
			&cli.Int64Flag{Name: "seed", Usage: "weight seed", Value: 1, Destination: &seed},
			&cli.StringSliceFlag{Name: "word", Usage: "word to add to the vocabulary as a single token (repeatable)", Destination: &words},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			opts := toy.DefaultOptions()
			opts.HParams.NCtx = nCtx
			opts.HParams.NEmbd = embd
			opts.HParams.NHead = 1
			opts.Seed = seed
			if len(words) > 0 {
				opts.Words = words
			}

			dir := config.ExpandPath(model.dir)
			hp, err := toy.Write(dir, model.name, opts)
			if err != nil {
				return fmt.Errorf("init model: %w", err)
			}
			log.Info("model written",
				"dir", filepath.Join(dir, model.name),
				"n_vocab", hp.NVocab,
				"n_ctx", hp.NCtx,
				"n_embd", hp.NEmbd,
			)
			return nil
		},
	}
}
