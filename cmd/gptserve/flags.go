package main

import (
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/gptserve/internal/config"
)

const envPrefix = "GPTSERVE_"

type logOptions struct {
	level  string
	format string
	debug  bool
}

func loggingFlags(o *logOptions) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars(envPrefix + "LOG_LEVEL"),
			Destination: &o.level,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Sources:     cli.EnvVars(envPrefix + "LOG_FORMAT"),
			Destination: &o.format,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &o.debug,
		},
	}
}

// modelOptions selects a model directory.
type modelOptions struct {
	name string
	dir  string
}

func modelFlags(o *modelOptions) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model-name",
			Aliases:     []string{"m"},
			Usage:       "model directory name under --models-dir",
			Value:       config.DefaultModelName,
			Sources:     cli.EnvVars(envPrefix + "MODEL_NAME"),
			Destination: &o.name,
		},
		&cli.StringFlag{
			Name:        "models-dir",
			Usage:       "directory containing model directories (~ and $VARS are expanded)",
			Value:       config.DefaultModelsDir,
			Sources:     cli.EnvVars(envPrefix + "MODELS_DIR"),
			Destination: &o.dir,
		},
	}
}

// serveOptions collects the serve command flags.
type serveOptions struct {
	model          modelOptions
	seed           int64
	nsamples       int
	batchSize      int
	length         int
	temperature    float64
	topK           int
	topP           float64
	addr           string
	readTimeout    time.Duration
	maxPromptBytes int64
	configPath     string
}

func serveFlags(o *serveOptions) []cli.Flag {
	return append(modelFlags(&o.model),
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "fixed random seed for every request (-1 draws a new seed per request)",
			Value:       -1,
			Sources:     cli.EnvVars(envPrefix + "SEED"),
			Destination: &o.seed,
		},
		&cli.IntFlag{
			Name:        "nsamples",
			Usage:       "samples generated per request, a multiple of --batch-size",
			Value:       config.DefaultNSamples,
			Sources:     cli.EnvVars(envPrefix + "NSAMPLES"),
			Destination: &o.nsamples,
		},
		&cli.IntFlag{
			Name:        "batch-size",
			Usage:       "samples generated per round",
			Value:       config.DefaultBatchSize,
			Sources:     cli.EnvVars(envPrefix + "BATCH_SIZE"),
			Destination: &o.batchSize,
		},
		&cli.IntFlag{
			Name:        "length",
			Usage:       "output length; a third of it is generated (0 = half the context window)",
			Sources:     cli.EnvVars(envPrefix + "LENGTH"),
			Destination: &o.length,
		},
		&cli.Float64Flag{
			Name:        "temperature",
			Aliases:     []string{"temp", "t"},
			Usage:       "sampling temperature (0 = greedy)",
			Value:       config.DefaultTemperature,
			Sources:     cli.EnvVars(envPrefix + "TEMPERATURE"),
			Destination: &o.temperature,
		},
		&cli.IntFlag{
			Name:        "top-k",
			Usage:       "keep only the k most likely tokens (0 = no limit)",
			Value:       config.DefaultTopK,
			Sources:     cli.EnvVars(envPrefix + "TOP_K"),
			Destination: &o.topK,
		},
		&cli.Float64Flag{
			Name:        "top-p",
			Usage:       "nucleus sampling threshold in (0, 1]",
			Value:       config.DefaultTopP,
			Sources:     cli.EnvVars(envPrefix + "TOP_P"),
			Destination: &o.topP,
		},
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address",
			Value:       config.DefaultAddr,
			Sources:     cli.EnvVars(envPrefix + "ADDR"),
			Destination: &o.addr,
		},
		&cli.DurationFlag{
			Name:        "read-timeout",
			Usage:       "request read timeout",
			Value:       config.DefaultReadTimeout,
			Destination: &o.readTimeout,
		},
		&cli.Int64Flag{
			Name:        "max-prompt-bytes",
			Usage:       "largest accepted request body",
			Value:       config.DefaultMaxPromptBytes,
			Destination: &o.maxPromptBytes,
		},
		&cli.StringFlag{
			Name:        "config",
			Usage:       "config file (empty disables)",
			Value:       configPath(),
			Sources:     cli.EnvVars(envPrefix + "CONFIG"),
			Destination: &o.configPath,
		},
	)
}

// serverConfig converts the flag values.
func (o *serveOptions) serverConfig() config.ServerConfig {
	cfg := config.ServerConfig{
		ModelName:      o.model.name,
		ModelsDir:      o.model.dir,
		NSamples:       o.nsamples,
		BatchSize:      o.batchSize,
		Length:         o.length,
		Temperature:    float32(o.temperature),
		TopK:           o.topK,
		TopP:           float32(o.topP),
		Addr:           o.addr,
		ReadTimeout:    o.readTimeout,
		MaxPromptBytes: o.maxPromptBytes,
	}
	if o.seed >= 0 {
		seed := o.seed
		cfg.Seed = &seed
	}
	return cfg
}
