package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// fileConfig is the optional config file (~/.config/gptserve/config.yaml).
// All fields are pointers so we can distinguish "not set" from zero values.
type fileConfig struct {
	ModelName *string `yaml:"model_name"`
	ModelsDir *string `yaml:"models_dir"`

	Seed        *int64   `yaml:"seed"`
	NSamples    *int     `yaml:"nsamples"`
	BatchSize   *int     `yaml:"batch_size"`
	Length      *int     `yaml:"length"`
	Temperature *float64 `yaml:"temperature"`
	TopK        *int     `yaml:"top_k"`
	TopP        *float64 `yaml:"top_p"`

	Addr           *string `yaml:"addr"`
	MaxPromptBytes *int64  `yaml:"max_prompt_bytes"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "gptserve", "config.yaml")
}

// loadFileConfig reads path. A missing file or empty path yields a zero config.
func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

type flagSetter interface {
	IsSet(name string) bool
}

// applyServeConfig applies config file values to serve options whose flag
// was not set on the command line or through the environment.
func applyServeConfig(c flagSetter, cfg fileConfig, o *serveOptions) {
	setString(c, "model-name", cfg.ModelName, &o.model.name)
	setString(c, "models-dir", cfg.ModelsDir, &o.model.dir)
	setString(c, "addr", cfg.Addr, &o.addr)
	if cfg.Seed != nil && !c.IsSet("seed") {
		o.seed = *cfg.Seed
	}
	setInt(c, "nsamples", cfg.NSamples, &o.nsamples)
	setInt(c, "batch-size", cfg.BatchSize, &o.batchSize)
	setInt(c, "length", cfg.Length, &o.length)
	setInt(c, "top-k", cfg.TopK, &o.topK)
	if cfg.Temperature != nil && !c.IsSet("temperature") {
		o.temperature = *cfg.Temperature
	}
	if cfg.TopP != nil && !c.IsSet("top-p") {
		o.topP = *cfg.TopP
	}
	if cfg.MaxPromptBytes != nil && !c.IsSet("max-prompt-bytes") {
		o.maxPromptBytes = *cfg.MaxPromptBytes
	}
}

func setString(c flagSetter, name string, v *string, dst *string) {
	if v != nil && !c.IsSet(name) {
		*dst = *v
	}
}

func setInt(c flagSetter, name string, v *int, dst *int) {
	if v != nil && !c.IsSet(name) {
		*dst = *v
	}
}
