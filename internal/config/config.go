// Package config holds the resolved server configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samcharles93/gptserve/internal/logits"
)

// ErrInvalid reports a configuration the server cannot start with.
var ErrInvalid = errors.New("invalid configuration")

// Defaults.
const (
	DefaultModelName      = "345M"
	DefaultModelsDir      = "models"
	DefaultAddr           = "0.0.0.0:7001"
	DefaultNSamples       = 1
	DefaultBatchSize      = 1
	DefaultTemperature    = 0.8
	DefaultTopK           = 40
	DefaultTopP           = 1.0
	DefaultReadTimeout    = 30 * time.Second
	DefaultMaxPromptBytes = 1 << 20
)

// ServerConfig is resolved once at startup and never changed.
type ServerConfig struct {
	ModelName string
	ModelsDir string
	// Seed fixes the random stream of every request. nil draws a fresh seed per request.
	Seed      *int64
	NSamples  int
	BatchSize int
	// Length is the configured output length. 0 means half the context window.
	Length      int
	Temperature float32
	TopK        int
	TopP        float32

	Addr           string
	ReadTimeout    time.Duration
	MaxPromptBytes int64
}

// Default returns the configuration used when nothing is overridden.
func Default() ServerConfig {
	return ServerConfig{
		ModelName:      DefaultModelName,
		ModelsDir:      DefaultModelsDir,
		NSamples:       DefaultNSamples,
		BatchSize:      DefaultBatchSize,
		Temperature:    DefaultTemperature,
		TopK:           DefaultTopK,
		TopP:           DefaultTopP,
		Addr:           DefaultAddr,
		ReadTimeout:    DefaultReadTimeout,
		MaxPromptBytes: DefaultMaxPromptBytes,
	}
}

// Validate checks every field that does not depend on the model.
func (c ServerConfig) Validate() error {
	switch {
	case strings.TrimSpace(c.ModelName) == "":
		return fmt.Errorf("%w: model name is required", ErrInvalid)
	case strings.TrimSpace(c.ModelsDir) == "":
		return fmt.Errorf("%w: models dir is required", ErrInvalid)
	case c.BatchSize < 1:
		return fmt.Errorf("%w: batch_size %d must be >= 1", ErrInvalid, c.BatchSize)
	case c.NSamples < 1:
		return fmt.Errorf("%w: nsamples %d must be >= 1", ErrInvalid, c.NSamples)
	case c.NSamples%c.BatchSize != 0:
		return fmt.Errorf("%w: nsamples %d is not a multiple of batch_size %d", ErrInvalid, c.NSamples, c.BatchSize)
	case c.Length < 0:
		return fmt.Errorf("%w: length %d must be >= 0", ErrInvalid, c.Length)
	case c.MaxPromptBytes < 1:
		return fmt.Errorf("%w: max prompt bytes %d must be positive", ErrInvalid, c.MaxPromptBytes)
	case c.ReadTimeout < 0:
		return fmt.Errorf("%w: read timeout %s must not be negative", ErrInvalid, c.ReadTimeout)
	}
	if err := c.Sampler().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Sampler returns the sampling controls.
func (c ServerConfig) Sampler() logits.SamplerConfig {
	return logits.SamplerConfig{Temperature: c.Temperature, TopK: c.TopK, TopP: c.TopP}
}

// Rounds is the number of sampling rounds run per request.
func (c ServerConfig) Rounds() int { return c.NSamples / c.BatchSize }

// ConfiguredLength resolves Length against the model window: 0 means nCtx/2.
func (c ServerConfig) ConfiguredLength(nCtx int) int {
	if c.Length == 0 {
		return nCtx / 2
	}
	return c.Length
}

// EffectiveLength is the number of tokens actually generated per sample,
// one third of the configured length rounded down.
func (c ServerConfig) EffectiveLength(nCtx int) int {
	return c.ConfiguredLength(nCtx) / 3
}

// ModelDir is the directory holding the selected model's files.
func (c ServerConfig) ModelDir() string {
	return filepath.Join(ExpandPath(c.ModelsDir), c.ModelName)
}

// ExpandPath expands environment variables and a leading ~ in p.
func ExpandPath(p string) string {
	p = os.ExpandEnv(p)
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
