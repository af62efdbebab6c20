// Package hparams loads model hyperparameters from hparams.json.
package hparams

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// FileName is the hyperparameter file expected in every model directory.
const FileName = "hparams.json"

// ErrInvalid reports hyperparameters that cannot describe a usable model.
var ErrInvalid = errors.New("invalid hyperparameters")

// HParams describes the shape of a GPT-2 style model.
type HParams struct {
	NVocab int `json:"n_vocab"`
	NCtx   int `json:"n_ctx"`
	NEmbd  int `json:"n_embd"`
	NHead  int `json:"n_head"`
	NLayer int `json:"n_layer"`
}

// Default returns the GPT-2 small hyperparameters.
func Default() HParams {
	return HParams{
		NVocab: 50257,
		NCtx:   1024,
		NEmbd:  768,
		NHead:  12,
		NLayer: 12,
	}
}

// Validate checks that every dimension is positive and heads divide the embedding.
func (h HParams) Validate() error {
	for _, f := range []struct {
		name string
		v    int
	}{
		{"n_vocab", h.NVocab},
		{"n_ctx", h.NCtx},
		{"n_embd", h.NEmbd},
		{"n_head", h.NHead},
		{"n_layer", h.NLayer},
	} {
		if f.v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalid, f.name, f.v)
		}
	}
	if h.NEmbd%h.NHead != 0 {
		return fmt.Errorf("%w: n_embd (%d) not divisible by n_head (%d)", ErrInvalid, h.NEmbd, h.NHead)
	}
	return nil
}

// Path returns the location of the hyperparameter file for a model.
func Path(modelsDir, modelName string) string {
	return filepath.Join(modelsDir, modelName, FileName)
}

// Load reads <modelsDir>/<modelName>/hparams.json. Keys present in the file
// override Default; unknown keys are ignored.
func Load(modelsDir, modelName string) (HParams, error) {
	path := Path(modelsDir, modelName)
	raw, err := os.ReadFile(path)
	if err != nil {
		return HParams{}, fmt.Errorf("read hparams: %w", err)
	}
	hp, err := Parse(raw)
	if err != nil {
		return HParams{}, fmt.Errorf("%s: %w", path, err)
	}
	return hp, nil
}

// Parse decodes hparams.json content over the defaults.
func Parse(raw []byte) (HParams, error) {
	hp := Default()
	if err := json.Unmarshal(raw, &hp); err != nil {
		return HParams{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := hp.Validate(); err != nil {
		return HParams{}, err
	}
	return hp, nil
}

// Write stores hp as indented JSON in <dir>/hparams.json.
func Write(dir string, hp HParams) error {
	if err := hp.Validate(); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(hp, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, FileName), append(raw, '\n'), 0o644)
}
