// Package toy writes small random-weight model directories. They load like a
// real model and are used by init-model and by tests across the module.
package toy

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/samcharles93/gptserve/internal/checkpoint"
	"github.com/samcharles93/gptserve/internal/hparams"
	"github.com/samcharles93/gptserve/internal/model"
	"github.com/samcharles93/gptserve/internal/tokenizer"
)

// CheckpointName is the weights file written by Write, without extension.
const CheckpointName = "model-0"

// Options shapes a toy model. NVocab in HParams is ignored and set to the
// size of the generated vocabulary.
type Options struct {
	HParams hparams.HParams
	Words   []string
	Seed    int64
}

// DefaultOptions returns a model small enough to restore in milliseconds.
func DefaultOptions() Options {
	return Options{
		HParams: hparams.HParams{NCtx: 64, NEmbd: 16, NHead: 2, NLayer: 1},
		Words:   []string{"Hello", " world", " the", " model", " server", " text"},
		Seed:    1,
	}
}

// Write creates <modelsDir>/<name> with hparams.json, encoder.json,
// vocab.bpe, random weights and a checkpoint index. It returns the
// hyperparameters written.
func Write(modelsDir, name string, opts Options) (hparams.HParams, error) {
	dir := filepath.Join(modelsDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return hparams.HParams{}, err
	}

	merges := tokenizer.WordMerges(opts.Words...)
	vocab := tokenizer.ByteLevelVocab(merges)
	hp := opts.HParams
	hp.NVocab = len(vocab)
	if err := hparams.Write(dir, hp); err != nil {
		return hparams.HParams{}, fmt.Errorf("write hparams: %w", err)
	}
	if err := tokenizer.WriteDir(dir, vocab, merges); err != nil {
		return hparams.HParams{}, fmt.Errorf("write tokenizer: %w", err)
	}

	m, err := model.NewRandom(hp, opts.Seed)
	if err != nil {
		return hparams.HParams{}, err
	}
	if err := m.Save(filepath.Join(dir, CheckpointName+checkpoint.Ext)); err != nil {
		return hparams.HParams{}, fmt.Errorf("write weights: %w", err)
	}
	if err := checkpoint.WriteIndex(dir, CheckpointName); err != nil {
		return hparams.HParams{}, fmt.Errorf("write checkpoint index: %w", err)
	}
	return hp, nil
}
