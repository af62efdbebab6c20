// Package sample runs autoregressive sampling over a batch of contexts.
package sample

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/samcharles93/gptserve/internal/hparams"
	"github.com/samcharles93/gptserve/internal/logits"
	"github.com/samcharles93/gptserve/internal/model"
)

// ErrBatchShape is returned when Run receives the wrong number of contexts.
var ErrBatchShape = errors.New("batch shape mismatch")

// Op is a sampling operation with a fixed shape: every Run extends exactly
// BatchSize contexts by Length tokens. An Op is built once and reused.
type Op struct {
	hp        hparams.HParams
	length    int
	batchSize int
	sampler   *logits.Sampler
}

// NewOp validates the operation shape and builds its sampler.
func NewOp(hp hparams.HParams, length, batchSize int, cfg logits.SamplerConfig) (*Op, error) {
	if err := hp.Validate(); err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, fmt.Errorf("sample length %d must not be negative", length)
	}
	if length > hp.NCtx {
		return nil, fmt.Errorf("sample length %d exceeds n_ctx %d", length, hp.NCtx)
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size %d must be positive", batchSize)
	}
	s, err := logits.NewSampler(cfg)
	if err != nil {
		return nil, err
	}
	return &Op{hp: hp, length: length, batchSize: batchSize, sampler: s}, nil
}

// Length is the number of tokens each Run appends per context.
func (o *Op) Length() int { return o.length }

// BatchSize is the number of contexts each Run expects.
func (o *Op) BatchSize() int { return o.batchSize }

// Run extends each context in batch with Length sampled tokens and returns
// the full sequences, context included. Slots are sampled in order at every
// step, drawing from rng. ctx is checked between steps.
func (o *Op) Run(ctx context.Context, lm model.LM, batch [][]int, rng *rand.Rand) ([][]int, error) {
	if len(batch) != o.batchSize {
		return nil, fmt.Errorf("%w: got %d contexts, want %d", ErrBatchShape, len(batch), o.batchSize)
	}
	if got := lm.HParams().NVocab; got != o.hp.NVocab {
		return nil, fmt.Errorf("%w: model vocabulary %d, op built for %d", ErrBatchShape, got, o.hp.NVocab)
	}

	seqs := make([][]int, len(batch))
	for i, c := range batch {
		seq := make([]int, len(c), len(c)+o.length)
		copy(seq, c)
		seqs[i] = seq
	}
	for step := 0; step < o.length; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range seqs {
			scores, err := lm.Logits(seqs[i])
			if err != nil {
				return nil, fmt.Errorf("step %d slot %d: %w", step, i, err)
			}
			seqs[i] = append(seqs[i], o.sampler.Sample(rng, scores))
		}
	}
	return seqs, nil
}

// Suffix drops the first n tokens of every sequence.
func Suffix(seqs [][]int, n int) [][]int {
	out := make([][]int, len(seqs))
	for i, s := range seqs {
		if n >= len(s) {
			out[i] = []int{}
			continue
		}
		out[i] = append([]int(nil), s[n:]...)
	}
	return out
}
