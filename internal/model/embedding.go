package model

import (
	"fmt"
	"slices"

	"github.com/samcharles93/gptserve/internal/checkpoint"
	"github.com/samcharles93/gptserve/internal/hparams"
	"github.com/samcharles93/gptserve/internal/tensor"
)

// Tensor names read from and written to checkpoints.
const (
	TensorWTE  = "model/wte"
	TensorWPE  = "model/wpe"
	TensorLNFG = "model/ln_f/g"
	TensorLNFB = "model/ln_f/b"
)

const layerNormEps = 1e-5

// EmbeddingLM is a small reference model built from the GPT-2 embedding
// tables and final layer norm. The hidden state is the layer-normed mean of
// token plus position embeddings; logits are its product with the tied
// token embedding.
type EmbeddingLM struct {
	hp  hparams.HParams
	wte tensor.Mat // [n_vocab x n_embd]
	wpe tensor.Mat // [n_ctx x n_embd]
	g   []float32
	b   []float32
}

// Restore reads the embedding model from an opened checkpoint.
func Restore(hp hparams.HParams, f *checkpoint.File) (*EmbeddingLM, error) {
	if err := hp.Validate(); err != nil {
		return nil, err
	}
	wte, err := readMat(f, TensorWTE, hp.NVocab, hp.NEmbd)
	if err != nil {
		return nil, err
	}
	wpe, err := readMat(f, TensorWPE, hp.NCtx, hp.NEmbd)
	if err != nil {
		return nil, err
	}
	g, err := readVec(f, TensorLNFG, hp.NEmbd)
	if err != nil {
		return nil, err
	}
	b, err := readVec(f, TensorLNFB, hp.NEmbd)
	if err != nil {
		return nil, err
	}
	return &EmbeddingLM{hp: hp, wte: wte, wpe: wpe, g: g, b: b}, nil
}

// NewRandom builds a model with reproducible random embeddings and an
// identity layer norm.
func NewRandom(hp hparams.HParams, seed int64) (*EmbeddingLM, error) {
	if err := hp.Validate(); err != nil {
		return nil, err
	}
	m := &EmbeddingLM{
		hp:  hp,
		wte: tensor.NewMat(hp.NVocab, hp.NEmbd),
		wpe: tensor.NewMat(hp.NCtx, hp.NEmbd),
		g:   make([]float32, hp.NEmbd),
		b:   make([]float32, hp.NEmbd),
	}
	tensor.FillRand(&m.wte, seed+11, 0.2)
	tensor.FillRand(&m.wpe, seed+23, 0.02)
	for i := range m.g {
		m.g[i] = 1
	}
	return m, nil
}

// Save writes the model weights to path as a safetensors checkpoint.
func (m *EmbeddingLM) Save(path string) error {
	return checkpoint.Save(path, map[string]checkpoint.Tensor{
		TensorWTE:  {Shape: []int{m.wte.R, m.wte.C}, Data: m.wte.Data},
		TensorWPE:  {Shape: []int{m.wpe.R, m.wpe.C}, Data: m.wpe.Data},
		TensorLNFG: {Shape: []int{len(m.g)}, Data: m.g},
		TensorLNFB: {Shape: []int{len(m.b)}, Data: m.b},
	})
}

func (m *EmbeddingLM) HParams() hparams.HParams { return m.hp }

// Logits implements LM.
func (m *EmbeddingLM) Logits(context []int) ([]float32, error) {
	if len(context) == 0 {
		return nil, ErrEmptyContext
	}
	if len(context) > m.hp.NCtx {
		return nil, fmt.Errorf("%w: %d tokens, n_ctx %d", ErrContextOverflow, len(context), m.hp.NCtx)
	}

	h := make([]float32, m.hp.NEmbd)
	for pos, tok := range context {
		if tok < 0 || tok >= m.hp.NVocab {
			return nil, fmt.Errorf("%w: %d at position %d", ErrTokenRange, tok, pos)
		}
		tensor.Add(h, m.wte.Row(tok))
		tensor.Add(h, m.wpe.Row(pos))
	}
	tensor.Scale(h, 1/float32(len(context)))
	tensor.LayerNorm(h, h, m.g, m.b, layerNormEps)

	logits := make([]float32, m.hp.NVocab)
	tensor.MatVec(logits, &m.wte, h)
	return logits, nil
}

func readMat(f *checkpoint.File, name string, rows, cols int) (tensor.Mat, error) {
	data, shape, err := f.Float32(name)
	if err != nil {
		return tensor.Mat{}, err
	}
	if !slices.Equal(shape, []int{rows, cols}) {
		return tensor.Mat{}, fmt.Errorf("tensor %s: shape %v, want [%d %d]", name, shape, rows, cols)
	}
	return tensor.NewMatFromData(rows, cols, data)
}

func readVec(f *checkpoint.File, name string, n int) ([]float32, error) {
	data, shape, err := f.Float32(name)
	if err != nil {
		return nil, err
	}
	if !slices.Equal(shape, []int{n}) {
		return nil, fmt.Errorf("tensor %s: shape %v, want [%d]", name, shape, n)
	}
	return data, nil
}
