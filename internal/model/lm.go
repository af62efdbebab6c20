// Package model provides the language models that score the next token.
package model

import (
	"errors"

	"github.com/samcharles93/gptserve/internal/hparams"
)

var (
	// ErrEmptyContext is returned when logits are requested for no tokens.
	ErrEmptyContext = errors.New("empty context")
	// ErrContextOverflow is returned when the context exceeds n_ctx.
	ErrContextOverflow = errors.New("context exceeds model window")
	// ErrTokenRange is returned for token ids outside the vocabulary.
	ErrTokenRange = errors.New("token id out of vocabulary")
)

// LM scores the next token given the tokens so far.
type LM interface {
	// HParams reports the shape the model was restored with.
	HParams() hparams.HParams
	// Logits returns one unnormalized score per vocabulary entry for the
	// token that follows context.
	Logits(context []int) ([]float32, error)
}
