// Package session owns the restored model and runs the generation pipeline
// for one prompt at a time.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/samcharles93/gptserve/internal/checkpoint"
	"github.com/samcharles93/gptserve/internal/config"
	"github.com/samcharles93/gptserve/internal/hparams"
	"github.com/samcharles93/gptserve/internal/logger"
	"github.com/samcharles93/gptserve/internal/model"
	"github.com/samcharles93/gptserve/internal/sample"
	"github.com/samcharles93/gptserve/internal/tokenizer"
)

// ErrLengthTooLarge is returned at startup when the configured length does
// not fit the model window.
var ErrLengthTooLarge = errors.New("length exceeds model window")

// Session is created once per process. It is not safe for concurrent use;
// callers serialize Generate.
type Session struct {
	cfg    config.ServerConfig
	hp     hparams.HParams
	codec  tokenizer.Tokenizer
	lm     model.LM
	op     *sample.Op
	rounds int
	log    logger.Logger
}

// New loads everything a session needs from cfg.ModelDir. Any failure here is
// fatal to the process.
func New(ctx context.Context, cfg config.ServerConfig, log logger.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	modelsDir := config.ExpandPath(cfg.ModelsDir)

	hp, err := hparams.Load(modelsDir, cfg.ModelName)
	if err != nil {
		return nil, err
	}
	if l := cfg.ConfiguredLength(hp.NCtx); l > hp.NCtx {
		return nil, fmt.Errorf("%w: length %d, n_ctx %d", ErrLengthTooLarge, l, hp.NCtx)
	}

	codec, err := tokenizer.Load(modelsDir, cfg.ModelName)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	if codec.VocabSize() > hp.NVocab {
		return nil, fmt.Errorf("tokenizer has %d tokens, model vocabulary is %d", codec.VocabSize(), hp.NVocab)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := checkpoint.Latest(cfg.ModelDir())
	if err != nil {
		return nil, err
	}
	f, err := checkpoint.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	lm, err := model.Restore(hp, f)
	closeErr := f.Close()
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", path, err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close checkpoint: %w", closeErr)
	}

	s, err := Assemble(cfg, codec, lm, log)
	if err != nil {
		return nil, err
	}
	log.Info("model restored",
		"model", cfg.ModelName,
		"checkpoint", path,
		"n_vocab", hp.NVocab,
		"n_ctx", hp.NCtx,
		"length", s.op.Length(),
		"rounds", s.rounds,
	)
	return s, nil
}

// Assemble builds a session around an already restored model.
func Assemble(cfg config.ServerConfig, codec tokenizer.Tokenizer, lm model.LM, log logger.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	hp := lm.HParams()
	op, err := sample.NewOp(hp, cfg.EffectiveLength(hp.NCtx), cfg.BatchSize, cfg.Sampler())
	if err != nil {
		return nil, fmt.Errorf("build sampling op: %w", err)
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Session{
		cfg:    cfg,
		hp:     hp,
		codec:  codec,
		lm:     lm,
		op:     op,
		rounds: cfg.Rounds(),
		log:    log,
	}, nil
}

// HParams reports the restored model shape.
func (s *Session) HParams() hparams.HParams { return s.hp }

// Length is the number of tokens generated per sample.
func (s *Session) Length() int { return s.op.Length() }

// Generation is the outcome of one prompt.
type Generation struct {
	ContextTokens []int
	// Rounds holds the generated tokens of every round, one slice per batch slot.
	Rounds [][][]int
	// Samples holds every decoded sample in generation order.
	Samples []string
}

// Text is the sample returned to the client: the last one generated.
func (g *Generation) Text() string {
	if g == nil || len(g.Samples) == 0 {
		return ""
	}
	return g.Samples[len(g.Samples)-1]
}

// Generate encodes prompt, runs every sampling round and decodes all samples.
// Errors are *StageError.
func (s *Session) Generate(ctx context.Context, prompt string) (*Generation, error) {
	ids, err := s.codec.Encode(prompt)
	if err != nil {
		return nil, &StageError{Stage: StageEncode, Err: err}
	}
	s.log.Debug("prompt", "text", prompt, "tokens", len(ids))

	batch := make([][]int, s.op.BatchSize())
	for i := range batch {
		batch[i] = ids
	}
	rng := s.newRand()

	gen := &Generation{ContextTokens: ids}
	for r := 0; r < s.rounds; r++ {
		seqs, err := s.op.Run(ctx, s.lm, batch, rng)
		if err != nil {
			return nil, &StageError{Stage: StageSample, Err: err}
		}
		out := sample.Suffix(seqs, len(ids))
		gen.Rounds = append(gen.Rounds, out)
		for _, toks := range out {
			text, err := s.codec.Decode(toks)
			if err != nil {
				return nil, &StageError{Stage: StageDecode, Err: err}
			}
			gen.Samples = append(gen.Samples, text)
		}
	}
	return gen, nil
}

// newRand returns the random source for one request. A configured seed gives
// every request the same stream.
func (s *Session) newRand() *rand.Rand {
	if s.cfg.Seed != nil {
		return rand.New(rand.NewSource(*s.cfg.Seed))
	}
	return rand.New(rand.NewSource(rand.Int63()))
}
