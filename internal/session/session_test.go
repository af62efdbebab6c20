package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/samcharles93/gptserve/internal/checkpoint"
	"github.com/samcharles93/gptserve/internal/config"
	"github.com/samcharles93/gptserve/internal/hparams"
	"github.com/samcharles93/gptserve/internal/logger"
	"github.com/samcharles93/gptserve/internal/model"
	"github.com/samcharles93/gptserve/internal/tokenizer"
	"github.com/samcharles93/gptserve/internal/toy"
)

func writeToy(t *testing.T) config.ServerConfig {
	t.Helper()
	dir := t.TempDir()
	if _, err := toy.Write(dir, "tiny", toy.DefaultOptions()); err != nil {
		t.Fatalf("toy.Write: %v", err)
	}
	cfg := config.Default()
	cfg.ModelsDir = dir
	cfg.ModelName = "tiny"
	return cfg
}

func seed(v int64) *int64 { return &v }

func TestGenerateLength(t *testing.T) {
	t.Parallel()

	cfg := writeToy(t)
	cfg.Length = 9
	s, err := New(context.Background(), cfg, logger.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Length() != 3 {
		t.Fatalf("Length() = %d, want 3", s.Length())
	}

	gen, err := s.Generate(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(gen.ContextTokens) != 1 {
		t.Fatalf("context tokens = %v, want one token for Hello", gen.ContextTokens)
	}
	if len(gen.Rounds) != 1 || len(gen.Rounds[0]) != 1 || len(gen.Rounds[0][0]) != 3 {
		t.Fatalf("rounds = %v, want one round of one 3-token sample", gen.Rounds)
	}
	if len(gen.Samples) != 1 || gen.Text() != gen.Samples[0] {
		t.Fatalf("samples = %q, text = %q", gen.Samples, gen.Text())
	}
}

func TestDefaultLengthIsHalfWindow(t *testing.T) {
	t.Parallel()

	cfg := writeToy(t)
	s, err := New(context.Background(), cfg, logger.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// n_ctx 64: configured length 32, generated 32/3.
	if s.Length() != 10 {
		t.Fatalf("Length() = %d, want 10", s.Length())
	}
}

func TestFixedSeedIsReproducible(t *testing.T) {
	t.Parallel()

	cfg := writeToy(t)
	cfg.Length = 30
	cfg.Temperature = 1
	cfg.TopK = 0
	cfg.Seed = seed(42)
	s, err := New(context.Background(), cfg, logger.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	first, err := s.Generate(context.Background(), "Hello world")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	second, err := s.Generate(context.Background(), "Hello world")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("same seed and prompt differ (-first +second):\n%s", diff)
	}
}

// countingLM prefers byte token 'A'+n on its n-th call.
type countingLM struct {
	hp    hparams.HParams
	calls int
}

func (m *countingLM) HParams() hparams.HParams { return m.hp }

func (m *countingLM) Logits([]int) ([]float32, error) {
	out := make([]float32, m.hp.NVocab)
	out['A'+m.calls] = 1
	m.calls++
	return out, nil
}

func loadCodec(t *testing.T, cfg config.ServerConfig) *tokenizer.GPT2 {
	t.Helper()
	codec, err := tokenizer.Load(cfg.ModelsDir, cfg.ModelName)
	if err != nil {
		t.Fatalf("tokenizer.Load: %v", err)
	}
	return codec
}

func TestOnlyLastSampleIsText(t *testing.T) {
	t.Parallel()

	cfg := writeToy(t)
	cfg.Length = 3
	cfg.NSamples = 3
	cfg.Temperature = 0
	codec := loadCodec(t, cfg)
	hp, err := hparams.Load(cfg.ModelsDir, cfg.ModelName)
	if err != nil {
		t.Fatal(err)
	}
	lm := &countingLM{hp: hp}

	s, err := Assemble(cfg, codec, lm, nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	gen, err := s.Generate(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if diff := cmp.Diff([]string{"A", "B", "C"}, gen.Samples); diff != "" {
		t.Fatalf("samples mismatch (-want +got):\n%s", diff)
	}
	if gen.Text() != "C" {
		t.Fatalf("Text() = %q, want C", gen.Text())
	}
	if len(gen.Rounds) != 3 {
		t.Fatalf("rounds = %d, want 3", len(gen.Rounds))
	}
}

type failingCodec struct{ tokenizer.Tokenizer }

func (failingCodec) Encode(string) ([]int, error) { return nil, errors.New("no vocabulary") }

func TestGenerateStageErrors(t *testing.T) {
	t.Parallel()

	cfg := writeToy(t)
	cfg.Length = 9
	s, err := New(context.Background(), cfg, logger.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = s.Generate(context.Background(), strings.Repeat("x", 100))
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageSample {
		t.Fatalf("long prompt error = %v, want sample stage error", err)
	}
	if !errors.Is(err, model.ErrContextOverflow) {
		t.Fatalf("long prompt error = %v, want ErrContextOverflow", err)
	}

	bad, err := Assemble(cfg, failingCodec{}, &countingLM{hp: s.HParams()}, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = bad.Generate(context.Background(), "Hello")
	if !errors.As(err, &se) || se.Stage != StageEncode {
		t.Fatalf("encode error = %v, want encode stage error", err)
	}
}

func TestNewFailures(t *testing.T) {
	t.Parallel()

	t.Run("missing checkpoint", func(t *testing.T) {
		t.Parallel()
		cfg := writeToy(t)
		dir := cfg.ModelDir()
		for _, name := range []string{checkpoint.IndexFile, toy.CheckpointName + checkpoint.Ext} {
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				t.Fatal(err)
			}
		}
		if _, err := New(context.Background(), cfg, logger.Discard()); !errors.Is(err, checkpoint.ErrNotFound) {
			t.Fatalf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("missing hparams", func(t *testing.T) {
		t.Parallel()
		cfg := writeToy(t)
		cfg.ModelName = "absent"
		if _, err := New(context.Background(), cfg, logger.Discard()); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("error = %v, want os.ErrNotExist", err)
		}
	})

	t.Run("length above window", func(t *testing.T) {
		t.Parallel()
		cfg := writeToy(t)
		cfg.Length = 65
		if _, err := New(context.Background(), cfg, logger.Discard()); !errors.Is(err, ErrLengthTooLarge) {
			t.Fatalf("error = %v, want ErrLengthTooLarge", err)
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		t.Parallel()
		cfg := writeToy(t)
		cfg.NSamples, cfg.BatchSize = 3, 2
		if _, err := New(context.Background(), cfg, logger.Discard()); !errors.Is(err, config.ErrInvalid) {
			t.Fatalf("error = %v, want config.ErrInvalid", err)
		}
	})
}
