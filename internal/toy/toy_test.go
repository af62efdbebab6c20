package toy

import (
	"path/filepath"
	"testing"

	"github.com/samcharles93/gptserve/internal/checkpoint"
	"github.com/samcharles93/gptserve/internal/hparams"
	"github.com/samcharles93/gptserve/internal/model"
	"github.com/samcharles93/gptserve/internal/tokenizer"
)

func TestWriteLoadsBack(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	hp, err := Write(dir, "tiny", DefaultOptions())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	loaded, err := hparams.Load(dir, "tiny")
	if err != nil {
		t.Fatalf("hparams.Load: %v", err)
	}
	if loaded != hp {
		t.Fatalf("hparams = %+v, want %+v", loaded, hp)
	}

	codec, err := tokenizer.Load(dir, "tiny")
	if err != nil {
		t.Fatalf("tokenizer.Load: %v", err)
	}
	if codec.VocabSize() != hp.NVocab {
		t.Fatalf("vocab size %d, n_vocab %d", codec.VocabSize(), hp.NVocab)
	}
	ids, err := codec.Encode("Hello world")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("Encode(Hello world) = %v, want 2 tokens", ids)
	}

	path, err := checkpoint.Latest(filepath.Join(dir, "tiny"))
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	f, err := checkpoint.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = f.Close() }()
	lm, err := model.Restore(hp, f)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if _, err := lm.Logits(ids); err != nil {
		t.Fatalf("Logits: %v", err)
	}
}
