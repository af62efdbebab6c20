package model

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/samcharles93/gptserve/internal/checkpoint"
	"github.com/samcharles93/gptserve/internal/hparams"
)

func smallHParams() hparams.HParams {
	return hparams.HParams{NVocab: 10, NCtx: 8, NEmbd: 4, NHead: 2, NLayer: 1}
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	t.Parallel()

	hp := smallHParams()
	m, err := NewRandom(hp, 3)
	if err != nil {
		t.Fatalf("NewRandom: %v", err)
	}
	path := filepath.Join(t.TempDir(), "model.safetensors")
	if err := m.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	f, err := checkpoint.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = f.Close() }()
	restored, err := Restore(hp, f)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}

	ctx := []int{1, 4, 7}
	want, err := m.Logits(ctx)
	if err != nil {
		t.Fatalf("Logits: %v", err)
	}
	got, err := restored.Logits(ctx)
	if err != nil {
		t.Fatalf("restored Logits: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("logits mismatch (-want +got):\n%s", diff)
	}
	if len(got) != hp.NVocab {
		t.Fatalf("len(logits) = %d, want %d", len(got), hp.NVocab)
	}
}

func TestRestoreShapeMismatch(t *testing.T) {
	t.Parallel()

	m, err := NewRandom(smallHParams(), 1)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "model.safetensors")
	if err := m.Save(path); err != nil {
		t.Fatal(err)
	}
	f, err := checkpoint.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	wider := smallHParams()
	wider.NVocab = 11
	_, err = Restore(wider, f)
	if err == nil || !strings.Contains(err.Error(), TensorWTE) {
		t.Fatalf("Restore error = %v, want shape error naming %s", err, TensorWTE)
	}
}

func TestRestoreMissingTensor(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "partial.safetensors")
	err := checkpoint.Save(path, map[string]checkpoint.Tensor{
		TensorWTE: {Shape: []int{10, 4}, Data: make([]float32, 40)},
	})
	if err != nil {
		t.Fatal(err)
	}
	f, err := checkpoint.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	if _, err := Restore(smallHParams(), f); err == nil {
		t.Fatal("expected error for missing tensors")
	}
}

func TestLogitsErrors(t *testing.T) {
	t.Parallel()

	hp := smallHParams()
	m, err := NewRandom(hp, 5)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.Logits(nil); !errors.Is(err, ErrEmptyContext) {
		t.Fatalf("empty: error = %v, want ErrEmptyContext", err)
	}
	if _, err := m.Logits(make([]int, hp.NCtx+1)); !errors.Is(err, ErrContextOverflow) {
		t.Fatalf("overflow: error = %v, want ErrContextOverflow", err)
	}
	if _, err := m.Logits([]int{hp.NVocab}); !errors.Is(err, ErrTokenRange) {
		t.Fatalf("range: error = %v, want ErrTokenRange", err)
	}
	if _, err := m.Logits(make([]int, hp.NCtx)); err != nil {
		t.Fatalf("full window: %v", err)
	}
}

func TestNewRandomReproducible(t *testing.T) {
	t.Parallel()

	a, err := NewRandom(smallHParams(), 9)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewRandom(smallHParams(), 9)
	if err != nil {
		t.Fatal(err)
	}
	la, _ := a.Logits([]int{2, 3})
	lb, _ := b.Logits([]int{2, 3})
	if diff := cmp.Diff(la, lb); diff != "" {
		t.Fatalf("same seed produced different logits:\n%s", diff)
	}
}
