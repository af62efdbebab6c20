package tokenizer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriteDirAndLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	modelDir := filepath.Join(dir, "124M")
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		t.Fatal(err)
	}
	merges := WordMerges("Hello", " there")
	tokens := ByteLevelVocab(merges)
	if err := WriteDir(modelDir, tokens, merges); err != nil {
		t.Fatalf("WriteDir: %v", err)
	}

	tok, err := Load(dir, "124M")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tok.VocabSize() != len(tokens) {
		t.Fatalf("VocabSize = %d, want %d", tok.VocabSize(), len(tokens))
	}
	ids, err := tok.Encode("Hello there")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected merged tokens after reload, got %v", ids)
	}
}

func TestLoadMissingFiles(t *testing.T) {
	t.Parallel()

	if _, err := Load(t.TempDir(), "absent"); err == nil {
		t.Fatal("expected error for missing encoder.json")
	}
}

func TestParseEncoder(t *testing.T) {
	t.Parallel()

	tokens, err := parseEncoder([]byte(`{"b": 1, "a": 0, "c": 2}`))
	if err != nil {
		t.Fatalf("parseEncoder: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, tokens); diff != "" {
		t.Fatalf("tokens mismatch (-want +got):\n%s", diff)
	}

	if _, err := parseEncoder([]byte(`{"a": 0, "b": 5}`)); err == nil {
		t.Fatal("expected error for sparse ids")
	}
	if _, err := parseEncoder([]byte(`{"a": 0, "b": 0}`)); err == nil {
		t.Fatal("expected error for repeated id")
	}
}

func TestWordMerges(t *testing.T) {
	t.Parallel()

	got := WordMerges("abc", "ab")
	want := []string{"a b", "ab c"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("WordMerges mismatch (-want +got):\n%s", diff)
	}

	vocab := ByteLevelVocab(got)
	if n := len(vocab); n != 256+2+1 {
		t.Fatalf("vocab size = %d, want 259", n)
	}
	if vocab[len(vocab)-1] != EndOfText {
		t.Fatalf("last token = %q, want %q", vocab[len(vocab)-1], EndOfText)
	}
}
