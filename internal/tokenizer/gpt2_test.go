package tokenizer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestGPT2(t *testing.T, words ...string) *GPT2 {
	t.Helper()
	merges := WordMerges(words...)
	tok, err := NewGPT2(ByteLevelVocab(merges), merges)
	if err != nil {
		t.Fatalf("NewGPT2: %v", err)
	}
	return tok
}

func TestSplitMatchesGPT2Pattern(t *testing.T) {
	t.Parallel()
	tok := newTestGPT2(t)

	tests := []struct {
		in   string
		want []string
	}{
		{"Hello world", []string{"Hello", " world"}},
		{"hello  world", []string{"hello", " ", " world"}},
		{"trailing  ", []string{"trailing", "  "}},
		{"it's 2024!", []string{"it", "'s", " 2024", "!"}},
		{"", nil},
	}
	for _, tc := range tests {
		got, err := tok.split(tc.in)
		if err != nil {
			t.Fatalf("split(%q): %v", tc.in, err)
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("split(%q) mismatch (-want +got):\n%s", tc.in, diff)
		}
	}
}

func TestEncodeAppliesMerges(t *testing.T) {
	t.Parallel()
	tok := newTestGPT2(t, "Hello", " world")

	ids, err := tok.Encode("Hello world")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 tokens, got %d (%v)", len(ids), ids)
	}
	if got := tok.TokenString(ids[0]); got != "Hello" {
		t.Fatalf("first token = %q, want Hello", got)
	}
	if got := tok.TokenString(ids[1]); got != "Ġworld" {
		t.Fatalf("second token = %q, want Ġworld", got)
	}

	// Only learned merges apply: "Help" becomes "Hel" + "p".
	ids, err = tok.Encode("Help")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(ids) != 2 || tok.TokenString(ids[0]) != "Hel" {
		t.Fatalf("expected Hel+p, got %v", ids)
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	tok := newTestGPT2(t, "Hello", " world")

	for _, text := range []string{
		"Hello world",
		"héllo wörld 👋",
		"tabs\tand\nnewlines\r\n",
		"  leading and trailing  ",
		EndOfText,
	} {
		ids, err := tok.Encode(text)
		if err != nil {
			t.Fatalf("Encode(%q): %v", text, err)
		}
		got, err := tok.Decode(ids)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got != text {
			t.Fatalf("round trip mismatch: got %q want %q", got, text)
		}
	}
}

func TestDecodeErrorsAndReplacement(t *testing.T) {
	t.Parallel()
	tok := newTestGPT2(t)

	if _, err := tok.Decode([]int{tok.VocabSize()}); err == nil {
		t.Fatal("expected error for out-of-range id")
	}
	if _, err := tok.Decode([]int{-1}); err == nil {
		t.Fatal("expected error for negative id")
	}

	// 0xE2 alone is a truncated multi-byte sequence.
	enc, _ := bytesToUnicode()
	partial, err := tok.Encode("x")
	if err != nil {
		t.Fatal(err)
	}
	var lead int
	for id := 0; id < tok.VocabSize(); id++ {
		if tok.TokenString(id) == enc[0xE2] {
			lead = id
		}
	}
	got, err := tok.Decode(append(partial, lead))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != "x\uFFFD" {
		t.Fatalf("Decode = %q, want replacement character", got)
	}
}

func TestEncodeUnknownToken(t *testing.T) {
	t.Parallel()

	// A merge whose result is missing from the vocabulary cannot be encoded.
	tokens := ByteLevelVocab(nil)
	tok, err := NewGPT2(tokens, []string{"a b"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tok.Encode("ab"); err == nil {
		t.Fatal("expected unknown token error")
	}
}

func TestNewGPT2Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewGPT2(nil, nil); err == nil {
		t.Fatal("expected error for empty vocabulary")
	}
	if _, err := NewGPT2([]string{"a", "a"}, nil); err == nil {
		t.Fatal("expected error for duplicate token")
	}
}

func TestBytesToUnicodeIsBijective(t *testing.T) {
	t.Parallel()

	enc, dec := bytesToUnicode()
	if len(dec) != 256 {
		t.Fatalf("decoder has %d entries, want 256", len(dec))
	}
	for b := 0; b < 256; b++ {
		r := []rune(enc[b])
		if len(r) != 1 {
			t.Fatalf("byte %d maps to %q", b, enc[b])
		}
		if dec[r[0]] != byte(b) {
			t.Fatalf("byte %d does not round trip", b)
		}
	}
	if enc[' '] != "Ġ" {
		t.Fatalf("space maps to %q, want Ġ", enc[' '])
	}
}
