package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dlclark/regexp2"
)

// gpt2Pattern is the GPT-2 pretokenizer. The trailing-whitespace lookahead
// needs regexp2; the standard library has no lookaround.
const gpt2Pattern = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+`

// EndOfText is the GPT-2 document separator token.
const EndOfText = "<|endoftext|>"

// GPT2 is a byte-level BPE codec compatible with GPT-2's encoder.json/vocab.bpe.
// It is safe for concurrent use.
type GPT2 struct {
	encoder     map[string]int
	decoder     []string
	bpeRanks    map[Pair]int
	byteEncoder [256]string
	byteDecoder map[rune]byte
	pattern     *regexp2.Regexp

	mu    sync.Mutex
	cache map[string][]string
}

var _ Tokenizer = (*GPT2)(nil)

// NewGPT2 builds a codec from a vocabulary ordered by id and a merge list in
// priority order. Merge lines that are empty, comments or malformed are skipped.
func NewGPT2(tokens []string, merges []string) (*GPT2, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty token list")
	}
	encoder := make(map[string]int, len(tokens))
	for i, t := range tokens {
		if _, dup := encoder[t]; dup {
			return nil, fmt.Errorf("duplicate token %q at id %d", t, i)
		}
		encoder[t] = i
	}

	ranks := make(map[Pair]int, len(merges))
	for _, line := range merges {
		p, ok := parseMerge(line)
		if !ok {
			continue
		}
		if _, seen := ranks[p]; !seen {
			ranks[p] = len(ranks)
		}
	}

	byteEncoder, byteDecoder := bytesToUnicode()
	return &GPT2{
		encoder:     encoder,
		decoder:     append([]string(nil), tokens...),
		bpeRanks:    ranks,
		byteEncoder: byteEncoder,
		byteDecoder: byteDecoder,
		pattern:     regexp2.MustCompile(gpt2Pattern, regexp2.RE2),
		cache:       make(map[string][]string),
	}, nil
}

// VocabSize returns the number of tokens known to the codec.
func (t *GPT2) VocabSize() int { return len(t.decoder) }

// Encode splits text with the GPT-2 pattern, byte-encodes each piece and
// applies BPE merges. A merged piece absent from the vocabulary is an error.
func (t *GPT2) Encode(text string) ([]int, error) {
	pieces, err := t.split(text)
	if err != nil {
		return nil, err
	}
	var ids []int
	for _, piece := range pieces {
		for _, tok := range t.bpe(t.byteEncode(piece)) {
			id, ok := t.encoder[tok]
			if !ok {
				return nil, fmt.Errorf("unknown token: %q", tok)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Decode maps ids back to bytes. Byte sequences that are not valid UTF-8 are
// replaced with U+FFFD, so the result is always valid UTF-8.
func (t *GPT2) Decode(ids []int) (string, error) {
	var b []byte
	for _, id := range ids {
		if id < 0 || id >= len(t.decoder) {
			return "", fmt.Errorf("token id out of range: %d", id)
		}
		for _, r := range t.decoder[id] {
			by, ok := t.byteDecoder[r]
			if !ok {
				return "", fmt.Errorf("token %d contains non byte-level rune %q", id, r)
			}
			b = append(b, by)
		}
	}
	return strings.ToValidUTF8(string(b), "\uFFFD"), nil
}

// TokenString returns the raw vocabulary entry for id.
func (t *GPT2) TokenString(id int) string {
	if id < 0 || id >= len(t.decoder) {
		return ""
	}
	return t.decoder[id]
}

func (t *GPT2) split(text string) ([]string, error) {
	var out []string
	m, err := t.pattern.FindStringMatch(text)
	for m != nil && err == nil {
		out = append(out, m.String())
		m, err = t.pattern.FindNextMatch(m)
	}
	if err != nil {
		return nil, fmt.Errorf("pretokenize: %w", err)
	}
	return out, nil
}

func (t *GPT2) byteEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		b.WriteString(t.byteEncoder[s[i]])
	}
	return b.String()
}

func (t *GPT2) bpe(token string) []string {
	t.mu.Lock()
	cached, ok := t.cache[token]
	t.mu.Unlock()
	if ok {
		return cached
	}

	word := splitRunes(token)
	for len(word) > 1 {
		best, found := t.lowestRank(getPairs(word))
		if !found {
			break
		}
		word = mergePair(word, best)
	}

	t.mu.Lock()
	t.cache[token] = word
	t.mu.Unlock()
	return word
}

func (t *GPT2) lowestRank(pairs map[Pair]struct{}) (Pair, bool) {
	bestRank := int(^uint(0) >> 1)
	var best Pair
	found := false
	for p := range pairs {
		if rank, ok := t.bpeRanks[p]; ok && rank < bestRank {
			bestRank = rank
			best = p
			found = true
		}
	}
	return best, found
}
