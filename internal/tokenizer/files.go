package tokenizer

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
)

// File names of a GPT-2 codec inside a model directory.
const (
	EncoderFile = "encoder.json"
	MergesFile  = "vocab.bpe"
)

// Load reads encoder.json and vocab.bpe from <modelsDir>/<modelName>.
func Load(modelsDir, modelName string) (*GPT2, error) {
	return LoadDir(filepath.Join(modelsDir, modelName))
}

// LoadDir reads encoder.json and vocab.bpe from dir.
func LoadDir(dir string) (*GPT2, error) {
	rawEnc, err := os.ReadFile(filepath.Join(dir, EncoderFile))
	if err != nil {
		return nil, fmt.Errorf("read encoder: %w", err)
	}
	tokens, err := parseEncoder(rawEnc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EncoderFile, err)
	}
	rawMerges, err := os.ReadFile(filepath.Join(dir, MergesFile))
	if err != nil {
		return nil, fmt.Errorf("read merges: %w", err)
	}
	return NewGPT2(tokens, readLines(rawMerges))
}

// parseEncoder turns a token->id object into a slice indexed by id.
// Ids must be dense, starting at zero.
func parseEncoder(raw []byte) ([]string, error) {
	var enc map[string]int
	if err := json.Unmarshal(raw, &enc); err != nil {
		return nil, err
	}
	tokens := make([]string, len(enc))
	filled := make([]bool, len(enc))
	for tok, id := range enc {
		if id < 0 || id >= len(tokens) {
			return nil, fmt.Errorf("token %q has id %d outside [0,%d)", tok, id, len(tokens))
		}
		if filled[id] {
			return nil, fmt.Errorf("id %d assigned twice", id)
		}
		tokens[id] = tok
		filled[id] = true
	}
	return tokens, nil
}

func readLines(raw []byte) []string {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}

// WriteDir stores tokens and merges as encoder.json and vocab.bpe in dir.
func WriteDir(dir string, tokens, merges []string) error {
	enc := make(map[string]int, len(tokens))
	for i, t := range tokens {
		enc[t] = i
	}
	raw, err := json.Marshal(enc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, EncoderFile), raw, 0o644); err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("#version: 0.2\n")
	for _, m := range merges {
		b.WriteString(m)
		b.WriteByte('\n')
	}
	return os.WriteFile(filepath.Join(dir, MergesFile), []byte(b.String()), 0o644)
}

// ByteLevelVocab returns a vocabulary containing every byte symbol, the result
// of each merge in order, and EndOfText last. Every input text is encodable.
func ByteLevelVocab(merges []string) []string {
	enc, _ := bytesToUnicode()
	tokens := make([]string, 0, 256+len(merges)+1)
	seen := make(map[string]struct{}, cap(tokens))
	add := func(t string) {
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		tokens = append(tokens, t)
	}
	for _, s := range enc {
		add(s)
	}
	for _, line := range merges {
		if p, ok := parseMerge(line); ok {
			add(p.A + p.B)
		}
	}
	add(EndOfText)
	return tokens
}

// WordMerges returns the merge lines that build each word from its bytes,
// left to right. Words are byte-encoded first, so " hello" yields merges
// over "Ġhello".
func WordMerges(words ...string) []string {
	enc, _ := bytesToUnicode()
	var merges []string
	seen := make(map[string]struct{})
	for _, w := range words {
		var sym []string
		for i := 0; i < len(w); i++ {
			sym = append(sym, enc[w[i]])
		}
		if len(sym) < 2 {
			continue
		}
		acc := sym[0]
		for _, s := range sym[1:] {
			line := acc + " " + s
			if _, ok := seen[line]; !ok {
				seen[line] = struct{}{}
				merges = append(merges, line)
			}
			acc += s
		}
	}
	return merges
}
