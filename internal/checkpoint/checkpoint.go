// Package checkpoint locates and reads model weight checkpoints.
//
// A model directory may contain a "checkpoint" index naming the current
// weights file:
//
//	model_checkpoint_path: "model-1000.safetensors"
//	all_model_checkpoint_paths: "model-500.safetensors"
//	all_model_checkpoint_paths: "model-1000.safetensors"
//
// Without an index the most recently modified *.safetensors file is used.
package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// IndexFile is the name of the checkpoint index inside a model directory.
const IndexFile = "checkpoint"

// Ext is the weights file extension.
const Ext = ".safetensors"

// ErrNotFound means no usable checkpoint exists in a directory.
var ErrNotFound = errors.New("checkpoint not found")

// Latest returns the path of the current checkpoint in dir.
func Latest(dir string) (string, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("%w in %s: %v", ErrNotFound, dir, err)
	}
	if !st.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrNotFound, dir)
	}

	raw, err := os.ReadFile(filepath.Join(dir, IndexFile))
	switch {
	case err == nil:
		name, err := parseIndex(raw)
		if err != nil {
			return "", fmt.Errorf("parse %s index: %w", dir, err)
		}
		return resolveIndexed(dir, name)
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("read checkpoint index: %w", err)
	}

	return newestWeights(dir)
}

// WriteIndex records name as the current checkpoint of dir.
func WriteIndex(dir, name string) error {
	line := "model_checkpoint_path: " + strconv.Quote(name) + "\n" +
		"all_model_checkpoint_paths: " + strconv.Quote(name) + "\n"
	return os.WriteFile(filepath.Join(dir, IndexFile), []byte(line), 0o644)
}

// parseIndex extracts model_checkpoint_path. The index repeats
// all_model_checkpoint_paths, so it is walked as a node tree instead of
// being decoded into a map, which would reject the duplicate keys.
func parseIndex(raw []byte) (string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return "", err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return "", errors.New("index is not a key/value document")
	}
	m := doc.Content[0]
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == "model_checkpoint_path" {
			if v := strings.TrimSpace(m.Content[i+1].Value); v != "" {
				return v, nil
			}
		}
	}
	return "", errors.New("model_checkpoint_path missing")
}

func resolveIndexed(dir, name string) (string, error) {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	for _, cand := range []string{path, path + Ext} {
		if st, err := os.Stat(cand); err == nil && !st.IsDir() {
			return cand, nil
		}
	}
	return "", fmt.Errorf("%w: index points to missing %s", ErrNotFound, path)
}

func newestWeights(dir string) (string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	type cand struct {
		path string
		mod  int64
	}
	var cands []cand
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), Ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		cands = append(cands, cand{path: filepath.Join(dir, e.Name()), mod: info.ModTime().UnixNano()})
	}
	if len(cands) == 0 {
		return "", fmt.Errorf("%w: no %s files in %s", ErrNotFound, Ext, dir)
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].mod != cands[j].mod {
			return cands[i].mod > cands[j].mod
		}
		return cands[i].path > cands[j].path
	})
	return cands[0].path, nil
}
