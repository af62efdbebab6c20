package logits

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"
)

// ErrInvalidConfig reports sampler settings outside their valid ranges.
var ErrInvalidConfig = errors.New("invalid sampler config")

// SamplerConfig configures the behaviour of a Sampler.
type SamplerConfig struct {
	// Temperature divides the logits before the softmax. 0 selects greedy decoding.
	Temperature float32
	// TopK keeps only the K highest-scoring tokens. 0 keeps all of them.
	TopK int
	// TopP keeps the smallest prefix of the sorted distribution whose
	// cumulative probability does not exceed TopP (always at least one token).
	TopP float32
}

// Validate checks the ranges of every field.
func (c SamplerConfig) Validate() error {
	switch {
	case c.Temperature < 0 || math.IsNaN(float64(c.Temperature)):
		return fmt.Errorf("%w: temperature %v must be >= 0", ErrInvalidConfig, c.Temperature)
	case c.TopK < 0:
		return fmt.Errorf("%w: top_k %d must be >= 0", ErrInvalidConfig, c.TopK)
	case !(c.TopP > 0 && c.TopP <= 1):
		return fmt.Errorf("%w: top_p %v must be in (0, 1]", ErrInvalidConfig, c.TopP)
	}
	return nil
}

// Sampler draws token ids from logits. It holds no random state; the caller
// passes the source on every call, so one Sampler can serve any number of
// sequences. Scratch buffers make it unsafe for concurrent use.
type Sampler struct {
	cfg    SamplerConfig
	greedy bool
	idx    []int
	val    []float32
	prob   []float64
}

// NewSampler returns a new sampler with the provided configuration.
func NewSampler(cfg SamplerConfig) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sampler{cfg: cfg, greedy: cfg.Temperature == 0}, nil
}

// Config returns the configuration the sampler was built with.
func (s *Sampler) Config() SamplerConfig { return s.cfg }

// Sample draws a single index from logits:
//
//  1. Temperature 0, or TopK 1, returns the argmax.
//  2. Logits are divided by the temperature and ranked.
//  3. Only the TopK best survive when TopK > 0.
//  4. A softmax over the survivors is truncated to the TopP nucleus.
//  5. rng picks an index from what remains.
func (s *Sampler) Sample(rng *rand.Rand, logits []float32) int {
	if len(logits) == 0 {
		panic("logits: sample from empty slice")
	}
	if s.greedy || s.cfg.TopK == 1 {
		return argmax(logits)
	}

	k := len(logits)
	if s.cfg.TopK > 0 && s.cfg.TopK < k {
		k = s.cfg.TopK
	}
	idx, val := s.rank(logits, k, 1/s.cfg.Temperature)

	if cap(s.prob) < len(val) {
		s.prob = make([]float64, len(val))
	}
	prob := s.prob[:len(val)]
	maxv := float64(val[0])
	var sum float64
	for i, v := range val {
		e := math.Exp(float64(v) - maxv)
		prob[i] = e
		sum += e
	}
	for i := range prob {
		prob[i] /= sum
	}

	cut := len(prob)
	if s.cfg.TopP < 1 {
		var c float64
		kept := 0
		for _, p := range prob {
			c += p
			if c > float64(s.cfg.TopP) {
				break
			}
			kept++
		}
		cut = max(kept, 1)
		var total float64
		for _, p := range prob[:cut] {
			total += p
		}
		for i := range prob[:cut] {
			prob[i] /= total
		}
	}

	r := rng.Float64()
	var c float64
	for i := 0; i < cut; i++ {
		c += prob[i]
		if r < c {
			return idx[i]
		}
	}
	return idx[cut-1]
}

// argmax returns the index of the maximum value in the slice. Ties go to the
// lowest index.
func argmax(x []float32) int {
	bestI := 0
	bestV := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > bestV {
			bestV = x[i]
			bestI = i
		}
	}
	return bestI
}

// rank returns the indices and scaled values of the k largest logits, ordered
// from largest to smallest. Ties keep vocabulary order.
func (s *Sampler) rank(logits []float32, k int, invTemp float32) ([]int, []float32) {
	if cap(s.idx) < len(logits) {
		s.idx = make([]int, len(logits))
		s.val = make([]float32, len(logits))
	}
	idx := s.idx[:len(logits)]
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return cmp.Compare(logits[b], logits[a])
	})
	idx = idx[:k]
	val := s.val[:k]
	for i, id := range idx {
		val[i] = logits[id] * invTemp
	}
	return idx, val
}
