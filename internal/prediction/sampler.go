package prediction

import (
	"hash/fnv"
	"math/rand"
)

// Sampler is the randomness source for Monte-Carlo confidence intervals.
// The decision path must be reproducible, so production uses a sampler
// seeded from the signal itself and tests may inject their own.
type Sampler interface {
	Float64() float64
}

// SamplerFactory builds a sampler for a given signal ID.
type SamplerFactory func(signalID string) Sampler

// SeededSamplerFactory derives a deterministic sampler from the signal ID,
// so identical signals always produce identical confidence intervals.
func SeededSamplerFactory(signalID string) Sampler {
	h := fnv.New64a()
	h.Write([]byte(signalID))
	return rand.New(rand.NewSource(int64(h.Sum64())))
}

// FixedSampler always returns the same value. Test double.
type FixedSampler struct {
	Value float64
}

// Float64 returns the fixed value.
func (f FixedSampler) Float64() float64 { return f.Value }
