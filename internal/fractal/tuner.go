package fractal

import (
	"math/rand/v2"

	"github.com/danielpatrickdp/ouroboros/internal/attribute"
)

// DefaultSpread bounds the relative jitter applied by AdaptiveTuner.
const DefaultSpread = 0.05

// Tuner post-processes a decayed cycle collection.
type Tuner interface {
	Tune(cycles attribute.Cycles) attribute.Cycles
}

// TunerFunc adapts a plain function to Tuner.
type TunerFunc func(cycles attribute.Cycles) attribute.Cycles

// Tune calls f.
func (f TunerFunc) Tune(cycles attribute.Cycles) attribute.Cycles {
	return f(cycles)
}

// Identity returns the collection untouched.
var Identity Tuner = TunerFunc(func(cycles attribute.Cycles) attribute.Cycles {
	return cycles
})

// #region adaptive-tuner
// AdaptiveTuner scales each value of each snapshot by (1 + u) where u is a
// fresh uniform draw from [-spread, spread]. It is not safe for concurrent use.
type AdaptiveTuner struct {
	rng    *rand.Rand
	spread float64
}

// NewAdaptiveTuner draws from src. A non-positive spread falls back to DefaultSpread.
func NewAdaptiveTuner(src rand.Source, spread float64) *AdaptiveTuner {
	if spread <= 0 {
		spread = DefaultSpread
	}
	return &AdaptiveTuner{rng: rand.New(src), spread: spread}
}

// NewSeededTuner returns a tuner whose output is reproducible for a given
// non-zero seed. Seed 0 picks a random seed.
func NewSeededTuner(seed uint64, spread float64) *AdaptiveTuner {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return NewAdaptiveTuner(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15), spread)
}

// Spread reports the jitter bound in use.
func (t *AdaptiveTuner) Spread() float64 {
	return t.spread
}

// Tune returns a new collection; cycles is not modified. Keys are visited in
// sorted order so that seeded runs repeat exactly.
func (t *AdaptiveTuner) Tune(cycles attribute.Cycles) attribute.Cycles {
	out := make(attribute.Cycles, len(cycles))
	for i, s := range cycles {
		values := make(attribute.Mapping, len(s.Values))
		for _, k := range s.Values.Keys() {
			values[k] = s.Values[k] * (1 + t.draw())
		}
		out[i] = attribute.Snapshot{Label: s.Label, Values: values}
	}
	return out
}

func (t *AdaptiveTuner) draw() float64 {
	return t.spread * (2*t.rng.Float64() - 1)
}
// #endregion adaptive-tuner
