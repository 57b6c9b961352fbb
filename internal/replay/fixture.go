package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/ouroboros/internal/adjust"
	"github.com/danielpatrickdp/ouroboros/internal/attribute"
	"github.com/danielpatrickdp/ouroboros/internal/engine"
	"github.com/danielpatrickdp/ouroboros/internal/fractal"
)

// DefaultTolerance is used when a fixture leaves tolerance unset.
const DefaultTolerance = 1e-9

// Tuning modes accepted in fixtures.
const (
	TuningIdentity = "identity"
	TuningAdaptive = "adaptive"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description   string            `json:"description"`
	Initial       attribute.Mapping `json:"initial"`
	Weights       FixtureWeights    `json:"weights"`
	Iterations    int               `json:"iterations"`
	ScalingFactor float64           `json:"scaling_factor"`
	Tuning        FixtureTuning     `json:"tuning"`
	Tolerance     float64           `json:"tolerance"`
	Expected      FixtureExpected   `json:"expected"`

	// Path is set by LoadFixture.
	Path string `json:"-"`
}

// FixtureWeights mirrors adjust.Weights with JSON tags.
type FixtureWeights struct {
	Historical attribute.WeightTable `json:"historical"`
	Adaptive   attribute.WeightTable `json:"adaptive"`
}

// FixtureTuning selects the tuner. Adaptive fixtures must carry a non-zero
// seed so the run is reproducible.
type FixtureTuning struct {
	Mode   string  `json:"mode"`
	Seed   uint64  `json:"seed"`
	Spread float64 `json:"spread"`
}

// FixtureExpected holds the expected stage outputs. For adaptive fixtures
// Cycles holds the untuned decay and values are checked against the spread.
type FixtureExpected struct {
	Adjusted attribute.Mapping `json:"adjusted"`
	Cycles   attribute.Cycles  `json:"cycles"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads, parses and validates a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	f.Path = path
	return &f, nil
}

// Validate rejects fixtures that cannot be replayed deterministically.
func (f *Fixture) Validate() error {
	if f.Iterations < 0 {
		return fmt.Errorf("iterations must be >= 0, got %d", f.Iterations)
	}
	if f.Tolerance < 0 {
		return fmt.Errorf("tolerance must be >= 0, got %g", f.Tolerance)
	}
	switch f.Tuning.Mode {
	case "", TuningIdentity:
	case TuningAdaptive:
		if f.Tuning.Seed == 0 {
			return fmt.Errorf("adaptive tuning requires a non-zero seed")
		}
		if f.Tuning.Spread < 0 {
			return fmt.Errorf("spread must be >= 0, got %g", f.Tuning.Spread)
		}
	default:
		return fmt.Errorf("unknown tuning mode %q", f.Tuning.Mode)
	}
	return nil
}

// Name is the description, falling back to the file path.
func (f *Fixture) Name() string {
	if f.Description != "" {
		return f.Description
	}
	return f.Path
}

// tolerance returns the effective comparison tolerance.
func (f *Fixture) tolerance() float64 {
	if f.Tolerance == 0 {
		return DefaultTolerance
	}
	return f.Tolerance
}

// EngineConfig converts the fixture's numeric inputs to an engine config.
func (f *Fixture) EngineConfig() engine.Config {
	return engine.Config{
		Weights: adjust.Weights{
			Historical: f.Weights.Historical,
			Adaptive:   f.Weights.Adaptive,
		},
		Params: fractal.Params{
			Iterations:    f.Iterations,
			ScalingFactor: f.ScalingFactor,
		},
		DisplayLimit: f.Iterations,
		Seed:         f.Tuning.Seed,
	}
}

// Tuner builds the tuner named by the fixture along with its mode name.
func (f *Fixture) Tuner() (string, fractal.Tuner) {
	if f.Tuning.Mode == TuningAdaptive {
		return TuningAdaptive, fractal.NewSeededTuner(f.Tuning.Seed, f.Tuning.Spread)
	}
	return TuningIdentity, fractal.Identity
}

// #endregion fixture-loader
