// Package fractal projects a mapping over successive cycles with geometric
// decay and hands the tuned snapshots to a sink.
package fractal

import (
	"context"
	"fmt"
	"math"

	"github.com/danielpatrickdp/ouroboros/internal/attribute"
)

// #region params
// Params controls a projection run.
type Params struct {
	Iterations    int
	ScalingFactor float64
}

// DefaultParams matches the engine's stock five cycles at 0.75 decay.
func DefaultParams() Params {
	return Params{
		Iterations:    5,
		ScalingFactor: 0.75,
	}
}
// #endregion params

// #region decay
// Decay builds one snapshot per iteration where snapshot i holds
// base[k] * scaling^i. Non-positive iterations yield an empty collection.
// Scaling factors outside (0, 1) are applied as-is.
func Decay(base attribute.Mapping, iterations int, scaling float64) attribute.Cycles {
	if iterations < 0 {
		iterations = 0
	}
	cycles := make(attribute.Cycles, 0, iterations)
	for i := 0; i < iterations; i++ {
		factor := math.Pow(scaling, float64(i))
		scaled := make(attribute.Mapping, len(base))
		for k, v := range base {
			scaled[k] = v * factor
		}
		cycles = append(cycles, attribute.Snapshot{
			Label:  attribute.CycleLabel(i),
			Values: scaled,
		})
	}
	return cycles
}
// #endregion decay

// #region project
// Project decays base over p.Iterations cycles, tunes the collection and
// saves the tuned result to sink. A sink failure aborts the projection.
func Project(ctx context.Context, base attribute.Mapping, p Params, tuner Tuner, sink attribute.Sink) (attribute.Cycles, error) {
	cycles := Decay(base, p.Iterations, p.ScalingFactor)
	tuned := tuner.Tune(cycles)

	if err := sink.Save(ctx, tuned); err != nil {
		return nil, fmt.Errorf("save fractal cycles: %w", err)
	}
	return tuned, nil
}
// #endregion project
