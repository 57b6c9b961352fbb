package adjust

import (
	"context"

	"github.com/danielpatrickdp/ouroboros/internal/attribute"
)

// #region ethical-adjuster
// EthicalAdjuster reshapes an already weighted mapping. Implementations may
// add or drop keys; callers treat the result as opaque.
type EthicalAdjuster interface {
	Apply(ctx context.Context, m attribute.Mapping) (attribute.Mapping, error)
}

// AdjusterFunc adapts a plain function to EthicalAdjuster.
type AdjusterFunc func(ctx context.Context, m attribute.Mapping) (attribute.Mapping, error)

// Apply calls f.
func (f AdjusterFunc) Apply(ctx context.Context, m attribute.Mapping) (attribute.Mapping, error) {
	return f(ctx, m)
}
// #endregion ethical-adjuster

// #region weights
// Weights bundles the two factor tables applied during adjustment.
type Weights struct {
	Historical attribute.WeightTable
	Adaptive   attribute.WeightTable
}
// #endregion weights
