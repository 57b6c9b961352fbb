// Package adjust implements the single-pass weighted adjustment stage.
package adjust

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/ouroboros/internal/attribute"
)

// #region weigh
// Weigh multiplies every attribute of current by its historical and adaptive
// factors. Keys missing from a table are left at factor 1, table keys absent
// from current are ignored. current is not modified.
func Weigh(current attribute.Mapping, w Weights) attribute.Mapping {
	adjusted := make(attribute.Mapping, len(current))
	for k, v := range current {
		adjusted[k] = v * w.Historical.Factor(k) * w.Adaptive.Factor(k)
	}
	return adjusted
}
// #endregion weigh

// #region adjust
// Adjust weighs current, passes the result through ethics and hands the
// outcome to sink before returning it. A failure in either collaborator
// aborts the stage.
func Adjust(ctx context.Context, current attribute.Mapping, w Weights, ethics EthicalAdjuster, sink attribute.Sink) (attribute.Mapping, error) {
	adjusted := Weigh(current, w)

	result, err := ethics.Apply(ctx, adjusted)
	if err != nil {
		return nil, fmt.Errorf("ethical adjustment: %w", err)
	}

	if err := sink.Save(ctx, result); err != nil {
		return nil, fmt.Errorf("save adjusted state: %w", err)
	}
	return result, nil
}
// #endregion adjust
