// Package attribute holds the value types shared by the adjustment and
// projection stages: attribute mappings, weighting tables and labelled
// cycle snapshots.
package attribute

import (
	"context"
	"fmt"
	"sort"
)

// #region mapping
// Mapping assigns a magnitude to each named attribute.
type Mapping map[string]float64

// Clone returns a copy that shares no storage with m. A nil mapping clones to nil.
func (m Mapping) Clone() Mapping {
	if m == nil {
		return nil
	}
	out := make(Mapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Keys returns the attribute names in sorted order.
func (m Mapping) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
// #endregion mapping

// #region weight-table
// WeightTable supplies a multiplicative factor per attribute.
type WeightTable map[string]float64

// Factor returns the weight for key, or 1 when the table has no entry for it.
func (w WeightTable) Factor(key string) float64 {
	if f, ok := w[key]; ok {
		return f
	}
	return 1
}
// #endregion weight-table

// #region cycles
// Snapshot is one labelled projection of a mapping.
type Snapshot struct {
	Label  string
	Values Mapping
}

// Cycles is an ordered snapshot sequence; position i holds "Cycle i+1".
type Cycles []Snapshot

// CycleLabel returns the label for the zero-based iteration index i.
func CycleLabel(i int) string {
	return fmt.Sprintf("Cycle %d", i+1)
}

// Head returns at most limit leading snapshots without reordering them.
// A negative limit is treated as zero.
func (c Cycles) Head(limit int) Cycles {
	if limit < 0 {
		limit = 0
	}
	if limit > len(c) {
		limit = len(c)
	}
	return c[:limit]
}

// Labels returns the snapshot labels in order.
func (c Cycles) Labels() []string {
	labels := make([]string, len(c))
	for i, s := range c {
		labels[i] = s.Label
	}
	return labels
}

// Clone deep-copies every snapshot.
func (c Cycles) Clone() Cycles {
	if c == nil {
		return nil
	}
	out := make(Cycles, len(c))
	for i, s := range c {
		out[i] = Snapshot{Label: s.Label, Values: s.Values.Clone()}
	}
	return out
}
// #endregion cycles

// #region record
// Kind identifies the shape of a Record.
type Kind string

const (
	KindMapping Kind = "mapping"
	KindCycles  Kind = "cycles"
)

// Record is anything a Sink can persist. Only Mapping and Cycles implement it.
type Record interface {
	Kind() Kind
	isRecord()
}

func (Mapping) Kind() Kind { return KindMapping }
func (Mapping) isRecord()  {}

func (Cycles) Kind() Kind { return KindCycles }
func (Cycles) isRecord()  {}

// Sink durably records whatever it is handed. Callers do not inspect the
// outcome beyond the error.
type Sink interface {
	Save(ctx context.Context, rec Record) error
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(ctx context.Context, rec Record) error

// Save calls f.
func (f SinkFunc) Save(ctx context.Context, rec Record) error {
	return f(ctx, rec)
}
// #endregion record
