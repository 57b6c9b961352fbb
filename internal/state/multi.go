package state

import (
	"context"

	"github.com/danielpatrickdp/ouroboros/internal/attribute"
)

// Multi forwards each save to every wrapped sink in order and stops at the
// first failure.
type Multi struct {
	sinks []attribute.Sink
}

// NewMulti wraps sinks. Nil entries are skipped.
func NewMulti(sinks ...attribute.Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Save implements attribute.Sink.
func (m *Multi) Save(ctx context.Context, rec attribute.Record) error {
	for _, s := range m.sinks {
		if err := s.Save(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// Discard accepts and drops every record.
var Discard attribute.Sink = attribute.SinkFunc(func(context.Context, attribute.Record) error {
	return nil
})
