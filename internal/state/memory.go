package state

import (
	"context"
	"sync"

	"github.com/danielpatrickdp/ouroboros/internal/attribute"
)

// Memory keeps every saved record in order. It is safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	records []attribute.Record
}

// NewMemory returns an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

// Save appends a deep copy of rec.
func (m *Memory) Save(_ context.Context, rec attribute.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch r := rec.(type) {
	case attribute.Mapping:
		m.records = append(m.records, r.Clone())
	case attribute.Cycles:
		m.records = append(m.records, r.Clone())
	default:
		m.records = append(m.records, rec)
	}
	return nil
}

// Records returns the saved records in save order.
func (m *Memory) Records() []attribute.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]attribute.Record, len(m.records))
	copy(out, m.records)
	return out
}

// LastMapping returns the most recently saved mapping, if any.
func (m *Memory) LastMapping() (attribute.Mapping, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.records) - 1; i >= 0; i-- {
		if r, ok := m.records[i].(attribute.Mapping); ok {
			return r, true
		}
	}
	return nil, false
}

// LastCycles returns the most recently saved cycle collection, if any.
func (m *Memory) LastCycles() (attribute.Cycles, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.records) - 1; i >= 0; i-- {
		if r, ok := m.records[i].(attribute.Cycles); ok {
			return r, true
		}
	}
	return nil, false
}
