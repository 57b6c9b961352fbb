package state

import (
	"context"
	"errors"
	"testing"

	"github.com/danielpatrickdp/ouroboros/internal/attribute"
)

func TestMemoryRecordsInOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, ok := m.LastMapping(); ok {
		t.Fatal("empty memory should have no mapping")
	}

	m.Save(ctx, attribute.Mapping{"A": 1})
	m.Save(ctx, attribute.Cycles{{Label: "Cycle 1", Values: attribute.Mapping{"A": 1}}})
	m.Save(ctx, attribute.Mapping{"A": 2})

	recs := m.Records()
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if recs[1].Kind() != attribute.KindCycles {
		t.Fatalf("expected cycles at position 1, got %s", recs[1].Kind())
	}

	last, ok := m.LastMapping()
	if !ok || last["A"] != 2 {
		t.Fatalf("unexpected last mapping %v", last)
	}
	cycles, ok := m.LastCycles()
	if !ok || len(cycles) != 1 {
		t.Fatalf("unexpected last cycles %v", cycles)
	}
}

func TestMemoryCopiesOnSave(t *testing.T) {
	m := NewMemory()
	in := attribute.Mapping{"A": 1}
	m.Save(context.Background(), in)
	in["A"] = 99

	got, _ := m.LastMapping()
	if got["A"] != 1 {
		t.Fatalf("memory shares storage with caller: %v", got)
	}
}

func TestMultiFansOutAndStopsOnError(t *testing.T) {
	a, b := NewMemory(), NewMemory()
	boom := errors.New("boom")
	failing := attribute.SinkFunc(func(context.Context, attribute.Record) error { return boom })

	multi := NewMulti(a, nil, b)
	if err := multi.Save(context.Background(), attribute.Mapping{"A": 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(a.Records()) != 1 || len(b.Records()) != 1 {
		t.Fatal("expected both sinks to receive the record")
	}

	c := NewMemory()
	multi = NewMulti(failing, c)
	if err := multi.Save(context.Background(), attribute.Mapping{"A": 1}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if len(c.Records()) != 0 {
		t.Fatal("sinks after a failure must not be called")
	}
}

func TestDiscard(t *testing.T) {
	if err := Discard.Save(context.Background(), attribute.Mapping{"A": 1}); err != nil {
		t.Fatalf("Discard: %v", err)
	}
}
