package engine

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/danielpatrickdp/ouroboros/internal/adjust"
	"github.com/danielpatrickdp/ouroboros/internal/attribute"
	"github.com/danielpatrickdp/ouroboros/internal/fractal"
	"github.com/danielpatrickdp/ouroboros/internal/logging"
	"github.com/danielpatrickdp/ouroboros/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type captureAuditor struct {
	entries []logging.StageEntry
	err     error
}

func (a *captureAuditor) LogStage(_ context.Context, entry logging.StageEntry) error {
	a.entries = append(a.entries, entry)
	return a.err
}

func newTestEngine(cfg Config, opts ...Option) (*Engine, *logging.Recorder) {
	rec := &logging.Recorder{}
	opts = append([]Option{WithDiagnostics(rec)}, opts...)
	e := New(cfg, opts...)
	e.newRunID = func() string { return "run-1" }
	return e, rec
}

func TestRunConcreteScenario(t *testing.T) {
	cfg := Config{
		Params:       fractal.Params{Iterations: 3, ScalingFactor: 0.5},
		DisplayLimit: 2,
	}
	mem := state.NewMemory()
	e, rec := newTestEngine(cfg, WithSink(mem))

	res, err := e.Run(context.Background(), attribute.Mapping{"X": 1, "Y": 2})
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, attribute.Mapping{"X": 1, "Y": 2}, res.Adjusted)
	require.Len(t, res.Cycles, 3, "result is never truncated")
	assert.Equal(t, attribute.Mapping{"X": 0.25, "Y": 0.5}, res.Cycles[2].Values)

	want := []string{
		`Adjusted Ethics & Economics: {"X":1,"Y":2}`,
		`Fractal Recursive Adjustments: {"Cycle 1":{"X":1,"Y":2},"Cycle 2":{"X":0.5,"Y":1},"Cycle 3":{"X":0.25,"Y":0.5}}`,
		"Final Adjusted Empire State:",
		"{\n  \"X\": 1,\n  \"Y\": 2\n}",
		"Fractal Recursive Adjustments:",
		"Cycle 1: {\n  \"X\": 1,\n  \"Y\": 2\n}",
		"Cycle 2: {\n  \"X\": 0.5,\n  \"Y\": 1\n}",
	}
	assert.Equal(t, want, rec.Messages())

	records := mem.Records()
	require.Len(t, records, 2)
	assert.Equal(t, attribute.KindMapping, records[0].Kind())
	assert.Equal(t, attribute.KindCycles, records[1].Kind())
}

func TestAdjustWeighsAndCallsEthics(t *testing.T) {
	cfg := Config{Weights: adjust.Weights{
		Historical: attribute.WeightTable{"A": 2},
		Adaptive:   attribute.WeightTable{"A": 0.5},
	}}
	var seen attribute.Mapping
	spy := adjust.AdjusterFunc(func(_ context.Context, m attribute.Mapping) (attribute.Mapping, error) {
		seen = m.Clone()
		return m, nil
	})
	e, _ := newTestEngine(cfg, WithEthics("spy", spy))

	got, err := e.Adjust(context.Background(), attribute.Mapping{"A": 10})
	require.NoError(t, err)
	assert.Equal(t, attribute.Mapping{"A": 10}, got)
	assert.Equal(t, attribute.Mapping{"A": 10}, seen)
}

func TestRunStopsOnEthicsFailure(t *testing.T) {
	boom := errors.New("boom")
	failing := adjust.AdjusterFunc(func(context.Context, attribute.Mapping) (attribute.Mapping, error) {
		return nil, boom
	})
	mem := state.NewMemory()
	e, rec := newTestEngine(Config{Params: fractal.DefaultParams()}, WithEthics("failing", failing), WithSink(mem))

	_, err := e.Run(context.Background(), attribute.Mapping{"A": 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, mem.Records(), "projection must not run after a failed adjustment")
	assert.Empty(t, rec.Messages())
}

func TestRunStopsOnSinkFailure(t *testing.T) {
	boom := errors.New("disk full")
	calls := 0
	sink := attribute.SinkFunc(func(context.Context, attribute.Record) error {
		calls++
		return boom
	})
	e, _ := newTestEngine(Config{Params: fractal.DefaultParams()}, WithSink(sink))

	_, err := e.Run(context.Background(), attribute.Mapping{"A": 1})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestAuditorReceivesBothStages(t *testing.T) {
	aud := &captureAuditor{}
	cfg := Config{
		Weights: adjust.Weights{Historical: attribute.WeightTable{"A": 2}},
		Params:  fractal.Params{Iterations: 2, ScalingFactor: 0.5},
		Seed:    7,
	}
	e, _ := newTestEngine(cfg, WithAuditor(aud), WithTuner("adaptive", fractal.Identity))

	_, err := e.Run(context.Background(), attribute.Mapping{"A": 1})
	require.NoError(t, err)
	require.Len(t, aud.entries, 2)

	adj := aud.entries[0]
	assert.Equal(t, logging.StageAdjust, adj.Stage)
	assert.Equal(t, "run-1", adj.RunID)
	assert.Equal(t, "identity", adj.Ethics)
	assert.JSONEq(t, `{"A":2}`, adj.OutputJSON)

	var in logging.AdjustInputs
	require.NoError(t, json.Unmarshal([]byte(adj.InputsJSON), &in))
	assert.Equal(t, map[string]float64{"A": 1}, in.Current)
	assert.Equal(t, map[string]float64{"A": 2}, in.Historical)

	proj := aud.entries[1]
	assert.Equal(t, logging.StageProject, proj.Stage)
	var pin logging.ProjectInputs
	require.NoError(t, json.Unmarshal([]byte(proj.InputsJSON), &pin))
	assert.Equal(t, 2, pin.Iterations)
	assert.Equal(t, "adaptive", pin.Tuning)
	assert.Equal(t, uint64(7), pin.Seed)
	assert.Equal(t, map[string]float64{"A": 2}, pin.Base)
}

func TestAuditorFailureDoesNotAbortRun(t *testing.T) {
	aud := &captureAuditor{err: errors.New("db locked")}
	e, _ := newTestEngine(Config{Params: fractal.DefaultParams()}, WithAuditor(aud))

	res, err := e.Run(context.Background(), attribute.Mapping{"A": 1})
	require.NoError(t, err)
	assert.Len(t, res.Cycles, 5)
	assert.Len(t, aud.entries, 2)
}

func TestReportHonoursDisplayLimit(t *testing.T) {
	e, rec := newTestEngine(Config{DisplayLimit: 0})
	cycles := fractal.Decay(attribute.Mapping{"A": 1}, 4, 0.5)

	e.Report(Result{Adjusted: attribute.Mapping{"A": 1}, Cycles: cycles})
	msgs := rec.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "Fractal Recursive Adjustments:", msgs[2])
}

func TestNaNRendersWithoutFailing(t *testing.T) {
	e, rec := newTestEngine(Config{})

	got, err := e.Adjust(context.Background(), attribute.Mapping{"A": math.NaN()})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got["A"]))
	require.Len(t, rec.Messages(), 1)
	assert.Contains(t, rec.Messages()[0], "NaN")
}

func TestRunIDsDiffer(t *testing.T) {
	e := New(Config{Params: fractal.Params{Iterations: 1, ScalingFactor: 1}})

	a, err := e.Run(context.Background(), attribute.Mapping{"A": 1})
	require.NoError(t, err)
	b, err := e.Run(context.Background(), attribute.Mapping{"A": 1})
	require.NoError(t, err)
	assert.NotEqual(t, a.RunID, b.RunID)
}
