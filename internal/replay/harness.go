package replay

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"slices"

	"github.com/danielpatrickdp/ouroboros/internal/adjust"
	"github.com/danielpatrickdp/ouroboros/internal/attribute"
	"github.com/danielpatrickdp/ouroboros/internal/engine"
	"github.com/danielpatrickdp/ouroboros/internal/ethics"
	"github.com/danielpatrickdp/ouroboros/internal/fractal"
	"github.com/danielpatrickdp/ouroboros/internal/logging"
	"github.com/danielpatrickdp/ouroboros/internal/state"
	"golang.org/x/sync/errgroup"
)

// #region types
// Check is a single comparison made while replaying a fixture.
type Check struct {
	Name   string
	Passed bool
	Detail string
}

// Result captures the outcome of replaying one fixture.
type Result struct {
	Fixture  string
	Adjusted attribute.Mapping
	Cycles   attribute.Cycles
	Checks   []Check
}

// Passed reports whether every check passed.
func (r Result) Passed() bool {
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// Failures returns the failed checks.
func (r Result) Failures() []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	Fixtures     int
	Passed       int
	Failed       int
	FailedChecks int
}

// #endregion types

// #region replay
// Run replays f through the engine with identity ethics and an in-memory
// sink, then compares the stage outputs with the fixture's expectations.
func Run(ctx context.Context, f *Fixture) (Result, error) {
	mem := state.NewMemory()
	tuningName, tuner := f.Tuner()
	eng := engine.New(f.EngineConfig(),
		engine.WithTuner(tuningName, tuner),
		engine.WithSink(mem),
	)

	res, err := eng.Run(ctx, f.Initial)
	if err != nil {
		return Result{}, fmt.Errorf("replay %s: %w", f.Name(), err)
	}

	tol := f.tolerance()
	out := Result{
		Fixture:  f.Name(),
		Adjusted: res.Adjusted,
		Cycles:   res.Cycles,
	}

	if f.Expected.Adjusted != nil {
		out.Checks = append(out.Checks, compareMapping("adjusted", f.Expected.Adjusted, res.Adjusted, func(want float64) float64 { return tol }))
	}

	if f.Expected.Cycles != nil {
		out.Checks = append(out.Checks, compareLabels(f.Expected.Cycles, res.Cycles))
		spread := 0.0
		if tuningName == TuningAdaptive {
			spread = f.Tuning.Spread
			if spread <= 0 {
				spread = fractal.DefaultSpread
			}
		}
		n := min(len(f.Expected.Cycles), len(res.Cycles))
		for i := 0; i < n; i++ {
			want := f.Expected.Cycles[i]
			out.Checks = append(out.Checks, compareMapping(want.Label, want.Values, res.Cycles[i].Values, func(w float64) float64 {
				return math.Abs(w)*spread + tol
			}))
		}
	}

	out.Checks = append(out.Checks, checkSink(mem, res))
	return out, nil
}

// RunAll loads and replays every fixture, at most parallel at a time.
// Results keep the order of paths. A fixture that cannot be loaded or run
// aborts the whole batch.
func RunAll(ctx context.Context, paths []string, parallel int) ([]Result, error) {
	results := make([]Result, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}

	for i, path := range paths {
		g.Go(func() error {
			f, err := LoadFixture(path)
			if err != nil {
				return err
			}
			r, err := Run(gctx, f)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []Result) Summary {
	s := Summary{Fixtures: len(results)}
	for _, r := range results {
		failed := r.Failures()
		if len(failed) == 0 {
			s.Passed++
			continue
		}
		s.Failed++
		s.FailedChecks += len(failed)
	}
	return s
}

// #endregion replay

// #region verify
// Drift is one value whose re-derived result differs from the logged one.
type Drift struct {
	EntryID int64
	RunID   string
	Stage   string
	Key     string
	Logged  float64
	Derived float64
}

// VerifyReport summarises a provenance verification.
type VerifyReport struct {
	Checked int
	Skipped int
	Drifts  []Drift
}

// VerifyProvenance re-derives every logged stage from its recorded inputs
// using adj for the adjustment stage and reports values that no longer
// match. Adaptive projections and entries whose output was not valid JSON
// are skipped.
func VerifyProvenance(ctx context.Context, db *sql.DB, adj adjust.EthicalAdjuster) (VerifyReport, error) {
	if adj == nil {
		adj = ethics.Identity
	}
	entries, err := logging.NewProvenanceLog(db).Entries("", 0)
	if err != nil {
		return VerifyReport{}, err
	}

	var report VerifyReport
	for _, e := range entries {
		var logged, derived attribute.Mapping
		switch e.Stage {
		case logging.StageAdjust:
			var in logging.AdjustInputs
			if json.Unmarshal([]byte(e.InputsJSON), &in) != nil || json.Unmarshal([]byte(e.OutputJSON), &logged) != nil {
				report.Skipped++
				continue
			}
			derived, err = adjust.Adjust(ctx, in.Current, adjust.Weights{
				Historical: in.Historical,
				Adaptive:   in.Adaptive,
			}, adj, state.Discard)
			if err != nil {
				return report, fmt.Errorf("re-derive entry %d: %w", e.ID, err)
			}
			report.Checked++
			report.Drifts = append(report.Drifts, diff(e, "", logged, derived)...)

		case logging.StageProject:
			var in logging.ProjectInputs
			var cycles attribute.Cycles
			if json.Unmarshal([]byte(e.InputsJSON), &in) != nil || json.Unmarshal([]byte(e.OutputJSON), &cycles) != nil {
				report.Skipped++
				continue
			}
			if in.Tuning != TuningIdentity {
				report.Skipped++
				continue
			}
			decayed := fractal.Decay(in.Base, in.Iterations, in.ScalingFactor)
			report.Checked++
			if len(decayed) != len(cycles) {
				report.Drifts = append(report.Drifts, Drift{
					EntryID: e.ID, RunID: e.RunID, Stage: e.Stage, Key: "cycles",
					Logged: float64(len(cycles)), Derived: float64(len(decayed)),
				})
				continue
			}
			for i := range decayed {
				report.Drifts = append(report.Drifts, diff(e, cycles[i].Label+"/", cycles[i].Values, decayed[i].Values)...)
			}

		default:
			report.Skipped++
		}
	}
	return report, nil
}

func diff(e logging.StageEntry, prefix string, logged, derived attribute.Mapping) []Drift {
	var out []Drift
	keys := logged.Keys()
	for _, k := range derived.Keys() {
		if _, ok := logged[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		l, lok := logged[k]
		d, dok := derived[k]
		if lok && dok && math.Abs(l-d) <= DefaultTolerance {
			continue
		}
		if !lok {
			l = math.NaN()
		}
		if !dok {
			d = math.NaN()
		}
		out = append(out, Drift{EntryID: e.ID, RunID: e.RunID, Stage: e.Stage, Key: prefix + k, Logged: l, Derived: d})
	}
	return out
}

// #endregion verify

// #region compare
func compareMapping(name string, want, got attribute.Mapping, bound func(want float64) float64) Check {
	c := Check{Name: name, Passed: true}
	for _, k := range want.Keys() {
		g, ok := got[k]
		if !ok {
			c.Passed = false
			c.Detail = fmt.Sprintf("missing key %q", k)
			return c
		}
		if math.Abs(g-want[k]) > bound(want[k]) {
			c.Passed = false
			c.Detail = fmt.Sprintf("%s: expected %g, got %g", k, want[k], g)
			return c
		}
	}
	for _, k := range got.Keys() {
		if _, ok := want[k]; !ok {
			c.Passed = false
			c.Detail = fmt.Sprintf("unexpected key %q", k)
			return c
		}
	}
	return c
}

func compareLabels(want, got attribute.Cycles) Check {
	c := Check{Name: "labels", Passed: slices.Equal(want.Labels(), got.Labels())}
	if !c.Passed {
		c.Detail = fmt.Sprintf("expected %v, got %v", want.Labels(), got.Labels())
	}
	return c
}

// checkSink confirms the sink saw the adjusted mapping then the cycles.
func checkSink(mem *state.Memory, res engine.Result) Check {
	c := Check{Name: "sink", Passed: true}
	records := mem.Records()
	if len(records) != 2 || records[0].Kind() != attribute.KindMapping || records[1].Kind() != attribute.KindCycles {
		c.Passed = false
		c.Detail = fmt.Sprintf("expected mapping then cycles, got %d records", len(records))
		return c
	}
	last, _ := mem.LastCycles()
	if len(last) != len(res.Cycles) {
		c.Passed = false
		c.Detail = fmt.Sprintf("sink holds %d cycles, result has %d", len(last), len(res.Cycles))
	}
	return c
}

// #endregion compare
