// Package engine wires the adjustment and fractal projection stages into a
// single run and reports the results to a diagnostic sink.
package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/danielpatrickdp/ouroboros/internal/adjust"
	"github.com/danielpatrickdp/ouroboros/internal/attribute"
	"github.com/danielpatrickdp/ouroboros/internal/ethics"
	"github.com/danielpatrickdp/ouroboros/internal/fractal"
	"github.com/danielpatrickdp/ouroboros/internal/logging"
	"github.com/danielpatrickdp/ouroboros/internal/state"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// #region config
// Config holds the per-run numeric inputs.
type Config struct {
	Weights      adjust.Weights
	Params       fractal.Params
	DisplayLimit int

	// Seed is recorded in provenance; the tuner itself owns its source.
	Seed uint64
}

// Result is the outcome of a full run.
type Result struct {
	RunID    string
	Adjusted attribute.Mapping
	Cycles   attribute.Cycles
}
// #endregion config

// Auditor records a provenance entry per stage.
type Auditor interface {
	LogStage(ctx context.Context, entry logging.StageEntry) error
}

// #region engine-struct
// Engine runs the pipeline. Collaborators default to identity ethics,
// identity tuning, a discarding sink and discarded diagnostics.
type Engine struct {
	cfg        Config
	ethics     adjust.EthicalAdjuster
	ethicsName string
	tuner      fractal.Tuner
	tuningName string
	sink       attribute.Sink
	diag       logging.Diagnostics
	logger     *zap.Logger
	auditor    Auditor
	newRunID   func() string
}

// Option customises an Engine.
type Option func(*Engine)

// WithEthics sets the ethical adjuster; name is recorded in provenance.
func WithEthics(name string, adj adjust.EthicalAdjuster) Option {
	return func(e *Engine) {
		e.ethicsName = name
		e.ethics = adj
	}
}

// WithTuner sets the tuner used by the projection stage; name is recorded
// in provenance.
func WithTuner(name string, t fractal.Tuner) Option {
	return func(e *Engine) {
		e.tuningName = name
		e.tuner = t
	}
}

// WithSink sets the state sink.
func WithSink(s attribute.Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithDiagnostics sets the diagnostic sink.
func WithDiagnostics(d logging.Diagnostics) Option {
	return func(e *Engine) { e.diag = d }
}

// WithLogger sets the operational logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithAuditor enables provenance entries.
func WithAuditor(a Auditor) Option {
	return func(e *Engine) { e.auditor = a }
}

// New builds an engine.
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg,
		ethics:     ethics.Identity,
		ethicsName: "identity",
		tuner:      fractal.Identity,
		tuningName: "identity",
		sink:       state.Discard,
		diag:       logging.Discard,
		logger:     zap.NewNop(),
		newRunID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
// #endregion engine-struct

// #region stages
// Adjust runs the adjustment stage on its own.
func (e *Engine) Adjust(ctx context.Context, current attribute.Mapping) (attribute.Mapping, error) {
	return e.adjust(ctx, e.newRunID(), current)
}

// Project runs the projection stage on its own.
func (e *Engine) Project(ctx context.Context, base attribute.Mapping) (attribute.Cycles, error) {
	return e.project(ctx, e.newRunID(), base)
}

func (e *Engine) adjust(ctx context.Context, runID string, current attribute.Mapping) (attribute.Mapping, error) {
	result, err := adjust.Adjust(ctx, current, e.cfg.Weights, e.ethics, e.sink)
	if err != nil {
		e.logger.Error("adjust stage failed", zap.String("run_id", runID), zap.Error(err))
		return nil, err
	}

	rendered := render(result)
	e.diag.Record("Adjusted Ethics & Economics: " + rendered)
	e.logger.Debug("adjust stage complete",
		zap.String("run_id", runID),
		zap.Int("attributes", len(result)),
		zap.String("ethics", e.ethicsName))

	e.audit(ctx, logging.StageEntry{
		RunID: runID,
		Stage: logging.StageAdjust,
		InputsJSON: marshalInputs(logging.AdjustInputs{
			Current:    current,
			Historical: e.cfg.Weights.Historical,
			Adaptive:   e.cfg.Weights.Adaptive,
		}),
		OutputJSON: rendered,
		Ethics:     e.ethicsName,
	})
	return result, nil
}

func (e *Engine) project(ctx context.Context, runID string, base attribute.Mapping) (attribute.Cycles, error) {
	cycles, err := fractal.Project(ctx, base, e.cfg.Params, e.tuner, e.sink)
	if err != nil {
		e.logger.Error("projection stage failed", zap.String("run_id", runID), zap.Error(err))
		return nil, err
	}

	rendered := render(cycles)
	e.diag.Record("Fractal Recursive Adjustments: " + rendered)
	e.logger.Debug("projection stage complete",
		zap.String("run_id", runID),
		zap.Int("cycles", len(cycles)),
		zap.Float64("scaling_factor", e.cfg.Params.ScalingFactor))

	e.audit(ctx, logging.StageEntry{
		RunID: runID,
		Stage: logging.StageProject,
		InputsJSON: marshalInputs(logging.ProjectInputs{
			Base:          base,
			Iterations:    e.cfg.Params.Iterations,
			ScalingFactor: e.cfg.Params.ScalingFactor,
			Tuning:        e.tuningName,
			Seed:          e.cfg.Seed,
		}),
		OutputJSON: rendered,
		Ethics:     e.ethicsName,
	})
	return cycles, nil
}
// #endregion stages

// #region run
// Run adjusts initial, projects the adjusted mapping and reports both. The
// first failure aborts the run.
func (e *Engine) Run(ctx context.Context, initial attribute.Mapping) (Result, error) {
	runID := e.newRunID()
	e.logger.Info("run started", zap.String("run_id", runID), zap.Int("attributes", len(initial)))

	adjusted, err := e.adjust(ctx, runID, initial)
	if err != nil {
		return Result{}, fmt.Errorf("adjust: %w", err)
	}
	cycles, err := e.project(ctx, runID, adjusted)
	if err != nil {
		return Result{}, fmt.Errorf("project: %w", err)
	}

	res := Result{RunID: runID, Adjusted: adjusted, Cycles: cycles}
	e.Report(res)
	e.logger.Info("run complete", zap.String("run_id", runID), zap.Int("cycles", len(cycles)))
	return res, nil
}

// Report writes the final state and the first DisplayLimit cycles to the
// diagnostic sink. The result itself is not truncated.
func (e *Engine) Report(res Result) {
	e.diag.Record("Final Adjusted Empire State:")
	e.diag.Record(renderIndent(res.Adjusted))

	e.diag.Record("Fractal Recursive Adjustments:")
	for _, s := range res.Cycles.Head(e.cfg.DisplayLimit) {
		e.diag.Record(fmt.Sprintf("%s: %s", s.Label, renderIndent(s.Values)))
	}
}
// #endregion run

// #region helpers
func (e *Engine) audit(ctx context.Context, entry logging.StageEntry) {
	if e.auditor == nil {
		return
	}
	if err := e.auditor.LogStage(ctx, entry); err != nil {
		e.logger.Warn("provenance write failed",
			zap.String("run_id", entry.RunID),
			zap.String("stage", entry.Stage),
			zap.Error(err))
	}
}

// render falls back to fmt when values are not representable in JSON (NaN, Inf).
func render(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func renderIndent(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func marshalInputs(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
// #endregion helpers
