// Package logging builds the zap logger, the diagnostic sinks the engine
// reports into, and the SQLite provenance trail of stage runs.
package logging

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel maps "debug", "info", "warn" or "error" to a zap level.
// An empty string means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return lvl, nil
}

// NewLogger builds a logger writing to w. format is "console" (default) or "json".
func NewLogger(level, format string, w io.Writer) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(format) {
	case "", "console":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), lvl)
	return zap.New(core), nil
}

// #region diagnostics
// Diagnostics receives human-readable reports of stage results. It never
// feeds back into the computation.
type Diagnostics interface {
	Record(message string)
}

type zapDiagnostics struct {
	logger *zap.Logger
}

// NewZapDiagnostics reports each message at info level on logger.
func NewZapDiagnostics(logger *zap.Logger) Diagnostics {
	return zapDiagnostics{logger: logger}
}

func (d zapDiagnostics) Record(message string) {
	d.logger.Info(message)
}

type discard struct{}

func (discard) Record(string) {}

// Discard drops every message.
var Discard Diagnostics = discard{}

// Recorder keeps messages in memory. It is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	messages []string
}

// Record appends message.
func (r *Recorder) Record(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.messages))
	copy(out, r.messages)
	return out
}
// #endregion diagnostics
