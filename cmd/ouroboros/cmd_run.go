package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/danielpatrickdp/ouroboros/internal/attribute"
	"github.com/danielpatrickdp/ouroboros/internal/config"
	"github.com/danielpatrickdp/ouroboros/internal/engine"
	"github.com/danielpatrickdp/ouroboros/internal/fractal"
	"github.com/danielpatrickdp/ouroboros/internal/logging"
	"github.com/danielpatrickdp/ouroboros/internal/state"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runOutput struct {
	RunID    string            `json:"run_id"`
	Failsafe string            `json:"failsafe"`
	Adjusted attribute.Mapping `json:"adjusted"`
	Cycles   attribute.Cycles  `json:"cycles"`
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Adjust the configured state and project it forward",
		Long: `Run the adjustment stage over the configured initial state, then
project the adjusted state over the configured number of cycles.

Both results are written to the fail-safe JSON file and, unless disabled, to
the SQLite version store together with a provenance entry per stage.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, cfg); err != nil {
				return err
			}

			logger, err := newLogger(cmd, cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			failsafe, fellBack := config.ResolveFailsafe(cfg.Storage.FailsafePath, cfg.Storage.DefaultFailsafePath)
			if fellBack {
				logger.Error("failsafe file not found, using default",
					zap.String("path", cfg.Storage.FailsafePath),
					zap.String("fallback", failsafe))
			}

			initial := cfg.InitialState()
			if resume, _ := cmd.Flags().GetBool("resume"); resume {
				prev, err := state.LoadFailsafe(failsafe)
				switch {
				case err == nil && len(prev.State) > 0:
					initial = prev.State
					logger.Info("resuming from failsafe state", zap.String("path", failsafe))
				case err != nil && !errors.Is(err, os.ErrNotExist):
					return err
				}
			}

			sinks := []attribute.Sink{state.NewFileSink(failsafe)}
			diag := logging.NewZapDiagnostics(logger)
			opts := []engine.Option{
				engine.WithLogger(logger),
				engine.WithDiagnostics(diag),
			}

			noDB, _ := cmd.Flags().GetBool("no-db")
			if cfg.Storage.DBPath != "" && !noDB {
				store, err := state.NewStore(cfg.Storage.DBPath)
				if err != nil {
					return fmt.Errorf("open db: %w", err)
				}
				defer store.Close()
				sinks = append(sinks, store)
				opts = append(opts, engine.WithAuditor(logging.NewProvenanceLog(store.DB())))
			}
			opts = append(opts, engine.WithSink(state.NewMulti(sinks...)))

			ethicsName, adj, closer, err := buildEthics(cfg.Ethics)
			if err != nil {
				return err
			}
			defer closer.Close()
			opts = append(opts, engine.WithEthics(ethicsName, adj))

			tuningName, tuner := buildTuner(cfg.Engine)
			opts = append(opts, engine.WithTuner(tuningName, tuner))

			eng := engine.New(engine.Config{
				Weights:      cfg.AdjustWeights(),
				Params:       cfg.FractalParams(),
				DisplayLimit: cfg.Engine.DisplayLimit,
				Seed:         cfg.Engine.Seed,
			}, opts...)

			res, err := eng.Run(cmd.Context(), initial)
			if err != nil {
				return err
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return printJSON(cmd.OutOrStdout(), runOutput{
					RunID:    res.RunID,
					Failsafe: failsafe,
					Adjusted: res.Adjusted,
					Cycles:   res.Cycles,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d attributes adjusted, %d cycles projected (saved to %s)\n",
				shortID(res.RunID), len(res.Adjusted), len(res.Cycles), failsafe)
			return nil
		},
	}

	cmd.Flags().Int("iterations", 0, "Override the number of projected cycles")
	cmd.Flags().Float64("scaling-factor", 0, "Override the per-cycle scaling factor")
	cmd.Flags().Int("display-limit", 0, "Override how many cycles are reported")
	cmd.Flags().Uint64("seed", 0, "Seed the adaptive tuner (0 = random)")
	cmd.Flags().Bool("resume", false, "Start from the state in the failsafe file when present")
	cmd.Flags().Bool("no-db", false, "Skip the SQLite version store and provenance log")
	return cmd
}

// applyRunFlags copies explicitly set flags over cfg and revalidates.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("iterations") {
		cfg.Engine.Iterations, _ = flags.GetInt("iterations")
	}
	if flags.Changed("scaling-factor") {
		cfg.Engine.ScalingFactor, _ = flags.GetFloat64("scaling-factor")
	}
	if flags.Changed("display-limit") {
		cfg.Engine.DisplayLimit, _ = flags.GetInt("display-limit")
	}
	if flags.Changed("seed") {
		cfg.Engine.Seed, _ = flags.GetUint64("seed")
	}
	return cfg.Validate()
}

// buildTuner returns identity tuning when the spread is zero.
func buildTuner(cfg config.EngineConfig) (string, fractal.Tuner) {
	if cfg.TuningSpread == 0 {
		return "identity", fractal.Identity
	}
	return "adaptive", fractal.NewSeededTuner(cfg.Seed, cfg.TuningSpread)
}
