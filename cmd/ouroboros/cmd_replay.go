package main

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/danielpatrickdp/ouroboros/internal/adjust"
	"github.com/danielpatrickdp/ouroboros/internal/ethics"
	"github.com/danielpatrickdp/ouroboros/internal/replay"
	"github.com/danielpatrickdp/ouroboros/internal/state"
	"github.com/spf13/cobra"
)

// errDiverged makes the process exit non-zero when a replay disagrees.
var errDiverged = errors.New("replay diverged")

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [fixture.json...]",
		Short: "Replay fixtures or verify logged runs",
		Long: `With fixture arguments, replay each fixture through the engine and
compare the results with its expectations.

With --db, re-derive every logged stage from its recorded inputs and report
values that no longer match.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, _ := cmd.Flags().GetString("db")
			if (dbPath == "" && len(args) == 0) || (dbPath != "" && len(args) > 0) {
				return fmt.Errorf("pass either fixture files or --db, not both")
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()

			if dbPath != "" {
				profile, _ := cmd.Flags().GetString("profile")
				return runVerifyMode(cmd, out, dbPath, profile, jsonOut)
			}
			parallel, _ := cmd.Flags().GetInt("parallel")
			return runFixtureMode(cmd, out, args, parallel, jsonOut)
		},
	}

	cmd.Flags().String("db", "", "Verify provenance in this SQLite store")
	cmd.Flags().String("profile", "", "Weakness profile to re-derive adjustments with (default identity)")
	cmd.Flags().Int("parallel", 4, "Maximum fixtures replayed at once")
	return cmd
}

// #region fixture-mode

type fixtureRow struct {
	Fixture  string         `json:"fixture"`
	Passed   bool           `json:"passed"`
	Failures []replay.Check `json:"failures,omitempty"`
}

func runFixtureMode(cmd *cobra.Command, out io.Writer, paths []string, parallel int, jsonOut bool) error {
	results, err := replay.RunAll(cmd.Context(), paths, parallel)
	if err != nil {
		return err
	}
	summary := replay.Summarize(results)

	if jsonOut {
		rows := make([]fixtureRow, len(results))
		for i, r := range results {
			rows[i] = fixtureRow{Fixture: r.Fixture, Passed: r.Passed(), Failures: r.Failures()}
		}
		if err := printJSON(out, rows); err != nil {
			return err
		}
	} else {
		printComparison(out, results, summary)
	}

	if summary.Failed > 0 {
		return errDiverged
	}
	return nil
}

// printComparison outputs one row per fixture plus its failed checks.
func printComparison(out io.Writer, results []replay.Result, s replay.Summary) {
	fmt.Fprintf(out, "%-50s| %s\n", "Fixture", "Match")
	fmt.Fprintf(out, "%-50s+%s\n", "--------------------------------------------------", "------")
	for _, r := range results {
		match := "OK"
		if !r.Passed() {
			match = "DIFF"
		}
		fmt.Fprintf(out, "%-50s| %s\n", truncate(r.Fixture, 50), match)
		for _, c := range r.Failures() {
			fmt.Fprintf(out, "    %s: %s\n", c.Name, c.Detail)
		}
	}
	fmt.Fprintf(out, "\nSummary: %d total, %d match, %d diverge\n", s.Fixtures, s.Passed, s.Failed)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// #endregion fixture-mode

// #region verify-mode

func runVerifyMode(cmd *cobra.Command, out io.Writer, dbPath, profile string, jsonOut bool) error {
	store, err := state.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	var adj adjust.EthicalAdjuster = ethics.Identity
	if profile != "" {
		eng, err := loadWeaknessEngine(profile)
		if err != nil {
			return err
		}
		adj = eng
	}

	report, err := replay.VerifyProvenance(cmd.Context(), store.DB(), adj)
	if err != nil {
		return err
	}

	if jsonOut {
		if err := printJSON(out, verifyJSON(report)); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "%-6s| %-10s| %-8s| %-30s| %12s| %12s\n", "Entry", "Run", "Stage", "Key", "Logged", "Derived")
		for _, d := range report.Drifts {
			fmt.Fprintf(out, "%-6d| %-10s| %-8s| %-30s| %12.6f| %12.6f\n",
				d.EntryID, shortID(d.RunID), d.Stage, truncate(d.Key, 30), d.Logged, d.Derived)
		}
		fmt.Fprintf(out, "\nSummary: %d checked, %d skipped, %d drift\n", report.Checked, report.Skipped, len(report.Drifts))
	}

	if len(report.Drifts) > 0 {
		return errDiverged
	}
	return nil
}

type driftJSON struct {
	EntryID int64    `json:"entry_id"`
	RunID   string   `json:"run_id"`
	Stage   string   `json:"stage"`
	Key     string   `json:"key"`
	Logged  *float64 `json:"logged"`
	Derived *float64 `json:"derived"`
}

type verifyOutput struct {
	Checked int         `json:"checked"`
	Skipped int         `json:"skipped"`
	Drifts  []driftJSON `json:"drifts"`
}

// verifyJSON maps missing values (NaN) to null.
func verifyJSON(r replay.VerifyReport) verifyOutput {
	out := verifyOutput{Checked: r.Checked, Skipped: r.Skipped, Drifts: []driftJSON{}}
	for _, d := range r.Drifts {
		out.Drifts = append(out.Drifts, driftJSON{
			EntryID: d.EntryID,
			RunID:   d.RunID,
			Stage:   d.Stage,
			Key:     d.Key,
			Logged:  finiteOrNil(d.Logged),
			Derived: finiteOrNil(d.Derived),
		})
	}
	return out
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// #endregion verify-mode
