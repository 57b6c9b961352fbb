package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danielpatrickdp/ouroboros/internal/attribute"
	"github.com/danielpatrickdp/ouroboros/internal/config"
	"github.com/danielpatrickdp/ouroboros/internal/ethics"
	"github.com/danielpatrickdp/ouroboros/internal/fractal"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// writeConfig writes a small config into dir and returns its path.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	body := `engine:
  iterations: 3
  scaling_factor: 0.5
  display_limit: 2
  tuning_spread: 0
weights:
  historical: {}
  adaptive: {}
initial:
  X: 1
  Y: 2
storage:
  db_path: ` + filepath.Join(dir, "ouroboros.db") + `
  failsafe_path: ` + filepath.Join(dir, "failsafe_config.json") + `
  default_failsafe_path: ` + filepath.Join(dir, "default_failsafe.json") + `
logging:
  level: warn
`
	path := filepath.Join(dir, "ouroboros.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestNewRootCmd(t *testing.T) {
	root := newRootCmd()
	want := []string{"inspect", "replay", "run", "serve-ethics", "version"}
	var got []string
	for _, c := range root.Commands() {
		got = append(got, c.Name())
	}
	for _, name := range want {
		found := false
		for _, g := range got {
			if g == name {
				found = true
			}
		}
		if !found {
			t.Errorf("missing subcommand %q in %v", name, got)
		}
	}
	for _, flag := range []string{"config", "log-level", "json"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing persistent flag --%s", flag)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version", "--json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var v map[string]string
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("decode: %v (%q)", err, out)
	}
	if v["version"] != version {
		t.Errorf("version = %q, want %q", v["version"], version)
	}
}

func TestRunInspectReplay(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	out, err := execute(t, "run", "--config", cfgPath, "--json")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var res runOutput
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode run output: %v (%q)", err, out)
	}
	if res.Adjusted["X"] != 1 || res.Adjusted["Y"] != 2 {
		t.Errorf("adjusted = %v, want X=1 Y=2", res.Adjusted)
	}
	if len(res.Cycles) != 3 {
		t.Fatalf("expected 3 cycles, got %d", len(res.Cycles))
	}
	if res.Cycles[2].Values["X"] != 0.25 {
		t.Errorf("Cycle 3 X = %v, want 0.25", res.Cycles[2].Values["X"])
	}

	// failsafe_config.json did not exist, so the default path is used.
	wantFailsafe := filepath.Join(dir, "default_failsafe.json")
	if res.Failsafe != wantFailsafe {
		t.Errorf("failsafe = %q, want %q", res.Failsafe, wantFailsafe)
	}
	if _, err := os.Stat(wantFailsafe); err != nil {
		t.Errorf("failsafe file not written: %v", err)
	}

	out, err = execute(t, "inspect", "--db", filepath.Join(dir, "ouroboros.db"), "--json")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	var rows []listRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode inspect output: %v (%q)", err, out)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(rows))
	}
	if rows[0].Kind != attribute.KindMapping || rows[1].Kind != attribute.KindCycles {
		t.Errorf("kinds = %s, %s", rows[0].Kind, rows[1].Kind)
	}
	if rows[1].ParentID != rows[0].VersionID {
		t.Errorf("cycles parent = %q, want %q", rows[1].ParentID, rows[0].VersionID)
	}

	out, err = execute(t, "inspect", "--db", filepath.Join(dir, "ouroboros.db"), "--version", rows[1].VersionID)
	if err != nil {
		t.Fatalf("inspect --version: %v", err)
	}
	if !strings.Contains(out, "Cycle 3:") {
		t.Errorf("detail output missing Cycle 3:\n%s", out)
	}

	out, err = execute(t, "inspect", "--db", filepath.Join(dir, "ouroboros.db"), "--provenance", "5")
	if err != nil {
		t.Fatalf("inspect --provenance: %v", err)
	}
	if !strings.Contains(out, "adjust") || !strings.Contains(out, "project") {
		t.Errorf("provenance output missing stages:\n%s", out)
	}

	out, err = execute(t, "replay", "--db", filepath.Join(dir, "ouroboros.db"))
	if err != nil {
		t.Fatalf("replay --db: %v\n%s", err, out)
	}
	if !strings.Contains(out, "2 checked, 0 skipped, 0 drift") {
		t.Errorf("unexpected verify summary:\n%s", out)
	}
}

func TestRunResumeFromFailsafe(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	if _, err := execute(t, "run", "--config", cfgPath, "--no-db", "--json"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "ouroboros.db")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("--no-db should not create the store, stat err = %v", err)
	}

	// The second run reads the failsafe written by the first.
	if err := os.Rename(filepath.Join(dir, "default_failsafe.json"), filepath.Join(dir, "failsafe_config.json")); err != nil {
		t.Fatalf("rename: %v", err)
	}
	out, err := execute(t, "run", "--config", cfgPath, "--no-db", "--resume", "--iterations", "1", "--json")
	if err != nil {
		t.Fatalf("resumed run: %v", err)
	}
	var res runOutput
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Failsafe != filepath.Join(dir, "failsafe_config.json") {
		t.Errorf("failsafe = %q, want the configured path", res.Failsafe)
	}
	if len(res.Cycles) != 1 {
		t.Errorf("--iterations override ignored: %d cycles", len(res.Cycles))
	}
}

func TestRunRejectsInvalidOverride(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	_, err := execute(t, "run", "--config", cfgPath, "--iterations=-1")
	if !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestReplayFixtures(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "..", "internal", "replay", "testdata", "*.json"))
	if err != nil || len(paths) == 0 {
		t.Fatalf("no fixtures found: %v", err)
	}
	out, err := execute(t, append([]string{"replay"}, paths...)...)
	if err != nil {
		t.Fatalf("replay: %v\n%s", err, out)
	}
	if !strings.Contains(out, "0 diverge") {
		t.Errorf("unexpected summary:\n%s", out)
	}
}

func TestReplayDivergenceFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wrong.json")
	body := `{"description": "wrong", "initial": {"A": 1}, "iterations": 1, "scaling_factor": 0.5,
		"expected": {"adjusted": {"A": 2}}}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := execute(t, "replay", path)
	if !errors.Is(err, errDiverged) {
		t.Fatalf("expected errDiverged, got %v", err)
	}
	if !strings.Contains(out, "DIFF") {
		t.Errorf("expected DIFF row:\n%s", out)
	}
}

func TestReplayRequiresOneMode(t *testing.T) {
	if _, err := execute(t, "replay"); err == nil {
		t.Error("expected error with no arguments")
	}
	if _, err := execute(t, "replay", "--db", "x.db", "f.json"); err == nil {
		t.Error("expected error with both modes")
	}
}

func TestServeEthics(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	weak, err := ethics.NewWeaknessEngine(ethics.Profile{Sensitivity: 1, Weaknesses: map[string]float64{"A": 0.5}})
	if err != nil {
		t.Fatalf("NewWeaknessEngine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveEthics(ctx, lis, weak) }()

	client, err := ethics.Dial(lis.Addr().String(), 5*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	got, err := client.Apply(context.Background(), attribute.Mapping{"A": 4, "B": 1})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got["A"] != 2 || got["B"] != 1 {
		t.Errorf("Apply = %v, want A=2 B=1", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serveEthics: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestBuildTuner(t *testing.T) {
	name, tuner := buildTuner(config.EngineConfig{})
	if name != "identity" {
		t.Errorf("zero spread: name = %q, want identity", name)
	}
	if _, ok := tuner.(*fractal.AdaptiveTuner); ok {
		t.Error("zero spread should not build an adaptive tuner")
	}

	name, tuner = buildTuner(config.EngineConfig{TuningSpread: 0.1, Seed: 5})
	at, ok := tuner.(*fractal.AdaptiveTuner)
	if name != "adaptive" || !ok {
		t.Fatalf("got %q / %T, want adaptive", name, tuner)
	}
	if at.Spread() != 0.1 {
		t.Errorf("spread = %v, want 0.1", at.Spread())
	}
}

func TestBuildEthics(t *testing.T) {
	name, adj, closer, err := buildEthics(config.EthicsConfig{Mode: config.EthicsIdentity})
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	defer closer.Close()
	if name != "identity" || adj == nil {
		t.Errorf("identity mode = %q/%v", name, adj)
	}

	dir := t.TempDir()
	profile := filepath.Join(dir, "weak.yaml")
	if err := os.WriteFile(profile, []byte("sensitivity: 0.5\nweaknesses:\n  A: 1\n"), 0644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	name, adj, _, err = buildEthics(config.EthicsConfig{Mode: config.EthicsProfile, ProfilePath: profile})
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	got, err := adj.Apply(context.Background(), attribute.Mapping{"A": 10})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if name != "profile" || got["A"] != 5 {
		t.Errorf("profile mode = %q, A = %v, want profile/5", name, got["A"])
	}

	if _, _, _, err := buildEthics(config.EthicsConfig{Mode: config.EthicsProfile, ProfilePath: filepath.Join(dir, "missing.yaml")}); err == nil {
		t.Error("expected error for missing profile")
	}
}
