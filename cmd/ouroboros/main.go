package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/danielpatrickdp/ouroboros/internal/adjust"
	"github.com/danielpatrickdp/ouroboros/internal/config"
	"github.com/danielpatrickdp/ouroboros/internal/ethics"
	"github.com/danielpatrickdp/ouroboros/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ouroboros",
		Short: "Ouroboros engine - weighted state adjustment and fractal projection",
		Long: `ouroboros adjusts an attribute state with historical and adaptive
weighting tables and an ethical-adjustment collaborator, then projects the
result forward as a series of decaying cycles.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default ./"+config.DefaultFile+" if present)")
	rootCmd.PersistentFlags().String("log-level", "", "Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newInspectCmd(),
		newReplayCmd(),
		newServeEthicsCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()
			if jsonOut {
				json.NewEncoder(out).Encode(map[string]string{
					"version": version,
					"commit":  commit,
				})
			} else {
				fmt.Fprintf(out, "ouroboros version %s (commit: %s)\n", version, commit)
			}
		},
	}
}

// #region shared
// loadConfig reads --config and applies --log-level on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// newLogger writes to stderr so stdout stays parseable under --json.
func newLogger(cmd *cobra.Command, cfg *config.Config) (*zap.Logger, error) {
	format := cfg.Logging.Format
	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		format = "json"
	}
	return logging.NewLogger(cfg.Logging.Level, format, cmd.ErrOrStderr())
}

// buildEthics returns the configured adjuster, its provenance name and a
// closer for any connection it holds.
func buildEthics(cfg config.EthicsConfig) (string, adjust.EthicalAdjuster, io.Closer, error) {
	switch cfg.Mode {
	case config.EthicsProfile:
		eng, err := loadWeaknessEngine(cfg.ProfilePath)
		if err != nil {
			return "", nil, nil, err
		}
		return config.EthicsProfile, eng, nopCloser{}, nil
	case config.EthicsRemote:
		client, err := ethics.Dial(cfg.Addr, cfg.Timeout)
		if err != nil {
			return "", nil, nil, err
		}
		return config.EthicsRemote + ":" + cfg.Addr, client, client, nil
	default:
		return config.EthicsIdentity, ethics.Identity, nopCloser{}, nil
	}
}

func loadWeaknessEngine(path string) (*ethics.WeaknessEngine, error) {
	p, err := ethics.LoadProfile(path)
	if err != nil {
		return nil, err
	}
	return ethics.NewWeaknessEngine(p)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
// #endregion shared
