package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/nenv/internal/config"
	"github.com/nvandessel/nenv/internal/logging"
	"github.com/nvandessel/nenv/internal/store"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nenv",
		Short: "nenv - spiking networks with energy, novelty and alert",
		Long: `nenv simulates networks of spiking units whose firing is gated by a
per-unit energy budget, whose connections learn by Hebbian plasticity,
and whose recovery is modulated by a network-wide alert level driven
by input novelty.

It runs reproducible stimulus protocols, records their time series to
CSV and a local run store, and checkpoints network state.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.nenv/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: warn, info, debug, trace (overrides config)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newExperimentsCmd(),
		newRunsCmd(),
		newGraphCmd(),
		newCheckpointCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"version": version})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "nenv version %s\n", version)
			}
		},
	}
}

// loadSettings loads configuration from --config or the default location,
// then applies --log-level.
func loadSettings(cmd *cobra.Command) (*config.NenvConfig, error) {
	path, _ := cmd.Flags().GetString("config")

	var cfg *config.NenvConfig
	var err error
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the operational logger. Logs go to stderr so stdout
// stays parseable.
func newLogger(cfg *config.NenvConfig, w io.Writer) *slog.Logger {
	return logging.New(cfg.Logging.Level, cfg.Logging.Format, w)
}

// openStore opens the SQLite run store at the configured path.
func openStore(cfg *config.NenvConfig) (*store.SQLiteRunStore, error) {
	path, err := cfg.StorePath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store path: %w", err)
	}
	s, err := store.NewSQLiteRunStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	return s, nil
}

// writeJSON encodes v to the command's output.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
