// Package config provides unified configuration loading for nenv.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nvandessel/nenv/internal/constants"
	"github.com/nvandessel/nenv/internal/network"
	"github.com/nvandessel/nenv/internal/nenv"
	"gopkg.in/yaml.v3"
)

// DirName is the per-user data directory under $HOME.
const DirName = ".nenv"

// NenvConfig contains all nenv configuration settings.
type NenvConfig struct {
	// Network contains the construction parameters for simulated networks.
	Network NetworkConfig `json:"network" yaml:"network"`

	// Experiment contains overrides applied to named experiments.
	Experiment ExperimentConfig `json:"experiment" yaml:"experiment"`

	// Store configures the persistent run store.
	Store StoreConfig `json:"store" yaml:"store"`

	// Logging contains settings for operational and step logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// NetworkConfig mirrors network.Config in a flat, file-friendly form.
type NetworkConfig struct {
	NumNeurons      int     `json:"num_neurons" yaml:"num_neurons"`
	Connectivity    string  `json:"connectivity" yaml:"connectivity"`
	InhibitoryRatio float64 `json:"inhibitory_ratio" yaml:"inhibitory_ratio"`

	Threshold        float64 `json:"threshold" yaml:"threshold"`
	RefractoryPeriod int     `json:"refractory_period" yaml:"refractory_period"`
	MemoryAlpha      float64 `json:"memory_alpha" yaml:"memory_alpha"`

	MaxEnergy       float64 `json:"max_energy" yaml:"max_energy"`
	FireCost        float64 `json:"fire_cost" yaml:"fire_cost"`
	MaintenanceCost float64 `json:"maintenance_cost" yaml:"maintenance_cost"`
	RecoveryRate    float64 `json:"recovery_rate" yaml:"recovery_rate"`

	LearningRate float64 `json:"learning_rate" yaml:"learning_rate"`
	Plasticity   float64 `json:"plasticity" yaml:"plasticity"`

	NoveltyAlertThreshold float64 `json:"novelty_alert_threshold" yaml:"novelty_alert_threshold"`
	AlertSensitivity      float64 `json:"alert_sensitivity" yaml:"alert_sensitivity"`
	AlertDecayRate        float64 `json:"alert_decay_rate" yaml:"alert_decay_rate"`
	PrioritySensitivity   float64 `json:"priority_sensitivity" yaml:"priority_sensitivity"`

	// StimulusMode is "broadcast" (default) or "local".
	StimulusMode string `json:"stimulus_mode" yaml:"stimulus_mode"`

	Seed    uint64 `json:"seed" yaml:"seed"`
	Workers int    `json:"workers" yaml:"workers"`
}

// ExperimentConfig overrides per-experiment defaults. Zero values keep
// the experiment's own setting; Target uses -1 for that.
type ExperimentConfig struct {
	Steps            int     `json:"steps" yaml:"steps"`
	Target           int     `json:"target" yaml:"target"`
	Amplitude        float64 `json:"amplitude" yaml:"amplitude"`
	SnapshotInterval int     `json:"snapshot_interval" yaml:"snapshot_interval"`

	// OutputDir receives CSV time series. Empty means the working directory.
	OutputDir string `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
}

// StoreConfig configures the SQLite run store.
type StoreConfig struct {
	// Enabled records every run to the store.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Path is the database file. Empty means ~/.nenv/runs.db.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// LoggingConfig configures nenv's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "warn", "info" (default), "debug", or "trace".
	// "debug" enables the per-step trace in steps.jsonl.
	Level string `json:"level" yaml:"level"`

	// Format is "text" (default) or "json".
	Format string `json:"format" yaml:"format"`
}

// Default returns a NenvConfig with the simulation defaults.
func Default() *NenvConfig {
	n := network.DefaultConfig()
	return &NenvConfig{
		Network: NetworkConfig{
			NumNeurons:            n.NumNeurons,
			Connectivity:          n.Connectivity.String(),
			InhibitoryRatio:       n.InhibitoryRatio,
			Threshold:             n.Neuron.Threshold,
			RefractoryPeriod:      n.Neuron.RefractoryPeriod,
			MemoryAlpha:           n.Neuron.MemoryAlpha,
			MaxEnergy:             n.Neuron.Glia.MaxEnergy,
			FireCost:              n.Neuron.Glia.FireCost,
			MaintenanceCost:       n.Neuron.Glia.MaintenanceCost,
			RecoveryRate:          n.Neuron.Glia.RecoveryRate,
			LearningRate:          n.Neuron.Dendritoma.LearningRate,
			Plasticity:            n.Neuron.Dendritoma.Plasticity,
			NoveltyAlertThreshold: n.NoveltyAlertThreshold,
			AlertSensitivity:      n.AlertSensitivity,
			AlertDecayRate:        n.AlertDecayRate,
			PrioritySensitivity:   n.PrioritySensitivity,
			StimulusMode:          n.StimulusMode.String(),
			Seed:                  n.Seed,
		},
		Experiment: ExperimentConfig{
			Target:           -1,
			SnapshotInterval: constants.DefaultSnapshotInterval,
		},
		Store: StoreConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Dir returns the nenv data directory, ~/.nenv.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, DirName), nil
}

// Path returns the default config file location.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.nenv/config.yaml -> environment variables
func Load() (*NenvConfig, error) {
	config := Default()

	if configPath, err := Path(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file. Keys missing
// from the file keep their defaults.
func LoadFromFile(path string) (*NenvConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Experiment.OutputDir = expandEnvVars(config.Experiment.OutputDir)
	config.Store.Path = expandEnvVars(config.Store.Path)

	return config, nil
}

// Save writes the configuration to path, creating parent directories.
func (c *NenvConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// StorePath resolves the run store location.
func (c *NenvConfig) StorePath() (string, error) {
	if c.Store.Path != "" {
		return c.Store.Path, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "runs.db"), nil
}

// NetworkConfig converts the network section into a network.Config.
func (c *NenvConfig) NetworkConfig() (network.Config, error) {
	n := c.Network
	conn, err := network.ParseConnectivity(n.Connectivity)
	if err != nil {
		return network.Config{}, err
	}
	mode, err := network.ParseStimulusMode(n.StimulusMode)
	if err != nil {
		return network.Config{}, err
	}

	return network.Config{
		NumNeurons:      n.NumNeurons,
		Connectivity:    conn,
		InhibitoryRatio: n.InhibitoryRatio,
		Neuron: nenv.Config{
			Glia: nenv.GliaConfig{
				MaxEnergy:       n.MaxEnergy,
				FireCost:        n.FireCost,
				MaintenanceCost: n.MaintenanceCost,
				RecoveryRate:    n.RecoveryRate,
			},
			Dendritoma: nenv.DendritomaConfig{
				LearningRate: n.LearningRate,
				Plasticity:   n.Plasticity,
			},
			Threshold:        n.Threshold,
			RefractoryPeriod: n.RefractoryPeriod,
			MemoryAlpha:      n.MemoryAlpha,
		},
		NoveltyAlertThreshold: n.NoveltyAlertThreshold,
		AlertSensitivity:      n.AlertSensitivity,
		AlertDecayRate:        n.AlertDecayRate,
		PrioritySensitivity:   n.PrioritySensitivity,
		StimulusMode:          mode,
		Seed:                  n.Seed,
		Workers:               n.Workers,
	}, nil
}

// Validate checks that the configuration is valid.
func (c *NenvConfig) Validate() error {
	nc, err := c.NetworkConfig()
	if err != nil {
		return err
	}
	if err := nc.Validate(); err != nil {
		return err
	}

	if c.Experiment.Steps < 0 {
		return fmt.Errorf("steps must be non-negative, got %d", c.Experiment.Steps)
	}
	if c.Experiment.Target < -1 || c.Experiment.Target >= c.Network.NumNeurons {
		return fmt.Errorf("target must be -1 or a unit id below %d, got %d", c.Network.NumNeurons, c.Experiment.Target)
	}
	if c.Experiment.Amplitude < 0 {
		return fmt.Errorf("amplitude must be non-negative, got %f", c.Experiment.Amplitude)
	}
	if c.Experiment.SnapshotInterval < 0 {
		return fmt.Errorf("snapshot_interval must be non-negative, got %d", c.Experiment.SnapshotInterval)
	}

	validLevels := map[string]bool{"warn": true, "info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: warn, info, debug, trace, or empty for default)", c.Logging.Level)
	}
	if c.Logging.Format != "" && c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (valid: text, json)", c.Logging.Format)
	}

	return nil
}

// applyEnvOverrides applies NENV_* environment variable overrides.
// Unparseable numeric values are ignored.
func applyEnvOverrides(config *NenvConfig) {
	if v := os.Getenv("NENV_NUM_NEURONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Network.NumNeurons = n
		}
	}
	if v := os.Getenv("NENV_CONNECTIVITY"); v != "" {
		config.Network.Connectivity = v
	}
	if v := os.Getenv("NENV_INHIBITORY_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Network.InhibitoryRatio = f
		}
	}
	if v := os.Getenv("NENV_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Network.Threshold = f
		}
	}
	if v := os.Getenv("NENV_STIMULUS_MODE"); v != "" {
		config.Network.StimulusMode = v
	}
	if v := os.Getenv("NENV_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Network.Seed = n
		}
	}
	if v := os.Getenv("NENV_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Network.Workers = n
		}
	}
	if v := os.Getenv("NENV_OUTPUT_DIR"); v != "" {
		config.Experiment.OutputDir = v
	}
	if v := os.Getenv("NENV_STORE_PATH"); v != "" {
		config.Store.Path = v
	}
	if v := os.Getenv("NENV_STORE_ENABLED"); v != "" {
		config.Store.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("NENV_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("NENV_LOG_FORMAT"); v != "" {
		config.Logging.Format = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
