package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nvandessel/nenv/internal/network"
)

func TestDefault(t *testing.T) {
	config := Default()

	if config.Network.NumNeurons != 100 {
		t.Errorf("expected NumNeurons 100, got %d", config.Network.NumNeurons)
	}
	if config.Network.Connectivity != "grid2d" {
		t.Errorf("expected Connectivity 'grid2d', got '%s'", config.Network.Connectivity)
	}
	if config.Network.StimulusMode != "broadcast" {
		t.Errorf("expected StimulusMode 'broadcast', got '%s'", config.Network.StimulusMode)
	}
	if config.Network.Threshold != 0.2 {
		t.Errorf("expected Threshold 0.2, got %f", config.Network.Threshold)
	}
	if config.Experiment.Target != -1 {
		t.Errorf("expected Target -1, got %d", config.Experiment.Target)
	}
	if !config.Store.Enabled {
		t.Error("expected Store.Enabled to be true by default")
	}
	if config.Logging.Level != "info" {
		t.Errorf("expected Logging.Level 'info', got '%s'", config.Logging.Level)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestNetworkConfig_MatchesNetworkDefaults(t *testing.T) {
	got, err := Default().NetworkConfig()
	if err != nil {
		t.Fatalf("NetworkConfig() error = %v", err)
	}
	if got != network.DefaultConfig() {
		t.Errorf("NetworkConfig() = %+v, want %+v", got, network.DefaultConfig())
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
network:
  num_neurons: 64
  connectivity: full
  stimulus_mode: local
  seed: 7
experiment:
  steps: 300
  output_dir: ${NENV_TEST_OUT}/csv
logging:
  level: debug
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("NENV_TEST_OUT", "/tmp/out")

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Network.NumNeurons != 64 {
		t.Errorf("expected NumNeurons 64, got %d", config.Network.NumNeurons)
	}
	if config.Network.Seed != 7 {
		t.Errorf("expected Seed 7, got %d", config.Network.Seed)
	}
	if config.Experiment.Steps != 300 {
		t.Errorf("expected Steps 300, got %d", config.Experiment.Steps)
	}
	if config.Experiment.OutputDir != "/tmp/out/csv" {
		t.Errorf("expected expanded OutputDir, got '%s'", config.Experiment.OutputDir)
	}
	// Keys absent from the file keep defaults.
	if config.Network.InhibitoryRatio != 0.2 {
		t.Errorf("expected default InhibitoryRatio 0.2, got %f", config.Network.InhibitoryRatio)
	}

	nc, err := config.NetworkConfig()
	if err != nil {
		t.Fatalf("NetworkConfig() error = %v", err)
	}
	if nc.Connectivity != network.FullyConnected {
		t.Errorf("expected FullyConnected, got %v", nc.Connectivity)
	}
	if nc.StimulusMode != network.StimulusLocal {
		t.Errorf("expected StimulusLocal, got %v", nc.StimulusMode)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("network: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoad_HomeFileAndEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, DirName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	content := "network:\n  num_neurons: 49\n  seed: 3\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("NENV_SEED", "11")
	t.Setenv("NENV_WORKERS", "not-a-number")
	t.Setenv("NENV_LOG_LEVEL", "trace")
	t.Setenv("NENV_STORE_ENABLED", "false")

	config, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if config.Network.NumNeurons != 49 {
		t.Errorf("expected NumNeurons 49 from file, got %d", config.Network.NumNeurons)
	}
	if config.Network.Seed != 11 {
		t.Errorf("expected env Seed 11, got %d", config.Network.Seed)
	}
	if config.Network.Workers != 0 {
		t.Errorf("expected unparseable NENV_WORKERS ignored, got %d", config.Network.Workers)
	}
	if config.Logging.Level != "trace" {
		t.Errorf("expected Level 'trace', got '%s'", config.Logging.Level)
	}
	if config.Store.Enabled {
		t.Error("expected Store.Enabled false from env")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*NenvConfig)
		wantErr bool
	}{
		{"valid default", func(c *NenvConfig) {}, false},
		{"zero neurons", func(c *NenvConfig) { c.Network.NumNeurons = 0 }, true},
		{"bad connectivity", func(c *NenvConfig) { c.Network.Connectivity = "ring" }, true},
		{"bad stimulus mode", func(c *NenvConfig) { c.Network.StimulusMode = "everywhere" }, true},
		{"ratio too high", func(c *NenvConfig) { c.Network.InhibitoryRatio = 1.2 }, true},
		{"target out of range", func(c *NenvConfig) { c.Experiment.Target = 100 }, true},
		{"target in range", func(c *NenvConfig) { c.Experiment.Target = 99 }, false},
		{"negative steps", func(c *NenvConfig) { c.Experiment.Steps = -1 }, true},
		{"negative amplitude", func(c *NenvConfig) { c.Experiment.Amplitude = -2 }, true},
		{"invalid log level", func(c *NenvConfig) { c.Logging.Level = "verbose" }, true},
		{"empty log level", func(c *NenvConfig) { c.Logging.Level = "" }, false},
		{"invalid log format", func(c *NenvConfig) { c.Logging.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.modify(config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetSet(t *testing.T) {
	config := Default()

	if err := config.Set("network.num_neurons", "144"); err != nil {
		t.Fatalf("Set num_neurons: %v", err)
	}
	if v, ok := config.Get("network.num_neurons"); !ok || v != 144 {
		t.Errorf("Get num_neurons = %v, %v", v, ok)
	}

	if err := config.Set("network.seed", "99"); err != nil {
		t.Fatalf("Set seed: %v", err)
	}
	if v, _ := config.Get("network.seed"); v != uint64(99) {
		t.Errorf("Get seed = %v (%T)", v, v)
	}

	if err := config.Set("store.enabled", "false"); err != nil {
		t.Fatalf("Set store.enabled: %v", err)
	}
	if config.Store.Enabled {
		t.Error("store.enabled not applied")
	}

	tests := []struct {
		key, value string
	}{
		{"network.num_neurons", "lots"},
		{"network.inhibitory_ratio", "1.5"},
		{"network.seed", "-1"},
		{"store.enabled", "maybe"},
		{"no.such.key", "1"},
	}
	for _, tt := range tests {
		if err := config.Set(tt.key, tt.value); err == nil {
			t.Errorf("Set(%q, %q) expected error", tt.key, tt.value)
		}
	}
	// Rejected values leave the config untouched.
	if config.Network.InhibitoryRatio != 0.2 {
		t.Errorf("InhibitoryRatio changed to %f by rejected Set", config.Network.InhibitoryRatio)
	}

	if _, ok := config.Get("no.such.key"); ok {
		t.Error("Get unknown key returned ok")
	}
}

func TestKeys_AllGettable(t *testing.T) {
	config := Default()
	keys := Keys()
	if len(keys) == 0 {
		t.Fatal("Keys() returned nothing")
	}
	for i, k := range keys {
		if _, ok := config.Get(k); !ok {
			t.Errorf("key %s not gettable", k)
		}
		if i > 0 && keys[i-1] >= k {
			t.Errorf("keys not sorted at %s", k)
		}
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	config := Default()
	config.Network.NumNeurons = 81
	config.Logging.Format = "json"

	if err := config.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("permissions = %o, want 0600", info.Mode().Perm())
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if loaded.Network.NumNeurons != 81 || loaded.Logging.Format != "json" {
		t.Errorf("round trip lost values: %+v", loaded)
	}
}

func TestStorePath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	config := Default()
	got, err := config.StorePath()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(home, DirName, "runs.db"); got != want {
		t.Errorf("StorePath() = %s, want %s", got, want)
	}

	config.Store.Path = "/data/custom.db"
	if got, _ := config.StorePath(); got != "/data/custom.db" {
		t.Errorf("StorePath() = %s, want /data/custom.db", got)
	}
}
