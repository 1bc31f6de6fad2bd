package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolateHome points HOME at a temp directory so tests never touch ~/.nenv.
// MUST be called for any test that opens the run store or writes config.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(home, 0700); err != nil {
		t.Fatalf("Failed to create temp home: %v", err)
	}
	t.Setenv("HOME", home)
	for _, key := range []string{"NENV_NUM_NEURONS", "NENV_CONNECTIVITY", "NENV_SEED", "NENV_STORE_PATH", "NENV_STORE_ENABLED", "NENV_LOG_LEVEL", "NENV_OUTPUT_DIR"} {
		t.Setenv(key, "")
	}
	return home
}

// execute runs the CLI with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootCmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("nenv %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func decodeJSON(t *testing.T, data string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(data), v); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, data)
	}
}

type runOutput struct {
	Summary struct {
		RunID          string `json:"run_id"`
		Status         string `json:"status"`
		StepsCompleted int    `json:"steps_completed"`
		TargetSpikes   int    `json:"target_spikes"`
		Params         struct {
			Target int `json:"target"`
		} `json:"params"`
	} `json:"summary"`
	CSV        string `json:"csv"`
	Checkpoint string `json:"checkpoint"`
}

func TestVersion(t *testing.T) {
	out := mustExecute(t, "version")
	if out != "nenv version "+version+"\n" {
		t.Errorf("version = %q", out)
	}

	var v map[string]string
	decodeJSON(t, mustExecute(t, "version", "--json"), &v)
	if v["version"] != version {
		t.Errorf("json version = %q", v["version"])
	}
}

func TestExperiments(t *testing.T) {
	out := mustExecute(t, "experiments")
	for _, name := range []string{"habituation", "novelty", "pattern-switch", "urgent"} {
		if !strings.Contains(out, name) {
			t.Errorf("experiments output missing %s", name)
		}
	}

	var list struct {
		Count int `json:"count"`
	}
	decodeJSON(t, mustExecute(t, "experiments", "--json"), &list)
	if list.Count != 4 {
		t.Errorf("count = %d, want 4", list.Count)
	}
}

func TestConfigSetGetList(t *testing.T) {
	home := isolateHome(t)

	mustExecute(t, "config", "set", "network.num_neurons", "64")
	mustExecute(t, "config", "set", "network.connectivity", "full")

	if out := mustExecute(t, "config", "get", "network.num_neurons"); out != "network.num_neurons = 64\n" {
		t.Errorf("get = %q", out)
	}
	var got struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	decodeJSON(t, mustExecute(t, "config", "get", "network.connectivity", "--json"), &got)
	if got.Value != "full" {
		t.Errorf("connectivity = %q, want full", got.Value)
	}

	data, err := os.ReadFile(filepath.Join(home, ".nenv", "config.yaml"))
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if !strings.Contains(string(data), "num_neurons: 64") {
		t.Errorf("config file missing num_neurons:\n%s", data)
	}

	list := mustExecute(t, "config", "list")
	if !strings.Contains(list, "network.num_neurons:") || !strings.Contains(list, "64") {
		t.Errorf("list missing setting:\n%s", list)
	}

	if _, err := execute(t, "config", "set", "network.num_neurons", "-4"); err == nil {
		t.Error("expected error for invalid value")
	}
	if _, err := execute(t, "config", "get", "network.bogus"); err == nil {
		t.Error("expected error for unknown key")
	}
	if out := mustExecute(t, "config", "get", "network.num_neurons"); out != "network.num_neurons = 64\n" {
		t.Errorf("rejected set changed the file: %q", out)
	}
}

func TestConfigFlag(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "alt.yaml")

	mustExecute(t, "config", "set", "network.num_neurons", "16", "--config", path)
	if out := mustExecute(t, "config", "get", "network.num_neurons", "--config", path); out != "network.num_neurons = 16\n" {
		t.Errorf("get with --config = %q", out)
	}
	if out := mustExecute(t, "config", "path", "--config", path); strings.TrimSpace(out) != path {
		t.Errorf("path = %q", out)
	}
}

func TestRunRecordsAndRunsCommands(t *testing.T) {
	isolateHome(t)
	csvPath := filepath.Join(t.TempDir(), "out", "hab.csv")

	var run runOutput
	decodeJSON(t, mustExecute(t, "run", "habituation", "--neurons", "25", "--steps", "60", "--csv", csvPath, "--json"), &run)
	if run.Summary.Status != "completed" || run.Summary.StepsCompleted != 60 {
		t.Fatalf("summary = %+v", run.Summary)
	}
	if run.Summary.Params.Target != 13 {
		t.Errorf("scaled target = %d, want 13", run.Summary.Params.Target)
	}

	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("csv not written: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 61 {
		t.Errorf("csv lines = %d, want header + 60", len(lines))
	}

	var list struct {
		Count int `json:"count"`
		Runs  []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"runs"`
	}
	decodeJSON(t, mustExecute(t, "runs", "list", "--json"), &list)
	if list.Count != 1 || list.Runs[0].ID != run.Summary.RunID {
		t.Fatalf("runs list = %+v", list)
	}

	show := mustExecute(t, "runs", "show", run.Summary.RunID)
	for _, want := range []string{"experiment:    habituation", "25 units", "60 of 60", "alert"} {
		if !strings.Contains(show, want) {
			t.Errorf("runs show missing %q:\n%s", want, show)
		}
	}

	exportPath := filepath.Join(t.TempDir(), "steps.jsonl")
	mustExecute(t, "runs", "export", run.Summary.RunID, "-o", exportPath)
	exported, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(exported), "\n"); n != 60 {
		t.Errorf("exported %d steps, want 60", n)
	}

	mustExecute(t, "runs", "delete", run.Summary.RunID)
	if out := mustExecute(t, "runs", "list"); !strings.Contains(out, "No runs recorded") {
		t.Errorf("run still listed after delete:\n%s", out)
	}
	if _, err := execute(t, "runs", "show", run.Summary.RunID); err == nil {
		t.Error("expected error showing a deleted run")
	}
}

func TestRunTextOutput(t *testing.T) {
	isolateHome(t)

	out := mustExecute(t, "run", "urgent", "--neurons", "25", "--steps", "70", "--no-store", "--raster", "--raster-units", "12,13")
	for _, want := range []string{"(urgent): completed", "target 13", "peak alert:", "t=0..69", "12  "} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if _, err := os.Stat(filepath.Join(os.Getenv("HOME"), ".nenv", "runs.db")); err == nil {
		t.Error("--no-store still created the run store")
	}
}

func TestRunErrors(t *testing.T) {
	isolateHome(t)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown experiment", []string{"run", "sleep"}},
		{"missing experiment", []string{"run"}},
		{"target out of range", []string{"run", "urgent", "--neurons", "9", "--target", "9", "--no-store"}},
		{"missing checkpoint", []string{"run", "urgent", "--resume", "/nonexistent.ckpt", "--no-store"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestCheckpointLifecycle(t *testing.T) {
	isolateHome(t)
	dir := filepath.Join(t.TempDir(), "ckpt")

	var first runOutput
	decodeJSON(t, mustExecute(t, "run", "habituation", "--neurons", "16", "--steps", "40",
		"--no-store", "--checkpoint", "--checkpoint-dir", dir, "--json"), &first)
	if first.Checkpoint == "" {
		t.Fatal("no checkpoint written")
	}

	if out := mustExecute(t, "checkpoint", "verify", first.Checkpoint); !strings.Contains(out, "is valid") {
		t.Errorf("verify = %q", out)
	}
	info := mustExecute(t, "checkpoint", "info", first.Checkpoint)
	for _, want := range []string{"time step:     40", "units:         16", "habituation"} {
		if !strings.Contains(info, want) {
			t.Errorf("info missing %q:\n%s", want, info)
		}
	}

	time.Sleep(5 * time.Millisecond)
	var resumed runOutput
	decodeJSON(t, mustExecute(t, "run", "urgent", "--resume", first.Checkpoint, "--steps", "10",
		"--no-store", "--checkpoint", "--checkpoint-dir", dir, "--json"), &resumed)
	if resumed.Summary.StepsCompleted != 10 {
		t.Errorf("resumed steps = %d, want 10", resumed.Summary.StepsCompleted)
	}
	if !strings.Contains(filepath.Base(resumed.Checkpoint), "-t0000050") {
		t.Errorf("resumed checkpoint %s should be at t=50", resumed.Checkpoint)
	}

	var list struct {
		TotalCount  int `json:"total_count"`
		Checkpoints []struct {
			Path     string `json:"path"`
			TimeStep int    `json:"time_step"`
		} `json:"checkpoints"`
	}
	decodeJSON(t, mustExecute(t, "checkpoint", "list", "--dir", dir, "--json"), &list)
	if list.TotalCount != 2 || list.Checkpoints[0].TimeStep != 50 {
		t.Fatalf("list = %+v", list)
	}

	if _, err := execute(t, "checkpoint", "prune", "--dir", dir); err == nil {
		t.Error("prune without a policy should fail")
	}
	if out := mustExecute(t, "checkpoint", "prune", "--dir", dir, "--max-age", "30d"); !strings.Contains(out, "Pruned 0") {
		t.Errorf("age prune = %q", out)
	}
	var pruned struct {
		Count   int      `json:"count"`
		Deleted []string `json:"deleted"`
	}
	decodeJSON(t, mustExecute(t, "checkpoint", "prune", "--dir", dir, "--keep", "1", "--json"), &pruned)
	if pruned.Count != 1 || pruned.Deleted[0] != first.Checkpoint {
		t.Errorf("pruned = %+v, want the older checkpoint", pruned)
	}

	corrupt := filepath.Join(dir, "nenv-checkpoint-corrupt.ckpt")
	if err := os.WriteFile(corrupt, []byte("not a checkpoint\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "checkpoint", "verify", corrupt); err == nil {
		t.Error("verify accepted a corrupt file")
	}
}

func TestGraph(t *testing.T) {
	isolateHome(t)

	dot := mustExecute(t, "graph", "--neurons", "9")
	if !strings.HasPrefix(dot, "digraph nenv {") || strings.Count(dot, " -> ") != 40 {
		t.Errorf("unexpected DOT output:\n%s", dot)
	}

	var graph struct {
		NodeCount int `json:"node_count"`
		TimeStep  int `json:"time_step"`
	}
	decodeJSON(t, mustExecute(t, "graph", "--neurons", "16", "--experiment", "habituation", "--steps", "20", "--json"), &graph)
	if graph.NodeCount != 16 || graph.TimeStep != 20 {
		t.Errorf("graph = %+v", graph)
	}

	ascii := mustExecute(t, "graph", "--neurons", "9", "--format", "ascii")
	if lines := strings.Split(strings.TrimSpace(ascii), "\n"); len(lines) != 4 || !strings.HasPrefix(lines[0], "t=0") {
		t.Errorf("ascii output:\n%s", ascii)
	}

	if out := mustExecute(t, "graph", "--neurons", "9", "--units", "0,1"); strings.Count(out, " -> ") != 2 {
		t.Errorf("unit selection output:\n%s", out)
	}
	for _, args := range [][]string{
		{"graph", "--format", "svg"},
		{"graph", "--neurons", "9", "--units", "9"},
		{"graph", "--units", "a,b"},
	} {
		if _, err := execute(t, args...); err == nil {
			t.Errorf("nenv %s succeeded", strings.Join(args, " "))
		}
	}
}

func TestParseUnits(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"", nil, false},
		{"3", []int{3}, false},
		{"1, 2,10", []int{1, 2, 10}, false},
		{"1,x", nil, true},
	}
	for _, tt := range tests {
		got, err := parseUnits(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseUnits(%q) error = %v", tt.in, err)
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("parseUnits(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parseUnits(%q) = %v, want %v", tt.in, got, tt.want)
			}
		}
	}
}
