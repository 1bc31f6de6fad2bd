package simulation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvandessel/nenv/internal/network"
	"github.com/nvandessel/nenv/internal/store"
)

// Runner orchestrates simulation experiments against a real network and run
// store.
type Runner struct {
	t     *testing.T
	store *store.SQLiteRunStore
}

// NewRunner creates a simulation runner with an isolated SQLite store and
// sandboxed HOME directory.
func NewRunner(t *testing.T) *Runner {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	s, err := store.NewSQLiteRunStore(filepath.Join(tmpDir, "runs.db"))
	if err != nil {
		t.Fatalf("NewRunner: failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return &Runner{t: t, store: s}
}

// Store exposes the runner's store for assertions on persisted data.
func (r *Runner) Store() *store.SQLiteRunStore {
	return r.store
}

// Run executes the scenario and returns the collected results.
func (r *Runner) Run(scenario Scenario) SimulationResult {
	r.t.Helper()
	ctx := context.Background()

	// Phase 1: Build the network.
	cfg := network.DefaultConfig()
	if scenario.Config != nil {
		cfg = *scenario.Config
	}
	net, err := network.New(cfg)
	if err != nil {
		r.t.Fatalf("%s: network.New: %v", scenario.Name, err)
	}

	// Phase 2: Register the run.
	runID := store.NewRunID()
	if err := r.store.CreateRun(ctx, store.Run{
		ID:         runID,
		Experiment: scenario.Name,
		Config:     cfg,
		Target:     -1,
		Steps:      scenario.Steps,
		Status:     store.StatusRunning,
		StartedAt:  time.Now(),
	}); err != nil {
		r.t.Fatalf("%s: CreateRun: %v", scenario.Name, err)
	}

	// Phase 3: Run steps.
	steps := make([]StepResult, 0, scenario.Steps)
	records := make([]store.Step, 0, scenario.Steps)
	var summary store.RunSummary
	for t := 0; t < scenario.Steps; t++ {
		if scenario.BeforeStep != nil {
			scenario.BeforeStep(t, net)
		}
		var stim network.Stimulus
		if scenario.Stimulus != nil {
			stim = scenario.Stimulus(t)
		}
		if err := net.Update(stim); err != nil {
			r.t.Fatalf("%s: step %d: Update: %v", scenario.Name, t, err)
		}

		state := net.Observe()
		steps = append(steps, StepResult{StepState: state})
		records = append(records, store.Step{
			Time:        state.Step,
			TotalFiring: state.NumFiring,
			AvgEnergy:   state.AvgEnergy,
			AlertLevel:  state.AlertLevel,
			AvgNovelty:  state.AvgNovelty,
		})

		summary.StepsCompleted++
		summary.TotalSpikes += state.NumFiring
		summary.PeakAlert = max(summary.PeakAlert, state.AlertLevel)
		summary.FinalAlert = state.AlertLevel
		summary.FinalAvgEnergy = state.AvgEnergy
	}

	// Phase 4: Persist.
	if err := r.store.AppendSteps(ctx, runID, records); err != nil {
		r.t.Fatalf("%s: AppendSteps: %v", scenario.Name, err)
	}
	if err := r.store.SaveWeights(ctx, store.WeightSnapshot{RunID: runID, Time: net.TimeStep() - 1, Weights: net.Weights()}); err != nil {
		r.t.Fatalf("%s: SaveWeights: %v", scenario.Name, err)
	}
	if err := r.store.FinishRun(ctx, runID, store.StatusCompleted, summary, time.Now()); err != nil {
		r.t.Fatalf("%s: FinishRun: %v", scenario.Name, err)
	}

	return SimulationResult{
		Steps:   steps,
		Network: net,
		RunID:   runID,
	}
}
