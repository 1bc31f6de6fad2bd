// Package mcp provides an MCP (Model Context Protocol) server for nenv.
package mcp

import (
	"time"

	"github.com/nvandessel/nenv/internal/store"
)

// ListExperimentsInput defines the input for nenv_list_experiments.
type ListExperimentsInput struct{}

// ListExperimentsOutput defines the output for nenv_list_experiments.
type ListExperimentsOutput struct {
	Experiments []ExperimentInfo `json:"experiments" jsonschema:"Registered experiment protocols"`
	Count       int              `json:"count" jsonschema:"Number of experiments"`
}

// ExperimentInfo describes a registered experiment and its defaults.
type ExperimentInfo struct {
	Name             string  `json:"name"`
	Description      string  `json:"description"`
	Steps            int     `json:"steps"`
	Target           int     `json:"target"`
	Amplitude        float64 `json:"amplitude"`
	SnapshotInterval int     `json:"snapshot_interval"`
}

// RunExperimentInput defines the input for nenv_run_experiment.
type RunExperimentInput struct {
	Experiment       string  `json:"experiment" jsonschema:"Experiment name (see nenv_list_experiments)"`
	Steps            int     `json:"steps,omitempty" jsonschema:"Number of steps; 0 uses the experiment default"`
	Target           *int    `json:"target,omitempty" jsonschema:"Tracked unit id; omitted uses the experiment default"`
	Amplitude        float64 `json:"amplitude,omitempty" jsonschema:"Stimulus amplitude; 0 uses the experiment default"`
	SnapshotInterval int     `json:"snapshot_interval,omitempty" jsonschema:"Weight snapshot interval in steps; 0 uses the default"`
	Seed             *uint64 `json:"seed,omitempty" jsonschema:"Random seed for weight initialization"`
	NumNeurons       int     `json:"num_neurons,omitempty" jsonschema:"Network size; 0 uses the configured size"`
	IncludeSteps     bool    `json:"include_steps,omitempty" jsonschema:"Return the per-step time series in the result"`
	Resume           string  `json:"resume,omitempty" jsonschema:"Checkpoint file name to continue from instead of a fresh network; num_neurons and seed are then ignored"`
	Checkpoint       bool    `json:"checkpoint,omitempty" jsonschema:"Save the final network state as a checkpoint"`
}

// RunExperimentOutput defines the output for nenv_run_experiment.
type RunExperimentOutput struct {
	RunID            string       `json:"run_id" jsonschema:"Identifier of the recorded run"`
	Experiment       string       `json:"experiment"`
	Status           string       `json:"status" jsonschema:"completed, cancelled or failed"`
	StepsCompleted   int          `json:"steps_completed"`
	TargetSpikes     int          `json:"target_spikes"`
	TargetSpikeTimes []int        `json:"target_spike_times,omitempty"`
	TotalSpikes      int          `json:"total_spikes"`
	PeakAlert        float64      `json:"peak_alert"`
	FinalAlert       float64      `json:"final_alert"`
	FinalAvgEnergy   float64      `json:"final_avg_energy"`
	DurationMs       int64        `json:"duration_ms"`
	Steps            []store.Step `json:"steps,omitempty" jsonschema:"Per-step records when include_steps is set"`
	Checkpoint       string       `json:"checkpoint,omitempty" jsonschema:"File name of the saved checkpoint"`
	Message          string       `json:"message" jsonschema:"Human-readable result message"`
}

// ListRunsInput defines the input for nenv_list_runs.
type ListRunsInput struct {
	Experiment string `json:"experiment,omitempty" jsonschema:"Only runs of this experiment"`
	Status     string `json:"status,omitempty" jsonschema:"Only runs with this status"`
	Limit      int    `json:"limit,omitempty" jsonschema:"Maximum number of runs (default 20)"`
}

// ListRunsOutput defines the output for nenv_list_runs.
type ListRunsOutput struct {
	Runs  []RunListItem `json:"runs" jsonschema:"Recorded runs, newest first"`
	Count int           `json:"count" jsonschema:"Number of runs returned"`
}

// RunListItem provides a list view of a run.
type RunListItem struct {
	ID           string     `json:"id"`
	Experiment   string     `json:"experiment"`
	Status       string     `json:"status"`
	Steps        int        `json:"steps"`
	NumNeurons   int        `json:"num_neurons"`
	Seed         uint64     `json:"seed"`
	TargetSpikes int        `json:"target_spikes"`
	PeakAlert    float64    `json:"peak_alert"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// GetStepsInput defines the input for nenv_get_steps.
type GetStepsInput struct {
	RunID string `json:"run_id" jsonschema:"Run identifier"`
	From  int    `json:"from,omitempty" jsonschema:"First step time (inclusive)"`
	To    *int   `json:"to,omitempty" jsonschema:"Last step time (inclusive); omitted means the end of the run"`
}

// GetStepsOutput defines the output for nenv_get_steps.
type GetStepsOutput struct {
	RunID string       `json:"run_id"`
	Steps []store.Step `json:"steps"`
	Count int          `json:"count"`
}

// GetWeightsInput defines the input for nenv_get_weights.
type GetWeightsInput struct {
	RunID string `json:"run_id" jsonschema:"Run identifier"`
	Time  *int   `json:"time,omitempty" jsonschema:"Snapshot step; omitted returns every snapshot"`
	Unit  *int   `json:"unit,omitempty" jsonschema:"Return only this unit's incoming weights"`
}

// GetWeightsOutput defines the output for nenv_get_weights.
type GetWeightsOutput struct {
	RunID     string           `json:"run_id"`
	Snapshots []WeightSnapshot `json:"snapshots"`
	Count     int              `json:"count"`
}

// WeightSnapshot is a weight matrix (or a single unit's row) at one step.
type WeightSnapshot struct {
	Time    int         `json:"time"`
	Unit    *int        `json:"unit,omitempty"`
	Weights [][]float64 `json:"weights"`
}
