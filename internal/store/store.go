// Package store defines the RunStore interface for recording simulation
// runs and querying their step time series and weight snapshots.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nvandessel/nenv/internal/network"
)

// RunStatus is the lifecycle state of a recorded run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"   // Steps are still being appended
	StatusCompleted RunStatus = "completed" // All scheduled steps ran
	StatusCancelled RunStatus = "cancelled" // Context was cancelled mid-run
	StatusFailed    RunStatus = "failed"    // Run aborted with an error
)

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case StatusRunning, StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Run is one execution of an experiment against a freshly built network.
type Run struct {
	ID         string         `json:"id"`
	Experiment string         `json:"experiment"`
	Config     network.Config `json:"config"`
	Target     int            `json:"target"` // -1 when the experiment has no single target
	Steps      int            `json:"steps"`  // scheduled
	Status     RunStatus      `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Summary    RunSummary     `json:"summary"`
}

// RunSummary aggregates a finished run.
type RunSummary struct {
	StepsCompleted int     `json:"steps_completed"`
	TargetSpikes   int     `json:"target_spikes"`
	TotalSpikes    int     `json:"total_spikes"`
	PeakAlert      float64 `json:"peak_alert"`
	FinalAlert     float64 `json:"final_alert"`
	FinalAvgEnergy float64 `json:"final_avg_energy"`
}

// Step is one row of a run's time series.
type Step struct {
	Time           int     `json:"time"`
	TargetFiring   bool    `json:"target_firing"`
	TargetEnergy   float64 `json:"target_energy"`
	TargetPriority float64 `json:"target_priority"`
	TotalFiring    int     `json:"total_firing"`
	AvgEnergy      float64 `json:"avg_energy"`
	AlertLevel     float64 `json:"alert_level"`
	AvgNovelty     float64 `json:"avg_novelty"`
}

// WeightSnapshot is the full weight matrix at one time step, indexed [unit][input].
type WeightSnapshot struct {
	RunID   string      `json:"run_id"`
	Time    int         `json:"time"`
	Weights [][]float64 `json:"weights"`
}

// RunFilter narrows ListRuns. Zero values match everything.
type RunFilter struct {
	Experiment string
	Status     RunStatus
	Limit      int
}

// StepRange selects steps with From <= time < To. To < 0 means no upper bound.
type StepRange struct {
	From int
	To   int
}

// AllSteps selects every step of a run.
var AllSteps = StepRange{From: 0, To: -1}

func (r StepRange) contains(t int) bool {
	return t >= r.From && (r.To < 0 || t < r.To)
}

// NewRunID returns a fresh random run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// RunStore defines the interface for persisting runs.
type RunStore interface {
	// Run lifecycle
	CreateRun(ctx context.Context, run Run) error
	FinishRun(ctx context.Context, id string, status RunStatus, summary RunSummary, at time.Time) error
	GetRun(ctx context.Context, id string) (*Run, error) // nil if not found
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)
	DeleteRun(ctx context.Context, id string) error

	// Time series
	AppendSteps(ctx context.Context, runID string, steps []Step) error
	GetSteps(ctx context.Context, runID string, r StepRange) ([]Step, error)

	// Weight snapshots, returned in time order
	SaveWeights(ctx context.Context, snap WeightSnapshot) error
	GetWeights(ctx context.Context, runID string) ([]WeightSnapshot, error)

	Close() error
}
