package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// InMemoryRunStore implements RunStore for tests and throwaway runs.
type InMemoryRunStore struct {
	mu      sync.RWMutex
	runs    map[string]Run
	steps   map[string]map[int]Step
	weights map[string]map[int][][]float64
}

// NewInMemoryRunStore creates an empty in-memory store.
func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{
		runs:    make(map[string]Run),
		steps:   make(map[string]map[int]Step),
		weights: make(map[string]map[int][][]float64),
	}
}

// CreateRun adds a run. The ID must be unique.
func (s *InMemoryRunStore) CreateRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	if !run.Status.Valid() {
		return fmt.Errorf("invalid run status: %q", run.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("create run %s: already exists", run.ID)
	}
	run.FinishedAt = nil
	run.Summary = RunSummary{}
	s.runs[run.ID] = run
	s.steps[run.ID] = make(map[int]Step)
	s.weights[run.ID] = make(map[int][][]float64)
	return nil
}

// FinishRun records the final status and summary of a run.
func (s *InMemoryRunStore) FinishRun(ctx context.Context, id string, status RunStatus, summary RunSummary, at time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("invalid run status: %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("run not found: %s", id)
	}
	run.Status = status
	run.Summary = summary
	run.FinishedAt = &at
	s.runs[id] = run
	return nil
}

// GetRun retrieves a run by ID. Returns nil if not found.
func (s *InMemoryRunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

// ListRuns returns runs newest first.
func (s *InMemoryRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []Run
	for _, run := range s.runs {
		if filter.Experiment != "" && run.Experiment != filter.Experiment {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID < runs[j].ID
	})
	if filter.Limit > 0 && len(runs) > filter.Limit {
		runs = runs[:filter.Limit]
	}
	return runs, nil
}

// DeleteRun removes a run with its steps and snapshots.
func (s *InMemoryRunStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[id]; !ok {
		return fmt.Errorf("run not found: %s", id)
	}
	delete(s.runs, id)
	delete(s.steps, id)
	delete(s.weights, id)
	return nil
}

// AppendSteps adds steps to a run. Duplicate times are rejected.
func (s *InMemoryRunStore) AppendSteps(ctx context.Context, runID string, steps []Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	series, ok := s.steps[runID]
	if !ok {
		return fmt.Errorf("run not found: %s", runID)
	}
	for _, st := range steps {
		if _, dup := series[st.Time]; dup {
			return fmt.Errorf("append step %d to run %s: duplicate time", st.Time, runID)
		}
	}
	for _, st := range steps {
		series[st.Time] = st
	}
	return nil
}

// GetSteps returns a run's steps within r, in time order.
func (s *InMemoryRunStore) GetSteps(ctx context.Context, runID string, r StepRange) ([]Step, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var steps []Step
	for t, st := range s.steps[runID] {
		if r.contains(t) {
			steps = append(steps, st)
		}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Time < steps[j].Time })
	return steps, nil
}

// SaveWeights stores a deep copy of the snapshot, replacing any at the same time.
func (s *InMemoryRunStore) SaveWeights(ctx context.Context, snap WeightSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byTime, ok := s.weights[snap.RunID]
	if !ok {
		return fmt.Errorf("run not found: %s", snap.RunID)
	}
	byTime[snap.Time] = copyMatrix(snap.Weights)
	return nil
}

// GetWeights returns all snapshots of a run in time order.
func (s *InMemoryRunStore) GetWeights(ctx context.Context, runID string) ([]WeightSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snaps []WeightSnapshot
	for t, w := range s.weights[runID] {
		snaps = append(snaps, WeightSnapshot{RunID: runID, Time: t, Weights: copyMatrix(w)})
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Time < snaps[j].Time })
	return snaps, nil
}

// Close is a no-op.
func (s *InMemoryRunStore) Close() error {
	return nil
}

func copyMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
