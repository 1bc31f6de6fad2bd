package store

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/nenv/internal/network"
)

// forEachStore runs fn against every RunStore implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, s RunStore)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		fn(t, NewInMemoryRunStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSQLiteRunStore(filepath.Join(t.TempDir(), "runs.db"))
		if err != nil {
			t.Fatalf("NewSQLiteRunStore() error = %v", err)
		}
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
}

func newRun(id, experiment string, started time.Time) Run {
	return Run{
		ID:         id,
		Experiment: experiment,
		Config:     network.DefaultConfig(),
		Target:     55,
		Steps:      200,
		Status:     StatusRunning,
		StartedAt:  started,
	}
}

func mustCreate(t *testing.T, s RunStore, run Run) {
	t.Helper()
	if err := s.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("CreateRun(%s): %v", run.ID, err)
	}
}

func TestRunStore_CreateGetFinish(t *testing.T) {
	forEachStore(t, func(t *testing.T, s RunStore) {
		ctx := context.Background()
		started := time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC)
		run := newRun(NewRunID(), "habituation", started)
		run.Config.Seed = 9
		run.Config.Connectivity = network.FullyConnected
		mustCreate(t, s, run)

		got, err := s.GetRun(ctx, run.ID)
		if err != nil {
			t.Fatalf("GetRun() error = %v", err)
		}
		if got == nil {
			t.Fatal("GetRun() returned nil")
		}
		if got.Status != StatusRunning || got.FinishedAt != nil {
			t.Errorf("new run status = %s, finished = %v", got.Status, got.FinishedAt)
		}
		if !got.StartedAt.Equal(started) {
			t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
		}
		if got.Config != run.Config {
			t.Errorf("Config = %+v, want %+v", got.Config, run.Config)
		}

		summary := RunSummary{StepsCompleted: 200, TargetSpikes: 18, TotalSpikes: 540, PeakAlert: 0.2, FinalAlert: 0.1, FinalAvgEnergy: 97.5}
		finished := started.Add(2 * time.Second)
		if err := s.FinishRun(ctx, run.ID, StatusCompleted, summary, finished); err != nil {
			t.Fatalf("FinishRun() error = %v", err)
		}

		got, _ = s.GetRun(ctx, run.ID)
		if got.Status != StatusCompleted {
			t.Errorf("Status = %s, want completed", got.Status)
		}
		if got.Summary != summary {
			t.Errorf("Summary = %+v, want %+v", got.Summary, summary)
		}
		if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) {
			t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, finished)
		}
	})
}

func TestRunStore_Errors(t *testing.T) {
	forEachStore(t, func(t *testing.T, s RunStore) {
		ctx := context.Background()

		if got, err := s.GetRun(ctx, "missing"); err != nil || got != nil {
			t.Errorf("GetRun(missing) = %v, %v; want nil, nil", got, err)
		}
		if err := s.CreateRun(ctx, Run{Status: StatusRunning}); err == nil {
			t.Error("CreateRun without ID should fail")
		}
		if err := s.CreateRun(ctx, Run{ID: "x", Status: "paused"}); err == nil {
			t.Error("CreateRun with invalid status should fail")
		}

		run := newRun("dup", "novelty", time.Now())
		mustCreate(t, s, run)
		if err := s.CreateRun(ctx, run); err == nil {
			t.Error("duplicate CreateRun should fail")
		}
		if err := s.FinishRun(ctx, "missing", StatusCompleted, RunSummary{}, time.Now()); err == nil {
			t.Error("FinishRun on missing run should fail")
		}
		if err := s.DeleteRun(ctx, "missing"); err == nil {
			t.Error("DeleteRun on missing run should fail")
		}
		if err := s.AppendSteps(ctx, "missing", []Step{{Time: 0}}); err == nil {
			t.Error("AppendSteps on missing run should fail")
		}
		if err := s.SaveWeights(ctx, WeightSnapshot{RunID: "missing", Weights: [][]float64{{1}}}); err == nil {
			t.Error("SaveWeights on missing run should fail")
		}

		if err := s.AppendSteps(ctx, "dup", []Step{{Time: 3}}); err != nil {
			t.Fatal(err)
		}
		if err := s.AppendSteps(ctx, "dup", []Step{{Time: 3}}); err == nil {
			t.Error("duplicate step time should fail")
		}
	})
}

func TestRunStore_ListRuns(t *testing.T) {
	forEachStore(t, func(t *testing.T, s RunStore) {
		ctx := context.Background()
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		mustCreate(t, s, newRun("a", "habituation", base))
		mustCreate(t, s, newRun("b", "novelty", base.Add(time.Minute)))
		mustCreate(t, s, newRun("c", "habituation", base.Add(2*time.Minute)))
		if err := s.FinishRun(ctx, "a", StatusCompleted, RunSummary{}, base); err != nil {
			t.Fatal(err)
		}

		tests := []struct {
			name   string
			filter RunFilter
			want   []string
		}{
			{"all newest first", RunFilter{}, []string{"c", "b", "a"}},
			{"by experiment", RunFilter{Experiment: "habituation"}, []string{"c", "a"}},
			{"by status", RunFilter{Status: StatusCompleted}, []string{"a"}},
			{"limit", RunFilter{Limit: 2}, []string{"c", "b"}},
			{"no match", RunFilter{Experiment: "urgent"}, nil},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				runs, err := s.ListRuns(ctx, tt.filter)
				if err != nil {
					t.Fatalf("ListRuns() error = %v", err)
				}
				var ids []string
				for _, r := range runs {
					ids = append(ids, r.ID)
				}
				if strings.Join(ids, ",") != strings.Join(tt.want, ",") {
					t.Errorf("ListRuns() = %v, want %v", ids, tt.want)
				}
			})
		}
	})
}

func TestRunStore_Steps(t *testing.T) {
	forEachStore(t, func(t *testing.T, s RunStore) {
		ctx := context.Background()
		mustCreate(t, s, newRun("r", "habituation", time.Now()))

		var steps []Step
		for i := 0; i < 10; i++ {
			steps = append(steps, Step{
				Time:           i,
				TargetFiring:   i%5 == 1,
				TargetEnergy:   100 - float64(i),
				TargetPriority: 1 + float64(i)/10,
				TotalFiring:    i * 3,
				AvgEnergy:      99.5,
				AlertLevel:     0.01 * float64(i),
				AvgNovelty:     0.2,
			})
		}
		// Two batches, second out of order.
		if err := s.AppendSteps(ctx, "r", steps[5:]); err != nil {
			t.Fatalf("AppendSteps() error = %v", err)
		}
		if err := s.AppendSteps(ctx, "r", steps[:5]); err != nil {
			t.Fatalf("AppendSteps() error = %v", err)
		}
		if err := s.AppendSteps(ctx, "r", nil); err != nil {
			t.Errorf("empty AppendSteps() error = %v", err)
		}

		all, err := s.GetSteps(ctx, "r", AllSteps)
		if err != nil {
			t.Fatalf("GetSteps() error = %v", err)
		}
		if len(all) != 10 {
			t.Fatalf("GetSteps() returned %d steps, want 10", len(all))
		}
		for i, st := range all {
			if st != steps[i] {
				t.Errorf("step %d = %+v, want %+v", i, st, steps[i])
			}
		}

		window, err := s.GetSteps(ctx, "r", StepRange{From: 3, To: 6})
		if err != nil {
			t.Fatal(err)
		}
		if len(window) != 3 || window[0].Time != 3 || window[2].Time != 5 {
			t.Errorf("GetSteps(3, 6) = %+v", window)
		}

		tail, _ := s.GetSteps(ctx, "r", StepRange{From: 8, To: -1})
		if len(tail) != 2 {
			t.Errorf("GetSteps(8, open) returned %d steps, want 2", len(tail))
		}
	})
}

func TestRunStore_WeightsAndDelete(t *testing.T) {
	forEachStore(t, func(t *testing.T, s RunStore) {
		ctx := context.Background()
		mustCreate(t, s, newRun("w", "habituation", time.Now()))

		w := [][]float64{{0.1, 0.2}, {0.3, 0.4}}
		for _, ts := range []int{100, 0} {
			if err := s.SaveWeights(ctx, WeightSnapshot{RunID: "w", Time: ts, Weights: w}); err != nil {
				t.Fatalf("SaveWeights(%d) error = %v", ts, err)
			}
		}
		w[0][0] = 9 // the store must hold its own copy

		snaps, err := s.GetWeights(ctx, "w")
		if err != nil {
			t.Fatalf("GetWeights() error = %v", err)
		}
		if len(snaps) != 2 || snaps[0].Time != 0 || snaps[1].Time != 100 {
			t.Fatalf("GetWeights() = %+v", snaps)
		}
		if snaps[0].Weights[0][0] != 0.1 || snaps[1].Weights[1][1] != 0.4 {
			t.Errorf("weights = %v", snaps[0].Weights)
		}

		if err := s.AppendSteps(ctx, "w", []Step{{Time: 0}}); err != nil {
			t.Fatal(err)
		}
		if err := s.DeleteRun(ctx, "w"); err != nil {
			t.Fatalf("DeleteRun() error = %v", err)
		}
		if got, _ := s.GetRun(ctx, "w"); got != nil {
			t.Error("run still present after delete")
		}
		if steps, _ := s.GetSteps(ctx, "w", AllSteps); len(steps) != 0 {
			t.Errorf("%d steps survived delete", len(steps))
		}
		if snaps, _ := s.GetWeights(ctx, "w"); len(snaps) != 0 {
			t.Errorf("%d snapshots survived delete", len(snaps))
		}
	})
}

func TestStepsJSONL_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := NewInMemoryRunStore()
	mustCreate(t, src, newRun("src", "habituation", time.Now()))
	want := []Step{
		{Time: 0, TotalFiring: 100, AvgEnergy: 91.9},
		{Time: 1, TargetFiring: true, TargetEnergy: 83.8, AlertLevel: 0.148},
	}
	if err := src.AppendSteps(ctx, "src", want); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	n, err := ExportStepsJSONL(ctx, src, "src", &buf)
	if err != nil || n != 2 {
		t.Fatalf("ExportStepsJSONL() = %d, %v", n, err)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 2 {
		t.Errorf("exported %d lines, want 2", lines)
	}

	dst := NewInMemoryRunStore()
	mustCreate(t, dst, newRun("dst", "habituation", time.Now()))
	n, err = ImportStepsJSONL(ctx, dst, "dst", strings.NewReader(buf.String()+"\n"))
	if err != nil || n != 2 {
		t.Fatalf("ImportStepsJSONL() = %d, %v", n, err)
	}
	got, _ := dst.GetSteps(ctx, "dst", AllSteps)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	if _, err := ImportStepsJSONL(ctx, dst, "dst", strings.NewReader("{not json}\n")); err == nil {
		t.Error("expected parse error")
	}
}

func TestSQLiteRunStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sub", "runs.db")

	s, err := NewSQLiteRunStore(path)
	if err != nil {
		t.Fatal(err)
	}
	mustCreate(t, s, newRun("persist", "urgent", time.Now()))
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = NewSQLiteRunStore(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()
	if got, _ := s.GetRun(ctx, "persist"); got == nil {
		t.Error("run lost across reopen")
	}
	if err := ValidateIntegrity(ctx, s.db); err != nil {
		t.Errorf("ValidateIntegrity() = %v", err)
	}
	if err := ResetSchema(ctx, s.db); err != nil {
		t.Fatalf("ResetSchema() = %v", err)
	}
	if runs, _ := s.ListRuns(ctx, RunFilter{}); len(runs) != 0 {
		t.Errorf("ListRuns after reset = %d runs", len(runs))
	}
}

func TestStepRange_Contains(t *testing.T) {
	tests := []struct {
		r    StepRange
		t    int
		want bool
	}{
		{AllSteps, 0, true},
		{AllSteps, 1 << 20, true},
		{StepRange{From: 5, To: 10}, 4, false},
		{StepRange{From: 5, To: 10}, 5, true},
		{StepRange{From: 5, To: 10}, 10, false},
	}
	for _, tt := range tests {
		if got := tt.r.contains(tt.t); got != tt.want {
			t.Errorf("%+v.contains(%d) = %v, want %v", tt.r, tt.t, got, tt.want)
		}
	}
}
