package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nvandessel/nenv/internal/logging"
	"github.com/nvandessel/nenv/internal/network"
	"github.com/nvandessel/nenv/internal/store"
)

// Summary aggregates a run.
type Summary struct {
	RunID          string          `json:"run_id"`
	Experiment     string          `json:"experiment"`
	Params         Params          `json:"params"`
	Status         store.RunStatus `json:"status"`
	StepsCompleted int             `json:"steps_completed"`

	TargetSpikes     int     `json:"target_spikes"`
	TargetSpikeTimes []int   `json:"target_spike_times,omitempty"`
	TotalSpikes      int     `json:"total_spikes"`
	PeakAlert        float64 `json:"peak_alert"`
	FinalAlert       float64 `json:"final_alert"`
	FinalAvgEnergy   float64 `json:"final_avg_energy"`

	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`

	// Network is the network in its final state.
	Network *network.Network `json:"-"`
}

// RunSummary converts to the persisted form.
func (s *Summary) RunSummary() store.RunSummary {
	return store.RunSummary{
		StepsCompleted: s.StepsCompleted,
		TargetSpikes:   s.TargetSpikes,
		TotalSpikes:    s.TotalSpikes,
		PeakAlert:      s.PeakAlert,
		FinalAlert:     s.FinalAlert,
		FinalAvgEnergy: s.FinalAvgEnergy,
	}
}

// Runner executes experiments.
type Runner struct {
	// Logger receives operational messages. Nil discards them.
	Logger *slog.Logger

	// Recorders receive every run's output.
	Recorders []Recorder

	// Now returns the current time. Nil uses time.Now.
	Now func() time.Time

	// OnStep, if set, sees the network after every recorded step.
	OnStep func(t int, net *network.Network)
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// Run builds a network from cfg and drives it through exp with params p.
// Cancellation is checked between steps; a cancelled run still reaches every
// recorder's End with status cancelled, and the context error is returned
// together with the partial summary.
func (r *Runner) Run(ctx context.Context, exp Experiment, p Params, cfg network.Config) (*Summary, error) {
	net, err := network.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(net.NumNeurons()); err != nil {
		return nil, fmt.Errorf("experiment %s: %w", exp.Name, err)
	}
	return r.drive(ctx, exp, p, net)
}

// Continue drives an existing network, for example one restored from a
// checkpoint. Step times continue from the network's clock.
func (r *Runner) Continue(ctx context.Context, exp Experiment, p Params, net *network.Network) (*Summary, error) {
	if err := p.Validate(net.NumNeurons()); err != nil {
		return nil, fmt.Errorf("experiment %s: %w", exp.Name, err)
	}
	return r.drive(ctx, exp, p, net)
}

func (r *Runner) drive(ctx context.Context, exp Experiment, p Params, net *network.Network) (*Summary, error) {
	log := r.logger().With("experiment", exp.Name)
	rec := Multi(r.Recorders...)

	summary := &Summary{
		RunID:      store.NewRunID(),
		Experiment: exp.Name,
		Params:     p,
		StartedAt:  r.now(),
		Network:    net,
	}
	info := RunInfo{
		ID:         summary.RunID,
		Experiment: exp.Name,
		Params:     p,
		Config:     net.Config(),
		StartedAt:  summary.StartedAt,
	}
	var runErr error
	if err := rec.Begin(ctx, info); err != nil {
		runErr = fmt.Errorf("begin run: %w", err)
	} else {
		log.Info("run started", "run_id", summary.RunID, "steps", p.Steps, "neurons", net.NumNeurons())
	}

	n := net.NumNeurons()
	start := net.TimeStep()
	lastSnapshot := -1
	for i := 0; runErr == nil && i < p.Steps; i++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		t := start + i
		if exp.Intervene != nil {
			exp.Intervene(net, p, i)
		}
		if err := net.Update(exp.Stimulus(p, n, i)); err != nil {
			runErr = fmt.Errorf("step %d: %w", t, err)
			break
		}

		step := observe(net, p.Target, t)
		summary.accumulate(step)
		if err := rec.RecordStep(ctx, step); err != nil {
			runErr = fmt.Errorf("record step %d: %w", t, err)
			break
		}
		if r.OnStep != nil {
			r.OnStep(t, net)
		}

		if p.SnapshotInterval > 0 && i%p.SnapshotInterval == 0 {
			if err := rec.RecordWeights(ctx, t, net.Weights()); err != nil {
				runErr = fmt.Errorf("record weights at %d: %w", t, err)
				break
			}
			lastSnapshot = t
		}

		if log.Enabled(ctx, logging.LevelTrace) {
			log.Log(ctx, logging.LevelTrace, "step", "t", t, "firing", step.TotalFiring,
				"alert", step.AlertLevel, "novelty", step.AvgNovelty)
		} else if i%25 == 0 {
			log.Debug("progress", "t", t, "firing", step.TotalFiring, "alert", step.AlertLevel)
		}
	}

	// Close the weight series with the final state.
	endCtx := context.WithoutCancel(ctx)
	if runErr == nil && p.SnapshotInterval > 0 && summary.StepsCompleted > 0 && lastSnapshot != net.TimeStep()-1 {
		if err := rec.RecordWeights(endCtx, net.TimeStep()-1, net.Weights()); err != nil {
			runErr = fmt.Errorf("record final weights: %w", err)
		}
	}

	switch {
	case runErr == nil:
		summary.Status = store.StatusCompleted
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		summary.Status = store.StatusCancelled
	default:
		summary.Status = store.StatusFailed
	}
	summary.FinishedAt = r.now()
	summary.Duration = summary.FinishedAt.Sub(summary.StartedAt)

	if err := rec.End(endCtx, summary); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("end run: %w", err))
	}

	log.Info("run finished", "run_id", summary.RunID, "status", summary.Status,
		"steps", summary.StepsCompleted, "target_spikes", summary.TargetSpikes,
		"peak_alert", summary.PeakAlert, "duration", summary.Duration)

	return summary, runErr
}

func (s *Summary) accumulate(step StepRecord) {
	s.StepsCompleted++
	s.TotalSpikes += step.TotalFiring
	if step.TargetFiring {
		s.TargetSpikes++
		s.TargetSpikeTimes = append(s.TargetSpikeTimes, step.Time)
	}
	if step.AlertLevel > s.PeakAlert {
		s.PeakAlert = step.AlertLevel
	}
	s.FinalAlert = step.AlertLevel
	s.FinalAvgEnergy = step.AvgEnergy
}

// observe samples the network after the update at step t.
func observe(net *network.Network, target, t int) StepRecord {
	rec := StepRecord{
		Time:        t,
		TotalFiring: net.NumFiring(),
		AvgEnergy:   net.AverageEnergy(),
		AlertLevel:  net.AlertLevel(),
		AvgNovelty:  net.AverageNovelty(),
	}
	if u := net.Neuron(target); u != nil {
		rec.TargetFiring = u.IsFiring()
		rec.TargetEnergy = u.Glia().Energy()
		rec.TargetPriority = u.Glia().Priority()
	}
	return rec
}
