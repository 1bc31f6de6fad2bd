package simulation

import (
	"fmt"
	"math"
	"strings"

	"github.com/nvandessel/nenv/internal/network"
)

// Scenario defines a complete simulation experiment.
type Scenario struct {
	Name string

	// Config overrides network.DefaultConfig when non-nil.
	Config *network.Config

	// Steps is the number of updates to run.
	Steps int

	// Stimulus, when non-nil, returns the external input for step t.
	Stimulus func(t int) network.Stimulus

	// BeforeStep, when non-nil, is called before each update. Use this to
	// intervene on the network (e.g., forcing the alert level).
	BeforeStep func(t int, net *network.Network)
}

// StepResult captures the network after a single update.
type StepResult struct {
	network.StepState
}

// SimulationResult captures every step and the final network.
type SimulationResult struct {
	Steps   []StepResult
	Network *network.Network
	RunID   string
}

// Pulse returns a schedule that drives ids with amplitude for from <= t < to.
func Pulse(ids []int, amplitude float64, from, to int) func(t int) network.Stimulus {
	return func(t int) network.Stimulus {
		if t < from || t >= to {
			return nil
		}
		s := make(network.Stimulus, len(ids))
		for _, id := range ids {
			s[id] = amplitude
		}
		return s
	}
}

// Switch returns a schedule that drives a before switchAt and b afterwards.
func Switch(a, b []int, amplitude float64, switchAt int) func(t int) network.Stimulus {
	first := Pulse(a, amplitude, 0, switchAt)
	second := Pulse(b, amplitude, switchAt, math.MaxInt)
	return func(t int) network.Stimulus {
		if t < switchAt {
			return first(t)
		}
		return second(t)
	}
}

// Range returns the ids lo..hi-1.
func Range(lo, hi int) []int {
	ids := make([]int, 0, hi-lo)
	for id := lo; id < hi; id++ {
		ids = append(ids, id)
	}
	return ids
}

// FiringTimes returns the steps at which unit fired.
func (r SimulationResult) FiringTimes(unit int) []int {
	var times []int
	for _, s := range r.Steps {
		if s.Firing[unit] {
			times = append(times, s.Step)
		}
	}
	return times
}

// SpikeCount counts unit's spikes in [from, to).
func (r SimulationResult) SpikeCount(unit, from, to int) int {
	n := 0
	for _, ts := range r.FiringTimes(unit) {
		if ts >= from && ts < to {
			n++
		}
	}
	return n
}

// EnergySeries returns unit's energy at each step.
func (r SimulationResult) EnergySeries(unit int) []float64 {
	series := make([]float64, len(r.Steps))
	for i, s := range r.Steps {
		series[i] = s.Energy[unit]
	}
	return series
}

// AlertSeries returns the alert level at each step.
func (r SimulationResult) AlertSeries() []float64 {
	series := make([]float64, len(r.Steps))
	for i, s := range r.Steps {
		series[i] = s.AlertLevel
	}
	return series
}

// FormatStepDebug returns a debug string for a step result.
func FormatStepDebug(sr StepResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Step %d: firing=%d avg_energy=%.2f alert=%.4f novelty=%.4f\n",
		sr.Step, sr.NumFiring, sr.AvgEnergy, sr.AlertLevel, sr.AvgNovelty)
	for id, fired := range sr.Firing {
		if fired {
			fmt.Fprintf(&b, "  unit %d: energy=%.2f priority=%.3f modulated=%.3f\n", id, sr.Energy[id], sr.Priority[id], sr.Modulated[id])
		}
	}
	return b.String()
}
