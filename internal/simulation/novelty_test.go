package simulation_test

import (
	"math"
	"testing"

	"github.com/nvandessel/nenv/internal/network"
	"github.com/nvandessel/nenv/internal/simulation"
)

// TestPatternSwitch drives the first half of the units for 50 steps and then
// switches to the second half.
//
// Before the switch the input is familiar, average novelty never exceeds
// the 0.5 threshold and the alert level stays at zero. At the switch every
// unit sees an input it has never remembered, average novelty jumps close to
// 1 and alert rises over the following steps before decaying once the new
// pattern becomes familiar.
func TestPatternSwitch(t *testing.T) {
	r := simulation.NewRunner(t)
	result := r.Run(simulation.Scenario{
		Name:     "pattern-switch",
		Steps:    100,
		Stimulus: simulation.Switch(simulation.Range(0, 50), simulation.Range(50, 100), 1.0, 50),
	})

	// Step 0 sits exactly on the threshold (half the inputs differ from an
	// empty memory by 1) and must not raise the alert.
	if nov := result.Steps[0].AvgNovelty; math.Abs(nov-0.5) > 1e-12 {
		t.Errorf("step 0: avg novelty %.4f, want 0.5", nov)
	}
	for i := 0; i < 50; i++ {
		if nov := result.Steps[i].AvgNovelty; nov > 0.5 {
			t.Errorf("step %d: avg novelty %.4f before the switch, want <= 0.5", i, nov)
		}
		if a := result.Steps[i].AlertLevel; a != 0 {
			t.Errorf("step %d: alert %.4f before the switch, want 0", i, a)
		}
	}
	if nov := result.Steps[50].AvgNovelty; nov < 0.9 {
		t.Errorf("avg novelty at the switch = %.4f, want > 0.9", nov)
	}

	simulation.AssertAlertRisesAfter(t, result, 50, 0, 0.4, 20)
	simulation.AssertAlertFollowsNovelty(t, result, 0.5, 0.3, 0.05)
	simulation.AssertAlertBounded(t, result)

	want := 0.3 * (result.Steps[50].AvgNovelty - 0.5)
	if got := result.Steps[50].AlertLevel; math.Abs(got-want) > 1e-12 {
		t.Errorf("alert at the switch = %.6f, want %.6f", got, want)
	}

	alerts := result.AlertSeries()
	if alerts[99] >= simulation.MaxOf(alerts[50:]) {
		t.Errorf("alert did not decay after its peak: final %.4f", alerts[99])
	}
}

// TestPatternSwitch_RaisesPriority checks that novel input lifts unit
// priority above neutral at the switch and that it relaxes afterwards.
func TestPatternSwitch_RaisesPriority(t *testing.T) {
	r := simulation.NewRunner(t)
	result := r.Run(simulation.Scenario{
		Name:     "pattern-switch-priority",
		Steps:    100,
		Stimulus: simulation.Switch(simulation.Range(0, 50), simulation.Range(50, 100), 1.0, 50),
	})

	at := simulation.MeanOf(result.Steps[50].Priority)
	before := simulation.MeanOf(result.Steps[49].Priority)
	after := simulation.MeanOf(result.Steps[99].Priority)
	if at <= before {
		t.Errorf("mean priority at switch %.4f not above before %.4f", at, before)
	}
	if after >= at {
		t.Errorf("mean priority %.4f did not relax from %.4f", after, at)
	}
	simulation.AssertPriorityBounded(t, result)
}

// TestNoveltyThresholdDisablesAlert raises the threshold beyond any possible
// novelty so the same switch never moves the alert level.
func TestNoveltyThresholdDisablesAlert(t *testing.T) {
	cfg := network.DefaultConfig()
	cfg.NoveltyAlertThreshold = 10

	r := simulation.NewRunner(t)
	result := r.Run(simulation.Scenario{
		Name:     "pattern-switch-no-alert",
		Config:   &cfg,
		Steps:    80,
		Stimulus: simulation.Switch(simulation.Range(0, 50), simulation.Range(50, 100), 1.0, 40),
	})
	for _, s := range result.Steps {
		if s.AlertLevel != 0 {
			t.Fatalf("step %d: alert %.4f with unreachable threshold", s.Step, s.AlertLevel)
		}
	}
}
