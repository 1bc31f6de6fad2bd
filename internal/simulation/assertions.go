package simulation

import (
	"math"
	"testing"
)

const eps = 1e-9

// AssertEnergyBounded asserts that every unit's energy stays in [0, maxEnergy].
func AssertEnergyBounded(t *testing.T, result SimulationResult, maxEnergy float64) {
	t.Helper()
	for _, s := range result.Steps {
		for id, e := range s.Energy {
			if e < 0 || e > maxEnergy {
				t.Errorf("AssertEnergyBounded: step %d: unit %d energy %.4f not in [0, %.1f]", s.Step, id, e, maxEnergy)
				return
			}
		}
	}
}

// AssertPriorityBounded asserts that every unit's priority stays in [1, 3].
func AssertPriorityBounded(t *testing.T, result SimulationResult) {
	t.Helper()
	for _, s := range result.Steps {
		for id, p := range s.Priority {
			if p < 1-eps || p > 3+eps {
				t.Errorf("AssertPriorityBounded: step %d: unit %d priority %.4f not in [1, 3]", s.Step, id, p)
				return
			}
		}
	}
}

// AssertAlertBounded asserts that the alert level stays in [0, 1].
func AssertAlertBounded(t *testing.T, result SimulationResult) {
	t.Helper()
	for _, s := range result.Steps {
		if s.AlertLevel < 0 || s.AlertLevel > 1 {
			t.Errorf("AssertAlertBounded: step %d: alert %.4f not in [0, 1]", s.Step, s.AlertLevel)
			return
		}
	}
}

// AssertRefractory asserts that no unit fires twice within period steps.
func AssertRefractory(t *testing.T, result SimulationResult, period int) {
	t.Helper()
	if len(result.Steps) == 0 {
		return
	}
	n := len(result.Steps[0].Firing)
	for id := 0; id < n; id++ {
		times := result.FiringTimes(id)
		for i := 1; i < len(times); i++ {
			if times[i]-times[i-1] < period {
				t.Errorf("AssertRefractory: unit %d fired at %d and %d (period %d)", id, times[i-1], times[i], period)
				return
			}
		}
	}
}

// AssertFiringConsistent asserts that NumFiring matches the firing vector.
func AssertFiringConsistent(t *testing.T, result SimulationResult) {
	t.Helper()
	for _, s := range result.Steps {
		count := 0
		for _, f := range s.Firing {
			if f {
				count++
			}
		}
		if count != s.NumFiring {
			t.Errorf("AssertFiringConsistent: step %d: NumFiring %d, vector has %d", s.Step, s.NumFiring, count)
		}
	}
}

// AssertNoFiringIn asserts that unit never fires in [from, to).
func AssertNoFiringIn(t *testing.T, result SimulationResult, unit, from, to int) {
	t.Helper()
	if n := result.SpikeCount(unit, from, to); n > 0 {
		t.Errorf("AssertNoFiringIn: unit %d fired %d times in [%d, %d)", unit, n, from, to)
	}
}

// AssertFiringRateNonIncreasing asserts that unit's spike count does not grow
// across consecutive windows of the given width starting at from.
func AssertFiringRateNonIncreasing(t *testing.T, result SimulationResult, unit, from, to, width int) {
	t.Helper()
	prev := math.MaxInt
	for lo := from; lo+width <= to; lo += width {
		n := result.SpikeCount(unit, lo, lo+width)
		if n > prev {
			t.Errorf("AssertFiringRateNonIncreasing: unit %d: window [%d, %d) has %d spikes, previous had %d", unit, lo, lo+width, n, prev)
		}
		prev = n
	}
}

// AssertEnergyNonIncreasingAtSpikes asserts that unit's energy at successive
// spikes in [from, to) never rises: the stimulated unit runs down.
func AssertEnergyNonIncreasingAtSpikes(t *testing.T, result SimulationResult, unit, from, to int) {
	t.Helper()
	prev := math.Inf(1)
	for _, ts := range result.FiringTimes(unit) {
		if ts < from || ts >= to {
			continue
		}
		e := result.Steps[ts-result.Steps[0].Step].Energy[unit]
		if e > prev+eps {
			t.Errorf("AssertEnergyNonIncreasingAtSpikes: unit %d: energy %.4f at spike %d exceeds previous %.4f", unit, e, ts, prev)
		}
		prev = e
	}
}

// AssertEnergyRecovers asserts that unit's energy never drops in [from, to)
// and ends above where it started.
func AssertEnergyRecovers(t *testing.T, result SimulationResult, unit, from, to int) {
	t.Helper()
	series := result.EnergySeries(unit)
	base := result.Steps[0].Step
	for i := from - base + 1; i < to-base && i < len(series); i++ {
		if series[i] < series[i-1]-eps {
			t.Errorf("AssertEnergyRecovers: unit %d: energy fell from %.4f to %.4f at step %d", unit, series[i-1], series[i], i+base)
			return
		}
	}
	last := min(to-base, len(series)) - 1
	capacity := result.Network.Neuron(unit).Glia().MaxEnergy()
	if series[last] <= series[from-base] && series[from-base] < capacity {
		t.Errorf("AssertEnergyRecovers: unit %d: energy %.4f at %d did not rise from %.4f", unit, series[last], last+base, series[from-base])
	}
}

// AssertAlertRisesAfter asserts that the alert level is below quiet before
// step at and reaches at least peak within window steps after it.
func AssertAlertRisesAfter(t *testing.T, result SimulationResult, at int, quiet, peak float64, window int) {
	t.Helper()
	alerts := result.AlertSeries()
	for i := 0; i < at && i < len(alerts); i++ {
		if alerts[i] > quiet {
			t.Errorf("AssertAlertRisesAfter: alert %.4f at step %d exceeds %.4f before the trigger", alerts[i], i, quiet)
			return
		}
	}
	best := 0.0
	for i := at; i < at+window && i < len(alerts); i++ {
		best = max(best, alerts[i])
	}
	if best < peak {
		t.Errorf("AssertAlertRisesAfter: alert peaked at %.4f within %d steps of %d, want >= %.4f", best, window, at, peak)
	}
}

// AssertAlertDecaysGeometrically asserts alert[i] = alert[i-1] * (1 - rate)
// for every step in (from, to).
func AssertAlertDecaysGeometrically(t *testing.T, result SimulationResult, from, to int, rate float64) {
	t.Helper()
	alerts := result.AlertSeries()
	for i := from + 1; i < to && i < len(alerts); i++ {
		want := alerts[i-1] * (1 - rate)
		if math.Abs(alerts[i]-want) > 1e-9 {
			t.Errorf("AssertAlertDecaysGeometrically: step %d: alert %.6f, want %.6f", i, alerts[i], want)
			return
		}
	}
}

// AssertAlertFollowsNovelty asserts the alert update rule at every step
// where no intervention happened: above threshold the alert grows by
// sensitivity times the excess novelty (capped at 1), otherwise it decays.
func AssertAlertFollowsNovelty(t *testing.T, result SimulationResult, threshold, sensitivity, decay float64) {
	t.Helper()
	prev := 0.0
	for _, s := range result.Steps {
		want := prev * (1 - decay)
		if s.AvgNovelty > threshold {
			want = math.Min(1, prev+sensitivity*(s.AvgNovelty-threshold))
		}
		if math.Abs(s.AlertLevel-want) > 1e-9 {
			t.Errorf("AssertAlertFollowsNovelty: step %d: alert %.6f, want %.6f (novelty %.4f)", s.Step, s.AlertLevel, want, s.AvgNovelty)
			return
		}
		prev = s.AlertLevel
	}
}

// AssertSameTrajectory asserts two results are step-for-step identical.
func AssertSameTrajectory(t *testing.T, a, b SimulationResult) {
	t.Helper()
	if len(a.Steps) != len(b.Steps) {
		t.Fatalf("AssertSameTrajectory: %d steps vs %d", len(a.Steps), len(b.Steps))
	}
	for i := range a.Steps {
		sa, sb := a.Steps[i], b.Steps[i]
		if sa.NumFiring != sb.NumFiring || sa.AlertLevel != sb.AlertLevel || sa.AvgEnergy != sb.AvgEnergy || sa.AvgNovelty != sb.AvgNovelty {
			t.Fatalf("AssertSameTrajectory: diverged at step %d:\n%s\nvs\n%s", i, FormatStepDebug(sa), FormatStepDebug(sb))
		}
		for id := range sa.Energy {
			if sa.Energy[id] != sb.Energy[id] || sa.Firing[id] != sb.Firing[id] {
				t.Fatalf("AssertSameTrajectory: unit %d diverged at step %d", id, i)
			}
		}
	}
}
