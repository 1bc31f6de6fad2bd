// Package experiment defines reproducible stimulus protocols and drives a
// network through them, fanning per-step records out to recorders.
package experiment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nvandessel/nenv/internal/constants"
	"github.com/nvandessel/nenv/internal/network"
)

// NoTarget marks an experiment without a single tracked unit.
const NoTarget = -1

// Params are the tunable knobs of an experiment run.
type Params struct {
	// Steps is the number of network updates.
	Steps int `json:"steps"`

	// Target is the tracked (and usually stimulated) unit, or NoTarget.
	Target int `json:"target"`

	// Secondary is a second stimulated unit for two-pattern protocols, or NoTarget.
	Secondary int `json:"secondary"`

	// Amplitude is the external drive applied to stimulated units.
	Amplitude float64 `json:"amplitude"`

	// SnapshotInterval captures the weight matrix every N steps. 0 disables.
	SnapshotInterval int `json:"snapshot_interval"`
}

// Override replaces fields with positive overrides. A negative target keeps
// the experiment's own target.
func (p Params) Override(steps, target int, amplitude float64, snapshotInterval int) Params {
	if steps > 0 {
		p.Steps = steps
	}
	if target >= 0 {
		p.Target = target
	}
	if amplitude > 0 {
		p.Amplitude = amplitude
	}
	if snapshotInterval > 0 {
		p.SnapshotInterval = snapshotInterval
	}
	return p
}

// Scale maps the stimulated unit ids from a network of from units onto one
// of to units, keeping their relative position. NoTarget is preserved.
func (p Params) Scale(from, to int) Params {
	if from <= 0 || from == to {
		return p
	}
	scale := func(id int) int {
		if id < 0 {
			return id
		}
		return min(id*to/from, to-1)
	}
	p.Target = scale(p.Target)
	p.Secondary = scale(p.Secondary)
	return p
}

// Validate checks p against a network of n units.
func (p Params) Validate(n int) error {
	if p.Steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", p.Steps)
	}
	if p.Target < NoTarget || p.Target >= n {
		return fmt.Errorf("target must be a unit id below %d, got %d", n, p.Target)
	}
	if p.Secondary < NoTarget || p.Secondary >= n {
		return fmt.Errorf("secondary must be a unit id below %d, got %d", n, p.Secondary)
	}
	if p.Amplitude < 0 {
		return fmt.Errorf("amplitude must be non-negative, got %f", p.Amplitude)
	}
	if p.SnapshotInterval < 0 {
		return fmt.Errorf("snapshot_interval must be non-negative, got %d", p.SnapshotInterval)
	}
	return nil
}

// Experiment is a named stimulus protocol.
type Experiment struct {
	Name        string
	Description string

	// Defaults are the protocol's own parameters.
	Defaults Params

	// Stimulus returns the external input for step t of a network of n units.
	Stimulus func(p Params, n, t int) network.Stimulus

	// Intervene, if set, runs before the update at step t.
	Intervene func(net *network.Network, p Params, t int)
}

const (
	habituationOnset  = 10
	habituationOffset = 100

	noveltyFamiliarization = 100
	noveltyCycle           = 10

	urgentEventTime    = 50
	urgentStimulusStop = 60
)

var registry = map[string]Experiment{
	"habituation": {
		Name:        "habituation",
		Description: "Constant drive to one unit for 10 < t < 100, then silence; firing rate and energy decline, then energy recovers.",
		Defaults: Params{
			Steps:            200,
			Target:           55,
			Secondary:        NoTarget,
			Amplitude:        constants.DefaultStimulusAmplitude,
			SnapshotInterval: constants.DefaultSnapshotInterval,
		},
		Stimulus: func(p Params, n, t int) network.Stimulus {
			if t > habituationOnset && t < habituationOffset {
				return single(p.Target, p.Amplitude)
			}
			return nil
		},
	},
	"novelty": {
		Name:        "novelty",
		Description: "Pattern A for t < 100, then A and a novel pattern B alternate every 10 steps.",
		Defaults: Params{
			Steps:            200,
			Target:           33,
			Secondary:        66,
			Amplitude:        constants.DefaultStimulusAmplitude,
			SnapshotInterval: constants.DefaultSnapshotInterval,
		},
		Stimulus: func(p Params, n, t int) network.Stimulus {
			if t < noveltyFamiliarization || ((t-noveltyFamiliarization)/noveltyCycle)%2 == 0 {
				return single(p.Target, p.Amplitude)
			}
			return single(p.Secondary, p.Amplitude)
		},
	},
	"urgent": {
		Name:        "urgent",
		Description: "Drive one unit for t < 60; alert is forced to 1.0 at t = 50 and recovery accelerates.",
		Defaults: Params{
			Steps:            150,
			Target:           55,
			Secondary:        NoTarget,
			Amplitude:        constants.DefaultStimulusAmplitude,
			SnapshotInterval: constants.DefaultSnapshotInterval,
		},
		Stimulus: func(p Params, n, t int) network.Stimulus {
			if t < urgentStimulusStop {
				return single(p.Target, p.Amplitude)
			}
			return nil
		},
		Intervene: func(net *network.Network, p Params, t int) {
			if t == urgentEventTime {
				net.SetAlertLevel(1.0)
			}
		},
	},
	"pattern-switch": {
		Name:        "pattern-switch",
		Description: "Drive the first half of the units, then switch to the second half; average novelty spikes and raises alert.",
		Defaults: Params{
			Steps:            100,
			Target:           NoTarget,
			Secondary:        NoTarget,
			Amplitude:        1.0,
			SnapshotInterval: constants.DefaultSnapshotInterval,
		},
		Stimulus: func(p Params, n, t int) network.Stimulus {
			lo, hi := 0, n/2
			if t >= p.Steps/2 {
				lo, hi = n/2, n
			}
			s := make(network.Stimulus, hi-lo)
			for id := lo; id < hi; id++ {
				s[id] = p.Amplitude
			}
			return s
		},
	},
}

func single(id int, amplitude float64) network.Stimulus {
	if id < 0 {
		return nil
	}
	return network.Stimulus{id: amplitude}
}

// Lookup returns the named experiment.
func Lookup(name string) (Experiment, error) {
	exp, ok := registry[strings.ToLower(name)]
	if !ok {
		return Experiment{}, fmt.Errorf("unknown experiment %q (valid: %s)", name, strings.Join(Names(), ", "))
	}
	return exp, nil
}

// Names returns the registered experiment names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every registered experiment sorted by name.
func All() []Experiment {
	var all []Experiment
	for _, name := range Names() {
		all = append(all, registry[name])
	}
	return all
}
