package network

import (
	"fmt"
	"math"

	"github.com/nvandessel/nenv/internal/nenv"
)

// Snapshot is the complete serializable state of a network. Restoring a
// snapshot and continuing produces the same trajectory as never stopping.
type Snapshot struct {
	Config                Config       `json:"config"`
	TimeStep              int          `json:"time_step"`
	AlertLevel            float64      `json:"alert_level"`
	AvgNovelty            float64      `json:"avg_novelty"`
	NoveltyAlertThreshold float64      `json:"novelty_alert_threshold"`
	AlertSensitivity      float64      `json:"alert_sensitivity"`
	Neurons               []nenv.State `json:"neurons"`
}

// Export captures the network's state. Returned slices are copies.
func (net *Network) Export() Snapshot {
	states := make([]nenv.State, len(net.neurons))
	for i, u := range net.neurons {
		states[i] = u.State()
	}
	return Snapshot{
		Config:                net.cfg,
		TimeStep:              net.timeStep,
		AlertLevel:            net.alertLevel,
		AvgNovelty:            net.avgNovelty,
		NoveltyAlertThreshold: net.noveltyAlertThreshold,
		AlertSensitivity:      net.alertSensitivity,
		Neurons:               states,
	}
}

// Restore rebuilds a network from a snapshot.
func Restore(s Snapshot) (*Network, error) {
	net, err := New(s.Config)
	if err != nil {
		return nil, err
	}
	n := net.NumNeurons()
	if len(s.Neurons) != n {
		return nil, fmt.Errorf("snapshot has %d units, config expects %d", len(s.Neurons), n)
	}
	if s.TimeStep < 0 {
		return nil, fmt.Errorf("snapshot time step must be non-negative, got %d", s.TimeStep)
	}
	if math.IsNaN(s.AlertLevel) {
		return nil, fmt.Errorf("snapshot alert level is NaN")
	}
	if !(s.AvgNovelty >= 0) || math.IsInf(s.AvgNovelty, 0) {
		return nil, fmt.Errorf("snapshot avg novelty must be a non-negative number, got %f", s.AvgNovelty)
	}

	numInhibitory := s.Config.NumInhibitory()
	for i, st := range s.Neurons {
		if st.ID != i {
			return nil, fmt.Errorf("snapshot unit at position %d has id %d", i, st.ID)
		}
		if len(st.Weights) != n {
			return nil, fmt.Errorf("unit %d: fan-in %d, expected %d", i, len(st.Weights), n)
		}
		u, err := nenv.FromState(st, s.Config.Neuron)
		if err != nil {
			return nil, fmt.Errorf("restoring snapshot: %w", err)
		}
		if (u.Type() == nenv.Inhibitory) != (i < numInhibitory) {
			return nil, fmt.Errorf("unit %d: type %s does not match inhibitory ratio", i, u.Type())
		}
		net.neurons[i] = u
	}

	net.timeStep = s.TimeStep
	net.SetAlertLevel(s.AlertLevel)
	net.avgNovelty = s.AvgNovelty
	net.SetNoveltyAlertParams(s.NoveltyAlertThreshold, s.AlertSensitivity)
	return net, nil
}
