package nenv

import "fmt"

// State is the serializable snapshot of a unit's mutable state.
type State struct {
	ID         int       `json:"id"`
	Type       string    `json:"type"`
	Weights    []float64 `json:"weights"`
	Plasticity []float64 `json:"plasticity"`
	Energy     float64   `json:"energy"`
	Priority   float64   `json:"priority"`
	Memory     []float64 `json:"memory"`
	LastFire   int       `json:"last_fire"`
	Firing     bool      `json:"firing"`
}

// State captures the unit's current state.
func (n *Neuron) State() State {
	return State{
		ID:         n.id,
		Type:       n.typ.String(),
		Weights:    n.dendritoma.Weights(),
		Plasticity: n.dendritoma.Plasticity(),
		Energy:     n.glia.energy,
		Priority:   n.glia.priority,
		Memory:     n.Memory(),
		LastFire:   n.lastFire,
		Firing:     n.firing,
	}
}

// FromState rebuilds a unit from a snapshot. Vector lengths must agree.
func FromState(s State, cfg Config) (*Neuron, error) {
	typ, err := ParseNeuronType(s.Type)
	if err != nil {
		return nil, fmt.Errorf("unit %d: %w", s.ID, err)
	}
	if len(s.Plasticity) != len(s.Weights) || len(s.Memory) != len(s.Weights) {
		return nil, fmt.Errorf("unit %d: vector lengths disagree (weights=%d plasticity=%d memory=%d)",
			s.ID, len(s.Weights), len(s.Plasticity), len(s.Memory))
	}

	n := New(s.ID, typ, s.Weights, cfg)
	n.dendritoma.SetPlasticity(s.Plasticity)
	n.glia.SetEnergy(s.Energy)
	n.glia.SetPriority(s.Priority)
	copy(n.memory, s.Memory)
	n.lastFire = s.LastFire
	n.firing = s.Firing
	if s.Firing {
		n.output = typ.Sign()
	}
	return n, nil
}
