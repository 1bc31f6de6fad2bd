package network

import (
	"fmt"
	"strings"
)

// Stimulus maps a unit id to the external drive it receives this step.
// Ids that are absent receive 0.
type Stimulus map[int]float64

// StimulusMode selects how the external stimulus enters each unit's input vector.
type StimulusMode int

const (
	// StimulusBroadcast presents the whole stimulus field to every unit:
	// entry j of each unit's input vector receives stimulus[j].
	StimulusBroadcast StimulusMode = iota
	// StimulusLocal delivers stimulus[i] only to unit i, at its own index.
	StimulusLocal
)

// String implements fmt.Stringer.
func (m StimulusMode) String() string {
	switch m {
	case StimulusBroadcast:
		return "broadcast"
	case StimulusLocal:
		return "local"
	default:
		return fmt.Sprintf("StimulusMode(%d)", int(m))
	}
}

// ParseStimulusMode maps "broadcast" or "local" to a StimulusMode.
func ParseStimulusMode(s string) (StimulusMode, error) {
	switch strings.ToLower(s) {
	case "broadcast":
		return StimulusBroadcast, nil
	case "local":
		return StimulusLocal, nil
	}
	return 0, fmt.Errorf("unknown stimulus mode %q (valid: broadcast, local)", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m StimulusMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *StimulusMode) UnmarshalText(b []byte) error {
	v, err := ParseStimulusMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// dense converts a stimulus into a length-n vector, rejecting unknown ids.
func (s Stimulus) dense(n int) ([]float64, error) {
	v := make([]float64, n)
	for id, x := range s {
		if id < 0 || id >= n {
			return nil, fmt.Errorf("stimulus for unknown neuron %d (network has %d)", id, n)
		}
		v[id] = x
	}
	return v, nil
}
