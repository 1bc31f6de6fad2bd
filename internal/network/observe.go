package network

import (
	"github.com/nvandessel/nenv/internal/nenv"
	"github.com/nvandessel/nenv/internal/vecmath"
)

// StepState is a read-only view of the network after a completed update.
type StepState struct {
	// Step is the index of the last completed update, or -1 before any update.
	Step       int       `json:"step"`
	Firing     []bool    `json:"firing"`
	Energy     []float64 `json:"energy"`
	Priority   []float64 `json:"priority"`
	Modulated  []float64 `json:"modulated_potential"`
	NumFiring  int       `json:"num_firing"`
	AvgEnergy  float64   `json:"avg_energy"`
	AlertLevel float64   `json:"alert_level"`
	AvgNovelty float64   `json:"avg_novelty"`
}

// Observe captures the current observable state.
func (net *Network) Observe() StepState {
	return StepState{
		Step:       net.timeStep - 1,
		Firing:     net.FiringStates(),
		Energy:     net.EnergyLevels(),
		Priority:   net.Priorities(),
		Modulated:  net.ModulatedPotentials(),
		NumFiring:  net.NumFiring(),
		AvgEnergy:  net.AverageEnergy(),
		AlertLevel: net.alertLevel,
		AvgNovelty: net.avgNovelty,
	}
}

// Config returns the construction configuration.
func (net *Network) Config() Config { return net.cfg }

// NumNeurons returns N.
func (net *Network) NumNeurons() int { return len(net.neurons) }

// TimeStep returns the number of completed updates.
func (net *Network) TimeStep() int { return net.timeStep }

// AlertLevel returns the global alert level in [0, 1].
func (net *Network) AlertLevel() float64 { return net.alertLevel }

// AverageNovelty returns the mean unit novelty of the last update.
func (net *Network) AverageNovelty() float64 { return net.avgNovelty }

// GridWidth returns the grid side for Grid2D networks and 0 otherwise.
func (net *Network) GridWidth() int { return net.gridWidth }

// Neuron returns the unit with the given id, or nil if out of range.
func (net *Network) Neuron(id int) *nenv.Neuron {
	if id < 0 || id >= len(net.neurons) {
		return nil
	}
	return net.neurons[id]
}

// NumFiring counts units that fired on the last update.
func (net *Network) NumFiring() int {
	count := 0
	for _, u := range net.neurons {
		if u.IsFiring() {
			count++
		}
	}
	return count
}

// AverageEnergy returns the mean energy across units.
func (net *Network) AverageEnergy() float64 {
	return vecmath.Mean(net.EnergyLevels())
}

// FiringStates returns each unit's firing flag.
func (net *Network) FiringStates() []bool {
	out := make([]bool, len(net.neurons))
	for i, u := range net.neurons {
		out[i] = u.IsFiring()
	}
	return out
}

// EnergyLevels returns each unit's energy.
func (net *Network) EnergyLevels() []float64 {
	out := make([]float64, len(net.neurons))
	for i, u := range net.neurons {
		out[i] = u.Glia().Energy()
	}
	return out
}

// Priorities returns each unit's priority.
func (net *Network) Priorities() []float64 {
	out := make([]float64, len(net.neurons))
	for i, u := range net.neurons {
		out[i] = u.Glia().Priority()
	}
	return out
}

// ModulatedPotentials returns each unit's modulated potential from the last update.
func (net *Network) ModulatedPotentials() []float64 {
	return append([]float64(nil), net.modulated...)
}

// Connected reports whether unit j feeds unit i.
func (net *Network) Connected(i, j int) bool {
	n := len(net.neurons)
	if i < 0 || i >= n || j < 0 || j >= n {
		return false
	}
	return net.conn[i][j]
}

// Connections returns the ids feeding unit i in ascending order.
func (net *Network) Connections(i int) []int {
	if i < 0 || i >= len(net.neurons) {
		return nil
	}
	var ids []int
	for j, ok := range net.conn[i] {
		if ok {
			ids = append(ids, j)
		}
	}
	return ids
}

// Weights returns a copy of every unit's weight vector, indexed [unit][input].
func (net *Network) Weights() [][]float64 {
	out := make([][]float64, len(net.neurons))
	for i, u := range net.neurons {
		out[i] = u.Dendritoma().Weights()
	}
	return out
}

// IndexToCoords maps a unit id to its (row, col) on the grid.
// ok is false for non-grid networks and out-of-range ids.
func (net *Network) IndexToCoords(id int) (row, col int, ok bool) {
	if net.gridWidth == 0 || id < 0 || id >= len(net.neurons) {
		return 0, 0, false
	}
	return id / net.gridWidth, id % net.gridWidth, true
}

// CoordsToIndex maps (row, col) to a unit id.
// ok is false for non-grid networks and cells with no unit.
func (net *Network) CoordsToIndex(row, col int) (int, bool) {
	w := net.gridWidth
	if w == 0 || row < 0 || col < 0 || row >= w || col >= w {
		return 0, false
	}
	id := row*w + col
	if id >= len(net.neurons) {
		return 0, false
	}
	return id, true
}
