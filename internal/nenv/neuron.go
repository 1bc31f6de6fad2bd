// Package nenv implements the spiking unit of the simulation and its two
// sub-models: Glia (metabolic energy and priority) and Dendritoma (synaptic
// integration and Hebbian learning).
//
// A unit composes the two into a per-step decision: integrate inputs,
// modulate by energy and priority, compare against threshold, then learn and
// update its memory trace. Firing state is derived from the last fire time;
// refractory status is never stored.
package nenv

import (
	"fmt"

	"github.com/nvandessel/nenv/internal/constants"
	"github.com/nvandessel/nenv/internal/vecmath"
)

// NeuronType is the fixed polarity of a unit.
type NeuronType int

const (
	// Excitatory units emit +1 when firing.
	Excitatory NeuronType = iota
	// Inhibitory units emit -1 when firing.
	Inhibitory
)

// Sign returns the output signal emitted when a unit of this type fires.
func (t NeuronType) Sign() float64 {
	switch t {
	case Excitatory:
		return 1
	case Inhibitory:
		return -1
	default:
		panic(fmt.Sprintf("nenv: unknown neuron type %d", int(t)))
	}
}

// String implements fmt.Stringer.
func (t NeuronType) String() string {
	switch t {
	case Excitatory:
		return "excitatory"
	case Inhibitory:
		return "inhibitory"
	default:
		return fmt.Sprintf("NeuronType(%d)", int(t))
	}
}

// ParseNeuronType maps "excitatory" or "inhibitory" to a NeuronType.
func ParseNeuronType(s string) (NeuronType, error) {
	switch s {
	case "excitatory":
		return Excitatory, nil
	case "inhibitory":
		return Inhibitory, nil
	}
	return 0, fmt.Errorf("unknown neuron type %q", s)
}

// Config holds the per-unit parameters.
type Config struct {
	Glia       GliaConfig       `json:"glia"`
	Dendritoma DendritomaConfig `json:"dendritoma"`

	// Threshold is the firing threshold for modulated potential. Default: 0.2.
	// Equality does not fire.
	Threshold float64 `json:"threshold"`

	// RefractoryPeriod is the minimum number of steps between spikes. Default: 5.
	RefractoryPeriod int `json:"refractory_period"`

	// MemoryAlpha is the EMA rate of the memory trace, in [0, 1]. Default: 0.1.
	MemoryAlpha float64 `json:"memory_alpha"`
}

// DefaultConfig returns the default unit configuration.
func DefaultConfig() Config {
	return Config{
		Glia:             DefaultGliaConfig(),
		Dendritoma:       DefaultDendritomaConfig(),
		Threshold:        constants.DefaultThreshold,
		RefractoryPeriod: constants.DefaultRefractoryPeriod,
		MemoryAlpha:      constants.DefaultMemoryAlpha,
	}
}

// Neuron is a single spiking unit. It exclusively owns its Glia, Dendritoma
// and memory trace.
type Neuron struct {
	id         int
	typ        NeuronType
	dendritoma Dendritoma
	glia       Glia
	memory     []float64

	lastFire  int
	threshold float64
	firing    bool
	output    float64

	refractoryPeriod int
	memoryAlpha      float64
}

// New creates a unit with the given initial weights. The fan-in is len(weights).
func New(id int, typ NeuronType, weights []float64, cfg Config) *Neuron {
	return &Neuron{
		id:               id,
		typ:              typ,
		dendritoma:       NewDendritoma(weights, cfg.Dendritoma),
		glia:             NewGlia(cfg.Glia),
		memory:           make([]float64, len(weights)),
		lastFire:         constants.NeverFired,
		threshold:        cfg.Threshold,
		refractoryPeriod: cfg.RefractoryPeriod,
		memoryAlpha:      vecmath.Clamp(cfg.MemoryAlpha, 0, 1),
	}
}

// NewExcitatory creates an excitatory unit.
func NewExcitatory(id int, weights []float64, cfg Config) *Neuron {
	return New(id, Excitatory, weights, cfg)
}

// NewInhibitory creates an inhibitory unit.
func NewInhibitory(id int, weights []float64, cfg Config) *Neuron {
	return New(id, Inhibitory, weights, cfg)
}

// ID returns the unit's index in its network.
func (n *Neuron) ID() int { return n.id }

// Type returns the unit's polarity.
func (n *Neuron) Type() NeuronType { return n.typ }

// Threshold returns the firing threshold.
func (n *Neuron) Threshold() float64 { return n.threshold }

// IsFiring reports whether the unit fired on the most recent decision.
func (n *Neuron) IsFiring() bool { return n.firing }

// Output returns the emitted signal: the type's sign when firing, else 0.
func (n *Neuron) Output() float64 { return n.output }

// LastFireTime returns the step of the last spike, or -1 if it never fired.
func (n *Neuron) LastFireTime() int { return n.lastFire }

// Glia returns the unit's metabolic model.
func (n *Neuron) Glia() *Glia { return &n.glia }

// Dendritoma returns the unit's synaptic model.
func (n *Neuron) Dendritoma() *Dendritoma { return &n.dendritoma }

// Memory returns a copy of the memory trace.
func (n *Neuron) Memory() []float64 {
	return append([]float64(nil), n.memory...)
}

// SetRefractoryPeriod changes the refractory period.
func (n *Neuron) SetRefractoryPeriod(period int) { n.refractoryPeriod = period }

// SetMemoryAlpha changes the EMA rate, clamped to [0, 1].
func (n *Neuron) SetMemoryAlpha(alpha float64) { n.memoryAlpha = vecmath.Clamp(alpha, 0, 1) }

// Refractory reports whether the unit is still refractory at step t.
// A unit that never fired is never refractory.
func (n *Neuron) Refractory(t int) bool {
	if n.lastFire < 0 {
		return false
	}
	return t-n.lastFire < n.refractoryPeriod
}

// ModulatedPotential integrates inputs and applies metabolic modulation
// without changing any state.
func (n *Neuron) ModulatedPotential(inputs []float64) float64 {
	return n.glia.Modulate(n.dendritoma.Integrate(inputs))
}

// DecideToFire resets the firing state and fires if the modulated potential
// strictly exceeds threshold and the unit is not refractory at step t.
// Only the firing state and last fire time change.
func (n *Neuron) DecideToFire(modulated float64, t int) {
	refractory := n.Refractory(t)
	n.firing = false
	n.output = 0
	if modulated > n.threshold && !refractory {
		n.firing = true
		n.lastFire = t
		n.output = n.typ.Sign()
	}
}

// ComputeNovelty returns the mean absolute difference between inputs and
// the memory trace. It panics on a fan-in mismatch.
func (n *Neuron) ComputeNovelty(inputs []float64) float64 {
	n.mustMatch(inputs)
	return vecmath.MeanAbsDiff(inputs, n.memory)
}

// UpdateMemory folds inputs into the memory trace as an exponential moving
// average. It panics on a fan-in mismatch.
func (n *Neuron) UpdateMemory(inputs []float64) {
	n.mustMatch(inputs)
	a := n.memoryAlpha
	for i, in := range inputs {
		n.memory[i] = (1-a)*n.memory[i] + a*in
	}
}

// UpdatePriority sets the metabolic priority from novelty.
func (n *Neuron) UpdatePriority(novelty, sensitivity float64) {
	n.glia.UpdatePriority(novelty, sensitivity)
}

// Step runs a full single-unit update outside a network: integrate,
// modulate, decide, learn if fired, metabolism, memory. It returns the
// emitted signal.
func (n *Neuron) Step(inputs []float64, t int, alertLevel float64) float64 {
	n.DecideToFire(n.ModulatedPotential(inputs), t)
	if n.firing {
		n.dendritoma.ApplyLearning(inputs)
	}
	n.glia.UpdateState(n.firing, alertLevel)
	n.UpdateMemory(inputs)
	return n.output
}

func (n *Neuron) mustMatch(inputs []float64) {
	if len(inputs) != len(n.memory) {
		panic(fmt.Sprintf("nenv: unit %d: input length %d does not match fan-in %d", n.id, len(inputs), len(n.memory)))
	}
}
