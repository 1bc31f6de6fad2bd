package nenv

import (
	"fmt"
	"math/rand/v2"

	"github.com/nvandessel/nenv/internal/constants"
	"github.com/nvandessel/nenv/internal/vecmath"
)

// DendritomaConfig configures synaptic learning.
type DendritomaConfig struct {
	// LearningRate scales each Hebbian increment. Default: 0.01.
	LearningRate float64 `json:"learning_rate"`

	// Plasticity is the initial per-connection plasticity. Default: 1.0.
	Plasticity float64 `json:"plasticity"`
}

// DefaultDendritomaConfig returns the default synaptic configuration.
func DefaultDendritomaConfig() DendritomaConfig {
	return DendritomaConfig{
		LearningRate: constants.DefaultLearningRate,
		Plasticity:   constants.DefaultPlasticity,
	}
}

// Dendritoma holds a unit's synaptic weights and per-connection plasticity.
type Dendritoma struct {
	weights      []float64
	plasticity   []float64
	learningRate float64
}

// NewDendritoma creates a synaptic model over a copy of weights.
func NewDendritoma(weights []float64, cfg DendritomaConfig) Dendritoma {
	plasticity := make([]float64, len(weights))
	for i := range plasticity {
		plasticity[i] = cfg.Plasticity
	}
	return Dendritoma{
		weights:      append([]float64(nil), weights...),
		plasticity:   plasticity,
		learningRate: cfg.LearningRate,
	}
}

// RandomWeights draws n weights uniformly from [InitialWeightMin, InitialWeightMax).
func RandomWeights(n int, rng *rand.Rand) []float64 {
	span := constants.InitialWeightMax - constants.InitialWeightMin
	w := make([]float64, n)
	for i := range w {
		w[i] = constants.InitialWeightMin + span*rng.Float64()
	}
	return w
}

// Integrate returns the dot product of inputs and weights.
// It panics if len(inputs) differs from the fan-in.
func (d *Dendritoma) Integrate(inputs []float64) float64 {
	d.mustMatch(inputs)
	return vecmath.Dot(inputs, d.weights)
}

// ApplyLearning strengthens connections with positive input, then
// renormalizes the weight vector to unit L2 norm. Connections with zero or
// negative input are not updated. An all-zero weight vector is left as is.
func (d *Dendritoma) ApplyLearning(inputs []float64) {
	d.mustMatch(inputs)
	for i, in := range inputs {
		if in > 0 {
			d.weights[i] += d.learningRate * d.plasticity[i] * in
		}
	}
	vecmath.Normalize(d.weights)
}

// NumInputs returns the fan-in.
func (d *Dendritoma) NumInputs() int { return len(d.weights) }

// TotalWeight returns the sum of all weights.
func (d *Dendritoma) TotalWeight() float64 { return vecmath.Sum(d.weights) }

// WeightNorm returns the L2 norm of the weight vector.
func (d *Dendritoma) WeightNorm() float64 { return vecmath.Norm(d.weights) }

// LearningRate returns the Hebbian step size.
func (d *Dendritoma) LearningRate() float64 { return d.learningRate }

// Weights returns a copy of the weight vector.
func (d *Dendritoma) Weights() []float64 {
	return append([]float64(nil), d.weights...)
}

// Plasticity returns a copy of the plasticity vector.
func (d *Dendritoma) Plasticity() []float64 {
	return append([]float64(nil), d.plasticity...)
}

// SetWeights replaces the weights. It panics on a fan-in mismatch.
func (d *Dendritoma) SetWeights(w []float64) {
	d.mustMatch(w)
	copy(d.weights, w)
}

// SetPlasticity replaces the plasticity vector. It panics on a fan-in mismatch.
func (d *Dendritoma) SetPlasticity(p []float64) {
	d.mustMatch(p)
	copy(d.plasticity, p)
}

func (d *Dendritoma) mustMatch(v []float64) {
	if len(v) != len(d.weights) {
		panic(fmt.Sprintf("dendritoma: input length %d does not match fan-in %d", len(v), len(d.weights)))
	}
}
