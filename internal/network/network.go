// Package network orchestrates a population of spiking units through a
// synchronous, five-phase update per time step and closes the
// novelty -> alert -> energy recovery feedback loop.
//
// Every unit decides from a single frozen snapshot of the previous step's
// outputs, so the order of units never affects the result. Per-unit work
// within a phase may fan out across workers; phases are separated by a full
// barrier.
package network

import (
	"fmt"
	"math"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/nenv/internal/constants"
	"github.com/nvandessel/nenv/internal/nenv"
	"github.com/nvandessel/nenv/internal/vecmath"
)

// MaxNeurons bounds network size; memory grows with the square of N.
const MaxNeurons = 2500

// Config holds construction parameters for a Network.
type Config struct {
	// NumNeurons is the population size N. Must be positive.
	NumNeurons int `json:"num_neurons"`

	// Connectivity is the wiring topology. Default: Grid2D.
	Connectivity Connectivity `json:"connectivity"`

	// InhibitoryRatio is the fraction of inhibitory units, in [0, 1].
	// The first floor(N*ratio) ids are inhibitory. Default: 0.2.
	InhibitoryRatio float64 `json:"inhibitory_ratio"`

	// Neuron holds the per-unit parameters shared by every unit.
	Neuron nenv.Config `json:"neuron"`

	// NoveltyAlertThreshold is the average novelty above which alert rises. Default: 0.5.
	NoveltyAlertThreshold float64 `json:"novelty_alert_threshold"`

	// AlertSensitivity scales alert growth per unit of excess novelty, in [0, 1]. Default: 0.3.
	AlertSensitivity float64 `json:"alert_sensitivity"`

	// AlertDecayRate is the fraction of alert lost on a calm step, in [0, 1]. Default: 0.05.
	AlertDecayRate float64 `json:"alert_decay_rate"`

	// PrioritySensitivity maps unit novelty to priority. Default: 1.0.
	PrioritySensitivity float64 `json:"priority_sensitivity"`

	// StimulusMode controls how external stimulus reaches units. Default: broadcast.
	StimulusMode StimulusMode `json:"stimulus_mode"`

	// Seed seeds weight initialization. Equal seeds give identical networks.
	Seed uint64 `json:"seed"`

	// Workers bounds per-unit fan-out within a phase. 0 or 1 runs sequentially.
	Workers int `json:"workers"`
}

// DefaultConfig returns the default network configuration: a 10x10 grid
// with 20% inhibitory units.
func DefaultConfig() Config {
	return Config{
		NumNeurons:            constants.DefaultNumNeurons,
		Connectivity:          Grid2D,
		InhibitoryRatio:       constants.DefaultInhibitoryRatio,
		Neuron:                nenv.DefaultConfig(),
		NoveltyAlertThreshold: constants.DefaultNoveltyAlertThreshold,
		AlertSensitivity:      constants.DefaultAlertSensitivity,
		AlertDecayRate:        constants.DefaultAlertDecayRate,
		PrioritySensitivity:   constants.DefaultPrioritySensitivity,
		StimulusMode:          StimulusBroadcast,
		Seed:                  constants.DefaultSeed,
	}
}

// Validate checks construction parameters.
func (c Config) Validate() error {
	if c.NumNeurons <= 0 {
		return fmt.Errorf("num_neurons must be positive, got %d", c.NumNeurons)
	}
	if c.NumNeurons > MaxNeurons {
		return fmt.Errorf("num_neurons must be at most %d, got %d", MaxNeurons, c.NumNeurons)
	}
	if c.InhibitoryRatio < 0 || c.InhibitoryRatio > 1 || math.IsNaN(c.InhibitoryRatio) {
		return fmt.Errorf("inhibitory_ratio must be between 0 and 1, got %f", c.InhibitoryRatio)
	}
	if c.Connectivity != Grid2D && c.Connectivity != FullyConnected {
		return fmt.Errorf("invalid connectivity: %v", c.Connectivity)
	}
	if c.StimulusMode != StimulusBroadcast && c.StimulusMode != StimulusLocal {
		return fmt.Errorf("invalid stimulus mode: %v", c.StimulusMode)
	}
	if math.IsNaN(c.Neuron.Threshold) || math.IsInf(c.Neuron.Threshold, 0) {
		return fmt.Errorf("threshold must be finite, got %f", c.Neuron.Threshold)
	}
	if c.Neuron.Glia.MaxEnergy <= 0 {
		return fmt.Errorf("max_energy must be positive, got %f", c.Neuron.Glia.MaxEnergy)
	}
	if c.Neuron.Glia.FireCost < 0 || c.Neuron.Glia.MaintenanceCost < 0 || c.Neuron.Glia.RecoveryRate < 0 {
		return fmt.Errorf("energy costs and recovery rate must be non-negative")
	}
	if c.Neuron.RefractoryPeriod < 0 {
		return fmt.Errorf("refractory_period must be non-negative, got %d", c.Neuron.RefractoryPeriod)
	}
	if c.Neuron.MemoryAlpha < 0 || c.Neuron.MemoryAlpha > 1 {
		return fmt.Errorf("memory_alpha must be between 0 and 1, got %f", c.Neuron.MemoryAlpha)
	}
	if c.Neuron.Dendritoma.LearningRate < 0 {
		return fmt.Errorf("learning_rate must be non-negative, got %f", c.Neuron.Dendritoma.LearningRate)
	}
	if c.NoveltyAlertThreshold < 0 {
		return fmt.Errorf("novelty_alert_threshold must be non-negative, got %f", c.NoveltyAlertThreshold)
	}
	if c.AlertSensitivity < 0 || c.AlertSensitivity > 1 {
		return fmt.Errorf("alert_sensitivity must be between 0 and 1, got %f", c.AlertSensitivity)
	}
	if c.AlertDecayRate < 0 || c.AlertDecayRate > 1 {
		return fmt.Errorf("alert_decay_rate must be between 0 and 1, got %f", c.AlertDecayRate)
	}
	if c.PrioritySensitivity < 0 {
		return fmt.Errorf("priority_sensitivity must be non-negative, got %f", c.PrioritySensitivity)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Workers)
	}
	return nil
}

// NumInhibitory returns floor(N * InhibitoryRatio).
func (c Config) NumInhibitory() int {
	return int(math.Floor(float64(c.NumNeurons) * c.InhibitoryRatio))
}

// Network owns the units, the static connectivity and the global attention state.
type Network struct {
	cfg     Config
	neurons []*nenv.Neuron
	conn    [][]bool

	gridWidth int

	timeStep              int
	alertLevel            float64
	avgNovelty            float64
	noveltyAlertThreshold float64
	alertSensitivity      float64

	// Per-step buffers, one slot per unit. A unit only ever writes its own slot.
	snapshot  []float64
	inputs    [][]float64
	modulated []float64
	novelty   []float64
}

// New validates cfg and builds a network. No unit is created if validation fails.
func New(cfg Config) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid network config: %w", err)
	}

	n := cfg.NumNeurons
	net := &Network{
		cfg:                   cfg,
		conn:                  buildConnectivity(n, cfg.Connectivity),
		noveltyAlertThreshold: cfg.NoveltyAlertThreshold,
		alertSensitivity:      cfg.AlertSensitivity,
		snapshot:              make([]float64, n),
		inputs:                make([][]float64, n),
		modulated:             make([]float64, n),
		novelty:               make([]float64, n),
	}
	if cfg.Connectivity == Grid2D {
		net.gridWidth = gridSide(n)
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	numInhibitory := cfg.NumInhibitory()
	net.neurons = make([]*nenv.Neuron, n)
	for i := 0; i < n; i++ {
		typ := nenv.Excitatory
		if i < numInhibitory {
			typ = nenv.Inhibitory
		}
		net.neurons[i] = nenv.New(i, typ, nenv.RandomWeights(n, rng), cfg.Neuron)
		net.inputs[i] = make([]float64, n)
	}

	return net, nil
}

// Update advances the network by one time step. The stimulus is validated
// before any state changes.
func (net *Network) Update(stimulus Stimulus) error {
	ext, err := stimulus.dense(len(net.neurons))
	if err != nil {
		return err
	}

	// Phase 1: freeze the previous step's outputs.
	for i, u := range net.neurons {
		net.snapshot[i] = u.Output()
	}

	// Phase 2: every unit decides from the frozen snapshot.
	t := net.timeStep
	net.forEach(func(i int) {
		u := net.neurons[i]
		in := net.inputs[i]
		net.gatherInputs(i, ext, in)
		net.modulated[i] = u.ModulatedPotential(in)
		u.DecideToFire(net.modulated[i], t)
	})

	// Phase 3: learning, metabolism and memory. Novelty is measured against
	// the memory trace before this step's input is folded in.
	alert := net.alertLevel
	net.forEach(func(i int) {
		u := net.neurons[i]
		in := net.inputs[i]
		if u.IsFiring() {
			u.Dendritoma().ApplyLearning(in)
		}
		u.Glia().UpdateState(u.IsFiring(), alert)
		net.novelty[i] = u.ComputeNovelty(in)
		u.UpdateMemory(in)
	})

	// Phase 4: novelty drives priority.
	sensitivity := net.cfg.PrioritySensitivity
	net.forEach(func(i int) {
		net.neurons[i].UpdatePriority(net.novelty[i], sensitivity)
	})
	net.avgNovelty = vecmath.Mean(net.novelty)

	// Phase 5: global alert.
	if net.avgNovelty > net.noveltyAlertThreshold {
		net.alertLevel = math.Min(1, net.alertLevel+net.alertSensitivity*(net.avgNovelty-net.noveltyAlertThreshold))
	} else {
		net.alertLevel *= 1 - net.cfg.AlertDecayRate
	}

	net.timeStep++
	return nil
}

// gatherInputs fills dst with unit i's effective input vector:
// the connectivity-masked snapshot plus the external stimulus.
func (net *Network) gatherInputs(i int, ext, dst []float64) {
	row := net.conn[i]
	for j := range dst {
		if row[j] {
			dst[j] = net.snapshot[j]
		} else {
			dst[j] = 0
		}
	}

	switch net.cfg.StimulusMode {
	case StimulusLocal:
		dst[i] += ext[i]
	default:
		for j, x := range ext {
			dst[j] += x
		}
	}
}

// forEach runs fn for every unit index and returns once all calls finished.
func (net *Network) forEach(fn func(i int)) {
	n := len(net.neurons)
	workers := net.cfg.Workers
	if workers <= 1 || n < 2 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	chunk := (n + workers - 1) / workers
	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		g.Go(func() error {
			for i := start; i < end; i++ {
				fn(i)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// SetAlertLevel overrides the alert level, clamped to [0, 1].
func (net *Network) SetAlertLevel(level float64) {
	net.alertLevel = vecmath.Clamp(level, 0, 1)
}

// BoostAlertLevel raises the alert level by boost, capped at 1.
func (net *Network) BoostAlertLevel(boost float64) {
	net.alertLevel = vecmath.Clamp(net.alertLevel+boost, 0, 1)
}

// SetNoveltyAlertParams changes the novelty coupling. The threshold is
// floored at 0 and the sensitivity clamped to [0, 1].
func (net *Network) SetNoveltyAlertParams(threshold, sensitivity float64) {
	net.noveltyAlertThreshold = math.Max(0, threshold)
	net.alertSensitivity = vecmath.Clamp(sensitivity, 0, 1)
}

// NoveltyAlertParams returns the current threshold and sensitivity.
func (net *Network) NoveltyAlertParams() (threshold, sensitivity float64) {
	return net.noveltyAlertThreshold, net.alertSensitivity
}
