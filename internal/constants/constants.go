// Package constants provides named constants used throughout the nenv codebase.
// Model defaults live here so the config layer, the network and the CLI agree on them.
package constants

// Metabolic (glia) defaults
const (
	// DefaultMaxEnergy is the capacity of a unit's energy reservoir.
	DefaultMaxEnergy = 100.0

	// DefaultEnergyCostFire is the energy spent by a single spike.
	DefaultEnergyCostFire = 10.0

	// DefaultEnergyCostMaintenance is the energy spent every step regardless of firing.
	DefaultEnergyCostMaintenance = 0.1

	// DefaultEnergyRecoveryRate is the passive recovery per step at zero alert.
	// Recovery scales by (1 + alert level).
	DefaultEnergyRecoveryRate = 2.0

	// MaxPriority caps the novelty-driven priority multiplier.
	MaxPriority = 3.0
)

// Synaptic (dendritoma) defaults
const (
	// DefaultLearningRate is the Hebbian step size.
	DefaultLearningRate = 0.01

	// DefaultPlasticity is the per-connection plasticity assigned at construction.
	DefaultPlasticity = 1.0

	// InitialWeightMin and InitialWeightMax bound the uniform weight initialization.
	InitialWeightMin = 0.1
	InitialWeightMax = 0.3

	// NormTolerance is the tolerance used when checking unit-norm weight vectors.
	NormTolerance = 1e-6
)

// Spiking unit defaults
const (
	// DefaultThreshold is the firing threshold for modulated potential.
	DefaultThreshold = 0.2

	// DefaultRefractoryPeriod is the number of steps after a spike during
	// which a unit cannot fire again.
	DefaultRefractoryPeriod = 5

	// DefaultMemoryAlpha is the EMA rate of the memory trace.
	DefaultMemoryAlpha = 0.1

	// NeverFired is the last-fire-time sentinel for a unit that has not spiked.
	NeverFired = -1
)

// Network-wide attention defaults
const (
	// DefaultNoveltyAlertThreshold is the average novelty above which the
	// alert level starts rising.
	DefaultNoveltyAlertThreshold = 0.5

	// DefaultAlertSensitivity scales how fast alert rises with excess novelty.
	DefaultAlertSensitivity = 0.3

	// DefaultAlertDecayRate is the fraction of alert lost per calm step.
	DefaultAlertDecayRate = 0.05

	// DefaultPrioritySensitivity maps unit novelty to priority.
	DefaultPrioritySensitivity = 1.0

	// DefaultInhibitoryRatio is the fraction of inhibitory units.
	DefaultInhibitoryRatio = 0.2

	// DefaultNumNeurons gives a 10x10 grid.
	DefaultNumNeurons = 100
)

// Experiment defaults
const (
	// DefaultStimulusAmplitude is the external drive applied to stimulated units.
	DefaultStimulusAmplitude = 2.0

	// DefaultSnapshotInterval is how often (in steps) full weight snapshots are recorded.
	DefaultSnapshotInterval = 100

	// DefaultSeed seeds weight initialization when none is configured.
	DefaultSeed = 42
)
