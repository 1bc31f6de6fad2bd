package nenv

import (
	"math"

	"github.com/nvandessel/nenv/internal/constants"
	"github.com/nvandessel/nenv/internal/vecmath"
)

// GliaConfig configures a unit's metabolic budget.
type GliaConfig struct {
	// MaxEnergy is the reservoir capacity. Units start full. Default: 100.
	MaxEnergy float64 `json:"max_energy"`

	// FireCost is subtracted on every spike. Default: 10.
	FireCost float64 `json:"fire_cost"`

	// MaintenanceCost is subtracted every step. Default: 0.1.
	MaintenanceCost float64 `json:"maintenance_cost"`

	// RecoveryRate is added every step, scaled by (1 + alert level). Default: 2.0.
	RecoveryRate float64 `json:"recovery_rate"`
}

// DefaultGliaConfig returns the default metabolic configuration.
func DefaultGliaConfig() GliaConfig {
	return GliaConfig{
		MaxEnergy:       constants.DefaultMaxEnergy,
		FireCost:        constants.DefaultEnergyCostFire,
		MaintenanceCost: constants.DefaultEnergyCostMaintenance,
		RecoveryRate:    constants.DefaultEnergyRecoveryRate,
	}
}

// Glia is the metabolic model of a unit: an energy reservoir and a
// novelty-driven priority multiplier. The alert level is never stored here;
// callers pass it in on every state update.
type Glia struct {
	cfg      GliaConfig
	energy   float64
	priority float64
}

// NewGlia creates a Glia with a full reservoir and neutral priority.
func NewGlia(cfg GliaConfig) Glia {
	return Glia{
		cfg:      cfg,
		energy:   cfg.MaxEnergy,
		priority: 1.0,
	}
}

// Energy returns the current energy level.
func (g *Glia) Energy() float64 { return g.energy }

// Priority returns the current priority multiplier in [1, 3].
func (g *Glia) Priority() float64 { return g.priority }

// MaxEnergy returns the reservoir capacity.
func (g *Glia) MaxEnergy() float64 { return g.cfg.MaxEnergy }

// EnergyFraction returns energy as a fraction of capacity.
func (g *Glia) EnergyFraction() float64 {
	if g.cfg.MaxEnergy <= 0 {
		return 0
	}
	return g.energy / g.cfg.MaxEnergy
}

// Modulate scales an integrated potential by the energy fraction and priority.
func (g *Glia) Modulate(potential float64) float64 {
	return potential * g.EnergyFraction() * g.priority
}

// UpdateState applies one step of metabolism: spike cost (if fired), then
// maintenance, then alert-boosted recovery. The clamp to [0, MaxEnergy]
// happens only after all three terms.
func (g *Glia) UpdateState(fired bool, alertLevel float64) {
	e := g.energy
	if fired {
		e -= g.cfg.FireCost
	}
	e -= g.cfg.MaintenanceCost
	e += g.cfg.RecoveryRate * (1 + alertLevel)
	g.energy = vecmath.Clamp(e, 0, g.cfg.MaxEnergy)
}

// UpdatePriority sets priority = min(3, 1 + novelty*sensitivity).
func (g *Glia) UpdatePriority(novelty, sensitivity float64) {
	g.priority = math.Min(constants.MaxPriority, 1.0+novelty*sensitivity)
}

// SetEnergy overwrites the energy level, clamped to the valid range.
func (g *Glia) SetEnergy(e float64) {
	g.energy = vecmath.Clamp(e, 0, g.cfg.MaxEnergy)
}

// SetPriority overwrites the priority, clamped to [1, 3].
func (g *Glia) SetPriority(p float64) {
	g.priority = vecmath.Clamp(p, 1, constants.MaxPriority)
}
