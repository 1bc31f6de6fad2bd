package config

import (
	"fmt"
	"sort"
	"strconv"
)

type field struct {
	get func(c *NenvConfig) any
	set func(c *NenvConfig, value string) error
}

func intField(p func(c *NenvConfig) *int) field {
	return field{
		get: func(c *NenvConfig) any { return *p(c) },
		set: func(c *NenvConfig, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid integer: %s", v)
			}
			*p(c) = n
			return nil
		},
	}
}

func floatField(p func(c *NenvConfig) *float64) field {
	return field{
		get: func(c *NenvConfig) any { return *p(c) },
		set: func(c *NenvConfig, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid number: %s", v)
			}
			*p(c) = f
			return nil
		},
	}
}

func stringField(p func(c *NenvConfig) *string) field {
	return field{
		get: func(c *NenvConfig) any { return *p(c) },
		set: func(c *NenvConfig, v string) error {
			*p(c) = v
			return nil
		},
	}
}

func boolField(p func(c *NenvConfig) *bool) field {
	return field{
		get: func(c *NenvConfig) any { return *p(c) },
		set: func(c *NenvConfig, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid boolean: %s", v)
			}
			*p(c) = b
			return nil
		},
	}
}

var fields = map[string]field{
	"network.num_neurons":             intField(func(c *NenvConfig) *int { return &c.Network.NumNeurons }),
	"network.connectivity":            stringField(func(c *NenvConfig) *string { return &c.Network.Connectivity }),
	"network.inhibitory_ratio":        floatField(func(c *NenvConfig) *float64 { return &c.Network.InhibitoryRatio }),
	"network.threshold":               floatField(func(c *NenvConfig) *float64 { return &c.Network.Threshold }),
	"network.refractory_period":       intField(func(c *NenvConfig) *int { return &c.Network.RefractoryPeriod }),
	"network.memory_alpha":            floatField(func(c *NenvConfig) *float64 { return &c.Network.MemoryAlpha }),
	"network.max_energy":              floatField(func(c *NenvConfig) *float64 { return &c.Network.MaxEnergy }),
	"network.fire_cost":               floatField(func(c *NenvConfig) *float64 { return &c.Network.FireCost }),
	"network.maintenance_cost":        floatField(func(c *NenvConfig) *float64 { return &c.Network.MaintenanceCost }),
	"network.recovery_rate":           floatField(func(c *NenvConfig) *float64 { return &c.Network.RecoveryRate }),
	"network.learning_rate":           floatField(func(c *NenvConfig) *float64 { return &c.Network.LearningRate }),
	"network.plasticity":              floatField(func(c *NenvConfig) *float64 { return &c.Network.Plasticity }),
	"network.novelty_alert_threshold": floatField(func(c *NenvConfig) *float64 { return &c.Network.NoveltyAlertThreshold }),
	"network.alert_sensitivity":       floatField(func(c *NenvConfig) *float64 { return &c.Network.AlertSensitivity }),
	"network.alert_decay_rate":        floatField(func(c *NenvConfig) *float64 { return &c.Network.AlertDecayRate }),
	"network.priority_sensitivity":    floatField(func(c *NenvConfig) *float64 { return &c.Network.PrioritySensitivity }),
	"network.stimulus_mode":           stringField(func(c *NenvConfig) *string { return &c.Network.StimulusMode }),
	"network.workers":                 intField(func(c *NenvConfig) *int { return &c.Network.Workers }),
	"network.seed": {
		get: func(c *NenvConfig) any { return c.Network.Seed },
		set: func(c *NenvConfig, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid seed: %s (must be a non-negative integer)", v)
			}
			c.Network.Seed = n
			return nil
		},
	},
	"experiment.steps":             intField(func(c *NenvConfig) *int { return &c.Experiment.Steps }),
	"experiment.target":            intField(func(c *NenvConfig) *int { return &c.Experiment.Target }),
	"experiment.amplitude":         floatField(func(c *NenvConfig) *float64 { return &c.Experiment.Amplitude }),
	"experiment.snapshot_interval": intField(func(c *NenvConfig) *int { return &c.Experiment.SnapshotInterval }),
	"experiment.output_dir":        stringField(func(c *NenvConfig) *string { return &c.Experiment.OutputDir }),
	"store.enabled":                boolField(func(c *NenvConfig) *bool { return &c.Store.Enabled }),
	"store.path":                   stringField(func(c *NenvConfig) *string { return &c.Store.Path }),
	"logging.level":                stringField(func(c *NenvConfig) *string { return &c.Logging.Level }),
	"logging.format":               stringField(func(c *NenvConfig) *string { return &c.Logging.Format }),
}

// Keys returns every settable dotted key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get retrieves a configuration value by dot-notation key.
func (c *NenvConfig) Get(key string) (any, bool) {
	f, ok := fields[key]
	if !ok {
		return nil, false
	}
	return f.get(c), true
}

// Set assigns a configuration value by dot-notation key. The whole
// configuration is validated afterwards and left unchanged on error.
func (c *NenvConfig) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s", key)
	}

	next := *c
	if err := f.set(&next, value); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}
