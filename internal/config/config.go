// Package config loads and validates the hierarchical YAML configuration
// document a run is driven by (spec.md §6).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ConfigError names the offending field of a malformed configuration
// document, distinguishing it from a trace error or invariant violation.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error in %q: %s", e.Field, e.Msg)
}

// System is the `system` block: GPU/step token budgets and the batch
// duration coefficients.
type System struct {
	MTotal int     `yaml:"m_total"`
	B      int     `yaml:"b"`
	D0     float64 `yaml:"d_0"`
	D1     float64 `yaml:"d_1"`
}

// Control is the `control` block: the two-axis preemption configuration.
type Control struct {
	PreemptionMode      string `yaml:"preemption_mode"`
	PreemptionStrategy  string `yaml:"preemption_strategy"`
	AllowWaitingPreempt bool   `yaml:"allow_waiting_preempt"`
	QueuePolicy         string `yaml:"queue_policy"`
	VictimPolicy        string `yaml:"victim_policy"`
}

// Data is the `data` block: trace source and output location.
type Data struct {
	TracePath           string `yaml:"trace_path"`
	ExperimentsDir       string `yaml:"experiments_dir"`
	DecodeLengthCeiling int    `yaml:"decode_length_ceiling"`
}

// GenerationClass is one class entry of the `generation` block.
type GenerationClass struct {
	PrefillLength int     `yaml:"prefill_length"`
	DecodeLength  int     `yaml:"decode_length"`
	Rate          float64 `yaml:"rate"`
}

// Generation is the optional `generation` block: Poisson trace synthesis.
type Generation struct {
	NumRequests int               `yaml:"num_requests"`
	Seed        int64             `yaml:"seed"`
	Classes     []GenerationClass `yaml:"classes"`
}

// Truncation is the optional `truncation` block.
type Truncation struct {
	BatchID        int64      `yaml:"batch_id"`
	NewGeneration  Generation `yaml:"new_generation"`
}

// AdmissionControl is the optional `admission_control` block.
type AdmissionControl struct {
	Enabled   bool    `yaml:"enabled"`
	Threshold float64 `yaml:"threshold"`
}

// InitialState is the optional `initial_state` block: resumption from a
// previously saved checkpoint.
type InitialState struct {
	Path string `yaml:"path"`
}

// StateSave is the optional `state_save` block: batch ids to snapshot.
type StateSave struct {
	BatchIDs []int64 `yaml:"batch_ids"`
	OutDir   string  `yaml:"out_dir"`
}

// Config is the full hierarchical document a run is driven by.
type Config struct {
	System           System           `yaml:"system"`
	Control          Control          `yaml:"control"`
	Data             Data             `yaml:"data"`
	Generation       *Generation      `yaml:"generation"`
	Truncation       *Truncation      `yaml:"truncation"`
	AdmissionControl *AdmissionControl `yaml:"admission_control"`
	InitialState     *InitialState    `yaml:"initial_state"`
	StateSave        *StateSave       `yaml:"state_save"`
}

// Load reads and parses path, then validates it. A missing file, malformed
// YAML, or unknown preemption_mode/preemption_strategy is a *ConfigError.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Field: "path", Msg: err.Error()}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Field: "(yaml)", Msg: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects unknown mode/strategy/victim-policy values and other
// structurally required fields, naming the offending value (spec.md §7).
func (c *Config) Validate() error {
	if c.System.MTotal < 0 {
		return &ConfigError{Field: "system.m_total", Msg: "must be non-negative"}
	}
	if c.System.B <= 0 {
		return &ConfigError{Field: "system.b", Msg: "must be positive"}
	}
	switch c.Control.PreemptionMode {
	case "swap", "sacrifice":
	default:
		return &ConfigError{Field: "control.preemption_mode", Msg: fmt.Sprintf("unknown value %q", c.Control.PreemptionMode)}
	}
	switch c.Control.PreemptionStrategy {
	case "aggressive", "conservative":
	default:
		return &ConfigError{Field: "control.preemption_strategy", Msg: fmt.Sprintf("unknown value %q", c.Control.PreemptionStrategy)}
	}
	switch c.Control.VictimPolicy {
	case "", "lifo", "arrival-fifo":
	default:
		return &ConfigError{Field: "control.victim_policy", Msg: fmt.Sprintf("unknown value %q", c.Control.VictimPolicy)}
	}
	if c.Truncation != nil && c.Truncation.BatchID < 0 {
		return &ConfigError{Field: "truncation.batch_id", Msg: "must be set to a non-negative batch id in truncate mode"}
	}
	if c.AdmissionControl != nil && c.AdmissionControl.Enabled {
		if c.AdmissionControl.Threshold < 0 || c.AdmissionControl.Threshold > 1 {
			return &ConfigError{Field: "admission_control.threshold", Msg: "must be in [0, 1]"}
		}
	}
	return nil
}
