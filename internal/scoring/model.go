// Package scoring computes per-vehicle risk scores from stage-tagged
// events. The scoring model is an explicit, immutable configuration object
// loaded from YAML; two runs with different model versions can execute in
// the same process without sharing state.
package scoring

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/lifecycle.report/internal/lifecycle"
)

// ErrInvalidModel wraps every model validation failure so callers can
// classify it as a configuration error.
var ErrInvalidModel = errors.New("invalid scoring model")

// Levels holds the score thresholds separating risk levels. Scores below
// Medium are low risk.
type Levels struct {
	Medium   float64 `yaml:"medium" json:"medium"`
	High     float64 `yaml:"high" json:"high"`
	Critical float64 `yaml:"critical" json:"critical"`
}

// Model is a versioned scoring configuration: a linear weighted-sum model
// over lifecycle stages with optional per-stage caps and per-make factors.
// All fields are explicit; a loaded model must pass Validate before use.
type Model struct {
	Version string `yaml:"version" json:"version"`

	// DefaultBase is the base contribution of an event carrying no
	// risk_factor payload. Must be positive and stated explicitly.
	DefaultBase float64 `yaml:"default_base" json:"default_base"`

	// Weights maps stage wire names to non-negative weights. Stages not
	// listed weigh zero.
	Weights map[string]float64 `yaml:"weights" json:"weights"`

	// Caps optionally bounds a stage's summed contribution before
	// totalling. Caps are documented in artifact provenance.
	Caps map[string]float64 `yaml:"caps,omitempty" json:"caps,omitempty"`

	// MakeFactors optionally scales a vehicle's total by its make.
	// Unknown makes use 1.0.
	MakeFactors map[string]float64 `yaml:"make_factors,omitempty" json:"make_factors,omitempty"`

	Levels Levels `yaml:"levels" json:"levels"`
}

// Default returns scoring model v1: incident-dominated linear weights, no
// caps, no make factors, and the standard risk level thresholds.
func Default() Model {
	return Model{
		Version:     "v1",
		DefaultBase: 1.0,
		Weights: map[string]float64{
			"manufacture":  0.0,
			"registration": 0.2,
			"active_use":   0.3,
			"maintenance":  0.4,
			"incident":     1.0,
			"retirement":   0.1,
		},
		Levels: Levels{Medium: 30, High: 60, Critical: 80},
	}
}

// Load reads and validates a model from a YAML file.
func Load(path string) (Model, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return Model{}, fmt.Errorf("%w: failed to read %s: %v", ErrInvalidModel, path, err)
	}
	var m Model
	if err := yaml.Unmarshal(blob, &m); err != nil {
		return Model{}, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalidModel, path, err)
	}
	if err := m.Validate(); err != nil {
		return Model{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Validate checks the model is well formed. Every error wraps
// ErrInvalidModel.
func (m Model) Validate() error {
	if m.Version == "" {
		return fmt.Errorf("%w: version is required", ErrInvalidModel)
	}
	if m.DefaultBase <= 0 {
		return fmt.Errorf("%w: default_base must be positive, got %v", ErrInvalidModel, m.DefaultBase)
	}
	if len(m.Weights) == 0 {
		return fmt.Errorf("%w: weights are required", ErrInvalidModel)
	}
	for name, w := range m.Weights {
		if _, err := lifecycle.ParseStage(name); err != nil {
			return fmt.Errorf("%w: weights: %v", ErrInvalidModel, err)
		}
		if w < 0 {
			return fmt.Errorf("%w: weight for %s must be non-negative, got %v", ErrInvalidModel, name, w)
		}
	}
	for name, cap := range m.Caps {
		if _, err := lifecycle.ParseStage(name); err != nil {
			return fmt.Errorf("%w: caps: %v", ErrInvalidModel, err)
		}
		if cap <= 0 {
			return fmt.Errorf("%w: cap for %s must be positive, got %v", ErrInvalidModel, name, cap)
		}
	}
	for mk, f := range m.MakeFactors {
		if f <= 0 {
			return fmt.Errorf("%w: make factor for %s must be positive, got %v", ErrInvalidModel, mk, f)
		}
	}
	lv := m.Levels
	if lv.Medium <= 0 || lv.High <= lv.Medium || lv.Critical <= lv.High {
		return fmt.Errorf("%w: levels must satisfy 0 < medium < high < critical, got %+v", ErrInvalidModel, lv)
	}
	return nil
}

// Weight returns the weight for a stage (zero when unlisted).
func (m Model) Weight(s lifecycle.Stage) float64 {
	return m.Weights[s.String()]
}

// Cap returns the stage cap and whether one is configured.
func (m Model) Cap(s lifecycle.Stage) (float64, bool) {
	c, ok := m.Caps[s.String()]
	return c, ok
}

// MakeFactor returns the total multiplier for a make, 1.0 when the make is
// unknown or unlisted.
func (m Model) MakeFactor(make string) float64 {
	if f, ok := m.MakeFactors[make]; ok {
		return f
	}
	return 1.0
}

// Level maps a total score onto its risk level name.
func (m Model) Level(score float64) string {
	switch {
	case score < m.Levels.Medium:
		return "low"
	case score < m.Levels.High:
		return "medium"
	case score < m.Levels.Critical:
		return "high"
	default:
		return "critical"
	}
}
