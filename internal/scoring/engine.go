package scoring

import (
	"math"
	"sort"

	"github.com/banshee-data/lifecycle.report/internal/lifecycle"
)

// Exclusion reason codes for events that cannot contribute a score.
const (
	ReasonNegativeFactor  = "negative_factor"
	ReasonNonFiniteFactor = "non_finite_factor"
)

// StageScore is the scored contribution of one lifecycle stage. Events
// counts contributing events only; excluded events are reported on the
// VehicleScore.
type StageScore struct {
	Stage      lifecycle.Stage `json:"stage"`
	Events     int             `json:"events"`
	Raw        float64         `json:"raw"`
	Capped     float64         `json:"capped"`
	CapApplied bool            `json:"cap_applied,omitempty"`
}

// Exclusion records an event whose payload invalidated its contribution.
// The event is skipped, counted, and the run continues.
type Exclusion struct {
	Seq    int64           `json:"seq"`
	Stage  lifecycle.Stage `json:"stage"`
	Reason string          `json:"reason"`
}

// VehicleScore is one vehicle's scored result: capped per-stage
// contributions, the make-adjusted total, and its risk level.
type VehicleScore struct {
	VIN        string       `json:"vin"`
	Make       string       `json:"make,omitempty"`
	ModelYear  int          `json:"model_year,omitempty"`
	Odometer   float64      `json:"odometer,omitempty"`
	ZIP        string       `json:"zip,omitempty"`
	Total      float64      `json:"total"`
	Level      string       `json:"level"`
	MakeFactor float64      `json:"make_factor"`
	Stages     []StageScore `json:"stages"`
	Exclusions []Exclusion  `json:"exclusions,omitempty"`
}

// Engine scores classified vehicles against one validated model. Engines
// are stateless and safe for concurrent use.
type Engine struct {
	model Model
}

// NewEngine validates the model and returns an engine bound to it.
func NewEngine(m Model) (*Engine, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &Engine{model: m}, nil
}

// Model returns the engine's model.
func (e *Engine) Model() Model {
	return e.model
}

// Score computes the vehicle's risk score. Each staged event contributes
// weight(stage) x base, where base is the event's risk_factor payload or
// the model's default base. Events carrying a negative or non-finite
// factor are excluded rather than aborting the run. Stage sums are capped
// where the model configures a cap, then totalled and scaled by the make
// factor.
func (e *Engine) Score(v lifecycle.Classified) VehicleScore {
	type acc struct {
		raw    float64
		events int
	}
	sums := make(map[lifecycle.Stage]*acc)
	var exclusions []Exclusion

	for _, ev := range v.Events {
		base := e.model.DefaultBase
		if rf, ok := ev.Factors["risk_factor"]; ok {
			base = rf
		}
		if reason, bad := invalidFactors(base, ev.Factors); bad {
			exclusions = append(exclusions, Exclusion{Seq: ev.Seq, Stage: ev.Stage, Reason: reason})
			continue
		}
		a := sums[ev.Stage]
		if a == nil {
			a = &acc{}
			sums[ev.Stage] = a
		}
		a.raw += e.model.Weight(ev.Stage) * base
		a.events++
	}

	score := VehicleScore{
		VIN:        v.VIN,
		Make:       v.Make,
		ModelYear:  v.ModelYear,
		Odometer:   v.Odometer,
		ZIP:        v.ZIP,
		MakeFactor: e.model.MakeFactor(v.Make),
		Exclusions: exclusions,
	}

	var total float64
	for _, st := range lifecycle.Stages() {
		a := sums[st]
		if a == nil {
			continue
		}
		ss := StageScore{Stage: st, Events: a.events, Raw: a.raw, Capped: a.raw}
		if limit, ok := e.model.Cap(st); ok && a.raw > limit {
			ss.Capped = limit
			ss.CapApplied = true
		}
		total += ss.Capped
		score.Stages = append(score.Stages, ss)
	}

	score.Total = total * score.MakeFactor
	score.Level = e.model.Level(score.Total)
	sort.Slice(score.Exclusions, func(i, j int) bool {
		return score.Exclusions[i].Seq < score.Exclusions[j].Seq
	})
	return score
}

// invalidFactors reports whether the base or any payload factor poisons
// the contribution, and with which reason. Factor keys are checked in
// sorted order so the recorded reason is stable when several are bad.
func invalidFactors(base float64, factors map[string]float64) (string, bool) {
	if bad, reason := invalid(base); bad {
		return reason, true
	}
	keys := make([]string, 0, len(factors))
	for k := range factors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if bad, reason := invalid(factors[k]); bad {
			return reason, true
		}
	}
	return "", false
}

func invalid(f float64) (bool, string) {
	switch {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return true, ReasonNonFiniteFactor
	case f < 0:
		return true, ReasonNegativeFactor
	}
	return false, ""
}
