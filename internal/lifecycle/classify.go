package lifecycle

import (
	"time"

	"github.com/banshee-data/lifecycle.report/internal/normalize"
)

// Policy is the documented, versioned resolution of stage-assignment
// ambiguity. Payload flags always win; for an unflagged inspection the
// timestamp tie-break applies (an inspection shortly after an incident is
// treated as part of the incident), and InspectionDefault decides the rest.
type Policy struct {
	Version           string
	InspectionDefault Stage
	IncidentFlags     []string
	MaintenanceFlags  []string
	CoincidenceWindow time.Duration
}

// DefaultPolicy returns policy p1: flags first, a 24h incident coincidence
// window, and Maintenance as the inspection fallback.
func DefaultPolicy() Policy {
	return Policy{
		Version:           "p1",
		InspectionDefault: Maintenance,
		IncidentFlags:     []string{"failed", "damage", "crash"},
		MaintenanceFlags:  []string{"routine", "pass", "ok"},
		CoincidenceWindow: 24 * time.Hour,
	}
}

// StagedEvent is a canonical event with its assigned stage.
type StagedEvent struct {
	normalize.Event
	Stage Stage `json:"stage"`
}

// Classified is one vehicle's stage-tagged event sequence plus the vehicle
// attributes downstream consumers need. A Classified with zero events means
// the vehicle had no resolvable events and is excluded from the cohort.
type Classified struct {
	VIN       string        `json:"vin"`
	State     string        `json:"state"`
	Year      int           `json:"year"`
	Make      string        `json:"make,omitempty"`
	ModelYear int           `json:"model_year,omitempty"`
	Odometer  float64       `json:"odometer,omitempty"`
	ZIP       string        `json:"zip,omitempty"`
	Events    []StagedEvent `json:"events"`
}

// Drop records one excluded event and why. The orchestrator tallies drops
// into artifact provenance.
type Drop struct {
	Seq    int64  `json:"seq"`
	Reason string `json:"reason"`
}

// Drop reasons.
const (
	DropUnknownType = "unknown_type"
	DropOutOfOrder  = "out_of_order"
)

// eventStages maps unambiguous canonical event types to stages.
// "inspection" is deliberately absent: it resolves through the Policy.
var eventStages = map[string]Stage{
	"manufacture":  Manufacture,
	"registration": Registration,
	"usage":        ActiveUse,
	"maintenance":  Maintenance,
	"incident":     Incident,
	"scrappage":    Retirement,
}

// Classify tags a vehicle's events with lifecycle stages. Events arrive
// time-sorted from the normalizer. Unknown event types are dropped, never
// guessed. The stage-order invariant then excludes events whose stage
// phase regresses (a registration after in-service events, anything after
// retirement); maintenance, incidents and usage interleave freely while
// the vehicle is in service.
func Classify(v normalize.VehicleRecord, p Policy) (Classified, []Drop) {
	c := Classified{
		VIN:       v.VIN,
		State:     v.State,
		Year:      v.Year,
		Make:      v.Make,
		ModelYear: v.ModelYear,
		Odometer:  v.Odometer,
		ZIP:       v.ZIP,
	}
	var drops []Drop

	// First pass: resolve a stage per event or drop it.
	staged := make([]StagedEvent, 0, len(v.Events))
	for _, ev := range v.Events {
		stage, ok := resolveStage(ev, v.Events, p)
		if !ok {
			drops = append(drops, Drop{Seq: ev.Seq, Reason: DropUnknownType})
			continue
		}
		staged = append(staged, StagedEvent{Event: ev, Stage: stage})
	}

	// Second pass: enforce the stage-order invariant.
	maxPhase := -1
	for _, se := range staged {
		ph := phase(se.Stage)
		if ph < maxPhase {
			drops = append(drops, Drop{Seq: se.Seq, Reason: DropOutOfOrder})
			continue
		}
		maxPhase = ph
		c.Events = append(c.Events, se)
	}

	return c, drops
}

func resolveStage(ev normalize.Event, all []normalize.Event, p Policy) (Stage, bool) {
	if stage, ok := eventStages[ev.Type]; ok {
		return stage, true
	}
	if ev.Type != "inspection" {
		return 0, false
	}

	// Payload flags take precedence over everything else.
	for _, f := range ev.Flags {
		if contains(p.IncidentFlags, f) {
			return Incident, true
		}
	}
	for _, f := range ev.Flags {
		if contains(p.MaintenanceFlags, f) {
			return Maintenance, true
		}
	}

	// Timestamp tie-break: unflagged inspection within the coincidence
	// window after an incident belongs to that incident.
	for _, other := range all {
		if other.Type != "incident" {
			continue
		}
		delta := ev.Time.Sub(other.Time)
		if delta >= 0 && delta <= p.CoincidenceWindow {
			return Incident, true
		}
	}

	return p.InspectionDefault, true
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
