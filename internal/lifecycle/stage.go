// Package lifecycle assigns canonical vehicle events to lifecycle stages.
// Stage assignment is a pure function of event type, payload flags and
// timestamp ordering; the ambiguity rules live in a versioned Policy so
// they are swappable and show up in artifact provenance.
package lifecycle

import (
	"encoding/json"
	"fmt"
)

// Stage is one of the fixed lifecycle stages. The numeric order is the
// canonical lifecycle order and drives the stage-sequence invariant.
type Stage int

const (
	Manufacture Stage = iota
	Registration
	ActiveUse
	Maintenance
	Incident
	Retirement
)

var stageNames = [...]string{
	Manufacture:  "manufacture",
	Registration: "registration",
	ActiveUse:    "active_use",
	Maintenance:  "maintenance",
	Incident:     "incident",
	Retirement:   "retirement",
}

// String returns the wire name of the stage.
func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// ParseStage resolves a wire name back to a Stage.
func ParseStage(name string) (Stage, error) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("unknown lifecycle stage %q", name)
}

// Stages returns all stages in lifecycle order.
func Stages() []Stage {
	return []Stage{Manufacture, Registration, ActiveUse, Maintenance, Incident, Retirement}
}

// MarshalJSON encodes stages by wire name so artifacts stay self-describing.
func (s Stage) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a wire name.
func (s *Stage) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStage(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// phase groups stages for the ordering invariant: manufacture precedes
// registration, which precedes the in-service stages (active use,
// maintenance and incident interleave freely), which precede retirement.
func phase(s Stage) int {
	switch s {
	case Manufacture:
		return 0
	case Registration:
		return 1
	case ActiveUse, Maintenance, Incident:
		return 2
	case Retirement:
		return 3
	default:
		return -1
	}
}
