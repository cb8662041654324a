package pipeline

import (
	"encoding/json"
	"fmt"
)

// State is the orchestrator's position in the run lifecycle. Runs move
// strictly forward through the sequence; Failed is reachable from every
// non-terminal state.
type State int

// Run states in execution order. Done and Failed are terminal.
const (
	Idle State = iota
	Loading
	Normalizing
	Classifying
	Scoring
	Aggregating
	Writing
	Done
	Failed
)

var stateNames = [...]string{
	Idle:        "idle",
	Loading:     "loading",
	Normalizing: "normalizing",
	Classifying: "classifying",
	Scoring:     "scoring",
	Aggregating: "aggregating",
	Writing:     "writing",
	Done:        "done",
	Failed:      "failed",
}

func (s State) String() string {
	if s < Idle || s > Failed {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether the run can move no further.
func (s State) Terminal() bool {
	return s == Done || s == Failed
}

// ValidTransition reports whether from -> to is a legal move: one step
// forward along the sequence, or Failed from any non-terminal state.
func ValidTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == Failed {
		return true
	}
	return to == from+1 && to <= Done
}

// advance moves the machine or panics. An illegal transition is a
// programmer error, not a run failure.
func advance(cur *State, to State) {
	if !ValidTransition(*cur, to) {
		panic(fmt.Sprintf("pipeline: invalid transition %s -> %s", *cur, to))
	}
	*cur = to
}

// MarshalJSON encodes the state by name so run metadata stays readable.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
