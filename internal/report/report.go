// Package report renders a scored artifact into its human-facing
// outputs: the fixed-layout regulatory text report, CSV exports, a
// score distribution PNG, and an HTML dashboard. Every renderer is a
// pure function of the artifact, so the bundle bytes are reproducible
// from the stored artifact alone.
package report

// Recommended action tiers for the priority list, keyed off the risk
// level the scoring model assigned.
const (
	ActionUrgent   = "URGENT"
	ActionPriority = "PRIORITY"
	ActionRoutine  = "ROUTINE"
)

// Action maps a risk level onto its recommended action tier. Critical
// vehicles are urgent, high are priority, everything else is routine.
func Action(level string) string {
	switch level {
	case "critical":
		return ActionUrgent
	case "high":
		return ActionPriority
	default:
		return ActionRoutine
	}
}

// levelOrder fixes the display order for level tallies so rendered
// output never depends on map iteration.
var levelOrder = []string{"low", "medium", "high", "critical"}
