package lifecycle

import (
	"encoding/json"
	"testing"
)

func TestStageString(t *testing.T) {
	cases := map[Stage]string{
		Manufacture:  "manufacture",
		Registration: "registration",
		ActiveUse:    "active_use",
		Maintenance:  "maintenance",
		Incident:     "incident",
		Retirement:   "retirement",
	}
	for stage, want := range cases {
		if got := stage.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(stage), got, want)
		}
	}
	if got := Stage(99).String(); got != "stage(99)" {
		t.Errorf("out-of-range stage String() = %q", got)
	}
}

func TestParseStage(t *testing.T) {
	for _, stage := range Stages() {
		parsed, err := ParseStage(stage.String())
		if err != nil {
			t.Fatalf("ParseStage(%q) failed: %v", stage.String(), err)
		}
		if parsed != stage {
			t.Errorf("ParseStage(%q) = %v, want %v", stage.String(), parsed, stage)
		}
	}
	if _, err := ParseStage("warranty"); err == nil {
		t.Error("ParseStage should reject unknown names")
	}
}

func TestStageJSONRoundTrip(t *testing.T) {
	blob, err := json.Marshal(Incident)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(blob) != `"incident"` {
		t.Errorf("marshalled stage = %s, want \"incident\"", blob)
	}

	var s Stage
	if err := json.Unmarshal([]byte(`"retirement"`), &s); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if s != Retirement {
		t.Errorf("unmarshalled stage = %v, want Retirement", s)
	}

	if err := json.Unmarshal([]byte(`"warranty"`), &s); err == nil {
		t.Error("unmarshal should reject unknown stage names")
	}
}

func TestPhaseOrdering(t *testing.T) {
	if phase(Manufacture) >= phase(Registration) {
		t.Error("manufacture should precede registration")
	}
	if phase(Registration) >= phase(ActiveUse) {
		t.Error("registration should precede in-service stages")
	}
	if phase(ActiveUse) != phase(Maintenance) || phase(Maintenance) != phase(Incident) {
		t.Error("in-service stages should share a phase")
	}
	if phase(Incident) >= phase(Retirement) {
		t.Error("in-service stages should precede retirement")
	}
}
