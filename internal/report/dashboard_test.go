package report

import (
	"bytes"
	"testing"

	"github.com/banshee-data/lifecycle.report/internal/lifecycle"
	"github.com/banshee-data/lifecycle.report/internal/scoring"
)

func TestDashboardHTML(t *testing.T) {
	out, err := DashboardHTML(testArtifact())
	if err != nil {
		t.Fatalf("DashboardHTML failed: %v", err)
	}

	for _, want := range []string{
		histogramChartID,
		stageChartID,
		"Risk Score Distribution",
		"Risk by Lifecycle Stage",
		"active_use",
	} {
		if !bytes.Contains(out, []byte(want)) {
			t.Errorf("dashboard missing %q", want)
		}
	}
}

func TestDashboardHTMLDeterministic(t *testing.T) {
	a := testArtifact()
	first, err := DashboardHTML(a)
	if err != nil {
		t.Fatalf("first render failed: %v", err)
	}
	second, err := DashboardHTML(a)
	if err != nil {
		t.Fatalf("second render failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("repeated renders produced different bytes")
	}
}

func TestScoreBins(t *testing.T) {
	fleet := make([]scoring.VehicleScore, 16)
	for i := range fleet {
		fleet[i].Total = float64(i)
	}

	labels, counts := scoreBins(fleet, 16)
	if len(labels) != 16 || len(counts) != 16 {
		t.Fatalf("got %d labels and %d counts, want 16 each", len(labels), len(counts))
	}
	for i, c := range counts {
		if c != 1 {
			t.Errorf("bin %d count = %d, want 1", i, c)
		}
	}
	if labels[0] != "0.0-0.9" {
		t.Errorf("first label = %q, want 0.0-0.9", labels[0])
	}
}

func TestScoreBinsUniformScores(t *testing.T) {
	fleet := []scoring.VehicleScore{{Total: 5}, {Total: 5}, {Total: 5}}
	labels, counts := scoreBins(fleet, 16)
	if counts[0] != 3 {
		t.Errorf("first bin count = %d, want 3", counts[0])
	}
	if labels[0] != "5.0-6.0" {
		t.Errorf("first label = %q, want 5.0-6.0", labels[0])
	}
}

func TestScoreBinsEmpty(t *testing.T) {
	labels, counts := scoreBins(nil, 16)
	if labels != nil || counts != nil {
		t.Errorf("expected nil bins for empty fleet")
	}
}

func TestStageContributions(t *testing.T) {
	fleet := []scoring.VehicleScore{
		{Stages: []scoring.StageScore{
			{Stage: lifecycle.Incident, Capped: 5},
			{Stage: lifecycle.ActiveUse, Capped: 3},
		}},
		{Stages: []scoring.StageScore{
			{Stage: lifecycle.ActiveUse, Capped: 2},
		}},
	}

	data := stageContributions(fleet)
	if len(data) != 2 {
		t.Fatalf("got %d slices, want 2", len(data))
	}
	if data[0].Name != "active_use" || data[0].Value.(float64) != 5.0 {
		t.Errorf("first slice = %s %v, want active_use 5", data[0].Name, data[0].Value)
	}
	if data[1].Name != "incident" || data[1].Value.(float64) != 5.0 {
		t.Errorf("second slice = %s %v, want incident 5", data[1].Name, data[1].Value)
	}
}
