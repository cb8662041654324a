package report

import (
	"bytes"
	"testing"
)

func TestRegulatoryContent(t *testing.T) {
	out := Regulatory(testArtifact())

	wantLines := []string{
		"VEHICLE LIFECYCLE RISK REPORT",
		"Cohort:             CA 2023",
		"Snapshot:           snap-CA-2023-s7-n100",
		"Model version:      v1",
		"Stage caps:         active_use=10",
		"Vehicles scored     3",
		"Mean score          53.500",
		"Risk levels         low=1 medium=0 high=1 critical=1",
		"TOP RISK VEHICLES",
		"CA00000001",
		"URGENT",
		"PRIORITY",
		"ROUTINE",
		"SURVIVAL OUTLOOK",
		"Leakage estimate    15%",
		"EMISSIONS ESTIMATE",
		"Total CO2           10200.000 kg",
		"EQUITY IMPACT",
		"Flagged ZIP codes   1",
		"PROCESSING TALLIES",
		"Records rejected        3",
		"Contributions excluded  2",
	}
	for _, want := range wantLines {
		if !bytes.Contains(out, []byte(want)) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestRegulatoryRejectionReasonsSorted(t *testing.T) {
	out := Regulatory(testArtifact())

	first := bytes.Index(out, []byte("bad_model_year"))
	second := bytes.Index(out, []byte("missing_vin"))
	if first < 0 || second < 0 {
		t.Fatalf("rejection reasons missing from report")
	}
	if first > second {
		t.Errorf("rejection reasons not sorted: bad_model_year at %d, missing_vin at %d", first, second)
	}
}

func TestRegulatoryDeterministic(t *testing.T) {
	a := testArtifact()
	first := Regulatory(a)
	second := Regulatory(a)
	if !bytes.Equal(first, second) {
		t.Error("repeated renders produced different bytes")
	}
}

func TestRegulatoryOmitsMissingSections(t *testing.T) {
	a := testArtifact()
	a.Survival = nil
	a.Emissions = nil
	a.Equity = nil
	out := Regulatory(a)

	for _, section := range []string{"SURVIVAL OUTLOOK", "EMISSIONS ESTIMATE", "EQUITY IMPACT"} {
		if bytes.Contains(out, []byte(section)) {
			t.Errorf("report contains %q for an artifact without that section", section)
		}
	}
	if !bytes.Contains(out, []byte("COHORT STATISTICS")) {
		t.Error("cohort section missing")
	}
	if !bytes.Contains(out, []byte("PROCESSING TALLIES")) {
		t.Error("tallies section missing")
	}
}
