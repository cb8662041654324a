package artifact

import (
	"bytes"
	"strings"
	"testing"

	"github.com/banshee-data/lifecycle.report/internal/cohort"
	"github.com/banshee-data/lifecycle.report/internal/scoring"
)

func testArtifact() *Artifact {
	p := Provenance{
		SnapshotID:       "snap-ca-2023-s42-n20",
		State:            "CA",
		Year:             2023,
		ModelVersion:     "v1",
		RulesetVersion:   "r1",
		ClassifierPolicy: "p1",
		Tallies: Tallies{
			RecordsIn:     3,
			Rejected:      map[string]int{"bad_timestamp": 1},
			RejectedTotal: 1,
		},
	}
	sum := cohort.Summary{
		State:    "CA",
		Year:     2023,
		Vehicles: 2,
		Mean:     5,
		Median:   3,
		P90:      7,
		P99:      7,
		Levels:   map[string]int{"low": 2},
		TopRisk:  []cohort.VehicleRank{{Rank: 1, VIN: "CA00000002", Score: 7, Level: "low"}},
	}
	vehicles := []scoring.VehicleScore{
		{VIN: "CA00000001", Total: 3, Level: "low", MakeFactor: 1},
		{VIN: "CA00000002", Total: 7, Level: "low", MakeFactor: 1},
	}
	return New(p, sum, vehicles)
}

func TestCanonicalDeterministic(t *testing.T) {
	a := testArtifact()
	b := testArtifact()

	ab, err := Canonical(a)
	if err != nil {
		t.Fatalf("Canonical failed: %v", err)
	}
	bb, err := Canonical(b)
	if err != nil {
		t.Fatalf("Canonical failed: %v", err)
	}
	if !bytes.Equal(ab, bb) {
		t.Error("Canonical bytes differ for identical artifacts")
	}
	if !bytes.HasSuffix(ab, []byte("}\n")) {
		t.Error("Canonical output should end with a trailing newline")
	}
	if !strings.Contains(string(ab), `"schema": "lifecycle.report/artifact@v1"`) {
		t.Error("Canonical output missing schema field")
	}

	da, err := Digest(a)
	if err != nil {
		t.Fatalf("Digest failed: %v", err)
	}
	db, err := Digest(b)
	if err != nil {
		t.Fatalf("Digest failed: %v", err)
	}
	if da != db {
		t.Errorf("Digests differ: %s vs %s", da, db)
	}
	if len(da) != 64 {
		t.Errorf("Expected sha256 hex digest (64 chars), got %d", len(da))
	}
}

func TestCanonicalChangesWithContent(t *testing.T) {
	a := testArtifact()
	b := testArtifact()
	b.Cohort.Mean = 6

	da, _ := Digest(a)
	db, _ := Digest(b)
	if da == db {
		t.Error("Digest should change when artifact content changes")
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	a := testArtifact()
	raw, err := Canonical(a)
	if err != nil {
		t.Fatalf("Canonical failed: %v", err)
	}

	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.Provenance.SnapshotID != a.Provenance.SnapshotID {
		t.Errorf("Expected snapshot id %s, got %s", a.Provenance.SnapshotID, got.Provenance.SnapshotID)
	}
	if len(got.Vehicles) != 2 {
		t.Errorf("Expected 2 vehicles, got %d", len(got.Vehicles))
	}

	// Re-encoding a decoded artifact reproduces the bytes.
	again, err := Canonical(got)
	if err != nil {
		t.Fatalf("Canonical failed: %v", err)
	}
	if !bytes.Equal(raw, again) {
		t.Error("Decode/Canonical round trip altered the bytes")
	}
}

func TestDecodeRejectsUnknownSchema(t *testing.T) {
	if _, err := Decode([]byte(`{"schema":"lifecycle.report/artifact@v99"}`)); err == nil {
		t.Error("Expected error for unknown schema version")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Error("Expected error for malformed bytes")
	}
}
