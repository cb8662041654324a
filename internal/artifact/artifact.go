// Package artifact defines the versioned run artifact, its canonical
// byte serialization, and the sqlite store enforcing the write-once
// contract per (state, year, model version).
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/banshee-data/lifecycle.report/internal/cohort"
	"github.com/banshee-data/lifecycle.report/internal/emissions"
	"github.com/banshee-data/lifecycle.report/internal/equity"
	"github.com/banshee-data/lifecycle.report/internal/scoring"
	"github.com/banshee-data/lifecycle.report/internal/survival"
)

// SchemaVersion identifies the artifact wire format. Bump it when the
// canonical layout changes shape.
const SchemaVersion = "lifecycle.report/artifact@v1"

// Tallies accounts for every record, event and contribution the pipeline
// set aside. The counters make data loss visible: anything dropped
// increments exactly one of them.
type Tallies struct {
	RecordsIn             int            `json:"records_in"`
	Rejected              map[string]int `json:"rejected,omitempty"`
	RejectedTotal         int            `json:"rejected_total"`
	EventsExcluded        int            `json:"events_excluded"`
	VehiclesExcluded      int            `json:"vehicles_excluded"`
	ContributionsExcluded int            `json:"contributions_excluded"`
}

// Provenance records what produced the artifact: the snapshot, the
// partition key, and the versions of every config object that shaped the
// numbers. Caps mirrors the scoring model's per-stage caps so a reader
// can see truncation without opening the model file. Run timestamps are
// deliberately absent; they live in the run record so canonical bytes
// stay identical across re-runs.
type Provenance struct {
	SnapshotID       string             `json:"snapshot_id"`
	State            string             `json:"state"`
	Year             int                `json:"year"`
	ModelVersion     string             `json:"model_version"`
	RulesetVersion   string             `json:"ruleset_version"`
	ClassifierPolicy string             `json:"classifier_policy"`
	Caps             map[string]float64 `json:"caps,omitempty"`
	Tallies          Tallies            `json:"tallies"`
}

// Artifact is the self-describing result of one pipeline run.
type Artifact struct {
	Schema     string                 `json:"schema"`
	Provenance Provenance             `json:"provenance"`
	Cohort     cohort.Summary         `json:"cohort"`
	Vehicles   []scoring.VehicleScore `json:"vehicles"`
	Survival   *survival.Report       `json:"survival,omitempty"`
	Emissions  *emissions.Report      `json:"emissions,omitempty"`
	Equity     *equity.Report         `json:"equity,omitempty"`
}

// New stamps the schema version onto a fresh artifact.
func New(p Provenance, c cohort.Summary, vehicles []scoring.VehicleScore) *Artifact {
	return &Artifact{
		Schema:     SchemaVersion,
		Provenance: p,
		Cohort:     c,
		Vehicles:   vehicles,
	}
}

// Canonical serializes the artifact to its canonical bytes: two-space
// indented JSON plus a trailing newline. Fixed struct order, pre-sorted
// slices and sorted map keys make the output a pure function of the
// artifact's content.
func Canonical(a *Artifact) ([]byte, error) {
	b, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal artifact: %w", err)
	}
	return append(b, '\n'), nil
}

// Digest returns the sha256 hex digest of the canonical bytes. Equal
// digests mean byte-identical artifacts.
func Digest(a *Artifact) (string, error) {
	b, err := Canonical(a)
	if err != nil {
		return "", err
	}
	return DigestBytes(b), nil
}

// DigestBytes hashes already-canonical bytes.
func DigestBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Decode parses canonical bytes back into an artifact, rejecting unknown
// schema versions.
func Decode(b []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal artifact: %w", err)
	}
	if a.Schema != SchemaVersion {
		return nil, fmt.Errorf("unsupported artifact schema %q (want %q)", a.Schema, SchemaVersion)
	}
	return &a, nil
}
