package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteBundle(t *testing.T) {
	out := t.TempDir()

	body, err := Canonical(testArtifact())
	if err != nil {
		t.Fatalf("Canonical failed: %v", err)
	}
	digest := DigestBytes(body)
	files := []BundleFile{
		{Name: "artifact.json", Data: body},
		{Name: "regulatory_report.txt", Data: []byte("report\n")},
	}

	dir, err := WriteBundle(out, "run-1", "CA", 2023, "v1", digest, files)
	if err != nil {
		t.Fatalf("WriteBundle failed: %v", err)
	}
	if filepath.Base(dir) != "CA_2023_v1" {
		t.Errorf("Expected bundle dir CA_2023_v1, got %s", filepath.Base(dir))
	}

	got, err := os.ReadFile(filepath.Join(dir, "artifact.json"))
	if err != nil {
		t.Fatalf("Failed to read bundle artifact: %v", err)
	}
	if DigestBytes(got) != digest {
		t.Error("Bundle artifact bytes do not match digest")
	}
	if _, err := os.Stat(filepath.Join(dir, "regulatory_report.txt")); err != nil {
		t.Errorf("Expected regulatory report in bundle: %v", err)
	}

	// Staging directory is gone after the rename.
	if _, err := os.Stat(filepath.Join(out, ".tmp-run-1")); !os.IsNotExist(err) {
		t.Error("Staging directory left behind")
	}
}

func TestWriteBundleIdempotent(t *testing.T) {
	out := t.TempDir()

	body, _ := Canonical(testArtifact())
	digest := DigestBytes(body)
	files := []BundleFile{{Name: "artifact.json", Data: body}}

	if _, err := WriteBundle(out, "run-1", "CA", 2023, "v1", digest, files); err != nil {
		t.Fatalf("First WriteBundle failed: %v", err)
	}
	if _, err := WriteBundle(out, "run-2", "CA", 2023, "v1", digest, files); err != nil {
		t.Fatalf("Re-export of identical bundle failed: %v", err)
	}
}

func TestWriteBundleConflict(t *testing.T) {
	out := t.TempDir()

	body, _ := Canonical(testArtifact())
	if _, err := WriteBundle(out, "run-1", "CA", 2023, "v1", DigestBytes(body),
		[]BundleFile{{Name: "artifact.json", Data: body}}); err != nil {
		t.Fatalf("WriteBundle failed: %v", err)
	}

	changed := testArtifact()
	changed.Cohort.Mean = 99
	changedBody, _ := Canonical(changed)
	_, err := WriteBundle(out, "run-2", "CA", 2023, "v1", DigestBytes(changedBody),
		[]BundleFile{{Name: "artifact.json", Data: changedBody}})
	if !errors.Is(err, ErrArtifactConflict) {
		t.Fatalf("Expected ErrArtifactConflict, got %v", err)
	}

	// Original bundle is untouched.
	got, err := os.ReadFile(filepath.Join(out, "CA_2023_v1", "artifact.json"))
	if err != nil {
		t.Fatalf("Failed to read original bundle: %v", err)
	}
	if DigestBytes(got) != DigestBytes(body) {
		t.Error("Conflicting export altered the existing bundle")
	}
}
