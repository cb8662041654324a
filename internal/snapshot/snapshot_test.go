package snapshot

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func genTestSnapshot(t *testing.T, cfg GenConfig) (Info, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), t.Name()+".db")
	cfg.Path = path
	info, err := Generate(cfg)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return info, path
}

func TestGenerateAndRead(t *testing.T) {
	cfg := GenConfig{State: "CA", Year: 2023, Vehicles: 20, Seed: 42, Malformed: 2}
	info, path := genTestSnapshot(t, cfg)

	if info.SnapshotID != "snap-ca-2023-s42-n20" {
		t.Errorf("unexpected snapshot id %q", info.SnapshotID)
	}
	if info.State != "CA" || info.Year != 2023 {
		t.Errorf("unexpected info %+v", info)
	}

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	got, err := store.Info(ctx)
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if diff := cmp.Diff(info, got); diff != "" {
		t.Errorf("Info mismatch (-want +got):\n%s", diff)
	}

	recs, err := store.RawRecords(ctx)
	if err != nil {
		t.Fatalf("RawRecords failed: %v", err)
	}
	if len(recs) != info.RecordCount {
		t.Errorf("got %d records, info says %d", len(recs), info.RecordCount)
	}
	// every vehicle has at least registration + usage, plus the malformed rows
	if len(recs) < 2*cfg.Vehicles+cfg.Malformed {
		t.Errorf("got %d records, want at least %d", len(recs), 2*cfg.Vehicles+cfg.Malformed)
	}
	for i := 1; i < len(recs); i++ {
		if recs[i-1].ID >= recs[i].ID {
			t.Fatalf("records not ordered by id at %d", i)
		}
	}

	demo, err := store.Demographics(ctx)
	if err != nil {
		t.Fatalf("Demographics failed: %v", err)
	}
	if len(demo) != 5 {
		t.Errorf("got %d demographics rows, want 5", len(demo))
	}
	if d := demo["90210"]; d.MedianIncome != 125000 {
		t.Errorf("90210 median income = %v, want 125000", d.MedianIncome)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	cfg := GenConfig{State: "CA", Year: 2023, Vehicles: 15, Seed: 7}
	_, pathA := genTestSnapshot(t, cfg)
	_, pathB := genTestSnapshot(t, cfg)

	readAll := func(path string) []RawRecord {
		store, err := Open(path)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer store.Close()
		recs, err := store.RawRecords(context.Background())
		if err != nil {
			t.Fatalf("RawRecords failed: %v", err)
		}
		return recs
	}

	if diff := cmp.Diff(readAll(pathA), readAll(pathB)); diff != "" {
		t.Errorf("same seed produced different snapshots (-a +b):\n%s", diff)
	}
}

func TestRawRecordsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	store, err := Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer store.Close()

	if _, err := store.RawRecords(context.Background()); err != ErrNoRecords {
		t.Errorf("RawRecords on empty snapshot = %v, want ErrNoRecords", err)
	}
}

func TestGenerateRejectsBadConfig(t *testing.T) {
	_, err := Generate(GenConfig{Path: filepath.Join(t.TempDir(), "x.db"), State: "CA", Year: 2023, Vehicles: 0})
	if err == nil {
		t.Fatal("Generate with zero vehicles should fail")
	}
}
