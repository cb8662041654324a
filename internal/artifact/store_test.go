package artifact

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), t.Name()+".db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenAppliesMigrations(t *testing.T) {
	s := openTestStore(t)

	migrations, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}
	version, dirty, err := s.MigrateVersion(migrations)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	latest, err := GetLatestMigrationVersion(migrations)
	if err != nil {
		t.Fatalf("GetLatestMigrationVersion failed: %v", err)
	}
	if version != latest {
		t.Errorf("Expected version %d after Open, got %d", latest, version)
	}
	if dirty {
		t.Error("Database should not be dirty after Open")
	}

	// Verify journal_mode is WAL
	var journalMode string
	if err := s.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("Expected journal_mode=wal, got %s", journalMode)
	}

	// Verify busy_timeout is 5000
	var busyTimeout int
	if err := s.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatalf("Failed to query busy_timeout: %v", err)
	}
	if busyTimeout != 5000 {
		t.Errorf("Expected busy_timeout=5000, got %d", busyTimeout)
	}
}

func TestMigrateDownAndBackUp(t *testing.T) {
	s := openTestStore(t)
	migrations, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}

	if err := s.MigrateDown(migrations); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	version, _, err := s.MigrateVersion(migrations)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 1 {
		t.Errorf("Expected version 1 after down, got %d", version)
	}

	if err := s.MigrateUp(migrations); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	version, _, _ = s.MigrateVersion(migrations)
	latest, _ := GetLatestMigrationVersion(migrations)
	if version != latest {
		t.Errorf("Expected version %d after up, got %d", latest, version)
	}
}

func TestSaveArtifactIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, created, err := s.SaveArtifact(ctx, testArtifact())
	if err != nil {
		t.Fatalf("SaveArtifact failed: %v", err)
	}
	if !created {
		t.Error("Expected first save to create a row")
	}

	// Same bytes again: no-op, same id.
	id2, created2, err := s.SaveArtifact(ctx, testArtifact())
	if err != nil {
		t.Fatalf("Second SaveArtifact failed: %v", err)
	}
	if created2 {
		t.Error("Expected identical re-save to be a no-op")
	}
	if id2 != id {
		t.Errorf("Expected same row id, got %d and %d", id, id2)
	}

	var count int
	if err := s.QueryRow("SELECT COUNT(*) FROM artifacts").Scan(&count); err != nil {
		t.Fatalf("Failed to count artifacts: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 artifact row, got %d", count)
	}
}

func TestSaveArtifactConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, _, err := s.SaveArtifact(ctx, testArtifact()); err != nil {
		t.Fatalf("SaveArtifact failed: %v", err)
	}

	changed := testArtifact()
	changed.Cohort.Mean = 99
	_, _, err := s.SaveArtifact(ctx, changed)
	if !errors.Is(err, ErrArtifactConflict) {
		t.Fatalf("Expected ErrArtifactConflict, got %v", err)
	}

	// The stored artifact is untouched.
	got, _, err := s.GetArtifact(ctx, "CA", 2023, "v1")
	if err != nil {
		t.Fatalf("GetArtifact failed: %v", err)
	}
	if got.Cohort.Mean != 5 {
		t.Errorf("Stored artifact changed after conflict: mean %v", got.Cohort.Mean)
	}
}

func TestSaveArtifactNewModelVersion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, _, err := s.SaveArtifact(ctx, testArtifact()); err != nil {
		t.Fatalf("SaveArtifact failed: %v", err)
	}

	v2 := testArtifact()
	v2.Provenance.ModelVersion = "v2"
	v2.Cohort.Mean = 42
	if _, created, err := s.SaveArtifact(ctx, v2); err != nil || !created {
		t.Fatalf("Expected v2 artifact to create a new row, created=%v err=%v", created, err)
	}

	metas, err := s.ListArtifacts(ctx)
	if err != nil {
		t.Fatalf("ListArtifacts failed: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("Expected 2 artifacts, got %d", len(metas))
	}
	if metas[0].ModelVersion != "v1" || metas[1].ModelVersion != "v2" {
		t.Errorf("Expected key ordering v1, v2; got %s, %s", metas[0].ModelVersion, metas[1].ModelVersion)
	}

	latest, err := s.LatestModelVersion(ctx, "CA", 2023)
	if err != nil {
		t.Fatalf("LatestModelVersion failed: %v", err)
	}
	if latest != "v2" {
		t.Errorf("Expected latest model version v2, got %s", latest)
	}
}

func TestGetArtifactNotFound(t *testing.T) {
	s := openTestStore(t)
	_, _, err := s.GetArtifact(context.Background(), "WY", 1999, "v1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := s.LatestModelVersion(context.Background(), "WY", 1999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestGetArtifactBytesMatchDigest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := testArtifact()
	want, err := Digest(a)
	if err != nil {
		t.Fatalf("Digest failed: %v", err)
	}
	if _, _, err := s.SaveArtifact(ctx, a); err != nil {
		t.Fatalf("SaveArtifact failed: %v", err)
	}

	body, meta, err := s.GetArtifactBytes(ctx, "CA", 2023, "v1")
	if err != nil {
		t.Fatalf("GetArtifactBytes failed: %v", err)
	}
	if meta.Digest != want {
		t.Errorf("Stored digest %s does not match %s", meta.Digest, want)
	}
	if DigestBytes(body) != want {
		t.Error("Stored bytes do not hash to the stored digest")
	}
}

func TestRunLocks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AcquireRunLock(ctx, "CA", 2023, "run-1"); err != nil {
		t.Fatalf("AcquireRunLock failed: %v", err)
	}

	err := s.AcquireRunLock(ctx, "CA", 2023, "run-2")
	if !errors.Is(err, ErrRunInFlight) {
		t.Fatalf("Expected ErrRunInFlight, got %v", err)
	}

	// A different key is unaffected.
	if err := s.AcquireRunLock(ctx, "CA", 2022, "run-3"); err != nil {
		t.Fatalf("AcquireRunLock for other key failed: %v", err)
	}

	locks, err := s.Locks(ctx)
	if err != nil {
		t.Fatalf("Locks failed: %v", err)
	}
	if len(locks) != 2 {
		t.Fatalf("Expected 2 locks, got %d", len(locks))
	}
	if locks[0].Year != 2022 || locks[1].Year != 2023 {
		t.Errorf("Expected locks ordered by key, got %v", locks)
	}

	if err := s.ReleaseRunLock(ctx, "CA", 2023, "run-1"); err != nil {
		t.Fatalf("ReleaseRunLock failed: %v", err)
	}
	if err := s.AcquireRunLock(ctx, "CA", 2023, "run-4"); err != nil {
		t.Errorf("Expected lock to be free after release, got %v", err)
	}
}

func TestReleaseRunLockWrongHolder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AcquireRunLock(ctx, "CA", 2023, "run-1"); err != nil {
		t.Fatalf("AcquireRunLock failed: %v", err)
	}
	// Releasing with the wrong run id leaves the lock held.
	if err := s.ReleaseRunLock(ctx, "CA", 2023, "run-9"); err != nil {
		t.Fatalf("ReleaseRunLock failed: %v", err)
	}
	if err := s.AcquireRunLock(ctx, "CA", 2023, "run-2"); !errors.Is(err, ErrRunInFlight) {
		t.Errorf("Expected lock still held, got %v", err)
	}
}

func TestBreakRunLock(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	holder, err := s.BreakRunLock(ctx, "CA", 2023)
	if err != nil {
		t.Fatalf("BreakRunLock failed: %v", err)
	}
	if holder != "" {
		t.Errorf("Expected no holder for unheld lock, got %s", holder)
	}

	if err := s.AcquireRunLock(ctx, "CA", 2023, "run-stale"); err != nil {
		t.Fatalf("AcquireRunLock failed: %v", err)
	}
	holder, err = s.BreakRunLock(ctx, "CA", 2023)
	if err != nil {
		t.Fatalf("BreakRunLock failed: %v", err)
	}
	if holder != "run-stale" {
		t.Errorf("Expected holder run-stale, got %s", holder)
	}
	if err := s.AcquireRunLock(ctx, "CA", 2023, "run-new"); err != nil {
		t.Errorf("Expected lock free after break, got %v", err)
	}
}

func TestRunRecords(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	run := Run{
		RunID:        "run-abc",
		State:        "CA",
		Year:         2023,
		ModelVersion: "v1",
		Stage:        "idle",
		StartedAt:    started,
	}
	if err := s.RecordRunStart(ctx, run); err != nil {
		t.Fatalf("RecordRunStart failed: %v", err)
	}

	got, err := s.GetRun(ctx, "run-abc")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != RunStatusRunning {
		t.Errorf("Expected status running, got %s", got.Status)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("Expected started %v, got %v", started, got.StartedAt)
	}

	run.Status = RunStatusDone
	run.Stage = "done"
	run.FinishedAt = started.Add(3 * time.Second)
	run.ArtifactID = 7
	if err := s.RecordRunEnd(ctx, run); err != nil {
		t.Fatalf("RecordRunEnd failed: %v", err)
	}

	got, err = s.GetRun(ctx, "run-abc")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != RunStatusDone || got.Stage != "done" || got.ArtifactID != 7 {
		t.Errorf("Run end not recorded: %+v", got)
	}

	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "run-abc" {
		t.Errorf("Expected one run run-abc, got %+v", runs)
	}
}
