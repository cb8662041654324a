package artifact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrArtifactConflict means the (state, year, model version) key
	// already holds an artifact with different canonical bytes. Stored
	// artifacts are never overwritten.
	ErrArtifactConflict = errors.New("artifact already exists with different digest")

	// ErrRunInFlight means another run holds the lock for the key.
	ErrRunInFlight = errors.New("run already in flight")

	// ErrNotFound means no artifact is stored under the key.
	ErrNotFound = errors.New("artifact not found")
)

// Store wraps the artifact database.
type Store struct {
	*sql.DB
}

// Open opens (creating if needed) an artifact store and brings its schema
// up to date. WAL mode and a busy timeout keep concurrent CLI invocations
// from tripping over each other.
func Open(path string) (*Store, error) {
	s, err := openUnmigrated(path)
	if err != nil {
		return nil, err
	}
	migrations, err := getMigrationsFS()
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := s.MigrateUp(migrations); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// openUnmigrated opens the database without touching its schema, for the
// migrate CLI.
func openUnmigrated(path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact store: %w", err)
	}
	return &Store{db}, nil
}

// Meta is the stored artifact's row metadata.
type Meta struct {
	ID           int64     `json:"id"`
	State        string    `json:"state"`
	Year         int       `json:"year"`
	ModelVersion string    `json:"model_version"`
	Digest       string    `json:"digest"`
	CreatedAt    time.Time `json:"created_at"`
}

// SaveArtifact stores the artifact under its (state, year, model version)
// key. Saving the same bytes again is an idempotent no-op returning the
// existing row id; different bytes under a held key return
// ErrArtifactConflict. The write commits or rolls back as one
// transaction.
func (s *Store) SaveArtifact(ctx context.Context, a *Artifact) (id int64, created bool, err error) {
	body, err := Canonical(a)
	if err != nil {
		return 0, false, err
	}
	digest := DigestBytes(body)
	p := a.Provenance

	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("failed to rollback: %w", rbErr))
		}
	}()

	var existingID int64
	var existingDigest string
	row := tx.QueryRowContext(ctx,
		`SELECT id, digest FROM artifacts WHERE state = ? AND year = ? AND model_version = ?`,
		p.State, p.Year, p.ModelVersion)
	switch scanErr := row.Scan(&existingID, &existingDigest); {
	case scanErr == nil:
		if existingDigest == digest {
			return existingID, false, nil
		}
		return 0, false, fmt.Errorf("%w: %s/%d model %s has digest %s, run produced %s",
			ErrArtifactConflict, p.State, p.Year, p.ModelVersion, existingDigest, digest)
	case !errors.Is(scanErr, sql.ErrNoRows):
		return 0, false, fmt.Errorf("failed to query artifact: %w", scanErr)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO artifacts (state, year, model_version, digest, body, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.State, p.Year, p.ModelVersion, digest, body, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert artifact: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read artifact id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("failed to commit artifact: %w", err)
	}
	return id, true, nil
}

// GetArtifactBytes returns the stored canonical bytes and metadata for a
// key, or ErrNotFound.
func (s *Store) GetArtifactBytes(ctx context.Context, state string, year int, modelVersion string) ([]byte, Meta, error) {
	var m Meta
	var body []byte
	var createdAt string
	err := s.QueryRowContext(ctx,
		`SELECT id, state, year, model_version, digest, body, created_at
		 FROM artifacts WHERE state = ? AND year = ? AND model_version = ?`,
		state, year, modelVersion).
		Scan(&m.ID, &m.State, &m.Year, &m.ModelVersion, &m.Digest, &body, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Meta{}, fmt.Errorf("%w: %s/%d model %s", ErrNotFound, state, year, modelVersion)
	}
	if err != nil {
		return nil, Meta{}, fmt.Errorf("failed to query artifact: %w", err)
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return body, m, nil
}

// GetArtifact decodes the stored artifact for a key.
func (s *Store) GetArtifact(ctx context.Context, state string, year int, modelVersion string) (*Artifact, Meta, error) {
	body, m, err := s.GetArtifactBytes(ctx, state, year, modelVersion)
	if err != nil {
		return nil, Meta{}, err
	}
	a, err := Decode(body)
	if err != nil {
		return nil, Meta{}, err
	}
	return a, m, nil
}

// LatestModelVersion returns the model version of the most recently
// stored artifact for (state, year), or ErrNotFound.
func (s *Store) LatestModelVersion(ctx context.Context, state string, year int) (string, error) {
	var mv string
	err := s.QueryRowContext(ctx,
		`SELECT model_version FROM artifacts WHERE state = ? AND year = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		state, year).Scan(&mv)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s/%d", ErrNotFound, state, year)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query latest artifact: %w", err)
	}
	return mv, nil
}

// ListArtifacts returns metadata for every stored artifact, ordered by
// key.
func (s *Store) ListArtifacts(ctx context.Context) ([]Meta, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT id, state, year, model_version, digest, created_at
		 FROM artifacts ORDER BY state, year, model_version`)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var metas []Meta
	for rows.Next() {
		var m Meta
		var createdAt string
		if err := rows.Scan(&m.ID, &m.State, &m.Year, &m.ModelVersion, &m.Digest, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan artifact row: %w", err)
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// RunLock is one held (state, year) run lock.
type RunLock struct {
	State      string    `json:"state"`
	Year       int       `json:"year"`
	RunID      string    `json:"run_id"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// AcquireRunLock takes the single-flight lock for (state, year). A held
// lock fails fast with ErrRunInFlight naming the holder; the caller
// decides whether to wait, retry or clear a stale lock.
func (s *Store) AcquireRunLock(ctx context.Context, state string, year int, runID string) (err error) {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("failed to rollback: %w", rbErr))
		}
	}()

	var holder string
	row := tx.QueryRowContext(ctx,
		`SELECT run_id FROM run_locks WHERE state = ? AND year = ?`, state, year)
	switch scanErr := row.Scan(&holder); {
	case scanErr == nil:
		return fmt.Errorf("%w: %s/%d locked by run %s", ErrRunInFlight, state, year, holder)
	case !errors.Is(scanErr, sql.ErrNoRows):
		return fmt.Errorf("failed to query run lock: %w", scanErr)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO run_locks (state, year, run_id, acquired_at) VALUES (?, ?, ?, ?)`,
		state, year, runID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run lock: %w", err)
	}
	return nil
}

// ReleaseRunLock drops the lock if this run still holds it.
func (s *Store) ReleaseRunLock(ctx context.Context, state string, year int, runID string) error {
	_, err := s.ExecContext(ctx,
		`DELETE FROM run_locks WHERE state = ? AND year = ? AND run_id = ?`,
		state, year, runID)
	if err != nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	return nil
}

// BreakRunLock force-clears the lock regardless of holder, for stale
// locks left by crashed runs. Returns the previous holder's run id, empty
// when no lock was held.
func (s *Store) BreakRunLock(ctx context.Context, state string, year int) (string, error) {
	var holder string
	err := s.QueryRowContext(ctx,
		`SELECT run_id FROM run_locks WHERE state = ? AND year = ?`, state, year).Scan(&holder)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query run lock: %w", err)
	}
	if _, err := s.ExecContext(ctx,
		`DELETE FROM run_locks WHERE state = ? AND year = ?`, state, year); err != nil {
		return "", fmt.Errorf("failed to break run lock: %w", err)
	}
	return holder, nil
}

// Locks lists held run locks ordered by key.
func (s *Store) Locks(ctx context.Context) ([]RunLock, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT state, year, run_id, acquired_at FROM run_locks ORDER BY state, year`)
	if err != nil {
		return nil, fmt.Errorf("failed to list run locks: %w", err)
	}
	defer rows.Close()

	var locks []RunLock
	for rows.Next() {
		var l RunLock
		var acquiredAt string
		if err := rows.Scan(&l.State, &l.Year, &l.RunID, &acquiredAt); err != nil {
			return nil, fmt.Errorf("failed to scan run lock: %w", err)
		}
		l.AcquiredAt, _ = time.Parse(time.RFC3339, acquiredAt)
		locks = append(locks, l)
	}
	return locks, rows.Err()
}

// Run is one pipeline run record.
type Run struct {
	RunID        string    `json:"run_id"`
	State        string    `json:"state"`
	Year         int       `json:"year"`
	ModelVersion string    `json:"model_version"`
	Status       string    `json:"status"`
	Stage        string    `json:"stage"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
	ArtifactID   int64     `json:"artifact_id,omitempty"`
}

// Run status values.
const (
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// RecordRunStart inserts the run row in running state.
func (s *Store) RecordRunStart(ctx context.Context, r Run) error {
	_, err := s.ExecContext(ctx,
		`INSERT INTO runs (run_id, state, year, model_version, status, stage, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.State, r.Year, r.ModelVersion, RunStatusRunning, r.Stage,
		r.StartedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// RecordRunEnd finalizes the run row with its outcome.
func (s *Store) RecordRunEnd(ctx context.Context, r Run) error {
	_, err := s.ExecContext(ctx,
		`UPDATE runs SET status = ?, stage = ?, error = ?, finished_at = ?, artifact_id = ?
		 WHERE run_id = ?`,
		r.Status, r.Stage, r.Error, r.FinishedAt.UTC().Format(time.RFC3339), r.ArtifactID, r.RunID)
	if err != nil {
		return fmt.Errorf("failed to record run end: %w", err)
	}
	return nil
}

// GetRun returns one run row by id.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	var r Run
	var started, finished string
	var artifactID sql.NullInt64
	err := s.QueryRowContext(ctx,
		`SELECT run_id, state, year, model_version, status, stage, error, started_at, finished_at, artifact_id
		 FROM runs WHERE run_id = ?`, runID).
		Scan(&r.RunID, &r.State, &r.Year, &r.ModelVersion, &r.Status, &r.Stage, &r.Error,
			&started, &finished, &artifactID)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to query run: %w", err)
	}
	r.StartedAt, _ = time.Parse(time.RFC3339, started)
	r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
	r.ArtifactID = artifactID.Int64
	return r, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.QueryContext(ctx,
		`SELECT run_id, state, year, model_version, status, stage, error, started_at, finished_at, artifact_id
		 FROM runs ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		var artifactID sql.NullInt64
		if err := rows.Scan(&r.RunID, &r.State, &r.Year, &r.ModelVersion, &r.Status, &r.Stage,
			&r.Error, &started, &finished, &artifactID); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		r.ArtifactID = artifactID.Int64
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
