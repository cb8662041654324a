// Package snapshot reads the versioned input databases the pipeline runs
// against. A snapshot is a plain sqlite file identified by its snapshot_id;
// runs open it read-only so the determinism contract cannot be violated by
// accident.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "embed"

	_ "modernc.org/sqlite"
)

// ErrNoRecords is returned when a snapshot holds no raw records at all.
var ErrNoRecords = errors.New("snapshot contains no raw records")

//go:embed schema.sql
var schemaSQL string

// Info describes a snapshot. Recorded verbatim into artifact provenance.
type Info struct {
	SnapshotID  string `json:"snapshot_id"`
	State       string `json:"state"`
	Year        int    `json:"year"`
	Source      string `json:"source"`
	RecordCount int    `json:"record_count"`
	CreatedAt   string `json:"created_at"`
}

// RawRecord is one heterogeneous source row. Fields carries the decoded
// JSON object; key names vary by source system.
type RawRecord struct {
	ID     int64          `json:"id"`
	Source string         `json:"source"`
	Fields map[string]any `json:"fields"`
}

// Demographic is the ZIP-level census data joined by the equity report.
type Demographic struct {
	ZIP          string  `json:"zip"`
	MedianIncome float64 `json:"median_income"`
	PovertyRate  float64 `json:"poverty_rate"`
	MinorityPct  float64 `json:"minority_pct"`
}

// Store wraps a snapshot database.
type Store struct {
	*sql.DB
}

// Open opens an existing snapshot read-only.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot %s: %w", path, err)
	}
	return &Store{db}, nil
}

// Create opens (or creates) a snapshot database read-write and applies the
// schema. Used by the generator and by tests; the pipeline itself never
// calls this.
func Create(path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot %s: %w", path, err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply snapshot schema: %w", err)
	}
	return &Store{db}, nil
}

// Info returns the snapshot descriptor row.
func (s *Store) Info(ctx context.Context) (Info, error) {
	var info Info
	err := s.QueryRowContext(ctx, `
		SELECT snapshot_id, state, year, source, record_count, created_at
		FROM snapshot_info LIMIT 1
	`).Scan(&info.SnapshotID, &info.State, &info.Year, &info.Source, &info.RecordCount, &info.CreatedAt)
	if err == sql.ErrNoRows {
		return Info{}, fmt.Errorf("snapshot has no snapshot_info row: %w", ErrNoRecords)
	}
	if err != nil {
		return Info{}, fmt.Errorf("failed to read snapshot info: %w", err)
	}
	return info, nil
}

// RawRecords returns every raw row ordered by id, with fields decoded.
// Rows whose fields column is not valid JSON come back with a nil Fields
// map; the normalizer rejects those rather than this layer guessing.
func (s *Store) RawRecords(ctx context.Context) ([]RawRecord, error) {
	rows, err := s.QueryContext(ctx, `SELECT id, source, fields FROM raw_records ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw records: %w", err)
	}
	defer rows.Close()

	var recs []RawRecord
	for rows.Next() {
		var rec RawRecord
		var fields string
		if err := rows.Scan(&rec.ID, &rec.Source, &fields); err != nil {
			return nil, fmt.Errorf("failed to scan raw record: %w", err)
		}
		if err := json.Unmarshal([]byte(fields), &rec.Fields); err != nil {
			rec.Fields = nil
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate raw records: %w", err)
	}
	if len(recs) == 0 {
		return nil, ErrNoRecords
	}
	return recs, nil
}

// Demographics returns the ZIP demographics keyed by ZIP code.
func (s *Store) Demographics(ctx context.Context) (map[string]Demographic, error) {
	rows, err := s.QueryContext(ctx, `SELECT zip, median_income, poverty_rate, minority_pct FROM zip_demographics`)
	if err != nil {
		return nil, fmt.Errorf("failed to query demographics: %w", err)
	}
	defer rows.Close()

	demo := make(map[string]Demographic)
	for rows.Next() {
		var d Demographic
		if err := rows.Scan(&d.ZIP, &d.MedianIncome, &d.PovertyRate, &d.MinorityPct); err != nil {
			return nil, fmt.Errorf("failed to scan demographic: %w", err)
		}
		demo[d.ZIP] = d
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate demographics: %w", err)
	}
	return demo, nil
}
