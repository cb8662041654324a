package snapshot

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// GenConfig controls synthetic snapshot generation. Identical config
// produces an identical set of raw records (fixed seed), which is what the
// determinism tests lean on.
type GenConfig struct {
	Path      string
	State     string
	Year      int
	Vehicles  int
	Seed      int64
	Malformed int // deliberately broken rows appended after the fleet
}

var genMakes = []string{"TOYOTA", "FORD", "HONDA", "CHEVROLET", "NISSAN"}

var genZIPs = []Demographic{
	{ZIP: "90001", MedianIncome: 45000, PovertyRate: 0.22, MinorityPct: 0.85},
	{ZIP: "90011", MedianIncome: 38000, PovertyRate: 0.28, MinorityPct: 0.92},
	{ZIP: "90210", MedianIncome: 125000, PovertyRate: 0.05, MinorityPct: 0.25},
	{ZIP: "94102", MedianIncome: 85000, PovertyRate: 0.12, MinorityPct: 0.45},
	{ZIP: "95123", MedianIncome: 72000, PovertyRate: 0.15, MinorityPct: 0.38},
}

// SnapshotID derives the deterministic identifier for a generated snapshot.
func (cfg GenConfig) SnapshotID() string {
	return fmt.Sprintf("snap-%s-%d-s%d-n%d", strings.ToLower(cfg.State), cfg.Year, cfg.Seed, cfg.Vehicles)
}

// Generate writes a synthetic snapshot database to cfg.Path and returns its
// Info. Record dates are windowed by month so each vehicle's event order is
// stable regardless of draw order.
func Generate(cfg GenConfig) (Info, error) {
	if cfg.Vehicles <= 0 {
		return Info{}, fmt.Errorf("vehicle count must be positive, got %d", cfg.Vehicles)
	}
	store, err := Create(cfg.Path)
	if err != nil {
		return Info{}, err
	}
	defer store.Close()

	rng := rand.New(rand.NewSource(cfg.Seed))

	tx, err := store.Begin()
	if err != nil {
		return Info{}, fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	insert, err := tx.Prepare(`INSERT INTO raw_records (source, fields) VALUES (?, ?)`)
	if err != nil {
		return Info{}, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer insert.Close()

	count := 0
	add := func(source string, fields map[string]any) error {
		blob, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to encode %s fields: %w", source, err)
		}
		if _, err := insert.Exec(source, string(blob)); err != nil {
			return fmt.Errorf("failed to insert %s record: %w", source, err)
		}
		count++
		return nil
	}

	day := func(month int) string {
		return fmt.Sprintf("%04d-%02d-%02d", cfg.Year, month, 1+rng.Intn(28))
	}

	for i := 0; i < cfg.Vehicles; i++ {
		vin := fmt.Sprintf("%s%08d", cfg.State, i)
		mk := genMakes[rng.Intn(len(genMakes))]
		modelYearSpan := cfg.Year - 2000
		if modelYearSpan < 1 {
			modelYearSpan = 1
		}
		modelYear := 2000 + rng.Intn(modelYearSpan)
		odometer := 10000 + rng.Intn(190000)
		zip := genZIPs[rng.Intn(len(genZIPs))].ZIP

		err := add("registration", map[string]any{
			"vin":        vin,
			"state":      cfg.State,
			"reg_year":   cfg.Year,
			"make":       mk,
			"model_year": modelYear,
			"odometer":   odometer,
			"zip_code":   zip,
			"date":       day(1 + rng.Intn(3)),
		})
		if err != nil {
			return Info{}, err
		}

		if err := add("usage", map[string]any{
			"vin":          vin,
			"reading_date": day(4),
			"odometer":     odometer + rng.Intn(6000),
		}); err != nil {
			return Info{}, err
		}

		if rng.Float64() < 0.5 {
			services := []string{"oil_change", "brakes", "tires"}
			if err := add("maintenance", map[string]any{
				"vin":          vin,
				"service_date": day(5 + rng.Intn(2)),
				"service_type": services[rng.Intn(len(services))],
			}); err != nil {
				return Info{}, err
			}
		}

		if rng.Float64() < 0.6 {
			flags := []string{"routine"}
			result := "pass"
			if rng.Float64() < 0.25 {
				flags = []string{"failed"}
				result = "fail"
			}
			if err := add("inspection", map[string]any{
				"vehicle_vin":     vin,
				"inspection_date": day(7 + rng.Intn(2)),
				"result":          result,
				"flags":           flags,
				"mileage":         odometer + rng.Intn(9000),
			}); err != nil {
				return Info{}, err
			}
		}

		if rng.Float64() < 0.3 {
			if err := add("incident", map[string]any{
				"vehicle_vin": vin,
				"crash_date":  day(9),
				"severity":    1 + rng.Intn(5),
				"risk_factor": 1 + rng.Float64()*9,
			}); err != nil {
				return Info{}, err
			}
		}

		if cfg.Year-modelYear > 15 && rng.Float64() < 0.4 {
			if err := add("scrappage", map[string]any{
				"vin":    vin,
				"date":   day(11 + rng.Intn(2)),
				"reason": "scrapped",
			}); err != nil {
				return Info{}, err
			}
		}
	}

	for i := 0; i < cfg.Malformed; i++ {
		if i%2 == 0 {
			// no vehicle identifier under any known alias
			if err := add("registration", map[string]any{
				"state": cfg.State,
				"date":  day(2),
			}); err != nil {
				return Info{}, err
			}
		} else {
			if err := add("incident", map[string]any{
				"vehicle_vin": fmt.Sprintf("%s%08d", cfg.State, i%cfg.Vehicles),
				"crash_date":  "not-a-date",
				"severity":    3,
			}); err != nil {
				return Info{}, err
			}
		}
	}

	for _, d := range genZIPs {
		_, err := tx.Exec(`INSERT OR REPLACE INTO zip_demographics (zip, median_income, poverty_rate, minority_pct) VALUES (?, ?, ?, ?)`,
			d.ZIP, d.MedianIncome, d.PovertyRate, d.MinorityPct)
		if err != nil {
			return Info{}, fmt.Errorf("failed to insert demographics: %w", err)
		}
	}

	info := Info{
		SnapshotID:  cfg.SnapshotID(),
		State:       cfg.State,
		Year:        cfg.Year,
		Source:      "synthetic",
		RecordCount: count,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	_, err = tx.Exec(`INSERT OR REPLACE INTO snapshot_info (snapshot_id, state, year, source, record_count, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		info.SnapshotID, info.State, info.Year, info.Source, info.RecordCount, info.CreatedAt)
	if err != nil {
		return Info{}, fmt.Errorf("failed to insert snapshot info: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Info{}, fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return info, nil
}
