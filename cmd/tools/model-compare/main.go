// Package main provides a side-by-side comparison tool for risk models.
// It scores one snapshot under two model configurations and reports how
// cohort statistics, risk levels, and priority rankings shift, without
// touching the artifact store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"time"

	"github.com/banshee-data/lifecycle.report/internal/cohort"
	"github.com/banshee-data/lifecycle.report/internal/lifecycle"
	"github.com/banshee-data/lifecycle.report/internal/normalize"
	"github.com/banshee-data/lifecycle.report/internal/scoring"
	"github.com/banshee-data/lifecycle.report/internal/snapshot"
)

// Config holds configuration for the model comparison.
type Config struct {
	SnapshotPath string
	BaseModel    string
	CandModel    string
	TopN         int
	Verbose      bool
	OutputJSON   string
}

// ComparisonResult holds the results of scoring one snapshot under two
// models.
type ComparisonResult struct {
	SnapshotID       string                `json:"snapshot_id"`
	State            string                `json:"state"`
	Year             int                   `json:"year"`
	Vehicles         int                   `json:"vehicles"`
	ProcessingTimeMs int64                 `json:"processing_time_ms"`
	PerModel         map[string]ModelStats `json:"per_model"`
	MeanDelta        float64               `json:"mean_delta"`
	MaxAbsDelta      float64               `json:"max_abs_delta"`
	MaxDeltaVIN      string                `json:"max_delta_vin"`
	LevelChanges     map[string]int        `json:"level_changes"`
	RankShifts       []RankShift           `json:"rank_shifts,omitempty"`
}

// ModelStats holds per-model cohort statistics.
type ModelStats struct {
	Version string         `json:"version"`
	Mean    float64        `json:"mean"`
	Median  float64        `json:"median"`
	P90     float64        `json:"p90"`
	P99     float64        `json:"p99"`
	Levels  map[string]int `json:"levels"`
}

// RankShift records one vehicle whose priority ranking moved between
// models.
type RankShift struct {
	VIN       string  `json:"vin"`
	BaseRank  int     `json:"base_rank"`
	CandRank  int     `json:"cand_rank"`
	BaseScore float64 `json:"base_score"`
	CandScore float64 `json:"cand_score"`
}

func main() {
	cfg := parseFlags()

	if cfg.SnapshotPath == "" {
		log.Fatal("Snapshot path is required")
	}
	if cfg.CandModel == "" {
		log.Fatal("Candidate model is required (-cand)")
	}

	result, err := runComparison(cfg)
	if err != nil {
		log.Fatalf("Comparison failed: %v", err)
	}

	printResults(result)

	if cfg.OutputJSON != "" {
		if err := exportJSON(result, cfg.OutputJSON); err != nil {
			log.Printf("Warning: failed to export JSON: %v", err)
		} else {
			log.Printf("Results exported to: %s", cfg.OutputJSON)
		}
	}
}

func parseFlags() Config {
	cfg := Config{}

	flag.StringVar(&cfg.SnapshotPath, "snapshot", "", "Path to the snapshot database")
	flag.StringVar(&cfg.BaseModel, "base", "", "Baseline model YAML (defaults to the built-in model)")
	flag.StringVar(&cfg.CandModel, "cand", "", "Candidate model YAML")
	flag.IntVar(&cfg.TopN, "top", 10, "Priority list depth for rank comparison")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Report every rank shift, not just the priority list")
	flag.StringVar(&cfg.OutputJSON, "json", "", "Output JSON path (e.g., results.json)")

	flag.Parse()

	return cfg
}

func loadModel(path string) (scoring.Model, error) {
	if path == "" {
		return scoring.Default(), nil
	}
	return scoring.Load(path)
}

func runComparison(cfg Config) (*ComparisonResult, error) {
	base, err := loadModel(cfg.BaseModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline model: %w", err)
	}
	cand, err := loadModel(cfg.CandModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate model: %w", err)
	}
	if base.Version == cand.Version {
		log.Printf("Warning: both models report version %s", base.Version)
	}

	snaps, err := snapshot.Open(cfg.SnapshotPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer snaps.Close()

	ctx := context.Background()
	info, err := snaps.Info(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := snaps.RawRecords(ctx)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()

	// Normalization and classification are model-independent, so both
	// sides score the identical classified fleet.
	vehicles, rejections := normalize.Normalize(recs, info.State, info.Year, normalize.DefaultRuleset())
	if len(rejections) > 0 {
		log.Printf("%d records rejected during normalization", len(rejections))
	}

	policy := lifecycle.DefaultPolicy()
	classified := make([]lifecycle.Classified, 0, len(vehicles))
	for _, v := range vehicles {
		c, _ := lifecycle.Classify(v, policy)
		if len(c.Events) == 0 {
			continue
		}
		classified = append(classified, c)
	}
	if len(classified) == 0 {
		return nil, fmt.Errorf("no classifiable vehicles in snapshot %s", info.SnapshotID)
	}

	baseScores, baseSummary, err := scoreFleet(base, classified, info, cfg.TopN)
	if err != nil {
		return nil, err
	}
	candScores, candSummary, err := scoreFleet(cand, classified, info, cfg.TopN)
	if err != nil {
		return nil, err
	}

	result := &ComparisonResult{
		SnapshotID:       info.SnapshotID,
		State:            info.State,
		Year:             info.Year,
		Vehicles:         len(classified),
		ProcessingTimeMs: time.Since(startTime).Milliseconds(),
		PerModel: map[string]ModelStats{
			"base":      modelStats(base.Version, baseSummary),
			"candidate": modelStats(cand.Version, candSummary),
		},
		LevelChanges: map[string]int{},
	}

	// Both score slices are index-aligned with classified.
	var deltaSum float64
	for i := range classified {
		delta := candScores[i].Total - baseScores[i].Total
		deltaSum += delta
		if math.Abs(delta) > result.MaxAbsDelta {
			result.MaxAbsDelta = math.Abs(delta)
			result.MaxDeltaVIN = classified[i].VIN
		}
		if baseScores[i].Level != candScores[i].Level {
			key := baseScores[i].Level + "->" + candScores[i].Level
			result.LevelChanges[key]++
		}
	}
	result.MeanDelta = deltaSum / float64(len(classified))

	result.RankShifts = rankShifts(baseScores, candScores, cfg.TopN, cfg.Verbose)

	return result, nil
}

func scoreFleet(model scoring.Model, classified []lifecycle.Classified, info snapshot.Info, topN int) ([]scoring.VehicleScore, cohort.Summary, error) {
	engine, err := scoring.NewEngine(model)
	if err != nil {
		return nil, cohort.Summary{}, fmt.Errorf("invalid model %s: %w", model.Version, err)
	}

	scores := make([]scoring.VehicleScore, len(classified))
	for i, c := range classified {
		scores[i] = engine.Score(c)
	}

	summary, err := cohort.Summarize(info.State, info.Year, scores, topN)
	if err != nil {
		return nil, cohort.Summary{}, err
	}
	return scores, summary, nil
}

func modelStats(version string, s cohort.Summary) ModelStats {
	return ModelStats{
		Version: version,
		Mean:    s.Mean,
		Median:  s.Median,
		P90:     s.P90,
		P99:     s.P99,
		Levels:  s.Levels,
	}
}

// fullRank assigns 1-based priority ranks over the whole fleet, highest
// score first with VIN as the tiebreak.
func fullRank(scores []scoring.VehicleScore) map[string]int {
	order := make([]scoring.VehicleScore, len(scores))
	copy(order, scores)
	sort.Slice(order, func(i, j int) bool {
		if order[i].Total != order[j].Total {
			return order[i].Total > order[j].Total
		}
		return order[i].VIN < order[j].VIN
	})

	ranks := make(map[string]int, len(order))
	for i, s := range order {
		ranks[s.VIN] = i + 1
	}
	return ranks
}

func rankShifts(base, cand []scoring.VehicleScore, topN int, all bool) []RankShift {
	baseRanks := fullRank(base)
	candRanks := fullRank(cand)

	baseScore := make(map[string]float64, len(base))
	candScore := make(map[string]float64, len(cand))
	for i := range base {
		baseScore[base[i].VIN] = base[i].Total
		candScore[cand[i].VIN] = cand[i].Total
	}

	var shifts []RankShift
	for vin, br := range baseRanks {
		cr := candRanks[vin]
		if br == cr {
			continue
		}
		// Only shifts touching either priority list matter unless the
		// caller asked for everything.
		if !all && br > topN && cr > topN {
			continue
		}
		shifts = append(shifts, RankShift{
			VIN:       vin,
			BaseRank:  br,
			CandRank:  cr,
			BaseScore: baseScore[vin],
			CandScore: candScore[vin],
		})
	}

	sort.Slice(shifts, func(i, j int) bool {
		if shifts[i].BaseRank != shifts[j].BaseRank {
			return shifts[i].BaseRank < shifts[j].BaseRank
		}
		return shifts[i].VIN < shifts[j].VIN
	})
	return shifts
}

func printResults(result *ComparisonResult) {
	fmt.Println("\n=== Model Comparison Results ===")
	fmt.Printf("Snapshot: %s (%s %d)\n", result.SnapshotID, result.State, result.Year)
	fmt.Printf("Vehicles Scored: %d\n", result.Vehicles)
	fmt.Printf("Processing Time: %d ms\n", result.ProcessingTimeMs)

	fmt.Println("\n--- Per-Model Statistics ---")
	for _, name := range []string{"base", "candidate"} {
		stats := result.PerModel[name]
		fmt.Printf("\n%s (%s):\n", name, stats.Version)
		fmt.Printf("  Mean: %.3f  Median: %.3f  P90: %.3f  P99: %.3f\n",
			stats.Mean, stats.Median, stats.P90, stats.P99)
		fmt.Printf("  Levels: low=%d medium=%d high=%d critical=%d\n",
			stats.Levels["low"], stats.Levels["medium"], stats.Levels["high"], stats.Levels["critical"])
	}

	fmt.Println("\n--- Score Deltas (candidate - base) ---")
	fmt.Printf("Mean Delta: %+.3f\n", result.MeanDelta)
	fmt.Printf("Max Abs Delta: %.3f (%s)\n", result.MaxAbsDelta, result.MaxDeltaVIN)

	if len(result.LevelChanges) > 0 {
		fmt.Println("\n--- Level Changes ---")
		keys := make([]string, 0, len(result.LevelChanges))
		for k := range result.LevelChanges {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %-20s %d\n", k, result.LevelChanges[k])
		}
	}

	if len(result.RankShifts) > 0 {
		fmt.Println("\n--- Priority Rank Shifts ---")
		for _, s := range result.RankShifts {
			fmt.Printf("  %-20s %3d -> %3d  (%.3f -> %.3f)\n",
				s.VIN, s.BaseRank, s.CandRank, s.BaseScore, s.CandScore)
		}
	}
}

func exportJSON(result *ComparisonResult, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
