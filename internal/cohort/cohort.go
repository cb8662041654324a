// Package cohort reduces per-vehicle scores into the run-level summary
// statistics carried by the artifact.
package cohort

import (
	"errors"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/lifecycle.report/internal/scoring"
)

// ErrEmptyCohort means no vehicle survived normalization and
// classification, so there is nothing to aggregate.
var ErrEmptyCohort = errors.New("empty cohort")

// DefaultTopRisk bounds the ranked list when the caller passes no limit.
const DefaultTopRisk = 10

// VehicleRank is one row of the top-risk list.
type VehicleRank struct {
	Rank  int     `json:"rank"`
	VIN   string  `json:"vin"`
	Score float64 `json:"score"`
	Level string  `json:"level"`
}

// Summary holds the cohort statistics for one (state, year) run.
type Summary struct {
	State    string         `json:"state"`
	Year     int            `json:"year"`
	Vehicles int            `json:"vehicles"`
	Mean     float64        `json:"mean"`
	Median   float64        `json:"median"`
	P90      float64        `json:"p90"`
	P99      float64        `json:"p99"`
	Levels   map[string]int `json:"levels"`
	TopRisk  []VehicleRank  `json:"top_risk"`
}

// Summarize reduces the scored cohort: mean and empirical quantiles over
// the score distribution, the level tally, and the top-N ranked by score
// descending with VIN ascending breaking ties. Returns ErrEmptyCohort for
// an empty input.
func Summarize(state string, year int, scores []scoring.VehicleScore, topN int) (Summary, error) {
	if len(scores) == 0 {
		return Summary{}, ErrEmptyCohort
	}
	if topN <= 0 {
		topN = DefaultTopRisk
	}

	s := Summary{
		State:    state,
		Year:     year,
		Vehicles: len(scores),
		Levels:   make(map[string]int),
	}

	totals := make([]float64, len(scores))
	for i, v := range scores {
		totals[i] = v.Total
		s.Levels[v.Level]++
	}
	sort.Float64s(totals)

	s.Mean = stat.Mean(totals, nil)
	s.Median = stat.Quantile(0.5, stat.Empirical, totals, nil)
	s.P90 = stat.Quantile(0.9, stat.Empirical, totals, nil)
	s.P99 = stat.Quantile(0.99, stat.Empirical, totals, nil)

	ranked := make([]scoring.VehicleScore, len(scores))
	copy(ranked, scores)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Total != ranked[j].Total {
			return ranked[i].Total > ranked[j].Total
		}
		return ranked[i].VIN < ranked[j].VIN
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	s.TopRisk = make([]VehicleRank, len(ranked))
	for i, v := range ranked {
		s.TopRisk[i] = VehicleRank{Rank: i + 1, VIN: v.VIN, Score: v.Total, Level: v.Level}
	}
	return s, nil
}
