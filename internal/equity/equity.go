// Package equity maps risk scores onto ZIP-level demographics and flags
// areas where high vehicle risk coincides with low median income, the
// disparity screen behind the housing-compliance section of the
// regulatory report.
package equity

import (
	"sort"

	"github.com/banshee-data/lifecycle.report/internal/scoring"
	"github.com/banshee-data/lifecycle.report/internal/snapshot"
)

// DefaultThreshold flags ZIPs whose disparity index exceeds it.
const DefaultThreshold = 50.0

// Flagged-row annotations carried into the compliance CSV.
const (
	PriorityHigh      = "High"
	RecommendedAction = "Targeted vehicle replacement program"
)

// ZIPSummary aggregates one matched ZIP: fleet presence, demographics,
// and the disparity index.
type ZIPSummary struct {
	ZIP          string  `json:"zip"`
	Vehicles     int     `json:"vehicles"`
	MeanRisk     float64 `json:"mean_risk"`
	MeanAge      float64 `json:"mean_age"`
	MedianIncome float64 `json:"median_income"`
	PovertyRate  float64 `json:"poverty_rate"`
	MinorityPct  float64 `json:"minority_pct"`
	Disparity    float64 `json:"disparity"`
	Flagged      bool    `json:"flagged,omitempty"`
	Priority     string  `json:"priority,omitempty"`
	Action       string  `json:"action,omitempty"`
}

// Report is the equity section of a run artifact. Unmatched counts ZIPs
// seen in the fleet but absent from the demographics table; their
// vehicles are excluded rather than guessed at. NoZIP counts vehicles
// that never carried a ZIP at all.
type Report struct {
	Threshold    float64      `json:"threshold"`
	MaxIncome    float64      `json:"max_income"`
	FlaggedZIPs  int          `json:"flagged_zips"`
	AvgDisparity float64      `json:"avg_disparity"`
	Unmatched    int          `json:"unmatched,omitempty"`
	NoZIP        int          `json:"no_zip,omitempty"`
	ZIPs         []ZIPSummary `json:"zips"`
}

// Disparity is the index for one ZIP: risk rescaled to [0, 1] times the
// income shortfall against the best-off matched ZIP, on a 0-100 scale.
func Disparity(meanRisk, income, maxIncome float64) float64 {
	if maxIncome <= 0 {
		return 0
	}
	return meanRisk / 100 * (1 - income/maxIncome) * 100
}

// Map aggregates scored vehicles by ZIP, joins demographics, and computes
// the disparity index per matched ZIP with year as the age reference.
// Threshold values at or below zero use DefaultThreshold. Rows sort by
// disparity descending, ZIP ascending on ties.
func Map(year int, fleet []scoring.VehicleScore, demo map[string]snapshot.Demographic, threshold float64) Report {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	r := Report{Threshold: threshold}

	type zipAcc struct {
		vehicles int
		riskSum  float64
		ageSum   float64
	}
	acc := make(map[string]*zipAcc)
	for _, v := range fleet {
		if v.ZIP == "" {
			r.NoZIP++
			continue
		}
		a := acc[v.ZIP]
		if a == nil {
			a = &zipAcc{}
			acc[v.ZIP] = a
		}
		a.vehicles++
		a.riskSum += v.Total
		if v.ModelYear > 0 {
			if age := year - v.ModelYear; age > 0 {
				a.ageSum += float64(age)
			}
		}
	}

	// Income normalization runs against the matched fleet, not the whole
	// demographics table.
	for zip := range acc {
		if d, ok := demo[zip]; ok && d.MedianIncome > r.MaxIncome {
			r.MaxIncome = d.MedianIncome
		}
	}

	for zip, a := range acc {
		d, ok := demo[zip]
		if !ok {
			r.Unmatched++
			continue
		}
		row := ZIPSummary{
			ZIP:          zip,
			Vehicles:     a.vehicles,
			MeanRisk:     a.riskSum / float64(a.vehicles),
			MeanAge:      a.ageSum / float64(a.vehicles),
			MedianIncome: d.MedianIncome,
			PovertyRate:  d.PovertyRate,
			MinorityPct:  d.MinorityPct,
		}
		row.Disparity = Disparity(row.MeanRisk, d.MedianIncome, r.MaxIncome)
		if row.Disparity > threshold {
			row.Flagged = true
			row.Priority = PriorityHigh
			row.Action = RecommendedAction
			r.FlaggedZIPs++
		}
		r.ZIPs = append(r.ZIPs, row)
	}

	sort.Slice(r.ZIPs, func(i, j int) bool {
		if r.ZIPs[i].Disparity != r.ZIPs[j].Disparity {
			return r.ZIPs[i].Disparity > r.ZIPs[j].Disparity
		}
		return r.ZIPs[i].ZIP < r.ZIPs[j].ZIP
	})

	if len(r.ZIPs) > 0 {
		var sum float64
		for _, z := range r.ZIPs {
			sum += z.Disparity
		}
		r.AvgDisparity = sum / float64(len(r.ZIPs))
	}
	return r
}
