// Package emissions estimates annual fleet emissions from model-year era
// factors and builds the scrappage targeting list for the regulatory
// report.
package emissions

import (
	"sort"

	"github.com/banshee-data/lifecycle.report/internal/scoring"
)

// DefaultAnnualMiles is the per-vehicle annual mileage assumption.
const DefaultAnnualMiles = 12000

// DefaultTargets caps the targeting list when the caller passes no limit.
const DefaultTargets = 50

// Category is a model-year emission era.
type Category string

const (
	Pre2000  Category = "pre_2000"
	Era2000s Category = "2000_2009"
	Era2010s Category = "2010_2019"
	Era2020s Category = "2020_plus"
)

// Factors holds tailpipe emission rates in grams per mile.
type Factors struct {
	CO2  float64 `json:"co2"`
	NOx  float64 `json:"nox"`
	PM25 float64 `json:"pm25"`
}

var eraFactors = map[Category]Factors{
	Pre2000:  {CO2: 500, NOx: 1.2, PM25: 0.08},
	Era2000s: {CO2: 420, NOx: 0.8, PM25: 0.05},
	Era2010s: {CO2: 350, NOx: 0.4, PM25: 0.02},
	Era2020s: {CO2: 280, NOx: 0.2, PM25: 0.01},
}

// CategoryFor buckets a model year into its emission era.
func CategoryFor(modelYear int) Category {
	switch {
	case modelYear < 2000:
		return Pre2000
	case modelYear < 2010:
		return Era2000s
	case modelYear < 2020:
		return Era2010s
	}
	return Era2020s
}

// FactorsFor returns the gram-per-mile factors for a model year.
func FactorsFor(modelYear int) Factors {
	return eraFactors[CategoryFor(modelYear)]
}

// Target is one scrappage candidate: a pre-2010 vehicle ranked by annual
// PM2.5 output, with the estimated retirement benefit in dollars.
type Target struct {
	Rank      int      `json:"rank"`
	VIN       string   `json:"vin"`
	Make      string   `json:"make,omitempty"`
	ModelYear int      `json:"model_year"`
	Age       int      `json:"age"`
	Category  Category `json:"category"`
	CO2Kg     float64  `json:"co2_kg"`
	PM25Kg    float64  `json:"pm25_kg"`
	Benefit   float64  `json:"benefit"`
}

// Report is the emissions section of a run artifact: fleet totals plus
// the targeting list. Per-vehicle figures rebuild from FactorsFor.
type Report struct {
	AnnualMiles  float64  `json:"annual_miles"`
	TotalCO2Kg   float64  `json:"total_co2_kg"`
	TotalNOxKg   float64  `json:"total_nox_kg"`
	TotalPM25Kg  float64  `json:"total_pm25_kg"`
	HighEmitters int      `json:"high_emitters"`
	Skipped      int      `json:"skipped,omitempty"`
	Targets      []Target `json:"targets"`
}

// Estimate computes fleet emissions with the default mileage assumption.
func Estimate(year int, fleet []scoring.VehicleScore, topN int) Report {
	return EstimateMiles(year, fleet, topN, DefaultAnnualMiles)
}

// EstimateMiles computes annual per-vehicle emissions (grams per mile x
// miles / 1000 = kg) and aggregates fleet totals. The targeting list
// takes pre-2010 vehicles ordered by PM2.5 descending, VIN ascending on
// ties, cut to topN. Vehicles without a model year are counted as
// skipped.
func EstimateMiles(year int, fleet []scoring.VehicleScore, topN int, annualMiles float64) Report {
	if topN <= 0 {
		topN = DefaultTargets
	}
	r := Report{AnnualMiles: annualMiles}

	var candidates []Target
	for _, v := range fleet {
		if v.ModelYear <= 0 {
			r.Skipped++
			continue
		}
		cat := CategoryFor(v.ModelYear)
		f := eraFactors[cat]
		co2 := f.CO2 * annualMiles / 1000
		nox := f.NOx * annualMiles / 1000
		pm25 := f.PM25 * annualMiles / 1000

		r.TotalCO2Kg += co2
		r.TotalNOxKg += nox
		r.TotalPM25Kg += pm25
		if cat == Pre2000 {
			r.HighEmitters++
		}

		if cat == Pre2000 || cat == Era2000s {
			age := year - v.ModelYear
			if age < 0 {
				age = 0
			}
			candidates = append(candidates, Target{
				VIN:       v.VIN,
				Make:      v.Make,
				ModelYear: v.ModelYear,
				Age:       age,
				Category:  cat,
				CO2Kg:     co2,
				PM25Kg:    pm25,
				Benefit:   pm25*1000 + co2*50,
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].PM25Kg != candidates[j].PM25Kg {
			return candidates[i].PM25Kg > candidates[j].PM25Kg
		}
		return candidates[i].VIN < candidates[j].VIN
	})
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}
	for i := range candidates {
		candidates[i].Rank = i + 1
	}
	r.Targets = candidates
	return r
}
