// Package survival projects how much service life remains in a scored
// fleet. Three models run per vehicle (a deterioration/market-value hazard
// blend, an Okamoto retention curve, and a scrap-price elasticity
// adjustment) and combine into one survival probability, alongside a
// cohort table binned by vehicle age.
package survival

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/lifecycle.report/internal/scoring"
)

const (
	// HorizonYears caps the projection window. Vehicles at or past the
	// horizon get zero retention.
	HorizonYears = 30

	retentionBase = 0.95
	elasticity    = -0.7

	// LeakageEstimate is the fleet share assumed to exit the state
	// unrecorded rather than through scrappage.
	LeakageEstimate = 0.15
)

// ageBinRates is the fleet survival table by age cohort.
var ageBinRates = []struct {
	label    string
	min, max int
	rate     float64
}{
	{"0-5", 0, 5, 0.95},
	{"5-10", 5, 10, 0.85},
	{"10-15", 10, 15, 0.70},
	{"15+", 15, HorizonYears, 0.50},
}

// AgeBin is one row of the cohort survival table.
type AgeBin struct {
	Label             string  `json:"label"`
	MinAge            int     `json:"min_age"`
	MaxAge            int     `json:"max_age"`
	Count             int     `json:"count"`
	MeanAge           float64 `json:"mean_age"`
	MeanOdometer      float64 `json:"mean_odometer"`
	Rate              float64 `json:"rate"`
	ExpectedRemaining float64 `json:"expected_remaining"`
}

// VehicleSurvival holds one vehicle's per-model probabilities.
type VehicleSurvival struct {
	VIN        string  `json:"vin"`
	Age        int     `json:"age"`
	Hazard     float64 `json:"hazard_blend"`
	Retention  float64 `json:"retention"`
	Elasticity float64 `json:"elasticity_adjusted"`
	Combined   float64 `json:"combined"`
}

// Report is the survival section of a run artifact.
type Report struct {
	MeanSurvival    float64           `json:"mean_survival"`
	MedianRemaining float64           `json:"median_remaining_years"`
	HighRisk        int               `json:"high_risk"`
	LeakageEstimate float64           `json:"leakage_estimate"`
	Skipped         int               `json:"skipped,omitempty"`
	Table           []AgeBin          `json:"table,omitempty"`
	Vehicles        []VehicleSurvival `json:"vehicles"`
}

// Age is the vehicle age at the reference year, never negative.
func Age(year, modelYear int) int {
	if age := year - modelYear; age > 0 {
		return age
	}
	return 0
}

// HazardBlend mixes an age deterioration factor with an odometer
// market-value factor. Unknown odometers count as zero miles.
func HazardBlend(age, odometer float64) float64 {
	if odometer < 0 {
		odometer = 0
	}
	deterioration := math.Exp(-0.05 * age)
	marketValue := math.Exp(-0.03 * odometer / 10000)
	return 0.7*deterioration + 0.3*marketValue
}

// Retention is the Okamoto curve a^(t/(M-t)): 1 at age zero, falling to 0
// at the horizon.
func Retention(age float64) float64 {
	switch {
	case age <= 0:
		return 1.0
	case age >= HorizonYears:
		return 0.0
	}
	return math.Pow(retentionBase, age/(HorizonYears-age))
}

// ScrapAdjusted discounts baseline survival by the scrap-price elasticity
// effect, clamped to [0, 1]. Older vehicles carry a larger scrap premium,
// so the channel hits zero within a few years.
func ScrapAdjusted(age float64) float64 {
	premium := 1 + 0.1*age
	effect := 1 + elasticity*premium
	s := math.Exp(-0.1*age) * effect
	return math.Min(1, math.Max(0, s))
}

// Combined blends the three models into the final probability.
func Combined(hazard, retention, scrap float64) float64 {
	return 0.3*hazard + 0.3*retention + 0.4*scrap
}

// Analyze runs all survival models over the scored fleet with year as the
// age reference. Vehicles without a model year cannot be aged and are
// counted as skipped. Output ordering is VIN-ascending throughout.
func Analyze(year int, fleet []scoring.VehicleScore) Report {
	r := Report{LeakageEstimate: LeakageEstimate}

	type binAcc struct {
		count    int
		ageSum   float64
		odoSum   float64
		odoKnown int
	}
	bins := make([]binAcc, len(ageBinRates))

	var remaining []float64
	var combined []float64
	for _, v := range fleet {
		if v.ModelYear <= 0 {
			r.Skipped++
			continue
		}
		age := Age(year, v.ModelYear)
		fa := float64(age)

		vs := VehicleSurvival{VIN: v.VIN, Age: age}
		vs.Hazard = HazardBlend(fa, v.Odometer)
		vs.Retention = Retention(fa)
		vs.Elasticity = ScrapAdjusted(fa)
		vs.Combined = Combined(vs.Hazard, vs.Retention, vs.Elasticity)
		r.Vehicles = append(r.Vehicles, vs)

		if vs.Combined < 0.5 {
			r.HighRisk++
		}
		combined = append(combined, vs.Combined)
		remaining = append(remaining, float64(HorizonYears-age))

		for i, b := range ageBinRates {
			if age >= b.min && age < b.max {
				bins[i].count++
				bins[i].ageSum += fa
				if v.Odometer >= 0 {
					bins[i].odoSum += v.Odometer
					bins[i].odoKnown++
				}
				break
			}
		}
	}

	if len(r.Vehicles) == 0 {
		return r
	}

	sort.Slice(r.Vehicles, func(i, j int) bool { return r.Vehicles[i].VIN < r.Vehicles[j].VIN })

	for i, b := range ageBinRates {
		acc := bins[i]
		if acc.count == 0 {
			continue
		}
		row := AgeBin{
			Label:   b.label,
			MinAge:  b.min,
			MaxAge:  b.max,
			Count:   acc.count,
			MeanAge: acc.ageSum / float64(acc.count),
			Rate:    b.rate,
		}
		if acc.odoKnown > 0 {
			row.MeanOdometer = acc.odoSum / float64(acc.odoKnown)
		}
		row.ExpectedRemaining = b.rate * (HorizonYears - row.MeanAge)
		r.Table = append(r.Table, row)
	}

	r.MeanSurvival = stat.Mean(combined, nil)
	sort.Float64s(remaining)
	r.MedianRemaining = stat.Quantile(0.5, stat.Empirical, remaining, nil)
	return r
}
