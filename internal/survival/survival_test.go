package survival

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lifecycle.report/internal/scoring"
)

func TestAge(t *testing.T) {
	require.Equal(t, 8, Age(2023, 2015))
	require.Equal(t, 0, Age(2023, 2023))
	require.Equal(t, 0, Age(2023, 2030))
}

func TestHazardBlend(t *testing.T) {
	require.InDelta(t, 1.0, HazardBlend(0, 0), 1e-12)

	// Unknown odometers count as zero miles.
	require.Equal(t, HazardBlend(8, 0), HazardBlend(8, -1))

	// More age or more miles never raises the blend.
	require.Less(t, HazardBlend(10, 50000), HazardBlend(5, 50000))
	require.Less(t, HazardBlend(5, 120000), HazardBlend(5, 50000))
}

func TestRetention(t *testing.T) {
	require.Equal(t, 1.0, Retention(0))
	require.Equal(t, 0.0, Retention(HorizonYears))
	require.Equal(t, 0.0, Retention(45))

	// Midpoint exponent is exactly 1.
	require.InDelta(t, 0.95, Retention(15), 1e-12)
	require.InDelta(t, 0.9746794344808963, Retention(10), 1e-12)

	for age := 1.0; age < HorizonYears; age++ {
		require.Greater(t, Retention(age-1), Retention(age), "age %v", age)
	}
}

func TestScrapAdjusted(t *testing.T) {
	require.InDelta(t, 0.3, ScrapAdjusted(0), 1e-12)
	require.InDelta(t, 0.0134064, ScrapAdjusted(4), 1e-6)

	// The elasticity effect goes negative just past age four and the
	// clamp holds the channel at zero from there on.
	require.Equal(t, 0.0, ScrapAdjusted(5))
	require.Equal(t, 0.0, ScrapAdjusted(20))
}

func TestCombined(t *testing.T) {
	require.InDelta(t, 0.72, Combined(1, 1, 0.3), 1e-12)
	require.InDelta(t, 0.0, Combined(0, 0, 0), 1e-12)
}

func fleetFixture() []scoring.VehicleScore {
	return []scoring.VehicleScore{
		{VIN: "CA00000005", ModelYear: 1990, Odometer: 200000},
		{VIN: "CA00000001", ModelYear: 2021, Odometer: 20000},
		{VIN: "CA00000002", ModelYear: 2015, Odometer: 82000},
		{VIN: "CA00000003", ModelYear: 2011, Odometer: -1},
		{VIN: "CA00000004", ModelYear: 2005, Odometer: 150000},
		{VIN: "CA00000006"}, // no model year
	}
}

func TestAnalyze(t *testing.T) {
	r := Analyze(2023, fleetFixture())

	require.Equal(t, 1, r.Skipped)
	require.Len(t, r.Vehicles, 5)
	for i, want := range []string{"CA00000001", "CA00000002", "CA00000003", "CA00000004", "CA00000005"} {
		require.Equal(t, want, r.Vehicles[i].VIN)
	}
	require.Equal(t, []int{2, 8, 12, 18, 33},
		[]int{r.Vehicles[0].Age, r.Vehicles[1].Age, r.Vehicles[2].Age, r.Vehicles[3].Age, r.Vehicles[4].Age})

	// Each cohort bin catches exactly one vehicle; the age-33 vehicle is
	// past the horizon and stays out of the table.
	require.Len(t, r.Table, 4)
	for i, want := range []AgeBin{
		{Label: "0-5", MinAge: 0, MaxAge: 5, Count: 1, MeanAge: 2, MeanOdometer: 20000, Rate: 0.95},
		{Label: "5-10", MinAge: 5, MaxAge: 10, Count: 1, MeanAge: 8, MeanOdometer: 82000, Rate: 0.85},
		{Label: "10-15", MinAge: 10, MaxAge: 15, Count: 1, MeanAge: 12, MeanOdometer: 0, Rate: 0.70},
		{Label: "15+", MinAge: 15, MaxAge: 30, Count: 1, MeanAge: 18, MeanOdometer: 150000, Rate: 0.50},
	} {
		got := r.Table[i]
		require.Equal(t, want.Label, got.Label)
		require.Equal(t, want.Count, got.Count)
		require.Equal(t, want.MeanAge, got.MeanAge)
		require.Equal(t, want.MeanOdometer, got.MeanOdometer)
		require.Equal(t, want.Rate, got.Rate)
		require.InDelta(t, want.Rate*(30-want.MeanAge), got.ExpectedRemaining, 1e-9)
	}

	// Per-vehicle probabilities agree with the model functions.
	for _, vs := range r.Vehicles {
		fa := float64(vs.Age)
		require.Equal(t, Retention(fa), vs.Retention, "vin %s", vs.VIN)
		require.Equal(t, ScrapAdjusted(fa), vs.Elasticity, "vin %s", vs.VIN)
		require.InDelta(t, Combined(vs.Hazard, vs.Retention, vs.Elasticity), vs.Combined, 1e-12)
		require.False(t, math.IsNaN(vs.Combined))
	}

	// Ages 12, 18 and 33 land under the 0.5 line.
	require.Equal(t, 3, r.HighRisk)
	require.Greater(t, r.Vehicles[1].Combined, 0.5)
	require.Less(t, r.Vehicles[2].Combined, 0.5)

	// Remaining years {28, 22, 18, 12, -3}, median 18.
	require.Equal(t, 18.0, r.MedianRemaining)
	require.Equal(t, LeakageEstimate, r.LeakageEstimate)
	require.Greater(t, r.MeanSurvival, 0.0)
	require.Less(t, r.MeanSurvival, 1.0)
}

func TestAnalyzeEmpty(t *testing.T) {
	r := Analyze(2023, nil)
	require.Empty(t, r.Vehicles)
	require.Empty(t, r.Table)
	require.Equal(t, 0.0, r.MeanSurvival)
	require.False(t, math.IsNaN(r.MeanSurvival))
}

func TestAnalyzeAllSkipped(t *testing.T) {
	r := Analyze(2023, []scoring.VehicleScore{{VIN: "CA00000009"}})
	require.Equal(t, 1, r.Skipped)
	require.Empty(t, r.Vehicles)
	require.False(t, math.IsNaN(r.MedianRemaining))
}
