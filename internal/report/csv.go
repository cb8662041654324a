package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/banshee-data/lifecycle.report/internal/cohort"
	"github.com/banshee-data/lifecycle.report/internal/emissions"
	"github.com/banshee-data/lifecycle.report/internal/equity"
)

// PriorityCSV renders the ranked priority list: one row per top-risk
// vehicle with its score, level, and recommended action tier.
func PriorityCSV(c cohort.Summary) ([]byte, error) {
	rows := [][]string{{"rank", "vin", "score", "level", "action"}}
	for _, r := range c.TopRisk {
		rows = append(rows, []string{
			strconv.Itoa(r.Rank),
			r.VIN,
			f3(r.Score),
			r.Level,
			Action(r.Level),
		})
	}
	return writeCSV(rows)
}

// EmissionsCSV renders the replacement target list. A nil report yields
// the header only.
func EmissionsCSV(e *emissions.Report) ([]byte, error) {
	rows := [][]string{{"rank", "vin", "make", "model_year", "age", "category", "co2_kg", "pm25_kg", "benefit"}}
	if e != nil {
		for _, tg := range e.Targets {
			rows = append(rows, []string{
				strconv.Itoa(tg.Rank),
				tg.VIN,
				tg.Make,
				strconv.Itoa(tg.ModelYear),
				strconv.Itoa(tg.Age),
				string(tg.Category),
				f3(tg.CO2Kg),
				f3(tg.PM25Kg),
				f2(tg.Benefit),
			})
		}
	}
	return writeCSV(rows)
}

// EquityCSV renders the per-ZIP disparity table. A nil report yields
// the header only.
func EquityCSV(q *equity.Report) ([]byte, error) {
	rows := [][]string{{"zip", "vehicles", "mean_risk", "mean_age", "median_income", "poverty_rate", "minority_pct", "disparity", "flagged", "priority", "action"}}
	if q != nil {
		for _, z := range q.ZIPs {
			rows = append(rows, []string{
				z.ZIP,
				strconv.Itoa(z.Vehicles),
				f2(z.MeanRisk),
				f1(z.MeanAge),
				f0(z.MedianIncome),
				f2(z.PovertyRate),
				f2(z.MinorityPct),
				f2(z.Disparity),
				strconv.FormatBool(z.Flagged),
				z.Priority,
				z.Action,
			})
		}
	}
	return writeCSV(rows)
}

// CohortCSV renders the cohort summary as a single row.
func CohortCSV(c cohort.Summary) ([]byte, error) {
	rows := [][]string{
		{"state", "year", "vehicles", "mean", "median", "p90", "p99", "low", "medium", "high", "critical"},
		{
			c.State,
			strconv.Itoa(c.Year),
			strconv.Itoa(c.Vehicles),
			f3(c.Mean),
			f3(c.Median),
			f3(c.P90),
			f3(c.P99),
			strconv.Itoa(c.Levels["low"]),
			strconv.Itoa(c.Levels["medium"]),
			strconv.Itoa(c.Levels["high"]),
			strconv.Itoa(c.Levels["critical"]),
		},
	}
	return writeCSV(rows)
}

func writeCSV(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("failed to write csv: %w", err)
	}
	return buf.Bytes(), nil
}

func f0(v float64) string { return strconv.FormatFloat(v, 'f', 0, 64) }
func f1(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) }
func f2(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
func f3(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }
