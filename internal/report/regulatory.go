package report

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/banshee-data/lifecycle.report/internal/artifact"
)

const rule = "================================================================"
const thinRule = "----------------------------------------------------------------"

// Regulatory renders the fixed-layout text report for an artifact. The
// layout is stable field by field and carries no timestamps, so the
// bytes are a pure function of the artifact content.
func Regulatory(a *artifact.Artifact) []byte {
	var b bytes.Buffer

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "  VEHICLE LIFECYCLE RISK REPORT")
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b)

	p := a.Provenance
	fmt.Fprintf(&b, "Cohort:             %s %d\n", p.State, p.Year)
	fmt.Fprintf(&b, "Snapshot:           %s\n", p.SnapshotID)
	fmt.Fprintf(&b, "Model version:      %s\n", p.ModelVersion)
	fmt.Fprintf(&b, "Ruleset version:    %s\n", p.RulesetVersion)
	fmt.Fprintf(&b, "Classifier policy:  %s\n", p.ClassifierPolicy)
	if len(p.Caps) > 0 {
		fmt.Fprintf(&b, "Stage caps:         %s\n", formatCaps(p.Caps))
	}
	fmt.Fprintln(&b)

	writeCohortSection(&b, a)
	writeTopRiskSection(&b, a)
	writeSurvivalSection(&b, a)
	writeEmissionsSection(&b, a)
	writeEquitySection(&b, a)
	writeTalliesSection(&b, a)

	fmt.Fprintln(&b, rule)
	return b.Bytes()
}

func writeCohortSection(b *bytes.Buffer, a *artifact.Artifact) {
	c := a.Cohort
	fmt.Fprintln(b, "COHORT STATISTICS")
	fmt.Fprintln(b, thinRule)
	fmt.Fprintf(b, "  Vehicles scored     %d\n", c.Vehicles)
	fmt.Fprintf(b, "  Mean score          %.3f\n", c.Mean)
	fmt.Fprintf(b, "  Median score        %.3f\n", c.Median)
	fmt.Fprintf(b, "  90th percentile     %.3f\n", c.P90)
	fmt.Fprintf(b, "  99th percentile     %.3f\n", c.P99)
	fmt.Fprint(b, "  Risk levels         ")
	for i, level := range levelOrder {
		if i > 0 {
			fmt.Fprint(b, " ")
		}
		fmt.Fprintf(b, "%s=%d", level, c.Levels[level])
	}
	fmt.Fprintln(b)
	fmt.Fprintln(b)
}

func writeTopRiskSection(b *bytes.Buffer, a *artifact.Artifact) {
	if len(a.Cohort.TopRisk) == 0 {
		return
	}
	fmt.Fprintln(b, "TOP RISK VEHICLES")
	fmt.Fprintln(b, thinRule)
	fmt.Fprintln(b, "  RANK  VIN                    SCORE  LEVEL     ACTION")
	for _, r := range a.Cohort.TopRisk {
		fmt.Fprintf(b, "  %4d  %-20s %8.3f  %-8s  %s\n",
			r.Rank, r.VIN, r.Score, r.Level, Action(r.Level))
	}
	fmt.Fprintln(b)
}

func writeSurvivalSection(b *bytes.Buffer, a *artifact.Artifact) {
	s := a.Survival
	if s == nil {
		return
	}
	fmt.Fprintln(b, "SURVIVAL OUTLOOK")
	fmt.Fprintln(b, thinRule)
	fmt.Fprintf(b, "  Mean survival       %.3f\n", s.MeanSurvival)
	fmt.Fprintf(b, "  Median remaining    %.1f years\n", s.MedianRemaining)
	fmt.Fprintf(b, "  High risk vehicles  %d\n", s.HighRisk)
	fmt.Fprintf(b, "  Leakage estimate    %.0f%%\n", s.LeakageEstimate*100)
	if s.Skipped > 0 {
		fmt.Fprintf(b, "  Skipped (no year)   %d\n", s.Skipped)
	}
	if len(s.Table) > 0 {
		fmt.Fprintln(b)
		fmt.Fprintln(b, "  AGE BIN  COUNT  MEAN AGE  RETENTION  YEARS LEFT")
		for _, bin := range s.Table {
			fmt.Fprintf(b, "  %-7s %6d %9.1f %10.2f %11.1f\n",
				bin.Label, bin.Count, bin.MeanAge, bin.Rate, bin.ExpectedRemaining)
		}
	}
	fmt.Fprintln(b)
}

func writeEmissionsSection(b *bytes.Buffer, a *artifact.Artifact) {
	e := a.Emissions
	if e == nil {
		return
	}
	fmt.Fprintln(b, "EMISSIONS ESTIMATE")
	fmt.Fprintln(b, thinRule)
	fmt.Fprintf(b, "  Annual miles        %.0f\n", e.AnnualMiles)
	fmt.Fprintf(b, "  Total CO2           %.3f kg\n", e.TotalCO2Kg)
	fmt.Fprintf(b, "  Total NOx           %.3f kg\n", e.TotalNOxKg)
	fmt.Fprintf(b, "  Total PM2.5         %.3f kg\n", e.TotalPM25Kg)
	fmt.Fprintf(b, "  High emitters       %d\n", e.HighEmitters)
	if e.Skipped > 0 {
		fmt.Fprintf(b, "  Skipped (no year)   %d\n", e.Skipped)
	}
	if len(e.Targets) > 0 {
		fmt.Fprintln(b)
		fmt.Fprintln(b, "  REPLACEMENT TARGETS")
		fmt.Fprintln(b, "  RANK  VIN                   YEAR  CATEGORY    PM2.5 KG     BENEFIT")
		for _, tg := range e.Targets {
			fmt.Fprintf(b, "  %4d  %-20s %5d  %-9s %10.3f %11.2f\n",
				tg.Rank, tg.VIN, tg.ModelYear, tg.Category, tg.PM25Kg, tg.Benefit)
		}
	}
	fmt.Fprintln(b)
}

func writeEquitySection(b *bytes.Buffer, a *artifact.Artifact) {
	q := a.Equity
	if q == nil {
		return
	}
	fmt.Fprintln(b, "EQUITY IMPACT")
	fmt.Fprintln(b, thinRule)
	fmt.Fprintf(b, "  Disparity threshold %.1f\n", q.Threshold)
	fmt.Fprintf(b, "  Flagged ZIP codes   %d\n", q.FlaggedZIPs)
	fmt.Fprintf(b, "  Average disparity   %.2f\n", q.AvgDisparity)
	if q.Unmatched > 0 {
		fmt.Fprintf(b, "  Unmatched ZIPs      %d\n", q.Unmatched)
	}
	if q.NoZIP > 0 {
		fmt.Fprintf(b, "  Missing ZIP         %d\n", q.NoZIP)
	}
	if len(q.ZIPs) > 0 {
		fmt.Fprintln(b)
		fmt.Fprintln(b, "  ZIP     VEHICLES  MEAN RISK  INCOME  DISPARITY  PRIORITY")
		for _, z := range q.ZIPs {
			priority := z.Priority
			if priority == "" {
				priority = "-"
			}
			fmt.Fprintf(b, "  %-7s %8d %10.2f %7.0f %10.2f  %s\n",
				z.ZIP, z.Vehicles, z.MeanRisk, z.MedianIncome, z.Disparity, priority)
		}
	}
	fmt.Fprintln(b)
}

func writeTalliesSection(b *bytes.Buffer, a *artifact.Artifact) {
	t := a.Provenance.Tallies
	fmt.Fprintln(b, "PROCESSING TALLIES")
	fmt.Fprintln(b, thinRule)
	fmt.Fprintf(b, "  Records in              %d\n", t.RecordsIn)
	fmt.Fprintf(b, "  Records rejected        %d\n", t.RejectedTotal)
	for _, reason := range sortedKeys(t.Rejected) {
		fmt.Fprintf(b, "    %-20s  %d\n", reason, t.Rejected[reason])
	}
	fmt.Fprintf(b, "  Events excluded         %d\n", t.EventsExcluded)
	fmt.Fprintf(b, "  Vehicles excluded       %d\n", t.VehiclesExcluded)
	fmt.Fprintf(b, "  Contributions excluded  %d\n", t.ContributionsExcluded)
}

func formatCaps(caps map[string]float64) string {
	var buf bytes.Buffer
	for i, stage := range sortedFloatKeys(caps) {
		if i > 0 {
			buf.WriteString(" ")
		}
		fmt.Fprintf(&buf, "%s=%g", stage, caps[stage])
	}
	return buf.String()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedFloatKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
