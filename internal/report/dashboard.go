package report

import (
	"bytes"
	"fmt"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/lifecycle.report/internal/artifact"
	"github.com/banshee-data/lifecycle.report/internal/lifecycle"
	"github.com/banshee-data/lifecycle.report/internal/scoring"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// Fixed chart IDs keep the rendered HTML byte-stable; go-echarts
// generates random IDs when these are left empty.
const (
	histogramChartID = "score-histogram"
	stageChartID     = "stage-contribution"
)

// DashboardHTML renders a self-contained dashboard page for an
// artifact: a bar chart of the score distribution and a pie of capped
// risk contribution by lifecycle stage.
func DashboardHTML(a *artifact.Artifact) ([]byte, error) {
	labels, counts := scoreBins(a.Vehicles, distributionBins)
	barData := make([]opts.BarData, len(counts))
	for i, c := range counts {
		barData[i] = opts.BarData{Value: c}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{ChartID: histogramChartID, Width: "900px", Height: "500px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Risk Score Distribution", Subtitle: fmt.Sprintf("%s %d model %s", a.Provenance.State, a.Provenance.Year, a.Provenance.ModelVersion)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels).
		AddSeries("vehicles", barData,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{ChartID: stageChartID, Width: "900px", Height: "500px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Risk by Lifecycle Stage", Subtitle: "capped stage contributions summed over the cohort"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	pie.AddSeries("stages", stageContributions(a.Vehicles),
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Formatter: "{b}: {c}"}),
	)

	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("Lifecycle Risk Dashboard %s %d", a.Provenance.State, a.Provenance.Year)
	page.SetAssetsHost(echartsAssetsHost)
	page.AddCharts(bar, pie)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, fmt.Errorf("failed to render dashboard: %w", err)
	}
	return buf.Bytes(), nil
}

// scoreBins buckets total scores into equal-width bins over the
// observed range. The last bin absorbs the maximum value.
func scoreBins(fleet []scoring.VehicleScore, bins int) ([]string, []int) {
	if len(fleet) == 0 || bins <= 0 {
		return nil, nil
	}

	lo, hi := fleet[0].Total, fleet[0].Total
	for _, v := range fleet[1:] {
		if v.Total < lo {
			lo = v.Total
		}
		if v.Total > hi {
			hi = v.Total
		}
	}
	width := (hi - lo) / float64(bins)
	if width == 0 {
		width = 1
	}

	counts := make([]int, bins)
	for _, v := range fleet {
		idx := int((v.Total - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		counts[idx]++
	}

	labels := make([]string, bins)
	for i := range labels {
		start := lo + float64(i)*width
		labels[i] = fmt.Sprintf("%.1f-%.1f", start, start+width)
	}
	return labels, counts
}

// stageContributions sums capped stage scores across the fleet in
// declaration order, skipping stages that contributed nothing.
func stageContributions(fleet []scoring.VehicleScore) []opts.PieData {
	sums := make(map[lifecycle.Stage]float64)
	for _, v := range fleet {
		for _, st := range v.Stages {
			sums[st.Stage] += st.Capped
		}
	}

	data := make([]opts.PieData, 0, len(sums))
	for _, stage := range lifecycle.Stages() {
		total := sums[stage]
		if total == 0 {
			continue
		}
		data = append(data, opts.PieData{Name: stage.String(), Value: math.Round(total*1000) / 1000})
	}
	return data
}
