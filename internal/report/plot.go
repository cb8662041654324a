package report

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/lifecycle.report/internal/scoring"
)

// distributionBins is the histogram bin count for the score
// distribution renderings.
const distributionBins = 16

// DistributionPNG renders a histogram of total risk scores as PNG
// bytes. The plot carries no timestamps, so identical fleets yield
// identical bytes.
func DistributionPNG(fleet []scoring.VehicleScore) ([]byte, error) {
	if len(fleet) == 0 {
		return nil, errors.New("no scores to plot")
	}

	vals := make(plotter.Values, len(fleet))
	for i, v := range fleet {
		vals[i] = v.Total
	}

	p := plot.New()
	p.Title.Text = "Risk Score Distribution"
	p.X.Label.Text = "Total risk score"
	p.Y.Label.Text = "Vehicles"

	h, err := plotter.NewHist(vals, distributionBins)
	if err != nil {
		return nil, fmt.Errorf("failed to build histogram: %w", err)
	}
	h.FillColor = color.RGBA{R: 0x31, G: 0x68, B: 0x8e, A: 255}
	h.LineStyle.Width = vg.Points(0.5)
	p.Add(h)

	wt, err := p.WriterTo(10*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return nil, fmt.Errorf("failed to render histogram: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
