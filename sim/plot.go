package sim

import (
	"fmt"
	"image/color"
	"math"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// TimeSeries is one panel of a posterior time-series figure: a posterior
// mean with an optional 2-sigma credible band, the true noiseless signal
// and the observed points. NaN entries in Points mark missing
// observations and are not drawn.
type TimeSeries struct {
	// Name is the panel title
	Name string
	// Mean is the posterior mean
	Mean []float64
	// Sd is the posterior standard deviation; nil disables the band
	Sd []float64
	// Truth is the noiseless signal; nil disables the line
	Truth []float64
	// Points are the observations; nil disables the scatter
	Points []float64
}

// NewTimeSeriesPlot creates a plot of one posterior time series.
// It returns error if the series is empty or its components have
// mismatched lengths.
func NewTimeSeriesPlot(ts TimeSeries) (*plot.Plot, error) {
	n := len(ts.Mean)
	if n == 0 {
		return nil, fmt.Errorf("empty time series")
	}

	if (ts.Sd != nil && len(ts.Sd) != n) ||
		(ts.Truth != nil && len(ts.Truth) != n) ||
		(ts.Points != nil && len(ts.Points) != n) {
		return nil, fmt.Errorf("inconsistent time series lengths")
	}

	p := plot.New()
	p.Title.Text = ts.Name
	p.X.Label.Text = "time"

	// 2-sigma credible band
	if ts.Sd != nil {
		band := make(plotter.XYs, 0, 2*n)
		for i := 0; i < n; i++ {
			band = append(band, plotter.XY{X: float64(i), Y: ts.Mean[i] + 2*ts.Sd[i]})
		}
		for i := n - 1; i >= 0; i-- {
			band = append(band, plotter.XY{X: float64(i), Y: ts.Mean[i] - 2*ts.Sd[i]})
		}
		poly, err := plotter.NewPolygon(band)
		if err != nil {
			return nil, err
		}
		poly.Color = color.RGBA{R: 169, G: 169, B: 169, A: 96}
		poly.LineStyle.Color = color.RGBA{A: 0}
		p.Add(poly)
	}

	// posterior mean
	meanPts := make(plotter.XYs, n)
	for i := 0; i < n; i++ {
		meanPts[i] = plotter.XY{X: float64(i), Y: ts.Mean[i]}
	}
	meanLine, err := plotter.NewLine(meanPts)
	if err != nil {
		return nil, err
	}
	meanLine.Color = color.RGBA{R: 255, B: 128, A: 255}
	p.Add(meanLine)

	// true noiseless signal
	if ts.Truth != nil {
		truthPts := make(plotter.XYs, n)
		for i := 0; i < n; i++ {
			truthPts[i] = plotter.XY{X: float64(i), Y: ts.Truth[i]}
		}
		truthLine, err := plotter.NewLine(truthPts)
		if err != nil {
			return nil, err
		}
		truthLine.Color = color.RGBA{B: 255, A: 255}
		truthLine.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}
		p.Add(truthLine)
	}

	// observed points
	if ts.Points != nil {
		obsPts := make(plotter.XYs, 0, n)
		for i := 0; i < n; i++ {
			if math.IsNaN(ts.Points[i]) {
				continue
			}
			obsPts = append(obsPts, plotter.XY{X: float64(i), Y: ts.Points[i]})
		}
		scatter, err := plotter.NewScatter(obsPts)
		if err != nil {
			return nil, err
		}
		scatter.GlyphStyle.Color = color.RGBA{R: 255, A: 255}
		scatter.GlyphStyle.Radius = vg.Points(1.5)
		scatter.Shape = draw.CircleGlyph{}
		p.Add(scatter)
	}

	return p, nil
}

// SaveTimeSeriesGrid tiles the series into cols columns and writes the
// figure as a PNG file to path.
// It returns error if no series is given or any series is invalid.
func SaveTimeSeriesGrid(path string, cols int, series []TimeSeries) error {
	if len(series) == 0 || cols <= 0 {
		return fmt.Errorf("invalid time series grid")
	}

	rows := (len(series) + cols - 1) / cols

	plots := make([][]*plot.Plot, rows)
	for i := range plots {
		plots[i] = make([]*plot.Plot, cols)
		for j := range plots[i] {
			k := i*cols + j
			if k >= len(series) {
				break
			}
			p, err := NewTimeSeriesPlot(series[k])
			if err != nil {
				return err
			}
			plots[i][j] = p
		}
	}

	img := vgimg.New(vg.Points(320*float64(cols)), vg.Points(160*float64(rows)))
	dc := draw.New(img)

	tiles := draw.Tiles{
		Rows: rows,
		Cols: cols,
		PadX: vg.Millimeter,
		PadY: vg.Millimeter,
	}

	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		for j := range plots[i] {
			if plots[i][j] != nil {
				plots[i][j].Draw(canvases[i][j])
			}
		}
	}

	w, err := os.Create(path)
	if err != nil {
		return err
	}
	defer w.Close()

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		return err
	}

	return nil
}

// NewTracePlot creates a plot of the per-iteration fit scores.
// It returns error if the trace is empty.
func NewTracePlot(trace []float64) (*plot.Plot, error) {
	if len(trace) == 0 {
		return nil, fmt.Errorf("empty fit trace")
	}

	p := plot.New()
	p.Title.Text = "Fit trace"
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "score"

	pts := make(plotter.XYs, len(trace))
	for i, v := range trace {
		pts[i] = plotter.XY{X: float64(i + 1), Y: v}
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.Color = color.RGBA{R: 255, B: 128, A: 255}
	p.Add(line)

	return p, nil
}
