// Package chart renders hall-of-fame objective plots.
package chart

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/capturefinery/internal/ordering"
	"github.com/banshee-data/capturefinery/internal/refinery"
)

// RankAxis plots the row index (rank) instead of a parameter.
const RankAxis = "rank"

// ErrNoPoints is returned when no row yields a plottable point.
var ErrNoPoints = errors.New("no plottable rows")

var (
	cleanColour = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	errorColour = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// Options selects the axes and highlighting of a scatter plot.
type Options struct {
	// X and Y name goals or variables. Empty X defaults to the first goal
	// (or RankAxis when there is only one goal); empty Y to the last goal.
	X, Y string

	// ErrorIndices are drawn in a separate series.
	ErrorIndices []int

	Title         string
	Width, Height vg.Length
}

// Scatter writes a PNG (or SVG/PDF, by extension) plotting every row of hof.
// Rows whose values do not parse as numbers are left out.
func Scatter(hof *refinery.HallOfFame, path string, opts Options) error {
	xName, yName := resolveAxes(hof, opts)
	if yName == "" {
		return fmt.Errorf("%w: hall of fame has no goals to plot", ErrNoPoints)
	}
	xCol, err := column(hof, xName)
	if err != nil {
		return err
	}
	yCol, err := column(hof, yName)
	if err != nil {
		return err
	}

	isError := make(map[int]bool, len(opts.ErrorIndices))
	for _, i := range opts.ErrorIndices {
		isError[i] = true
	}

	var clean, failed plotter.XYs
	for i, row := range hof.Solutions {
		x, okX := value(row, i, xCol)
		y, okY := value(row, i, yCol)
		if !okX || !okY {
			continue
		}
		if isError[i] {
			failed = append(failed, plotter.XY{X: x, Y: y})
		} else {
			clean = append(clean, plotter.XY{X: x, Y: y})
		}
	}
	if len(clean)+len(failed) == 0 {
		return ErrNoPoints
	}

	p := plot.New()
	p.Title.Text = opts.Title
	if p.Title.Text == "" {
		p.Title.Text = fmt.Sprintf("%s vs %s", yName, xName)
	}
	p.X.Label.Text = xName
	p.Y.Label.Text = yName
	p.Add(plotter.NewGrid())

	if err := addSeries(p, clean, "clean", cleanColour, draw.CircleGlyph{}); err != nil {
		return err
	}
	if err := addSeries(p, failed, "error", errorColour, draw.CrossGlyph{}); err != nil {
		return err
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	w, h := opts.Width, opts.Height
	if w <= 0 {
		w = 8 * vg.Inch
	}
	if h <= 0 {
		h = 6 * vg.Inch
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: creating %s: %w", refinery.ErrIO, filepath.Dir(path), err)
	}
	if err := p.Save(w, h, path); err != nil {
		return fmt.Errorf("%w: saving chart %s: %w", refinery.ErrIO, path, err)
	}
	return nil
}

func addSeries(p *plot.Plot, pts plotter.XYs, name string, c color.Color, shape draw.GlyphDrawer) error {
	if len(pts) == 0 {
		return nil
	}
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("building %s series: %w", name, err)
	}
	s.GlyphStyle.Color = c
	s.GlyphStyle.Shape = shape
	s.GlyphStyle.Radius = vg.Points(3)
	p.Add(s)
	p.Legend.Add(fmt.Sprintf("%s (%d)", name, len(pts)), s)
	return nil
}

func resolveAxes(hof *refinery.HallOfFame, opts Options) (string, string) {
	x, y := opts.X, opts.Y
	if y == "" && len(hof.Goals) > 0 {
		y = hof.Goals[len(hof.Goals)-1]
	}
	if x == "" {
		if len(hof.Goals) > 1 {
			x = hof.Goals[0]
		} else {
			x = RankAxis
		}
	}
	return x, y
}

// column resolves an axis name; -1 stands for the rank axis.
func column(hof *refinery.HallOfFame, name string) (int, error) {
	if name == RankAxis {
		return -1, nil
	}
	return ordering.ColumnIndex(hof, name)
}

func value(row []string, rank, col int) (float64, bool) {
	if col < 0 {
		return float64(rank), true
	}
	if col >= len(row) {
		return 0, false
	}
	f, err := strconv.ParseFloat(row[col], 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
