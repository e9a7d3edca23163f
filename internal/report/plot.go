package report

import (
	"image/color"
	"io"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/jitsdp/jitsdp-runner/internal/metrics"
)

var ErrNoData = errors.New("nothing to plot")

const (
	width  = 8 * vg.Inch
	height = 4 * vg.Inch
)

func series(rows []metrics.Row, value func(metrics.Row) float64) plotter.XYs {
	pts := make(plotter.XYs, len(rows))
	for i, r := range rows {
		pts[i].X = float64(r.Timestep)
		pts[i].Y = value(r)
	}

	return pts
}

func save(w io.Writer, p *plot.Plot) error {
	c := vgimg.PngCanvas{Canvas: vgimg.New(width, height)}
	p.Draw(draw.New(c))
	if _, err := c.WriteTo(w); err != nil {
		return errors.Wrap(err, "write plot")
	}

	return nil
}

func newPlot(title, y string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "timestep"
	p.Y.Label.Text = y
	p.Y.Min, p.Y.Max = 0, 1
	p.Legend.Top = true

	return p
}

// PlotRecalls draws r0, r1 and g-mean along the timesteps as PNG.
func PlotRecalls(w io.Writer, title string, rows []metrics.Row) error {
	if len(rows) == 0 {
		return ErrNoData
	}

	p := newPlot(title, "recall")
	err := plotutil.AddLines(p,
		metrics.NameR0, series(rows, func(r metrics.Row) float64 { return r.R0 }),
		metrics.NameR1, series(rows, func(r metrics.Row) float64 { return r.R1 }),
		metrics.NameGMean, series(rows, func(r metrics.Row) float64 { return r.GMean }),
	)
	if err != nil {
		return errors.Wrap(err, "add recalls")
	}

	return save(w, p)
}

// PlotProportions draws the share of defective targets and predictions
// against the threshold th as PNG.
func PlotProportions(w io.Writer, title string, rows []metrics.Row, th float64) error {
	if len(rows) == 0 {
		return ErrNoData
	}

	p := newPlot(title, "proportion")
	err := plotutil.AddLines(p,
		metrics.NameT1, series(rows, func(r metrics.Row) float64 { return r.T1 }),
		metrics.NameP1, series(rows, func(r metrics.Row) float64 { return r.P1 }),
	)
	if err != nil {
		return errors.Wrap(err, "add proportions")
	}

	first, last := float64(rows[0].Timestep), float64(rows[len(rows)-1].Timestep)
	line, err := plotter.NewLine(plotter.XYs{{X: first, Y: th}, {X: last, Y: th}})
	if err != nil {
		return errors.Wrap(err, "add threshold")
	}
	line.Color = color.Gray{Y: 128}
	line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(line)
	p.Legend.Add("th", line)

	return save(w, p)
}

// PlotEfficiency draws the mean best g-mean by experiment size of every
// named curve as PNG.
func PlotEfficiency(w io.Writer, curves map[string][]Point) error {
	if len(curves) == 0 {
		return ErrNoData
	}

	p := plot.New()
	p.Title.Text = "efficiency"
	p.X.Label.Text = "experiment size"
	p.Y.Label.Text = metrics.NameGMean
	p.X.Scale = plot.LogScale{}
	p.X.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Legend.Top = true
	p.Legend.Left = true

	names := make([]string, 0, len(curves))
	for name := range curves {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]interface{}, 0, 2*len(names))
	for _, name := range names {
		stats := Aggregate(curves[name])
		pts := make(plotter.XYs, len(stats))
		for i, s := range stats {
			pts[i].X = float64(s.Size)
			pts[i].Y = s.Mean
		}
		lines = append(lines, name, pts)
	}
	if err := plotutil.AddLinePoints(p, lines...); err != nil {
		return errors.Wrap(err, "add curves")
	}

	return save(w, p)
}

// BoxMetrics are the testing metrics drawn as box plots.
var BoxMetrics = []string{metrics.NameGMean, metrics.NameR0R1, metrics.NameTHMA}

// PlotBoxplot draws one box per named configuration with the values its
// testing runs reached for metric, as PNG. Boxes are sorted by name.
func PlotBoxplot(w io.Writer, metric string, values map[string][]float64) error {
	names := make([]string, 0, len(values))
	for name, vs := range values {
		if len(vs) > 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ErrNoData
	}
	sort.Strings(names)

	p := plot.New()
	p.Title.Text = metric
	p.Y.Label.Text = metric
	for i, name := range names {
		box, err := plotter.NewBoxPlot(vg.Points(20), float64(i), plotter.Values(values[name]))
		if err != nil {
			return errors.Wrapf(err, "box of %s", name)
		}
		p.Add(box)
	}
	p.NominalX(names...)

	return save(w, p)
}
