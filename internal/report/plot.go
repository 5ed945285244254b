package report

import (
	"fmt"
	"image/color"

	"github.com/cwbudde/convaccel/internal/driver"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// PlotTrace draws the per-step change and drift measure on a log scale and
// saves the figure to path. The format follows the file extension (png,
// svg, pdf). Restarts are marked with triangles on the change curve.
func PlotTrace(title string, steps []driver.Step, path string) error {
	if len(steps) == 0 {
		return ErrEmptyTrace
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "magnitude"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Add(plotter.NewGrid())

	change, measure := columns(steps)
	changeXY := make(plotter.XYs, len(steps))
	measureXY := make(plotter.XYs, len(steps))
	var restarts plotter.XYs
	for i, s := range steps {
		changeXY[i] = plotter.XY{X: float64(s.Iteration), Y: change[i]}
		measureXY[i] = plotter.XY{X: float64(s.Iteration), Y: measure[i]}
		if s.Restarted {
			restarts = append(restarts, changeXY[i])
		}
	}

	changeLine, err := plotter.NewLine(changeXY)
	if err != nil {
		return fmt.Errorf("report: change line: %w", err)
	}
	changeLine.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	changeLine.Width = vg.Points(1.5)

	measureLine, err := plotter.NewLine(measureXY)
	if err != nil {
		return fmt.Errorf("report: measure line: %w", err)
	}
	measureLine.Color = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	measureLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(changeLine, measureLine)
	p.Legend.Add("max change", changeLine)
	p.Legend.Add("drift measure", measureLine)
	p.Legend.Top = true

	if len(restarts) > 0 {
		marks, err := plotter.NewScatter(restarts)
		if err != nil {
			return fmt.Errorf("report: restart markers: %w", err)
		}
		marks.GlyphStyle.Shape = draw.TriangleGlyph{}
		marks.GlyphStyle.Radius = vg.Points(4)
		marks.GlyphStyle.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
		p.Add(marks)
		p.Legend.Add("restart", marks)
	}

	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("report: save %s: %w", path, err)
	}
	return nil
}
