package report

import (
	"fmt"
	"io"

	"github.com/cwbudde/convaccel/internal/driver"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

// RenderChart writes an interactive HTML page with the change and drift
// measure curves on a log axis. Restart steps are drawn with a larger
// triangle symbol.
func RenderChart(w io.Writer, title string, steps []driver.Step) error {
	if len(steps) == 0 {
		return ErrEmptyTrace
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:     types.ThemeWesteros,
			PageTitle: title,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("%d steps", len(steps)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "axis",
		}),
		charts.WithLegendOpts(opts.Legend{
			Right: "10",
			Top:   "20",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Name: "iteration",
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name: "magnitude",
			Type: "log",
		}),
		charts.WithDataZoomOpts(opts.DataZoom{
			Type:       "inside",
			Start:      0,
			End:        100,
			XAxisIndex: []int{0},
		}),
	)

	change, measure := columns(steps)
	xs := make([]int, len(steps))
	changeData := make([]opts.LineData, len(steps))
	measureData := make([]opts.LineData, len(steps))
	for i, s := range steps {
		xs[i] = s.Iteration
		changeData[i] = opts.LineData{Value: change[i]}
		if s.Restarted {
			changeData[i].Symbol = "triangle"
			changeData[i].SymbolSize = 12
		}
		measureData[i] = opts.LineData{Value: measure[i]}
	}

	line.SetXAxis(xs).
		AddSeries("max change", changeData).
		AddSeries("drift measure", measureData)

	page := components.NewPage()
	page.AddCharts(line)
	return page.Render(w)
}
