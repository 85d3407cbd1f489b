package trace

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// Histogram builds a bar chart of calls per handler.
func Histogram(c *CallCounter, title string) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("%d dispatches over %d handlers", len(c.Trace()), len(c.Sorted())),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	ops := c.Sorted()
	labels := make([]string, len(ops))
	data := make([]opts.BarData, len(ops))
	for i, op := range ops {
		labels[i] = ProcedureName(op)
		data[i] = opts.BarData{Value: c.Calls(op)}
	}
	bar.SetXAxis(labels).AddSeries("calls", data)
	return bar
}

// RenderHistogram writes a standalone HTML page.
func RenderHistogram(w io.Writer, c *CallCounter, title string) error {
	page := components.NewPage()
	page.AddCharts(Histogram(c, title))
	return page.Render(w)
}
