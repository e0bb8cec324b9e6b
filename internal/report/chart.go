package report

import (
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"repairdesk/internal/servicehistory"
)

// BuildChart builds a stacked bar chart of damage labels per device.
func BuildChart(title string, res servicehistory.Result) *charts.Bar {
	bar := charts.NewBar()
	subtitle := "No data"
	if len(res.Summaries) > 0 {
		subtitle = "Services per device by damage"
	}
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
	)

	devices := make([]string, len(res.Summaries))
	labelSet := make(map[string]struct{})
	for i, d := range res.Summaries {
		devices[i] = d.DeviceKey
		for l := range d.DamageBreakdown {
			labelSet[l] = struct{}{}
		}
	}
	labels := make([]string, 0, len(labelSet))
	for l := range labelSet {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	bar.SetXAxis(devices)
	for _, l := range labels {
		data := make([]opts.BarData, len(res.Summaries))
		for i, d := range res.Summaries {
			data[i] = opts.BarData{Value: d.DamageBreakdown[l]}
		}
		bar.AddSeries(l, data, charts.WithBarChartOpts(opts.BarChart{Stack: "damage"}))
	}
	return bar
}

// Chart renders BuildChart as a standalone HTML page.
func Chart(w io.Writer, title string, res servicehistory.Result) error {
	return BuildChart(title, res).Render(w)
}
