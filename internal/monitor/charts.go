package monitor

import (
	"fmt"
	"io"
	"sort"

	"github.com/banshee-data/arthylene/internal/anchor"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// byType groups records by produce type, in ascending type order.
func byType(records []anchor.Record) ([]int, map[int][]anchor.Record) {
	groups := make(map[int][]anchor.Record)
	for _, r := range records {
		groups[r.Type] = append(groups[r.Type], r)
	}
	types := make([]int, 0, len(groups))
	for t := range groups {
		types = append(types, t)
	}
	sort.Ints(types)
	return types, groups
}

// AnchorChart renders a top-down (X/Z) scatter of records, one series
// per produce type.
func AnchorChart(title string, records []anchor.Record, cat anchor.Catalog) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Anchors " + title, Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("anchors=%d (top-down)", len(records))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Z (m)", NameLocation: "middle", NameGap: 30}),
	)

	types, groups := byType(records)
	for _, t := range types {
		name := cat.DisplayName(anchor.ProduceType(t))
		data := make([]opts.ScatterData, 0, len(groups[t]))
		for _, r := range groups[t] {
			data = append(data, opts.ScatterData{Name: name, Value: []interface{}{r.Position[0], r.Position[2]}})
		}
		scatter.AddSeries(name, data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))
	}
	return scatter
}

// AnchorPlot builds a top-down (X/Z) scatter plot of records.
func AnchorPlot(title string, records []anchor.Record, cat anchor.Catalog) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Z (m)"
	p.Add(plotter.NewGrid())

	types, groups := byType(records)
	for i, t := range types {
		xys := make(plotter.XYs, 0, len(groups[t]))
		for _, r := range groups[t] {
			xys = append(xys, plotter.XY{X: r.Position[0], Y: r.Position[2]})
		}
		sc, err := plotter.NewScatter(xys)
		if err != nil {
			return nil, fmt.Errorf("type %d: %w", t, err)
		}
		sc.GlyphStyle.Color = plotutil.Color(i)
		sc.GlyphStyle.Shape = plotutil.Shape(i)
		sc.GlyphStyle.Radius = vg.Points(4)
		p.Add(sc)
		p.Legend.Add(cat.DisplayName(anchor.ProduceType(t)), sc)
	}
	return p, nil
}

// WritePNG renders p as a square PNG of the given side length.
func WritePNG(w io.Writer, p *plot.Plot, side vg.Length) error {
	wt, err := p.WriterTo(side, side, "png")
	if err != nil {
		return fmt.Errorf("render plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write plot: %w", err)
	}
	return nil
}
