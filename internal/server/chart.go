package server

import (
	"bytes"
	"fmt"
	"strconv"

	"logdelta/internal/compare"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// 图表模式：均值柱状图 / 逐样本折线图，对应前端的两个展示开关。
const (
	chartModeMean   = "mean"
	chartModeSeries = "series"
)

// renderChartPage 把一次对比结果渲染成自包含的 echarts 页面。
// 图表只消费引擎输出，不做任何统计计算。
func renderChartPage(cmp compare.Comparison, mode string) ([]byte, error) {
	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("%s AvgResult Comparison", cmp.MetricLabel)

	switch mode {
	case chartModeMean:
		page.AddCharts(meanBarChart(cmp))
	case chartModeSeries:
		page.AddCharts(seriesLineChart(cmp))
	default:
		return nil, fmt.Errorf("未知图表模式: %s", mode)
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, fmt.Errorf("渲染图表失败: %w", err)
	}
	return buf.Bytes(), nil
}

func meanBarChart(cmp compare.Comparison) *charts.Bar {
	bar := charts.NewBar()
	title := fmt.Sprintf("%s Mean Comparison", cmp.MetricLabel)
	subtitle := "B vs A"
	if cmp.DeltaPercent != nil {
		subtitle = fmt.Sprintf("Delta: %+.2f%% (B vs A)", *cmp.DeltaPercent)
	} else if cmp.Warning != "" {
		subtitle = cmp.Warning
	}
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
	)

	var labels []string
	var data []opts.BarData
	if cmp.A.Mean != nil {
		labels = append(labels, "A: "+cmp.A.Source)
		data = append(data, opts.BarData{Value: *cmp.A.Mean})
	}
	if cmp.B.Mean != nil {
		labels = append(labels, "B: "+cmp.B.Source)
		data = append(data, opts.BarData{Value: *cmp.B.Mean})
	}
	bar.SetXAxis(labels).AddSeries("Mean", data)
	return bar
}

func seriesLineChart(cmp compare.Comparison) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s Series", cmp.MetricLabel),
			Subtitle: fmt.Sprintf("A: %s / B: %s", cmp.A.Source, cmp.B.Source),
		}),
	)

	n := len(cmp.A.Values)
	if len(cmp.B.Values) > n {
		n = len(cmp.B.Values)
	}
	xAxis := make([]string, n)
	for i := range xAxis {
		xAxis[i] = strconv.Itoa(i + 1)
	}
	line.SetXAxis(xAxis).
		AddSeries("A: "+cmp.A.Source, lineData(cmp.A.Values)).
		AddSeries("B: "+cmp.B.Source, lineData(cmp.B.Values))
	return line
}

func lineData(values []float64) []opts.LineData {
	out := make([]opts.LineData, 0, len(values))
	for _, v := range values {
		out = append(out, opts.LineData{Value: v})
	}
	return out
}
