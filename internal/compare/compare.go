// Package compare 对 A/B 两段摘要文本做同指标统计对比。
package compare

import (
	"context"

	"logdelta/internal/extract"
	"logdelta/internal/metric"

	"golang.org/x/sync/errgroup"
)

// 无数据 / 零基线时写入 Comparison.Warning 的提示语。
const (
	WarnNoData       = "need numeric values in both A and B"
	WarnZeroBaseline = "A mean is 0, delta undefined"
)

// Aggregate 汇总单侧提取结果。Mean 为 nil 表示该侧没有任何可用数值，
// 调用方必须显式处理，不用哨兵值。
type Aggregate struct {
	Source string    `json:"source"`
	Count  int       `json:"n"`
	Mean   *float64  `json:"mean"`
	Values []float64 `json:"values"`
	Lines  []string  `json:"lines"`
}

// Comparison 是一次 A/B 对比的完整结果。
// DeltaPercent 仅在两侧均值都存在且 A 均值非零时有值。
type Comparison struct {
	MetricID     string    `json:"metric_id"`
	MetricLabel  string    `json:"metric_label"`
	Token        string    `json:"token"`
	A            Aggregate `json:"a"`
	B            Aggregate `json:"b"`
	DeltaPercent *float64  `json:"delta_percent"`
	Warning      string    `json:"warning,omitempty"`
}

// Compare 对 textA/textB 各跑一次独立提取并计算均值与百分比差。
// 两次提取互不依赖，并发执行与顺序执行结果一致；提取本身纯函数，
// errgroup 只负责汇合。
func Compare(ctx context.Context, def metric.Definition, textA, textB string) (Comparison, error) {
	ex, err := extract.NewExtractor(def.Token)
	if err != nil {
		return Comparison{}, err
	}

	var resA, resB extract.Result
	group, _ := errgroup.WithContext(ctx)
	group.Go(func() error {
		resA = ex.Extract(textA)
		return nil
	})
	group.Go(func() error {
		resB = ex.Extract(textB)
		return nil
	})
	if err := group.Wait(); err != nil {
		return Comparison{}, err
	}

	cmp := Comparison{
		MetricID:    def.ID,
		MetricLabel: def.Label,
		Token:       def.Token,
		A:           aggregate(resA),
		B:           aggregate(resB),
	}
	switch {
	case cmp.A.Mean == nil || cmp.B.Mean == nil:
		cmp.Warning = WarnNoData
	case *cmp.A.Mean == 0:
		// 业务规则：零基线下 delta 未定义，而不是 ±Inf。
		cmp.Warning = WarnZeroBaseline
	default:
		d := ((*cmp.B.Mean - *cmp.A.Mean) / *cmp.A.Mean) * 100.0
		cmp.DeltaPercent = &d
	}
	return cmp, nil
}

// aggregate 汇总一侧提取结果；count==0 时 Mean 留 nil。
func aggregate(res extract.Result) Aggregate {
	agg := Aggregate{
		Source: res.SourceName,
		Count:  len(res.Values),
		Values: res.Values,
		Lines:  res.MatchedLines,
	}
	if agg.Count > 0 {
		var sum float64
		for _, v := range res.Values {
			sum += v
		}
		mean := sum / float64(agg.Count)
		agg.Mean = &mean
	}
	return agg
}
