package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// dumpState 原始日志的公共模式：日期/时间前缀 + SpeedTestSKT 消息体。
var (
	dateRE      = regexp.MustCompile(`(?P<date>(?:\d{4}-\d{2}-\d{2})|(?:\d{2}-\d{2}))`)
	timeRE      = regexp.MustCompile(`(?P<time>\d{2}:\d{2}:\d{2}(?:[.,]\d{3,6})?)`)
	speedTestRE = regexp.MustCompile(`(?P<msg>SpeedTestSKT\s*:\s*.*)$`)

	reqNormRE  = regexp.MustCompile(`Ping-[Rr]equest`)
	respNormRE = regexp.MustCompile(`Ping-[Rr]esponse`)
)

// DumpSummarizer 从原始 dumpState 文本中筛出 TestData 指标行。
// 与 Extractor 不同，它只认带日期/时间前缀的 SpeedTestSKT 日志行，
// 输出的摘要块再交给 Extractor 按 Summary 格式解析。
type DumpSummarizer struct {
	label    string
	filterRE *regexp.Regexp
	valueRE  *regexp.Regexp
}

// NewDumpSummarizer 按 token 编译 dumpState 行过滤与取值模式。
func NewDumpSummarizer(label, token string) (*DumpSummarizer, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errEmptyToken
	}
	quoted := regexp.QuoteMeta(token)
	filterRE, err := regexp.Compile(`(?i)SpeedTestSKT\s*:\s*TestData\b.*\b` + quoted + `\b`)
	if err != nil {
		return nil, err
	}
	valueRE, err := regexp.Compile(`(?i)\b` + quoted + `\b\s*=\s*(?P<val>[\d,]+(?:\.\d+)?)`)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(label) == "" {
		label = token
	}
	return &DumpSummarizer{label: label, filterRE: filterRE, valueRE: valueRE}, nil
}

// Summarize 过滤 dumpState 文本并恢复数值，行序与输入一致。
func (d *DumpSummarizer) Summarize(text string) (lines []string, values []float64) {
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimRight(raw, "\r")
		date, clock, ok := findDateTime(line)
		if !ok {
			continue
		}
		m := speedTestRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		msg := m[1]
		if !d.filterRE.MatchString(msg) {
			continue
		}
		lines = append(lines, date+" "+clock+" "+normalizeDisplayMsg(msg))
		if vm := d.valueRE.FindStringSubmatch(msg); vm != nil {
			if v, parsed := ParseNumber(vm[1]); parsed {
				values = append(values, v)
			}
		}
	}
	return lines, values
}

// RenderSummary 生成可直接粘贴到比较侧的摘要块，
// 含 [File]/[Metric] 头、指标行与数值计数/均值脚注。
func (d *DumpSummarizer) RenderSummary(sourceName, text string) string {
	lines, values := d.Summarize(text)
	var b strings.Builder
	fmt.Fprintf(&b, "[File] %s\n", strings.TrimSpace(sourceName))
	fmt.Fprintf(&b, "[Metric] %s\n\n", d.label)
	for _, ln := range lines {
		b.WriteString(ln)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "\n--- Count (numeric): %d ---\n", len(values))
	if len(values) > 0 {
		var sum float64
		for _, v := range values {
			sum += v
		}
		fmt.Fprintf(&b, "Mean: %.6f\n", sum/float64(len(values)))
	} else {
		b.WriteString("Mean: N/A\n")
	}
	return b.String()
}

func findDateTime(line string) (date, clock string, ok bool) {
	d := dateRE.FindStringSubmatch(line)
	t := timeRE.FindStringSubmatch(line)
	if d == nil || t == nil {
		return "", "", false
	}
	return d[1], t[1], true
}

// normalizeDisplayMsg 统一 Ping-Request/Ping-Response 的大小写写法。
func normalizeDisplayMsg(msg string) string {
	msg = reqNormRE.ReplaceAllString(msg, "Ping-Request")
	return respNormRE.ReplaceAllString(msg, "Ping-Response")
}
