// Package extract 从非结构化诊断日志文本中定位指标行并恢复数值。
//
// 行匹配与数值恢复是两个独立阶段：先按 token 整词匹配挑出相关行，再尝试
// 从行内取数。匹配到行但取不到数不算错误，行仍会保留在 MatchedLines 中，
// 便于排查格式异常的日志。
package extract

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var errEmptyToken = errors.New("token 不能为空")

// DefaultSourceName 在文本中没有 [File] 头时作为来源占位符。
const DefaultSourceName = "Pasted"

var (
	fileHeaderRE   = regexp.MustCompile(`(?i)^\[file\]\s+(?P<name>.+?)\s*$`)
	metricHeaderRE = regexp.MustCompile(`(?i)^\[metric\]\s+(?P<name>.+?)\s*$`)
)

// Result 是一次提取的产物，按行在输入中出现的顺序排列。
// len(Values) <= len(MatchedLines)：匹配行可能恢复不出数值。
type Result struct {
	SourceName   string
	MetricName   string
	MatchedLines []string
	Values       []float64
}

// Extractor 持有针对单个 token 编译好的匹配模式。
// 无共享可变状态，可被任意多个 goroutine 并发使用。
type Extractor struct {
	token   string
	lineRE  *regexp.Regexp
	valueRE *regexp.Regexp
}

// NewExtractor 按 token 编译行分类与取值两个模式。
// 整词匹配（\b，字母数字加下划线为词字符），大小写不敏感；
// 取值允许 "=" 或空白作分隔，数字可带千分位逗号与小数部分。
func NewExtractor(token string) (*Extractor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errEmptyToken
	}
	quoted := regexp.QuoteMeta(token)
	lineRE, err := regexp.Compile(`(?i)\b` + quoted + `\b`)
	if err != nil {
		return nil, err
	}
	valueRE, err := regexp.Compile(`(?i)\b` + quoted + `\b.*?(?:=|\s)(?P<val>[\d,]+(?:\.\d+)?)\b`)
	if err != nil {
		return nil, err
	}
	return &Extractor{token: token, lineRE: lineRE, valueRE: valueRE}, nil
}

// Token 返回提取器绑定的 token。
func (e *Extractor) Token() string { return e.token }

// MatchLine 判断一行是否包含整词 token（行分类谓词）。
func (e *Extractor) MatchLine(line string) bool {
	return e.lineRE.MatchString(line)
}

// RecoverValue 尝试从一行中恢复 token 后的数值（取值谓词）。
// 一行内只取第一个成功的 token→数值关联；失败时返回 ok=false。
func (e *Extractor) RecoverValue(line string) (float64, bool) {
	m := e.valueRE.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	return ParseNumber(m[1])
}

// Extract 逐行扫描文本：识别 [File]/[Metric] 头、分类指标行、恢复数值。
// 头行优先于 token 匹配，永远不会进入 MatchedLines。纯函数，结果只取决于
// (text, token)，重复行各自独立计入，不去重不排序。
func (e *Extractor) Extract(text string) Result {
	res := Result{SourceName: DefaultSourceName}
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if m := fileHeaderRE.FindStringSubmatch(line); m != nil {
			res.SourceName = strings.TrimSpace(m[1])
			continue
		}
		if m := metricHeaderRE.FindStringSubmatch(line); m != nil {
			res.MetricName = strings.TrimSpace(m[1])
			continue
		}
		if !e.MatchLine(line) {
			continue
		}
		res.MatchedLines = append(res.MatchedLines, line)
		if v, ok := e.RecoverValue(line); ok {
			res.Values = append(res.Values, v)
		}
	}
	return res
}

// ParseNumber 去掉千分位逗号后按十进制浮点解析。
// 解析失败或得到 NaN/Inf 时返回 ok=false，调用方不追加数值。
func ParseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
