package metric

import (
	"fmt"
	"sort"
	"strings"
)

// Definition 描述单个指标：稳定 id、展示名以及行匹配 token。
type Definition struct {
	ID    string `mapstructure:"id" yaml:"id" json:"id"`
	Label string `mapstructure:"label" yaml:"label" json:"label"`
	Token string `mapstructure:"token" yaml:"token" json:"token"`
}

// Catalog 是 id→Definition 的不可变映射，进程启动时构建一次。
type Catalog struct {
	defs map[string]Definition
}

// NewCatalog 构建目录；id 统一大写作为查找键。
func NewCatalog(defs []Definition) (*Catalog, error) {
	m := make(map[string]Definition, len(defs))
	for _, d := range defs {
		id := strings.ToUpper(strings.TrimSpace(d.ID))
		if id == "" {
			return nil, fmt.Errorf("指标 id 不能为空")
		}
		if strings.TrimSpace(d.Token) == "" {
			return nil, fmt.Errorf("指标 %s 缺少 token", id)
		}
		if _, dup := m[id]; dup {
			return nil, fmt.Errorf("指标 id 重复: %s", id)
		}
		d.ID = id
		if strings.TrimSpace(d.Label) == "" {
			d.Label = id
		}
		m[id] = d
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("目录至少需要一个指标")
	}
	return &Catalog{defs: m}, nil
}

// Lookup 按 id 查找指标定义（大小写不敏感）。
func (c *Catalog) Lookup(id string) (Definition, bool) {
	if c == nil {
		return Definition{}, false
	}
	d, ok := c.defs[strings.ToUpper(strings.TrimSpace(id))]
	return d, ok
}

// List 返回全部定义，按 id 排序，供前端渲染选择器。
func (c *Catalog) List() []Definition {
	if c == nil {
		return nil
	}
	out := make([]Definition, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DefaultDefinitions 返回内置指标（与 SpeedTestSKT 日志格式对应）。
func DefaultDefinitions() []Definition {
	return []Definition{
		{ID: "PING", Label: "Ping", Token: "Ping-AvgResult"},
		{ID: "UPLINK", Label: "Uplink TP", Token: "Up-AvgResult"},
		{ID: "DOWNLINK", Label: "Downlink TP", Token: "Down-AvgResult"},
	}
}

// DefaultCatalog 返回内置目录；内置定义不会构建失败。
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultDefinitions())
	if err != nil {
		panic(err)
	}
	return c
}
