package metric

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"logdelta/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// FileConfig 映射目录文件的 metrics 段。
type FileConfig struct {
	Metrics []Definition `mapstructure:"metrics" yaml:"metrics"`
}

// catalogSchema 约束目录文件结构；启动时编译一次。
// 目录文件不合法属于启动期配置错误，不进入提取/比较路径。
const catalogSchema = `{
  "type": "object",
  "required": ["metrics"],
  "properties": {
    "metrics": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "token"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "label": {"type": "string"},
          "token": {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`

var compiledCatalogSchema = jsonschema.MustCompileString("catalog.json", catalogSchema)

// ChangeListener 在目录重载后被调用。
type ChangeListener func(*Catalog)

// Registry 负责从 YAML 文件加载指标目录并监听热更新。
// path 为空时退回内置目录，不做监听。
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	catalog   *Catalog
	loadedAt  time.Time
	listeners []ChangeListener
}

// NewRegistry 读取目录文件并开始监听 FS 事件。
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{path: strings.TrimSpace(path)}
	if r.path == "" {
		r.catalog = DefaultCatalog()
		r.loadedAt = time.Now()
		return r, nil
	}
	v := viper.New()
	v.SetConfigFile(r.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read metric catalog failed: %w", err)
	}
	r.v = v
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("metric catalog reload failed (%s): %v", evt.Name, err)
			return
		}
		r.notify()
	})
	v.WatchConfig()
	return r, nil
}

// NewStaticRegistry 直接包装一个现成目录，测试时用来替换目录。
func NewStaticRegistry(c *Catalog) *Registry {
	if c == nil {
		c = DefaultCatalog()
	}
	return &Registry{catalog: c, loadedAt: time.Now()}
}

// Catalog 返回当前目录快照。Catalog 本身不可变，直接共享指针即可。
func (r *Registry) Catalog() *Catalog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.catalog
}

// Lookup 在当前快照中查找指标。
func (r *Registry) Lookup(id string) (Definition, bool) {
	return r.Catalog().Lookup(id)
}

// Subscribe 注册监听器；目录重载后异步回调。
func (r *Registry) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) reload() error {
	cfg, err := readCatalogFile(r.path)
	if err != nil {
		return err
	}
	catalog, err := NewCatalog(cfg.Metrics)
	if err != nil {
		return fmt.Errorf("metric catalog invalid (%s): %w", filepath.Base(r.path), err)
	}
	r.mu.Lock()
	r.catalog = catalog
	r.loadedAt = time.Now()
	r.mu.Unlock()
	logger.Infof("Metric catalog loaded %d definitions from %s", len(cfg.Metrics), filepath.Base(r.path))
	return nil
}

func (r *Registry) notify() {
	r.mu.RLock()
	catalog := r.catalog
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Errorf("metric catalog listener panic: %v", rec)
				}
			}()
			cb(catalog)
		}(fn)
	}
}

func readCatalogFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read metric catalog failed: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return FileConfig{}, fmt.Errorf("parse metric catalog failed: %w", err)
	}
	if err := compiledCatalogSchema.Validate(normalizeYAML(doc)); err != nil {
		return FileConfig{}, fmt.Errorf("metric catalog schema validation failed: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse metric catalog failed: %w", err)
	}
	return cfg, nil
}

// normalizeYAML 把 yaml 解码结果转成 jsonschema 可校验的形态。
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = normalizeYAML(child)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[fmt.Sprint(k)] = normalizeYAML(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = normalizeYAML(child)
		}
		return out
	case int:
		return json.Number(fmt.Sprint(val))
	default:
		return val
	}
}
