// Package config 负责加载与校验服务配置。
package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config 是 logdelta 的主配置载体。
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Store   StoreConfig   `mapstructure:"store"`
	Server  ServerConfig  `mapstructure:"server"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	HTTPAddr string `mapstructure:"http_addr"`
	LogPath  string `mapstructure:"log_path"`
}

// CatalogConfig 指向指标目录文件；留空则使用内置目录。
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ServerConfig 控制展示层行为。SampleLineCap 限制响应里匹配行的条数，
// 这是载荷体积的展示层约束，不影响引擎输出。
type ServerConfig struct {
	SampleLineCap int `mapstructure:"sample_line_cap"`
	HistoryLimit  int `mapstructure:"history_limit"`
}

// Load 读取 YAML 配置文件并应用默认值与校验。
// path 为空时直接返回默认配置（便于零配置启动）。
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if strings.TrimSpace(path) == "" {
		return &cfg, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		App: AppConfig{
			Env:      "dev",
			LogLevel: "info",
			HTTPAddr: ":9980",
		},
		Store: StoreConfig{
			Enabled: true,
			Path:    "data/runs.db",
		},
		Server: ServerConfig{
			SampleLineCap: 50,
			HistoryLimit:  50,
		},
	}
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.App.HTTPAddr) == "" {
		c.App.HTTPAddr = ":9980"
	}
	if strings.TrimSpace(c.App.LogLevel) == "" {
		c.App.LogLevel = "info"
	}
	if c.Server.SampleLineCap <= 0 {
		c.Server.SampleLineCap = 50
	}
	if c.Server.HistoryLimit <= 0 {
		c.Server.HistoryLimit = 50
	}
	if c.Store.Enabled && strings.TrimSpace(c.Store.Path) == "" {
		c.Store.Path = "data/runs.db"
	}
}

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if !strings.Contains(c.App.HTTPAddr, ":") {
		return fmt.Errorf("app.http_addr must contain a port (got %q)", c.App.HTTPAddr)
	}
	if c.Server.SampleLineCap > 1000 {
		return fmt.Errorf("server.sample_line_cap too large (max 1000)")
	}
	return nil
}
