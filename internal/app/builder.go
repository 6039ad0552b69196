package app

import (
	"context"
	"fmt"

	"logdelta/internal/config"
	"logdelta/internal/logger"
	"logdelta/internal/metric"
	"logdelta/internal/server"
	"logdelta/internal/store"
)

// AppBuilder 按依赖顺序装配应用组件。
type AppBuilder struct {
	cfg *config.Config
}

func NewAppBuilder(cfg *config.Config) *AppBuilder {
	return &AppBuilder{cfg: cfg}
}

// Build 初始化目录、存储与 HTTP 服务。
func (b *AppBuilder) Build(_ context.Context) (*App, error) {
	if b == nil || b.cfg == nil {
		return nil, fmt.Errorf("nil builder config")
	}

	metrics, err := metric.NewRegistry(b.cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("初始化指标目录失败: %w", err)
	}
	metrics.Subscribe(func(c *metric.Catalog) {
		logger.Infof("指标目录已更新，共 %d 个指标", len(c.List()))
	})

	var runs *store.RunStore
	if b.cfg.Store.Enabled {
		runs, err = store.NewRunStore(b.cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("初始化历史存储失败: %w", err)
		}
	}

	httpSrv, err := server.NewHTTPServer(server.HTTPConfig{
		Addr:          b.cfg.App.HTTPAddr,
		Metrics:       metrics,
		Runs:          runs,
		SampleLineCap: b.cfg.Server.SampleLineCap,
		HistoryLimit:  b.cfg.Server.HistoryLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 HTTP 服务失败: %w", err)
	}

	return &App{cfg: b.cfg, runs: runs, http: httpSrv}, nil
}
