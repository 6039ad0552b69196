package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"logdelta/internal/compare"
	"logdelta/internal/extract"
	"logdelta/internal/logger"
	"logdelta/internal/metric"
	"logdelta/internal/server/ui"
	"logdelta/internal/store"

	"github.com/gin-gonic/gin"
)

// HTTPServer 提供 Gin 接口：对比、摘要、历史与图表。
type HTTPServer struct {
	addr          string
	metrics       *metric.Registry
	runs          *store.RunStore
	sampleLineCap int
	historyLimit  int
	router        *gin.Engine
	indexHTML     []byte
}

type HTTPConfig struct {
	Addr          string
	Metrics       *metric.Registry
	Runs          *store.RunStore // 可为 nil：禁用历史与图表
	SampleLineCap int
	HistoryLimit  int
}

func NewHTTPServer(cfg HTTPConfig) (*HTTPServer, error) {
	if cfg.Metrics == nil {
		return nil, errors.New("metric registry 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9980"
	}
	if cfg.SampleLineCap <= 0 {
		cfg.SampleLineCap = 50
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	indexHTML, err := ui.Index()
	if err != nil {
		return nil, fmt.Errorf("加载前端首页失败: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &HTTPServer{
		addr:          cfg.Addr,
		metrics:       cfg.Metrics,
		runs:          cfg.Runs,
		sampleLineCap: cfg.SampleLineCap,
		historyLimit:  cfg.HistoryLimit,
		router:        router,
		indexHTML:     indexHTML,
	}
	s.registerRoutes()
	return s, nil
}

func (s *HTTPServer) registerRoutes() {
	s.router.GET("/", s.handleIndex)
	api := s.router.Group("/api")
	api.GET("/metrics", s.handleMetrics)
	api.POST("/compare", s.handleCompare)
	api.POST("/summarize", s.handleSummarize)
	api.GET("/runs", s.handleRunList)
	api.GET("/runs/:id", s.handleRunDetail)
	api.GET("/runs/:id/chart", s.handleRunChart)
}

// Router 暴露底层路由，测试时配合 httptest 使用。
func (s *HTTPServer) Router() http.Handler { return s.router }

func (s *HTTPServer) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", s.indexHTML)
}

func (s *HTTPServer) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"metrics": s.metrics.Catalog().List()})
}

func (s *HTTPServer) handleCompare(c *gin.Context) {
	var req struct {
		Metric string `json:"metric" binding:"required"`
		TextA  string `json:"text_a"`
		TextB  string `json:"text_b"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// 未知指标属于调用方错误，必须在进入引擎前拒绝。
	def, ok := s.metrics.Lookup(req.Metric)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("未知指标: %s", req.Metric)})
		return
	}
	cmp, err := compare.Compare(c.Request.Context(), def, req.TextA, req.TextB)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	runID := ""
	if s.runs != nil {
		id, err := s.runs.InsertComparison(c.Request.Context(), cmp)
		if err != nil {
			// 持久化失败不影响对比结果返回。
			logger.Warnf("persist comparison run failed: %v", err)
		} else {
			runID = id
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":     runID,
		"comparison": s.comparisonView(cmp),
	})
}

func (s *HTTPServer) handleSummarize(c *gin.Context) {
	var req struct {
		Metric     string `json:"metric" binding:"required"`
		SourceName string `json:"source_name"`
		Text       string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	def, ok := s.metrics.Lookup(req.Metric)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("未知指标: %s", req.Metric)})
		return
	}
	summarizer, err := extract.NewDumpSummarizer(def.Label, def.Token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	name := req.SourceName
	if name == "" {
		name = extract.DefaultSourceName
	}
	c.JSON(http.StatusOK, gin.H{"summary": summarizer.RenderSummary(name, req.Text)})
}

func (s *HTTPServer) handleRunList(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "历史存储未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(s.historyLimit)))
	rows, err := s.runs.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	list := make([]gin.H, 0, len(rows))
	for _, r := range rows {
		list = append(list, gin.H{
			"id":            r.ID,
			"metric_id":     r.MetricID,
			"metric_label":  r.MetricLabel,
			"source_a":      r.SourceA,
			"source_b":      r.SourceB,
			"n_a":           r.CountA,
			"n_b":           r.CountB,
			"mean_a":        r.MeanA,
			"mean_b":        r.MeanB,
			"delta_percent": r.DeltaPercent,
			"warning":       r.Warning,
			"created_at":    r.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"runs": list})
}

func (s *HTTPServer) handleRunDetail(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "历史存储未启用"})
		return
	}
	row, err := s.runs.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	cmp, err := row.Comparison()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":     row.ID,
		"created_at": row.CreatedAt,
		"comparison": s.comparisonView(cmp),
	})
}

func (s *HTTPServer) handleRunChart(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "历史存储未启用"})
		return
	}
	row, err := s.runs.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	cmp, err := row.Comparison()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	mode := c.DefaultQuery("mode", chartModeMean)
	html, err := renderChartPage(cmp, mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

// aggregateView 是 Aggregate 的响应视图，匹配行按展示层上限截断。
type aggregateView struct {
	Source string    `json:"source"`
	Count  int       `json:"n"`
	Mean   *float64  `json:"mean"`
	Values []float64 `json:"values"`
	Lines  []string  `json:"lines"`
}

type comparisonView struct {
	MetricID     string        `json:"metric_id"`
	MetricLabel  string        `json:"metric_label"`
	Token        string        `json:"token"`
	A            aggregateView `json:"a"`
	B            aggregateView `json:"b"`
	DeltaPercent *float64      `json:"delta_percent"`
	Warning      string        `json:"warning,omitempty"`
}

func (s *HTTPServer) comparisonView(cmp compare.Comparison) comparisonView {
	return comparisonView{
		MetricID:     cmp.MetricID,
		MetricLabel:  cmp.MetricLabel,
		Token:        cmp.Token,
		A:            s.aggregateView(cmp.A),
		B:            s.aggregateView(cmp.B),
		DeltaPercent: cmp.DeltaPercent,
		Warning:      cmp.Warning,
	}
}

func (s *HTTPServer) aggregateView(agg compare.Aggregate) aggregateView {
	lines := agg.Lines
	if len(lines) > s.sampleLineCap {
		lines = lines[:s.sampleLineCap]
	}
	values := agg.Values
	if values == nil {
		values = []float64{}
	}
	if lines == nil {
		lines = []string{}
	}
	return aggregateView{
		Source: agg.Source,
		Count:  agg.Count,
		Mean:   agg.Mean,
		Values: values,
		Lines:  lines,
	}
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *HTTPServer) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
