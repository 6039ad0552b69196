package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"logdelta/internal/metric"
	"logdelta/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newTestServer(t *testing.T, runs *store.RunStore) *HTTPServer {
	t.Helper()
	s, err := NewHTTPServer(HTTPConfig{
		Metrics:       metric.NewStaticRegistry(nil),
		Runs:          runs,
		SampleLineCap: 3,
	})
	require.NoError(t, err)
	return s
}

func newTestStoreServer(t *testing.T) (*HTTPServer, *store.RunStore) {
	t.Helper()
	runs, err := store.NewRunStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = runs.Close() })
	return newTestServer(t, runs), runs
}

func doJSON(t *testing.T, s *HTTPServer, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHandleMetrics(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doJSON(t, s, http.MethodGet, "/api/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	metrics := gjson.GetBytes(rec.Body.Bytes(), "metrics")
	assert.Equal(t, int64(3), metrics.Get("#").Int())
	assert.Equal(t, "DOWNLINK", metrics.Get("0.id").String())
	assert.Equal(t, "Ping-AvgResult", metrics.Get("1.token").String())
}

func TestHandleCompare_Success(t *testing.T) {
	s, _ := newTestStoreServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/compare", map[string]string{
		"metric": "PING",
		"text_a": "[File] a.txt\nPing-AvgResult=10\nPing-AvgResult=20\nPing-AvgResult=30\n",
		"text_b": "[File] b.txt\nPing-AvgResult=15\nPing-AvgResult=25\nPing-AvgResult=35\n",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.Bytes()
	assert.NotEmpty(t, gjson.GetBytes(body, "run_id").String())
	cmp := gjson.GetBytes(body, "comparison")
	assert.Equal(t, "Ping", cmp.Get("metric_label").String())
	assert.InDelta(t, 20.0, cmp.Get("a.mean").Float(), 1e-9)
	assert.InDelta(t, 25.0, cmp.Get("b.mean").Float(), 1e-9)
	assert.InDelta(t, 25.0, cmp.Get("delta_percent").Float(), 1e-9)
	assert.Equal(t, "a.txt", cmp.Get("a.source").String())
	assert.Equal(t, int64(3), cmp.Get("b.n").Int())
}

func TestHandleCompare_UnknownMetricRejectedBeforeEngine(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doJSON(t, s, http.MethodPost, "/api/compare", map[string]string{
		"metric": "JITTER",
		"text_a": "x",
		"text_b": "y",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, gjson.GetBytes(rec.Body.Bytes(), "error").String())
}

func TestHandleCompare_MissingMetricField(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doJSON(t, s, http.MethodPost, "/api/compare", map[string]string{"text_a": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCompare_EmptySideWarnsButReturnsOther(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doJSON(t, s, http.MethodPost, "/api/compare", map[string]string{
		"metric": "PING",
		"text_a": "",
		"text_b": "Ping-AvgResult=10\n",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	cmp := gjson.GetBytes(rec.Body.Bytes(), "comparison")
	assert.True(t, cmp.Get("a.mean").Type == gjson.Null)
	assert.True(t, cmp.Get("delta_percent").Type == gjson.Null)
	assert.NotEmpty(t, cmp.Get("warning").String())
	assert.InDelta(t, 10.0, cmp.Get("b.mean").Float(), 1e-9)
	assert.Equal(t, int64(1), cmp.Get("b.n").Int())
}

func TestHandleCompare_SampleLineCapApplied(t *testing.T) {
	s := newTestServer(t, nil)
	var b strings.Builder
	for i := 0; i < 10; i++ {
		b.WriteString("Ping-AvgResult=1\n")
	}
	rec := doJSON(t, s, http.MethodPost, "/api/compare", map[string]string{
		"metric": "PING",
		"text_a": b.String(),
		"text_b": b.String(),
	})

	require.Equal(t, http.StatusOK, rec.Code)
	cmp := gjson.GetBytes(rec.Body.Bytes(), "comparison")
	// 行数按展示层上限截断，数值与计数不受影响。
	assert.Equal(t, int64(3), cmp.Get("a.lines.#").Int())
	assert.Equal(t, int64(10), cmp.Get("a.n").Int())
	assert.Equal(t, int64(10), cmp.Get("a.values.#").Int())
}

func TestHandleSummarize(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doJSON(t, s, http.MethodPost, "/api/summarize", map[string]string{
		"metric":      "PING",
		"source_name": "dump_a.txt",
		"text":        "01-15 09:00:00.000 SpeedTestSKT : TestData Ping-AvgResult=12.5\n",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	summary := gjson.GetBytes(rec.Body.Bytes(), "summary").String()
	assert.True(t, strings.HasPrefix(summary, "[File] dump_a.txt\n"))
	assert.Contains(t, summary, "Ping-AvgResult=12.5")
	assert.Contains(t, summary, "--- Count (numeric): 1 ---")
}

func TestHandleRuns_HistoryRoundTrip(t *testing.T) {
	s, _ := newTestStoreServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/compare", map[string]string{
		"metric": "UPLINK",
		"text_a": "Up-AvgResult=100\n",
		"text_b": "Up-AvgResult=110\n",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	runID := gjson.GetBytes(rec.Body.Bytes(), "run_id").String()
	require.NotEmpty(t, runID)

	list := doJSON(t, s, http.MethodGet, "/api/runs", nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Equal(t, runID, gjson.GetBytes(list.Body.Bytes(), "runs.0.id").String())

	detail := doJSON(t, s, http.MethodGet, "/api/runs/"+runID, nil)
	require.Equal(t, http.StatusOK, detail.Code)
	cmp := gjson.GetBytes(detail.Body.Bytes(), "comparison")
	assert.Equal(t, "UPLINK", cmp.Get("metric_id").String())
	assert.InDelta(t, 10.0, cmp.Get("delta_percent").Float(), 1e-9)
}

func TestHandleRuns_DisabledStore(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doJSON(t, s, http.MethodGet, "/api/runs", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleRunChart(t *testing.T) {
	s, _ := newTestStoreServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/compare", map[string]string{
		"metric": "PING",
		"text_a": "Ping-AvgResult=10\nPing-AvgResult=20\n",
		"text_b": "Ping-AvgResult=30\n",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	runID := gjson.GetBytes(rec.Body.Bytes(), "run_id").String()

	for _, mode := range []string{"mean", "series"} {
		chart := doJSON(t, s, http.MethodGet, "/api/runs/"+runID+"/chart?mode="+mode, nil)
		require.Equal(t, http.StatusOK, chart.Code, "mode=%s", mode)
		assert.Contains(t, chart.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, chart.Body.String(), "echarts")
	}

	bad := doJSON(t, s, http.MethodGet, "/api/runs/"+runID+"/chart?mode=pie", nil)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestHandleIndex(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doJSON(t, s, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Metric Selector")
}
