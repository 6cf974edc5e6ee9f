package monitoring

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{input: "debug", expected: slog.LevelDebug},
		{input: "WARN", expected: slog.LevelWarn},
		{input: "warning", expected: slog.LevelWarn},
		{input: "error", expected: slog.LevelError},
		{input: "info", expected: slog.LevelInfo},
		{input: "", expected: slog.LevelInfo},
		{input: "verbose", expected: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestFitLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, slog.LevelInfo, true)

	logger.FitLogger("run-1", "newton", 3, 12, 5*time.Millisecond, false)

	out := buf.String()
	assert.Contains(t, out, `"msg":"Fit Completed"`)
	assert.Contains(t, out, `"run_id":"run-1"`)
	assert.Contains(t, out, `"comparisons":12`)
	assert.Contains(t, out, `"timestamp"`)
}

func TestRecordFit(t *testing.T) {
	m := NewMetrics()

	m.RecordFit("newton", 10, time.Millisecond, nil)
	m.RecordFit("mm", 4, time.Millisecond, errors.New("bad log"))

	stats := m.GetStats()
	assert.Equal(t, int64(2), stats["fits"])
	assert.Equal(t, int64(1), stats["fit_errors"])
	assert.Equal(t, int64(10), stats["comparisons"])
}

func TestPercentiles(t *testing.T) {
	m := NewMetrics()
	assert.Equal(t, time.Duration(0), m.GetPercentileResponseTime(50))

	for i := 1; i <= 100; i++ {
		m.RecordResponseTime(time.Duration(i) * time.Millisecond)
	}
	assert.Equal(t, 50*time.Millisecond, m.GetPercentileResponseTime(50))
	assert.Equal(t, 100*time.Millisecond, m.GetPercentileResponseTime(100))
}

func TestPrometheusHandler(t *testing.T) {
	m := NewMetrics()
	m.RecordFit("newton", 3, time.Millisecond, nil)
	m.IncrementCacheHit()

	w := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, "/metrics", nil)
	require.NoError(t, err)
	m.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `btrank_fits_total{method="newton",outcome="success"} 1`)
	assert.Contains(t, body, "btrank_comparisons_total 3")
	assert.Contains(t, body, `btrank_cache_lookups_total{result="hit"} 1`)
}

func TestMonitoringMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	metrics := NewMetrics()
	logger := NewLoggerTo(&buf, slog.LevelInfo, false)

	r := gin.New()
	r.Use(MonitoringMiddleware(metrics, logger))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	for _, path := range []string{"/ok", "/bad", "/ok"} {
		req, err := http.NewRequest(http.MethodGet, path, nil)
		require.NoError(t, err)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, int64(3), metrics.RequestCount)
	assert.Equal(t, int64(1), metrics.ErrorCount)
	assert.Equal(t, map[int]int64{200: 2, 400: 1}, metrics.GetStatusCodeDistribution())
	assert.Equal(t, 3, strings.Count(buf.String(), "HTTP Request"))
}
