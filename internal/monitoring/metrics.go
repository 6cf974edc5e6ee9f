package monitoring

import (
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds application metrics. Counters are kept as plain atomics for
// the JSON stats endpoint and mirrored into a Prometheus registry.
type Metrics struct {
	RequestCount int64
	ErrorCount   int64
	CacheHits    int64
	CacheMisses  int64
	StartTime    time.Time

	FitCount         int64
	FitErrorCount    int64
	ComparisonsTotal int64

	RateLimitBlocks        int64
	RateLimitRedisErrors   int64
	RateLimitFallbackCount int64

	ResponseTimes      []time.Duration
	ResponseTimesMutex sync.RWMutex

	RequestCountByStatus map[int]int64
	StatusMutex          sync.RWMutex

	registry        *prometheus.Registry
	httpRequests    *prometheus.CounterVec
	httpDuration    prometheus.Histogram
	fits            *prometheus.CounterVec
	fitDuration     prometheus.Histogram
	comparisons     prometheus.Counter
	cacheLookups    *prometheus.CounterVec
	rateLimitEvents *prometheus.CounterVec
}

// NewMetrics creates a new metrics instance with its own Prometheus registry
func NewMetrics() *Metrics {
	m := &Metrics{
		StartTime:            time.Now(),
		ResponseTimes:        make([]time.Duration, 0, 1000),
		RequestCountByStatus: make(map[int]int64),
		registry:             prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "btrank_http_requests_total",
			Help: "HTTP requests by status code.",
		}, []string{"status"}),
		httpDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "btrank_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}),
		fits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "btrank_fits_total",
			Help: "Fits by optimizer method and outcome.",
		}, []string{"method", "outcome"}),
		fitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "btrank_fit_duration_seconds",
			Help:    "Time spent parsing and optimizing a fit.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		comparisons: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "btrank_comparisons_total",
			Help: "Pairwise comparisons fed to the optimizer.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "btrank_cache_lookups_total",
			Help: "Fit result cache lookups by result.",
		}, []string{"result"}),
		rateLimitEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "btrank_rate_limit_events_total",
			Help: "Rate limiter decisions and failures.",
		}, []string{"event"}),
	}

	m.registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.fits,
		m.fitDuration,
		m.comparisons,
		m.cacheLookups,
		m.rateLimitEvents,
	)

	return m
}

// Handler exposes the Prometheus registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry metrics are recorded in
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// IncrementRequest increments the request count
func (m *Metrics) IncrementRequest() {
	atomic.AddInt64(&m.RequestCount, 1)
}

// IncrementError increments the error count
func (m *Metrics) IncrementError() {
	atomic.AddInt64(&m.ErrorCount, 1)
}

// IncrementCacheHit increments cache hit count
func (m *Metrics) IncrementCacheHit() {
	atomic.AddInt64(&m.CacheHits, 1)
	m.cacheLookups.WithLabelValues("hit").Inc()
}

// IncrementCacheMiss increments cache miss count
func (m *Metrics) IncrementCacheMiss() {
	atomic.AddInt64(&m.CacheMisses, 1)
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// RecordFit records the outcome of one fit
func (m *Metrics) RecordFit(method string, comparisons int, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
		atomic.AddInt64(&m.FitErrorCount, 1)
	} else {
		atomic.AddInt64(&m.ComparisonsTotal, int64(comparisons))
		m.comparisons.Add(float64(comparisons))
	}
	atomic.AddInt64(&m.FitCount, 1)
	m.fits.WithLabelValues(method, outcome).Inc()
	m.fitDuration.Observe(duration.Seconds())
}

// RecordResponseTime stores a response time sample, keeping the last 1000
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	m.httpDuration.Observe(duration.Seconds())

	m.ResponseTimesMutex.Lock()
	m.ResponseTimes = append(m.ResponseTimes, duration)
	if len(m.ResponseTimes) > 1000 {
		m.ResponseTimes = m.ResponseTimes[1:]
	}
	m.ResponseTimesMutex.Unlock()
}

// RecordRequestByStatus records request count by HTTP status code
func (m *Metrics) RecordRequestByStatus(statusCode int) {
	m.httpRequests.WithLabelValues(strconv.Itoa(statusCode)).Inc()

	m.StatusMutex.Lock()
	defer m.StatusMutex.Unlock()
	m.RequestCountByStatus[statusCode]++
}

// IncrementRateLimitBlock counts a rejected request
func (m *Metrics) IncrementRateLimitBlock() {
	atomic.AddInt64(&m.RateLimitBlocks, 1)
	m.rateLimitEvents.WithLabelValues("blocked").Inc()
}

// IncrementRateLimitRedisError counts a failed Redis check
func (m *Metrics) IncrementRateLimitRedisError() {
	atomic.AddInt64(&m.RateLimitRedisErrors, 1)
	m.rateLimitEvents.WithLabelValues("redis_error").Inc()
}

// IncrementRateLimitFallback counts a check served by the in-memory limiter
func (m *Metrics) IncrementRateLimitFallback() {
	atomic.AddInt64(&m.RateLimitFallbackCount, 1)
	m.rateLimitEvents.WithLabelValues("fallback").Inc()
}

// GetPercentileResponseTime calculates percentile response time
func (m *Metrics) GetPercentileResponseTime(percentile float64) time.Duration {
	m.ResponseTimesMutex.RLock()
	defer m.ResponseTimesMutex.RUnlock()

	if len(m.ResponseTimes) == 0 {
		return 0
	}

	times := make([]time.Duration, len(m.ResponseTimes))
	copy(times, m.ResponseTimes)
	sort.Slice(times, func(i, j int) bool {
		return times[i] < times[j]
	})

	index := int(float64(len(times)-1) * percentile / 100.0)
	if index >= len(times) {
		index = len(times) - 1
	}
	return times[index]
}

// GetStatusCodeDistribution returns request count by status code
func (m *Metrics) GetStatusCodeDistribution() map[int]int64 {
	m.StatusMutex.RLock()
	defer m.StatusMutex.RUnlock()

	dist := make(map[int]int64, len(m.RequestCountByStatus))
	for code, count := range m.RequestCountByStatus {
		dist[code] = count
	}
	return dist
}

// GetStats returns a JSON friendly snapshot
func (m *Metrics) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"uptime_seconds":    time.Since(m.StartTime).Seconds(),
		"requests":          atomic.LoadInt64(&m.RequestCount),
		"errors":            atomic.LoadInt64(&m.ErrorCount),
		"cache_hits":        atomic.LoadInt64(&m.CacheHits),
		"cache_misses":      atomic.LoadInt64(&m.CacheMisses),
		"fits":              atomic.LoadInt64(&m.FitCount),
		"fit_errors":        atomic.LoadInt64(&m.FitErrorCount),
		"comparisons":       atomic.LoadInt64(&m.ComparisonsTotal),
		"rate_limit_blocks": atomic.LoadInt64(&m.RateLimitBlocks),
		"p50_ms":            m.GetPercentileResponseTime(50).Milliseconds(),
		"p95_ms":            m.GetPercentileResponseTime(95).Milliseconds(),
		"status_codes":      m.GetStatusCodeDistribution(),
	}
}
