package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/btrank/internal/cache"
	"github.com/ZanzyTHEbar/btrank/internal/config"
	"github.com/ZanzyTHEbar/btrank/internal/database"
	apperrors "github.com/ZanzyTHEbar/btrank/internal/errors"
	"github.com/ZanzyTHEbar/btrank/internal/features"
	"github.com/ZanzyTHEbar/btrank/internal/monitoring"
	"github.com/ZanzyTHEbar/btrank/internal/optimizer"
	"github.com/ZanzyTHEbar/btrank/internal/ratelimit"
	"github.com/ZanzyTHEbar/btrank/internal/report"
	"github.com/ZanzyTHEbar/btrank/internal/security"
	"github.com/ZanzyTHEbar/btrank/internal/types"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

type server struct {
	cfg     *config.Config
	repo    *database.Repository
	db      pinger
	redis   *ratelimit.RedisClient
	cache   *cache.Cache
	limiter *ratelimit.RateLimiter
	metrics *monitoring.Metrics
	logger  *monitoring.Logger
}

func newServer(
	cfg *config.Config,
	repo *database.Repository,
	db pinger,
	redis *ratelimit.RedisClient,
	fitCache *cache.Cache,
	limiter *ratelimit.RateLimiter,
	metrics *monitoring.Metrics,
	logger *monitoring.Logger,
) *server {
	return &server{
		cfg:     cfg,
		repo:    repo,
		db:      db,
		redis:   redis,
		cache:   fitCache,
		limiter: limiter,
		metrics: metrics,
		logger:  logger,
	}
}

func (s *server) router() *gin.Engine {
	r := gin.New()

	r.Use(apperrors.RecoveryHandler())
	r.Use(monitoring.MonitoringMiddleware(s.metrics, s.logger))
	r.Use(apperrors.ErrorHandler())

	sec := security.NewMiddleware(security.Config{
		AllowedOrigins: s.cfg.AllowedOrigins,
		RequestTimeout: s.cfg.FitTimeout + 5*time.Second,
		MaxBodyBytes:   s.cfg.MaxBodyBytes,
	})
	r.Use(sec.Handlers()...)

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := r.Group("/api/v1")
	api.Use(s.limiter.Middleware())
	{
		api.POST("/fit", s.fit)
		api.GET("/runs", s.listRuns)
		api.GET("/runs/:id", s.getRun)
		api.DELETE("/runs/:id", s.deleteRun)
		api.GET("/stats", s.stats)
	}

	return r
}

func (s *server) health(c *gin.Context) {
	status := http.StatusOK
	checks := gin.H{"database": "ok", "redis": "disabled"}

	if err := s.db.PingContext(c.Request.Context()); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if s.redis.IsEnabled() {
		if err := s.redis.HealthCheck(c.Request.Context()); err != nil {
			// rate limiting degrades to memory, so redis never fails the check
			checks["redis"] = err.Error()
		} else {
			checks["redis"] = "ok"
		}
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":    state,
		"version":   version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (s *server) fit(c *gin.Context) {
	var req types.FitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			_ = c.Error(appErr)
			return
		}
		_ = c.Error(apperrors.NewMalformedError("invalid request body", map[string]interface{}{"error": err.Error()}))
		return
	}
	if err := req.Validate(); err != nil {
		_ = c.Error(err)
		return
	}

	optCfg := s.cfg.OptimizerConfig()
	if req.Alpha != nil {
		optCfg.Alpha = *req.Alpha
	}
	method := s.cfg.Method
	if req.Method != "" {
		method = req.Method
	}
	opt, err := optimizer.New(method, optCfg)
	if err != nil {
		_ = c.Error(err)
		return
	}

	key := req.CacheKey(opt.Method(), optCfg.Alpha)
	if !req.Save {
		if data, ok := s.cache.Get(key); ok {
			var cached types.FitResponse
			if err := json.Unmarshal(data, &cached); err == nil {
				s.metrics.IncrementCacheHit()
				cached.CacheHit = true
				s.logger.FitLogger("", cached.Method, len(cached.Features), cached.Comparisons, 0, true)
				c.JSON(http.StatusOK, cached)
				return
			}
		}
		s.metrics.IncrementCacheMiss()
	}

	set, err := req.BuildSet()
	if err != nil {
		_ = c.Error(err)
		return
	}
	pairs, err := set.ParseComparisons(strings.NewReader(req.Comparisons))
	if err != nil {
		_ = c.Error(err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.FitTimeout)
	defer cancel()

	start := time.Now()
	err = set.FitPairs(ctx, pairs,
		features.WithOptimizer(opt),
		features.WithLogger(s.logger.Logger),
	)
	duration := time.Since(start)
	s.metrics.RecordFit(opt.Method(), len(pairs), duration, err)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = apperrors.NewTimeoutError(fmt.Sprintf("fit exceeded %s", s.cfg.FitTimeout), err)
		}
		_ = c.Error(err)
		return
	}

	resp := types.NewFitResponse(set, opt.Method(), optCfg.Alpha, len(pairs), req.Ranked)
	if data, err := json.Marshal(resp); err == nil {
		s.cache.Set(key, data)
	}

	status := http.StatusOK
	if req.Save {
		run := database.NewFitRun(set, "api", opt.Method(), optCfg.Alpha, len(pairs))
		if err := s.repo.SaveRun(c.Request.Context(), run); err != nil {
			_ = c.Error(apperrors.NewInternalError("failed to save run", err))
			return
		}
		resp.RunID = run.ID
		status = http.StatusCreated
	}

	s.logger.FitLogger(resp.RunID, opt.Method(), set.Len(), len(pairs), duration, false)
	c.JSON(status, resp)
}

func (s *server) listRuns(c *gin.Context) {
	limit := database.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			_ = c.Error(apperrors.NewValidationError(fmt.Sprintf("limit must be a positive integer, got %q", raw)))
			return
		}
		limit = n
	}

	runs, err := s.repo.ListRuns(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(apperrors.NewInternalError("failed to list runs", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

var contentTypes = map[report.Format]string{
	report.FormatText: "text/plain; charset=utf-8",
	report.FormatYAML: "application/yaml",
	report.FormatCSV:  "text/csv; charset=utf-8",
}

// getRun returns the stored run as JSON, or rendered through ?format=
// text, yaml or csv. ?ranked=true orders rendered output by strength.
func (s *server) getRun(c *gin.Context) {
	run, err := s.repo.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		if !apperrors.IsNotFound(err) {
			err = apperrors.NewInternalError("failed to load run", err)
		}
		_ = c.Error(err)
		return
	}

	raw := c.Query("format")
	if raw == "" || strings.EqualFold(raw, string(report.FormatJSON)) {
		c.JSON(http.StatusOK, run)
		return
	}

	format, err := report.ParseFormat(raw)
	if err != nil {
		_ = c.Error(err)
		return
	}
	set, err := run.FeatureSet()
	if err != nil {
		_ = c.Error(apperrors.NewInternalError("failed to rebuild run", err))
		return
	}

	var body strings.Builder
	ranked, _ := strconv.ParseBool(c.Query("ranked"))
	if err := report.Render(&body, set, format, report.Options{Ranked: ranked, Method: run.Method}); err != nil {
		_ = c.Error(apperrors.NewInternalError("failed to render run", err))
		return
	}
	c.Data(http.StatusOK, contentTypes[format], []byte(body.String()))
}

func (s *server) deleteRun(c *gin.Context) {
	if err := s.repo.DeleteRun(c.Request.Context(), c.Param("id")); err != nil {
		if !apperrors.IsNotFound(err) {
			err = apperrors.NewInternalError("failed to delete run", err)
		}
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"metrics":    s.metrics.GetStats(),
		"cache":      s.cache.Stats(),
		"rate_limit": s.limiter.Stats(),
	})
}
