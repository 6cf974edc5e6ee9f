package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"

	"github.com/ZanzyTHEbar/btrank/internal/monitoring"
)

const keyPrefix = "btrank:ratelimit:"

// Config holds rate limiter configuration
type Config struct {
	RequestsPerMin  int
	Burst           int
	CleanupInterval time.Duration
}

// DefaultConfig returns default rate limiting configuration
func DefaultConfig() Config {
	return Config{
		RequestsPerMin:  60,
		Burst:           10,
		CleanupInterval: time.Hour,
	}
}

// Result represents the result of a rate limit check
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RateLimiter limits requests per key through Redis, falling back to an
// in-memory token bucket when Redis is missing or failing.
type RateLimiter struct {
	redisLimiter *redis_rate.Limiter
	redisClient  *RedisClient
	config       Config
	metrics      *monitoring.Metrics

	fallbackLimiters map[string]*rate.Limiter
	fallbackMutex    sync.Mutex

	stop chan struct{}
	once sync.Once
}

// NewRateLimiter creates a rate limiter; redisClient may be nil or disabled
func NewRateLimiter(redisClient *RedisClient, config Config, metrics *monitoring.Metrics) *RateLimiter {
	if config.RequestsPerMin <= 0 {
		config.RequestsPerMin = DefaultConfig().RequestsPerMin
	}
	if config.Burst <= 0 {
		config.Burst = config.RequestsPerMin
	}

	rl := &RateLimiter{
		redisClient:      redisClient,
		config:           config,
		metrics:          metrics,
		fallbackLimiters: make(map[string]*rate.Limiter),
		stop:             make(chan struct{}),
	}

	if redisClient.IsEnabled() {
		rl.redisLimiter = redis_rate.NewLimiter(redisClient.Client())
		slog.Info("Redis rate limiter initialized")
	} else {
		slog.Warn("Redis unavailable, using in-memory rate limiting only")
	}

	if config.CleanupInterval > 0 {
		go rl.cleanupFallbackLimiters(config.CleanupInterval)
	}

	return rl
}

// Config returns the effective configuration
func (rl *RateLimiter) Config() Config { return rl.config }

// Allow checks whether the client identified by key may make a request
func (rl *RateLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	fullKey := keyPrefix + key

	if rl.redisLimiter != nil {
		result, err := rl.allowRedis(ctx, fullKey)
		if err == nil {
			return result, nil
		}
		slog.Warn("Redis rate limit check failed, using fallback", "key", fullKey, "error", err)
		if rl.metrics != nil {
			rl.metrics.IncrementRateLimitRedisError()
		}
	}

	if rl.metrics != nil {
		rl.metrics.IncrementRateLimitFallback()
	}
	return rl.allowFallback(fullKey), nil
}

func (rl *RateLimiter) allowRedis(ctx context.Context, key string) (*Result, error) {
	limit := redis_rate.Limit{
		Rate:   rl.config.RequestsPerMin,
		Burst:  rl.config.Burst,
		Period: time.Minute,
	}

	res, err := rl.redisLimiter.Allow(ctx, key, limit)
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}

	return &Result{
		Allowed:    res.Allowed > 0,
		Limit:      res.Limit.Rate,
		Remaining:  res.Remaining,
		ResetAt:    time.Now().Add(res.ResetAfter),
		RetryAfter: res.RetryAfter,
	}, nil
}

func (rl *RateLimiter) fallbackFor(key string) *rate.Limiter {
	rl.fallbackMutex.Lock()
	defer rl.fallbackMutex.Unlock()

	limiter, exists := rl.fallbackLimiters[key]
	if !exists {
		perSecond := rate.Limit(float64(rl.config.RequestsPerMin) / time.Minute.Seconds())
		limiter = rate.NewLimiter(perSecond, rl.config.Burst)
		rl.fallbackLimiters[key] = limiter
	}
	return limiter
}

func (rl *RateLimiter) allowFallback(key string) *Result {
	limiter := rl.fallbackFor(key)
	now := time.Now()

	result := &Result{
		Allowed: limiter.AllowN(now, 1),
		Limit:   rl.config.RequestsPerMin,
	}

	tokens := limiter.TokensAt(now)
	if tokens > 0 {
		result.Remaining = int(tokens)
	}

	// time until the bucket is full again
	missing := float64(rl.config.Burst) - tokens
	result.ResetAt = now.Add(time.Duration(missing / float64(limiter.Limit()) * float64(time.Second)))

	if !result.Allowed {
		r := limiter.ReserveN(now, 1)
		result.RetryAfter = r.DelayFrom(now)
		r.CancelAt(now)
	}

	return result
}

// Reset clears the limit state for key
func (rl *RateLimiter) Reset(ctx context.Context, key string) error {
	fullKey := keyPrefix + key

	rl.fallbackMutex.Lock()
	delete(rl.fallbackLimiters, fullKey)
	rl.fallbackMutex.Unlock()

	if rl.redisLimiter != nil {
		if err := rl.redisLimiter.Reset(ctx, fullKey); err != nil {
			return fmt.Errorf("failed to reset redis limit: %w", err)
		}
	}
	return nil
}

func (rl *RateLimiter) cleanupFallbackLimiters(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.fallbackMutex.Lock()
			for key, limiter := range rl.fallbackLimiters {
				// a full bucket carries no state worth keeping
				if limiter.Tokens() >= float64(rl.config.Burst) {
					delete(rl.fallbackLimiters, key)
				}
			}
			rl.fallbackMutex.Unlock()
		case <-rl.stop:
			return
		}
	}
}

// Close stops the background cleanup
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

// Stats returns rate limiter statistics
func (rl *RateLimiter) Stats() map[string]interface{} {
	rl.fallbackMutex.Lock()
	fallbackCount := len(rl.fallbackLimiters)
	rl.fallbackMutex.Unlock()

	return map[string]interface{}{
		"redis_enabled":     rl.redisClient.IsEnabled(),
		"fallback_limiters": fallbackCount,
		"requests_per_min":  rl.config.RequestsPerMin,
		"burst":             rl.config.Burst,
		"redis_pool":        rl.redisClient.PoolStats(),
	}
}
