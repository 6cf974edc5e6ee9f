// Package config loads service and CLI settings from the environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	apperrors "github.com/ZanzyTHEbar/btrank/internal/errors"
	"github.com/ZanzyTHEbar/btrank/internal/optimizer"
	"github.com/ZanzyTHEbar/btrank/internal/ratelimit"
)

// Config holds every tunable read from BTRANK_* variables
type Config struct {
	DataDir  string `env:"DATA_DIR" envDefault:"./data"`
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"LOG_JSON" envDefault:"true"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	RateLimitPerMin int `env:"RATE_LIMIT_PER_MIN" envDefault:"60"`
	RateLimitBurst  int `env:"RATE_LIMIT_BURST" envDefault:"10"`

	CacheTTL     time.Duration `env:"CACHE_TTL" envDefault:"10m"`
	FitTimeout   time.Duration `env:"FIT_TIMEOUT" envDefault:"30s"`
	MaxBodyBytes int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"`

	Method  string  `env:"METHOD" envDefault:"newton"`
	Alpha   float64 `env:"ALPHA" envDefault:"0.0001"`
	MaxIter int     `env:"MAX_ITER" envDefault:"200"`
	Tol     float64 `env:"TOL" envDefault:"1e-9"`
	Prior   float64 `env:"PRIOR" envDefault:"1"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

// Prefix is prepended to every variable name
const Prefix = "BTRANK_"

// DefaultEnvFile is read when Load is given no files. It may be absent.
const DefaultEnvFile = ".env"

// Load reads the given .env files then the environment. Every file named
// explicitly must exist; with no files it tries DefaultEnvFile.
func Load(files ...string) (*Config, error) {
	explicit := len(files) > 0
	if !explicit {
		files = []string{DefaultEnvFile}
	}
	for _, f := range files {
		err := godotenv.Load(f)
		if err == nil || (!explicit && errors.Is(err, os.ErrNotExist)) {
			continue
		}
		return nil, apperrors.NewConfigurationError(fmt.Sprintf("failed to load %s", f), err)
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: Prefix}); err != nil {
		return nil, apperrors.NewConfigurationError("failed to parse environment", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	problems := map[string]string{}

	if c.DataDir == "" {
		problems["data_dir"] = "must not be empty"
	}
	if c.RateLimitPerMin <= 0 {
		problems["rate_limit_per_min"] = "must be positive"
	}
	if c.RateLimitBurst <= 0 {
		problems["rate_limit_burst"] = "must be positive"
	}
	if c.CacheTTL < 0 {
		problems["cache_ttl"] = "must not be negative"
	}
	if c.FitTimeout <= 0 {
		problems["fit_timeout"] = "must be positive"
	}
	if c.MaxBodyBytes <= 0 {
		problems["max_body_bytes"] = "must be positive"
	}

	if len(problems) > 0 {
		return apperrors.NewValidationErrorWithMap(problems)
	}

	_, err := c.Optimizer()
	return err
}

// Optimizer builds the configured optimizer
func (c *Config) Optimizer() (optimizer.Optimizer, error) {
	return optimizer.New(c.Method, c.OptimizerConfig())
}

// OptimizerConfig returns the optimizer settings
func (c *Config) OptimizerConfig() optimizer.Config {
	return optimizer.Config{
		Alpha:   c.Alpha,
		MaxIter: c.MaxIter,
		Tol:     c.Tol,
		Prior:   c.Prior,
	}
}

// RateLimitConfig returns the limiter settings
func (c *Config) RateLimitConfig() ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	cfg.RequestsPerMin = c.RateLimitPerMin
	cfg.Burst = c.RateLimitBurst
	return cfg
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return ":" + c.Port
}
