// Package config loads process settings from the environment.
//
// Values come from SOULBOND_-prefixed variables, with a local .env file
// read first when present. Every field has a default except the JWT
// secret.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/gkouam/soulbondai-sub005"
	"github.com/gkouam/soulbondai-sub005/ratelimit"
	"github.com/gkouam/soulbondai-sub005/throttle"
)

// Prefix is the environment variable prefix.
const Prefix = "SOULBOND"

// Store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config is the full process configuration.
type Config struct {
	Env       string `envconfig:"ENV" default:"development"`
	HTTPAddr  string `envconfig:"HTTP_ADDR" default:":8080"`
	LogFormat string `envconfig:"LOG_FORMAT"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	Store       string `envconfig:"STORE" default:"memory"`
	RedisURL    string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	AutoMigrate bool   `envconfig:"AUTO_MIGRATE" default:"true"`

	JWTSecret string `envconfig:"JWT_SECRET"`
	JWTIssuer string `envconfig:"JWT_ISSUER"`

	RateLimitWindow string        `envconfig:"RATE_LIMIT_WINDOW" default:"daily"`
	RateLimitPolicy string        `envconfig:"RATE_LIMIT_POLICY" default:"open"`
	PlanCacheTTL    time.Duration `envconfig:"PLAN_CACHE_TTL" default:"1m"`
	PlanCacheSize   int64         `envconfig:"PLAN_CACHE_SIZE" default:"10000"`

	Concurrency       int           `envconfig:"CONCURRENCY" default:"10"`
	JobTypes          []string      `envconfig:"JOB_TYPES"`
	PollInterval      time.Duration `envconfig:"POLL_INTERVAL" default:"1s"`
	LeaseDuration     time.Duration `envconfig:"LEASE_DURATION" default:"30s"`
	HeartbeatInterval time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"10s"`
	DrainTimeout      time.Duration `envconfig:"DRAIN_TIMEOUT" default:"30s"`
	ReapInterval      time.Duration `envconfig:"REAP_INTERVAL" default:"15s"`
	StatsInterval     time.Duration `envconfig:"STATS_INTERVAL" default:"1m"`
	MaxAttempts       int           `envconfig:"MAX_ATTEMPTS" default:"5"`
	BackoffBase       time.Duration `envconfig:"BACKOFF_BASE" default:"1s"`
	BackoffMax        time.Duration `envconfig:"BACKOFF_MAX" default:"5m"`
	Retention         time.Duration `envconfig:"RETENTION" default:"24h"`
	JanitorInterval   time.Duration `envconfig:"JANITOR_INTERVAL" default:"10m"`

	// Throttle entries have the form type=concurrency[/rate[/burst]],
	// for example chat.completion=4/2.5/5.
	Throttle []string `envconfig:"THROTTLE"`

	AIBaseURL string        `envconfig:"AI_BASE_URL"`
	AIAPIKey  string        `envconfig:"AI_API_KEY"`
	AITimeout time.Duration `envconfig:"AI_TIMEOUT" default:"30s"`

	NotifyChannelPrefix string        `envconfig:"NOTIFY_CHANNEL_PREFIX" default:"soulbond:notify:"`
	ShutdownTimeout     time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"45s"`
}

// Load reads .env (if any) and the environment into a Config and
// validates it.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: read .env: %w", err)
	}
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enums, required values and positive durations.
func (c Config) Validate() error {
	var errs []error
	switch c.Store {
	case StoreMemory, StoreRedis:
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE %q", c.Store))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if _, err := ratelimit.ParseWindow(c.RateLimitWindow); err != nil {
		errs = append(errs, err)
	}
	if _, err := ratelimit.ParsePolicy(c.RateLimitPolicy); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat))
	}
	if c.Concurrency <= 0 {
		errs = append(errs, errors.New("CONCURRENCY must be positive"))
	}
	if c.MaxAttempts <= 0 {
		errs = append(errs, errors.New("MAX_ATTEMPTS must be positive"))
	}
	for name, d := range map[string]time.Duration{
		"POLL_INTERVAL":  c.PollInterval,
		"LEASE_DURATION": c.LeaseDuration,
		"DRAIN_TIMEOUT":  c.DrainTimeout,
		"REAP_INTERVAL":  c.ReapInterval,
		"BACKOFF_BASE":   c.BackoffBase,
		"BACKOFF_MAX":    c.BackoffMax,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.HeartbeatInterval >= c.LeaseDuration {
		errs = append(errs, errors.New("HEARTBEAT_INTERVAL must be shorter than LEASE_DURATION"))
	}
	if c.BackoffMax < c.BackoffBase {
		errs = append(errs, errors.New("BACKOFF_MAX must not be below BACKOFF_BASE"))
	}
	if _, err := c.Throttles(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Runtime returns the queue, worker and manager settings.
func (c Config) Runtime() soulbond.Config {
	return soulbond.Config{
		Concurrency:       c.Concurrency,
		JobTypes:          c.JobTypes,
		PollInterval:      c.PollInterval,
		LeaseDuration:     c.LeaseDuration,
		HeartbeatInterval: c.HeartbeatInterval,
		DrainTimeout:      c.DrainTimeout,
		ReapInterval:      c.ReapInterval,
		StatsInterval:     c.StatsInterval,
		MaxAttempts:       c.MaxAttempts,
		BackoffBase:       c.BackoffBase,
		BackoffMax:        c.BackoffMax,
		Retention:         c.Retention,
		JanitorInterval:   c.JanitorInterval,
	}
}

// Window returns the parsed rate limit window.
func (c Config) Window() ratelimit.Window {
	w, _ := ratelimit.ParseWindow(c.RateLimitWindow)
	return w
}

// Policy returns the parsed rate limit failure policy.
func (c Config) Policy() ratelimit.Policy {
	p, _ := ratelimit.ParsePolicy(c.RateLimitPolicy)
	return p
}

// Throttles parses the THROTTLE entries.
func (c Config) Throttles() ([]throttle.Config, error) {
	out := make([]throttle.Config, 0, len(c.Throttle))
	for _, raw := range c.Throttle {
		jobType, spec, ok := strings.Cut(strings.TrimSpace(raw), "=")
		if !ok || jobType == "" || spec == "" {
			return nil, fmt.Errorf("THROTTLE entry %q: want type=concurrency[/rate[/burst]]", raw)
		}
		parts := strings.Split(spec, "/")
		if len(parts) > 3 {
			return nil, fmt.Errorf("THROTTLE entry %q: too many fields", raw)
		}
		tc := throttle.Config{JobType: jobType}
		var err error
		if tc.MaxConcurrency, err = strconv.Atoi(parts[0]); err != nil || tc.MaxConcurrency < 0 {
			return nil, fmt.Errorf("THROTTLE entry %q: bad concurrency", raw)
		}
		if len(parts) > 1 {
			if tc.RateLimit, err = strconv.ParseFloat(parts[1], 64); err != nil || tc.RateLimit < 0 {
				return nil, fmt.Errorf("THROTTLE entry %q: bad rate", raw)
			}
		}
		if len(parts) > 2 {
			if tc.RateBurst, err = strconv.Atoi(parts[2]); err != nil || tc.RateBurst < 0 {
				return nil, fmt.Errorf("THROTTLE entry %q: bad burst", raw)
			}
		}
		out = append(out, tc)
	}
	return out, nil
}
