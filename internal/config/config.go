package config

import (
	"time"

	"github.com/pagewire/pagewire/internal/core/ratelimit"
)

// Config is the complete application configuration. Values are layered as
// defaults, then the YAML config file, then PAGEWIRE_* environment
// variables, then explicitly set flags.
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Pagination PaginationConfig `mapstructure:"pagination"`
	Store      StoreConfig      `mapstructure:"store"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Server     ServerConfig     `mapstructure:"server"`
	Mock       MockConfig       `mapstructure:"mock"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Workers    int              `mapstructure:"workers" validate:"gte=1,lte=64"`
}

// APIConfig locates and authenticates against the API.
type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url" validate:"required,url"`
	Token     string        `mapstructure:"token"`
	Version   string        `mapstructure:"version"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// RateLimitConfig selects a retry strategy. Unset numeric fields take the
// strategy's preset value.
type RateLimitConfig struct {
	Strategy          string        `mapstructure:"strategy" validate:"omitempty,oneof=conservative aggressive balanced custom"`
	MaxRetries        *int          `mapstructure:"max_retries" validate:"omitempty,gte=0,lte=100"`
	BaseDelay         time.Duration `mapstructure:"base_delay" validate:"gte=0"`
	MaxDelay          time.Duration `mapstructure:"max_delay" validate:"gte=0"`
	JitterFactor      *float64      `mapstructure:"jitter_factor" validate:"omitempty,gte=0,lte=1"`
	RespectRetryAfter *bool         `mapstructure:"respect_retry_after"`
	RetryServerErrors bool          `mapstructure:"retry_server_errors"`

	// SharedTracking makes every call consult and update one tracker, backed
	// by TrackerBackend.
	SharedTracking bool   `mapstructure:"shared_tracking"`
	TrackerBackend string `mapstructure:"tracker_backend" validate:"omitempty,oneof=memory libsql redis"`
}

// PaginationConfig bounds list walks.
type PaginationConfig struct {
	MaxPages int `mapstructure:"max_pages" validate:"gte=0"`
	PageSize int `mapstructure:"page_size" validate:"gte=0,lte=100"`
}

// StoreConfig contains database configuration for libsql/Turso.
type StoreConfig struct {
	Driver    string `mapstructure:"driver" validate:"omitempty,oneof=libsql"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// RedisConfig points the shared tracker at a Redis server.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db" validate:"gte=0"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

// ServerConfig contains HTTP server configuration for the mock API.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// AdminToken enables the bearer-protected signal endpoint.
	AdminToken string `mapstructure:"admin_token"`
}

// MockConfig shapes the fixture data and throttling of the mock API.
type MockConfig struct {
	Items    int `mapstructure:"items" validate:"gte=0"`
	PageSize int `mapstructure:"page_size" validate:"gte=1,lte=100"`

	// ThrottleEvery answers every Nth request with 429; zero disables it.
	ThrottleEvery int           `mapstructure:"throttle_every" validate:"gte=0"`
	RetryAfter    time.Duration `mapstructure:"retry_after" validate:"gte=0"`
	Limit         int           `mapstructure:"limit" validate:"gte=0"`
	Window        time.Duration `mapstructure:"window" validate:"gte=0"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `mapstructure:"level"`

	// Profile is SIMPLE or STRUCTURED.
	Profile string `mapstructure:"profile"`
}

// MetricsConfig controls the Prometheus endpoint of the mock server and the
// client metric summary.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// RetryPolicy converts the rate limit settings into a validated executor
// policy: the strategy preset with every explicitly set field applied on top.
func (c RateLimitConfig) RetryPolicy() (ratelimit.Config, error) {
	strategy, err := ratelimit.ParseStrategy(c.Strategy)
	if err != nil {
		return ratelimit.Config{}, err
	}

	opts := []ratelimit.Option{ratelimit.WithStrategy(strategy)}
	if c.MaxRetries != nil {
		opts = append(opts, ratelimit.WithMaxRetries(*c.MaxRetries))
	}
	if c.BaseDelay > 0 {
		opts = append(opts, ratelimit.WithBaseDelay(c.BaseDelay))
	}
	if c.MaxDelay > 0 {
		opts = append(opts, ratelimit.WithMaxDelay(c.MaxDelay))
	}
	if c.JitterFactor != nil {
		opts = append(opts, ratelimit.WithJitterFactor(*c.JitterFactor))
	}
	if c.RespectRetryAfter != nil {
		opts = append(opts, ratelimit.WithRespectRetryAfter(*c.RespectRetryAfter))
	}
	opts = append(opts, ratelimit.WithRetryServerErrors(c.RetryServerErrors))

	return ratelimit.NewConfig(opts...)
}
