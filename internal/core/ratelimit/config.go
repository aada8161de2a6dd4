package ratelimit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Strategy selects a backoff multiplier and, for the named presets, a full
// set of defaults.
type Strategy string

const (
	StrategyConservative Strategy = "conservative"
	StrategyAggressive   Strategy = "aggressive"
	StrategyBalanced     Strategy = "balanced"
	StrategyCustom       Strategy = "custom"
)

// Multiplier scales the exponential backoff for the strategy.
func (s Strategy) Multiplier() float64 {
	switch s {
	case StrategyConservative:
		return 1.5
	case StrategyAggressive:
		return 0.7
	default:
		return 1.0
	}
}

// ParseStrategy normalizes a strategy name.
func ParseStrategy(value string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(value))) {
	case "", StrategyBalanced:
		return StrategyBalanced, nil
	case StrategyConservative:
		return StrategyConservative, nil
	case StrategyAggressive:
		return StrategyAggressive, nil
	case StrategyCustom:
		return StrategyCustom, nil
	default:
		return "", fmt.Errorf("unknown rate limit strategy: %q", value)
	}
}

// Config is the retry policy shared read-only by every call made through a
// client.
type Config struct {
	MaxRetries        int           `validate:"gte=0,lte=100"`
	BaseDelay         time.Duration `validate:"gt=0"`
	MaxDelay          time.Duration `validate:"gtefield=BaseDelay"`
	JitterFactor      float64       `validate:"gte=0,lte=1"`
	Strategy          Strategy      `validate:"oneof=conservative aggressive balanced custom"`
	RespectRetryAfter bool

	// RetryServerErrors extends executor retries from throttling to every
	// retryable kind (server faults and transient network failures).
	RetryServerErrors bool
}

// ConservativeConfig favours staying well under the server budget.
func ConservativeConfig() Config {
	return Config{
		MaxRetries:        5,
		BaseDelay:         time.Second,
		MaxDelay:          60 * time.Second,
		JitterFactor:      0.2,
		Strategy:          StrategyConservative,
		RespectRetryAfter: true,
	}
}

// BalancedConfig is the default policy.
func BalancedConfig() Config {
	return Config{
		MaxRetries:        3,
		BaseDelay:         500 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		JitterFactor:      0.1,
		Strategy:          StrategyBalanced,
		RespectRetryAfter: true,
	}
}

// AggressiveConfig retries quickly and gives up early.
func AggressiveConfig() Config {
	return Config{
		MaxRetries:        2,
		BaseDelay:         200 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		JitterFactor:      0.05,
		Strategy:          StrategyAggressive,
		RespectRetryAfter: true,
	}
}

// PresetConfig returns the preset for a strategy. Custom starts from the
// balanced values.
func PresetConfig(strategy Strategy) Config {
	switch strategy {
	case StrategyConservative:
		return ConservativeConfig()
	case StrategyAggressive:
		return AggressiveConfig()
	case StrategyCustom:
		cfg := BalancedConfig()
		cfg.Strategy = StrategyCustom
		return cfg
	default:
		return BalancedConfig()
	}
}

// Option adjusts a Config under construction.
type Option func(*Config)

// WithStrategy replaces every field with the named preset. Apply it before
// the field-level options.
func WithStrategy(strategy Strategy) Option {
	return func(c *Config) { *c = PresetConfig(strategy) }
}

func WithMaxRetries(n int) Option {
	return func(c *Config) { c.MaxRetries = n }
}

func WithBaseDelay(d time.Duration) Option {
	return func(c *Config) { c.BaseDelay = d }
}

func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) { c.MaxDelay = d }
}

func WithJitterFactor(f float64) Option {
	return func(c *Config) { c.JitterFactor = f }
}

func WithRespectRetryAfter(v bool) Option {
	return func(c *Config) { c.RespectRetryAfter = v }
}

func WithRetryServerErrors(v bool) Option {
	return func(c *Config) { c.RetryServerErrors = v }
}

// NewConfig builds a validated Config from the balanced preset.
func NewConfig(opts ...Option) (Config, error) {
	cfg := BalancedConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate rejects out-of-range values.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("invalid rate limit config: %w", err)
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, fmt.Sprintf("%s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid rate limit config: %s", strings.Join(problems, "; "))
}

// RetryBudget is the ceiling on total time spent waiting across one logical
// call.
func (c Config) RetryBudget() time.Duration {
	return c.MaxDelay * time.Duration(c.MaxRetries)
}
