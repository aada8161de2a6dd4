// Package config loads the application configuration through viper and
// decodes it with mapstructure into typed, validated structs.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// AppName names the config, data and binary paths.
	AppName = "pagewire"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "PAGEWIRE_"
)

var (
	appConfig *Config
	configMu  sync.RWMutex

	validate = validator.New(validator.WithRequiredStructEnabled())
)

// EnvVarSpec maps one environment variable to a config path.
type EnvVarSpec = gfconfig.EnvVarSpec

const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "https://api.pagewire.dev")
	v.SetDefault("api.version", "2025-09-03")
	v.SetDefault("api.user_agent", AppName)
	v.SetDefault("api.timeout", "30s")

	v.SetDefault("rate_limit.strategy", "balanced")
	v.SetDefault("rate_limit.retry_server_errors", false)
	v.SetDefault("rate_limit.shared_tracking", false)
	v.SetDefault("rate_limit.tracker_backend", "memory")

	v.SetDefault("pagination.max_pages", 1000)
	v.SetDefault("pagination.page_size", 100)

	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "pagewire:ratelimit:")
	v.SetDefault("redis.ttl", "1h")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("mock.items", 250)
	v.SetDefault("mock.page_size", 100)
	v.SetDefault("mock.throttle_every", 0)
	v.SetDefault("mock.retry_after", "1s")
	v.SetDefault("mock.limit", 0)
	v.SetDefault("mock.window", "1m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("metrics.enabled", true)

	v.SetDefault("workers", 4)
}

// Load applies environment overrides to v, decodes it into a Config and
// validates the result. The loaded config becomes the one GetConfig returns.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		return nil, errors.New("viper instance is required")
	}

	envOverrides, err := gfconfig.LoadEnvOverrides(EnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	if len(envOverrides) > 0 {
		if err := v.MergeConfigMap(envOverrides); err != nil {
			return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
		}
	}

	cfg, err := Decode(v.AllSettings())
	if err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// Decode turns a settings map into a validated Config.
func Decode(settings map[string]any) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges and that the rate limit settings form a usable
// retry policy.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("invalid config: %w", err)
		}
		problems := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			problems = append(problems, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	if _, err := c.RateLimit.RetryPolicy(); err != nil {
		return err
	}
	if c.RateLimit.SharedTracking && c.RateLimit.TrackerBackend == "redis" && strings.TrimSpace(c.Redis.Addr) == "" {
		return errors.New("invalid config: redis.addr is required for the redis tracker backend")
	}
	return nil
}

// GetConfig returns the last loaded configuration.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// EnvSpecs lists the PAGEWIRE_* variables and the config paths they set.
func EnvSpecs() []EnvVarSpec {
	p := EnvPrefix
	return []EnvVarSpec{
		{Name: p + "API_BASE_URL", Path: []string{"api", "base_url"}, Type: EnvString},
		{Name: p + "API_TOKEN", Path: []string{"api", "token"}, Type: EnvString},
		{Name: p + "API_VERSION", Path: []string{"api", "version"}, Type: EnvString},
		// Durations are parsed by the mapstructure decode hook.
		{Name: p + "API_TIMEOUT", Path: []string{"api", "timeout"}, Type: EnvString},

		{Name: p + "RATE_LIMIT_STRATEGY", Path: []string{"rate_limit", "strategy"}, Type: EnvString},
		{Name: p + "RATE_LIMIT_MAX_RETRIES", Path: []string{"rate_limit", "max_retries"}, Type: EnvInt},
		{Name: p + "RATE_LIMIT_BASE_DELAY", Path: []string{"rate_limit", "base_delay"}, Type: EnvString},
		{Name: p + "RATE_LIMIT_MAX_DELAY", Path: []string{"rate_limit", "max_delay"}, Type: EnvString},
		{Name: p + "RATE_LIMIT_JITTER_FACTOR", Path: []string{"rate_limit", "jitter_factor"}, Type: EnvString},
		{Name: p + "RATE_LIMIT_RESPECT_RETRY_AFTER", Path: []string{"rate_limit", "respect_retry_after"}, Type: EnvBool},
		{Name: p + "RATE_LIMIT_RETRY_SERVER_ERRORS", Path: []string{"rate_limit", "retry_server_errors"}, Type: EnvBool},
		{Name: p + "RATE_LIMIT_SHARED_TRACKING", Path: []string{"rate_limit", "shared_tracking"}, Type: EnvBool},
		{Name: p + "RATE_LIMIT_TRACKER_BACKEND", Path: []string{"rate_limit", "tracker_backend"}, Type: EnvString},

		{Name: p + "PAGINATION_MAX_PAGES", Path: []string{"pagination", "max_pages"}, Type: EnvInt},
		{Name: p + "PAGINATION_PAGE_SIZE", Path: []string{"pagination", "page_size"}, Type: EnvInt},

		{Name: p + "DB_DRIVER", Path: []string{"store", "driver"}, Type: EnvString},
		{Name: p + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: p + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: p + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},

		{Name: p + "REDIS_ADDR", Path: []string{"redis", "addr"}, Type: EnvString},
		{Name: p + "REDIS_PASSWORD", Path: []string{"redis", "password"}, Type: EnvString},
		{Name: p + "REDIS_DB", Path: []string{"redis", "db"}, Type: EnvInt},
		{Name: p + "REDIS_KEY_PREFIX", Path: []string{"redis", "key_prefix"}, Type: EnvString},

		{Name: p + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: p + "PORT", Path: []string{"server", "port"}, Type: EnvInt},
		{Name: p + "SHUTDOWN_TIMEOUT", Path: []string{"server", "shutdown_timeout"}, Type: EnvString},
		{Name: p + "ADMIN_TOKEN", Path: []string{"server", "admin_token"}, Type: EnvString},

		{Name: p + "MOCK_ITEMS", Path: []string{"mock", "items"}, Type: EnvInt},
		{Name: p + "MOCK_THROTTLE_EVERY", Path: []string{"mock", "throttle_every"}, Type: EnvInt},
		{Name: p + "MOCK_RETRY_AFTER", Path: []string{"mock", "retry_after"}, Type: EnvString},
		{Name: p + "MOCK_LIMIT", Path: []string{"mock", "limit"}, Type: EnvInt},

		{Name: p + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: p + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		{Name: p + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},

		{Name: p + "WORKERS", Path: []string{"workers"}, Type: EnvInt},
	}
}

// UserConfigPaths lists the XDG locations searched for config.yaml.
func UserConfigPaths() []string {
	return gfconfig.GetAppConfigPaths(AppName)
}

// DefaultConfigDir returns the XDG config directory, or "" when it cannot be
// resolved.
func DefaultConfigDir() string {
	return gfconfig.GetAppConfigDir(AppName)
}

// DefaultStorePath returns the XDG path of the tracker database.
func DefaultStorePath() string {
	dataDir := gfconfig.GetAppDataDir(AppName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}
