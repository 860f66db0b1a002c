// Package config loads the server settings for `qa serve`.
//
// Values come from, in increasing precedence, built-in defaults, an optional
// config file (yaml, json or toml, keys as in the mapstructure tags below) and
// environment variables (the env names listed in the keys table). Loading is
// done with viper; unparseable values are errors, not silent defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool          `mapstructure:"enable_hsts"`
	HSTSMaxAge time.Duration `mapstructure:"hsts_max_age"`
}

// OTELConfig defines OpenTelemetry tracing settings.
type OTELConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"` // OTLP/gRPC host:port
	Insecure    bool    `mapstructure:"insecure"` // plaintext gRPC
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"` // [0..1]
}

// RateStatsConfig points the rate limiter at an optional Redis instance that
// aggregates allow/deny counters. An empty RedisAddr disables it.
type RateStatsConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Prefix        string        `mapstructure:"prefix"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// Enabled reports whether rate statistics should be recorded.
func (r RateStatsConfig) Enabled() bool { return strings.TrimSpace(r.RedisAddr) != "" }

// Config holds all server settings.
type Config struct {
	Port              string        `mapstructure:"port"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderBytes    int           `mapstructure:"max_header_bytes"`
	GinMode           string        `mapstructure:"gin_mode"` // debug|release|test

	LogLevel       string `mapstructure:"log_level"`
	LogPretty      bool   `mapstructure:"log_pretty"`
	LogRedact      bool   `mapstructure:"log_redact"` // scrub PII from access logs
	SwaggerEnabled bool   `mapstructure:"swagger_enabled"`
	APIBasePath    string `mapstructure:"api_base_path"`

	// SeedPath is the default seed document, SeedFile overrides it. Both
	// empty selects the built-in seed.
	SeedPath string `mapstructure:"seed_path"`
	SeedFile string `mapstructure:"seed_file"`

	RateRPS   float64         `mapstructure:"rate_rps"`
	RateBurst int             `mapstructure:"rate_burst"`
	RateStats RateStatsConfig `mapstructure:"rate_stats"`

	CORS     CORSConfig     `mapstructure:"cors"`
	Security SecurityConfig `mapstructure:"security"`

	// IdempotencyDB is the SQLite DSN holding Idempotency-Key reservations.
	IdempotencyDB  string        `mapstructure:"idempotency_db"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`

	OTEL OTELConfig `mapstructure:"otel"`
}

// key binds a config key to its environment variable and default.
type key struct {
	name string
	env  string
	def  any
}

var keys = []key{
	{"port", "PORT", "8080"},
	{"read_timeout", "READ_TIMEOUT", 15 * time.Second},
	{"read_header_timeout", "READ_HEADER_TIMEOUT", 10 * time.Second},
	{"write_timeout", "WRITE_TIMEOUT", 20 * time.Second},
	{"idle_timeout", "IDLE_TIMEOUT", 60 * time.Second},
	{"shutdown_timeout", "SHUTDOWN_TIMEOUT", 10 * time.Second},
	{"max_header_bytes", "MAX_HEADER_BYTES", 1 << 20},
	{"gin_mode", "GIN_MODE", "release"},

	{"log_level", "LOG_LEVEL", "info"},
	{"log_pretty", "LOG_PRETTY", false},
	{"log_redact", "LOG_REDACT", true},
	{"swagger_enabled", "SWAGGER_ENABLED", false},
	{"api_base_path", "API_BASE_PATH", "/"},

	{"seed_path", "SEED_PATH", ""},
	{"seed_file", "SEED_FILE", ""},

	{"rate_rps", "RATE_RPS", 5.0},
	{"rate_burst", "RATE_BURST", 10},
	{"rate_stats.redis_addr", "RATE_STATS_REDIS_ADDR", ""},
	{"rate_stats.redis_password", "RATE_STATS_REDIS_PASSWORD", ""},
	{"rate_stats.redis_db", "RATE_STATS_REDIS_DB", 0},
	{"rate_stats.prefix", "RATE_STATS_PREFIX", "qa:ratelimit"},
	{"rate_stats.ttl", "RATE_STATS_TTL", 24 * time.Hour},

	{"cors.allowed_origins", "CORS_ALLOWED_ORIGINS", ""},
	{"security.enable_hsts", "ENABLE_HSTS", false},
	{"security.hsts_max_age", "HSTS_MAX_AGE", 180 * 24 * time.Hour},

	{"idempotency_db", "IDEMPOTENCY_DB", "file:idempotency?mode=memory&cache=shared"},
	{"idempotency_ttl", "IDEMPOTENCY_TTL", 24 * time.Hour},

	{"otel.enabled", "OTEL_ENABLED", false},
	{"otel.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"},
	{"otel.insecure", "OTEL_EXPORTER_OTLP_INSECURE", true},
	{"otel.service_name", "OTEL_SERVICE_NAME", "go-qa-backend"},
	{"otel.sample_ratio", "OTEL_TRACES_SAMPLER_ARG", 1.0},
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the configuration from defaults and the environment.
func Load() (Config, error) { return LoadFile("") }

// LoadFile is Load with an optional config file layered under the
// environment. An empty path reads no file.
func LoadFile(path string) (Config, error) {
	v := viper.New()
	for _, k := range keys {
		v.SetDefault(k.name, k.def)
		if err := v.BindEnv(k.name, k.env); err != nil {
			return Config{}, err
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode: %w", err)
	}
	normalize(&cfg)
	return cfg, validate(cfg)
}

func normalize(cfg *Config) {
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	cfg.GinMode = strings.ToLower(strings.TrimSpace(cfg.GinMode))
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	cfg.APIBasePath = normalizeBasePath(cfg.APIBasePath)
	cfg.CORS.AllowedOrigins = compact(cfg.CORS.AllowedOrigins)
}

func validate(cfg Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	switch {
	case strings.TrimSpace(cfg.Port) == "":
		return errors.New("PORT must not be empty")
	case cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 ||
		cfg.IdleTimeout <= 0 || cfg.ShutdownTimeout <= 0:
		return errors.New("timeouts must be positive durations")
	case cfg.MaxHeaderBytes <= 0:
		return errors.New("MAX_HEADER_BYTES must be > 0")
	case strings.TrimSpace(cfg.IdempotencyDB) == "":
		return errors.New("IDEMPOTENCY_DB must not be empty")
	case cfg.IdempotencyTTL <= 0:
		return errors.New("IDEMPOTENCY_TTL must be > 0")
	case cfg.RateRPS < 0:
		return errors.New("RATE_RPS must be >= 0")
	case cfg.RateBurst < 1:
		return errors.New("RATE_BURST must be >= 1")
	case cfg.RateStats.RedisDB < 0:
		return errors.New("RATE_STATS_REDIS_DB must be >= 0")
	case cfg.RateStats.TTL <= 0:
		return errors.New("RATE_STATS_TTL must be > 0")
	case cfg.Security.HSTSMaxAge < 0:
		return errors.New("HSTS_MAX_AGE must be >= 0")
	case cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1:
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// Seed returns the seed document to load: SeedFile when set, else SeedPath.
// An empty result selects the built-in seed.
func (c Config) Seed() string {
	if strings.TrimSpace(c.SeedFile) != "" {
		return c.SeedFile
	}
	return c.SeedPath
}

// compact trims entries and drops empty ones. Nil when nothing is left.
func compact(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// normalizeBasePath ensures a leading '/' and strips trailing ones (except root).
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
