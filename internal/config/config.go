// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database selection, the LLM client, report
// quotas, rate limiting, and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// DBConfig selects the persistence backend.
type DBConfig struct {
	Driver string // DB_DRIVER: sqlite|postgres
	Path   string // DB_PATH: SQLite file (sqlite driver)
	URL    string // DATABASE_URL: Postgres DSN (postgres driver)
}

// LLMConfig configures the chat completion client.
type LLMConfig struct {
	BaseURL          string        // LLM_BASE_URL (OpenAI-compatible, includes /v1)
	APIKey           string        // LLM_API_KEY (never logged)
	Model            string        // LLM_MODEL
	Timeout          time.Duration // LLM_TIMEOUT per attempt
	MaxRetries       int           // LLM_MAX_RETRIES (-1 disables retries)
	BackoffBase      time.Duration // LLM_BACKOFF_BASE
	BackoffCap       time.Duration // LLM_BACKOFF_CAP
	BackoffJitter    time.Duration // LLM_BACKOFF_JITTER
	BreakerThreshold int           // LLM_BREAKER_THRESHOLD
	BreakerCooldown  time.Duration // LLM_BREAKER_COOLDOWN
	CostPer1KTokens  float64       // LLM_COST_PER_1K_TOKENS (USD)
	Temperature      float64       // LLM_TEMPERATURE
	MaxTokens        int           // LLM_MAX_TOKENS
}

// ReportConfig holds report generation limits.
type ReportConfig struct {
	WeeklyLimit int // REPORT_WEEKLY_LIMIT
	NotesLimit  int // REPORT_NOTES_LIMIT
}

// RedisConfig enables the Redis idempotency store when URL is set.
type RedisConfig struct {
	URL    string // REDIS_URL
	Prefix string // REDIS_PREFIX
}

// AuthConfig configures bearer-token verification.
type AuthConfig struct {
	JWTSecret string // JWT_SECRET (HS256); empty trusts the X-User-ID header (dev only)
	Issuer    string // JWT_ISSUER (optional)
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-reflect-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // must cover a full report generation (all LLM retries)
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Persistence
	DB    DBConfig
	Redis RedisConfig

	// Report generation
	LLM    LLMConfig
	Report ReportConfig

	// Auth
	Auth AuthConfig

	// Admin token guarding operator endpoints (ADMIN_TOKEN); empty disables them.
	AdminToken string

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)
	// RateReportCost is the tokens a POST draws (capped at RateBurst).
	RateReportCost int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid; 24h unless overridden

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults and
// validates the result. A variable that is set but cannot be parsed is an
// error, not a silent fallback. All problems are reported together.
func Load() (Config, error) {
	var e env
	cfg := Config{
		Port:              e.str("PORT", "8080"),
		ReadTimeout:       e.dur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: e.dur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      e.dur("WRITE_TIMEOUT", 5*time.Minute),
		IdleTimeout:       e.dur("IDLE_TIMEOUT", time.Minute),
		MaxHeaderBytes:    e.int("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(e.str("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(e.str("LOG_LEVEL", "info")),
		LogPretty:      e.bool("LOG_PRETTY", false),
		SwaggerEnabled: e.bool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(e.str("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver: strings.ToLower(e.str("DB_DRIVER", "sqlite")),
			Path:   e.str("DB_PATH", "app.db"),
			URL:    e.str("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			URL:    e.str("REDIS_URL", ""),
			Prefix: e.str("REDIS_PREFIX", "reflect"),
		},

		LLM: LLMConfig{
			BaseURL:          e.str("LLM_BASE_URL", "https://api.openai.com/v1"),
			APIKey:           e.str("LLM_API_KEY", ""),
			Model:            e.str("LLM_MODEL", "gpt-4o-mini"),
			Timeout:          e.dur("LLM_TIMEOUT", time.Minute),
			MaxRetries:       e.int("LLM_MAX_RETRIES", 3),
			BackoffBase:      e.dur("LLM_BACKOFF_BASE", time.Second),
			BackoffCap:       e.dur("LLM_BACKOFF_CAP", 32*time.Second),
			BackoffJitter:    e.dur("LLM_BACKOFF_JITTER", time.Second),
			BreakerThreshold: e.int("LLM_BREAKER_THRESHOLD", 5),
			BreakerCooldown:  e.dur("LLM_BREAKER_COOLDOWN", time.Minute),
			CostPer1KTokens:  e.float("LLM_COST_PER_1K_TOKENS", 0.0015),
			Temperature:      e.float("LLM_TEMPERATURE", 0.7),
			MaxTokens:        e.int("LLM_MAX_TOKENS", 2000),
		},
		Report: ReportConfig{
			WeeklyLimit: e.int("REPORT_WEEKLY_LIMIT", 3),
			NotesLimit:  e.int("REPORT_NOTES_LIMIT", 100),
		},

		Auth: AuthConfig{
			JWTSecret: e.str("JWT_SECRET", ""),
			Issuer:    e.str("JWT_ISSUER", ""),
		},
		AdminToken: e.str("ADMIN_TOKEN", ""),

		RateRPS:        e.float("RATE_RPS", 5),
		RateBurst:      e.int("RATE_BURST", 10),
		RateReportCost: e.int("RATE_REPORT_COST", 5),

		CORS: CORSConfig{AllowedOrigins: splitCSV(e.str("CORS_ALLOWED_ORIGINS", ""))},
		Security: SecurityConfig{
			EnableHSTS: e.bool("ENABLE_HSTS", false),
			HSTSMaxAge: e.dur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: e.dur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     e.bool("OTEL_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.bool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.str("OTEL_SERVICE_NAME", "go-reflect-backend"),
			SampleRatio: e.float("OTEL_TRACES_SAMPLER_ARG", 1),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	return cfg, errors.Join(append(e.errs, cfg.validate()...)...)
}

func (cfg Config) validate() []error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error, fatal, panic", cfg.LogLevel))
	}
	check(strings.TrimSpace(cfg.Port) != "", "PORT must not be empty")
	check(cfg.ReadTimeout > 0 && cfg.ReadHeaderTimeout > 0 && cfg.WriteTimeout > 0 && cfg.IdleTimeout > 0,
		"server timeouts must be positive")
	check(cfg.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")

	switch cfg.DB.Driver {
	case "sqlite":
		check(strings.TrimSpace(cfg.DB.Path) != "", "DB_PATH must not be empty")
	case "postgres":
		check(strings.TrimSpace(cfg.DB.URL) != "", "DATABASE_URL is required when DB_DRIVER=postgres")
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q is not one of sqlite, postgres", cfg.DB.Driver))
	}

	l := cfg.LLM
	check(strings.TrimSpace(l.BaseURL) != "" && strings.TrimSpace(l.Model) != "", "LLM_BASE_URL and LLM_MODEL must not be empty")
	check(l.Timeout > 0, "LLM_TIMEOUT must be > 0")
	check(l.BackoffBase > 0 && l.BackoffCap >= l.BackoffBase, "LLM_BACKOFF_CAP must be >= LLM_BACKOFF_BASE > 0")
	check(l.BackoffJitter >= 0, "LLM_BACKOFF_JITTER must be >= 0")
	check(l.MaxRetries >= -1, "LLM_MAX_RETRIES must be >= -1")
	check(l.BreakerThreshold >= 1, "LLM_BREAKER_THRESHOLD must be >= 1")
	check(l.BreakerCooldown > 0, "LLM_BREAKER_COOLDOWN must be > 0")
	check(l.CostPer1KTokens >= 0, "LLM_COST_PER_1K_TOKENS must be >= 0")
	check(l.Temperature >= 0 && l.Temperature <= 2, "LLM_TEMPERATURE must be in [0,2]")
	check(l.MaxTokens >= 1 && l.MaxTokens <= 200000, "LLM_MAX_TOKENS must be in [1,200000]")

	check(cfg.Report.WeeklyLimit >= 1, "REPORT_WEEKLY_LIMIT must be >= 1")
	check(cfg.Report.NotesLimit >= 1, "REPORT_NOTES_LIMIT must be >= 1")
	check(cfg.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(cfg.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(cfg.RateReportCost >= 1, "RATE_REPORT_COST must be >= 1")
	check(cfg.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(cfg.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	check(cfg.OTEL.SampleRatio >= 0 && cfg.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	return errs
}

// env reads typed variables and remembers every value it could not parse.
// Unset and empty variables take the default.
type env struct{ errs []error }

func (e *env) lookup(k string) (string, bool) {
	v, ok := os.LookupEnv(k)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *env) fail(k, v, want string) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q is not a valid %s", k, v, want))
}

func (e *env) str(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func (e *env) int(k string, def int) int {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.fail(k, v, "integer")
		return def
	}
	return i
}

func (e *env) float(k string, def float64) float64 {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(k, v, "number")
		return def
	}
	return f
}

func (e *env) dur(k string, def time.Duration) time.Duration {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(k, v, "duration")
		return def
	}
	return d
}

func (e *env) bool(k string, def bool) bool {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	e.fail(k, v, "boolean")
	return def
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeBasePath returns p with one leading slash and no trailing slash.
func normalizeBasePath(p string) string {
	return "/" + strings.Trim(strings.TrimSpace(p), "/")
}
