// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, the signing secret, fingerprint TTL,
// database and Redis locations, rate limiting, and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/qriscuy/internal/domain"
)

// Placeholder secrets shipped as defaults. Startup warns when either is still
// in use.
const (
	DefaultAPIKey     = "dev-secret-key"
	DefaultHMACSecret = "change-me"
)

// TTL bounds for fingerprints, in seconds.
const (
	MinTTLSeconds = 60
	MaxTTLSeconds = 3600
)

// CORSConfig defines Cross-Origin Resource Sharing settings. An empty
// AllowedOrigins (or a lone "*") allows every origin.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "qriscuy")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	AppName       string        // APP_NAME
	Environment   string        // development|staging|production
	APIKey        string        // X-API-Key expected on every API route
	HMACSecret    string        // fingerprint signing key
	DefaultPolicy domain.Policy // DEFAULT_POLICY or QRISCUY_MODE
	TTLSeconds    int           // fingerprint lifetime in [60,3600]
	QRSize        int           // rendered PNG edge in pixels

	// Storage
	DatabaseURL string // sqlite path or postgres:// URL
	RedisURL    string // optional; enables the distributed scan lock
	LockTTL     time.Duration

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// TTL returns TTLSeconds as a duration.
func (c Config) TTL() time.Duration { return time.Duration(c.TTLSeconds) * time.Second }

// InsecureDefaults lists the settings still carrying a shipped placeholder.
func (c Config) InsecureDefaults() []string {
	var out []string
	if c.APIKey == DefaultAPIKey {
		out = append(out, "API_KEY")
	}
	if c.HMACSecret == DefaultHMACSecret {
		out = append(out, "HMAC_SECRET")
	}
	return out
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the environment, applies defaults and validates the result.
// Malformed values are reported rather than silently replaced by defaults,
// and every problem is returned at once (joined) so a misconfigured
// deployment can be fixed in one pass.
func Load() (Config, error) {
	var e env
	cfg := Config{
		Port:              e.str("PORT", "8080"),
		ReadTimeout:       e.dur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: e.dur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      e.dur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       e.dur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    e.int("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(e.str("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(e.str("LOG_LEVEL", "info")),
		LogPretty:      e.bool("LOG_PRETTY", !e.bool("LOG_JSON", true)),
		SwaggerEnabled: e.bool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(e.str("API_BASE_PATH", "/v1")),

		AppName:     e.str("APP_NAME", "qriscuy"),
		Environment: strings.ToLower(e.str("ENVIRONMENT", "development")),
		APIKey:      e.str("API_KEY", DefaultAPIKey),
		HMACSecret:  e.str("HMAC_SECRET", DefaultHMACSecret),
		TTLSeconds:  e.int("TTL_SECONDS", 300),
		QRSize:      e.int("QR_SIZE", 256),

		DatabaseURL: e.str("DATABASE_URL", e.str("DB_PATH", "qriscuy.db")),
		RedisURL:    e.str("REDIS_URL", ""),
		LockTTL:     e.dur("LOCK_TTL", 5*time.Second),

		RateRPS:   e.float("RATE_RPS", 5.0),
		RateBurst: e.int("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: origins(e.str("CORS_ALLOWED_ORIGINS", e.str("ALLOWED_ORIGINS", ""))),
		},
		Security: SecurityConfig{
			EnableHSTS: e.bool("ENABLE_HSTS", false),
			HSTSMaxAge: e.dur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: e.dur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     e.bool("OTEL_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.bool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.str("OTEL_SERVICE_NAME", ""),
			SampleRatio: e.float("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// DEFAULT_POLICY wins over the legacy QRISCUY_MODE name.
	rawPolicy := e.str("DEFAULT_POLICY", e.str("QRISCUY_MODE", "SAFE"))
	if p, err := domain.ParsePolicy(rawPolicy); err == nil {
		cfg.DefaultPolicy = p
	} else {
		e.fail("DEFAULT_POLICY must be SAFE or FAST, got %q", rawPolicy)
	}

	cfg.normalize()
	return cfg, errors.Join(append(e.errs, cfg.Validate())...)
}

func (c *Config) normalize() {
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		c.GinMode = "release"
	}
	if c.OTEL.ServiceName == "" {
		c.OTEL.ServiceName = c.AppName
	}
}

// Validate checks ranges and required values. It does not re-read the
// environment, so tests and tools may call it on hand-built configs.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic"))
	}
	switch c.Environment {
	case "development", "staging", "production":
	default:
		errs = append(errs, errors.New("ENVIRONMENT must be one of: development, staging, production"))
	}

	check(strings.TrimSpace(c.Port) != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"timeouts must be positive durations")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")

	check(strings.TrimSpace(c.APIKey) != "", "API_KEY must not be empty")
	check(strings.TrimSpace(c.HMACSecret) != "", "HMAC_SECRET must not be empty")
	check(c.TTLSeconds >= MinTTLSeconds && c.TTLSeconds <= MaxTTLSeconds,
		"TTL_SECONDS must be between %d and %d", MinTTLSeconds, MaxTTLSeconds)
	check(c.QRSize >= 64 && c.QRSize <= 2048, "QR_SIZE must be between 64 and 2048")

	check(strings.TrimSpace(c.DatabaseURL) != "", "DATABASE_URL must not be empty")
	check(c.RedisURL == "" || c.LockTTL > 0, "LOCK_TTL must be > 0 when REDIS_URL is set")

	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")

	return errors.Join(errs...)
}

// env reads typed variables and remembers the ones that failed to parse.
// Unset or empty variables take the default.
type env struct {
	errs []error
}

func (e *env) fail(format string, args ...any) {
	e.errs = append(e.errs, fmt.Errorf(format, args...))
}

func (e *env) lookup(k string) (string, bool) {
	v, ok := os.LookupEnv(k)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *env) str(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
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
		e.fail("%s: %q is not an integer", k, v)
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
		e.fail("%s: %q is not a number", k, v)
		return def
	}
	return f
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
	e.fail("%s: %q is not a boolean", k, v)
	return def
}

func (e *env) dur(k string, def time.Duration) time.Duration {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail("%s: %q is not a duration", k, v)
		return def
	}
	return d
}

// origins splits a comma-separated allowlist. "*" anywhere means allow all
// and yields nil.
func origins(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		switch p {
		case "":
			continue
		case "*":
			return nil
		}
		out = append(out, p)
	}
	return out
}

// normalizeBasePath ensures a leading '/' and strips trailing ones; empty
// becomes root.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
