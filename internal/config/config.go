// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, the store file, the append queue, geolocation, rate limiting and
// observability settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // TIMEZONE must resolve on hosts without a zone database
)

// DefaultAllowedOrigins are the browser origins allowed when
// CORS_ALLOWED_ORIGINS is unset.
var DefaultAllowedOrigins = []string{
	"https://getchris.vallaham.com",
	"http://localhost:5173",
}

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string // "*" allows any origin
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// StoreConfig locates the spreadsheet store file.
type StoreConfig struct {
	Path         string // STORE_PATH
	Sheet        string // STORE_SHEET
	Lock         bool   // STORE_LOCK: advisory lock file next to Path
	DownloadName string // DOWNLOAD_NAME: attachment filename
}

// QueueConfig tunes the append queue.
type QueueConfig struct {
	Capacity     int  // QUEUE_CAPACITY; 0 = unbounded
	AwaitDurable bool // SUBMIT_AWAIT_DURABLE
}

// GeoConfig configures client address enrichment.
type GeoConfig struct {
	Enabled  bool
	Endpoint string
	Token    string
	Timeout  time.Duration // per-submission lookup bound
	CacheTTL time.Duration
	RPS      float64 // outbound lookups per second; 0 = unlimited
	Burst    int
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string // just the number
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration // drain budget for HTTP and the append queue
	MaxHeaderBytes    int
	MaxBodyBytes      int64
	GinMode           string   // debug|release|test
	TrustedProxies    []string // CIDRs/IPs whose X-Forwarded-For is honoured

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string

	// Store and submissions
	Store           StoreConfig
	Queue           QueueConfig
	DBPath          string         // SQLite side tables
	Timezone        string         // TIMEZONE, IANA name
	Location        *time.Location // resolved Timezone
	TimestampLayout string         // Go layout for the Timestamp column

	// Enrichment
	Geo GeoConfig

	// Rate limiting. RateRPS 0 disables the per-IP limiter.
	RateRPS   float64
	RateBurst int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration

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

// Load reads configuration from environment variables, applies defaults,
// normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "5000"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   getdur("SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:      int64(getint("MAX_BODY_BYTES", 1<<20)),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),
		TrustedProxies:    splitCSV(getenv("TRUSTED_PROXIES", "")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/")),

		// Store and submissions
		Store: StoreConfig{
			Path:         getenv("STORE_PATH", "waitlist.xlsx"),
			Sheet:        getenv("STORE_SHEET", "Waitlist"),
			Lock:         getbool("STORE_LOCK", true),
			DownloadName: getenv("DOWNLOAD_NAME", "waitlist.xlsx"),
		},
		Queue: QueueConfig{
			Capacity:     getint("QUEUE_CAPACITY", 0),
			AwaitDurable: getbool("SUBMIT_AWAIT_DURABLE", false),
		},
		DBPath:          getenv("DB_PATH", "waitlist.db"),
		Timezone:        getenv("TIMEZONE", "Asia/Kolkata"),
		TimestampLayout: getenv("TIMESTAMP_LAYOUT", "2/1/2006, 3:04:05 pm"),

		// Enrichment
		Geo: GeoConfig{
			Enabled:  getbool("GEO_ENABLED", true),
			Endpoint: getenv("GEO_ENDPOINT", "https://ipinfo.io"),
			Token:    getenv("GEO_TOKEN", os.Getenv("IPINFO_TOKEN")),
			Timeout:  getdur("GEO_TIMEOUT", 2*time.Second),
			CacheTTL: getdur("GEO_CACHE_TTL", 24*time.Hour),
			RPS:      getfloat("GEO_RPS", 10),
			Burst:    getint("GEO_BURST", 20),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 2.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", strings.Join(DefaultAllowedOrigins, ","))),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-waitlist-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if p, err := strconv.Atoi(strings.TrimSpace(cfg.Port)); err != nil || p < 1 || p > 65535 {
		return cfg, errors.New("PORT must be a number in 1..65535")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 || cfg.ShutdownTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return cfg, errors.New("MAX_BODY_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.Store.Path) == "" {
		return cfg, errors.New("STORE_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.Store.Sheet) == "" {
		return cfg, errors.New("STORE_SHEET must not be empty")
	}
	if strings.TrimSpace(cfg.Store.DownloadName) == "" || strings.ContainsAny(cfg.Store.DownloadName, `/\"`) {
		return cfg, errors.New("DOWNLOAD_NAME must be a plain file name")
	}
	if cfg.Queue.Capacity < 0 {
		return cfg, errors.New("QUEUE_CAPACITY must be >= 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return cfg, fmt.Errorf("TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc
	if strings.TrimSpace(cfg.TimestampLayout) == "" {
		return cfg, errors.New("TIMESTAMP_LAYOUT must not be empty")
	}
	if cfg.Geo.Enabled {
		if !strings.HasPrefix(cfg.Geo.Endpoint, "http://") && !strings.HasPrefix(cfg.Geo.Endpoint, "https://") {
			return cfg, errors.New("GEO_ENDPOINT must be an http(s) URL")
		}
		if cfg.Geo.Timeout <= 0 {
			return cfg, errors.New("GEO_TIMEOUT must be > 0")
		}
		if cfg.Geo.CacheTTL <= 0 {
			return cfg, errors.New("GEO_CACHE_TTL must be > 0")
		}
		if cfg.Geo.RPS < 0 {
			return cfg, errors.New("GEO_RPS must be >= 0")
		}
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}
