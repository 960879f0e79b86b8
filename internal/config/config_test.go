package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestMustLoad_Success_NoPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustLoad should not panic on valid defaults, got: %v", r)
		}
	}()
	cfg := MustLoad()
	if cfg.Location == nil {
		t.Fatalf("expected resolved Location from MustLoad")
	}
}

// --- defaults ---

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "5000" || cfg.APIBasePath != "/" || cfg.GinMode != "release" {
		t.Fatalf("server defaults unexpected: port=%q base=%q mode=%q", cfg.Port, cfg.APIBasePath, cfg.GinMode)
	}
	if cfg.Store != (StoreConfig{Path: "waitlist.xlsx", Sheet: "Waitlist", Lock: true, DownloadName: "waitlist.xlsx"}) {
		t.Fatalf("store defaults unexpected: %+v", cfg.Store)
	}
	if cfg.Queue.Capacity != 0 || cfg.Queue.AwaitDurable {
		t.Fatalf("queue defaults unexpected: %+v", cfg.Queue)
	}
	if cfg.Timezone != "Asia/Kolkata" || cfg.Location.String() != "Asia/Kolkata" {
		t.Fatalf("timezone default unexpected: %q / %v", cfg.Timezone, cfg.Location)
	}
	if cfg.TimestampLayout != "2/1/2006, 3:04:05 pm" {
		t.Fatalf("timestamp layout default unexpected: %q", cfg.TimestampLayout)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, DefaultAllowedOrigins) {
		t.Fatalf("cors default unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Geo.Enabled || cfg.Geo.Endpoint != "https://ipinfo.io" || cfg.Geo.Timeout != 2*time.Second || cfg.Geo.CacheTTL != 24*time.Hour {
		t.Fatalf("geo defaults unexpected: %+v", cfg.Geo)
	}
	if cfg.ShutdownTimeout != 30*time.Second || cfg.MaxBodyBytes != 1<<20 || cfg.TrustedProxies != nil {
		t.Fatalf("server extras unexpected: %+v", cfg)
	}
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_Overrides(t *testing.T) {
	// Server
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("MAX_BODY_BYTES", "4096")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 127.0.0.1")

	// Logging / Docs
	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("API_BASE_PATH", "api/") // -> "/api"

	// Store and submissions
	t.Setenv("STORE_PATH", "/data/list.xlsx")
	t.Setenv("STORE_SHEET", "Signups")
	t.Setenv("STORE_LOCK", "off")
	t.Setenv("DOWNLOAD_NAME", "signups.xlsx")
	t.Setenv("QUEUE_CAPACITY", "64")
	t.Setenv("SUBMIT_AWAIT_DURABLE", "true")
	t.Setenv("DB_PATH", "db.sqlite")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("TIMESTAMP_LAYOUT", time.RFC3339)

	// Enrichment
	t.Setenv("GEO_ENABLED", "1")
	t.Setenv("GEO_ENDPOINT", "http://geo.internal")
	t.Setenv("GEO_TOKEN", "tok")
	t.Setenv("GEO_TIMEOUT", "500ms")
	t.Setenv("GEO_CACHE_TTL", "1h")
	t.Setenv("GEO_RPS", "3")
	t.Setenv("GEO_BURST", "6")

	// Rate limiting (invalid values fall back to defaults)
	t.Setenv("RATE_RPS", "x")
	t.Setenv("RATE_BURST", "nope")

	// Web protection
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")

	t.Setenv("IDEMPOTENCY_TTL", "48h")

	// OTEL
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.ShutdownTimeout != 5*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.MaxBodyBytes != 4096 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.TrustedProxies, []string{"10.0.0.0/8", "127.0.0.1"}) {
		t.Fatalf("trusted proxies unexpected: %#v", cfg.TrustedProxies)
	}

	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api" {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}

	if cfg.Store != (StoreConfig{Path: "/data/list.xlsx", Sheet: "Signups", Lock: false, DownloadName: "signups.xlsx"}) {
		t.Fatalf("store unexpected: %+v", cfg.Store)
	}
	if cfg.Queue.Capacity != 64 || !cfg.Queue.AwaitDurable {
		t.Fatalf("queue unexpected: %+v", cfg.Queue)
	}
	if cfg.DBPath != "db.sqlite" || cfg.Location != time.UTC || cfg.TimestampLayout != time.RFC3339 {
		t.Fatalf("submission fields unexpected: db=%q loc=%v layout=%q", cfg.DBPath, cfg.Location, cfg.TimestampLayout)
	}

	wantGeo := GeoConfig{Enabled: true, Endpoint: "http://geo.internal", Token: "tok", Timeout: 500 * time.Millisecond, CacheTTL: time.Hour, RPS: 3, Burst: 6}
	if cfg.Geo != wantGeo {
		t.Fatalf("geo unexpected: %+v", cfg.Geo)
	}

	if cfg.RateRPS != 2.0 || cfg.RateBurst != 10 {
		t.Fatalf("rate limiting unexpected: %+v", cfg)
	}

	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}
	if cfg.IdempotencyTTL != 48*time.Hour {
		t.Fatalf("idempotency ttl unexpected: %v", cfg.IdempotencyTTL)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_GeoTokenFallsBackToIPInfoToken(t *testing.T) {
	t.Setenv("IPINFO_TOKEN", "legacy")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Geo.Token != "legacy" {
		t.Fatalf("Geo.Token = %q, want legacy", cfg.Geo.Token)
	}
}

func TestLoad_GeoDisabledSkipsGeoValidation(t *testing.T) {
	t.Setenv("GEO_ENABLED", "false")
	t.Setenv("GEO_ENDPOINT", "not a url")
	if _, err := Load(); err != nil {
		t.Fatalf("disabled geo should not be validated: %v", err)
	}
}

func TestLoad_ZeroRateRPSAccepted(t *testing.T) {
	t.Setenv("RATE_RPS", "0")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("RATE_RPS=0 should load: %v", err)
	}
	if cfg.RateRPS != 0 {
		t.Fatalf("RateRPS = %v, want 0", cfg.RateRPS)
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name, key, val, want string
	}{
		{"invalid LOG_LEVEL", "LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"non-numeric PORT", "PORT", "http", "PORT must be a number"},
		{"PORT out of range", "PORT", "70000", "PORT must be a number"},
		{"non-positive timeouts", "READ_TIMEOUT", "0s", "timeouts must be positive"},
		{"non-positive shutdown", "SHUTDOWN_TIMEOUT", "-1s", "timeouts must be positive"},
		{"max header bytes <= 0", "MAX_HEADER_BYTES", "0", "MAX_HEADER_BYTES"},
		{"max body bytes <= 0", "MAX_BODY_BYTES", "0", "MAX_BODY_BYTES"},
		{"empty STORE_PATH", "STORE_PATH", "   ", "STORE_PATH must not be empty"},
		{"empty STORE_SHEET", "STORE_SHEET", "   ", "STORE_SHEET must not be empty"},
		{"download name with slash", "DOWNLOAD_NAME", "../x.xlsx", "DOWNLOAD_NAME"},
		{"negative capacity", "QUEUE_CAPACITY", "-1", "QUEUE_CAPACITY"},
		{"empty DB_PATH", "DB_PATH", "   ", "DB_PATH must not be empty"},
		{"unknown TIMEZONE", "TIMEZONE", "Mars/Olympus", "TIMEZONE"},
		{"empty TIMESTAMP_LAYOUT", "TIMESTAMP_LAYOUT", "   ", "TIMESTAMP_LAYOUT"},
		{"bad GEO_ENDPOINT", "GEO_ENDPOINT", "ftp://geo", "GEO_ENDPOINT"},
		{"zero GEO_TIMEOUT", "GEO_TIMEOUT", "0s", "GEO_TIMEOUT"},
		{"zero GEO_CACHE_TTL", "GEO_CACHE_TTL", "0s", "GEO_CACHE_TTL"},
		{"negative GEO_RPS", "GEO_RPS", "-2", "GEO_RPS"},
		{"rate rps negative", "RATE_RPS", "-1", "RATE_RPS"},
		{"rate burst < 1", "RATE_BURST", "0", "RATE_BURST"},
		{"hsts max age negative", "HSTS_MAX_AGE", "-1s", "HSTS_MAX_AGE"},
		{"idempotency ttl non-positive", "IDEMPOTENCY_TTL", "0s", "IDEMPOTENCY_TTL"},
		{"otel sample ratio out of range", "OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil || !containsErr(err, tc.want) {
				t.Fatalf("expected error containing %q, got: %v", tc.want, err)
			}
		})
	}
}

// --- helpers ---

func TestHelpers_getenv(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back to default on empty var")
	}
	t.Setenv("X_SET", "val")
	if getenv("X_SET", "d") != "val" {
		t.Fatalf("getenv should read set value")
	}
}

func TestHelpers_getfloat_getint_getdur(t *testing.T) {
	t.Setenv("F_VALID", "3.14")
	if getfloat("F_VALID", 0) != 3.14 {
		t.Fatalf("getfloat parse failed")
	}
	t.Setenv("F_BAD", "nope")
	if getfloat("F_BAD", 1.23) != 1.23 {
		t.Fatalf("getfloat default on bad parse failed")
	}

	t.Setenv("I_VALID", "42")
	if getint("I_VALID", 0) != 42 {
		t.Fatalf("getint parse failed")
	}
	t.Setenv("I_BAD", "x")
	if getint("I_BAD", 7) != 7 {
		t.Fatalf("getint default on bad parse failed")
	}

	t.Setenv("D_VALID", "150ms")
	if getdur("D_VALID", time.Second) != 150*time.Millisecond {
		t.Fatalf("getdur parse failed")
	}
	t.Setenv("D_BAD", "zzz")
	if getdur("D_BAD", 2*time.Second) != 2*time.Second {
		t.Fatalf("getdur default on bad parse failed")
	}
}

func TestHelpers_getbool(t *testing.T) {
	for i, v := range []string{"1", "true", "TRUE", " yes ", "Y", "on", "On"} {
		k := "B_T_" + string(rune('a'+i))
		t.Setenv(k, v)
		if !getbool(k, false) {
			t.Fatalf("getbool(%q) = false; want true", v)
		}
	}
	for i, v := range []string{"0", "false", "FALSE", " no ", "N", "off", "Off"} {
		k := "B_F_" + string(rune('a'+i))
		t.Setenv(k, v)
		if getbool(k, true) {
			t.Fatalf("getbool(%q) = true; want false", v)
		}
	}
	t.Setenv("B_EMPTY", "")
	if !getbool("B_EMPTY", true) || getbool("B_EMPTY", false) {
		t.Fatalf("getbool default behavior unexpected")
	}
	t.Setenv("B_JUNK", "maybe")
	if !getbool("B_JUNK", true) {
		t.Fatalf("getbool should keep default on unrecognised value")
	}
}

func TestHelpers_splitCSV_and_normalizeBasePath(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	if got, want := splitCSV(" a, ,b ,  c  ,"), []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("splitCSV mismatch: got %#v want %#v", got, want)
	}

	for in, want := range map[string]string{
		"":     "/",
		"v1":   "/v1",
		"/v1/": "/v1",
		" / ":  "/",
		"///":  "/",
	} {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}

// The suite relies on defaults; clear anything the host may export.
func TestMain(m *testing.M) {
	for _, k := range []string{
		"PORT", "API_BASE_PATH", "LOG_LEVEL", "GIN_MODE", "TIMEZONE",
		"STORE_PATH", "DB_PATH", "GEO_TOKEN", "IPINFO_TOKEN", "CORS_ALLOWED_ORIGINS",
		"TRUSTED_PROXIES", "QUEUE_CAPACITY", "SUBMIT_AWAIT_DURABLE",
	} {
		os.Unsetenv(k)
	}
	os.Exit(m.Run())
}

// containsErr reports whether err's message contains the given substring.
func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}
