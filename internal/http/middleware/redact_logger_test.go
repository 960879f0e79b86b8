package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRedact(t *testing.T) {
	cases := []struct {
		in       string
		contains string
		leaks    string
	}{
		{"email=a.b@x.com", "[REDACTED:email]", "a.b@x.com"},
		{"email=a.b%40x.com", "[REDACTED:email]", "a.b%40x.com"},
		{"whatsapp=+91 98765 43210", "[REDACTED:phone]", "98765"},
		{"id=123e4567-e89b-12d3-a456-426614174000", "[REDACTED:id]", "426614174000"},
		{"page=2", "page=2", ""},
	}
	for _, tc := range cases {
		got := Redact(tc.in)
		if !strings.Contains(got, tc.contains) {
			t.Errorf("Redact(%q) = %q, want it to contain %q", tc.in, got, tc.contains)
		}
		if tc.leaks != "" && strings.Contains(got, tc.leaks) {
			t.Errorf("Redact(%q) = %q leaks %q", tc.in, got, tc.leaks)
		}
	}
	if Redact("") != "" {
		t.Fatal("empty input should stay empty")
	}
}

func TestRedactingLogger_ScrubsAndLevels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), ScopedLogger(), RedactingLogger(RedactOptions{LogHeaders: true, MaskHeaders: []string{"X-Api-Key"}}))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })

	req := httptest.NewRequest(http.MethodGet, "/ok?email=someone@example.com", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	req.Header.Set("X-Api-Key", "k-123")
	req.Header.Set(HeaderIdempotencyKey, "idem-1")
	r.ServeHTTP(httptest.NewRecorder(), req)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bad", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))

	logs := buf.String()
	for _, secret := range []string{"someone@example.com", "secret-token", "k-123", "idem-1"} {
		if strings.Contains(logs, secret) {
			t.Fatalf("log leaked %q:\n%s", secret, logs)
		}
	}
	for _, want := range []string{`"level":"info"`, `"level":"warn"`, `"level":"error"`, `"message":"http_request"`, `"path":"/ok"`} {
		if !strings.Contains(logs, want) {
			t.Fatalf("expected %s in logs:\n%s", want, logs)
		}
	}
}

func TestRedactingLogger_NoHeadersByDefault(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RedactingLogger(RedactOptions{}))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("User-Agent", "probe")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if strings.Contains(buf.String(), `"headers"`) {
		t.Fatalf("headers logged without LogHeaders: %s", buf.String())
	}
}
