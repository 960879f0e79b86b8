package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type idemResult struct {
	Key    string `json:"key"`
	Replay bool   `json:"replay"`
	Bypass bool   `json:"bypass"`
}

func idemRouter(opts IdempotencyOptions, lookup IdempotencyLookup) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(IdempotencyValidator(opts, lookup))
	r.POST("/submit", func(c *gin.Context) {
		k, _ := GetIdempotencyKey(c)
		c.JSON(http.StatusOK, idemResult{Key: k, Replay: IsReplay(c), Bypass: IsRateBypass(c)})
	})
	return r
}

func postWithKey(r http.Handler, key string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/submit", nil)
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotencyValidator_NoHeaderPassesThrough(t *testing.T) {
	called := false
	r := idemRouter(IdempotencyOptions{}, func(context.Context, string, time.Time) (bool, error) {
		called = true
		return true, nil
	})
	w := postWithKey(r, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"key":""`) {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
	if called {
		t.Fatal("lookup must not run without a key")
	}
}

func TestIdempotencyValidator_RejectsMalformed(t *testing.T) {
	r := idemRouter(IdempotencyOptions{MaxLen: 10}, nil)
	for _, key := range []string{"has space", "émoji", strings.Repeat("a", 11)} {
		w := postWithKey(r, key)
		if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "bad_idempotency_key") {
			t.Fatalf("key %q: got %d %s", key, w.Code, w.Body.String())
		}
	}

	custom := idemRouter(IdempotencyOptions{Pattern: regexp.MustCompile(`^[0-9]+$`)}, nil)
	if w := postWithKey(custom, "abc"); w.Code != http.StatusBadRequest {
		t.Fatalf("custom pattern: got %d", w.Code)
	}
	if w := postWithKey(custom, "123"); w.Code != http.StatusOK {
		t.Fatalf("custom pattern valid key: got %d", w.Code)
	}
}

func TestIdempotencyValidator_ReplayMarksBypass(t *testing.T) {
	r := idemRouter(IdempotencyOptions{}, func(_ context.Context, key string, _ time.Time) (bool, error) {
		return key == "seen-1", nil
	})

	w := postWithKey(r, "seen-1")
	if !strings.Contains(w.Body.String(), `"replay":true`) || !strings.Contains(w.Body.String(), `"bypass":true`) {
		t.Fatalf("seen key: %s", w.Body.String())
	}
	w = postWithKey(r, "new-1")
	if !strings.Contains(w.Body.String(), `"key":"new-1"`) || !strings.Contains(w.Body.String(), `"replay":false`) {
		t.Fatalf("new key: %s", w.Body.String())
	}
}

func TestIdempotencyValidator_LookupErrorIgnored(t *testing.T) {
	r := idemRouter(IdempotencyOptions{}, func(context.Context, string, time.Time) (bool, error) {
		return true, errors.New("db down")
	})
	w := postWithKey(r, "k-1")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"replay":false`) {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
}
