package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// maxResponseBytes caps provider response bodies.
const maxResponseBytes = 64 << 10

// HTTPOptions configures an HTTPResolver.
type HTTPOptions struct {
	// Endpoint is the provider base URL, e.g. "https://ipinfo.io".
	Endpoint string
	// Token is the provider credential; sent as a bearer token when set.
	Token string
	// RPS and Burst bound outbound lookups; RPS <= 0 disables limiting.
	RPS   float64
	Burst int
	// Client overrides the HTTP client (tests). When nil, a client with an
	// OpenTelemetry-instrumented transport is used.
	Client *http.Client
}

// HTTPResolver queries an ipinfo-style JSON API:
//
//	GET {endpoint}/{ip}/json
//	{"ip":"203.0.113.7","city":"Pune","region":"Maharashtra","country":"IN"}
//
// Responses flagged "bogon" are reported as ErrNotRoutable.
type HTTPResolver struct {
	base    *url.URL
	token   string
	client  *http.Client
	limiter *rate.Limiter
}

// ipinfoResponse is the subset of the provider payload we use.
type ipinfoResponse struct {
	IP      string `json:"ip"`
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country"`
	Bogon   bool   `json:"bogon"`
}

// NewHTTPResolver validates opts and returns a resolver.
func NewHTTPResolver(opts HTTPOptions) (*HTTPResolver, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("geo: invalid endpoint %q", opts.Endpoint)
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   10 * time.Second,
		}
	}
	r := &HTTPResolver{base: base, token: opts.Token, client: client}
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return r, nil
}

// Resolve implements Resolver.
func (r *HTTPResolver) Resolve(ctx context.Context, ip string) (Location, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return Location{}, fmt.Errorf("geo: rate limit: %w", err)
		}
	}

	u := r.base.JoinPath(url.PathEscape(ip), "json")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Location{}, err
	}
	req.Header.Set("Accept", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("geo: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return Location{}, fmt.Errorf("geo: provider status %d", resp.StatusCode)
	}

	var body ipinfoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return Location{}, fmt.Errorf("geo: decode: %w", err)
	}
	if body.Bogon {
		return Location{}, ErrNotRoutable
	}
	return Location{City: body.City, Region: body.Region, Country: body.Country}, nil
}
