// Package geo resolves client addresses to coarse locations for submission
// enrichment. Lookups are best effort: callers use ResolveOrDefault, which
// bounds the lookup time and substitutes Unknown fields on any failure, so a
// slow or failing provider never blocks or fails a submission.
package geo

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-waitlist-backend/internal/domain"
)

// ErrNotRoutable is returned for addresses a public provider cannot locate
// (private, loopback, link-local, unspecified or unparseable).
var ErrNotRoutable = errors.New("geo: address not routable")

// Location is the resolved place of a client address.
type Location struct {
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country"`
}

// UnknownLocation returns the fallback location.
func UnknownLocation() Location {
	return Location{City: domain.Unknown, Region: domain.Unknown, Country: domain.Unknown}
}

// orUnknown fills empty fields with domain.Unknown.
func (l Location) orUnknown() Location {
	if strings.TrimSpace(l.City) == "" {
		l.City = domain.Unknown
	}
	if strings.TrimSpace(l.Region) == "" {
		l.Region = domain.Unknown
	}
	if strings.TrimSpace(l.Country) == "" {
		l.Country = domain.Unknown
	}
	return l
}

// Resolver looks up the location of an IP address.
//
// Implementations must honor ctx cancellation and be safe for concurrent use.
type Resolver interface {
	Resolve(ctx context.Context, ip string) (Location, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, ip string) (Location, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, ip string) (Location, error) { return f(ctx, ip) }

// Routable reports whether ip is a public unicast address worth looking up.
func Routable(ip string) bool {
	addr := net.ParseIP(strings.TrimSpace(ip))
	if addr == nil {
		return false
	}
	return !(addr.IsPrivate() || addr.IsLoopback() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsMulticast())
}

// ResolveOrDefault resolves ip with r, giving up after timeout (<= 0 means no
// extra bound beyond ctx). Any failure is logged and yields UnknownLocation;
// empty fields of a successful lookup are also filled with Unknown. A nil
// resolver or non-routable address short-circuits to UnknownLocation.
func ResolveOrDefault(ctx context.Context, r Resolver, ip string, timeout time.Duration) Location {
	if r == nil || !Routable(ip) {
		return UnknownLocation()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		loc Location
		err error
	}
	ch := make(chan result, 1)
	go func() {
		loc, err := r.Resolve(ctx, ip)
		ch <- result{loc, err}
	}()

	// Do not trust the resolver to honor ctx.
	select {
	case res := <-ch:
		if res.err != nil {
			log.Warn().Err(res.err).Str("ip", ip).Msg("geo lookup failed; using defaults")
			return UnknownLocation()
		}
		return res.loc.orUnknown()
	case <-ctx.Done():
		log.Warn().Err(ctx.Err()).Str("ip", ip).Msg("geo lookup timed out; using defaults")
		return UnknownLocation()
	}
}
