package geo

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/tbourn/go-waitlist-backend/internal/repo"
)

// CachingResolver wraps a Resolver with a SQLite-backed TTL cache. Concurrent
// misses for the same address share a single upstream lookup. Only successful
// lookups are cached.
type CachingResolver struct {
	Next Resolver
	DB   *gorm.DB
	TTL  time.Duration

	// now is overridable in tests.
	now   func() time.Time
	group singleflight.Group
}

// NewCachingResolver returns a CachingResolver; ttl <= 0 defaults to 24h.
func NewCachingResolver(next Resolver, db *gorm.DB, ttl time.Duration) *CachingResolver {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachingResolver{Next: next, DB: db, TTL: ttl, now: time.Now}
}

// Resolve implements Resolver.
func (c *CachingResolver) Resolve(ctx context.Context, ip string) (Location, error) {
	now := c.now().UTC()

	entry, err := repo.GetGeo(ctx, c.DB, ip, now)
	switch {
	case err == nil:
		return Location{City: entry.City, Region: entry.Region, Country: entry.Country}, nil
	case !errors.Is(err, repo.ErrNotFound):
		log.Warn().Err(err).Str("ip", ip).Msg("geo cache read failed")
	}

	v, err, _ := c.group.Do(ip, func() (interface{}, error) {
		loc, err := c.Next.Resolve(ctx, ip)
		if err != nil {
			return Location{}, err
		}
		if _, perr := repo.PutGeo(ctx, c.DB, ip, loc.City, loc.Region, loc.Country, now, c.TTL); perr != nil {
			log.Warn().Err(perr).Str("ip", ip).Msg("geo cache write failed")
		}
		return loc, nil
	})
	if err != nil {
		return Location{}, err
	}
	return v.(Location), nil
}
