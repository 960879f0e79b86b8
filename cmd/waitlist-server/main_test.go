package main

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-waitlist-backend/internal/config"
	"github.com/tbourn/go-waitlist-backend/internal/domain"
	"github.com/tbourn/go-waitlist-backend/internal/geo"
	"github.com/tbourn/go-waitlist-backend/internal/queue"
	"github.com/tbourn/go-waitlist-backend/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestBuildResolver(t *testing.T) {
	db := newTestDB(t)

	r, err := buildResolver(config.GeoConfig{Enabled: false}, db)
	if err != nil || r != nil {
		t.Fatalf("disabled: r=%v err=%v", r, err)
	}

	if _, err := buildResolver(config.GeoConfig{Enabled: true, Endpoint: "::bad"}, db); err == nil {
		t.Fatalf("expected invalid endpoint error")
	}

	r, err = buildResolver(config.GeoConfig{Enabled: true, Endpoint: "https://ipinfo.io", CacheTTL: time.Hour}, db)
	if err != nil {
		t.Fatalf("enabled: %v", err)
	}
	if c, ok := r.(*geo.CachingResolver); !ok || c.TTL != time.Hour {
		t.Fatalf("expected caching resolver, got %T", r)
	}

	r, err = buildResolver(config.GeoConfig{Enabled: true, Endpoint: "https://ipinfo.io"}, nil)
	if err != nil {
		t.Fatalf("no db: %v", err)
	}
	if _, ok := r.(*geo.HTTPResolver); !ok {
		t.Fatalf("expected bare HTTP resolver without db, got %T", r)
	}
}

func TestNewSubmissionService_AppliesConfig(t *testing.T) {
	q := queue.New(queue.Options{Name: t.Name()})
	defer q.Close(context.Background())

	cfg := config.Config{
		Geo:             config.GeoConfig{Timeout: 750 * time.Millisecond},
		Location:        time.UTC,
		TimestampLayout: time.RFC3339,
		Queue:           config.QueueConfig{AwaitDurable: true},
		IdempotencyTTL:  time.Hour,
	}
	db := newTestDB(t)
	svc := newSubmissionService(cfg, nil, q, nil, db)

	if svc.GeoTimeout != 750*time.Millisecond || svc.Location != time.UTC || svc.Layout != time.RFC3339 {
		t.Fatalf("timing fields not applied: %+v", svc)
	}
	if !svc.AwaitDurable || svc.DB != db || svc.IdempotencyTTL != time.Hour {
		t.Fatalf("durability fields not applied: %+v", svc)
	}

	// Zero values keep the service defaults.
	svc = newSubmissionService(config.Config{}, nil, q, nil, nil)
	if svc.GeoTimeout != 2*time.Second || svc.Layout == "" || svc.Location == nil || svc.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("defaults lost: %+v", svc)
	}
}

func TestPurgeOnce_RemovesExpiredRows(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := repo.CreateIdempotency(ctx, db, "k-old", "s-1", time.Minute); err != nil {
		t.Fatalf("seed idem: %v", err)
	}
	if _, err := repo.PutGeo(ctx, db, "203.0.113.7", "Pune", "MH", "IN", now, time.Minute); err != nil {
		t.Fatalf("seed geo: %v", err)
	}

	purgeOnce(ctx, db, now.Add(time.Hour))

	var idem, geoRows int64
	db.Model(&domain.Idempotency{}).Count(&idem)
	db.Model(&domain.GeoCacheEntry{}).Count(&geoRows)
	if idem != 0 || geoRows != 0 {
		t.Fatalf("rows left: idempotency=%d geo=%d", idem, geoRows)
	}
}

func TestPurgeLoop_StopsOnCancel(t *testing.T) {
	db := newTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		purgeLoop(ctx, db, 5*time.Millisecond, time.Now)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("purgeLoop did not stop")
	}
}
