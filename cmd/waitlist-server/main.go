// Command waitlist-server runs the waitlist HTTP API: it accepts sign-ups,
// appends them to a spreadsheet file through a single-writer queue and
// serves that file for download.
//
//	@title			Waitlist API
//	@version		1.0
//	@description	Collects waitlist sign-ups into a spreadsheet file and serves it for download.
//	@BasePath		/
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-waitlist-backend/docs"
	"github.com/tbourn/go-waitlist-backend/internal/config"
	"github.com/tbourn/go-waitlist-backend/internal/geo"
	httpapi "github.com/tbourn/go-waitlist-backend/internal/http"
	"github.com/tbourn/go-waitlist-backend/internal/observability"
	"github.com/tbourn/go-waitlist-backend/internal/queue"
	"github.com/tbourn/go-waitlist-backend/internal/repo"
	"github.com/tbourn/go-waitlist-backend/internal/services"
	"github.com/tbourn/go-waitlist-backend/internal/sheet"
	"github.com/tbourn/go-waitlist-backend/internal/store"
	"github.com/tbourn/go-waitlist-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// purgeInterval is how often expired idempotency keys and geo cache rows are
// deleted.
const purgeInterval = time.Hour

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config_invalid")
	}

	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)
	sysutil.ConfigureLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName, ver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, ver); err != nil {
		log.Fatal().Err(err).Msg("server_failed")
	}
}

// run wires every component, serves until ctx is cancelled and then shuts
// down in dependency order: HTTP intake first, then the append backlog, then
// telemetry and the database.
func run(ctx context.Context, cfg config.Config, ver string) error {
	gin.SetMode(cfg.GinMode)
	docs.SwaggerInfo.Version = ver
	docs.SwaggerInfo.BasePath = cfg.APIBasePath

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		return err
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}

	schema := sheet.DefaultSchema()
	schema.SheetName = cfg.Store.Sheet
	engine, err := store.New(store.Options{Path: cfg.Store.Path, Schema: schema, Lock: cfg.Store.Lock})
	if err != nil {
		return err
	}
	q := queue.New(queue.Options{Name: "append", Capacity: cfg.Queue.Capacity})

	resolver, err := buildResolver(cfg.Geo, db)
	if err != nil {
		return err
	}
	submissions := newSubmissionService(cfg, engine, q, resolver, db)

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return err
	}
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:          db,
		Submissions: submissions,
		Export:      &services.ExportService{Store: engine, Name: cfg.Store.DownloadName},
		Stats:       &services.StatsService{Store: engine, Queue: q},
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	purgeCtx, stopPurge := context.WithCancel(ctx)
	defer stopPurge()
	go purgeLoop(purgeCtx, db, purgeInterval, time.Now)

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("store", cfg.Store.Path).
			Str("base_path", cfg.APIBasePath).
			Bool("await_durable", cfg.Queue.AwaitDurable).
			Bool("geo", resolver != nil).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_requested")
	case runErr = <-serveErr:
		log.Error().Err(runErr).Msg("listen_failed")
	}
	stopPurge()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http_shutdown")
	}
	// Accepted submissions are written before the process exits.
	if err := q.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Int("pending", q.Len()).Msg("append_queue_not_drained")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("otel_shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("stopped")
	return runErr
}

// buildResolver returns the geolocation chain (HTTP lookup behind the
// SQLite cache) or nil when enrichment is disabled.
func buildResolver(cfg config.GeoConfig, db *gorm.DB) (geo.Resolver, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	hr, err := geo.NewHTTPResolver(geo.HTTPOptions{
		Endpoint: cfg.Endpoint,
		Token:    cfg.Token,
		RPS:      cfg.RPS,
		Burst:    cfg.Burst,
	})
	if err != nil {
		return nil, err
	}
	if db == nil {
		return hr, nil
	}
	return geo.NewCachingResolver(hr, db, cfg.CacheTTL), nil
}

func newSubmissionService(cfg config.Config, st services.Appender, q services.TaskQueue, r geo.Resolver, db *gorm.DB) *services.SubmissionService {
	svc := services.NewSubmissionService(st, q, r)
	if cfg.Geo.Timeout > 0 {
		svc.GeoTimeout = cfg.Geo.Timeout
	}
	if cfg.Location != nil {
		svc.Location = cfg.Location
	}
	if cfg.TimestampLayout != "" {
		svc.Layout = cfg.TimestampLayout
	}
	svc.AwaitDurable = cfg.Queue.AwaitDurable
	svc.DB = db
	if cfg.IdempotencyTTL > 0 {
		svc.IdempotencyTTL = cfg.IdempotencyTTL
	}
	return svc
}

// purgeLoop deletes expired side-table rows every interval until ctx ends.
func purgeLoop(ctx context.Context, db *gorm.DB, interval time.Duration, now func() time.Time) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			purgeOnce(ctx, db, now().UTC())
		}
	}
}

func purgeOnce(ctx context.Context, db *gorm.DB, now time.Time) {
	if n, err := repo.PurgeExpiredIdempotency(ctx, db, now); err != nil {
		log.Warn().Err(err).Msg("idempotency_purge_failed")
	} else if n > 0 {
		log.Debug().Int64("removed", n).Msg("idempotency_purged")
	}
	if n, err := repo.PurgeExpiredGeo(ctx, db, now); err != nil {
		log.Warn().Err(err).Msg("geo_cache_purge_failed")
	} else if n > 0 {
		log.Debug().Int64("removed", n).Msg("geo_cache_purged")
	}
}
