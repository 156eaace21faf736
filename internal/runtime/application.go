// Package runtime wires configuration, stores, services and the HTTP
// server into one application lifecycle.
package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	"github.com/nitemap/nitemap/internal/cache"
	"github.com/nitemap/nitemap/internal/config"
	"github.com/nitemap/nitemap/internal/httpapi"
	"github.com/nitemap/nitemap/internal/logging"
	"github.com/nitemap/nitemap/internal/metrics"
	"github.com/nitemap/nitemap/internal/middleware"
	boardsvc "github.com/nitemap/nitemap/internal/services/board"
	"github.com/nitemap/nitemap/internal/services/coupons"
	noticesvc "github.com/nitemap/nitemap/internal/services/notices"
	"github.com/nitemap/nitemap/internal/services/points"
	venuesvc "github.com/nitemap/nitemap/internal/services/venues"
	"github.com/nitemap/nitemap/internal/session"
	"github.com/nitemap/nitemap/internal/storage"
	"github.com/nitemap/nitemap/internal/storage/memory"
	"github.com/nitemap/nitemap/internal/storage/postgres"
	"github.com/nitemap/nitemap/internal/storage/supabasestore"
	"github.com/nitemap/nitemap/supabase/client"
)

// Store is the full persistence surface the application wires. All three
// backends implement it.
type Store interface {
	storage.ProfileStore
	storage.PointsStore
	storage.VenueStore
	storage.PostStore
	storage.CommentStore
	storage.CouponStore
	storage.ShopStore
	storage.NoticeStore
}

// Application owns the wired components and their lifecycle.
type Application struct {
	cfg     *config.Config
	log     *logging.Logger
	server  *http.Server
	sweeper  *coupons.Sweeper
	session  *session.Service
	realtime *client.RealtimeClient
	cache    *cache.Cache
	db       *sql.DB
}

// New builds the application from configuration.
func New(cfg *config.Config) (*Application, error) {
	log := logging.New(cfg.Logging).WithComponent("nitemap")
	m := metrics.New()

	store, db, err := OpenStore(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("configure store: %w", err)
	}

	redisCache, err := cache.New(context.Background(), cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("connect cache: %w", err)
	}

	pointsSvc := points.New(store, store, store, nil, m, log)
	app := &Application{
		cfg:     cfg,
		log:     log,
		cache:   redisCache,
		db:      db,
		sweeper: coupons.NewSweeper(store, cfg.CouponSweepSchedule, log),
	}

	if cfg.Store.Backend == config.BackendSupabase {
		supa, err := client.New(client.Config{
			URL:    cfg.Supabase.URL,
			APIKey: cfg.Supabase.ServiceKey,
		})
		if err != nil {
			return nil, fmt.Errorf("supabase client: %w", err)
		}
		app.session = session.New(supa.Auth(), store, log)
		app.realtime = client.NewRealtimeClient(cfg.Supabase.URL, cfg.Supabase.AnonKey)
	}

	handler := httpapi.New(httpapi.Config{
		Venues:      venuesvc.New(store, redisCache, log),
		Board:       boardsvc.New(store, store, pointsSvc, log),
		Points:      pointsSvc,
		Notices:     noticesvc.New(store),
		Profiles:    store,
		Shop:        store,
		Auth:        middleware.NewAuthMiddleware(cfg.Supabase.JWTSecret, store, log),
		CORS:        middleware.NewCORSMiddleware(nil),
		RateLimiter: middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log),
		Metrics:     m,
		Logger:      log,
	})

	app.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return app, nil
}

// Run starts the background jobs and the HTTP server, blocking until the
// context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.sweeper.Start(); err != nil {
		return fmt.Errorf("start coupon sweeper: %w", err)
	}
	if a.session != nil {
		if err := a.session.Start(ctx); err != nil {
			return fmt.Errorf("start session service: %w", err)
		}
		a.watchProfileChanges(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// watchProfileChanges subscribes to profile row changes over the realtime
// socket so the session's cached profile refreshes without polling. The
// subscription is best effort: the store remains authoritative.
func (a *Application) watchProfileChanges(ctx context.Context) {
	if a.realtime == nil {
		return
	}
	if err := a.realtime.Connect(ctx); err != nil {
		a.log.WithError(err).Warn("realtime connect failed, profile changes will not stream")
		return
	}
	err := a.realtime.Subscribe("realtime:public:profiles", func(_ *client.RealtimeEvent) {
		a.session.InvalidateProfile(ctx)
	})
	if err != nil {
		a.log.WithError(err).Warn("realtime subscribe failed")
	}
}

// Shutdown stops the server and background jobs gracefully.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := a.sweeper.Stop(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("coupon sweeper did not stop cleanly")
	}
	if a.session != nil {
		if err := a.session.Stop(shutdownCtx); err != nil {
			a.log.WithError(err).Warn("session service did not stop cleanly")
		}
	}
	if a.realtime != nil {
		if err := a.realtime.Close(); err != nil {
			a.log.WithError(err).Warn("error closing realtime socket")
		}
	}
	if err := a.cache.Close(); err != nil {
		a.log.WithError(err).Warn("error closing cache connection")
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}
	return nil
}

// OpenStore builds the configured persistence backend. The postgres
// backend runs pending migrations before opening the pool.
func OpenStore(cfg *config.Config, log *logging.Logger) (Store, *sql.DB, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return memory.New(), nil, nil

	case config.BackendPostgres:
		if err := postgres.RunMigrations(cfg.Store.PostgresDSN); err != nil {
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		db, err := openDatabase(cfg.Store.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return postgres.New(db), db, nil

	case config.BackendSupabase:
		supa, err := client.New(client.Config{
			URL:    cfg.Supabase.URL,
			APIKey: cfg.Supabase.ServiceKey,
		})
		if err != nil {
			return nil, nil, err
		}
		return supabasestore.New(supa, log), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func openDatabase(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
