package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"vigil/internal/adapters/cache"
	httpadapter "vigil/internal/adapters/http"
	pg "vigil/internal/adapters/postgres"
	"vigil/internal/adapters/secrets"
	"vigil/internal/adapters/template"
	"vigil/internal/config"
	"vigil/internal/ports"
	"vigil/internal/services/intel"
	"vigil/internal/services/registry"
	"vigil/internal/services/watchlist"
	"vigil/internal/workers/monitor"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Warn("config", "err", err)
	}
	if cfg.DatabaseURL == "" {
		log.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pg.Migrate(cfg.DatabaseURL); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	db, err := pg.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := pg.SeedPredefinedSources(ctx, db); err != nil {
		log.Error("seeding sources failed", "err", err)
		os.Exit(1)
	}

	secretStore, err := secrets.New(cfg.EncryptionKey, cfg.SecretKey)
	if err != nil {
		log.Error("secret store init failed", "err", err)
		os.Exit(1)
	}

	// Local tier always; shared tier only when Redis is configured. Redis
	// being down at startup degrades to local-only rather than failing boot.
	local := cache.NewMemory()
	var shared ports.ResultCache
	if cfg.RedisEnabled {
		redisCache, err := cache.NewRedis(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Warn("redis unavailable, running on local cache only", "err", err)
		} else {
			shared = redisCache
		}
	}

	client := template.New(&http.Client{Timeout: time.Duration(cfg.SourceTimeoutSeconds) * time.Second}, log)
	reg := registry.New(db, db)
	intelSvc := intel.New(reg, client, secretStore, local, shared, db, db, intel.Options{
		CacheTTL:      time.Duration(cfg.CacheTTLSeconds) * time.Second,
		SourceTimeout: time.Duration(cfg.SourceTimeoutSeconds) * time.Second,
	}, log)
	watchSvc := watchlist.New(db, db, db, intelSvc, log)

	if cfg.SchedulerEnabled {
		mon := monitor.New(db, watchSvc, monitor.Config{
			Interval:         time.Duration(cfg.SchedulerIntervalMinutes) * time.Minute,
			MinCheckInterval: time.Duration(cfg.SchedulerMinCheckInterval) * time.Minute,
		}, log)
		go mon.Run(ctx)
	}

	srv := httpadapter.New(intelSvc, watchSvc, log)
	r := chi.NewRouter()
	r.Mount("/", srv.Routes())

	errCh := make(chan error, 1)
	go func() { errCh <- http.ListenAndServe(cfg.ListenAddr, r) }()
	log.Info("listening", "addr", cfg.ListenAddr, "env", cfg.Env)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
		cancel()
		time.Sleep(300 * time.Millisecond)
	case err := <-errCh:
		log.Error("server error", "err", err)
		os.Exit(1)
	}
}
