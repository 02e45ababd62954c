package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	copilothandler "github.com/cw-konishi/copilot-metric-saver/domains/copilot/be/handler"
	copilotrepo "github.com/cw-konishi/copilot-metric-saver/domains/copilot/be/repo"
	copilotservice "github.com/cw-konishi/copilot-metric-saver/domains/copilot/be/service"
	tenantshandler "github.com/cw-konishi/copilot-metric-saver/domains/tenants/be/handler"
	tenantsrepo "github.com/cw-konishi/copilot-metric-saver/domains/tenants/be/repo"
	tenantsservice "github.com/cw-konishi/copilot-metric-saver/domains/tenants/be/service"
	"github.com/cw-konishi/copilot-metric-saver/platform/go/githubapi"
	platformlogging "github.com/cw-konishi/copilot-metric-saver/platform/go/logging"
	"github.com/cw-konishi/copilot-metric-saver/platform/go/metrics"
	platformmiddleware "github.com/cw-konishi/copilot-metric-saver/platform/go/middleware"
	"github.com/cw-konishi/copilot-metric-saver/platform/go/persistence"
	"github.com/cw-konishi/copilot-metric-saver/platform/go/syncjob"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`

	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"sqlite"` // sqlite | postgres | memory
	DatabaseURL    string `env:"DATABASE_URL"`                        // required when STORAGE_BACKEND=postgres
	SQLitePath     string `env:"SQLITE_PATH" envDefault:"./.data/copilot.db"`

	GitHubAPIBase   string        `env:"GITHUB_API_BASE" envDefault:"https://api.github.com"`
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"30s"`
	UpstreamRPS     float64       `env:"UPSTREAM_RPS" envDefault:"10"`

	SyncInterval      time.Duration `env:"SYNC_INTERVAL" envDefault:"12h"`
	SyncEnabled       bool          `env:"SYNC_ENABLED" envDefault:"true"`
	CollectTeamData   bool          `env:"COLLECT_TEAM_DATA" envDefault:"true"`
	SaveTenantsOnRead bool          `env:"SAVE_TENANTS_ON_READ" envDefault:"true"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	var (
		tenantRepo    tenantsservice.Repository
		snapshotStore copilotservice.SnapshotStore
	)
	switch cfg.StorageBackend {
	case "postgres":
		if cfg.DatabaseURL == "" {
			logger.Fatal("database url required when STORAGE_BACKEND=postgres")
		}
		pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
		if err != nil {
			logger.Fatal("init postgres pool", zap.Error(err))
		}
		defer persistence.ClosePool(pool)
		if err := persistence.EnsurePostgresSchema(ctx, pool); err != nil {
			logger.Fatal("ensure postgres schema", zap.Error(err))
		}
		tenantRepo = tenantsrepo.NewPostgresRepository(pool)
		snapshotStore = copilotrepo.NewPostgresStore(pool)
	case "sqlite":
		db, err := persistence.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			logger.Fatal("open sqlite database", zap.Error(err))
		}
		defer db.Close()
		if err := persistence.EnsureSQLiteSchema(ctx, db); err != nil {
			logger.Fatal("ensure sqlite schema", zap.Error(err))
		}
		tenantRepo = tenantsrepo.NewSQLiteRepository(db)
		snapshotStore = copilotrepo.NewSQLiteStore(db)
	case "memory":
		tenantRepo = tenantsrepo.NewMemoryRepository()
		snapshotStore = copilotrepo.NewMemoryStore()
	default:
		logger.Fatal("invalid STORAGE_BACKEND (use sqlite, postgres or memory)", zap.String("backend", cfg.StorageBackend))
	}

	github := githubapi.NewClient(githubapi.Config{
		BaseURL: cfg.GitHubAPIBase,
		Timeout: cfg.UpstreamTimeout,
		RPS:     cfg.UpstreamRPS,
	})

	registry := tenantsservice.NewRegistry(tenantRepo, github)
	factory := copilotservice.NewFactory(snapshotStore, github)

	tenantHTTPHandler := tenantshandler.New(registry, logger)
	copilotHTTPHandler := copilothandler.New(registry, factory, copilothandler.Config{
		SaveTenantsOnRead: cfg.SaveTenantsOnRead,
	}, logger)

	if cfg.SyncEnabled {
		job := syncjob.New(registry, factory, syncjob.Config{
			Interval:        cfg.SyncInterval,
			CollectTeamData: cfg.CollectTeamData,
		}, logger.With(zap.String("component", "sync-job")), metrics.NewSyncMetrics())
		go job.Run(ctx)
	}

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)

	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Handle("/metrics", promhttp.Handler())

	apiRouter := chi.NewRouter()
	tenantHTTPHandler.Routes(apiRouter)
	copilotHTTPHandler.Routes(apiRouter)
	rootRouter.Mount("/api", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
