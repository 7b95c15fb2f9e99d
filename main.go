package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ylohnitram/danovyhlidac-sub001/pkg/cache"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/config"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/database"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/downloader"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/extractor"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/handlers"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/logging"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/metrics"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/middleware"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/models"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/repositories"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/retry"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.ResolveServiceHosts()

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("database", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)),
		zap.String("redis_host", cfg.Redis.Host),
		zap.String("dump_source", logging.SanitizeURL(cfg.Sync.SourceBaseURL)),
		zap.String("update_policy", cfg.Sync.UpdatePolicy))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*database.DB, error) {
		return database.NewConnection(ctx, database.ConfigFrom(&cfg.Database))
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.String("error", logging.SanitizeError(err)))
	}
	defer db.Close()

	if err := database.RunMigrations(db, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	tables, err := repositories.NewTables(cfg.Database.Tables)
	if err != nil {
		logger.Fatal("Invalid table configuration", zap.Error(err))
	}

	kv, closeKV := newCacheBackend(ctx, cfg, logger)
	defer closeKV()

	queryCache := cache.New(kv, cache.Options{
		Prefix:      cfg.Cache.Prefix,
		OpTimeout:   cfg.Cache.OpTimeout,
		BulkTimeout: cfg.Cache.BulkTimeout,
		LoadTimeout: cfg.Cache.LoadTimeout,
		Metrics:     metrics.NewCacheMetrics(prometheus.DefaultRegisterer),
	}, logger)

	dl, err := downloader.New(downloader.Config{
		BaseURL:    cfg.Sync.SourceBaseURL,
		StagingDir: cfg.Sync.StagingDir,
		Timeout:    cfg.Sync.FetchTimeout,
	}, &http.Client{Timeout: cfg.Sync.FetchTimeout}, logger)
	if err != nil {
		logger.Fatal("Failed to create downloader", zap.Error(err))
	}

	shapes, err := extractor.ParseShapePolicy(cfg.Extractor.ShapeOrder)
	if err != nil {
		logger.Fatal("Invalid extractor shape order", zap.Error(err))
	}

	contractRepo := repositories.NewContractRepository(db, tables)
	reconciler := services.NewReconciler(contractRepo, queryCache, cfg.Sync.UpdatePolicy, logger)
	syncService := services.NewSyncRunner(
		dl,
		extractor.New(shapes, logger),
		reconciler,
		metrics.NewSyncMetrics(prometheus.DefaultRegisterer),
		logger,
	)
	queryService := services.NewContractQueryService(contractRepo, queryCache, services.CacheTTLs{
		List:   cfg.Cache.ListTTL,
		Detail: cfg.Cache.DetailTTL,
		Stat:   cfg.Cache.StatTTL,
	}, logger)

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, db, queryCache, logger).RegisterRoutes(mux)
	handlers.NewSyncHandler(syncService, logger).RegisterRoutes(mux)
	handlers.NewContractsHandler(queryService, logger).RegisterRoutes(mux)
	handlers.NewCacheHandler(queryCache, queryService, warmFilters(cfg.Cache.WarmQueries), logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := middleware.Recoverer(logger)(middleware.RequestLogger(logger)(mux))

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Starting danovyhlidac",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
	logger.Info("Server stopped")
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		logConfig := zap.NewDevelopmentConfig()
		logConfig.DisableStacktrace = true
		return logConfig.Build()
	}
	return zap.NewProduction()
}

// newCacheBackend connects to Redis when configured. Without a Redis host, or
// when Redis stays unreachable, the process-local cache is used.
func newCacheBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.KeyValueCache, func()) {
	client, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*redis.Client, error) {
		return database.NewRedisClient(ctx, &cfg.Redis)
	})
	if err != nil {
		logger.Warn("Redis unavailable, using in-process cache", zap.String("error", logging.SanitizeError(err)))
		return cache.NewMemoryKV(), func() {}
	}
	if client == nil {
		logger.Info("Redis not configured, using in-process cache")
		return cache.NewMemoryKV(), func() {}
	}
	logger.Info("Query cache backed by Redis", zap.String("host", cfg.Redis.Host))
	return cache.NewRedisKV(client), func() { _ = client.Close() }
}

func warmFilters(queries []config.WarmQuery) []models.ContractFilter {
	filters := make([]models.ContractFilter, 0, len(queries))
	for _, q := range queries {
		filters = append(filters, models.ContractFilter{
			Query:    q.Query,
			Category: q.Category,
			Limit:    q.Limit,
		})
	}
	return filters
}
