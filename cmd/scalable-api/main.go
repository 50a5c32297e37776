package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	memorystore "github.com/bvquoc/scalable-api/internal/adapter/driven/memory"
	"github.com/bvquoc/scalable-api/internal/adapter/driven/prom"
	redisstore "github.com/bvquoc/scalable-api/internal/adapter/driven/redis"
	sqliteadapter "github.com/bvquoc/scalable-api/internal/adapter/driven/sqlite"
	httphandler "github.com/bvquoc/scalable-api/internal/adapter/driving/http"
	"github.com/bvquoc/scalable-api/internal/application"
	"github.com/bvquoc/scalable-api/internal/config"
	"github.com/bvquoc/scalable-api/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on malformed env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"redis", cfg.UseRedis(),
		"cache_ttl", cfg.CacheTTL,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open the key database and run migrations.
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 4. Wire the shared key-value store: Redis when configured, otherwise
	// an in-process store (single-node only).
	var kv driven.KeyValueStore
	if cfg.UseRedis() {
		rdb, err := redisstore.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := rdb.Close(); closeErr != nil {
				slog.Error("error closing redis client", "error", closeErr)
			}
		}()
		kv = redisstore.NewStore(rdb, slog.Default())
		slog.Info("redis connected", "addr", cfg.RedisAddr)
	} else {
		kv = memorystore.NewStore()
		slog.Info("no redis configured, using in-memory key-value store")
	}

	// 5. Wire admission services.
	metrics := prom.NewMetrics(prometheus.DefaultRegisterer)
	keyStore := sqliteadapter.NewAPIKeyRepo(db)
	cacheSvc := application.NewKeyCacheService(kv, keyStore, metrics, slog.Default(), cfg.CacheTTL)
	limiter := application.NewRateLimitService(kv, slog.Default())

	// Usage recorder drains last_used_at updates off the response path.
	go cacheSvc.Start(ctx)

	// 6. Pre-populate the cache with the active key set.
	if cfg.WarmCache {
		hashes, err := keyStore.ListActiveHashes(ctx)
		if err != nil {
			slog.Error("cache warming skipped", "error", err)
		} else {
			cacheSvc.Warm(ctx, hashes)
		}
	}

	// 7. Build the handler chain and start the server.
	gate := httphandler.NewGate(cacheSvc, limiter, slog.Default())
	handler := httphandler.NewServeMux(
		httphandler.NewHandler(keyStore, slog.Default()),
		gate,
		promhttp.Handler(),
		slog.Default(),
	)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	// 8. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 9. Graceful shutdown with a drain timeout. In-flight store calls may
	// finish or be abandoned; pending usage updates are dropped with the
	// worker's context.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
