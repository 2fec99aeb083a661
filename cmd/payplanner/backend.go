package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"payPlanner/internal/config"
	"payPlanner/internal/metrics"
	"payPlanner/internal/storage"
	"payPlanner/internal/storage/postgres"
	"payPlanner/internal/storage/redis"
)

func addStorageFlags(cmd *cobra.Command) {
	cmd.Flags().String("account", "", "account address whose history is tracked")
	cmd.Flags().String("storage", config.StorageFile, "history backend (file, postgres, redis)")
	cmd.Flags().String("storage-dir", "./data/history", "directory of the file backend")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().String("redis-url", "", "Redis URL")
	cmd.Flags().String("indexer-url", "https://indexer.api.across.to", "remote deposit indexer base URL")
	cmd.Flags().Int("indexer-retries", 3, "indexer request retries")
	cmd.Flags().Duration("indexer-backoff", 500*time.Millisecond, "initial indexer retry backoff")
}

// openStorage opens the configured history backend. The returned func
// releases it.
func openStorage(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.AccountStore, func(), error) {
	switch cfg.Storage {
	case config.StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return store, store.Close, nil
	case config.StorageRedis:
		store, err := redis.Dial(ctx, cfg.RedisURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Warn("close redis", zap.Error(err))
			}
		}, nil
	default:
		return storage.NewFileStore(cfg.StorageDir), func() {}, nil
	}
}

// serveMetrics exposes a prometheus registry on addr until ctx is done. An
// empty addr disables metrics and yields a nil recorder.
func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) (metrics.Recorder, error) {
	if addr == "" {
		return nil, nil
	}
	reg := prometheus.NewRegistry()
	recorder, err := metrics.NewPrometheusRecorder(reg)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", zap.String("addr", addr))
	return recorder, nil
}
