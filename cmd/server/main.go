package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/clipbid/marketplace/internal/api"
	"github.com/clipbid/marketplace/internal/config"
	"github.com/clipbid/marketplace/internal/db"
	"github.com/clipbid/marketplace/internal/events"
	"github.com/clipbid/marketplace/internal/observability"
	"github.com/clipbid/marketplace/internal/store"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.OTLPEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	var st store.Store
	switch cfg.StoreBackend {
	case "memory":
		logger.Info("Using in-memory store")
		st = store.NewMemoryStore()
	default:
		pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
		if err != nil {
			return fmt.Errorf("failed to connect postgres: %w", err)
		}
		defer pg.Close()
		st = pg
	}

	rs, err := db.InitRedis(cfg.RedisAddr)
	if err != nil {
		if cfg.StoreBackend == "memory" {
			logger.Warn("Redis unavailable, decision cache and payout pub/sub disabled", zap.Error(err))
			rs = nil
		} else {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
	} else {
		defer rs.Close()
	}

	var recorder events.Recorder
	ch, err := events.InitClickHouse(cfg.ClickHouseDSN, cfg.CHMaxOpenConns, cfg.CHMaxIdleConns, cfg.CHConnMaxLifetime, cfg.CHConnMaxIdleTime)
	if err != nil {
		logger.Warn("ClickHouse unavailable, events kept in memory", zap.Error(err))
		recorder = events.NewMockRecorder()
	} else {
		defer ch.Close()
		recorder = ch
	}

	metricsRegistry := observability.NewPrometheusRegistry()
	srvDeps := api.NewServer(logger, st, rs, recorder, metricsRegistry, cfg)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(srvDeps.Routes(), "marketplace"),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Marketplace server running", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}
