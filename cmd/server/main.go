package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/lorawan-telemetry-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/lorawan-telemetry-service/internal/adapter/kafka"
	"github.com/couchcryptid/lorawan-telemetry-service/internal/adapter/postgres"
	"github.com/couchcryptid/lorawan-telemetry-service/internal/config"
	"github.com/couchcryptid/lorawan-telemetry-service/internal/ingest"
	"github.com/couchcryptid/lorawan-telemetry-service/internal/observability"
	"github.com/couchcryptid/lorawan-telemetry-service/internal/retention"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		logger.Error("failed to migrate store", "error", err)
		os.Exit(1)
	}

	// Mirror publishing is feature-flagged via KAFKA_BROKERS / KAFKA_ENABLED.
	var mirror ingest.Mirror
	if cfg.KafkaEnabled {
		publisher := kafkaadapter.NewPublisher(cfg, logger)
		defer publisher.Close()
		mirror = publisher
		metrics.MirrorEnabled.Set(1)
		logger.Info("kafka mirror enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaMirrorTopic)
	} else {
		logger.Info("kafka mirror disabled")
	}

	ingestor := ingest.New(store, mirror, logger, metrics)
	reaper := retention.New(store, cfg.RetentionMaxAge, cfg.RetentionSweepInterval, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, ingestor, store, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start retention reaper.
	go reaper.Run(ctx)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
