// Command quarryd runs the quarry orchestration daemon: a MongoDB-backed
// job engine with MinIO artifact storage and an HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/quarryhq/quarry"
	"github.com/quarryhq/quarry/api"
	"github.com/quarryhq/quarry/artifact/minio"
	"github.com/quarryhq/quarry/engine"
	"github.com/quarryhq/quarry/extract"
	"github.com/quarryhq/quarry/middleware"
	"github.com/quarryhq/quarry/store/mongo"
	"github.com/quarryhq/quarry/strategy"
	"github.com/quarryhq/quarry/transform"
)

func main() {
	configPath := flag.String("config", os.Getenv("QUARRY_CONFIG"), "path to YAML config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(*configPath, logger); err != nil {
		logger.Error("quarryd exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := quarry.LoadConfig(configPath)
	if err != nil {
		return err
	}

	ctx := context.Background()

	// Metrics: OTel instruments exported through the Prometheus registry
	// that /metrics serves.
	promExporter, err := otelprom.New()
	if err != nil {
		return err
	}
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(promExporter))
	otel.SetMeterProvider(meterProvider)
	defer meterProvider.Shutdown(ctx)

	// Job store.
	client, err := mongod.Connect(mongoopts.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return err
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(disconnectCtx); err != nil {
			logger.Warn("mongo disconnect failed", slog.String("error", err.Error()))
		}
	}()
	store := mongo.New(client.Database(cfg.MongoDatabase), mongo.WithLogger(logger))

	// Artifact store.
	minioClient, err := miniogo.New(cfg.MinioEndpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioSecure,
	})
	if err != nil {
		return err
	}
	artifacts := minio.New(minioClient)

	fetchCfg := extract.FetchConfig{
		UserAgent:  cfg.UserAgent,
		Timeout:    cfg.RequestTimeout.Std(),
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay.Std(),
		RateLimit:  cfg.RateLimit,
		RawBucket:  cfg.RawBucket,
	}
	registry := strategy.NewRegistry(
		extract.NewFetch(artifacts, fetchCfg),
		extract.NewBrowser(artifacts, extract.BrowserConfig{
			UserAgent: cfg.UserAgent,
			RawBucket: cfg.RawBucket,
		}),
		extract.NewAPI(artifacts, fetchCfg),
		transform.NewText(artifacts, cfg.ProcessedBucket),
		transform.NewTabular(artifacts, cfg.ProcessedBucket),
		transform.NewImage(artifacts, cfg.ProcessedBucket),
	)

	eng := engine.New(store, artifacts, registry,
		engine.WithConcurrency(cfg.Concurrency),
		engine.WithPollInterval(cfg.PollInterval.Std()),
		engine.WithLogger(logger),
		engine.WithBuckets(cfg.RawBucket, cfg.ProcessedBucket),
		engine.WithMiddleware(
			middleware.Recover(logger),
			middleware.Logging(logger),
			middleware.Metrics(),
			middleware.Tracing(),
		),
	)

	startCtx, startCancel := context.WithTimeout(ctx, 30*time.Second)
	defer startCancel()
	if err := eng.Start(startCtx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewServer(eng, api.WithLogger(logger)).Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http api listening", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("http server failed", slog.String("error", err.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout.Std())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	if err := eng.Stop(shutdownCtx); err != nil {
		logger.Warn("engine shutdown incomplete", slog.String("error", err.Error()))
	}
	return nil
}
