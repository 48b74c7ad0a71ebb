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

	"github.com/couchcryptid/dam-data-etl/internal/adapter/blob"
	"github.com/couchcryptid/dam-data-etl/internal/adapter/geocache"
	"github.com/couchcryptid/dam-data-etl/internal/adapter/google"
	httpadapter "github.com/couchcryptid/dam-data-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/dam-data-etl/internal/adapter/kafka"
	"github.com/couchcryptid/dam-data-etl/internal/adapter/mapbox"
	"github.com/couchcryptid/dam-data-etl/internal/adapter/source"
	"github.com/couchcryptid/dam-data-etl/internal/artifact"
	"github.com/couchcryptid/dam-data-etl/internal/config"
	"github.com/couchcryptid/dam-data-etl/internal/damlevels"
	"github.com/couchcryptid/dam-data-etl/internal/domain"
	"github.com/couchcryptid/dam-data-etl/internal/observability"
	"github.com/couchcryptid/dam-data-etl/internal/pipeline"
	"github.com/couchcryptid/dam-data-etl/internal/scheduler"
	"github.com/couchcryptid/dam-data-etl/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(observability.LogOptions{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Client handles are constructed once here and passed down.
	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Error("close error", "error", err)
			}
		}
	}()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = geocache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Warn("redis geocode cache unavailable, continuing without it", "addr", cfg.RedisAddr, "error", err)
			redisClient = nil
		} else {
			closers = append(closers, redisClient.Close)
			logger.Info("redis geocode cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.RedisTTL)
		}
	}

	geocoder := newGeocoder(cfg, redisClient, metrics, logger)

	var publisher pipeline.Publisher
	if cfg.BlobEndpoint != "" {
		blobCfg := blob.Config{
			Endpoint:      cfg.BlobEndpoint,
			AccessKey:     cfg.BlobAccessKey,
			SecretKey:     cfg.BlobSecretKey,
			Region:        cfg.BlobRegion,
			Bucket:        cfg.BlobBucket,
			Prefix:        cfg.BlobPrefix,
			Secure:        cfg.BlobSecure,
			PublicBaseURL: cfg.BlobPublicURL,
		}
		client, err := blob.NewClient(blobCfg)
		if err != nil {
			logger.Error("failed to create blob client", "error", err)
			return 1
		}
		p := blob.NewPublisher(client, blobCfg, metrics, logger)
		if err := p.EnsureBucket(ctx); err != nil {
			logger.Error("blob bucket unavailable", "error", err)
			return 1
		}
		publisher = p
		logger.Info("blob publishing enabled", "endpoint", cfg.BlobEndpoint, "bucket", cfg.BlobBucket)
	} else {
		logger.Info("blob publishing disabled")
	}

	var notifier pipeline.Notifier
	if len(cfg.KafkaBrokers) > 0 {
		n := kafkaadapter.NewNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, metrics, logger)
		closers = append(closers, n.Close)
		notifier = n
		logger.Info("artifact events enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	writer, err := artifact.NewWriter(cfg.OutputDir)
	if err != nil {
		logger.Error("failed to prepare output dir", "error", err)
		return 1
	}
	snapshots, err := store.NewFileStore(cfg.AlertsDir, clock, logger)
	if err != nil {
		logger.Error("failed to prepare alerts dir", "error", err)
		return 1
	}

	src := source.NewClient(source.Config{
		DamLevelsURL:      cfg.DamLevelsURL,
		UnplannedAlertURL: cfg.UnplannedAlertURL,
		PlannedAlertURL:   cfg.PlannedAlertURL,
		WeatherURL:        cfg.WeatherURL,
		Latitude:          cfg.WeatherLat,
		Longitude:         cfg.WeatherLon,
		WeatherStart:      cfg.WeatherStart,
		Timeout:           cfg.FetchTimeout,
	}, clock, metrics, logger)

	p := pipeline.New(pipeline.Options{
		Source:    src,
		Writer:    writer,
		Store:     snapshots,
		Merger:    domain.NewAlertMerger(geocoder, cfg.GeocodePacing, logger),
		Publisher: publisher,
		Notifier:  notifier,
		Entities:  damlevels.DefaultEntities,
		Pipelines: cfg.Pipelines,
		Clock:     clock,

		GeoJSONPath: cfg.GeoJSONPath,
	}, logger, metrics)

	if cfg.ScheduleCron == "" {
		if err := p.RunAll(ctx); err != nil {
			logger.Error("run completed with errors", "error", err)
			return 1
		}
		return 0
	}
	return serve(ctx, cfg, p, logger)
}

// serve runs the pipelines on a schedule behind the health server until a
// shutdown signal arrives.
func serve(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, logger *slog.Logger) int {
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	sched := scheduler.New(cfg.ScheduleCron, p.RunAll, logger)
	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		return 1
	}

	// Run once at startup so artifacts and readiness do not wait for the first tick.
	go func() {
		if err := p.RunAll(ctx); err != nil {
			logger.Error("startup run completed with errors", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	sched.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return 0
}

// newGeocoder builds the provider chain: memory LRU, then Redis when
// available, then a circuit breaker in front of the provider client.
func newGeocoder(cfg *config.Config, redisClient *redis.Client, metrics *observability.Metrics, logger *slog.Logger) domain.Geocoder {
	var provider domain.Geocoder
	switch cfg.GeocoderProvider {
	case config.GeocoderGoogle:
		provider = google.NewClient(cfg.GoogleMapsAPIKey, cfg.GeocodeTimeout, metrics, logger)
	case config.GeocoderMapbox:
		provider = mapbox.NewClient(cfg.MapboxToken, cfg.GeocodeTimeout, metrics, logger)
	default:
		metrics.GeocodeEnabled.Set(0)
		logger.Info("alert geocoding disabled")
		return nil
	}

	g := domain.Geocoder(geocache.NewBreakerGeocoder(provider, cfg.GeocoderProvider, 5, time.Minute, logger))
	if redisClient != nil {
		g = geocache.NewRedisGeocoder(g, redisClient, cfg.RedisTTL, metrics, logger)
	}
	g = geocache.NewCachedGeocoder(g, cfg.GeocodeCacheSize, metrics)

	metrics.GeocodeEnabled.Set(1)
	logger.Info("alert geocoding enabled",
		"provider", cfg.GeocoderProvider,
		"cache_size", cfg.GeocodeCacheSize,
		"pacing", cfg.GeocodePacing,
		"timeout", cfg.GeocodeTimeout,
	)
	return g
}
