package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	httpadapter "github.com/couchcryptid/storm-vision-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/storm-vision-service/internal/adapter/kafka"
	"github.com/couchcryptid/storm-vision-service/internal/adapter/mapbox"
	"github.com/couchcryptid/storm-vision-service/internal/adapter/openai"
	"github.com/couchcryptid/storm-vision-service/internal/adapter/openmeteo"
	"github.com/couchcryptid/storm-vision-service/internal/adapter/store"
	"github.com/couchcryptid/storm-vision-service/internal/config"
	"github.com/couchcryptid/storm-vision-service/internal/domain"
	"github.com/couchcryptid/storm-vision-service/internal/observability"
	"github.com/couchcryptid/storm-vision-service/internal/pipeline"
	"github.com/couchcryptid/storm-vision-service/internal/render"
	"github.com/couchcryptid/storm-vision-service/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fonts, err := render.LoadFonts()
	if err != nil {
		logger.Error("failed to load fonts", "error", err)
		os.Exit(1)
	}
	defer fonts.Close()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer closeStore()
	logger.Info("snapshot store ready", "backend", cfg.StoreBackend)

	svcCfg := pipeline.Config{
		Analyzer: openai.NewAnalyzer(openai.Config{
			APIKey:     cfg.OpenAIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.OpenAIModel,
			ImageModel: cfg.OpenAIImageModel,
			Timeout:    cfg.OpenAITimeout,
		}, metrics, logger),
		Store:             st,
		Conditions:        openmeteo.NewClient(cfg.OpenMeteoURL, cfg.ConditionsTimeout, logger),
		Fonts:             fonts,
		CardWidth:         cfg.CardWidth,
		MapStyle:          cfg.MapboxStyle,
		ConditionsTimeout: cfg.ConditionsTimeout,
	}

	// Geocoding and static maps are feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN.
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		geocoder, err := mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		if err != nil {
			logger.Error("failed to create geocoder", "error", err)
			os.Exit(1)
		}
		svcCfg.Geocoder = geocoder
		svcCfg.Maps = client
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout, "style", cfg.MapboxStyle)
	} else {
		logger.Info("mapbox disabled")
	}

	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, metrics, logger)
		svcCfg.Publisher = writer
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	svc := pipeline.New(svcCfg, logger, metrics)
	if err := svc.LoadLatest(ctx); err != nil {
		logger.Error("failed to restore latest analysis", "error", err)
	}

	var sched *scheduler.Scheduler
	if cfg.ConditionsRefresh != "" {
		sched, err = scheduler.New(cfg.ConditionsRefresh, svc, logger)
		if err != nil {
			logger.Error("failed to schedule conditions refresh", "error", err)
			os.Exit(1)
		}
		sched.Start()
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, cfg.MaxUploadBytes, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	svc.Wait()
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// openStore builds the configured snapshot store and a func that releases it.
func openStore(ctx context.Context, cfg *config.Config) (domain.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreFirestore:
		fs, err := store.NewFirestore(ctx, store.FirestoreConfig{
			ProjectID:   cfg.FirestoreProject,
			Collection:  cfg.FirestoreCollection,
			Credentials: cfg.FirestoreCredentials,
		})
		if err != nil {
			return nil, nil, err
		}
		return fs, func() { _ = fs.Close() }, nil
	case config.StoreMemory:
		return store.NewMemory(), func() {}, nil
	case config.StoreFile:
		f, err := store.NewFile(cfg.StoreDir)
		if err != nil {
			return nil, nil, err
		}
		return f, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
