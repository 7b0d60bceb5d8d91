package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"room-status-backend/config"
	"room-status-backend/internal/api"
	"room-status-backend/internal/db"
	"room-status-backend/internal/events"
	"room-status-backend/internal/lifecycle"
	"room-status-backend/internal/logging"
	"room-status-backend/internal/metrics"
	"room-status-backend/internal/mw"
	"room-status-backend/internal/notification"
	"room-status-backend/internal/policy"
	"room-status-backend/internal/sensor"
	"room-status-backend/internal/shift"
	"room-status-backend/internal/signing"
	"room-status-backend/internal/store"
	"room-status-backend/internal/sweeper"
	"room-status-backend/internal/telemetry"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", configPath, err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "roomd")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger.Info("configuration loaded", zap.String("path", configPath))

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Shift files decide which database we record into
	var archiver shift.Archiver
	if cfg.Shift.Archive.Bucket != "" {
		s3Archiver, err := shift.NewS3Archiver(ctx, cfg.Shift.Archive)
		if err != nil {
			logger.Fatal("failed to configure shift archive", zap.Error(err))
		}
		archiver = s3Archiver
	}
	shifts, err := shift.NewService(cfg.Shift, archiver, logger.Named("shift"))
	if err != nil {
		logger.Fatal("failed to initialize shifts", zap.Error(err))
	}
	cfg.Database.DSN = shifts.ResolveDSN(cfg.Database.DSN)

	// Initialize database
	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	appStore := store.NewGormStore(gormDB)

	// Telemetry
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	tm := telemetry.New(registry)
	if rooms, err := appStore.ListRooms(ctx); err != nil {
		logger.Warn("failed to seed room gauges", zap.Error(err))
	} else {
		tm.SetRooms(rooms)
	}

	responseCache := mw.NewResponseCache(cfg.Server.CacheTTL())
	engine := lifecycle.NewEngine(appStore, policy.Default(), logger.Named("lifecycle"),
		lifecycle.WithObserver(tm),
		lifecycle.WithObserver(lifecycle.ObserverFunc(func(context.Context, lifecycle.Change) error {
			responseCache.Flush()
			return nil
		})),
	)

	// Status-change stream
	if cfg.Redis.Addr != "" {
		client, err := events.NewClient(ctx, cfg.Redis)
		if err != nil {
			logger.Error("redis unavailable, status stream disabled", zap.Error(err))
		} else {
			defer client.Close()
			engine.Subscribe(events.NewPublisher(client, cfg.Redis.Stream))
			logger.Info("publishing status changes", zap.String("stream", cfg.Redis.Stream))
		}
	}

	// Push notifications
	var webpushOptions *webpush.Options
	var dispatcher sweeper.Dispatcher
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions, logger.Named("push"))
		pool.Start(ctx)
		engine.Subscribe(pool)
		dispatcher = pool
	} else {
		logger.Warn("VAPID keys not configured, push notifications disabled")
	}

	// Metrics and the stuck-room sweeper
	metricsEngine := metrics.NewEngine(appStore, metrics.WithStuckThreshold(cfg.Metrics.StuckThreshold))
	sw := sweeper.New(metricsEngine, cfg.Metrics.StuckThreshold, cfg.Metrics.SweepInterval, dispatcher, tm, logger.Named("sweeper"))
	go sw.Run(ctx)

	// Sensor ingestion
	applier := sensor.NewApplier(engine, logger.Named("sensor"))
	poller := sensor.NewPoller(cfg.Sensor.Poller, applier, logger.Named("poller"))
	go poller.Run(ctx)

	if cfg.Sensor.MQTT.Enabled {
		listener := sensor.NewListener(cfg.Sensor.MQTT, applier, logger.Named("mqtt"))
		if err := listener.Start(ctx); err != nil {
			logger.Error("failed to start mqtt listener", zap.Error(err))
		} else {
			defer listener.Stop()
		}
	}

	// QR front door
	var signer *signing.Signer
	if cfg.Signing.Secret != "" {
		if signer, err = signing.NewSigner(cfg.Signing.Secret); err != nil {
			logger.Fatal("invalid signing secret", zap.Error(err))
		}
	} else {
		logger.Warn("signing secret not configured, QR form disabled")
	}

	// Initialize router
	handler := api.NewHandler(api.Deps{
		Engine:        engine,
		Metrics:       metricsEngine,
		Subscriptions: appStore,
		History:       appStore,
		Signer:        signer,
		Webpush:       webpushOptions,
		Logger:        logger.Named("api"),
	})
	router := api.NewRouter(handler, cfg.Server, responseCache, registry)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port), zap.String("dsn", cfg.Database.DSN))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server ListenAndServe", zap.Error(err))
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Info("shutdown signal received, stopping services")
	cancel()

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server Shutdown", zap.Error(err))
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		sqlDB.Close()
	}

	logger.Info("server gracefully stopped")
}
