package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stockroom/backend/internal/application/access"
	"github.com/stockroom/backend/internal/application/inventory"
	"github.com/stockroom/backend/internal/application/transfer"
	"github.com/stockroom/backend/internal/infrastructure/auth"
	"github.com/stockroom/backend/internal/infrastructure/config"
	"github.com/stockroom/backend/internal/infrastructure/journal"
	"github.com/stockroom/backend/internal/infrastructure/logger"
	"github.com/stockroom/backend/internal/infrastructure/persistence/tenant"
	"github.com/stockroom/backend/internal/infrastructure/telemetry"
	"github.com/stockroom/backend/internal/interfaces/http/handler"
	"github.com/stockroom/backend/internal/interfaces/http/middleware"
	"github.com/stockroom/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx := context.Background()
	telemetryCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		LogsEnabled:       cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
		ExportInterval:    cfg.Telemetry.ExportInterval,
	}

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	log = loggerProvider.Bridge(log, cfg.Telemetry.ServiceName, logger.ParseLevel(cfg.Log.Level))

	log.Info("Starting inventory service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("default_tenant", cfg.Tenancy.DefaultTenant),
	)

	metrics, err := telemetry.NewInventoryMetrics(meterProvider.Meter("inventory"))
	if err != nil {
		log.Fatal("Failed to create inventory metrics", zap.Error(err))
	}

	// Tenant partitions are opened lazily on first request
	dialer := tenant.NewGormDialer(cfg.Database, cfg.Registry,
		tenant.WithGormLogger(logger.NewGormLogger(log, logger.GormLevel(cfg.Log.Level))),
		tenant.WithTracing(cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled),
		tenant.WithDialLogger(log),
	)
	registry := tenant.NewRegistry(dialer, cfg.Registry, log, tenant.WithMetrics(metrics))
	resolver := access.NewResolver(registry, cfg.Tenancy.DefaultTenant)

	reconciliation, err := journal.NewFactory(cfg.Journal, cfg.Redis, journal.WithLogger(log)).Create()
	if err != nil {
		log.Fatal("Failed to create reconciliation journal", zap.Error(err))
	}

	ledger := inventory.NewLedgerService(cfg.Ledger, inventory.WithMetrics(metrics))
	orchestrator := transfer.NewOrchestrator(ledger, reconciliation, transfer.WithMetrics(metrics))
	jwtService := auth.NewJWTService(cfg.JWT)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.Tracing(cfg.Telemetry.ServiceName, cfg.Telemetry.Enabled))
	engine.Use(logger.GinMiddleware(log))

	engine.GET("/health", handler.NewSystemHandler(registry, cfg.App.Name).Health)

	router.NewRouter(engine,
		router.WithAPIVersion("v1"),
		router.WithAPIMiddleware(
			middleware.JWTAuth(jwtService),
			middleware.TenantPartition(resolver),
		),
	).
		Register(handler.NewInventoryHandler(ledger)).
		Register(handler.NewTransferHandler(orchestrator, resolver)).
		Setup()

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := registry.ShutdownAll(shutdownCtx); err != nil {
		log.Error("Error closing tenant partitions", zap.Error(err))
	}
	if err := reconciliation.Close(); err != nil {
		log.Error("Error closing reconciliation journal", zap.Error(err))
	}
	_ = meterProvider.Shutdown(shutdownCtx)
	_ = tracerProvider.Shutdown(shutdownCtx)
	_ = loggerProvider.Shutdown(shutdownCtx)

	log.Info("Server exited gracefully")
}
