package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/osamaloay/TicketsBooking-sub000/internal/di"
	"github.com/osamaloay/TicketsBooking-sub000/internal/metrics"
	"github.com/osamaloay/TicketsBooking-sub000/internal/repository"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/config"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/database"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/kafka"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/logger"
	pkgredis "github.com/osamaloay/TicketsBooking-sub000/pkg/redis"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/telemetry"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	if err := logger.Init(&logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: cfg.App.Name,
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting ticketing service...", zap.String("environment", cfg.App.Environment))

	ctx := context.Background()

	// Initialize tracing and metrics
	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warn("Telemetry disabled", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()
	if err := metrics.Init(); err != nil {
		appLog.Warn("Metrics disabled", zap.Error(err))
	}

	// Initialize database connection
	db, err := database.NewPostgres(ctx, database.FromConfig(cfg.Database, cfg.OTel.Enabled))
	if err != nil {
		appLog.Fatal("Database connection failed", zap.Error(err))
	}
	appLog.Info("Database connected", zap.String("host", cfg.Database.Host), zap.String("database", cfg.Database.DBName))

	if cfg.Database.AutoMigrate {
		if err := repository.Migrate(ctx, db.Pool()); err != nil {
			appLog.Fatal("Database migration failed", zap.Error(err))
		}
		appLog.Info("Database schema up to date")
	}

	// Initialize Redis for idempotency keys. The service still runs without it.
	redisClient, err := pkgredis.NewClient(ctx, pkgredis.FromConfig(cfg.Redis))
	if err != nil {
		appLog.Warn("Redis connection failed, idempotency keys disabled", zap.Error(err))
		redisClient = nil
	}

	// Initialize Kafka producer for the outbox relay
	var producer *kafka.Producer
	if cfg.Outbox.Enabled {
		producer, err = kafka.NewProducer(ctx, &kafka.ProducerConfig{
			Brokers:        cfg.Kafka.Brokers,
			ClientID:       cfg.Kafka.ClientID,
			MaxRetries:     3,
			RetryInterval:  2 * time.Second,
			ProduceTimeout: 10 * time.Second,
		})
		if err != nil {
			appLog.Warn("Kafka connection failed, outbox rows stay pending", zap.Error(err))
			producer = nil
		}
	}

	// Build dependency injection container
	container, err := di.NewContainer(&di.ContainerConfig{
		Config:   cfg,
		DB:       db,
		Redis:    redisClient,
		Producer: producer,
		Logger:   appLog,
	})
	if err != nil {
		appLog.Fatal("Failed to build container", zap.Error(err))
	}
	defer container.Close()

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	if container.OutboxWorker != nil {
		if err := container.OutboxWorker.Start(workerCtx); err != nil {
			appLog.Fatal("Failed to start outbox worker", zap.Error(err))
		}
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           container.Router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	// Start server in goroutine
	go func() {
		appLog.Info(fmt.Sprintf("Ticketing service listening on %s", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("Server forced to shutdown", zap.Error(err))
	}

	appLog.Info("Server exited gracefully")
}
