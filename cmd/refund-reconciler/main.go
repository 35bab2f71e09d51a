package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/osamaloay/TicketsBooking-sub000/internal/gateway"
	"github.com/osamaloay/TicketsBooking-sub000/internal/metrics"
	"github.com/osamaloay/TicketsBooking-sub000/internal/repository"
	"github.com/osamaloay/TicketsBooking-sub000/internal/worker"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/config"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/database"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/logger"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/telemetry"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(&logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: "refund-reconciler",
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting refund reconciler...", zap.Duration("interval", cfg.Reconciler.Interval))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    "refund-reconciler",
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warn("Telemetry disabled", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		_ = telemetry.Shutdown(shutdownCtx)
	}()
	if err := metrics.Init(); err != nil {
		appLog.Warn("Metrics disabled", zap.Error(err))
	}

	db, err := database.NewPostgres(ctx, database.FromConfig(cfg.Database, cfg.OTel.Enabled))
	if err != nil {
		appLog.Fatal("Database connection failed", zap.Error(err))
	}
	defer db.Close()

	gw, err := gateway.New(cfg.Payment)
	if err != nil {
		appLog.Fatal("Failed to build payment gateway", zap.Error(err))
	}

	reconciler := worker.NewRefundReconciler(repository.NewPostgresStore(db.Pool()), gw, &worker.RefundReconcilerConfig{
		BatchSize:   cfg.Reconciler.BatchSize,
		MinAge:      cfg.Reconciler.MinAge,
		MaxAttempts: cfg.Reconciler.MaxAttempts,
		Timeout:     cfg.Payment.Timeout,
	})

	interval := cfg.Reconciler.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		appLog.Fatal("Failed to create scheduler", zap.Error(err))
	}
	job, err := sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := reconciler.Run(ctx); err != nil {
				appLog.Error("Refund reconciliation failed", zap.Error(err))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		appLog.Fatal("Failed to schedule reconciler", zap.Error(err))
	}
	appLog.Info("Reconciler scheduled", zap.String("job_id", job.ID().String()))
	sched.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down refund reconciler...")

	cancel()
	if err := sched.Shutdown(); err != nil {
		appLog.Error("Scheduler shutdown failed", zap.Error(err))
	}
	appLog.Info("Refund reconciler stopped")
}
