package di

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/osamaloay/TicketsBooking-sub000/internal/gateway"
	"github.com/osamaloay/TicketsBooking-sub000/internal/handler"
	"github.com/osamaloay/TicketsBooking-sub000/internal/repository"
	"github.com/osamaloay/TicketsBooking-sub000/internal/service"
	"github.com/osamaloay/TicketsBooking-sub000/internal/worker"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/config"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/database"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/kafka"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/logger"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/middleware"
	pkgredis "github.com/osamaloay/TicketsBooking-sub000/pkg/redis"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/retry"
)

// Container holds all dependencies for the ticketing service
type Container struct {
	// Infrastructure
	DB       *database.PostgresDB
	Redis    *pkgredis.Client
	Producer *kafka.Producer

	Store   repository.Store
	Gateway gateway.PaymentGateway

	// Services
	SettlementService service.SettlementService
	EventService      service.EventService
	BookingService    service.BookingService

	// Handlers
	HealthHandler  *handler.HealthHandler
	BookingHandler *handler.BookingHandler
	EventHandler   *handler.EventHandler

	// Workers; OutboxWorker is nil when no producer is configured or the relay is disabled
	OutboxWorker     *worker.OutboxWorker
	RefundReconciler *worker.RefundReconciler

	Router *gin.Engine
}

// ContainerConfig contains configuration for building the container.
// DB, Redis and Producer are optional. A nil Store falls back to the
// Postgres store on DB, and to memory when DB is nil too.
type ContainerConfig struct {
	Config   *config.Config
	DB       *database.PostgresDB
	Redis    *pkgredis.Client
	Producer *kafka.Producer
	Store    repository.Store
	Gateway  gateway.PaymentGateway
	Logger   *logger.Logger
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) (*Container, error) {
	if cfg == nil || cfg.Config == nil {
		return nil, errors.New("container: config is required")
	}
	appCfg := cfg.Config
	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	c := &Container{
		DB:       cfg.DB,
		Redis:    cfg.Redis,
		Producer: cfg.Producer,
		Store:    cfg.Store,
		Gateway:  cfg.Gateway,
	}

	if c.Store == nil {
		if c.DB != nil {
			c.Store = repository.NewPostgresStore(c.DB.Pool())
		} else {
			c.Store = repository.NewMemoryStore()
		}
	}
	if c.Gateway == nil {
		gw, err := gateway.New(appCfg.Payment)
		if err != nil {
			return nil, err
		}
		c.Gateway = gw
	}

	refundRetry := retry.DefaultConfig()
	if appCfg.Settlement.RefundMaxRetries > 0 {
		refundRetry.MaxRetries = appCfg.Settlement.RefundMaxRetries
	}
	if appCfg.Settlement.RefundRetryInterval > 0 {
		refundRetry.InitialInterval = appCfg.Settlement.RefundRetryInterval
	}

	// Initialize services
	c.SettlementService = service.NewSettlementService(c.Store, c.Gateway, &service.SettlementServiceConfig{
		Concurrency: appCfg.Settlement.RefundConcurrency,
		Retry:       refundRetry,
		CallTimeout: appCfg.Payment.Timeout,
		Logger:      log,
	})
	c.EventService = service.NewEventService(c.Store, c.SettlementService, &service.EventServiceConfig{
		DefaultCurrency: appCfg.Booking.DefaultCurrency,
		DeleteMaxRounds: appCfg.Settlement.DeleteMaxRounds,
		Logger:          log,
	})
	c.BookingService = service.NewBookingService(c.Store, c.Gateway, &service.BookingServiceConfig{
		MaxTicketsPerBooking: appCfg.Booking.MaxTicketsPerBooking,
		DefaultCurrency:      appCfg.Booking.DefaultCurrency,
		PaymentTimeout:       appCfg.Payment.Timeout,
		RefundRetry:          refundRetry,
		Logger:               log,
	})

	// Initialize handlers
	c.HealthHandler = handler.NewHealthHandler(c.healthChecks())
	c.BookingHandler = handler.NewBookingHandler(c.BookingService)
	c.EventHandler = handler.NewEventHandler(c.EventService)

	// Initialize workers
	if c.Producer != nil && appCfg.Outbox.Enabled {
		c.OutboxWorker = worker.NewOutboxWorker(
			c.Store,
			c.Producer,
			retry.NewKafkaDLQPublisher(c.Producer, appCfg.App.Name),
			&worker.OutboxWorkerConfig{
				PollInterval: appCfg.Outbox.PollInterval,
				BatchSize:    appCfg.Outbox.BatchSize,
				Topic:        appCfg.Outbox.Topic,
			},
		)
	}
	c.RefundReconciler = worker.NewRefundReconciler(c.Store, c.Gateway, &worker.RefundReconcilerConfig{
		BatchSize:   appCfg.Reconciler.BatchSize,
		MinAge:      appCfg.Reconciler.MinAge,
		MaxAttempts: appCfg.Reconciler.MaxAttempts,
		Timeout:     appCfg.Payment.Timeout,
	})

	var idem gin.HandlerFunc
	if c.Redis != nil {
		idem = middleware.Idempotency(middleware.IdempotencyConfig{Redis: c.Redis})
	}

	router, err := handler.NewRouter(&handler.RouterConfig{
		Booking: c.BookingHandler,
		Event:   c.EventHandler,
		Health:  c.HealthHandler,
		Auth: middleware.AuthConfig{
			JWTSecret:           appCfg.JWT.Secret,
			Issuer:              appCfg.JWT.Issuer,
			TrustGatewayHeaders: appCfg.Auth.TrustGatewayHeaders,
		},
		Idempotency: idem,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}
	c.Router = router

	return c, nil
}

func (c *Container) healthChecks() map[string]handler.HealthChecker {
	checks := map[string]handler.HealthChecker{
		"store": c.Store.Ping,
		"redis": nil,
		"kafka": nil,
	}
	if c.DB != nil {
		checks["database"] = c.DB.HealthCheck
	}
	if c.Redis != nil {
		checks["redis"] = c.Redis.HealthCheck
	}
	if c.Producer != nil {
		checks["kafka"] = c.Producer.Ping
	}
	return checks
}

// Close releases the infrastructure the container was given
func (c *Container) Close() {
	if c.OutboxWorker != nil {
		c.OutboxWorker.Stop()
	}
	if c.Producer != nil {
		c.Producer.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.DB != nil {
		c.DB.Close()
	}
}
