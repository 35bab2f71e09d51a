package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/osamaloay/TicketsBooking-sub000/internal/dto"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/logger"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/middleware"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/telemetry"
)

// RouterConfig holds everything NewRouter wires together
type RouterConfig struct {
	Booking *BookingHandler
	Event   *EventHandler
	Health  *HealthHandler
	Auth    middleware.AuthConfig
	// Idempotency guards the write endpoints; nil disables it
	Idempotency gin.HandlerFunc
	Logger      *logger.Logger
}

// NewRouter builds the gin engine with the /api/v1 routes
func NewRouter(cfg *RouterConfig) (*gin.Engine, error) {
	if err := dto.RegisterValidators(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(telemetry.TracingMiddleware())
	router.Use(middleware.Logger(log))

	router.GET("/health", cfg.Health.Health)
	router.GET("/ready", cfg.Health.Ready)

	idem := cfg.Idempotency
	if idem == nil {
		idem = func(c *gin.Context) { c.Next() }
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.Auth))
	{
		bookings := v1.Group("/bookings")
		bookings.POST("", idem, cfg.Booking.CreateBooking)
		bookings.GET("", cfg.Booking.ListUserBookings)
		bookings.GET("/:id", cfg.Booking.GetBooking)
		bookings.DELETE("/:id", idem, cfg.Booking.CancelBooking)

		events := v1.Group("/events")
		events.POST("", middleware.RequireRole(middleware.RoleOrganizer, middleware.RoleAdmin), cfg.Event.CreateEvent)
		events.GET("/:id", cfg.Event.GetEvent)
		events.PATCH("/:id", idem, cfg.Event.UpdateEvent)
		events.DELETE("/:id", idem, cfg.Event.DeleteEvent)
		events.GET("/:id/settlement-failures", cfg.Event.ListSettlementFailures)
	}

	return router, nil
}
