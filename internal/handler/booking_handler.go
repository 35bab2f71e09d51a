package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/osamaloay/TicketsBooking-sub000/internal/dto"
	"github.com/osamaloay/TicketsBooking-sub000/internal/service"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// BookingHandler handles booking HTTP requests
type BookingHandler struct {
	bookingService service.BookingService
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookingService service.BookingService) *BookingHandler {
	return &BookingHandler{bookingService: bookingService}
}

// CreateBooking handles POST /bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.create")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	who, ok := actor(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		unauthorized(c)
		return
	}

	var req dto.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		invalidRequest(c, err)
		return
	}
	span.SetAttributes(
		attribute.String("user_id", who.UserID),
		attribute.String("event_id", req.EventID),
		attribute.Int("quantity", req.Quantity),
	)

	result, err := h.bookingService.CreateBooking(ctx, who.UserID, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("booking_id", result.ID))
	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusCreated, result)
}

// CancelBooking handles DELETE /bookings/:id
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.cancel")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	who, ok := actor(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		unauthorized(c)
		return
	}

	bookingID := c.Param("id")
	span.SetAttributes(attribute.String("booking_id", bookingID))

	result, err := h.bookingService.CancelBooking(ctx, bookingID, who.UserID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// GetBooking handles GET /bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	who, ok := actor(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		unauthorized(c)
		return
	}

	result, err := h.bookingService.GetBooking(ctx, c.Param("id"), who)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// ListUserBookings handles GET /bookings
func (h *BookingHandler) ListUserBookings(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.list")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	who, ok := actor(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		unauthorized(c)
		return
	}

	var q dto.PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		span.SetStatus(codes.Error, "invalid query")
		invalidRequest(c, err)
		return
	}

	result, err := h.bookingService.ListUserBookings(ctx, who.UserID, q.Page, q.PageSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}
