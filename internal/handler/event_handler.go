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

// EventHandler handles event lifecycle HTTP requests
type EventHandler struct {
	eventService service.EventService
}

// NewEventHandler creates a new event handler
func NewEventHandler(eventService service.EventService) *EventHandler {
	return &EventHandler{eventService: eventService}
}

// CreateEvent handles POST /events
func (h *EventHandler) CreateEvent(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.create")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	who, ok := actor(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		unauthorized(c)
		return
	}

	var req dto.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		invalidRequest(c, err)
		return
	}

	result, err := h.eventService.CreateEvent(ctx, who, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("event_id", result.ID))
	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusCreated, result)
}

// GetEvent handles GET /events/:id
func (h *EventHandler) GetEvent(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	result, err := h.eventService.GetEvent(ctx, c.Param("id"))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// UpdateEvent handles PATCH /events/:id.
// A committed transition whose refunds partly failed answers 502 with the outcomes.
func (h *EventHandler) UpdateEvent(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.update")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	who, ok := actor(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		unauthorized(c)
		return
	}

	eventID := c.Param("id")
	span.SetAttributes(attribute.String("event_id", eventID))

	var req dto.UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		invalidRequest(c, err)
		return
	}

	result, err := h.eventService.UpdateEvent(ctx, eventID, who, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	if result.Settlement != nil && result.Settlement.Failed > 0 {
		span.SetStatus(codes.Error, "partial settlement")
		c.JSON(http.StatusBadGateway, dto.ErrorResponse{
			Error:   "some refunds failed",
			Code:    "PARTIAL_SETTLEMENT",
			Message: "The status change was applied. Failed refunds are retried in the background.",
			Details: result,
		})
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// DeleteEvent handles DELETE /events/:id
func (h *EventHandler) DeleteEvent(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.delete")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	who, ok := actor(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		unauthorized(c)
		return
	}

	eventID := c.Param("id")
	span.SetAttributes(attribute.String("event_id", eventID))

	result, err := h.eventService.DeleteEvent(ctx, eventID, who)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// ListSettlementFailures handles GET /events/:id/settlement-failures
func (h *EventHandler) ListSettlementFailures(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.settlement_failures")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	who, ok := actor(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		unauthorized(c)
		return
	}

	result, err := h.eventService.ListSettlementFailures(ctx, c.Param("id"), who)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, gin.H{"data": result})
}
