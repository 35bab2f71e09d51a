package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/osamaloay/TicketsBooking-sub000/internal/domain"
	"github.com/osamaloay/TicketsBooking-sub000/internal/dto"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/middleware"
)

// handleError maps domain errors to HTTP status codes and error codes
func handleError(c *gin.Context, err error) {
	_ = c.Error(err)

	var (
		validation *domain.ValidationError
		settlement *domain.SettlementError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   err.Error(),
			Code:    "VALIDATION_ERROR",
			Details: gin.H{"field": validation.Field},
		})
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "VALIDATION_ERROR",
		})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "FORBIDDEN",
		})
	case errors.Is(err, domain.ErrEventNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "EVENT_NOT_FOUND",
		})
	case errors.Is(err, domain.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "BOOKING_NOT_FOUND",
		})
	case errors.Is(err, domain.ErrPaymentFailed):
		c.JSON(http.StatusPaymentRequired, dto.ErrorResponse{
			Error:   domain.ErrPaymentFailed.Error(),
			Code:    "PAYMENT_FAILED",
			Message: "The payment could not be captured. No tickets were reserved.",
		})
	case errors.Is(err, domain.ErrInsufficientInventory):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "INSUFFICIENT_INVENTORY",
		})
	case errors.Is(err, domain.ErrEventNotBookable):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "EVENT_NOT_BOOKABLE",
		})
	case errors.Is(err, domain.ErrAlreadyCanceled):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "ALREADY_CANCELED",
		})
	case errors.Is(err, domain.ErrInvalidTransition):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_TRANSITION",
		})
	case errors.As(err, &settlement):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error:   domain.ErrRefundFailed.Error(),
			Code:    "REFUND_FAILED",
			Message: err.Error(),
			Details: dto.FromSettlement(settlement.Result),
		})
	case errors.Is(err, domain.ErrRefundFailed):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error:   domain.ErrRefundFailed.Error(),
			Code:    "REFUND_FAILED",
			Message: "The refund did not go through. The booking is unchanged.",
		})
	case errors.Is(err, domain.ErrConflict):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "CONFLICT",
		})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error: "internal server error",
			Code:  "INTERNAL_ERROR",
		})
	}
}

func invalidRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{
		Error:   "invalid request",
		Code:    "INVALID_REQUEST",
		Message: err.Error(),
	})
}

func unauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
		Error: "unauthorized",
		Code:  "UNAUTHORIZED",
	})
}

// actor reads the authenticated identity set by middleware.Auth
func actor(c *gin.Context) (domain.Actor, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return domain.Actor{}, false
	}
	return domain.Actor{UserID: userID, Role: domain.Role(middleware.GetRole(c))}, true
}
