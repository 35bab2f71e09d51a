package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/osamaloay/TicketsBooking-sub000/internal/domain"
	"github.com/osamaloay/TicketsBooking-sub000/internal/dto"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockBookingService is a mock implementation of BookingService for testing
type MockBookingService struct {
	CreateBookingFunc    func(ctx context.Context, userID string, req *dto.CreateBookingRequest) (*dto.BookingResponse, error)
	CancelBookingFunc    func(ctx context.Context, bookingID, userID string) (*dto.CancelBookingResponse, error)
	GetBookingFunc       func(ctx context.Context, bookingID string, requester domain.Actor) (*dto.BookingResponse, error)
	ListUserBookingsFunc func(ctx context.Context, userID string, page, pageSize int) (*dto.PaginatedResponse, error)
}

func (m *MockBookingService) CreateBooking(ctx context.Context, userID string, req *dto.CreateBookingRequest) (*dto.BookingResponse, error) {
	if m.CreateBookingFunc != nil {
		return m.CreateBookingFunc(ctx, userID, req)
	}
	return nil, nil
}

func (m *MockBookingService) CancelBooking(ctx context.Context, bookingID, userID string) (*dto.CancelBookingResponse, error) {
	if m.CancelBookingFunc != nil {
		return m.CancelBookingFunc(ctx, bookingID, userID)
	}
	return nil, nil
}

func (m *MockBookingService) GetBooking(ctx context.Context, bookingID string, requester domain.Actor) (*dto.BookingResponse, error) {
	if m.GetBookingFunc != nil {
		return m.GetBookingFunc(ctx, bookingID, requester)
	}
	return nil, nil
}

func (m *MockBookingService) ListUserBookings(ctx context.Context, userID string, page, pageSize int) (*dto.PaginatedResponse, error) {
	if m.ListUserBookingsFunc != nil {
		return m.ListUserBookingsFunc(ctx, userID, page, pageSize)
	}
	return &dto.PaginatedResponse{Page: page, PageSize: pageSize}, nil
}

// MockEventService is a mock implementation of EventService for testing
type MockEventService struct {
	CreateEventFunc            func(ctx context.Context, actor domain.Actor, req *dto.CreateEventRequest) (*dto.EventResponse, error)
	GetEventFunc               func(ctx context.Context, eventID string) (*dto.EventResponse, error)
	UpdateEventFunc            func(ctx context.Context, eventID string, actor domain.Actor, req *dto.UpdateEventRequest) (*dto.UpdateEventResponse, error)
	DeleteEventFunc            func(ctx context.Context, eventID string, actor domain.Actor) (*dto.DeleteEventResponse, error)
	ListSettlementFailuresFunc func(ctx context.Context, eventID string, actor domain.Actor) ([]*dto.RefundResponse, error)
}

func (m *MockEventService) CreateEvent(ctx context.Context, actor domain.Actor, req *dto.CreateEventRequest) (*dto.EventResponse, error) {
	if m.CreateEventFunc != nil {
		return m.CreateEventFunc(ctx, actor, req)
	}
	return &dto.EventResponse{ID: "event-1"}, nil
}

func (m *MockEventService) GetEvent(ctx context.Context, eventID string) (*dto.EventResponse, error) {
	if m.GetEventFunc != nil {
		return m.GetEventFunc(ctx, eventID)
	}
	return &dto.EventResponse{ID: eventID}, nil
}

func (m *MockEventService) UpdateEvent(ctx context.Context, eventID string, actor domain.Actor, req *dto.UpdateEventRequest) (*dto.UpdateEventResponse, error) {
	if m.UpdateEventFunc != nil {
		return m.UpdateEventFunc(ctx, eventID, actor, req)
	}
	return &dto.UpdateEventResponse{Event: &dto.EventResponse{ID: eventID}}, nil
}

func (m *MockEventService) DeleteEvent(ctx context.Context, eventID string, actor domain.Actor) (*dto.DeleteEventResponse, error) {
	if m.DeleteEventFunc != nil {
		return m.DeleteEventFunc(ctx, eventID, actor)
	}
	return &dto.DeleteEventResponse{EventID: eventID, Deleted: true}, nil
}

func (m *MockEventService) ListSettlementFailures(ctx context.Context, eventID string, actor domain.Actor) ([]*dto.RefundResponse, error) {
	if m.ListSettlementFailuresFunc != nil {
		return m.ListSettlementFailuresFunc(ctx, eventID, actor)
	}
	return []*dto.RefundResponse{}, nil
}

func setupTestRouter(t *testing.T, bookings *MockBookingService, events *MockEventService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router, err := NewRouter(&RouterConfig{
		Booking: NewBookingHandler(bookings),
		Event:   NewEventHandler(events),
		Health:  NewHealthHandler(nil),
		Auth:    middleware.AuthConfig{TrustGatewayHeaders: true},
	})
	require.NoError(t, err)
	return router
}

func doRequest(router *gin.Engine, method, path, userID, role string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(middleware.UserIDHeader, userID)
		req.Header.Set(middleware.UserRoleHeader, role)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestBookingHandler_CreateBooking(t *testing.T) {
	tests := []struct {
		name           string
		userID         string
		body           any
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "created",
			userID:         "user-1",
			body:           dto.CreateBookingRequest{EventID: "event-1", Quantity: 2, PaymentMethod: "pm_card_visa"},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "unauthenticated",
			body:           dto.CreateBookingRequest{EventID: "event-1", Quantity: 2},
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "UNAUTHORIZED",
		},
		{
			name:           "missing event id",
			userID:         "user-1",
			body:           map[string]any{"quantity": 2},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_REQUEST",
		},
		{
			name:           "quantity over limit",
			userID:         "user-1",
			body:           dto.CreateBookingRequest{EventID: "event-1", Quantity: 50, PaymentMethod: "pm"},
			err:            domain.ErrInvalidQuantity,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION_ERROR",
		},
		{
			name:           "sold out",
			userID:         "user-1",
			body:           dto.CreateBookingRequest{EventID: "event-1", Quantity: 7, PaymentMethod: "pm"},
			err:            domain.ErrInsufficientInventory,
			expectedStatus: http.StatusConflict,
			expectedCode:   "INSUFFICIENT_INVENTORY",
		},
		{
			name:           "declined card",
			userID:         "user-1",
			body:           dto.CreateBookingRequest{EventID: "event-1", Quantity: 1, PaymentMethod: "pm"},
			err:            fmt.Errorf("%w: card_declined", domain.ErrPaymentFailed),
			expectedStatus: http.StatusPaymentRequired,
			expectedCode:   "PAYMENT_FAILED",
		},
		{
			name:           "unknown event",
			userID:         "user-1",
			body:           dto.CreateBookingRequest{EventID: "event-x", Quantity: 1, PaymentMethod: "pm"},
			err:            domain.ErrEventNotFound,
			expectedStatus: http.StatusNotFound,
			expectedCode:   "EVENT_NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bookings := &MockBookingService{
				CreateBookingFunc: func(ctx context.Context, userID string, req *dto.CreateBookingRequest) (*dto.BookingResponse, error) {
					if tt.err != nil {
						return nil, tt.err
					}
					return &dto.BookingResponse{ID: "booking-1", UserID: userID, Status: "confirmed"}, nil
				},
			}
			router := setupTestRouter(t, bookings, &MockEventService{})

			w := doRequest(router, http.MethodPost, "/api/v1/bookings", tt.userID, "standard", tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, decodeError(t, w).Code)
			}
		})
	}
}

func TestBookingHandler_CancelBooking(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{name: "canceled", expectedStatus: http.StatusOK},
		{name: "not owner", err: domain.ErrForbidden, expectedStatus: http.StatusForbidden, expectedCode: "FORBIDDEN"},
		{name: "missing", err: domain.ErrBookingNotFound, expectedStatus: http.StatusNotFound, expectedCode: "BOOKING_NOT_FOUND"},
		{name: "twice", err: domain.ErrAlreadyCanceled, expectedStatus: http.StatusConflict, expectedCode: "ALREADY_CANCELED"},
		{
			name:           "refund failed",
			err:            fmt.Errorf("%w: gateway timeout", domain.ErrRefundFailed),
			expectedStatus: http.StatusConflict,
			expectedCode:   "REFUND_FAILED",
		},
		{name: "unexpected", err: errors.New("boom"), expectedStatus: http.StatusInternalServerError, expectedCode: "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bookings := &MockBookingService{
				CancelBookingFunc: func(ctx context.Context, bookingID, userID string) (*dto.CancelBookingResponse, error) {
					if tt.err != nil {
						return nil, tt.err
					}
					return &dto.CancelBookingResponse{BookingID: bookingID, Status: "canceled", Refunded: true}, nil
				},
			}
			router := setupTestRouter(t, bookings, &MockEventService{})

			w := doRequest(router, http.MethodDelete, "/api/v1/bookings/booking-1", "user-1", "standard", nil)
			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, decodeError(t, w).Code)
			}
		})
	}
}

func TestBookingHandler_GetAndList(t *testing.T) {
	var gotActor domain.Actor
	var gotPage, gotSize int
	bookings := &MockBookingService{
		GetBookingFunc: func(ctx context.Context, bookingID string, requester domain.Actor) (*dto.BookingResponse, error) {
			gotActor = requester
			return &dto.BookingResponse{ID: bookingID}, nil
		},
		ListUserBookingsFunc: func(ctx context.Context, userID string, page, pageSize int) (*dto.PaginatedResponse, error) {
			gotPage, gotSize = page, pageSize
			return &dto.PaginatedResponse{Data: []*dto.BookingResponse{}, Page: page, PageSize: pageSize}, nil
		},
	}
	router := setupTestRouter(t, bookings, &MockEventService{})

	w := doRequest(router, http.MethodGet, "/api/v1/bookings/booking-1", "admin-1", "admin", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.Actor{UserID: "admin-1", Role: domain.RoleAdmin}, gotActor)

	w = doRequest(router, http.MethodGet, "/api/v1/bookings?page=2&page_size=5", "user-1", "standard", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, gotPage)
	assert.Equal(t, 5, gotSize)

	w = doRequest(router, http.MethodGet, "/api/v1/bookings", "user-1", "standard", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, gotPage)
	assert.Equal(t, 20, gotSize)

	w = doRequest(router, http.MethodGet, "/api/v1/bookings?page_size=500", "user-1", "standard", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventHandler_CreateEventRequiresRole(t *testing.T) {
	router := setupTestRouter(t, &MockBookingService{}, &MockEventService{})
	body := map[string]any{
		"title":          "Concert",
		"location":       "Hall",
		"starts_at":      "2027-01-01T20:00:00Z",
		"total_tickets":  10,
		"ticket_pricing": 20,
	}

	w := doRequest(router, http.MethodPost, "/api/v1/events", "user-1", "standard", body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(router, http.MethodPost, "/api/v1/events", "org-1", "organizer", body)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestEventHandler_UpdateEvent(t *testing.T) {
	failed := domain.NewBookingOutcome(&domain.Booking{ID: "b2", PaymentReference: "p2", TotalPrice: 40})
	failed.Fail(errors.New("gateway down"), 3)

	tests := []struct {
		name           string
		body           string
		resp           *dto.UpdateEventResponse
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "status change",
			body:           `{"status":"approved"}`,
			resp:           &dto.UpdateEventResponse{Event: &dto.EventResponse{ID: "event-1"}, Effect: "none"},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unknown status",
			body:           `{"status":"archived"}`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_REQUEST",
		},
		{
			name: "partial settlement",
			body: `{"status":"declined"}`,
			resp: &dto.UpdateEventResponse{
				Event:  &dto.EventResponse{ID: "event-1"},
				Effect: "settle",
				Settlement: dto.FromSettlement(&domain.SettlementResult{
					Outcomes:        []domain.BookingOutcome{failed},
					RestoredTickets: 2,
				}),
			},
			expectedStatus: http.StatusBadGateway,
			expectedCode:   "PARTIAL_SETTLEMENT",
		},
		{
			name:           "invalid transition",
			body:           `{"status":"pending","title":""}`,
			err:            fmt.Errorf("%w: title is required", domain.ErrInvalidTransition),
			expectedStatus: http.StatusConflict,
			expectedCode:   "INVALID_TRANSITION",
		},
		{
			name:           "not organizer",
			body:           `{"status":"approved"}`,
			err:            domain.ErrForbidden,
			expectedStatus: http.StatusForbidden,
			expectedCode:   "FORBIDDEN",
		},
		{
			name:           "shrink below sold",
			body:           `{"total_tickets":1}`,
			err:            domain.NewValidationError("total_tickets", "cannot be lower than tickets already sold"),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &MockEventService{
				UpdateEventFunc: func(ctx context.Context, eventID string, actor domain.Actor, req *dto.UpdateEventRequest) (*dto.UpdateEventResponse, error) {
					return tt.resp, tt.err
				},
			}
			router := setupTestRouter(t, &MockBookingService{}, events)

			req := httptest.NewRequest(http.MethodPatch, "/api/v1/events/event-1", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(middleware.UserIDHeader, "organizer-1")
			req.Header.Set(middleware.UserRoleHeader, "organizer")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, decodeError(t, w).Code)
			}
		})
	}
}

func TestEventHandler_DeleteEvent(t *testing.T) {
	refundErr := &domain.SettlementError{
		Err:    domain.ErrRefundFailed,
		Result: &domain.SettlementResult{Outcomes: []domain.BookingOutcome{}},
	}
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{name: "deleted", expectedStatus: http.StatusOK},
		{name: "refund failed", err: refundErr, expectedStatus: http.StatusConflict, expectedCode: "REFUND_FAILED"},
		{name: "bookings keep arriving", err: domain.ErrConflict, expectedStatus: http.StatusConflict, expectedCode: "CONFLICT"},
		{name: "missing", err: domain.ErrEventNotFound, expectedStatus: http.StatusNotFound, expectedCode: "EVENT_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &MockEventService{
				DeleteEventFunc: func(ctx context.Context, eventID string, actor domain.Actor) (*dto.DeleteEventResponse, error) {
					if tt.err != nil {
						return nil, tt.err
					}
					return &dto.DeleteEventResponse{EventID: eventID, Deleted: true}, nil
				},
			}
			router := setupTestRouter(t, &MockBookingService{}, events)

			w := doRequest(router, http.MethodDelete, "/api/v1/events/event-1", "organizer-1", "organizer", nil)
			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedCode != "" {
				resp := decodeError(t, w)
				assert.Equal(t, tt.expectedCode, resp.Code)
				if tt.expectedCode == "REFUND_FAILED" {
					assert.NotNil(t, resp.Details)
				}
			}
		})
	}
}

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	down := NewHealthHandler(map[string]HealthChecker{
		"postgres": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
		"kafka":    nil,
	})
	router.GET("/health", down.Health)
	router.GET("/ready", down.Ready)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp dto.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Checks["postgres"])
	assert.Equal(t, "not configured", resp.Checks["kafka"])
	assert.Contains(t, resp.Checks["redis"], "unhealthy")
}
