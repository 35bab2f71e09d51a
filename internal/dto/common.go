package dto

import "github.com/osamaloay/TicketsBooking-sub000/pkg/response"

// ErrorResponse is the error body of every endpoint
type ErrorResponse = response.ErrorResponse

// PageQuery binds pagination parameters
type PageQuery struct {
	Page     int `form:"page,default=1" binding:"min=1"`
	PageSize int `form:"page_size,default=20" binding:"min=1,max=100"`
}

// PaginatedResponse wraps a page of results
type PaginatedResponse struct {
	Data     any `json:"data"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}

// HealthResponse is returned by the health and readiness probes
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
