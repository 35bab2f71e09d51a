package dto

import (
	"time"

	"github.com/osamaloay/TicketsBooking-sub000/internal/domain"
)

// CreateEventRequest represents a request to create an event
type CreateEventRequest struct {
	Title         string    `json:"title" binding:"required,max=255"`
	Description   string    `json:"description"`
	Location      string    `json:"location" binding:"required,max=255"`
	Category      string    `json:"category" binding:"max=100"`
	ImageURL      string    `json:"image_url"`
	StartsAt      time.Time `json:"starts_at" binding:"required"`
	TotalTickets  int       `json:"total_tickets" binding:"required,min=1"`
	TicketPricing *float64  `json:"ticket_pricing" binding:"required,gte=0"`
	Currency      string    `json:"currency" binding:"omitempty,len=3"`
}

// UpdateEventRequest is a partial update; absent fields are nil.
// Status alone is a status-only patch, anything else is a full edit.
type UpdateEventRequest struct {
	Status        *string    `json:"status" binding:"omitempty,event_status"`
	Title         *string    `json:"title" binding:"omitempty,max=255"`
	Description   *string    `json:"description"`
	Location      *string    `json:"location" binding:"omitempty,max=255"`
	Category      *string    `json:"category" binding:"omitempty,max=100"`
	ImageURL      *string    `json:"image_url"`
	StartsAt      *time.Time `json:"starts_at"`
	TicketPricing *float64   `json:"ticket_pricing"`
	TotalTickets  *int       `json:"total_tickets"`
}

// ToDomain converts the request to a domain update
func (r *UpdateEventRequest) ToDomain() *domain.EventUpdate {
	u := &domain.EventUpdate{
		Title:         r.Title,
		Description:   r.Description,
		Location:      r.Location,
		Category:      r.Category,
		ImageURL:      r.ImageURL,
		StartsAt:      r.StartsAt,
		TicketPricing: r.TicketPricing,
		TotalTickets:  r.TotalTickets,
	}
	if r.Status != nil {
		s := domain.EventStatus(*r.Status)
		u.Status = &s
	}
	return u
}

// EventResponse represents an event in API responses
type EventResponse struct {
	ID               string    `json:"id"`
	OrganizerID      string    `json:"organizer_id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Location         string    `json:"location"`
	Category         string    `json:"category"`
	ImageURL         string    `json:"image_url"`
	StartsAt         time.Time `json:"starts_at"`
	TotalTickets     int       `json:"total_tickets"`
	RemainingTickets int       `json:"remaining_tickets"`
	Status           string    `json:"status"`
	TicketPricing    float64   `json:"ticket_pricing"`
	Currency         string    `json:"currency"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// UpdateEventResponse is returned after a field edit or a status change
type UpdateEventResponse struct {
	Event      *EventResponse      `json:"event"`
	Effect     string              `json:"effect"`
	Settlement *SettlementResponse `json:"settlement,omitempty"`
}

// DeleteEventResponse is returned after an event was deleted
type DeleteEventResponse struct {
	EventID    string              `json:"event_id"`
	Deleted    bool                `json:"deleted"`
	Settlement *SettlementResponse `json:"settlement,omitempty"`
}

// FromEvent converts a domain Event to EventResponse
func FromEvent(e *domain.Event) *EventResponse {
	return &EventResponse{
		ID:               e.ID,
		OrganizerID:      e.OrganizerID,
		Title:            e.Title,
		Description:      e.Description,
		Location:         e.Location,
		Category:         e.Category,
		ImageURL:         e.ImageURL,
		StartsAt:         e.StartsAt,
		TotalTickets:     e.TotalTickets,
		RemainingTickets: e.RemainingTickets,
		Status:           e.Status.String(),
		TicketPricing:    e.TicketPricing,
		Currency:         e.Currency,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
}
