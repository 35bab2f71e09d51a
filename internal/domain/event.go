package domain

import (
	"strings"
	"time"
)

// EventStatus represents the approval state of an event
type EventStatus string

const (
	EventStatusPending  EventStatus = "pending"
	EventStatusApproved EventStatus = "approved"
	EventStatusDeclined EventStatus = "declined"
)

// IsValid checks if the status is a known EventStatus
func (s EventStatus) IsValid() bool {
	switch s {
	case EventStatusPending, EventStatusApproved, EventStatusDeclined:
		return true
	}
	return false
}

func (s EventStatus) String() string {
	return string(s)
}

// Role is the caller's platform role
type Role string

const (
	RoleStandard  Role = "standard"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

// Actor identifies who performs an operation
type Actor struct {
	UserID string
	Role   Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Event is a ticketed event with a finite inventory
type Event struct {
	ID               string      `json:"id"`
	OrganizerID      string      `json:"organizer_id"`
	Title            string      `json:"title"`
	Description      string      `json:"description"`
	Location         string      `json:"location"`
	Category         string      `json:"category"`
	ImageURL         string      `json:"image_url"`
	StartsAt         time.Time   `json:"starts_at"`
	TotalTickets     int         `json:"total_tickets"`
	RemainingTickets int         `json:"remaining_tickets"`
	Status           EventStatus `json:"status"`
	TicketPricing    float64     `json:"ticket_pricing"`
	Currency         string      `json:"currency"`
	// StatusEpoch counts status changes. A reservation is only valid in the
	// epoch it was taken in.
	StatusEpoch      int64       `json:"status_epoch"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
	DeletedAt        *time.Time  `json:"deleted_at,omitempty"`
}

// IsBookable reports whether new reservations are accepted
func (e *Event) IsBookable() bool {
	return e.Status == EventStatusApproved && e.DeletedAt == nil
}

// SoldTickets is the count held by confirmed or in-flight bookings
func (e *Event) SoldTickets() int {
	return e.TotalTickets - e.RemainingTickets
}

// CanManage reports whether the actor may edit, transition or delete the event
func (e *Event) CanManage(a Actor) bool {
	return a.IsAdmin() || (a.UserID != "" && a.UserID == e.OrganizerID)
}

// Validate checks the event field invariants
func (e *Event) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return NewValidationError("title", "is required")
	}
	if strings.TrimSpace(e.Location) == "" {
		return NewValidationError("location", "is required")
	}
	if e.StartsAt.IsZero() {
		return NewValidationError("starts_at", "is required")
	}
	if e.TotalTickets < 1 {
		return NewValidationError("total_tickets", "must be at least 1")
	}
	if e.RemainingTickets < 0 || e.RemainingTickets > e.TotalTickets {
		return NewValidationError("remaining_tickets", "must be between 0 and total_tickets")
	}
	if e.TicketPricing < 0 {
		return NewValidationError("ticket_pricing", "cannot be negative")
	}
	if !e.Status.IsValid() {
		return ErrInvalidStatus
	}
	return nil
}

// EventUpdate is a PATCH request. Nil fields are absent.
type EventUpdate struct {
	Status        *EventStatus
	Title         *string
	Description   *string
	Location      *string
	Category      *string
	ImageURL      *string
	StartsAt      *time.Time
	TicketPricing *float64
	TotalTickets  *int
}

// IsFullEdit reports whether any field other than status is present
func (u *EventUpdate) IsFullEdit() bool {
	return u.Title != nil || u.Description != nil || u.Location != nil ||
		u.Category != nil || u.ImageURL != nil || u.StartsAt != nil ||
		u.TicketPricing != nil || u.TotalTickets != nil
}

// IsEmpty reports whether the update carries nothing at all
func (u *EventUpdate) IsEmpty() bool {
	return u.Status == nil && !u.IsFullEdit()
}

// validateRequired checks that a full edit carries the whole required set
func (u *EventUpdate) validateRequired() error {
	switch {
	case u.Title == nil:
		return NewValidationError("title", "is required for a full edit")
	case u.Location == nil:
		return NewValidationError("location", "is required for a full edit")
	case u.StartsAt == nil:
		return NewValidationError("starts_at", "is required for a full edit")
	case u.TicketPricing == nil:
		return NewValidationError("ticket_pricing", "is required for a full edit")
	case u.TotalTickets == nil:
		return NewValidationError("total_tickets", "is required for a full edit")
	}
	return nil
}

// ApplyFields applies a full edit to a copy of e and validates the result.
// Remaining tickets move by the same delta as total tickets; a total below
// the number already sold is rejected.
func (u *EventUpdate) ApplyFields(e Event) (Event, error) {
	if err := u.validateRequired(); err != nil {
		return e, err
	}

	e.Title = *u.Title
	e.Location = *u.Location
	e.StartsAt = *u.StartsAt
	e.TicketPricing = *u.TicketPricing
	if u.Description != nil {
		e.Description = *u.Description
	}
	if u.Category != nil {
		e.Category = *u.Category
	}
	if u.ImageURL != nil {
		e.ImageURL = *u.ImageURL
	}

	newTotal := *u.TotalTickets
	if newTotal < e.SoldTickets() {
		return e, NewValidationError("total_tickets", "cannot be lower than tickets already sold")
	}
	e.RemainingTickets += newTotal - e.TotalTickets
	e.TotalTickets = newTotal

	if err := e.Validate(); err != nil {
		return e, err
	}
	return e, nil
}
