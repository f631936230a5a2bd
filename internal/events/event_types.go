package events

import (
	"time"

	"github.com/spec-kit/request-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventRequestCreated            EventType = "request_created"
	EventRequestStatusChanged      EventType = "request_status_changed"
	EventRequestTechnicianAssigned EventType = "request_technician_assigned"
	EventRequestUpdated            EventType = "request_updated"
	EventUserRoleChanged           EventType = "user_role_changed"
	EventUserActiveChanged         EventType = "user_active_changed"
)

// Actor identifies who caused the event.
type Actor struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

// NewActor builds an Actor from a caller identity.
func NewActor(identity domain.Identity) Actor {
	return Actor{UserID: identity.UserID, Role: identity.Role.String()}
}

// Event represents a domain event emitted by services after commit.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	SubjectID int64     `json:"subject_id"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// RequestCreatedPayload payload.
type RequestCreatedPayload struct {
	Title    string `json:"title"`
	Priority string `json:"priority"`
}

// RequestStatusChangedPayload payload.
type RequestStatusChangedPayload struct {
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

// RequestTechnicianAssignedPayload payload.
type RequestTechnicianAssignedPayload struct {
	TechnicianID int64  `json:"technician_id"`
	AutoAdvanced bool   `json:"auto_advanced"`
	Status       string `json:"status"`
}

// RequestUpdatedPayload lists the fields that changed.
type RequestUpdatedPayload struct {
	Fields []string `json:"fields"`
}

// UserRoleChangedPayload payload.
type UserRoleChangedPayload struct {
	OldRole string `json:"old_role"`
	NewRole string `json:"new_role"`
}

// UserActiveChangedPayload payload.
type UserActiveChangedPayload struct {
	Active bool `json:"active"`
}
