package domain

import "time"

// RequestChangeType captures what changed in a history entry.
type RequestChangeType string

const (
	ChangeTypeStatus     RequestChangeType = "STATUS_CHANGE"
	ChangeTypeTechnician RequestChangeType = "TECHNICIAN_ASSIGNED"
	ChangeTypeFields     RequestChangeType = "FIELDS_UPDATED"
)

// RequestHistory is an immutable audit trail entry.
type RequestHistory struct {
	ID          int64
	RequestID   int64
	ChangedByID int64
	ChangeType  RequestChangeType
	OldValue    map[string]any
	NewValue    map[string]any
	CreatedAt   time.Time
}
