package domain

import (
	"strings"
	"time"
)

// StatusID references the fixed, ordered request status vocabulary.
type StatusID int

const (
	StatusOpen       StatusID = 1
	StatusInProgress StatusID = 2
	StatusResolved   StatusID = 3
	StatusClosed     StatusID = 4
)

// Statuses lists the vocabulary in lifecycle order.
var Statuses = []StatusID{StatusOpen, StatusInProgress, StatusResolved, StatusClosed}

// Valid reports whether the id is one of the four canonical statuses.
func (s StatusID) Valid() bool {
	return s >= StatusOpen && s <= StatusClosed
}

// Next returns the only status reachable from s, or false when s is terminal.
func (s StatusID) Next() (StatusID, bool) {
	if !s.Valid() || s == StatusClosed {
		return 0, false
	}
	return s + 1, true
}

func (s StatusID) String() string {
	switch s {
	case StatusOpen:
		return "Open"
	case StatusInProgress:
		return "InProgress"
	case StatusResolved:
		return "Resolved"
	case StatusClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// RequestPriority enumerates request urgency.
type RequestPriority int

const (
	PriorityLow RequestPriority = iota
	PriorityNormal
	PriorityHigh
)

// Priorities lists every priority from lowest to highest.
var Priorities = []RequestPriority{PriorityLow, PriorityNormal, PriorityHigh}

func (p RequestPriority) String() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityNormal:
		return "Normal"
	case PriorityHigh:
		return "High"
	default:
		return "Unknown"
	}
}

// Valid reports whether p is a known priority.
func (p RequestPriority) Valid() bool {
	return p >= PriorityLow && p <= PriorityHigh
}

// ParsePriority accepts Low, Normal or High in any letter case.
func ParsePriority(raw string) (RequestPriority, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "low":
		return PriorityLow, true
	case "normal":
		return PriorityNormal, true
	case "high":
		return PriorityHigh, true
	default:
		return 0, false
	}
}

// Request is a service ticket moving through the status lifecycle.
type Request struct {
	ID           int64
	Title        string
	Description  string
	Priority     RequestPriority
	StatusID     StatusID
	CreatedByID  int64
	TechnicianID *int64
	DueDate      *time.Time
	CreatedAt    time.Time
	UpdatedAt    *time.Time
}

// IsClosed reports whether the request reached the terminal status.
func (r *Request) IsClosed() bool {
	return r.StatusID == StatusClosed
}

// HasTechnician reports whether a technician is assigned.
func (r *Request) HasTechnician() bool {
	return r.TechnicianID != nil
}
