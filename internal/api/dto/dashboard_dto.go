package dto

import "time"

// StatusCountsResponse has one number per status.
type StatusCountsResponse struct {
	Open       int `json:"open"`
	InProgress int `json:"in_progress"`
	Resolved   int `json:"resolved"`
	Closed     int `json:"closed"`
}

// SummaryResponse for GET /dashboard/summary.
type SummaryResponse struct {
	Counts StatusCountsResponse `json:"counts"`
	Trends StatusCountsResponse `json:"trends"`
}

// PriorityBreakdownResponse for GET /dashboard/priority-breakdown.
type PriorityBreakdownResponse struct {
	Low    int `json:"low"`
	Normal int `json:"normal"`
	High   int `json:"high"`
}

// CountResponse wraps a single total.
type CountResponse struct {
	Count int `json:"count"`
}

// ActivityItemResponse is one activity feed line.
type ActivityItemResponse struct {
	RequestID int64     `json:"request_id"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Time      string    `json:"time"`
	CreatedAt time.Time `json:"created_at"`
}

// HighPriorityItemResponse is one open high-priority request.
type HighPriorityItemResponse struct {
	RequestID    int64     `json:"request_id"`
	Title        string    `json:"title"`
	Status       string    `json:"status"`
	AssigneeName string    `json:"assignee_name"`
	Time         string    `json:"time"`
	CreatedAt    time.Time `json:"created_at"`
}
