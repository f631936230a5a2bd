package dto

import "time"

// CreateRequestRequest payload for POST /requests.
type CreateRequestRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
}

// UpdateRequestRequest payload for PATCH /requests/:id.
type UpdateRequestRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Priority    *string    `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
}

// AssignTechnicianRequest payload for POST /requests/:id/assign-technician.
type AssignTechnicianRequest struct {
	TechnicianID int64 `json:"technician_id"`
}

// ChangeStatusRequest payload for POST /requests/:id/change-status.
type ChangeStatusRequest struct {
	StatusID int `json:"status_id"`
}

// UpdateResultResponse tells whether a PATCH changed anything.
type UpdateResultResponse struct {
	Result string `json:"result"`
}

// RequestResponse is a request row.
type RequestResponse struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Priority     string     `json:"priority"`
	StatusID     int        `json:"status_id"`
	Status       string     `json:"status"`
	CreatedByID  int64      `json:"created_by_id"`
	TechnicianID *int64     `json:"technician_id"`
	DueDate      *time.Time `json:"due_date"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at"`
}

// RequestDetailResponse adds the resolved participants.
type RequestDetailResponse struct {
	RequestResponse
	CreatedBy  *UserSummary `json:"created_by"`
	Technician *UserSummary `json:"technician"`
}

// RequestHistoryResponse is one audit entry.
type RequestHistoryResponse struct {
	ID          int64          `json:"id"`
	ChangedByID int64          `json:"changed_by_id"`
	ChangeType  string         `json:"change_type"`
	OldValue    map[string]any `json:"old_value"`
	NewValue    map[string]any `json:"new_value"`
	CreatedAt   time.Time      `json:"created_at"`
}
