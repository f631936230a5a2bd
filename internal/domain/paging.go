package domain

import "strings"

const (
	// MaxRequestPageSize bounds request listings.
	MaxRequestPageSize = 100
	// MaxUserPageSize bounds user listings.
	MaxUserPageSize = 50

	DefaultSortField = "CreatedAt"
)

// SortDirection is asc or desc.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// PageRequest carries paging and sorting input for list operations.
type PageRequest struct {
	Page     int
	PageSize int
	SortBy   string
	SortDir  SortDirection
}

// Normalize clamps paging values and resolves the sort field against allowed.
// allowed maps lower-cased input names to canonical field names; unknown
// fields fall back to DefaultSortField.
func (p PageRequest) Normalize(maxPageSize, defaultPageSize int, allowed map[string]string) PageRequest {
	out := p
	if out.Page < 1 {
		out.Page = 1
	}
	if out.PageSize == 0 {
		out.PageSize = defaultPageSize
	}
	if out.PageSize < 1 {
		out.PageSize = 1
	}
	if out.PageSize > maxPageSize {
		out.PageSize = maxPageSize
	}

	field, ok := allowed[strings.ToLower(strings.TrimSpace(out.SortBy))]
	if !ok {
		field = DefaultSortField
	}
	out.SortBy = field

	if strings.EqualFold(string(out.SortDir), string(SortAsc)) {
		out.SortDir = SortAsc
	} else {
		out.SortDir = SortDesc
	}
	return out
}

// Offset returns the number of rows to skip.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// PagedResult is the envelope returned by list operations.
type PagedResult[T any] struct {
	Data     []T `json:"data"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}
