package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/request-service/internal/domain"
)

// Canonical request sort fields.
const (
	RequestSortCreatedAt = "CreatedAt"
	RequestSortPriority  = "Priority"
	RequestSortTitle     = "Title"
)

// RequestSortFields maps accepted sort inputs to canonical field names.
var RequestSortFields = map[string]string{
	"createdat": RequestSortCreatedAt,
	"priority":  RequestSortPriority,
	"title":     RequestSortTitle,
}

// RequestFilter captures search parameters. Time bounds are half-open:
// From is inclusive, Before is exclusive.
type RequestFilter struct {
	StatusID        *domain.StatusID
	ExcludeStatusID *domain.StatusID
	Priority        *domain.RequestPriority
	TechnicianID    *int64
	CreatedByID     *int64
	SearchTerm      *string
	CreatedFrom     *time.Time
	CreatedBefore   *time.Time
	UpdatedFrom     *time.Time
	UpdatedBefore   *time.Time
	SortBy          string
	SortDir         domain.SortDirection
	Limit           int
	Offset          int
}

// RequestRepository encapsulates request persistence.
type RequestRepository interface {
	Create(ctx context.Context, request *domain.Request) error
	Update(ctx context.Context, request *domain.Request) error
	GetByID(ctx context.Context, id int64) (*domain.Request, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*domain.Request, error)
	List(ctx context.Context, filter RequestFilter) ([]domain.Request, error)
	Count(ctx context.Context, filter RequestFilter) (int, error)
	CountByStatus(ctx context.Context, filter RequestFilter) (map[domain.StatusID]int, error)
	CountByPriority(ctx context.Context, filter RequestFilter) (map[domain.RequestPriority]int, error)
}

type requestRepository struct {
	db DBTX
}

// NewRequestRepository instantiates repository.
func NewRequestRepository(db DBTX) RequestRepository {
	return &requestRepository{db: db}
}

const requestColumns = `id, title, description, priority, status_id, created_by_id, technician_id,
               due_date, created_at, updated_at`

func (r *requestRepository) Create(ctx context.Context, request *domain.Request) error {
	const query = `
        INSERT INTO requests (title, description, priority, status_id, created_by_id, technician_id, due_date, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id`
	return r.db.QueryRow(ctx, query,
		request.Title,
		request.Description,
		int(request.Priority),
		int(request.StatusID),
		request.CreatedByID,
		request.TechnicianID,
		request.DueDate,
		request.CreatedAt,
	).Scan(&request.ID)
}

func (r *requestRepository) Update(ctx context.Context, request *domain.Request) error {
	const query = `
        UPDATE requests SET title=$1, description=$2, priority=$3, status_id=$4, technician_id=$5,
            due_date=$6, updated_at=$7
        WHERE id=$8`
	cmd, err := r.db.Exec(ctx, query,
		request.Title,
		request.Description,
		int(request.Priority),
		int(request.StatusID),
		request.TechnicianID,
		request.DueDate,
		request.UpdatedAt,
		request.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *requestRepository) GetByID(ctx context.Context, id int64) (*domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *requestRepository) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id=$1 FOR UPDATE`
	return r.fetchSingle(ctx, query, id)
}

func (r *requestRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Request, error) {
	request, err := scanRequest(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *requestRepository) List(ctx context.Context, filter RequestFilter) ([]domain.Request, error) {
	where, args := buildRequestWhere(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM requests WHERE %s ORDER BY %s LIMIT %d OFFSET %d`,
		requestColumns, where, requestOrderBy(filter.SortBy, filter.SortDir), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

func (r *requestRepository) Count(ctx context.Context, filter RequestFilter) (int, error) {
	where, args := buildRequestWhere(filter)
	var total int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM requests WHERE `+where, args...).Scan(&total)
	return total, err
}

func (r *requestRepository) CountByStatus(ctx context.Context, filter RequestFilter) (map[domain.StatusID]int, error) {
	where, args := buildRequestWhere(filter)
	rows, err := r.db.Query(ctx, `SELECT status_id, COUNT(*) FROM requests WHERE `+where+` GROUP BY status_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.StatusID]int, len(domain.Statuses))
	for rows.Next() {
		var status, n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.StatusID(status)] = n
	}
	return counts, rows.Err()
}

func (r *requestRepository) CountByPriority(ctx context.Context, filter RequestFilter) (map[domain.RequestPriority]int, error) {
	where, args := buildRequestWhere(filter)
	rows, err := r.db.Query(ctx, `SELECT priority, COUNT(*) FROM requests WHERE `+where+` GROUP BY priority`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.RequestPriority]int, len(domain.Priorities))
	for rows.Next() {
		var priority, n int
		if err := rows.Scan(&priority, &n); err != nil {
			return nil, err
		}
		counts[domain.RequestPriority(priority)] = n
	}
	return counts, rows.Err()
}

func buildRequestWhere(filter RequestFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.StatusID != nil {
		args = append(args, int(*filter.StatusID))
		clauses = append(clauses, fmt.Sprintf("status_id=$%d", len(args)))
	}
	if filter.ExcludeStatusID != nil {
		args = append(args, int(*filter.ExcludeStatusID))
		clauses = append(clauses, fmt.Sprintf("status_id<>$%d", len(args)))
	}
	if filter.Priority != nil {
		args = append(args, int(*filter.Priority))
		clauses = append(clauses, fmt.Sprintf("priority=$%d", len(args)))
	}
	if filter.TechnicianID != nil {
		args = append(args, *filter.TechnicianID)
		clauses = append(clauses, fmt.Sprintf("technician_id=$%d", len(args)))
	}
	if filter.CreatedByID != nil {
		args = append(args, *filter.CreatedByID)
		clauses = append(clauses, fmt.Sprintf("created_by_id=$%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedBefore != nil {
		args = append(args, *filter.CreatedBefore)
		clauses = append(clauses, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if filter.UpdatedFrom != nil {
		args = append(args, *filter.UpdatedFrom)
		clauses = append(clauses, fmt.Sprintf("updated_at >= $%d", len(args)))
	}
	if filter.UpdatedBefore != nil {
		args = append(args, *filter.UpdatedBefore)
		clauses = append(clauses, fmt.Sprintf("updated_at < $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + escapeLike(strings.ToLower(strings.TrimSpace(*filter.SearchTerm))) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(`(LOWER(title) LIKE %[1]s ESCAPE '\' OR LOWER(description) LIKE %[1]s ESCAPE '\')`, placeholder))
	}
	return strings.Join(clauses, " AND "), args
}

func requestOrderBy(sortBy string, dir domain.SortDirection) string {
	column := "created_at"
	switch sortBy {
	case RequestSortPriority:
		column = "priority"
	case RequestSortTitle:
		column = "title"
	}
	direction := "DESC"
	if dir == domain.SortAsc {
		direction = "ASC"
	}
	return fmt.Sprintf("%s %s, id %s", column, direction, direction)
}

func scanRequests(rows pgx.Rows) ([]domain.Request, error) {
	var result []domain.Request
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, request)
	}
	return result, rows.Err()
}

func scanRequest(row pgx.Row) (domain.Request, error) {
	var request domain.Request
	var priority, status int
	if err := row.Scan(
		&request.ID,
		&request.Title,
		&request.Description,
		&priority,
		&status,
		&request.CreatedByID,
		&request.TechnicianID,
		&request.DueDate,
		&request.CreatedAt,
		&request.UpdatedAt,
	); err != nil {
		return domain.Request{}, err
	}
	request.Priority = domain.RequestPriority(priority)
	request.StatusID = domain.StatusID(status)
	return request, nil
}
