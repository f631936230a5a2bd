package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/request-service/internal/domain"
)

// Canonical user sort fields.
const (
	UserSortCreatedAt = "CreatedAt"
	UserSortFirstName = "FirstName"
	UserSortLastName  = "LastName"
	UserSortEmail     = "Email"
)

// UserSortFields maps accepted sort inputs to canonical field names.
var UserSortFields = map[string]string{
	"createdat": UserSortCreatedAt,
	"firstname": UserSortFirstName,
	"lastname":  UserSortLastName,
	"email":     UserSortEmail,
}

// UserFilter defines query params for user listing and counting.
type UserFilter struct {
	Role         *domain.Role
	Active       *bool
	ExcludeID    *int64
	SearchPrefix *string
	SortBy       string
	SortDir      domain.SortDirection
	Limit        int
	Offset       int
}

// UserRepository defines persistence access for the user directory.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context, filter UserFilter) ([]domain.User, error)
	Count(ctx context.Context, filter UserFilter) (int, error)
	LockActiveAdmins(ctx context.Context) ([]int64, error)
}

type userRepository struct {
	db DBTX
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, first_name, last_name, email, password_hash, role, is_active, created_at, updated_at`

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (first_name, last_name, email, password_hash, role, is_active, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id`

	return r.db.QueryRow(ctx, query,
		user.FirstName,
		user.LastName,
		user.Email,
		user.PasswordHash,
		user.Role.String(),
		user.Active,
		user.CreatedAt,
	).Scan(&user.ID)
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	const query = `
        UPDATE users SET first_name=$1, last_name=$2, email=$3, password_hash=$4, role=$5, is_active=$6, updated_at=$7
        WHERE id=$8`

	cmd, err := r.db.Exec(ctx, query,
		user.FirstName,
		user.LastName,
		user.Email,
		user.PasswordHash,
		user.Role.String(),
		user.Active,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.fetchSingle(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

func (r *userRepository) GetByIDForUpdate(ctx context.Context, id int64) (*domain.User, error) {
	return r.fetchSingle(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1 FOR UPDATE`, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.fetchSingle(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
}

// LockActiveAdmins locks every active admin row until the surrounding
// transaction ends and returns their ids.
func (r *userRepository) LockActiveAdmins(ctx context.Context) ([]int64, error) {
	const query = `SELECT id FROM users WHERE role=$1 AND is_active ORDER BY id FOR UPDATE`
	rows, err := r.db.Query(ctx, query, domain.RoleAdmin.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *userRepository) List(ctx context.Context, filter UserFilter) ([]domain.User, error) {
	where, args := buildUserWhere(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s ORDER BY %s LIMIT %d OFFSET %d`,
		userColumns, where, userOrderBy(filter.SortBy, filter.SortDir), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, user)
	}
	return result, rows.Err()
}

func (r *userRepository) Count(ctx context.Context, filter UserFilter) (int, error) {
	where, args := buildUserWhere(filter)
	var total int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE `+where, args...).Scan(&total)
	return total, err
}

func (r *userRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func buildUserWhere(filter UserFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Role != nil {
		args = append(args, filter.Role.String())
		clauses = append(clauses, fmt.Sprintf("role=$%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("is_active=$%d", len(args)))
	}
	if filter.ExcludeID != nil {
		args = append(args, *filter.ExcludeID)
		clauses = append(clauses, fmt.Sprintf("id<>$%d", len(args)))
	}
	if filter.SearchPrefix != nil && strings.TrimSpace(*filter.SearchPrefix) != "" {
		args = append(args, escapeLike(strings.ToLower(strings.TrimSpace(*filter.SearchPrefix)))+"%")
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(`(LOWER(first_name) LIKE %[1]s ESCAPE '\' OR LOWER(last_name) LIKE %[1]s ESCAPE '\' OR email LIKE %[1]s ESCAPE '\')`,
			placeholder))
	}
	return strings.Join(clauses, " AND "), args
}

func userOrderBy(sortBy string, dir domain.SortDirection) string {
	column := "created_at"
	switch sortBy {
	case UserSortFirstName:
		column = "first_name"
	case UserSortLastName:
		column = "last_name"
	case UserSortEmail:
		column = "email"
	}
	direction := "DESC"
	if dir == domain.SortAsc {
		direction = "ASC"
	}
	return fmt.Sprintf("%s %s, id ASC", column, direction)
}

func scanUser(row pgx.Row) (domain.User, error) {
	var user domain.User
	var role string
	if err := row.Scan(
		&user.ID,
		&user.FirstName,
		&user.LastName,
		&user.Email,
		&user.PasswordHash,
		&role,
		&user.Active,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return domain.User{}, err
	}
	parsed, ok := domain.ParseRole(role)
	if !ok {
		return domain.User{}, fmt.Errorf("user %d: unknown role %q", user.ID, role)
	}
	user.Role = parsed
	return user, nil
}
