package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/request-service/internal/domain"
	"github.com/spec-kit/request-service/internal/repository"
)

type userRepo struct {
	store *Store
	inTx  bool
}

func (r *userRepo) Create(_ context.Context, user *domain.User) error {
	return r.store.with(r.inTx, func(st *state) error {
		if st.emailTaken(user.Email, 0) {
			return uniqueViolation("users_email_key")
		}
		st.nextUserID++
		user.ID = st.nextUserID
		st.users[user.ID] = cloneUser(*user)
		return nil
	})
}

func (r *userRepo) Update(_ context.Context, user *domain.User) error {
	return r.store.with(r.inTx, func(st *state) error {
		if _, ok := st.users[user.ID]; !ok {
			return pgx.ErrNoRows
		}
		if st.emailTaken(user.Email, user.ID) {
			return uniqueViolation("users_email_key")
		}
		st.users[user.ID] = cloneUser(*user)
		return nil
	})
}

func (r *userRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.ID == id })
}

func (r *userRepo) GetByIDForUpdate(ctx context.Context, id int64) (*domain.User, error) {
	return r.GetByID(ctx, id)
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.Email == email })
}

func (r *userRepo) LockActiveAdmins(_ context.Context) ([]int64, error) {
	var ids []int64
	err := r.store.with(r.inTx, func(st *state) error {
		for id, user := range st.users {
			if user.IsActiveAdmin() {
				ids = append(ids, id)
			}
		}
		return nil
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, err
}

func (r *userRepo) List(_ context.Context, filter repository.UserFilter) ([]domain.User, error) {
	var out []domain.User
	err := r.store.with(r.inTx, func(st *state) error {
		matched := st.matchUsers(filter)
		sortUsers(matched, filter.SortBy, filter.SortDir)

		limit := filter.Limit
		if limit <= 0 {
			limit = 50
		}
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		if offset >= len(matched) {
			return nil
		}
		end := offset + limit
		if end > len(matched) {
			end = len(matched)
		}
		out = matched[offset:end]
		return nil
	})
	return out, err
}

func (r *userRepo) Count(_ context.Context, filter repository.UserFilter) (int, error) {
	var total int
	err := r.store.with(r.inTx, func(st *state) error {
		total = len(st.matchUsers(filter))
		return nil
	})
	return total, err
}

func (r *userRepo) find(match func(domain.User) bool) (*domain.User, error) {
	var out *domain.User
	err := r.store.with(r.inTx, func(st *state) error {
		for _, user := range st.users {
			if match(user) {
				found := cloneUser(user)
				out = &found
				return nil
			}
		}
		return pgx.ErrNoRows
	})
	return out, err
}

func (st *state) emailTaken(email string, exceptID int64) bool {
	for id, user := range st.users {
		if id != exceptID && user.Email == email {
			return true
		}
	}
	return false
}

func (st *state) matchUsers(filter repository.UserFilter) []domain.User {
	var out []domain.User
	for _, user := range st.users {
		if userMatches(user, filter) {
			out = append(out, cloneUser(user))
		}
	}
	return out
}

func userMatches(u domain.User, f repository.UserFilter) bool {
	if f.Role != nil && u.Role != *f.Role {
		return false
	}
	if f.Active != nil && u.Active != *f.Active {
		return false
	}
	if f.ExcludeID != nil && u.ID == *f.ExcludeID {
		return false
	}
	if f.SearchPrefix != nil {
		prefix := strings.ToLower(strings.TrimSpace(*f.SearchPrefix))
		if prefix != "" &&
			!strings.HasPrefix(strings.ToLower(u.FirstName), prefix) &&
			!strings.HasPrefix(strings.ToLower(u.LastName), prefix) &&
			!strings.HasPrefix(u.Email, prefix) {
			return false
		}
	}
	return true
}

func sortUsers(users []domain.User, sortBy string, dir domain.SortDirection) {
	compare := func(a, b domain.User) int {
		switch sortBy {
		case repository.UserSortFirstName:
			return strings.Compare(a.FirstName, b.FirstName)
		case repository.UserSortLastName:
			return strings.Compare(a.LastName, b.LastName)
		case repository.UserSortEmail:
			return strings.Compare(a.Email, b.Email)
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}
	sort.SliceStable(users, func(i, j int) bool {
		cmp := compare(users[i], users[j])
		if cmp == 0 {
			return users[i].ID < users[j].ID
		}
		if dir == domain.SortAsc {
			return cmp < 0
		}
		return cmp > 0
	})
}
