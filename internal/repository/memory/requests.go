package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/request-service/internal/domain"
	"github.com/spec-kit/request-service/internal/repository"
)

type requestRepo struct {
	store *Store
	inTx  bool
}

func (r *requestRepo) Create(_ context.Context, request *domain.Request) error {
	return r.store.with(r.inTx, func(st *state) error {
		st.nextRequestID++
		request.ID = st.nextRequestID
		st.requests[request.ID] = cloneRequest(*request)
		return nil
	})
}

func (r *requestRepo) Update(_ context.Context, request *domain.Request) error {
	return r.store.with(r.inTx, func(st *state) error {
		current, ok := st.requests[request.ID]
		if !ok {
			return pgx.ErrNoRows
		}
		updated := cloneRequest(*request)
		updated.CreatedByID = current.CreatedByID
		updated.CreatedAt = current.CreatedAt
		st.requests[request.ID] = updated
		return nil
	})
}

func (r *requestRepo) GetByID(_ context.Context, id int64) (*domain.Request, error) {
	var out domain.Request
	err := r.store.with(r.inTx, func(st *state) error {
		request, ok := st.requests[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = cloneRequest(request)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetByIDForUpdate is GetByID: the transaction already holds the store lock.
func (r *requestRepo) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Request, error) {
	return r.GetByID(ctx, id)
}

func (r *requestRepo) List(_ context.Context, filter repository.RequestFilter) ([]domain.Request, error) {
	var out []domain.Request
	err := r.store.with(r.inTx, func(st *state) error {
		matched := st.matchRequests(filter)
		sortRequests(matched, filter.SortBy, filter.SortDir)

		limit := filter.Limit
		if limit <= 0 {
			limit = 20
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

func (r *requestRepo) Count(_ context.Context, filter repository.RequestFilter) (int, error) {
	var total int
	err := r.store.with(r.inTx, func(st *state) error {
		total = len(st.matchRequests(filter))
		return nil
	})
	return total, err
}

func (r *requestRepo) CountByStatus(_ context.Context, filter repository.RequestFilter) (map[domain.StatusID]int, error) {
	counts := make(map[domain.StatusID]int, len(domain.Statuses))
	err := r.store.with(r.inTx, func(st *state) error {
		for _, request := range st.matchRequests(filter) {
			counts[request.StatusID]++
		}
		return nil
	})
	return counts, err
}

func (r *requestRepo) CountByPriority(_ context.Context, filter repository.RequestFilter) (map[domain.RequestPriority]int, error) {
	counts := make(map[domain.RequestPriority]int, len(domain.Priorities))
	err := r.store.with(r.inTx, func(st *state) error {
		for _, request := range st.matchRequests(filter) {
			counts[request.Priority]++
		}
		return nil
	})
	return counts, err
}

func (st *state) matchRequests(filter repository.RequestFilter) []domain.Request {
	var out []domain.Request
	for _, request := range st.requests {
		if requestMatches(request, filter) {
			out = append(out, cloneRequest(request))
		}
	}
	return out
}

func requestMatches(r domain.Request, f repository.RequestFilter) bool {
	if f.StatusID != nil && r.StatusID != *f.StatusID {
		return false
	}
	if f.ExcludeStatusID != nil && r.StatusID == *f.ExcludeStatusID {
		return false
	}
	if f.Priority != nil && r.Priority != *f.Priority {
		return false
	}
	if f.TechnicianID != nil && (r.TechnicianID == nil || *r.TechnicianID != *f.TechnicianID) {
		return false
	}
	if f.CreatedByID != nil && r.CreatedByID != *f.CreatedByID {
		return false
	}
	if f.CreatedFrom != nil && r.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedBefore != nil && !r.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	if f.UpdatedFrom != nil && (r.UpdatedAt == nil || r.UpdatedAt.Before(*f.UpdatedFrom)) {
		return false
	}
	if f.UpdatedBefore != nil && (r.UpdatedAt == nil || !r.UpdatedAt.Before(*f.UpdatedBefore)) {
		return false
	}
	if f.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*f.SearchTerm))
		if term != "" &&
			!strings.Contains(strings.ToLower(r.Title), term) &&
			!strings.Contains(strings.ToLower(r.Description), term) {
			return false
		}
	}
	return true
}

func sortRequests(requests []domain.Request, sortBy string, dir domain.SortDirection) {
	less := func(a, b domain.Request) int {
		switch sortBy {
		case repository.RequestSortPriority:
			return int(a.Priority) - int(b.Priority)
		case repository.RequestSortTitle:
			return strings.Compare(a.Title, b.Title)
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}
	sort.SliceStable(requests, func(i, j int) bool {
		cmp := less(requests[i], requests[j])
		if cmp == 0 {
			cmp = int(requests[i].ID - requests[j].ID)
		}
		if dir == domain.SortAsc {
			return cmp < 0
		}
		return cmp > 0
	})
}
