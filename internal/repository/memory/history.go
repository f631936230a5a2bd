package memory

import (
	"context"

	"github.com/spec-kit/request-service/internal/domain"
)

type historyRepo struct {
	store *Store
	inTx  bool
}

func (r *historyRepo) Create(_ context.Context, history *domain.RequestHistory) error {
	return r.store.with(r.inTx, func(st *state) error {
		st.nextHistoryID++
		history.ID = st.nextHistoryID
		st.history = append(st.history, *history)
		return nil
	})
}

func (r *historyRepo) ListByRequest(_ context.Context, requestID int64) ([]domain.RequestHistory, error) {
	var out []domain.RequestHistory
	err := r.store.with(r.inTx, func(st *state) error {
		for _, entry := range st.history {
			if entry.RequestID == requestID {
				out = append(out, entry)
			}
		}
		return nil
	})
	return out, err
}
