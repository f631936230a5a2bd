// Package memory provides a process-local implementation of the repository
// contracts. It backs the service when no Postgres DSN is configured and is
// the store used by service and handler tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/request-service/internal/domain"
	"github.com/spec-kit/request-service/internal/repository"
)

var _ repository.TxRunner = (*Store)(nil)

// Store holds every table behind a single mutex. A transaction holds the
// mutex for its whole duration, so transactions are serialized.
type Store struct {
	mu    sync.Mutex
	state state
}

type state struct {
	requests      map[int64]domain.Request
	users         map[int64]domain.User
	history       []domain.RequestHistory
	nextRequestID int64
	nextUserID    int64
	nextHistoryID int64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{state: state{
		requests: make(map[int64]domain.Request),
		users:    make(map[int64]domain.User),
	}}
}

// Repos returns repositories that lock the store per call.
func (s *Store) Repos() repository.Repos {
	return s.repos(false)
}

// Run executes fn against a snapshot-protected view of the store. Any error
// from fn, or a cancelled context, restores the snapshot.
func (s *Store) Run(ctx context.Context, fn func(repos repository.Repos) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(s.repos(true)); err != nil {
		s.state = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		s.state = snapshot
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) repos(inTx bool) repository.Repos {
	return repository.Repos{
		Requests: &requestRepo{store: s, inTx: inTx},
		Users:    &userRepo{store: s, inTx: inTx},
		History:  &historyRepo{store: s, inTx: inTx},
	}
}

// with runs fn under the store lock unless the caller already holds it.
func (s *Store) with(inTx bool, fn func(st *state) error) error {
	if !inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(&s.state)
}

func (st state) clone() state {
	out := state{
		requests:      make(map[int64]domain.Request, len(st.requests)),
		users:         make(map[int64]domain.User, len(st.users)),
		history:       make([]domain.RequestHistory, len(st.history)),
		nextRequestID: st.nextRequestID,
		nextUserID:    st.nextUserID,
		nextHistoryID: st.nextHistoryID,
	}
	for id, request := range st.requests {
		out.requests[id] = cloneRequest(request)
	}
	for id, user := range st.users {
		out.users[id] = cloneUser(user)
	}
	copy(out.history, st.history)
	return out
}

func cloneRequest(r domain.Request) domain.Request {
	out := r
	if r.TechnicianID != nil {
		v := *r.TechnicianID
		out.TechnicianID = &v
	}
	if r.DueDate != nil {
		v := *r.DueDate
		out.DueDate = &v
	}
	if r.UpdatedAt != nil {
		v := *r.UpdatedAt
		out.UpdatedAt = &v
	}
	return out
}

func cloneUser(u domain.User) domain.User {
	out := u
	if u.UpdatedAt != nil {
		v := *u.UpdatedAt
		out.UpdatedAt = &v
	}
	return out
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{
		Code:           "23505",
		Message:        "duplicate key value violates unique constraint",
		ConstraintName: constraint,
	}
}
