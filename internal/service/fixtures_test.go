package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/request-service/internal/domain"
	"github.com/spec-kit/request-service/internal/events"
	"github.com/spec-kit/request-service/internal/repository/memory"
)

var fixedNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) record(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, 0, len(r.events))
	for _, event := range r.events {
		out = append(out, event.Type)
	}
	return out
}

type fixture struct {
	store     *memory.Store
	now       time.Time
	recorder  *recorder
	workflow  *WorkflowService
	requests  *RequestService
	users     *UserService
	dashboard *DashboardService
}

func newFixture(t *testing.T, policy AssignmentPolicy) *fixture {
	t.Helper()

	f := &fixture{store: memory.NewStore(), now: fixedNow, recorder: &recorder{}}
	clock := func() time.Time { return f.now }

	dispatcher := events.NewInMemoryDispatcher(nil)
	dispatcher.SubscribeAll(f.recorder.record)

	repos := f.store.Repos()
	f.workflow = NewWorkflowService(WorkflowDependencies{TxRunner: f.store, Dispatcher: dispatcher, Policy: policy, Clock: clock})
	f.requests = NewRequestService(RequestDependencies{TxRunner: f.store, Repos: repos, Dispatcher: dispatcher, Clock: clock})
	f.users = NewUserService(UserDependencies{TxRunner: f.store, Repos: repos, Dispatcher: dispatcher, Clock: clock, BcryptCost: bcrypt.MinCost})
	f.dashboard = NewDashboardService(DashboardDependencies{Repos: repos, Clock: clock})
	return f
}

func (f *fixture) addUser(t *testing.T, first string, role domain.Role, active bool) domain.Identity {
	t.Helper()
	user := &domain.User{
		FirstName:    first,
		LastName:     "Tester",
		Email:        first + "@example.com",
		PasswordHash: "unused",
		Role:         role,
		Active:       active,
		CreatedAt:    f.now,
	}
	require.NoError(t, f.store.Repos().Users.Create(context.Background(), user))
	return domain.Identity{UserID: user.ID, Role: role}
}

type requestOption func(*domain.Request)

func withStatus(status domain.StatusID) requestOption {
	return func(r *domain.Request) { r.StatusID = status }
}

func withTechnician(id int64) requestOption {
	return func(r *domain.Request) { r.TechnicianID = &id }
}

func withPriority(p domain.RequestPriority) requestOption {
	return func(r *domain.Request) { r.Priority = p }
}

func createdAt(t time.Time) requestOption {
	return func(r *domain.Request) { r.CreatedAt = t }
}

func updatedAt(t time.Time) requestOption {
	return func(r *domain.Request) { r.UpdatedAt = &t }
}

func (f *fixture) addRequest(t *testing.T, creator domain.Identity, opts ...requestOption) domain.Request {
	t.Helper()
	request := &domain.Request{
		Title:       "Printer jammed",
		Description: "Tray two jams on every job",
		Priority:    domain.PriorityNormal,
		StatusID:    domain.StatusOpen,
		CreatedByID: creator.UserID,
		CreatedAt:   f.now.Add(-time.Hour),
	}
	for _, opt := range opts {
		opt(request)
	}
	require.NoError(t, f.store.Repos().Requests.Create(context.Background(), request))
	return *request
}

func (f *fixture) request(t *testing.T, id int64) domain.Request {
	t.Helper()
	request, err := f.store.Repos().Requests.GetByID(context.Background(), id)
	require.NoError(t, err)
	return *request
}

func (f *fixture) user(t *testing.T, id int64) domain.User {
	t.Helper()
	user, err := f.store.Repos().Users.GetByID(context.Background(), id)
	require.NoError(t, err)
	return *user
}

func (f *fixture) activeAdmins(t *testing.T) int {
	t.Helper()
	ids, err := f.store.Repos().Users.LockActiveAdmins(context.Background())
	require.NoError(t, err)
	return len(ids)
}
