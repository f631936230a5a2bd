package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/request-service/internal/domain"
	"github.com/spec-kit/request-service/internal/events"
	apperrors "github.com/spec-kit/request-service/pkg/util/errorutil"
)

func TestCreateRequestDefaults(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AssignmentPolicy{})
	owner := f.addUser(t, "owner", domain.RoleUser, true)

	created, err := f.requests.Create(ctx, CreateRequestInput{Title: "  VPN drops  ", Description: " every hour "}, owner)
	require.NoError(t, err)

	assert.Equal(t, "VPN drops", created.Title)
	assert.Equal(t, "every hour", created.Description)
	assert.Equal(t, domain.PriorityNormal, created.Priority)
	assert.Equal(t, domain.StatusOpen, created.StatusID)
	assert.Equal(t, owner.UserID, created.CreatedByID)
	assert.Equal(t, fixedNow, created.CreatedAt)
	assert.Nil(t, created.TechnicianID)
	assert.Nil(t, created.UpdatedAt)
	assert.Equal(t, []events.EventType{events.EventRequestCreated}, f.recorder.types())

	due := fixedNow.Add(time.Hour)
	created, err = f.requests.Create(ctx, CreateRequestInput{Title: "Laptop", Description: "Battery", Priority: "low", DueDate: &due}, owner)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityLow, created.Priority)
	require.NotNil(t, created.DueDate)
	assert.True(t, due.Equal(*created.DueDate))
}

func TestCreateRequestValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AssignmentPolicy{})
	owner := f.addUser(t, "owner", domain.RoleUser, true)
	retired := f.addUser(t, "retired", domain.RoleUser, false)
	past := fixedNow.Add(-time.Second)

	_, err := f.requests.Create(ctx, CreateRequestInput{Title: " ", Description: "", Priority: "urgent", DueDate: &past}, owner)
	require.True(t, apperrors.HasCode(err, apperrors.CodeValidation), "%v", err)
	details := apperrors.ToDomainError(err).Details
	for _, field := range []string{"title", "description", "priority", "due_date"} {
		assert.Contains(t, details, field)
	}

	_, err = f.requests.Create(ctx, CreateRequestInput{Title: "Desk", Description: "Wobbly"}, retired)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden), "%v", err)

	page, err := f.requests.List(ctx, RequestQuery{IncludeClosed: true})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Empty(t, f.recorder.types())
}

func TestGetRequestResolvesParticipants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AssignmentPolicy{})
	owner := f.addUser(t, "owner", domain.RoleUser, true)
	tech := f.addUser(t, "tech", domain.RoleTechnician, true)
	request := f.addRequest(t, owner, withTechnician(tech.UserID))

	details, err := f.requests.Get(ctx, request.ID)
	require.NoError(t, err)
	require.NotNil(t, details.CreatedBy)
	require.NotNil(t, details.Technician)
	assert.Equal(t, owner.UserID, details.CreatedBy.ID)
	assert.Equal(t, tech.UserID, details.Technician.ID)

	_, err = f.requests.Get(ctx, 404)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound), "%v", err)
}

func TestListRequests(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AssignmentPolicy{})
	owner := f.addUser(t, "owner", domain.RoleUser, true)
	other := f.addUser(t, "other", domain.RoleUser, true)

	for i := 0; i < 12; i++ {
		f.addRequest(t, owner, createdAt(fixedNow.Add(-time.Duration(i)*time.Minute)))
	}
	f.addRequest(t, other, withStatus(domain.StatusClosed))

	page, err := f.requests.List(ctx, RequestQuery{})
	require.NoError(t, err)
	assert.Equal(t, 12, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, DefaultRequestPageSize, page.PageSize)
	require.Len(t, page.Data, 10)
	assert.True(t, page.Data[0].CreatedAt.After(page.Data[1].CreatedAt))

	page, err = f.requests.List(ctx, RequestQuery{Page: domain.PageRequest{Page: 2, PageSize: 10}})
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)

	page, err = f.requests.List(ctx, RequestQuery{IncludeClosed: true, Page: domain.PageRequest{PageSize: 1000}})
	require.NoError(t, err)
	assert.Equal(t, 13, page.Total)
	assert.Equal(t, domain.MaxRequestPageSize, page.PageSize)

	closed := domain.StatusClosed
	page, err = f.requests.List(ctx, RequestQuery{StatusID: &closed})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	mine := owner.UserID
	page, err = f.requests.List(ctx, RequestQuery{CreatedByID: &mine, Page: domain.PageRequest{Page: 9}})
	require.NoError(t, err)
	assert.Equal(t, 12, page.Total)
	assert.NotNil(t, page.Data)
	assert.Empty(t, page.Data)
}

func TestRequestHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AssignmentPolicy{})
	owner := f.addUser(t, "owner", domain.RoleUser, true)
	admin := f.addUser(t, "admin", domain.RoleAdmin, true)
	tech := f.addUser(t, "tech", domain.RoleTechnician, true)
	request := f.addRequest(t, owner)

	entries, err := f.requests.History(ctx, request.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, f.workflow.AssignTechnician(ctx, request.ID, tech.UserID, admin))
	require.NoError(t, f.workflow.ChangeStatus(ctx, request.ID, domain.StatusInProgress, tech))

	entries, err = f.requests.History(ctx, request.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, admin.UserID, entries[0].ChangedByID)
	assert.Equal(t, domain.ChangeTypeTechnician, entries[0].ChangeType)
	assert.Equal(t, tech.UserID, entries[1].ChangedByID)
	assert.Equal(t, domain.ChangeTypeStatus, entries[1].ChangeType)

	_, err = f.requests.History(ctx, 404)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound), "%v", err)
}

func TestRequestVisibilityForPlainUsers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AssignmentPolicy{})
	alice := f.addUser(t, "alice", domain.RoleUser, true)
	bob := f.addUser(t, "bob", domain.RoleUser, true)
	tech := f.addUser(t, "tech", domain.RoleTechnician, true)
	request := f.addRequest(t, alice)
	f.addRequest(t, bob)

	_, err := f.requests.GetFor(ctx, request.ID, alice)
	require.NoError(t, err)
	_, err = f.requests.GetFor(ctx, request.ID, tech)
	require.NoError(t, err)
	_, err = f.requests.GetFor(ctx, request.ID, bob)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden), "%v", err)

	page, err := f.requests.List(ctx, RequestQuery{}.ScopedTo(bob))
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = f.requests.List(ctx, RequestQuery{}.ScopedTo(tech))
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
}
