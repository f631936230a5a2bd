package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/request-service/internal/domain"
	"github.com/spec-kit/request-service/internal/repository"
	"github.com/spec-kit/request-service/pkg/util/errorutil"
)

var base = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func TestRunRollsBackOnError(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	errBoom := errors.New("boom")
	err := store.Run(ctx, func(repos repository.Repos) error {
		require.NoError(t, repos.Requests.Create(ctx, &domain.Request{Title: "a", StatusID: domain.StatusOpen, CreatedAt: base}))
		require.NoError(t, repos.Users.Create(ctx, &domain.User{Email: "a@example.com", Role: domain.RoleUser, Active: true}))
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	total, err := store.Repos().Requests.Count(ctx, repository.RequestFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)

	_, err = store.Repos().Users.GetByEmail(ctx, "a@example.com")
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestRunCommits(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	var id int64
	err := store.Run(ctx, func(repos repository.Repos) error {
		request := &domain.Request{Title: "printer", StatusID: domain.StatusOpen, CreatedAt: base}
		if err := repos.Requests.Create(ctx, request); err != nil {
			return err
		}
		id = request.ID
		return nil
	})
	require.NoError(t, err)

	got, err := store.Repos().Requests.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "printer", got.Title)
}

func TestRunAbortsOnCancelledContext(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())

	err := store.Run(ctx, func(repos repository.Repos) error {
		require.NoError(t, repos.Requests.Create(ctx, &domain.Request{Title: "x", CreatedAt: base}))
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)

	total, err := store.Repos().Requests.Count(context.Background(), repository.RequestFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestReadsReturnCopies(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	repos := store.Repos()

	request := &domain.Request{Title: "keep", CreatedAt: base}
	require.NoError(t, repos.Requests.Create(ctx, request))

	got, err := repos.Requests.GetByID(ctx, request.ID)
	require.NoError(t, err)
	got.Title = "changed"
	techID := int64(9)
	got.TechnicianID = &techID

	again, err := repos.Requests.GetByID(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, "keep", again.Title)
	assert.Nil(t, again.TechnicianID)
}

func TestUpdateMissingRow(t *testing.T) {
	store := NewStore()
	err := store.Repos().Requests.Update(context.Background(), &domain.Request{ID: 42})
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestDuplicateEmailIsUniqueViolation(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	users := store.Repos().Users

	require.NoError(t, users.Create(ctx, &domain.User{Email: "dup@example.com", Role: domain.RoleUser}))
	err := users.Create(ctx, &domain.User{Email: "dup@example.com", Role: domain.RoleUser})
	require.Error(t, err)
	assert.True(t, errorutil.IsUniqueViolation(err))
	assert.True(t, errorutil.HasCode(errorutil.MapError(err), errorutil.CodeConflict))
}

func TestRequestListFilterSortPage(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	repos := store.Repos()

	techID := int64(5)
	seed := []domain.Request{
		{Title: "Broken printer", Description: "tray jam", Priority: domain.PriorityHigh, StatusID: domain.StatusOpen, CreatedByID: 1, CreatedAt: base},
		{Title: "VPN", Description: "cannot connect to printer share", Priority: domain.PriorityLow, StatusID: domain.StatusInProgress, CreatedByID: 2, TechnicianID: &techID, CreatedAt: base.Add(time.Hour)},
		{Title: "Laptop", Description: "battery", Priority: domain.PriorityNormal, StatusID: domain.StatusClosed, CreatedByID: 1, CreatedAt: base.Add(2 * time.Hour)},
	}
	for i := range seed {
		require.NoError(t, repos.Requests.Create(ctx, &seed[i]))
	}

	search := "PRINTER"
	list, err := repos.Requests.List(ctx, repository.RequestFilter{SearchTerm: &search})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "VPN", list[0].Title, "default order is newest first")

	list, err = repos.Requests.List(ctx, repository.RequestFilter{SortBy: repository.RequestSortTitle, SortDir: domain.SortAsc, Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Broken printer", list[0].Title)
	assert.Equal(t, "Laptop", list[1].Title)

	list, err = repos.Requests.List(ctx, repository.RequestFilter{TechnicianID: &techID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "VPN", list[0].Title)

	closed := domain.StatusClosed
	total, err := repos.Requests.Count(ctx, repository.RequestFilter{ExcludeStatusID: &closed})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	from := base.Add(30 * time.Minute)
	before := base.Add(2 * time.Hour)
	total, err = repos.Requests.Count(ctx, repository.RequestFilter{CreatedFrom: &from, CreatedBefore: &before})
	require.NoError(t, err)
	assert.Equal(t, 1, total, "created range is half-open")

	byPriority, err := repos.Requests.CountByPriority(ctx, repository.RequestFilter{})
	require.NoError(t, err)
	assert.Equal(t, map[domain.RequestPriority]int{domain.PriorityLow: 1, domain.PriorityNormal: 1, domain.PriorityHigh: 1}, byPriority)

	creator := int64(1)
	byStatus, err := repos.Requests.CountByStatus(ctx, repository.RequestFilter{CreatedByID: &creator})
	require.NoError(t, err)
	assert.Equal(t, map[domain.StatusID]int{domain.StatusOpen: 1, domain.StatusClosed: 1}, byStatus)
}

func TestUserListAndLockActiveAdmins(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	users := store.Repos().Users

	seed := []domain.User{
		{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Role: domain.RoleAdmin, Active: true, CreatedAt: base},
		{FirstName: "Alan", LastName: "Turing", Email: "alan@example.com", Role: domain.RoleAdmin, Active: false, CreatedAt: base.Add(time.Minute)},
		{FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com", Role: domain.RoleTechnician, Active: true, CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range seed {
		require.NoError(t, users.Create(ctx, &seed[i]))
	}

	ids, err := users.LockActiveAdmins(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{seed[0].ID}, ids)

	prefix := "a"
	list, err := users.List(ctx, repository.UserFilter{SearchPrefix: &prefix, SortBy: repository.UserSortFirstName, SortDir: domain.SortAsc})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Ada", list[0].FirstName)
	assert.Equal(t, "Alan", list[1].FirstName)

	tech := domain.RoleTechnician
	active := true
	total, err := users.Count(ctx, repository.UserFilter{Role: &tech, Active: &active})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}
