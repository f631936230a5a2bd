package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/request-service/internal/domain"
	"github.com/spec-kit/request-service/internal/events"
	apperrors "github.com/spec-kit/request-service/pkg/util/errorutil"
)

var allRoles = []domain.Role{domain.RoleUser, domain.RoleTechnician, domain.RoleAdmin}

// permitted is the transition table written out longhand.
func permitted(current, target domain.StatusID, role domain.Role) bool {
	switch {
	case current == domain.StatusOpen && target == domain.StatusInProgress:
		return role == domain.RoleAdmin || role == domain.RoleTechnician
	case current == domain.StatusInProgress && target == domain.StatusResolved:
		return role == domain.RoleAdmin || role == domain.RoleTechnician
	case current == domain.StatusResolved && target == domain.StatusClosed:
		return role == domain.RoleAdmin
	default:
		return false
	}
}

func TestCheckTransitionTable(t *testing.T) {
	for _, current := range domain.Statuses {
		for _, target := range domain.Statuses {
			for _, role := range allRoles {
				for _, hasTech := range []bool{true, false} {
					err := checkTransition(current, target, role, hasTech)
					want := permitted(current, target, role) && (hasTech || current != domain.StatusOpen)
					assert.Equal(t, want, err == nil, "%s -> %s as %s (technician=%v): %v", current, target, role, hasTech, err)
				}
			}
		}
	}
}

func TestCheckTransitionErrorCodes(t *testing.T) {
	tests := []struct {
		name    string
		current domain.StatusID
		target  domain.StatusID
		role    domain.Role
		hasTech bool
		code    string
	}{
		{"closed is terminal", domain.StatusClosed, domain.StatusOpen, domain.RoleAdmin, true, apperrors.CodeConflict},
		{"same status", domain.StatusInProgress, domain.StatusInProgress, domain.RoleAdmin, true, apperrors.CodeConflict},
		{"skip forward", domain.StatusOpen, domain.StatusResolved, domain.RoleAdmin, true, apperrors.CodeConflict},
		{"backward", domain.StatusResolved, domain.StatusInProgress, domain.RoleAdmin, true, apperrors.CodeConflict},
		{"user cannot progress", domain.StatusInProgress, domain.StatusResolved, domain.RoleUser, true, apperrors.CodeForbidden},
		{"technician cannot close", domain.StatusResolved, domain.StatusClosed, domain.RoleTechnician, true, apperrors.CodeForbidden},
		{"start needs technician", domain.StatusOpen, domain.StatusInProgress, domain.RoleAdmin, false, apperrors.CodeConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkTransition(tt.current, tt.target, tt.role, tt.hasTech)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestChangeStatusMatchesTableForEveryTriple(t *testing.T) {
	ctx := context.Background()
	for _, current := range domain.Statuses {
		for _, target := range domain.Statuses {
			for _, role := range allRoles {
				name := fmt.Sprintf("%s->%s/%s", current, target, role)
				t.Run(name, func(t *testing.T) {
					f := newFixture(t, AssignmentPolicy{})
					owner := f.addUser(t, "owner", domain.RoleUser, true)
					tech := f.addUser(t, "tech", domain.RoleTechnician, true)
					performer := f.addUser(t, "performer", role, true)
					request := f.addRequest(t, owner, withStatus(current), withTechnician(tech.UserID))

					err := f.workflow.ChangeStatus(ctx, request.ID, target, performer)

					stored := f.request(t, request.ID)
					if permitted(current, target, role) {
						require.NoError(t, err)
						assert.Equal(t, target, stored.StatusID)
						require.NotNil(t, stored.UpdatedAt)
						assert.Equal(t, fixedNow, *stored.UpdatedAt)
					} else {
						require.Error(t, err)
						assert.Equal(t, current, stored.StatusID)
						assert.Nil(t, stored.UpdatedAt)
					}
				})
			}
		}
	}
}

func TestChangeStatusRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AssignmentPolicy{})
	owner := f.addUser(t, "owner", domain.RoleUser, true)
	admin := f.addUser(t, "admin", domain.RoleAdmin, true)
	retired := f.addUser(t, "retired", domain.RoleAdmin, false)
	request := f.addRequest(t, owner)

	err := f.workflow.ChangeStatus(ctx, request.ID, domain.StatusInProgress, retired)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden), "inactive performer: %v", err)

	err = f.workflow.ChangeStatus(ctx, request.ID, domain.StatusInProgress, domain.Identity{UserID: 999, Role: domain.RoleAdmin})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden), "unknown performer: %v", err)

	err = f.workflow.ChangeStatus(ctx, request.ID, domain.StatusID(7), admin)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation), "unknown status: %v", err)

	err = f.workflow.ChangeStatus(ctx, 404, domain.StatusInProgress, admin)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound), "missing request: %v", err)

	err = f.workflow.ChangeStatus(ctx, request.ID, domain.StatusInProgress, admin)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict), "no technician: %v", err)

	assert.Equal(t, domain.StatusOpen, f.request(t, request.ID).StatusID)
	assert.Empty(t, f.recorder.types())
}

func TestRequestLifecycleScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AssignmentPolicy{})
	u17 := f.addUser(t, "u17", domain.RoleUser, true)
	a1 := f.addUser(t, "a1", domain.RoleAdmin, true)
	t5 := f.addUser(t, "t5", domain.RoleTechnician, true)

	created, err := f.requests.Create(ctx, CreateRequestInput{Title: "Monitor flickers", Description: "Since Monday"}, u17)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, created.StatusID)
	assert.Nil(t, created.TechnicianID)

	require.NoError(t, f.workflow.AssignTechnician(ctx, created.ID, t5.UserID, a1))
	assigned := f.request(t, created.ID)
	assert.Equal(t, domain.StatusOpen, assigned.StatusID)
	require.NotNil(t, assigned.TechnicianID)
	assert.Equal(t, t5.UserID, *assigned.TechnicianID)

	require.NoError(t, f.workflow.ChangeStatus(ctx, created.ID, domain.StatusInProgress, t5))
	require.NoError(t, f.workflow.ChangeStatus(ctx, created.ID, domain.StatusResolved, t5))

	err = f.workflow.ChangeStatus(ctx, created.ID, domain.StatusClosed, u17)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden), "creator cannot close: %v", err)
	assert.Equal(t, domain.StatusResolved, f.request(t, created.ID).StatusID)

	require.NoError(t, f.workflow.ChangeStatus(ctx, created.ID, domain.StatusClosed, a1))
	for _, target := range domain.Statuses {
		assert.Error(t, f.workflow.ChangeStatus(ctx, created.ID, target, a1))
	}
	assert.Equal(t, domain.StatusClosed, f.request(t, created.ID).StatusID)

	history, err := f.requests.History(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, domain.ChangeTypeTechnician, history[0].ChangeType)
	assert.Equal(t, map[string]any{"status": "Resolved"}, history[3].OldValue)
	assert.Equal(t, map[string]any{"status": "Closed"}, history[3].NewValue)

	assert.Equal(t, []events.EventType{
		events.EventRequestCreated,
		events.EventRequestTechnicianAssigned,
		events.EventRequestStatusChanged,
		events.EventRequestStatusChanged,
		events.EventRequestStatusChanged,
	}, f.recorder.types())
}

func TestClosedRequestIsAbsorbing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AssignmentPolicy{AutoAdvance: true})
	owner := f.addUser(t, "owner", domain.RoleUser, true)
	admin := f.addUser(t, "admin", domain.RoleAdmin, true)
	tech := f.addUser(t, "tech", domain.RoleTechnician, true)
	request := f.addRequest(t, owner, withStatus(domain.StatusClosed))
	before := f.request(t, request.ID)

	for _, target := range domain.Statuses {
		for _, performer := range []domain.Identity{owner, admin, tech} {
			assert.Error(t, f.workflow.ChangeStatus(ctx, request.ID, target, performer))
		}
	}

	err := f.workflow.AssignTechnician(ctx, request.ID, tech.UserID, admin)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict), "%v", err)

	title := "Reopened?"
	result, err := f.workflow.UpdateRequest(ctx, request.ID, RequestPatch{Title: &title}, admin)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden), "%v", err)
	assert.Equal(t, UpdateResultUnchanged, result)

	assert.Equal(t, before, f.request(t, request.ID))
}

func TestAssignTechnicianIsSingleShot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AssignmentPolicy{})
	owner := f.addUser(t, "owner", domain.RoleUser, true)
	admin := f.addUser(t, "admin", domain.RoleAdmin, true)
	first := f.addUser(t, "first", domain.RoleTechnician, true)
	second := f.addUser(t, "second", domain.RoleTechnician, true)
	inactive := f.addUser(t, "inactive", domain.RoleTechnician, false)
	request := f.addRequest(t, owner)

	require.NoError(t, f.workflow.AssignTechnician(ctx, request.ID, first.UserID, admin))

	attempts := []struct {
		candidate int64
		performer domain.Identity
	}{
		{second.UserID, admin},
		{first.UserID, admin},
		{inactive.UserID, admin},
		{owner.UserID, admin},
		{second.UserID, owner},
		{second.UserID, first},
		{9999, admin},
	}
	for _, attempt := range attempts {
		assert.Error(t, f.workflow.AssignTechnician(ctx, request.ID, attempt.candidate, attempt.performer))
	}

	stored := f.request(t, request.ID)
	require.NotNil(t, stored.TechnicianID)
	assert.Equal(t, first.UserID, *stored.TechnicianID)
}

func TestAssignTechnicianValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AssignmentPolicy{})
	owner := f.addUser(t, "owner", domain.RoleUser, true)
	admin := f.addUser(t, "admin", domain.RoleAdmin, true)
	tech := f.addUser(t, "tech", domain.RoleTechnician, true)
	idleTech := f.addUser(t, "idle", domain.RoleTechnician, false)
	otherAdmin := f.addUser(t, "other", domain.RoleAdmin, true)
	request := f.addRequest(t, owner)

	tests := []struct {
		name      string
		candidate int64
		performer domain.Identity
		requestID int64
		code      string
	}{
		{"performer not admin", tech.UserID, tech, request.ID, apperrors.CodeForbidden},
		{"request missing", tech.UserID, admin, 404, apperrors.CodeNotFound},
		{"candidate missing", 404, admin, request.ID, apperrors.CodeNotFound},
		{"candidate inactive", idleTech.UserID, admin, request.ID, apperrors.CodeValidation},
		{"candidate wrong role", otherAdmin.UserID, admin, request.ID, apperrors.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.workflow.AssignTechnician(ctx, tt.requestID, tt.candidate, tt.performer)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
		})
	}
	assert.Nil(t, f.request(t, request.ID).TechnicianID)
}

func TestAssignTechnicianAutoAdvancePolicy(t *testing.T) {
	ctx := context.Background()
	for _, autoAdvance := range []bool{false, true} {
		t.Run(fmt.Sprintf("auto_advance=%v", autoAdvance), func(t *testing.T) {
			f := newFixture(t, AssignmentPolicy{AutoAdvance: autoAdvance})
			owner := f.addUser(t, "owner", domain.RoleUser, true)
			admin := f.addUser(t, "admin", domain.RoleAdmin, true)
			tech := f.addUser(t, "tech", domain.RoleTechnician, true)
			open := f.addRequest(t, owner)
			inProgress := f.addRequest(t, owner, withStatus(domain.StatusInProgress))

			require.NoError(t, f.workflow.AssignTechnician(ctx, open.ID, tech.UserID, admin))
			require.NoError(t, f.workflow.AssignTechnician(ctx, inProgress.ID, tech.UserID, admin))

			want := domain.StatusOpen
			if autoAdvance {
				want = domain.StatusInProgress
			}
			assert.Equal(t, want, f.request(t, open.ID).StatusID)
			assert.Equal(t, domain.StatusInProgress, f.request(t, inProgress.ID).StatusID)
		})
	}
}

func TestUpdateRequestOutcomes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AssignmentPolicy{})
	owner := f.addUser(t, "owner", domain.RoleUser, true)
	stranger := f.addUser(t, "stranger", domain.RoleUser, true)
	tech := f.addUser(t, "tech", domain.RoleTechnician, true)
	admin := f.addUser(t, "admin", domain.RoleAdmin, true)
	request := f.addRequest(t, owner)

	sameTitle := request.Title
	result, err := f.workflow.UpdateRequest(ctx, request.ID, RequestPatch{Title: &sameTitle}, owner)
	require.NoError(t, err)
	assert.Equal(t, UpdateResultUnchanged, result)
	assert.Nil(t, f.request(t, request.ID).UpdatedAt)

	result, err = f.workflow.UpdateRequest(ctx, request.ID, RequestPatch{}, admin)
	require.NoError(t, err)
	assert.Equal(t, UpdateResultUnchanged, result)

	_, err = f.workflow.UpdateRequest(ctx, 404, RequestPatch{Title: &sameTitle}, owner)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound), "%v", err)

	for _, performer := range []domain.Identity{stranger, tech} {
		_, err = f.workflow.UpdateRequest(ctx, request.ID, RequestPatch{Title: &sameTitle}, performer)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden), "%v", err)
	}

	newTitle := "  Printer on fire  "
	priority := "HIGH"
	due := fixedNow.Add(48 * time.Hour)
	result, err = f.workflow.UpdateRequest(ctx, request.ID, RequestPatch{Title: &newTitle, Priority: &priority, DueDate: &due}, owner)
	require.NoError(t, err)
	assert.Equal(t, UpdateResultUpdated, result)

	stored := f.request(t, request.ID)
	assert.Equal(t, "Printer on fire", stored.Title)
	assert.Equal(t, domain.PriorityHigh, stored.Priority)
	require.NotNil(t, stored.DueDate)
	assert.True(t, due.Equal(*stored.DueDate))
	require.NotNil(t, stored.UpdatedAt)
	assert.Equal(t, fixedNow, *stored.UpdatedAt)

	description := "Smoke visible"
	result, err = f.workflow.UpdateRequest(ctx, request.ID, RequestPatch{Description: &description}, admin)
	require.NoError(t, err)
	assert.Equal(t, UpdateResultUpdated, result)

	history, err := f.store.Repos().History.ListByRequest(ctx, request.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Printer jammed", history[0].OldValue["title"])
	assert.Equal(t, "High", history[0].NewValue["priority"])
	assert.NotContains(t, history[0].NewValue, "description")
}

func TestUpdateRequestValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, AssignmentPolicy{})
	owner := f.addUser(t, "owner", domain.RoleUser, true)
	request := f.addRequest(t, owner)

	blank := "   "
	longTitle := strings.Repeat("é", MaxTitleLength+1)
	badPriority := "urgent"
	past := fixedNow.Add(-time.Minute)
	now := fixedNow

	tests := []struct {
		name  string
		patch RequestPatch
		field string
	}{
		{"blank title", RequestPatch{Title: &blank}, "title"},
		{"long title", RequestPatch{Title: &longTitle}, "title"},
		{"blank description", RequestPatch{Description: &blank}, "description"},
		{"unknown priority", RequestPatch{Priority: &badPriority}, "priority"},
		{"past due date", RequestPatch{DueDate: &past}, "due_date"},
		{"due date now", RequestPatch{DueDate: &now}, "due_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.workflow.UpdateRequest(ctx, request.ID, tt.patch, owner)
			require.True(t, apperrors.HasCode(err, apperrors.CodeValidation), "%v", err)
			assert.Contains(t, apperrors.ToDomainError(err).Details, tt.field)
		})
	}
	assert.Equal(t, request, f.request(t, request.ID))
}

func TestWorkflowRollsBackOnCancelledContext(t *testing.T) {
	f := newFixture(t, AssignmentPolicy{})
	owner := f.addUser(t, "owner", domain.RoleUser, true)
	admin := f.addUser(t, "admin", domain.RoleAdmin, true)
	tech := f.addUser(t, "tech", domain.RoleTechnician, true)
	request := f.addRequest(t, owner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.workflow.AssignTechnician(ctx, request.ID, tech.UserID, admin)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, f.request(t, request.ID).TechnicianID)

	entries, err := f.store.Repos().History.ListByRequest(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, f.recorder.types())
}
