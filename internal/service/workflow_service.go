package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spec-kit/request-service/internal/domain"
	"github.com/spec-kit/request-service/internal/events"
	"github.com/spec-kit/request-service/internal/repository"
	apperrors "github.com/spec-kit/request-service/pkg/util/errorutil"
)

// MaxTitleLength bounds request titles, counted in runes.
const MaxTitleLength = 200

// AssignmentPolicy controls side effects of technician assignment.
type AssignmentPolicy struct {
	// AutoAdvance moves an Open request to InProgress in the same write.
	AutoAdvance bool
}

// UpdateResult distinguishes an applied update from a no-op.
type UpdateResult int

const (
	UpdateResultUnchanged UpdateResult = iota
	UpdateResultUpdated
)

func (r UpdateResult) String() string {
	if r == UpdateResultUpdated {
		return "updated"
	}
	return "unchanged"
}

// RequestPatch carries the optional fields of a partial update. Nil means absent.
type RequestPatch struct {
	Title       *string
	Description *string
	Priority    *string
	DueDate     *time.Time
}

// WorkflowService owns the request status machine, technician assignment
// and partial updates. Every operation runs in one transaction with the
// request row locked.
type WorkflowService struct {
	tx         repository.TxRunner
	dispatcher events.Dispatcher
	policy     AssignmentPolicy
	logger     *zap.Logger
	now        Clock
}

// WorkflowDependencies bundles collaborators for the workflow service.
type WorkflowDependencies struct {
	TxRunner   repository.TxRunner
	Dispatcher events.Dispatcher
	Policy     AssignmentPolicy
	Logger     *zap.Logger
	Clock      Clock
}

// NewWorkflowService constructs the service.
func NewWorkflowService(deps WorkflowDependencies) *WorkflowService {
	return &WorkflowService{
		tx:         deps.TxRunner,
		dispatcher: deps.Dispatcher,
		policy:     deps.Policy,
		logger:     loggerOrNop(deps.Logger),
		now:        clockOrDefault(deps.Clock),
	}
}

// ChangeStatus moves a request one step forward along the lifecycle.
func (s *WorkflowService) ChangeStatus(ctx context.Context, requestID int64, target domain.StatusID, performer domain.Identity) error {
	now := s.now()
	var event events.Event

	err := s.tx.Run(ctx, func(repos repository.Repos) error {
		actor, err := activePerformer(ctx, repos.Users, performer)
		if err != nil {
			return err
		}
		if !target.Valid() {
			return apperrors.NewValidationError("unknown status", map[string]any{"status_id": int(target)})
		}

		request, err := repos.Requests.GetByIDForUpdate(ctx, requestID)
		if err != nil {
			return notFoundOr(err, "request", requestID)
		}
		if err := checkTransition(request.StatusID, target, actor.Role, request.HasTechnician()); err != nil {
			return err
		}

		previous := request.StatusID
		request.StatusID = target
		request.UpdatedAt = &now
		if err := repos.Requests.Update(ctx, request); err != nil {
			return notFoundOr(err, "request", requestID)
		}
		if err := repos.History.Create(ctx, &domain.RequestHistory{
			RequestID:   request.ID,
			ChangedByID: actor.ID,
			ChangeType:  domain.ChangeTypeStatus,
			OldValue:    map[string]any{"status": previous.String()},
			NewValue:    map[string]any{"status": target.String()},
			CreatedAt:   now,
		}); err != nil {
			return apperrors.MapError(err)
		}

		event = events.Event{
			Type:      events.EventRequestStatusChanged,
			SubjectID: request.ID,
			Actor:     events.NewActor(domain.Identity{UserID: actor.ID, Role: actor.Role}),
			Payload:   events.RequestStatusChangedPayload{OldStatus: previous.String(), NewStatus: target.String()},
		}
		return nil
	})
	if err != nil {
		s.logRejected("change status", requestID, performer, err)
		return err
	}

	s.logger.Debug("request status changed",
		zap.Int64("request_id", requestID),
		zap.String("status", target.String()),
		zap.Int64("performer_id", performer.UserID))
	publish(ctx, s.dispatcher, event, now)
	return nil
}

// AssignTechnician sets the technician of a request. Assignment is
// single-shot: a request that already has a technician is never reassigned.
func (s *WorkflowService) AssignTechnician(ctx context.Context, requestID, technicianID int64, performer domain.Identity) error {
	now := s.now()
	var event events.Event

	err := s.tx.Run(ctx, func(repos repository.Repos) error {
		actor, err := activePerformer(ctx, repos.Users, performer)
		if err != nil {
			return err
		}
		if !actor.Role.CanAssignTechnicians() {
			return apperrors.NewForbidden("only admins may assign technicians")
		}

		request, err := repos.Requests.GetByIDForUpdate(ctx, requestID)
		if err != nil {
			return notFoundOr(err, "request", requestID)
		}
		if request.IsClosed() {
			return apperrors.NewConflict("request is closed", map[string]any{"request_id": requestID})
		}
		if request.HasTechnician() {
			return apperrors.NewConflict("technician already assigned", map[string]any{
				"request_id":    requestID,
				"technician_id": *request.TechnicianID,
			})
		}

		technician, err := repos.Users.GetByID(ctx, technicianID)
		if err != nil {
			return notFoundOr(err, "technician", technicianID)
		}
		if !technician.Active || technician.Role != domain.RoleTechnician {
			return apperrors.NewValidationError("candidate is not an active technician", map[string]any{
				"technician_id": technicianID,
				"role":          technician.Role.String(),
				"active":        technician.Active,
			})
		}

		previous := request.StatusID
		request.TechnicianID = &technician.ID
		autoAdvanced := s.policy.AutoAdvance && request.StatusID == domain.StatusOpen
		if autoAdvanced {
			request.StatusID = domain.StatusInProgress
		}
		request.UpdatedAt = &now
		if err := repos.Requests.Update(ctx, request); err != nil {
			return notFoundOr(err, "request", requestID)
		}

		entry := &domain.RequestHistory{
			RequestID:   request.ID,
			ChangedByID: actor.ID,
			ChangeType:  domain.ChangeTypeTechnician,
			OldValue:    map[string]any{"technician_id": nil},
			NewValue:    map[string]any{"technician_id": technician.ID},
			CreatedAt:   now,
		}
		if autoAdvanced {
			entry.OldValue["status"] = previous.String()
			entry.NewValue["status"] = request.StatusID.String()
		}
		if err := repos.History.Create(ctx, entry); err != nil {
			return apperrors.MapError(err)
		}

		event = events.Event{
			Type:      events.EventRequestTechnicianAssigned,
			SubjectID: request.ID,
			Actor:     events.NewActor(domain.Identity{UserID: actor.ID, Role: actor.Role}),
			Payload: events.RequestTechnicianAssignedPayload{
				TechnicianID: technician.ID,
				AutoAdvanced: autoAdvanced,
				Status:       request.StatusID.String(),
			},
		}
		return nil
	})
	if err != nil {
		s.logRejected("assign technician", requestID, performer, err)
		return err
	}

	s.logger.Debug("technician assigned",
		zap.Int64("request_id", requestID),
		zap.Int64("technician_id", technicianID),
		zap.Bool("auto_advance", s.policy.AutoAdvance))
	publish(ctx, s.dispatcher, event, now)
	return nil
}

// UpdateRequest applies the present fields of patch that differ from the
// stored request. Only the creator or an admin may edit, and never once the
// request is closed.
func (s *WorkflowService) UpdateRequest(ctx context.Context, requestID int64, patch RequestPatch, performer domain.Identity) (UpdateResult, error) {
	now := s.now()
	result := UpdateResultUnchanged
	var event events.Event

	err := s.tx.Run(ctx, func(repos repository.Repos) error {
		actor, err := activePerformer(ctx, repos.Users, performer)
		if err != nil {
			return err
		}

		request, err := repos.Requests.GetByIDForUpdate(ctx, requestID)
		if err != nil {
			return notFoundOr(err, "request", requestID)
		}
		if request.IsClosed() {
			return apperrors.NewForbidden("closed requests cannot be edited")
		}
		if !actor.Role.CanEditAnyRequest() && request.CreatedByID != actor.ID {
			return apperrors.NewForbidden("only the creator or an admin may edit this request")
		}

		normalized, err := validatePatch(patch, now)
		if err != nil {
			return err
		}

		oldValues, newValues := applyPatch(request, normalized)
		if len(newValues) == 0 {
			return nil
		}

		request.UpdatedAt = &now
		if err := repos.Requests.Update(ctx, request); err != nil {
			return notFoundOr(err, "request", requestID)
		}
		if err := repos.History.Create(ctx, &domain.RequestHistory{
			RequestID:   request.ID,
			ChangedByID: actor.ID,
			ChangeType:  domain.ChangeTypeFields,
			OldValue:    oldValues,
			NewValue:    newValues,
			CreatedAt:   now,
		}); err != nil {
			return apperrors.MapError(err)
		}

		result = UpdateResultUpdated
		event = events.Event{
			Type:      events.EventRequestUpdated,
			SubjectID: request.ID,
			Actor:     events.NewActor(domain.Identity{UserID: actor.ID, Role: actor.Role}),
			Payload:   events.RequestUpdatedPayload{Fields: changedFields(newValues)},
		}
		return nil
	})
	if err != nil {
		s.logRejected("update request", requestID, performer, err)
		return UpdateResultUnchanged, err
	}

	if result == UpdateResultUpdated {
		publish(ctx, s.dispatcher, event, now)
	}
	return result, nil
}

type normalizedPatch struct {
	title       *string
	description *string
	priority    *domain.RequestPriority
	dueDate     *time.Time
}

func validatePatch(patch RequestPatch, now time.Time) (normalizedPatch, error) {
	var out normalizedPatch
	problems := map[string]any{}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if msg := titleProblem(title); msg != "" {
			problems["title"] = msg
		}
		out.title = &title
	}
	if patch.Description != nil {
		description := strings.TrimSpace(*patch.Description)
		if description == "" {
			problems["description"] = "must not be empty"
		}
		out.description = &description
	}
	if patch.Priority != nil {
		priority, ok := domain.ParsePriority(*patch.Priority)
		if !ok {
			problems["priority"] = "must be Low, Normal or High"
		}
		out.priority = &priority
	}
	if patch.DueDate != nil {
		if !patch.DueDate.After(now) {
			problems["due_date"] = "must be in the future"
		}
		due := patch.DueDate.UTC()
		out.dueDate = &due
	}

	if len(problems) > 0 {
		return normalizedPatch{}, apperrors.NewValidationError("invalid request fields", problems)
	}
	return out, nil
}

func titleProblem(title string) string {
	switch n := utf8.RuneCountInString(title); {
	case n == 0:
		return "must not be empty"
	case n > MaxTitleLength:
		return "must be at most 200 characters"
	default:
		return ""
	}
}

// applyPatch mutates request with the differing fields and returns the
// previous and new values of exactly those fields.
func applyPatch(request *domain.Request, patch normalizedPatch) (map[string]any, map[string]any) {
	oldValues := map[string]any{}
	newValues := map[string]any{}

	if patch.title != nil && *patch.title != request.Title {
		oldValues["title"], newValues["title"] = request.Title, *patch.title
		request.Title = *patch.title
	}
	if patch.description != nil && *patch.description != request.Description {
		oldValues["description"], newValues["description"] = request.Description, *patch.description
		request.Description = *patch.description
	}
	if patch.priority != nil && *patch.priority != request.Priority {
		oldValues["priority"], newValues["priority"] = request.Priority.String(), patch.priority.String()
		request.Priority = *patch.priority
	}
	if patch.dueDate != nil && (request.DueDate == nil || !request.DueDate.Equal(*patch.dueDate)) {
		var previous any
		if request.DueDate != nil {
			previous = *request.DueDate
		}
		oldValues["due_date"], newValues["due_date"] = previous, *patch.dueDate
		request.DueDate = patch.dueDate
	}
	return oldValues, newValues
}

func changedFields(values map[string]any) []string {
	order := []string{"title", "description", "priority", "due_date"}
	fields := make([]string, 0, len(values))
	for _, name := range order {
		if _, ok := values[name]; ok {
			fields = append(fields, name)
		}
	}
	return fields
}

func (s *WorkflowService) logRejected(op string, requestID int64, performer domain.Identity, err error) {
	fields := []zap.Field{
		zap.String("op", op),
		zap.Int64("request_id", requestID),
		zap.Int64("performer_id", performer.UserID),
		zap.Error(err),
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) && domainErr.Code != apperrors.CodeInternal {
		s.logger.Debug("workflow operation rejected", fields...)
		return
	}
	s.logger.Warn("workflow operation failed", fields...)
}
