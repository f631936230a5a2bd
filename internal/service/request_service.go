package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/request-service/internal/domain"
	"github.com/spec-kit/request-service/internal/events"
	"github.com/spec-kit/request-service/internal/repository"
	apperrors "github.com/spec-kit/request-service/pkg/util/errorutil"
)

// DefaultRequestPageSize applies when a listing omits the page size.
const DefaultRequestPageSize = 10

// RequestService covers request creation and the read side of requests.
type RequestService struct {
	tx         repository.TxRunner
	repos      repository.Repos
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        Clock
}

// RequestDependencies bundles collaborators for the request service.
type RequestDependencies struct {
	TxRunner   repository.TxRunner
	Repos      repository.Repos
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Clock      Clock
}

// CreateRequestInput describes a new request. Priority is optional and
// parsed case-insensitively.
type CreateRequestInput struct {
	Title       string
	Description string
	Priority    string
	DueDate     *time.Time
}

// RequestQuery filters a request listing. Closed requests are hidden unless
// IncludeClosed is set or StatusID asks for them.
type RequestQuery struct {
	Page          domain.PageRequest
	StatusID      *domain.StatusID
	TechnicianID  *int64
	CreatedByID   *int64
	Search        *string
	CreatedFrom   *time.Time
	CreatedBefore *time.Time
	IncludeClosed bool
}

// RequestDetails is a request with its creator and technician resolved.
type RequestDetails struct {
	Request    domain.Request
	CreatedBy  *domain.User
	Technician *domain.User
}

// NewRequestService constructs the service.
func NewRequestService(deps RequestDependencies) *RequestService {
	return &RequestService{
		tx:         deps.TxRunner,
		repos:      deps.Repos,
		dispatcher: deps.Dispatcher,
		logger:     loggerOrNop(deps.Logger),
		now:        clockOrDefault(deps.Clock),
	}
}

// Create stores a new Open request owned by the performer.
func (s *RequestService) Create(ctx context.Context, input CreateRequestInput, performer domain.Identity) (*domain.Request, error) {
	now := s.now()

	request, err := newRequest(input, now)
	if err != nil {
		return nil, err
	}

	err = s.tx.Run(ctx, func(repos repository.Repos) error {
		actor, err := activePerformer(ctx, repos.Users, performer)
		if err != nil {
			return err
		}
		request.CreatedByID = actor.ID
		return apperrors.MapError(repos.Requests.Create(ctx, request))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("request created", zap.Int64("request_id", request.ID), zap.Int64("created_by", request.CreatedByID))
	publish(ctx, s.dispatcher, events.Event{
		Type:      events.EventRequestCreated,
		SubjectID: request.ID,
		Actor:     events.NewActor(performer),
		Payload:   events.RequestCreatedPayload{Title: request.Title, Priority: request.Priority.String()},
	}, now)
	return request, nil
}

func newRequest(input CreateRequestInput, now time.Time) (*domain.Request, error) {
	problems := map[string]any{}

	title := strings.TrimSpace(input.Title)
	if msg := titleProblem(title); msg != "" {
		problems["title"] = msg
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		problems["description"] = "must not be empty"
	}
	priority := domain.PriorityNormal
	if strings.TrimSpace(input.Priority) != "" {
		parsed, ok := domain.ParsePriority(input.Priority)
		if !ok {
			problems["priority"] = "must be Low, Normal or High"
		}
		priority = parsed
	}
	var dueDate *time.Time
	if input.DueDate != nil {
		if !input.DueDate.After(now) {
			problems["due_date"] = "must be in the future"
		}
		dueDate = ptr(input.DueDate.UTC())
	}
	if len(problems) > 0 {
		return nil, apperrors.NewValidationError("invalid request", problems)
	}

	return &domain.Request{
		Title:       title,
		Description: description,
		Priority:    priority,
		StatusID:    domain.StatusOpen,
		DueDate:     dueDate,
		CreatedAt:   now,
	}, nil
}

// Get returns one request with its participants.
func (s *RequestService) Get(ctx context.Context, id int64) (*RequestDetails, error) {
	request, err := s.repos.Requests.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "request", id)
	}

	details := &RequestDetails{Request: *request}
	if details.CreatedBy, err = s.optionalUser(ctx, &request.CreatedByID); err != nil {
		return nil, err
	}
	if details.Technician, err = s.optionalUser(ctx, request.TechnicianID); err != nil {
		return nil, err
	}
	return details, nil
}

// GetFor is Get restricted to what identity may see: plain users only see
// requests they created.
func (s *RequestService) GetFor(ctx context.Context, id int64, identity domain.Identity) (*RequestDetails, error) {
	details, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if identity.Role == domain.RoleUser && details.Request.CreatedByID != identity.UserID {
		return nil, apperrors.NewForbidden("request belongs to another user")
	}
	return details, nil
}

// ScopedTo narrows q so a plain user lists only the requests they created.
func (q RequestQuery) ScopedTo(identity domain.Identity) RequestQuery {
	if identity.Role == domain.RoleUser {
		id := identity.UserID
		q.CreatedByID = &id
	}
	return q
}

func (s *RequestService) optionalUser(ctx context.Context, id *int64) (*domain.User, error) {
	if id == nil {
		return nil, nil
	}
	user, err := s.repos.Users.GetByID(ctx, *id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

// List returns a page of requests matching query.
func (s *RequestService) List(ctx context.Context, query RequestQuery) (domain.PagedResult[domain.Request], error) {
	page := query.Page.Normalize(domain.MaxRequestPageSize, DefaultRequestPageSize, repository.RequestSortFields)

	filter := repository.RequestFilter{
		StatusID:      query.StatusID,
		TechnicianID:  query.TechnicianID,
		CreatedByID:   query.CreatedByID,
		SearchTerm:    query.Search,
		CreatedFrom:   query.CreatedFrom,
		CreatedBefore: query.CreatedBefore,
		SortBy:        page.SortBy,
		SortDir:       page.SortDir,
		Limit:         page.PageSize,
		Offset:        page.Offset(),
	}
	if !query.IncludeClosed && query.StatusID == nil {
		filter.ExcludeStatusID = ptr(domain.StatusClosed)
	}

	total, err := s.repos.Requests.Count(ctx, filter)
	if err != nil {
		return domain.PagedResult[domain.Request]{}, apperrors.MapError(err)
	}
	items, err := s.repos.Requests.List(ctx, filter)
	if err != nil {
		return domain.PagedResult[domain.Request]{}, apperrors.MapError(err)
	}
	if items == nil {
		items = []domain.Request{}
	}
	return domain.PagedResult[domain.Request]{Data: items, Total: total, Page: page.Page, PageSize: page.PageSize}, nil
}

// History returns the audit trail of a request, oldest first.
func (s *RequestService) History(ctx context.Context, id int64) ([]domain.RequestHistory, error) {
	if _, err := s.repos.Requests.GetByID(ctx, id); err != nil {
		return nil, notFoundOr(err, "request", id)
	}
	entries, err := s.repos.History.ListByRequest(ctx, id)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}
