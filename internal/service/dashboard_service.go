package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/request-service/internal/domain"
	"github.com/spec-kit/request-service/internal/repository"
	apperrors "github.com/spec-kit/request-service/pkg/util/errorutil"
)

const (
	dashboardFeedSize = 5
	unassignedLabel   = "Unassigned"
)

// StatusCounts holds one number per status.
type StatusCounts struct {
	Open       int
	InProgress int
	Resolved   int
	Closed     int
}

func statusCountsFrom(counts map[domain.StatusID]int) StatusCounts {
	return StatusCounts{
		Open:       counts[domain.StatusOpen],
		InProgress: counts[domain.StatusInProgress],
		Resolved:   counts[domain.StatusResolved],
		Closed:     counts[domain.StatusClosed],
	}
}

// SummaryWithTrends is the per-status count plus day-over-day deltas of
// requests created today versus yesterday.
type SummaryWithTrends struct {
	Counts StatusCounts
	Trends StatusCounts
}

// PriorityBreakdown counts requests per priority.
type PriorityBreakdown struct {
	Low    int
	Normal int
	High   int
}

// ActivityItem is one line of the recent activity feed.
type ActivityItem struct {
	RequestID int64
	Status    domain.StatusID
	Message   string
	Time      string
	CreatedAt time.Time
}

// HighPriorityItem is one open high-priority request.
type HighPriorityItem struct {
	RequestID    int64
	Title        string
	Status       domain.StatusID
	AssigneeName string
	Time         string
	CreatedAt    time.Time
}

// DashboardService computes read-only aggregates over requests. Every
// figure except the priority breakdown is scoped to what the caller may
// see: users see requests they created, technicians see requests assigned
// to them, admins see everything.
type DashboardService struct {
	repos  repository.Repos
	logger *zap.Logger
	now    Clock
}

// DashboardDependencies bundles collaborators for the dashboard service.
type DashboardDependencies struct {
	Repos  repository.Repos
	Logger *zap.Logger
	Clock  Clock
}

// NewDashboardService constructs the service.
func NewDashboardService(deps DashboardDependencies) *DashboardService {
	return &DashboardService{
		repos:  deps.Repos,
		logger: loggerOrNop(deps.Logger),
		now:    clockOrDefault(deps.Clock),
	}
}

// Summary counts requests per status and the created-today trend per status.
func (s *DashboardService) Summary(ctx context.Context, identity domain.Identity) (SummaryWithTrends, error) {
	scope, err := scopeFor(identity)
	if err != nil {
		return SummaryWithTrends{}, err
	}

	counts, err := s.repos.Requests.CountByStatus(ctx, scope)
	if err != nil {
		return SummaryWithTrends{}, apperrors.MapError(err)
	}

	todayStart, tomorrowStart := utcDay(s.now())
	yesterdayStart := todayStart.AddDate(0, 0, -1)

	today, err := s.repos.Requests.CountByStatus(ctx, withCreatedRange(scope, todayStart, tomorrowStart))
	if err != nil {
		return SummaryWithTrends{}, apperrors.MapError(err)
	}
	yesterday, err := s.repos.Requests.CountByStatus(ctx, withCreatedRange(scope, yesterdayStart, todayStart))
	if err != nil {
		return SummaryWithTrends{}, apperrors.MapError(err)
	}

	trends := make(map[domain.StatusID]int, len(domain.Statuses))
	for _, status := range domain.Statuses {
		trends[status] = today[status] - yesterday[status]
	}
	return SummaryWithTrends{Counts: statusCountsFrom(counts), Trends: statusCountsFrom(trends)}, nil
}

// PriorityBreakdown counts every request per priority regardless of caller.
func (s *DashboardService) PriorityBreakdown(ctx context.Context) (PriorityBreakdown, error) {
	counts, err := s.repos.Requests.CountByPriority(ctx, repository.RequestFilter{})
	if err != nil {
		return PriorityBreakdown{}, apperrors.MapError(err)
	}
	return PriorityBreakdown{
		Low:    counts[domain.PriorityLow],
		Normal: counts[domain.PriorityNormal],
		High:   counts[domain.PriorityHigh],
	}, nil
}

// ResolvedToday counts Resolved requests last updated on the current UTC day.
func (s *DashboardService) ResolvedToday(ctx context.Context, identity domain.Identity) (int, error) {
	scope, err := scopeFor(identity)
	if err != nil {
		return 0, err
	}
	start, end := utcDay(s.now())
	scope.StatusID = ptr(domain.StatusResolved)
	scope.UpdatedFrom = &start
	scope.UpdatedBefore = &end

	total, err := s.repos.Requests.Count(ctx, scope)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	return total, nil
}

// CreatedToday counts requests created on the current UTC day.
func (s *DashboardService) CreatedToday(ctx context.Context, identity domain.Identity) (int, error) {
	scope, err := scopeFor(identity)
	if err != nil {
		return 0, err
	}
	start, end := utcDay(s.now())

	total, err := s.repos.Requests.Count(ctx, withCreatedRange(scope, start, end))
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	return total, nil
}

// RecentActivity renders the most recently created requests as messages.
func (s *DashboardService) RecentActivity(ctx context.Context, identity domain.Identity) ([]ActivityItem, error) {
	scope, err := scopeFor(identity)
	if err != nil {
		return nil, err
	}
	scope.SortBy = repository.RequestSortCreatedAt
	scope.SortDir = domain.SortDesc
	scope.Limit = dashboardFeedSize

	requests, err := s.repos.Requests.List(ctx, scope)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	now := s.now()
	names := newNameCache(s.repos.Users)
	items := make([]ActivityItem, 0, len(requests))
	for _, request := range requests {
		message, err := activityMessage(ctx, names, request)
		if err != nil {
			return nil, err
		}
		items = append(items, ActivityItem{
			RequestID: request.ID,
			Status:    request.StatusID,
			Message:   message,
			Time:      RelativeTime(now, request.CreatedAt),
			CreatedAt: request.CreatedAt,
		})
	}
	return items, nil
}

// HighPriority lists the most recently created non-closed High requests.
func (s *DashboardService) HighPriority(ctx context.Context, identity domain.Identity) ([]HighPriorityItem, error) {
	scope, err := scopeFor(identity)
	if err != nil {
		return nil, err
	}
	scope.Priority = ptr(domain.PriorityHigh)
	scope.ExcludeStatusID = ptr(domain.StatusClosed)
	scope.SortBy = repository.RequestSortCreatedAt
	scope.SortDir = domain.SortDesc
	scope.Limit = dashboardFeedSize

	requests, err := s.repos.Requests.List(ctx, scope)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	now := s.now()
	names := newNameCache(s.repos.Users)
	items := make([]HighPriorityItem, 0, len(requests))
	for _, request := range requests {
		assignee := unassignedLabel
		if request.TechnicianID != nil {
			if assignee, err = names.lookup(ctx, *request.TechnicianID); err != nil {
				return nil, err
			}
		}
		items = append(items, HighPriorityItem{
			RequestID:    request.ID,
			Title:        request.Title,
			Status:       request.StatusID,
			AssigneeName: assignee,
			Time:         RelativeTime(now, request.CreatedAt),
			CreatedAt:    request.CreatedAt,
		})
	}
	return items, nil
}

func activityMessage(ctx context.Context, names *nameCache, request domain.Request) (string, error) {
	switch request.StatusID {
	case domain.StatusOpen:
		creator, err := names.lookup(ctx, request.CreatedByID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("New ticket #%d created by %s", request.ID, creator), nil
	case domain.StatusInProgress:
		technician := unassignedLabel
		if request.TechnicianID != nil {
			var err error
			if technician, err = names.lookup(ctx, *request.TechnicianID); err != nil {
				return "", err
			}
		}
		return fmt.Sprintf("Ticket #%d assigned to %s", request.ID, technician), nil
	case domain.StatusResolved:
		return fmt.Sprintf("Ticket #%d resolved", request.ID), nil
	case domain.StatusClosed:
		return fmt.Sprintf("Ticket #%d closed", request.ID), nil
	default:
		return fmt.Sprintf("Ticket #%d updated", request.ID), nil
	}
}

// scopeFor returns the base filter the caller's role allows.
func scopeFor(identity domain.Identity) (repository.RequestFilter, error) {
	id := identity.UserID
	switch identity.Role {
	case domain.RoleAdmin:
		return repository.RequestFilter{}, nil
	case domain.RoleTechnician:
		return repository.RequestFilter{TechnicianID: &id}, nil
	case domain.RoleUser:
		return repository.RequestFilter{CreatedByID: &id}, nil
	default:
		return repository.RequestFilter{}, apperrors.NewForbidden("unknown role")
	}
}

func withCreatedRange(filter repository.RequestFilter, from, before time.Time) repository.RequestFilter {
	filter.CreatedFrom = &from
	filter.CreatedBefore = &before
	return filter
}

// utcDay returns the start of t's UTC calendar day and of the next one.
func utcDay(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

type nameCache struct {
	users repository.UserRepository
	names map[int64]string
}

func newNameCache(users repository.UserRepository) *nameCache {
	return &nameCache{users: users, names: make(map[int64]string)}
}

func (c *nameCache) lookup(ctx context.Context, id int64) (string, error) {
	if name, ok := c.names[id]; ok {
		return name, nil
	}
	user, err := c.users.GetByID(ctx, id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		c.names[id] = fmt.Sprintf("user #%d", id)
	case err != nil:
		return "", apperrors.MapError(err)
	default:
		c.names[id] = user.FullName()
	}
	return c.names[id], nil
}
