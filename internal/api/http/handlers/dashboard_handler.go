package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/request-service/internal/api/dto"
	"github.com/spec-kit/request-service/internal/service"
)

// DashboardHandler serves the dashboard aggregates.
type DashboardHandler struct {
	dashboard *service.DashboardService
}

// NewDashboardHandler constructs handler.
func NewDashboardHandler(dashboard *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

// Summary GET /dashboard/summary.
func (h *DashboardHandler) Summary(c *fiber.Ctx) error {
	identity, err := identityOf(c)
	if err != nil {
		return err
	}
	summary, err := h.dashboard.Summary(c.UserContext(), identity)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SummaryResponse{
		Counts: statusCounts(summary.Counts),
		Trends: statusCounts(summary.Trends),
	}})
}

// PriorityBreakdown GET /dashboard/priority-breakdown.
func (h *DashboardHandler) PriorityBreakdown(c *fiber.Ctx) error {
	breakdown, err := h.dashboard.PriorityBreakdown(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.PriorityBreakdownResponse{
		Low:    breakdown.Low,
		Normal: breakdown.Normal,
		High:   breakdown.High,
	}})
}

// ResolvedToday GET /dashboard/resolved-today.
func (h *DashboardHandler) ResolvedToday(c *fiber.Ctx) error {
	identity, err := identityOf(c)
	if err != nil {
		return err
	}
	count, err := h.dashboard.ResolvedToday(c.UserContext(), identity)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.CountResponse{Count: count}})
}

// CreatedToday GET /dashboard/created-today.
func (h *DashboardHandler) CreatedToday(c *fiber.Ctx) error {
	identity, err := identityOf(c)
	if err != nil {
		return err
	}
	count, err := h.dashboard.CreatedToday(c.UserContext(), identity)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.CountResponse{Count: count}})
}

// RecentActivity GET /dashboard/recent-activity.
func (h *DashboardHandler) RecentActivity(c *fiber.Ctx) error {
	identity, err := identityOf(c)
	if err != nil {
		return err
	}
	activity, err := h.dashboard.RecentActivity(c.UserContext(), identity)
	if err != nil {
		return err
	}
	items := make([]dto.ActivityItemResponse, 0, len(activity))
	for _, item := range activity {
		items = append(items, dto.ActivityItemResponse{
			RequestID: item.RequestID,
			Status:    item.Status.String(),
			Message:   item.Message,
			Time:      item.Time,
			CreatedAt: item.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// HighPriority GET /dashboard/high-priority.
func (h *DashboardHandler) HighPriority(c *fiber.Ctx) error {
	identity, err := identityOf(c)
	if err != nil {
		return err
	}
	high, err := h.dashboard.HighPriority(c.UserContext(), identity)
	if err != nil {
		return err
	}
	items := make([]dto.HighPriorityItemResponse, 0, len(high))
	for _, item := range high {
		items = append(items, dto.HighPriorityItemResponse{
			RequestID:    item.RequestID,
			Title:        item.Title,
			Status:       item.Status.String(),
			AssigneeName: item.AssigneeName,
			Time:         item.Time,
			CreatedAt:    item.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

func statusCounts(counts service.StatusCounts) dto.StatusCountsResponse {
	return dto.StatusCountsResponse{
		Open:       counts.Open,
		InProgress: counts.InProgress,
		Resolved:   counts.Resolved,
		Closed:     counts.Closed,
	}
}
