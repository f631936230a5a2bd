package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/request-service/internal/api/dto"
	"github.com/spec-kit/request-service/internal/domain"
	"github.com/spec-kit/request-service/internal/service"
	apperrors "github.com/spec-kit/request-service/pkg/util/errorutil"
)

// RequestsHandler manages request endpoints.
type RequestsHandler struct {
	requests *service.RequestService
	workflow *service.WorkflowService
}

// NewRequestsHandler constructs handler.
func NewRequestsHandler(requests *service.RequestService, workflow *service.WorkflowService) *RequestsHandler {
	return &RequestsHandler{requests: requests, workflow: workflow}
}

// Create POST /requests.
func (h *RequestsHandler) Create(c *fiber.Ctx) error {
	identity, err := identityOf(c)
	if err != nil {
		return err
	}
	var req dto.CreateRequestRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	request, err := h.requests.Create(c.UserContext(), service.CreateRequestInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
	}, identity)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": requestResponse(request)})
}

// List GET /requests.
func (h *RequestsHandler) List(c *fiber.Ctx) error {
	identity, err := identityOf(c)
	if err != nil {
		return err
	}
	query, err := parseRequestQuery(c)
	if err != nil {
		return err
	}

	page, err := h.requests.List(c.UserContext(), query.ScopedTo(identity))
	if err != nil {
		return err
	}
	items := make([]dto.RequestResponse, 0, len(page.Data))
	for i := range page.Data {
		items = append(items, requestResponse(&page.Data[i]))
	}
	return c.JSON(domain.PagedResult[dto.RequestResponse]{Data: items, Total: page.Total, Page: page.Page, PageSize: page.PageSize})
}

// Get GET /requests/:id.
func (h *RequestsHandler) Get(c *fiber.Ctx) error {
	identity, err := identityOf(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}

	details, err := h.requests.GetFor(c.UserContext(), id, identity)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.RequestDetailResponse{
		RequestResponse: requestResponse(&details.Request),
		CreatedBy:       userSummary(details.CreatedBy),
		Technician:      userSummary(details.Technician),
	}})
}

// Update PATCH /requests/:id.
func (h *RequestsHandler) Update(c *fiber.Ctx) error {
	identity, err := identityOf(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req dto.UpdateRequestRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.workflow.UpdateRequest(c.UserContext(), id, service.RequestPatch{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
	}, identity)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.UpdateResultResponse{Result: result.String()}})
}

// AssignTechnician POST /requests/:id/assign-technician.
func (h *RequestsHandler) AssignTechnician(c *fiber.Ctx) error {
	identity, err := identityOf(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req dto.AssignTechnicianRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.TechnicianID <= 0 {
		return apperrors.NewValidationError("technician_id required", nil)
	}

	if err := h.workflow.AssignTechnician(c.UserContext(), id, req.TechnicianID, identity); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// ChangeStatus POST /requests/:id/change-status.
func (h *RequestsHandler) ChangeStatus(c *fiber.Ctx) error {
	identity, err := identityOf(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req dto.ChangeStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	if err := h.workflow.ChangeStatus(c.UserContext(), id, domain.StatusID(req.StatusID), identity); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// History GET /requests/:id/history.
func (h *RequestsHandler) History(c *fiber.Ctx) error {
	identity, err := identityOf(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if _, err := h.requests.GetFor(c.UserContext(), id, identity); err != nil {
		return err
	}

	entries, err := h.requests.History(c.UserContext(), id)
	if err != nil {
		return err
	}
	items := make([]dto.RequestHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.RequestHistoryResponse{
			ID:          entry.ID,
			ChangedByID: entry.ChangedByID,
			ChangeType:  string(entry.ChangeType),
			OldValue:    entry.OldValue,
			NewValue:    entry.NewValue,
			CreatedAt:   entry.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

func parseRequestQuery(c *fiber.Ctx) (service.RequestQuery, error) {
	query := service.RequestQuery{Page: pageRequest(c), Search: optionalString(c, "search")}

	statusID, err := parseOptionalInt64(c, "status_id")
	if err != nil {
		return query, err
	}
	if statusID != nil {
		status := domain.StatusID(*statusID)
		query.StatusID = &status
	}
	if query.TechnicianID, err = parseOptionalInt64(c, "technician_id"); err != nil {
		return query, err
	}
	if query.CreatedByID, err = parseOptionalInt64(c, "created_by_id"); err != nil {
		return query, err
	}
	if query.CreatedFrom, err = parseOptionalTime(c, "created_from"); err != nil {
		return query, err
	}
	if query.CreatedBefore, err = parseOptionalTime(c, "created_before"); err != nil {
		return query, err
	}
	includeClosed, err := parseOptionalBool(c, "include_closed")
	if err != nil {
		return query, err
	}
	query.IncludeClosed = includeClosed != nil && *includeClosed
	return query, nil
}

func requestResponse(request *domain.Request) dto.RequestResponse {
	return dto.RequestResponse{
		ID:           request.ID,
		Title:        request.Title,
		Description:  request.Description,
		Priority:     request.Priority.String(),
		StatusID:     int(request.StatusID),
		Status:       request.StatusID.String(),
		CreatedByID:  request.CreatedByID,
		TechnicianID: request.TechnicianID,
		DueDate:      request.DueDate,
		CreatedAt:    request.CreatedAt,
		UpdatedAt:    request.UpdatedAt,
	}
}
