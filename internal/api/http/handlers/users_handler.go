package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/request-service/internal/api/dto"
	"github.com/spec-kit/request-service/internal/domain"
	"github.com/spec-kit/request-service/internal/service"
	apperrors "github.com/spec-kit/request-service/pkg/util/errorutil"
)

// UsersHandler exposes the user directory.
type UsersHandler struct {
	users *service.UserService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(users *service.UserService) *UsersHandler {
	return &UsersHandler{users: users}
}

// Create POST /users.
func (h *UsersHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	user, err := h.users.Create(c.UserContext(), service.CreateUserInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		Role:      req.Role,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": userResponse(user)})
}

// List GET /users.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	query := service.UserQuery{Page: pageRequest(c), Search: optionalString(c, "search")}
	if raw := c.Query("role"); raw != "" {
		role, ok := domain.ParseRole(raw)
		if !ok {
			return apperrors.NewValidationError("invalid query parameter", map[string]any{"role": raw})
		}
		query.Role = &role
	}
	active, err := parseOptionalBool(c, "is_active")
	if err != nil {
		return err
	}
	query.Active = active

	page, err := h.users.List(c.UserContext(), query)
	if err != nil {
		return err
	}
	items := make([]dto.UserResponse, 0, len(page.Data))
	for i := range page.Data {
		items = append(items, userResponse(&page.Data[i]))
	}
	return c.JSON(domain.PagedResult[dto.UserResponse]{Data: items, Total: page.Total, Page: page.Page, PageSize: page.PageSize})
}

// Technicians GET /users/technicians.
func (h *UsersHandler) Technicians(c *fiber.Ctx) error {
	techs, err := h.users.Technicians(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.UserResponse, 0, len(techs))
	for i := range techs {
		items = append(items, userResponse(&techs[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Me GET /users/me.
func (h *UsersHandler) Me(c *fiber.Ctx) error {
	identity, err := identityOf(c)
	if err != nil {
		return err
	}
	user, err := h.users.Get(c.UserContext(), identity.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": userResponse(user)})
}

// Get GET /users/:id. Non-admins may only read themselves.
func (h *UsersHandler) Get(c *fiber.Ctx) error {
	identity, err := identityOf(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if id != identity.UserID && !identity.Role.CanManageUsers() {
		return apperrors.NewForbidden("cannot view another user")
	}
	user, err := h.users.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": userResponse(user)})
}

// Update PATCH /users/:id.
func (h *UsersHandler) Update(c *fiber.Ctx) error {
	identity, err := identityOf(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req dto.UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	user, err := h.users.Update(c.UserContext(), id, service.UserPatch{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Active:    req.Active,
	}, identity)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": userResponse(user)})
}

// AssignRole POST /users/:id/role.
func (h *UsersHandler) AssignRole(c *fiber.Ctx) error {
	identity, err := identityOf(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req dto.AssignRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	user, err := h.users.AssignRole(c.UserContext(), id, req.Role, identity)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": userResponse(user)})
}

// Deactivate POST /users/:id/deactivate.
func (h *UsersHandler) Deactivate(c *fiber.Ctx) error {
	identity, err := identityOf(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.users.Deactivate(c.UserContext(), id, identity); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Activate POST /users/:id/activate.
func (h *UsersHandler) Activate(c *fiber.Ctx) error {
	identity, err := identityOf(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.users.Activate(c.UserContext(), id, identity); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
