package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/request-service/internal/domain"
	"github.com/spec-kit/request-service/internal/repository/memory"
	apperrors "github.com/spec-kit/request-service/pkg/util/errorutil"
)

func newTestApp(t *testing.T) (*fiber.App, *TokenManager, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	tokens := NewTokenManager("secret", 5)
	mw := NewAuthMiddleware(tokens, store.Repos().Users)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			domainErr := apperrors.ToDomainError(err)
			return c.Status(domainErr.HTTPStatus).SendString(domainErr.Code)
		},
	})
	app.Get("/me", mw.Handle, func(c *fiber.Ctx) error {
		identity, _ := IdentityFromContext(c)
		return c.SendString(identity.Role.String())
	})
	app.Get("/admin", mw.Handle, RequireRole(domain.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusNoContent)
	})
	return app, tokens, store
}

func addUser(t *testing.T, store *memory.Store, email string, role domain.Role, active bool) int64 {
	t.Helper()
	user := &domain.User{FirstName: "Test", LastName: "User", Email: email, PasswordHash: "x", Role: role, Active: active, CreatedAt: time.Now()}
	require.NoError(t, store.Repos().Users.Create(context.Background(), user))
	return user.ID
}

func call(t *testing.T, app *fiber.App, path, authorization string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set(fiber.HeaderAuthorization, authorization)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestAuthMiddleware(t *testing.T) {
	app, tokens, store := newTestApp(t)
	techID := addUser(t, store, "tech@example.com", domain.RoleTechnician, true)
	idleID := addUser(t, store, "idle@example.com", domain.RoleAdmin, false)

	status, body := call(t, app, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, apperrors.CodeUnauthorized, body)

	status, _ = call(t, app, "/me", "Basic abc")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = call(t, app, "/me", "Bearer not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, status)

	token, err := tokens.GenerateToken(techID, domain.RoleTechnician)
	require.NoError(t, err)
	status, body = call(t, app, "/me", "Bearer "+token.Value)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Technician", body)

	status, body = call(t, app, "/admin", "Bearer "+token.Value)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, apperrors.CodeForbidden, body)

	idleToken, err := tokens.GenerateToken(idleID, domain.RoleAdmin)
	require.NoError(t, err)
	status, _ = call(t, app, "/admin", "Bearer "+idleToken.Value)
	assert.Equal(t, http.StatusUnauthorized, status)

	ghost, err := tokens.GenerateToken(999, domain.RoleAdmin)
	require.NoError(t, err)
	status, _ = call(t, app, "/me", "Bearer "+ghost.Value)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestStoredRoleWinsOverTokenRole(t *testing.T) {
	app, tokens, store := newTestApp(t)
	id := addUser(t, store, "demoted@example.com", domain.RoleUser, true)

	token, err := tokens.GenerateToken(id, domain.RoleAdmin)
	require.NoError(t, err)

	status, body := call(t, app, "/me", "Bearer "+token.Value)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "User", body)

	status, _ = call(t, app, "/admin", "Bearer "+token.Value)
	assert.Equal(t, http.StatusForbidden, status)
}
