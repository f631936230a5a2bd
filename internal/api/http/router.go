package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/request-service/internal/api/http/handlers"
	"github.com/spec-kit/request-service/internal/auth"
	"github.com/spec-kit/request-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Metrics        *handlers.MetricsHandler
	Auth           *handlers.AuthHandler
	Requests       *handlers.RequestsHandler
	Dashboard      *handlers.DashboardHandler
	Users          *handlers.UsersHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Metrics.Snapshot)

	app.Post("/auth/login", cfg.Auth.Login)

	authenticated := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireAuthenticated()}
	adminOnly := auth.RequireRole(domain.RoleAdmin)

	requests := app.Group("/requests", authenticated...)
	requests.Post("/", cfg.Requests.Create)
	requests.Get("/", cfg.Requests.List)
	requests.Get("/:id", cfg.Requests.Get)
	requests.Patch("/:id", cfg.Requests.Update)
	requests.Post("/:id/assign-technician", cfg.Requests.AssignTechnician)
	requests.Post("/:id/change-status", cfg.Requests.ChangeStatus)
	requests.Get("/:id/history", cfg.Requests.History)

	dashboard := app.Group("/dashboard", authenticated...)
	dashboard.Get("/summary", cfg.Dashboard.Summary)
	dashboard.Get("/priority-breakdown", cfg.Dashboard.PriorityBreakdown)
	dashboard.Get("/resolved-today", cfg.Dashboard.ResolvedToday)
	dashboard.Get("/created-today", cfg.Dashboard.CreatedToday)
	dashboard.Get("/recent-activity", cfg.Dashboard.RecentActivity)
	dashboard.Get("/high-priority", cfg.Dashboard.HighPriority)

	users := app.Group("/users", authenticated...)
	users.Post("/", adminOnly, cfg.Users.Create)
	users.Get("/", adminOnly, cfg.Users.List)
	users.Get("/technicians", cfg.Users.Technicians)
	users.Get("/me", cfg.Users.Me)
	users.Get("/:id", cfg.Users.Get)
	users.Patch("/:id", cfg.Users.Update)
	users.Post("/:id/role", adminOnly, cfg.Users.AssignRole)
	users.Post("/:id/deactivate", adminOnly, cfg.Users.Deactivate)
	users.Post("/:id/activate", adminOnly, cfg.Users.Activate)
}
