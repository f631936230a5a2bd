package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/request-service/internal/persistence"
)

const readinessTimeout = 2 * time.Second

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	serviceName string
	version     string
	postgres    *persistence.Postgres
	redis       *persistence.Redis
}

// NewHealthHandler builds the handler. Either store may be nil or disabled.
func NewHealthHandler(serviceName, version string, postgres *persistence.Postgres, redis *persistence.Redis) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version, postgres: postgres, redis: redis}
}

// Live reports that the process is serving.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

type dependencyCheck struct {
	name     string
	enabled  bool
	fallback string
	ping     func(context.Context) error
}

// Ready pings each enabled dependency. Disabled ones are reported but never
// fail readiness.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	checks := []dependencyCheck{
		{name: "postgres", enabled: h.postgres.Enabled(), fallback: "in-memory", ping: h.postgres.Ping},
		{name: "redis", enabled: h.redis.Enabled(), fallback: "disabled", ping: h.redis.Ping},
	}

	deps := fiber.Map{}
	ready := true
	for _, check := range checks {
		switch {
		case !check.enabled:
			deps[check.name] = check.fallback
		case check.ping(ctx) != nil:
			deps[check.name] = "unavailable"
			ready = false
		default:
			deps[check.name] = "ok"
		}
	}

	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "DEPENDENCY_UNAVAILABLE",
				"message": "one or more dependencies unavailable",
				"details": deps,
			},
		})
	}
	return c.JSON(fiber.Map{
		"status":       "ready",
		"service":      h.serviceName,
		"dependencies": deps,
	})
}
