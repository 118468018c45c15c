package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health *handlers.HealthHandler
	SLA    *handlers.SLAHandler
	Events *handlers.EventsHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	eventsGroup := app.Group("/events")
	eventsGroup.Post("/ticket", cfg.Events.IngestTicketMutation)
	eventsGroup.Post("/policy", cfg.Events.IngestPolicyChange)

	slaGroup := app.Group("/sla")
	slaGroup.Get("/ticket/:id", cfg.SLA.GetTicket)
	slaGroup.Get("/ticket/:id/escalations", cfg.SLA.ListEscalations)
	slaGroup.Get("/:tenantID/at-risk", cfg.SLA.GetAtRisk)
	slaGroup.Get("/:tenantID/breached", cfg.SLA.GetBreached)
}
