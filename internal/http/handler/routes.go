package handler

import (
	"clinic-queue/internal/http/middleware"
	"clinic-queue/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Register mounts every route on app. jwtSecret verifies operator tokens.
func (h *Handler) Register(app *fiber.App, jwtSecret string) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Clinic queue API running",
			"clients": h.ConnectedClients(),
		})
	})

	// Public display
	app.Get("/api/panel", h.GetPanel)
	app.Get("/ws/panel", upgradeOnly, h.PanelWebSocket())

	// Dashboard stream, token in the query string
	app.Get("/ws/queue", middleware.JWTAuth(jwtSecret), h.QueueUpgrade, h.QueueWebSocket())

	// Base API (login required)
	api := app.Group("/api", middleware.JWTAuth(jwtSecret))

	api.Post("/queue", h.Intake)
	api.Get("/queue", h.ListQueue)
	api.Get("/queue/stats", h.QueueStats)
	api.Get("/queue/:id", h.GetEntry)
	api.Get("/queue/:id/history", h.EntryHistory)
	api.Post("/queue/:id/call-triage", h.CallToTriage)
	api.Post("/queue/:id/identify", h.Identify)
	api.Post("/queue/:id/call", h.CallEntry)
	api.Post("/queue/:id/announce", h.Announce)
	api.Post("/queue/:id/finalize", h.Finalize)
	api.Post("/queue/:id/return", h.ReturnToQueue)
	api.Post("/queue/:id/cancel", h.Cancel)
	api.Post("/queue/:id/revert", h.Revert)
	api.Post("/counters/:name", h.AllocateCode)

	// ===== ADMIN ROUTES =====
	api.Delete("/queue/:id", middleware.RoleAuth(models.RoleAdmin), h.RemoveEntry)
	api.Delete("/panel", middleware.RoleAuth(models.RoleAdmin), h.ClearPanel)
}
