package handler

import (
	"clinic-queue/internal/models"
	"clinic-queue/internal/queue"

	"github.com/gofiber/fiber/v2"
)

// RevertRequest - status a cancelled entry goes back to
type RevertRequest struct {
	Status models.Status `json:"status"`
}

// CallToTriage - POST /api/queue/:id/call-triage
func (h *Handler) CallToTriage(c *fiber.Ctx) error {
	var req queue.LocationRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	entry, err := h.svc.CallToTriage(c.UserContext(), session(c), c.Params("id"), req)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, entry)
}

// Identify - POST /api/queue/:id/identify
func (h *Handler) Identify(c *fiber.Ctx) error {
	var req queue.IdentifyRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	entry, err := h.svc.Identify(c.UserContext(), session(c), c.Params("id"), req)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, entry)
}

// CallEntry - POST /api/queue/:id/call. Moves the entry into service and
// puts it on the panel.
func (h *Handler) CallEntry(c *fiber.Ctx) error {
	entry, err := h.svc.Call(c.UserContext(), session(c), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, entry)
}

// Announce - POST /api/queue/:id/announce. Repeats the call on the panel.
func (h *Handler) Announce(c *fiber.Ctx) error {
	rec, err := h.svc.Announce(c.UserContext(), session(c), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, rec)
}

// Finalize - POST /api/queue/:id/finalize
func (h *Handler) Finalize(c *fiber.Ctx) error {
	entry, err := h.svc.Finalize(c.UserContext(), session(c), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, entry)
}

// ReturnToQueue - POST /api/queue/:id/return
func (h *Handler) ReturnToQueue(c *fiber.Ctx) error {
	var req queue.LocationRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	entry, err := h.svc.ReturnToQueue(c.UserContext(), session(c), c.Params("id"), req)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, entry)
}

// Cancel - POST /api/queue/:id/cancel
func (h *Handler) Cancel(c *fiber.Ctx) error {
	entry, err := h.svc.Cancel(c.UserContext(), session(c), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, entry)
}

// Revert - POST /api/queue/:id/revert
func (h *Handler) Revert(c *fiber.Ctx) error {
	var req RevertRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	entry, err := h.svc.Revert(c.UserContext(), session(c), c.Params("id"), req.Status)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, entry)
}

// RemoveEntry - DELETE /api/queue/:id (admin)
func (h *Handler) RemoveEntry(c *fiber.Ctx) error {
	if err := h.svc.Remove(c.UserContext(), session(c), c.Params("id")); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Queue entry removed",
	})
}
