package handler

import (
	"clinic-queue/internal/apperr"
	"clinic-queue/internal/counter"

	"github.com/gofiber/fiber/v2"
)

// AllocateCode - POST /api/counters/:name. Hands out the next value of a
// named sequence, used by the registration screens for record codes.
func (h *Handler) AllocateCode(c *fiber.Ctx) error {
	name := c.Params("name")
	if counter.IsTicketName(name) {
		return fail(c, apperr.Validation("counter %q is reserved for tickets", name))
	}

	n, err := h.counter.Allocate(c.UserContext(), name)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.Map{
		"name":  name,
		"value": n,
	})
}
