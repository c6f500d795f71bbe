package handler

import (
	"clinic-queue/internal/models"
	"clinic-queue/internal/queue"

	"github.com/gofiber/fiber/v2"
)

// Intake - POST /api/queue. Registers a walk-in and issues its ticket.
func (h *Handler) Intake(c *fiber.Ctx) error {
	var req queue.IntakeRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	entry, err := h.svc.Intake(c.UserContext(), session(c), req)
	if err != nil {
		return fail(c, err)
	}
	return created(c, entry)
}

// ListQueue - GET /api/queue?status=waiting. Defaults to the main queue.
func (h *Handler) ListQueue(c *fiber.Ctx) error {
	status := models.Status(c.Query("status", string(models.StatusWaiting)))

	entries, err := h.svc.List(c.UserContext(), status)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"status":  status,
		"total":   len(entries),
		"data":    entries,
	})
}

// GetEntry - GET /api/queue/:id
func (h *Handler) GetEntry(c *fiber.Ctx) error {
	entry, err := h.svc.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, entry)
}

// EntryHistory - GET /api/queue/:id/history
func (h *Handler) EntryHistory(c *fiber.Ctx) error {
	events, err := h.svc.History(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, events)
}

// QueueStats - GET /api/queue/stats. Waiting entries per classification,
// every configured classification included.
func (h *Handler) QueueStats(c *fiber.Ctx) error {
	counts, err := h.svc.WaitingByClassification(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	return ok(c, classificationStats(h.svc.Classes(), counts))
}

// ClassificationStat - waiting count of one classification.
type ClassificationStat struct {
	Classification string `json:"classification"`
	Prefix         string `json:"prefix"`
	Rank           int    `json:"rank"`
	WaitingCount   int    `json:"waiting_count"`
	HasNext        bool   `json:"has_next"`
}

func classificationStats(classes []queue.Class, counts map[string]int) []ClassificationStat {
	stats := make([]ClassificationStat, 0, len(classes))
	for _, cl := range classes {
		n := counts[cl.Name]
		stats = append(stats, ClassificationStat{
			Classification: cl.Name,
			Prefix:         cl.Prefix,
			Rank:           cl.Rank,
			WaitingCount:   n,
			HasNext:        n > 0,
		})
	}
	return stats
}
