package handler

import (
	"time"

	"clinic-queue/internal/helper"
	"clinic-queue/internal/models"

	"github.com/gofiber/fiber/v2"
)

// PanelMessage - what the public display shows: the call being made now
// and up to four before it.
type PanelMessage struct {
	Type            string              `json:"type"`
	Current         *models.CallRecord  `json:"current"`
	Previous        []models.CallRecord `json:"previous"`
	ShouldPlayAudio bool                `json:"should_play_audio"`
	AudioPaths      []string            `json:"audio_paths"`
	QueueOpen       bool                `json:"queue_open"`
	Timestamp       string              `json:"timestamp"`
}

// buildPanel - calls must be newest first.
func buildPanel(calls []models.CallRecord, play, open bool, now time.Time) PanelMessage {
	msg := PanelMessage{
		Type:       "panel_update",
		Previous:   []models.CallRecord{},
		AudioPaths: []string{},
		QueueOpen:  open,
		Timestamp:  now.Format(time.RFC3339),
	}
	if len(calls) == 0 {
		return msg
	}

	current := calls[0]
	msg.Current = &current
	msg.Previous = append(msg.Previous, calls[1:]...)
	msg.ShouldPlayAudio = play
	msg.AudioPaths = helper.AnnouncementPaths(current.Ticket)
	return msg
}

// GetPanel - GET /api/panel. Public; never asks the display to play audio.
func (h *Handler) GetPanel(c *fiber.Ctx) error {
	calls, err := h.svc.Panel(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	return ok(c, buildPanel(calls, false, h.queueOpen(), h.clock.Now()))
}

// ClearPanel - DELETE /api/panel (admin)
func (h *Handler) ClearPanel(c *fiber.Ctx) error {
	n, err := h.svc.ClearPanel(c.UserContext(), session(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Panel cleared",
		"removed": n,
	})
}
