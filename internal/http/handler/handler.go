package handler

import (
	"errors"

	"clinic-queue/internal/apperr"
	"clinic-queue/internal/clock"
	"clinic-queue/internal/config"
	"clinic-queue/internal/counter"
	"clinic-queue/internal/helper"
	"clinic-queue/internal/http/middleware"
	"clinic-queue/internal/models"
	"clinic-queue/internal/queue"
	"clinic-queue/internal/realtime"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Handler - HTTP and websocket endpoints of the queue.
type Handler struct {
	svc         *queue.Service
	broadcaster *realtime.Broadcaster
	counter     counter.Allocator
	hours       config.QueueConfig
	clock       clock.Clock

	queueClients *clientHub
	panelClients *clientHub
}

func New(svc *queue.Service, b *realtime.Broadcaster, alloc counter.Allocator, hours config.QueueConfig, clk clock.Clock) *Handler {
	if clk == nil {
		clk = clock.Real()
	}
	return &Handler{
		svc:         svc,
		broadcaster: b,
		counter:     alloc,
		hours:       hours,
		clock:       clk,

		queueClients: newClientHub("queue"),
		panelClients: newClientHub("panel"),
	}
}

/*
|--------------------------------------------------------------------------
| Responses
|--------------------------------------------------------------------------
*/

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return fiber.StatusBadRequest
	case apperr.KindConflict:
		return fiber.StatusConflict
	case apperr.KindNotFound:
		return fiber.StatusNotFound
	case apperr.KindTransient:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// fail writes err with the status of its kind. Internal details are logged,
// never sent.
func fail(c *fiber.Ctx, err error) error {
	kind := apperr.KindOf(err)
	message := apperr.MessageOf(err)

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{
			"success": false,
			"error":   fe.Message,
		})
	}

	if kind == apperr.KindInternal || kind == apperr.KindTransient {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	if kind == apperr.KindInternal {
		message = "Internal server error"
	}

	return c.Status(statusFor(kind)).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

func ok(c *fiber.Ctx, data interface{}) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

func created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

func badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"error":   "Invalid request body",
	})
}

// session - the acting user set by middleware.JWTAuth.
func session(c *fiber.Ctx) models.Session {
	sess, found := middleware.Session(c)
	if !found {
		return models.SystemSession
	}
	return sess
}

// queueOpen - whether the clinic takes walk-ins right now.
func (h *Handler) queueOpen() bool {
	return helper.IsQueueOpen(h.clock.Now(), h.hours.OpenAt, h.hours.CloseAt, h.hours.Timezone)
}
