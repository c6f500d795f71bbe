package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"clinic-queue/internal/apperr"
	"clinic-queue/internal/models"
	"clinic-queue/internal/queue"
	"clinic-queue/internal/realtime"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog/log"
)

const (
	pingInterval  = 20 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 3 * time.Second
	staleAfter    = 90 * time.Second
	cleanupEvery  = 30 * time.Second
)

/*
|--------------------------------------------------------------------------
| WebSocket Client Registry
|--------------------------------------------------------------------------
*/

type ClientInfo struct {
	conn         *websocket.Conn
	writeMux     sync.Mutex
	closeChan    chan struct{}
	closed       bool
	lastPongTime time.Time
	id           string
}

// markClosed - caller holds writeMux.
func (c *ClientInfo) markClosed() {
	if !c.closed {
		c.closed = true
		close(c.closeChan)
	}
}

// write sends one text frame. A failed write closes the client; the read
// loop then sees the broken connection and unregisters it.
func (c *ClientInfo) write(message []byte) error {
	c.writeMux.Lock()
	defer c.writeMux.Unlock()

	if c.closed {
		return fmt.Errorf("%s already closed", c.id)
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.markClosed()
		_ = c.conn.Close()
		return err
	}
	return nil
}

func (c *ClientInfo) ping() error {
	c.writeMux.Lock()
	defer c.writeMux.Unlock()

	if c.closed {
		return fmt.Errorf("%s already closed", c.id)
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// clientHub tracks the open connections of one endpoint and drops the ones
// that stopped answering pings.
type clientHub struct {
	name string

	mu             sync.RWMutex
	clients        map[*websocket.Conn]*ClientInfo
	cleanupRunning bool
	counter        uint64 // atomic
}

func newClientHub(name string) *clientHub {
	return &clientHub{
		name:    name,
		clients: make(map[*websocket.Conn]*ClientInfo),
	}
}

func (hub *clientHub) register(c *websocket.Conn) *ClientInfo {
	id := atomic.AddUint64(&hub.counter, 1)
	client := &ClientInfo{
		conn:         c,
		closeChan:    make(chan struct{}),
		lastPongTime: time.Now(),
		id:           fmt.Sprintf("%s-%d", hub.name, id),
	}

	hub.mu.Lock()
	hub.clients[c] = client
	total := len(hub.clients)
	startCleanup := !hub.cleanupRunning
	if startCleanup {
		hub.cleanupRunning = true
	}
	hub.mu.Unlock()

	log.Debug().Str("component", "ws").Str("client", client.id).
		Str("remote", c.RemoteAddr().String()).Int("total", total).Msg("client registered")

	if startCleanup {
		go hub.periodicCleanup()
	}
	return client
}

func (hub *clientHub) unregister(c *websocket.Conn) {
	hub.mu.Lock()
	client, exists := hub.clients[c]
	if exists {
		client.writeMux.Lock()
		client.markClosed()
		client.writeMux.Unlock()
		delete(hub.clients, c)
	}
	total := len(hub.clients)
	hub.mu.Unlock()

	_ = c.Close()
	if exists {
		log.Debug().Str("component", "ws").Str("client", client.id).Int("total", total).Msg("client unregistered")
	}
}

// Count - connections currently open.
func (hub *clientHub) Count() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.clients)
}

// periodicCleanup closes connections with no pong for staleAfter. Closing
// makes their read loops fail, which unregisters them.
func (hub *clientHub) periodicCleanup() {
	ticker := time.NewTicker(cleanupEvery)
	defer ticker.Stop()

	for range ticker.C {
		hub.mu.Lock()
		if len(hub.clients) == 0 {
			hub.cleanupRunning = false
			hub.mu.Unlock()
			return
		}
		hub.mu.Unlock()

		hub.sweep(time.Now())
	}
}

// sweep runs under the hub lock so a connection is never closed after its
// handler has returned.
func (hub *clientHub) sweep(now time.Time) int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	removed := 0
	for conn, client := range hub.clients {
		client.writeMux.Lock()
		stale := now.Sub(client.lastPongTime) > staleAfter
		if stale {
			client.markClosed()
		}
		client.writeMux.Unlock()

		if stale {
			log.Info().Str("component", "ws").Str("client", client.id).Msg("no pong, closing")
			_ = conn.Close()
			removed++
		}
	}
	return removed
}

/*
|--------------------------------------------------------------------------
| Subscription loop
|--------------------------------------------------------------------------
*/

// renderFunc turns a snapshot into the frame sent to one client.
type renderFunc func(realtime.Snapshot) ([]byte, error)

// serve subscribes c to q and streams rendered snapshots until either side
// goes away. Snapshots older than the last one sent are skipped.
func (h *Handler) serve(c *websocket.Conn, hub *clientHub, q realtime.Query, render renderFunc) {
	client := hub.register(c)
	defer hub.unregister(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := h.broadcaster.Subscribe(ctx, q)
	if err != nil {
		log.Warn().Str("component", "ws").Str("client", client.id).Err(err).Msg("subscribe failed")
		if msg, mErr := json.Marshal(fiber.Map{"type": "error", "error": apperr.MessageOf(err)}); mErr == nil {
			_ = client.write(msg)
		}
		return
	}
	defer sub.Cancel()

	_ = c.SetReadDeadline(time.Now().Add(readDeadline))
	c.SetPongHandler(func(string) error {
		client.writeMux.Lock()
		client.lastPongTime = time.Now()
		client.writeMux.Unlock()
		return c.SetReadDeadline(time.Now().Add(readDeadline))
	})

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		h.pump(client, sub, render)
	}()
	defer func() {
		client.writeMux.Lock()
		client.markClosed()
		client.writeMux.Unlock()
		<-pumpDone
	}()

	// Read loop
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure,
			) {
				log.Debug().Str("component", "ws").Str("client", client.id).Err(err).Msg("unexpected close")
			}
			return
		}
	}
}

// pump writes snapshots and pings. When it stops the connection is closed
// so the read loop in serve returns as well. serve waits for it before
// handing the connection back.
func (h *Handler) pump(client *ClientInfo, sub *realtime.Subscription, render renderFunc) {
	defer func() {
		client.writeMux.Lock()
		client.markClosed()
		client.writeMux.Unlock()
		_ = client.conn.Close()
	}()

	var sent uint64
	send := func(snap realtime.Snapshot) bool {
		if snap.Version != 0 && snap.Version <= sent {
			return true
		}
		message, err := render(snap)
		if err != nil {
			log.Error().Str("component", "ws").Str("client", client.id).Err(err).Msg("render snapshot")
			return true
		}
		if err := client.write(message); err != nil {
			log.Debug().Str("component", "ws").Str("client", client.id).Err(err).Msg("write failed")
			return false
		}
		sent = snap.Version
		return true
	}

	if !send(sub.Initial) {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case snap, open := <-sub.C:
			if !open || !send(snap) {
				return
			}
		case <-ticker.C:
			if err := client.ping(); err != nil {
				return
			}
		case <-client.closeChan:
			return
		}
	}
}

// upgradeOnly rejects plain HTTP requests to a websocket route.
func upgradeOnly(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

/*
|--------------------------------------------------------------------------
| Dashboard queue stream
|--------------------------------------------------------------------------
*/

// QueueMessage - one dashboard frame: every watched list, sorted for
// display, plus the waiting count per classification.
type QueueMessage struct {
	Type             string                                `json:"type"`
	Version          uint64                                `json:"version"`
	Data             map[models.Status][]models.QueueEntry `json:"data"`
	CurrentlyServing *models.QueueEntry                    `json:"currently_serving"`
	Stats            []ClassificationStat                  `json:"stats"`
	Timestamp        string                                `json:"timestamp"`
}

// parseStatuses reads a comma separated status list; empty means waiting
// and in-service.
func parseStatuses(raw string) ([]models.Status, error) {
	if strings.TrimSpace(raw) == "" {
		return []models.Status{models.StatusWaiting, models.StatusInService}, nil
	}
	var statuses []models.Status
	for _, part := range strings.Split(raw, ",") {
		st, valid := models.ParseStatus(strings.TrimSpace(part))
		if !valid {
			return nil, apperr.Validation("unknown status %q", part)
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

func (h *Handler) buildQueueMessage(statuses []models.Status, snap realtime.Snapshot) QueueMessage {
	grouped := make(map[models.Status][]models.QueueEntry, len(statuses))
	for _, st := range statuses {
		grouped[st] = []models.QueueEntry{}
	}
	counts := make(map[string]int)
	for _, e := range snap.Entries {
		grouped[e.Status] = append(grouped[e.Status], e)
		if e.Status == models.StatusWaiting {
			counts[e.Classification]++
		}
	}
	for st, entries := range grouped {
		grouped[st] = queue.SortForStatus(st, entries)
	}

	msg := QueueMessage{
		Type:      "queue_update",
		Version:   snap.Version,
		Data:      grouped,
		Stats:     classificationStats(h.svc.Classes(), counts),
		Timestamp: h.clock.Now().Format(time.RFC3339),
	}
	if serving := grouped[models.StatusInService]; len(serving) > 0 {
		latest := serving[0]
		msg.CurrentlyServing = &latest
	}
	return msg
}

// QueueUpgrade - guards GET /ws/queue and validates the status list
// before the connection is upgraded.
func (h *Handler) QueueUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	statuses, err := parseStatuses(c.Query("status"))
	if err != nil {
		return fail(c, err)
	}
	c.Locals("statuses", statuses)
	return c.Next()
}

// QueueWebSocket - GET /ws/queue?status=waiting,in-service&token=...
func (h *Handler) QueueWebSocket() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		statuses, _ := c.Locals("statuses").([]models.Status)
		if len(statuses) == 0 {
			statuses, _ = parseStatuses("")
		}

		h.serve(c, h.queueClients, realtime.EntriesQuery(statuses...), func(snap realtime.Snapshot) ([]byte, error) {
			return json.Marshal(h.buildQueueMessage(statuses, snap))
		})
	})
}

/*
|--------------------------------------------------------------------------
| Public panel stream
|--------------------------------------------------------------------------
*/

// PanelWebSocket - GET /ws/panel. Each connection tracks the newest call
// it has shown, so the sound cue plays once per new call.
func (h *Handler) PanelWebSocket() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		tracker := &realtime.PanelTracker{}

		h.serve(c, h.panelClients, realtime.CallsQuery(queue.PanelSize), func(snap realtime.Snapshot) ([]byte, error) {
			play := tracker.Observe(snap.Calls)
			return json.Marshal(buildPanel(snap.Calls, play, h.queueOpen(), h.clock.Now()))
		})
	})
}

// ConnectedClients - open websocket connections per endpoint.
func (h *Handler) ConnectedClients() fiber.Map {
	return fiber.Map{
		"queue": h.queueClients.Count(),
		"panel": h.panelClients.Count(),
	}
}
