package handler

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"clinic-queue/internal/models"
	"clinic-queue/internal/realtime"

	wsclient "github.com/fasthttp/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatuses(t *testing.T) {
	got, err := parseStatuses("")
	require.NoError(t, err)
	assert.Equal(t, []models.Status{models.StatusWaiting, models.StatusInService}, got)

	got, err = parseStatuses("pending, waiting-for-triage")
	require.NoError(t, err)
	assert.Equal(t, []models.Status{models.StatusPending, models.StatusWaitingForTriage}, got)

	_, err = parseStatuses("waiting,sleeping")
	assert.Error(t, err)
}

func TestBuildPanel(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	empty := buildPanel(nil, true, false, now)
	assert.Equal(t, "panel_update", empty.Type)
	assert.Nil(t, empty.Current)
	assert.Empty(t, empty.Previous)
	assert.False(t, empty.ShouldPlayAudio)
	assert.False(t, empty.QueueOpen)

	calls := []models.CallRecord{
		{ID: "3", Ticket: "E-002", RoomLabel: "Consultório 1 - 101"},
		{ID: "2", Ticket: "N-001"},
		{ID: "1", Ticket: "P-001"},
	}
	msg := buildPanel(calls, true, true, now)
	require.NotNil(t, msg.Current)
	assert.Equal(t, "E-002", msg.Current.Ticket)
	assert.Equal(t, []string{"N-001", "P-001"}, []string{msg.Previous[0].Ticket, msg.Previous[1].Ticket})
	assert.True(t, msg.ShouldPlayAudio)
	assert.Contains(t, msg.AudioPaths, "audio/e.mp3")
	assert.Equal(t, "2026-03-02T09:30:00Z", msg.Timestamp)
}

func TestBuildQueueMessage(t *testing.T) {
	f := newFixture(t)
	t0 := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)
	t2 := t0.Add(2 * time.Minute)

	snap := realtime.Snapshot{
		Version: 7,
		Entries: []models.QueueEntry{
			{ID: "n", Classification: "Normal", PriorityRank: 3, Status: models.StatusWaiting, ArrivedAt: t0},
			{ID: "u", Classification: "Urgent", PriorityRank: 1, Status: models.StatusWaiting, ArrivedAt: t1},
			{ID: "old", Status: models.StatusInService, ArrivedAt: t0, CalledAt: &t1},
			{ID: "new", Status: models.StatusInService, ArrivedAt: t0, CalledAt: &t2},
		},
	}

	msg := f.h.buildQueueMessage([]models.Status{models.StatusWaiting, models.StatusInService}, snap)
	assert.Equal(t, "queue_update", msg.Type)
	assert.Equal(t, uint64(7), msg.Version)
	assert.Equal(t, []string{"u", "n"}, ids(msg.Data[models.StatusWaiting]))
	assert.Equal(t, []string{"new", "old"}, ids(msg.Data[models.StatusInService]))
	require.NotNil(t, msg.CurrentlyServing)
	assert.Equal(t, "new", msg.CurrentlyServing.ID)

	counts := map[string]int{}
	for _, s := range msg.Stats {
		counts[s.Classification] = s.WaitingCount
	}
	assert.Equal(t, map[string]int{"Urgent": 1, "Preferential": 0, "Normal": 1, "Other": 0}, counts)
}

func ids(entries []models.QueueEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}

// listen serves the fixture app on a loopback port.
func (f *fixture) listen(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = f.app.Listener(ln) }()
	t.Cleanup(func() { _ = f.app.ShutdownWithTimeout(2 * time.Second) })
	return ln.Addr().String()
}

func dial(t *testing.T, url string) *wsclient.Conn {
	t.Helper()

	conn, resp, err := wsclient.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestPanelWebSocket_PlaysOncePerNewCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	addr := f.listen(t)

	conn := dial(t, "ws://"+addr+"/ws/panel")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first PanelMessage
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "panel_update", first.Type)
	assert.Nil(t, first.Current)
	assert.False(t, first.ShouldPlayAudio)

	a := f.intake(t, "A", "Normal")
	_, err := f.svc.Call(ctx, desk, a.ID)
	require.NoError(t, err)

	var update PanelMessage
	require.NoError(t, conn.ReadJSON(&update))
	require.NotNil(t, update.Current)
	assert.Equal(t, "N-001", update.Current.Ticket)
	assert.True(t, update.ShouldPlayAudio)
	assert.NotEmpty(t, update.AudioPaths)

	_, err = f.svc.ClearPanel(ctx, admin)
	require.NoError(t, err)

	var cleared PanelMessage
	require.NoError(t, conn.ReadJSON(&cleared))
	assert.Nil(t, cleared.Current)
	assert.False(t, cleared.ShouldPlayAudio)
}

func TestQueueWebSocket_StreamsSortedSnapshots(t *testing.T) {
	f := newFixture(t)
	addr := f.listen(t)

	conn := dial(t, "ws://"+addr+"/ws/queue?status=waiting&token="+bearer(t, desk))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first QueueMessage
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "queue_update", first.Type)
	assert.Empty(t, first.Data[models.StatusWaiting])

	a := f.intake(t, "A", "Normal")

	var second QueueMessage
	require.NoError(t, conn.ReadJSON(&second))
	assert.Greater(t, second.Version, first.Version)
	assert.Equal(t, []string{a.ID}, ids(second.Data[models.StatusWaiting]))

	b := f.intake(t, "B", "Urgent")

	var third QueueMessage
	require.NoError(t, conn.ReadJSON(&third))
	assert.Equal(t, []string{b.ID, a.ID}, ids(third.Data[models.StatusWaiting]))
}

func TestQueueWebSocket_RejectsMissingToken(t *testing.T) {
	f := newFixture(t)
	addr := f.listen(t)

	_, resp, err := wsclient.DefaultDialer.Dial("ws://"+addr+"/ws/queue", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConnectedClients(t *testing.T) {
	f := newFixture(t)
	addr := f.listen(t)

	conn := dial(t, "ws://"+addr+"/ws/panel")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var first PanelMessage
	require.NoError(t, conn.ReadJSON(&first))

	assert.Equal(t, 1, f.h.panelClients.Count())
	assert.Equal(t, 1, f.broadcaster.Subscribers())

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return f.h.panelClients.Count() == 0 && f.broadcaster.Subscribers() == 0
	}, 5*time.Second, 20*time.Millisecond)
}
