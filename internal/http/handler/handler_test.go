package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clinic-queue/internal/clock"
	"clinic-queue/internal/config"
	"clinic-queue/internal/counter"
	"clinic-queue/internal/models"
	"clinic-queue/internal/queue"
	"clinic-queue/internal/realtime"
	"clinic-queue/internal/store"
	"clinic-queue/internal/store/storetest"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "handler-test-secret"

var (
	desk  = models.Session{UserID: 1, Name: "Recepcao", Role: models.RoleOperator}
	admin = models.Session{UserID: 2, Name: "Admin", Role: models.RoleAdmin}
)

type fixture struct {
	app         *fiber.App
	h           *Handler
	svc         *queue.Service
	store       *store.Store
	clk         *clock.Fake
	broadcaster *realtime.Broadcaster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s, clk := storetest.Open(t)
	storetest.SeedDepartment(t, s, models.Department{ID: "tri", Name: "Triagem"})
	storetest.SeedDepartment(t, s, models.Department{ID: "c1", Name: "Consultório 1", RoomNumber: "101"})
	storetest.SeedProfessional(t, s, models.Professional{ID: "lima", Name: "Enf. Lima", DepartmentID: "tri"})
	storetest.SeedProfessional(t, s, models.Professional{ID: "souza", Name: "Dra. Souza", DepartmentID: "c1"})
	storetest.SeedPatient(t, s, models.Patient{ID: "A", Name: "Ana"})
	storetest.SeedPatient(t, s, models.Patient{ID: "B", Name: "Bruno"})

	classes, err := queue.NewClassifier()
	require.NoError(t, err)

	b := realtime.NewBroadcaster(s, 0)
	t.Cleanup(b.Close)

	alloc := counter.NewSQL(s.DB(), store.DialectSQLite)
	svc := queue.NewService(s, alloc, classes, b)
	hours := config.QueueConfig{OpenAt: "00:00", CloseAt: "23:59", Timezone: "UTC"}
	h := New(svc, b, alloc, hours, clk)

	app := fiber.New()
	h.Register(app, secret)

	return &fixture{app: app, h: h, svc: svc, store: s, clk: clk, broadcaster: b}
}

type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func bearer(t *testing.T, sess models.Session) string {
	t.Helper()
	tok, err := config.GenerateToken(secret, sess, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, sess *models.Session, method, url string, body interface{}) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	if sess != nil {
		req.Header.Set("Authorization", "Bearer "+bearer(t, *sess))
	}

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func (f *fixture) intake(t *testing.T, patientID, classification string) models.QueueEntry {
	t.Helper()
	status, env := f.do(t, &desk, "POST", "/api/queue", queue.IntakeRequest{
		PatientID:      patientID,
		DepartmentID:   "tri",
		ProfessionalID: "lima",
		Classification: classification,
	})
	require.Equal(t, http.StatusCreated, status, env.Error)

	var e models.QueueEntry
	require.NoError(t, json.Unmarshal(env.Data, &e))
	f.clk.Advance(time.Minute)
	return e
}

func TestIntakeAndList(t *testing.T) {
	f := newFixture(t)

	a := f.intake(t, "A", "Normal")
	b := f.intake(t, "B", "Urgent")
	assert.Equal(t, "N-001", a.Ticket)
	assert.Equal(t, "E-001", b.Ticket)
	assert.Equal(t, models.StatusWaiting, a.Status)
	assert.Equal(t, desk.Name, a.CreatedBy)

	status, env := f.do(t, &desk, "GET", "/api/queue?status=waiting", nil)
	require.Equal(t, http.StatusOK, status)
	var list []models.QueueEntry
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
	assert.Equal(t, a.ID, list[1].ID)

	status, env = f.do(t, &desk, "GET", "/api/queue/"+a.ID, nil)
	require.Equal(t, http.StatusOK, status)
	var got models.QueueEntry
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, a.ID, got.ID)
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t)
	a := f.intake(t, "A", "Normal")

	tests := []struct {
		name   string
		method string
		url    string
		body   interface{}
		want   int
	}{
		{"unknown entry", "GET", "/api/queue/nope", nil, http.StatusNotFound},
		{"unknown status filter", "GET", "/api/queue?status=sleeping", nil, http.StatusBadRequest},
		{"unknown classification", "POST", "/api/queue", queue.IntakeRequest{
			PatientID: "B", DepartmentID: "tri", ProfessionalID: "lima", Classification: "VIP",
		}, http.StatusBadRequest},
		{"duplicate active entry", "POST", "/api/queue", queue.IntakeRequest{
			PatientID: "A", DepartmentID: "tri", ProfessionalID: "lima", Classification: "Normal",
		}, http.StatusConflict},
		{"illegal transition", "POST", "/api/queue/" + a.ID + "/finalize", nil, http.StatusConflict},
		{"unknown revert target", "POST", "/api/queue/" + a.ID + "/revert", RevertRequest{Status: "sleeping"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := f.do(t, &desk, tt.method, tt.url, tt.body)
			assert.Equal(t, tt.want, status)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Error)
		})
	}
}

func TestInvalidBody(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest("POST", "/api/queue", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer(t, desk))
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRequiresToken(t *testing.T) {
	f := newFixture(t)

	status, _ := f.do(t, nil, "GET", "/api/queue", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = f.do(t, nil, "GET", "/api/panel", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestCallShowsOnPanel(t *testing.T) {
	f := newFixture(t)
	a := f.intake(t, "A", "Normal")

	status, env := f.do(t, &desk, "POST", "/api/queue/"+a.ID+"/call", nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	var called models.QueueEntry
	require.NoError(t, json.Unmarshal(env.Data, &called))
	assert.Equal(t, models.StatusInService, called.Status)
	require.NotNil(t, called.CalledAt)

	status, env = f.do(t, nil, "GET", "/api/panel", nil)
	require.Equal(t, http.StatusOK, status)
	var panel PanelMessage
	require.NoError(t, json.Unmarshal(env.Data, &panel))
	require.NotNil(t, panel.Current)
	assert.Equal(t, "N-001", panel.Current.Ticket)
	assert.Equal(t, "Triagem", panel.Current.RoomLabel)
	assert.Empty(t, panel.Previous)
	assert.False(t, panel.ShouldPlayAudio)
	assert.True(t, panel.QueueOpen)

	status, _ = f.do(t, &desk, "POST", "/api/queue/"+a.ID+"/announce", nil)
	require.Equal(t, http.StatusOK, status)

	status, env = f.do(t, nil, "GET", "/api/panel", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &panel))
	assert.Len(t, panel.Previous, 1)

	status, env = f.do(t, &desk, "POST", "/api/queue/"+a.ID+"/finalize", nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	var done models.QueueEntry
	require.NoError(t, json.Unmarshal(env.Data, &done))
	assert.Equal(t, models.StatusCompleted, done.Status)

	status, env = f.do(t, &desk, "GET", "/api/queue/"+a.ID+"/history", nil)
	require.Equal(t, http.StatusOK, status)
	var events []models.QueueEvent
	require.NoError(t, json.Unmarshal(env.Data, &events))
	assert.Len(t, events, 4)
}

func TestTriageFlow(t *testing.T) {
	f := newFixture(t)

	status, env := f.do(t, &desk, "POST", "/api/queue", queue.IntakeRequest{Classification: "Preferential"})
	require.Equal(t, http.StatusCreated, status, env.Error)
	var e models.QueueEntry
	require.NoError(t, json.Unmarshal(env.Data, &e))
	assert.Equal(t, models.StatusPending, e.Status)
	assert.Equal(t, "P-001", e.Ticket)

	status, env = f.do(t, &desk, "POST", "/api/queue/"+e.ID+"/call-triage", queue.LocationRequest{
		DepartmentID: "tri", ProfessionalID: "lima",
	})
	require.Equal(t, http.StatusOK, status, env.Error)

	status, env = f.do(t, &desk, "POST", "/api/queue/"+e.ID+"/identify", queue.IdentifyRequest{
		PatientID: "B", DepartmentID: "c1", ProfessionalID: "souza",
	})
	require.Equal(t, http.StatusOK, status, env.Error)
	require.NoError(t, json.Unmarshal(env.Data, &e))
	assert.Equal(t, models.StatusWaiting, e.Status)
	assert.Equal(t, "Bruno", e.PatientName)
	assert.Equal(t, "Consultório 1", e.DepartmentName)

	status, env = f.do(t, &desk, "POST", "/api/queue/"+e.ID+"/call", nil)
	require.Equal(t, http.StatusOK, status, env.Error)

	status, env = f.do(t, &desk, "POST", "/api/queue/"+e.ID+"/return", queue.LocationRequest{
		DepartmentID: "tri", ProfessionalID: "lima", Classification: "Urgent",
	})
	require.Equal(t, http.StatusOK, status, env.Error)
	require.NoError(t, json.Unmarshal(env.Data, &e))
	assert.Equal(t, models.StatusWaiting, e.Status)
	assert.Equal(t, 1, e.PriorityRank)

	status, env = f.do(t, &desk, "POST", "/api/queue/"+e.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, status, env.Error)

	status, env = f.do(t, &desk, "POST", "/api/queue/"+e.ID+"/revert", RevertRequest{Status: models.StatusWaiting})
	require.Equal(t, http.StatusOK, status, env.Error)
	require.NoError(t, json.Unmarshal(env.Data, &e))
	assert.Equal(t, models.StatusWaiting, e.Status)
}

func TestAdminRoutes(t *testing.T) {
	f := newFixture(t)
	a := f.intake(t, "A", "Normal")
	_, err := f.svc.Call(context.Background(), desk, a.ID)
	require.NoError(t, err)

	status, _ := f.do(t, &desk, "DELETE", "/api/queue/"+a.ID, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = f.do(t, &desk, "DELETE", "/api/panel", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, env := f.do(t, &admin, "DELETE", "/api/panel", nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	calls, err := f.svc.Panel(context.Background())
	require.NoError(t, err)
	assert.Empty(t, calls)

	status, env = f.do(t, &admin, "DELETE", "/api/queue/"+a.ID, nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	status, _ = f.do(t, &desk, "GET", "/api/queue/"+a.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAllocateCode(t *testing.T) {
	f := newFixture(t)

	for want := int64(1); want <= 3; want++ {
		status, env := f.do(t, &desk, "POST", "/api/counters/patients", nil)
		require.Equal(t, http.StatusOK, status, env.Error)

		var got struct {
			Name  string `json:"name"`
			Value int64  `json:"value"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &got))
		assert.Equal(t, "patients", got.Name)
		assert.Equal(t, want, got.Value)
	}
}

func TestAllocateCode_TicketSequencesReserved(t *testing.T) {
	f := newFixture(t)

	for _, name := range []string{"ticket-normal", "TICKET-urgent"} {
		status, env := f.do(t, &desk, "POST", "/api/counters/"+name, nil)
		assert.Equal(t, http.StatusBadRequest, status, name)
		assert.False(t, env.Success)
	}

	a := f.intake(t, "A", "Normal")
	assert.Equal(t, "N-001", a.Ticket)
}

func TestQueueStats(t *testing.T) {
	f := newFixture(t)
	f.intake(t, "A", "Normal")
	f.intake(t, "B", "Normal")

	status, env := f.do(t, &desk, "GET", "/api/queue/stats", nil)
	require.Equal(t, http.StatusOK, status, env.Error)

	var stats []ClassificationStat
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	require.Len(t, stats, 4)
	assert.Equal(t, "Urgent", stats[0].Classification)
	assert.Equal(t, 0, stats[0].WaitingCount)
	assert.Equal(t, "Normal", stats[2].Classification)
	assert.Equal(t, 2, stats[2].WaitingCount)
	assert.True(t, stats[2].HasNext)
}

func TestWebSocketRoutesRejectPlainHTTP(t *testing.T) {
	f := newFixture(t)

	resp, err := f.app.Test(httptest.NewRequest("GET", "/ws/panel", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)

	req := httptest.NewRequest("GET", "/ws/queue?token="+bearer(t, desk), nil)
	resp, err = f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}
