package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"room-status-backend/config"
	"room-status-backend/internal/lifecycle"
	"room-status-backend/internal/metrics"
	"room-status-backend/internal/model"
	"room-status-backend/internal/mw"
	"room-status-backend/internal/policy"
	"room-status-backend/internal/signing"
	"room-status-backend/internal/status"
	"room-status-backend/internal/store"
	"room-status-backend/internal/telemetry"
	"room-status-backend/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	engine *lifecycle.Engine
	signer *signing.Signer
}

func newTestServer(t *testing.T, webpushOptions *webpush.Options) *testServer {
	t.Helper()

	st := store.NewGormStore(testutil.OpenDB(t))
	engine := lifecycle.NewEngine(st, policy.Default(), zap.NewNop())
	reg := prometheus.NewRegistry()
	engine.Subscribe(telemetry.New(reg))

	signer, err := signing.NewSigner("test-secret")
	require.NoError(t, err)

	h := NewHandler(Deps{
		Engine:        engine,
		Metrics:       metrics.NewEngine(st),
		Subscriptions: st,
		History:       st,
		Signer:        signer,
		Webpush:       webpushOptions,
		Logger:        zap.NewNop(),
	})
	cfg := config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000}
	return &testServer{
		router: NewRouter(h, cfg, mw.NewResponseCache(time.Minute), reg),
		engine: engine,
		signer: signer,
	}
}

func (s *testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) postForm(t *testing.T, values url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/update", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) createRoom(t *testing.T, name string) int64 {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/rooms", gin.H{"name": name})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.ID
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestRooms_CreateListDelete(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/rooms", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	id := s.createRoom(t, "Exam 1")

	w = s.do(t, http.MethodPost, "/api/rooms", gin.H{"name": "Exam 1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = s.do(t, http.MethodPost, "/api/rooms", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodPost, "/api/rooms", gin.H{"name": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodPost, "/api/rooms", gin.H{"name": "Exam 2", "status": "occupied"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// the listing cached above must not survive the create
	w = s.do(t, http.MethodGet, "/api/rooms", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rooms []model.Room
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, "Exam 1", rooms[0].Name)
	assert.Equal(t, status.Available, rooms[0].Status)

	w = s.do(t, http.MethodGet, "/api/rooms/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodGet, "/api/rooms/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodDelete, "/api/rooms/"+itoa(id), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodDelete, "/api/rooms/"+itoa(id), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRooms_UpdateStatusAndEvents(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createRoom(t, "Exam 1")
	path := "/api/rooms/" + itoa(id)

	w := s.do(t, http.MethodPut, path+"/status", gin.H{"status": "waiting"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var room model.Room
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &room))
	assert.Equal(t, status.Waiting, room.Status)

	w = s.do(t, http.MethodPut, path+"/status", gin.H{"status": "cleaning"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodPut, path+"/status", gin.H{"status": "occupied"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodPut, path+"/status", gin.H{"status": "seeing_provider", "source": "sensor"})
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodPut, "/api/rooms/999/status", gin.H{"status": "waiting"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, path+"/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var events []model.RoomEvent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	require.Len(t, events, 2)
	assert.Equal(t, status.SeeingProvider, events[0].NewStatus)
	assert.Equal(t, status.SourceSensor, events[0].Source)
	assert.Equal(t, status.SourceManual, events[1].Source)

	w = s.do(t, http.MethodGet, "/api/rooms/999/events", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRooms_Actions(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createRoom(t, "Exam 1")
	path := "/api/rooms/" + itoa(id) + "/actions"

	w := s.do(t, http.MethodGet, path+"?role=Patient", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"room_id":`+itoa(id)+`,"role":"patient","current":"available","actions":["waiting"]}`, w.Body.String())

	w = s.do(t, http.MethodGet, path+"?role=provider", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"actions":[]`)

	w = s.do(t, http.MethodGet, path+"?role=janitor", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsSummary(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/metrics/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Nil(t, resp["avg_wait_seconds"])
	assert.Equal(t, "-", resp["avg_wait"])
	assert.Equal(t, float64(0), resp["turnovers"])
	assert.Equal(t, []any{}, resp["stuck_room_ids"])

	w = s.do(t, http.MethodGet, "/api/metrics/summary?start=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodGet, "/api/metrics/summary?start=2026-03-02&end=2026-03-01", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodGet, "/api/metrics/summary?start=2026-03-01T00:00:00Z&end=2026-03-02T00:00:00Z", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestExportHistory(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createRoom(t, "Exam 1")
	w := s.do(t, http.MethodPut, "/api/rooms/"+itoa(id)+"/status", gin.H{"status": "waiting"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/export.xlsx", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "room_history_")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("History")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "waiting", rows[1][4])

	w = s.do(t, http.MethodGet, "/api/export.xlsx?end=nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPrometheusEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createRoom(t, "Exam 1")
	s.do(t, http.MethodPut, "/api/rooms/"+itoa(id)+"/status", gin.H{"status": "waiting"})

	w := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `clinic_room_status_transitions_total{new_status="waiting",old_status="available",source="manual"} 1`)
}

func TestForm(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createRoom(t, "Exam 1")
	sig := s.signer.Sign(id, policy.RolePatient)

	w := s.do(t, http.MethodGet, "/form?room_id="+itoa(id)+"&role=patient&sig="+sig, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Exam 1")
	assert.Contains(t, body, `value="waiting"`)
	assert.NotContains(t, body, `value="seeing_provider"`)

	tests := []struct {
		name  string
		query string
		code  int
	}{
		{"bad room id", "room_id=x&role=patient&sig=" + sig, http.StatusBadRequest},
		{"invalid role", "room_id=" + itoa(id) + "&role=janitor&sig=" + sig, http.StatusBadRequest},
		{"bad signature", "room_id=" + itoa(id) + "&role=patient&sig=deadbeef", http.StatusForbidden},
		{"signature for other role", "room_id=" + itoa(id) + "&role=provider&sig=" + sig, http.StatusForbidden},
		{"unknown room", "room_id=999&role=patient&sig=" + s.signer.Sign(999, policy.RolePatient), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodGet, "/form?"+tt.query, nil)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestFormUpdate(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createRoom(t, "Exam 1")
	patient := url.Values{
		"room_id":    {itoa(id)},
		"role":       {"patient"},
		"sig":        {s.signer.Sign(id, policy.RolePatient)},
		"new_status": {"waiting"},
	}

	w := s.postForm(t, patient)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Success")

	room, err := s.engine.GetRoom(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, status.Waiting, room.Status)
	events, err := s.engine.RoomEvents(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, status.SourceAPI, events[0].Source)

	// waiting is no longer offered to the patient
	w = s.postForm(t, patient)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Rejected")

	// a patient link cannot ask for provider actions
	patient.Set("new_status", "seeing_provider")
	w = s.postForm(t, patient)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	provider := url.Values{
		"room_id":    {itoa(id)},
		"role":       {"provider"},
		"sig":        {s.signer.Sign(id, policy.RoleProvider)},
		"new_status": {"seeing_provider"},
	}
	w = s.postForm(t, provider)
	assert.Equal(t, http.StatusOK, w.Code)

	provider.Set("new_status", "bogus")
	w = s.postForm(t, provider)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	provider.Set("new_status", "needs_cleaning")
	provider.Set("sig", "00")
	w = s.postForm(t, provider)
	assert.Equal(t, http.StatusForbidden, w.Code)

	provider.Set("room_id", "999")
	provider.Set("sig", s.signer.Sign(999, policy.RoleProvider))
	w = s.postForm(t, provider)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVAPIDPublicKey(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(t, http.MethodGet, "/api/vapid_public_key", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	s = newTestServer(t, &webpush.Options{VAPIDPublicKey: "BPublic", TTL: 60})
	w = s.do(t, http.MethodGet, "/api/vapid_public_key", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"BPublic","ttl":60}`, w.Body.String())
}
