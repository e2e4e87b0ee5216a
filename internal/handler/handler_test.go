package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/pts_listener/internal/database"
	"github.com/GTDGit/pts_listener/internal/models"
	"github.com/GTDGit/pts_listener/internal/sse"
	"github.com/GTDGit/pts_listener/internal/station"
	"github.com/GTDGit/pts_listener/internal/utils"
)

type fakeSession struct {
	state database.State
	last  time.Time
}

func (f fakeSession) State() database.State   { return f.state }
func (f fakeSession) LastActivity() time.Time { return f.last }

func newTestRouter(t *testing.T, session SessionStatus) (*gin.Engine, *sse.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := station.NewDirectory(nil)
	dir.ReplaceAll(7, station.Names{"MAIN", "ER", "ICU"})
	hub := sse.NewHub()

	handlers := &Handlers{
		Health:  NewHealthHandler("current", session, dir),
		Station: NewStationHandler(dir),
		SSE:     NewSSEHandler(hub),
	}
	return NewRouter("test", nil, handlers), hub
}

func get(t *testing.T, r http.Handler, path string) (*httptest.ResponseRecorder, utils.Response) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var resp utils.Response
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestGetHealth(t *testing.T) {
	last := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r, _ := newTestRouter(t, fakeSession{state: database.StateOpen, last: last})

	w, resp := get(t, r, "/v1/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, "current", data["protocol"])
	assert.Equal(t, []interface{}{float64(7)}, data["systems"])

	db := data["database"].(map[string]interface{})
	assert.Equal(t, "open", db["state"])
	assert.Equal(t, "2026-03-01T10:00:00Z", db["lastActivity"])
}

func TestGetHealth_ClosedSession(t *testing.T) {
	r, _ := newTestRouter(t, fakeSession{state: database.StateClosed})

	_, resp := get(t, r, "/v1/health")
	db := resp.Data.(map[string]interface{})["database"].(map[string]interface{})
	assert.Equal(t, "closed", db["state"])
	assert.NotContains(t, db, "lastActivity")
}

func TestGetStations(t *testing.T) {
	r, _ := newTestRouter(t, fakeSession{})

	w, resp := get(t, r, "/v1/systems/7/stations")
	require.Equal(t, http.StatusOK, w.Code)

	data := resp.Data.(map[string]interface{})
	stations := data["stations"].([]interface{})
	require.Len(t, stations, models.StationsPerSystem)
	first := stations[0].(map[string]interface{})
	assert.Equal(t, "MAIN", first["name"])
	third := stations[2].(map[string]interface{})
	assert.Equal(t, float64(2), third["station"])
	assert.Equal(t, "ICU", third["name"])
}

func TestGetStations_Errors(t *testing.T) {
	r, _ := newTestRouter(t, fakeSession{})

	w, resp := get(t, r, "/v1/systems/9/stations")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "SYSTEM_NOT_FOUND", resp.Error.Code)

	w, resp = get(t, r, "/v1/systems/300/stations")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_SYSTEM", resp.Error.Code)
}

func TestListSystems(t *testing.T) {
	r, _ := newTestRouter(t, fakeSession{})

	_, resp := get(t, r, "/v1/systems")
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, []interface{}{float64(7)}, data["systems"])
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, fakeSession{})

	w, _ := get(t, r, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pts_db_session_open")
}

func TestStream(t *testing.T) {
	r, hub := newTestRouter(t, fakeSession{})
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	waitFor := func(substr string) {
		t.Helper()
		for scanner.Scan() {
			if strings.Contains(scanner.Text(), substr) {
				return
			}
		}
		t.Fatalf("stream ended before %q", substr)
	}

	waitFor("SSE connection established")
	assert.Equal(t, 1, hub.ClientCount())

	sse.NewHubNotifier(hub).NotifyPersisted("pkt-1", &models.LogicalEvent{Kind: models.KindTransaction, System: 7, TransNum: 42})
	waitFor("event.persisted")
}

func TestStream_InvalidSystem(t *testing.T) {
	r, hub := newTestRouter(t, fakeSession{})

	w, resp := get(t, r, "/v1/events/stream?system=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_SYSTEM", resp.Error.Code)
	assert.Equal(t, 0, hub.ClientCount())
}
