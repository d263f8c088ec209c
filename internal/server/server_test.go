package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsebridge/internal/agent"
	"pulsebridge/internal/analytics"
	"pulsebridge/internal/store"
	"pulsebridge/pkg/pulsetypes"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	s := store.New(0, 0)
	p := store.NewPersistor(s, t.TempDir(), time.Second, log.New(io.Discard))
	a := agent.New("", "", "test-model", analytics.NewService(s).Tools(), log.New(io.Discard))
	srv := New(s, p, a)
	t.Cleanup(srv.Shutdown)
	return srv, s
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleUpload_Success(t *testing.T) {
	srv, s := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/upload",
		`{"heart_rate": 72, "current_window": "editor"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp pulsetypes.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(1), resp.DataCount)

	assert.Equal(t, "editor", s.CurrentWindow())
	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, 72, latest.HeartRate)
}

func TestHandleUpload_MissingHeartRateLeavesStateUntouched(t *testing.T) {
	srv, s := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/upload", `{"current_window": "editor"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp pulsetypes.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "heart_rate")

	dataCount, sampleCount, _ := s.Counts()
	assert.Zero(t, dataCount)
	assert.Zero(t, sampleCount)
	assert.Empty(t, s.CurrentWindow())
}

func TestHandleUpload_InvalidJSON(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/upload", `{broken`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUploadWindow_Success(t *testing.T) {
	srv, s := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/upload_window",
		`{"window_title": "browser", "started_at": "2026-08-24T10:00:00Z", "duration": 42.5}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp pulsetypes.WindowUploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.WindowCount)

	windows := s.SnapshotWindows()
	require.Len(t, windows, 1)
	assert.Equal(t, 42.5, windows[0].Duration)
	// The interval path never updates the current-window pointer.
	assert.Empty(t, s.CurrentWindow())
}

func TestHandleUploadWindow_MissingTitle(t *testing.T) {
	srv, s := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/upload_window", `{"duration": 5}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, s.SnapshotWindows())
}

func TestHandleStatus_ReflectsState(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	doJSON(t, h, http.MethodPost, "/upload", `{"heart_rate": 80, "current_window": "game"}`)
	doJSON(t, h, http.MethodPost, "/upload_window", `{"window_title": "game", "duration": 10}`)

	rec := doJSON(t, h, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status pulsetypes.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, int64(1), status.DataCount)
	assert.Equal(t, "game", status.CurrentWindow)
	assert.Equal(t, 1, status.HRHistoryCount)
	assert.Equal(t, 1, status.WindowHistoryCount)
	require.NotNil(t, status.LastData)
	assert.Equal(t, 80, status.LastData.HeartRate)
	assert.NotEmpty(t, status.Timestamp)
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health pulsetypes.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
}

func TestHandleReset_ClearsStateAndStatusShowsZero(t *testing.T) {
	srv, s := newTestServer(t)
	h := srv.Handler()

	doJSON(t, h, http.MethodPost, "/upload", `{"heart_rate": 80, "current_window": "game"}`)
	doJSON(t, h, http.MethodPost, "/upload_window", `{"window_title": "game", "duration": 10}`)

	rec := doJSON(t, h, http.MethodPost, "/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)

	dataCount, sampleCount, windowCount := s.Counts()
	assert.Zero(t, dataCount)
	assert.Zero(t, sampleCount)
	assert.Zero(t, windowCount)
	assert.Empty(t, s.CurrentWindow())
	_, ok := s.Latest()
	assert.False(t, ok)

	var status pulsetypes.StatusResponse
	statusRec := doJSON(t, h, http.MethodGet, "/status", "")
	require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &status))
	assert.Zero(t, status.DataCount)
	assert.Nil(t, status.LastData)
}

func TestHandleChat_MissingMessage(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/chat", `{"message": "  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChat_UnconfiguredEngineStreamsAnswerAndDone(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/chat", `{"message": "hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseSSEEvents(t, rec.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, pulsetypes.EventAnswer, events[0].Type)
	assert.Equal(t, pulsetypes.EventDone, events[1].Type)
}

func TestHandleStream_CatchUpFirstFrame(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	doJSON(t, h, http.MethodPost, "/upload", `{"heart_rate": 88, "current_window": "terminal"}`)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	require.True(t, strings.HasPrefix(body, "data: "), "catch-up frame must be first")

	var payload pulsetypes.StreamPayload
	frame := strings.TrimPrefix(strings.SplitN(body, "\n", 2)[0], "data: ")
	require.NoError(t, json.Unmarshal([]byte(frame), &payload))
	assert.Equal(t, 88, payload.HeartRate)
	assert.Equal(t, "terminal", payload.CurrentWindow)
	assert.Equal(t, int64(1), payload.ActiveClients)
}

func TestHandleStream_ViewerCountDecrementsOnDisconnect(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/stream", nil).WithContext(ctx)
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, int64(0), srv.ActiveViewers())
}

func TestHandleStream_ShutdownStopsLoop(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	done := make(chan struct{})
	go func() {
		req := httptest.NewRequest(http.MethodGet, "/stream", nil)
		h.ServeHTTP(httptest.NewRecorder(), req)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	srv.Shutdown()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream loop did not exit on shutdown")
	}
	assert.Equal(t, int64(0), srv.ActiveViewers())
}

func parseSSEEvents(t *testing.T, body string) []pulsetypes.SessionEvent {
	t.Helper()
	var events []pulsetypes.SessionEvent
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev pulsetypes.SessionEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}
