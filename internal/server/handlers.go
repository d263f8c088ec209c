package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"pulsebridge/pkg/pulsetypes"
)

// uploadRequest is the sample submission payload. HeartRate is a pointer so
// a missing field is distinguishable from a zero reading.
type uploadRequest struct {
	HeartRate     *int   `json:"heart_rate"`
	Timestamp     string `json:"timestamp"`
	CurrentWindow string `json:"current_window"`
}

// windowRequest is the window-interval submission payload.
type windowRequest struct {
	WindowTitle *string `json:"window_title"`
	StartedAt   string  `json:"started_at"`
	EndedAt     string  `json:"ended_at"`
	Duration    float64 `json:"duration"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("PulseBridge telemetry hub is running\n"))
}

// handleUpload ingests one heart-rate sample. Validation failures perform no
// mutation; the new submission count is returned on success.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, pulsetypes.ErrorResponse{Error: "POST required"})
		return
	}

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, pulsetypes.ErrorResponse{Error: "invalid JSON body"})
		return
	}
	if req.HeartRate == nil {
		writeJSON(w, http.StatusBadRequest, pulsetypes.ErrorResponse{Error: "heart_rate is required"})
		return
	}

	_, count := s.store.RecordSample(*req.HeartRate, req.Timestamp, req.CurrentWindow)
	s.logger.Info("Sample received", "bpm", *req.HeartRate, "window", truncate(req.CurrentWindow, 30))

	writeJSON(w, http.StatusOK, pulsetypes.UploadResponse{Status: "ok", DataCount: count})
}

// handleUploadWindow ingests one completed window interval verbatim.
func (s *Server) handleUploadWindow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, pulsetypes.ErrorResponse{Error: "POST required"})
		return
	}

	var req windowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, pulsetypes.ErrorResponse{Error: "invalid JSON body"})
		return
	}
	if req.WindowTitle == nil {
		writeJSON(w, http.StatusBadRequest, pulsetypes.ErrorResponse{Error: "window_title is required"})
		return
	}

	count := s.store.RecordWindow(pulsetypes.WindowInterval{
		Title:     *req.WindowTitle,
		StartedAt: req.StartedAt,
		EndedAt:   req.EndedAt,
		Duration:  req.Duration,
	})
	s.logger.Info("Window interval received",
		"title", truncate(*req.WindowTitle, 40), "duration", req.Duration)

	writeJSON(w, http.StatusOK, pulsetypes.WindowUploadResponse{Status: "ok", WindowCount: count})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	dataCount, sampleCount, windowCount := s.store.Counts()

	resp := pulsetypes.StatusResponse{
		DataCount:          dataCount,
		ActiveClients:      s.activeViewers.Load(),
		CurrentWindow:      s.store.CurrentWindow(),
		HRHistoryCount:     sampleCount,
		WindowHistoryCount: windowCount,
		Timestamp:          time.Now().Format(time.RFC3339Nano),
	}
	if latest, ok := s.store.Latest(); ok {
		resp.LastData = &latest
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	dataCount, _, _ := s.store.Counts()
	writeJSON(w, http.StatusOK, pulsetypes.HealthResponse{Status: "ok", Count: dataCount})
}

// handleReset clears the store and flushes immediately so persisted state
// matches memory.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, pulsetypes.ErrorResponse{Error: "POST required"})
		return
	}

	s.store.Reset()
	if s.persistor != nil {
		if err := s.persistor.Flush(); err != nil {
			s.logger.Error("Flush after reset failed", "error", err)
		}
	}
	s.logger.Info("History reset")

	writeJSON(w, http.StatusOK, map[string]string{"message": "reset complete"})
}

// truncate shortens a window title for log output.
func truncate(title string, max int) string {
	if title == "" {
		return "-"
	}
	runes := []rune(strings.TrimSpace(title))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max])
}
