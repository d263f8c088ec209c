package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"pulsebridge/pkg/pulsetypes"
)

// setSSEHeaders prepares w for a long-lived server-sent event stream.
func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("X-Accel-Buffering", "no")
}

// handleStream serves one live-distribution viewer: an immediate catch-up
// frame when a submission exists, then a bounded-latency poll loop that
// forwards each newer submission and emits a heartbeat comment frame after a
// stretch of idle ticks. The viewer count is decremented on every exit path.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, pulsetypes.ErrorResponse{Error: "streaming not supported"})
		return
	}

	viewerID := strings.Split(uuid.NewString(), "-")[0]
	viewers := s.activeViewers.Add(1)
	defer func() {
		remaining := s.activeViewers.Add(-1)
		s.streamLogger.Info("Viewer disconnected", "viewer", viewerID, "remaining", remaining)
	}()
	s.streamLogger.Info("Viewer connected", "viewer", viewerID, "viewers", viewers)

	setSSEHeaders(w)
	flusher.Flush()

	// Catch-up: a viewer that connects after data exists sees the latest
	// submission as its first frame.
	var lastSent int64
	if sub, ok := s.store.Latest(); ok {
		if err := s.sendPayload(w, flusher, sub); err != nil {
			return
		}
		lastSent = sub.ServerTimeMS
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	idle := 0
	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if sub, ok := s.store.Latest(); ok && sub.ServerTimeMS > lastSent {
				if err := s.sendPayload(w, flusher, sub); err != nil {
					return
				}
				lastSent = sub.ServerTimeMS
				idle = 0
				continue
			}
			idle++
			if idle >= s.heartbeatTicks {
				if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
					return
				}
				flusher.Flush()
				idle = 0
			}
		}
	}
}

// sendPayload writes one live-stream frame, re-annotated with the viewer
// count and the live current-window pointer at send time.
func (s *Server) sendPayload(w http.ResponseWriter, flusher http.Flusher, sub pulsetypes.Submission) error {
	sub.CurrentWindow = s.store.CurrentWindow()
	payload := pulsetypes.StreamPayload{
		Submission:    sub,
		ActiveClients: s.activeViewers.Load(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// chatRequest is the chat turn payload.
type chatRequest struct {
	Message string `json:"message"`
}

// handleChat runs one reasoning turn and streams its session events to the
// caller as they are produced. Engine failures surface inside the event
// stream, never as a transport-level error.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, pulsetypes.ErrorResponse{Error: "POST required"})
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, pulsetypes.ErrorResponse{Error: "invalid JSON body"})
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		writeJSON(w, http.StatusBadRequest, pulsetypes.ErrorResponse{Error: "message is required"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, pulsetypes.ErrorResponse{Error: "streaming not supported"})
		return
	}

	setSSEHeaders(w)
	flusher.Flush()

	for event := range s.agent.StreamTurn(r.Context(), message) {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			// Client gone. The request context is cancelled when the handler
			// returns, which unblocks the turn goroutine.
			return
		}
		flusher.Flush()
	}
}
