// Package pulsetypes defines the shared domain types for PulseBridge.
// This file contains the telemetry entities held by the history store,
// the live-stream payload, and the normalized chat session events.
package pulsetypes

// Sample represents a single heart-rate reading with its timestamp and the
// foreground window that was active when it was taken. Samples are append-only;
// they are never mutated after insertion.
//
// The JSON field names match the persisted hr_history.json layout.
type Sample struct {
	HeartRate int    `json:"hr"`
	Timestamp string `json:"timestamp"`
	Window    string `json:"window"`
}

// WindowInterval represents a completed foreground-window dwell: the window
// has already been left by the time the interval is reported.
type WindowInterval struct {
	Title     string  `json:"title"`
	StartedAt string  `json:"started_at"`
	EndedAt   string  `json:"ended_at"`
	Duration  float64 `json:"duration"`
}

// Submission is the most recently ingested sample as received from the
// uploader, annotated with server-side receive time. ServerTimeMS is a
// monotonically increasing sequence marker used by stream viewers to detect
// data they have not yet sent.
type Submission struct {
	HeartRate       int    `json:"heart_rate"`
	Timestamp       string `json:"timestamp,omitempty"`
	CurrentWindow   string `json:"current_window,omitempty"`
	ServerTimestamp string `json:"server_timestamp"`
	ServerTimeMS    int64  `json:"server_time_ms"`
}

// StreamPayload is one live-stream message: the latest submission re-annotated
// with the viewer count at send time. CurrentWindow on the embedded submission
// is refreshed from the store's live pointer before sending.
type StreamPayload struct {
	Submission
	ActiveClients int64 `json:"active_clients"`
}

// Session event types emitted by a reasoning turn.
const (
	EventThinking   = "thinking"
	EventToolResult = "tool_result"
	EventAnswer     = "answer"
	EventDone       = "done"
)

// SessionEvent is one normalized step of a reasoning turn. Name is set only
// for tool_result events. Events are ephemeral and never persisted.
type SessionEvent struct {
	Type    string `json:"type"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content,omitempty"`
}

// UploadResponse is returned by the sample ingestion endpoint.
type UploadResponse struct {
	Status    string `json:"status"`
	DataCount int64  `json:"data_count"`
}

// WindowUploadResponse is returned by the window-interval ingestion endpoint.
type WindowUploadResponse struct {
	Status      string `json:"status"`
	WindowCount int    `json:"window_count"`
}

// StatusResponse is the full state snapshot served by the status endpoint.
type StatusResponse struct {
	DataCount          int64       `json:"data_count"`
	ActiveClients      int64       `json:"active_clients"`
	CurrentWindow      string      `json:"current_window"`
	HRHistoryCount     int         `json:"hr_history_count"`
	WindowHistoryCount int         `json:"window_history_count"`
	LastData           *Submission `json:"last_data"`
	Timestamp          string      `json:"timestamp"`
}

// HealthResponse is the lightweight liveness probe payload.
type HealthResponse struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// ErrorResponse carries a handler-level failure description.
type ErrorResponse struct {
	Error string `json:"error"`
}
