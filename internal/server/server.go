// Package server exposes the telemetry hub over HTTP: ingestion endpoints,
// the SSE live distribution channel, the streaming chat endpoint, and the
// status/health/reset surface.
package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"pulsebridge/internal/agent"
	"pulsebridge/internal/logger"
	"pulsebridge/internal/store"
	"pulsebridge/pkg/pulsetypes"
)

// Live stream pacing: one comparison tick every pollInterval, one heartbeat
// frame after heartbeatTicks consecutive idle ticks.
const (
	defaultPollInterval   = 500 * time.Millisecond
	defaultHeartbeatTicks = 30
)

// Server wires the history store, persistor, and reasoning agent behind the
// HTTP surface.
type Server struct {
	store     *store.Store
	persistor *store.Persistor
	agent     *agent.Agent

	logger       *log.Logger
	streamLogger *log.Logger

	// activeViewers counts connected live-stream viewers. It is independent
	// of the store lock: viewer churn never contends with ingestion.
	activeViewers atomic.Int64

	// done is closed on global shutdown so long-lived stream loops exit
	// cooperatively even while their connections stay open.
	done     chan struct{}
	doneOnce sync.Once

	pollInterval   time.Duration
	heartbeatTicks int
}

// New creates a server over the given collaborators.
func New(s *store.Store, p *store.Persistor, a *agent.Agent) *Server {
	return &Server{
		store:          s,
		persistor:      p,
		agent:          a,
		logger:         logger.Logger,
		streamLogger:   logger.NewStyledLogger("Stream"),
		done:           make(chan struct{}),
		pollInterval:   defaultPollInterval,
		heartbeatTicks: defaultHeartbeatTicks,
	}
}

// Handler returns the routed HTTP handler with panic recovery applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/upload_window", s.handleUploadWindow)
	mux.HandleFunc("/stream", s.handleStream)
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/reset", s.handleReset)
	return s.recoverMiddleware(mux)
}

// Shutdown signals all long-lived stream loops to exit. Safe to call more
// than once.
func (s *Server) Shutdown() {
	s.doneOnce.Do(func() { close(s.done) })
}

// ActiveViewers returns the current live-stream viewer count.
func (s *Server) ActiveViewers() int64 {
	return s.activeViewers.Load()
}

// recoverMiddleware converts handler panics into JSON 500 responses so a
// single bad request never takes the process down.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("Handler panic", "path", r.URL.Path, "panic", rec)
				writeJSON(w, http.StatusInternalServerError, pulsetypes.ErrorResponse{
					Error: "internal server error",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
