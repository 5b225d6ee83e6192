// Package server exposes a running engine over HTTP: job snapshots, a live
// websocket feed, the cadence hint, and retry.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/docwatch/internal/client"
	"github.com/raphaelgruber/docwatch/internal/metrics"
	"github.com/raphaelgruber/docwatch/internal/models"
	"github.com/raphaelgruber/docwatch/internal/poller"
	"github.com/raphaelgruber/docwatch/internal/store"
)

const (
	defaultPingInterval = 10 * time.Second
	writeTimeout        = 10 * time.Second
)

// Engine is the part of the orchestrator the bridge drives.
type Engine interface {
	Store() *store.Store
	Polling() []string
	Cadence() poller.Cadence
	OnCadenceHintChanged(poller.Cadence)
	Retry(ctx context.Context, jobID string) error
}

// StatsSource provides the metrics snapshot served at /stats.
type StatsSource interface {
	Snapshot() metrics.Snapshot
}

// Option configures a Server.
type Option func(*Server)

// WithPingInterval sets the keep-alive interval on websocket feeds.
func WithPingInterval(d time.Duration) Option {
	return func(s *Server) { s.pingInterval = d }
}

// WithStats enables GET /stats.
func WithStats(stats StatsSource) Option {
	return func(s *Server) { s.stats = stats }
}

// Server is the host bridge HTTP handler.
type Server struct {
	engine       Engine
	stats        StatsSource
	logger       *slog.Logger
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	handler      http.Handler

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates the bridge for engine.
func New(engine Engine, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		engine: engine,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Local host bridge
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		pingInterval: defaultPingInterval,
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /jobs", s.handleJobs)
	mux.HandleFunc("GET /jobs/{id}", s.handleJob)
	mux.HandleFunc("POST /jobs/{id}/retry", s.handleRetry)
	mux.HandleFunc("POST /cadence", s.handleCadence)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /ws", s.handleFeed)

	s.handler = LoggingMiddleware(logger)(RecoverMiddleware(logger)(mux))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close ends all open websocket feeds. Hijacked connections are not closed by
// http.Server.Shutdown.
func (s *Server) Close() {
	s.cancel()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	msg := s.snapshotMessage(s.engine.Store().Snapshot())

	if raw := r.URL.Query().Get("status"); raw != "" {
		st, err := models.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filtered := msg.Jobs[:0]
		for _, rec := range msg.Jobs {
			if rec.Status == st {
				filtered = append(filtered, rec)
			}
		}
		msg.Jobs = filtered
	}
	if msg.Jobs == nil {
		msg.Jobs = []models.JobRecord{}
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.engine.Store().Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, store.ErrNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.engine.Store().Get(id); !ok {
		writeError(w, http.StatusNotFound, store.ErrNotFound.Error())
		return
	}
	if err := s.engine.Retry(r.Context(), id); err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			writeError(w, apiErr.StatusCode, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	rec, _ := s.engine.Store().Get(id)
	writeJSON(w, http.StatusAccepted, rec)
}

type cadenceRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleCadence(w http.ResponseWriter, r *http.Request) {
	var req cadenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	c, err := poller.ParseCadence(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.engine.OnCadenceHintChanged(c)
	writeJSON(w, http.StatusOK, map[string]string{"cadence": s.engine.Cadence().String()})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.stats == nil {
		writeError(w, http.StatusNotFound, "metrics disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

func (s *Server) snapshotMessage(snap store.Snapshot) models.FeedMessage {
	return models.FeedMessage{
		Type:    models.FeedSnapshot,
		Version: snap.Version,
		Jobs:    snap.Jobs(),
		Polling: s.engine.Polling(),
		Cadence: s.engine.Cadence().String(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
