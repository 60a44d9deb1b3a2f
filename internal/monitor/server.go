// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package monitor provides an optional HTTP/WebSocket observability
// server for a running simulation: /healthz, /stats, and a /ws live
// trace feed.
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/jontk/qss-sim/pkg/logging"
	"github.com/jontk/qss-sim/pkg/metrics"
	"github.com/jontk/qss-sim/pkg/watch"
)

// Server exposes a running simulation's live metrics and trace feed
// over HTTP.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	logger     logging.Logger
	collector  metrics.Collector
	tailer     *watch.TraceTailer
	upgrader   websocket.Upgrader
	runID      string
}

// NewServer constructs a monitor Server bound to addr. collector
// backs /stats; tailer backs /ws. A nil collector is replaced by a
// NoOpCollector, so /stats reports zero counts; with a nil tailer, /ws
// answers 503 Service Unavailable.
func NewServer(addr, runID string, collector metrics.Collector, tailer *watch.TraceTailer, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}

	s := &Server{
		logger:    logger,
		collector: collector,
		tailer:    tailer,
		runID:     runID,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.setupRouter()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

func (s *Server) setupRouter() {
	s.router = mux.NewRouter().StrictSlash(true)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("monitor request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// healthResponse is the /healthz payload.
type healthResponse struct {
	Status string `json:"status"`
	RunID  string `json:"run_id"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, healthResponse{Status: "ok", RunID: s.runID})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.collector.GetStats())
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.tailer == nil {
		http.Error(w, "trace feed not configured", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err.Error())
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, err := s.tailer.Watch(ctx)
	if err != nil {
		s.logger.Warn("failed to start trace tailer", "error", err.Error())
		return
	}

	go s.discardIncoming(conn, cancel)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Warn("websocket write error", "error", err.Error())
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// discardIncoming drains client messages so the read deadline never
// trips the connection closed, cancelling ctx once the client goes
// away.
func (s *Server) discardIncoming(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// Start begins serving in a background goroutine. It returns
// immediately; errors from ListenAndServe are logged, not returned.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Warn("monitor server stopped", "error", err.Error())
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the address the server is configured to bind to.
func (s *Server) Addr() string { return s.httpServer.Addr }
