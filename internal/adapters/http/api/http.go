// Package api serves the HTTP surface: metrics, service stats, decision
// history and the websocket event stream for the presentation layer.
package api

import (
	"context"
	"net/http"

	"github.com/okian/bci/internal/domain/model"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	// Recent returns up to n decisions, newest first.
	Recent(ctx context.Context, n int) ([]model.Decision, error)
	// Count returns the number of decisions recorded since start.
	Count(ctx context.Context) int
}

// Server wires HTTP routes.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	historyHandler *HistoryHandler
	hub            *Hub
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, hub *Hub, maxHistoryLimit int) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider, hub),
		historyHandler: NewHistoryHandler(deps, maxHistoryLimit),
		hub:            hub,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/history", MetricsMiddleware(s.historyHandler.HandleGetHistory, "history"))
	if s.hub != nil {
		mux.HandleFunc("/ws", MetricsMiddleware(s.hub.HandleWS, "ws"))
	}
}
