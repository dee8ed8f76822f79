package api

import (
	"maps"
	"net/http"
	"time"
)

// StatsProvider reports the service's runtime counters.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// StatsHandler serves the service counters together with the API uptime and
// the number of connected websocket clients.
type StatsHandler struct {
	provider StatsProvider
	hub      *Hub
	started  time.Time
}

// NewStatsHandler creates a stats handler. hub may be nil.
func NewStatsHandler(provider StatsProvider, hub *Hub) *StatsHandler {
	return &StatsHandler{provider: provider, hub: hub, started: time.Now()}
}

// HandleStats handles GET /stats.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}
	stats := maps.Clone(h.provider.GetStats())
	if stats == nil {
		stats = map[string]interface{}{}
	}
	stats["uptimeSeconds"] = time.Since(h.started).Seconds()
	if h.hub != nil {
		stats["websocketClients"] = h.hub.Clients()
	}
	writeJSON(w, http.StatusOK, stats)
}
