package api

import (
	"net/http"
	"strconv"

	"github.com/okian/bci/internal/domain/types"
)

const defaultHistoryLimit = 20

// HistoryHandler handles decision history requests.
type HistoryHandler struct {
	deps     Dependencies
	maxLimit int
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(deps Dependencies, maxLimit int) *HistoryHandler {
	if maxLimit < 1 {
		maxLimit = defaultHistoryLimit
	}
	return &HistoryHandler{deps: deps, maxLimit: maxLimit}
}

// HandleGetHistory handles GET /history?limit=N requests. Without a limit
// the most recent 20 decisions are returned, capped by the maximum.
func (h *HistoryHandler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_history"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	n := min(defaultHistoryLimit, h.maxLimit)
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		v, err := strconv.Atoi(limitStr)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		if v > h.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrBadRequest))
			return
		}
		n = v
	}

	decisions, err := h.deps.Recent(r.Context(), n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}

	resp := types.HistoryResponse{
		Total:   h.deps.Count(r.Context()),
		Entries: make([]types.HistoryEntry, 0, len(decisions)),
	}
	for _, d := range decisions {
		resp.Entries = append(resp.Entries, types.HistoryEntry{
			SessionID: d.SessionID,
			Option:    d.Option,
			Label:     d.Label,
			Path:      d.Path,
			Outcome:   d.Outcome,
			Attempts:  d.Attempts,
			Prompt:    d.Prompt,
			Response:  d.Response,
			TS:        d.TS,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
