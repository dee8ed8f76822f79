// Package types contains the JSON shapes served by the HTTP API.
package types

import "time"

// HistoryEntry is one recorded decision.
type HistoryEntry struct {
	SessionID string    `json:"session_id"`
	Option    int       `json:"option"`
	Label     string    `json:"label"`
	Path      []string  `json:"path,omitempty"`
	Outcome   string    `json:"outcome"`
	Attempts  int       `json:"attempts"`
	Prompt    string    `json:"prompt,omitempty"`
	Response  string    `json:"response,omitempty"`
	TS        time.Time `json:"ts"`
}

// HistoryResponse is the body of GET /history.
type HistoryResponse struct {
	Total   int            `json:"total"`
	Entries []HistoryEntry `json:"entries"`
}
