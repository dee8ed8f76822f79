// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Kind names what an Event reports.
type Kind string

const (
	KindRoundStarted Kind = "round_started" // a selection round begins
	KindCue          Kind = "cue"           // highlight Option now
	KindScore        Kind = "score"         // a cue evoked a detection
	KindSelected     Kind = "selected"      // round finished with a winner
	KindCapture      Kind = "capture"       // confirmation capture begins
	KindConfirmation Kind = "confirmation"  // confirmation outcome
	KindAction       Kind = "action"        // a confirmed action is executed
	KindResponse     Kind = "response"      // the action produced text
	KindPhrase       Kind = "phrase"        // the speller completed a phrase
	KindSessionEnd   Kind = "session_end"
)

// Event is delivered to the presentation layer. Option is -1 when the event
// does not refer to a menu option.
type Event struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	SessionID  string    `json:"session_id,omitempty"`
	Option     int       `json:"option"`
	Label      string    `json:"label,omitempty"`
	Options    []string  `json:"options,omitempty"`
	Repetition int       `json:"repetition"`
	Scores     []int     `json:"scores,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	Text       string    `json:"text,omitempty"`
	TS         time.Time `json:"ts"`
}

// NewEvent stamps a fresh event of the given kind.
func NewEvent(kind Kind, sessionID string) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		SessionID: sessionID,
		Option:    -1,
		TS:        time.Now(),
	}
}

// Decision is one completed select-confirm cycle.
type Decision struct {
	SessionID string
	Option    int
	Label     string
	Path      []string
	Outcome   string
	Attempts  int
	Prompt    string
	Response  string
	TS        time.Time
}
