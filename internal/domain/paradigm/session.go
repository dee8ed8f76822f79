// Package paradigm runs the two interaction protocols: oddball selection
// over a set of options and motor-imagery confirmation of the winner.
package paradigm

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/okian/bci/internal/domain/detect"
)

// Session holds the state of one selection round. A round always starts
// from a fresh Session; RunSelection accepts each Session once.
type Session struct {
	ID          string
	Options     []string
	Repetitions int
	scores      []int
	used        bool
}

// NewSession creates a session with one zero score per option.
func NewSession(options []string, repetitions int) (*Session, error) {
	if len(options) == 0 {
		return nil, ErrNoOptions
	}
	if repetitions < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRepetitions, repetitions)
	}
	opts := make([]string, len(options))
	copy(opts, options)
	return &Session{
		ID:          uuid.NewString(),
		Options:     opts,
		Repetitions: repetitions,
		scores:      make([]int, len(opts)),
	}, nil
}

// Scores returns a copy of the per-option detection counts.
func (s *Session) Scores() []int {
	out := make([]int, len(s.scores))
	copy(out, s.scores)
	return out
}

func (s *Session) increment(option int) {
	s.scores[option]++
}

// claim marks the session as run. It reports false if it already was.
func (s *Session) claim() bool {
	if s.used {
		return false
	}
	s.used = true
	return true
}

// Winner returns the option with the highest score; ties go to the lowest index.
func (s *Session) Winner() int {
	best := 0
	for i, v := range s.scores {
		if v > s.scores[best] {
			best = i
		}
	}
	return best
}

// Outcome is the result of a confirmation attempt.
type Outcome int

const (
	Ambiguous Outcome = iota
	Confirmed
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case Rejected:
		return "rejected"
	default:
		return "ambiguous"
	}
}

// OutcomeFor maps a motor imagery class to a confirmation outcome:
// Right confirms, Left rejects.
func OutcomeFor(c detect.Class) Outcome {
	switch c {
	case detect.Right:
		return Confirmed
	case detect.Left:
		return Rejected
	default:
		return Ambiguous
	}
}

// State is the controller's position in either protocol.
type State int32

const (
	Idle State = iota
	Presenting
	Scoring
	Selected
	Capturing
	Classified
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Presenting:
		return "presenting"
	case Scoring:
		return "scoring"
	case Selected:
		return "selected"
	case Capturing:
		return "capturing"
	case Classified:
		return "classified"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}
