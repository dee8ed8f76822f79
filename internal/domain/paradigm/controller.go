package paradigm

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/okian/bci/internal/domain/eeg"
	"github.com/okian/bci/internal/domain/model"
	"github.com/okian/bci/pkg/logger"
	"github.com/okian/bci/pkg/metrics"
)

// Controller drives selection and confirmation. Waits are never interrupted:
// a stop request is honoured between repetitions and before a confirmation.
type Controller struct {
	detector   TargetDetector
	classifier IntentClassifier

	rateHz          float64
	isi             time.Duration
	pause           time.Duration
	window          time.Duration
	selectionLeadIn time.Duration
	confirmLeadIn   time.Duration
	capture         time.Duration
	aligned         bool

	permuter Permuter
	clock    Clock
	notifier Notifier
	logger   logger.Logger

	state atomic.Int32
}

// New builds a Controller with the default timing: 250 Hz, ISI 150 ms, pause
// 200 ms, window 800 ms, selection lead-in 2 s, confirmation lead-in 1 s,
// capture 3 s.
func New(detector TargetDetector, classifier IntentClassifier, opts ...Option) (*Controller, error) {
	c := &Controller{
		detector:        detector,
		classifier:      classifier,
		rateHz:          250,
		isi:             150 * time.Millisecond,
		pause:           200 * time.Millisecond,
		window:          800 * time.Millisecond,
		selectionLeadIn: 2 * time.Second,
		confirmLeadIn:   time.Second,
		capture:         3 * time.Second,
		aligned:         true,
		permuter:        NewPermuter(0),
		clock:           WallClock(),
		notifier:        Notifiers(nil),
		logger:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rateHz <= 0 || c.window <= 0 || c.capture <= 0 ||
		c.isi < 0 || c.pause < 0 || c.selectionLeadIn < 0 || c.confirmLeadIn < 0 {
		return nil, ErrInvalidTiming
	}
	if eeg.SamplesFor(c.window, c.rateHz) < 1 || eeg.SamplesFor(c.capture, c.rateHz) < 1 {
		return nil, fmt.Errorf("%w: window shorter than one sample", ErrInvalidTiming)
	}
	return c, nil
}

// State reports where the controller currently is.
func (c *Controller) State() State { return State(c.state.Load()) }

func (c *Controller) setState(s State) { c.state.Store(int32(s)) }

// RunSelection presents every option once per repetition in a fresh random
// order, scores each cue with the detector and returns the winning index.
func (c *Controller) RunSelection(ctx context.Context, s *Session, src EpochSource) (int, error) {
	if !s.claim() {
		return -1, ErrSessionUsed
	}
	if err := ctx.Err(); err != nil {
		return -1, fmt.Errorf("%w: %w", ErrStopped, err)
	}

	started := c.clock.Now()
	n := eeg.SamplesFor(c.window, c.rateHz)
	settle := c.isi
	if c.aligned && c.window > settle {
		settle = c.window
	}

	c.setState(Presenting)
	ev := model.NewEvent(model.KindRoundStarted, s.ID)
	ev.Options = s.Options
	c.notifier.Notify(ctx, ev)
	c.logger.Info(ctx, "selection round started",
		logger.String("session", s.ID),
		logger.Int("options", len(s.Options)),
		logger.Int("repetitions", s.Repetitions))
	c.clock.Sleep(c.selectionLeadIn)

	for rep := 0; rep < s.Repetitions; rep++ {
		if err := ctx.Err(); err != nil {
			c.setState(Idle)
			c.logger.Warn(ctx, "selection round stopped", logger.String("session", s.ID), logger.Int("repetition", rep))
			return -1, fmt.Errorf("%w: %w", ErrStopped, err)
		}
		for _, opt := range c.permuter.Permute(len(s.Options)) {
			c.setState(Presenting)
			cue := model.NewEvent(model.KindCue, s.ID)
			cue.Option, cue.Label, cue.Repetition = opt, s.Options[opt], rep
			c.notifier.Notify(ctx, cue)

			c.clock.Sleep(settle)

			c.setState(Scoring)
			if c.detector.Detect(src.GetEpoch(n)) {
				s.increment(opt)
				hit := model.NewEvent(model.KindScore, s.ID)
				hit.Option, hit.Label, hit.Repetition = opt, s.Options[opt], rep
				hit.Scores = s.Scores()
				c.notifier.Notify(ctx, hit)
			}
			c.clock.Sleep(c.pause)
		}
	}

	winner := s.Winner()
	c.setState(Selected)
	done := model.NewEvent(model.KindSelected, s.ID)
	done.Option, done.Label, done.Scores = winner, s.Options[winner], s.Scores()
	c.notifier.Notify(ctx, done)

	elapsed := c.clock.Now().Sub(started)
	metrics.RecordSelectionRound(elapsed.Seconds())
	c.logger.Info(ctx, "selection round finished",
		logger.String("session", s.ID),
		logger.Int("winner", winner),
		logger.String("label", s.Options[winner]),
		logger.Any("scores", s.Scores()),
		logger.Duration("elapsed", elapsed))
	return winner, nil
}

// RunConfirmation captures one motor imagery epoch and classifies it.
// Ambiguous results are returned as such; retrying is up to the caller.
func (c *Controller) RunConfirmation(ctx context.Context, src EpochSource) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Ambiguous, fmt.Errorf("%w: %w", ErrStopped, err)
	}

	c.setState(Capturing)
	c.notifier.Notify(ctx, model.NewEvent(model.KindCapture, ""))
	c.clock.Sleep(c.confirmLeadIn)
	c.clock.Sleep(c.capture)

	class := c.classifier.Classify(src.GetEpoch(eeg.SamplesFor(c.capture, c.rateHz)))
	out := OutcomeFor(class)

	c.setState(Classified)
	ev := model.NewEvent(model.KindConfirmation, "")
	ev.Outcome = out.String()
	c.notifier.Notify(ctx, ev)
	metrics.RecordConfirmation(out.String())
	c.logger.Info(ctx, "confirmation classified",
		logger.String("class", class.String()),
		logger.String("outcome", out.String()))
	return out, nil
}

// Confirmer runs one confirmation attempt.
type Confirmer interface {
	RunConfirmation(ctx context.Context, src EpochSource) (Outcome, error)
}

// ConfirmUntilDecided repeats confirmation while the result is Ambiguous, at
// most maxAttempts times. It returns the last outcome and the attempts made.
func ConfirmUntilDecided(ctx context.Context, c Confirmer, src EpochSource, maxAttempts int) (Outcome, int, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	out := Ambiguous
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var err error
		out, err = c.RunConfirmation(ctx, src)
		if err != nil {
			return out, attempt, err
		}
		if out != Ambiguous {
			return out, attempt, nil
		}
	}
	return out, maxAttempts, nil
}
