// Package source runs signal acquisition: a producer goroutine feeding the
// sample buffer from a synthetic generator, a Unicorn headset or an EDF file.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/okian/bci/internal/domain/eeg"
	"github.com/okian/bci/pkg/logger"
	"github.com/okian/bci/pkg/metrics"
)

// errorBackoff is the pause after a failed read so a broken reader does not spin.
const errorBackoff = 10 * time.Millisecond

// SampleReader yields one multi-channel sample per call.
type SampleReader interface {
	// ReadSample returns the next sample in microvolts. io.EOF ends acquisition.
	ReadSample(ctx context.Context) ([]float64, error)
	Close() error
}

// Stream owns the sample buffer and the producer goroutine that fills it.
// It implements eeg.SignalSource.
type Stream struct {
	reader SampleReader
	buf    *eeg.Buffer
	name   string
	pacing time.Duration
	logger logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

var _ eeg.SignalSource = (*Stream)(nil)

// NewStream wires reader into buf.
func NewStream(reader SampleReader, buf *eeg.Buffer, opts ...Option) *Stream {
	s := &Stream{
		reader: reader,
		buf:    buf,
		name:   "source",
		logger: logger.Get().Named("source"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Buffer exposes the ring the producer writes to.
func (s *Stream) Buffer() *eeg.Buffer { return s.buf }

// Running reports whether the producer goroutine is alive.
func (s *Stream) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Start launches the producer. The producer outlives ctx and runs until Stop.
func (s *Stream) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrClosed
	}
	if s.done != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.produce(runCtx, s.done)

	s.logger.Info(ctx, "acquisition started",
		logger.String("source", s.name),
		logger.Duration("pacing", s.pacing),
		logger.Int("capacity", s.buf.Cap()))
	return nil
}

// Stop cancels the producer and waits for it to exit or for ctx to end.
// After a timed-out join, later calls wait on the same producer again.
func (s *Stream) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	if s.done == nil {
		s.mu.Unlock()
		return nil
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
		s.logger.Info(ctx, "acquisition stopped",
			logger.String("source", s.name),
			logger.Uint64("samples", s.buf.Total()))
		return nil
	case <-ctx.Done():
		s.logger.Error(ctx, "producer join failed", logger.String("source", s.name))
		metrics.RecordErrorByComponent("source", "stop_timeout")
		return fmt.Errorf("%w: %w", ErrStopTimeout, ctx.Err())
	}
}

// GetEpoch returns the newest n samples.
func (s *Stream) GetEpoch(n int) eeg.Epoch {
	return eeg.Extract(s.buf, n)
}

func (s *Stream) produce(ctx context.Context, done chan struct{}) {
	metrics.UpdateSourceRunning(true)
	defer func() {
		if err := s.reader.Close(); err != nil {
			s.logger.Warn(ctx, "closing reader", logger.String("source", s.name), logger.Error(err))
		}
		metrics.UpdateSourceRunning(false)
		close(done)
	}()

	var tick <-chan time.Time
	if s.pacing > 0 {
		t := time.NewTicker(s.pacing)
		defer t.Stop()
		tick = t.C
	}

	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return
		}

		values, err := s.reader.ReadSample(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				s.logger.Info(ctx, "source exhausted", logger.String("source", s.name))
				return
			}
			metrics.RecordSourceReadError(s.name)
			s.logger.Debug(ctx, "read failed", logger.String("source", s.name), logger.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(errorBackoff):
			}
			continue
		}

		if _, err := s.buf.Push(values); err != nil {
			metrics.RecordSourceReadError(s.name)
			s.logger.Warn(ctx, "dropping sample", logger.String("source", s.name), logger.Error(err))
		}
	}
}
