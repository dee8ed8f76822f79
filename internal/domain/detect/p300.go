// Package detect turns epochs into decisions: whether a flash evoked a P300
// and which hand the subject imagined moving.
package detect

import (
	"context"
	"errors"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/okian/bci/internal/domain/eeg"
	"github.com/okian/bci/internal/domain/filter"
	"github.com/okian/bci/pkg/logger"
	"github.com/okian/bci/pkg/metrics"
)

// Filter is the signal conditioning step applied before a decision.
type Filter interface {
	Apply(x []float64) ([]float64, error)
}

// P300 decides whether an epoch holds a positive deflection within the
// post-stimulus window.
type P300 struct {
	channel     int
	threshold   float64
	rateHz      float64
	windowStart time.Duration
	windowEnd   time.Duration
	band        filter.Spec
	filter      Filter
	logger      logger.Logger
}

// P300Option configures a P300 detector.
type P300Option func(*P300)

// WithP300Channel selects the channel index to inspect.
func WithP300Channel(ch int) P300Option {
	return func(d *P300) { d.channel = ch }
}

// WithP300Threshold sets the amplitude the window maximum must exceed.
func WithP300Threshold(uv float64) P300Option {
	return func(d *P300) { d.threshold = uv }
}

// WithP300Window sets the post-stimulus search window.
func WithP300Window(start, end time.Duration) P300Option {
	return func(d *P300) {
		d.windowStart = start
		d.windowEnd = end
	}
}

// WithP300Band replaces the default 0.5-10 Hz band. The sample rate is taken
// from the detector.
func WithP300Band(lowHz, highHz float64, order int) P300Option {
	return func(d *P300) {
		d.band.LowHz, d.band.HighHz, d.band.Order = lowHz, highHz, order
	}
}

// WithP300SampleRate sets the sampling rate of incoming epochs.
func WithP300SampleRate(hz float64) P300Option {
	return func(d *P300) { d.rateHz = hz }
}

// WithP300Filter injects a ready-made filter instead of designing one.
func WithP300Filter(f Filter) P300Option {
	return func(d *P300) { d.filter = f }
}

// WithP300Logger sets the logger.
func WithP300Logger(l logger.Logger) P300Option {
	return func(d *P300) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewP300 builds a detector. Defaults: channel 4, 0.5-10 Hz order 4, window
// 250-500 ms, threshold 5 uV, 250 Hz.
func NewP300(opts ...P300Option) (*P300, error) {
	d := &P300{
		channel:     4,
		threshold:   5.0,
		rateHz:      250,
		windowStart: 250 * time.Millisecond,
		windowEnd:   500 * time.Millisecond,
		band:        filter.Spec{LowHz: 0.5, HighHz: 10, Order: 4},
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.filter == nil {
		d.band.SampleRateHz = d.rateHz
		bp, err := filter.NewBandpass(d.band)
		if err != nil {
			return nil, err
		}
		d.filter = bp
	}
	return d, nil
}

// window returns the sample bounds of the search window.
func (d *P300) window() (int, int) {
	return eeg.SamplesFor(d.windowStart, d.rateHz), eeg.SamplesFor(d.windowEnd, d.rateHz)
}

// Peak returns the maximum filtered amplitude inside the window. ok is false
// when the epoch cannot be evaluated.
func (d *P300) Peak(ep eeg.Epoch) (peak float64, ok bool) {
	x, err := ep.Channel(d.channel)
	if err != nil {
		d.reject("channel", err)
		return 0, false
	}
	start, end := d.window()
	if len(x) < end || end <= start {
		d.reject("too_short", nil)
		return 0, false
	}
	y, err := d.filter.Apply(x)
	if err != nil {
		reason := "filter"
		if errors.Is(err, filter.ErrSignalTooShort) {
			reason = "too_short"
		}
		d.reject(reason, err)
		return 0, false
	}
	return floats.Max(y[start:end]), true
}

// Detect reports whether the window maximum is strictly above the threshold.
// Epochs that cannot be evaluated count as no detection.
func (d *P300) Detect(ep eeg.Epoch) bool {
	peak, ok := d.Peak(ep)
	if !ok {
		metrics.RecordDetection("p300", "invalid")
		return false
	}
	metrics.ObserveP300Peak(peak)
	hit := peak > d.threshold
	if hit {
		metrics.RecordDetection("p300", "hit")
	} else {
		metrics.RecordDetection("p300", "miss")
	}
	return hit
}

func (d *P300) reject(reason string, err error) {
	metrics.RecordDetectorRejection("p300", reason)
	fields := []logger.Field{logger.String("reason", reason)}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	d.logger.Debug(context.Background(), "p300 epoch rejected", fields...)
}
