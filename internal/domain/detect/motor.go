package detect

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/okian/bci/internal/domain/eeg"
	"github.com/okian/bci/internal/domain/filter"
	"github.com/okian/bci/pkg/logger"
	"github.com/okian/bci/pkg/metrics"
)

// Class is the motor imagery decision.
type Class int

const (
	Ambiguous Class = iota
	Left
	Right
)

func (c Class) String() string {
	switch c {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "ambiguous"
	}
}

// MotorImagery compares mu band power between two hemispheres.
type MotorImagery struct {
	left, right    int
	leftThreshold  float64
	rightThreshold float64
	band           filter.Spec
	rateHz         float64
	filter         Filter
	logger         logger.Logger
}

// MotorOption configures a MotorImagery classifier.
type MotorOption func(*MotorImagery)

// WithMotorChannels sets the left (C3) and right (C4) channel indices.
func WithMotorChannels(left, right int) MotorOption {
	return func(m *MotorImagery) { m.left, m.right = left, right }
}

// WithMotorThresholds sets the ratio bounds below which the class is Left
// and above which it is Right.
func WithMotorThresholds(left, right float64) MotorOption {
	return func(m *MotorImagery) { m.leftThreshold, m.rightThreshold = left, right }
}

// WithMotorBand replaces the default 8-13 Hz band.
func WithMotorBand(lowHz, highHz float64, order int) MotorOption {
	return func(m *MotorImagery) {
		m.band.LowHz, m.band.HighHz, m.band.Order = lowHz, highHz, order
	}
}

// WithMotorSampleRate sets the sampling rate of incoming epochs.
func WithMotorSampleRate(hz float64) MotorOption {
	return func(m *MotorImagery) { m.rateHz = hz }
}

// WithMotorFilter injects a ready-made filter.
func WithMotorFilter(f Filter) MotorOption {
	return func(m *MotorImagery) { m.filter = f }
}

// WithMotorLogger sets the logger.
func WithMotorLogger(l logger.Logger) MotorOption {
	return func(m *MotorImagery) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMotorImagery builds a classifier. Defaults: C3=1, C4=3, 8-13 Hz order 4,
// thresholds 0.7 and 1.3, 250 Hz.
func NewMotorImagery(opts ...MotorOption) (*MotorImagery, error) {
	m := &MotorImagery{
		left:           1,
		right:          3,
		leftThreshold:  0.7,
		rightThreshold: 1.3,
		band:           filter.Spec{LowHz: 8, HighHz: 13, Order: 4},
		rateHz:         250,
		logger:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.leftThreshold > m.rightThreshold {
		return nil, fmt.Errorf("%w: left %v above right %v", ErrThresholds, m.leftThreshold, m.rightThreshold)
	}
	if m.filter == nil {
		m.band.SampleRateHz = m.rateHz
		bp, err := filter.NewBandpass(m.band)
		if err != nil {
			return nil, err
		}
		m.filter = bp
	}
	return m, nil
}

// BandPower is the mean square of the band-limited signal.
func (m *MotorImagery) BandPower(x []float64) (float64, error) {
	y, err := m.filter.Apply(x)
	if err != nil {
		return 0, err
	}
	if len(y) == 0 {
		return 0, nil
	}
	return floats.Dot(y, y) / float64(len(y)), nil
}

// Ratio returns power(left)/power(right); 1 when the right power is zero.
func (m *MotorImagery) Ratio(ep eeg.Epoch) (float64, error) {
	xl, err := ep.Channel(m.left)
	if err != nil {
		return 0, err
	}
	xr, err := ep.Channel(m.right)
	if err != nil {
		return 0, err
	}
	pl, err := m.BandPower(xl)
	if err != nil {
		return 0, err
	}
	pr, err := m.BandPower(xr)
	if err != nil {
		return 0, err
	}
	if pr <= 0 {
		return 1.0, nil
	}
	return pl / pr, nil
}

// Classify maps the power ratio to Left, Right or Ambiguous. Epochs that
// cannot be evaluated are Ambiguous.
func (m *MotorImagery) Classify(ep eeg.Epoch) Class {
	ratio, err := m.Ratio(ep)
	if err != nil {
		metrics.RecordDetectorRejection("motor_imagery", "invalid")
		m.logger.Debug(context.Background(), "motor imagery epoch rejected", logger.Error(err))
		metrics.RecordDetection("motor_imagery", Ambiguous.String())
		return Ambiguous
	}
	metrics.ObserveMotorImageryRatio(ratio)

	class := Ambiguous
	switch {
	case ratio < m.leftThreshold:
		class = Left
	case ratio > m.rightThreshold:
		class = Right
	}
	metrics.RecordDetection("motor_imagery", class.String())
	return class
}
