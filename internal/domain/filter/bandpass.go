package filter

import (
	"fmt"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
)

// Bandpass is an immutable band-pass design. Apply is safe for concurrent use.
type Bandpass struct {
	spec   Spec
	coeffs []biquad.Coefficients
	// zi holds each section's steady-state delay line for a unit step input.
	zi     [][2]float64
	padLen int
}

// NewBandpass validates spec and designs the filter.
func NewBandpass(spec Spec) (*Bandpass, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	coeffs := design(spec)
	return &Bandpass{
		spec:   spec,
		coeffs: coeffs,
		zi:     steadyState(coeffs),
		padLen: PadLenFor(len(coeffs)),
	}, nil
}

// PadLenFor is the edge extension length of a band-pass of the given order.
// Signals passed to Apply must be strictly longer.
func PadLenFor(order int) int { return 3 * (2*order + 1) }

// Spec returns the design parameters.
func (b *Bandpass) Spec() Spec { return b.spec }

// Sections returns a copy of the second-order sections.
func (b *Bandpass) Sections() []biquad.Coefficients {
	out := make([]biquad.Coefficients, len(b.coeffs))
	copy(out, b.coeffs)
	return out
}

// PadLen is the edge extension length. Inputs must be strictly longer.
func (b *Bandpass) PadLen() int { return b.padLen }

// Response evaluates the single-pass frequency response at freqHz.
func (b *Bandpass) Response(freqHz float64) complex128 {
	return biquad.NewChain(b.coeffs).Response(freqHz, b.spec.SampleRateHz)
}

// Apply filters x forward and backward so the output has no phase shift.
// The input is left untouched. Signals of PadLen samples or fewer are
// rejected with ErrSignalTooShort.
func (b *Bandpass) Apply(x []float64) ([]float64, error) {
	if len(x) <= b.padLen {
		return nil, fmt.Errorf("%w: %d samples, need more than %d", ErrSignalTooShort, len(x), b.padLen)
	}

	ext := oddExtend(x, b.padLen)
	chain := biquad.NewChain(b.coeffs)

	chain.SetState(b.scaledState(ext[0]))
	chain.ProcessBlock(ext)

	reverse(ext)
	chain.SetState(b.scaledState(ext[0]))
	chain.ProcessBlock(ext)
	reverse(ext)

	out := make([]float64, len(x))
	copy(out, ext[b.padLen:b.padLen+len(x)])
	return out, nil
}

func (b *Bandpass) scaledState(x0 float64) [][2]float64 {
	st := make([][2]float64, len(b.zi))
	for i, z := range b.zi {
		st[i] = [2]float64{z[0] * x0, z[1] * x0}
	}
	return st
}

// steadyState returns the delay lines each section settles to when the
// cascade is driven by a unit step, scaled by the DC gain of the sections
// before it.
func steadyState(coeffs []biquad.Coefficients) [][2]float64 {
	zi := make([][2]float64, len(coeffs))
	scale := 1.0
	for i, c := range coeffs {
		den := 1 + c.A1 + c.A2
		dc := (c.B0 + c.B1 + c.B2) / den
		d1 := c.B2 - c.A2*dc
		d0 := c.B1 - c.A1*dc + d1
		zi[i] = [2]float64{d0 * scale, d1 * scale}
		scale *= dc
	}
	return zi
}

// oddExtend reflects n samples about each end point: 2*x[0]-x[n..1] before
// and 2*x[last]-x[last-1..last-n] after.
func oddExtend(x []float64, n int) []float64 {
	last := len(x) - 1
	out := make([]float64, len(x)+2*n)
	for i := 0; i < n; i++ {
		out[i] = 2*x[0] - x[n-i]
		out[n+len(x)+i] = 2*x[last] - x[last-1-i]
	}
	copy(out[n:], x)
	return out
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}
