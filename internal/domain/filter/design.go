// Package filter implements a zero-phase Butterworth band-pass over
// second-order sections.
package filter

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
)

// Spec describes a band-pass design.
type Spec struct {
	LowHz        float64
	HighHz       float64
	Order        int
	SampleRateHz float64
}

// Validate enforces 0 < low < high < Nyquist and order >= 1.
func (s Spec) Validate() error {
	if s.SampleRateHz <= 0 {
		return fmt.Errorf("%w: sample rate %v", ErrInvalidSpec, s.SampleRateHz)
	}
	nyquist := s.SampleRateHz / 2
	if !(s.LowHz > 0 && s.LowHz < s.HighHz && s.HighHz < nyquist) {
		return fmt.Errorf("%w: band %v..%v Hz outside (0, %v)", ErrInvalidSpec, s.LowHz, s.HighHz, nyquist)
	}
	if s.Order < 1 {
		return fmt.Errorf("%w: order %d", ErrInvalidSpec, s.Order)
	}
	return nil
}

// CenterHz is the geometric centre of the pass band.
func (s Spec) CenterHz() float64 {
	return math.Sqrt(s.LowHz * s.HighHz)
}

// design returns Order sections realising a Butterworth band-pass of total
// order 2*Order. Each section is normalised to unit gain at the digital
// image of the analog centre frequency.
func design(s Spec) []biquad.Coefficients {
	fs := s.SampleRateHz
	n := s.Order

	// Pre-warped analog band edges.
	w1 := 2 * fs * math.Tan(math.Pi*s.LowHz/fs)
	w2 := 2 * fs * math.Tan(math.Pi*s.HighHz/fs)
	bw := w2 - w1
	w0sq := w1 * w2
	centerHz := math.Atan(math.Sqrt(w0sq)/(2*fs)) * fs / math.Pi

	bilinear := func(p complex128) complex128 {
		k := complex(2*fs, 0)
		return (k + p) / (k - p)
	}
	// lowpass pole -> the two band-pass poles it maps to
	transform := func(p complex128) (complex128, complex128) {
		plp := p * complex(bw/2, 0)
		d := cmplx.Sqrt(plp*plp - complex(w0sq, 0))
		return plp + d, plp - d
	}

	sections := make([]biquad.Coefficients, 0, n)
	for k := 0; k < n; k++ {
		m := float64(-n + 1 + 2*k)
		p := -cmplx.Exp(complex(0, math.Pi*m/float64(2*n)))

		switch {
		case m < 0:
			// Upper half-plane: each band-pass pole pairs with its own conjugate.
			s1, s2 := transform(p)
			for _, sp := range []complex128{s1, s2} {
				z := bilinear(sp)
				sections = append(sections, section(z, cmplx.Conj(z), centerHz, fs))
			}
		case m == 0:
			// The real pole of an odd order maps to a real or conjugate pair.
			s1, s2 := transform(complex(real(p), 0))
			sections = append(sections, section(bilinear(s1), bilinear(s2), centerHz, fs))
		}
	}
	return sections
}

// section builds one biquad with zeros at z=+1 and z=-1 and the given poles.
func section(p1, p2 complex128, centerHz, fs float64) biquad.Coefficients {
	c := biquad.Coefficients{
		B0: 1,
		B1: 0,
		B2: -1,
		A1: -real(p1 + p2),
		A2: real(p1 * p2),
	}
	g := 1 / cmplx.Abs(c.Response(centerHz, fs))
	c.B0 *= g
	c.B2 *= g
	return c
}
