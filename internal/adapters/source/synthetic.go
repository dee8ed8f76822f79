package source

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/okian/bci/internal/domain/model"
)

// Evoked response shape: a Gaussian bump peaking 300 ms after the cue.
const (
	evokedLatency = 300 * time.Millisecond
	evokedWidth   = 50 * time.Millisecond
	evokedSpan    = 600 * time.Millisecond
	muFrequencyHz = 10.0
	// muStrong and muWeak scale the mu amplitude on the favoured and the
	// suppressed hemisphere when a bias is set.
	muStrong = 1.5
	muWeak   = 0.5
)

// SyntheticConfig tunes the generator.
type SyntheticConfig struct {
	Channels int
	RateHz   float64
	// Seed fixes the noise; zero seeds from the clock.
	Seed            int64
	NoiseMicrovolts float64

	// EvokedMicrovolts is the height of the response added to EvokedChannel
	// after every cue for TargetOption. A negative target disables it.
	EvokedMicrovolts float64
	EvokedChannel    int
	TargetOption     int

	// MuMicrovolts is the amplitude of the 10 Hz rhythm on the two motor
	// channels. MuBias "right" makes the left channel stronger, "left" the
	// right one.
	MuMicrovolts float64
	MuBias       string
	LeftChannel  int
	RightChannel int
}

// Synthetic generates noise plus optional evoked and mu components. It
// implements paradigm.Notifier so cues can trigger the evoked response.
type Synthetic struct {
	cfg   SyntheticConfig
	noise distuv.Normal
	phase float64

	mu      sync.Mutex
	t       int64
	evokeAt int64
	target  int
	bias    string
}

// NewSynthetic validates cfg and returns a generator.
func NewSynthetic(cfg SyntheticConfig) (*Synthetic, error) {
	if cfg.Channels < 1 {
		return nil, ErrNoChannels
	}
	if cfg.RateHz <= 0 {
		return nil, fmt.Errorf("synthetic source: sample rate must be positive, got %v", cfg.RateHz)
	}
	for _, ch := range []int{cfg.EvokedChannel, cfg.LeftChannel, cfg.RightChannel} {
		if ch < 0 || ch >= cfg.Channels {
			return nil, fmt.Errorf("synthetic source: channel %d out of range for %d channels", ch, cfg.Channels)
		}
	}
	seed := uint64(cfg.Seed)
	if cfg.Seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	src := rand.NewPCG(seed, seed>>1|1)
	return &Synthetic{
		cfg:     cfg,
		noise:   distuv.Normal{Mu: 0, Sigma: math.Max(cfg.NoiseMicrovolts, 0), Src: src},
		phase:   rand.New(src).Float64() * 2 * math.Pi,
		evokeAt: -1,
		target:  cfg.TargetOption,
		bias:    cfg.MuBias,
	}, nil
}

// SetTarget changes the option whose cues evoke a response.
func (s *Synthetic) SetTarget(option int) {
	s.mu.Lock()
	s.target = option
	s.mu.Unlock()
}

// SetMuBias changes the simulated motor imagery direction.
func (s *Synthetic) SetMuBias(bias string) {
	s.mu.Lock()
	s.bias = bias
	s.mu.Unlock()
}

// Notify starts an evoked response when the target option is cued.
func (s *Synthetic) Notify(_ context.Context, e model.Event) {
	if e.Kind != model.KindCue {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target >= 0 && e.Option == s.target {
		s.evokeAt = s.t
	}
}

// ReadSample produces the next sample.
func (s *Synthetic) ReadSample(context.Context) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := make([]float64, s.cfg.Channels)
	if s.noise.Sigma > 0 {
		for i := range values {
			values[i] = s.noise.Rand()
		}
	}

	secs := float64(s.t) / s.cfg.RateHz
	if s.cfg.MuMicrovolts > 0 {
		left, right := 1.0, 1.0
		switch s.bias {
		case "right":
			left, right = muStrong, muWeak
		case "left":
			left, right = muWeak, muStrong
		}
		wave := s.cfg.MuMicrovolts * math.Sin(2*math.Pi*muFrequencyHz*secs+s.phase)
		values[s.cfg.LeftChannel] += left * wave
		values[s.cfg.RightChannel] += right * wave
	}

	if s.evokeAt >= 0 && s.cfg.EvokedMicrovolts != 0 {
		since := float64(s.t-s.evokeAt) / s.cfg.RateHz
		if since <= evokedSpan.Seconds() {
			d := (since - evokedLatency.Seconds()) / evokedWidth.Seconds()
			values[s.cfg.EvokedChannel] += s.cfg.EvokedMicrovolts * math.Exp(-0.5*d*d)
		} else {
			s.evokeAt = -1
		}
	}

	s.t++
	return values, nil
}

// Close is a no-op.
func (s *Synthetic) Close() error { return nil }
