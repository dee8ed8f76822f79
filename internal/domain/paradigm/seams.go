package paradigm

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/bci/internal/domain/detect"
	"github.com/okian/bci/internal/domain/eeg"
	"github.com/okian/bci/internal/domain/model"
)

// EpochSource supplies the newest n samples.
type EpochSource interface {
	GetEpoch(n int) eeg.Epoch
}

// TargetDetector decides whether an epoch followed a target stimulus.
type TargetDetector interface {
	Detect(ep eeg.Epoch) bool
}

// IntentClassifier labels a motor imagery epoch.
type IntentClassifier interface {
	Classify(ep eeg.Epoch) detect.Class
}

// Notifier receives presentation events. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, e model.Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, e model.Event)

func (f NotifierFunc) Notify(ctx context.Context, e model.Event) { f(ctx, e) }

// Notifiers fans one event out to several notifiers in order.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, e model.Event) {
	for _, n := range ns {
		if n != nil {
			n.Notify(ctx, e)
		}
	}
}

// Permuter yields a presentation order for n options.
type Permuter interface {
	Permute(n int) []int
}

type randPermuter struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewPermuter returns a permuter seeded with seed, or from the clock when seed is zero.
func NewPermuter(seed int64) Permuter {
	s := uint64(seed)
	if seed == 0 {
		s = uint64(time.Now().UnixNano())
	}
	return &randPermuter{r: rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))}
}

func (p *randPermuter) Permute(n int) []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.r.Perm(n)
}

// Clock abstracts the deliberate waits of both protocols.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

func (wallClock) Sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

// WallClock returns the real-time clock.
func WallClock() Clock { return wallClock{} }
