package paradigm

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/bci/internal/domain/detect"
	"github.com/okian/bci/internal/domain/eeg"
	"github.com/okian/bci/internal/domain/model"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

type fakeSource struct {
	requests []int
}

func (s *fakeSource) GetEpoch(n int) eeg.Epoch {
	s.requests = append(s.requests, n)
	return eeg.Epoch{Data: [][]float64{make([]float64, n)}}
}

// recorder captures events and remembers the last cue so a scripted
// detector can answer per option and repetition.
type recorder struct {
	events  []model.Event
	lastCue model.Event
}

func (r *recorder) Notify(_ context.Context, e model.Event) {
	r.events = append(r.events, e)
	if e.Kind == model.KindCue {
		r.lastCue = e
	}
}

func (r *recorder) kinds(k model.Kind) []model.Event {
	var out []model.Event
	for _, e := range r.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

type scriptedDetector struct {
	cues *recorder
	// hits[repetition] lists options that detect in that repetition.
	hits map[int][]int
}

func (d *scriptedDetector) Detect(eeg.Epoch) bool {
	for _, opt := range d.hits[d.cues.lastCue.Repetition] {
		if opt == d.cues.lastCue.Option {
			return true
		}
	}
	return false
}

type scriptedClassifier struct {
	classes []detect.Class
	calls   int
}

func (c *scriptedClassifier) Classify(eeg.Epoch) detect.Class {
	cl := c.classes[c.calls%len(c.classes)]
	c.calls++
	return cl
}

type fixedPermuter struct{ orders [][]int }

func (p *fixedPermuter) Permute(n int) []int {
	if len(p.orders) == 0 {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	o := p.orders[0]
	p.orders = p.orders[1:]
	return o
}

func TestRunSelection(t *testing.T) {
	Convey("Given a controller with a scripted detector", t, func() {
		ctx := context.Background()
		clk := &fakeClock{now: time.Unix(0, 0)}
		rec := &recorder{}
		src := &fakeSource{}
		det := &scriptedDetector{cues: rec}

		ctrl, err := New(det, &scriptedClassifier{classes: []detect.Class{detect.Right}},
			WithClock(clk), WithNotifier(rec), WithPermuter(NewPermuter(7)))
		So(err, ShouldBeNil)
		So(ctrl.State(), ShouldEqual, Idle)

		Convey("Detections accumulate per option and the top score wins", func() {
			det.hits = map[int][]int{0: {1, 2}, 1: {1}}
			s, _ := NewSession([]string{"a", "b", "c"}, 2)

			winner, err := ctrl.RunSelection(ctx, s, src)
			So(err, ShouldBeNil)
			So(s.Scores(), ShouldResemble, []int{0, 2, 1})
			So(winner, ShouldEqual, 1)
			So(ctrl.State(), ShouldEqual, Selected)

			sel := rec.kinds(model.KindSelected)
			So(len(sel), ShouldEqual, 1)
			So(sel[0].Option, ShouldEqual, 1)
			So(sel[0].Label, ShouldEqual, "b")
			So(sel[0].Scores, ShouldResemble, []int{0, 2, 1})
			So(len(rec.kinds(model.KindScore)), ShouldEqual, 3)
		})

		Convey("Ties go to the lowest index", func() {
			det.hits = map[int][]int{0: {0, 1}, 1: {0, 1}}
			s, _ := NewSession([]string{"a", "b", "c"}, 2)

			winner, err := ctrl.RunSelection(ctx, s, src)
			So(err, ShouldBeNil)
			So(s.Scores(), ShouldResemble, []int{2, 2, 0})
			So(winner, ShouldEqual, 0)
		})

		Convey("No detections at all selects option 0", func() {
			s, _ := NewSession([]string{"a", "b"}, 1)
			winner, err := ctrl.RunSelection(ctx, s, src)
			So(err, ShouldBeNil)
			So(winner, ShouldEqual, 0)
		})

		Convey("Every repetition presents each option exactly once", func() {
			s, _ := NewSession([]string{"a", "b", "c", "d", "e", "f"}, 3)
			_, err := ctrl.RunSelection(ctx, s, src)
			So(err, ShouldBeNil)

			cues := rec.kinds(model.KindCue)
			So(len(cues), ShouldEqual, 18)
			for rep := 0; rep < 3; rep++ {
				var seen []int
				for _, c := range cues[rep*6 : rep*6+6] {
					So(c.Repetition, ShouldEqual, rep)
					So(c.Label, ShouldEqual, s.Options[c.Option])
					seen = append(seen, c.Option)
				}
				sort.Ints(seen)
				So(seen, ShouldResemble, []int{0, 1, 2, 3, 4, 5})
			}
		})

		Convey("Each cue waits for the full window and captures 200 samples", func() {
			s, _ := NewSession([]string{"a", "b"}, 1)
			_, err := ctrl.RunSelection(ctx, s, src)
			So(err, ShouldBeNil)
			So(src.requests, ShouldResemble, []int{200, 200})
			So(clk.sleeps, ShouldResemble, []time.Duration{
				2 * time.Second,
				800 * time.Millisecond, 200 * time.Millisecond,
				800 * time.Millisecond, 200 * time.Millisecond,
			})
		})

		Convey("The round starts by announcing the options", func() {
			s, _ := NewSession([]string{"a", "b"}, 1)
			_, _ = ctrl.RunSelection(ctx, s, src)
			So(rec.events[0].Kind, ShouldEqual, model.KindRoundStarted)
			So(rec.events[0].Options, ShouldResemble, []string{"a", "b"})
			So(rec.events[0].SessionID, ShouldEqual, s.ID)
		})

		Convey("A scored session cannot be reused", func() {
			det.hits = map[int][]int{0: {0}}
			s, _ := NewSession([]string{"a", "b"}, 1)
			_, err := ctrl.RunSelection(ctx, s, src)
			So(err, ShouldBeNil)
			_, err = ctrl.RunSelection(ctx, s, src)
			So(errors.Is(err, ErrSessionUsed), ShouldBeTrue)
		})

		Convey("A session without detections cannot be reused either", func() {
			s, _ := NewSession([]string{"a", "b"}, 1)
			winner, err := ctrl.RunSelection(ctx, s, src)
			So(err, ShouldBeNil)
			So(winner, ShouldEqual, 0)
			So(s.Scores(), ShouldResemble, []int{0, 0})
			_, err = ctrl.RunSelection(ctx, s, src)
			So(errors.Is(err, ErrSessionUsed), ShouldBeTrue)
		})

		Convey("A cancelled context stops before any cue", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			s, _ := NewSession([]string{"a", "b"}, 3)
			_, err := ctrl.RunSelection(cctx, s, src)
			So(errors.Is(err, ErrStopped), ShouldBeTrue)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(len(rec.events), ShouldEqual, 0)
		})

		Convey("Cancelling mid-round finishes the current repetition first", func() {
			cctx, cancel := context.WithCancel(ctx)
			stopper := NotifierFunc(func(_ context.Context, e model.Event) {
				if e.Kind == model.KindCue {
					cancel()
				}
			})
			ctrl, err := New(det, nil, WithClock(clk), WithNotifier(Notifiers{rec, stopper}))
			So(err, ShouldBeNil)

			s, _ := NewSession([]string{"a", "b", "c"}, 3)
			_, err = ctrl.RunSelection(cctx, s, src)
			So(errors.Is(err, ErrStopped), ShouldBeTrue)
			So(len(rec.kinds(model.KindCue)), ShouldEqual, 3)
			So(len(src.requests), ShouldEqual, 3)
			So(ctrl.State(), ShouldEqual, Idle)
		})
	})

	Convey("Without cue alignment the epoch follows the ISI directly", t, func() {
		clk := &fakeClock{}
		ctrl, err := New(&scriptedDetector{cues: &recorder{}}, nil,
			WithClock(clk), WithCueAlignedEpochs(false), WithSelectionLeadIn(0),
			WithSelectionTiming(100*time.Millisecond, 50*time.Millisecond, 400*time.Millisecond),
			WithSampleRate(500), WithPermuter(&fixedPermuter{}))
		So(err, ShouldBeNil)
		src := &fakeSource{}
		s, _ := NewSession([]string{"only"}, 1)
		_, err = ctrl.RunSelection(context.Background(), s, src)
		So(err, ShouldBeNil)
		So(clk.sleeps, ShouldResemble, []time.Duration{0, 100 * time.Millisecond, 50 * time.Millisecond})
		So(src.requests, ShouldResemble, []int{200})
	})

	Convey("Invalid timing is rejected", t, func() {
		_, err := New(nil, nil, WithSampleRate(0))
		So(errors.Is(err, ErrInvalidTiming), ShouldBeTrue)
		_, err = New(nil, nil, WithSelectionTiming(-time.Second, 0, time.Second))
		So(errors.Is(err, ErrInvalidTiming), ShouldBeTrue)
		_, err = New(nil, nil, WithSelectionTiming(0, 0, time.Millisecond))
		So(errors.Is(err, ErrInvalidTiming), ShouldBeTrue)
	})
}

func TestRunConfirmation(t *testing.T) {
	Convey("Given a controller with a scripted classifier", t, func() {
		ctx := context.Background()
		clk := &fakeClock{}
		rec := &recorder{}
		src := &fakeSource{}
		cls := &scriptedClassifier{}
		ctrl, err := New(nil, cls, WithClock(clk), WithNotifier(rec))
		So(err, ShouldBeNil)

		Convey("Right confirms, Left rejects, anything else is ambiguous", func() {
			for class, want := range map[detect.Class]Outcome{
				detect.Right:     Confirmed,
				detect.Left:      Rejected,
				detect.Ambiguous: Ambiguous,
			} {
				cls.classes = []detect.Class{class}
				out, err := ctrl.RunConfirmation(ctx, src)
				So(err, ShouldBeNil)
				So(out, ShouldEqual, want)
			}
			So(ctrl.State(), ShouldEqual, Classified)
		})

		Convey("It waits the lead-in and capture window and takes three seconds of signal", func() {
			cls.classes = []detect.Class{detect.Right}
			_, err := ctrl.RunConfirmation(ctx, src)
			So(err, ShouldBeNil)
			So(clk.sleeps, ShouldResemble, []time.Duration{time.Second, 3 * time.Second})
			So(src.requests, ShouldResemble, []int{750})

			So(rec.events[0].Kind, ShouldEqual, model.KindCapture)
			So(rec.events[1].Kind, ShouldEqual, model.KindConfirmation)
			So(rec.events[1].Outcome, ShouldEqual, "confirmed")
		})

		Convey("A cancelled context does not capture", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := ctrl.RunConfirmation(cctx, src)
			So(errors.Is(err, ErrStopped), ShouldBeTrue)
			So(len(src.requests), ShouldEqual, 0)
		})

		Convey("ConfirmUntilDecided retries ambiguous results", func() {
			cls.classes = []detect.Class{detect.Ambiguous, detect.Ambiguous, detect.Right}
			out, attempts, err := ConfirmUntilDecided(ctx, ctrl, src, 5)
			So(err, ShouldBeNil)
			So(out, ShouldEqual, Confirmed)
			So(attempts, ShouldEqual, 3)
		})

		Convey("ConfirmUntilDecided gives up after its budget", func() {
			cls.classes = []detect.Class{detect.Ambiguous}
			out, attempts, err := ConfirmUntilDecided(ctx, ctrl, src, 2)
			So(err, ShouldBeNil)
			So(out, ShouldEqual, Ambiguous)
			So(attempts, ShouldEqual, 2)
			So(cls.calls, ShouldEqual, 2)
		})

		Convey("ConfirmUntilDecided stops on the first decisive answer", func() {
			cls.classes = []detect.Class{detect.Left}
			out, attempts, _ := ConfirmUntilDecided(ctx, ctrl, src, 0)
			So(out, ShouldEqual, Rejected)
			So(attempts, ShouldEqual, 1)
		})
	})
}
