package service_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	workerpool "github.com/okian/bci/internal/adapters/mq/worker"
	"github.com/okian/bci/internal/adapters/source"
	service "github.com/okian/bci/internal/app"
	"github.com/okian/bci/internal/config"
	"github.com/okian/bci/internal/domain/model"
	"github.com/okian/bci/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

// fastConfig keeps selection rounds well under a second. The synthetic source
// evokes no response, so every round picks the first option.
func fastConfig(menu []config.MenuItem) *config.Config {
	cfg := config.New(context.Background())
	cfg.Addr = "127.0.0.1:0"
	cfg.Source.Seed = 7
	cfg.Source.NoiseMicrovolts = 1
	cfg.Source.MuMicrovolts = 40
	cfg.Source.MuBias = "right"
	cfg.P300.WindowStart = 0
	cfg.P300.WindowEnd = 40 * time.Millisecond
	cfg.P300.EpochWindow = 120 * time.Millisecond
	cfg.P300.Repetitions = 1
	cfg.P300.ISI = 0
	cfg.P300.InterFlashPause = 0
	cfg.P300.LeadIn = 0
	cfg.P300.Seed = 1
	cfg.MI.LeadIn = 0
	cfg.MI.Capture = time.Second
	cfg.MI.MaxAttempts = 1
	cfg.StopTimeout = time.Second
	cfg.Menu = menu
	return cfg
}

type fakeCompleter struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return "answer to " + prompt, nil
}

func (f *fakeCompleter) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

type eventLog struct {
	mu     sync.Mutex
	events []model.Event
}

func (l *eventLog) publisher() workerpool.Publisher {
	return workerpool.PublisherFunc(func(_ context.Context, e model.Event) error {
		l.mu.Lock()
		l.events = append(l.events, e)
		l.mu.Unlock()
		return nil
	})
}

func (l *eventLog) ofKind(k model.Kind) []model.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.Event
	for _, e := range l.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// stuckReader ignores cancellation until released. entered is closed on the
// first read.
type stuckReader struct {
	entered chan struct{}
	once    sync.Once
	release chan struct{}
}

func (r *stuckReader) ReadSample(context.Context) ([]float64, error) {
	r.once.Do(func() { close(r.entered) })
	<-r.release
	return nil, io.EOF
}

func (r *stuckReader) Close() error { return nil }

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestService_New(t *testing.T) {
	Convey("Given the default configuration", t, func() {
		svc, err := service.New(nil)

		Convey("Then the service is created and idle", func() {
			So(err, ShouldBeNil)
			So(svc, ShouldNotBeNil)
			So(svc.GetStats()["started"], ShouldEqual, false)
			So(svc.Count(context.Background()), ShouldEqual, 0)
		})
	})

	Convey("Given an invalid configuration", t, func() {
		cfg := config.New(context.Background())
		cfg.SampleRateHz = 0
		_, err := service.New(cfg)

		Convey("Then New reports it", func() {
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service on the synthetic source", t, func() {
		svc, err := service.New(fastConfig(config.DefaultMenu()))
		So(err, ShouldBeNil)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		Convey("Run before Start is refused", func() {
			So(errors.Is(svc.Run(ctx), service.ErrNotStarted), ShouldBeTrue)
		})

		Convey("When started twice", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)

			Convey("Then acquisition fills the buffer", func() {
				ok := waitFor(2*time.Second, func() bool {
					samples, _ := svc.GetStats()["samples"].(uint64)
					return samples > 10
				})
				So(ok, ShouldBeTrue)

				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["acquiring"], ShouldEqual, true)
				So(stats["source"], ShouldEqual, config.SourceSynthetic)
				So(stats["state"], ShouldEqual, "idle")
			})

			Convey("Then Stop shuts everything down and the service cannot restart", func() {
				So(svc.Stop(ctx), ShouldBeNil)
				So(svc.GetStats()["started"], ShouldEqual, false)
				So(svc.Stop(ctx), ShouldBeNil)
				So(errors.Is(svc.Start(ctx), service.ErrStopped), ShouldBeTrue)
			})

			Reset(func() { _ = svc.Stop(ctx) })
		})
	})
}

func TestService_StopTimeout(t *testing.T) {
	Convey("Given a service whose reader ignores cancellation", t, func() {
		cfg := fastConfig(config.DefaultMenu())
		cfg.StopTimeout = 20 * time.Millisecond
		reader := &stuckReader{entered: make(chan struct{}), release: make(chan struct{})}
		svc, err := service.New(cfg, service.WithReader(reader))
		So(err, ShouldBeNil)

		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		select {
		case <-reader.entered:
		case <-time.After(2 * time.Second):
			t.Fatal("producer never reached the reader")
		}

		Convey("Then every Stop reports the failed join until the producer exits", func() {
			So(errors.Is(svc.Stop(ctx), source.ErrStopTimeout), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldEqual, false)
			So(errors.Is(svc.Stop(ctx), source.ErrStopTimeout), ShouldBeTrue)

			close(reader.release)
			ok := waitFor(2*time.Second, func() bool { return svc.Stop(ctx) == nil })
			So(ok, ShouldBeTrue)
			So(errors.Is(svc.Start(ctx), service.ErrStopped), ShouldBeTrue)
		})
	})
}

func TestService_StartFailures(t *testing.T) {
	Convey("Given a unicorn source with the wrong number of channels", t, func() {
		cfg := fastConfig(config.DefaultMenu())
		cfg.Source.Kind = config.SourceUnicorn
		cfg.Source.SerialPort = "/dev/does-not-exist"
		cfg.ChannelNames = []string{"Fz", "C3", "Cz", "C4", "Pz"}
		svc, err := service.New(cfg)
		So(err, ShouldBeNil)

		Convey("Then Start fails before touching the port", func() {
			err := svc.Start(context.Background())
			So(errors.Is(err, service.ErrUnicornChannels), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})

	Convey("Given an EDF source whose file is missing", t, func() {
		cfg := fastConfig(config.DefaultMenu())
		cfg.Source.Kind = config.SourceEDF
		cfg.Source.EDFPath = t.TempDir() + "/missing.edf"
		svc, err := service.New(cfg)
		So(err, ShouldBeNil)

		Convey("Then Start returns the open error", func() {
			So(svc.Start(context.Background()), ShouldNotBeNil)
		})
	})
}

func TestService_Run(t *testing.T) {
	Convey("Given a nested menu whose first leaf finishes the session", t, func() {
		cfg := fastConfig([]config.MenuItem{
			{Label: "More", Children: []config.MenuItem{
				{Label: "Done", Kind: config.MenuFinish},
				{Label: "Ask", Prompt: "ask"},
			}},
			{Label: "Quit", Kind: config.MenuFinish},
		})
		events := &eventLog{}
		chat := &fakeCompleter{}
		svc, err := service.New(cfg,
			service.WithPublishers(events.publisher()),
			service.WithCompleter(chat))
		So(err, ShouldBeNil)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)

		Convey("When the loop runs", func() {
			runErr := svc.Run(ctx)
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then it descends into the submenu and ends there", func() {
				So(runErr, ShouldBeNil)

				selected := events.ofKind(model.KindSelected)
				So(len(selected), ShouldEqual, 2)
				So(selected[0].Label, ShouldEqual, "More")
				So(selected[1].Label, ShouldEqual, "Done")

				rounds := events.ofKind(model.KindRoundStarted)
				So(rounds[0].Options, ShouldResemble, []string{"More", "Quit"})
				So(rounds[1].Options, ShouldResemble, []string{"Done", "Ask"})

				end := events.ofKind(model.KindSessionEnd)
				So(len(end), ShouldEqual, 1)
				So(end[0].Label, ShouldEqual, "Done")

				So(chat.calls(), ShouldBeEmpty)
				So(svc.Count(ctx), ShouldEqual, 0)
				So(svc.GetStats()["rounds"], ShouldEqual, int64(2))
			})
		})
	})

	Convey("Given an action confirmed by right-hand imagery", t, func() {
		cfg := fastConfig([]config.MenuItem{
			{Label: "Ask", Prompt: "What time is it?"},
			{Label: "Quit", Kind: config.MenuFinish},
		})
		events := &eventLog{}
		chat := &fakeCompleter{}
		svc, err := service.New(cfg,
			service.WithPublishers(events.publisher()),
			service.WithCompleter(chat))
		So(err, ShouldBeNil)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)

		Convey("When the loop runs until one decision is recorded", func() {
			runCtx, stopRun := context.WithCancel(ctx)
			done := make(chan error, 1)
			go func() { done <- svc.Run(runCtx) }()

			recorded := waitFor(15*time.Second, func() bool { return svc.Count(ctx) > 0 })
			stopRun()
			runErr := <-done
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then the action is executed and recorded", func() {
				So(recorded, ShouldBeTrue)
				So(runErr, ShouldBeNil)

				recent, err := svc.Recent(ctx, 1)
				So(err, ShouldBeNil)
				So(len(recent), ShouldEqual, 1)
				d := recent[len(recent)-1]
				So(d.Label, ShouldEqual, "Ask")
				So(d.Option, ShouldEqual, 0)
				So(d.Outcome, ShouldEqual, "confirmed")
				So(d.Attempts, ShouldEqual, 1)
				So(d.Path, ShouldResemble, []string{"Ask"})
				So(d.Prompt, ShouldEqual, "What time is it?")
				So(d.Response, ShouldEqual, "answer to What time is it?")

				So(chat.calls()[0], ShouldEqual, "What time is it?")
				So(events.ofKind(model.KindAction)[0].Text, ShouldEqual, "What time is it?")
				So(events.ofKind(model.KindResponse)[0].Text, ShouldEqual, "answer to What time is it?")
				So(events.ofKind(model.KindConfirmation)[0].Outcome, ShouldEqual, "confirmed")
			})
		})
	})

	Convey("Given an action rejected by left-hand imagery", t, func() {
		cfg := fastConfig([]config.MenuItem{
			{Label: "Ask", Prompt: "What time is it?"},
			{Label: "Quit", Kind: config.MenuFinish},
		})
		cfg.Source.MuBias = "left"
		chat := &fakeCompleter{}
		svc, err := service.New(cfg, service.WithCompleter(chat))
		So(err, ShouldBeNil)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)

		Convey("When one decision is recorded", func() {
			runCtx, stopRun := context.WithCancel(ctx)
			done := make(chan error, 1)
			go func() { done <- svc.Run(runCtx) }()

			recorded := waitFor(15*time.Second, func() bool { return svc.Count(ctx) > 0 })
			stopRun()
			<-done
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then nothing is sent to the chat connector", func() {
				So(recorded, ShouldBeTrue)
				recent, _ := svc.Recent(ctx, 1)
				So(recent[0].Outcome, ShouldEqual, "rejected")
				So(recent[0].Response, ShouldBeEmpty)
				So(chat.calls(), ShouldBeEmpty)
			})
		})
	})

	Convey("Given a chat connector that fails", t, func() {
		cfg := fastConfig([]config.MenuItem{
			{Label: "Ask", Prompt: "hello"},
			{Label: "Quit", Kind: config.MenuFinish},
		})
		chat := &fakeCompleter{err: errors.New("upstream down")}
		svc, err := service.New(cfg, service.WithCompleter(chat))
		So(err, ShouldBeNil)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)

		Convey("Then the loop keeps going and the decision has no response", func() {
			runCtx, stopRun := context.WithCancel(ctx)
			done := make(chan error, 1)
			go func() { done <- svc.Run(runCtx) }()

			recorded := waitFor(15*time.Second, func() bool { return svc.Count(ctx) > 0 })
			stopRun()
			So(<-done, ShouldBeNil)
			So(svc.Stop(ctx), ShouldBeNil)

			So(recorded, ShouldBeTrue)
			recent, _ := svc.Recent(ctx, 1)
			So(recent[0].Outcome, ShouldEqual, "confirmed")
			So(recent[0].Response, ShouldBeEmpty)
		})
	})
}
