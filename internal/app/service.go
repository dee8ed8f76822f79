// Package service wires acquisition, detection and the paradigm controller
// to the delivery adapters and runs the select, confirm and act loop.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/bci/internal/adapters/chat"
	eventqueue "github.com/okian/bci/internal/adapters/mq/queue"
	workerpool "github.com/okian/bci/internal/adapters/mq/worker"
	repository "github.com/okian/bci/internal/adapters/repository"
	"github.com/okian/bci/internal/adapters/source"
	"github.com/okian/bci/internal/adapters/speller"
	"github.com/okian/bci/internal/config"
	"github.com/okian/bci/internal/domain/detect"
	"github.com/okian/bci/internal/domain/eeg"
	"github.com/okian/bci/internal/domain/menu"
	"github.com/okian/bci/internal/domain/model"
	"github.com/okian/bci/internal/domain/paradigm"
	"github.com/okian/bci/pkg/logger"
	"github.com/okian/bci/pkg/metrics"
)

// Service implements the API dependencies and owns every running component.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Core components
	stream     *source.Stream
	synthetic  *source.Synthetic
	controller *paradigm.Controller
	eventQueue *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool
	history    *repository.History
	completer  chat.Completer
	speller    *speller.Listener
	nav        *menu.Navigator

	// Injected collaborators
	reader       source.SampleReader
	publishers   []workerpool.Publisher
	paradigmOpts []paradigm.Option

	// State
	started       bool
	stopped       bool
	unjoined      bool
	stopSpeller   context.CancelFunc
	rounds        atomic.Int64
	confirmations atomic.Int64

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithReader replaces the sample reader selected by source.kind.
func WithReader(r source.SampleReader) Option {
	return func(s *Service) { s.reader = r }
}

// WithCompleter replaces the chat connector selected by the chat config.
func WithCompleter(c chat.Completer) Option {
	return func(s *Service) { s.completer = c }
}

// WithPublishers adds event sinks next to the log publisher, e.g. the websocket hub.
func WithPublishers(p ...workerpool.Publisher) Option {
	return func(s *Service) { s.publishers = append(s.publishers, p...) }
}

// WithParadigmOptions appends controller options after the configured ones.
func WithParadigmOptions(opts ...paradigm.Option) Option {
	return func(s *Service) { s.paradigmOpts = append(s.paradigmOpts, opts...) }
}

// New validates cfg and constructs a Service. A nil cfg uses the defaults.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.New(context.Background())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:     cfg,
		history: repository.NewHistory(repository.WithCapacity(cfg.HistorySize)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start builds the components and starts acquisition, event delivery and the
// speller listener. Calling it again is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.stopped {
		return ErrStopped
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	cfg := s.cfg

	s.logger.Info(ctx, "starting bci service...", logger.String("source", cfg.Source.Kind))

	nav, err := menu.New(menuNodes(cfg.Menu))
	if err != nil {
		return fmt.Errorf("menu: %w", err)
	}

	channels := len(cfg.ChannelNames)
	capacity := int(math.Ceil(cfg.BufferSeconds * cfg.SampleRateHz))
	buf, err := eeg.NewBuffer(channels, capacity)
	if err != nil {
		return fmt.Errorf("sample buffer: %w", err)
	}

	p300, err := detect.NewP300(
		detect.WithP300Channel(cfg.P300.Channel),
		detect.WithP300Threshold(cfg.P300.Threshold),
		detect.WithP300Window(cfg.P300.WindowStart, cfg.P300.WindowEnd),
		detect.WithP300Band(cfg.P300.LowHz, cfg.P300.HighHz, cfg.P300.FilterOrder),
		detect.WithP300SampleRate(cfg.SampleRateHz),
		detect.WithP300Logger(s.logger.Named("p300")),
	)
	if err != nil {
		return fmt.Errorf("p300 detector: %w", err)
	}
	mi, err := detect.NewMotorImagery(
		detect.WithMotorChannels(cfg.MI.LeftChannel, cfg.MI.RightChannel),
		detect.WithMotorThresholds(cfg.MI.LeftThreshold, cfg.MI.RightThreshold),
		detect.WithMotorBand(cfg.MI.LowHz, cfg.MI.HighHz, cfg.MI.FilterOrder),
		detect.WithMotorSampleRate(cfg.SampleRateHz),
		detect.WithMotorLogger(s.logger.Named("motor-imagery")),
	)
	if err != nil {
		return fmt.Errorf("motor imagery classifier: %w", err)
	}

	reader, pacing, err := s.openReader(channels)
	if err != nil {
		return err
	}

	queue := eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(cfg.EventQueueSize))
	notifiers := paradigm.Notifiers{queue}
	if s.synthetic != nil {
		notifiers = append(notifiers, s.synthetic)
	}

	popts := []paradigm.Option{
		paradigm.WithSampleRate(cfg.SampleRateHz),
		paradigm.WithSelectionTiming(cfg.P300.ISI, cfg.P300.InterFlashPause, cfg.P300.EpochWindow),
		paradigm.WithSelectionLeadIn(cfg.P300.LeadIn),
		paradigm.WithConfirmationTiming(cfg.MI.LeadIn, cfg.MI.Capture),
		paradigm.WithPermuter(paradigm.NewPermuter(cfg.P300.Seed)),
		paradigm.WithNotifier(notifiers),
		paradigm.WithLogger(s.logger.Named("paradigm")),
	}
	controller, err := paradigm.New(p300, mi, append(popts, s.paradigmOpts...)...)
	if err != nil {
		_ = reader.Close()
		_ = queue.Close()
		return fmt.Errorf("paradigm controller: %w", err)
	}

	var listener *speller.Listener
	if cfg.Speller.Enabled {
		listener = speller.NewListener(cfg.Speller.Addr, speller.WithLogger(s.logger.Named("speller")))
		if err := listener.Bind(); err != nil {
			_ = reader.Close()
			_ = queue.Close()
			return err
		}
	}

	if s.completer == nil {
		s.completer = chat.New(chat.Config{
			APIKey:       cfg.Chat.APIKey,
			BaseURL:      cfg.Chat.BaseURL,
			Model:        cfg.Chat.Model,
			MaxTokens:    cfg.Chat.MaxTokens,
			SystemPrompt: cfg.Chat.SystemPrompt,
			Timeout:      cfg.Chat.Timeout,
		})
	}

	// Workers outlive ctx; Stop closes the queue and lets them drain.
	publishers := append(append([]workerpool.Publisher(nil), s.publishers...),
		workerpool.NewLogPublisher(s.logger.Named("events")))
	pool := workerpool.NewPool(cfg.WorkerCount, queue, publishers...)
	pool.Start(context.WithoutCancel(ctx))

	stream := source.NewStream(reader, buf,
		source.WithName(cfg.Source.Kind),
		source.WithPacing(pacing),
		source.WithLogger(s.logger.Named("source")))
	if err := stream.Start(ctx); err != nil {
		_ = pool.Shutdown(ctx)
		if listener != nil {
			_ = listener.Close()
		}
		return fmt.Errorf("acquisition: %w", err)
	}

	if listener != nil {
		spellerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.stopSpeller = cancel
		go func() {
			if err := listener.Run(spellerCtx); err != nil {
				s.logger.Error(spellerCtx, "speller listener failed", logger.Error(err))
			}
		}()
	}

	s.nav = nav
	s.stream = stream
	s.controller = controller
	s.eventQueue = queue
	s.workerPool = pool
	s.speller = listener
	s.started = true

	s.logger.Info(ctx, "bci service started",
		logger.Int("channels", channels),
		logger.Float64("sampleRateHz", cfg.SampleRateHz),
		logger.Int("bufferCapacity", capacity),
		logger.Int("workers", cfg.WorkerCount),
		logger.Int("queueSize", cfg.EventQueueSize),
		logger.Bool("speller", listener != nil),
	)
	return nil
}

// openReader returns the configured sample reader and its pacing interval.
func (s *Service) openReader(channels int) (source.SampleReader, time.Duration, error) {
	cfg := s.cfg
	period := time.Duration(float64(time.Second) / cfg.SampleRateHz)
	if s.reader != nil {
		return s.reader, period, nil
	}

	switch cfg.Source.Kind {
	case config.SourceUnicorn:
		if channels != source.UnicornChannels {
			return nil, 0, fmt.Errorf("%w: got %d", ErrUnicornChannels, channels)
		}
		u, err := source.OpenUnicorn(cfg.Source.SerialPort, cfg.Source.BaudRate)
		if err != nil {
			return nil, 0, err
		}
		// The headset paces itself.
		return u, 0, nil

	case config.SourceEDF:
		picks := cfg.Source.EDFChannels
		if len(picks) == 0 {
			picks = make([]int, channels)
			for i := range picks {
				picks[i] = i
			}
		}
		if len(picks) != channels {
			return nil, 0, fmt.Errorf("%w: source.edf_channels lists %d signals for %d channels",
				config.ErrInvalidConfig, len(picks), channels)
		}
		e, err := source.OpenEDF(cfg.Source.EDFPath, picks, cfg.Source.EDFLoop)
		if err != nil {
			return nil, 0, err
		}
		return e, period, nil

	default:
		syn, err := source.NewSynthetic(source.SyntheticConfig{
			Channels:         channels,
			RateHz:           cfg.SampleRateHz,
			Seed:             cfg.Source.Seed,
			NoiseMicrovolts:  cfg.Source.NoiseMicrovolts,
			EvokedMicrovolts: cfg.Source.EvokedMicrovolts,
			EvokedChannel:    cfg.P300.Channel,
			TargetOption:     cfg.Source.TargetOption,
			MuMicrovolts:     cfg.Source.MuMicrovolts,
			MuBias:           cfg.Source.MuBias,
			LeftChannel:      cfg.MI.LeftChannel,
			RightChannel:     cfg.MI.RightChannel,
		})
		if err != nil {
			return nil, 0, err
		}
		s.synthetic = syn
		return syn, period, nil
	}
}

func menuNodes(items []config.MenuItem) []menu.Node {
	nodes := make([]menu.Node, len(items))
	for i, item := range items {
		nodes[i] = menu.Node{
			Label:    item.Label,
			Kind:     menu.Kind(item.EffectiveKind()),
			Prompt:   item.Prompt,
			Children: menuNodes(item.Children),
		}
	}
	return nodes
}

// Run executes selection rounds until the user chooses a finish item, the
// controller is stopped or ctx ends. Round errors are logged and the loop
// goes on.
func (s *Service) Run(ctx context.Context) error {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}

	for {
		finished, err := s.round(ctx)
		switch {
		case finished:
			s.logger.Info(ctx, "session finished by user")
			return nil
		case err == nil:
		case errors.Is(err, paradigm.ErrStopped) || ctx.Err() != nil:
			s.logger.Info(ctx, "session loop stopped")
			return nil
		default:
			metrics.RecordErrorByComponent("service", "round")
			s.logger.Error(ctx, "round failed", logger.Error(err))
		}
	}
}

// round runs one selection at the current menu level and acts on the result.
// It reports true when the user chose to finish.
func (s *Service) round(ctx context.Context) (bool, error) {
	sess, err := paradigm.NewSession(s.nav.Options(), s.cfg.P300.Repetitions)
	if err != nil {
		return false, err
	}
	idx, err := s.controller.RunSelection(ctx, sess, s.stream)
	if err != nil {
		return false, err
	}
	s.rounds.Add(1)

	step, err := s.nav.ChooseIndex(idx)
	if err != nil {
		return false, err
	}

	switch step.Kind {
	case menu.Submenu:
		s.logger.Debug(ctx, "entering menu", logger.Any("path", step.Path))
		return false, nil

	case menu.Finish:
		end := model.NewEvent(model.KindSessionEnd, sess.ID)
		end.Option, end.Label = idx, step.Label
		s.eventQueue.Notify(ctx, end)
		return true, nil

	case menu.Speller:
		phrase, err := s.spell(ctx, sess.ID)
		if err != nil {
			s.nav.Reset()
			return false, err
		}
		step.Prompt = phrase
	}

	return false, s.act(ctx, sess.ID, idx, step)
}

// spell waits for the next phrase typed on the speller.
func (s *Service) spell(ctx context.Context, sessionID string) (string, error) {
	if s.speller == nil {
		return "", ErrSpellerDisabled
	}
	phrase, err := s.speller.Next(ctx, s.cfg.Speller.PhraseTimeout)
	if err != nil {
		return "", fmt.Errorf("speller: %w", err)
	}
	ev := model.NewEvent(model.KindPhrase, sessionID)
	ev.Text = phrase
	s.eventQueue.Notify(ctx, ev)
	return phrase, nil
}

// act confirms step with motor imagery, runs it when confirmed and records
// the decision. The menu returns to the root either way.
func (s *Service) act(ctx context.Context, sessionID string, idx int, step menu.Step) error {
	defer s.nav.Reset()

	out, attempts, err := paradigm.ConfirmUntilDecided(ctx, s.controller, s.stream, s.cfg.MI.MaxAttempts)
	if err != nil {
		return err
	}
	s.confirmations.Add(1)

	d := model.Decision{
		SessionID: sessionID,
		Option:    idx,
		Label:     step.Label,
		Path:      step.Path,
		Outcome:   out.String(),
		Attempts:  attempts,
		Prompt:    step.Prompt,
		TS:        time.Now(),
	}
	if out != paradigm.Confirmed {
		s.logger.Info(ctx, "action not confirmed",
			logger.String("label", step.Label),
			logger.String("outcome", out.String()),
			logger.Int("attempts", attempts))
		return s.history.Record(ctx, d)
	}

	ev := model.NewEvent(model.KindAction, sessionID)
	ev.Option, ev.Label, ev.Text = idx, step.Label, step.Prompt
	s.eventQueue.Notify(ctx, ev)

	resp, chatErr := s.completer.Complete(ctx, step.Prompt)
	if chatErr == nil {
		d.Response = resp
		ev = model.NewEvent(model.KindResponse, sessionID)
		ev.Option, ev.Label, ev.Text = idx, step.Label, resp
		s.eventQueue.Notify(ctx, ev)
	}
	if err := s.history.Record(ctx, d); err != nil {
		return err
	}
	if chatErr != nil {
		return fmt.Errorf("action %q: %w", step.Label, chatErr)
	}
	s.logger.Info(ctx, "action executed", logger.String("label", step.Label), logger.Int("response_len", len(resp)))
	return nil
}

// Stop joins the producer first, bounded by stop_timeout, then stops the
// speller and drains event delivery. A producer that does not exit is
// reported as ErrStopTimeout, and every later Stop retries the join until
// it succeeds.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.stopped = true
		if s.unjoined {
			return s.joinStream(ctx)
		}
		return nil
	}

	s.logger.Info(ctx, "stopping bci service...")

	var errs []error
	if err := s.joinStream(ctx); err != nil {
		errs = append(errs, err)
	}

	if s.speller != nil {
		s.stopSpeller()
		if err := s.speller.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := s.workerPool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	s.started = false
	s.stopped = true
	s.logger.Info(ctx, "bci service stopped")
	return errors.Join(errs...)
}

// joinStream stops acquisition within stop_timeout and remembers a failed join.
func (s *Service) joinStream(ctx context.Context) error {
	stopCtx, cancel := context.WithTimeout(ctx, s.cfg.StopTimeout)
	defer cancel()
	err := s.stream.Stop(stopCtx)
	s.unjoined = err != nil
	return err
}

// Recent returns up to n decisions, newest first.
func (s *Service) Recent(ctx context.Context, n int) ([]model.Decision, error) {
	return s.history.Recent(ctx, n)
}

// Count returns the number of decisions recorded.
func (s *Service) Count(ctx context.Context) int {
	return s.history.Count(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":       s.started,
		"source":        s.cfg.Source.Kind,
		"sampleRateHz":  s.cfg.SampleRateHz,
		"channels":      s.cfg.ChannelNames,
		"workerCount":   s.cfg.WorkerCount,
		"queueSize":     s.cfg.EventQueueSize,
		"rounds":        s.rounds.Load(),
		"confirmations": s.confirmations.Load(),
		"decisions":     s.history.Count(ctx),
	}

	if s.started {
		buf := s.stream.Buffer()
		queueLen := s.eventQueue.Len(ctx)

		stats["acquiring"] = s.stream.Running()
		stats["samples"] = buf.Total()
		stats["bufferFill"] = float64(buf.Len()) / float64(buf.Cap())
		stats["queueLength"] = queueLen
		stats["state"] = s.controller.State().String()

		metrics.UpdateQueueSize(queueLen)
	}

	return stats
}
