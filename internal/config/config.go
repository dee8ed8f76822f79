// Package config defines the service configuration and its defaults.
//
// Conventions:
//   - New(ctx) returns a Config populated with defaults.
//   - Load(ctx) layers a YAML file and environment variables on top.
//   - Validate reports every problem wrapped in ErrInvalidConfig.
package config

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/okian/bci/internal/domain/eeg"
	"github.com/okian/bci/internal/domain/filter"
)

// Source kinds.
const (
	SourceSynthetic = "synthetic"
	SourceUnicorn   = "unicorn"
	SourceEDF       = "edf"
)

// Menu item kinds.
const (
	MenuAction  = "action"
	MenuSubmenu = "menu"
	MenuSpeller = "speller"
	MenuFinish  = "finish"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// SampleRateHz is the acquisition rate shared by every channel.
	SampleRateHz float64 `koanf:"sample_rate_hz"`

	// ChannelNames fixes the channel order of every sample and epoch.
	ChannelNames []string `koanf:"channel_names"`

	// BufferSeconds sizes the acquisition ring buffer.
	BufferSeconds float64 `koanf:"buffer_seconds"`

	// StopTimeout bounds how long Stop waits for the producer goroutine.
	StopTimeout time.Duration `koanf:"stop_timeout"`

	Source  SourceConfig       `koanf:"source"`
	P300    P300Config         `koanf:"p300"`
	MI      MotorImageryConfig `koanf:"mi"`
	Chat    ChatConfig         `koanf:"chat"`
	Speller SpellerConfig      `koanf:"speller"`

	// Menu is the option tree offered by selection rounds.
	Menu []MenuItem `koanf:"menu"`

	// EventQueueSize bounds the UI event queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of event delivery workers.
	WorkerCount int `koanf:"worker_count"`

	// HistorySize caps the in-memory decision history.
	HistorySize int `koanf:"history_size"`

	// MaxHistoryLimit caps GET /history?limit.
	MaxHistoryLimit int `koanf:"max_history_limit"`
}

// SourceConfig selects and tunes the signal source.
type SourceConfig struct {
	Kind string `koanf:"kind"`

	// Unicorn serial device.
	SerialPort string `koanf:"serial_port"`
	BaudRate   int    `koanf:"baud_rate"`

	// EDF replay.
	EDFPath     string `koanf:"edf_path"`
	EDFLoop     bool   `koanf:"edf_loop"`
	EDFChannels []int  `koanf:"edf_channels"`

	// Synthetic generator.
	Seed             int64   `koanf:"seed"`
	NoiseMicrovolts  float64 `koanf:"noise_uv"`
	EvokedMicrovolts float64 `koanf:"evoked_uv"`
	TargetOption     int     `koanf:"target_option"`
	MuMicrovolts     float64 `koanf:"mu_uv"`
	MuBias           string  `koanf:"mu_bias"`
}

// P300Config tunes the oddball selection paradigm and its detector.
type P300Config struct {
	Channel         int           `koanf:"channel"`
	LowHz           float64       `koanf:"low_hz"`
	HighHz          float64       `koanf:"high_hz"`
	FilterOrder     int           `koanf:"filter_order"`
	WindowStart     time.Duration `koanf:"window_start"`
	WindowEnd       time.Duration `koanf:"window_end"`
	Threshold       float64       `koanf:"threshold"`
	EpochWindow     time.Duration `koanf:"epoch_window"`
	Repetitions     int           `koanf:"repetitions"`
	ISI             time.Duration `koanf:"isi"`
	InterFlashPause time.Duration `koanf:"inter_flash_pause"`
	LeadIn          time.Duration `koanf:"lead_in"`
	// Seed fixes the presentation order; zero seeds from the clock.
	Seed int64 `koanf:"seed"`
}

// MotorImageryConfig tunes the confirmation paradigm and its classifier.
type MotorImageryConfig struct {
	LeftChannel    int           `koanf:"left_channel"`
	RightChannel   int           `koanf:"right_channel"`
	LowHz          float64       `koanf:"low_hz"`
	HighHz         float64       `koanf:"high_hz"`
	FilterOrder    int           `koanf:"filter_order"`
	LeftThreshold  float64       `koanf:"left_threshold"`
	RightThreshold float64       `koanf:"right_threshold"`
	Capture        time.Duration `koanf:"capture"`
	LeadIn         time.Duration `koanf:"lead_in"`
	MaxAttempts    int           `koanf:"max_attempts"`
}

// ChatConfig configures the action connector. An empty APIKey selects the demo responder.
type ChatConfig struct {
	APIKey       string        `koanf:"api_key"`
	BaseURL      string        `koanf:"base_url"`
	Model        string        `koanf:"model"`
	MaxTokens    int           `koanf:"max_tokens"`
	SystemPrompt string        `koanf:"system_prompt"`
	Timeout      time.Duration `koanf:"timeout"`
}

// SpellerConfig configures the UDP speller listener.
type SpellerConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Addr          string        `koanf:"addr"`
	PhraseTimeout time.Duration `koanf:"phrase_timeout"`
}

// MenuItem is one node of the option tree. Kind defaults to "menu" when the
// item has children and "action" otherwise.
type MenuItem struct {
	Label    string     `koanf:"label"`
	Kind     string     `koanf:"kind"`
	Prompt   string     `koanf:"prompt"`
	Children []MenuItem `koanf:"children"`
}

// New returns a Config populated with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:      "info",
		LogFormat:     "text",
		Addr:          ":9080",
		SampleRateHz:  250,
		ChannelNames:  []string{"Fz", "C3", "Cz", "C4", "Pz", "PO7", "Oz", "PO8"},
		BufferSeconds: 5,
		StopTimeout:   2 * time.Second,
		Source: SourceConfig{
			Kind:             SourceSynthetic,
			BaudRate:         115200,
			EDFLoop:          true,
			NoiseMicrovolts:  10,
			EvokedMicrovolts: 0,
			TargetOption:     -1,
		},
		P300: P300Config{
			Channel:         4,
			LowHz:           0.5,
			HighHz:          10,
			FilterOrder:     4,
			WindowStart:     250 * time.Millisecond,
			WindowEnd:       500 * time.Millisecond,
			Threshold:       5.0,
			EpochWindow:     800 * time.Millisecond,
			Repetitions:     3,
			ISI:             150 * time.Millisecond,
			InterFlashPause: 200 * time.Millisecond,
			LeadIn:          2 * time.Second,
		},
		MI: MotorImageryConfig{
			LeftChannel:    1,
			RightChannel:   3,
			LowHz:          8,
			HighHz:         13,
			FilterOrder:    4,
			LeftThreshold:  0.7,
			RightThreshold: 1.3,
			Capture:        3 * time.Second,
			LeadIn:         time.Second,
			MaxAttempts:    3,
		},
		Chat: ChatConfig{
			Model:        "gpt-4o",
			MaxTokens:    200,
			SystemPrompt: "You are an assistant controlled by a brain-computer interface. Answer concisely.",
			Timeout:      30 * time.Second,
		},
		Speller: SpellerConfig{
			Addr:          "127.0.0.1:1000",
			PhraseTimeout: 2 * time.Minute,
		},
		Menu:            DefaultMenu(),
		EventQueueSize:  1024,
		WorkerCount:     1,
		HistorySize:     256,
		MaxHistoryLimit: 100,
	}
}

// DefaultMenu is the flat action menu.
func DefaultMenu() []MenuItem {
	return []MenuItem{
		{Label: "Ask a question", Kind: MenuAction, Prompt: "What is the capital of France?"},
		{Label: "Continue conversation", Kind: MenuAction, Prompt: "Continue with the previous topic."},
		{Label: "Summarize answer", Kind: MenuAction, Prompt: "Summarize the previous answer in one sentence."},
		{Label: "Explain more simply", Kind: MenuAction, Prompt: "Explain it as if I were ten years old."},
		{Label: "Give an example", Kind: MenuAction, Prompt: "Give me a practical example."},
		{Label: "Finish", Kind: MenuFinish},
	}
}

// EffectiveKind resolves the item's kind, inferring it when unset.
func (m MenuItem) EffectiveKind() string {
	if m.Kind != "" {
		return strings.ToLower(m.Kind)
	}
	if len(m.Children) > 0 {
		return MenuSubmenu
	}
	return MenuAction
}

// Validate checks the configuration and joins every problem found.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidConfig}, args...)...))
	}

	if c.Addr == "" {
		bad("addr must not be empty")
	}
	if c.SampleRateHz <= 0 {
		bad("sample_rate_hz must be positive, got %v", c.SampleRateHz)
	}
	if len(c.ChannelNames) == 0 {
		bad("channel_names must not be empty")
	}
	if c.BufferSeconds <= 0 {
		bad("buffer_seconds must be positive, got %v", c.BufferSeconds)
	}
	if c.StopTimeout <= 0 {
		bad("stop_timeout must be positive")
	}

	switch c.Source.Kind {
	case SourceSynthetic:
	case SourceUnicorn:
		if c.Source.SerialPort == "" {
			bad("source.serial_port is required for the unicorn source")
		}
	case SourceEDF:
		if c.Source.EDFPath == "" {
			bad("source.edf_path is required for the edf source")
		}
	default:
		bad("unknown source.kind %q", c.Source.Kind)
	}
	switch c.Source.MuBias {
	case "", "left", "right":
	default:
		bad("source.mu_bias must be left, right or empty, got %q", c.Source.MuBias)
	}

	nyquist := c.SampleRateHz / 2
	channels := len(c.ChannelNames)
	checkBand := func(name string, low, high float64, order int) {
		if low <= 0 || low >= high || high >= nyquist {
			bad("%s band must satisfy 0 < low < high < %v, got %v..%v", name, nyquist, low, high)
		}
		if order < 1 {
			bad("%s.filter_order must be at least 1", name)
		}
	}
	checkChannel := func(name string, idx int) {
		if idx < 0 || idx >= channels {
			bad("%s %d out of range for %d channels", name, idx, channels)
		}
	}

	checkChannel("p300.channel", c.P300.Channel)
	checkBand("p300", c.P300.LowHz, c.P300.HighHz, c.P300.FilterOrder)
	if c.P300.WindowStart < 0 || c.P300.WindowEnd <= c.P300.WindowStart {
		bad("p300 window must satisfy 0 <= start < end")
	}
	if c.P300.EpochWindow < c.P300.WindowEnd {
		bad("p300.epoch_window must cover the detection window")
	}
	if c.P300.Repetitions < 1 {
		bad("p300.repetitions must be at least 1")
	}
	if c.P300.ISI < 0 || c.P300.InterFlashPause < 0 || c.P300.LeadIn < 0 {
		bad("p300 timings must not be negative")
	}

	checkChannel("mi.left_channel", c.MI.LeftChannel)
	checkChannel("mi.right_channel", c.MI.RightChannel)
	checkBand("mi", c.MI.LowHz, c.MI.HighHz, c.MI.FilterOrder)
	if c.MI.LeftThreshold <= 0 || c.MI.LeftThreshold > c.MI.RightThreshold {
		bad("mi thresholds must satisfy 0 < left <= right")
	}
	if c.MI.Capture <= 0 || c.MI.LeadIn < 0 {
		bad("mi.capture must be positive and mi.lead_in not negative")
	}
	if c.MI.MaxAttempts < 1 {
		bad("mi.max_attempts must be at least 1")
	}

	if c.SampleRateHz > 0 && c.BufferSeconds > 0 {
		capacity := int(math.Ceil(c.BufferSeconds * c.SampleRateHz))
		checkEpoch := func(name string, d time.Duration, order int) {
			n := eeg.SamplesFor(d, c.SampleRateHz)
			if n > capacity {
				bad("%s of %d samples exceeds the %d-sample buffer", name, n, capacity)
			}
			if pad := filter.PadLenFor(order); order >= 1 && n <= pad {
				bad("%s of %d samples must exceed the filter pad length %d", name, n, pad)
			}
		}
		checkEpoch("p300.epoch_window", c.P300.EpochWindow, c.P300.FilterOrder)
		checkEpoch("mi.capture", c.MI.Capture, c.MI.FilterOrder)
	}

	if c.Chat.MaxTokens < 1 {
		bad("chat.max_tokens must be at least 1")
	}
	if c.Speller.Enabled && c.Speller.Addr == "" {
		bad("speller.addr is required when the speller is enabled")
	}

	if len(c.Menu) == 0 {
		bad("menu must not be empty")
	}
	validateMenu(c.Menu, "menu", bad)

	if c.EventQueueSize < 1 || c.WorkerCount < 1 || c.HistorySize < 1 || c.MaxHistoryLimit < 1 {
		bad("queue_size, worker_count, history_size and max_history_limit must be positive")
	}

	return errors.Join(errs...)
}

func validateMenu(items []MenuItem, path string, bad func(string, ...interface{})) {
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		where := fmt.Sprintf("%s[%d]", path, i)
		if item.Label == "" {
			bad("%s has no label", where)
		}
		if seen[item.Label] {
			bad("%s duplicates label %q", where, item.Label)
		}
		seen[item.Label] = true

		switch item.EffectiveKind() {
		case MenuAction:
			if item.Prompt == "" {
				bad("%s action %q has no prompt", where, item.Label)
			}
		case MenuSubmenu:
			if len(item.Children) == 0 {
				bad("%s menu %q has no children", where, item.Label)
			}
			validateMenu(item.Children, where+".children", bad)
		case MenuSpeller, MenuFinish:
		default:
			bad("%s has unknown kind %q", where, item.Kind)
		}
	}
}
