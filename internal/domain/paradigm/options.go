package paradigm

import (
	"time"

	"github.com/okian/bci/pkg/logger"
)

// Option configures a Controller.
type Option func(*Controller)

// WithSampleRate sets the rate used to convert windows into sample counts.
func WithSampleRate(hz float64) Option {
	return func(c *Controller) { c.rateHz = hz }
}

// WithSelectionTiming sets the inter-stimulus interval, the pause after each
// cue and the epoch window captured per cue.
func WithSelectionTiming(isi, pause, window time.Duration) Option {
	return func(c *Controller) {
		c.isi, c.pause, c.window = isi, pause, window
	}
}

// WithSelectionLeadIn sets the settle time before the first cue.
func WithSelectionLeadIn(d time.Duration) Option {
	return func(c *Controller) { c.selectionLeadIn = d }
}

// WithConfirmationTiming sets the settle time before capture and the capture length.
func WithConfirmationTiming(leadIn, capture time.Duration) Option {
	return func(c *Controller) {
		c.confirmLeadIn, c.capture = leadIn, capture
	}
}

// WithCueAlignedEpochs controls whether the controller waits for the whole
// window after a cue so the captured epoch starts at the cue. When false the
// epoch is taken right after the inter-stimulus interval.
func WithCueAlignedEpochs(aligned bool) Option {
	return func(c *Controller) { c.aligned = aligned }
}

// WithPermuter sets the presentation order source.
func WithPermuter(p Permuter) Option {
	return func(c *Controller) {
		if p != nil {
			c.permuter = p
		}
	}
}

// WithClock sets the clock used for every wait.
func WithClock(clk Clock) Option {
	return func(c *Controller) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithNotifier sets the presentation event sink.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}
