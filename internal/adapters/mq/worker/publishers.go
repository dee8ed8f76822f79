package worker

import (
	"context"

	"github.com/okian/bci/pkg/logger"
)

// LogPublisher writes every event to the log at debug level.
type LogPublisher struct {
	logger logger.Logger
}

// NewLogPublisher returns a publisher logging through l.
func NewLogPublisher(l logger.Logger) *LogPublisher {
	return &LogPublisher{logger: l}
}

// Publish logs e.
func (p *LogPublisher) Publish(ctx context.Context, e Event) error { //nolint:gocritic // hugeParam: Event must be passed by value for channel semantics
	fields := []logger.Field{
		logger.String("kind", string(e.Kind)),
		logger.String("session", e.SessionID),
	}
	if e.Option >= 0 {
		fields = append(fields, logger.Int("option", e.Option), logger.String("label", e.Label))
	}
	if e.Outcome != "" {
		fields = append(fields, logger.String("outcome", e.Outcome))
	}
	p.logger.Debug(ctx, "event", fields...)
	return nil
}
