package messaging

import (
	"context"

	"go.uber.org/zap"

	"fluent-backend/domain/events"
)

// LogPublisher writes events to the log. It is used when no event bus is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event events.GraphChanged) error {
	p.logger.Debug("Graph event",
		zap.String("eventType", event.EventType),
		zap.String("namespace", event.Namespace),
		zap.Int("newNodes", event.NewNodes),
		zap.Int("newEdges", event.NewEdges),
		zap.Int("totalSentences", event.Stats.TotalSentences),
	)
	return nil
}
