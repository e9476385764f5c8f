package collector

import (
	"context"

	"go.uber.org/zap"

	"github.com/headline-goat/variant-goat/internal/experiment"
	"github.com/headline-goat/variant-goat/internal/logging"
	"github.com/headline-goat/variant-goat/internal/store"
)

// LogSink writes each event to the logger at debug level.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logging.OrNop(logger)}
}

func (s *LogSink) Forward(ctx context.Context, e experiment.Event) error {
	fields := []zap.Field{
		zap.String("event_id", e.ID),
		zap.String("test_id", e.TestID),
		zap.String("variant_id", e.VariantID),
		zap.String("user_id", e.UserID),
		zap.String("event_type", string(e.Type)),
	}
	if e.Value != nil {
		fields = append(fields, zap.Float64("event_value", *e.Value))
	}
	s.logger.Debug("event recorded", fields...)
	return nil
}

// StoreSink persists events to a durable event log.
type StoreSink struct {
	log store.EventLog
}

func NewStoreSink(log store.EventLog) *StoreSink {
	return &StoreSink{log: log}
}

func (s *StoreSink) Forward(ctx context.Context, e experiment.Event) error {
	return s.log.AppendEvent(ctx, e)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, e experiment.Event) error

func (f SinkFunc) Forward(ctx context.Context, e experiment.Event) error {
	return f(ctx, e)
}
