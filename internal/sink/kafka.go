package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/headline-goat/variant-goat/internal/experiment"
	"github.com/headline-goat/variant-goat/internal/logging"
)

// MessageWriter is the subset of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events as JSON, keyed by test ID so a test's events
// stay on one partition.
type KafkaSink struct {
	writer  MessageWriter
	timeout time.Duration
}

// NewKafkaSink writes asynchronously so requests never wait on the
// broker. Forward cannot see delivery failures in that mode; they are
// logged from the writer's completion callback instead.
func NewKafkaSink(brokers []string, topic string, logger *zap.Logger) *KafkaSink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion:   LogCompletion(logger, topic),
	}
	return NewKafkaSinkWithWriter(w)
}

// LogCompletion reports failed asynchronous batches.
func LogCompletion(logger *zap.Logger, topic string) func([]kafka.Message, error) {
	logger = logging.OrNop(logger)
	return func(msgs []kafka.Message, err error) {
		if err == nil {
			return
		}
		keys := make([]string, 0, len(msgs))
		for _, m := range msgs {
			keys = append(keys, string(m.Key))
		}
		logger.Error("failed to deliver events to kafka",
			zap.String("topic", topic),
			zap.Int("messages", len(msgs)),
			zap.Strings("test_ids", keys),
			zap.Error(err),
		)
	}
}

func NewKafkaSinkWithWriter(w MessageWriter) *KafkaSink {
	return &KafkaSink{writer: w, timeout: 5 * time.Second}
}

func (s *KafkaSink) Forward(ctx context.Context, e experiment.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.TestID),
		Value: b,
		Time:  e.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close flushes pending messages and shuts down the writer
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
