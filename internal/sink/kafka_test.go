package sink_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/headline-goat/variant-goat/internal/experiment"
	"github.com/headline-goat/variant-goat/internal/sink"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSink_Forward(t *testing.T) {
	w := &fakeWriter{}
	s := sink.NewKafkaSinkWithWriter(w)
	value := 49.0
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := s.Forward(context.Background(), experiment.Event{
		ID: "e1", TestID: "t1", VariantID: "A", UserID: "u1",
		Type: experiment.EventConversion, Value: &value, Timestamp: ts,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "t1", string(msg.Key))
	assert.Equal(t, ts, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "conversion", string(msg.Headers[0].Value))

	var decoded experiment.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "A", decoded.VariantID)
	require.NotNil(t, decoded.Value)
	assert.Equal(t, 49.0, *decoded.Value)

	require.NoError(t, s.Close())
	assert.True(t, w.closed)
}

func TestKafkaSink_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	s := sink.NewKafkaSinkWithWriter(w)

	err := s.Forward(context.Background(), experiment.Event{TestID: "t1"})
	assert.ErrorContains(t, err, "broker down")
}

func TestLogCompletion(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	complete := sink.LogCompletion(zap.New(core), "variant-events")

	complete([]kafka.Message{{Key: []byte("t1")}}, nil)
	assert.Zero(t, logs.Len(), "successful batches are not logged")

	complete([]kafka.Message{{Key: []byte("t1")}, {Key: []byte("t2")}}, errors.New("leader not available"))
	entries := logs.FilterMessage("failed to deliver events to kafka").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "variant-events", fields["topic"])
	assert.Equal(t, int64(2), fields["messages"])
	assert.Equal(t, "leader not available", fields["error"])
}

func TestNewKafkaSink_NilLogger(t *testing.T) {
	s := sink.NewKafkaSink([]string{"127.0.0.1:1"}, "variant-events", nil)
	require.NoError(t, s.Close())
}
