package collector

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/headline-goat/variant-goat/internal/experiment"
	"github.com/headline-goat/variant-goat/internal/logging"
)

// Sink receives every recorded event after it is appended to the log.
type Sink interface {
	Forward(ctx context.Context, e experiment.Event) error
}

// Collector is the append-only in-memory event log. Appends are serialized
// behind a single writer lock; readers get snapshot copies.
type Collector struct {
	mu     sync.RWMutex
	events []experiment.Event

	sinks  []Sink
	logger *zap.Logger
	now    func() time.Time
}

type Option func(*Collector)

func WithSinks(sinks ...Sink) Option {
	return func(c *Collector) {
		c.sinks = append(c.sinks, sinks...)
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		c.now = now
	}
}

func New(logger *zap.Logger, opts ...Option) *Collector {
	c := &Collector{
		logger: logging.OrNop(logger),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Record appends e and forwards it to the sinks. It never fails; sink
// errors are logged.
func (c *Collector) Record(ctx context.Context, e experiment.Event) {
	c.record(ctx, e)
}

func (c *Collector) record(ctx context.Context, e experiment.Event) experiment.Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = c.now()
	}

	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()

	for _, s := range c.sinks {
		if err := s.Forward(ctx, e); err != nil {
			c.logger.Warn("failed to forward event",
				zap.String("event_id", e.ID),
				zap.String("test_id", e.TestID),
				zap.String("event_type", string(e.Type)),
				zap.Error(err),
			)
		}
	}
	return e
}

// Replay seeds the log with previously persisted events without forwarding
// them again.
func (c *Collector) Replay(events []experiment.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, events...)
}

// Events returns a copy of the events recorded for testID.
func (c *Collector) Events(testID string) []experiment.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []experiment.Event
	for _, e := range c.events {
		if e.TestID == testID {
			out = append(out, e)
		}
	}
	return out
}

// ListEvents lets the collector stand in for a store's event log. An
// empty testID lists everything.
func (c *Collector) ListEvents(ctx context.Context, testID string) ([]experiment.Event, error) {
	if testID == "" {
		return c.All(), nil
	}
	return c.Events(testID), nil
}

// All returns a copy of the whole log.
func (c *Collector) All() []experiment.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]experiment.Event(nil), c.events...)
}

func (c *Collector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.events)
}
