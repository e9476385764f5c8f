package assign

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/headline-goat/variant-goat/internal/experiment"
	"github.com/headline-goat/variant-goat/internal/logging"
	"github.com/headline-goat/variant-goat/internal/metrics"
	"github.com/headline-goat/variant-goat/internal/store"
)

const (
	MethodWeightedRandom = "weighted_random"
	// RotationPeriod is recorded on assignment events. Nothing re-rolls an
	// assignment when it elapses.
	RotationPeriod = "1 month"
)

// Recorder receives the variant_assigned event for each new assignment.
type Recorder interface {
	Record(ctx context.Context, e experiment.Event)
}

// Assigner hands out sticky, weighted variants.
type Assigner struct {
	catalog  *experiment.Catalog
	store    store.AssignmentStore
	recorder Recorder
	metrics  *metrics.Metrics
	logger   *zap.Logger
	draw     func() float64
	now      func() time.Time

	// inflight collapses concurrent first assignments of the same user.
	inflight singleflight.Group
}

type Option func(*Assigner)

// WithRand replaces the source of draws. f must return values in [0, 1).
func WithRand(f func() float64) Option {
	return func(a *Assigner) {
		a.draw = f
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Assigner) {
		a.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Assigner) {
		a.now = now
	}
}

// New creates an Assigner. recorder may be nil.
func New(catalog *experiment.Catalog, s store.AssignmentStore, recorder Recorder, logger *zap.Logger, opts ...Option) *Assigner {
	a := &Assigner{
		catalog:  catalog,
		store:    s,
		recorder: recorder,
		logger:   logging.OrNop(logger),
		draw:     rand.Float64,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Assigner) Assign(ctx context.Context, testID, userID string) string {
	return a.AssignSession(ctx, testID, userID, "")
}

// AssignSession returns the user's variant for testID. An existing
// assignment always wins; otherwise a variant is drawn, persisted and
// announced with a variant_assigned event. It never fails: unknown tests
// and draws outside every bucket resolve to control.
//
// Concurrent calls for the same user share one draw. Writers in other
// processes are settled by the store: whichever assignment it keeps first
// is the one returned, and only that writer emits the event.
func (a *Assigner) AssignSession(ctx context.Context, testID, userID, sessionID string) string {
	test, ok := a.catalog.Get(testID)
	if !ok {
		a.logger.Warn("unknown test, serving control", zap.String("test_id", testID))
		a.metrics.Fallback(testID, metrics.ReasonUnknownTest)
		return experiment.ControlVariantID
	}

	v, _, _ := a.inflight.Do(testID+"\x00"+userID, func() (any, error) {
		return a.assignOnce(ctx, test, userID, sessionID), nil
	})
	return v.(string)
}

func (a *Assigner) assignOnce(ctx context.Context, test *experiment.Test, userID, sessionID string) string {
	testID := test.ID

	existing, err := a.store.GetAssignment(ctx, testID, userID)
	switch {
	case err == nil:
		return existing
	case !errors.Is(err, store.ErrNotFound):
		a.logger.Warn("failed to read assignment, drawing a new one",
			zap.String("test_id", testID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}

	variantID, matched := Select(test.Variants, a.draw()*100)

	now := a.now()
	stored, created, err := a.store.CreateAssignment(ctx, experiment.Assignment{
		TestID:     testID,
		UserID:     userID,
		VariantID:  variantID,
		AssignedAt: now,
	})
	switch {
	case err != nil:
		a.logger.Warn("failed to persist assignment",
			zap.String("test_id", testID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	case !created:
		a.logger.Debug("assignment already made elsewhere",
			zap.String("test_id", testID),
			zap.String("user_id", userID),
			zap.String("variant_id", stored),
		)
		return stored
	}

	if !matched {
		a.metrics.Fallback(testID, metrics.ReasonNoBucket)
	}
	a.metrics.Assigned(testID, variantID)
	if a.recorder != nil {
		a.recorder.Record(ctx, experiment.Event{
			TestID:    testID,
			VariantID: variantID,
			UserID:    userID,
			SessionID: sessionID,
			Type:      experiment.EventVariantAssigned,
			Timestamp: now,
			Metadata: map[string]any{
				"assignment_method": MethodWeightedRandom,
				"rotation_period":   RotationPeriod,
			},
		})
	}

	return variantID
}

// Select walks variants in order, accumulating traffic splits, and returns
// the first variant whose cumulative split reaches r (a percentage). When
// r is above the total, it returns control and false.
func Select(variants []experiment.Variant, r float64) (string, bool) {
	cumulative := 0.0
	for _, v := range variants {
		cumulative += v.TrafficSplit
		if r <= cumulative {
			return v.ID, true
		}
	}
	return experiment.ControlVariantID, false
}
