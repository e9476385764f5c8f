package collector

import (
	"context"

	"github.com/headline-goat/variant-goat/internal/experiment"
)

// VariantResolver returns the user's variant for a test, assigning one if
// needed.
type VariantResolver interface {
	AssignSession(ctx context.Context, testID, userID, sessionID string) string
}

// Tracker records user actions against the variant the user was served.
type Tracker struct {
	collector *Collector
	resolver  VariantResolver
}

func NewTracker(c *Collector, r VariantResolver) *Tracker {
	return &Tracker{collector: c, resolver: r}
}

// TrackConversion records a conversion. value is optional (order value).
func (t *Tracker) TrackConversion(ctx context.Context, testID, userID, sessionID string, value *float64, metadata map[string]any) experiment.Event {
	return t.track(ctx, experiment.EventConversion, testID, userID, sessionID, value, metadata)
}

// TrackEngagement records a non-converting interaction such as a scroll
// milestone or a pricing toggle.
func (t *Tracker) TrackEngagement(ctx context.Context, testID, userID, sessionID string, value *float64, metadata map[string]any) experiment.Event {
	return t.track(ctx, experiment.EventEngagement, testID, userID, sessionID, value, metadata)
}

func (t *Tracker) track(ctx context.Context, eventType experiment.EventType, testID, userID, sessionID string, value *float64, metadata map[string]any) experiment.Event {
	e := experiment.Event{
		TestID:    testID,
		VariantID: t.resolver.AssignSession(ctx, testID, userID, sessionID),
		UserID:    userID,
		SessionID: sessionID,
		Type:      eventType,
		Value:     value,
		Metadata:  metadata,
	}
	return t.collector.record(ctx, e)
}
