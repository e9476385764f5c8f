package results

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/headline-goat/variant-goat/internal/experiment"
	"github.com/headline-goat/variant-goat/internal/logging"
	"github.com/headline-goat/variant-goat/internal/stats"
)

const ciConfidence = 0.95

// EventSource provides the recorded events of one test. store.EventLog
// satisfies it, as does the in-memory collector.
type EventSource interface {
	ListEvents(ctx context.Context, testID string) ([]experiment.Event, error)
}

// Aggregator derives per-variant results from the event log.
type Aggregator struct {
	catalog *experiment.Catalog
	source  EventSource
	logger  *zap.Logger
}

func NewAggregator(catalog *experiment.Catalog, source EventSource, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		catalog: catalog,
		source:  source,
		logger:  logging.OrNop(logger),
	}
}

// tally is the raw count for one variant.
type tally struct {
	events      int
	users       map[string]struct{}
	conversions int
	engagements int
	revenue     decimal.Decimal
}

// Summarize returns one summary per configured variant, highest
// conversion rate first. Unknown tests and unreadable event logs yield an
// empty slice.
func (a *Aggregator) Summarize(testID string) []experiment.ResultSummary {
	summaries, err := a.SummarizeContext(context.Background(), testID)
	if err != nil {
		a.logger.Error("failed to summarize results", zap.String("test_id", testID), zap.Error(err))
		return []experiment.ResultSummary{}
	}
	return summaries
}

// SummarizeContext is Summarize with the event read error surfaced.
func (a *Aggregator) SummarizeContext(ctx context.Context, testID string) ([]experiment.ResultSummary, error) {
	test, ok := a.catalog.Get(testID)
	if !ok {
		a.logger.Warn("results requested for unknown test", zap.String("test_id", testID))
		return []experiment.ResultSummary{}, nil
	}

	events, err := a.source.ListEvents(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to read events for %s: %w", testID, err)
	}

	tallies := make(map[string]*tally, len(test.Variants))
	for _, v := range test.Variants {
		tallies[v.ID] = &tally{users: make(map[string]struct{})}
	}

	// The control bucket is tallied even when the test has no variant with
	// that ID, since fallback assignments land there.
	control, ok := tallies[experiment.ControlVariantID]
	if !ok {
		control = &tally{users: make(map[string]struct{})}
		tallies[experiment.ControlVariantID] = control
	}

	for _, e := range events {
		t, ok := tallies[e.VariantID]
		if !ok {
			continue
		}
		t.events++
		t.users[e.UserID] = struct{}{}
		switch e.Type {
		case experiment.EventConversion:
			t.conversions++
			if e.Value != nil {
				t.revenue = t.revenue.Add(decimal.NewFromFloat(*e.Value))
			}
		case experiment.EventEngagement:
			t.engagements++
		}
	}

	controlProportion := stats.Proportion{Successes: control.conversions, Trials: len(control.users)}

	summaries := make([]experiment.ResultSummary, 0, len(test.Variants))
	for _, v := range test.Variants {
		t := tallies[v.ID]
		users := len(t.users)

		conversionRate := 0.0
		if users > 0 {
			conversionRate = float64(t.conversions) / float64(users) * 100
		}

		averageOrderValue := 0.0
		if t.conversions > 0 {
			averageOrderValue = t.revenue.Div(decimal.NewFromInt(int64(t.conversions))).InexactFloat64()
		}

		p := stats.Proportion{Successes: t.conversions, Trials: users}
		ciLower, ciUpper := p.Wilson(ciConfidence)

		summaries = append(summaries, experiment.ResultSummary{
			TestID:                  testID,
			VariantID:               v.ID,
			TotalUsers:              users,
			Conversions:             t.conversions,
			Engagements:             t.engagements,
			ConversionRate:          conversionRate,
			AverageOrderValue:       averageOrderValue,
			Revenue:                 t.revenue.InexactFloat64(),
			StatisticalSignificance: Significance(t.conversions, t.events, control.conversions, control.events),
			CILower:                 ciLower,
			CIUpper:                 ciUpper,
			Confidence:              p.Beats(controlProportion),
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].ConversionRate > summaries[j].ConversionRate
	})

	return summaries, nil
}

// Significance is a rough score (0-100) of how far a variant's
// conversions-per-event rate sits from control's. It is not a statistical
// test: there is no sample size correction. Use Confidence for that.
func Significance(conversions, events, controlConversions, controlEvents int) float64 {
	rate := eventRate(conversions, events)
	controlRate := eventRate(controlConversions, controlEvents)
	return math.Round(math.Min(math.Abs(rate-controlRate)*100, 100))
}

func eventRate(conversions, events int) float64 {
	if events == 0 {
		return 0
	}
	return float64(conversions) / float64(events)
}
