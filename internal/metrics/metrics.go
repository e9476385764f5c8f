package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/headline-goat/variant-goat/internal/experiment"
)

const namespace = "variant_goat"

const (
	ReasonUnknownTest = "unknown_test"
	ReasonNoBucket    = "no_bucket"
)

// Metrics holds the service counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Assignments *prometheus.CounterVec
	Fallbacks   *prometheus.CounterVec
	Events      *prometheus.CounterVec
	Revenue     *prometheus.CounterVec
}

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_total",
			Help:      "New variant assignments.",
		}, []string{"test", "variant"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignment_fallbacks_total",
			Help:      "Assignments that fell back to control.",
		}, []string{"test", "reason"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Recorded events by type.",
		}, []string{"test", "variant", "type"}),
		Revenue: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversion_value_total",
			Help:      "Sum of conversion event values.",
		}, []string{"test", "variant"}),
	}

	reg.MustRegister(m.Assignments, m.Fallbacks, m.Events, m.Revenue)
	return m
}

func (m *Metrics) Assigned(testID, variantID string) {
	if m == nil {
		return
	}
	m.Assignments.WithLabelValues(testID, variantID).Inc()
}

func (m *Metrics) Fallback(testID, reason string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(testID, reason).Inc()
}

// Forward counts an event. It lets Metrics act as an event sink.
func (m *Metrics) Forward(ctx context.Context, e experiment.Event) error {
	if m == nil {
		return nil
	}
	m.Events.WithLabelValues(e.TestID, e.VariantID, string(e.Type)).Inc()
	if e.Type == experiment.EventConversion && e.Value != nil && *e.Value > 0 {
		m.Revenue.WithLabelValues(e.TestID, e.VariantID).Add(*e.Value)
	}
	return nil
}
