package metrics_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headline-goat/variant-goat/internal/experiment"
	"github.com/headline-goat/variant-goat/internal/metrics"
)

func TestMetrics_Forward(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	ctx := context.Background()
	value := 25.0

	require.NoError(t, m.Forward(ctx, experiment.Event{TestID: "t1", VariantID: "A", Type: experiment.EventConversion, Value: &value}))
	require.NoError(t, m.Forward(ctx, experiment.Event{TestID: "t1", VariantID: "A", Type: experiment.EventConversion}))
	require.NoError(t, m.Forward(ctx, experiment.Event{TestID: "t1", VariantID: "A", Type: experiment.EventEngagement}))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Events.WithLabelValues("t1", "A", "conversion")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues("t1", "A", "engagement")))
	assert.Equal(t, 25.0, testutil.ToFloat64(m.Revenue.WithLabelValues("t1", "A")))
}

func TestMetrics_Counters(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.Assigned("t1", "control")
	m.Assigned("t1", "control")
	m.Fallback("t1", metrics.ReasonNoBucket)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Assignments.WithLabelValues("t1", "control")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fallbacks.WithLabelValues("t1", metrics.ReasonNoBucket)))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics

	m.Assigned("t1", "A")
	m.Fallback("t1", metrics.ReasonUnknownTest)
	assert.NoError(t, m.Forward(context.Background(), experiment.Event{}))
}
