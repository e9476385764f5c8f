package assign_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/headline-goat/variant-goat/internal/assign"
	"github.com/headline-goat/variant-goat/internal/experiment"
	"github.com/headline-goat/variant-goat/internal/metrics"
	"github.com/headline-goat/variant-goat/internal/store"
)

type recordedEvents struct {
	mu     sync.Mutex
	events []experiment.Event
}

func (r *recordedEvents) Record(ctx context.Context, e experiment.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func newCatalog(t *testing.T, tests ...experiment.Test) *experiment.Catalog {
	t.Helper()
	c, err := experiment.NewCatalog(tests)
	require.NoError(t, err)
	return c
}

func fiftyFifty() experiment.Test {
	return experiment.Test{
		ID: "t1",
		Variants: []experiment.Variant{
			{ID: "control", TrafficSplit: 50, IsControl: true},
			{ID: "A", TrafficSplit: 50},
		},
	}
}

func fixedDraw(r float64) assign.Option {
	return assign.WithRand(func() float64 { return r })
}

func TestAssign_Stable(t *testing.T) {
	catalog := newCatalog(t, fiftyFifty())
	rec := &recordedEvents{}
	a := assign.New(catalog, store.NewMemoryStore(), rec, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		user := fmt.Sprintf("u%d", i)
		first := a.Assign(ctx, "t1", user)
		for j := 0; j < 10; j++ {
			assert.Equal(t, first, a.Assign(ctx, "t1", user), "user %s changed variant", user)
		}
	}

	// One assignment event per user, none for repeat lookups
	assert.Len(t, rec.events, 50)
}

func TestAssign_ExistingAssignmentWins(t *testing.T) {
	catalog := newCatalog(t, fiftyFifty())
	s := store.NewMemoryStore()
	ctx := context.Background()
	_, _, err := s.CreateAssignment(ctx, experiment.Assignment{TestID: "t1", UserID: "u1", VariantID: "A"})
	require.NoError(t, err)

	rec := &recordedEvents{}
	a := assign.New(catalog, s, rec, nil, fixedDraw(0))

	assert.Equal(t, "A", a.Assign(ctx, "t1", "u1"))
	assert.Empty(t, rec.events)
}

func TestAssign_SplitRespected(t *testing.T) {
	test := experiment.Test{
		ID: "pricing",
		Variants: []experiment.Variant{
			{ID: "control", TrafficSplit: 50},
			{ID: "annual", TrafficSplit: 30},
			{ID: "single", TrafficSplit: 20},
		},
	}
	rng := rand.New(rand.NewPCG(42, 7))
	a := assign.New(newCatalog(t, test), store.NewMemoryStore(), nil, nil, assign.WithRand(rng.Float64))
	ctx := context.Background()

	const n = 10000
	counts := map[string]int{}
	for i := 0; i < n; i++ {
		counts[a.Assign(ctx, "pricing", fmt.Sprintf("user-%d", i))]++
	}

	for _, v := range test.Variants {
		got := float64(counts[v.ID]) / n
		want := v.TrafficSplit / 100
		assert.InDelta(t, want, got, 0.02, "variant %s frequency", v.ID)
	}
}

func TestAssign_FallbackAboveCumulativeSplit(t *testing.T) {
	test := experiment.Test{
		ID: "t2",
		Variants: []experiment.Variant{
			{ID: "A", TrafficSplit: 30},
			{ID: "B", TrafficSplit: 30},
		},
	}
	catalog := newCatalog(t, test)
	ctx := context.Background()

	for _, r := range []float64{0.6001, 0.75, 0.99, 0.999999} {
		a := assign.New(catalog, store.NewMemoryStore(), nil, nil, fixedDraw(r))
		assert.Equal(t, experiment.ControlVariantID, a.Assign(ctx, "t2", "u1"), "draw %v", r)
	}

	a := assign.New(catalog, store.NewMemoryStore(), nil, nil, fixedDraw(0.45))
	assert.Equal(t, "B", a.Assign(ctx, "t2", "u1"))
}

func TestAssign_FallbackIsPersisted(t *testing.T) {
	test := experiment.Test{ID: "t2", Variants: []experiment.Variant{{ID: "A", TrafficSplit: 10}}}
	s := store.NewMemoryStore()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	a := assign.New(newCatalog(t, test), s, nil, nil, fixedDraw(0.5), assign.WithMetrics(m))
	ctx := context.Background()

	assert.Equal(t, "control", a.Assign(ctx, "t2", "u1"))

	got, err := s.GetAssignment(ctx, "t2", "u1")
	require.NoError(t, err)
	assert.Equal(t, "control", got)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fallbacks.WithLabelValues("t2", metrics.ReasonNoBucket)))
}

func TestAssign_UnknownTest(t *testing.T) {
	s := store.NewMemoryStore()
	rec := &recordedEvents{}
	m := metrics.New(prometheus.NewRegistry())
	a := assign.New(newCatalog(t, fiftyFifty()), s, rec, nil, assign.WithMetrics(m))
	ctx := context.Background()

	assert.NotPanics(t, func() {
		assert.Equal(t, "control", a.Assign(ctx, "nonexistent", "u1"))
	})
	assert.Empty(t, rec.events)

	_, err := s.GetAssignment(ctx, "nonexistent", "u1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fallbacks.WithLabelValues("nonexistent", metrics.ReasonUnknownTest)))
}

func TestAssign_EmitsAssignmentEvent(t *testing.T) {
	rec := &recordedEvents{}
	a := assign.New(newCatalog(t, fiftyFifty()), store.NewMemoryStore(), rec, nil, fixedDraw(0.7))

	variant := a.AssignSession(context.Background(), "t1", "u1", "s1")
	assert.Equal(t, "A", variant)

	require.Len(t, rec.events, 1)
	e := rec.events[0]
	assert.Equal(t, experiment.EventVariantAssigned, e.Type)
	assert.Equal(t, "t1", e.TestID)
	assert.Equal(t, "A", e.VariantID)
	assert.Equal(t, "u1", e.UserID)
	assert.Equal(t, "s1", e.SessionID)
	assert.Equal(t, assign.MethodWeightedRandom, e.Metadata["assignment_method"])
	assert.Equal(t, assign.RotationPeriod, e.Metadata["rotation_period"])
	assert.False(t, e.Timestamp.IsZero())
}

type brokenStore struct{}

func (brokenStore) GetAssignment(ctx context.Context, testID, userID string) (string, error) {
	return "", errors.New("connection refused")
}

func (brokenStore) CreateAssignment(ctx context.Context, a experiment.Assignment) (string, bool, error) {
	return "", false, errors.New("connection refused")
}

func TestAssign_StoreErrorsAreNotFatal(t *testing.T) {
	rec := &recordedEvents{}
	a := assign.New(newCatalog(t, fiftyFifty()), brokenStore{}, rec, nil, fixedDraw(0.1))

	assert.Equal(t, "control", a.Assign(context.Background(), "t1", "u1"))
	assert.Len(t, rec.events, 1)
}

// lateStore reports that another writer already stored "A" for every user.
type lateStore struct{}

func (lateStore) GetAssignment(ctx context.Context, testID, userID string) (string, error) {
	return "", store.ErrNotFound
}

func (lateStore) CreateAssignment(ctx context.Context, a experiment.Assignment) (string, bool, error) {
	return "A", false, nil
}

func TestAssign_LosingWriterReturnsStoredVariant(t *testing.T) {
	rec := &recordedEvents{}
	m := metrics.New(prometheus.NewRegistry())
	a := assign.New(newCatalog(t, fiftyFifty()), lateStore{}, rec, nil, fixedDraw(0.1), assign.WithMetrics(m))

	assert.Equal(t, "A", a.Assign(context.Background(), "t1", "u1"))
	assert.Empty(t, rec.events)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Assignments.WithLabelValues("t1", "control")))
}

func TestAssign_ConcurrentFirstVisits(t *testing.T) {
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "assign.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	catalog := newCatalog(t, fiftyFifty())
	rec := &recordedEvents{}
	// Two assigners stand in for two processes sharing the database
	assigners := []*assign.Assigner{
		assign.New(catalog, s, rec, nil),
		assign.New(catalog, s, rec, nil),
	}
	ctx := context.Background()

	const (
		goroutines = 16
		users      = 300
	)
	seen := make([][]string, goroutines)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			a := assigners[g%len(assigners)]
			seen[g] = make([]string, users)
			for u := 0; u < users; u++ {
				seen[g][u] = a.Assign(ctx, "t1", fmt.Sprintf("user-%d", u))
			}
		}(g)
	}
	wg.Wait()

	for u := 0; u < users; u++ {
		user := fmt.Sprintf("user-%d", u)
		stored, err := s.GetAssignment(ctx, "t1", user)
		require.NoError(t, err)
		for g := 0; g < goroutines; g++ {
			assert.Equal(t, stored, seen[g][u], "goroutine %d saw a different variant for %s", g, user)
		}
	}

	perUser := map[string]int{}
	for _, e := range rec.events {
		require.Equal(t, experiment.EventVariantAssigned, e.Type)
		stored, err := s.GetAssignment(ctx, "t1", e.UserID)
		require.NoError(t, err)
		assert.Equal(t, stored, e.VariantID, "event for %s disagrees with the store", e.UserID)
		perUser[e.UserID]++
	}
	assert.Len(t, perUser, users)
	for user, n := range perUser {
		assert.Equal(t, 1, n, "user %s announced %d times", user, n)
	}
}

func TestSelect(t *testing.T) {
	variants := []experiment.Variant{
		{ID: "control", TrafficSplit: 50},
		{ID: "A", TrafficSplit: 25},
		{ID: "B", TrafficSplit: 25},
	}

	tests := []struct {
		r       float64
		want    string
		matched bool
	}{
		{0, "control", true},
		{50, "control", true},
		{50.0001, "A", true},
		{75, "A", true},
		{99.99, "B", true},
		{100, "B", true},
		{100.5, "control", false},
	}

	for _, tt := range tests {
		got, matched := assign.Select(variants, tt.r)
		assert.Equal(t, tt.want, got, "r=%v", tt.r)
		assert.Equal(t, tt.matched, matched, "r=%v", tt.r)
	}

	got, matched := assign.Select(nil, 10)
	assert.Equal(t, "control", got)
	assert.False(t, matched)

	// Negative splits shrink the running total instead of erroring
	got, _ = assign.Select([]experiment.Variant{{ID: "A", TrafficSplit: -10}, {ID: "B", TrafficSplit: 40}}, 35)
	assert.Equal(t, "control", got)
}
