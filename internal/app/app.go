package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/headline-goat/variant-goat/internal/assign"
	"github.com/headline-goat/variant-goat/internal/collector"
	"github.com/headline-goat/variant-goat/internal/config"
	"github.com/headline-goat/variant-goat/internal/experiment"
	"github.com/headline-goat/variant-goat/internal/logging"
	"github.com/headline-goat/variant-goat/internal/metrics"
	"github.com/headline-goat/variant-goat/internal/results"
	"github.com/headline-goat/variant-goat/internal/sink"
	"github.com/headline-goat/variant-goat/internal/store"
)

// App wires the assigner, collector and aggregator to one store.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Catalog    *experiment.Catalog
	Store      store.Store
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Collector  *collector.Collector
	Assigner   *assign.Assigner
	Tracker    *collector.Tracker
	Aggregator *results.Aggregator

	closers []func() error
}

type Option func(*options)

type options struct {
	store   store.Store
	catalog *experiment.Catalog
	sinks   []collector.Sink
	assign  []assign.Option
}

// WithStore uses s instead of opening the configured driver. App.Close
// still closes it.
func WithStore(s store.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

func WithCatalog(c *experiment.Catalog) Option {
	return func(o *options) {
		o.catalog = c
	}
}

// WithSinks adds sinks after the built-in ones.
func WithSinks(sinks ...collector.Sink) Option {
	return func(o *options) {
		o.sinks = append(o.sinks, sinks...)
	}
}

func WithAssignOptions(opts ...assign.Option) Option {
	return func(o *options) {
		o.assign = append(o.assign, opts...)
	}
}

// New loads the catalog, opens the store, replays persisted events and
// builds the service graph.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger = logging.OrNop(logger)

	catalog := o.catalog
	if catalog == nil {
		var err error
		catalog, err = loadCatalog(cfg.TestsFile)
		if err != nil {
			return nil, err
		}
	}
	for _, id := range catalog.UnevenSplits() {
		test, _ := catalog.Get(id)
		logger.Warn("traffic splits do not sum to 100, remainder is served control",
			zap.String("test_id", id),
			zap.Float64("total_split", test.TotalSplit()),
		)
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Catalog: catalog,
	}

	s := o.store
	if s == nil {
		var err error
		s, err = store.Open(ctx, store.Options{
			Driver:    cfg.Driver,
			Path:      cfg.DBPath,
			RedisAddr: cfg.RedisAddr,
			RedisTTL:  cfg.RedisTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
	}
	a.Store = s
	a.closers = append(a.closers, s.Close)
	if cfg.Driver == store.DriverRedis && cfg.RedisTTL > 0 {
		logger.Warn("redis assignments expire, returning users will be re-drawn and may switch variant",
			zap.Duration("redis_ttl", cfg.RedisTTL),
		)
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)

	sinks := []collector.Sink{
		collector.NewLogSink(logger),
		collector.NewStoreSink(s),
		a.Metrics,
	}
	if len(cfg.KafkaBrokers) > 0 {
		k := sink.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		sinks = append(sinks, k)
		a.closers = append(a.closers, k.Close)
		logger.Info("forwarding events to kafka",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
		)
	}
	sinks = append(sinks, o.sinks...)

	a.Collector = collector.New(logger, collector.WithSinks(sinks...))

	persisted, err := s.ListEvents(ctx, "")
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	a.Collector.Replay(persisted)

	assignOpts := append([]assign.Option{assign.WithMetrics(a.Metrics)}, o.assign...)
	a.Assigner = assign.New(catalog, s, a.Collector, logger, assignOpts...)
	a.Tracker = collector.NewTracker(a.Collector, a.Assigner)
	// Results read the store so events from every process sharing it count
	a.Aggregator = results.NewAggregator(catalog, s, logger)

	logger.Debug("app ready",
		zap.Int("tests", catalog.Len()),
		zap.Int("events", len(persisted)),
		zap.String("driver", cfg.Driver),
	)
	return a, nil
}

func loadCatalog(path string) (*experiment.Catalog, error) {
	if path == "" {
		return experiment.DefaultCatalog(), nil
	}
	c, err := experiment.LoadCatalog(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tests: %w", err)
	}
	return c, nil
}

// Close releases the store and sinks in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
