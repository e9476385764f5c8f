package report

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/headline-goat/variant-goat/internal/experiment"
	"github.com/headline-goat/variant-goat/internal/logging"
)

// Summarizer produces per-variant results for a test.
type Summarizer interface {
	Summarize(testID string) []experiment.ResultSummary
}

// Reporter periodically logs a results summary for every configured test.
type Reporter struct {
	scheduler  *gocron.Scheduler
	catalog    *experiment.Catalog
	summarizer Summarizer
	logger     *zap.Logger
	interval   time.Duration
}

func New(catalog *experiment.Catalog, summarizer Summarizer, interval time.Duration, logger *zap.Logger) *Reporter {
	return &Reporter{
		scheduler:  gocron.NewScheduler(time.UTC),
		catalog:    catalog,
		summarizer: summarizer,
		logger:     logging.OrNop(logger),
		interval:   interval,
	}
}

// Run schedules the report and blocks until ctx is cancelled. A zero
// interval disables reporting.
func (r *Reporter) Run(ctx context.Context) error {
	if r.interval <= 0 {
		<-ctx.Done()
		return nil
	}

	if _, err := r.scheduler.Every(r.interval).Do(r.ReportOnce); err != nil {
		return fmt.Errorf("failed to schedule report: %w", err)
	}
	r.scheduler.StartAsync()
	r.logger.Info("results report scheduled", zap.Duration("interval", r.interval))

	<-ctx.Done()
	r.scheduler.Stop()
	return nil
}

// ReportOnce logs one line per variant of every test.
func (r *Reporter) ReportOnce() {
	for _, test := range r.catalog.Tests() {
		summaries := r.summarizer.Summarize(test.ID)
		for i, s := range summaries {
			r.logger.Info("variant results",
				zap.String("test_id", s.TestID),
				zap.String("variant_id", s.VariantID),
				zap.Int("rank", i+1),
				zap.Int("users", s.TotalUsers),
				zap.Int("conversions", s.Conversions),
				zap.Float64("conversion_rate", s.ConversionRate),
				zap.Float64("revenue", s.Revenue),
				zap.Float64("significance", s.StatisticalSignificance),
			)
		}
	}
}
