package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/fx-rate-scraper/pkg/client"
	"github.com/Sternrassler/fx-rate-scraper/pkg/document"
	"github.com/Sternrassler/fx-rate-scraper/pkg/logging"
	"github.com/Sternrassler/fx-rate-scraper/pkg/output"
	"github.com/Sternrassler/fx-rate-scraper/pkg/pagination"
	"github.com/Sternrassler/fx-rate-scraper/pkg/scheduler"
)

// SentinelOption is the placeholder entry of the currency select.
const SentinelOption = "0"

// Config holds orchestrator configuration.
type Config struct {
	// URL is the search endpoint.
	URL string

	// LookbackDays is the number of days before today the range starts at.
	LookbackDays int

	// EntityConcurrency is the number of currencies scraped at once.
	EntityConcurrency int

	// Mode is the admission policy of both scheduler levels.
	Mode scheduler.Mode

	// PageConcurrency is the number of pages fetched at once per currency.
	PageConcurrency int

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig(url string) Config {
	return Config{
		URL:               url,
		LookbackDays:      2,
		EntityConcurrency: 50,
		Mode:              scheduler.ModeDrain,
		PageConcurrency:   2,
		Now:               time.Now,
	}
}

// Summary describes a finished run.
type Summary struct {
	Currencies int
	Written    int
	NoData     int
	Rows       int
	Range      output.DateRange
	Duration   time.Duration
}

// Orchestrator scrapes every currency offered by the search form.
type Orchestrator struct {
	fetcher  Fetcher
	pipeline *Pipeline
	config   Config
	logger   zerolog.Logger
}

// NewOrchestrator creates a new orchestrator.
func NewOrchestrator(fetcher Fetcher, sink output.Sink, cfg Config) *Orchestrator {
	if cfg.EntityConcurrency <= 0 {
		cfg.EntityConcurrency = 50
	}
	if cfg.PageConcurrency <= 0 {
		cfg.PageConcurrency = 2
	}
	if cfg.Mode == "" {
		cfg.Mode = scheduler.ModeDrain
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	pipeline := NewPipeline(fetcher, sink, PipelineConfig{
		URL: cfg.URL,
		Pages: pagination.Config{
			MaxConcurrency: cfg.PageConcurrency,
			Mode:           cfg.Mode,
		},
	})

	return &Orchestrator{
		fetcher:  fetcher,
		pipeline: pipeline,
		config:   cfg,
		logger:   logging.NewLogger("orchestrator"),
	}
}

// Discover returns the currency codes offered by the search form, in page
// order, without the sentinel option, empty values or duplicates.
func (o *Orchestrator) Discover(ctx context.Context) ([]string, error) {
	page, err := o.fetcher.Fetch(ctx, client.Get(o.config.URL, nil), false)
	if err != nil {
		return nil, fmt.Errorf("fetch search page: %w", err)
	}
	if !page.OK() {
		o.logger.Warn().Int("status", page.StatusCode).Msg("Search page not OK, parsing anyway")
	}

	doc, err := document.Parse(page.Body)
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	return currencies(doc.SelectOptions()), nil
}

func currencies(options []document.Option) []string {
	seen := make(map[string]struct{}, len(options))
	codes := make([]string, 0, len(options))
	for _, opt := range options {
		if opt.Value == "" || opt.Value == SentinelOption {
			continue
		}
		if _, ok := seen[opt.Value]; ok {
			continue
		}
		seen[opt.Value] = struct{}{}
		codes = append(codes, opt.Value)
	}
	return codes
}

// Run discovers the currencies and scrapes each of them for the configured
// range. Any failing currency fails the run.
func (o *Orchestrator) Run(ctx context.Context) error {
	_, err := o.RunSummary(ctx)
	return err
}

// RunSummary is Run returning what was written.
func (o *Orchestrator) RunSummary(ctx context.Context) (Summary, error) {
	start := time.Now()
	r := output.NewDateRange(o.config.Now(), o.config.LookbackDays)
	summary := Summary{Range: r}

	codes, err := o.Discover(ctx)
	if err != nil {
		return summary, err
	}
	summary.Currencies = len(codes)

	o.logger.Info().
		Int("currencies", len(codes)).
		Str("range", r.String()).
		Int("entity_concurrency", o.config.EntityConcurrency).
		Int("page_concurrency", o.config.PageConcurrency).
		Msg("Starting scrape")

	if len(codes) == 0 {
		o.logger.Warn().Msg("No currencies offered by the search form")
		return summary, nil
	}

	tasks := make([]scheduler.Task[*output.Table], len(codes))
	for i, code := range codes {
		currency := code
		tasks[i] = scheduler.NewTask(i, func(ctx context.Context) (*output.Table, error) {
			table, err := o.pipeline.Run(ctx, currency, r)
			if err != nil {
				return nil, fmt.Errorf("currency %s: %w", currency, err)
			}
			return table, nil
		})
	}

	sched := scheduler.New[*output.Table](scheduler.Config{
		Name:        "entities",
		Concurrency: o.config.EntityConcurrency,
		Mode:        o.config.Mode,
	})

	results, err := sched.Run(ctx, tasks)
	if err != nil {
		o.logger.Error().Err(err).Msg("Scrape failed")
		return summary, fmt.Errorf("scrape currencies: %w", err)
	}

	for _, res := range results {
		if res.Value.NoData() {
			summary.NoData++
			continue
		}
		summary.Written++
		summary.Rows += len(res.Value.Rows)
	}
	summary.Duration = time.Since(start)

	o.logger.Info().
		Int("currencies", summary.Currencies).
		Int("written", summary.Written).
		Int("no_data", summary.NoData).
		Int("rows", summary.Rows).
		Dur("duration", summary.Duration).
		Msg("Scrape complete")

	return summary, nil
}
