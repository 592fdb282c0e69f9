package scrape

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/fx-rate-scraper/pkg/client"
	"github.com/Sternrassler/fx-rate-scraper/pkg/document"
	"github.com/Sternrassler/fx-rate-scraper/pkg/logging"
	"github.com/Sternrassler/fx-rate-scraper/pkg/output"
	"github.com/Sternrassler/fx-rate-scraper/pkg/pagination"
)

// Form field names understood by the search server.
const (
	FieldLowDate  = "erectDate"
	FieldHighDate = "nothing"
	FieldCurrency = "pjname"
	FieldPage     = "page"
)

// Fetcher performs requests against the search server. *client.Client
// implements it.
type Fetcher interface {
	Fetch(ctx context.Context, req client.Request, mustSucceed bool) (*client.Page, error)
}

// SearchForm builds the form for one currency and range. Page 1 carries no
// page field.
func SearchForm(currency string, r output.DateRange, page int) url.Values {
	form := url.Values{
		FieldLowDate:  {r.LowString()},
		FieldHighDate: {r.HighString()},
		FieldCurrency: {currency},
	}
	if page > 1 {
		form.Set(FieldPage, strconv.Itoa(page))
	}
	return form
}

// PipelineConfig holds per-currency settings.
type PipelineConfig struct {
	// URL is the search endpoint.
	URL string

	// Pages bounds the page fetches of one currency.
	Pages pagination.Config
}

// Pipeline scrapes every page of one currency and writes the result.
type Pipeline struct {
	fetcher Fetcher
	sink    output.Sink
	config  PipelineConfig
	logger  zerolog.Logger
}

// NewPipeline creates a new pipeline.
func NewPipeline(fetcher Fetcher, sink output.Sink, cfg PipelineConfig) *Pipeline {
	if cfg.Pages.MaxConcurrency <= 0 {
		cfg.Pages = pagination.DefaultConfig()
	}
	return &Pipeline{
		fetcher: fetcher,
		sink:    sink,
		config:  cfg,
		logger:  logging.NewLogger("pipeline"),
	}
}

// Run scrapes one currency for the range and writes the table to the sink.
// On error nothing is written.
func (p *Pipeline) Run(ctx context.Context, currency string, r output.DateRange) (table *output.Table, err error) {
	start := time.Now()
	logger := p.logger.With().Str("currency", currency).Logger()

	defer func() {
		EntityDuration.Observe(time.Since(start).Seconds())
		switch {
		case err != nil:
			EntitiesTotal.WithLabelValues("failed").Inc()
		case table.NoData():
			EntitiesTotal.WithLabelValues("no_data").Inc()
		default:
			EntitiesTotal.WithLabelValues("written").Inc()
			RowsWritten.Add(float64(len(table.Rows)))
		}
	}()

	logger.Info().Str("range", r.String()).Msg("Getting data")

	first, err := p.fetcher.Fetch(ctx, client.Post(p.config.URL, SearchForm(currency, r, 1)), false)
	if err != nil {
		return nil, fmt.Errorf("fetch first page: %w", err)
	}
	if !first.OK() {
		logger.Warn().Int("status", first.StatusCode).Msg("First page not OK, parsing anyway")
	}

	doc, err := document.Parse(first.Body)
	if err != nil {
		return nil, fmt.Errorf("parse first page: %w", err)
	}

	table = &output.Table{
		Currency: currency,
		Range:    r,
		Header:   doc.Header(),
	}

	if table.NoData() {
		PagesTotal.Observe(1)
		if err := p.sink.Write(ctx, table); err != nil {
			return nil, fmt.Errorf("write table: %w", err)
		}
		logger.Info().Msg("No records found")
		return table, nil
	}

	totalPages := pagination.DerivePageCount(doc.Scripts())
	PagesTotal.Observe(float64(totalPages))

	batch := pagination.NewBatchFetcher(pagination.PageFetcherFunc(func(ctx context.Context, pageNum int) ([][]string, error) {
		return p.fetchPage(ctx, currency, r, pageNum)
	}), p.config.Pages)

	rows, err := batch.FetchRemainingPages(ctx, currency, doc.DataRows(), totalPages)
	if err != nil {
		return nil, err
	}
	table.Rows = rows

	if err := p.sink.Write(ctx, table); err != nil {
		return nil, fmt.Errorf("write table: %w", err)
	}

	logger.Info().
		Int("pages", totalPages).
		Int("rows", len(rows)).
		Dur("duration", time.Since(start)).
		Msg("Currency written")

	return table, nil
}

// fetchPage fetches one page after the first, retrying until it is served
// with status 200.
func (p *Pipeline) fetchPage(ctx context.Context, currency string, r output.DateRange, pageNum int) ([][]string, error) {
	page, err := p.fetcher.Fetch(ctx, client.Post(p.config.URL, SearchForm(currency, r, pageNum)), true)
	if err != nil {
		return nil, err
	}

	doc, err := document.Parse(page.Body)
	if err != nil {
		return nil, fmt.Errorf("parse page %d: %w", pageNum, err)
	}

	rows := doc.DataRows()
	p.logger.Debug().
		Str("currency", currency).
		Int("page", pageNum).
		Int("rows", len(rows)).
		Msg("Page fetched")
	return rows, nil
}
