package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/fx-rate-scraper/pkg/scheduler"
)

// Config holds batch fetcher configuration.
type Config struct {
	// MaxConcurrency is the maximum number of pages fetched at once for one result set.
	MaxConcurrency int

	// Mode is the scheduler admission policy.
	Mode scheduler.Mode
}

// DefaultConfig returns the default per-currency page configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 2,
		Mode:           scheduler.ModeDrain,
	}
}

// PageFetcher fetches the data rows of a single page.
type PageFetcher interface {
	FetchPage(ctx context.Context, pageNum int) ([][]string, error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, pageNum int) ([][]string, error)

// FetchPage calls f.
func (f PageFetcherFunc) FetchPage(ctx context.Context, pageNum int) ([][]string, error) {
	return f(ctx, pageNum)
}

// BatchFetcher fetches the remaining pages of a result set in parallel.
type BatchFetcher struct {
	fetcher PageFetcher
	config  Config
}

// NewBatchFetcher creates a new batch fetcher.
func NewBatchFetcher(fetcher PageFetcher, config Config) *BatchFetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	if config.Mode == "" {
		config.Mode = scheduler.ModeDrain
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchRemainingPages fetches pages 2..totalPages and returns every row of the
// result set, firstPage included, in server page order. name labels the
// scheduler used for this result set.
func (bf *BatchFetcher) FetchRemainingPages(ctx context.Context, name string, firstPage [][]string, totalPages int) ([][]string, error) {
	start := time.Now()

	// Single page optimization
	if totalPages <= 1 {
		return firstPage, nil
	}

	log.Debug().
		Str("result_set", name).
		Int("total_pages", totalPages).
		Int("concurrency", bf.config.MaxConcurrency).
		Msg("Starting parallel page fetch")

	tasks := make([]scheduler.Task[[][]string], 0, totalPages-1)
	for page := 2; page <= totalPages; page++ {
		pageNum := page
		tasks = append(tasks, scheduler.NewTask(pageNum-1, func(ctx context.Context) ([][]string, error) {
			rows, err := bf.fetcher.FetchPage(ctx, pageNum)
			if err != nil {
				return nil, fmt.Errorf("fetch page %d: %w", pageNum, err)
			}
			return rows, nil
		}))
	}

	sched := scheduler.New[[][]string](scheduler.Config{
		Name:        "pages:" + name,
		Concurrency: bf.config.MaxConcurrency,
		Mode:        bf.config.Mode,
	})

	results, err := sched.Run(ctx, tasks)
	if err != nil {
		return nil, err
	}

	results = append(results, scheduler.Result[[][]string]{Key: 0, Value: firstPage})

	pages, err := scheduler.Ordered(results, totalPages)
	if err != nil {
		return nil, fmt.Errorf("reassemble pages: %w", err)
	}

	rows := Flatten(pages)

	log.Debug().
		Str("result_set", name).
		Int("pages", totalPages).
		Int("rows", len(rows)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return rows, nil
}

// Flatten concatenates pages in index order.
func Flatten[T any](pages [][]T) []T {
	n := 0
	for _, p := range pages {
		n += len(p)
	}

	out := make([]T, 0, n)
	for _, p := range pages {
		out = append(out, p...)
	}
	return out
}
