package scrape

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EntitiesTotal counts finished currencies by outcome.
	EntitiesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fx_entities_total",
		Help: "Total currencies processed by outcome (written, no_data, failed)",
	}, []string{"outcome"})

	// RowsWritten counts data rows handed to the sink.
	RowsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fx_rows_written_total",
		Help: "Total data rows handed to the output sink",
	})

	// PagesTotal records the derived page count per currency.
	PagesTotal = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fx_entity_pages",
		Help:    "Number of result pages per currency",
		Buckets: []float64{1, 2, 3, 5, 10, 20, 50},
	})

	// EntityDuration records the time to scrape one currency.
	EntityDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fx_entity_duration_seconds",
		Help:    "Time to scrape and write one currency",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})
)
