package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksTotal counts finished tasks by scheduler name and outcome ("success", "failure").
	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fx_scheduler_tasks_total",
			Help: "Total number of scheduler tasks by scheduler and outcome",
		},
		[]string{"scheduler", "outcome"},
	)

	// InFlight tracks tasks currently executing per scheduler name.
	InFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fx_scheduler_in_flight",
			Help: "Number of scheduler tasks currently in flight",
		},
		[]string{"scheduler"},
	)

	// Drains counts completed drain waves (drain mode only).
	Drains = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fx_scheduler_drains_total",
			Help: "Total number of drain waves completed",
		},
		[]string{"scheduler"},
	)
)
