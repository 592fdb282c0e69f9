package output

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SinkWrites counts table writes by sink and outcome.
	SinkWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fx_sink_writes_total",
		Help: "Total table writes by sink and outcome",
	}, []string{"sink", "outcome"})

	// SinkRows counts data rows persisted by sink.
	SinkRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fx_sink_rows_total",
		Help: "Total data rows persisted by sink",
	}, []string{"sink"})
)

func observeWrite(sink string, t *Table, err error) {
	if err != nil {
		SinkWrites.WithLabelValues(sink, "failure").Inc()
		return
	}
	SinkWrites.WithLabelValues(sink, "success").Inc()
	if !t.NoData() {
		SinkRows.WithLabelValues(sink).Add(float64(len(t.Rows)))
	}
}
