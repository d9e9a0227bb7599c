package orchestrator

import (
	"fmt"
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/mavleo96/h2sync/internal/models"
)

// Metrics counts transitions and results of the runs of a process
type Metrics struct {
	set         *metrics.Set
	runDuration *metrics.Histogram
}

// NewMetrics creates run metrics on their own set
func NewMetrics() *Metrics {
	set := metrics.NewSet()
	return &Metrics{
		set:         set,
		runDuration: set.NewHistogram(`h2sync_run_duration_seconds`),
	}
}

func (m *Metrics) transition(to State) {
	if m == nil {
		return
	}
	m.set.GetOrCreateCounter(fmt.Sprintf(`h2sync_transitions_total{state=%q}`, to)).Inc()
}

func (m *Metrics) result(pair models.ResultPair, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.set.GetOrCreateCounter(fmt.Sprintf(`h2sync_results_total{side="self",code=%q}`, pair.Self)).Inc()
	m.set.GetOrCreateCounter(fmt.Sprintf(`h2sync_results_total{side="peer",code=%q}`, pair.Peer)).Inc()
	m.runDuration.Update(elapsed.Seconds())
}

// WritePrometheus writes all metrics in Prometheus text format
func (m *Metrics) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}
