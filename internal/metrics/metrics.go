package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the counters and histograms scraped at /metrics.
type Metrics struct {
	operationsTotal *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	ledgerSync      *prometheus.CounterVec
	txSubmitted     *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "koinlend_operations_total",
			Help: "Finished operations by kind and terminal state.",
		}, []string{"kind", "state"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "koinlend_stage_duration_seconds",
			Help:    "Wall time spent per operation stage.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		ledgerSync: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "koinlend_ledger_sync_total",
			Help: "Ledger sync attempts by outcome.",
		}, []string{"outcome"}),
		txSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "koinlend_transactions_submitted_total",
			Help: "Submitted transactions by leg.",
		}, []string{"leg"}),
	}
}

func (m *Metrics) OperationFinished(kind, state string) {
	m.operationsTotal.WithLabelValues(kind, state).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) LedgerSync(outcome string) {
	m.ledgerSync.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TxSubmitted(leg string) {
	m.txSubmitted.WithLabelValues(leg).Inc()
}
