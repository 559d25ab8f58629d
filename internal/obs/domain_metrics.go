package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuoteCommandsTotal counts dispatched quote commands by type and outcome.
	QuoteCommandsTotal *prometheus.CounterVec
	// QuoteTermLimitTotal counts loan terms refused by the per-quote cap.
	QuoteTermLimitTotal prometheus.Counter
	// QuoteDispatchLatency records load-apply-persist latency in milliseconds.
	QuoteDispatchLatency *prometheus.HistogramVec
	// MatrixCellsTotal counts payment matrix cells by outcome.
	MatrixCellsTotal *prometheus.CounterVec
	// InventoryLookupTotal counts vehicle lookups against the search index.
	InventoryLookupTotal *prometheus.CounterVec
	// DealArchiveTotal counts saved deal archive outcomes.
	DealArchiveTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuoteCommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_commands_total",
			Help:      "Count of quote commands by type and outcome.",
		}, []string{"command", "outcome"})
		QuoteTermLimitTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_term_limit_total",
			Help:      "Number of loan terms rejected by the per-quote cap.",
		})
		QuoteDispatchLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_dispatch_duration_ms",
			Help:      "Latency of quote command dispatch in milliseconds.",
			Buckets:   []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500},
		}, []string{"outcome"})
		MatrixCellsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_matrix_cells_total",
			Help:      "Count of payment matrix cells by outcome.",
		}, []string{"result"})
		InventoryLookupTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_lookup_total",
			Help:      "Count of vehicle lookups by outcome.",
		}, []string{"result"})
		DealArchiveTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deal_archive_total",
			Help:      "Count of saved deal archive outcomes.",
		}, []string{"result"})

		QuoteCommandsTotal = registerOrReuse(reg, QuoteCommandsTotal)
		QuoteTermLimitTotal = registerOrReuse(reg, QuoteTermLimitTotal)
		QuoteDispatchLatency = registerOrReuse(reg, QuoteDispatchLatency)
		MatrixCellsTotal = registerOrReuse(reg, MatrixCellsTotal)
		InventoryLookupTotal = registerOrReuse(reg, InventoryLookupTotal)
		DealArchiveTotal = registerOrReuse(reg, DealArchiveTotal)
	})
}
