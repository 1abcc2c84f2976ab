// Package metrics holds the Prometheus collectors of the raffle service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChancesGranted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "raffle",
		Name:      "chances_granted_total",
		Help:      "Chances inserted into the ledger.",
	})

	Draws = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raffle",
		Name:      "draws_total",
		Help:      "Draw attempts by result.",
	}, []string{"result"})

	LedgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raffle",
		Name:      "ledger_operations_total",
		Help:      "Ledger operations by name and result.",
	}, []string{"op", "result"})
)

// Observe records the outcome of a ledger operation.
func Observe(op, result string) {
	LedgerOperations.WithLabelValues(op, result).Inc()
}
