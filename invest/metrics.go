package invest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ledgerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invest_ledger_operations_total",
			Help: "Ledger operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	ledgerOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "invest_ledger_operation_duration_seconds",
			Help:    "Duration of ledger transactions including retries",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 5},
		},
		[]string{"operation"},
	)
)

// outcome buckets errors into a small label set.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsNotFound(err):
		return "not_found"
	case IsClientError(err):
		return "rejected"
	case IsRetryable(err):
		return "transient"
	default:
		return "error"
	}
}
