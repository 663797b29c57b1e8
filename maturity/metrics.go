package maturity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invest_maturity_sweeps_total",
			Help: "Maturity sweeps by trigger and final status",
		},
		[]string{"trigger", "status"},
	)

	settlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invest_maturity_settlements_total",
			Help: "Settlement attempts made by sweeps, by outcome",
		},
		[]string{"outcome"},
	)

	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "invest_maturity_sweep_duration_seconds",
		Help:    "Wall time of a maturity sweep",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	})

	lastSweep = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "invest_maturity_last_sweep_timestamp_seconds",
		Help: "Unix time of the last completed sweep",
	})
)
