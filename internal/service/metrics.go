package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeMatched    = "matched"
	outcomeUnmatched  = "unmatched"
	outcomeNoResult   = "no_result"
	outcomeSkipped    = "skipped"
	outcomeSuperseded = "superseded"
)

var (
	reconcileOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fund_reconcile_outcomes_total",
			Help: "Automatic reconciliation passes by outcome",
		},
		[]string{"outcome"},
	)

	extractorDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fund_extractor_duration_seconds",
			Help:    "Amount extractor call latency",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20},
		},
	)
)
