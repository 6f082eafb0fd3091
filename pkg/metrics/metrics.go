package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PreTradeChecks counts pre-trade limit checks by outcome (allowed/blocked)
var PreTradeChecks = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "riskcore_pretrade_checks_total",
		Help: "Total number of pre-trade limit checks by outcome",
	},
	[]string{"outcome"},
)

// TriggersFired counts fired stop-loss/take-profit triggers by kind
var TriggersFired = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "riskcore_triggers_fired_total",
		Help: "Total number of protective triggers fired by kind",
	},
	[]string{"kind"},
)

// BreakerTrips counts circuit breaker trips by condition
var BreakerTrips = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "riskcore_breaker_trips_total",
		Help: "Total number of circuit breaker trips by condition",
	},
	[]string{"condition"},
)

// ReportLatency records latency distribution for full risk report generation
var ReportLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "riskcore_report_generation_latency_seconds",
		Help:    "Latency in seconds to generate a full risk report",
		Buckets: prometheus.DefBuckets,
	},
)

// RiskScore exposes the most recently computed aggregate risk score
var RiskScore = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "riskcore_risk_score",
		Help: "Aggregate portfolio risk score from the last generated report",
	},
)

func init() {
	prometheus.MustRegister(PreTradeChecks, TriggersFired, BreakerTrips)
	prometheus.MustRegister(ReportLatency, RiskScore)
}
