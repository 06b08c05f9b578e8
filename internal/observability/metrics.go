package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketplace_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// submission decisions by outcome (approved, rejected, budget_exceeded, conflict)
	DecisionCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_decisions_total",
			Help: "Total submission decisions by outcome",
		},
		[]string{"outcome"},
	)

	// budget spent per campaign
	BudgetSpent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketplace_budget_spent",
			Help: "Budget spent per campaign",
		},
		[]string{"campaign"},
	)

	// payout transitions by target status
	PayoutCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_payouts_total",
			Help: "Total payout status transitions",
		},
		[]string{"status"},
	)

	// campaign status transitions by target status
	CampaignTransitionCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_campaign_transitions_total",
			Help: "Total campaign status transitions",
		},
		[]string{"status"},
	)

	// reservation retries after a lost update race
	ReservationConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marketplace_reservation_conflicts_total",
			Help: "Total budget reservation conflicts requiring retry",
		},
	)

	// errors writing to the event sink
	EventSinkErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marketplace_event_sink_errors_total",
			Help: "Total event sink write errors",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		DecisionCount,
		BudgetSpent,
		PayoutCount,
		CampaignTransitionCount,
		ReservationConflicts,
		EventSinkErrors,
	)
}
