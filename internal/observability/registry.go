package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics
// so components take metrics by dependency injection instead of touching
// the global Prometheus collectors directly.
type MetricsRegistry interface {
	// HTTP request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Decision engine metrics
	IncrementDecision(outcome string)
	IncrementReservationConflicts()
	SetBudgetSpent(campaign string, amount float64)

	// Campaign and payout lifecycle metrics
	IncrementCampaignTransition(status string)
	IncrementPayout(status string)

	// Event sink metrics
	IncrementEventSinkErrors()
}

// PrometheusRegistry implements MetricsRegistry on top of the global
// Prometheus collectors.
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementDecision(outcome string) {
	DecisionCount.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) IncrementReservationConflicts() {
	ReservationConflicts.Inc()
}

func (r *PrometheusRegistry) SetBudgetSpent(campaign string, amount float64) {
	BudgetSpent.WithLabelValues(campaign).Set(amount)
}

func (r *PrometheusRegistry) IncrementCampaignTransition(status string) {
	CampaignTransitionCount.WithLabelValues(status).Inc()
}

func (r *PrometheusRegistry) IncrementPayout(status string) {
	PayoutCount.WithLabelValues(status).Inc()
}

func (r *PrometheusRegistry) IncrementEventSinkErrors() {
	EventSinkErrors.Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementDecision(outcome string)                                     {}
func (r *NoOpRegistry) IncrementReservationConflicts()                                       {}
func (r *NoOpRegistry) SetBudgetSpent(campaign string, amount float64)                       {}
func (r *NoOpRegistry) IncrementCampaignTransition(status string)                            {}
func (r *NoOpRegistry) IncrementPayout(status string)                                        {}
func (r *NoOpRegistry) IncrementEventSinkErrors()                                            {}
