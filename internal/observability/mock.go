package observability

import (
	"sync"
	"time"
)

// MockMetricsRegistry records metric calls for assertions in tests.
type MockMetricsRegistry struct {
	mu          sync.Mutex
	Decisions   map[string]int
	Payouts     map[string]int
	Transitions map[string]int
	Conflicts   int
	SinkErrors  int
}

// NewMockMetricsRegistry creates an empty MockMetricsRegistry.
func NewMockMetricsRegistry() *MockMetricsRegistry {
	return &MockMetricsRegistry{
		Decisions:   make(map[string]int),
		Payouts:     make(map[string]int),
		Transitions: make(map[string]int),
	}
}

func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}

func (m *MockMetricsRegistry) IncrementDecision(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Decisions[outcome]++
}

func (m *MockMetricsRegistry) IncrementReservationConflicts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Conflicts++
}

func (m *MockMetricsRegistry) SetBudgetSpent(campaign string, amount float64) {}

func (m *MockMetricsRegistry) IncrementCampaignTransition(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Transitions[status]++
}

func (m *MockMetricsRegistry) IncrementPayout(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Payouts[status]++
}

func (m *MockMetricsRegistry) IncrementEventSinkErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SinkErrors++
}

// DecisionCount returns how many times the given outcome was recorded.
func (m *MockMetricsRegistry) DecisionCount(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Decisions[outcome]
}
