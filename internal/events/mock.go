package events

import (
	"context"
	"sync"
)

// MockRecorder captures events in memory for tests and for deployments that
// run without ClickHouse.
type MockRecorder struct {
	mu      sync.Mutex
	records []Record
}

// NewMockRecorder returns an empty MockRecorder.
func NewMockRecorder() *MockRecorder {
	return &MockRecorder{}
}

// Record appends the event to the in-memory log.
func (m *MockRecorder) Record(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Records returns a copy of everything recorded so far.
func (m *MockRecorder) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// ByType returns recorded events matching the given type.
func (m *MockRecorder) ByType(eventType string) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.records {
		if r.EventType == eventType {
			out = append(out, r)
		}
	}
	return out
}
