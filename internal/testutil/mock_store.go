package testutil

import (
	"context"
	"sync"

	"github.com/MikeSquared-Agency/guardian/internal/session"
)

// MockStore is a thread-safe in-memory implementation of store.RecordStore
// for testing.
type MockStore struct {
	mu sync.Mutex

	Alerts    []session.AlertOutcome
	Summaries []session.SummaryRecord

	InsertAlertsErr    error
	InsertSummariesErr error

	InsertAlertsCalls    int
	InsertSummariesCalls int
}

func NewMockStore() *MockStore {
	return &MockStore{}
}

func (m *MockStore) InsertAlerts(_ context.Context, alerts []session.AlertOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InsertAlertsCalls++
	if m.InsertAlertsErr != nil {
		return m.InsertAlertsErr
	}
	m.Alerts = append(m.Alerts, alerts...)
	return nil
}

func (m *MockStore) InsertSummaries(_ context.Context, summaries []session.SummaryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InsertSummariesCalls++
	if m.InsertSummariesErr != nil {
		return m.InsertSummariesErr
	}
	m.Summaries = append(m.Summaries, summaries...)
	return nil
}

func (m *MockStore) Close() {}

// SetInsertAlertsErr flips alert-insert failure injection on or off.
func (m *MockStore) SetInsertAlertsErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InsertAlertsErr = err
}

// SetInsertSummariesErr flips summary-insert failure injection on or off.
func (m *MockStore) SetInsertSummariesErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InsertSummariesErr = err
}

// AlertsCallCount returns how many times InsertAlerts was invoked.
func (m *MockStore) AlertsCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.InsertAlertsCalls
}

// SummariesCallCount returns how many times InsertSummaries was invoked.
func (m *MockStore) SummariesCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.InsertSummariesCalls
}

// AlertCount returns the number of stored alert records.
func (m *MockStore) AlertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Alerts)
}

// SummaryCount returns the number of stored summaries.
func (m *MockStore) SummaryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Summaries)
}
