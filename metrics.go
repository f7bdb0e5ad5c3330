package goadsdev

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mrpasztoradam/goadsdev/internal/ads"
)

// Metrics defines the interface for collecting operational metrics.
// Implementations can export metrics to various backends (Prometheus, StatsD, etc.).
type Metrics interface {
	// Connection metrics
	ConnectionAccepted()
	ConnectionRejected()
	ConnectionClosed()
	SessionsActive(count int)

	// Command metrics
	CommandStarted(command string)
	CommandCompleted(command string, duration time.Duration, result ads.Error)

	// Data transfer metrics
	BytesSent(bytes int64)
	BytesReceived(bytes int64)

	// Handle metrics
	HandleAllocated()
	HandleReleased(count int)

	// Error metrics
	ErrorOccurred(category ErrorCategory, operation string)
}

type noopMetrics struct{}

func (n *noopMetrics) ConnectionAccepted()                                                    {}
func (n *noopMetrics) ConnectionRejected()                                                    {}
func (n *noopMetrics) ConnectionClosed()                                                      {}
func (n *noopMetrics) SessionsActive(count int)                                               {}
func (n *noopMetrics) CommandStarted(command string)                                          {}
func (n *noopMetrics) CommandCompleted(command string, duration time.Duration, res ads.Error) {}
func (n *noopMetrics) BytesSent(bytes int64)                                                  {}
func (n *noopMetrics) BytesReceived(bytes int64)                                              {}
func (n *noopMetrics) HandleAllocated()                                                       {}
func (n *noopMetrics) HandleReleased(count int)                                               {}
func (n *noopMetrics) ErrorOccurred(category ErrorCategory, operation string)                 {}

var (
	// DefaultMetrics is a no-op metrics collector used when none is configured.
	DefaultMetrics Metrics = &noopMetrics{}
)

// InMemoryMetrics provides a simple in-memory metrics collector for the
// admin API and tests.
type InMemoryMetrics struct {
	mu sync.RWMutex

	ConnectionsAcceptedCount atomic.Int64
	ConnectionsRejectedCount atomic.Int64
	ConnectionsClosedCount   atomic.Int64
	SessionsActiveCount      atomic.Int64

	CommandCounts    map[string]*atomic.Int64
	CommandDurations map[string]time.Duration
	CommandFailures  map[string]*atomic.Int64

	BytesSentCount     atomic.Int64
	BytesReceivedCount atomic.Int64

	HandlesAllocatedCount atomic.Int64
	HandlesActiveCount    atomic.Int64

	ErrorsByCategory  map[ErrorCategory]*atomic.Int64
	ErrorsByOperation map[string]*atomic.Int64
}

// NewInMemoryMetrics creates a new in-memory metrics collector.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		CommandCounts:     make(map[string]*atomic.Int64),
		CommandDurations:  make(map[string]time.Duration),
		CommandFailures:   make(map[string]*atomic.Int64),
		ErrorsByCategory:  make(map[ErrorCategory]*atomic.Int64),
		ErrorsByOperation: make(map[string]*atomic.Int64),
	}
}

func (m *InMemoryMetrics) ConnectionAccepted() {
	m.ConnectionsAcceptedCount.Add(1)
}

func (m *InMemoryMetrics) ConnectionRejected() {
	m.ConnectionsRejectedCount.Add(1)
}

func (m *InMemoryMetrics) ConnectionClosed() {
	m.ConnectionsClosedCount.Add(1)
}

func (m *InMemoryMetrics) SessionsActive(count int) {
	m.SessionsActiveCount.Store(int64(count))
}

func (m *InMemoryMetrics) CommandStarted(command string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.CommandCounts[command]; !exists {
		m.CommandCounts[command] = &atomic.Int64{}
	}
	m.CommandCounts[command].Add(1)
}

func (m *InMemoryMetrics) CommandCompleted(command string, duration time.Duration, result ads.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CommandDurations[command] += duration

	if result.IsError() {
		if _, exists := m.CommandFailures[command]; !exists {
			m.CommandFailures[command] = &atomic.Int64{}
		}
		m.CommandFailures[command].Add(1)
	}
}

func (m *InMemoryMetrics) BytesSent(bytes int64) {
	m.BytesSentCount.Add(bytes)
}

func (m *InMemoryMetrics) BytesReceived(bytes int64) {
	m.BytesReceivedCount.Add(bytes)
}

func (m *InMemoryMetrics) HandleAllocated() {
	m.HandlesAllocatedCount.Add(1)
	m.HandlesActiveCount.Add(1)
}

func (m *InMemoryMetrics) HandleReleased(count int) {
	m.HandlesActiveCount.Add(-int64(count))
}

func (m *InMemoryMetrics) ErrorOccurred(category ErrorCategory, operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.ErrorsByCategory[category]; !exists {
		m.ErrorsByCategory[category] = &atomic.Int64{}
	}
	m.ErrorsByCategory[category].Add(1)

	if _, exists := m.ErrorsByOperation[operation]; !exists {
		m.ErrorsByOperation[operation] = &atomic.Int64{}
	}
	m.ErrorsByOperation[operation].Add(1)
}

// Snapshot returns a copy of current metrics for reporting.
func (m *InMemoryMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := MetricsSnapshot{
		ConnectionsAccepted: m.ConnectionsAcceptedCount.Load(),
		ConnectionsRejected: m.ConnectionsRejectedCount.Load(),
		ConnectionsClosed:   m.ConnectionsClosedCount.Load(),
		SessionsActive:      m.SessionsActiveCount.Load(),
		BytesSent:           m.BytesSentCount.Load(),
		BytesReceived:       m.BytesReceivedCount.Load(),
		HandlesAllocated:    m.HandlesAllocatedCount.Load(),
		HandlesActive:       m.HandlesActiveCount.Load(),
		Commands:            make(map[string]int64),
		CommandFailures:     make(map[string]int64),
		CommandTimeMillis:   make(map[string]float64),
		ErrorsByCategory:    make(map[string]int64),
		ErrorsByOperation:   make(map[string]int64),
	}

	for cmd, counter := range m.CommandCounts {
		snapshot.Commands[cmd] = counter.Load()
	}

	for cmd, counter := range m.CommandFailures {
		snapshot.CommandFailures[cmd] = counter.Load()
	}

	for cmd, d := range m.CommandDurations {
		snapshot.CommandTimeMillis[cmd] = float64(d) / float64(time.Millisecond)
	}

	for cat, counter := range m.ErrorsByCategory {
		snapshot.ErrorsByCategory[cat.String()] = counter.Load()
	}

	for op, counter := range m.ErrorsByOperation {
		snapshot.ErrorsByOperation[op] = counter.Load()
	}

	return snapshot
}

// MetricsSnapshot represents a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	ConnectionsAccepted int64              `json:"connections_accepted"`
	ConnectionsRejected int64              `json:"connections_rejected"`
	ConnectionsClosed   int64              `json:"connections_closed"`
	SessionsActive      int64              `json:"sessions_active"`
	BytesSent           int64              `json:"bytes_sent"`
	BytesReceived       int64              `json:"bytes_received"`
	HandlesAllocated    int64              `json:"handles_allocated"`
	HandlesActive       int64              `json:"handles_active"`
	Commands            map[string]int64   `json:"commands"`
	CommandFailures     map[string]int64   `json:"command_failures"`
	CommandTimeMillis   map[string]float64 `json:"command_time_ms"`
	ErrorsByCategory    map[string]int64   `json:"errors_by_category"`
	ErrorsByOperation   map[string]int64   `json:"errors_by_operation"`
}
