package server

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Metrics holds server runtime metrics
type Metrics struct {
	RequestsTotal       atomic.Int64
	ActiveConnections   atomic.Int64
	AcceptedConnections atomic.Int64
	DroppedConnections  atomic.Int64
	ErrorsTotal         atomic.Int64
	Errors4xx           atomic.Int64
	Errors5xx           atomic.Int64
	BytesWritten        atomic.Int64

	TotalLatencyNs atomic.Int64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordRequest records a completed request
func (m *Metrics) RecordRequest(statusCode int, duration time.Duration) {
	m.RequestsTotal.Add(1)
	m.TotalLatencyNs.Add(duration.Nanoseconds())

	if statusCode >= 400 && statusCode < 500 {
		m.Errors4xx.Add(1)
	} else if statusCode >= 500 {
		m.Errors5xx.Add(1)
		m.ErrorsTotal.Add(1)
	}
}

// AverageLatency returns average request latency
func (m *Metrics) AverageLatency() time.Duration {
	totalReqs := m.RequestsTotal.Load()
	if totalReqs == 0 {
		return 0
	}

	avgNs := m.TotalLatencyNs.Load() / totalReqs
	return time.Duration(avgNs)
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	RequestsTotal       int64
	ActiveConnections   int64
	AcceptedConnections int64
	DroppedConnections  int64
	ErrorsTotal         int64
	Errors4xx           int64
	Errors5xx           int64
	BytesWritten        int64
	AverageLatency      time.Duration
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		RequestsTotal:       m.RequestsTotal.Load(),
		ActiveConnections:   m.ActiveConnections.Load(),
		AcceptedConnections: m.AcceptedConnections.Load(),
		DroppedConnections:  m.DroppedConnections.Load(),
		ErrorsTotal:         m.ErrorsTotal.Load(),
		Errors4xx:           m.Errors4xx.Load(),
		Errors5xx:           m.Errors5xx.Load(),
		BytesWritten:        m.BytesWritten.Load(),
		AverageLatency:      m.AverageLatency(),
	}
}

// MarshalZerologObject lets a snapshot be logged with Object.
func (s MetricsSnapshot) MarshalZerologObject(e *zerolog.Event) {
	e.Int64("requests", s.RequestsTotal).
		Int64("active_connections", s.ActiveConnections).
		Int64("accepted_connections", s.AcceptedConnections).
		Int64("dropped_connections", s.DroppedConnections).
		Int64("errors_4xx", s.Errors4xx).
		Int64("errors_5xx", s.Errors5xx).
		Int64("bytes_written", s.BytesWritten).
		Dur("avg_latency", s.AverageLatency)
}
