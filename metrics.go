package serialchat

import (
	"sync/atomic"
	"time"
)

// Metrics tracks registry-wide communication statistics.
type Metrics struct {
	// Connection statistics
	ConnectionAttempts atomic.Int64 // Total connection attempts
	SuccessfulConnects atomic.Int64 // Successful connections
	ConnectionFailures atomic.Int64 // Failed connections
	Disconnections     atomic.Int64 // Total disconnects
	ResourceFaults     atomic.Int64 // Transport faults while open
	LastConnectTime    atomic.Int64 // Unix timestamp of last connect

	// Traffic
	MessagesSent      atomic.Int64 // Messages written to ports
	MessagesReceived  atomic.Int64 // Messages synthesized from reads
	MessagesForwarded atomic.Int64 // Group-forwarded copies
	BytesSent         atomic.Int64 // Total payload bytes written
	BytesReceived     atomic.Int64 // Total payload bytes read
	LastActivityTime  atomic.Int64 // Unix timestamp of last send/receive
}

// MetricsSnapshot is a point-in-time copy for display.
type MetricsSnapshot struct {
	Timestamp time.Time

	ConnectionAttempts int64
	SuccessfulConnects int64
	ConnectionFailures int64
	Disconnections     int64
	ResourceFaults     int64

	MessagesSent      int64
	MessagesReceived  int64
	MessagesForwarded int64
	BytesSent         int64
	BytesReceived     int64

	LastConnectTime  time.Time
	LastActivityTime time.Time
}

// Snapshot copies all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Timestamp:          time.Now(),
		ConnectionAttempts: m.ConnectionAttempts.Load(),
		SuccessfulConnects: m.SuccessfulConnects.Load(),
		ConnectionFailures: m.ConnectionFailures.Load(),
		Disconnections:     m.Disconnections.Load(),
		ResourceFaults:     m.ResourceFaults.Load(),
		MessagesSent:       m.MessagesSent.Load(),
		MessagesReceived:   m.MessagesReceived.Load(),
		MessagesForwarded:  m.MessagesForwarded.Load(),
		BytesSent:          m.BytesSent.Load(),
		BytesReceived:      m.BytesReceived.Load(),
	}
	if ts := m.LastConnectTime.Load(); ts > 0 {
		s.LastConnectTime = time.Unix(ts, 0)
	}
	if ts := m.LastActivityTime.Load(); ts > 0 {
		s.LastActivityTime = time.Unix(ts, 0)
	}
	return s
}

func (m *Metrics) markActivity() {
	m.LastActivityTime.Store(time.Now().Unix())
}
