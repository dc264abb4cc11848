package protocol

import (
	"fmt"
	"sync/atomic"
)

// Metrics counts envelopes for the stats command.
type Metrics struct {
	sent         atomic.Int64
	sendFailures atomic.Int64
	received     atomic.Int64
	dropped      atomic.Int64
	ignored      atomic.Int64
}

func NewMetrics() *Metrics { return &Metrics{} }

func (m *Metrics) AddSent(ok, failed int) {
	m.sent.Add(int64(ok))
	m.sendFailures.Add(int64(failed))
}

func (m *Metrics) IncReceived() { m.received.Add(1) }
func (m *Metrics) IncDropped()  { m.dropped.Add(1) }
func (m *Metrics) IncIgnored()  { m.ignored.Add(1) }

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Sent:         m.sent.Load(),
		SendFailures: m.sendFailures.Load(),
		Received:     m.received.Load(),
		Dropped:      m.dropped.Load(),
		Ignored:      m.ignored.Load(),
	}
}

// MetricsSnapshot is printed by the stats command. Dropped covers
// envelopes that failed to decode; TransportDropped covers frames the
// connection layer discarded before decoding.
type MetricsSnapshot struct {
	Sent             int64
	SendFailures     int64
	Received         int64
	Dropped          int64
	Ignored          int64
	TransportDropped int64
}

func (s MetricsSnapshot) String() string {
	return fmt.Sprintf("sent=%d send_failures=%d received=%d dropped=%d ignored=%d transport_dropped=%d",
		s.Sent, s.SendFailures, s.Received, s.Dropped, s.Ignored, s.TransportDropped)
}
