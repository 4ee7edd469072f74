package main

import (
	"sync/atomic"
	"time"
)

// genMetrics keeps in-process counters for the generator. They exist for
// logging and the shutdown summary; there is no metrics endpoint.
type genMetrics struct {
	startTime time.Time

	notifiesReceived atomic.Uint64
	diffChanges      atomic.Uint64
	sharesSubmitted  atomic.Uint64
	sharesAccepted   atomic.Uint64
	sharesRejected   atomic.Uint64
	sharesReaped     atomic.Uint64
	sharesDropped    atomic.Uint64
	reconnects       atomic.Uint64
	rpcErrors        atomic.Uint64
	blocksSubmitted  atomic.Uint64
}

func newGenMetrics() *genMetrics {
	return &genMetrics{startTime: time.Now()}
}

type metricsSnapshot struct {
	NotifiesReceived uint64
	DiffChanges      uint64
	SharesSubmitted  uint64
	SharesAccepted   uint64
	SharesRejected   uint64
	SharesReaped     uint64
	SharesDropped    uint64
	Reconnects       uint64
	RPCErrors        uint64
	BlocksSubmitted  uint64
}

func (m *genMetrics) snapshot() metricsSnapshot {
	if m == nil {
		return metricsSnapshot{}
	}
	return metricsSnapshot{
		NotifiesReceived: m.notifiesReceived.Load(),
		DiffChanges:      m.diffChanges.Load(),
		SharesSubmitted:  m.sharesSubmitted.Load(),
		SharesAccepted:   m.sharesAccepted.Load(),
		SharesRejected:   m.sharesRejected.Load(),
		SharesReaped:     m.sharesReaped.Load(),
		SharesDropped:    m.sharesDropped.Load(),
		Reconnects:       m.reconnects.Load(),
		RPCErrors:        m.rpcErrors.Load(),
		BlocksSubmitted:  m.blocksSubmitted.Load(),
	}
}
