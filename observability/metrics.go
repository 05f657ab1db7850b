// Package observability aggregates runtime counters for the sync core.
package observability

import (
	"sync/atomic"
	"time"
)

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	MessagesRelayed   uint64    `json:"messages_relayed"`
	MessagesQueued    uint64    `json:"messages_queued"`
	MessagesDropped   uint64    `json:"messages_dropped"`
	HandoffsSucceeded uint64    `json:"handoffs_succeeded"`
	HandoffsFailed    uint64    `json:"handoffs_failed"`
	ConflictsResolved uint64    `json:"conflicts_resolved"`
	SlowClientDrops   uint64    `json:"slow_client_drops"`
	StartedAt         time.Time `json:"started_at"`
}

// Metrics holds atomic counters updated from connection handlers and the
// handoff coordinator. Safe for concurrent use.
type Metrics struct {
	messagesRelayed   atomic.Uint64
	messagesQueued    atomic.Uint64
	messagesDropped   atomic.Uint64
	handoffsSucceeded atomic.Uint64
	handoffsFailed    atomic.Uint64
	conflictsResolved atomic.Uint64
	slowClientDrops   atomic.Uint64
	startedAt         time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{startedAt: time.Now().UTC()}
}

func (m *Metrics) IncrMessagesRelayed()   { m.messagesRelayed.Add(1) }
func (m *Metrics) IncrMessagesQueued()    { m.messagesQueued.Add(1) }
func (m *Metrics) IncrMessagesDropped()   { m.messagesDropped.Add(1) }
func (m *Metrics) IncrHandoffsSucceeded() { m.handoffsSucceeded.Add(1) }
func (m *Metrics) IncrHandoffsFailed()    { m.handoffsFailed.Add(1) }
func (m *Metrics) IncrConflictsResolved() { m.conflictsResolved.Add(1) }
func (m *Metrics) IncrSlowClientDrops()   { m.slowClientDrops.Add(1) }

// GetLatest returns a consistent-enough snapshot for reporting. Counters
// are read individually; small skew between them is acceptable.
func (m *Metrics) GetLatest() Snapshot {
	return Snapshot{
		MessagesRelayed:   m.messagesRelayed.Load(),
		MessagesQueued:    m.messagesQueued.Load(),
		MessagesDropped:   m.messagesDropped.Load(),
		HandoffsSucceeded: m.handoffsSucceeded.Load(),
		HandoffsFailed:    m.handoffsFailed.Load(),
		ConflictsResolved: m.conflictsResolved.Load(),
		SlowClientDrops:   m.slowClientDrops.Load(),
		StartedAt:         m.startedAt,
	}
}
