// Package live fans conversation changes out to subscribers. A single
// push-based Source abstraction serves both the broker (notified on every
// write) and the polling fallback, so callers never juggle two update
// paths.
package live

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"assistdb/pkg/logger"
	"assistdb/pkg/models"
	"assistdb/pkg/store"
)

// Snapshot is one full ordered view of a conversation's messages. Every
// change delivers a fresh snapshot; subscribers never apply deltas.
type Snapshot struct {
	Conversation string           `json:"conversation"`
	Messages     []models.Message `json:"messages"`
}

// Source delivers conversation snapshots. Subscribe returns a channel that
// receives a snapshot on every observed change, and a cancel func that
// releases the subscription. Each call creates an independent subscription;
// there is no de-duplication across subscribers.
type Source interface {
	Subscribe(convID string) (<-chan Snapshot, func())
}

var (
	subscriberGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "assistdb_live_subscribers",
		Help: "Currently attached live subscribers.",
	})
	snapshotsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistdb_live_snapshots_dropped_total",
		Help: "Snapshots dropped because a subscriber channel was full.",
	})
)

type subscriber struct {
	ch chan Snapshot
}

// Broker is the push-based Source. Writers call Notify after every message
// mutation; the broker loads the current ordered list once and fans it out.
type Broker struct {
	mu     sync.Mutex
	subs   map[string]map[int]*subscriber
	nextID int
	buffer int
}

// NewBroker builds a broker with the given per-subscriber channel depth.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 8
	}
	return &Broker{subs: map[string]map[int]*subscriber{}, buffer: buffer}
}

// Subscribe registers a new subscriber for a conversation. The first
// snapshot is not sent here; callers wanting an immediate view should load
// one and then attach (see handlers), mirroring snapshot-then-listen.
func (b *Broker) Subscribe(convID string) (<-chan Snapshot, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[convID] == nil {
		b.subs[convID] = map[int]*subscriber{}
	}
	id := b.nextID
	b.nextID++
	s := &subscriber{ch: make(chan Snapshot, b.buffer)}
	b.subs[convID][id] = s
	subscriberGauge.Inc()
	logger.Debug("live_subscribed", "conversation", convID, "sub", id)

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if m := b.subs[convID]; m != nil {
			if _, ok := m[id]; ok {
				delete(m, id)
				close(s.ch)
				subscriberGauge.Dec()
			}
			if len(m) == 0 {
				delete(b.subs, convID)
			}
		}
	}
	return s.ch, cancel
}

// Notify loads the conversation's current ordered message list and pushes
// it to every subscriber. A full subscriber channel drops the snapshot for
// that subscriber only; a later notify carries the fresher state anyway.
func (b *Broker) Notify(convID string) {
	b.mu.Lock()
	hasSubs := len(b.subs[convID]) > 0
	b.mu.Unlock()
	if !hasSubs {
		return
	}
	msgs, err := store.ListMessages(convID, 0)
	if err != nil {
		logger.Error("live_notify_load_failed", "conversation", convID, "error", err)
		return
	}
	snap := Snapshot{Conversation: convID, Messages: msgs}

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, s := range b.subs[convID] {
		select {
		case s.ch <- snap:
		default:
			snapshotsDropped.Inc()
			logger.Warn("live_snapshot_dropped", "conversation", convID, "sub", id)
		}
	}
}
