package live

import (
	"context"
	"time"

	"assistdb/pkg/logger"
	"assistdb/pkg/store"
)

// Poller is the fallback Source for deployments where writers cannot reach
// the broker (e.g. a second process sharing the store). It re-reads the
// conversation on a fixed interval and emits a snapshot only when the list
// actually changed, behind the same Source interface as the broker.
type Poller struct {
	interval time.Duration
	ctx      context.Context
}

// NewPoller builds a polling Source. interval <= 0 keeps the 5s default.
func NewPoller(ctx context.Context, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Poller{interval: interval, ctx: ctx}
}

// Subscribe starts a polling loop for the conversation. The loop stops via
// the cancel func or when the poller's parent context ends.
func (p *Poller) Subscribe(convID string) (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	ctx, cancel := context.WithCancel(p.ctx)

	go func() {
		defer close(ch)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		var lastCount int
		var lastTS int64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			msgs, err := store.ListMessages(convID, 0)
			if err != nil {
				logger.Error("poll_load_failed", "conversation", convID, "error", err)
				continue
			}
			var newest int64
			for _, m := range msgs {
				if m.TS > newest {
					newest = m.TS
				}
				if m.DeletedTS > newest {
					newest = m.DeletedTS
				}
				if n := len(m.History); n > 0 && m.History[n-1].TS > newest {
					newest = m.History[n-1].TS
				}
			}
			if len(msgs) == lastCount && newest == lastTS {
				continue
			}
			lastCount = len(msgs)
			lastTS = newest
			select {
			case ch <- Snapshot{Conversation: convID, Messages: msgs}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, cancel
}
