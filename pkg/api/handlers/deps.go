package handlers

import (
	"time"

	"assistdb/pkg/events"
	"assistdb/pkg/live"
)

// Deps carries the shared collaborators handlers need. It is built once at
// startup and passed to every Register* call; handlers hold no package
// state of their own.
type Deps struct {
	// Live is the push source notified after every message mutation.
	Live *live.Broker
	// Stream is the Source subscriptions attach to. Usually Live; a
	// deployment can point it at the polling fallback instead.
	Stream live.Source
	// Events publishes domain events; never nil (Nop when disabled).
	Events events.Publisher
	// SessionTTL bounds widget session validity.
	SessionTTL time.Duration
}

// notify pushes the conversation's fresh state to subscribers, if a broker
// is attached.
func (d *Deps) notify(convID string) {
	if d.Live != nil {
		d.Live.Notify(convID)
	}
}
