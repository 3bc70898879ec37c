package live

import (
	"testing"
	"time"

	"assistdb/pkg/models"
	"assistdb/pkg/store"
	"assistdb/pkg/utils"
)

func openTestStore(t *testing.T) {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
}

func createConversation(t *testing.T) models.Conversation {
	t.Helper()
	c, _, err := store.FindOrCreateConversation(models.Participant{ID: "a"}, models.Participant{ID: "b"}, "")
	if err != nil {
		t.Fatalf("FindOrCreateConversation: %v", err)
	}
	return c
}

func send(t *testing.T, conv, sender, body string) models.Message {
	t.Helper()
	m := models.Message{
		ID:           utils.GenMessageID(),
		Conversation: conv,
		Sender:       sender,
		Body:         body,
		TS:           time.Now().UTC().UnixNano(),
	}
	if err := store.AppendMessage(m); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	return m
}

// TestBrokerDeliversSnapshots verifies each notify delivers the full
// ordered list to every subscriber.
func TestBrokerDeliversSnapshots(t *testing.T) {
	openTestStore(t)
	c := createConversation(t)
	b := NewBroker(4)

	ch1, cancel1 := b.Subscribe(c.ID)
	defer cancel1()
	ch2, cancel2 := b.Subscribe(c.ID)
	defer cancel2()

	send(t, c.ID, "a", "one")
	b.Notify(c.ID)
	send(t, c.ID, "b", "two")
	b.Notify(c.ID)

	for _, ch := range []<-chan Snapshot{ch1, ch2} {
		snap := recvSnap(t, ch)
		if len(snap.Messages) != 1 || snap.Conversation != c.ID {
			t.Fatalf("first snapshot wrong: %+v", snap)
		}
		snap = recvSnap(t, ch)
		if len(snap.Messages) != 2 {
			t.Fatalf("second snapshot wrong: %+v", snap)
		}
		if snap.Messages[0].Body != "one" || snap.Messages[1].Body != "two" {
			t.Fatalf("snapshot out of order: %+v", snap.Messages)
		}
	}
}

func recvSnap(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case s, ok := <-ch:
		if !ok {
			t.Fatalf("snapshot channel closed")
		}
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
	}
	return Snapshot{}
}

// TestBrokerCancelDetaches verifies a canceled subscriber stops receiving
// and its channel closes, while others continue.
func TestBrokerCancelDetaches(t *testing.T) {
	openTestStore(t)
	c := createConversation(t)
	b := NewBroker(4)

	ch1, cancel1 := b.Subscribe(c.ID)
	ch2, cancel2 := b.Subscribe(c.ID)
	defer cancel2()

	cancel1()
	// double cancel is safe
	cancel1()

	if _, ok := <-ch1; ok {
		t.Fatalf("canceled channel still open")
	}

	send(t, c.ID, "a", "after cancel")
	b.Notify(c.ID)
	if snap := recvSnap(t, ch2); len(snap.Messages) != 1 {
		t.Fatalf("remaining subscriber missed snapshot: %+v", snap)
	}
}

// TestBrokerFullChannelDrops verifies a slow subscriber loses snapshots
// instead of blocking the writer.
func TestBrokerFullChannelDrops(t *testing.T) {
	openTestStore(t)
	c := createConversation(t)
	b := NewBroker(1)

	ch, cancel := b.Subscribe(c.ID)
	defer cancel()

	send(t, c.ID, "a", "one")
	b.Notify(c.ID)
	send(t, c.ID, "a", "two")
	b.Notify(c.ID) // buffer full, dropped
	send(t, c.ID, "a", "three")
	b.Notify(c.ID) // still full, dropped

	// only the first snapshot is buffered; drain and confirm no blocking
	snap := recvSnap(t, ch)
	if len(snap.Messages) != 1 {
		t.Fatalf("expected the buffered first snapshot, got %d messages", len(snap.Messages))
	}
	select {
	case s := <-ch:
		t.Fatalf("unexpected extra snapshot: %+v", s)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestBrokerNotifyNoSubscribers verifies notify is a cheap no-op without
// subscribers.
func TestBrokerNotifyNoSubscribers(t *testing.T) {
	openTestStore(t)
	b := NewBroker(0)
	b.Notify("conv-without-subs")
}
