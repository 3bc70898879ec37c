package bridge

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"assistdb/pkg/events"
	"assistdb/pkg/store"
)

// dialWidget issues a session for the embed and dials the handler with
// the bootstrap origin.
func dialWidget(t *testing.T, srv *httptest.Server, origin string) *websocket.Conn {
	t.Helper()
	_, tok, err := IssueSession("emb-1", "visitor-1", "conv-1", origin, time.Hour)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "?session=" + tok
	conn, _, err := websocket.DefaultDialer.Dial(u, http.Header{"Origin": []string{origin}})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readReply(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	return env
}

// TestSocketRejectsUnknownFrames verifies an out-of-vocabulary tag gets an
// explicit error reply on the wire and the connection stays usable.
func TestSocketRejectsUnknownFrames(t *testing.T) {
	setupSessionTest(t)
	srv := httptest.NewServer(NewHandler(events.Nop{}, 0, 0))
	t.Cleanup(srv.Close)
	conn := dialWidget(t, srv, "https://example.com")

	if err := conn.WriteJSON(map[string]any{"type": "WIDGET_EXPLODE", "ts": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	env := readReply(t, conn)
	if env.Type != TypeWidgetError {
		t.Fatalf("expected error reply, got %s", env.Type)
	}
	var p ErrorPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.Code != "bad_frame" {
		t.Fatalf("unexpected error payload: %s / %v", env.Payload, err)
	}

	// the connection is still alive after the rejection
	if err := conn.WriteJSON(Envelope{Type: TypeWidgetReady}); err != nil {
		t.Fatalf("write after rejection: %v", err)
	}
	env = readReply(t, conn)
	if env.Type != TypeWidgetReady {
		t.Fatalf("ready ack missing, got %s", env.Type)
	}
}

// TestSocketResizeClamped verifies oversize resize requests come back
// bounded by the configured limits.
func TestSocketResizeClamped(t *testing.T) {
	setupSessionTest(t)
	srv := httptest.NewServer(NewHandler(events.Nop{}, 400, 600))
	t.Cleanup(srv.Close)
	conn := dialWidget(t, srv, "https://example.com")

	raw, _ := json.Marshal(ResizePayload{Width: 9000, Height: 9000})
	if err := conn.WriteJSON(Envelope{Type: TypeWidgetResize, Payload: raw}); err != nil {
		t.Fatalf("write: %v", err)
	}
	env := readReply(t, conn)
	if env.Type != TypeWidgetResize {
		t.Fatalf("expected resize reply, got %s", env.Type)
	}
	var p ResizePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode resize reply: %v", err)
	}
	if p.Width != 400 || p.Height != 600 {
		t.Fatalf("resize not clamped: %dx%d", p.Width, p.Height)
	}
}

// TestSocketFeedbackPersisted verifies a feedback frame lands in the store
// under the session's embed.
func TestSocketFeedbackPersisted(t *testing.T) {
	setupSessionTest(t)
	srv := httptest.NewServer(NewHandler(events.Nop{}, 0, 0))
	t.Cleanup(srv.Close)
	conn := dialWidget(t, srv, "https://example.com")

	raw, _ := json.Marshal(FeedbackPayload{Rating: 5, Text: "great"})
	if err := conn.WriteJSON(Envelope{Type: TypeFeedbackSubmit, Payload: raw}); err != nil {
		t.Fatalf("write: %v", err)
	}
	env := readReply(t, conn)
	if env.Type != TypeFeedbackSubmit {
		t.Fatalf("expected submit ack, got %s", env.Type)
	}

	fbs, err := store.ListFeedback("emb-1")
	if err != nil {
		t.Fatalf("ListFeedback: %v", err)
	}
	if len(fbs) != 1 || fbs[0].Rating != 5 || fbs[0].Visitor != "visitor-1" {
		t.Fatalf("feedback not recorded: %+v", fbs)
	}
}

// TestSocketOriginPinned verifies a dial whose Origin differs from the one
// recorded at bootstrap fails the handshake.
func TestSocketOriginPinned(t *testing.T) {
	setupSessionTest(t)
	srv := httptest.NewServer(NewHandler(events.Nop{}, 0, 0))
	t.Cleanup(srv.Close)

	_, tok, err := IssueSession("emb-1", "visitor-1", "conv-1", "https://example.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "?session=" + tok
	conn, _, err := websocket.DefaultDialer.Dial(u, http.Header{"Origin": []string{"https://evil.com"}})
	if err == nil {
		conn.Close()
		t.Fatalf("handshake succeeded with the wrong origin")
	}
}

// TestSocketWriteSerialized hammers one connection with concurrent pings
// and json writes; interleaved writers on a bare gorilla conn panic, the
// serialized wrapper must not.
func TestSocketWriteSerialized(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	serverConn := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConn <- conn
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()

	c := &wsConn{conn: <-serverConn}
	t.Cleanup(func() { c.conn.Close() })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = c.writeJSON(map[string]int{"n": j})
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = c.ping()
			}
		}()
	}
	wg.Wait()
}
