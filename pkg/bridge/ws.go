package bridge

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"assistdb/pkg/events"
	"assistdb/pkg/logger"
	"assistdb/pkg/models"
	"assistdb/pkg/store"
	"assistdb/pkg/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
	// maxFrameBytes bounds one inbound frame
	maxFrameBytes = 32 * 1024
)

// Handler upgrades widget connections and runs the message loop. One
// Handler instance serves all connections; per-connection state lives on
// the stack of serve().
type Handler struct {
	pub       events.Publisher
	maxWidth  int
	maxHeight int
}

// wsConn serializes writes to one connection. gorilla/websocket allows a
// single concurrent writer, and both the read loop's replies and the
// keepalive pinger write.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// NewHandler builds the widget WS handler. maxWidth/maxHeight bound
// WIDGET_RESIZE requests; zero keeps the defaults.
func NewHandler(pub events.Publisher, maxWidth, maxHeight int) *Handler {
	if pub == nil {
		pub = events.Nop{}
	}
	if maxWidth <= 0 {
		maxWidth = 480
	}
	if maxHeight <= 0 {
		maxHeight = 720
	}
	return &Handler{pub: pub, maxWidth: maxWidth, maxHeight: maxHeight}
}

// ServeHTTP authenticates the session token, pins the allowed origin to
// the one recorded at bootstrap, then upgrades and serves the connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("session")
	if token == "" {
		utils.JSONError(w, http.StatusUnauthorized, "missing session token")
		return
	}
	sess, err := VerifyToken(token)
	if err != nil {
		logger.Warn("widget_ws_rejected", "error", err, "remote", r.RemoteAddr)
		utils.JSONError(w, http.StatusUnauthorized, "invalid session")
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// only the origin validated at bootstrap may speak on this session
			return r.Header.Get("Origin") == sess.Origin
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("widget_ws_upgrade_failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	logger.Info("widget_ws_connected", "session", sess.ID, "embed", sess.Embed)
	h.serve(r.Context(), conn, sess)
}

func (h *Handler) serve(ctx context.Context, conn *websocket.Conn, sess store.WidgetSession) {
	defer conn.Close()
	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	c := &wsConn{conn: conn}

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := c.ping(); err != nil {
					return
				}
			}
		}
	}()

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("widget_ws_read_failed", "session", sess.ID, "error", err)
			}
			return
		}
		payload, err := env.Decode()
		if err != nil {
			// reject explicitly rather than silently dropping the frame
			logger.Warn("widget_ws_bad_frame", "session", sess.ID, "type", string(env.Type), "error", err)
			h.reply(c, TypeWidgetError, ErrorPayload{Code: "bad_frame", Message: err.Error()})
			continue
		}
		if closeConn := h.handle(ctx, c, sess, env.Type, payload); closeConn {
			return
		}
	}
}

// handle processes one decoded frame; returning true closes the
// connection.
func (h *Handler) handle(ctx context.Context, c *wsConn, sess store.WidgetSession, t MessageType, payload any) bool {
	switch t {
	case TypeWidgetReady, TypeFeedbackReady:
		h.reply(c, t, map[string]string{
			"session":      sess.ID,
			"conversation": sess.Conversation,
		})
	case TypeWidgetClose, TypeFeedbackClosed:
		logger.Info("widget_ws_closed_by_client", "session", sess.ID)
		return true
	case TypeWidgetResize:
		p := payload.(ResizePayload)
		if p.Width > h.maxWidth {
			p.Width = h.maxWidth
		}
		if p.Height > h.maxHeight {
			p.Height = h.maxHeight
		}
		h.reply(c, TypeWidgetResize, p)
	case TypeFeedbackSubmit:
		p := payload.(FeedbackPayload)
		fb := models.Feedback{
			ID:      utils.GenFeedbackID(),
			Embed:   sess.Embed,
			Session: sess.ID,
			Visitor: sess.Visitor,
			Rating:  p.Rating,
			Text:    p.Text,
			Step:    p.Step,
			TS:      time.Now().UTC().UnixNano(),
		}
		if err := store.AppendFeedback(fb); err != nil {
			h.reply(c, TypeFeedbackError, ErrorPayload{Code: "store_failed", Message: "feedback not saved"})
			return false
		}
		if err := h.pub.Publish(ctx, events.TypeFeedbackSubmitted, fb); err != nil {
			logger.Warn("feedback_event_publish_failed", "session", sess.ID, "error", err)
		}
		h.reply(c, TypeFeedbackSubmit, map[string]string{"id": fb.ID})
	case TypeStepChanged:
		p := payload.(StepPayload)
		logger.Debug("widget_step_changed", "session", sess.ID, "step", p.Step)
	case TypeRatingSelected:
		p := payload.(RatingPayload)
		logger.Debug("widget_rating_selected", "session", sess.ID, "rating", p.Rating)
	case TypeWidgetError, TypeFeedbackError:
		p := payload.(ErrorPayload)
		logger.Warn("widget_client_error", "session", sess.ID, "code", p.Code, "message", p.Message)
	}
	return false
}

func (h *Handler) reply(c *wsConn, t MessageType, payload any) {
	env := map[string]any{"type": t, "ts": time.Now().UTC().UnixNano(), "payload": payload}
	if err := c.writeJSON(env); err != nil {
		logger.Warn("widget_ws_write_failed", "error", err)
	}
}
