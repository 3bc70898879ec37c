package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"assistdb/pkg/bridge"
	"assistdb/pkg/events"
	"assistdb/pkg/logger"
	"assistdb/pkg/models"
	"assistdb/pkg/store"
	"assistdb/pkg/utils"
	"assistdb/pkg/validation"
)

// RegisterWidget registers the visitor-facing widget surface, mounted
// under /widget. These endpoints carry no API key; a bootstrap is gated
// by the embed's origin allow-list and everything after it by the
// session token the bootstrap minted.
func RegisterWidget(r *mux.Router, d *Deps) {
	r.HandleFunc("/bootstrap", d.widgetBootstrap).Methods(http.MethodGet)
	r.HandleFunc("/messages", d.widgetListMessages).Methods(http.MethodGet)
	r.HandleFunc("/messages", d.widgetSendMessage).Methods(http.MethodPost)
	r.HandleFunc("/feedback", d.widgetSubmitFeedback).Methods(http.MethodPost)
}

type bootstrapResponse struct {
	Embed        string               `json:"embed"`
	Conversation string               `json:"conversation"`
	Session      string               `json:"session"`
	ExpiresTS    int64                `json:"expires_ts"`
	Style        models.EmbedStyle    `json:"style"`
	Behavior     models.EmbedBehavior `json:"behavior"`
}

// widgetBootstrap validates an embed load and mints a session. The
// origin check fails closed: missing embed, inactive embed, missing
// origin or an origin outside the allow-list all produce 403 with no
// config disclosure.
func (d *Deps) widgetBootstrap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	embedID := q.Get("embed")
	origin := q.Get("origin")
	if origin == "" {
		origin = r.Header.Get("Origin")
	}
	visitor := q.Get("user_id")
	if visitor == "" {
		visitor = q.Get("fingerprint")
	}
	if embedID == "" || visitor == "" {
		store.CountEmbedBootstrap("denied")
		utils.JSONError(w, http.StatusForbidden, "embed not available")
		return
	}
	e, err := store.GetEmbed(embedID)
	if err != nil {
		store.CountEmbedBootstrap("denied")
		logger.Warn("embed_bootstrap_denied", "embed", embedID, "origin", origin, "reason", "unknown_embed")
		utils.JSONError(w, http.StatusForbidden, "embed not available")
		return
	}
	if !e.Active || !e.OriginAllowed(origin) {
		store.CountEmbedBootstrap("denied")
		logger.Warn("embed_bootstrap_denied", "embed", embedID, "origin", origin, "reason", "origin_not_allowed")
		utils.JSONError(w, http.StatusForbidden, "embed not available")
		return
	}
	c, _, err := store.FindOrCreateVisitorConversation(e, visitor)
	if err != nil {
		store.CountEmbedBootstrap("error")
		utils.JSONError(w, http.StatusInternalServerError, "bootstrap failed")
		return
	}
	sess, tok, err := bridge.IssueSession(e.ID, visitor, c.ID, origin, d.SessionTTL)
	if err != nil {
		store.CountEmbedBootstrap("error")
		logger.Error("widget_session_issue_failed", "embed", embedID, "error", err)
		utils.JSONError(w, http.StatusInternalServerError, "bootstrap failed")
		return
	}
	store.CountEmbedBootstrap("allowed")
	_ = utils.JSONWrite(w, http.StatusOK, bootstrapResponse{
		Embed:        e.ID,
		Conversation: c.ID,
		Session:      tok,
		ExpiresTS:    sess.ExpiresTS,
		Style:        e.Style,
		Behavior:     e.Behavior,
	})
}

// widgetSession resolves and verifies the session token on a widget
// request, from the ?session= query param or an X-Widget-Session header.
func widgetSession(w http.ResponseWriter, r *http.Request) (store.WidgetSession, bool) {
	tok := r.URL.Query().Get("session")
	if tok == "" {
		tok = r.Header.Get("X-Widget-Session")
	}
	if tok == "" {
		utils.JSONError(w, http.StatusUnauthorized, "session token required")
		return store.WidgetSession{}, false
	}
	sess, err := bridge.VerifyToken(tok)
	if err != nil {
		utils.JSONError(w, http.StatusUnauthorized, "invalid session")
		return store.WidgetSession{}, false
	}
	return sess, true
}

func (d *Deps) widgetListMessages(w http.ResponseWriter, r *http.Request) {
	sess, ok := widgetSession(w, r)
	if !ok {
		return
	}
	msgs, err := store.ListMessages(sess.Conversation, 0)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Conversation string           `json:"conversation"`
		Messages     []models.Message `json:"messages"`
	}{Conversation: sess.Conversation, Messages: msgs})
}

// widgetSendMessage appends a visitor message to the session's
// conversation. The sender is the session's visitor id, never anything
// the request body claims.
func (d *Deps) widgetSendMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := widgetSession(w, r)
	if !ok {
		return
	}
	var payload struct {
		Body interface{} `json:"body"`
		Type string      `json:"type,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	m := models.Message{
		ID:           utils.GenMessageID(),
		Conversation: sess.Conversation,
		Sender:       sess.Visitor,
		Type:         payload.Type,
		Body:         payload.Body,
		TS:           time.Now().UTC().UnixNano(),
	}
	if m.Type == "" {
		m.Type = models.MessageTypeText
	}
	if err := validation.ValidateMessage(m); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := store.AppendMessage(m); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	d.notify(sess.Conversation)
	if err := d.Events.Publish(r.Context(), events.TypeMessageSent, m); err != nil {
		logger.Warn("message_event_publish_failed", "msg_id", m.ID, "error", err)
	}
	_ = utils.JSONWrite(w, http.StatusCreated, m)
}

// widgetSubmitFeedback is the HTTP fallback for clients that cannot
// hold a websocket open; semantics match the FEEDBACK_SUBMITTED frame.
func (d *Deps) widgetSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	sess, ok := widgetSession(w, r)
	if !ok {
		return
	}
	var payload struct {
		Rating int    `json:"rating"`
		Text   string `json:"text,omitempty"`
		Step   string `json:"step,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if payload.Rating < 0 || payload.Rating > 5 {
		utils.JSONError(w, http.StatusBadRequest, "rating must be between 0 and 5")
		return
	}
	if payload.Rating == 0 && payload.Text == "" {
		utils.JSONError(w, http.StatusBadRequest, "feedback needs a rating or text")
		return
	}
	f := models.Feedback{
		ID:      utils.GenFeedbackID(),
		Embed:   sess.Embed,
		Session: sess.ID,
		Visitor: sess.Visitor,
		Rating:  payload.Rating,
		Text:    payload.Text,
		Step:    payload.Step,
		TS:      time.Now().UTC().UnixNano(),
	}
	if err := store.AppendFeedback(f); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := d.Events.Publish(r.Context(), events.TypeFeedbackSubmitted, f); err != nil {
		logger.Warn("feedback_event_publish_failed", "feedback", f.ID, "error", err)
	}
	_ = utils.JSONWrite(w, http.StatusCreated, f)
}
