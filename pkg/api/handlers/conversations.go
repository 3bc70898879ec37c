package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"assistdb/pkg/auth"
	"assistdb/pkg/events"
	"assistdb/pkg/live"
	"assistdb/pkg/logger"
	"assistdb/pkg/models"
	"assistdb/pkg/store"
	"assistdb/pkg/utils"
	"assistdb/pkg/validation"
)

// RegisterConversations registers HTTP handlers for conversation-scoped
// endpoints.
func RegisterConversations(r *mux.Router, d *Deps) {
	r.HandleFunc("/conversations", d.createOrGetConversation).Methods(http.MethodPost)
	r.HandleFunc("/conversations", d.listConversations).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}", d.getConversation).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/read", d.markRead).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/archive", d.archiveConversation).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/messages", d.sendMessage).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/messages", d.listMessages).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/events", d.streamConversation).Methods(http.MethodGet)
}

// createOrGetConversation is idempotent: the same participant pair, in
// either order, resolves to the same conversation.
func (d *Deps) createOrGetConversation(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Participants []models.Participant `json:"participants"`
		Type         string               `json:"type,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validation.ValidateParticipants(payload.Participants); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(payload.Participants) != 2 {
		utils.JSONError(w, http.StatusBadRequest, "exactly two participants supported")
		return
	}
	c, created, err := store.FindOrCreateConversation(payload.Participants[0], payload.Participants[1], payload.Type)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	_ = utils.JSONWrite(w, status, c)
}

func (d *Deps) listConversations(w http.ResponseWriter, r *http.Request) {
	participant := r.URL.Query().Get("participant")
	out, err := store.ListConversations(participant)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Conversations []models.Conversation `json:"conversations"`
	}{Conversations: out})
}

func (d *Deps) getConversation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	c, err := store.GetConversation(id)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, c)
}

func (d *Deps) markRead(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	actor := requestActor(r)
	if actor == "" {
		utils.JSONError(w, http.StatusUnauthorized, "actor identity required")
		return
	}
	if err := store.MarkConversationRead(id, actor); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Deps) archiveConversation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := store.ArchiveConversation(id); err != nil {
		utils.JSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Deps) sendMessage(w http.ResponseWriter, r *http.Request) {
	convID := mux.Vars(r)["id"]
	var payload struct {
		Body       interface{} `json:"body"`
		Type       string      `json:"type,omitempty"`
		Transcript string      `json:"transcript,omitempty"`
		Sender     string      `json:"sender,omitempty"`
		SenderEmail string     `json:"sender_email,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	sender := requestActor(r)
	if sender == "" {
		// backend callers may name the sender explicitly
		sender = payload.Sender
	}
	m := models.Message{
		ID:           utils.GenMessageID(),
		Conversation: convID,
		Sender:       sender,
		SenderEmail:  payload.SenderEmail,
		Type:         payload.Type,
		Body:         payload.Body,
		Transcript:   payload.Transcript,
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
	d.notify(convID)
	if err := d.Events.Publish(r.Context(), events.TypeMessageSent, m); err != nil {
		logger.Warn("message_event_publish_failed", "msg_id", m.ID, "error", err)
	}
	logger.Info("message_created", "conversation", convID, "id", m.ID)
	_ = utils.JSONWrite(w, http.StatusCreated, m)
}

func (d *Deps) listMessages(w http.ResponseWriter, r *http.Request) {
	convID := mux.Vars(r)["id"]
	limit := 0
	if limStr := r.URL.Query().Get("limit"); limStr != "" {
		if lim, err := strconv.Atoi(limStr); err == nil && lim > 0 {
			limit = lim
		}
	}
	if _, err := store.GetConversation(convID); err != nil {
		utils.JSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	msgs, err := store.ListMessages(convID, limit)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Conversation string           `json:"conversation"`
		Messages     []models.Message `json:"messages"`
	}{Conversation: convID, Messages: msgs})
}

// streamConversation serves the live snapshot stream: one snapshot on
// connect, then one per observed change, until the client disconnects.
func (d *Deps) streamConversation(w http.ResponseWriter, r *http.Request) {
	convID := mux.Vars(r)["id"]
	if _, err := store.GetConversation(convID); err != nil {
		utils.JSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.JSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	src := d.Stream
	if src == nil {
		src = d.Live
	}
	if src == nil {
		utils.JSONError(w, http.StatusServiceUnavailable, "no live source configured")
		return
	}

	utils.SetupSSEHeaders(w)
	msgs, err := store.ListMessages(convID, 0)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := utils.SendSSEEvent(w, flusher, "snapshot", live.Snapshot{Conversation: convID, Messages: msgs}); err != nil {
		return
	}

	ch, cancel := src.Subscribe(convID)
	defer cancel()
	for {
		select {
		case <-r.Context().Done():
			return
		case snap, open := <-ch:
			if !open {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, "snapshot", snap); err != nil {
				return
			}
		}
	}
}

// requestActor resolves the acting identity: the HMAC-verified context
// value when present, else the X-User-ID header for trusted backend/admin
// callers.
func requestActor(r *http.Request) string {
	if id := auth.ActorIDFromContext(r.Context()); id != "" {
		return id
	}
	role := r.Header.Get("X-Role-Name")
	if role == "backend" || role == "admin" {
		return r.Header.Get("X-User-ID")
	}
	return ""
}
