package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cockroachdb/pebble"
	"github.com/gorilla/mux"

	"assistdb/pkg/events"
	"assistdb/pkg/logger"
	"assistdb/pkg/models"
	"assistdb/pkg/store"
	"assistdb/pkg/utils"
)

// RegisterMessages registers message-level endpoints addressed by
// message ID rather than conversation.
func RegisterMessages(r *mux.Router, d *Deps) {
	r.HandleFunc("/messages/{id}", d.getMessage).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}", d.editMessage).Methods(http.MethodPut)
	r.HandleFunc("/messages/{id}", d.deleteMessage).Methods(http.MethodDelete)
	r.HandleFunc("/messages/{id}/versions", d.listMessageVersions).Methods(http.MethodGet)
}

func (d *Deps) getMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m, err := store.GetMessage(id)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			utils.JSONError(w, http.StatusNotFound, "message not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, m.Redacted())
}

// editMessage replaces the message body. Only the original sender may
// edit; edits of deleted messages are refused.
func (d *Deps) editMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	actor := requestActor(r)
	if actor == "" {
		utils.JSONError(w, http.StatusUnauthorized, "actor identity required")
		return
	}
	var payload struct {
		Body   interface{} `json:"body"`
		Reason string      `json:"reason,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if payload.Body == nil {
		utils.JSONError(w, http.StatusBadRequest, "body required")
		return
	}
	m, err := store.EditMessage(id, actor, payload.Body, payload.Reason)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotSender):
			utils.JSONError(w, http.StatusForbidden, "only the sender may edit a message")
		case errors.Is(err, store.ErrMessageDeleted):
			utils.JSONError(w, http.StatusConflict, "message has been deleted")
		case errors.Is(err, pebble.ErrNotFound):
			utils.JSONError(w, http.StatusNotFound, "message not found")
		default:
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	d.notify(m.Conversation)
	if err := d.Events.Publish(r.Context(), events.TypeMessageEdited, m); err != nil {
		logger.Warn("message_event_publish_failed", "msg_id", id, "error", err)
	}
	_ = utils.JSONWrite(w, http.StatusOK, m)
}

// deleteMessage soft-deletes: the entry stays in the record with its
// body replaced by a placeholder. Repeat deletes are no-ops.
func (d *Deps) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	actor := requestActor(r)
	if actor == "" {
		utils.JSONError(w, http.StatusUnauthorized, "actor identity required")
		return
	}
	var payload struct {
		Reason string `json:"reason,omitempty"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}
	m, err := store.SoftDeleteMessage(id, actor, payload.Reason)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotSender):
			utils.JSONError(w, http.StatusForbidden, "only the sender may delete a message")
		case errors.Is(err, pebble.ErrNotFound):
			utils.JSONError(w, http.StatusNotFound, "message not found")
		default:
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	d.notify(m.Conversation)
	if err := d.Events.Publish(r.Context(), events.TypeMessageDeleted, m.Redacted()); err != nil {
		logger.Warn("message_event_publish_failed", "msg_id", id, "error", err)
	}
	_ = utils.JSONWrite(w, http.StatusOK, m.Redacted())
}

func (d *Deps) listMessageVersions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	versions, err := store.ListMessageVersions(id)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			utils.JSONError(w, http.StatusNotFound, "message not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Message  string           `json:"message"`
		Versions []models.Message `json:"versions"`
	}{Message: id, Versions: versions})
}
