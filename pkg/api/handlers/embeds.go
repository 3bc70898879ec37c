package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/gorilla/mux"

	"assistdb/pkg/events"
	"assistdb/pkg/logger"
	"assistdb/pkg/models"
	"assistdb/pkg/store"
	"assistdb/pkg/utils"
	"assistdb/pkg/validation"
)

// RegisterEmbeds registers embed management endpoints. These are
// owner-facing: creating a widget config, editing its origin allow-list
// and appearance, and reading collected feedback.
func RegisterEmbeds(r *mux.Router, d *Deps) {
	r.HandleFunc("/embeds", d.createEmbed).Methods(http.MethodPost)
	r.HandleFunc("/embeds", d.listEmbeds).Methods(http.MethodGet)
	r.HandleFunc("/embeds/{id}", d.getEmbed).Methods(http.MethodGet)
	r.HandleFunc("/embeds/{id}", d.updateEmbed).Methods(http.MethodPut)
	r.HandleFunc("/embeds/{id}", d.deactivateEmbed).Methods(http.MethodDelete)
	r.HandleFunc("/embeds/{id}/feedback", d.listEmbedFeedback).Methods(http.MethodGet)
}

func (d *Deps) createEmbed(w http.ResponseWriter, r *http.Request) {
	owner := requestActor(r)
	if owner == "" {
		utils.JSONError(w, http.StatusUnauthorized, "actor identity required")
		return
	}
	var e models.Embed
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	e.ID = utils.GenEmbedID()
	e.Owner = owner
	e.Active = true
	e.CreatedTS = time.Now().UTC().UnixNano()
	e.UpdatedTS = e.CreatedTS
	if err := validation.ValidateEmbed(e); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := store.SaveEmbed(e); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := d.Events.Publish(r.Context(), events.TypeEmbedChanged, e); err != nil {
		logger.Warn("embed_event_publish_failed", "embed", e.ID, "error", err)
	}
	logger.Info("embed_created", "embed", e.ID, "owner", owner)
	_ = utils.JSONWrite(w, http.StatusCreated, e)
}

func (d *Deps) listEmbeds(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		owner = requestActor(r)
	}
	out, err := store.ListEmbeds(owner)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Embeds []models.Embed `json:"embeds"`
	}{Embeds: out})
}

func (d *Deps) getEmbed(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	e, err := store.GetEmbed(id)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, "embed not found")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, e)
}

func (d *Deps) updateEmbed(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	existing, err := store.GetEmbed(id)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, "embed not found")
		return
	}
	actor := requestActor(r)
	if actor == "" || (actor != existing.Owner && r.Header.Get("X-Role-Name") != "admin") {
		utils.JSONError(w, http.StatusForbidden, "only the owner may update an embed")
		return
	}
	var e models.Embed
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	// identity and provenance fields are not client-settable
	e.ID = existing.ID
	e.Owner = existing.Owner
	e.OwnerEmail = existing.OwnerEmail
	e.CreatedTS = existing.CreatedTS
	e.UpdatedTS = time.Now().UTC().UnixNano()
	if err := validation.ValidateEmbed(e); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := store.SaveEmbed(e); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := d.Events.Publish(r.Context(), events.TypeEmbedChanged, e); err != nil {
		logger.Warn("embed_event_publish_failed", "embed", e.ID, "error", err)
	}
	_ = utils.JSONWrite(w, http.StatusOK, e)
}

// deactivateEmbed is soft: the config stays on disk but all future
// bootstrap requests against it are denied.
func (d *Deps) deactivateEmbed(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	e, err := store.DeactivateEmbed(id)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			utils.JSONError(w, http.StatusNotFound, "embed not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := d.Events.Publish(r.Context(), events.TypeEmbedChanged, e); err != nil {
		logger.Warn("embed_event_publish_failed", "embed", id, "error", err)
	}
	logger.Info("embed_deactivated", "embed", id)
	w.WriteHeader(http.StatusNoContent)
}

func (d *Deps) listEmbedFeedback(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := store.GetEmbed(id); err != nil {
		utils.JSONError(w, http.StatusNotFound, "embed not found")
		return
	}
	out, err := store.ListFeedback(id)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Embed    string            `json:"embed"`
		Feedback []models.Feedback `json:"feedback"`
	}{Embed: id, Feedback: out})
}
