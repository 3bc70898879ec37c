package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/gorilla/mux"

	"assistdb/pkg/logger"
	"assistdb/pkg/models"
	"assistdb/pkg/store"
	"assistdb/pkg/utils"
	"assistdb/pkg/validation"
)

// RegisterTours registers tour CRUD. Tours arrive from the extension as
// ordered step lists; the owner is the authenticated actor, not a body
// field.
func RegisterTours(r *mux.Router, d *Deps) {
	r.HandleFunc("/tours", d.createTour).Methods(http.MethodPost)
	r.HandleFunc("/tours", d.listTours).Methods(http.MethodGet)
	r.HandleFunc("/tours/{id}", d.getTour).Methods(http.MethodGet)
	r.HandleFunc("/tours/{id}", d.updateTour).Methods(http.MethodPut)
	r.HandleFunc("/tours/{id}", d.deleteTour).Methods(http.MethodDelete)
}

func (d *Deps) createTour(w http.ResponseWriter, r *http.Request) {
	owner := requestActor(r)
	if owner == "" {
		utils.JSONError(w, http.StatusUnauthorized, "actor identity required")
		return
	}
	var t models.Tour
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	t.ID = utils.GenTourID()
	t.Owner = owner
	if t.Status == "" {
		t.Status = models.TourStatusDraft
	}
	t.CreatedTS = time.Now().UTC().UnixNano()
	t.UpdatedTS = t.CreatedTS
	if err := validation.ValidateTour(t); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := store.SaveTour(t); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("tour_created", "tour", t.ID, "owner", owner, "steps", len(t.Steps))
	_ = utils.JSONWrite(w, http.StatusCreated, t)
}

func (d *Deps) listTours(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		owner = requestActor(r)
	}
	out, err := store.ListTours(owner)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Tours []models.Tour `json:"tours"`
	}{Tours: out})
}

func (d *Deps) getTour(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, err := store.GetTour(id)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, "tour not found")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, t)
}

func (d *Deps) updateTour(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	existing, err := store.GetTour(id)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, "tour not found")
		return
	}
	actor := requestActor(r)
	if actor == "" || (actor != existing.Owner && r.Header.Get("X-Role-Name") != "admin") {
		utils.JSONError(w, http.StatusForbidden, "only the owner may update a tour")
		return
	}
	var t models.Tour
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	t.ID = existing.ID
	t.Owner = existing.Owner
	t.CreatedTS = existing.CreatedTS
	t.UpdatedTS = time.Now().UTC().UnixNano()
	if t.Status == "" {
		t.Status = existing.Status
	}
	if err := validation.ValidateTour(t); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := store.SaveTour(t); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, t)
}

func (d *Deps) deleteTour(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	existing, err := store.GetTour(id)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, "tour not found")
		return
	}
	actor := requestActor(r)
	if actor == "" || (actor != existing.Owner && r.Header.Get("X-Role-Name") != "admin") {
		utils.JSONError(w, http.StatusForbidden, "only the owner may delete a tour")
		return
	}
	if err := store.DeleteTour(id); err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			utils.JSONError(w, http.StatusNotFound, "tour not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("tour_deleted", "tour", id, "actor", actor)
	w.WriteHeader(http.StatusNoContent)
}
