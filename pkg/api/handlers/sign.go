package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"assistdb/pkg/auth"
	"assistdb/pkg/config"
	"assistdb/pkg/utils"
)

// RegisterSign registers the identity signing endpoint. Backend callers
// exchange a user id for the HMAC signature frontends must present on
// chat requests.
func RegisterSign(r *mux.Router, d *Deps) {
	r.HandleFunc("/_sign", d.signIdentity).Methods(http.MethodPost)
}

func (d *Deps) signIdentity(w http.ResponseWriter, r *http.Request) {
	role := r.Header.Get("X-Role-Name")
	if role != "backend" && role != "admin" {
		utils.JSONError(w, http.StatusForbidden, "backend credentials required")
		return
	}
	var payload struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.UserID == "" {
		utils.JSONError(w, http.StatusBadRequest, "user_id required")
		return
	}
	keys := config.GetSigningKeys()
	if len(keys) == 0 {
		utils.JSONError(w, http.StatusInternalServerError, "no signing keys configured")
		return
	}
	var key string
	for k := range keys {
		key = k
		break
	}
	sig := auth.Sign(key, payload.UserID)
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{
		"user_id":   payload.UserID,
		"signature": sig,
	})
}
