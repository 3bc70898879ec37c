package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"assistdb/pkg/logger"
	"assistdb/pkg/models"
	"assistdb/pkg/store"
	"assistdb/pkg/utils"
	"assistdb/pkg/validation"
)

// RegisterAdmin registers the admin surface: role assignments with an
// audit trail, store stats and a manual session sweep.
func RegisterAdmin(r *mux.Router, d *Deps) {
	r.HandleFunc("/admin/roles", d.assignRole).Methods(http.MethodPost)
	r.HandleFunc("/admin/roles/{user}", d.getRole).Methods(http.MethodGet)
	r.HandleFunc("/admin/roles/{user}/history", d.roleHistory).Methods(http.MethodGet)
	r.HandleFunc("/admin/stats", d.adminStats).Methods(http.MethodGet)
	r.HandleFunc("/admin/sweep", d.adminSweep).Methods(http.MethodPost)
}

// assignRole writes a role assignment plus its audit entry. The acting
// admin must hold a role level strictly above both the target's current
// level and the level being granted.
func (d *Deps) assignRole(w http.ResponseWriter, r *http.Request) {
	actor := requestActor(r)
	if actor == "" {
		utils.JSONError(w, http.StatusUnauthorized, "actor identity required")
		return
	}
	var payload struct {
		User        string   `json:"user"`
		Role        string   `json:"role"`
		Permissions []string `json:"permissions,omitempty"`
		Note        string   `json:"note,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if payload.User == "" || payload.Role == "" {
		utils.JSONError(w, http.StatusBadRequest, "user and role required")
		return
	}
	actorRA, err := store.GetRoleAssignment(actor)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	targetRA, err := store.GetRoleAssignment(payload.User)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	actorLevel := models.RoleLevel(actorRA.Role)
	// bootstrap: with no assignments stored anywhere, an admin API key
	// caller acts above owner level so the first owner can be installed.
	// Once any assignment exists this path is closed for good.
	if actorLevel == 0 && r.Header.Get("X-Role-Name") == "admin" {
		seeded, err := store.HasRoleAssignments()
		if err != nil {
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !seeded {
			actorLevel = models.RoleLevel("owner") + 1
			logger.AuditEvent("role_bootstrap", "actor", actor, "user", payload.User, "role", payload.Role)
		}
	}
	if err := validation.ValidateRoleAssignment(actorLevel, models.RoleLevel(targetRA.Role), payload.Role); err != nil {
		utils.JSONError(w, http.StatusForbidden, err.Error())
		return
	}
	now := time.Now().UTC().UnixNano()
	ra := models.RoleAssignment{
		User:        payload.User,
		Role:        payload.Role,
		Permissions: payload.Permissions,
		UpdatedTS:   now,
	}
	change := models.RoleChange{
		User:     payload.User,
		Actor:    actor,
		PrevRole: targetRA.Role,
		NewRole:  payload.Role,
		Note:     payload.Note,
		TS:       now,
	}
	if err := store.SaveRoleAssignment(ra, change); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, ra)
}

func (d *Deps) getRole(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["user"]
	ra, err := store.GetRoleAssignment(user)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ra.Role == "" {
		utils.JSONError(w, http.StatusNotFound, "no role assignment for user")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, ra)
}

func (d *Deps) roleHistory(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["user"]
	changes, err := store.ListRoleChanges(user)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		User    string              `json:"user"`
		Changes []models.RoleChange `json:"changes"`
	}{User: user, Changes: changes})
}

// adminStats reports raw key-prefix counts from the store.
func (d *Deps) adminStats(w http.ResponseWriter, r *http.Request) {
	prefixes := map[string]string{
		"embeds":          "embed:cfg:",
		"tours":           "tour:",
		"widget_sessions": "widget:session:",
	}
	out := map[string]int{}
	for name, prefix := range prefixes {
		keys, err := store.ListKeys(prefix)
		if err != nil {
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out[name] = len(keys)
	}
	// conversation meta keys share a prefix with message keys
	convKeys, err := store.ListKeys("conv:")
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	n := 0
	for _, k := range convKeys {
		if strings.HasSuffix(k, ":meta") {
			n++
		}
	}
	out["conversations"] = n
	_ = utils.JSONWrite(w, http.StatusOK, out)
}

// adminSweep runs the widget session sweep immediately, outside the
// cron schedule.
func (d *Deps) adminSweep(w http.ResponseWriter, r *http.Request) {
	n, err := store.SweepWidgetSessions(time.Now())
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("manual_sweep_complete", "removed", n, "actor", requestActor(r))
	_ = utils.JSONWrite(w, http.StatusOK, map[string]int{"removed": n})
}
