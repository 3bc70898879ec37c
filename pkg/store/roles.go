package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"assistdb/pkg/logger"
	"assistdb/pkg/models"
)

// GetRoleAssignment returns the current assignment for a user, or a zero
// assignment when none is stored.
func GetRoleAssignment(user string) (models.RoleAssignment, error) {
	var ra models.RoleAssignment
	if db == nil {
		return ra, notOpen()
	}
	v, closer, err := db.Get([]byte("role:user:" + user))
	if err != nil {
		if err == pebble.ErrNotFound {
			return models.RoleAssignment{User: user}, nil
		}
		return ra, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &ra); err != nil {
		return ra, fmt.Errorf("invalid stored role assignment: %w", err)
	}
	return ra, nil
}

// HasRoleAssignments reports whether any role assignment is stored at all.
// An empty role table means the system has not been bootstrapped yet.
func HasRoleAssignments() (bool, error) {
	if db == nil {
		return false, notOpen()
	}
	prefix := []byte("role:user:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return false, err
	}
	defer iter.Close()
	iter.SeekGE(prefix)
	return iter.Valid() && bytes.HasPrefix(iter.Key(), prefix), iter.Error()
}

// SaveRoleAssignment persists a new assignment and appends the audit-trail
// entry recording who changed what.
func SaveRoleAssignment(ra models.RoleAssignment, change models.RoleChange) error {
	if db == nil {
		return notOpen()
	}
	ra.UpdatedTS = time.Now().UTC().UnixNano()
	b, err := json.Marshal(ra)
	if err != nil {
		return fmt.Errorf("failed to marshal role assignment: %w", err)
	}
	if err := db.Set([]byte("role:user:"+ra.User), b, pebble.Sync); err != nil {
		logger.Error("save_role_failed", "user", ra.User, "error", err)
		return err
	}
	change.TS = ra.UpdatedTS
	cb, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to marshal role change: %w", err)
	}
	auditKey := "role:audit:" + ra.User + ":" + ordinal(change.TS)
	if err := db.Set([]byte(auditKey), cb, pebble.Sync); err != nil {
		logger.Error("save_role_audit_failed", "user", ra.User, "error", err)
		return err
	}
	logger.AuditEvent("role_assigned", "user", ra.User, "role", ra.Role, "actor", change.Actor)
	return nil
}

// ListRoleChanges returns the audit trail for one user in chronological
// order.
func ListRoleChanges(user string) ([]models.RoleChange, error) {
	if db == nil {
		return nil, notOpen()
	}
	prefix := []byte("role:audit:" + user + ":")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.RoleChange
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var c models.RoleChange
		if err := json.Unmarshal(iter.Value(), &c); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, iter.Error()
}
