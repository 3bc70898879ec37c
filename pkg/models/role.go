package models

// RoleAssignment is the current role + permission set for one user.
type RoleAssignment struct {
	User        string   `json:"user"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
	UpdatedTS   int64    `json:"updated_ts,omitempty"`
}

// RoleChange is one audit-trail entry for a role assignment.
type RoleChange struct {
	User     string `json:"user"`
	Actor    string `json:"actor"`
	PrevRole string `json:"prev_role,omitempty"`
	NewRole  string `json:"new_role"`
	Note     string `json:"note,omitempty"`
	TS       int64  `json:"ts"`
}

var roleLevels = map[string]int{
	"user":      1,
	"moderator": 2,
	"admin":     3,
	"owner":     4,
}

// RoleLevel returns the numeric level for a role name, 0 when unknown.
// Assignments require the actor's level to be strictly higher than both the
// level being assigned and the target's current level.
func RoleLevel(role string) int {
	return roleLevels[role]
}
