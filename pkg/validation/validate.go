package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"assistdb/pkg/models"
)

// ErrInvalid is the sentinel all validation failures wrap, so callers can
// map them to 400 responses with errors.Is.
var ErrInvalid = errors.New("validation failed")

// Issue is one field-level validation failure.
type Issue struct{ Field, Reason string }

// Error aggregates validation issues for one entity.
type Error struct{ Issues []Issue }

func (e *Error) Error() string {
	if len(e.Issues) == 0 {
		return ErrInvalid.Error()
	}
	parts := make([]string, 0, len(e.Issues))
	for _, i := range e.Issues {
		parts = append(parts, i.Field+": "+i.Reason)
	}
	return fmt.Sprintf("%s: %s", ErrInvalid.Error(), strings.Join(parts, "; "))
}

func (e *Error) Is(target error) bool { return target == ErrInvalid }

func (e *Error) add(field, reason string) {
	e.Issues = append(e.Issues, Issue{Field: field, Reason: reason})
}

func (e *Error) orNil() error {
	if len(e.Issues) == 0 {
		return nil
	}
	return e
}

// Rules holds tunable limits; zero values fall back to defaults.
type Rules struct {
	MaxBodyBytes int
	MaxSteps     int
}

var (
	rulesMu sync.RWMutex
	rules   = Rules{MaxBodyBytes: 64 * 1024, MaxSteps: 100}
)

// SetRules installs validation limits globally.
func SetRules(r Rules) {
	rulesMu.Lock()
	defer rulesMu.Unlock()
	if r.MaxBodyBytes > 0 {
		rules.MaxBodyBytes = r.MaxBodyBytes
	}
	if r.MaxSteps > 0 {
		rules.MaxSteps = r.MaxSteps
	}
}

func getRules() Rules {
	rulesMu.RLock()
	defer rulesMu.RUnlock()
	return rules
}

var messageTypes = map[string]struct{}{
	models.MessageTypeText:  {},
	models.MessageTypeImage: {},
	models.MessageTypeAudio: {},
	models.MessageTypeVideo: {},
}

var tourPositions = map[string]struct{}{
	"": {}, "top": {}, "bottom": {}, "left": {}, "right": {}, "auto": {},
}

// ValidateMessage checks an inbound message before it is stored.
func ValidateMessage(m models.Message) error {
	e := &Error{}
	if m.Conversation == "" {
		e.add("conversation", "required")
	}
	if m.Sender == "" {
		e.add("sender", "required")
	}
	if m.Body == nil {
		e.add("body", "required")
	}
	if m.Type != "" {
		if _, ok := messageTypes[m.Type]; !ok {
			e.add("type", "must be one of text|image|audio|video")
		}
	}
	if s, ok := m.Body.(string); ok && len(s) > getRules().MaxBodyBytes {
		e.add("body", "too large")
	}
	return e.orNil()
}

// ValidateParticipants checks a conversation create request. A self-chat
// attempt (both sides the same identity) is rejected.
func ValidateParticipants(ps []models.Participant) error {
	e := &Error{}
	if len(ps) < 2 {
		e.add("participants", "at least two required")
		return e.orNil()
	}
	seen := map[string]struct{}{}
	for i, p := range ps {
		if p.ID == "" {
			e.add(fmt.Sprintf("participants[%d].id", i), "required")
			continue
		}
		if _, dup := seen[p.ID]; dup {
			e.add("participants", "duplicate participant (self-chat not allowed)")
		}
		seen[p.ID] = struct{}{}
	}
	return e.orNil()
}

// ValidateEmbed checks an embed config on create/update.
func ValidateEmbed(em models.Embed) error {
	e := &Error{}
	if em.Owner == "" {
		e.add("owner", "required")
	}
	if len(em.Origins) == 0 {
		e.add("origins", "at least one allowed origin required")
	}
	for i, o := range em.Origins {
		if o == "*" {
			e.add(fmt.Sprintf("origins[%d]", i), "wildcard origin not allowed")
		} else if !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			e.add(fmt.Sprintf("origins[%d]", i), "must be a scheme://host origin")
		}
	}
	return e.orNil()
}

// ValidateTour checks a tour on create/update. Steps keep their submitted
// order; each one needs a selector and a known tooltip position.
func ValidateTour(t models.Tour) error {
	e := &Error{}
	if t.Owner == "" {
		e.add("owner", "required")
	}
	if t.Name == "" {
		e.add("name", "required")
	}
	if t.Status != "" && t.Status != models.TourStatusDraft && t.Status != models.TourStatusPublished {
		e.add("status", "must be draft or published")
	}
	if len(t.Steps) == 0 {
		e.add("steps", "at least one step required")
	}
	if max := getRules().MaxSteps; len(t.Steps) > max {
		e.add("steps", fmt.Sprintf("too many steps (max %d)", max))
	}
	for i, s := range t.Steps {
		if s.Selector == "" {
			e.add(fmt.Sprintf("steps[%d].selector", i), "required")
		}
		if _, ok := tourPositions[s.Position]; !ok {
			e.add(fmt.Sprintf("steps[%d].position", i), "must be top|bottom|left|right|auto")
		}
	}
	return e.orNil()
}

// ValidateRoleAssignment checks a role change request against the actor's
// current level: assignments require strictly higher standing than both the
// role being granted and the target's current role.
func ValidateRoleAssignment(actorLevel int, targetCurrentLevel int, newRole string) error {
	e := &Error{}
	lvl := models.RoleLevel(newRole)
	if lvl == 0 {
		e.add("role", "unknown role")
		return e.orNil()
	}
	if actorLevel <= lvl {
		e.add("role", "actor level too low for this assignment")
	}
	if actorLevel <= targetCurrentLevel {
		e.add("user", "actor level too low to modify this user")
	}
	return e.orNil()
}
