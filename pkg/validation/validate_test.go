package validation

import (
	"errors"
	"strings"
	"testing"

	"assistdb/pkg/models"
)

// TestValidateMessage covers the required fields and the body size cap.
func TestValidateMessage(t *testing.T) {
	ok := models.Message{Conversation: "c1", Sender: "alice", Body: "hi"}
	if err := ValidateMessage(ok); err != nil {
		t.Fatalf("valid message rejected: %v", err)
	}

	cases := []struct {
		name string
		m    models.Message
	}{
		{"missing conversation", models.Message{Sender: "a", Body: "x"}},
		{"missing sender", models.Message{Conversation: "c", Body: "x"}},
		{"missing body", models.Message{Conversation: "c", Sender: "a"}},
		{"bad type", models.Message{Conversation: "c", Sender: "a", Body: "x", Type: "hologram"}},
		{"oversize body", models.Message{Conversation: "c", Sender: "a", Body: strings.Repeat("x", 64*1024+1)}},
	}
	for _, c := range cases {
		err := ValidateMessage(c.m)
		if err == nil {
			t.Fatalf("%s: accepted", c.name)
		}
		if !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: error does not wrap ErrInvalid: %v", c.name, err)
		}
	}
}

// TestValidateEmbedOrigins rejects wildcard and schemeless origins.
func TestValidateEmbedOrigins(t *testing.T) {
	base := models.Embed{Owner: "o1", Origins: []string{"https://example.com"}}
	if err := ValidateEmbed(base); err != nil {
		t.Fatalf("valid embed rejected: %v", err)
	}
	for _, origins := range [][]string{
		nil,
		{"*"},
		{"example.com"},
		{"https://ok.com", "*"},
	} {
		em := base
		em.Origins = origins
		if err := ValidateEmbed(em); err == nil {
			t.Fatalf("origins %v accepted", origins)
		}
	}
}

// TestValidateTourSteps checks selector/position requirements and the
// step cap.
func TestValidateTourSteps(t *testing.T) {
	ok := models.Tour{Owner: "o", Name: "n", Steps: []models.TourStep{{Selector: "#a", Position: "top"}}}
	if err := ValidateTour(ok); err != nil {
		t.Fatalf("valid tour rejected: %v", err)
	}
	bad := ok
	bad.Steps = []models.TourStep{{Selector: "#a", Position: "center"}}
	if err := ValidateTour(bad); err == nil {
		t.Fatalf("unknown position accepted")
	}
	bad = ok
	bad.Steps = nil
	if err := ValidateTour(bad); err == nil {
		t.Fatalf("empty steps accepted")
	}
	bad = ok
	bad.Steps = make([]models.TourStep, 101)
	for i := range bad.Steps {
		bad.Steps[i] = models.TourStep{Selector: "#a"}
	}
	if err := ValidateTour(bad); err == nil {
		t.Fatalf("over-limit steps accepted")
	}
}

// TestValidateRoleAssignment checks the strictly-higher-level rule.
func TestValidateRoleAssignment(t *testing.T) {
	owner := models.RoleLevel("owner")
	admin := models.RoleLevel("admin")
	user := models.RoleLevel("user")

	if err := ValidateRoleAssignment(owner, user, "admin"); err != nil {
		t.Fatalf("owner granting admin rejected: %v", err)
	}
	if err := ValidateRoleAssignment(admin, user, "admin"); err == nil {
		t.Fatalf("admin granted a peer-level role")
	}
	if err := ValidateRoleAssignment(admin, owner, "user"); err == nil {
		t.Fatalf("admin demoted an owner")
	}
	if err := ValidateRoleAssignment(owner, user, "wizard"); err == nil {
		t.Fatalf("unknown role accepted")
	}
}
