package bridge

import (
	"strings"
	"testing"
	"time"

	"assistdb/pkg/config"
	"assistdb/pkg/store"
)

func setupSessionTest(t *testing.T) {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	config.SetRuntime(&config.RuntimeConfig{
		BackendKeys: map[string]struct{}{"backend-secret": {}},
		SigningKeys: map[string]struct{}{"backend-secret": {}},
	})
	t.Cleanup(func() { config.SetRuntime(nil) })
}

// TestSessionTokenRoundTrip verifies a minted token verifies back to the
// same session record.
func TestSessionTokenRoundTrip(t *testing.T) {
	setupSessionTest(t)

	sess, tok, err := IssueSession("emb-1", "visitor-1", "conv-1", "https://example.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if tok == "" || !strings.Contains(tok, ".") {
		t.Fatalf("malformed token %q", tok)
	}
	got, err := VerifyToken(tok)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if got.ID != sess.ID || got.Embed != "emb-1" || got.Conversation != "conv-1" || got.Origin != "https://example.com" {
		t.Fatalf("session mismatch: %+v vs %+v", got, sess)
	}
}

// TestSessionTokenTamperRejected verifies signature and format tampering
// all fail verification.
func TestSessionTokenTamperRejected(t *testing.T) {
	setupSessionTest(t)

	_, tok, err := IssueSession("emb-1", "visitor-1", "conv-1", "https://example.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	parts := strings.SplitN(tok, ".", 2)
	bad := []string{
		"",
		"no-dot",
		parts[0] + ".",
		"." + parts[1],
		parts[0] + ".deadbeef",
		"AAAA." + parts[1], // id swapped, signature stale
		tok + "x",
	}
	for _, b := range bad {
		if _, err := VerifyToken(b); err == nil {
			t.Fatalf("tampered token %q verified", b)
		}
	}
}

// TestSessionTokenExpiry verifies an expired session fails verification
// even with a valid signature.
func TestSessionTokenExpiry(t *testing.T) {
	setupSessionTest(t)

	_, tok, err := IssueSession("emb-1", "visitor-1", "conv-1", "https://example.com", time.Nanosecond)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := VerifyToken(tok); err == nil {
		t.Fatalf("expired token verified")
	}
}

// TestSessionTokenRevocation verifies deleting the stored record kills the
// token even though the signature is still valid.
func TestSessionTokenRevocation(t *testing.T) {
	setupSessionTest(t)

	sess, tok, err := IssueSession("emb-1", "visitor-1", "conv-1", "https://example.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if err := store.DeleteWidgetSession(sess.ID); err != nil {
		t.Fatalf("DeleteWidgetSession: %v", err)
	}
	if _, err := VerifyToken(tok); err == nil {
		t.Fatalf("revoked token verified")
	}
}
