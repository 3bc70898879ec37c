package bridge

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"assistdb/pkg/auth"
	"assistdb/pkg/config"
	"assistdb/pkg/logger"
	"assistdb/pkg/store"
	"assistdb/pkg/utils"
)

// DefaultSessionTTL bounds widget session validity when config is silent.
const DefaultSessionTTL = 24 * time.Hour

// IssueSession mints a widget session for a validated bootstrap: a stored
// record plus a signed token binding the session id. The token, not the
// browser's claimed identity, is what the WS endpoint trusts.
func IssueSession(embedID, visitorID, conversationID, origin string, ttl time.Duration) (store.WidgetSession, string, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	now := time.Now().UTC()
	s := store.WidgetSession{
		ID:           utils.GenSessionID(),
		Embed:        embedID,
		Visitor:      visitorID,
		Conversation: conversationID,
		Origin:       origin,
		IssuedTS:     now.UnixNano(),
		ExpiresTS:    now.Add(ttl).UnixNano(),
	}
	if err := store.SaveWidgetSession(s); err != nil {
		return s, "", err
	}
	tok, err := signToken(s.ID)
	if err != nil {
		return s, "", err
	}
	logger.Info("widget_session_issued", "session", s.ID, "embed", embedID, "visitor", visitorID)
	return s, tok, nil
}

func signToken(sessionID string) (string, error) {
	keys := config.GetSigningKeys()
	if len(keys) == 0 {
		return "", fmt.Errorf("no signing keys configured")
	}
	// any configured key may sign; verification tries them all
	var key string
	for k := range keys {
		key = k
		break
	}
	id := base64.RawURLEncoding.EncodeToString([]byte(sessionID))
	return id + "." + auth.Sign(key, sessionID), nil
}

// VerifyToken checks a token's signature against every signing key, loads
// the session record and rejects expired or revoked sessions. Frames from
// connections whose token does not verify are never processed.
func VerifyToken(token string) (store.WidgetSession, error) {
	var s store.WidgetSession
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return s, fmt.Errorf("malformed session token")
	}
	idb, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return s, fmt.Errorf("malformed session token: %w", err)
	}
	sessionID := string(idb)
	if !auth.VerifyWithSigningKeys(sessionID, parts[1]) {
		return s, fmt.Errorf("invalid session signature")
	}
	s, err = store.GetWidgetSession(sessionID)
	if err != nil {
		return s, fmt.Errorf("session not found or revoked: %w", err)
	}
	if s.Expired(time.Now()) {
		return s, fmt.Errorf("session expired")
	}
	return s, nil
}
