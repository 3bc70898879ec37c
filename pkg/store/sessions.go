package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"assistdb/pkg/logger"
)

// WidgetSession is the server-side record behind a signed widget session
// token. Keeping it in the store allows revocation and expiry sweeping.
type WidgetSession struct {
	ID           string `json:"id"`
	Embed        string `json:"embed"`
	Visitor      string `json:"visitor"`
	Conversation string `json:"conversation"`
	Origin       string `json:"origin"`
	IssuedTS     int64  `json:"issued_ts"`
	ExpiresTS    int64  `json:"expires_ts"`
}

// Expired reports whether the session has passed its expiry.
func (s WidgetSession) Expired(now time.Time) bool {
	return s.ExpiresTS > 0 && now.UTC().UnixNano() > s.ExpiresTS
}

// SaveWidgetSession persists a widget session record.
func SaveWidgetSession(s WidgetSession) error {
	if db == nil {
		return notOpen()
	}
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal widget session: %w", err)
	}
	if err := db.Set([]byte("widget:session:"+s.ID), b, pebble.Sync); err != nil {
		logger.Error("save_widget_session_failed", "session", s.ID, "error", err)
		return err
	}
	return nil
}

// GetWidgetSession returns the stored session for a given ID.
func GetWidgetSession(id string) (WidgetSession, error) {
	var s WidgetSession
	if db == nil {
		return s, notOpen()
	}
	v, closer, err := db.Get([]byte("widget:session:" + id))
	if err != nil {
		return s, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &s); err != nil {
		return s, fmt.Errorf("invalid stored widget session: %w", err)
	}
	return s, nil
}

// DeleteWidgetSession removes a session record (revocation or sweep).
func DeleteWidgetSession(id string) error {
	if db == nil {
		return notOpen()
	}
	return db.Delete([]byte("widget:session:"+id), pebble.Sync)
}

// SweepWidgetSessions deletes all expired widget sessions and returns how
// many were removed.
func SweepWidgetSessions(now time.Time) (int, error) {
	if db == nil {
		return 0, notOpen()
	}
	prefix := []byte("widget:session:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	var expired []string
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var s WidgetSession
		if err := json.Unmarshal(iter.Value(), &s); err != nil {
			continue
		}
		if s.Expired(now) {
			expired = append(expired, string(append([]byte(nil), iter.Key()...)))
		}
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}
	for _, k := range expired {
		if err := db.Delete([]byte(k), pebble.Sync); err != nil {
			return 0, err
		}
	}
	if len(expired) > 0 {
		logger.Info("widget_sessions_swept", "count", len(expired))
	}
	return len(expired), nil
}
