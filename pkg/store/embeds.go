package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"assistdb/pkg/logger"
	"assistdb/pkg/models"
	"assistdb/pkg/utils"
)

// SaveEmbed stores an embed config under its reserved key.
func SaveEmbed(e models.Embed) error {
	if db == nil {
		return notOpen()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal embed: %w", err)
	}
	if err := db.Set([]byte("embed:cfg:"+e.ID), b, pebble.Sync); err != nil {
		logger.Error("save_embed_failed", "embed", e.ID, "error", err)
		return err
	}
	logger.Info("embed_saved", "embed", e.ID, "owner", e.Owner)
	return nil
}

// GetEmbed returns the stored embed config for a given ID.
func GetEmbed(id string) (models.Embed, error) {
	var e models.Embed
	if db == nil {
		return e, notOpen()
	}
	v, closer, err := db.Get([]byte("embed:cfg:" + id))
	if err != nil {
		return e, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &e); err != nil {
		return e, fmt.Errorf("invalid stored embed: %w", err)
	}
	return e, nil
}

// ListEmbeds returns all embed configs, optionally filtered by owner.
func ListEmbeds(owner string) ([]models.Embed, error) {
	if db == nil {
		return nil, notOpen()
	}
	prefix := []byte("embed:cfg:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Embed
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var e models.Embed
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			continue
		}
		if owner != "" && e.Owner != owner {
			continue
		}
		out = append(out, e)
	}
	return out, iter.Error()
}

// DeactivateEmbed marks an embed inactive. The config record persists so
// visitor conversations stay resolvable; bootstrap fails closed against it.
func DeactivateEmbed(id string) (models.Embed, error) {
	e, err := GetEmbed(id)
	if err != nil {
		return models.Embed{}, err
	}
	e.Active = false
	e.UpdatedTS = time.Now().UTC().UnixNano()
	if err := SaveEmbed(e); err != nil {
		return models.Embed{}, err
	}
	return e, nil
}

// FindOrCreateVisitorConversation resolves the conversation for one
// (embed, visitor) pair, creating it on the visitor's first bootstrap. The
// visitor id is either a caller-supplied user id or a device fingerprint;
// either way the same id maps to the same conversation on later loads.
func FindOrCreateVisitorConversation(e models.Embed, visitorID string) (models.Conversation, bool, error) {
	var c models.Conversation
	if db == nil {
		return c, false, notOpen()
	}
	convMu.Lock()
	defer convMu.Unlock()

	idxKey := []byte("embed:visitor:" + e.ID + ":" + visitorID)
	if v, closer, err := db.Get(idxKey); err == nil {
		id := string(v)
		closer.Close()
		existing, gerr := GetConversation(id)
		if gerr == nil {
			return existing, false, nil
		}
		logger.Warn("visitor_index_stale", "embed", e.ID, "visitor", visitorID)
	}

	now := time.Now().UTC().UnixNano()
	c = models.Conversation{
		ID: utils.GenConversationID(),
		Participants: []models.Participant{
			{ID: e.Owner, Email: e.OwnerEmail},
			{ID: visitorID},
		},
		Type:      models.ConversationTypeEmbed,
		Status:    models.ConversationStatusActive,
		Unread:    map[string]int{},
		CreatedTS: now,
		UpdatedTS: now,
		EmbedID:   e.ID,
		VisitorID: visitorID,
	}
	if err := SaveConversation(c); err != nil {
		return c, false, err
	}
	if err := db.Set(idxKey, []byte(c.ID), pebble.Sync); err != nil {
		logger.Error("visitor_index_write_failed", "embed", e.ID, "error", err)
		return c, false, err
	}
	logger.Info("visitor_conversation_created", "embed", e.ID, "visitor", visitorID, "conversation", c.ID)
	return c, true, nil
}

// AppendFeedback records one widget feedback submission under its embed.
func AppendFeedback(f models.Feedback) error {
	if db == nil {
		return notOpen()
	}
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback: %w", err)
	}
	key := "embed:feedback:" + f.Embed + ":" + ordinal(f.TS)
	if err := db.Set([]byte(key), b, pebble.Sync); err != nil {
		logger.Error("save_feedback_failed", "embed", f.Embed, "error", err)
		return err
	}
	logger.Info("feedback_saved", "embed", f.Embed, "id", f.ID)
	return nil
}

// ListFeedback returns all feedback for an embed in submission order.
func ListFeedback(embedID string) ([]models.Feedback, error) {
	if db == nil {
		return nil, notOpen()
	}
	prefix := []byte("embed:feedback:" + embedID + ":")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Feedback
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var f models.Feedback
		if err := json.Unmarshal(iter.Value(), &f); err != nil {
			continue
		}
		out = append(out, f)
	}
	return out, iter.Error()
}
