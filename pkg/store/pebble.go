package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"assistdb/pkg/logger"
	"assistdb/pkg/models"
	"assistdb/pkg/utils"
)

var db *pebble.DB

// seq reduces key collisions when multiple writes share the same
// nanosecond timestamp.
var seq uint64

// convMu serializes conversation find-or-create and the read-modify-write
// of conversation counters so concurrent sends from both participants
// cannot mint duplicate conversations or lose unread increments.
var convMu sync.Mutex

// Open opens (or creates) a Pebble database at the given path and keeps
// a global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

func notOpen() error {
	return fmt.Errorf("pebble not opened; call store.Open first")
}

// ordinal returns a sortable "<unix_nano_padded>-<seq>" suffix.
func ordinal(ts int64) string {
	s := atomic.AddUint64(&seq, 1)
	return fmt.Sprintf("%020d-%06d", ts, s)
}

// msgLocator records where a message's canonical entry lives so edits and
// deletes can overwrite it in place.
type msgLocator struct {
	Conversation string `json:"conversation"`
	Key          string `json:"key"`
}

// --- Conversations ---

// SaveConversation stores conversation metadata under its reserved key.
func SaveConversation(c models.Conversation) error {
	if db == nil {
		return notOpen()
	}
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	key := []byte("conv:" + c.ID + ":meta")
	if err := db.Set(key, b, pebble.Sync); err != nil {
		logger.Error("save_conversation_failed", "conversation", c.ID, "error", err)
		return err
	}
	return nil
}

// GetConversation returns the stored conversation for a given ID.
func GetConversation(id string) (models.Conversation, error) {
	var c models.Conversation
	if db == nil {
		return c, notOpen()
	}
	v, closer, err := db.Get([]byte("conv:" + id + ":meta"))
	if err != nil {
		return c, err
	}
	if closer != nil {
		defer closer.Close()
	}
	if err := json.Unmarshal(v, &c); err != nil {
		return c, fmt.Errorf("invalid stored conversation: %w", err)
	}
	return c, nil
}

// ListConversations returns all conversations, optionally filtered to ones
// containing the given participant id.
func ListConversations(participant string) ([]models.Conversation, error) {
	if db == nil {
		return nil, notOpen()
	}
	prefix := []byte("conv:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Conversation
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if !bytes.HasSuffix(iter.Key(), []byte(":meta")) {
			continue
		}
		var c models.Conversation
		if err := json.Unmarshal(iter.Value(), &c); err != nil {
			continue
		}
		if participant != "" && !c.HasParticipant(participant) {
			continue
		}
		out = append(out, c)
	}
	return out, iter.Error()
}

// FindOrCreateConversation returns the conversation between the two
// identities, creating it when absent. Lookup goes through a deterministic
// sorted-pair index and the whole operation holds convMu, so concurrent
// calls from either side return the same conversation.
func FindOrCreateConversation(a, b models.Participant, convType string) (models.Conversation, bool, error) {
	var c models.Conversation
	if db == nil {
		return c, false, notOpen()
	}
	convMu.Lock()
	defer convMu.Unlock()

	pairKey := []byte("pair:" + utils.PairKey(a.ID, b.ID))
	if v, closer, err := db.Get(pairKey); err == nil {
		id := string(v)
		closer.Close()
		existing, gerr := GetConversation(id)
		if gerr == nil {
			return existing, false, nil
		}
		// stale index entry; fall through and recreate
		logger.Warn("pair_index_stale", "pair", string(pairKey), "conversation", id)
	}

	now := time.Now().UTC().UnixNano()
	if convType == "" {
		convType = models.ConversationTypeUser
	}
	c = models.Conversation{
		ID:           utils.GenConversationID(),
		Participants: []models.Participant{a, b},
		Type:         convType,
		Status:       models.ConversationStatusActive,
		Unread:       map[string]int{},
		CreatedTS:    now,
		UpdatedTS:    now,
	}
	if err := SaveConversation(c); err != nil {
		return c, false, err
	}
	if err := db.Set(pairKey, []byte(c.ID), pebble.Sync); err != nil {
		logger.Error("pair_index_write_failed", "conversation", c.ID, "error", err)
		return c, false, err
	}
	logger.Info("conversation_created", "conversation", c.ID, "a", a.ID, "b", b.ID)
	return c, true, nil
}

// ArchiveConversation flips the conversation status to archived.
func ArchiveConversation(id string) error {
	convMu.Lock()
	defer convMu.Unlock()
	c, err := GetConversation(id)
	if err != nil {
		return err
	}
	c.Status = models.ConversationStatusArchived
	c.UpdatedTS = time.Now().UTC().UnixNano()
	return SaveConversation(c)
}

// MarkConversationRead resets the unread counter for one participant.
func MarkConversationRead(id, participant string) error {
	convMu.Lock()
	defer convMu.Unlock()
	c, err := GetConversation(id)
	if err != nil {
		return err
	}
	if !c.HasParticipant(participant) {
		return fmt.Errorf("not a participant of conversation %s", id)
	}
	if c.Unread == nil {
		c.Unread = map[string]int{}
	}
	c.Unread[participant] = 0
	return SaveConversation(c)
}

// --- Messages ---

// AppendMessage stores a new message under its conversation, indexes it by
// id, records the first version, and bumps the conversation preview and
// unread counters for every participant except the sender.
func AppendMessage(m models.Message) error {
	if db == nil {
		return notOpen()
	}
	start := time.Now()
	convMu.Lock()
	defer convMu.Unlock()

	c, err := GetConversation(m.Conversation)
	if err != nil {
		return fmt.Errorf("conversation %s not found: %w", m.Conversation, err)
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	ord := ordinal(m.TS)
	key := "conv:" + m.Conversation + ":msg:" + ord
	if err := db.Set([]byte(key), data, pebble.Sync); err != nil {
		logger.Error("save_message_failed", "conversation", m.Conversation, "key", key, "error", err)
		messageWriteErrors.Inc()
		return err
	}

	loc, _ := json.Marshal(msgLocator{Conversation: m.Conversation, Key: key})
	if err := db.Set([]byte("msgidx:"+m.ID), loc, pebble.Sync); err != nil {
		logger.Error("save_message_index_failed", "msg_id", m.ID, "error", err)
		return err
	}
	if err := db.Set([]byte("version:msg:"+m.ID+":"+ord), data, pebble.Sync); err != nil {
		logger.Error("save_message_version_failed", "msg_id", m.ID, "error", err)
		return err
	}

	// bump conversation preview + unread counts
	c.LastMessage = previewOf(m)
	c.LastMessageTS = m.TS
	c.UpdatedTS = m.TS
	if c.Unread == nil {
		c.Unread = map[string]int{}
	}
	for _, p := range c.Participants {
		if p.ID != m.Sender {
			c.Unread[p.ID]++
		}
	}
	if err := SaveConversation(c); err != nil {
		return err
	}

	messagesSaved.Inc()
	messageSaveSeconds.Observe(time.Since(start).Seconds())
	logger.Info("message_saved", "conversation", m.Conversation, "msg_id", m.ID)
	return nil
}

func previewOf(m models.Message) string {
	if m.Deleted {
		return "message deleted"
	}
	if s, ok := m.Body.(string); ok {
		return utils.Preview(s, 120)
	}
	if mb, ok := m.Body.(map[string]interface{}); ok {
		if t, ok := mb["text"].(string); ok {
			return utils.Preview(t, 120)
		}
	}
	return "[" + firstNonEmpty(m.Type, models.MessageTypeText) + "]"
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// writeMessageVersion overwrites the message's canonical entry in place and
// appends a version record. Callers must hold convMu.
func writeMessageVersion(loc msgLocator, m models.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := db.Set([]byte(loc.Key), data, pebble.Sync); err != nil {
		messageWriteErrors.Inc()
		return err
	}
	ord := ordinal(time.Now().UTC().UnixNano())
	return db.Set([]byte("version:msg:"+m.ID+":"+ord), data, pebble.Sync)
}

func getLocator(msgID string) (msgLocator, error) {
	var loc msgLocator
	v, closer, err := db.Get([]byte("msgidx:" + msgID))
	if err != nil {
		return loc, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &loc); err != nil {
		return loc, fmt.Errorf("invalid message locator: %w", err)
	}
	return loc, nil
}

// GetMessage returns the latest stored version of a message.
func GetMessage(msgID string) (models.Message, error) {
	var m models.Message
	if db == nil {
		return m, notOpen()
	}
	loc, err := getLocator(msgID)
	if err != nil {
		return m, err
	}
	v, closer, err := db.Get([]byte(loc.Key))
	if err != nil {
		return m, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &m); err != nil {
		return m, fmt.Errorf("invalid stored message: %w", err)
	}
	return m, nil
}

// ErrNotSender is returned when an edit or delete names an actor other than
// the message's original sender.
var ErrNotSender = fmt.Errorf("actor is not the message sender")

// ErrMessageDeleted is returned when editing an already-deleted message.
var ErrMessageDeleted = fmt.Errorf("message is deleted")

// EditMessage replaces the message body, recording the prior body in the
// edit history. Only the original sender may edit, and a deleted message
// stays immutable.
func EditMessage(msgID, editor string, newBody interface{}, reason string) (models.Message, error) {
	var m models.Message
	if db == nil {
		return m, notOpen()
	}
	convMu.Lock()
	defer convMu.Unlock()
	loc, err := getLocator(msgID)
	if err != nil {
		return m, err
	}
	m, err = getByLocator(loc)
	if err != nil {
		return m, err
	}
	if m.Sender != editor {
		return m, ErrNotSender
	}
	if m.Deleted {
		return m, ErrMessageDeleted
	}
	now := time.Now().UTC().UnixNano()
	m.History = append(m.History, models.EditRecord{Editor: editor, Reason: reason, Prev: m.Body, TS: now})
	m.Body = newBody
	m.Edited = true
	if err := writeMessageVersion(loc, m); err != nil {
		logger.Error("edit_message_failed", "msg_id", msgID, "error", err)
		return m, err
	}
	logger.Info("message_edited", "msg_id", msgID, "editor", editor)
	return m, nil
}

// SoftDeleteMessage marks the message deleted. The record persists; list
// and get paths render a placeholder instead of the body.
func SoftDeleteMessage(msgID, actor, reason string) (models.Message, error) {
	var m models.Message
	if db == nil {
		return m, notOpen()
	}
	convMu.Lock()
	defer convMu.Unlock()
	loc, err := getLocator(msgID)
	if err != nil {
		return m, err
	}
	m, err = getByLocator(loc)
	if err != nil {
		return m, err
	}
	if m.Sender != actor {
		return m, ErrNotSender
	}
	if m.Deleted {
		return m, nil
	}
	now := time.Now().UTC().UnixNano()
	m.Deleted = true
	m.DeletedTS = now
	if reason != "" {
		m.History = append(m.History, models.EditRecord{Editor: actor, Reason: reason, TS: now})
	}
	if err := writeMessageVersion(loc, m); err != nil {
		logger.Error("soft_delete_message_failed", "msg_id", msgID, "error", err)
		return m, err
	}
	logger.AuditEvent("message_soft_deleted", "msg_id", msgID, "actor", actor)
	return m, nil
}

func getByLocator(loc msgLocator) (models.Message, error) {
	var m models.Message
	v, closer, err := db.Get([]byte(loc.Key))
	if err != nil {
		return m, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &m); err != nil {
		return m, fmt.Errorf("invalid stored message: %w", err)
	}
	return m, nil
}

// ListMessages returns the latest version of every message in a
// conversation, ascending by timestamp. Deleted messages come back
// redacted, never omitted.
func ListMessages(convID string, limit int) ([]models.Message, error) {
	if db == nil {
		return nil, notOpen()
	}
	prefix := []byte("conv:" + convID + ":msg:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			logger.Error("list_messages_invalid_json", "key", string(iter.Key()), "error", err)
			continue
		}
		out = append(out, m.Redacted())
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// ListMessageVersions returns every stored version for a message ID in
// chronological order. Versions are an audit trail and are never purged.
func ListMessageVersions(msgID string) ([]models.Message, error) {
	if db == nil {
		return nil, notOpen()
	}
	prefix := []byte("version:msg:" + msgID + ":")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("invalid stored message version: %w", err)
		}
		out = append(out, m)
	}
	return out, iter.Error()
}

// ListKeys returns all keys (as strings) that start with the given prefix.
// If prefix is empty it returns all keys in the DB.
func ListKeys(prefix string) ([]string, error) {
	if db == nil {
		return nil, notOpen()
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	pfx := []byte(prefix)
	if prefix == "" {
		for iter.First(); iter.Valid(); iter.Next() {
			out = append(out, string(append([]byte(nil), iter.Key()...)))
		}
		return out, iter.Error()
	}
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		out = append(out, string(append([]byte(nil), iter.Key()...)))
	}
	return out, iter.Error()
}

// GetKey returns the raw value for the given key.
func GetKey(key string) (string, error) {
	if db == nil {
		return "", notOpen()
	}
	v, closer, err := db.Get([]byte(key))
	if err != nil {
		return "", err
	}
	defer closer.Close()
	return string(v), nil
}
