package models

// Message types accepted on the wire.
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeAudio = "audio"
	MessageTypeVideo = "video"
)

type Message struct {
	ID           string `json:"id"`
	Conversation string `json:"conversation"`
	Sender       string `json:"sender,omitempty"`
	SenderEmail  string `json:"sender_email,omitempty"`
	// Type is one of text|image|audio|video; defaults to text
	Type string      `json:"type,omitempty"`
	Body interface{} `json:"body,omitempty"`
	TS   int64       `json:"ts"`
	// Transcript holds an optional speech-to-text rendering for audio messages
	Transcript string `json:"transcript,omitempty"`
	// Edited is set once the first edit lands; History keeps prior bodies
	Edited  bool         `json:"edited,omitempty"`
	History []EditRecord `json:"history,omitempty"`
	// Deleted flag; soft-delete implemented as an appended tombstone version
	Deleted   bool  `json:"deleted,omitempty"`
	DeletedTS int64 `json:"deleted_ts,omitempty"`
}

// EditRecord captures one edit: who, when, why, and the body it replaced.
type EditRecord struct {
	Editor string      `json:"editor"`
	Reason string      `json:"reason,omitempty"`
	Prev   interface{} `json:"prev,omitempty"`
	TS     int64       `json:"ts"`
}

// Redacted returns a copy suitable for rendering: deleted messages keep
// their identity and timestamps but the body is replaced by a placeholder.
func (m Message) Redacted() Message {
	if !m.Deleted {
		return m
	}
	out := m
	out.Body = map[string]interface{}{"placeholder": "message deleted"}
	out.Transcript = ""
	out.History = nil
	return out
}
