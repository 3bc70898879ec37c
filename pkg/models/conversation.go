package models

const (
	ConversationStatusActive   = "active"
	ConversationStatusArchived = "archived"
)

const (
	ConversationTypeUser    = "user"
	ConversationTypeSystem  = "system"
	ConversationTypeSupport = "support"
	ConversationTypeEmbed   = "embed"
)

// Participant is one identity in a conversation. IDs are opaque; email is
// carried for display only.
type Participant struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Conversation groups messages between two or more identities. Conversations
// are never hard-deleted; archiving flips Status.
type Conversation struct {
	ID           string        `json:"id"`
	Participants []Participant `json:"participants"`
	Type         string        `json:"type,omitempty"`
	Status       string        `json:"status,omitempty"`
	// LastMessage is a short preview of the newest message body
	LastMessage   string `json:"last_message,omitempty"`
	LastMessageTS int64  `json:"last_message_ts,omitempty"`
	// Unread maps participant id -> count of messages since their last read
	Unread    map[string]int `json:"unread,omitempty"`
	CreatedTS int64          `json:"created_ts,omitempty"`
	UpdatedTS int64          `json:"updated_ts,omitempty"`
	// EmbedID/VisitorID link an embedded conversation to its widget config
	EmbedID   string `json:"embed_id,omitempty"`
	VisitorID string `json:"visitor_id,omitempty"`
}

// HasParticipant reports whether id is a member of the conversation.
func (c Conversation) HasParticipant(id string) bool {
	for _, p := range c.Participants {
		if p.ID == id {
			return true
		}
	}
	return false
}
