package models

// Embed describes one embeddable widget instance owned by a dashboard user.
// Visitors never mutate it; the server uses it to gate widget bootstrap.
type Embed struct {
	ID         string `json:"id"`
	Owner      string `json:"owner"`
	OwnerEmail string `json:"owner_email,omitempty"`
	Name       string `json:"name,omitempty"`
	// Origins is the allow-list of page origins that may open this widget
	Origins   []string      `json:"origins"`
	Style     EmbedStyle    `json:"style,omitempty"`
	Behavior  EmbedBehavior `json:"behavior,omitempty"`
	Active    bool          `json:"active"`
	CreatedTS int64         `json:"created_ts,omitempty"`
	UpdatedTS int64         `json:"updated_ts,omitempty"`
}

type EmbedStyle struct {
	PrimaryColor string `json:"primary_color,omitempty"`
	Position     string `json:"position,omitempty"` // bottom-right|bottom-left|top-right|top-left
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
}

type EmbedBehavior struct {
	AutoOpen       bool   `json:"auto_open,omitempty"`
	WelcomeMessage string `json:"welcome_message,omitempty"`
}

// OriginAllowed reports whether origin is on the embed allow-list. An empty
// allow-list admits nothing; the check fails closed.
func (e Embed) OriginAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	for _, o := range e.Origins {
		if o == origin {
			return true
		}
	}
	return false
}

// Feedback is one widget feedback submission recorded under an embed.
type Feedback struct {
	ID      string `json:"id"`
	Embed   string `json:"embed"`
	Session string `json:"session,omitempty"`
	Visitor string `json:"visitor,omitempty"`
	Rating  int    `json:"rating,omitempty"`
	Text    string `json:"text,omitempty"`
	Step    string `json:"step,omitempty"`
	TS      int64  `json:"ts"`
}
