package models

const (
	TourStatusDraft     = "draft"
	TourStatusPublished = "published"
)

// Tour is an ordered list of UI-highlight steps built by the browser
// extension and synced here. Step order is preserved exactly as submitted.
type Tour struct {
	ID        string     `json:"id"`
	Owner     string     `json:"owner"`
	Name      string     `json:"name"`
	Status    string     `json:"status,omitempty"`
	Steps     []TourStep `json:"steps"`
	CreatedTS int64      `json:"created_ts,omitempty"`
	UpdatedTS int64      `json:"updated_ts,omitempty"`
}

type TourStep struct {
	// Selector is the CSS selector of the highlighted element
	Selector    string `json:"selector"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	// Position of the tooltip relative to the element
	Position string `json:"position,omitempty"` // top|bottom|left|right|auto
}
