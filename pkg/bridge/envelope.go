// Package bridge implements the widget messaging channel: signed session
// tokens and a WebSocket endpoint speaking a closed, typed vocabulary.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType tags one frame on the widget channel. The vocabulary is
// closed: frames carrying any other tag are rejected, not ignored.
type MessageType string

const (
	TypeWidgetReady    MessageType = "WIDGET_READY"
	TypeWidgetError    MessageType = "WIDGET_ERROR"
	TypeWidgetClose    MessageType = "WIDGET_CLOSE"
	TypeWidgetResize   MessageType = "WIDGET_RESIZE"
	TypeFeedbackReady  MessageType = "FEEDBACK_WIDGET_READY"
	TypeFeedbackSubmit MessageType = "FEEDBACK_SUBMITTED"
	TypeFeedbackClosed MessageType = "FEEDBACK_CLOSED"
	TypeFeedbackError  MessageType = "FEEDBACK_ERROR"
	TypeStepChanged    MessageType = "FEEDBACK_STEP_CHANGED"
	TypeRatingSelected MessageType = "FEEDBACK_RATING_SELECTED"
)

// ErrUnknownType marks a frame whose tag is outside the vocabulary.
var ErrUnknownType = errors.New("unknown message type")

// Envelope is one frame on the widget channel.
type Envelope struct {
	Type    MessageType     `json:"type"`
	TS      int64           `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ResizePayload carries requested widget dimensions.
type ResizePayload struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FeedbackPayload is one feedback submission from the widget.
type FeedbackPayload struct {
	Rating int    `json:"rating,omitempty"`
	Text   string `json:"text,omitempty"`
	Step   string `json:"step,omitempty"`
}

// StepPayload reports the active feedback step.
type StepPayload struct {
	Step string `json:"step"`
}

// RatingPayload reports a rating selection before submission.
type RatingPayload struct {
	Rating int `json:"rating"`
}

// ErrorPayload carries an error frame in either direction.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Decode returns the typed payload for the envelope's tag. The switch is
// exhaustive over the vocabulary; anything else fails with ErrUnknownType.
func (e Envelope) Decode() (any, error) {
	switch e.Type {
	case TypeWidgetReady, TypeFeedbackReady, TypeWidgetClose, TypeFeedbackClosed:
		return nil, nil
	case TypeWidgetResize:
		var p ResizePayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid resize payload: %w", err)
		}
		if p.Width <= 0 || p.Height <= 0 {
			return nil, fmt.Errorf("invalid resize payload: dimensions must be positive")
		}
		return p, nil
	case TypeFeedbackSubmit:
		var p FeedbackPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid feedback payload: %w", err)
		}
		if p.Text == "" && p.Rating == 0 {
			return nil, fmt.Errorf("invalid feedback payload: text or rating required")
		}
		if p.Rating < 0 || p.Rating > 5 {
			return nil, fmt.Errorf("invalid feedback payload: rating out of range")
		}
		return p, nil
	case TypeStepChanged:
		var p StepPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid step payload: %w", err)
		}
		if p.Step == "" {
			return nil, fmt.Errorf("invalid step payload: step required")
		}
		return p, nil
	case TypeRatingSelected:
		var p RatingPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid rating payload: %w", err)
		}
		if p.Rating < 1 || p.Rating > 5 {
			return nil, fmt.Errorf("invalid rating payload: rating out of range")
		}
		return p, nil
	case TypeWidgetError, TypeFeedbackError:
		var p ErrorPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid error payload: %w", err)
		}
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, string(e.Type))
}
