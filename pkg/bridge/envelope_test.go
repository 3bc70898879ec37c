package bridge

import (
	"encoding/json"
	"errors"
	"testing"
)

// TestDecodeKnownTypes verifies each tag in the vocabulary decodes to its
// typed payload.
func TestDecodeKnownTypes(t *testing.T) {
	cases := []struct {
		name  string
		env   Envelope
		check func(any) bool
	}{
		{"ready", Envelope{Type: TypeWidgetReady}, func(p any) bool { return p == nil }},
		{"feedback ready", Envelope{Type: TypeFeedbackReady}, func(p any) bool { return p == nil }},
		{"close", Envelope{Type: TypeWidgetClose}, func(p any) bool { return p == nil }},
		{"feedback closed", Envelope{Type: TypeFeedbackClosed}, func(p any) bool { return p == nil }},
		{
			"resize",
			Envelope{Type: TypeWidgetResize, Payload: json.RawMessage(`{"width":320,"height":480}`)},
			func(p any) bool { r, ok := p.(ResizePayload); return ok && r.Width == 320 && r.Height == 480 },
		},
		{
			"submit",
			Envelope{Type: TypeFeedbackSubmit, Payload: json.RawMessage(`{"rating":4,"text":"nice"}`)},
			func(p any) bool { f, ok := p.(FeedbackPayload); return ok && f.Rating == 4 && f.Text == "nice" },
		},
		{
			"step",
			Envelope{Type: TypeStepChanged, Payload: json.RawMessage(`{"step":"rating"}`)},
			func(p any) bool { s, ok := p.(StepPayload); return ok && s.Step == "rating" },
		},
		{
			"rating",
			Envelope{Type: TypeRatingSelected, Payload: json.RawMessage(`{"rating":5}`)},
			func(p any) bool { r, ok := p.(RatingPayload); return ok && r.Rating == 5 },
		},
		{
			"error",
			Envelope{Type: TypeWidgetError, Payload: json.RawMessage(`{"code":"x","message":"y"}`)},
			func(p any) bool { e, ok := p.(ErrorPayload); return ok && e.Code == "x" },
		},
	}
	for _, c := range cases {
		p, err := c.env.Decode()
		if err != nil {
			t.Fatalf("%s: Decode: %v", c.name, err)
		}
		if !c.check(p) {
			t.Fatalf("%s: unexpected payload %#v", c.name, p)
		}
	}
}

// TestDecodeUnknownTypeRejected verifies tags outside the vocabulary fail
// with ErrUnknownType rather than being silently ignored.
func TestDecodeUnknownTypeRejected(t *testing.T) {
	for _, tag := range []string{"WIDGET_EXPLODE", "", "widget_ready", "FEEDBACK"} {
		env := Envelope{Type: MessageType(tag), Payload: json.RawMessage(`{}`)}
		if _, err := env.Decode(); !errors.Is(err, ErrUnknownType) {
			t.Fatalf("tag %q: expected ErrUnknownType, got %v", tag, err)
		}
	}
}

// TestDecodeInvalidPayloads verifies per-type payload validation.
func TestDecodeInvalidPayloads(t *testing.T) {
	cases := []Envelope{
		{Type: TypeWidgetResize, Payload: json.RawMessage(`{"width":0,"height":100}`)},
		{Type: TypeWidgetResize, Payload: json.RawMessage(`{"width":-5,"height":100}`)},
		{Type: TypeWidgetResize, Payload: json.RawMessage(`not json`)},
		{Type: TypeFeedbackSubmit, Payload: json.RawMessage(`{}`)},
		{Type: TypeFeedbackSubmit, Payload: json.RawMessage(`{"rating":9}`)},
		{Type: TypeStepChanged, Payload: json.RawMessage(`{}`)},
		{Type: TypeRatingSelected, Payload: json.RawMessage(`{"rating":0}`)},
		{Type: TypeRatingSelected, Payload: json.RawMessage(`{"rating":6}`)},
	}
	for i, env := range cases {
		if _, err := env.Decode(); err == nil {
			t.Fatalf("case %d (%s): expected error, got none", i, env.Type)
		} else if errors.Is(err, ErrUnknownType) {
			t.Fatalf("case %d (%s): payload error misreported as unknown type", i, env.Type)
		}
	}
}
