// Package workflow defines the content-generation workflow events and the
// client-side store that accumulates their results.
package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType identifies a socket frame.
type EventType string

const (
	// EventUpdate carries a finished step and its partial results.
	EventUpdate EventType = "update"
	// EventRequestInput asks the client for property details.
	EventRequestInput EventType = "request_input"
	// EventError reports a failed run.
	EventError EventType = "error"
	// EventFinal ends a run.
	EventFinal EventType = "final"

	// EventInitialInput is the only client-to-server frame.
	EventInitialInput EventType = "initial_input"
	// EventPing and EventPong are keepalive frames.
	EventPing EventType = "ping"
	EventPong EventType = "pong"
)

// Pipeline step names, in execution order.
const (
	StepBranding = "create_branding"
	StepVisuals  = "create_visuals"
	StepImage    = "generate_image"
	StepBasePost = "create_base_post"
	StepPublish  = "post_to_facebook"
)

// Well-known state slots.
const (
	SlotBrandSuggestions = "brand_suggestions"
	SlotVisualPrompt     = "visual_prompt"
	SlotImagePath        = "image_path"
	SlotBasePost         = "base_post"
	SlotPostResult       = "post_result"
)

// ErrUnknownEvent is returned for frames whose type is outside the closed set.
var ErrUnknownEvent = errors.New("unknown event type")

// Event is a server-to-client workflow frame.
type Event struct {
	Type    EventType      `json:"type"`
	Step    string         `json:"step,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Message string         `json:"message,omitempty"`
}

// ClientFrame is a client-to-server frame.
type ClientFrame struct {
	Type      EventType `json:"type"`
	UserInput string    `json:"user_input,omitempty"`
}

// Update builds an update event for step.
func Update(step string, data map[string]any) Event {
	return Event{Type: EventUpdate, Step: step, Data: data}
}

// RequestInput builds a request_input event.
func RequestInput() Event {
	return Event{Type: EventRequestInput}
}

// Failure builds an error event.
func Failure(message string) Event {
	return Event{Type: EventError, Message: message}
}

// Final builds a final event.
func Final(message string) Event {
	return Event{Type: EventFinal, Message: message}
}

// InitialInput builds the frame that starts a run.
func InitialInput(text string) ClientFrame {
	return ClientFrame{Type: EventInitialInput, UserInput: text}
}

// ParseEvent decodes a server frame.
func ParseEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}

// ParseClientFrame decodes a client frame.
func ParseClientFrame(raw []byte) (ClientFrame, error) {
	var f ClientFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return ClientFrame{}, fmt.Errorf("decode client frame: %w", err)
	}
	return f, nil
}

// Known reports whether t is one of the four server event types.
func (t EventType) Known() bool {
	switch t {
	case EventUpdate, EventRequestInput, EventError, EventFinal:
		return true
	}
	return false
}
