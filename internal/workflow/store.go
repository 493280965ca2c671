package workflow

import (
	"fmt"
	"maps"
	"sync"
	"time"
)

// Assistant messages appended by the store itself.
const (
	DetailsRequestedMessage = "Branding is complete! Please fill in the property details to continue."
	DefaultFinalMessage     = "All done! Your content is ready."
	DefaultErrorMessage     = "Something went wrong while generating your content."
)

// Speaker identifies who authored a chat message.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// ChatMessage is one entry of the append-only chat log.
type ChatMessage struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// seededSteps are marked in flight as soon as a run starts.
var seededSteps = []string{StepBranding, StepVisuals, StepImage}

// Store holds the accumulated workflow results, the per-step loading flags
// and the chat log. All mutation is serialized by mu; listeners run after
// the lock is released.
type Store struct {
	mu               sync.Mutex
	state            map[string]any
	flags            map[string]bool
	since            map[string]time.Time
	messages         []ChatMessage
	detailsRequested bool
	listeners        []func()
	now              func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		state: make(map[string]any),
		flags: make(map[string]bool),
		since: make(map[string]time.Time),
		now:   time.Now,
	}
}

// Subscribe registers fn to be called after every change.
func (s *Store) Subscribe(fn func()) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Store) notify() {
	s.mu.Lock()
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// BeginRun clears state and flags, records the user's input and marks the
// first three steps in flight before any server response exists.
func (s *Store) BeginRun(input string) {
	s.mu.Lock()
	now := s.now()
	s.messages = append(s.messages, ChatMessage{Speaker: SpeakerUser, Text: input, At: now})
	s.state = make(map[string]any)
	s.flags = make(map[string]bool)
	s.since = make(map[string]time.Time)
	s.detailsRequested = false
	for _, step := range seededSteps {
		s.flags[step] = true
		s.since[step] = now
	}
	s.mu.Unlock()
	s.notify()
}

// SetLoading marks step in flight (or not).
func (s *Store) SetLoading(step string, loading bool) {
	s.mu.Lock()
	s.setFlagLocked(step, loading)
	s.mu.Unlock()
	s.notify()
}

func (s *Store) setFlagLocked(step string, loading bool) {
	s.flags[step] = loading
	if loading {
		s.since[step] = s.now()
	} else {
		delete(s.since, step)
	}
}

// HideDetails closes the details form after it has been submitted.
func (s *Store) HideDetails() {
	s.setDetails(false)
}

// ShowDetails reopens the details form, e.g. after a failed submission.
func (s *Store) ShowDetails() {
	s.setDetails(true)
}

func (s *Store) setDetails(v bool) {
	s.mu.Lock()
	s.detailsRequested = v
	s.mu.Unlock()
	s.notify()
}

// AppendUser appends a user message to the chat log.
func (s *Store) AppendUser(text string) {
	s.append(SpeakerUser, text)
}

// AppendAssistant appends an assistant message to the chat log.
func (s *Store) AppendAssistant(text string) {
	s.append(SpeakerAssistant, text)
}

func (s *Store) append(speaker Speaker, text string) {
	s.mu.Lock()
	s.messages = append(s.messages, ChatMessage{Speaker: speaker, Text: text, At: s.now()})
	s.mu.Unlock()
	s.notify()
}

// Apply folds one server event into the store. Events outside the closed
// set leave everything untouched and return ErrUnknownEvent.
func (s *Store) Apply(ev Event) error {
	if !ev.Type.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}

	s.mu.Lock()
	switch ev.Type {
	case EventUpdate:
		if ev.Step != "" {
			s.setFlagLocked(ev.Step, false)
		}
		for k, v := range ev.Data {
			s.state[k] = v
		}
	case EventRequestInput:
		s.detailsRequested = true
		s.messages = append(s.messages, ChatMessage{Speaker: SpeakerAssistant, Text: DetailsRequestedMessage, At: s.now()})
	case EventError:
		msg := ev.Message
		if msg == "" {
			msg = DefaultErrorMessage
		}
		s.messages = append(s.messages, ChatMessage{Speaker: SpeakerAssistant, Text: msg, At: s.now()})
		for step := range s.flags {
			s.flags[step] = false
		}
		clear(s.since)
	case EventFinal:
		msg := ev.Message
		if msg == "" {
			msg = DefaultFinalMessage
		}
		s.messages = append(s.messages, ChatMessage{Speaker: SpeakerAssistant, Text: msg, At: s.now()})
		if _, ok := s.flags[StepPublish]; ok {
			s.setFlagLocked(StepPublish, false)
		}
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// Snapshot returns a copy of the store suitable for rendering.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:            maps.Clone(s.state),
		Flags:            maps.Clone(s.flags),
		FlagsSince:       maps.Clone(s.since),
		Messages:         append([]ChatMessage(nil), s.messages...),
		DetailsRequested: s.detailsRequested,
	}
}

// Messages returns a copy of the chat log.
func (s *Store) Messages() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatMessage(nil), s.messages...)
}
