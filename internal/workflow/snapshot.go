package workflow

import (
	"slices"
	"time"
)

// Snapshot is an immutable view of a Store.
type Snapshot struct {
	State            map[string]any
	Flags            map[string]bool
	FlagsSince       map[string]time.Time
	Messages         []ChatMessage
	DetailsRequested bool
}

// Text returns the slot as a string when it holds one.
func (s Snapshot) Text(slot string) (string, bool) {
	v, ok := s.State[slot]
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// BrandSuggestions returns the markdown branding text.
func (s Snapshot) BrandSuggestions() (string, bool) { return s.Text(SlotBrandSuggestions) }

// ImagePath returns the server-relative path of the generated image.
func (s Snapshot) ImagePath() (string, bool) { return s.Text(SlotImagePath) }

// BasePost returns the generated post body.
func (s Snapshot) BasePost() (string, bool) { return s.Text(SlotBasePost) }

// PostResultMessage returns post_result.message.
func (s Snapshot) PostResultMessage() (string, bool) {
	v, ok := s.State[SlotPostResult]
	if !ok {
		return "", false
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	msg, ok := obj["message"].(string)
	return msg, ok
}

// Loading reports whether step is in flight.
func (s Snapshot) Loading(step string) bool {
	return s.Flags[step]
}

// Tracked reports whether step has a loading flag at all.
func (s Snapshot) Tracked(step string) bool {
	_, ok := s.Flags[step]
	return ok
}

// AnyLoading reports whether any step is in flight.
func (s Snapshot) AnyLoading() bool {
	for _, v := range s.Flags {
		if v {
			return true
		}
	}
	return false
}

// Stalled returns the in-flight steps that started more than timeout ago,
// sorted by name. A non-positive timeout disables the check.
func (s Snapshot) Stalled(now time.Time, timeout time.Duration) []string {
	if timeout <= 0 {
		return nil
	}
	var out []string
	for step, loading := range s.Flags {
		if !loading {
			continue
		}
		if started, ok := s.FlagsSince[step]; ok && now.Sub(started) > timeout {
			out = append(out, step)
		}
	}
	slices.Sort(out)
	return out
}
