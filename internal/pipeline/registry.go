package pipeline

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/estate-studio/internal/domain"
)

// Registry tracks the live session for each client ID.
type Registry struct {
	mu     sync.RWMutex
	active map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]*Session)}
}

// Get returns the live session for clientID, or nil.
func (r *Registry) Get(clientID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active[clientID]
}

// Register makes s the session for its client ID. A previous session for
// the same ID is closed.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	existing := r.active[s.ClientID]
	r.active[s.ClientID] = s
	r.mu.Unlock()

	if existing != nil && existing != s {
		existing.Close("session replaced")
	}
	slog.Info("Workflow session registered", "client_id", s.ClientID)
}

// Unregister removes s if it is still the registered session.
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.active[s.ClientID]; ok && current == s {
		delete(r.active, s.ClientID)
		slog.Info("Workflow session unregistered", "client_id", s.ClientID)
	}
}

// Deliver routes details submitted by ownerID to clientID's waiting run.
// It returns false when no run is waiting or the session belongs to another
// user.
func (r *Registry) Deliver(ownerID, clientID, propertyID string, details domain.PropertyDetails) bool {
	s := r.Get(clientID)
	if s == nil {
		return false
	}
	if !s.Deliver(ownerID, Delivery{PropertyID: propertyID, Details: details}) {
		slog.Debug("Details not delivered", "client_id", clientID, "user_id", ownerID)
		return false
	}
	return true
}

// Idle returns sessions whose client has been silent for longer than ttl.
func (r *Registry) Idle(ttl time.Duration, now time.Time) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var idle []*Session
	for _, s := range r.active {
		if now.Sub(s.LastSeen()) > ttl {
			idle = append(idle, s)
		}
	}
	return idle
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// CloseAll closes every session, e.g. on shutdown.
func (r *Registry) CloseAll(reason string) {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.active))
	for id, s := range r.active {
		sessions = append(sessions, s)
		delete(r.active, id)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close(reason)
	}
}
