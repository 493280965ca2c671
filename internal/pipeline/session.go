// Package pipeline serves the workflow socket: it runs the content pipeline
// for each connected client and emits its progress as events.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/estate-studio/internal/domain"
	"github.com/ashureev/estate-studio/internal/metrics"
	"github.com/ashureev/estate-studio/internal/workflow"
	"github.com/coder/websocket"
)

const writeTimeout = 10 * time.Second

// ErrSessionClosed is returned when writing to a session whose socket is gone.
var ErrSessionClosed = errors.New("session closed")

// Delivery is a details submission routed to a waiting run.
type Delivery struct {
	PropertyID string
	Details    domain.PropertyDetails
}

// Conversation is the run's view of the client.
type Conversation interface {
	// Send writes one event to the client.
	Send(ctx context.Context, ev workflow.Event) error
	// RequestDetails emits request_input and blocks until details are
	// delivered or ctx ends.
	RequestDetails(ctx context.Context) (Delivery, error)
}

// Session is one client's socket plus the state of its current run.
type Session struct {
	ClientID string

	conn    *websocket.Conn
	metrics *metrics.Metrics
	writeMu sync.Mutex
	seen    atomic.Int64

	mu        sync.Mutex
	cancelRun context.CancelFunc
	runDone   chan struct{}
	waiting   chan Delivery
	owner     string
}

func newSession(clientID string, conn *websocket.Conn, m *metrics.Metrics) *Session {
	s := &Session{ClientID: clientID, conn: conn, metrics: m}
	s.touch()
	return s
}

func (s *Session) touch() {
	s.seen.Store(time.Now().UnixNano())
}

// LastSeen returns the time of the last frame in either direction.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.seen.Load())
}

// Send writes ev as a JSON text frame.
func (s *Session) Send(ctx context.Context, ev workflow.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := s.write(ctx, data); err != nil {
		return err
	}
	s.touch()
	s.metrics.EventSent(string(ev.Type))
	return nil
}

func (s *Session) write(ctx context.Context, data []byte) error {
	if s.conn == nil {
		return ErrSessionClosed
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// RequestDetails arms the session for a delivery, emits request_input and
// waits.
func (s *Session) RequestDetails(ctx context.Context) (Delivery, error) {
	ch := make(chan Delivery, 1)
	s.mu.Lock()
	s.waiting = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.waiting == ch {
			s.waiting = nil
		}
		s.mu.Unlock()
	}()

	if err := s.Send(ctx, workflow.RequestInput()); err != nil {
		return Delivery{}, err
	}

	select {
	case d := <-ch:
		return d, nil
	case <-ctx.Done():
		return Delivery{}, ctx.Err()
	}
}

// Deliver hands details to the run if it is waiting for them. The first
// user to deliver owns the session; deliveries from anyone else are refused.
func (s *Session) Deliver(ownerID string, d Delivery) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.waiting == nil {
		return false
	}
	if s.owner != "" && s.owner != ownerID {
		return false
	}
	s.owner = ownerID
	s.waiting <- d
	s.waiting = nil
	return true
}

// Waiting reports whether the current run is blocked on details.
func (s *Session) Waiting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiting != nil
}

// startRun cancels any run in progress, waits for it to unwind and starts
// fn in its own goroutine.
func (s *Session) startRun(parent context.Context, fn func(ctx context.Context)) {
	s.stopRun()

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	s.mu.Lock()
	s.cancelRun = cancel
	s.runDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		fn(ctx)
	}()
}

// stopRun cancels the current run, if any, and waits for it to return.
func (s *Session) stopRun() {
	s.mu.Lock()
	cancel, done := s.cancelRun, s.runDone
	s.cancelRun, s.runDone = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Close stops the run and closes the socket with reason.
func (s *Session) Close(reason string) {
	s.stopRun()
	if s.conn != nil {
		_ = s.conn.Close(websocket.StatusNormalClosure, reason)
	}
}
