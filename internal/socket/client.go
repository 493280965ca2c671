// Package socket maintains the workflow WebSocket connection for one client
// session and feeds its events into a workflow.Store.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/estate-studio/internal/workflow"
	"github.com/coder/websocket"
)

// DefaultReconnectDelay is how long the client waits after a drop before its
// single reconnect attempt.
const DefaultReconnectDelay = 3 * time.Second

const (
	defaultReadLimit = 1 << 20
	dialTimeout      = 10 * time.Second
)

// Chat messages appended by the client.
const (
	GreetingMessage       = "Hi! Tell me about your real-estate business idea and I'll create branding, visuals and a launch post for it."
	ReconnectedMessage    = "Reconnected to the server."
	ConnectionLostMessage = "Connection lost. Trying to reconnect..."
	NotReadyMessage       = "Still connecting to the server. Please wait a moment and try again."
	SendFailedMessage     = "Could not send your request to the server. Please try again."
)

var (
	// ErrNotOpen is returned when input is sent while the socket is not open.
	ErrNotOpen = errors.New("socket is not open")
	// ErrEmptyInput is returned for blank user input.
	ErrEmptyInput = errors.New("input is empty")
)

// ReadyState mirrors the browser WebSocket ready states the client tracks.
type ReadyState int32

const (
	StateConnecting ReadyState = iota
	StateOpen
	StateClosed
)

func (s ReadyState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Options configures a Client.
type Options struct {
	// URL is the full ws(s) endpoint, see ChatURL.
	URL            string
	ReconnectDelay time.Duration
	ReadLimit      int64
	Logger         *slog.Logger
}

// Client owns exactly one live connection at a time.
type Client struct {
	url            string
	reconnectDelay time.Duration
	readLimit      int64
	store          *workflow.Store
	logger         *slog.Logger

	mu     sync.Mutex
	state  ReadyState
	conn   *websocket.Conn
	timer  *time.Timer
	opened bool
	done   bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a client that dispatches into store. Call Start to connect.
func New(store *workflow.Store, opts Options) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = defaultReadLimit
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		url:            opts.URL,
		reconnectDelay: opts.ReconnectDelay,
		readLimit:      opts.ReadLimit,
		store:          store,
		logger:         opts.Logger,
		state:          StateConnecting,
	}
}

// ChatURL builds ws(s)://host/chat/<sessionID> from an http(s) or ws(s) base.
func ChatURL(base, sessionID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/chat/" + url.PathEscape(sessionID)
	u.RawQuery = ""
	return u.String(), nil
}

// Start opens the connection. The client stays alive until Close.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.ctx != nil {
		c.mu.Unlock()
		return
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()
	c.connect()
}

// ReadyState returns the current connection state.
func (c *Client) ReadyState() ReadyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) connect() {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	ctx := c.ctx
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()

		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		conn, _, err := websocket.Dial(dialCtx, c.url, nil)
		cancel()
		if err != nil {
			c.logger.Warn("Workflow socket dial failed", "url", c.url, "error", err)
			c.handleClose(nil)
			return
		}
		conn.SetReadLimit(c.readLimit)

		c.mu.Lock()
		if c.done {
			c.mu.Unlock()
			_ = conn.CloseNow()
			return
		}
		c.conn = conn
		c.state = StateOpen
		first := !c.opened
		c.opened = true
		c.mu.Unlock()

		c.logger.Info("Workflow socket connected", "url", c.url)
		if first {
			c.store.AppendAssistant(GreetingMessage)
		} else {
			c.store.AppendAssistant(ReconnectedMessage)
		}
		c.readLoop(ctx, conn)
	}()
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.logger.Debug("Workflow socket closed by server", "status", websocket.CloseStatus(err))
			} else if ctx.Err() == nil {
				c.logger.Warn("Workflow socket read error", "error", err)
			}
			c.handleClose(conn)
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	ev, err := workflow.ParseEvent(data)
	if err != nil {
		c.logger.Warn("Dropping malformed workflow frame", "error", err, "size", len(data))
		return
	}
	if err := c.store.Apply(ev); err != nil {
		c.logger.Warn("Ignoring workflow frame", "type", ev.Type, "error", err)
	}
}

// handleClose runs once per dropped connection or failed dial and schedules
// the single delayed reconnect attempt.
func (c *Client) handleClose(conn *websocket.Conn) {
	c.mu.Lock()
	if c.done {
		c.state = StateClosed
		c.mu.Unlock()
		return
	}
	if conn != nil && c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateClosed
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.reconnectDelay, c.reconnect)
	c.mu.Unlock()

	c.store.AppendAssistant(ConnectionLostMessage)
}

func (c *Client) reconnect() {
	c.mu.Lock()
	c.timer = nil
	if c.done || c.state != StateClosed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.logger.Info("Reconnecting workflow socket", "url", c.url)
	c.connect()
}

// SendInitialInput starts a new workflow run. It is rejected locally,
// without any network I/O, unless the socket is open.
func (c *Client) SendInitialInput(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}

	c.mu.Lock()
	conn := c.conn
	open := c.state == StateOpen && conn != nil
	c.mu.Unlock()

	if !open {
		c.store.AppendAssistant(NotReadyMessage)
		return ErrNotOpen
	}

	data, err := json.Marshal(workflow.InitialInput(text))
	if err != nil {
		return fmt.Errorf("encode initial input: %w", err)
	}

	// The run starts before the write so early updates are not reset.
	c.store.BeginRun(text)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		_ = c.store.Apply(workflow.Failure(SendFailedMessage))
		return fmt.Errorf("send initial input: %w", err)
	}
	return nil
}

// Close closes the socket and cancels any pending reconnect.
func (c *Client) Close() {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = StateClosed
	cancel := c.cancel
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Close(websocket.StatusNormalClosure, "client closed"); err != nil {
			c.logger.Debug("Failed to close workflow socket", "error", err)
		}
	}
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}
