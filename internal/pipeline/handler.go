package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/estate-studio/internal/metrics"
	"github.com/ashureev/estate-studio/internal/middleware"
	"github.com/ashureev/estate-studio/internal/session"
	"github.com/ashureev/estate-studio/internal/workflow"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

const readLimit = 64 << 10

// Handler upgrades GET /chat/{client_id} and runs the pipeline for each
// initial_input frame.
type Handler struct {
	registry       *Registry
	runner         *Runner
	metrics        *metrics.Metrics
	allowedOrigins []string
	isDev          bool
}

// NewHandler creates the workflow socket handler.
func NewHandler(registry *Registry, runner *Runner, m *metrics.Metrics, allowedOrigins []string, isDev bool) *Handler {
	return &Handler{
		registry:       registry,
		runner:         runner,
		metrics:        m,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
	}
}

// RegisterRoutes mounts the socket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/{client_id}", h.ServeHTTP)
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "client_id")
	if !session.Valid(clientID) {
		writeDetail(w, http.StatusBadRequest, "invalid client id")
		return
	}
	if !h.checkOrigin(r) {
		writeDetail(w, http.StatusForbidden, "origin not allowed")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "client_id", clientID)
		return
	}
	ws.SetReadLimit(readLimit)

	s := newSession(clientID, ws, h.metrics)
	h.registry.Register(s)
	h.metrics.SessionOpened()
	defer func() {
		h.registry.Unregister(s)
		h.metrics.SessionClosed()
		s.Close("session ended")
	}()

	h.readLoop(r.Context(), s, ws)
	slog.Info("Workflow session ended", "client_id", clientID)
}

func (h *Handler) readLoop(ctx context.Context, s *Session, ws *websocket.Conn) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "client_id", s.ClientID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "client_id", s.ClientID)
			}
			return
		}
		s.touch()

		frame, err := workflow.ParseClientFrame(data)
		if err != nil {
			slog.Warn("Dropping malformed client frame", "error", err, "client_id", s.ClientID)
			continue
		}

		switch frame.Type {
		case workflow.EventInitialInput:
			input := strings.TrimSpace(frame.UserInput)
			if input == "" {
				slog.Warn("Ignoring empty initial_input", "client_id", s.ClientID)
				continue
			}
			slog.Info("Workflow run requested", "client_id", s.ClientID)
			s.startRun(ctx, func(runCtx context.Context) {
				h.runner.Run(runCtx, s, s.ClientID, input)
			})
		case workflow.EventPing:
			if err := s.Send(ctx, workflow.Event{Type: workflow.EventPong}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		default:
			slog.Warn("Ignoring unknown client frame", "type", frame.Type, "client_id", s.ClientID)
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if ok, _ := middleware.MatchOrigin(h.allowedOrigins, origin); ok {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin)
	return false
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
