package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/estate-studio/internal/domain"
	"github.com/ashureev/estate-studio/internal/session"
	"github.com/ashureev/estate-studio/internal/workflow"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, reg *Registry, posts *fakePosts) *httptest.Server {
	t.Helper()
	runner := NewRunner(&fakeGenerator{}, posts, 5*time.Second, nil, nil)
	h := NewHandler(reg, runner, nil, nil, true)

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, clientID string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/" + clientID
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) workflow.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	ev, err := workflow.ParseEvent(data)
	require.NoError(t, err)
	return ev
}

func writeFrame(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(raw)))
}

func TestHandlerRunsFullWorkflow(t *testing.T) {
	reg := NewRegistry()
	posts := &fakePosts{}
	srv := newTestServer(t, reg, posts)
	clientID := session.NewID()
	conn := dial(t, srv, clientID)

	writeFrame(t, conn, `{"type":"initial_input","user_input":"2BHK in Kharadi"}`)

	for _, step := range []string{workflow.StepBranding, workflow.StepVisuals, workflow.StepImage} {
		ev := readEvent(t, conn)
		assert.Equal(t, workflow.EventUpdate, ev.Type)
		assert.Equal(t, step, ev.Step)
	}
	assert.Equal(t, workflow.EventRequestInput, readEvent(t, conn).Type)

	require.Eventually(t, func() bool {
		return reg.Deliver("u1", clientID, "prop-1", domain.PropertyDetails{Location: "Kharadi, Pune", Price: "1.5 Cr", Bedrooms: "2"})
	}, 2*time.Second, 10*time.Millisecond)

	ev := readEvent(t, conn)
	assert.Equal(t, workflow.StepBasePost, ev.Step)
	assert.Equal(t, "Your new home awaits in Kharadi.", ev.Data[workflow.SlotBasePost])
	assert.Equal(t, workflow.Final(PostReadyMessage), readEvent(t, conn))
}

func TestHandlerPingPongAndJunk(t *testing.T) {
	srv := newTestServer(t, NewRegistry(), &fakePosts{})
	conn := dial(t, srv, session.NewID())

	writeFrame(t, conn, `not json`)
	writeFrame(t, conn, `{"type":"dance"}`)
	writeFrame(t, conn, `{"type":"initial_input","user_input":"   "}`)
	writeFrame(t, conn, `{"type":"ping"}`)

	assert.Equal(t, workflow.EventPong, readEvent(t, conn).Type)
}

func TestHandlerRejectsInvalidClientID(t *testing.T) {
	srv := newTestServer(t, NewRegistry(), &fakePosts{})

	resp, err := http.Get(srv.URL + "/chat/not-a-uuid")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerUnregistersOnDisconnect(t *testing.T) {
	reg := NewRegistry()
	srv := newTestServer(t, reg, &fakePosts{})
	clientID := session.NewID()
	conn := dial(t, srv, clientID)

	require.Eventually(t, func() bool { return reg.Get(clientID) != nil }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	require.Eventually(t, func() bool { return reg.Get(clientID) == nil }, 2*time.Second, 10*time.Millisecond)
}

func TestCheckOrigin(t *testing.T) {
	h := NewHandler(NewRegistry(), nil, nil, []string{"https://studio.example.com"}, false)

	req := httptest.NewRequest(http.MethodGet, "/chat/x", nil)
	assert.True(t, h.checkOrigin(req))

	req.Header.Set("Origin", "https://studio.example.com")
	assert.True(t, h.checkOrigin(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, h.checkOrigin(req))
}
