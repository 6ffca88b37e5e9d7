// ABOUTME: Tests for the live channel websocket client.
// ABOUTME: Covers room join, status transitions, fire-and-forget sends, and teardown.

package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astroveda/consult-core/internal/consult"
)

var upgrader = websocket.Upgrader{}

// frame mirrors the wire envelope for test-side decoding.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// newLiveServer starts a websocket server that hands accepted connections to
// the test over a channel.
func newLiveServer(t *testing.T) (string, <-chan *websocket.Conn) {
	t.Helper()

	conns := make(chan *websocket.Conn, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- ws
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http"), conns
}

// readFrame reads one envelope from the server side of the connection.
func readFrame(t *testing.T, ws *websocket.Conn) frame {
	t.Helper()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	var f frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func waitStatus(t *testing.T, h *Handle, want consult.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.Status() == want
	}, 5*time.Second, 10*time.Millisecond, "status never reached %s", want)
}

func TestHandle_OpenJoinsRoom(t *testing.T) {
	url, conns := newLiveServer(t)
	dialer := NewDialer(url, "tok", 5*time.Second, nil)

	h := dialer.Open(context.Background(), "conv_7", "user_1")
	defer h.Close()

	assert.Equal(t, consult.StatusConnecting, h.Status())

	server := <-conns
	join := readFrame(t, server)
	assert.Equal(t, "join_chat", join.Event)

	var payload struct {
		RoomID string `json:"roomId"`
	}
	require.NoError(t, json.Unmarshal(join.Data, &payload))
	assert.Equal(t, "conv_7", payload.RoomID)

	waitStatus(t, h, consult.StatusOnline)
}

func TestHandle_SendsBearerToken(t *testing.T) {
	headers := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Get("Authorization")
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		ws.ReadMessage()
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	dialer := NewDialer(url, "tok-123", 5*time.Second, nil)

	h := dialer.Open(context.Background(), "conv_7", "user_1")
	defer h.Close()

	assert.Equal(t, "Bearer tok-123", <-headers)
}

func TestHandle_Send(t *testing.T) {
	url, conns := newLiveServer(t)
	dialer := NewDialer(url, "", 5*time.Second, nil)

	h := dialer.Open(context.Background(), "conv_7", "user_1")
	defer h.Close()

	server := <-conns
	readFrame(t, server) // join_chat

	h.Send("Hello")

	sent := readFrame(t, server)
	assert.Equal(t, "send_message", sent.Event)

	var payload struct {
		RoomID   string `json:"roomId"`
		SenderID string `json:"senderId"`
		Content  string `json:"content"`
	}
	require.NoError(t, json.Unmarshal(sent.Data, &payload))
	assert.Equal(t, "conv_7", payload.RoomID)
	assert.Equal(t, "user_1", payload.SenderID)
	assert.Equal(t, "Hello", payload.Content)
}

func TestHandle_ReceiveMessage(t *testing.T) {
	url, conns := newLiveServer(t)
	dialer := NewDialer(url, "", 5*time.Second, nil)

	h := dialer.Open(context.Background(), "conv_7", "user_1")
	defer h.Close()

	server := <-conns
	readFrame(t, server) // join_chat

	createdAt := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	payload, err := json.Marshal(map[string]any{
		"event": "receive_message",
		"data": map[string]any{
			"id":        "m1",
			"sender":    "astro_42",
			"content":   "The stars align",
			"createdAt": createdAt,
		},
	})
	require.NoError(t, err)
	require.NoError(t, server.WriteMessage(websocket.TextMessage, payload))

	select {
	case msg := <-h.Messages():
		assert.Equal(t, "m1", msg.ID)
		assert.Equal(t, "conv_7", msg.ConversationID)
		assert.Equal(t, "astro_42", msg.Sender)
		assert.Equal(t, "The stars align", msg.Body)
		assert.True(t, createdAt.Equal(msg.CreatedAt))
		assert.Equal(t, consult.ProvenancePersisted, msg.Provenance)
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}

func TestHandle_IgnoresUnknownEvents(t *testing.T) {
	url, conns := newLiveServer(t)
	dialer := NewDialer(url, "", 5*time.Second, nil)

	h := dialer.Open(context.Background(), "conv_7", "user_1")
	defer h.Close()

	server := <-conns
	readFrame(t, server) // join_chat

	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`{"event":"typing","data":{}}`)))
	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, server.WriteMessage(websocket.TextMessage,
		[]byte(`{"event":"receive_message","data":{"sender":"astro_42","content":"still here"}}`)))

	select {
	case msg := <-h.Messages():
		assert.Equal(t, "still here", msg.Body)
	case <-time.After(5 * time.Second):
		t.Fatal("valid message after noise never arrived")
	}
}

func TestHandle_TransportLoss(t *testing.T) {
	url, conns := newLiveServer(t)
	dialer := NewDialer(url, "", 5*time.Second, nil)

	h := dialer.Open(context.Background(), "conv_7", "user_1")
	defer h.Close()

	server := <-conns
	readFrame(t, server) // join_chat
	waitStatus(t, h, consult.StatusOnline)

	server.Close()

	waitStatus(t, h, consult.StatusOffline)

	// Inbound stream ends
	_, ok := <-h.Messages()
	assert.False(t, ok, "messages channel should close on transport loss")

	// Sends after loss are accepted, not errors
	assert.NotPanics(t, func() { h.Send("still there?") })
}

func TestHandle_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close() // nothing listening anymore

	dialer := NewDialer(url, "", 500*time.Millisecond, nil)
	h := dialer.Open(context.Background(), "conv_7", "user_1")

	waitStatus(t, h, consult.StatusOffline)

	_, ok := <-h.Messages()
	assert.False(t, ok)

	// Closing a handle that never connected is harmless
	assert.NotPanics(t, h.Close)
}

func TestHandle_CloseIdempotent(t *testing.T) {
	url, conns := newLiveServer(t)
	dialer := NewDialer(url, "", 5*time.Second, nil)

	h := dialer.Open(context.Background(), "conv_7", "user_1")

	server := <-conns
	readFrame(t, server) // join_chat
	waitStatus(t, h, consult.StatusOnline)

	h.Close()
	assert.NotPanics(t, h.Close, "second close must be a no-op")

	status := h.Status()
	assert.Equal(t, consult.StatusOffline, status)
	assert.Equal(t, status, h.Status(), "status stays stable after close")
}

func TestHandle_StatusNeverSkipsConnecting(t *testing.T) {
	// offline→online is impossible: the transition guard only admits
	// connecting→online, connecting→offline, online→offline.
	url, conns := newLiveServer(t)
	dialer := NewDialer(url, "", 5*time.Second, nil)

	h := dialer.Open(context.Background(), "conv_7", "user_1")
	defer h.Close()

	server := <-conns
	readFrame(t, server)
	waitStatus(t, h, consult.StatusOnline)

	server.Close()
	waitStatus(t, h, consult.StatusOffline)

	h.transition(consult.StatusOnline)
	assert.Equal(t, consult.StatusOffline, h.Status())
}
