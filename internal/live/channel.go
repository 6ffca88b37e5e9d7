// ABOUTME: Live channel client owning one websocket connection per open conversation view.
// ABOUTME: Joins the conversation room, sends fire-and-forget messages, streams inbound ones.

package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/astroveda/consult-core/internal/consult"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second

	// sendBufferSize bounds queued outbound payloads. Sends beyond it are
	// dropped, never blocked on.
	sendBufferSize = 64

	// inboundBufferSize is the buffer for the inbound message channel.
	// Matches the broadcaster subscriber buffer (64 events).
	inboundBufferSize = 64
)

// Wire event names shared with the live transport.
const (
	eventJoinChat       = "join_chat"
	eventSendMessage    = "send_message"
	eventReceiveMessage = "receive_message"
)

// envelope is the framing for every event on the wire.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// joinPayload is the data for a join_chat event.
type joinPayload struct {
	RoomID string `json:"roomId"`
}

// sendPayload is the data for a send_message event.
type sendPayload struct {
	RoomID   string `json:"roomId"`
	SenderID string `json:"senderId"`
	Content  string `json:"content"`
}

// receivePayload is the data for a receive_message event.
type receivePayload struct {
	ID        string    `json:"id,omitempty"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Dialer opens live channel handles against a fixed transport endpoint.
type Dialer struct {
	url            string
	token          string
	connectTimeout time.Duration
	logger         *slog.Logger
}

// NewDialer creates a Dialer. Pass nil logger for default.
func NewDialer(url, token string, connectTimeout time.Duration, logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{
		url:            url,
		token:          token,
		connectTimeout: connectTimeout,
		logger:         logger.With("component", "live"),
	}
}

// Handle is one live channel subscription, owned by the view that opened it.
// Exactly one room subscription exists per handle. All methods are safe for
// concurrent use.
type Handle struct {
	conversationID string
	senderID       string

	mu     sync.Mutex
	status consult.Status
	ws     *websocket.Conn

	send     chan []byte
	messages chan consult.Message
	closed   chan struct{}
	readDone chan struct{}
	once     sync.Once

	logger *slog.Logger
}

// Open establishes a handle for the conversation's room. It returns
// immediately with the handle in connecting state; the handshake and room
// join complete asynchronously. Transport failures never surface as errors,
// only as a status transition to offline.
func (d *Dialer) Open(ctx context.Context, conversationID, senderID string) *Handle {
	h := &Handle{
		conversationID: conversationID,
		senderID:       senderID,
		status:         consult.StatusConnecting,
		send:           make(chan []byte, sendBufferSize),
		messages:       make(chan consult.Message, inboundBufferSize),
		closed:         make(chan struct{}),
		readDone:       make(chan struct{}),
		logger: d.logger.With(
			"conversation_id", conversationID,
		),
	}

	go h.connect(ctx, d)

	return h
}

// connect dials the transport, performs the room join, and starts the pumps.
// A handshake that fails or outlives the connect timeout leaves the handle
// offline; there is no automatic retry.
func (h *Handle) connect(ctx context.Context, d *Dialer) {
	dialCtx, cancel := context.WithTimeout(ctx, d.connectTimeout)
	defer cancel()

	header := http.Header{}
	if d.token != "" {
		header.Set("Authorization", "Bearer "+d.token)
	}

	ws, resp, err := websocket.DefaultDialer.DialContext(dialCtx, d.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		h.logger.Warn("live channel dial failed", "error", err)
		h.transition(consult.StatusOffline)
		close(h.messages)
		return
	}

	// The handle may have been closed while dialing
	select {
	case <-h.closed:
		ws.Close()
		close(h.messages)
		return
	default:
	}

	h.mu.Lock()
	h.ws = ws
	h.mu.Unlock()

	// Join the room before anything else; membership does not exist until
	// the transport has seen this event.
	join, err := json.Marshal(envelope{
		Event: eventJoinChat,
		Data:  mustMarshal(joinPayload{RoomID: h.conversationID}),
	})
	if err == nil {
		ws.SetWriteDeadline(time.Now().Add(writeWait))
		err = ws.WriteMessage(websocket.TextMessage, join)
	}
	if err != nil {
		h.logger.Warn("room join failed", "error", err)
		ws.Close()
		h.transition(consult.StatusOffline)
		close(h.messages)
		return
	}

	h.transition(consult.StatusOnline)
	h.logger.Debug("live channel online")

	go h.writeLoop(ws)
	h.readLoop(ws)
}

// Status returns the current connection status. Owned by the handle;
// application logic never sets it.
func (h *Handle) Status() consult.Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Messages returns the inbound stream. The channel is closed when the
// transport is lost or the handle is closed.
func (h *Handle) Messages() <-chan consult.Message {
	return h.messages
}

// Send enqueues a message for delivery. Fire-and-forget: the confirmed
// message arrives later on the inbound stream like any other party's
// message. A send while offline or with a full buffer is dropped silently
// apart from a debug log; there is no delivery guarantee either way.
func (h *Handle) Send(body string) {
	payload, err := json.Marshal(envelope{
		Event: eventSendMessage,
		Data: mustMarshal(sendPayload{
			RoomID:   h.conversationID,
			SenderID: h.senderID,
			Content:  body,
		}),
	})
	if err != nil {
		h.logger.Error("marshaling send event", "error", err)
		return
	}

	select {
	case <-h.closed:
		h.logger.Debug("send on closed handle dropped")
	case h.send <- payload:
	default:
		h.logger.Debug("send buffer full, dropping message")
	}
}

// Close releases the transport. Idempotent: calling it on an already-closed
// handle does nothing.
func (h *Handle) Close() {
	h.once.Do(func() {
		close(h.closed)

		h.mu.Lock()
		ws := h.ws
		h.mu.Unlock()

		if ws != nil {
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
				time.Now().Add(writeWait))
			ws.Close()
		}

		h.transition(consult.StatusOffline)
		h.logger.Debug("live channel closed")
	})
}

// transition applies a status change if it is legal. Legal transitions:
// connecting→online, connecting→offline, online→offline. Offline is
// terminal for a handle; only a fresh Open yields connecting again.
func (h *Handle) transition(to consult.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case h.status == to:
		return
	case h.status == consult.StatusConnecting && to == consult.StatusOnline:
	case h.status == consult.StatusConnecting && to == consult.StatusOffline:
	case h.status == consult.StatusOnline && to == consult.StatusOffline:
	default:
		h.logger.Warn("illegal status transition ignored",
			"from", string(h.status),
			"to", string(to),
		)
		return
	}

	h.status = to
}

// writeLoop drains the send queue onto the websocket and keeps the
// connection alive with pings.
func (h *Handle) writeLoop(ws *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-h.closed:
			return
		case <-h.readDone:
			return
		case payload := <-h.send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Warn("live channel write failed", "error", err)
				h.transition(consult.StatusOffline)
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logger.Warn("live channel ping failed", "error", err)
				h.transition(consult.StatusOffline)
				return
			}
		}
	}
}

// readLoop decodes inbound events and forwards messages in transport order.
// It owns the messages channel and closes it on exit.
func (h *Handle) readLoop(ws *websocket.Conn) {
	defer close(h.messages)
	defer close(h.readDone)
	defer ws.Close()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			select {
			case <-h.closed:
				// Expected: Close tore down the connection
			default:
				h.logger.Warn("live channel read failed", "error", err)
			}
			h.transition(consult.StatusOffline)
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.logger.Warn("malformed live event dropped", "error", err)
			continue
		}

		if env.Event != eventReceiveMessage {
			h.logger.Debug("ignoring live event", "event", env.Event)
			continue
		}

		var recv receivePayload
		if err := json.Unmarshal(env.Data, &recv); err != nil {
			h.logger.Warn("malformed receive_message dropped", "error", err)
			continue
		}

		msg := consult.Message{
			ID:             recv.ID,
			ConversationID: h.conversationID,
			Sender:         recv.Sender,
			Body:           recv.Content,
			CreatedAt:      recv.CreatedAt,
			Provenance:     consult.ProvenancePersisted,
		}

		select {
		case h.messages <- msg:
		default:
			// Consumer is not keeping up; drop rather than block the reader
			h.logger.Debug("inbound buffer full, dropping message",
				"sender", recv.Sender,
			)
		}
	}
}

// mustMarshal marshals values that cannot fail (plain structs of strings).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
