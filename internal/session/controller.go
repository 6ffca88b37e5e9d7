// ABOUTME: Session lifecycle controller for one consultation view.
// ABOUTME: Drives resolve → history → live channel → active, teardown, and call handoff.

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/astroveda/consult-core/internal/consult"
	"github.com/astroveda/consult-core/internal/timeline"
)

// State is the lifecycle state of a session.
type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateActive       State = "active"
	StateEnded        State = "ended"
)

// Session errors
var (
	// ErrUnauthenticated means no viewer identity is present. The only valid
	// caller response is redirecting to authentication; the session instance
	// is terminal.
	ErrUnauthenticated = errors.New("no authenticated viewer")

	// ErrAlreadyStarted means Start was called on a non-idle controller.
	ErrAlreadyStarted = errors.New("session already started")

	// ErrNotActive means an operation requires an active session.
	ErrNotActive = errors.New("session is not active")
)

// ConversationResolver obtains the canonical conversation for a counterpart.
type ConversationResolver interface {
	Resolve(ctx context.Context, partnerID string) (*consult.Conversation, error)
}

// HistoryLoader fetches the persisted backlog for a conversation.
type HistoryLoader interface {
	History(ctx context.Context, conversationID string) ([]consult.Message, error)
}

// Channel is the live channel handle as the controller sees it.
type Channel interface {
	Send(body string)
	Messages() <-chan consult.Message
	Status() consult.Status
	Close()
}

// ChannelOpener opens a live channel handle for a conversation room.
type ChannelOpener interface {
	Open(ctx context.Context, conversationID, senderID string) Channel
}

// OpenerFunc adapts a function to the ChannelOpener interface.
type OpenerFunc func(ctx context.Context, conversationID, senderID string) Channel

func (f OpenerFunc) Open(ctx context.Context, conversationID, senderID string) Channel {
	return f(ctx, conversationID, senderID)
}

// Controller owns one consultation session: the resolved conversation, its
// timeline, and its live channel handle. A controller is single-use; a new
// conversation view gets a new controller.
type Controller struct {
	viewerID string
	resolver ConversationResolver
	history  HistoryLoader
	opener   ChannelOpener
	logger   *slog.Logger

	mu           sync.Mutex
	state        State
	conversation *consult.Conversation
	timeline     *timeline.Timeline
	channel      Channel
	degraded     bool

	closeOnce sync.Once
}

// NewController creates an idle controller for the given viewer identity.
// Pass "" for viewerID when the caller is unauthenticated; Start will then
// fail with ErrUnauthenticated. Pass nil logger for default.
func NewController(viewerID string, resolver ConversationResolver, history HistoryLoader, opener ChannelOpener, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		viewerID: viewerID,
		resolver: resolver,
		history:  history,
		opener:   opener,
		logger:   logger.With("component", "session"),
		state:    StateIdle,
	}
}

// Start runs the initialization sequence: resolve the conversation, load
// history, open the live channel. On return the session is active and may
// still be in connecting state on the wire.
//
// A resolver failure is fatal and leaves the session ended. A history
// failure is not: the session proceeds with an empty timeline and reports
// Degraded() so the view can say history may be incomplete rather than
// silently showing an empty backlog.
func (c *Controller) Start(ctx context.Context, counterpartID string) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	if c.viewerID == "" {
		c.state = StateEnded
		c.mu.Unlock()
		return ErrUnauthenticated
	}
	c.state = StateInitializing
	c.mu.Unlock()

	conv, err := c.resolver.Resolve(ctx, counterpartID)
	if err != nil {
		c.fail()
		return fmt.Errorf("resolving conversation: %w", err)
	}

	tl := timeline.New(c.viewerID, c.logger)

	msgs, err := c.history.History(ctx, conv.ID)
	if err != nil {
		c.logger.Warn("history load failed, continuing with empty timeline",
			"conversation_id", conv.ID,
			"error", err,
		)
		c.mu.Lock()
		c.degraded = true
		c.mu.Unlock()
		msgs = nil
	}
	if err := tl.Seed(msgs); err != nil {
		c.fail()
		return fmt.Errorf("seeding timeline: %w", err)
	}

	ch := c.opener.Open(ctx, conv.ID, c.viewerID)

	c.mu.Lock()
	if c.state != StateInitializing {
		// Ended while initializing (view navigated away)
		c.mu.Unlock()
		ch.Close()
		return ErrNotActive
	}
	c.conversation = conv
	c.timeline = tl
	c.channel = ch
	c.state = StateActive
	c.mu.Unlock()

	go c.consume(ch, tl)

	c.logger.Info("session active",
		"conversation_id", conv.ID,
		"counterpart_id", counterpartID,
	)

	return nil
}

// consume drains the live channel into the timeline until the channel's
// inbound stream closes. The timeline is the only writer boundary; the
// channel goroutine never touches view state directly.
func (c *Controller) consume(ch Channel, tl *timeline.Timeline) {
	for msg := range ch.Messages() {
		tl.Ingest(msg)
	}
}

// Send appends an optimistic entry and fires the message at the live
// channel. An empty or whitespace body is rejected locally before any
// network call. Sends while the channel is offline are accepted with no
// delivery guarantee.
func (c *Controller) Send(body string) error {
	if strings.TrimSpace(body) == "" {
		return consult.ErrEmptyBody
	}

	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return ErrNotActive
	}
	conv := c.conversation
	tl := c.timeline
	ch := c.channel
	c.mu.Unlock()

	tl.AppendLocal(conv.ID, body)
	ch.Send(body)

	return nil
}

// Handoff derives the call session token for escalating this conversation
// to a voice or video call. Valid only while active. The chat channel stays
// open: chat and call are independent channels keyed by the same
// conversation id.
func (c *Controller) Handoff(callType consult.CallType) (consult.HandoffToken, error) {
	ct, err := consult.ParseCallType(string(callType))
	if err != nil {
		return consult.HandoffToken{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateActive {
		return consult.HandoffToken{}, ErrNotActive
	}

	return consult.HandoffToken{
		ConversationID: c.conversation.ID,
		CallType:       ct,
	}, nil
}

// End tears the session down. The live channel handle is closed exactly
// once; calling End again, or on a session that never became active, is
// harmless.
func (c *Controller) End() {
	c.mu.Lock()
	c.state = StateEnded
	ch := c.channel
	c.mu.Unlock()

	c.closeOnce.Do(func() {
		if ch != nil {
			ch.Close()
		}
		c.logger.Debug("session ended")
	})
}

// fail marks an initialization error: the session ends instead of becoming
// active.
func (c *Controller) fail() {
	c.mu.Lock()
	c.state = StateEnded
	c.mu.Unlock()
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Conversation returns the resolved conversation, or nil before the session
// became active.
func (c *Controller) Conversation() *consult.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversation
}

// Degraded reports whether the session is running without its history
// backlog after a failed load.
func (c *Controller) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// Status returns the live channel status. Before a channel exists the
// session reports connecting while initializing and offline otherwise.
func (c *Controller) Status() consult.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		return c.channel.Status()
	}
	if c.state == StateInitializing {
		return consult.StatusConnecting
	}
	return consult.StatusOffline
}

// Messages returns the current timeline snapshot in display order.
func (c *Controller) Messages() []consult.Message {
	c.mu.Lock()
	tl := c.timeline
	c.mu.Unlock()

	if tl == nil {
		return nil
	}
	return tl.Messages()
}

// PendingSends reports optimistic entries still awaiting their echo.
func (c *Controller) PendingSends() int {
	c.mu.Lock()
	tl := c.timeline
	c.mu.Unlock()

	if tl == nil {
		return 0
	}
	return tl.PendingSends()
}
