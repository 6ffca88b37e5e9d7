// ABOUTME: Manager enforcing one active consultation session per mounted view.
// ABOUTME: Ends the previous session before opening the next, keyed switches only.

package session

import (
	"context"
	"log/slog"
	"sync"
)

// Manager owns at most one active controller. Opening a conversation while
// another is active tears the old one down first, closing its live channel
// before the new room join, so two room subscriptions never leak messages
// into the wrong timeline.
type Manager struct {
	viewerID string
	resolver ConversationResolver
	history  HistoryLoader
	opener   ChannelOpener
	logger   *slog.Logger

	mu     sync.Mutex
	active *Controller
}

// NewManager creates a Manager for the given viewer identity. Pass nil
// logger for default.
func NewManager(viewerID string, resolver ConversationResolver, history HistoryLoader, opener ChannelOpener, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		viewerID: viewerID,
		resolver: resolver,
		history:  history,
		opener:   opener,
		logger:   logger,
	}
}

// Open starts a session with the given counterpart, ending any active one
// first. On failure the returned error is the controller's initialization
// error and no session is active.
func (m *Manager) Open(ctx context.Context, counterpartID string) (*Controller, error) {
	m.mu.Lock()
	if m.active != nil {
		m.active.End()
		m.active = nil
	}
	m.mu.Unlock()

	ctrl := NewController(m.viewerID, m.resolver, m.history, m.opener, m.logger)
	if err := ctrl.Start(ctx, counterpartID); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.active = ctrl
	m.mu.Unlock()

	return ctrl, nil
}

// Active returns the currently active controller, or nil.
func (m *Manager) Active() *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// End tears down the active session, if any. Safe to call repeatedly.
func (m *Manager) End() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		m.active.End()
		m.active = nil
	}
}
