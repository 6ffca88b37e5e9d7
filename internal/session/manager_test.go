// ABOUTME: Tests for the single-active-session manager.
// ABOUTME: Covers teardown ordering when switching conversations.

package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astroveda/consult-core/internal/consult"
)

// eventOpener records open/close ordering across channels it hands out.
type eventOpener struct {
	mu     sync.Mutex
	events []string
	chans  []*fakeChannel
}

func (o *eventOpener) Open(ctx context.Context, conversationID, senderID string) Channel {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "open:"+conversationID)

	ch := newFakeChannel()
	base := ch.Close
	o.chans = append(o.chans, ch)

	return &trackingChannel{fakeChannel: ch, opener: o, conversationID: conversationID, baseClose: base}
}

func (o *eventOpener) Events() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.events))
	copy(out, o.events)
	return out
}

// trackingChannel wraps fakeChannel to record close events on the opener.
type trackingChannel struct {
	*fakeChannel
	opener         *eventOpener
	conversationID string
	baseClose      func()
}

func (c *trackingChannel) Close() {
	c.opener.mu.Lock()
	c.opener.events = append(c.opener.events, "close:"+c.conversationID)
	c.opener.mu.Unlock()
	c.baseClose()
}

// switchingResolver maps partner ids to conversations.
type switchingResolver struct{}

func (switchingResolver) Resolve(ctx context.Context, partnerID string) (*consult.Conversation, error) {
	switch partnerID {
	case "astro_42":
		return &consult.Conversation{ID: "conv_7", Participants: []string{"user_1", "astro_42"}}, nil
	case "astro_11":
		return &consult.Conversation{ID: "conv_9", Participants: []string{"user_1", "astro_11"}}, nil
	}
	return nil, errors.New("partner not found")
}

func TestManager_Open(t *testing.T) {
	t.Run("opens a session", func(t *testing.T) {
		opener := &eventOpener{}
		m := NewManager("user_1", switchingResolver{}, &fakeHistory{}, opener, nil)

		ctrl, err := m.Open(context.Background(), "astro_42")
		require.NoError(t, err)
		assert.Equal(t, StateActive, ctrl.State())
		assert.Same(t, ctrl, m.Active())
	})

	t.Run("switching closes the old channel before the new join", func(t *testing.T) {
		opener := &eventOpener{}
		m := NewManager("user_1", switchingResolver{}, &fakeHistory{}, opener, nil)

		first, err := m.Open(context.Background(), "astro_42")
		require.NoError(t, err)

		second, err := m.Open(context.Background(), "astro_11")
		require.NoError(t, err)

		assert.Equal(t, StateEnded, first.State())
		assert.Equal(t, StateActive, second.State())
		assert.Same(t, second, m.Active())

		assert.Equal(t, []string{"open:conv_7", "close:conv_7", "open:conv_9"}, opener.Events(),
			"old room must be left before the new room is joined")
	})

	t.Run("failed open leaves no active session", func(t *testing.T) {
		opener := &eventOpener{}
		m := NewManager("user_1", switchingResolver{}, &fakeHistory{}, opener, nil)

		_, err := m.Open(context.Background(), "nobody")
		require.Error(t, err)
		assert.Nil(t, m.Active())
	})

	t.Run("end is idempotent", func(t *testing.T) {
		opener := &eventOpener{}
		m := NewManager("user_1", switchingResolver{}, &fakeHistory{}, opener, nil)

		ctrl, err := m.Open(context.Background(), "astro_42")
		require.NoError(t, err)

		m.End()
		m.End()

		assert.Nil(t, m.Active())
		assert.Equal(t, StateEnded, ctrl.State())
	})
}
