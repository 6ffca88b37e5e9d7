// ABOUTME: Timeline reconciler merging history, live events, and optimistic sends.
// ABOUTME: Maintains one display-ordered, duplicate-free message sequence per view.

package timeline

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/astroveda/consult-core/internal/consult"
)

// Timeline errors
var (
	// ErrAlreadySeeded means Seed was called more than once for a view.
	ErrAlreadySeeded = errors.New("timeline already seeded")
)

// Timeline is the ordered message sequence for one conversation view. It is
// fed by the one-time history snapshot, the live channel's inbound stream,
// and local optimistic sends. Mutations are serialized through a mutex so
// the live consumer goroutine and the sending goroutine never race.
//
// Ordering is by arrival: entries are appended and never re-sorted, so a
// persisted timestamp arriving out of order across the seed/live boundary
// stays where it landed.
type Timeline struct {
	mu       sync.Mutex
	viewerID string
	seeded   bool
	entries  []consult.Message
	logger   *slog.Logger
}

// New creates a Timeline for the given viewer. The viewer identity is what
// recognizes self-authored echoes on the live stream. Pass nil logger for
// default.
func New(viewerID string, logger *slog.Logger) *Timeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Timeline{
		viewerID: viewerID,
		logger:   logger.With("component", "timeline"),
	}
}

// Seed initializes the timeline from the history snapshot, in order. It may
// be called exactly once per Timeline; later calls fail without touching
// the entries.
func (t *Timeline) Seed(msgs []consult.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.seeded {
		return ErrAlreadySeeded
	}
	t.seeded = true

	t.entries = append(t.entries, msgs...)
	return nil
}

// AppendLocal appends an optimistic message for a local send, before any
// network round trip. The entry carries a local-only timestamp and ref; it
// is promoted in place when the server echo arrives, and simply discarded
// with the view if it never does.
func (t *Timeline) AppendLocal(conversationID, body string) consult.Message {
	msg := consult.Message{
		ConversationID: conversationID,
		Sender:         t.viewerID,
		Body:           body,
		CreatedAt:      time.Now(),
		Provenance:     consult.ProvenanceOptimistic,
		LocalRef:       uuid.New().String(),
	}

	t.mu.Lock()
	t.entries = append(t.entries, msg)
	t.mu.Unlock()

	return msg
}

// Ingest reconciles a message from the live channel into the timeline.
//
// A self-authored message is matched against the oldest still-unconfirmed
// optimistic entry with the same body and promoted in place. The echo of
// the viewer's own send must not render twice. Everything else is appended
// in arrival order.
func (t *Timeline) Ingest(msg consult.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if msg.Sender == t.viewerID {
		for i := range t.entries {
			e := &t.entries[i]
			if e.Provenance == consult.ProvenanceOptimistic && e.Body == msg.Body {
				e.ID = msg.ID
				e.CreatedAt = msg.CreatedAt
				e.Provenance = consult.ProvenancePersisted
				e.LocalRef = ""
				t.logger.Debug("optimistic message promoted", "message_id", msg.ID)
				return
			}
		}
		// No placeholder (send from before this view, or already promoted):
		// treat like any other inbound message.
	}

	t.entries = append(t.entries, msg)
}

// Messages returns a snapshot of the timeline in display order.
func (t *Timeline) Messages() []consult.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]consult.Message, len(t.entries))
	copy(out, t.entries)
	return out
}

// PendingSends reports how many optimistic entries are still awaiting their
// server echo.
func (t *Timeline) PendingSends() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, e := range t.entries {
		if e.Provenance == consult.ProvenanceOptimistic {
			n++
		}
	}
	return n
}
