// ABOUTME: Core domain types for the consultation messaging core.
// ABOUTME: Conversations, messages with provenance, connection status, call handoff tokens.

package consult

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Domain errors shared across packages.
var (
	// ErrEmptyBody means a send was attempted with no content. Rejected
	// locally before any network call.
	ErrEmptyBody = errors.New("message body is empty")

	// ErrInvalidCallType means a handoff was requested with an unknown call type.
	ErrInvalidCallType = errors.New("invalid call type")
)

// Conversation is the canonical record of a two-party messaging relationship.
// Its identity is assigned remotely on first contact and never changes.
type Conversation struct {
	ID           string   `json:"id"`
	Participants []string `json:"participants"`

	// LastMessage is a denormalized pointer maintained by the remote side.
	// May be nil for a freshly created conversation.
	LastMessage *Message `json:"last_message,omitempty"`
}

// Provenance tags where a message came from.
type Provenance string

const (
	// ProvenancePersisted marks a message returned by the history API or
	// confirmed over the live channel. Persisted messages have stable IDs.
	ProvenancePersisted Provenance = "persisted"

	// ProvenanceOptimistic marks a locally created message that has not yet
	// been confirmed by the server. Its ID field is empty; LocalRef is set.
	ProvenanceOptimistic Provenance = "optimistic"
)

// Message is a single chat message in a conversation.
type Message struct {
	ID             string     `json:"id,omitempty"`
	ConversationID string     `json:"conversation_id"`
	Sender         string     `json:"sender"`
	Body           string     `json:"content"`
	CreatedAt      time.Time  `json:"created_at"`
	Provenance     Provenance `json:"-"`

	// LocalRef identifies an optimistic message until the server echo
	// promotes it. Empty for persisted messages.
	LocalRef string `json:"-"`
}

// Status is the live channel connection state. It is owned by the live
// channel; application code only reads it.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusOnline     Status = "online"
	StatusOffline    Status = "offline"
)

// CallType selects the media for a call handoff.
type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

// ParseCallType validates a call type string.
func ParseCallType(s string) (CallType, error) {
	switch CallType(s) {
	case CallAudio, CallVideo:
		return CallType(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCallType, s)
}

// HandoffToken addresses a voice/video call session anchored to a
// conversation. Both participants derive the same token from the same
// conversation, so the call room needs no separate negotiation.
type HandoffToken struct {
	ConversationID string
	CallType       CallType
}

// Room returns the call subsystem's room name for this token.
func (t HandoffToken) Room() string {
	return t.ConversationID + ":" + string(t.CallType)
}

// ParseHandoffRoom reconstructs a HandoffToken from a room name produced by
// Room. The call type is the segment after the last colon, which keeps
// conversation IDs containing colons unambiguous.
func ParseHandoffRoom(room string) (HandoffToken, error) {
	idx := strings.LastIndex(room, ":")
	if idx <= 0 || idx == len(room)-1 {
		return HandoffToken{}, fmt.Errorf("malformed handoff room %q", room)
	}
	ct, err := ParseCallType(room[idx+1:])
	if err != nil {
		return HandoffToken{}, err
	}
	return HandoffToken{ConversationID: room[:idx], CallType: ct}, nil
}
