// ABOUTME: HTTP client for the platform chat API.
// ABOUTME: Resolves conversations, loads message history, lists conversations.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/astroveda/consult-core/internal/consult"
)

const defaultTimeout = 30 * time.Second

// API errors
var (
	// ErrPartnerNotFound means the counterpart identity does not resolve to a
	// known participant. Fatal for session initialization.
	ErrPartnerNotFound = errors.New("partner not found")

	// ErrUnauthorized means the platform rejected the caller's token.
	ErrUnauthorized = errors.New("unauthorized")
)

// Client talks to the platform's chat HTTP API. It holds no mutable state
// beyond the HTTP client; all calls are safe to repeat.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates an API client for the given base URL. The token is
// attached as a bearer credential on every request; pass "" for none.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// resolveRequest is the JSON body sent to POST /chat.
type resolveRequest struct {
	PartnerID string `json:"partnerId"`
}

// Resolve obtains the canonical conversation for (caller, partnerID),
// creating it remotely if this is first contact. Repeated calls with the
// same pair, in either order, yield the same conversation ID.
func (c *Client) Resolve(ctx context.Context, partnerID string) (*consult.Conversation, error) {
	if partnerID == "" {
		return nil, fmt.Errorf("%w: empty partner id", ErrPartnerNotFound)
	}

	body, err := json.Marshal(resolveRequest{PartnerID: partnerID})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	var conv consult.Conversation
	if err := c.do(ctx, http.MethodPost, "/chat", body, &conv); err != nil {
		return nil, err
	}

	if conv.ID == "" {
		return nil, fmt.Errorf("server returned conversation without id")
	}

	return &conv, nil
}

// historyMessage is one element of the GET /chat/{id}/messages response.
type historyMessage struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// History fetches the persisted message backlog for a conversation, ordered
// oldest to newest. The result is a snapshot; new messages arrive only over
// the live channel.
func (c *Client) History(ctx context.Context, conversationID string) ([]consult.Message, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id required")
	}

	var raw []historyMessage
	if err := c.do(ctx, http.MethodGet, "/chat/"+conversationID+"/messages", nil, &raw); err != nil {
		return nil, err
	}

	msgs := make([]consult.Message, 0, len(raw))
	for _, m := range raw {
		msgs = append(msgs, consult.Message{
			ID:             m.ID,
			ConversationID: conversationID,
			Sender:         m.Sender,
			Body:           m.Content,
			CreatedAt:      m.CreatedAt,
			Provenance:     consult.ProvenancePersisted,
		})
	}

	return msgs, nil
}

// ListConversations fetches the caller's conversations for list/sidebar views.
func (c *Client) ListConversations(ctx context.Context) ([]consult.Conversation, error) {
	var convs []consult.Conversation
	if err := c.do(ctx, http.MethodGet, "/chat", nil, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// do performs a request against the API and decodes the JSON response into
// out. Error responses are mapped to sentinel errors where the status code
// allows it.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrPartnerNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode >= 400:
		// Try to surface the server's error message
		var errResp struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("server returned status %d: %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	return nil
}
