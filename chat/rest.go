package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"taskchat-client/models"
	"taskchat-client/utils"
)

// Rest is the durable read/write path to the chat service. The websocket
// emits are only hints; creates and deletes always go through here.
type Rest struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewRest builds the REST boundary client.
func NewRest(baseURL, token string) *Rest {
	return &Rest{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// GetOrCreateConversation resolves the conversation bound to a submission,
// creating it lazily on first access. The call is idempotent.
func (r *Rest) GetOrCreateConversation(ctx context.Context, submissionID string) (*models.Conversation, error) {
	req := models.OpenConversationRequest{SubmissionID: submissionID}
	var conv models.Conversation
	if err := r.do(ctx, http.MethodPost, "/api/conversations", req, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListMessages fetches the full message snapshot for a conversation.
func (r *Rest) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var msgs []models.Message
	path := fmt.Sprintf("/api/conversations/%s/messages", conversationID)
	if err := r.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// CreateMessage persists a new message and returns the server-assigned
// record. The created message is echoed back over the transport to all
// room members, including this client.
func (r *Rest) CreateMessage(ctx context.Context, req models.SendMessageRequest) (*models.Message, error) {
	var msg models.Message
	if err := r.do(ctx, http.MethodPost, "/api/messages", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteMessage removes a message by id. Hard delete, no tombstone.
func (r *Rest) DeleteMessage(ctx context.Context, messageID string) error {
	return r.do(ctx, http.MethodDelete, "/api/messages/"+messageID, nil, nil)
}

func (r *Rest) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("chat: encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("chat: creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("chat: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chat: %s %s returned %d: %s", method, path, resp.StatusCode, utils.Snippet(string(data), 200))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("chat: decoding response: %w", err)
	}
	return nil
}
