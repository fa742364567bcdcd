// Package chat is the upstream side of the engine: the websocket event
// channel, the REST boundary and the orchestration that keeps the local
// session state in sync with the service.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"taskchat-client/models"
)

// Inbound event kinds consumed by the session store.
const (
	EventMessageCreated = "message-created"
	EventMessageUpdated = "message-updated"
	EventMessageDeleted = "message-deleted"
)

// Outbound envelope types. Send/delete are best-effort fan-out hints; the
// durable write path is always the REST call.
const (
	typeJoinRoom      = "join-room"
	typeSendMessage   = "send-message"
	typeDeleteMessage = "delete-message"
)

const writeWait = 10 * time.Second

// ErrNotConnected is returned when an operation needs a live socket.
var ErrNotConnected = errors.New("chat: socket not connected")

// Event is one room-scoped mutation received from the service.
type Event struct {
	Kind           string
	ConversationID string
	Message        *models.Message
	MessageID      string
}

// Socket owns the single websocket connection to the chat service for the
// lifetime of the view. Joining another room reuses the connection; a
// stale connection is not retried here — the owner re-invokes Connect
// (e.g. on focus).
type Socket struct {
	url    string
	header http.Header

	mu     sync.Mutex
	conn   *websocket.Conn
	room   string
	events chan Event
}

// NewSocket prepares a socket for the given ws URL. The token, when set,
// is sent as a bearer Authorization header during the handshake.
func NewSocket(socketURL, token string) *Socket {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return &Socket{url: socketURL, header: header}
}

// Connect dials the service and starts the read pump. Calling Connect on a
// live socket replaces it, which is how a caller recovers from a stale
// connection. The previously joined room is re-joined automatically.
func (s *Socket) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		return fmt.Errorf("chat: dialing %s: %w", s.url, err)
	}

	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = conn
	s.events = make(chan Event, 64)
	events := s.events
	room := s.room
	s.mu.Unlock()

	go s.readPump(conn, events)

	if room != "" {
		if err := s.JoinRoom(room); err != nil {
			log.Printf("chat: rejoining room %s: %v", room, err)
		}
	}
	return nil
}

// Connected reports whether a connection is currently held. It says
// nothing about liveness; a half-dead socket surfaces through the closed
// event channel.
func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Events returns the channel carrying inbound events for the current
// connection. The channel is closed when the read pump dies.
func (s *Socket) Events() <-chan Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}

// JoinRoom subscribes to a conversation's events. Switching conversations
// joins the new room on the same connection.
func (s *Socket) JoinRoom(conversationID string) error {
	s.mu.Lock()
	s.room = conversationID
	s.mu.Unlock()
	return s.write(typeJoinRoom, map[string]string{"conversationId": conversationID})
}

// EmitSend publishes a created message as a fan-out hint so other open
// clients update without polling.
func (s *Socket) EmitSend(conversationID string, msg models.Message) error {
	return s.write(typeSendMessage, map[string]interface{}{
		"conversationId": conversationID,
		"message":        msg,
	})
}

// EmitDelete publishes a deletion hint.
func (s *Socket) EmitDelete(conversationID, messageID string) error {
	return s.write(typeDeleteMessage, map[string]string{
		"conversationId": conversationID,
		"messageId":      messageID,
	})
}

// Close tears the connection down.
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *Socket) write(msgType string, payload interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(models.WSMessage{Type: msgType, Payload: payload}); err != nil {
		return fmt.Errorf("chat: writing %s: %w", msgType, err)
	}
	return nil
}

// readPump decodes envelopes into typed events until the connection dies,
// then closes the event channel so the owner sees the degraded state.
func (s *Socket) readPump(conn *websocket.Conn, events chan Event) {
	defer close(events)
	for {
		var env wireEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			log.Printf("chat: connection lost: %v", err)
			return
		}
		evt, ok := decodeEvent(env)
		if !ok {
			continue
		}
		select {
		case events <- evt:
		default:
			log.Printf("chat: event buffer full, dropping %s", evt.Kind)
		}
	}
}

// wireEnvelope mirrors models.WSMessage with a raw payload for two-phase
// decoding.
type wireEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type deletePayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

func decodeEvent(env wireEnvelope) (Event, bool) {
	switch env.Type {
	case EventMessageCreated, EventMessageUpdated:
		var msg models.Message
		if err := json.Unmarshal(env.Payload, &msg); err != nil || msg.ID == "" {
			log.Printf("chat: bad %s payload: %v", env.Type, err)
			return Event{}, false
		}
		return Event{
			Kind:           env.Type,
			ConversationID: msg.ConversationID,
			Message:        &msg,
			MessageID:      msg.ID,
		}, true
	case EventMessageDeleted:
		var p deletePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.MessageID == "" {
			log.Printf("chat: bad %s payload: %v", env.Type, err)
			return Event{}, false
		}
		return Event{
			Kind:           env.Type,
			ConversationID: p.ConversationID,
			MessageID:      p.MessageID,
		}, true
	default:
		// Presence, typing and other event types are not consumed by
		// this engine.
		return Event{}, false
	}
}
