package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"taskchat-client/models"
	"taskchat-client/recorder"
	"taskchat-client/session"
	"taskchat-client/uploader"
	"taskchat-client/utils"
)

var (
	// ErrNoConversation is returned by send operations before any
	// conversation has been opened.
	ErrNoConversation = errors.New("chat: no conversation open")

	// ErrEmptyMessage rejects a text send with neither body nor reply
	// target, before any network call.
	ErrEmptyMessage = errors.New("chat: message needs a body or a reply target")

	// ErrStaleConversation signals that the conversation changed while an
	// upload was in flight; the result was not applied.
	ErrStaleConversation = errors.New("chat: conversation changed during upload")
)

// replySnippetLen bounds the denormalized body carried in a reply pointer.
const replySnippetLen = 80

// SnapshotStore caches conversation state locally so the engine can serve
// a conversation list and fall back when the REST snapshot fails.
type SnapshotStore interface {
	SaveConversation(conv *models.Conversation) error
	LoadConversations() ([]models.Conversation, error)
	SaveMessages(conversationID string, msgs []models.Message) error
	LoadMessages(conversationID string) ([]models.Message, error)
	DeleteMessage(conversationID, messageID string) error
}

// Archive records every observed message for cross-session history search.
type Archive interface {
	SaveConversation(conv *models.Conversation) error
	SaveMessage(msg *models.Message) error
	DeleteMessage(messageID string) error
}

// Engine wires the socket, the REST boundary, the session store, the
// recorder and the upload pipeline together for one active conversation
// at a time.
type Engine struct {
	socket    *Socket
	rest      *Rest
	uploads   *uploader.Uploader
	rec       *recorder.Recorder
	snapshots SnapshotStore
	archive   Archive

	store  *session.Store
	follow *session.Follow

	mu           sync.Mutex
	conversation *models.Conversation
	epoch        uint64

	// OnEvent, when set, receives every applied mutation for the UI
	// fan-out. Set before Start; not synchronized afterwards.
	OnEvent func(kind string, payload interface{})
}

// NewEngine assembles an engine. snapshots and archive may be nil; the
// engine then runs purely in memory.
func NewEngine(socket *Socket, rest *Rest, uploads *uploader.Uploader, rec *recorder.Recorder, snapshots SnapshotStore, archive Archive) *Engine {
	return &Engine{
		socket:    socket,
		rest:      rest,
		uploads:   uploads,
		rec:       rec,
		snapshots: snapshots,
		archive:   archive,
		store:     session.NewStore(),
		follow:    session.NewFollow(),
	}
}

// Store exposes the session store for read access.
func (e *Engine) Store() *session.Store { return e.store }

// Follow exposes the scroll-follow controller.
func (e *Engine) Follow() *session.Follow { return e.follow }

// Start connects the socket and begins consuming events.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.socket.Connect(ctx); err != nil {
		return err
	}
	go e.pump(e.socket.Events())
	return nil
}

// Reconnect replaces a stale connection and restarts the event pump. The
// caller decides when the connection is stale (typically on view focus).
func (e *Engine) Reconnect(ctx context.Context) error {
	return e.Start(ctx)
}

// Close releases the socket and any active recording session.
func (e *Engine) Close() {
	if e.rec != nil {
		e.rec.Teardown()
	}
	if err := e.socket.Close(); err != nil {
		log.Printf("chat: closing socket: %v", err)
	}
}

// pump applies inbound events until the socket dies.
func (e *Engine) pump(events <-chan Event) {
	for evt := range events {
		e.handleEvent(evt)
	}
	// A Reconnect swaps the channel; only announce the loss if no new
	// connection took over.
	if !e.socket.Connected() {
		e.emit("connection-lost", nil)
	}
}

func (e *Engine) handleEvent(evt Event) {
	switch evt.Kind {
	case EventMessageCreated:
		if evt.Message == nil || !e.store.ApplyCreated(*evt.Message) {
			return
		}
		if e.archive != nil {
			if err := e.archive.SaveMessage(evt.Message); err != nil {
				log.Printf("chat: archiving message %s: %v", evt.Message.ID, err)
			}
		}
		e.saveSnapshot()
		e.emit(EventMessageCreated, *evt.Message)
		// Auto-follow is decided by where the viewport was when the
		// message arrived, not where it ends up afterwards.
		e.follow.OnNewMessage(func() {
			e.emit("scroll-to-bottom", nil)
		})

	case EventMessageUpdated:
		if evt.Message == nil || !e.store.ApplyUpdated(*evt.Message) {
			return
		}
		if e.archive != nil {
			if err := e.archive.SaveMessage(evt.Message); err != nil {
				log.Printf("chat: archiving message %s: %v", evt.Message.ID, err)
			}
		}
		e.saveSnapshot()
		e.emit(EventMessageUpdated, *evt.Message)

	case EventMessageDeleted:
		if !e.store.ApplyDeleted(evt.MessageID) {
			return
		}
		if e.archive != nil {
			if err := e.archive.DeleteMessage(evt.MessageID); err != nil {
				log.Printf("chat: removing archived message %s: %v", evt.MessageID, err)
			}
		}
		e.saveSnapshot()
		e.emit(EventMessageDeleted, map[string]string{"messageId": evt.MessageID})
	}
}

// OpenConversation resolves the submission's conversation, joins its room
// on the existing connection and hydrates the store from the REST
// snapshot. The cached snapshot serves as fallback when the snapshot
// fetch fails.
func (e *Engine) OpenConversation(ctx context.Context, submissionID string) (*models.Conversation, error) {
	conv, err := e.rest.GetOrCreateConversation(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	if err := e.socket.JoinRoom(conv.ID); err != nil {
		// Degraded: the snapshot still renders, live updates resume on
		// the next Reconnect.
		log.Printf("chat: joining room %s: %v", conv.ID, err)
	}

	msgs, err := e.rest.ListMessages(ctx, conv.ID)
	if err != nil {
		log.Printf("chat: loading snapshot for %s: %v", conv.ID, err)
		if e.snapshots != nil {
			if cached, cerr := e.snapshots.LoadMessages(conv.ID); cerr == nil {
				msgs = cached
			}
		}
	}

	e.mu.Lock()
	e.conversation = conv
	e.epoch++
	e.mu.Unlock()

	e.store.Hydrate(conv.ID, msgs)
	e.follow.OnConversationSwitch(nil)

	if e.snapshots != nil {
		if err := e.snapshots.SaveConversation(conv); err != nil {
			log.Printf("chat: caching conversation %s: %v", conv.ID, err)
		}
	}
	if e.archive != nil {
		if err := e.archive.SaveConversation(conv); err != nil {
			log.Printf("chat: archiving conversation %s: %v", conv.ID, err)
		}
	}
	e.saveSnapshot()

	e.emit("conversation-opened", conv)
	return conv, nil
}

// Send issues a text (and/or reply) message. The reply target is cleared
// only after the create succeeds, so a failed send can be retried with the
// reply intact.
func (e *Engine) Send(ctx context.Context, body string) (*models.Message, error) {
	conv, epoch := e.current()
	if conv == nil {
		return nil, ErrNoConversation
	}

	reply := e.store.ReplyTarget()
	if body == "" && reply == nil {
		return nil, ErrEmptyMessage
	}

	req := models.SendMessageRequest{
		ConversationID: conv.ID,
		Body:           body,
	}
	if reply != nil {
		req.ReplyTo = &models.ReplyRef{
			MessageID: reply.ID,
			Sender:    reply.Author.Name,
			Snippet:   utils.Snippet(reply.Body, replySnippetLen),
		}
	}

	msg, err := e.rest.CreateMessage(ctx, req)
	if err != nil {
		return nil, err
	}

	if !e.stale(epoch) {
		e.store.ClearReplyTarget()
	}
	e.hintSend(conv.ID, msg)
	return msg, nil
}

// SendAttachment uploads a file and creates the message carrying its
// durable reference. If the user switched conversations while the upload
// was pending, the result is discarded instead of landing in the wrong
// room.
func (e *Engine) SendAttachment(ctx context.Context, filename, mimeType string, data []byte) (*models.Message, error) {
	conv, epoch := e.current()
	if conv == nil {
		return nil, ErrNoConversation
	}

	ref, err := e.uploads.UploadAttachment(ctx, filename, mimeType, data)
	if err != nil {
		return nil, err
	}

	if e.stale(epoch) {
		return nil, ErrStaleConversation
	}

	req := models.SendMessageRequest{
		ConversationID: conv.ID,
		Attachment: &models.Attachment{
			URL:      ref.URL,
			Name:     filename,
			MimeType: mimeType,
			Size:     int64(len(data)),
		},
	}
	msg, err := e.rest.CreateMessage(ctx, req)
	if err != nil {
		return nil, err
	}
	e.hintSend(conv.ID, msg)
	return msg, nil
}

// SendVoice uploads a finished clip and creates the voice-note message.
// The clip is not retained on failure; the user re-records.
func (e *Engine) SendVoice(ctx context.Context, clip *recorder.Clip) (*models.Message, error) {
	conv, epoch := e.current()
	if conv == nil {
		return nil, ErrNoConversation
	}

	ref, err := e.uploads.UploadVoice(ctx, clip.Filename, clip.MimeType, clip.Duration, clip.Data)
	if err != nil {
		return nil, err
	}

	if e.stale(epoch) {
		return nil, ErrStaleConversation
	}

	req := models.SendMessageRequest{
		ConversationID: conv.ID,
		Voice: &models.VoiceNote{
			URL:      ref.URL,
			Duration: clip.Duration,
			Name:     clip.Filename,
		},
	}
	msg, err := e.rest.CreateMessage(ctx, req)
	if err != nil {
		return nil, err
	}
	e.hintSend(conv.ID, msg)
	return msg, nil
}

// DeleteMessage removes a message through the durable path, then hints the
// room. The local cache drops the entry when the deletion echoes back.
func (e *Engine) DeleteMessage(ctx context.Context, messageID string) error {
	conv, _ := e.current()
	if conv == nil {
		return ErrNoConversation
	}
	if err := e.rest.DeleteMessage(ctx, messageID); err != nil {
		return err
	}
	if err := e.socket.EmitDelete(conv.ID, messageID); err != nil {
		log.Printf("chat: delete hint for %s: %v", messageID, err)
	}
	return nil
}

// StartRecording begins a voice capture session.
func (e *Engine) StartRecording(ctx context.Context) error {
	return e.rec.Start(ctx)
}

// CancelRecording discards the active capture. No network call occurs.
func (e *Engine) CancelRecording() error {
	return e.rec.Cancel()
}

// FinishRecording commits the capture and sends the clip as a voice note.
// A capture failing the length guard is discarded and reported as
// recorder.ErrTooShort.
func (e *Engine) FinishRecording(ctx context.Context) (*models.Message, error) {
	clip, err := e.rec.Stop()
	if err != nil {
		return nil, err
	}
	return e.SendVoice(ctx, clip)
}

// RecordingState reports the capture state machine's current state.
func (e *Engine) RecordingState() recorder.State { return e.rec.State() }

// RecordingElapsed reports the seconds captured so far.
func (e *Engine) RecordingElapsed() int { return e.rec.Elapsed() }

// SetReplyTarget marks a cached message as the target of the next send.
func (e *Engine) SetReplyTarget(messageID string) error {
	msg, ok := e.store.Find(messageID)
	if !ok {
		return fmt.Errorf("chat: message %s not in current conversation", messageID)
	}
	e.store.SetReplyTarget(&msg)
	return nil
}

// ClearReplyTarget dismisses the pending reply target.
func (e *Engine) ClearReplyTarget() { e.store.ClearReplyTarget() }

// Messages returns the current conversation's cached messages.
func (e *Engine) Messages() []models.Message { return e.store.Messages() }

// Search filters the cached messages by body or author name.
func (e *Engine) Search(query string) []models.Message { return e.store.Search(query) }

// ObserveScroll records the viewport state reported by the UI.
func (e *Engine) ObserveScroll(scrollTop, scrollHeight, clientHeight float64) {
	e.follow.Observe(scrollTop, scrollHeight, clientHeight)
}

// ShouldAutoFollow reports whether new messages should scroll the view.
func (e *Engine) ShouldAutoFollow() bool { return e.follow.ShouldAutoFollow() }

// Conversations lists the locally cached conversations for the picker
// view. Empty until at least one conversation has been opened.
func (e *Engine) Conversations() []models.Conversation {
	if e.snapshots == nil {
		return nil
	}
	convs, err := e.snapshots.LoadConversations()
	if err != nil {
		log.Printf("chat: listing cached conversations: %v", err)
		return nil
	}
	return convs
}

// Conversation returns the currently open conversation, or nil.
func (e *Engine) Conversation() *models.Conversation {
	conv, _ := e.current()
	return conv
}

func (e *Engine) current() (*models.Conversation, uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conversation, e.epoch
}

// stale reports whether the active conversation changed since the given
// epoch was captured. Checked at every write-back point after a
// suspension (upload, REST round-trip).
func (e *Engine) stale(epoch uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epoch != epoch
}

func (e *Engine) hintSend(conversationID string, msg *models.Message) {
	if msg == nil {
		return
	}
	if err := e.socket.EmitSend(conversationID, *msg); err != nil {
		log.Printf("chat: send hint for %s: %v", msg.ID, err)
	}
}

func (e *Engine) saveSnapshot() {
	if e.snapshots == nil {
		return
	}
	id := e.store.ConversationID()
	if id == "" {
		return
	}
	if err := e.snapshots.SaveMessages(id, e.store.Messages()); err != nil {
		log.Printf("chat: caching messages for %s: %v", id, err)
	}
}

func (e *Engine) emit(kind string, payload interface{}) {
	if e.OnEvent != nil {
		e.OnEvent(kind, payload)
	}
}
