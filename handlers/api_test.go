package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"taskchat-client/chat"
	"taskchat-client/models"
	"taskchat-client/recorder"
	"taskchat-client/session"
	"taskchat-client/uploader"
)

// fakeEngine satisfies ChatEngine with scripted responses.
type fakeEngine struct {
	follow *session.Follow

	sendErr    error
	sentBody   string
	attachment struct {
		filename string
		mimeType string
		size     int
	}
	attachErr error
	stopErr   error
	recState  recorder.State
}

var _ ChatEngine = (*fakeEngine)(nil)

func newFakeEngine() *fakeEngine {
	return &fakeEngine{follow: session.NewFollow()}
}

func (f *fakeEngine) OpenConversation(ctx context.Context, submissionID string) (*models.Conversation, error) {
	return &models.Conversation{ID: "conv-" + submissionID, SubmissionID: submissionID}, nil
}
func (f *fakeEngine) Conversation() *models.Conversation   { return nil }
func (f *fakeEngine) Conversations() []models.Conversation { return nil }
func (f *fakeEngine) Messages() []models.Message           { return nil }
func (f *fakeEngine) Search(string) []models.Message       { return nil }

func (f *fakeEngine) Send(ctx context.Context, body string) (*models.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sentBody = body
	return &models.Message{ID: "srv-1", Body: body}, nil
}

func (f *fakeEngine) SendAttachment(ctx context.Context, filename, mimeType string, data []byte) (*models.Message, error) {
	if f.attachErr != nil {
		return nil, f.attachErr
	}
	f.attachment.filename = filename
	f.attachment.mimeType = mimeType
	f.attachment.size = len(data)
	return &models.Message{ID: "srv-2"}, nil
}

func (f *fakeEngine) SendVoice(ctx context.Context, clip *recorder.Clip) (*models.Message, error) {
	return &models.Message{ID: "srv-3", Voice: &models.VoiceNote{Duration: clip.Duration}}, nil
}

func (f *fakeEngine) DeleteMessage(ctx context.Context, messageID string) error { return nil }
func (f *fakeEngine) SetReplyTarget(messageID string) error                     { return nil }
func (f *fakeEngine) ClearReplyTarget()                                         {}
func (f *fakeEngine) StartRecording(ctx context.Context) error                  { return nil }
func (f *fakeEngine) CancelRecording() error                                    { return nil }
func (f *fakeEngine) FinishRecording(ctx context.Context) (*models.Message, error) {
	if f.stopErr != nil {
		return nil, f.stopErr
	}
	return &models.Message{ID: "srv-4"}, nil
}
func (f *fakeEngine) RecordingState() recorder.State { return f.recState }
func (f *fakeEngine) RecordingElapsed() int          { return 0 }

func (f *fakeEngine) ObserveScroll(top, height, client float64) {
	f.follow.Observe(top, height, client)
}

func (f *fakeEngine) ShouldAutoFollow() bool              { return f.follow.ShouldAutoFollow() }
func (f *fakeEngine) Reconnect(ctx context.Context) error { return nil }

func newTestRouter(engine ChatEngine) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	hub := NewHub()
	SetupAPIRoutes(router, engine, hub, NewAlertService(hub), nil)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestScrollEndpointReportsFollow(t *testing.T) {
	engine := newFakeEngine()
	router := newTestRouter(engine)

	w := doJSON(t, router, http.MethodPost, "/api/scroll", map[string]float64{
		"scrollTop": 200, "scrollHeight": 2000, "clientHeight": 600,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Follow bool `json:"follow"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Follow {
		t.Fatal("follow = true while scrolled into history")
	}

	w = doJSON(t, router, http.MethodPost, "/api/scroll", map[string]float64{
		"scrollTop": 1400, "scrollHeight": 2000, "clientHeight": 600,
	})
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Follow {
		t.Fatal("follow = false while at bottom")
	}
}

func TestSendEndpointErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"empty message", chat.ErrEmptyMessage, http.StatusBadRequest},
		{"no conversation", chat.ErrNoConversation, http.StatusBadRequest},
		{"upstream down", context.DeadlineExceeded, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newFakeEngine()
			engine.sendErr = tt.err
			router := newTestRouter(engine)

			w := doJSON(t, router, http.MethodPost, "/api/messages/send", map[string]string{"body": "x"})
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func postFile(t *testing.T, router *gin.Engine, path, filename, mimeType string, data []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	part.Write(data)
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAttachmentEndpoint(t *testing.T) {
	engine := newFakeEngine()
	router := newTestRouter(engine)

	w := postFile(t, router, "/api/messages/attachment", "shot.png", "image/png", []byte("pngdata"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if engine.attachment.filename != "shot.png" || engine.attachment.size != 7 {
		t.Fatalf("engine saw %+v", engine.attachment)
	}

	// Typed policy rejections surface as 400, staleness as 409.
	engine.attachErr = uploader.ErrUnsupportedType
	if w := postFile(t, router, "/api/messages/attachment", "doc.pdf", "application/pdf", []byte("x"), nil); w.Code != http.StatusBadRequest {
		t.Fatalf("unsupported type status = %d, want 400", w.Code)
	}
	engine.attachErr = chat.ErrStaleConversation
	if w := postFile(t, router, "/api/messages/attachment", "shot.png", "image/png", []byte("x"), nil); w.Code != http.StatusConflict {
		t.Fatalf("stale status = %d, want 409", w.Code)
	}

	// Missing file part.
	w = doJSON(t, router, http.MethodPost, "/api/messages/attachment", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing file status = %d, want 400", w.Code)
	}
}

func TestVoiceEndpointRequiresDuration(t *testing.T) {
	engine := newFakeEngine()
	router := newTestRouter(engine)

	w := postFile(t, router, "/api/messages/voice", "v.webm", "audio/webm", []byte("opus"), nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without duration", w.Code)
	}

	w = postFile(t, router, "/api/messages/voice", "v.webm", "audio/webm", []byte("opus"), map[string]string{"duration": "6"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var msg models.Message
	json.Unmarshal(w.Body.Bytes(), &msg)
	if msg.Voice == nil || msg.Voice.Duration != 6 {
		t.Fatalf("voice = %+v", msg.Voice)
	}
}

func TestRecordingStopTooShort(t *testing.T) {
	engine := newFakeEngine()
	engine.stopErr = recorder.ErrTooShort
	router := newTestRouter(engine)

	w := doJSON(t, router, http.MethodPost, "/api/recording/stop", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "too short") {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestOpenConversationEndpoint(t *testing.T) {
	engine := newFakeEngine()
	router := newTestRouter(engine)

	w := doJSON(t, router, http.MethodPost, "/api/conversations/open", map[string]string{"submissionId": "sub-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var conv models.Conversation
	json.Unmarshal(w.Body.Bytes(), &conv)
	if conv.ID != "conv-sub-1" {
		t.Fatalf("conv = %+v", conv)
	}

	if w := doJSON(t, router, http.MethodPost, "/api/conversations/open", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing submissionId status = %d, want 400", w.Code)
	}
}

// fakeArchive satisfies ArchiveSearcher from an in-memory history.
type fakeArchive struct {
	history map[string][]models.Message
}

func (a *fakeArchive) SearchMessages(query string) ([]models.Message, error) {
	var out []models.Message
	for _, msgs := range a.history {
		for _, msg := range msgs {
			if strings.Contains(msg.Body, query) {
				out = append(out, msg)
			}
		}
	}
	return out, nil
}

func (a *fakeArchive) LoadConversationMessages(conversationID string) ([]models.Message, error) {
	return a.history[conversationID], nil
}

func TestArchiveConversationHistoryEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	hub := NewHub()
	archive := &fakeArchive{history: map[string][]models.Message{
		"c1": {{ID: "m1", ConversationID: "c1", Body: "hello"}, {ID: "m2", ConversationID: "c1", Body: "bye"}},
	}}
	SetupAPIRoutes(router, newFakeEngine(), hub, NewAlertService(hub), archive)

	w := doJSON(t, router, http.MethodGet, "/api/archive/conversations/c1/messages", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var msgs []models.Message
	json.Unmarshal(w.Body.Bytes(), &msgs)
	if len(msgs) != 2 || msgs[0].ID != "m1" {
		t.Fatalf("messages = %+v, want archived pair", msgs)
	}

	if w := doJSON(t, router, http.MethodGet, "/api/archive/conversations/other/messages", nil); w.Code != http.StatusOK {
		t.Fatalf("unknown conversation status = %d, want 200", w.Code)
	}
}

func TestStatusEndpointCountsClients(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	hub := NewHub()
	SetupAPIRoutes(router, newFakeEngine(), hub, NewAlertService(hub), nil)

	srv := httptest.NewServer(router)
	defer srv.Close()

	status := func() (clients int) {
		w := doJSON(t, router, http.MethodGet, "/api/status", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var resp struct {
			WSClients        int  `json:"wsClients"`
			ConversationOpen bool `json:"conversationOpen"`
		}
		json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.ConversationOpen {
			t.Fatal("conversationOpen = true with no conversation")
		}
		return resp.WSClients
	}

	if n := status(); n != 0 {
		t.Fatalf("wsClients = %d before any connection", n)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dialing hub: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for status() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never counted")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
