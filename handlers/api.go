package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskchat-client/chat"
	"taskchat-client/models"
	"taskchat-client/recorder"
	"taskchat-client/uploader"
)

// ChatEngine is the engine surface the API depends on.
type ChatEngine interface {
	OpenConversation(ctx context.Context, submissionID string) (*models.Conversation, error)
	Conversation() *models.Conversation
	Conversations() []models.Conversation
	Messages() []models.Message
	Search(query string) []models.Message
	Send(ctx context.Context, body string) (*models.Message, error)
	SendAttachment(ctx context.Context, filename, mimeType string, data []byte) (*models.Message, error)
	SendVoice(ctx context.Context, clip *recorder.Clip) (*models.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
	SetReplyTarget(messageID string) error
	ClearReplyTarget()
	StartRecording(ctx context.Context) error
	CancelRecording() error
	FinishRecording(ctx context.Context) (*models.Message, error)
	RecordingState() recorder.State
	RecordingElapsed() int
	ObserveScroll(scrollTop, scrollHeight, clientHeight float64)
	ShouldAutoFollow() bool
	Reconnect(ctx context.Context) error
}

// ArchiveSearcher is the cross-session history surface.
type ArchiveSearcher interface {
	SearchMessages(query string) ([]models.Message, error)
	LoadConversationMessages(conversationID string) ([]models.Message, error)
}

// SetupAPIRoutes mounts the UI-facing API on the router.
func SetupAPIRoutes(router *gin.Engine, engine ChatEngine, hub *Hub, alerts *AlertService, archive ArchiveSearcher) {
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	router.GET("/ws", hub.HandleWS)

	router.POST("/api/conversations/open", func(c *gin.Context) {
		var req models.OpenConversationRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.SubmissionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "submissionId is required"})
			return
		}
		conv, err := engine.OpenConversation(c.Request.Context(), req.SubmissionID)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, conv)
	})

	router.GET("/api/conversations", func(c *gin.Context) {
		c.JSON(http.StatusOK, engine.Conversations())
	})

	router.GET("/api/conversation", func(c *gin.Context) {
		conv := engine.Conversation()
		if conv == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no conversation open"})
			return
		}
		c.JSON(http.StatusOK, conv)
	})

	router.GET("/api/messages", func(c *gin.Context) {
		c.JSON(http.StatusOK, engine.Messages())
	})

	router.GET("/api/messages/search", func(c *gin.Context) {
		c.JSON(http.StatusOK, engine.Search(c.Query("q")))
	})

	router.GET("/api/archive/search", func(c *gin.Context) {
		if archive == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "archive disabled"})
			return
		}
		msgs, err := archive.SearchMessages(c.Query("q"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, msgs)
	})

	router.GET("/api/archive/conversations/:id/messages", func(c *gin.Context) {
		if archive == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "archive disabled"})
			return
		}
		msgs, err := archive.LoadConversationMessages(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, msgs)
	})

	router.GET("/api/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"wsClients":        hub.ClientCount(),
			"conversationOpen": engine.Conversation() != nil,
		})
	})

	router.POST("/api/messages/send", func(c *gin.Context) {
		var req struct {
			Body string `json:"body"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		msg, err := engine.Send(c.Request.Context(), req.Body)
		if err != nil {
			c.JSON(sendStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, msg)
	})

	router.POST("/api/messages/reply-target", func(c *gin.Context) {
		var req struct {
			MessageID string `json:"messageId"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.MessageID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "messageId is required"})
			return
		}
		if err := engine.SetReplyTarget(req.MessageID); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.DELETE("/api/messages/reply-target", func(c *gin.Context) {
		engine.ClearReplyTarget()
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/api/messages/attachment", func(c *gin.Context) {
		filename, mimeType, data, ok := readUpload(c)
		if !ok {
			return
		}
		msg, err := engine.SendAttachment(c.Request.Context(), filename, mimeType, data)
		if err != nil {
			c.JSON(sendStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, msg)
	})

	router.POST("/api/messages/voice", func(c *gin.Context) {
		filename, mimeType, data, ok := readUpload(c)
		if !ok {
			return
		}
		var form struct {
			Duration int `form:"duration"`
		}
		if err := c.ShouldBind(&form); err != nil || form.Duration <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "duration is required"})
			return
		}
		clip := &recorder.Clip{
			Data:     data,
			Duration: form.Duration,
			MimeType: mimeType,
			Filename: filename,
		}
		msg, err := engine.SendVoice(c.Request.Context(), clip)
		if err != nil {
			c.JSON(sendStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, msg)
	})

	router.DELETE("/api/messages/:id", func(c *gin.Context) {
		if err := engine.DeleteMessage(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(sendStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/api/recording/start", func(c *gin.Context) {
		if err := engine.StartRecording(c.Request.Context()); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, recorder.ErrBusy) {
				status = http.StatusConflict
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"state": engine.RecordingState().String()})
	})

	router.POST("/api/recording/stop", func(c *gin.Context) {
		msg, err := engine.FinishRecording(c.Request.Context())
		if err != nil {
			status := sendStatus(err)
			if errors.Is(err, recorder.ErrTooShort) || errors.Is(err, recorder.ErrNotRecording) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, msg)
	})

	router.POST("/api/recording/cancel", func(c *gin.Context) {
		if err := engine.CancelRecording(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"state": engine.RecordingState().String()})
	})

	router.GET("/api/recording", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"state":   engine.RecordingState().String(),
			"elapsed": engine.RecordingElapsed(),
		})
	})

	router.POST("/api/scroll", func(c *gin.Context) {
		var req struct {
			ScrollTop    float64 `json:"scrollTop"`
			ScrollHeight float64 `json:"scrollHeight"`
			ClientHeight float64 `json:"clientHeight"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		engine.ObserveScroll(req.ScrollTop, req.ScrollHeight, req.ClientHeight)
		c.JSON(http.StatusOK, gin.H{"follow": engine.ShouldAutoFollow()})
	})

	router.POST("/api/reconnect", func(c *gin.Context) {
		if err := engine.Reconnect(c.Request.Context()); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "connected"})
	})

	router.GET("/api/alerts", func(c *gin.Context) {
		c.JSON(http.StatusOK, alerts.List())
	})

	router.POST("/api/alerts", func(c *gin.Context) {
		var rule Rule
		if err := c.ShouldBindJSON(&rule); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		created, err := alerts.Add(rule)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, created)
	})

	router.DELETE("/api/alerts/:id", func(c *gin.Context) {
		alerts.Delete(c.Param("id"))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// readUpload pulls the multipart file out of the request. Validation
// against the upload policy happens downstream; this only handles the
// transport errors.
func readUpload(c *gin.Context) (filename, mimeType string, data []byte, ok bool) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return "", "", nil, false
	}

	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", "", nil, false
	}
	defer f.Close()

	data, err = io.ReadAll(f)
	if err != nil {
		log.Printf("handlers: reading upload %s: %v", header.Filename, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return "", "", nil, false
	}

	mimeType = header.Header.Get("Content-Type")
	return header.Filename, mimeType, data, true
}

// sendStatus maps engine and policy errors onto HTTP statuses.
func sendStatus(err error) int {
	switch {
	case errors.Is(err, chat.ErrNoConversation),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, uploader.ErrPayloadTooLarge),
		errors.Is(err, uploader.ErrUnsupportedType),
		errors.Is(err, uploader.ErrEmptyPayload):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrStaleConversation):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}
