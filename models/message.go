package models

import "time"

// Author identifies the user that produced a message.
type Author struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Attachment is a durable file reference carried by a message.
type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// VoiceNote is a durable reference to an uploaded audio clip.
type VoiceNote struct {
	URL      string `json:"url"`
	Duration int    `json:"duration"` // seconds
	Name     string `json:"name,omitempty"`
}

// ReplyRef points at an earlier message. It carries enough denormalized
// data to render the quoted message without a follow-up fetch.
type ReplyRef struct {
	MessageID string `json:"messageId"`
	Sender    string `json:"sender"`
	Snippet   string `json:"snippet,omitempty"`
}

// Message represents one chat message in a conversation.
// Exactly one of Body, Attachment or Voice is set; Body may additionally
// carry a ReplyTo pointer.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversationId"`
	Author         Author      `json:"author"`
	Body           string      `json:"body,omitempty"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	Voice          *VoiceNote  `json:"voice,omitempty"`
	ReplyTo        *ReplyRef   `json:"replyTo,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}
