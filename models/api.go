package models

// SendMessageRequest is the REST create-message payload. At most one of
// Body, Attachment or Voice is set per request.
type SendMessageRequest struct {
	ConversationID string      `json:"conversationId"`
	Body           string      `json:"body,omitempty"`
	ReplyTo        *ReplyRef   `json:"replyTo,omitempty"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	Voice          *VoiceNote  `json:"voice,omitempty"`
}

// OpenConversationRequest asks the server for the conversation bound to a
// submission, creating it if needed.
type OpenConversationRequest struct {
	SubmissionID string `json:"submissionId"`
}

// UploadResult is the storage service response for a persisted binary.
type UploadResult struct {
	URL      string `json:"url"`
	PublicID string `json:"publicId"`
}
