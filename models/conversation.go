package models

import "time"

// Conversation is the client's projection of a server-owned conversation.
// One conversation exists per submission (work item); the server creates it
// lazily on first access.
type Conversation struct {
	ID           string    `json:"id"`
	SubmissionID string    `json:"submissionId"`
	Participants []Author  `json:"participants,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	LastMessage  *Message  `json:"lastMessage,omitempty"`
}
