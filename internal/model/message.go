package model

import "time"

// Message is a direct message between two users, optionally about a
// dataset or a request.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Content    string    `json:"content"`
	DatasetID  string    `json:"datasetId,omitempty"`
	RequestID  string    `json:"requestId,omitempty"`
	IsRead     bool      `json:"isRead"`
	CreatedAt  time.Time `json:"createdAt"`
}

type NewMessage struct {
	ReceiverID string `json:"receiverId" validate:"required"`
	Content    string `json:"content" validate:"required,max=10000"`
	DatasetID  string `json:"datasetId,omitempty"`
	RequestID  string `json:"requestId,omitempty"`
}

// Conversation is the latest message exchanged with another user.
type Conversation struct {
	Message
	OtherUser *UserSummary `json:"otherUser"`
}
