package model

import "time"

// Conversation is one support thread owned by a single end user.
// Deletion is hard and cascades to messages.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Subject   string    `json:"subject"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationSummary is the list-view row: the conversation plus the
// viewer-facing unread count and last message preview.
type ConversationSummary struct {
	Conversation
	Username    string    `json:"username"`
	UnreadCount int       `json:"unread_count"`
	LastMessage string    `json:"last_message"`
	LastAt      time.Time `json:"last_at"`
}
