package model

import "time"

// Message statuses. Lifecycle: sent -> edited -> edited|deleted,
// sent -> read, sent -> deleted. Deleted is terminal.
const (
	MessageSent    = "sent"
	MessageEdited  = "edited"
	MessageDeleted = "deleted"
	MessageRead    = "read"
)

// Message is a stored chat message. Exactly one of UserID/GuestID is
// set: authenticated senders carry UserID, anonymous widget visitors
// carry GuestID. SenderIsAdmin is denormalized from the sender's role
// and must stay consistent with it.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	Text           string     `json:"text"`
	Status         string     `json:"status"`
	UserID         *string    `json:"user_id,omitempty"`
	GuestID        *string    `json:"guest_id,omitempty"`
	SenderIsAdmin  bool       `json:"sender_is_admin"`
	SenderName     string     `json:"sender_name"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
}

// CanTransition reports whether a message in the current status may
// move to next. Deleted messages never change again.
func CanTransition(current, next string) bool {
	switch current {
	case MessageSent:
		return next == MessageEdited || next == MessageDeleted || next == MessageRead
	case MessageEdited:
		return next == MessageEdited || next == MessageDeleted
	case MessageRead:
		return next == MessageEdited || next == MessageDeleted
	case MessageDeleted:
		return false
	}
	return false
}
