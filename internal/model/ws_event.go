package model

import "encoding/json"

// WSEvent is the wire envelope for both directions of the realtime
// protocol.
type WSEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Client -> server event types.
const (
	EvJoinRoom      = "join_room"
	EvLeaveRoom     = "leave_room"
	EvSendMessage   = "send_message"
	EvEditMessage   = "edit_message"
	EvDeleteMessage = "delete_message"
	EvMarkRead      = "mark_read"
	EvTyping        = "typing"
	EvPing          = "ping"
)

// Server -> client event types.
const (
	EvReceiveMessage       = "receive_message"
	EvMessageEdited        = "message_edited"
	EvMessageDeleted       = "message_deleted"
	EvRoomUsersUpdate      = "room_users_update"
	EvUnreadCount          = "unread_count"
	EvAdminUnreadCount     = "admin_unread_count"
	EvNotificationReceived = "notification_received"
	EvPong                 = "pong"
)

type JoinRoomPayload struct {
	Room string `json:"room"`
}

type SendMessagePayload struct {
	Room string `json:"room"`
	Text string `json:"text"`
}

type EditMessagePayload struct {
	MessageID string `json:"message_id"`
	Room      string `json:"room"`
	Text      string `json:"text"`
}

type DeleteMessagePayload struct {
	MessageID string `json:"message_id"`
	Room      string `json:"room"`
}

type MarkReadPayload struct {
	Room string `json:"room"`
}

type TypingPayload struct {
	Room     string `json:"room"`
	IsTyping bool   `json:"isTyping"`
	Name     string `json:"name,omitempty"`
	// ConnID identifies the typing connection; display names are not
	// unique, so clients track typing state by this key.
	ConnID string `json:"conn_id,omitempty"`
}

// RoomMember is one entry of a presence snapshot. Ephemeral, never
// persisted.
type RoomMember struct {
	ConnID  string `json:"conn_id"`
	UserID  string `json:"user_id,omitempty"`
	GuestID string `json:"guest_id,omitempty"`
	Name    string `json:"name"`
	Role    string `json:"role"`
}

type RoomUsersPayload struct {
	Room    string       `json:"room"`
	Members []RoomMember `json:"members"`
}

type MessageDeletedPayload struct {
	MessageID string `json:"message_id"`
	Room      string `json:"room"`
}

type UnreadCountPayload struct {
	Room  string `json:"room,omitempty"`
	Count int    `json:"count"`
}

// Marshal wraps data into a WSEvent of the given type. Payload types
// in this package never fail to marshal, so the error is dropped.
func Marshal(eventType string, data any) WSEvent {
	raw, _ := json.Marshal(data)
	return WSEvent{Type: eventType, Data: raw}
}
