package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"helpdesk-backend/internal/model"
)

// Identity is the resolved sender of a realtime event: either an
// authenticated user or an anonymous widget guest, never both.
type Identity struct {
	UserID  string
	GuestID string
	Name    string
	Role    string
}

func (i Identity) IsAdmin() bool {
	return i.Role == model.RoleAdmin
}

// MessageStore is the persistence surface of the lifecycle engine.
type MessageStore interface {
	Insert(ctx context.Context, m *model.Message) (*model.Message, error)
	GetByID(ctx context.Context, id string) (*model.Message, error)
	UpdateText(ctx context.Context, id, text string) (*model.Message, error)
	SoftDelete(ctx context.Context, id string) error
	MarkRead(ctx context.Context, conversationID string, senderIsAdmin bool) (int64, error)
	CountUnread(ctx context.Context, conversationID string, senderIsAdmin bool) (int, error)
	CountUnreadTotal(ctx context.Context, senderIsAdmin bool) (int, error)
	History(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
}

// ConversationStore is the conversation persistence surface.
type ConversationStore interface {
	Create(ctx context.Context, userID, subject string) (*model.Conversation, error)
	GetByID(ctx context.Context, id string) (*model.Conversation, error)
	Touch(ctx context.Context, id string) error
	SetRead(ctx context.Context, id string, read bool) error
	Delete(ctx context.Context, id string) error
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
}

// ChatService is the message lifecycle engine: send, edit, soft-delete,
// each followed by room broadcast, unread recomputation, and (for
// sends) notification fan-out.
type ChatService struct {
	messages      MessageStore
	conversations ConversationStore
	users         UserStore
	push          Broadcaster
	notifier      *NotificationService
}

func NewChatService(messages MessageStore, conversations ConversationStore, users UserStore, push Broadcaster, notifier *NotificationService) *ChatService {
	return &ChatService{
		messages:      messages,
		conversations: conversations,
		users:         users,
		push:          push,
		notifier:      notifier,
	}
}

// Send persists and broadcasts a message. Empty or whitespace-only
// text is a silent no-op: logged, nothing surfaced to the caller.
func (s *ChatService) Send(ctx context.Context, room, text string, sender Identity) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		log.Printf("[Chat] dropping empty message from %s in %s", sender.Name, room)
		return nil, nil
	}

	conv, err := s.conversations.GetByID(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", room, err)
	}

	m := &model.Message{
		ConversationID: room,
		Text:           text,
		SenderIsAdmin:  sender.IsAdmin(),
		SenderName:     sender.Name,
	}
	if sender.UserID != "" {
		m.UserID = &sender.UserID
	} else {
		m.GuestID = &sender.GuestID
	}

	msg, err := s.messages.Insert(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}
	if err := s.conversations.Touch(ctx, room); err != nil {
		log.Printf("[Chat] touch conversation %s failed: %v", room, err)
	}
	// New inbound traffic reopens the admin-side read flag.
	if !msg.SenderIsAdmin {
		if err := s.conversations.SetRead(ctx, room, false); err != nil {
			log.Printf("[Chat] unset read flag on %s failed: %v", room, err)
		}
	}

	s.push.ToRoom(room, model.Marshal(model.EvReceiveMessage, msg))
	s.pushUnread(ctx, conv)

	if err := s.fanOut(ctx, conv, msg); err != nil {
		log.Printf("[Chat] fan-out for message %s failed: %v", msg.ID, err)
	}
	return msg, nil
}

// Edit mutates the text if the actor is the original sender or an
// admin. Unauthorized attempts and already-deleted targets are silent
// no-ops so the wire never leaks existence or ownership. The broadcast
// goes to the message's own conversation; whatever room the client
// claims is never trusted.
func (s *ChatService) Edit(ctx context.Context, messageID, text string, actor Identity) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		log.Printf("[Chat] dropping empty edit of %s from %s", messageID, actor.Name)
		return nil, nil
	}

	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("load message %s: %w", messageID, err)
	}
	if !s.mayModify(msg, actor) {
		log.Printf("[Chat] unauthorized edit of %s by %s", messageID, actor.Name)
		return nil, nil
	}
	if !model.CanTransition(msg.Status, model.MessageEdited) {
		log.Printf("[Chat] edit of %s rejected: status %s is terminal", messageID, msg.Status)
		return nil, nil
	}

	updated, err := s.messages.UpdateText(ctx, messageID, text)
	if err != nil {
		return nil, fmt.Errorf("update message %s: %w", messageID, err)
	}

	s.push.ToRoom(msg.ConversationID, model.Marshal(model.EvMessageEdited, updated))
	return updated, nil
}

// Delete soft-deletes under the same authorization rule as Edit. The
// broadcast carries only the identifier so deleted content is never
// transmitted a second time, and it targets the message's own
// conversation like Edit does.
func (s *ChatService) Delete(ctx context.Context, messageID string, actor Identity) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("load message %s: %w", messageID, err)
	}
	if !s.mayModify(msg, actor) {
		log.Printf("[Chat] unauthorized delete of %s by %s", messageID, actor.Name)
		return nil
	}
	if !model.CanTransition(msg.Status, model.MessageDeleted) {
		log.Printf("[Chat] delete of %s rejected: already deleted", messageID)
		return nil
	}

	if err := s.messages.SoftDelete(ctx, messageID); err != nil {
		return fmt.Errorf("delete message %s: %w", messageID, err)
	}

	s.push.ToRoom(msg.ConversationID, model.Marshal(model.EvMessageDeleted, model.MessageDeletedPayload{
		MessageID: messageID,
		Room:      msg.ConversationID,
	}))

	// Deleting an unread message can change badges.
	if conv, err := s.conversations.GetByID(ctx, msg.ConversationID); err == nil {
		s.pushUnread(ctx, conv)
	}
	return nil
}

// History is the room-entry fetch; excludes deleted messages so they
// never reappear after a resync.
func (s *ChatService) History(ctx context.Context, room string, limit int) ([]model.Message, error) {
	return s.messages.History(ctx, room, limit)
}

// CanAccess reports whether the actor may enter a room. Admins enter
// any conversation, owners their own, and the lobby is open to all.
// Guests hold no account, so a conversation id works as a capability
// for them: the widget only ever hands a guest the id of the
// conversation opened for that guest.
func (s *ChatService) CanAccess(ctx context.Context, room string, actor Identity) bool {
	if room == LobbyRoom {
		return true
	}
	if actor.IsAdmin() {
		return true
	}
	conv, err := s.conversations.GetByID(ctx, room)
	if err != nil {
		log.Printf("[Chat] access check for %s failed: %v", room, err)
		return false
	}
	if actor.UserID != "" {
		return conv.UserID == actor.UserID
	}
	return actor.GuestID != ""
}

// mayModify: original sender or any admin. Sender match honors the
// user/guest exclusivity split.
func (s *ChatService) mayModify(msg *model.Message, actor Identity) bool {
	if actor.IsAdmin() {
		return true
	}
	if msg.UserID != nil && actor.UserID != "" {
		return *msg.UserID == actor.UserID
	}
	if msg.GuestID != nil && actor.GuestID != "" {
		return *msg.GuestID == actor.GuestID
	}
	return false
}

// pushUnread recomputes and pushes the two badge numbers: the room
// owner's per-conversation count of admin-authored unread, and the
// staff global count of user-authored unread. Always fresh queries.
func (s *ChatService) pushUnread(ctx context.Context, conv *model.Conversation) {
	if count, err := s.messages.CountUnread(ctx, conv.ID, true); err == nil {
		s.push.ToUser(conv.UserID, model.Marshal(model.EvUnreadCount, model.UnreadCountPayload{
			Room:  conv.ID,
			Count: count,
		}))
	} else {
		log.Printf("[Chat] unread count for %s failed: %v", conv.ID, err)
	}

	if total, err := s.messages.CountUnreadTotal(ctx, false); err == nil {
		s.push.ToRole(model.RoleAdmin, model.Marshal(model.EvAdminUnreadCount, model.UnreadCountPayload{
			Count: total,
		}))
	} else {
		log.Printf("[Chat] admin unread total failed: %v", err)
	}
}

// fanOut produces the dual-role live-chat notification: one for the
// conversation owner, one per admin.
func (s *ChatService) fanOut(ctx context.Context, conv *model.Conversation, msg *model.Message) error {
	owner, err := s.users.GetByID(ctx, conv.UserID)
	if err != nil {
		return fmt.Errorf("resolve owner of %s: %w", conv.ID, err)
	}

	preview := msg.Text
	// Truncate on a rune boundary so multibyte text stays valid UTF-8.
	if runes := []rune(preview); len(runes) > 120 {
		preview = string(runes[:120]) + "…"
	}
	return s.notifier.NotifyBothRoles(ctx, owner, model.NotificationKind{
		Type:  model.TypeLiveChat,
		Event: model.EventMessage,
	}, TemplateData{
		Username:       msg.SenderName,
		Preview:        preview,
		ConversationID: conv.ID,
	})
}
