package service

import (
	"context"
	"fmt"
	"log"

	"helpdesk-backend/internal/model"
)

// UnreadService is the read tracker: it flips sent messages to read
// and recomputes badges with fresh count queries, never incremental
// counters, so concurrent sends cannot drift the numbers.
type UnreadService struct {
	messages      MessageStore
	conversations ConversationStore
	push          Broadcaster
}

func NewUnreadService(messages MessageStore, conversations ConversationStore, push Broadcaster) *UnreadService {
	return &UnreadService{messages: messages, conversations: conversations, push: push}
}

// MarkRead transitions every sent message in the room authored by the
// opposing role to read, then recomputes and pushes the affected
// badges. Idempotent: a second call flips nothing and returns the same
// counts, so clients can always reconcile stale local state.
func (s *UnreadService) MarkRead(ctx context.Context, room string, viewer Identity) (int, error) {
	conv, err := s.conversations.GetByID(ctx, room)
	if err != nil {
		return 0, fmt.Errorf("load conversation %s: %w", room, err)
	}

	// The viewer consumes the opposing side's messages.
	opposingIsAdmin := !viewer.IsAdmin()

	flipped, err := s.messages.MarkRead(ctx, room, opposingIsAdmin)
	if err != nil {
		return 0, fmt.Errorf("mark read %s: %w", room, err)
	}
	if flipped > 0 && viewer.IsAdmin() {
		if err := s.conversations.SetRead(ctx, room, true); err != nil {
			log.Printf("[Unread] set read flag on %s failed: %v", room, err)
		}
	}

	// (a) viewer's remaining count in this room, always returned even
	// when nothing was flipped.
	remaining, err := s.messages.CountUnread(ctx, room, opposingIsAdmin)
	if err != nil {
		return 0, fmt.Errorf("count unread %s: %w", room, err)
	}

	// (b) refreshed badges for both sides.
	s.pushBadges(ctx, conv, viewer, remaining)
	return remaining, nil
}

func (s *UnreadService) pushBadges(ctx context.Context, conv *model.Conversation, viewer Identity, viewerRemaining int) {
	// Owner's per-room badge (admin-authored unread).
	if count, err := s.messages.CountUnread(ctx, conv.ID, true); err == nil {
		s.push.ToUser(conv.UserID, model.Marshal(model.EvUnreadCount, model.UnreadCountPayload{
			Room:  conv.ID,
			Count: count,
		}))
	} else {
		log.Printf("[Unread] owner badge for %s failed: %v", conv.ID, err)
	}

	// Staff global badge (user-authored unread across all rooms).
	if total, err := s.messages.CountUnreadTotal(ctx, false); err == nil {
		s.push.ToRole(model.RoleAdmin, model.Marshal(model.EvAdminUnreadCount, model.UnreadCountPayload{
			Count: total,
		}))
	} else {
		log.Printf("[Unread] admin badge failed: %v", err)
	}

	// The viewer also gets their own room number pushed, covering
	// other open tabs of the same account.
	if viewer.UserID != "" {
		s.push.ToUser(viewer.UserID, model.Marshal(model.EvUnreadCount, model.UnreadCountPayload{
			Room:  conv.ID,
			Count: viewerRemaining,
		}))
	}
}
