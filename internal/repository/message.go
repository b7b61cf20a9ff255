package repository

import (
	"context"
	"errors"

	"helpdesk-backend/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSenderConflict is returned when a message carries both or neither
// of user_id/guest_id. The messages table enforces the same rule with a
// CHECK constraint; validating here keeps the error readable.
var ErrSenderConflict = errors.New("message must have exactly one of user_id or guest_id")

type MessageRepository struct {
	pool *pgxpool.Pool

	// countDeleted keeps soft-deleted messages in unread counts when
	// true. Off by default: deleting a message retroactively removes
	// it from every badge.
	countDeleted bool
}

func NewMessageRepository(pool *pgxpool.Pool, countDeleted bool) *MessageRepository {
	return &MessageRepository{pool: pool, countDeleted: countDeleted}
}

func (r *MessageRepository) Insert(ctx context.Context, m *model.Message) (*model.Message, error) {
	if (m.UserID == nil) == (m.GuestID == nil) {
		return nil, ErrSenderConflict
	}

	out := &model.Message{}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, text, status, user_id, guest_id, sender_is_admin, sender_name)
		VALUES ($1, $2, 'sent', $3, $4, $5, $6)
		RETURNING id, conversation_id, text, status, user_id, guest_id, sender_is_admin, sender_name, created_at, updated_at, read_at
	`, m.ConversationID, m.Text, m.UserID, m.GuestID, m.SenderIsAdmin, m.SenderName).Scan(
		&out.ID, &out.ConversationID, &out.Text, &out.Status, &out.UserID, &out.GuestID,
		&out.SenderIsAdmin, &out.SenderName, &out.CreatedAt, &out.UpdatedAt, &out.ReadAt,
	)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	m := &model.Message{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, conversation_id, text, status, user_id, guest_id, sender_is_admin, sender_name, created_at, updated_at, read_at
		FROM messages WHERE id = $1
	`, id).Scan(
		&m.ID, &m.ConversationID, &m.Text, &m.Status, &m.UserID, &m.GuestID,
		&m.SenderIsAdmin, &m.SenderName, &m.CreatedAt, &m.UpdatedAt, &m.ReadAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateText rewrites the text and marks the message edited. Deleted
// messages are left untouched.
func (r *MessageRepository) UpdateText(ctx context.Context, id, text string) (*model.Message, error) {
	m := &model.Message{}
	err := r.pool.QueryRow(ctx, `
		UPDATE messages
		SET text = $2, status = 'edited', updated_at = NOW()
		WHERE id = $1 AND status <> 'deleted'
		RETURNING id, conversation_id, text, status, user_id, guest_id, sender_is_admin, sender_name, created_at, updated_at, read_at
	`, id, text).Scan(
		&m.ID, &m.ConversationID, &m.Text, &m.Status, &m.UserID, &m.GuestID,
		&m.SenderIsAdmin, &m.SenderName, &m.CreatedAt, &m.UpdatedAt, &m.ReadAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SoftDelete flips the status to deleted. The row stays; history and
// broadcasts exclude it from then on.
func (r *MessageRepository) SoftDelete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE messages SET status = 'deleted', updated_at = NOW()
		WHERE id = $1 AND status <> 'deleted'
	`, id)
	return err
}

// MarkRead flips every sent message in the conversation authored by
// the given side (admin or user) to read, stamping read_at. Returns
// the number of rows flipped; zero on an empty or already-read room.
func (r *MessageRepository) MarkRead(ctx context.Context, conversationID string, senderIsAdmin bool) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE messages SET status = 'read', read_at = NOW()
		WHERE conversation_id = $1 AND status = 'sent' AND sender_is_admin = $2
	`, conversationID, senderIsAdmin)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountUnread is the per-conversation unread count of messages authored
// by the given side. Always a fresh query, never a maintained counter.
// With countDeleted enabled, soft-deleted messages that were never read
// stay in the count.
func (r *MessageRepository) CountUnread(ctx context.Context, conversationID string, senderIsAdmin bool) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE conversation_id = $1 AND sender_is_admin = $2
		  AND (status = 'sent' OR ($3::bool AND status = 'deleted' AND read_at IS NULL))
	`, conversationID, senderIsAdmin, r.countDeleted).Scan(&count)
	return count, err
}

// CountUnreadTotal is the global badge: unread messages authored by the
// given side across all conversations.
func (r *MessageRepository) CountUnreadTotal(ctx context.Context, senderIsAdmin bool) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE sender_is_admin = $1
		  AND (status = 'sent' OR ($2::bool AND status = 'deleted' AND read_at IS NULL))
	`, senderIsAdmin, r.countDeleted).Scan(&count)
	return count, err
}

// History returns the newest N non-deleted messages of a conversation
// in chronological order.
func (r *MessageRepository) History(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, text, status, user_id, guest_id, sender_is_admin, sender_name, created_at, updated_at, read_at
		FROM messages
		WHERE conversation_id = $1 AND status <> 'deleted'
		ORDER BY created_at DESC
		LIMIT $2
	`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Text, &m.Status, &m.UserID, &m.GuestID,
			&m.SenderIsAdmin, &m.SenderName, &m.CreatedAt, &m.UpdatedAt, &m.ReadAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse for chronological order (oldest first)
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
