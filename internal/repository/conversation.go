package repository

import (
	"context"

	"helpdesk-backend/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

type ConversationRepository struct {
	pool *pgxpool.Pool
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

func (r *ConversationRepository) Create(ctx context.Context, userID, subject string) (*model.Conversation, error) {
	c := &model.Conversation{}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO conversations (user_id, subject)
		VALUES ($1, $2)
		RETURNING id, user_id, subject, is_read, created_at, updated_at
	`, userID, subject).Scan(&c.ID, &c.UserID, &c.Subject, &c.IsRead, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	c := &model.Conversation{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, subject, is_read, created_at, updated_at
		FROM conversations WHERE id = $1
	`, id).Scan(&c.ID, &c.UserID, &c.Subject, &c.IsRead, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Touch bumps updated_at so conversation lists sort by latest activity.
func (r *ConversationRepository) Touch(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE conversations SET updated_at = NOW() WHERE id = $1`, id)
	return err
}

func (r *ConversationRepository) SetRead(ctx context.Context, id string, read bool) error {
	_, err := r.pool.Exec(ctx, `UPDATE conversations SET is_read = $2 WHERE id = $1`, id, read)
	return err
}

// ListByUser returns the user's conversations, newest activity first.
func (r *ConversationRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.ConversationSummary, error) {
	return r.list(ctx, `
		SELECT c.id, c.user_id, c.subject, c.is_read, c.created_at, c.updated_at, u.username,
		       COALESCE(m.text, ''), COALESCE(m.created_at, c.created_at)
		FROM conversations c
		JOIN users u ON u.id = c.user_id
		LEFT JOIN LATERAL (
			SELECT text, created_at FROM messages
			WHERE conversation_id = c.id AND status <> 'deleted'
			ORDER BY created_at DESC LIMIT 1
		) m ON TRUE
		WHERE c.user_id = $1
		ORDER BY c.updated_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
}

// ListAll is the admin view across every user.
func (r *ConversationRepository) ListAll(ctx context.Context, limit, offset int) ([]model.ConversationSummary, error) {
	return r.list(ctx, `
		SELECT c.id, c.user_id, c.subject, c.is_read, c.created_at, c.updated_at, u.username,
		       COALESCE(m.text, ''), COALESCE(m.created_at, c.created_at)
		FROM conversations c
		JOIN users u ON u.id = c.user_id
		LEFT JOIN LATERAL (
			SELECT text, created_at FROM messages
			WHERE conversation_id = c.id AND status <> 'deleted'
			ORDER BY created_at DESC LIMIT 1
		) m ON TRUE
		ORDER BY c.updated_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
}

func (r *ConversationRepository) list(ctx context.Context, query string, args ...any) ([]model.ConversationSummary, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ConversationSummary
	for rows.Next() {
		var s model.ConversationSummary
		if err := rows.Scan(&s.ID, &s.UserID, &s.Subject, &s.IsRead, &s.CreatedAt, &s.UpdatedAt,
			&s.Username, &s.LastMessage, &s.LastAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delete removes the conversation; messages go with it via ON DELETE
// CASCADE.
func (r *ConversationRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	return err
}

// DeleteAllForUser removes every conversation owned by the user.
// Returns the number of conversations removed.
func (r *ConversationRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM conversations WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
