package repository

import (
	"context"

	"helpdesk-backend/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	u := &model.User{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, username, email, role, email_notifications, created_at
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.EmailNotifications, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetAdmins returns every account holding the admin role. The fan-out
// pipeline resolves recipients through this instead of a fixed admin
// id so multiple admins all receive staff notifications.
func (r *UserRepository) GetAdmins(ctx context.Context) ([]model.User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, username, email, role, email_notifications, created_at
		FROM users WHERE role = 'admin'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var admins []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.EmailNotifications, &u.CreatedAt); err != nil {
			return nil, err
		}
		admins = append(admins, u)
	}
	return admins, rows.Err()
}
