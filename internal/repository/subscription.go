package repository

import (
	"context"
	"errors"

	"helpdesk-backend/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SubscriptionRepository struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepository(pool *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool}
}

// GetByOrderID looks up the subscription provisioned for an order.
// Returns (nil, nil) when none exists.
func (r *SubscriptionRepository) GetByOrderID(ctx context.Context, orderID string) (*model.Subscription, error) {
	s := &model.Subscription{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, order_id, plan, status, created_at
		FROM subscriptions WHERE order_id = $1
	`, orderID).Scan(&s.ID, &s.UserID, &s.OrderID, &s.Plan, &s.Status, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts the subscription row. ON CONFLICT DO NOTHING plus the
// order_id unique constraint means a concurrent duplicate insert falls
// back to the existing row instead of erroring.
func (r *SubscriptionRepository) Create(ctx context.Context, userID, orderID, plan string) (*model.Subscription, error) {
	s := &model.Subscription{}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO subscriptions (user_id, order_id, plan, status)
		VALUES ($1, $2, $3, 'active')
		ON CONFLICT (order_id) DO NOTHING
		RETURNING id, user_id, order_id, plan, status, created_at
	`, userID, orderID, plan).Scan(&s.ID, &s.UserID, &s.OrderID, &s.Plan, &s.Status, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the race: another insert holds the order id.
		return r.GetByOrderID(ctx, orderID)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
