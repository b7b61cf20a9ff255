package model

import "time"

// Subscription is the provisioned paid-service row. OrderID carries a
// unique constraint so provisioning the same order twice returns the
// first row instead of creating a duplicate.
type Subscription struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	OrderID   string    `json:"order_id"`
	Plan      string    `json:"plan"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
