package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const connectAttempts = 10

// NewPool connects to Postgres and verifies the connection. The
// database container may still be starting when we boot, so failed
// attempts retry with a growing delay.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	// Chat traffic is many short queries; keep a warm floor of
	// connections and recycle them before the server side does.
	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	delay := time.Second
	for attempt := 1; ; attempt++ {
		pool, poolErr := pgxpool.NewWithConfig(ctx, config)
		if poolErr == nil {
			if pingErr := pool.Ping(ctx); pingErr == nil {
				log.Printf("[DB] connected (attempt %d)", attempt)
				return pool, nil
			} else {
				pool.Close()
				err = pingErr
			}
		} else {
			err = poolErr
		}

		if attempt == connectAttempts {
			break
		}
		log.Printf("[DB] attempt %d/%d failed, retrying in %s: %v", attempt, connectAttempts, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if delay < 8*time.Second {
			delay *= 2
		}
	}
	return nil, fmt.Errorf("database unreachable after %d attempts: %w", connectAttempts, err)
}
