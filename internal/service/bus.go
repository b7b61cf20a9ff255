package service

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Topic builders. Every broadcast is addressed to one of these three
// scopes; the bus itself knows nothing about rooms or roles.
func RoomTopic(room string) string { return "room:" + room }
func UserTopic(userID string) string { return "user:" + userID }
func RoleTopic(role string) string { return "role:" + role }

// Bus is the fan-out transport between event producers and the hub.
// The in-memory implementation serves a single process; the Redis
// implementation lets multiple processes share one broadcast space
// without changing any component contract.
type Bus interface {
	Publish(ctx context.Context, topic string, data []byte) error
	Subscribe(fn func(topic string, data []byte))
	Close() error
}

// MemoryBus delivers synchronously inside the process.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers []func(topic string, data []byte)
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, data []byte) error {
	_ = ctx
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(topic, data)
	}
	return nil
}

func (b *MemoryBus) Subscribe(fn func(topic string, data []byte)) {
	b.mu.Lock()
	b.handlers = append(b.handlers, fn)
	b.mu.Unlock()
}

func (b *MemoryBus) Close() error {
	return nil
}

// RedisBus fans out through Redis pub/sub, one channel per topic under
// a shared prefix.
type RedisBus struct {
	client *redis.Client
	prefix string
	pubsub *redis.PubSub

	mu       sync.RWMutex
	handlers []func(topic string, data []byte)
}

func NewRedisBus(ctx context.Context, redisURL string) (*RedisBus, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	b := &RedisBus{
		client: client,
		prefix: "helpdesk:",
	}
	b.pubsub = client.PSubscribe(context.Background(), b.prefix+"*")
	go b.receive()
	return b, nil
}

func (b *RedisBus) receive() {
	for msg := range b.pubsub.Channel() {
		topic := strings.TrimPrefix(msg.Channel, b.prefix)
		b.mu.RLock()
		handlers := b.handlers
		b.mu.RUnlock()
		for _, fn := range handlers {
			fn(topic, []byte(msg.Payload))
		}
	}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, data []byte) error {
	if err := b.client.Publish(ctx, b.prefix+topic, data).Err(); err != nil {
		log.Printf("[Bus] publish %s failed: %v", topic, err)
		return err
	}
	return nil
}

func (b *RedisBus) Subscribe(fn func(topic string, data []byte)) {
	b.mu.Lock()
	b.handlers = append(b.handlers, fn)
	b.mu.Unlock()
}

func (b *RedisBus) Close() error {
	_ = b.pubsub.Close()
	return b.client.Close()
}
