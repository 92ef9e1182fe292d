package queuesource

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisListBackend is the zero-infrastructure fallback Backend: each queue
// is a Redis list, RPUSH enqueues and LPOP receives. Grounded in the
// logging/circuitbreaker-adjacent redis list notifier already present in
// the teacher's queue package, standardized here on go-redis/v8 to match
// the module's pinned client version.
//
// A message LPOPed here is gone from the list immediately — there is no
// separate in-flight/processing list the way SQS's visibility timeout
// provides. A function invocation that fails after a Redis-backed message
// has been received is not redelivered; operators who need SQS's stronger
// at-least-once guarantee should run against SQSBackend instead.
type RedisListBackend struct {
	client *redis.Client
}

// NewRedisListBackend returns a Backend backed by the given Redis client.
func NewRedisListBackend(client *redis.Client) *RedisListBackend {
	return &RedisListBackend{client: client}
}

func (b *RedisListBackend) key(queueName string) string {
	return "fabric:queue:" + queueName
}

// EnsureQueue is a no-op: a Redis list is created implicitly by its first
// RPUSH. The returned address is simply the list key.
func (b *RedisListBackend) EnsureQueue(ctx context.Context, queueName string) (string, error) {
	return b.key(queueName), nil
}

func (b *RedisListBackend) Enqueue(ctx context.Context, address, body string) error {
	return b.client.RPush(ctx, address, body).Err()
}

func (b *RedisListBackend) Receive(ctx context.Context, address string, maxMessages int) ([]Message, error) {
	msgs := make([]Message, 0, maxMessages)
	for len(msgs) < maxMessages {
		body, err := b.client.LPop(ctx, address).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return msgs, fmt.Errorf("lpop %s: %w", address, err)
		}
		msgs = append(msgs, Message{ID: uuid.NewString(), Body: body})
	}
	return msgs, nil
}

// Delete is a no-op: LPOP already removed the message from the list.
func (b *RedisListBackend) Delete(ctx context.Context, address string, msg Message) error {
	return nil
}
