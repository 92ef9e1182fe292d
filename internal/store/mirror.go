package store

import (
	"context"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/sam-e/fabric/internal/logging"
)

// DepthMirror is a diagnostic sink for queue-depth snapshots. It exists so
// an external dashboard can observe queue depth without the Store itself
// becoming a persistence layer: the in-memory map stays the only
// authoritative state, matching the Non-goal of no cross-restart
// invocation history.
type DepthMirror interface {
	SetQueueDepth(ctx context.Context, lambdaName string, pending, processing, processed int) error
}

// RedisDepthMirror mirrors queue-depth snapshots into a Redis hash per
// function, keyed "fabric:store:depth:<lambdaName>". It is write-only from
// the Store's perspective and never consulted to answer a Store method.
type RedisDepthMirror struct {
	client *redis.Client
}

// NewRedisDepthMirror wraps an existing Redis client for depth mirroring.
func NewRedisDepthMirror(client *redis.Client) *RedisDepthMirror {
	return &RedisDepthMirror{client: client}
}

func (m *RedisDepthMirror) SetQueueDepth(ctx context.Context, lambdaName string, pending, processing, processed int) error {
	key := "fabric:store:depth:" + lambdaName
	return m.client.HSet(ctx, key,
		"pending", strconv.Itoa(pending),
		"processing", strconv.Itoa(processing),
		"processed", strconv.Itoa(processed),
	).Err()
}

// SetMirror attaches a diagnostic depth mirror. Passing nil disables
// mirroring. Safe to call before or during concurrent Store use.
func (s *Store) SetMirror(m DepthMirror) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirror = m
}

// mirrorDepth best-effort publishes lambdaName's current depth. Failures are
// logged, never surfaced to callers — the mirror is strictly diagnostic.
func (s *Store) mirrorDepth(lambdaName string) {
	s.mu.RLock()
	m := s.mirror
	s.mu.RUnlock()
	if m == nil {
		return
	}
	pending, processing, processed := s.QueueDepth(lambdaName)
	if err := m.SetQueueDepth(context.Background(), lambdaName, pending, processing, processed); err != nil {
		logging.Op().Warn("queue depth mirror update failed", "function", lambdaName, "error", err)
	}
}
