package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/orderflowhq/orderflow-backend/pkg/redis"
)

// Manager deduplicates event deliveries per consumer using Redis SETNX with a
// TTL. Keys follow the `of:idempotency:evt:processed:<consumer>:<key>` pattern.
// The dedup key is chosen by the consumer; handlers that must collapse retried
// deliveries of the same logical action use a domain key such as
// `<order_id>:<event_type>` rather than the broker message ID.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewManager builds a dedup guard that marks deliveries as processed for ttl.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// CheckAndMarkProcessed returns true when the key was already processed and
// otherwise records it with the configured TTL.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer, key string) (bool, error) {
	redisKey, err := m.processedKey(consumer, key)
	if err != nil {
		return false, err
	}
	set, err := m.store.SetNX(ctx, redisKey, "1", m.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// IsProcessed reports whether the key already carries a processed marker
// without writing one. Handlers that must not lose work on a crash check
// first and mark only after their outcome is durable.
func (m *Manager) IsProcessed(ctx context.Context, consumer, key string) (bool, error) {
	redisKey, err := m.processedKey(consumer, key)
	if err != nil {
		return false, err
	}
	if _, err := m.store.Get(ctx, redisKey); err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Release drops the processed marker so a failed handler can be retried.
func (m *Manager) Release(ctx context.Context, consumer, key string) error {
	redisKey, err := m.processedKey(consumer, key)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, redisKey)
}

func (m *Manager) processedKey(consumer, key string) (string, error) {
	if strings.TrimSpace(consumer) == "" {
		return "", errors.New("consumer name is required")
	}
	if strings.TrimSpace(key) == "" {
		return "", errors.New("dedup key is required")
	}
	scope := fmt.Sprintf("evt:processed:%s", consumer)
	return m.store.IdempotencyKey(scope, key), nil
}

// DomainKey composes the order-scoped dedup key used by saga consumers.
func DomainKey(orderID, eventType string) string {
	return orderID + ":" + eventType
}
