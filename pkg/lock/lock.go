package lock

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a stalled apply can hold a product lock.
const DefaultTTL = 120 * time.Second

const keyPrefix = "wcps:lock:"

// Manager provides per-product advisory locks. A lock is a Redis record
// keyed by product id, holding the acquisition unix timestamp. Acquisition
// is an atomic check-and-create (SETNX); a record older than the TTL is
// considered stale and may be reclaimed by the next caller. Expiry is
// advisory: a running holder is never interrupted.
type Manager struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewManager creates a lock manager with the given TTL (DefaultTTL if zero)
func NewManager(client *redis.Client, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{client: client, ttl: ttl, now: time.Now}
}

// Acquire attempts to take the lock for productID. Returns false when a
// live lock is held by someone else.
func (m *Manager) Acquire(ctx context.Context, productID uint64) (bool, error) {
	key := m.key(productID)
	now := m.now().Unix()

	ok, err := m.client.SetNX(ctx, key, strconv.FormatInt(now, 10), m.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock acquire %d: %w", productID, err)
	}
	if ok {
		return true, nil
	}

	// A record exists. Redis expiry normally reclaims stale locks on its
	// own; the timestamp check also covers records written without a TTL
	// by an interrupted writer.
	raw, err := m.client.Get(ctx, key).Result()
	if err == redis.Nil {
		// Holder released (or expired) between SETNX and GET; retry once.
		ok, err = m.client.SetNX(ctx, key, strconv.FormatInt(now, 10), m.ttl).Result()
		if err != nil {
			return false, fmt.Errorf("lock acquire %d: %w", productID, err)
		}
		return ok, nil
	}
	if err != nil {
		return false, fmt.Errorf("lock inspect %d: %w", productID, err)
	}

	acquiredAt, _ := strconv.ParseInt(raw, 10, 64)
	if acquiredAt > 0 && now-acquiredAt < int64(m.ttl/time.Second) {
		return false, nil
	}

	// Stale record: delete and retry the atomic create. A concurrent
	// caller may win the retry, which is the correct outcome.
	if err := m.client.Del(ctx, key).Err(); err != nil {
		return false, fmt.Errorf("lock reclaim %d: %w", productID, err)
	}
	ok, err = m.client.SetNX(ctx, key, strconv.FormatInt(now, 10), m.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock acquire %d: %w", productID, err)
	}
	return ok, nil
}

// Release deletes the lock record unconditionally
func (m *Manager) Release(ctx context.Context, productID uint64) error {
	if err := m.client.Del(ctx, m.key(productID)).Err(); err != nil {
		return fmt.Errorf("lock release %d: %w", productID, err)
	}
	return nil
}

func (m *Manager) key(productID uint64) string {
	return keyPrefix + strconv.FormatUint(productID, 10)
}
