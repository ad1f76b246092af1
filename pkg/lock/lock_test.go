package lock

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewManager(client, 120*time.Second), mr
}

func TestAcquireRelease(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	ok, err := m.Acquire(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second acquire on the same product fails while the lock is live.
	ok, err = m.Acquire(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)

	// A different product is unaffected.
	ok, err = m.Acquire(ctx, 43)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, m.Release(ctx, 42))

	ok, err = m.Acquire(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcquireReclaimsStaleLock(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	// Simulate a crashed holder: record exists, timestamp beyond TTL.
	stale := time.Now().Add(-10 * time.Minute).Unix()
	mr.Set(keyPrefix+"42", strconv.FormatInt(stale, 10))

	ok, err := m.Acquire(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcquireRespectsLiveForeignLock(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	mr.Set(keyPrefix+"42", strconv.FormatInt(time.Now().Unix(), 10))

	ok, err := m.Acquire(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReleaseIsUnconditional(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	// Releasing a lock that was never taken must not fail.
	assert.NoError(t, m.Release(ctx, 99))
}
