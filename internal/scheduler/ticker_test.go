package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTickerRunsTaskImmediatelyAndOnInterval(t *testing.T) {
	var runs atomic.Int32

	tk := NewTicker(20 * time.Millisecond)
	tk.Register("counter", 20*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	tk.Start(context.Background())
	time.Sleep(110 * time.Millisecond)
	tk.Stop()

	// One immediate pass plus several interval passes.
	count := runs.Load()
	assert.GreaterOrEqual(t, count, int32(3))
}

func TestTickerHonorsPerTaskInterval(t *testing.T) {
	var fast, slow atomic.Int32

	tk := NewTicker(10 * time.Millisecond)
	tk.Register("fast", 10*time.Millisecond, func(ctx context.Context) error {
		fast.Add(1)
		return nil
	})
	tk.Register("slow", time.Hour, func(ctx context.Context) error {
		slow.Add(1)
		return nil
	})

	tk.Start(context.Background())
	time.Sleep(80 * time.Millisecond)
	tk.Stop()

	assert.GreaterOrEqual(t, fast.Load(), int32(3))
	// The slow task only gets its startup pass.
	assert.Equal(t, int32(1), slow.Load())
}

func TestTickerStopIsIdempotent(t *testing.T) {
	tk := NewTicker(10 * time.Millisecond)
	tk.Start(context.Background())
	tk.Stop()
	assert.NotPanics(t, func() { tk.Stop() })
}

func TestTickerFailingTaskDoesNotStopOthers(t *testing.T) {
	var healthy atomic.Int32

	tk := NewTicker(10 * time.Millisecond)
	tk.Register("failing", 10*time.Millisecond, func(ctx context.Context) error {
		return assert.AnError
	})
	tk.Register("healthy", 10*time.Millisecond, func(ctx context.Context) error {
		healthy.Add(1)
		return nil
	})

	tk.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	tk.Stop()

	assert.GreaterOrEqual(t, healthy.Load(), int32(2))
}
