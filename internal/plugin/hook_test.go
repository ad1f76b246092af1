package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHookPriorityOrder(t *testing.T) {
	h := NewHookManager()
	var order []string

	h.Register("evt", 20, func(ctx context.Context, args ...interface{}) {
		order = append(order, "late")
	})
	h.Register("evt", 10, func(ctx context.Context, args ...interface{}) {
		order = append(order, "early")
	})
	h.Register("evt", 10, func(ctx context.Context, args ...interface{}) {
		order = append(order, "early2")
	})

	h.Do(context.Background(), "evt")

	assert.Equal(t, []string{"early", "early2", "late"}, order)
}

func TestHookArgsPassThrough(t *testing.T) {
	h := NewHookManager()
	var gotRevision, gotProduct uint64

	h.Register(HookRevisionPublished, 10, func(ctx context.Context, args ...interface{}) {
		gotRevision = args[0].(uint64)
		gotProduct = args[1].(uint64)
	})

	h.Do(context.Background(), HookRevisionPublished, uint64(7), uint64(42))

	assert.Equal(t, uint64(7), gotRevision)
	assert.Equal(t, uint64(42), gotProduct)
}

func TestHookUnknownNameIsNoop(t *testing.T) {
	h := NewHookManager()
	assert.NotPanics(t, func() {
		h.Do(context.Background(), "never.registered")
	})
	assert.Equal(t, 0, h.Count("never.registered"))
}
