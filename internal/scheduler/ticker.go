package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sanar/product-scheduler/pkg/logger"
)

// TaskFunc is one periodic unit of work
type TaskFunc func(ctx context.Context) error

type task struct {
	name     string
	interval time.Duration
	fn       TaskFunc
	lastRun  time.Time
}

// Ticker runs registered tasks on their intervals from a single
// goroutine. The due-scan task is the primary trigger surface; the
// migration sweep rides the same loop at a longer interval.
type Ticker struct {
	mu       sync.Mutex
	tasks    []*task
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
	running  bool
}

// NewTicker creates a ticker that wakes at the given resolution
func NewTicker(resolution time.Duration) *Ticker {
	if resolution <= 0 {
		resolution = time.Minute
	}
	return &Ticker{interval: resolution}
}

// Register adds a named task. Must be called before Start.
func (t *Ticker) Register(name string, interval time.Duration, fn TaskFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tasks = append(t.tasks, &task{name: name, interval: interval, fn: fn})
}

// Start launches the loop. Safe to call once.
func (t *Ticker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	t.mu.Unlock()

	go t.loop(ctx)
	logger.GetLogger().Info().
		Dur("resolution", t.interval).
		Int("tasks", len(t.tasks)).
		Msg("scheduler ticker started")
}

// Stop halts the loop and waits for an in-flight pass to finish
func (t *Ticker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stop)
	done := t.done
	t.mu.Unlock()

	<-done
	logger.GetLogger().Info().Msg("scheduler ticker stopped")
}

func (t *Ticker) loop(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	// First pass immediately so a restart does not wait a full interval
	// with due work pending.
	t.runDueTasks(ctx)

	for {
		select {
		case <-ticker.C:
			t.runDueTasks(ctx)
		case <-t.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (t *Ticker) runDueTasks(ctx context.Context) {
	now := time.Now()
	t.mu.Lock()
	var due []*task
	for _, tk := range t.tasks {
		if tk.lastRun.IsZero() || now.Sub(tk.lastRun) >= tk.interval {
			tk.lastRun = now
			due = append(due, tk)
		}
	}
	t.mu.Unlock()

	for _, tk := range due {
		if err := tk.fn(ctx); err != nil {
			logger.GetLogger().Error().Err(err).Str("task", tk.name).Msg("scheduled task failed")
		}
	}
}
