package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultCleanupInterval is how often the Cleaner sweeps by default.
const DefaultCleanupInterval = time.Hour

// Cleaner periodically removes old audit history and expired blacklist
// entries. It runs on its own goroutine, independent of request handling,
// until Stop is called or the context passed to Start is cancelled.
type Cleaner struct {
	registry *Registry
	pruner   Pruner
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewCleaner builds a Cleaner for registry. pruner may be nil when the
// blacklist expires entries on its own.
func NewCleaner(registry *Registry, pruner Pruner, interval time.Duration, logger *slog.Logger) *Cleaner {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{
		registry: registry,
		pruner:   pruner,
		interval: interval,
		timeout:  time.Minute,
		logger:   logger.With("component", "session_cleaner"),
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. The first sweep happens after one
// interval. Calling Start twice, or after Stop, has no effect.
func (c *Cleaner) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.stopped {
		return
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	go c.loop(ctx)
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (c *Cleaner) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	started := c.started
	c.mu.Unlock()

	if !started {
		return
	}
	c.cancel()
	<-c.done
}

func (c *Cleaner) loop(ctx context.Context) {
	defer close(c.done)
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep. Failures are logged, never returned:
// the live session state does not depend on the sweep.
func (c *Cleaner) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	n, err := c.registry.CleanupExpiredSessions(ctx)
	if err != nil {
		c.logger.Error("session history sweep failed", "error", err)
	} else if n > 0 {
		c.logger.Info("session history swept", "deleted", n)
	}
	if c.pruner != nil {
		if p := c.pruner.Prune(c.now()); p > 0 {
			c.logger.Debug("blacklist pruned", "removed", p)
		}
	}
}
