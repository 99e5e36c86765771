package store

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSweepInterval is how often the background sweeper runs.
const DefaultSweepInterval = 10 * time.Minute

// Sweeper evicts expired threads on a timer. The store also sweeps
// opportunistically when listing, so running a Sweeper is optional; it keeps
// memory bounded on deployments where nobody lists threads.
type Sweeper struct {
	store    *Store
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewSweeper creates a Sweeper for the given store. A non-positive interval
// falls back to DefaultSweepInterval.
func NewSweeper(store *Store, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{store: store, interval: interval}
}

// Start launches the sweep loop. Calling Start on a running Sweeper is a no-op.
func (sw *Sweeper) Start(ctx context.Context) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.running {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	sw.cancel = cancel
	sw.done = make(chan struct{})
	sw.running = true

	go sw.run(loopCtx)
}

// Stop cancels the loop and waits for it to exit. Safe to call when not running.
func (sw *Sweeper) Stop() {
	sw.mu.Lock()
	if !sw.running {
		sw.mu.Unlock()
		return
	}
	cancel := sw.cancel
	done := sw.done
	sw.mu.Unlock()

	cancel()
	<-done
}

func (sw *Sweeper) run(ctx context.Context) {
	defer func() {
		sw.mu.Lock()
		sw.running = false
		close(sw.done)
		sw.mu.Unlock()
	}()

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := sw.store.SweepExpired(time.Now()); removed > 0 {
				slog.Debug("swept expired threads", "removed", removed)
			}
		}
	}
}
