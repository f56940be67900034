package leasestore

import (
	"context"
	"sync"
	"time"
)

// Reaper periodically invokes a tick callback that is expected to sweep
// expired leases and reverse their bookkeeping. It is grounded on the
// coordinator's idle-watchdog goroutine: a ticker-driven loop selecting
// over context cancellation, torn down by Dispose without ever blocking
// the caller on the goroutine's exit.
type Reaper struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewReaper starts the background sweep loop at the given interval. tick is
// called once per interval and is responsible for taking whatever lock it
// needs — the reaper itself holds none, so the caller's sweep, bookkeeping
// reversal, and event emission can all happen atomically inside tick.
func NewReaper(interval time.Duration, tick func()) *Reaper {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Reaper{cancel: cancel}

	ticker := time.NewTicker(interval)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// select picks randomly among ready cases, so a tick that
				// lands together with cancellation must not run.
				if ctx.Err() != nil {
					return
				}
				tick()
			}
		}
	}()

	return r
}

// Dispose stops the sweep loop. It is idempotent and does not wait for the
// background goroutine to exit — the reaper must not pin the process alive
// nor make callers of Dispose pay for the ticker's teardown latency.
func (r *Reaper) Dispose() {
	r.once.Do(r.cancel)
}
