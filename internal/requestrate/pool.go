// Package requestrate implements the rolling-window request-count limiter.
package requestrate

import (
	"github.com/throttleai/governor/internal/clampms"
	"github.com/throttleai/governor/internal/window"
)

// Pool tracks a rolling count of requests over windowMs, capped at
// maxPerWindow.
type Pool struct {
	windowMs     int64
	maxPerWindow int64
	ring         *window.Ring[struct{}]
}

// New constructs a Pool.
func New(windowMs, maxPerWindow int64) *Pool {
	return &Pool{
		windowMs:     windowMs,
		maxPerWindow: maxPerWindow,
		ring:         window.New[struct{}](),
	}
}

// Admit prunes the window and reports whether one more request fits, but
// does NOT record it — the two-phase pattern means the facade only calls
// Record once every later limiter has also admitted, so a rejection
// downstream never consumes request-rate budget.
func (p *Pool) Admit(nowMs int64) (ok bool, retryAfterMs int64) {
	p.ring.Prune(nowMs - p.windowMs)
	if int64(p.ring.Len()) < p.maxPerWindow {
		return true, 0
	}
	oldest, _ := p.ring.Oldest()
	return false, clampms.Clamp(oldest.TsMs + p.windowMs - nowMs)
}

// Record charges one request against the window.
func (p *Pool) Record(nowMs int64) {
	p.ring.Push(nowMs, struct{}{})
}

// Current returns the live request count after pruning.
func (p *Pool) Current(nowMs int64) int64 {
	p.ring.Prune(nowMs - p.windowMs)
	return int64(p.ring.Len())
}

// Limit returns the configured cap.
func (p *Pool) Limit() int64 { return p.maxPerWindow }
