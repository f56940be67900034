// Package tokenrate implements the rolling-window token-budget limiter.
// Unlike requestrate, admission is by summed token count, and each entry
// is reconcilable after the fact against actual usage reported at release.
package tokenrate

import (
	"github.com/throttleai/governor/internal/clampms"
	"github.com/throttleai/governor/internal/window"
)

type entry struct {
	leaseID string
	tokens  int64
}

// Pool tracks a rolling sum of tokens over windowMs, capped at maxTokens.
type Pool struct {
	windowMs  int64
	maxTokens int64
	ring      *window.Ring[entry]
}

// New constructs a Pool.
func New(windowMs, maxTokens int64) *Pool {
	return &Pool{
		windowMs:  windowMs,
		maxTokens: maxTokens,
		ring:      window.New[entry](),
	}
}

// Admit prunes the window and checks whether needed more tokens fit under
// the cap. On denial, it walks live entries oldest-first, accumulating the
// tokens that will have aged out, and reports the instant enough of them
// will have freed to admit the request.
func (p *Pool) Admit(nowMs, needed int64) (ok bool, retryAfterMs int64) {
	p.ring.Prune(nowMs - p.windowMs)
	sum := p.sum()
	if sum+needed <= p.maxTokens {
		return true, 0
	}
	surplus := sum + needed - p.maxTokens
	var freed int64
	for _, e := range p.ring.Entries() {
		freed += e.Value.tokens
		if freed >= surplus {
			return false, clampms.Clamp(e.TsMs + p.windowMs - nowMs)
		}
	}
	// No amount of aging alone frees enough (e.g. needed alone exceeds the
	// cap): fall back to the full window length.
	return false, clampms.Clamp(p.windowMs)
}

// Charge records a token charge tagged with leaseID so it can later be
// reconciled against actual usage.
func (p *Pool) Charge(nowMs, tokens int64, leaseID string) {
	p.ring.Push(nowMs, entry{leaseID: leaseID, tokens: tokens})
}

// Reconcile replaces the estimated charge for leaseID with actual. If the
// entry has already aged out of the window, this is a no-op — there is
// nothing left to correct.
func (p *Pool) Reconcile(leaseID string, actual int64) {
	p.ring.MutateFromTail(
		func(e entry) bool { return e.leaseID == leaseID },
		func(e entry) entry { e.tokens = actual; return e },
	)
}

// Current returns the live token sum after pruning.
func (p *Pool) Current(nowMs int64) int64 {
	p.ring.Prune(nowMs - p.windowMs)
	return p.sum()
}

// Limit returns the configured cap.
func (p *Pool) Limit() int64 { return p.maxTokens }

func (p *Pool) sum() int64 {
	var s int64
	for _, e := range p.ring.Entries() {
		s += e.Value.tokens
	}
	return s
}
